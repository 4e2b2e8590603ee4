package main

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestBuildReportRows(t *testing.T) {
	matched := &FunctionEntry{ID: "fn-1", AppName: "抖音", FunctionName: "扫一扫"}
	items := []BatchItem{
		{
			Query:  "打开抖音扫一扫",
			Status: StatusCompleted,
			Result: &ClassificationResult{
				IsDefined:       true,
				MatchScore:      0.934,
				MatchedFunction: matched,
				Reasoning:       "intent matches scan function",
			},
		},
		{
			Query:  "帮我订一张去上海的机票",
			Status: StatusCompleted,
			Result: &ClassificationResult{
				IsDefined:            false,
				MatchScore:           0.12,
				Reasoning:            "no flight booking function defined",
				SuggestedImprovement: "add a flight booking function",
			},
		},
		{Query: "failed one", Status: StatusError},
	}

	rows := BuildReportRows(items)
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}

	want := [][]string{
		{"Query", "Verdict", "Confidence", "Matched App", "Matched Function", "Reasoning", "Suggestion"},
		{"打开抖音扫一扫", "defined", "93.4%", "抖音", "扫一扫", "intent matches scan function", "-"},
		{"帮我订一张去上海的机票", "new", "12.0%", "-", "-", "no flight booking function defined", "add a flight booking function"},
		{"failed one", "unprocessed", "-", "-", "-", "-", "-"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows mismatch:\ngot  %v\nwant %v", rows, want)
	}
}

func TestWriteReportFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	items := []BatchItem{
		{
			Query:  "q1",
			Status: StatusCompleted,
			Result: &ClassificationResult{IsDefined: true, MatchScore: 0.5, Reasoning: "r"},
		},
		{Query: "q2", Status: StatusError},
	}

	runTime := time.Date(2025, 6, 1, 9, 30, 15, 0, time.UTC)
	path, err := WriteReportFile(items, dir, runTime)
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	if got := filepath.Base(path); got != "audit_results_20250601_093015.xlsx" {
		t.Fatalf("unexpected report filename %q", got)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopening report failed: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "Audit Results" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}

	rows, err := f.GetRows("Audit Results")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "q1" || rows[1][1] != "defined" || rows[1][2] != "50.0%" {
		t.Fatalf("unexpected first data row: %v", rows[1])
	}
	if rows[2][1] != "unprocessed" {
		t.Fatalf("unexpected verdict for failed item: %v", rows[2])
	}
}

func TestWriteReportFileCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")

	path, err := WriteReportFile(nil, dir, time.Now())
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopening report failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Audit Results")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}
