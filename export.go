package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const reportSheetName = "Audit Results"
const reportSentinel = "-"

const (
	VerdictDefined     = "defined"
	VerdictNew         = "new"
	VerdictUnprocessed = "unprocessed"
)

var reportHeader = []string{"Query", "Verdict", "Confidence", "Matched App", "Matched Function", "Reasoning", "Suggestion"}

// BuildReportRows flattens batch items into the export table: a header row
// followed by one row per item in input order. Items without a result
// (pending or failed) carry the unprocessed verdict and sentinel cells.
func BuildReportRows(items []BatchItem) [][]string {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, reportHeader)
	for _, item := range items {
		rows = append(rows, reportRow(item))
	}
	return rows
}

func reportRow(item BatchItem) []string {
	if item.Result == nil {
		return []string{item.Query, VerdictUnprocessed, reportSentinel, reportSentinel, reportSentinel, reportSentinel, reportSentinel}
	}

	r := item.Result
	verdict := VerdictNew
	if r.IsDefined {
		verdict = VerdictDefined
	}

	matchedApp := reportSentinel
	matchedFunc := reportSentinel
	if r.MatchedFunction != nil {
		matchedApp = r.MatchedFunction.AppName
		matchedFunc = r.MatchedFunction.FunctionName
	}

	return []string{
		item.Query,
		verdict,
		fmt.Sprintf("%.1f%%", r.MatchScore*100),
		matchedApp,
		matchedFunc,
		orSentinel(r.Reasoning),
		orSentinel(r.SuggestedImprovement),
	}
}

func orSentinel(s string) string {
	if s == "" {
		return reportSentinel
	}
	return s
}

// WriteReportFile writes the batch outcome as a single-sheet XLSX document
// under outputDir and returns the file path.
func WriteReportFile(items []BatchItem, outputDir string, runTime time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("audit_results_%s.xlsx", runTime.Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), reportSheetName); err != nil {
		return "", err
	}

	for i, row := range BuildReportRows(items) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(reportSheetName, cell, &row); err != nil {
			return "", err
		}
	}

	return path, f.SaveAs(path)
}
