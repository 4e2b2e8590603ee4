package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "funcaudit",
	Short: "Audit whether user queries are covered by the app function catalog",
	Long: `funcaudit keeps a catalog of defined app functions and uses an external
semantic classifier to decide whether a user query is already covered by an
existing definition or describes a new function.`,
	SilenceUsage: true,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import catalog entries from a JSON, XLSX or HTML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := ImportCatalogFile(args[0], nil)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No table data found; nothing imported.")
			return nil
		}
		added, err := store.AppendFunctions(entries)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entr%s (%d duplicate id(s) skipped).\n", added, pluralY(added), len(entries)-added)
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a web page and import its first table as catalog entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := FetchCatalogFromURL(args[0], nil)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No table data found on that page; nothing imported.")
			return nil
		}
		added, err := store.AppendFunctions(entries)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entr%s from %s.\n", added, pluralY(added), args[0])
		return nil
	},
}

var (
	addApp         string
	addFunction    string
	addPath        string
	addLandingPage string
	addQueries     []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a single catalog entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entry := FunctionEntry{
			ID:             NewID(),
			AppName:        addApp,
			FunctionName:   addFunction,
			Path:           addPath,
			LandingPage:    addLandingPage,
			ExampleQueries: addQueries,
		}
		if entry.ExampleQueries == nil {
			entry.ExampleQueries = []string{}
		}
		if _, err := store.AppendFunctions([]FunctionEntry{entry}); err != nil {
			return err
		}
		fmt.Printf("Added %s / %s (id %s).\n", entry.AppName, entry.FunctionName, entry.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a catalog entry by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		found, err := store.DeleteFunction(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no catalog entry with id %q", args[0])
		}
		fmt.Printf("Deleted %s.\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the function catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		catalog, err := store.LoadCatalog()
		if err != nil {
			return err
		}
		if len(catalog) == 0 {
			fmt.Println("Catalog is empty.")
			return nil
		}
		for _, f := range catalog {
			fmt.Printf("%s\t%s / %s\t%s\n", f.ID, f.AppName, f.FunctionName, strings.Join(f.ExampleQueries, " | "))
		}
		fmt.Printf("%d entr%s, %d app(s).\n", len(catalog), pluralY(len(catalog)), DistinctApps(catalog))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog and audit history summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		catalog, err := store.LoadCatalog()
		if err != nil {
			return err
		}
		history, err := store.LoadHistory()
		if err != nil {
			return err
		}

		defined := 0
		var scoreSum float64
		for _, rec := range history {
			if rec.Result.IsDefined {
				defined++
			}
			scoreSum += rec.Result.MatchScore
		}

		fmt.Printf("Catalog entries: %d\n", len(catalog))
		fmt.Printf("Apps covered:    %d\n", DistinctApps(catalog))
		fmt.Printf("Audits recorded: %d\n", len(history))
		if len(history) > 0 {
			fmt.Printf("Verdicts:        %d defined / %d new\n", defined, len(history)-defined)
			fmt.Printf("Avg match score: %.2f\n", scoreSum/float64(len(history)))
		}
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Audit a single query against the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		classifier, err := NewClassifier(cfg)
		if err != nil {
			return err
		}
		catalog, err := store.LoadCatalog()
		if err != nil {
			return err
		}

		query := strings.TrimSpace(args[0])
		if query == "" {
			return fmt.Errorf("query must not be empty")
		}

		result, err := classifier.Classify(cmd.Context(), query, catalog)
		if err != nil {
			// No history record is written for a failed classification.
			return err
		}

		printResult(result)
		return store.AppendHistory(HistoryRecord{
			ID:        NewID(),
			Query:     query,
			Timestamp: time.Now().In(cfg.Location),
			Result:    result,
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Audit every query in a TXT, CSV, XLSX or JSON file and export an XLSX report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		classifier, err := NewClassifier(cfg)
		if err != nil {
			return err
		}
		catalog, err := store.LoadCatalog()
		if err != nil {
			return err
		}

		queries, err := LoadQueryFile(args[0])
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return fmt.Errorf("no queries found in %s", args[0])
		}

		runner := NewBatchRunner(classifier.Classify, catalog)
		runner.Delay = cfg.BatchDelay()
		runner.OnProgress = func(done, total, percent int) {
			log.Printf("batch progress=%d%% (%d/%d)", percent, done, total)
		}

		outcome, runErr := runner.Run(cmd.Context(), queries)
		if len(outcome.Records) > 0 {
			if err := store.AppendHistory(outcome.Records...); err != nil {
				return err
			}
		}

		reportPath, err := WriteReportFile(outcome.Items, cfg.ExportOutputDir, time.Now().In(cfg.Location))
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d/%d quer%s successfully.\n", outcome.Completed, len(queries), pluralY(len(queries)))
		fmt.Printf("Report written to %s\n", reportPath)
		return runErr
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [clear]",
	Short: "Show the audit history, or clear it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			if args[0] != "clear" {
				return fmt.Errorf("unknown history action %q", args[0])
			}
			if err := store.ClearHistory(); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		}

		history, err := store.LoadHistory()
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No audits recorded.")
			return nil
		}
		for _, rec := range history {
			verdict := VerdictNew
			if rec.Result.IsDefined {
				verdict = VerdictDefined
			}
			matched := ""
			if rec.Result.MatchedFunction != nil {
				matched = fmt.Sprintf(" -> %s / %s", rec.Result.MatchedFunction.AppName, rec.Result.MatchedFunction.FunctionName)
			}
			fmt.Printf("%s\t%s\t%s (%.1f%%)%s\n", rec.Timestamp.Format("2006-01-02 15:04"), rec.Query, verdict, rec.Result.MatchScore*100, matched)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled batch audits over the input directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfig()
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		classifier, err := NewClassifier(cfg)
		if err != nil {
			return err
		}

		log.Println("Starting funcaudit batch scheduler...")
		err = StartBatchScheduler(cmd.Context(), cfg, store, classifier)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func printResult(result ClassificationResult) {
	verdict := "new function"
	if result.IsDefined {
		verdict = "defined"
	}
	fmt.Printf("Verdict:    %s\n", verdict)
	fmt.Printf("Confidence: %.1f%%\n", result.MatchScore*100)
	if result.MatchedFunction != nil {
		f := result.MatchedFunction
		fmt.Printf("Matched:    %s / %s (id %s)\n", f.AppName, f.FunctionName, f.ID)
		if f.Path != "" {
			fmt.Printf("Path:       %s\n", f.Path)
		}
	}
	fmt.Printf("Reasoning:  %s\n", result.Reasoning)
	if result.SuggestedImprovement != "" {
		fmt.Printf("Suggestion: %s\n", result.SuggestedImprovement)
	}
}

func init() {
	addCmd.Flags().StringVar(&addApp, "app", "Unknown App", "app name")
	addCmd.Flags().StringVar(&addFunction, "function", "Unknown Function", "function name")
	addCmd.Flags().StringVar(&addPath, "path", "", "human-readable activation path")
	addCmd.Flags().StringVar(&addLandingPage, "landing-page", "", "deep-link / landing page URI")
	addCmd.Flags().StringArrayVar(&addQueries, "query", nil, "example query (repeatable)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}
