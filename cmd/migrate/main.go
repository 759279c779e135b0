// Command migrate drives the import and export workflows against a
// running go-dataport server from the terminal.
//
//	migrate import -server http://localhost:8080 -token $TOKEN \
//	    -template 665f... -file residents.csv -acknowledge-warnings
//	migrate export -server http://localhost:8080 -token $TOKEN \
//	    -categories residents,leases -mask-emails -out backup.zip
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go-dataport/internal/client"
	"go-dataport/internal/config"
	"go-dataport/internal/features/exports"
	"go-dataport/internal/features/imports"
	"go-dataport/internal/workflow"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(ctx, os.Args[2:])
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "templates":
		err = runTemplates(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: migrate <command> [flags]

commands:
  import      upload a spreadsheet, review validation and run the import
  export      build and download a ZIP archive of selected categories
  templates   list the available mapping templates`)
}

func serverFlags(fs *flag.FlagSet) (server, token *string) {
	server = fs.String("server", "http://localhost:8080", "base URL of the go-dataport server")
	token = fs.String("token", os.Getenv("DATAPORT_TOKEN"), "bearer token (defaults to $DATAPORT_TOKEN)")
	return server, token
}

func runTemplates(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	server, token := serverFlags(fs)
	fs.Parse(args)

	api := client.New(*server, *token)
	templates, err := api.Templates(ctx)
	if err != nil {
		return err
	}
	for _, tpl := range templates {
		fmt.Printf("%s  %-30s %s (%d fields)\n", tpl.ID.Hex(), tpl.Name, tpl.Category, len(tpl.Fields))
	}
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	server, token := serverFlags(fs)
	templateID := fs.String("template", "", "mapping template id (required)")
	file := fs.String("file", "", "spreadsheet to import (required)")
	skipErrors := fs.Bool("skip-errors", false, "import valid rows even when some rows have errors")
	updateExisting := fs.Bool("update-existing", false, "default duplicate handling updates existing records")
	dryRun := fs.Bool("dry-run", false, "run the import without writing any records")
	ackWarnings := fs.Bool("acknowledge-warnings", false, "proceed past validation warnings without prompting")
	resolve := fs.String("resolve", "", "duplicate overrides, e.g. '3=update,7=skip'")
	fs.Parse(args)

	if *templateID == "" || *file == "" {
		return fmt.Errorf("-template and -file are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	api := client.New(*server, *token)
	flow, err := workflow.NewImportFlow(api, workflow.ImportFlowConfig{
		PollInterval:   cfg.ImportPoll,
		MaxUploadBytes: cfg.MaxUploadBytes,
		OnChange: func(state workflow.ImportState, job imports.ImportJob) {
			if state == workflow.ImportStateImporting {
				fmt.Printf("\r  %d/%d rows (%d%%)", job.ProcessedRows, job.TotalRows, job.ProgressPercent)
			}
		},
	})
	if err != nil {
		return err
	}

	if err := flow.SelectTemplate(*templateID); err != nil {
		return err
	}

	fmt.Printf("uploading %s...\n", *file)
	opts := imports.ImportOptions{SkipErrors: *skipErrors, UpdateExisting: *updateExisting, DryRun: *dryRun}
	if err := flow.Upload(ctx, *file, opts); err != nil {
		return err
	}

	preview := flow.Preview()
	fmt.Printf("validated: %d rows, %d importable, %d errors, %d warnings\n",
		preview.Preview.TotalRows, preview.Preview.ImportableRows,
		preview.ErrorCount(), preview.WarningCount())
	printIssues(preview)

	if !preview.IsValid() {
		return fmt.Errorf("file has blocking errors; fix them and upload again")
	}
	if preview.WarningCount() > 0 {
		if !*ackWarnings {
			return fmt.Errorf("file has warnings; re-run with -acknowledge-warnings to proceed")
		}
		flow.AcknowledgeWarnings()
	}

	if set := flow.Resolutions(); set != nil {
		if err := applyOverrides(set, *resolve); err != nil {
			return err
		}
		printResolutions(flow, set)
		if err := flow.SubmitResolutions(ctx); err != nil {
			return err
		}
	}

	// The watch loop must outlive an interrupt so it can observe the
	// cancellation land on the server; the signal only triggers Cancel.
	if err := flow.Approve(context.Background()); err != nil {
		return err
	}
	fmt.Println("import started")

	waitForTerminal(ctx, flow)
	fmt.Println()

	job, _ := flow.Job()
	switch job.Status {
	case imports.ImportStatusCompleted:
		fmt.Printf("done: %d imported, %d skipped\n", job.SuccessfulRows, job.SkippedRows)
		return nil
	case imports.ImportStatusPartial:
		fmt.Printf("partially completed: %d imported, %d failed, %d skipped\n",
			job.SuccessfulRows, job.FailedRows, job.SkippedRows)
		for _, rowErr := range job.Errors {
			fmt.Printf("  row %d: %s\n", rowErr.RowNumber, rowErr.Message)
		}
		return nil
	default:
		return fmt.Errorf("import ended with status %s: %s", job.Status, job.FailureReason)
	}
}

func waitForTerminal(ctx context.Context, flow *workflow.ImportFlow) {
	cancelled := false
	for {
		job, ok := flow.Job()
		if ok && job.Status.Terminal() {
			return
		}
		if ctx.Err() != nil && !cancelled {
			// Forward the interrupt as a cancellation, then keep
			// waiting for the server to confirm it.
			cancelled = true
			fmt.Println("\ncancelling...")
			flow.Cancel(context.Background())
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func printIssues(preview *workflow.PreviewModel) {
	for _, sev := range []imports.Severity{imports.SeverityError, imports.SeverityWarning} {
		s := sev
		for _, issue := range preview.FilterIssues(imports.IssueFilter{Severity: &s}) {
			fmt.Printf("  [%s] row %d, %s: %s\n", issue.Severity, issue.RowNumber, issue.Column, issue.Message)
		}
	}
}

// applyOverrides parses "row=resolution" pairs and applies them on top
// of the confidence-based defaults.
func applyOverrides(set *workflow.ResolutionSet, overrides string) error {
	if overrides == "" {
		return nil
	}
	for _, pair := range strings.Split(overrides, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad -resolve entry %q, want row=skip|update|create_new", pair)
		}
		row, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("bad row number in -resolve entry %q", pair)
		}
		if err := set.Set(row, imports.Resolution(parts[1])); err != nil {
			return err
		}
	}
	return nil
}

func printResolutions(flow *workflow.ImportFlow, set *workflow.ResolutionSet) {
	job, _ := flow.Job()
	fmt.Printf("%d duplicates detected:\n", set.Len())
	for _, dup := range job.Duplicates {
		res, _ := set.Get(dup.ImportRow)
		fmt.Printf("  row %d matches %s (%.0f%% on %s) -> %s\n",
			dup.ImportRow, dup.ExistingID, dup.Confidence,
			strings.Join(dup.MatchedFields, ", "), res)
	}
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	server, token := serverFlags(fs)
	categories := fs.String("categories", "", "comma-separated category ids (required)")
	out := fs.String("out", "export.zip", "where to write the downloaded archive")
	anonymize := fs.Bool("anonymize-names", false, "replace personal names with initials")
	maskEmails := fs.Bool("mask-emails", false, "mask the local part of email addresses")
	hashIDs := fs.Bool("hash-ids", false, "replace identifier fields with stable hashes")
	redact := fs.String("redact", "", "comma-separated field names to redact entirely")
	fs.Parse(args)

	if *categories == "" {
		return fmt.Errorf("-categories is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	api := client.New(*server, *token)
	flow, err := workflow.NewExportFlow(api, workflow.ExportFlowConfig{
		PollInterval: cfg.ExportPoll,
		OnChange: func(state workflow.ExportState, job exports.ExportJob) {
			if state == workflow.ExportStateExporting {
				fmt.Printf("\r  building... %d%%", job.ProgressPercent)
			}
		},
	})
	if err != nil {
		return err
	}

	if err := flow.SelectCategories(strings.Split(*categories, ",")); err != nil {
		return err
	}
	if flow.NeedsPrivacyOptions() {
		privacy := exports.ExportPrivacy{
			AnonymizeNames:  *anonymize,
			MaskEmails:      *maskEmails,
			HashIdentifiers: *hashIDs,
		}
		if *redact != "" {
			privacy.RedactFields = strings.Split(*redact, ",")
		}
		if err := flow.SetPrivacy(privacy); err != nil {
			return err
		}
	}

	if err := flow.Start(ctx); err != nil {
		return err
	}
	fmt.Println()

	job, _ := flow.Job()
	for category, count := range job.RecordCounts {
		fmt.Printf("  %s: %d records\n", category, count)
	}

	rc, err := flow.Download(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer dst.Close()
	n, err := io.Copy(dst, rc)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, n)
	return nil
}
