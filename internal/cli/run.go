package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/raphaelgruber/sitesnap/internal/run"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
	"github.com/spf13/cobra"
)

var errTimedOut = errors.New("timed out before all snapshots finished")

var (
	runFilter       string
	runProjects     []string
	runProjectsFile string
	runRetry        string
	runBatch        string
	runNoProgress   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger snapshots and wait for them to finish",
	Long: `Trigger a snapshot on every selected project, poll until every snapshot is
complete or failed (or the timeout elapses), then write a CSV report.

Exactly one project source is required:
  --filter F            projects matching a server-side filter (ALL for every project)
  --project REF         a project ID or group/label path (repeatable)
  --projects-file FILE  a YAML file with a "projects:" list of references
  --retry REPORT        projects of a previous report whose snapshot did not complete

The report is written even when the run times out or is aborted. A rejected API
key aborts the run. The command exits non-zero on timeout or error.

Examples:
  sitesnap run --filter ALL
  sitesnap run --project neuro/study-a --project 5f1a0c2b3d4e5f6a7b8c9d0e
  sitesnap run --retry snapshot_report.csv --output retry_report.csv`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFilter, "filter", "", "server-side project filter, ALL for every project")
	f.StringArrayVarP(&runProjects, "project", "p", nil, "project ID or group/label path (repeatable)")
	f.StringVar(&runProjectsFile, "projects-file", "", "YAML file listing project references")
	f.StringVar(&runRetry, "retry", "", "previous report to retry")
	f.StringVarP(&runBatch, "batch", "b", "", "batch label (default: random, or the retried report's label)")
	f.BoolVar(&runNoProgress, "no-progress", false, "print plain progress lines instead of the interactive bar")

	// Bound to config keys
	f.StringP("output", "o", "", "report path (default snapshot_report.csv)")
	f.Duration("timeout", 0, "overall time budget (default 2h)")
	f.Duration("poll-interval", 0, "time between status checks (default 10s)")
	f.String("not-found-policy", "", "when a snapshot disappears: retain or fail (default retain)")

	runCmd.MarkFlagsMutuallyExclusive("filter", "project", "projects-file", "retry")
	runCmd.MarkFlagsOneRequired("filter", "project", "projects-file", "retry")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	policy, err := snapshot.ParseNotFoundPolicy(cfg.NotFoundPolicy)
	if err != nil {
		return err
	}

	opts := run.Options{
		Filter:       runFilter,
		RetryReport:  runRetry,
		BatchLabel:   runBatch,
		OutputPath:   cfg.Output,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
		NotFound:     policy,
	}

	switch {
	case len(runProjects) > 0:
		opts.Refs = parseRefs(runProjects)
		if len(opts.Refs) == 0 {
			return errors.New("--project values are all empty")
		}
	case runProjectsFile != "":
		opts.Refs, err = loadProjectsFile(runProjectsFile)
		if err != nil {
			return err
		}
	}

	// A retry keeps the retried report's label unless one is given.
	if opts.BatchLabel == "" && opts.RetryReport == "" {
		opts.BatchLabel = newBatchLabel()
	}

	api, err := newSiteClient()
	if err != nil {
		return err
	}

	runLog := logger.With("run_id", uuid.NewString())
	runLog.Info("run started",
		"batch", opts.BatchLabel,
		"filter", opts.Filter,
		"projects", len(opts.Refs),
		"retry", opts.RetryReport,
		"output", opts.OutputPath,
		"timeout", opts.Timeout.String(),
	)

	out := cmd.OutOrStdout()
	var res *run.Result
	if isTerminal() && !runNoProgress {
		res, err = runWithProgressUI(ctx, api, opts, runLog)
	} else {
		res, err = runPlain(ctx, api, opts, runLog, func(format string, a ...any) {
			fmt.Fprintf(out, format, a...)
		})
	}
	logAPIStats(runLog)

	if res != nil {
		title := "Run " + res.Outcome.String()
		if res.Outcome == run.Finished && len(res.Records) == 0 && opts.RetryReport != "" {
			title = "Nothing to retry"
		}
		fmt.Fprint(out, summary{
			Title:      title,
			Batch:      res.BatchLabel,
			Records:    res.Records,
			ReportPath: res.ReportPath,
			Skipped:    res.Skipped,
		}.render(defaultTheme))
	}

	if err != nil {
		return err
	}
	if res.Outcome == run.TimedOut {
		return fmt.Errorf("%w (timeout %s)", errTimedOut, opts.Timeout)
	}
	return nil
}

// newBatchLabel returns a short random label.
func newBatchLabel() string {
	return uuid.NewString()[:8]
}
