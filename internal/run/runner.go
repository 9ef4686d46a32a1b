// Package run orchestrates one snapshot run: trigger, poll, report.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sitesnap/internal/models"
	"github.com/raphaelgruber/sitesnap/internal/report"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultTimeout      = 2 * time.Hour
)

var (
	// ErrNoSource means none of filter, refs or retry report was given.
	ErrNoSource = errors.New("no project source: set a filter, project references, or a retry report")
	// ErrMultipleSources means more than one project source was given.
	ErrMultipleSources = errors.New("only one of filter, project references, or retry report may be set")
)

// Outcome is how a run ended.
type Outcome int

const (
	// Finished means every record reached a terminal state.
	Finished Outcome = iota
	// TimedOut means the wall-clock budget elapsed first.
	TimedOut
	// Interrupted means the context was cancelled while polling.
	Interrupted
	// Aborted means the run stopped on an error that makes going on pointless,
	// such as a rejected credential or a failed project listing.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case TimedOut:
		return "timed out"
	case Interrupted:
		return "interrupted"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Options selects the projects and bounds the run.
type Options struct {
	// Exactly one of Filter, Refs and RetryReport is set.
	Filter      string
	Refs        []snapshot.ProjectRef
	RetryReport string

	BatchLabel   string
	OutputPath   string
	PollInterval time.Duration
	Timeout      time.Duration
	NotFound     snapshot.NotFoundPolicy
}

func (o Options) validate() error {
	n := 0
	if o.Filter != "" {
		n++
	}
	if len(o.Refs) > 0 {
		n++
	}
	if o.RetryReport != "" {
		n++
	}
	switch {
	case n == 0:
		return ErrNoSource
	case n > 1:
		return ErrMultipleSources
	case o.OutputPath == "":
		return errors.New("output path is required")
	}
	return nil
}

// Progress describes the state after one poll iteration.
type Progress struct {
	Iteration int
	Elapsed   time.Duration
	Total     int
	Counts    map[models.Status]int
}

// Final returns how many records are terminal.
func (p Progress) Final() int {
	return p.Counts[models.StatusComplete] + p.Counts[models.StatusFailed]
}

// Result summarizes a finished run.
type Result struct {
	Outcome    Outcome
	BatchLabel string
	Records    []models.Record
	Counts     map[models.Status]int
	// ReportPath is empty when no report was written.
	ReportPath string
	// Skipped counts rows from a retry report that were already complete.
	Skipped int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the wall clock.
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgress registers a callback invoked after every poll iteration.
func WithProgress(fn func(Progress)) RunnerOption {
	return func(r *Runner) {
		r.progress = fn
	}
}

// Runner executes a single run. Everything happens on the calling goroutine.
type Runner struct {
	api      snapshot.API
	opts     Options
	clock    Clock
	logger   *slog.Logger
	progress func(Progress)
}

// New creates a Runner.
func New(api snapshot.API, opts Options, ropts ...RunnerOption) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	r := &Runner{
		api:    api,
		opts:   opts,
		clock:  SystemClock{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Run triggers snapshots on the selected projects, polls them and writes the report.
// A timeout is reported through Result.Outcome, not as an error. The report is
// written whenever at least one record exists, including on timeout, interruption
// or abort.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.opts.validate(); err != nil {
		return nil, err
	}

	res := &Result{BatchLabel: r.opts.BatchLabel}

	var ids []string
	if r.opts.RetryReport != "" {
		var err error
		ids, err = r.retryTargets(ctx, res)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			r.logger.Info("nothing to retry", "report", r.opts.RetryReport, "skipped", res.Skipped)
			res.Outcome = Finished
			return res, nil
		}
	}

	s := snapshot.New(r.api, snapshot.Options{
		BatchLabel: res.BatchLabel,
		NotFound:   r.opts.NotFound,
		Logger:     r.logger,
	})

	var triggerErr error
	switch {
	case ids != nil:
		r.logger.Info("retrying projects", "count", len(ids), "batch", s.BatchLabel())
		triggerErr = s.TriggerOnIDs(ctx, ids)
	case len(r.opts.Refs) > 0:
		triggerErr = s.TriggerOnRefs(ctx, r.opts.Refs)
	default:
		triggerErr = s.TriggerOnFilter(ctx, r.opts.Filter)
	}

	if triggerErr == nil && ctx.Err() != nil {
		triggerErr = ctx.Err()
	}

	var pollErr error
	switch {
	case triggerErr == nil:
		res.Outcome, pollErr = r.Poll(ctx, s)
	case ctx.Err() != nil:
		res.Outcome = Interrupted
		triggerErr = fmt.Errorf("trigger interrupted: %w", triggerErr)
	default:
		res.Outcome = Aborted
		r.logger.Error("run aborted", "error", triggerErr)
	}

	res.Records = s.Records()
	res.Counts = s.Counts()

	writeErr := r.writeReport(s, res)
	if err := errors.Join(triggerErr, pollErr, writeErr); err != nil {
		return res, err
	}

	r.logger.Info("run complete",
		"outcome", res.Outcome.String(),
		"records", len(res.Records),
		"complete", res.Counts[models.StatusComplete],
		"failed", res.Counts[models.StatusFailed],
	)
	return res, nil
}

// retryTargets reloads the retry report, refreshes rows that were still running,
// and returns a project reference for every row that is not complete.
func (r *Runner) retryTargets(ctx context.Context, res *Result) ([]string, error) {
	records, err := report.Records(r.opts.RetryReport)
	if err != nil {
		return nil, fmt.Errorf("load retry report: %w", err)
	}

	prior := snapshot.New(r.api, snapshot.Options{NotFound: r.opts.NotFound, Logger: r.logger})
	prior.Adopt(records...)
	if err := prior.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh retry report: %w", err)
	}

	ids := []string{}
	for _, rec := range prior.Records() {
		if res.BatchLabel == "" && rec.BatchLabel != "" {
			res.BatchLabel = rec.BatchLabel
		}
		if rec.Status == models.StatusComplete {
			res.Skipped++
			continue
		}
		ref := retryRef(rec)
		if ref == "" {
			r.logger.Warn("retry row has no project reference, skipping", "snapshot_id", rec.SnapshotID)
			continue
		}
		ids = append(ids, ref)
	}
	return ids, nil
}

// retryRef returns what to resubmit for a report row: the project ID, or the
// group/label path when the row never resolved to an ID.
func retryRef(rec models.Record) string {
	switch {
	case rec.ProjectID != "":
		return rec.ProjectID
	case rec.GroupLabel != "" && rec.ProjectLabel != "":
		return rec.GroupLabel + "/" + rec.ProjectLabel
	}
	return rec.ProjectLabel
}

// Poll refreshes s until every record is final or the timeout elapses.
// It never sleeps when the records are already final on entry.
func (r *Runner) Poll(ctx context.Context, s *snapshot.Snapshotter) (Outcome, error) {
	start := r.clock.Now()
	deadline := start.Add(r.opts.Timeout)

	for i := 1; ; i++ {
		if err := s.Refresh(ctx); err != nil {
			return Aborted, fmt.Errorf("poll: %w", err)
		}

		if r.progress != nil {
			r.progress(Progress{
				Iteration: i,
				Elapsed:   r.clock.Now().Sub(start),
				Total:     s.Len(),
				Counts:    s.Counts(),
			})
		}

		if s.AllFinal() {
			return Finished, nil
		}
		if !r.clock.Now().Before(deadline) {
			r.logger.Warn("timed out waiting for snapshots", "timeout", r.opts.Timeout.String())
			return TimedOut, nil
		}

		r.logger.Debug("waiting for snapshots", "iteration", i, "interval", r.opts.PollInterval.String())
		if err := r.clock.Sleep(ctx, r.opts.PollInterval); err != nil {
			return Interrupted, fmt.Errorf("poll interrupted: %w", err)
		}
	}
}

func (r *Runner) writeReport(s *snapshot.Snapshotter, res *Result) error {
	if s.Len() == 0 {
		r.logger.Info("no snapshot records, report not written")
		return nil
	}
	if err := report.Write(r.opts.OutputPath, s.Report()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	res.ReportPath = r.opts.OutputPath
	r.logger.Info("report written", "path", r.opts.OutputPath, "rows", s.Len())
	return nil
}
