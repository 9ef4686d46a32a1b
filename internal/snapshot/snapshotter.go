// Package snapshot triggers project snapshots and tracks them to a terminal state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/sitesnap/internal/client"
	"github.com/raphaelgruber/sitesnap/internal/models"
)

// MatchAll is the filter value that selects every project.
const MatchAll = "ALL"

// ProjectFinder resolves projects.
type ProjectFinder interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	LookupProject(ctx context.Context, path string) (*models.Project, error)
}

// API is the remote surface the Snapshotter needs. *client.Client satisfies it.
type API interface {
	ProjectFinder
	CreateSnapshot(ctx context.Context, projectID string) (*models.Snapshot, error)
	GetSnapshotDetail(ctx context.Context, projectID, snapshotID string) (*models.Snapshot, error)
	Projects(ctx context.Context, filter string) iter.Seq2[models.Project, error]
}

// NotFoundPolicy decides what Refresh does when a snapshot has disappeared remotely.
type NotFoundPolicy string

const (
	// NotFoundRetain keeps the last known status.
	NotFoundRetain NotFoundPolicy = "retain"
	// NotFoundFail marks the record failed.
	NotFoundFail NotFoundPolicy = "fail"
)

// ParseNotFoundPolicy accepts "retain", "fail" or "" (retain).
func ParseNotFoundPolicy(s string) (NotFoundPolicy, error) {
	switch NotFoundPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NotFoundRetain:
		return NotFoundRetain, nil
	case NotFoundFail:
		return NotFoundFail, nil
	}
	return "", fmt.Errorf("unknown not-found policy %q (want %q or %q)", s, NotFoundRetain, NotFoundFail)
}

// Options configures a Snapshotter.
type Options struct {
	BatchLabel string
	NotFound   NotFoundPolicy
	Logger     *slog.Logger
}

// Snapshotter owns the records triggered during one run.
// Records are append-only and kept in trigger order. It is not safe for concurrent use.
type Snapshotter struct {
	api     API
	batch   string
	policy  NotFoundPolicy
	logger  *slog.Logger
	records []*models.Record
	now     func() time.Time
}

// New creates a Snapshotter.
func New(api API, opts Options) *Snapshotter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := opts.NotFound
	if policy == "" {
		policy = NotFoundRetain
	}
	return &Snapshotter{
		api:    api,
		batch:  opts.BatchLabel,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// BatchLabel returns the label stamped on new records.
func (s *Snapshotter) BatchLabel() string {
	return s.batch
}

// TriggerOnFilter snapshots every project matching filter.
// Per-project failures become failed records. A listing failure or a rejected
// credential stops the loop and is returned.
func (s *Snapshotter) TriggerOnFilter(ctx context.Context, filter string) error {
	if filter == MatchAll {
		filter = ""
	}

	s.logger.Info("triggering snapshots on filter", "filter", filter, "batch", s.batch)
	for project, err := range s.api.Projects(ctx, filter) {
		if err != nil {
			return fmt.Errorf("iterate projects: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Debug("filter matched project", "project", project.Label, "project_id", project.ID)
		if _, err := s.Trigger(ctx, ResolvedRef(project)); err != nil {
			return err
		}
	}
	return nil
}

// TriggerOnIDs snapshots each listed project. Duplicates are not collapsed.
// It stops early once ctx is done or the credential is rejected.
func (s *Snapshotter) TriggerOnIDs(ctx context.Context, ids []string) error {
	refs := make([]ProjectRef, len(ids))
	for i, id := range ids {
		refs[i] = ParseRef(id)
	}
	return s.TriggerOnRefs(ctx, refs)
}

// TriggerOnRefs snapshots each referenced project.
// It stops early once ctx is done or the credential is rejected.
func (s *Snapshotter) TriggerOnRefs(ctx context.Context, refs []ProjectRef) error {
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Trigger(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// Trigger runs the single-project flow and appends the resulting record,
// which is failed (with a message) when any step before creation fails.
// The error is non-nil only when the API rejected the credential; the failed
// record is appended all the same.
func (s *Snapshotter) Trigger(ctx context.Context, ref ProjectRef) (models.Record, error) {
	rec, err := s.create(ctx, ref)
	if err != nil {
		s.logger.Warn("snapshot trigger failed", "project", refString(ref), "error", err)
		rec = s.failedRecord(ref, err)
	} else {
		s.logger.Info("snapshot triggered",
			"project_id", rec.ProjectID,
			"snapshot_id", rec.SnapshotID,
			"status", rec.Status,
		)
	}
	s.records = append(s.records, &rec)

	if errors.Is(err, client.ErrUnauthorized) {
		return rec, fmt.Errorf("trigger %s: %w", refString(ref), err)
	}
	return rec, nil
}

func (s *Snapshotter) create(ctx context.Context, ref ProjectRef) (models.Record, error) {
	project, err := ResolveProject(ctx, s.api, ref)
	if err != nil {
		return models.Record{}, err
	}

	snap, err := s.api.CreateSnapshot(ctx, project.ID)
	if err != nil {
		return models.Record{}, err
	}

	rec := models.NewRecord(*snap, s.batch)
	if rec.ProjectID == "" {
		rec.ProjectID = project.ID
	}
	if rec.Created.IsZero() {
		rec.Created = s.now()
	}

	// The snapshot exists from here on, so label lookup failures only cost the labels.
	labels, err := s.api.GetProject(ctx, rec.ProjectID)
	if err != nil {
		s.logger.Warn("project label lookup failed", "project_id", rec.ProjectID, "error", err)
		rec.ProjectLabel, rec.GroupLabel = project.Label, project.Group
	} else {
		rec.ProjectLabel, rec.GroupLabel = labels.Label, labels.Group
	}
	return rec, nil
}

func (s *Snapshotter) failedRecord(ref ProjectRef, err error) models.Record {
	rec := models.Record{
		Created:    s.now(),
		Status:     models.StatusFailed,
		BatchLabel: s.batch,
		Message:    err.Error(),
	}
	switch r := ref.(type) {
	case IDRef:
		rec.ProjectID = string(r)
	case PathRef:
		// Retry resubmits project_id, so an unresolved path is kept there too.
		rec.ProjectID, rec.ProjectLabel = string(r), string(r)
	case ResolvedRef:
		rec.ProjectID, rec.ProjectLabel, rec.GroupLabel = r.ID, r.Label, r.Group
	}
	return rec
}

// Adopt appends previously reported records, e.g. rows reloaded from a report.
func (s *Snapshotter) Adopt(records ...models.Record) {
	for i := range records {
		rec := records[i]
		s.records = append(s.records, &rec)
	}
}

// Refresh re-fetches the status of every non-final record.
// Final records are skipped, so repeated calls cost nothing once all are final.
// Fetch failures are logged and leave the record unchanged, except a rejected
// credential, which stops the pass and is returned.
func (s *Snapshotter) Refresh(ctx context.Context) error {
	for _, rec := range s.records {
		if rec.IsFinal() {
			continue
		}
		if rec.SnapshotID == "" {
			s.logger.Warn("cannot refresh record without snapshot id", "project_id", rec.ProjectID)
			continue
		}

		snap, err := s.api.GetSnapshotDetail(ctx, rec.ProjectID, rec.SnapshotID)
		switch {
		case errors.Is(err, client.ErrNotFound):
			s.handleNotFound(rec, err)
		case errors.Is(err, client.ErrUnauthorized):
			return fmt.Errorf("refresh snapshot %s: %w", rec.SnapshotID, err)
		case err != nil:
			s.logger.Warn("snapshot refresh failed",
				"project_id", rec.ProjectID,
				"snapshot_id", rec.SnapshotID,
				"error", err,
			)
		case !snap.Status.Known():
			s.logger.Warn("ignoring unrecognized snapshot status",
				"snapshot_id", rec.SnapshotID,
				"status", snap.Status,
				"keeping", rec.Status,
			)
		default:
			if snap.Status != rec.Status {
				s.logger.Info("snapshot status changed",
					"snapshot_id", rec.SnapshotID,
					"from", rec.Status,
					"status", snap.Status,
				)
			}
			rec.Status = snap.Status
		}
	}
	return nil
}

func (s *Snapshotter) handleNotFound(rec *models.Record, err error) {
	s.logger.Warn("snapshot not found during refresh",
		"project_id", rec.ProjectID,
		"snapshot_id", rec.SnapshotID,
		"policy", s.policy,
		"error", err,
	)
	if s.policy == NotFoundFail {
		rec.Status = models.StatusFailed
	}
}

// AllFinal reports whether every record is terminal. It is true for no records.
func (s *Snapshotter) AllFinal() bool {
	for _, rec := range s.records {
		if !rec.IsFinal() {
			return false
		}
	}
	return true
}

// Len returns the number of records.
func (s *Snapshotter) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in trigger order.
func (s *Snapshotter) Records() []models.Record {
	out := make([]models.Record, len(s.records))
	for i, rec := range s.records {
		out[i] = *rec
	}
	return out
}

// Report returns one report row per record, in record order.
func (s *Snapshotter) Report() []models.Row {
	rows := make([]models.Row, len(s.records))
	for i, rec := range s.records {
		rows[i] = models.NewRow(*rec)
	}
	return rows
}

// Counts tallies records by status.
func (s *Snapshotter) Counts() map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts
}

func refString(ref ProjectRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}
