// Package snapshottest provides an in-memory snapshot API for tests.
package snapshottest

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/raphaelgruber/sitesnap/internal/client"
	"github.com/raphaelgruber/sitesnap/internal/models"
)

// Call names counted in API.Calls.
const (
	CallGetProject = "get_project"
	CallLookup     = "lookup"
	CallCreate     = "create"
	CallDetail     = "detail"
	CallList       = "list"
)

// Created is the creation time stamped on every fake snapshot.
var Created = time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)

// API is an in-memory stand-in for the REST client. Unknown IDs and paths
// produce 404 errors that match client.ErrNotFound.
type API struct {
	ProjectsByID map[string]models.Project
	Paths        map[string]string // "group/label" -> project ID
	Snapshots    map[string]*models.Snapshot
	ListErr      error
	CreateErr    map[string]error // by project ID
	ProjectErr   map[string]error // GetProject failures by project ID
	LookupErr    map[string]error // by "group/label" path
	DetailErr    error

	Calls   map[string]int
	Filters []string

	nextID int
}

// NewAPI returns a fake knowing the given projects, addressable by ID or "group/label".
func NewAPI(projects ...models.Project) *API {
	f := &API{
		ProjectsByID: make(map[string]models.Project),
		Paths:        make(map[string]string),
		Snapshots:    make(map[string]*models.Snapshot),
		CreateErr:    make(map[string]error),
		ProjectErr:   make(map[string]error),
		LookupErr:    make(map[string]error),
		Calls:        make(map[string]int),
	}
	for _, p := range projects {
		f.ProjectsByID[p.ID] = p
		f.Paths[p.Group+"/"+p.Label] = p.ID
	}
	return f
}

func notFound(path string) error {
	return &client.APIError{StatusCode: 404, Method: "GET", Path: path}
}

func (f *API) GetProject(_ context.Context, id string) (*models.Project, error) {
	f.Calls[CallGetProject]++
	if err := f.ProjectErr[id]; err != nil {
		return nil, err
	}
	p, ok := f.ProjectsByID[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, notFound("/api/projects/"+id))
	}
	return &p, nil
}

func (f *API) LookupProject(_ context.Context, path string) (*models.Project, error) {
	f.Calls[CallLookup]++
	if err := f.LookupErr[path]; err != nil {
		return nil, err
	}
	id, ok := f.Paths[path]
	if !ok {
		return nil, fmt.Errorf("lookup project %q: %w", path, notFound("/api/lookup"))
	}
	p := f.ProjectsByID[id]
	return &p, nil
}

func (f *API) CreateSnapshot(_ context.Context, projectID string) (*models.Snapshot, error) {
	f.Calls[CallCreate]++
	if err := f.CreateErr[projectID]; err != nil {
		return nil, err
	}
	f.nextID++
	snap := &models.Snapshot{
		ID:      fmt.Sprintf("5a%022x", f.nextID),
		Created: Created,
		Status:  models.StatusPending,
		Parents: models.SnapshotParents{Project: projectID},
	}
	f.Snapshots[snap.ID] = snap
	cp := *snap
	return &cp, nil
}

func (f *API) GetSnapshotDetail(_ context.Context, projectID, snapshotID string) (*models.Snapshot, error) {
	f.Calls[CallDetail]++
	if f.DetailErr != nil {
		return nil, f.DetailErr
	}
	snap, ok := f.Snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("get snapshot %s: %w", snapshotID, notFound("/snapshot/projects/"+projectID))
	}
	cp := *snap
	return &cp, nil
}

// Projects yields every known project in ID order, ignoring the filter text.
func (f *API) Projects(_ context.Context, filter string) iter.Seq2[models.Project, error] {
	f.Calls[CallList]++
	f.Filters = append(f.Filters, filter)
	return func(yield func(models.Project, error) bool) {
		if f.ListErr != nil {
			yield(models.Project{}, f.ListErr)
			return
		}
		for _, id := range slices.Sorted(maps.Keys(f.ProjectsByID)) {
			if !yield(f.ProjectsByID[id], nil) {
				return
			}
		}
	}
}

// AddSnapshot registers an existing remote snapshot. An empty status mimics a
// descriptor without a status field.
func (f *API) AddSnapshot(projectID, snapshotID string, status models.Status) {
	f.Snapshots[snapshotID] = &models.Snapshot{
		ID:      snapshotID,
		Created: Created,
		Status:  status,
		Parents: models.SnapshotParents{Project: projectID},
	}
}

// SetAll moves every known snapshot to status.
func (f *API) SetAll(status models.Status) {
	for _, snap := range f.Snapshots {
		snap.Status = status
	}
}

// SnapshotsFor returns the IDs of snapshots created for a project, sorted.
func (f *API) SnapshotsFor(projectID string) []string {
	var ids []string
	for id, snap := range f.Snapshots {
		if snap.Parents.Project == projectID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
