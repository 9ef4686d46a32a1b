package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/sitesnap/internal/models"
)

// ErrMissingProjectID indicates a project reference could not be resolved to an ID.
var ErrMissingProjectID = errors.New("missing project id")

// ProjectRef identifies a project to snapshot.
// Implementations are IDRef, PathRef and ResolvedRef.
type ProjectRef interface {
	// resolve returns the referenced project, fetching it if necessary.
	resolve(ctx context.Context, api ProjectFinder) (models.Project, error)
	String() string
}

// IDRef is a project ID. Resolution fetches the project, since snapshots can be
// created against any well-formed ID whether or not the project exists.
type IDRef string

// PathRef is a "group/project" lookup path.
type PathRef string

// ResolvedRef is a project that has already been fetched; it resolves without a call.
type ResolvedRef models.Project

// ParseRef classifies a raw string as an IDRef or a PathRef.
func ParseRef(s string) ProjectRef {
	if models.IsValidID(s) {
		return IDRef(s)
	}
	return PathRef(s)
}

func (r IDRef) String() string   { return string(r) }
func (r PathRef) String() string { return string(r) }

func (r ResolvedRef) String() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

func (r IDRef) resolve(ctx context.Context, api ProjectFinder) (models.Project, error) {
	p, err := api.GetProject(ctx, string(r))
	if err != nil {
		return models.Project{}, err
	}
	return *p, nil
}

func (r PathRef) resolve(ctx context.Context, api ProjectFinder) (models.Project, error) {
	p, err := api.LookupProject(ctx, string(r))
	if err != nil {
		return models.Project{}, err
	}
	return *p, nil
}

func (r ResolvedRef) resolve(context.Context, ProjectFinder) (models.Project, error) {
	return models.Project(r), nil
}

// ResolveProject resolves ref to a project whose ID is well formed.
// Every failure wraps ErrMissingProjectID together with its cause.
func ResolveProject(ctx context.Context, api ProjectFinder, ref ProjectRef) (models.Project, error) {
	if ref == nil || ref.String() == "" {
		return models.Project{}, fmt.Errorf("%w: empty project reference", ErrMissingProjectID)
	}

	p, err := ref.resolve(ctx, api)
	if err != nil {
		return models.Project{}, fmt.Errorf("%w: %s: %w", ErrMissingProjectID, ref, err)
	}
	if !models.IsValidID(p.ID) {
		return models.Project{}, fmt.Errorf("%w: %s resolved to id %q", ErrMissingProjectID, ref, p.ID)
	}
	return p, nil
}
