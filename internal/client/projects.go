package client

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raphaelgruber/sitesnap/internal/metrics"
	"github.com/raphaelgruber/sitesnap/internal/models"
)

// GetProject fetches a project by ID.
func (c *Client) GetProject(ctx context.Context, id string) (*models.Project, error) {
	path := "/api/projects/" + url.PathEscape(id)

	var p models.Project
	done := c.metrics.Track(metrics.OpGetProject)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &p)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

// lookupResult is a resolver node; only projects are accepted.
type lookupResult struct {
	models.Project
	ContainerType string `json:"container_type"`
}

// LookupProject resolves a "group/project" path to a project.
func (c *Client) LookupProject(ctx context.Context, path string) (*models.Project, error) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("lookup project: empty path")
	}

	var res lookupResult
	done := c.metrics.Track(metrics.OpLookupProject)
	err := c.do(ctx, http.MethodPost, "/api/lookup", nil, map[string]any{"path": parts}, &res)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("lookup project %q: %w", path, err)
	}

	if res.ContainerType != "" && res.ContainerType != "project" {
		return nil, fmt.Errorf("lookup project %q: path resolves to a %s", path, res.ContainerType)
	}
	return &res.Project, nil
}

// Projects lazily iterates the projects matching filter, one page at a time.
// An empty filter matches every project. Iteration stops at the first error.
func (c *Client) Projects(ctx context.Context, filter string) iter.Seq2[models.Project, error] {
	return func(yield func(models.Project, error) bool) {
		afterID := ""
		for {
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			q.Set("sort", "_id:asc")
			q.Set("limit", strconv.Itoa(c.pageSize))
			if afterID != "" {
				q.Set("after_id", afterID)
			}

			var page []models.Project
			done := c.metrics.Track(metrics.OpListProjects)
			err := c.do(ctx, http.MethodGet, "/api/projects", q, nil, &page)
			done(err)
			if err != nil {
				yield(models.Project{}, fmt.Errorf("list projects: %w", err))
				return
			}

			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}

			if len(page) < c.pageSize {
				return
			}
			afterID = page[len(page)-1].ID
		}
	}
}
