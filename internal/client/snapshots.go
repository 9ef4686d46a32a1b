package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/sitesnap/internal/metrics"
	"github.com/raphaelgruber/sitesnap/internal/models"
)

// CreateSnapshot queues a new snapshot of the project.
func (c *Client) CreateSnapshot(ctx context.Context, projectID string) (*models.Snapshot, error) {
	path := fmt.Sprintf("/snapshot/projects/%s/snapshots", url.PathEscape(projectID))

	var snap models.Snapshot
	done := c.metrics.Track(metrics.OpCreateSnapshot)
	err := c.do(ctx, http.MethodPost, path, nil, nil, &snap)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("create snapshot on project %s: %w", projectID, err)
	}

	if snap.Parents.Project == "" {
		snap.Parents.Project = projectID
	}
	return &snap, nil
}

// GetSnapshotDetail fetches the current state of a snapshot.
// A snapshot that no longer exists yields an error matching ErrNotFound.
func (c *Client) GetSnapshotDetail(ctx context.Context, projectID, snapshotID string) (*models.Snapshot, error) {
	path := fmt.Sprintf("/snapshot/projects/%s/snapshots/%s/detail",
		url.PathEscape(projectID), url.PathEscape(snapshotID))

	var snap models.Snapshot
	done := c.metrics.Track(metrics.OpSnapshotDetail)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &snap)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", snapshotID, err)
	}
	return &snap, nil
}
