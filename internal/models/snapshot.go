// Package models defines the snapshot, project and report types shared across sitesnap.
package models

import (
	"fmt"
	"regexp"
	"time"
)

// Status represents the lifecycle state of a remote snapshot.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusComplete, StatusFailed}

// IsFinal reports whether no further transitions can occur.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ParseStatus converts a raw status value. An empty value means pending.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	if Status(s).Known() {
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown snapshot status %q", s)
}

// Known reports whether s is one of Statuses.
// Descriptors decode any status text, so callers check this before trusting it.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete, StatusFailed:
		return true
	}
	return false
}

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsValidID reports whether s has the shape of a container ID (24 hex characters).
// Anything else is treated as a lookup path such as "group/project".
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// SnapshotParents holds the parent references of a snapshot.
type SnapshotParents struct {
	Project string `json:"project"`
}

// Snapshot is the descriptor returned by the snapshot API.
type Snapshot struct {
	ID      string          `json:"_id"`
	Created time.Time       `json:"created"`
	Status  Status          `json:"status"`
	Parents SnapshotParents `json:"parents"`
}

// Project is the subset of a remote project sitesnap needs.
type Project struct {
	ID    string `json:"_id"`
	Label string `json:"label"`
	Group string `json:"group"`
}

// Record tracks one triggered snapshot for the duration of a run.
type Record struct {
	SnapshotID   string
	ProjectID    string
	Created      time.Time
	Status       Status
	GroupLabel   string
	ProjectLabel string
	BatchLabel   string
	Message      string // set for failures only
}

// IsFinal reports whether the record's status is terminal.
func (r Record) IsFinal() bool {
	return r.Status.IsFinal()
}

// NewRecord builds a record from a freshly created snapshot descriptor.
// A missing or unrecognized status starts out as pending.
func NewRecord(snap Snapshot, batchLabel string) Record {
	status := snap.Status
	if !status.Known() {
		status = StatusPending
	}
	return Record{
		SnapshotID: snap.ID,
		ProjectID:  snap.Parents.Project,
		Created:    snap.Created,
		Status:     status,
		BatchLabel: batchLabel,
	}
}
