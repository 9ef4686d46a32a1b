package models

import (
	"fmt"
	"time"
)

// TimestampFormat is the report timestamp layout. Precision stops at the minute.
const TimestampFormat = "2006-01-02 15:04"

// Names of the report columns that are parsed, used in decode errors.
const (
	ColTimestamp = "timestamp"
	ColStatus    = "status"
)

// Row is the flat report representation of a Record.
type Row struct {
	GroupLabel   string `csv:"group_label"`
	ProjectLabel string `csv:"project_label"`
	ProjectID    string `csv:"project_id"`
	SnapshotID   string `csv:"snapshot_id"`
	Timestamp    string `csv:"timestamp"`
	BatchLabel   string `csv:"batch_label"`
	Status       string `csv:"status"`
	Message      string `csv:"message"`
}

// now is swapped in tests.
var now = time.Now

// NewRow flattens a record for the report.
func NewRow(r Record) Row {
	return Row{
		GroupLabel:   r.GroupLabel,
		ProjectLabel: r.ProjectLabel,
		ProjectID:    r.ProjectID,
		SnapshotID:   r.SnapshotID,
		Timestamp:    r.Created.UTC().Format(TimestampFormat),
		BatchLabel:   r.BatchLabel,
		Status:       string(r.Status),
		Message:      r.Message,
	}
}

// RecordFromRow rebuilds a record from a report row.
// A missing status reads as pending and a missing timestamp as the current time.
func RecordFromRow(row Row) (Record, error) {
	status, err := ParseStatus(row.Status)
	if err != nil {
		return Record{}, fmt.Errorf("column %s: %w", ColStatus, err)
	}

	created := now().UTC()
	if row.Timestamp != "" {
		created, err = time.ParseInLocation(TimestampFormat, row.Timestamp, time.UTC)
		if err != nil {
			return Record{}, fmt.Errorf("column %s: %w", ColTimestamp, err)
		}
	}

	return Record{
		SnapshotID:   row.SnapshotID,
		ProjectID:    row.ProjectID,
		Created:      created,
		Status:       status,
		GroupLabel:   row.GroupLabel,
		ProjectLabel: row.ProjectLabel,
		BatchLabel:   row.BatchLabel,
		Message:      row.Message,
	}, nil
}
