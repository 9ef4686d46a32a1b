package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowRoundTrip(t *testing.T) {
	rec := Record{
		SnapshotID:   "64f0c0ffee64f0c0ffee0001",
		ProjectID:    "123456789abc123456789abc",
		Created:      time.Date(2024, 3, 5, 14, 7, 31, 500, time.UTC),
		Status:       StatusComplete,
		GroupLabel:   "neuro",
		ProjectLabel: "study-a",
		BatchLabel:   "batch1",
	}

	row := NewRow(rec)
	assert.Equal(t, "2024-03-05 14:07", row.Timestamp)
	assert.Equal(t, "complete", row.Status)

	got, err := RecordFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, "batch1", got.BatchLabel)
	assert.Equal(t, rec.ProjectID, got.ProjectID)
	assert.Equal(t, rec.SnapshotID, got.SnapshotID)
	assert.Equal(t, rec.GroupLabel, got.GroupLabel)
	assert.Equal(t, rec.ProjectLabel, got.ProjectLabel)
	assert.True(t, rec.Created.Truncate(time.Minute).Equal(got.Created),
		"timestamps compare at minute granularity")
}

func TestRecordFromRowDefaults(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	got, err := RecordFromRow(Row{})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, fixed, got.Created)
	assert.Equal(t, "", got.ProjectID)
	assert.Equal(t, "", got.SnapshotID)
}

func TestRecordFromRowErrors(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		col  string
	}{
		{"bad status", Row{Status: "SUCCESS"}, ColStatus},
		{"bad timestamp", Row{Timestamp: "05/03/2024"}, ColTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecordFromRow(tt.row)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.col)
		})
	}
}

func TestFailedRowKeepsMessage(t *testing.T) {
	row := NewRow(Record{ProjectID: "123456789abc123456789abc", Status: StatusFailed, Message: "boom"})
	assert.Equal(t, "", row.SnapshotID)
	assert.Equal(t, "boom", row.Message)

	rec, err := RecordFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, "boom", rec.Message)
	assert.True(t, rec.IsFinal())
}
