package snapshot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/sitesnap/internal/client"
	"github.com/raphaelgruber/sitesnap/internal/models"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
	"github.com/raphaelgruber/sitesnap/internal/snapshot/snapshottest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	projA = models.Project{ID: "aaaaaaaaaaaaaaaaaaaaaaa1", Label: "study-a", Group: "neuro"}
	projB = models.Project{ID: "aaaaaaaaaaaaaaaaaaaaaaa2", Label: "study-b", Group: "neuro"}
	projC = models.Project{ID: "aaaaaaaaaaaaaaaaaaaaaaa3", Label: "study-c", Group: "cardio"}
)

func TestAPIImplementations(t *testing.T) {
	var _ snapshot.API = (*client.Client)(nil)
	var _ snapshot.API = (*snapshottest.API)(nil)
}

func TestTriggerOnFilterAll(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB, projC)
	s := snapshot.New(api, snapshot.Options{BatchLabel: "batch1"})
	ctx := context.Background()

	require.NoError(t, s.TriggerOnFilter(ctx, snapshot.MatchAll))
	assert.Equal(t, []string{""}, api.Filters, "ALL is sent as an empty filter")

	records := s.Records()
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, models.StatusPending, rec.Status)
		assert.Equal(t, "batch1", rec.BatchLabel)
		assert.NotEmpty(t, rec.SnapshotID)
	}
	assert.Equal(t, "study-a", records[0].ProjectLabel)
	assert.Equal(t, "neuro", records[0].GroupLabel)
	assert.Equal(t, "cardio", records[2].GroupLabel)
	assert.False(t, s.AllFinal())

	api.SetAll(models.StatusComplete)
	require.NoError(t, s.Refresh(ctx))

	assert.True(t, s.AllFinal())
	rows := s.Report()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "complete", row.Status)
	}
}

func TestTriggerOnFilterPassesFilterThrough(t *testing.T) {
	api := snapshottest.NewAPI(projA)
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnFilter(context.Background(), "group=neuro"))
	assert.Equal(t, []string{"group=neuro"}, api.Filters)
	assert.Zero(t, api.Calls[snapshottest.CallLookup], "filter results resolve without lookups")
}

func TestTriggerOnFilterContinuesAfterFailure(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB, projC)
	api.CreateErr[projB.ID] = errors.New("boom")
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnFilter(context.Background(), snapshot.MatchAll))

	records := s.Records()
	require.Len(t, records, 3)
	assert.Equal(t, models.StatusPending, records[0].Status)
	assert.Equal(t, models.StatusFailed, records[1].Status)
	assert.Equal(t, "", records[1].SnapshotID)
	assert.Equal(t, projB.ID, records[1].ProjectID)
	assert.Equal(t, "study-b", records[1].ProjectLabel)
	assert.Contains(t, records[1].Message, "boom")
	assert.Equal(t, models.StatusPending, records[2].Status)
}

func TestTriggerOnFilterListError(t *testing.T) {
	api := snapshottest.NewAPI(projA)
	api.ListErr = &client.APIError{StatusCode: 401}
	s := snapshot.New(api, snapshot.Options{})

	err := s.TriggerOnFilter(context.Background(), snapshot.MatchAll)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Zero(t, s.Len())
}

func TestTriggerOnIDsCreateFails(t *testing.T) {
	id := "123456789abc123456789abc"
	api := snapshottest.NewAPI(models.Project{ID: id, Label: "p", Group: "g"})
	api.CreateErr[id] = errors.New("boom")
	s := snapshot.New(api, snapshot.Options{BatchLabel: "retry"})

	require.NoError(t, s.TriggerOnIDs(context.Background(), []string{id}))

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0].SnapshotID)
	assert.Equal(t, models.StatusFailed, records[0].Status)
	assert.NotEmpty(t, records[0].Message)
	assert.Equal(t, id, records[0].ProjectID)
	assert.Equal(t, "retry", records[0].BatchLabel)
	assert.True(t, s.AllFinal())
}

func TestTriggerOnIDsMissingProject(t *testing.T) {
	api := snapshottest.NewAPI()
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnIDs(context.Background(), []string{"123456789abc123456789abc", "", "nobody/nothing"}))

	records := s.Records()
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, models.StatusFailed, rec.Status)
		assert.Contains(t, rec.Message, snapshot.ErrMissingProjectID.Error())
	}
	assert.Equal(t, "nobody/nothing", records[2].ProjectLabel)
	assert.Equal(t, "nobody/nothing", records[2].ProjectID, "unresolved paths stay resubmittable")
	assert.Zero(t, api.Calls[snapshottest.CallCreate], "no snapshot is created for an unresolved project")
}

func TestTriggerDuplicatesAreKept(t *testing.T) {
	api := snapshottest.NewAPI(projA)
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnIDs(context.Background(), []string{projA.ID, projA.ID}))

	records := s.Records()
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].SnapshotID, records[1].SnapshotID)
	assert.Equal(t, 2, api.Calls[snapshottest.CallCreate])
}

func TestTriggerStopsWhenCancelled(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB)
	s := snapshot.New(api, snapshot.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.TriggerOnIDs(ctx, []string{projA.ID, projB.ID})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Len())

	err = s.TriggerOnFilter(ctx, snapshot.MatchAll)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Len())
	assert.Zero(t, api.Calls[snapshottest.CallCreate])
}

func TestTriggerStopsOnRejectedCredential(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", 401},
		{"forbidden", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := snapshottest.NewAPI(projA, projB, projC)
			for _, p := range []models.Project{projA, projB, projC} {
				api.ProjectErr[p.ID] = &client.APIError{StatusCode: tt.status, Method: "GET", Path: "/api/projects/" + p.ID}
			}
			s := snapshot.New(api, snapshot.Options{})

			err := s.TriggerOnIDs(context.Background(), []string{projA.ID, projB.ID, projC.ID})
			require.ErrorIs(t, err, client.ErrUnauthorized)

			records := s.Records()
			require.Len(t, records, 1, "the loop stops at the first rejection")
			assert.Equal(t, models.StatusFailed, records[0].Status)
			assert.Equal(t, projA.ID, records[0].ProjectID)
			assert.Equal(t, 1, api.Calls[snapshottest.CallGetProject])
			assert.Zero(t, api.Calls[snapshottest.CallCreate])
		})
	}
}

func TestTriggerOnFilterStopsOnRejectedCredential(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB)
	api.CreateErr[projA.ID] = &client.APIError{StatusCode: 403, Method: "POST", Path: "/snapshot/projects/" + projA.ID}
	s := snapshot.New(api, snapshot.Options{})

	err := s.TriggerOnFilter(context.Background(), snapshot.MatchAll)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, api.Calls[snapshottest.CallCreate])
}

func TestTriggerKeepsGoingOnOtherErrors(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB)
	api.ProjectErr[projA.ID] = &client.APIError{StatusCode: 500, Method: "GET", Path: "/api/projects/" + projA.ID}
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnIDs(context.Background(), []string{projA.ID, projB.ID}))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, models.StatusFailed, records[0].Status)
	assert.Equal(t, models.StatusPending, records[1].Status)
}

func TestTriggerOnRefsByPath(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB)
	s := snapshot.New(api, snapshot.Options{})

	require.NoError(t, s.TriggerOnRefs(context.Background(), []snapshot.ProjectRef{
		snapshot.PathRef("neuro/study-b"),
		snapshot.ResolvedRef(projA),
	}))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, projB.ID, records[0].ProjectID)
	assert.Equal(t, projA.ID, records[1].ProjectID)
	assert.Equal(t, 1, api.Calls[snapshottest.CallLookup])
}

func TestRefreshIsIdempotent(t *testing.T) {
	api := snapshottest.NewAPI(projA, projB)
	s := snapshot.New(api, snapshot.Options{})
	ctx := context.Background()

	require.NoError(t, s.TriggerOnIDs(ctx, []string{projA.ID, projB.ID}))
	api.SetAll(models.StatusComplete)

	require.NoError(t, s.Refresh(ctx))
	first := s.Records()
	detailCalls := api.Calls[snapshottest.CallDetail]
	assert.Equal(t, 2, detailCalls)

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, first, s.Records())
	assert.Equal(t, detailCalls, api.Calls[snapshottest.CallDetail], "final records are not re-fetched")
}

func TestRefreshSkipsFinalRecords(t *testing.T) {
	api := snapshottest.NewAPI(projA)
	s := snapshot.New(api, snapshot.Options{})
	s.Adopt(
		models.Record{SnapshotID: "done", ProjectID: projA.ID, Status: models.StatusComplete},
		models.Record{SnapshotID: "", ProjectID: projA.ID, Status: models.StatusFailed},
	)

	require.NoError(t, s.Refresh(context.Background()))
	assert.Zero(t, api.Calls[snapshottest.CallDetail])
	assert.True(t, s.AllFinal())
}

func TestRefreshNotFoundPolicy(t *testing.T) {
	tests := []struct {
		policy snapshot.NotFoundPolicy
		want   models.Status
	}{
		{snapshot.NotFoundRetain, models.StatusInProgress},
		{snapshot.NotFoundFail, models.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			api := snapshottest.NewAPI(projA)
			s := snapshot.New(api, snapshot.Options{NotFound: tt.policy})
			s.Adopt(models.Record{SnapshotID: "gone", ProjectID: projA.ID, Status: models.StatusInProgress})

			require.NoError(t, s.Refresh(context.Background()))

			records := s.Records()
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].Status)
			assert.Equal(t, 1, api.Calls[snapshottest.CallDetail])
		})
	}
}

func TestRefreshIgnoresUnrecognizedStatus(t *testing.T) {
	tests := []struct {
		name   string
		remote models.Status
	}{
		{"missing", ""},
		{"unknown", "archiving"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := snapshottest.NewAPI(projA)
			api.AddSnapshot(projA.ID, "odd", tt.remote)
			s := snapshot.New(api, snapshot.Options{})
			s.Adopt(models.Record{SnapshotID: "odd", ProjectID: projA.ID, Status: models.StatusInProgress})

			require.NoError(t, s.Refresh(context.Background()))

			assert.Equal(t, models.StatusInProgress, s.Records()[0].Status)
			assert.Equal(t, 1, api.Calls[snapshottest.CallDetail])
		})
	}
}

func TestRefreshStopsOnRejectedCredential(t *testing.T) {
	api := snapshottest.NewAPI(projA)
	api.DetailErr = &client.APIError{StatusCode: 401, Method: "GET", Path: "/snapshot/projects/" + projA.ID}
	s := snapshot.New(api, snapshot.Options{NotFound: snapshot.NotFoundFail})
	s.Adopt(
		models.Record{SnapshotID: "s1", ProjectID: projA.ID, Status: models.StatusPending},
		models.Record{SnapshotID: "s2", ProjectID: projA.ID, Status: models.StatusPending},
	)

	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, 1, api.Calls[snapshottest.CallDetail])
	for _, rec := range s.Records() {
		assert.Equal(t, models.StatusPending, rec.Status)
	}
}

func TestAllFinalEmpty(t *testing.T) {
	s := snapshot.New(snapshottest.NewAPI(), snapshot.Options{})
	assert.True(t, s.AllFinal())
	assert.Empty(t, s.Report())
}

func TestCounts(t *testing.T) {
	s := snapshot.New(snapshottest.NewAPI(), snapshot.Options{})
	s.Adopt(
		models.Record{Status: models.StatusComplete},
		models.Record{Status: models.StatusComplete},
		models.Record{Status: models.StatusFailed},
		models.Record{Status: models.StatusPending},
	)

	counts := s.Counts()
	assert.Equal(t, 2, counts[models.StatusComplete])
	assert.Equal(t, 1, counts[models.StatusFailed])
	assert.Equal(t, 1, counts[models.StatusPending])
	assert.Equal(t, 0, counts[models.StatusInProgress])
}

func TestParseNotFoundPolicy(t *testing.T) {
	p, err := snapshot.ParseNotFoundPolicy("")
	require.NoError(t, err)
	assert.Equal(t, snapshot.NotFoundRetain, p)

	p, err = snapshot.ParseNotFoundPolicy(" FAIL ")
	require.NoError(t, err)
	assert.Equal(t, snapshot.NotFoundFail, p)

	_, err = snapshot.ParseNotFoundPolicy("ignore")
	assert.Error(t, err)
}
