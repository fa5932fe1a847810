package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/store/memory"
)

func newTrail(t *testing.T) (*audit.Trail, *memory.Store) {
	t.Helper()
	st := memory.New()
	trail, err := audit.NewTrail(st.Audit)
	require.NoError(t, err)
	return trail, st
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	trail, _ := newTrail(t)

	e, err := trail.Record(context.Background(), audit.Event{
		ActorID:      "acct-1",
		Action:       "login",
		ResourceType: "auth",
		NewValues:    map[string]any{"ip": "10.0.0.1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	require.False(t, e.CreatedAt.IsZero())
	require.Equal(t, time.UTC, e.CreatedAt.Location())
}

func TestRecordRequiresAction(t *testing.T) {
	trail, _ := newTrail(t)
	_, err := trail.Record(context.Background(), audit.Event{ResourceType: "auth"})
	require.Error(t, err)
}

func TestQueriesReturnNewestFirst(t *testing.T) {
	trail, _ := newTrail(t)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 3; i++ {
		e, err := trail.Record(ctx, audit.Event{
			ActorID:      "acct-1",
			Action:       "login",
			ResourceType: "auth",
			ResourceID:   "acct-1",
		})
		require.NoError(t, err)
		lastID = e.ID
	}
	_, err := trail.Record(ctx, audit.Event{ActorID: "acct-2", Action: "logout", ResourceType: "auth"})
	require.NoError(t, err)

	byActor, err := trail.ByActor(ctx, "acct-1", audit.Page{})
	require.NoError(t, err)
	require.Len(t, byActor, 3)
	require.Equal(t, lastID, byActor[0].ID)

	byAction, err := trail.ByAction(ctx, "login", audit.Page{})
	require.NoError(t, err)
	require.Len(t, byAction, 3)

	byResource, err := trail.ByResource(ctx, "auth", "acct-1", audit.Page{})
	require.NoError(t, err)
	require.Len(t, byResource, 3)
}

func TestPagination(t *testing.T) {
	trail, _ := newTrail(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := trail.Record(ctx, audit.Event{ActorID: "acct-1", Action: "login", ResourceType: "auth"})
		require.NoError(t, err)
	}

	page1, err := trail.ByActor(ctx, "acct-1", audit.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := trail.ByActor(ctx, "acct-1", audit.Page{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEqual(t, page1[0].ID, page2[0].ID)

	tail, err := trail.ByActor(ctx, "acct-1", audit.Page{Offset: 4, Limit: 2})
	require.NoError(t, err)
	require.Len(t, tail, 1)

	empty, err := trail.ByActor(ctx, "acct-1", audit.Page{Offset: 50, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestByTimeRange(t *testing.T) {
	trail, _ := newTrail(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Minute)
	_, err := trail.Record(ctx, audit.Event{Action: "login", ResourceType: "auth"})
	require.NoError(t, err)
	after := time.Now().UTC().Add(time.Minute)

	in, err := trail.ByTimeRange(ctx, before, after, audit.Page{})
	require.NoError(t, err)
	require.Len(t, in, 1)

	out, err := trail.ByTimeRange(ctx, after, after.Add(time.Hour), audit.Page{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRequestIDContext(t *testing.T) {
	ctx := audit.WithRequestID(context.Background(), "req-1")
	require.Equal(t, "req-1", audit.RequestIDFromContext(ctx))
	require.Empty(t, audit.RequestIDFromContext(context.Background()))
	// blank ids are not attached
	require.Empty(t, audit.RequestIDFromContext(audit.WithRequestID(context.Background(), "  ")))
}
