package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
)

// NewTestDB opens a migrated in-memory database.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.Migrate(context.Background()), "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

var t0 = time.Date(2025, time.April, 7, 9, 0, 0, 123000, time.UTC)

func TestMigrateIsRepeatable(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('ongoing_activities', 'completed_activities')`,
	).Scan(&count))
	require.Equal(t, 2, count)
}

func TestLedgerOngoingRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewTestDB(t))

	missing, err := ledger.FindOngoing(ctx, 1, 2)
	require.NoError(t, err)
	require.Nil(t, missing)

	activity := domain.OngoingActivity{
		ID: "o-1", UserID: 1, ChatID: -1002, UserFullName: "Alice", ChatTitle: "Ops",
		ActivityType: "toilet", StartTime: t0,
	}
	ok, err := ledger.InsertOngoingIfAbsent(ctx, activity)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.InsertOngoingIfAbsent(ctx, domain.OngoingActivity{ID: "o-2", UserID: 1, ChatID: -1002, ActivityType: "smoking", StartTime: t0})
	require.NoError(t, err)
	require.False(t, ok)

	found, err := ledger.FindOngoing(ctx, 1, -1002)
	require.NoError(t, err)
	require.Equal(t, activity, *found)
}

func TestLedgerWithLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewTestDB(t))
	lc := domain.NewLifecycle(ledger, catalog.Default())

	_, err := lc.Start(ctx, domain.StartInput{UserID: 7, UserFullName: "Bo", ChatID: 3, ActivityType: "toilet", Now: t0})
	require.NoError(t, err)

	_, err = lc.Start(ctx, domain.StartInput{UserID: 7, ChatID: 3, ActivityType: "phone", Now: t0})
	require.ErrorIs(t, err, domain.ErrConflict)

	rec, err := lc.Complete(ctx, 7, 3, t0.Add(400*time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 40, rec.OvertimeSeconds)

	_, err = lc.Complete(ctx, 7, 3, t0.Add(500*time.Second))
	require.ErrorIs(t, err, domain.ErrNotFound)

	records, err := ledger.QueryCompleted(ctx, 3, domain.TimeWindow{Start: t0, End: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, *rec, records[0])
}

func TestMoveRequiresMatchingStart(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewTestDB(t))

	_, err := ledger.InsertOngoingIfAbsent(ctx, domain.OngoingActivity{ID: "o", UserID: 1, ChatID: 1, ActivityType: "toilet", StartTime: t0})
	require.NoError(t, err)

	moved, err := ledger.MoveOngoingToCompleted(ctx, 1, 1, domain.CompletedActivity{
		ID: "c", UserID: 1, ChatID: 1, ActivityType: "toilet", StartTime: t0.Add(time.Microsecond),
		EndTime: t0.Add(time.Minute), DurationSeconds: 60, Status: domain.StatusCompleted,
	})
	require.NoError(t, err)
	require.False(t, moved)

	found, err := ledger.FindOngoing(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, found, "failed move must leave the ongoing row in place")
}

func TestQueryCompletedWindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewTestDB(t))
	window := domain.TimeWindow{Start: t0, End: t0.Add(time.Hour)}

	for i, offset := range []time.Duration{-time.Second, 0, 30 * time.Minute, time.Hour} {
		start := t0.Add(offset)
		id := string(rune('a' + i))
		_, err := ledger.InsertOngoingIfAbsent(ctx, domain.OngoingActivity{ID: id, UserID: int64(i + 1), ChatID: 9, ActivityType: "toilet", StartTime: start})
		require.NoError(t, err)
		moved, err := ledger.MoveOngoingToCompleted(ctx, int64(i+1), 9, domain.CompletedActivity{
			ID: id, UserID: int64(i + 1), ChatID: 9, ActivityType: "toilet",
			StartTime: start, EndTime: start.Add(time.Minute), DurationSeconds: 60, Status: domain.StatusCompleted,
		})
		require.NoError(t, err)
		require.True(t, moved)
	}

	records, err := ledger.QueryCompleted(ctx, 9, window)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "b", records[0].ID)
	require.Equal(t, "c", records[1].ID)

	other, err := ledger.QueryCompleted(ctx, 10, window)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestCleanupStaleOnSQLite(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewTestDB(t))
	lc := domain.NewLifecycle(ledger, catalog.Default())

	_, err := lc.Start(ctx, domain.StartInput{UserID: 1, ChatID: 1, ActivityType: "rest", Now: t0})
	require.NoError(t, err)
	_, err = lc.Start(ctx, domain.StartInput{UserID: 2, ChatID: 1, ActivityType: "rest", Now: t0.Add(23 * time.Hour)})
	require.NoError(t, err)

	removed, err := lc.CleanupStale(ctx, t0.Add(25*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stale, err := ledger.ListOngoingOlderThan(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.EqualValues(t, 2, stale[0].UserID)
}
