package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence/memory"
)

var t0 = time.Date(2025, time.April, 7, 9, 0, 0, 0, time.UTC)

func newLifecycle(t *testing.T) (*domain.Lifecycle, *memory.Ledger) {
	t.Helper()
	ledger := memory.NewLedger()
	return domain.NewLifecycle(ledger, catalog.Default()), ledger
}

func start(code string, at time.Time) domain.StartInput {
	return domain.StartInput{
		UserID:       1,
		UserFullName: "Alice Zhang",
		ChatID:       100,
		ChatTitle:    "Floor 3",
		ActivityType: code,
		Now:          at,
	}
}

func TestCompleteOvertime(t *testing.T) {
	ctx := context.Background()
	lc, _ := newLifecycle(t)

	ongoing, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)
	require.NotEmpty(t, ongoing.ID)
	require.Equal(t, t0, ongoing.StartTime)

	record, err := lc.Complete(ctx, 1, 100, t0.Add(400*time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 400, record.DurationSeconds)
	require.EqualValues(t, 40, record.OvertimeSeconds)
	require.Equal(t, domain.StatusOvertime, record.Status)
	require.Equal(t, "Alice Zhang", record.UserFullName)
	require.Equal(t, "Floor 3", record.ChatTitle)
	require.Equal(t, t0.Add(400*time.Second), record.EndTime)
	require.Equal(t, ongoing.ID, record.ID)
}

func TestCompleteWithinBudget(t *testing.T) {
	ctx := context.Background()
	lc, _ := newLifecycle(t)

	_, err := lc.Start(ctx, start("smoking", t0))
	require.NoError(t, err)

	record, err := lc.Complete(ctx, 1, 100, t0.Add(200*time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 200, record.DurationSeconds)
	require.Zero(t, record.OvertimeSeconds)
	require.Equal(t, domain.StatusCompleted, record.Status)
}

func TestCompleteExactlyAtBudgetIsNotOvertime(t *testing.T) {
	ctx := context.Background()
	lc, _ := newLifecycle(t)

	_, err := lc.Start(ctx, start("smoking", t0))
	require.NoError(t, err)
	record, err := lc.Complete(ctx, 1, 100, t0.Add(300*time.Second+999*time.Millisecond))
	require.NoError(t, err)
	require.EqualValues(t, 300, record.DurationSeconds)
	require.Equal(t, domain.StatusCompleted, record.Status)
}

func TestStartTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	first, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)

	_, err = lc.Start(ctx, start("smoking", t0.Add(90*time.Second)))
	require.ErrorIs(t, err, domain.ErrConflict)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "toilet", conflict.Existing.ActivityType)
	require.EqualValues(t, 90, conflict.ElapsedSeconds)

	current, err := ledger.FindOngoing(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, *first, *current)
}

func TestSameUserDifferentChatsAreIndependent(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)
	other := start("toilet", t0)
	other.ChatID = 200
	_, err = lc.Start(ctx, other)
	require.NoError(t, err)
	require.Equal(t, 2, ledger.OngoingCount())
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	_, err := lc.Start(ctx, start("karaoke", t0))
	require.ErrorIs(t, err, domain.ErrValidation)

	in := start("toilet", t0)
	in.UserID = 0
	_, err = lc.Start(ctx, in)
	require.ErrorIs(t, err, domain.ErrValidation)

	in = start("toilet", t0)
	in.ChatID = 0
	_, err = lc.Start(ctx, in)
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Zero(t, ledger.OngoingCount())
}

func TestCompleteWithoutStart(t *testing.T) {
	lc, _ := newLifecycle(t)

	_, err := lc.Complete(context.Background(), 1, 100, t0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.EqualValues(t, 100, nf.ChatID)
}

func TestCompleteRejectsClockSkew(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)

	_, err = lc.Complete(ctx, 1, 100, t0.Add(-time.Second))
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, 1, ledger.OngoingCount())
}

func TestCompleteTwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)
	_, err = lc.Complete(ctx, 1, 100, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = lc.Complete(ctx, 1, 100, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrNotFound)

	records, err := ledger.QueryCompleted(ctx, 100, domain.TimeWindow{Start: t0, End: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestConcurrentStartsAdmitOne(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lc.Start(ctx, start("toilet", t0))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 15, conflicts)
	require.Equal(t, 1, ledger.OngoingCount())
}

func TestConcurrentCompletesCountOnce(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)
	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lc.Complete(ctx, 1, 100, t0.Add(time.Minute))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	require.Equal(t, 1, ok)

	records, err := ledger.QueryCompleted(ctx, 100, domain.TimeWindow{Start: t0, End: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestOngoing(t *testing.T) {
	ctx := context.Background()
	lc, _ := newLifecycle(t)

	_, err := lc.Ongoing(ctx, 1, 100, t0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = lc.Start(ctx, start("phone", t0))
	require.NoError(t, err)

	view, err := lc.Ongoing(ctx, 1, 100, t0.Add(75*time.Second))
	require.NoError(t, err)
	require.Equal(t, "phone", view.Activity.ActivityType)
	require.EqualValues(t, 75, view.ElapsedSeconds)
}

func TestCleanupStale(t *testing.T) {
	ctx := context.Background()
	lc, ledger := newLifecycle(t)

	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)
	fresh := start("toilet", t0.Add(20*time.Hour))
	fresh.UserID = 2
	_, err = lc.Start(ctx, fresh)
	require.NoError(t, err)

	removed, err := lc.CleanupStale(ctx, t0.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Zero(t, removed, "exactly 24h old is not stale")

	removed, err = lc.CleanupStale(ctx, t0.Add(24*time.Hour+time.Second), 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, ledger.OngoingCount())

	_, err = lc.Complete(ctx, 1, 100, t0.Add(25*time.Hour))
	require.ErrorIs(t, err, domain.ErrNotFound)

	records, err := ledger.QueryCompleted(ctx, 100, domain.TimeWindow{Start: t0, End: t0.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Empty(t, records, "abandoned activities are not billable")
}

func TestCleanupDoesNotRemoveRestartedActivity(t *testing.T) {
	ctx := context.Background()
	ledger := &raceLedger{Ledger: memory.NewLedger()}
	lc := domain.NewLifecycle(ledger, catalog.Default())

	_, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)

	// Between listing and removal the user completes and starts again.
	ledger.beforeRemove = func() {
		_, err := lc.Complete(ctx, 1, 100, t0.Add(25*time.Hour))
		require.NoError(t, err)
		_, err = lc.Start(ctx, start("smoking", t0.Add(25*time.Hour)))
		require.NoError(t, err)
	}

	removed, err := lc.CleanupStale(ctx, t0.Add(25*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)

	current, err := ledger.FindOngoing(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, "smoking", current.ActivityType)
}

func TestLedgerFailuresAreInfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	lc := domain.NewLifecycle(failingLedger{err: boom}, catalog.Default())

	_, err := lc.Start(ctx, start("toilet", t0))
	require.ErrorIs(t, err, domain.ErrInfrastructure)
	require.ErrorIs(t, err, boom)

	_, err = lc.Complete(ctx, 1, 100, t0)
	require.ErrorIs(t, err, domain.ErrInfrastructure)

	_, err = lc.CleanupStale(ctx, t0, time.Hour)
	require.ErrorIs(t, err, domain.ErrInfrastructure)

	var infra *domain.InfrastructureError
	require.ErrorAs(t, err, &infra)
	require.Equal(t, "list stale ongoing", infra.Op)
}

func TestOvertimeFormula(t *testing.T) {
	cases := []struct {
		duration, max, overtime int64
		status                  domain.Status
	}{
		{0, 360, 0, domain.StatusCompleted},
		{360, 360, 0, domain.StatusCompleted},
		{361, 360, 1, domain.StatusOvertime},
		{400, 360, 40, domain.StatusOvertime},
	}
	for _, tc := range cases {
		over, status := domain.Overtime(tc.duration, tc.max)
		require.Equal(t, tc.overtime, over)
		require.Equal(t, tc.status, status)
	}
}

func TestStartRetriesWhenRaceWinnerAlreadyFinished(t *testing.T) {
	ctx := context.Background()
	ledger := &contendedLedger{Ledger: memory.NewLedger(), refusals: 1}
	lc := domain.NewLifecycle(ledger, catalog.Default())

	ongoing, err := lc.Start(ctx, start("toilet", t0))
	require.NoError(t, err)
	require.Equal(t, 2, ledger.attempts)

	current, err := ledger.FindOngoing(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, ongoing.ID, current.ID)
}

func TestStartGivesUpWhenSlotStaysContended(t *testing.T) {
	ctx := context.Background()
	ledger := &contendedLedger{Ledger: memory.NewLedger(), refusals: 10}
	lc := domain.NewLifecycle(ledger, catalog.Default())

	_, err := lc.Start(ctx, start("toilet", t0))
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Equal(t, 2, ledger.attempts)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Empty(t, conflict.Existing.ID)
	require.Contains(t, err.Error(), "contended")
	require.NotContains(t, err.Error(), `""`)
	require.Zero(t, ledger.OngoingCount())
}

// contendedLedger refuses the first inserts as if a concurrent start won and
// completed before the loser could read it back.
type contendedLedger struct {
	*memory.Ledger
	refusals int
	attempts int
}

func (l *contendedLedger) InsertOngoingIfAbsent(ctx context.Context, activity domain.OngoingActivity) (bool, error) {
	l.attempts++
	if l.attempts <= l.refusals {
		return false, nil
	}
	return l.Ledger.InsertOngoingIfAbsent(ctx, activity)
}

type raceLedger struct {
	*memory.Ledger
	beforeRemove func()
}

func (l *raceLedger) RemoveOngoingOlderThan(ctx context.Context, userID, chatID int64, cutoff time.Time) (bool, error) {
	if l.beforeRemove != nil {
		fn := l.beforeRemove
		l.beforeRemove = nil
		fn()
	}
	return l.Ledger.RemoveOngoingOlderThan(ctx, userID, chatID, cutoff)
}

type failingLedger struct {
	err error
}

func (f failingLedger) FindOngoing(context.Context, int64, int64) (*domain.OngoingActivity, error) {
	return nil, f.err
}

func (f failingLedger) InsertOngoingIfAbsent(context.Context, domain.OngoingActivity) (bool, error) {
	return false, f.err
}

func (f failingLedger) MoveOngoingToCompleted(context.Context, int64, int64, domain.CompletedActivity) (bool, error) {
	return false, f.err
}

func (f failingLedger) QueryCompleted(context.Context, int64, domain.TimeWindow) ([]domain.CompletedActivity, error) {
	return nil, f.err
}

func (f failingLedger) ListOngoingOlderThan(context.Context, time.Time) ([]domain.OngoingActivity, error) {
	return nil, f.err
}

func (f failingLedger) RemoveOngoingOlderThan(context.Context, int64, int64, time.Time) (bool, error) {
	return false, f.err
}
