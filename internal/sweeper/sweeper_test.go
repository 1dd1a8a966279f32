package sweeper

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsched/internal/models"
)

// fakeStore applies the same predicate-guarded updates as the real store,
// over an in-memory set.
type fakeStore struct {
	reservations map[string]*models.Reservation
}

func newFakeStore(rs ...*models.Reservation) *fakeStore {
	f := &fakeStore{reservations: make(map[string]*models.Reservation)}
	for _, r := range rs {
		f.reservations[r.ID] = r
	}
	return f
}

func (f *fakeStore) ActivateDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, r := range f.reservations {
		if r.Status == models.StatusWaiting && !r.StartTime.After(now) {
			r.Status = models.StatusActive
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) (int64, error) {
	var n int64
	for _, r := range f.reservations {
		if r.Status == models.StatusActive && r.EndTime.After(now) && !r.EndTime.After(now.Add(horizon)) {
			r.Status = models.StatusEndingSoon
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func res(id string, status models.Status, start, end time.Time) *models.Reservation {
	return &models.Reservation{
		ID:           id,
		LocationName: "Station A",
		OwnerID:      "owner-1",
		StartTime:    start,
		EndTime:      end,
		Status:       status,
	}
}

func TestRunPromotesByWallClock(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(
		// Started an hour ago, runs for a week: waiting -> active only.
		res("started", models.StatusWaiting, now.Add(-time.Hour), now.Add(7*24*time.Hour)),
		// Starts tomorrow: untouched.
		res("future", models.StatusWaiting, now.Add(24*time.Hour), now.Add(48*time.Hour)),
		// Active, ends in 2 hours: active -> ending_soon.
		res("closing", models.StatusActive, now.Add(-24*time.Hour), now.Add(2*time.Hour)),
		// Active, ends in 3 days: untouched.
		res("running", models.StatusActive, now.Add(-24*time.Hour), now.Add(72*time.Hour)),
		// Ended already: the sweep never completes reservations.
		res("overdue", models.StatusEndingSoon, now.Add(-48*time.Hour), now.Add(-time.Hour)),
	)
	sw := New(store, 0, zerolog.New(io.Discard))

	result, err := sw.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Activated)
	assert.Equal(t, int64(1), result.EndingSoon)

	assert.Equal(t, models.StatusActive, store.reservations["started"].Status)
	assert.Equal(t, models.StatusWaiting, store.reservations["future"].Status)
	assert.Equal(t, models.StatusEndingSoon, store.reservations["closing"].Status)
	assert.Equal(t, models.StatusActive, store.reservations["running"].Status)
	assert.Equal(t, models.StatusEndingSoon, store.reservations["overdue"].Status)
}

func TestRunIsIdempotent(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(
		res("started", models.StatusWaiting, now.Add(-time.Hour), now.Add(7*24*time.Hour)),
		res("closing", models.StatusActive, now.Add(-24*time.Hour), now.Add(2*time.Hour)),
	)
	sw := New(store, 0, zerolog.New(io.Discard))

	first, err := sw.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{Activated: 1, EndingSoon: 1}, first)

	second, err := sw.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second, "second pass with the same now must change nothing")
}

func TestRunAppliesRulesInOrder(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	// Waiting, started in the past, ends within the horizon: rule one
	// activates it, rule two immediately flags it as ending soon.
	store := newFakeStore(
		res("short", models.StatusWaiting, now.Add(-time.Hour), now.Add(3*time.Hour)),
	)
	sw := New(store, 0, zerolog.New(io.Discard))

	result, err := sw.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Result{Activated: 1, EndingSoon: 1}, result)
	assert.Equal(t, models.StatusEndingSoon, store.reservations["short"].Status)
}

func TestRunDefaultsToWallClock(t *testing.T) {
	store := newFakeStore(
		res("old", models.StatusWaiting, time.Now().Add(-time.Hour), time.Now().Add(100*24*time.Hour)),
	)
	sw := New(store, 0, zerolog.New(io.Discard))

	result, err := sw.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Activated)
}
