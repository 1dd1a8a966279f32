package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adsched/internal/models"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FindOverlapping(ctx context.Context, location string, start, end time.Time, statuses []models.Status, excludeID string) ([]models.Reservation, error) {
	args := m.Called(ctx, location, start, end, statuses, excludeID)
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func TestFindConflictsQueriesBlockingStatusesOnly(t *testing.T) {
	source := &mockSource{}
	detector := NewConflictDetector(source)

	source.On("FindOverlapping", mock.Anything, "Station A", ts(1, 8), ts(1, 12),
		models.BlockingStatuses(), "").Return([]models.Reservation{}, nil)

	conflicts, err := detector.FindConflicts(context.Background(), "Station A",
		models.Interval{Start: ts(1, 8), End: ts(1, 12)}, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	source.AssertExpectations(t)
}

func TestFindConflictsPassesExcludeID(t *testing.T) {
	source := &mockSource{}
	detector := NewConflictDetector(source)

	source.On("FindOverlapping", mock.Anything, "Station A", ts(1, 8), ts(1, 12),
		models.BlockingStatuses(), "res-42").Return([]models.Reservation{}, nil)

	free, err := detector.IsAvailable(context.Background(), "Station A",
		models.Interval{Start: ts(1, 8), End: ts(1, 12)}, "res-42")
	require.NoError(t, err)
	assert.True(t, free)
	source.AssertExpectations(t)
}

func TestFindConflictsValidatesInput(t *testing.T) {
	detector := NewConflictDetector(&mockSource{})

	_, err := detector.FindConflicts(context.Background(), "",
		models.Interval{Start: ts(1, 8), End: ts(1, 12)}, "")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = detector.FindConflicts(context.Background(), "Station A",
		models.Interval{Start: ts(1, 12), End: ts(1, 8)}, "")
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateNoConflictsWrapsConflictSet(t *testing.T) {
	source := &mockSource{}
	detector := NewConflictDetector(source)

	existing := models.Reservation{
		ID:           "res-1",
		LocationName: "Station A",
		StartTime:    ts(1, 8),
		EndTime:      ts(1, 12),
		Status:       models.StatusActive,
	}
	source.On("FindOverlapping", mock.Anything, "Station A", ts(1, 10), ts(1, 14),
		models.BlockingStatuses(), "").Return([]models.Reservation{existing}, nil)

	err := detector.ValidateNoConflicts(context.Background(), "Station A",
		models.Interval{Start: ts(1, 10), End: ts(1, 14)}, "")

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "res-1", conflictErr.Conflicts[0].ID)
	assert.Contains(t, conflictErr.Error(), "res-1")
}
