package booking

import (
	"context"
	"time"

	"adsched/internal/models"
)

// OverlapSource queries stored reservations overlapping a window.
type OverlapSource interface {
	FindOverlapping(ctx context.Context, location string, start, end time.Time, statuses []models.Status, excludeID string) ([]models.Reservation, error)
}

// ConflictDetector finds stored reservations that collide with a candidate
// interval. Completed reservations never count; a finished campaign does not
// block reuse of its slot.
type ConflictDetector struct {
	source OverlapSource
}

// NewConflictDetector creates a detector over the given source.
func NewConflictDetector(source OverlapSource) *ConflictDetector {
	return &ConflictDetector{source: source}
}

// FindConflicts returns every blocking reservation at location whose interval
// overlaps the candidate. excludeID, when non-empty, skips that reservation so
// updates do not conflict with their own stored version. An empty result means
// the slot is free.
func (d *ConflictDetector) FindConflicts(ctx context.Context, location string, candidate models.Interval, excludeID string) ([]models.Reservation, error) {
	if location == "" {
		return nil, NewValidationError("location", "must not be empty")
	}
	if err := candidate.Validate(); err != nil {
		return nil, NewValidationError("interval", err.Error())
	}
	return d.source.FindOverlapping(ctx, location, candidate.Start, candidate.End,
		models.BlockingStatuses(), excludeID)
}

// ValidateNoConflicts fails with a ConflictError carrying the colliding
// reservations when the candidate interval is not free.
func (d *ConflictDetector) ValidateNoConflicts(ctx context.Context, location string, candidate models.Interval, excludeID string) error {
	conflicts, err := d.FindConflicts(ctx, location, candidate, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Location: location, Candidate: candidate, Conflicts: conflicts}
	}
	return nil
}

// IsAvailable reports whether the candidate interval is free at location.
func (d *ConflictDetector) IsAvailable(ctx context.Context, location string, candidate models.Interval, excludeID string) (bool, error) {
	conflicts, err := d.FindConflicts(ctx, location, candidate, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}
