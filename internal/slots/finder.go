// Package slots computes free fixed-size booking windows for a location on a
// given calendar day.
package slots

import (
	"context"
	"time"

	"adsched/internal/booking"
	"adsched/internal/models"
)

// Finder partitions a day into fixed-length slots and reports which are free.
type Finder struct {
	source booking.OverlapSource
}

// NewFinder creates a slot finder over the given reservation source.
func NewFinder(source booking.OverlapSource) *Finder {
	return &Finder{source: source}
}

// AvailableSlots returns the free slots of slotMinutes length at a location on
// the calendar day containing day. Days are interpreted in UTC. Only whole
// slots that fit entirely between reservations are returned; a slot may end
// exactly where a reservation starts and start exactly where one ends, per
// half-open interval semantics.
func (f *Finder) AvailableSlots(ctx context.Context, location string, day time.Time, slotMinutes int) ([]models.Interval, error) {
	if location == "" {
		return nil, booking.NewValidationError("location", "must not be empty")
	}
	if slotMinutes <= 0 {
		return nil, booking.NewValidationError("slot_minutes", "must be positive")
	}

	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	reserved, err := f.source.FindOverlapping(ctx, location, dayStart, dayEnd,
		models.BlockingStatuses(), "")
	if err != nil {
		return nil, err
	}

	slotDuration := time.Duration(slotMinutes) * time.Minute
	var free []models.Interval

	// Walk the day left to right, emitting slots into each gap before the
	// next reservation. reserved is sorted ascending by start time.
	cursor := dayStart
	for _, r := range reserved {
		start := r.StartTime
		if start.After(cursor) {
			free = append(free, carve(cursor, start, slotDuration)...)
		}
		if r.EndTime.After(cursor) {
			cursor = r.EndTime
		}
	}
	if cursor.Before(dayEnd) {
		free = append(free, carve(cursor, dayEnd, slotDuration)...)
	}

	return free, nil
}

// carve emits consecutive fixed-length slots that fit entirely in [from, to).
// A partial trailing slot is never emitted.
func carve(from, to time.Time, d time.Duration) []models.Interval {
	var out []models.Interval
	for cursor := from; !cursor.Add(d).After(to); cursor = cursor.Add(d) {
		out = append(out, models.Interval{Start: cursor, End: cursor.Add(d)})
	}
	return out
}
