// Package booking implements the reservation scheduling engine: conflict
// detection for time-bound location bookings and the reservation status
// lifecycle. Every error it returns is typed so the transport layer can map
// failures to accurate responses.
package booking

import (
	"errors"
	"fmt"
	"strings"

	"adsched/internal/models"
)

// ErrNotFound is returned when the requested reservation does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("reservation not found")

// ErrForbidden is returned when the caller attempts an operation on a
// reservation they do not own. Handlers should translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrAlreadyCompleted is returned by Complete when the reservation is
// already in its terminal status. It is deliberately distinct from
// TransitionError so users get a clear message for a common action.
var ErrAlreadyCompleted = errors.New("reservation already completed")

// ValidationError reports malformed input: an inverted interval, an empty
// location name, a bad slot duration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports that a candidate interval overlaps existing
// reservations. It always carries the conflicting set so the caller can
// explain what collided, not just that something did.
type ConflictError struct {
	Location  string
	Candidate models.Interval
	Conflicts []models.Reservation
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Conflicts))
	for i, r := range e.Conflicts {
		ids[i] = fmt.Sprintf("%s %s", r.ID, r.Interval())
	}
	return fmt.Sprintf("location %s: interval %s conflicts with %d reservation(s): %s",
		e.Location, e.Candidate, len(e.Conflicts), strings.Join(ids, "; "))
}

// TransitionError reports an illegal status move.
type TransitionError struct {
	From models.Status
	To   models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
