package models

import "time"

// Reservation represents a time-bound booking of an advertising location.
type Reservation struct {
	ID           string    `json:"id"`
	LocationName string    `json:"location_name"`
	OwnerID      string    `json:"owner_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Interval returns the reservation's booked range.
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// OverlapsWith checks if this reservation overlaps another in time.
// Uses half-open interval [start, end) semantics, so back-to-back
// reservations at the same location are fine.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	return r.Interval().Overlaps(other.Interval())
}

// IsOwnedBy reports whether ownerID created this reservation.
func (r *Reservation) IsOwnedBy(ownerID string) bool {
	return r.OwnerID == ownerID
}

// Location is the physical advertising resource reservations are keyed by.
// The engine compares locations by name only.
type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
