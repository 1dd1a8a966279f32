package models

import "fmt"

// Status represents the lifecycle state of a reservation.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusActive     Status = "active"
	StatusEndingSoon Status = "ending_soon"
	StatusCompleted  Status = "completed"
)

// statusTransitions is the full transition graph. A status only ever moves
// forward; completed is terminal.
var statusTransitions = map[Status][]Status{
	StatusWaiting:    {StatusActive, StatusCompleted},
	StatusActive:     {StatusEndingSoon, StatusCompleted},
	StatusEndingSoon: {StatusCompleted},
	StatusCompleted:  {},
}

// AllStatuses lists every known status.
var AllStatuses = []Status{StatusWaiting, StatusActive, StatusEndingSoon, StatusCompleted}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	for _, known := range AllStatuses {
		if Status(s) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition checks if the move from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidNextStates returns the statuses reachable from s in one step.
func ValidNextStates(s Status) []Status {
	next := statusTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether no further transitions exist from s.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// IsBlocking reports whether a reservation in this status occupies its slot.
// This is the single definition of the conflict-relevant status set; conflict
// checks, slot search and occupancy reports all go through it.
func (s Status) IsBlocking() bool {
	return s == StatusWaiting || s == StatusActive || s == StatusEndingSoon
}

// BlockingStatuses returns every status that participates in conflict checks.
func BlockingStatuses() []Status {
	var out []Status
	for _, s := range AllStatuses {
		if s.IsBlocking() {
			out = append(out, s)
		}
	}
	return out
}
