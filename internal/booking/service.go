package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"adsched/internal/metrics"
	"adsched/internal/models"
)

// Store is the persistence surface the engine needs. The Locked variants
// re-run the overlap check inside a write-locked transaction, so a conflict
// missed by the application-level pre-check is still rejected at commit time.
type Store interface {
	OverlapSource
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	CreateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error)
	UpdateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	// UpdateReservationStatus is predicate-guarded on the current status;
	// false means a concurrent writer performed a transition first.
	UpdateReservationStatus(ctx context.Context, id string, from, to models.Status, updatedAt time.Time) (bool, error)
	ListByLocation(ctx context.Context, location string) ([]models.Reservation, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error)
}

// Service owns reservation lifecycle: creation, field updates, deletion and
// status transitions. Owner identity arrives already resolved by the caller.
type Service struct {
	store    Store
	detector *ConflictDetector
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a reservation service over the given store.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		detector: NewConflictDetector(store),
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

// Detector exposes the read-only conflict detector built on the same store.
func (s *Service) Detector() *ConflictDetector {
	return s.detector
}

// CreateParams describes a new reservation request.
type CreateParams struct {
	OwnerID      string
	LocationName string
	Start        time.Time
	End          time.Time
	Comment      string
	// InitialStatus is optional; empty means waiting. Operator flows may
	// supply another status, which is validated against the known set.
	InitialStatus string
}

// Create validates the candidate interval, checks for conflicts and persists
// the reservation. The conflict check and the insert commit atomically.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Reservation, error) {
	if p.OwnerID == "" {
		return nil, NewValidationError("owner_id", "must not be empty")
	}
	if p.LocationName == "" {
		return nil, NewValidationError("location_name", "must not be empty")
	}
	interval, err := models.NewInterval(p.Start, p.End)
	if err != nil {
		return nil, NewValidationError("interval", err.Error())
	}

	status := models.StatusWaiting
	if p.InitialStatus != "" {
		status, err = models.ParseStatus(p.InitialStatus)
		if err != nil {
			return nil, NewValidationError("status", err.Error())
		}
	}

	if err := s.detector.ValidateNoConflicts(ctx, p.LocationName, interval, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &models.Reservation{
		ID:           uuid.NewString(),
		LocationName: p.LocationName,
		OwnerID:      p.OwnerID,
		StartTime:    interval.Start,
		EndTime:      interval.End,
		Status:       status,
		Comment:      p.Comment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The store repeats the overlap check under its write lock; a concurrent
	// writer that slipped in after the pre-check surfaces here as a conflict.
	conflicts, err := s.store.CreateReservationLocked(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.IncConflictDetected()
		return nil, &ConflictError{Location: p.LocationName, Candidate: interval, Conflicts: conflicts}
	}

	metrics.IncReservationCreated(string(r.Status))
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("location", r.LocationName).
		Time("start", r.StartTime).
		Time("end", r.EndTime).
		Msg("reservation created")
	return r, nil
}

// UpdateParams carries optional field changes; nil means keep the stored value.
type UpdateParams struct {
	LocationName *string
	Start        *time.Time
	End          *time.Time
	Comment      *string
}

// Update applies field changes to a reservation, re-validating date ordering
// and conflicts with the reservation itself excluded from the check.
func (s *Service) Update(ctx context.Context, id, callerOwnerID string, p UpdateParams) (*models.Reservation, error) {
	r, err := s.getOwned(ctx, id, callerOwnerID)
	if err != nil {
		return nil, err
	}

	if p.LocationName != nil {
		if *p.LocationName == "" {
			return nil, NewValidationError("location_name", "must not be empty")
		}
		r.LocationName = *p.LocationName
	}
	if p.Start != nil {
		r.StartTime = p.Start.UTC()
	}
	if p.End != nil {
		r.EndTime = p.End.UTC()
	}
	if p.Comment != nil {
		r.Comment = *p.Comment
	}

	interval, err := models.NewInterval(r.StartTime, r.EndTime)
	if err != nil {
		return nil, NewValidationError("interval", err.Error())
	}

	if err := s.detector.ValidateNoConflicts(ctx, r.LocationName, interval, r.ID); err != nil {
		return nil, err
	}

	r.UpdatedAt = s.now().UTC()
	conflicts, err := s.store.UpdateReservationLocked(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.IncConflictDetected()
		return nil, &ConflictError{Location: r.LocationName, Candidate: interval, Conflicts: conflicts}
	}

	s.logger.Info().Str("reservation_id", r.ID).Msg("reservation updated")
	return r, nil
}

// Get returns a reservation by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListByLocation returns all reservations at a location.
func (s *Service) ListByLocation(ctx context.Context, location string) ([]models.Reservation, error) {
	if location == "" {
		return nil, NewValidationError("location_name", "must not be empty")
	}
	return s.store.ListByLocation(ctx, location)
}

// ListByOwner returns all reservations created by an owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	if ownerID == "" {
		return nil, NewValidationError("owner_id", "must not be empty")
	}
	return s.store.ListByOwner(ctx, ownerID)
}

// Delete removes a reservation once ownership is confirmed. Deletion is
// unconditional regardless of status; the removed snapshot is returned so
// the caller can show what was dropped.
func (s *Service) Delete(ctx context.Context, id, callerOwnerID string) (*models.Reservation, error) {
	r, err := s.getOwned(ctx, id, callerOwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info().Str("reservation_id", id).Str("status", string(r.Status)).Msg("reservation deleted")
	return r, nil
}

// TransitionResult reports a performed status move.
type TransitionResult struct {
	ReservationID string        `json:"reservation_id"`
	Old           models.Status `json:"old"`
	New           models.Status `json:"new"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Transition moves one reservation to the target status. An empty
// callerOwnerID skips the ownership check for operator-driven moves.
func (s *Service) Transition(ctx context.Context, id string, target models.Status, callerOwnerID string) (*TransitionResult, error) {
	if _, err := models.ParseStatus(string(target)); err != nil {
		return nil, NewValidationError("status", err.Error())
	}

	r, err := s.getOwned(ctx, id, callerOwnerID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(r.Status, target) {
		return nil, &TransitionError{From: r.Status, To: target}
	}

	ts := s.now().UTC()
	moved, err := s.store.UpdateReservationStatus(ctx, id, r.Status, target, ts)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost a race against another transition; report against the
		// status the reservation actually has now.
		current, err := s.store.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrNotFound
		}
		return nil, &TransitionError{From: current.Status, To: target}
	}

	metrics.IncTransition(string(r.Status), string(target))
	s.logger.Info().
		Str("reservation_id", id).
		Str("from", string(r.Status)).
		Str("to", string(target)).
		Msg("status transition")
	return &TransitionResult{ReservationID: id, Old: r.Status, New: target, Timestamp: ts}, nil
}

// Complete moves a reservation to its terminal status. Completing an already
// completed reservation fails with ErrAlreadyCompleted rather than a generic
// transition error.
func (s *Service) Complete(ctx context.Context, id, callerOwnerID string) (*TransitionResult, error) {
	r, err := s.getOwned(ctx, id, callerOwnerID)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	return s.Transition(ctx, id, models.StatusCompleted, callerOwnerID)
}

func (s *Service) getOwned(ctx context.Context, id, callerOwnerID string) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	if callerOwnerID != "" && !r.IsOwnedBy(callerOwnerID) {
		return nil, ErrForbidden
	}
	return r, nil
}
