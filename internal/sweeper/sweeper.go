// Package sweeper promotes reservations whose wall-clock conditions are met:
// waiting reservations whose start has passed become active, active
// reservations ending within the horizon become ending_soon. The final move
// to completed is never automatic and requires explicit completion.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"adsched/internal/metrics"
)

// DefaultEndingSoonHorizon is how far ahead of a reservation's end the sweep
// flags it as ending soon.
const DefaultEndingSoonHorizon = 24 * time.Hour

// Store is the bulk-update surface the sweep needs. Both updates are
// predicate-guarded (update where status = X), so re-running with the same
// now changes nothing and concurrent single-record transitions stay safe.
type Store interface {
	ActivateDue(ctx context.Context, now time.Time) (int64, error)
	MarkEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) (int64, error)
}

// Result reports how many reservations each rule promoted.
type Result struct {
	Activated  int64 `json:"activated"`
	EndingSoon int64 `json:"ending_soon"`
}

// Sweeper runs the time-driven bulk promotions.
type Sweeper struct {
	store   Store
	horizon time.Duration
	logger  zerolog.Logger
}

// New creates a sweeper with the given horizon; zero means the default.
func New(store Store, horizon time.Duration, logger zerolog.Logger) *Sweeper {
	if horizon <= 0 {
		horizon = DefaultEndingSoonHorizon
	}
	return &Sweeper{
		store:   store,
		horizon: horizon,
		logger:  logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run performs both promotions in order and returns the changed counts.
// A zero now defaults to the wall clock. Safe to invoke on any schedule.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (Result, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	activated, err := s.store.ActivateDue(ctx, now)
	if err != nil {
		return Result{}, err
	}
	endingSoon, err := s.store.MarkEndingSoon(ctx, now, s.horizon)
	if err != nil {
		return Result{Activated: activated}, err
	}

	if activated > 0 {
		metrics.AddAutoAdvanced("activate", float64(activated))
	}
	if endingSoon > 0 {
		metrics.AddAutoAdvanced("ending_soon", float64(endingSoon))
	}
	if activated > 0 || endingSoon > 0 {
		s.logger.Info().
			Int64("activated", activated).
			Int64("ending_soon", endingSoon).
			Time("now", now).
			Msg("auto-advance sweep applied")
	}
	return Result{Activated: activated, EndingSoon: endingSoon}, nil
}

// Scheduler triggers the sweep on a fixed schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler that runs the sweep at the given cron
// spec, e.g. "@every 1m".
func NewScheduler(sweeper *Sweeper, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger.With().Str("component", "sweep_scheduler").Logger(),
	}
}

// Start begins the periodic sweep.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = "@every 1m"
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.sweeper.Run(ctx, time.Now()); err != nil {
			s.logger.Error().Err(err).Msg("auto-advance sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("spec", spec).Msg("sweep scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
