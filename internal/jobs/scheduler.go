package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trackwise/api/internal/repository"
)

// LimiterSweeper is the in-memory rate-limit store's garbage collector. The
// redis store expires keys on its own, so the sweeper may be nil.
type LimiterSweeper interface {
	Sweep() int
}

// Scheduler runs the background maintenance the request path defers:
// limiter GC, expired-token purge, and the safety-net reconcile for game
// sessions nobody read after they lapsed.
type Scheduler struct {
	cron       *cron.Cron
	users      *repository.UserRepository
	sweeper    LimiterSweeper
	sweepEvery time.Duration
	log        zerolog.Logger
}

func NewScheduler(users *repository.UserRepository, sweeper LimiterSweeper, sweepEvery time.Duration, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:       c,
		users:      users,
		sweeper:    sweeper,
		sweepEvery: sweepEvery,
		log:        log,
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc("@every "+s.sweepEvery.String(), s.sweepLimiter); err != nil {
			return err
		}
	}
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.purgeExpiredTokens); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * * *", s.reconcileGameSessions); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) sweepLimiter() {
	removed := s.sweeper.Sweep()
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("rate limit entries swept")
	}
}

func (s *Scheduler) purgeExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := s.users.PurgeExpiredTokens(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired tokens failed")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("users", purged).Msg("expired verification and reset tokens purged")
	}
}

func (s *Scheduler) reconcileGameSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	corrected, err := s.users.ReconcileStaleGameFlags(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("reconcile game sessions failed")
		return
	}
	if corrected > 0 {
		s.log.Info().Int64("users", corrected).Msg("stale game session flags corrected")
	}
}
