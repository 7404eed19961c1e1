// Package worker runs the background expiry sweeper.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
)

// maxBatchesPerTick bounds how many consecutive batches one tick drains.
const maxBatchesPerTick = 20

// Reservations is the slice of the booking engine the sweeper drives.
type Reservations interface {
	ExpireDue(ctx context.Context, limit int) (done, failed int, err error)
	CompleteDue(ctx context.Context, limit int) (done, failed int, err error)
}

// Reconciler re-derives availability counters.
type Reconciler interface {
	ReconcileUpcoming(ctx context.Context, now time.Time, limit int) (healed, failed int, err error)
}

// SweepResult summarises one tick.
type SweepResult struct {
	Expired    int
	Completed  int
	Healed     int
	Failed     int
	Reconciled bool
}

// Sweeper expires stale holds, completes finished bookings and
// periodically reconciles counters.  Every transition it triggers goes
// through the booking engine, so a sweeper racing a user's confirm or
// cancel is harmless: the loser sees an invalid state and skips it.
type Sweeper struct {
	reservations Reservations
	reconciler   Reconciler
	cfg          config.BookingConfig
	log          logger.Logger
	now          func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastReconcile time.Time
}

// NewSweeper wires a sweeper.  reconciler may be nil to disable
// reconciliation.
func NewSweeper(reservations Reservations, reconciler Reconciler, cfg config.BookingConfig, log logger.Logger) *Sweeper {
	return &Sweeper{
		reservations: reservations,
		reconciler:   reconciler,
		cfg:          cfg,
		log:          log.With("component", "sweeper"),
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// SetClock replaces time.Now; tests only.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Start launches the sweep loop.  It runs one pass immediately and then
// every SweepInterval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting sweeper", "interval", s.cfg.SweepInterval, "batch_size", s.cfg.SweepBatchSize)
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one pass and keeps a panic from killing the loop.
func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", "panic", r)
		}
	}()
	res := s.RunOnce(ctx)
	if res.Expired+res.Completed+res.Healed+res.Failed > 0 {
		s.log.Info("sweep finished",
			"expired", res.Expired, "completed", res.Completed, "healed", res.Healed, "failed", res.Failed)
	}
}

// RunOnce performs a single sweep.  Errors are logged and counted; the
// next pass retries whatever is left.
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	var res SweepResult
	batch := s.cfg.SweepBatchSize

	res.Expired, res.Failed = s.drain(ctx, "expire holds", batch, s.reservations.ExpireDue)
	completed, failed := s.drain(ctx, "complete bookings", batch, s.reservations.CompleteDue)
	res.Completed = completed
	res.Failed += failed

	if s.reconciler != nil && s.cfg.ReconcileInterval > 0 {
		now := s.now()
		if s.lastReconcile.IsZero() || now.Sub(s.lastReconcile) >= s.cfg.ReconcileInterval {
			healed, failed, err := s.reconciler.ReconcileUpcoming(ctx, now, s.cfg.ReconcileBatchSize)
			if err != nil {
				s.log.Error("reconcile pass failed", "error", err)
				res.Failed++
			} else {
				s.lastReconcile = now
				res.Reconciled = true
			}
			res.Healed = healed
			res.Failed += failed
		}
	}
	return res
}

// drain calls fn until a batch comes back short or makes no progress.
func (s *Sweeper) drain(ctx context.Context, op string, batch int, fn func(context.Context, int) (int, int, error)) (done, failed int) {
	for i := 0; i < maxBatchesPerTick; i++ {
		d, f, err := fn(ctx, batch)
		done += d
		failed += f
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Error("sweep step failed", "op", op, "error", err)
				failed++
			}
			return done, failed
		}
		if d == 0 || d+f < batch {
			return done, failed
		}
	}
	return done, failed
}
