package config

import "time"

// BookingConfig carries the rules of the booking engine and its sweeper.
type BookingConfig struct {
	HoldTTL            time.Duration // lifetime of a held reservation
	MaxSeatsPerBooking int           // upper bound on seats in one request
	SweepInterval      time.Duration // how often stale holds are expired
	SweepBatchSize     int           // reservations handled per sweep query
	ReconcileInterval  time.Duration // how often counters are re-derived; 0 disables
	ReconcileBatchSize int           // screenings reconciled per pass

	// Retry budget for transient storage failures.
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// LoadBookingConfig reads the booking settings, falling back to defaults
// and clamping values that would make the engine misbehave.
func LoadBookingConfig() BookingConfig {
	c := BookingConfig{
		HoldTTL:              envDur("HOLD_TTL", 10*time.Minute),
		MaxSeatsPerBooking:   envInt("MAX_SEATS_PER_BOOKING", 10),
		SweepInterval:        envDur("SWEEP_INTERVAL", 30*time.Second),
		SweepBatchSize:       envInt("SWEEP_BATCH_SIZE", 100),
		ReconcileInterval:    envDur("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileBatchSize:   envInt("RECONCILE_BATCH_SIZE", 200),
		RetryMaxAttempts:     envInt("STORE_RETRY_MAX_ATTEMPTS", 4),
		RetryInitialInterval: envDur("STORE_RETRY_INITIAL_INTERVAL", 25*time.Millisecond),
		RetryMaxInterval:     envDur("STORE_RETRY_MAX_INTERVAL", 500*time.Millisecond),
	}
	if c.HoldTTL <= 0 {
		c.HoldTTL = 10 * time.Minute
	}
	if c.MaxSeatsPerBooking < 1 {
		c.MaxSeatsPerBooking = 1
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.SweepBatchSize < 1 {
		c.SweepBatchSize = 100
	}
	if c.ReconcileInterval < 0 {
		c.ReconcileInterval = 0
	}
	if c.ReconcileBatchSize < 1 {
		c.ReconcileBatchSize = 200
	}
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 1
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 25 * time.Millisecond
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		c.RetryMaxInterval = c.RetryInitialInterval
	}
	return c
}
