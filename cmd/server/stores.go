package main

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/database"
	"github.com/iliyamo/movie-reservation/internal/handler"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/repository"
	"github.com/iliyamo/movie-reservation/internal/repository/memory"
	"github.com/iliyamo/movie-reservation/internal/service"
)

type stores struct {
	seats      service.SeatStore
	screenings service.ScreeningStore
	ledger     service.LedgerStore
}

// openStores selects the backing store by STORE_DRIVER and registers its
// readiness check.
func openStores(ctx context.Context, cfg config.Config, checks map[string]handler.Check, log logger.Logger) (stores, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		s := memory.New()
		if err := seedDemo(s, time.Now().UTC()); err != nil {
			return stores{}, nil, fmt.Errorf("seed memory store: %w", err)
		}
		log.Warn("using in-memory store; state is lost on restart")
		return stores{seats: s, screenings: s, ledger: s}, func() {}, nil
	}

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return stores{}, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, nil, err
		}
		log.Info("schema migrated")
	}
	checks["mysql"] = db.PingContext
	return stores{
		seats:      repository.NewSeatRepo(db),
		screenings: repository.NewScreeningRepo(db),
		ledger:     repository.NewReservationRepo(db),
	}, func() { _ = db.Close() }, nil
}

// seedDemo fills auditorium 1 with rows A-E of ten seats (row E premium)
// and schedules one screening tomorrow evening.
func seedDemo(s *memory.Store, now time.Time) error {
	var seats []model.Seat
	for _, row := range []string{"A", "B", "C", "D", "E"} {
		class := model.SeatClassStandard
		if row == "E" {
			class = model.SeatClassPremium
		}
		for n := uint32(1); n <= 10; n++ {
			seats = append(seats, model.Seat{AuditoriumID: 1, RowLabel: row, SeatNumber: n, Class: class, IsActive: true})
		}
	}
	if _, err := s.AddSeats(seats...); err != nil {
		return err
	}
	start := time.Date(now.Year(), now.Month(), now.Day()+1, 19, 0, 0, 0, time.UTC)
	_, err := s.AddScreening(model.Screening{
		MovieID:               1,
		AuditoriumID:          1,
		StartsAt:              start,
		EndsAt:                start.Add(2 * time.Hour),
		BasePriceCents:        1200,
		PremiumSurchargeCents: 400,
	}, now)
	return err
}
