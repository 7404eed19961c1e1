package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/movie-reservation/internal/cache"
	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/handler"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/queue"
	"github.com/iliyamo/movie-reservation/internal/router"
	"github.com/iliyamo/movie-reservation/internal/service"
	"github.com/iliyamo/movie-reservation/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", "error", err)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookingCfg := config.LoadBookingConfig()
	checks := map[string]handler.Check{}

	st, closeStore, err := openStores(ctx, cfg, checks, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn("redis unavailable, caching and rate limiting disabled")
	}
	avail := cache.NewAvailability(rdb, config.LoadAvailabilityCacheConfig(), log)
	respCfg := config.LoadCacheConfig()
	seatMaps := cache.NewResponses(rdb, respCfg, router.SeatMapPath, log)

	opts := []service.BookingOption{
		service.WithAvailabilityCache(avail),
		service.WithSeatMapCache(seatMaps),
	}
	qcfg := config.LoadQueueConfig()
	if qcfg.PublishEnabled {
		pub := queue.NewPublisher(qcfg.URL, log, queue.WithBuffer(qcfg.PublishBuffer))
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("publisher close", "error", err)
			}
		}()
		opts = append(opts, service.WithPublisher(pub))
	}

	booking := service.NewBookingService(st.seats, st.screenings, st.ledger, bookingCfg, log, opts...)
	inventory := service.NewInventoryService(st.screenings, st.seats, avail, log)
	sweeper := worker.NewSweeper(booking, inventory, bookingCfg, log)

	e := router.New(router.Deps{
		Booking:   handler.NewBookingHandler(booking, inventory, log),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     respCfg,
		RateLimit: config.LoadRateLimitConfig(),
		Checks:    checks,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})
	if qcfg.ConsumerEnabled {
		g.Go(func() error {
			return queue.NewConsumer(qcfg.URL, qcfg.LogDir, log).Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
