package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-seat-booking/internal/config"
	"github.com/iliyamo/event-seat-booking/internal/database"
	"github.com/iliyamo/event-seat-booking/internal/handler"
	"github.com/iliyamo/event-seat-booking/internal/logging"
	"github.com/iliyamo/event-seat-booking/internal/middleware"
	"github.com/iliyamo/event-seat-booking/internal/queue"
	"github.com/iliyamo/event-seat-booking/internal/repository"
	"github.com/iliyamo/event-seat-booking/internal/router"
	"github.com/iliyamo/event-seat-booking/internal/service"
	"github.com/iliyamo/event-seat-booking/internal/worker"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Env, cfg.LogLevel)

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		LockWait: cfg.Booking.LockTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)
	bookings := repository.NewBookingRepo(db)

	publisher := queue.NewPublisher(cfg.AMQPURL)
	defer publisher.Close()
	coordinator := service.NewCoordinator(events, seats, bookings, cfg.Booking, queue.NewNotifier(publisher))

	dedupe := queue.NewDeduper(rdb, cfg.Watcher.Prefix, cfg.Watcher.DedupeTTL)
	consumer, err := queue.NewConsumer(cfg.AMQPURL, cfg.LogDir, dedupe)
	if err != nil {
		log.WithError(err).Fatal("booking journal unavailable")
	}
	defer consumer.Close()

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	bookingHandler := handler.NewBookingHandler(coordinator, cache)
	authHandler := handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db))

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterPublic(e, bookingHandler, cache)
	router.RegisterBookings(e, bookingHandler, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadBookingRateLimitConfig(), rdb))
	router.RegisterAdmin(e, bookingHandler, cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	addr := ":" + cfg.Port
	g.Go(func() error {
		log.WithFields(log.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Watcher.Enabled {
		watcher := worker.NewWindowWatcher(events, bookings, publisher, dedupe, cfg.Watcher)
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("shutdown with error")
	}
	// let post-commit notifications finish before the publisher closes
	coordinator.Drain()
	log.Info("stopped")
}
