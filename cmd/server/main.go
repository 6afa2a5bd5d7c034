package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/railway-berth-reservation/internal/config"
	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/handler"
	"github.com/iliyamo/railway-berth-reservation/internal/logger"
	"github.com/iliyamo/railway-berth-reservation/internal/middleware"
	"github.com/iliyamo/railway-berth-reservation/internal/queue"
	"github.com/iliyamo/railway-berth-reservation/internal/repository"
	"github.com/iliyamo/railway-berth-reservation/internal/reservation"
	"github.com/iliyamo/railway-berth-reservation/internal/router"
	"github.com/iliyamo/railway-berth-reservation/internal/telemetry"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.Env, cfg.Telemetry.ServiceName)
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	if err := database.SeedInventory(ctx, db, dialect, cfg.Inventory.Capacities()); err != nil {
		return err
	}

	engine := reservation.NewEngine(db,
		repository.NewInventoryRepo(db, dialect),
		repository.NewTicketRepo(db, dialect),
		reservation.WithLogger(lg.Named("reservation")),
		reservation.WithTxTimeout(cfg.TxTimeout),
	)

	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return err
	}
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		lg.Warn("redis unreachable, rate limiting and response cache disabled", zap.String("addr", redisCfg.Address()))
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(cacheCfg, rdb, lg.Named("cache"))

	var events handler.EventPublisher
	if cfg.Events.Enabled {
		pub := queue.NewPublisher(cfg.Events.URL, cfg.Events.Queue, lg.Named("publisher"))
		defer pub.Close()
		events = pub
		if cfg.Events.RunConsumer {
			consumer := queue.NewConsumer(cfg.Events.URL, cfg.Events.Queue, cfg.Events.LogDir, lg.Named("consumer"))
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lg.Error("ticket consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(lg.Named("http")))

	h := handler.NewTicketHandler(engine, events, cache, lg.Named("handler"))
	router.RegisterRoutes(e, db)
	router.RegisterTickets(e, h, middleware.NewTokenBucket(rlCfg, rdb, lg.Named("ratelimit")), cache.Middleware())

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", string(dialect)))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
