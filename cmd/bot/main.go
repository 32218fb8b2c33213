package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/boskobot/internal/bot"
	"github.com/example/boskobot/internal/cache"
	"github.com/example/boskobot/internal/catalog"
	"github.com/example/boskobot/internal/config"
	"github.com/example/boskobot/internal/dialog"
	"github.com/example/boskobot/internal/locks"
	"github.com/example/boskobot/internal/logger"
	"github.com/example/boskobot/internal/metrics"
	"github.com/example/boskobot/internal/sched"
	"github.com/example/boskobot/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", cfgPath, err)
	}

	logger.Init(cfg)
	appLog := logger.Component("app")
	startedAt := time.Now()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Listen, reg); err != nil {
				appLog.Error("metrics listener failed",
					slog.String("event", "metrics.serve"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	// Stores: postgres when a database is configured, in-memory otherwise.
	var (
		stateStore    dialog.StateStore
		favStore      dialog.FavoritesStore
		scheduleStore sched.Store
	)
	if cfg.Database.Host != "" {
		if err := storage.RunMigrations(cfg.Database); err != nil {
			appLog.Error("migrations failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		db, err := storage.Connect(cfg.Database)
		if err != nil {
			appLog.Error("database unavailable", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		stateStore = storage.NewPGStates(db)
		favStore = storage.NewPGFavorites(db)
		scheduleStore = storage.NewPGSchedules(db)
	} else {
		appLog.Warn("no database configured, state will not survive restarts",
			slog.String("event", "storage.memory"),
		)
		stateStore = storage.NewMemoryStates()
		favStore = storage.NewMemoryFavorites()
		scheduleStore = storage.NewMemorySchedules()
	}

	client := catalog.NewClient(catalog.ClientOptions{
		BaseURL:       cfg.Catalog.BaseURL,
		RatePerSecond: cfg.Catalog.RatePerSecond,
		Metrics:       collector,
	})
	if err := client.Login(ctx, cfg.Catalog.Email, cfg.Catalog.Password); err != nil {
		appLog.Error("catalog login failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	sharedCache := cache.New(cache.WithMetrics(collector))
	browser := catalog.NewBrowser(client, sharedCache, cfg.Catalog.CacheTTL(), cfg.Catalog.ShopListLimit)

	b, err := bot.New(cfg, collector)
	if err != nil {
		appLog.Error("bot startup failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	userLocks := locks.NewKeyedMutex()
	registry := sched.NewRegistry(scheduleStore, browser, b, userLocks, sched.WithMetrics(collector))
	engine := dialog.NewEngine(stateStore, favStore, browser, registry, b, userLocks, cfg.Scheduler.DefaultTimezone)
	b.Bind(engine)

	if err := registry.Restore(ctx); err != nil {
		appLog.Error("schedule restore failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer registry.Stop()

	appLog.Info("app ready",
		slog.String("event", "ready"),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	b.Run(ctx)

	appLog.Info("shutting down", slog.String("event", "shutdown"))
}
