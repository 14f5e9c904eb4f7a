package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/aggregate"
	"github.com/mamadbah2/avicontrol/internal/config"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/replication"
	"github.com/mamadbah2/avicontrol/internal/repository/backup"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
	"github.com/mamadbah2/avicontrol/internal/repository/mongodb"
	"github.com/mamadbah2/avicontrol/internal/repository/sheets"
	"github.com/mamadbah2/avicontrol/internal/repository/sqlite"
	"github.com/mamadbah2/avicontrol/internal/scheduler"
	"github.com/mamadbah2/avicontrol/internal/server/handlers"
	"github.com/mamadbah2/avicontrol/internal/server/router"
	accountssvc "github.com/mamadbah2/avicontrol/internal/service/accounts"
	reportingsvc "github.com/mamadbah2/avicontrol/internal/service/reporting"
	salessvc "github.com/mamadbah2/avicontrol/internal/service/sales"
	"github.com/mamadbah2/avicontrol/internal/store"
	"github.com/mamadbah2/avicontrol/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.NewWithOptions(logger.Options{File: cfg.Log.File}))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	// The store must come up even when the database file is unusable.
	var kvStore kv.Store
	if db, err := sqlite.Open(cfg.Store.Path); err != nil {
		baseLogger.Error("failed to open local store, running in memory", zap.String("path", cfg.Store.Path), zap.Error(err))
		kvStore = kv.NewMemory()
	} else {
		kvStore = db
	}
	defer func() {
		if err := kvStore.Close(); err != nil {
			baseLogger.Error("failed to close local store", zap.Error(err))
		}
	}()

	st := store.New(kvStore, events.NewBus(), baseLogger.Named("store"))
	policy := aggregate.Policy{CrateCapacity: cfg.Sales.CrateCapacity, SettleEpsilon: cfg.Sales.SettleEpsilon}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var dialer replication.Dialer
	switch cfg.Mirror.Backend {
	case config.MirrorMongoDB:
		dialer = mongodb.NewDialer()
	case config.MirrorMemory:
		dialer = replication.NewMemoryDialer()
	default:
		dialer = replication.NewFirebaseDialer(cfg.Mirror.Timeout, baseLogger.Named("mirror.firebase"))
	}
	engine := replication.NewEngine(st, dialer, baseLogger.Named("replication"),
		replication.WithTimeout(cfg.Mirror.Timeout),
		replication.WithMetrics(replication.NewMetrics(registry)),
	)
	defer engine.Close(context.Background())

	if st.GetConfig().CloudEnabled {
		if err := engine.EnableFromConfig(context.Background()); err != nil {
			baseLogger.Error("replication could not be resumed, running offline", zap.Error(err))
		}
	}

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		sheetsRepo, err = sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
	}

	var archiver scheduler.Archiver
	if cfg.Archive.Enabled() {
		s3Archiver, err := backup.NewS3Archiver(context.Background(), backup.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
			Region: cfg.Archive.Region,
		}, baseLogger.Named("repo.backup"))
		if err != nil {
			baseLogger.Fatal("failed to init snapshot archiver", zap.Error(err))
		}
		archiver = s3Archiver
	}

	salesSvc := salessvc.NewService(st, policy, baseLogger.Named("svc.sales"))
	accountsSvc := accountssvc.NewService(st, baseLogger.Named("svc.accounts"))
	reportingSvc := reportingsvc.NewService(sheetsRepo, st, policy, baseLogger.Named("svc.reporting"))

	h := handlers.New(st, salesSvc, accountsSvc, reportingSvc, engine, baseLogger.Named("handlers"))
	ginEngine := router.New(h, registry, baseLogger.Named("router"))

	jobs := scheduler.Jobs{Pusher: engine, Archiver: archiver}
	if sheetsRepo != nil {
		jobs.Exporter = reportingSvc
	}
	sched, err := scheduler.NewScheduler(cfg.Scheduler, st, jobs, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// No WriteTimeout: /api/events holds its response open.
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     ginEngine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("mirror", cfg.Mirror.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
