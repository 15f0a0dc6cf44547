// main wires the engine's components, mounts the HTTP surface, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages.
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

	"namehaus/internal/events"
	"namehaus/internal/feemanager"
	feemanagerhandler "namehaus/internal/feemanager/handler"
	"namehaus/internal/funds"
	httpapi "namehaus/internal/http"
	"namehaus/internal/ledger"
	"namehaus/internal/limiter"
	limiterhandler "namehaus/internal/limiter/handler"
	limitermetrics "namehaus/internal/limiter/metrics"
	"namehaus/internal/limiter/store/window"
	"namehaus/internal/marketplace"
	marketplacehandler "namehaus/internal/marketplace/handler"
	marketplacemetrics "namehaus/internal/marketplace/metrics"
	"namehaus/internal/platform/config"
	"namehaus/internal/platform/httpserver"
	platformkafka "namehaus/internal/platform/kafka"
	"namehaus/internal/platform/logger"
	platformmetrics "namehaus/internal/platform/metrics"
	platformredis "namehaus/internal/platform/redis"
	"namehaus/internal/pricing"
	"namehaus/internal/registrar"
	registrarhandler "namehaus/internal/registrar/handler"
	registrarmetrics "namehaus/internal/registrar/metrics"
	commitmentstore "namehaus/internal/registrar/store/commitment"
)

func main() {
	cfg, err := config.FromEnv()
	log := logger.New()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event sinks: structured logs always, Kafka when brokers are configured.
	emitter := events.Emitter(events.NewSlogEmitter(log))
	kafkaProducer, err := platformkafka.New(cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitter = events.Multi{emitter, events.NewKafkaEmitter(kafkaProducer, log)}
	}

	bank := funds.NewInMemoryBank()

	// Ledger: Postgres when configured, in-memory otherwise.
	var ldg ledger.Ledger
	if cfg.Postgres.URL != "" {
		db, err := ledger.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to open postgres ledger", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := ledger.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure ledger schema", "error", err)
			os.Exit(1)
		}
		ldg = pg
	} else {
		ldg = ledger.NewInMemoryLedger()
	}

	// Limiter window store: Redis when configured, in-memory otherwise.
	var windowStore limiter.WindowStore = window.NewInMemoryWindowStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		windowStore = window.NewRedis(redisClient.Client)
	}

	limiterSvc, err := limiter.New(windowStore, cfg.Limiter.MaxPerWindow, cfg.Limiter.TimeWindow,
		limiter.WithLogger(log),
		limiter.WithMetrics(limitermetrics.New()),
	)
	if err != nil {
		log.Error("failed to build limiter", "error", err)
		os.Exit(1)
	}

	feeSvc, err := feemanager.New(bank, cfg.Accounts.FeeManager, cfg.FeeManager.Treasury,
		cfg.FeeManager.Timelock, cfg.FeeManager.EmergencyCap,
		feemanager.WithLogger(log),
		feemanager.WithEmitter(emitter),
	)
	if err != nil {
		log.Error("failed to build fee manager", "error", err)
		os.Exit(1)
	}

	oracle := pricing.New(pricing.Config{
		ThreeCharYearly: cfg.Registrar.ThreeCharYearly,
		FourCharYearly:  cfg.Registrar.FourCharYearly,
		LongYearly:      cfg.Registrar.LongYearly,
	})

	registrarSvc, err := registrar.New(
		commitmentstore.NewInMemoryCommitmentStore(),
		ldg,
		oracle,
		limiterSvc,
		feeSvc,
		bank,
		cfg.Accounts.Registrar,
		registrar.Config{
			MinCommitmentAge: cfg.Registrar.MinCommitmentAge,
			MaxCommitmentAge: cfg.Registrar.MaxCommitmentAge,
			ReferrerFeeBps:   cfg.Registrar.ReferrerFeeBps,
		},
		registrar.WithLogger(log),
		registrar.WithEmitter(emitter),
		registrar.WithMetrics(registrarmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build registrar", "error", err)
		os.Exit(1)
	}
	limiterSvc.SetController(registrarSvc.Account())

	marketSvc, err := marketplace.New(ldg, bank, feeSvc, cfg.Accounts.Marketplace, marketplace.Config{},
		marketplace.WithLogger(log),
		marketplace.WithEmitter(emitter),
		marketplace.WithMetrics(marketplacemetrics.New()),
	)
	if err != nil {
		log.Error("failed to build marketplace", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(httpapi.Handlers{
		Registrar:   registrarhandler.New(registrarSvc, log),
		Marketplace: marketplacehandler.New(marketSvc, log),
		FeeManager:  feemanagerhandler.New(feeSvc, log),
		Limiter:     limiterhandler.New(limiterSvc, log),
	}, cfg.Server.OperatorToken, platformmetrics.New(), log)

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting namehaus", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
