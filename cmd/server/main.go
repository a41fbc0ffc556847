package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"daofund/internal/dao/dispatch"
	"daofund/internal/dao/events"
	"daofund/internal/dao/handler"
	"daofund/internal/dao/membership"
	"daofund/internal/dao/metrics"
	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	"daofund/internal/dao/project"
	"daofund/internal/dao/simulator"
	"daofund/internal/dao/store"
	"daofund/internal/platform/config"
	"daofund/internal/platform/httpserver"
	"daofund/internal/platform/logger"
	"daofund/internal/platform/middleware"
	platformredis "daofund/internal/platform/redis"
	id "daofund/pkg/domain"
)

const (
	treasuryAddress          = "daofund-treasury"
	validatorExecutorAddress = "daofund-validator-executor"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal/dao packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Project persistence: Postgres when configured, otherwise in memory.
	var projectStore store.ProjectStore = store.NewMemoryProjectStore()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, store.Schema); err != nil {
			return err
		}
		projectStore = store.NewPostgresProjectStore(db)
		log.Info("using postgres project store")
	}

	// Release markers: Redis when configured so multiple instances agree on
	// what is pending.
	var markerStore store.MarkerStore = store.NewMemoryMarkerStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		markerStore = store.NewRedisMarkerStore(redisClient.Client)
		log.Info("using redis marker store")
	}

	var publisher ports.EventPublisher = events.NewMemoryPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("publishing events to kafka", slog.String("topic", cfg.KafkaTopic))
	}

	memberStore := store.NewMemoryMemberStore()
	proposalStore := store.NewMemoryProposalStore()

	// External collaborators run as in-process simulators until real voting
	// and ledger backends are attached.
	tokens := simulator.NewTokenLedger(treasuryAddress)
	profit := simulator.NewProfitLedger(tokens)
	assocBody := simulator.NewVotingBody()
	validatorBody := simulator.NewVotingBody(simulator.WithDefaultExecutor(validatorExecutorAddress))
	validators := make([]id.Address, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		validators = append(validators, id.Address(v))
	}
	registry := simulator.NewValidatorRegistry(validators...)

	membershipSvc := membership.NewService(
		memberStore, assocBody, registry, tokens,
		models.DepositInfo{Symbol: cfg.DepositSymbol, Amount: cfg.DepositAmount},
		treasuryAddress,
		membership.WithLogger(log),
		membership.WithValidatorBody(validatorBody),
	)
	if err := membershipSvc.Bootstrap(ctx); err != nil {
		return err
	}

	projectSvc := project.NewService(
		projectStore, markerStore, tokens, profit, publisher, treasuryAddress,
		project.WithLogger(log), project.WithMetrics(m),
	)

	dispatcher := dispatch.NewDispatcher(
		assocBody, validatorBody, registry,
		memberStore, markerStore, proposalStore,
		membershipSvc, projectSvc, dispatch.SystemEntropy{},
		dispatch.WithLogger(log), dispatch.WithMetrics(m), dispatch.WithTTL(cfg.ProposalTTL),
	)
	assocBody.SetExecutor(dispatcher)
	validatorBody.SetExecutor(dispatcher)

	h := handler.New(membershipSvc, projectSvc, dispatcher, handler.WithLogger(log))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(middleware.NewHMACValidator(cfg.JWTSigningKey), log))
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting daofund server", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
