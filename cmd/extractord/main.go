package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/crypto"
	"github.com/michaelloggins/Accession-sub000/internal/export"
	"github.com/michaelloggins/Accession-sub000/internal/extract/formrec"
	"github.com/michaelloggins/Accession-sub000/internal/extract/openai"
	"github.com/michaelloggins/Accession-sub000/internal/metrics"
	"github.com/michaelloggins/Accession-sub000/internal/pipeline"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
	"github.com/michaelloggins/Accession-sub000/internal/scheduler"
	"github.com/michaelloggins/Accession-sub000/internal/server"
	"github.com/michaelloggins/Accession-sub000/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Error("database pool init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repository.HealthCheck(ctx, pool, 3*time.Second, log); err != nil {
		log.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	log.Info("database health OK")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	cfgsrc := config.NewRedisSource(rdb, log)

	store, err := storage.NewS3Gateway(ctx, cfg.ObjectStore, log)
	if err != nil {
		log.Error("object store init failed", "error", err)
		os.Exit(1)
	}

	encryptor, err := crypto.NewAESEncryptor(cfg.Encryption.KeyHex)
	if err != nil {
		log.Error("field encryptor init failed", "error", err)
		os.Exit(1)
	}

	docs := repository.NewDocumentRepository(pool, log)
	batches := repository.NewBatchRepository(pool, log)
	policies := repository.NewPolicyRepository(pool, log)

	structured := formrec.NewClient(cfg.Structured, log)
	general := openai.NewClient(openai.Config{
		APIKey:  cfg.General.APIKey,
		BaseURL: cfg.General.BaseURL,
		Model:   cfg.General.Model,
		Timeout: cfg.General.Timeout,
	}, log)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	enricher := pipeline.NewLifecycleEnricher(store, docs, log)
	proc := pipeline.NewProcessor(
		cfgsrc,
		pipeline.NewQueueSelector(docs, log),
		pipeline.NewBatchCoordinator(batches, log),
		pipeline.NewExtractionRouter(policies, structured, general, log),
		pipeline.NewResultProcessor(docs, policies, enricher, encryptor, m, log),
		pipeline.NewFailureHandler(docs, log),
		store,
		docs,
		m,
		log,
	)

	sched := scheduler.New(proc, cfgsrc, log)
	sched.Start()

	exp := export.NewService(docs, encryptor, log)
	ops := server.NewOpsHandler(docs, batches, exp, log)
	httpSrv := &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           server.NewRouter(ops, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("ops API serving", "addr", cfg.Ops.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops API serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops API shutdown failed", "error", err)
	}
	log.Info("stopped")
}
