// Command brandbrain-worker runs the compile job queue's worker pool
// (spec.md §5, §6): polls for claimable jobs, executes the worker body, and
// sweeps stale leases.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/compile"
	"github.com/brandbrain/compiler/pkg/config"
	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/ingestion"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/normalize"
	"github.com/brandbrain/compiler/pkg/queue"
	"github.com/brandbrain/compiler/pkg/ratelimit"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	podID := flag.String("pod-id", getEnv("POD_ID", "worker-local"), "stable worker-pool identifier")
	workerCount := flag.Int("workers", 0, "number of worker goroutines (0 = config default)")
	pollInterval := flag.Duration("poll-interval", 0, "override the job poll interval (0 = config default)")
	staleCheckInterval := flag.Duration("stale-check-interval", 0, "override the orphan-sweep interval (0 = config default)")
	maxJobs := flag.Int("max-jobs", 0, "stop each worker after it has processed this many jobs (0 = unbounded); the process keeps running until SIGINT/SIGTERM")
	once := flag.Bool("once", false, "stop each worker after it has processed a single job; the process keeps running until SIGINT/SIGTERM")
	dryRun := flag.Bool("dry-run", false, "claim and immediately complete jobs without executing the worker body")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting brandbrain-worker", "pod_id", *podID, "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database")

	db := dbClient.DB()
	sourceRepo := database.NewSourceConnectionRepository(db)
	runsRepo := database.NewCompileRunRepository(db)
	snapshotsRepo := database.NewSnapshotRepository(db)
	jobsRepo := database.NewJobRepository(db)
	actorRunsRepo := database.NewActorRunRepository(db)
	rawItemsRepo := database.NewRawItemRepository(db)
	neiRepo := database.NewNEIRepository(db)
	bundlesRepo := database.NewEvidenceBundleRepository(db)

	queueCfg := cfg.Queue
	if *workerCount > 0 {
		queueCfg.WorkerCount = *workerCount
	}
	if *pollInterval > 0 {
		queueCfg.PollInterval = *pollInterval
	}
	if *staleCheckInterval > 0 {
		queueCfg.OrphanSweepInterval = *staleCheckInterval
	}
	queueCfg.MaxJobs = *maxJobs
	queueCfg.Once = *once

	var executor queue.JobExecutor
	if *dryRun {
		executor = dryRunExecutor{}
		slog.Warn("running in dry-run mode: jobs are claimed and completed without executing the worker body")
	} else {
		limiter := newLimiter(cfg)
		actorsClient := actorclient.NewHTTPClient(cfg.ActorHTTP)
		registry := ingestion.NewRegistry(getEnv("BRANDBRAIN_ENABLE_LINKEDIN_PROFILE_POSTS", "") == "true")
		normalizeRegistry := normalize.NewRegistry()
		normalize.RegisterDefaultAdapters(normalizeRegistry)
		normalizer := normalize.NewNormalizer(actorRunsRepo, rawItemsRepo, neiRepo, normalizeRegistry)
		ingestionPipeline := ingestion.NewPipeline(actorsClient, registry, actorRunsRepo, rawItemsRepo, normalizer, limiter, ingestion.DefaultConfig())
		bundlerImpl := bundler.NewBundler(neiRepo, cfg.Bundler, nil)
		executor = compile.NewExecutor(
			runsRepo,
			sourceRepo,
			freshness.NewChecker(actorRunsRepo, cfg.Freshness),
			ingestionPipeline,
			normalizer,
			registry,
			bundlerImpl,
			bundlesRepo,
			snapshotsRepo,
			compile.NewStubComposer(),
		)
	}

	pool := queue.NewWorkerPool(*podID, jobsRepo, queueCfg, executor)
	pool.Start(ctx)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight jobs")
	pool.Stop()
	slog.Info("worker pool stopped")
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RedisURL == "" {
		return ratelimit.NewInMemoryLimiter(cfg.ActorQuotaPerWin, cfg.ActorQuotaWindow)
	}
	limiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.ActorQuotaPerWin, cfg.ActorQuotaWindow)
	if err != nil {
		slog.Warn("failed to construct redis rate limiter, falling back to in-memory", "error", err)
		return ratelimit.NewInMemoryLimiter(cfg.ActorQuotaPerWin, cfg.ActorQuotaWindow)
	}
	return limiter
}

// dryRunExecutor implements queue.JobExecutor without touching ingestion,
// normalization, or bundling — useful for exercising the claim/heartbeat/
// complete lifecycle against a real database without an actor-platform
// dependency.
type dryRunExecutor struct{}

func (dryRunExecutor) Execute(ctx context.Context, job *models.Job) error {
	return nil
}
