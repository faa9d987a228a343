// Command brandbrain-api serves the compile orchestrator's HTTP surface
// (spec.md §6): kickoff, status, latest, history, and overrides.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/brandbrain/compiler/pkg/api"
	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/compile"
	"github.com/brandbrain/compiler/pkg/config"
	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/ingestion"
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
	addr := flag.String("addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	embedWorker := flag.Bool("embed-worker", getEnv("BRANDBRAIN_EMBED_WORKER", "") == "true", "run the worker pool in this process")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting brandbrain-api", "config_dir", *configDir, "addr", *addr)

	ctx := context.Background()

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
	tenantRepo := database.NewTenantRepository(db)
	onboardingRepo := database.NewOnboardingRepository(db)
	sourceRepo := database.NewSourceConnectionRepository(db)
	overridesRepo := database.NewOverridesRepository(db)
	runsRepo := database.NewCompileRunRepository(db)
	snapshotsRepo := database.NewSnapshotRepository(db)
	jobsRepo := database.NewJobRepository(db)
	actorRunsRepo := database.NewActorRunRepository(db)
	rawItemsRepo := database.NewRawItemRepository(db)
	neiRepo := database.NewNEIRepository(db)
	bundlesRepo := database.NewEvidenceBundleRepository(db)

	prompt := compile.PromptSettings{
		PromptVersion: cfg.PromptVersion,
		Model:         cfg.Model,
	}

	orchestrator := compile.NewOrchestrator(
		tenantRepo,
		onboardingRepo,
		sourceRepo,
		overridesRepo,
		runsRepo,
		snapshotsRepo,
		jobsRepo,
		freshness.NewChecker(actorRunsRepo, cfg.Freshness),
		prompt,
	)
	reader := compile.NewReader(runsRepo, snapshotsRepo, overridesRepo)

	server := api.NewServer(dbClient, orchestrator, reader)

	if *embedWorker {
		limiter := newLimiter(cfg)
		actorsClient := actorclient.NewHTTPClient(cfg.ActorHTTP)
		registry := ingestion.NewRegistry(getEnv("BRANDBRAIN_ENABLE_LINKEDIN_PROFILE_POSTS", "") == "true")
		normalizeRegistry := normalize.NewRegistry()
		normalize.RegisterDefaultAdapters(normalizeRegistry)
		normalizer := normalize.NewNormalizer(actorRunsRepo, rawItemsRepo, neiRepo, normalizeRegistry)
		ingestionPipeline := ingestion.NewPipeline(actorsClient, registry, actorRunsRepo, rawItemsRepo, normalizer, limiter, ingestion.DefaultConfig())
		bundlerImpl := bundler.NewBundler(neiRepo, cfg.Bundler, nil)
		executor := compile.NewExecutor(
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

		pool := queue.NewWorkerPool("brandbrain-api", jobsRepo, cfg.Queue, executor)
		pool.Start(ctx)
		defer pool.Stop()
		server.SetWorkerPool(pool)
		slog.Info("worker pool embedded in API process")
	}

	if err := server.Start(*addr); err != nil {
		slog.Error("api server exited", "error", err)
		os.Exit(1)
	}
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
