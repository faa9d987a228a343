// Package config assembles the process-wide Config from environment
// variables, mirroring the teacher's pkg/config/config.go + loader.go split:
// one umbrella struct, one sub-config per concern, explicit Validate methods,
// fail-fast on missing required secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/queue"
)

// Config is the umbrella process configuration.
type Config struct {
	Database         database.Config
	Queue            queue.Config
	Bundler          bundler.Config
	Freshness        freshness.Config
	ActorHTTP        actorclient.HTTPConfig
	RedisURL         string
	ActorQuotaPerWin int
	ActorQuotaWindow time.Duration
	PromptVersion    string
	Model            string
}

// Initialize loads .env (if present) and assembles Config from the
// environment, following the teacher's cmd/tarsy/main.go + CONFIG_DIR
// pattern. configDir, if non-empty, is where a ".env" file is looked up.
func Initialize(configDir string) (*Config, error) {
	if configDir != "" {
		_ = godotenv.Load(configDir + "/.env")
	} else {
		_ = godotenv.Load()
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}

	queueCfg := queue.DefaultConfig()
	applyQueueEnv(&queueCfg)

	bundlerCfg := bundler.DefaultConfig()
	applyBundlerEnv(&bundlerCfg)

	freshnessCfg := freshness.DefaultConfig()
	applyFreshnessEnv(&freshnessCfg)

	actorCfg := actorclient.DefaultHTTPConfig()
	actorCfg.BaseURL = getEnvOrDefault("APIFY_BASE_URL", "https://api.apify.com")
	actorCfg.Token = os.Getenv("APIFY_API_TOKEN")

	cfg := &Config{
		Database:         dbCfg,
		Queue:            queueCfg,
		Bundler:          bundlerCfg,
		Freshness:        freshnessCfg,
		ActorHTTP:        actorCfg,
		RedisURL:         os.Getenv("REDIS_URL"),
		ActorQuotaPerWin: envIntOrDefault("BRANDBRAIN_ACTOR_QUOTA_PER_HOUR", 20),
		ActorQuotaWindow: time.Hour,
		PromptVersion:    getEnvOrDefault("BRANDBRAIN_PROMPT_VERSION", "v1"),
		Model:            getEnvOrDefault("BRANDBRAIN_MODEL", "stub"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on missing required secrets, matching the teacher's
// database.Config.Validate convention.
func (c *Config) Validate() error {
	if c.ActorHTTP.Token == "" {
		return fmt.Errorf("APIFY_API_TOKEN is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
