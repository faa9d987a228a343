package config

import (
	"os"
	"strconv"
	"time"

	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/queue"
)

// applyQueueEnv overlays the spec.md §6 enumerated environment variables
// onto the built-in queue.DefaultConfig(), the same override-over-defaults
// shape as the teacher's getEnvOrDefault usage in database.LoadConfigFromEnv.
func applyQueueEnv(c *queue.Config) {
	if v, ok := envMinutes("BRANDBRAIN_STALE_LOCK_MINUTES"); ok {
		c.StaleLockThreshold = v
	}
	if v, ok := envSeconds("BRANDBRAIN_HEARTBEAT_INTERVAL_S"); ok {
		c.HeartbeatInterval = v
	}
	if v, ok := envSeconds("BRANDBRAIN_BACKOFF_BASE_SECONDS"); ok {
		c.BackoffBase = v
	}
	if v, ok := envFloat("BACKOFF_MULTIPLIER"); ok {
		c.BackoffMultiplier = v
	}
}

// applyBundlerEnv overlays BRANDBRAIN_GLOBAL_MAX_ITEMS onto
// bundler.DefaultConfig(); the other bundler settings, including the
// collection-page exclusion flag, keep their defaults.
func applyBundlerEnv(c *bundler.Config) {
	if v, ok := envInt("BRANDBRAIN_GLOBAL_MAX_ITEMS"); ok {
		c.GlobalCap = v
	}
}

// applyFreshnessEnv overlays BRANDBRAIN_ACTOR_TTL_HOURS onto
// freshness.DefaultConfig().
func applyFreshnessEnv(c *freshness.Config) {
	if v, ok := envHours("BRANDBRAIN_ACTOR_TTL_HOURS"); ok {
		c.ActorTTL = v
	}
}

func envIntOrDefault(key string, def int) int {
	if v, ok := envInt(key); ok {
		return v
	}
	return def
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envSeconds(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envMinutes(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}

func envHours(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Hour, true
}

