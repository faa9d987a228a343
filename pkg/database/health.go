package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HealthStatus represents database health, connection pool statistics, and
// compile-job queue depth.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ms"`
	MaxOpenConns    int           `json:"max_open_conns"`
	PendingJobs     int           `json:"pending_jobs"`
}

// Health checks database connectivity, returns connection pool statistics,
// and reports the current depth of the compile-job queue (jobs PENDING and
// due, per JobRepository.CountPending) so an operator dashboard can tell a
// slow database apart from a backed-up worker pool.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()

	if err := db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start),
		}, err
	}

	stats := db.Stats()
	status := &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
		MaxOpenConns:    stats.MaxOpenConnections,
	}

	pending, err := NewJobRepository(db).CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("health check: count pending jobs: %w", err)
	}
	status.PendingJobs = pending

	return status, nil
}
