package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SearchTables are the tables a similarity search reads. /health/db reports
// 503 until migrations have created all of them in the configured schema.
var SearchTables = []string{"patients", "medical_records", "lab_results"}

const tablesQuery = `SELECT array_agg(table_name::text) FROM information_schema.tables
WHERE table_schema = $1 AND table_name = ANY($2)`

type healthChecker interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status        string     `json:"status"`
	Schema        string     `json:"schema"`
	Error         string     `json:"error,omitempty"`
	MissingTables []string   `json:"missing_tables,omitempty"`
	Pool          *PoolStats `json:"pool"`
}

// HealthHandler serves GET /health/db: a ping and a check that the search
// tables exist in schema, bounded to 5s, plus pool stats.
func HealthHandler(pool *pgxpool.Pool, schema string) echo.HandlerFunc {
	return healthHandler(pool, schema, func() *PoolStats { return GetPoolStats(pool) })
}

func healthHandler(p healthChecker, schema string, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := checkHealth(ctx, p, schema)
		report.Pool = stats()
		report.Pool.Healthy = report.Status == "healthy"
		if !report.Pool.Healthy {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

func checkHealth(ctx context.Context, p healthChecker, schema string) HealthReport {
	report := HealthReport{Status: "healthy", Schema: schema}
	if err := p.Ping(ctx); err != nil {
		report.Status = "unreachable"
		report.Error = err.Error()
		return report
	}

	var present []string
	if err := p.QueryRow(ctx, tablesQuery, schema, SearchTables).Scan(&present); err != nil {
		report.Status = "unreachable"
		report.Error = fmt.Sprintf("listing tables: %v", err)
		return report
	}
	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}
	for _, name := range SearchTables {
		if !have[name] {
			report.MissingTables = append(report.MissingTables, name)
		}
	}
	if len(report.MissingTables) > 0 {
		report.Status = "not_migrated"
	}
	return report
}
