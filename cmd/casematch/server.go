package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/casematch/internal/config"
	"github.com/ehr/casematch/internal/domain/similarity"
	"github.com/ehr/casematch/internal/platform/auth"
	"github.com/ehr/casematch/internal/platform/db"
	"github.com/ehr/casematch/internal/platform/middleware"
	"github.com/ehr/casematch/internal/platform/telemetry"
)

const version = "0.1.0"

type serverDeps struct {
	finder  similarity.Finder
	health  echo.HandlerFunc
	metrics *telemetry.Provider
}

// newServer assembles the echo instance. /health, /health/db and /metrics
// sit outside /api/v1 and never require a token.
func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(deps.metrics.Middleware())
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if deps.health != nil {
		e.GET("/health/db", deps.health)
	}
	e.GET("/metrics", deps.metrics.Handler())

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))

	similarity.NewHandler(deps.finder).RegisterRoutes(apiV1)
	return e
}

func engineConfig(cfg *config.Config) similarity.Config {
	ec := similarity.DefaultConfig()
	ec.PoolSize = cfg.SimilarityPoolSize
	ec.CandidateVisits = cfg.SimilarityCandidateRecords
	ec.CandidateLabs = cfg.SimilarityCandidateLabs
	ec.Workers = cfg.SimilarityWorkers
	ec.Rank = similarity.RankOptions{
		MinScore: cfg.SimilarityMinScore,
		Limit:    cfg.SimilarityResultLimit,
	}
	return ec
}

// newExtractor uses the built-in dictionary unless a YAML file overrides it.
func newExtractor(dictionaryFile string) (*similarity.TermExtractor, error) {
	if dictionaryFile == "" {
		return similarity.NewTermExtractor(similarity.DefaultDictionary()), nil
	}
	dict, err := similarity.LoadDictionary(dictionaryFile)
	if err != nil {
		return nil, err
	}
	return similarity.NewTermExtractor(dict), nil
}

func registerPoolGauges(p *telemetry.Provider, stats func() *db.PoolStats) {
	p.RegisterGaugeFunc("db", "pool_total_conns", "Open connections in the pool.",
		func() float64 { return float64(stats().TotalConns) })
	p.RegisterGaugeFunc("db", "pool_acquired_conns", "Connections currently in use.",
		func() float64 { return float64(stats().AcquiredConns) })
	p.RegisterGaugeFunc("db", "pool_idle_conns", "Idle connections in the pool.",
		func() float64 { return float64(stats().IdleConns) })
	p.RegisterGaugeFunc("db", "pool_max_conns", "Configured pool ceiling.",
		func() float64 { return float64(stats().MaxConns) })
}
