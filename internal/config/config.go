package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBSchema       string   `mapstructure:"DB_SCHEMA"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// TermDictionaryFile replaces the built-in keyword table when set.
	TermDictionaryFile string `mapstructure:"TERM_DICTIONARY_FILE"`

	SimilarityPoolSize         int     `mapstructure:"SIMILARITY_POOL_SIZE"`
	SimilarityResultLimit      int     `mapstructure:"SIMILARITY_RESULT_LIMIT"`
	SimilarityMinScore         float64 `mapstructure:"SIMILARITY_MIN_SCORE"`
	SimilarityWorkers          int     `mapstructure:"SIMILARITY_WORKERS"`
	SimilarityCandidateRecords int     `mapstructure:"SIMILARITY_CANDIDATE_RECORDS"`
	SimilarityCandidateLabs    int     `mapstructure:"SIMILARITY_CANDIDATE_LABS"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_SCHEMA",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"AUTH_ISSUER",
	"AUTH_JWKS_URL",
	"AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT",
	"TERM_DICTIONARY_FILE",
	"SIMILARITY_POOL_SIZE",
	"SIMILARITY_RESULT_LIMIT",
	"SIMILARITY_MIN_SCORE",
	"SIMILARITY_WORKERS",
	"SIMILARITY_CANDIDATE_RECORDS",
	"SIMILARITY_CANDIDATE_LABS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SIMILARITY_POOL_SIZE", 50)
	v.SetDefault("SIMILARITY_RESULT_LIMIT", 15)
	v.SetDefault("SIMILARITY_MIN_SCORE", 0.15)
	v.SetDefault("SIMILARITY_WORKERS", 8)
	v.SetDefault("SIMILARITY_CANDIDATE_RECORDS", 20)
	v.SetDefault("SIMILARITY_CANDIDATE_LABS", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate refuses configurations that would serve patient data without
// authentication or with a degenerate similarity search.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthIssuer != "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ISSUER is set without AUTH_SIGNING_KEY")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	positive := map[string]int{
		"SIMILARITY_POOL_SIZE":         c.SimilarityPoolSize,
		"SIMILARITY_RESULT_LIMIT":      c.SimilarityResultLimit,
		"SIMILARITY_WORKERS":           c.SimilarityWorkers,
		"SIMILARITY_CANDIDATE_RECORDS": c.SimilarityCandidateRecords,
		"SIMILARITY_CANDIDATE_LABS":    c.SimilarityCandidateLabs,
	}
	for _, key := range envKeys {
		if n, ok := positive[key]; ok && n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, n)
		}
	}
	if c.SimilarityMinScore < 0 || c.SimilarityMinScore >= 1 {
		return fmt.Errorf("SIMILARITY_MIN_SCORE must be in [0, 1), got %g", c.SimilarityMinScore)
	}
	return nil
}
