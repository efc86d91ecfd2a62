package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/casematch/internal/config"
	"github.com/ehr/casematch/internal/domain/similarity"
	"github.com/ehr/casematch/internal/platform/db"
	"github.com/ehr/casematch/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casematch",
		Short: "Similar-patient case finder for the EMR",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(similarCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			logger := cliLogger(cmd)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := db.NewMigrator(pool, dir, cfg.DBSchema, logger).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Migrations directory")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			logger := cliLogger(cmd)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir, cfg.DBSchema, logger).Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
			fmt.Print(formatStatus(statuses))
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Migrations directory")

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func formatStatus(statuses []db.MigrationStatus) string {
	out := fmt.Sprintf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", "-"
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		out += fmt.Sprintf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
	return out
}

// similarCmd runs one search against the database and prints the response
// body the HTTP API would return.
func similarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Find patients similar to a reference patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetInt64("patient")
			typ, _ := cmd.Flags().GetString("type")
			logger := cliLogger(cmd)

			st, err := similarity.ParseSearchType(typ)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			extractor, err := newExtractor(cfg.TermDictionaryFile)
			if err != nil {
				return err
			}
			svc := similarity.NewService(similarity.NewRepo(pool), extractor, engineConfig(cfg), logger)

			results, err := svc.FindSimilarPatients(ctx, patientID, st)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(similarity.SimilarResponse{
				ReferencePatientID: patientID,
				SearchType:         st,
				Total:              len(results),
				Results:            results,
			})
		},
	}
	cmd.Flags().Int64("patient", 0, "Reference patient id")
	cmd.Flags().String("type", string(similarity.SearchAll), "Search type: all, diagnosis, symptoms")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	extractor, err := newExtractor(cfg.TermDictionaryFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load term dictionary")
	}

	metrics := telemetry.NewProvider()
	registerPoolGauges(metrics, func() *db.PoolStats { return db.GetPoolStats(pool) })

	svc := similarity.NewService(similarity.NewRepo(pool), extractor, engineConfig(cfg), logger,
		similarity.WithMetrics(metrics))

	e := newServer(cfg, logger, serverDeps{
		finder:  svc,
		health:  db.HealthHandler(pool, cfg.DBSchema),
		metrics: metrics,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: true}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// cliLogger keeps stdout for command output such as the similar JSON body.
func cliLogger(cmd *cobra.Command) zerolog.Logger {
	return newLogger(os.Getenv("ENV"), cmd.ErrOrStderr())
}
