package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/pipeline"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsroom",
		Short: "Newsroom clusters Sri Lankan news feeds into trilingual stories.",
		Long: `Newsroom fetches RSS/Atom feeds from configured Sri Lankan news sources,
groups articles describing the same story into clusters, and publishes each
cluster with a summary, headline, SEO metadata, topics and a cover image in
English, Sinhala and Tamil.

Run it from cron:
  newsroom run

Configuration is read from .newsroom.yaml in the current directory or $HOME,
and from environment variables such as DATABASE_URL and GEMINI_API_KEY.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newsroom.yaml)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewEnrichCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewRunsCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	level := cfg.Logging.Level
	if config.IsDebugMode() {
		level = "debug"
	}
	logger.Configure(level, cfg.Logging.Format)
}

// buildPipeline wires the pipeline from the loaded configuration. The caller
// must Close the result.
func buildPipeline(ctx context.Context, configure func(b *pipeline.Builder)) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder(config.Get())
	if configure != nil {
		configure(b)
	}
	p, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, nil
}

// getDatabase opens the configured Postgres database.
func getDatabase(ctx context.Context) (*persistence.PostgresDB, error) {
	cfg := config.GetDatabase()
	if cfg.URL == "" {
		return nil, fmt.Errorf("database connection string not configured (set database.url in config or DATABASE_URL env var)")
	}
	db, err := persistence.NewPostgresDB(ctx, cfg.URL, persistence.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.ConnMaxLifetime, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
