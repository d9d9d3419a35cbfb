package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/pipeline"
)

// NewRunCmd creates the run command for a full pipeline run
func NewRunCmd() *cobra.Command {
	var (
		dryRun    bool
		force     bool
		skipFetch bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch feeds, cluster new articles and publish enriched stories",
		Long: `Run executes one full pipeline run:
  • Fetches every configured feed and stores new articles
  • Assigns unclustered articles to story clusters
  • Enriches eligible clusters (summary, translations, SEO, topics, image)
  • Publishes each enriched cluster

A run is skipped when the previous successful run finished less than
pipeline.min_run_interval ago. Use --force to run anyway.

Examples:
  # Scheduled run
  newsroom run

  # Try the configuration without a database
  newsroom run --dry-run

  # Re-process stored articles only
  newsroom run --skip-fetch --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), dryRun, pipeline.RunOptions{Force: force, SkipFetch: skipFetch}, asJSON)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use an in-memory store and no run ledger")
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the minimum run interval")
	cmd.Flags().BoolVar(&skipFetch, "skip-fetch", false, "Skip feed fetching")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print run statistics as JSON")

	return cmd
}

func runPipeline(ctx context.Context, dryRun bool, opts pipeline.RunOptions, asJSON bool) error {
	if !dryRun {
		if err := config.Get().Validate(); err != nil {
			return err
		}
	}

	p, err := buildPipeline(ctx, func(b *pipeline.Builder) {
		if dryRun {
			b.DryRun()
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stats, err := p.Runner.RunFullPipeline(ctx, opts)
	if errors.Is(err, pipeline.ErrRunTooSoon) {
		fmt.Println("⏭️  Skipped: previous run is too recent (use --force to run anyway)")
		return nil
	}

	if n, perr := p.PruneCache(ctx); perr != nil {
		logger.Warn("Failed to prune page image cache", "error", perr.Error())
	} else if n > 0 {
		logger.Debug("Pruned page image cache", "entries", n)
	}

	if stats != nil {
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if jerr := enc.Encode(stats); jerr != nil {
				return jerr
			}
		} else {
			printStats(stats)
		}
	}
	return err
}

func printStats(s *pipeline.Stats) {
	fmt.Println("📊 Pipeline Run")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Fetched:          %d\n", s.Fetched)
	fmt.Printf("Inserted:         %d\n", s.Inserted)
	fmt.Printf("Clusters touched: %d (%d new)\n", s.ClustersTouched, s.ClustersCreated)
	fmt.Printf("Summaries:        %d\n", s.Summaries)
	fmt.Printf("Categorized:      %d\n", s.Categorized)
	fmt.Printf("Published:        %d\n", s.Published)
	fmt.Printf("Duration:         %s\n", s.Duration.Round(time.Millisecond))
	if len(s.Errors) > 0 {
		fmt.Printf("\n⚠️  %d non-fatal errors:\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Printf("  • %s\n", e)
		}
	}
}
