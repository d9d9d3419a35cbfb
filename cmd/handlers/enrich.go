package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/pipeline"
)

// NewEnrichCmd creates the enrich command
func NewEnrichCmd() *cobra.Command {
	var (
		clusterIDs []string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich and publish eligible clusters",
		Long: `Enrich runs the enrichment stages each eligible cluster needs and publishes
it. Clusters whose summary, headlines, SEO fields and image are all present
and above the quality thresholds are skipped without any generator call.

Examples:
  # Most recently active clusters, up to enrichment.batch_limit
  newsroom enrich

  # A single cluster
  newsroom enrich --cluster 6f1c2b1e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd.Context(), pipeline.EnrichOptions{IDs: clusterIDs, Limit: limit})
		},
	}

	cmd.Flags().StringSliceVar(&clusterIDs, "cluster", nil, "Cluster IDs to enrich (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum clusters to consider (default enrichment.batch_limit)")

	return cmd
}

func runEnrich(ctx context.Context, opts pipeline.EnrichOptions) error {
	p, err := buildPipeline(ctx, func(b *pipeline.Builder) { b.WithoutLedger() })
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	if p.Orchestrator == nil {
		return fmt.Errorf("enrichment is disabled: no generator configured")
	}

	res, err := p.Orchestrator.EnrichAll(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Considered %d clusters: %d published, %d skipped, %d summaries, %d categorized\n",
		res.Considered, res.Published, res.Skipped, res.Summaries, res.Categorized)
	for _, r := range res.Reports {
		switch {
		case r.Skipped:
			fmt.Printf("  ⏭️  %s (%s)\n", r.ClusterID, r.Reason)
		case r.Published:
			fmt.Printf("  ✅ %s → %s [%s]\n", r.ClusterID, r.Slug, r.Needs)
		default:
			fmt.Printf("  ❌ %s\n", r.ClusterID)
		}
	}
	for _, e := range res.Errors {
		fmt.Printf("  ⚠️  %s\n", e)
	}
	return nil
}
