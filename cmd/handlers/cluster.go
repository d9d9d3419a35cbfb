package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/pipeline"
)

// NewClusterCmd creates the cluster command
func NewClusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Assign unclustered articles to story clusters",
		Long: `Cluster assigns every stored article without a cluster, oldest first, to
the most similar active cluster or to a new one. No feeds are fetched and no
enrichment runs.

Example:
  newsroom cluster`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(cmd.Context())
		},
	}
}

func runCluster(ctx context.Context) error {
	p, err := buildPipeline(ctx, func(b *pipeline.Builder) {
		b.WithoutEnrichment().WithoutLedger()
	})
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stats := &pipeline.Stats{}
	if _, err := p.Runner.Cluster(ctx, stats); err != nil {
		return err
	}

	fmt.Printf("✅ Clusters touched: %d (%d new)\n", stats.ClustersTouched, stats.ClustersCreated)
	for _, e := range stats.Errors {
		fmt.Printf("  ⚠️  %s\n", e)
	}
	return nil
}
