package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/store"
)

// NewRunsCmd creates the runs command
func NewRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		Long: `Show recent pipeline runs from the local run ledger, newest first.

Example:
  newsroom runs --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")

	return cmd
}

func runRuns(ctx context.Context, limit int) error {
	path := config.GetPipeline().LedgerPath
	if path == "" {
		return fmt.Errorf("run ledger not configured (set pipeline.ledger_path)")
	}

	ledger, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	runs, err := ledger.RecentRuns(ctx, max(1, limit))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, r := range runs {
		icon := "✅"
		switch r.Status {
		case store.RunFailed:
			icon = "❌"
		case store.RunSkipped:
			icon = "⏭️ "
		case store.RunRunning:
			icon = "⏳"
		}

		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%s %s  %-9s %8s  %s\n", icon, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, duration, r.ID)
		if r.Error != "" {
			fmt.Printf("   error: %s\n", r.Error)
		}
		if len(r.Stats) > 0 {
			fmt.Printf("   stats: %s\n", r.Stats)
		}
	}
	return nil
}
