package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status

The migration system tracks applied migrations in the schema_migrations table
and applies new migrations in sequential order.

Examples:
  # Apply all pending migrations
  newsroom migrate up

  # Check migration status
  newsroom migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending database migrations.

Each migration is applied in its own transaction and rolled back on failure.

Example:
  newsroom migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func runMigrateUp(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting database migration")

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := persistence.NewMigrationManager(db).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("✅ Applied %d migrations\n", applied)
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := persistence.NewMigrationManager(db).Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Println("📊 Migration Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	pending := 0
	for _, m := range status {
		state := "applied"
		if !m.Applied {
			state = "pending"
			pending++
		}
		fmt.Printf("%-10d %-10s %s\n", m.Version, state, m.Description)
	}

	fmt.Println()
	fmt.Printf("Applied: %d | Pending: %d | Total: %d\n", len(status)-pending, pending, len(status))
	if pending > 0 {
		fmt.Println("\nRun 'newsroom migrate up' to apply pending migrations")
	}
	return nil
}
