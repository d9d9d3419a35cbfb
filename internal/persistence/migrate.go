package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// MigrationManager applies embedded migrations in version order.
type MigrationManager struct {
	db  *PostgresDB
	fs  fs.FS
	log *slog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *PostgresDB) *MigrationManager {
	return &MigrationManager{
		db:  db,
		fs:  migrationFiles,
		log: logger.Get(),
	}
}

// Migrate applies every pending migration, each in its own transaction.
func (m *MigrationManager) Migrate(ctx context.Context) (int, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	available, err := LoadMigrations(m.fs)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i, st := range status {
		if st.Applied {
			continue
		}
		if err := m.apply(ctx, available[i]); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d: %w", st.Version, err)
		}
		applied++
	}

	if applied == 0 {
		m.log.Info("No pending migrations")
	} else {
		m.log.Info("Migrations applied", "count", applied)
	}
	return applied, nil
}

// Status lists every embedded migration with its applied state.
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	const ensure = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := m.db.db.ExecContext(ctx, ensure); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.db.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	available, err := LoadMigrations(m.fs)
	if err != nil {
		return nil, err
	}
	status := make([]MigrationStatus, len(available))
	for i, mig := range available {
		status[i] = MigrationStatus{Version: mig.Version, Description: mig.Description, Applied: applied[mig.Version]}
	}
	return status, nil
}

func (m *MigrationManager) apply(ctx context.Context, mig Migration) error {
	m.log.Info("Applying migration", "version", mig.Version, "description", mig.Description)

	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING`,
		mig.Version, mig.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads NNN_description.sql files from the migrations
// directory of fsys, sorted by version.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected NNN_description.sql", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: invalid version: %w", name, err)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", name, version, other)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(strings.TrimSuffix(rest, ".sql"), "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
