package persistence

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations(migrationFiles)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("Expected migration 1 first, got %+v", migrations)
	}
	if migrations[0].Description != "initial schema" {
		t.Errorf("Unexpected description %q", migrations[0].Description)
	}
	for _, table := range []string{"articles", "clusters", "cluster_articles", "summaries"} {
		if !strings.Contains(migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("Expected schema to create %s", table)
		}
	}
}

func TestLoadMigrations_OrderAndValidation(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_add_index.sql":  {Data: []byte("CREATE INDEX x;")},
		"migrations/002_second.sql":     {Data: []byte("SELECT 2;")},
		"migrations/README.md":          {Data: []byte("ignored")},
		"migrations/001_first_step.sql": {Data: []byte("SELECT 1;")},
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	var versions []int
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[1] != 2 || versions[2] != 10 {
		t.Errorf("Unexpected order %v", versions)
	}
	if migrations[0].Description != "first step" {
		t.Errorf("Unexpected description %q", migrations[0].Description)
	}

	bad := []fstest.MapFS{
		{"migrations/abc_bad.sql": {Data: []byte("")}},
		{"migrations/nounderscore.sql": {Data: []byte("")}},
		{"migrations/001_a.sql": {Data: []byte("")}, "migrations/001_b.sql": {Data: []byte("")}},
	}
	for i, fsys := range bad {
		if _, err := LoadMigrations(fsys); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
