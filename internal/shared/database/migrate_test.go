package database

import (
	"strings"
	"testing"
)

// TestEmbeddedMigrations tests that migrations are embedded and ordered
func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(migrationsFS)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("Expected at least 2 migrations, got %d", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Errorf("Migrations out of order: %s before %s", files[i-1], files[i])
		}
	}
	for _, f := range files {
		if !strings.HasSuffix(f, ".sql") {
			t.Errorf("Unexpected file %s", f)
		}
	}
}

// TestPendingMigrations tests selection of unapplied migrations
func TestPendingMigrations(t *testing.T) {
	files := []string{"001_reference_data.sql", "002_complaints.sql", "003_more.sql"}
	applied := map[string]bool{"001_reference_data": true}

	pending := pendingMigrations(files, applied)
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending, got %d", len(pending))
	}
	if pending[0] != "002_complaints.sql" || pending[1] != "003_more.sql" {
		t.Errorf("Unexpected pending order: %v", pending)
	}
}
