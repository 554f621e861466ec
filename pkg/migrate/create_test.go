package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateTableMigrationScaffoldsTable(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.FixedZone("BDT", 6*3600))

	path, err := createSQLMigrationAt(dir, "Create Coupons Table", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260402043000_create_coupons_table.sql" {
		t.Fatalf("unexpected migration file %s", filepath.Base(path))
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, sub := range []string{"CREATE TABLE IF NOT EXISTS coupons (", "DROP TABLE IF EXISTS coupons;"} {
		if !strings.Contains(string(b), sub) {
			t.Errorf("missing %q", sub)
		}
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("scaffold should validate: %v", err)
	}

	if _, err := createSQLMigrationAt(dir, "create_coupons_table", now); err == nil {
		t.Fatal("expected duplicate version to fail")
	}
}
