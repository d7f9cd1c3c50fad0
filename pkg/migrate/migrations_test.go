package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOrderLifecycleMigrationContainsSchema(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_order_lifecycle.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one order lifecycle migration, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS listings",
		"CONSTRAINT chk_listings_inventory CHECK (inventory >= 0)",
		"CREATE TABLE IF NOT EXISTS order_lines",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_order_lines_position",
		"CREATE TABLE IF NOT EXISTS transaction_items",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TYPE line_status AS ENUM ('pending', 'processing', 'shipped', 'out_for_delivery', 'delivered', 'cancelled')",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateShippedMigrations(t *testing.T) {
	if err := Validate("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations should validate: %v", err)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Validate(dir); err == nil {
		t.Fatal("expected empty dir to fail")
	}

	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("20260101000000_one.sql", "-- +goose Up\n-- +goose Down\n")
	if err := Validate(dir); err != nil {
		t.Fatalf("valid migration rejected: %v", err)
	}

	write("20260101000000_two.sql", "-- +goose Up\n-- +goose Down\n")
	if err := Validate(dir); err == nil || !strings.Contains(err.Error(), "share version") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
	os.Remove(filepath.Join(dir, "20260101000000_two.sql"))

	write("20260102000000_no_down.sql", "-- +goose Up\nSELECT 1;\n")
	if err := Validate(dir); err == nil {
		t.Fatal("expected missing down section to fail")
	}
}

func TestCreateScaffoldsValidMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := Create(dir, "Add Seller Ratings!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_seller_ratings.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := Validate(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := Create(dir, "!!!"); err == nil {
		t.Fatal("expected unusable name to fail")
	}
}
