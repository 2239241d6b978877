package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/homeserve-payments/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationEnforcesBalance(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CHECK (paid_cents + remaining_cents = total_cents)",
		"CHECK (is_fully_paid = (remaining_cents <= 0))",
		"CHECK (paid_cents >= 0)",
		"DROP TABLE IF EXISTS orders",
	})
}

func TestPaymentTransactionsMigration(t *testing.T) {
	assertContains(t, readMigration(t, "create_payment_transactions"), []string{
		"CREATE TABLE IF NOT EXISTS payment_transactions",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE RESTRICT",
		"retry_of_transaction_id uuid",
		"CHECK (amount_cents >= 0)",
		"DROP TABLE IF EXISTS payment_transactions",
	})
}

func TestLedgerEventsMigrationIsImmutable(t *testing.T) {
	assertContains(t, readMigration(t, "create_ledger_events"), []string{
		"CREATE TABLE IF NOT EXISTS ledger_events",
		"CHECK (amount_cents > 0)",
		"BEFORE UPDATE OR DELETE ON ledger_events",
		"DROP TABLE IF EXISTS ledger_events",
	})
}

func TestValidateAcceptsRepositoryMigrations(t *testing.T) {
	if err := migrate.Validate(os.DirFS("migrations")); err != nil {
		t.Fatalf("expected migrations to validate: %v", err)
	}
	if err := migrate.Validate(migrate.Files()); err != nil {
		t.Fatalf("expected embedded migrations to validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":      {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260101000000_dup.sql":     {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"bad-name.sql":               {Data: []byte("-- +goose Up\n")},
		"20260101000100_no_down.sql": {Data: []byte("-- +goose Up\n")},
	}
	err := migrate.Validate(fsys)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"already used", "bad-name.sql", "missing \"-- +goose Down\""} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestNewFileWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	path, err := migrate.NewFile(dir, "Add refund reason!", now)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	if filepath.Base(path) != "20260402103000_add_refund_reason.sql" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated file should validate: %v", err)
	}
	if _, err := migrate.NewFile(dir, "add refund reason", now); err == nil {
		t.Fatal("expected error when the file already exists")
	}
	if _, err := migrate.NewFile(dir, "!!!", now); err == nil {
		t.Fatal("expected error for an empty slug")
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Files(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("expected embedded migrations to mirror disk, got %d embedded and %d on disk", len(embedded), len(onDisk))
	}
}
