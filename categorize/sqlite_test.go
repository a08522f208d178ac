package categorize

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestExportSQLite(t *testing.T) {
	t.Parallel()

	tab, err := NewTable([]string{"Title", "Predicted Path"})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	tab.AppendRow(map[string]string{"Title": "Headset", "Predicted Path": "Electronics>Audio>Headphones"})
	tab.AppendRow(map[string]string{"Title": `Bob's "best" cable`, "Predicted Path": "Electronics>Unknown>Unknown"})

	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()
	if err := ExportSQLite(ctx, path, "baseline_with_definitions", tab); err != nil {
		t.Fatalf("ExportSQLite: %v", err)
	}
	// A second export replaces the table rather than appending.
	if err := ExportSQLite(ctx, path, "baseline_with_definitions", tab); err != nil {
		t.Fatalf("ExportSQLite again: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "baseline_with_definitions"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d, want 2", n)
	}

	var pred string
	if err := db.QueryRowContext(ctx, `SELECT "Predicted Path" FROM "baseline_with_definitions" WHERE "Title" = ?`, `Bob's "best" cable`).Scan(&pred); err != nil {
		t.Fatalf("select: %v", err)
	}
	if pred != "Electronics>Unknown>Unknown" {
		t.Fatalf("pred=%q", pred)
	}
}

func TestExportSQLite_RequiresNames(t *testing.T) {
	t.Parallel()

	tab, _ := NewTable([]string{"Title"})
	if err := ExportSQLite(context.Background(), "", "t", tab); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := ExportSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"), "", tab); err == nil {
		t.Fatalf("expected error for empty table name")
	}
}
