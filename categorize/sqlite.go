package categorize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ExportSQLite writes the table into tableName of the SQLite database at path, replacing any
// previous table of that name. Every column is stored as TEXT.
func ExportSQLite(ctx context.Context, path, tableName string, t *Table) error {
	if path == "" {
		return errors.New("ExportSQLite: path is empty")
	}
	if tableName == "" {
		return errors.New("ExportSQLite: table name is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("ExportSQLite: open: %w", err)
	}
	defer db.Close()

	if err := writeSQLiteTable(ctx, db, tableName, t); err != nil {
		return fmt.Errorf("ExportSQLite: %w", err)
	}
	return nil
}

func writeSQLiteTable(ctx context.Context, db *sql.DB, tableName string, t *Table) error {
	header := t.Header()
	cols := make([]string, len(header))
	defs := make([]string, len(header))
	for i, h := range header {
		name := h
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		cols[i] = quoteIdent(name)
		defs[i] = cols[i] + " TEXT"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := quoteIdent(tableName)
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+table+` (`+strings.Join(defs, ", ")+`)`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	ph := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (`+strings.Join(cols, ", ")+`) VALUES (`+ph+`)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for row, rec := range t.rows {
		for i, v := range rec {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", row, err)
		}
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
