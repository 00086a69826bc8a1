// Package sqlite implements storage.Repository on an embedded SQLite file.
//
// This is the default backend: the pipeline's store is addressed by a plain
// file path, loads happen on a single writer connection, and reads reuse the
// same handle. The modernc.org/sqlite driver is pure Go, so the binary stays
// cgo-free.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"postetl/internal/storage"
)

// maxBindVars caps the number of bound parameters per INSERT statement.
// SQLite's historical default limit is 999; staying under it keeps the loader
// working against older library builds.
const maxBindVars = 900

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable drops, recreates and repopulates the table in one transaction.
//
// SQLite DDL is transactional, so a failed load rolls the drop back and the
// previous table contents stay observable by the next reader.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := spec.CheckRows(rows); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin replace %s: %w", spec.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(spec.Name)); err != nil {
		return fmt.Errorf("sqlite: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(spec)); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", spec.Name, err)
	}

	batch := maxBindVars / len(spec.Columns)
	if batch < 1 {
		batch = 1
	}
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsertSQL(spec.Name, spec.ColumnNames(), rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: insert into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit replace %s: %w", spec.Name, err)
	}
	return nil
}

// Query runs a read query and materializes the full result.
//
// TEXT columns may scan as []byte depending on driver internals; they are
// normalized to string so callers see stable value types.
func (r *Repo) Query(ctx context.Context, query string, args ...any) (*storage.Result, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &storage.Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		scan := make([]any, len(cols))
		for i := range vals {
			scan[i] = &vals[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t string) string {
	switch t {
	case "integer":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func createTableSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + columnType(c.Type)
		if c.NotNull {
			col += " NOT NULL"
		}
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
// Pure and deterministic so placeholder counting is unit-testable without a
// database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}
