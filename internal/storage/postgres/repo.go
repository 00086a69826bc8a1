// Package postgres implements storage.Repository on PostgreSQL via pgx.
//
// The pipeline's default store is the embedded sqlite backend; this backend
// exists for deployments that want the loaded tables queryable by other
// tooling. Selection happens through the storage registry, so the pipeline
// code is identical for both.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postetl/internal/storage"
)

// maxBindVars caps bound parameters per INSERT. The wire protocol limit is
// 65535; staying well below keeps statements a sane size.
const maxBindVars = 32000

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// ReplaceTable drops, recreates and repopulates the table in one transaction.
// Postgres DDL is transactional, so a mid-load failure leaves the previous
// table contents in place.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := spec.CheckRows(rows); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin replace %s: %w", spec.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(spec.Name)); err != nil {
		return fmt.Errorf("postgres: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(spec)); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", spec.Name, err)
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
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: insert into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Repo) Query(ctx context.Context, query string, args ...any) (*storage.Result, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	res := &storage.Result{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t string) string {
	switch t {
	case "integer":
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func createTableSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col := pgIdent(c.Name) + " " + columnType(c.Type)
		if c.NotNull {
			col += " NOT NULL"
		}
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", pgIdent(t.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL constructs a single multi-row INSERT with $n placeholders.
// Pure so placeholder numbering is unit-testable without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}
	return b.String(), args
}
