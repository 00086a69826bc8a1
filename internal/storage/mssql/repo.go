// Package mssql implements storage.Repository on Microsoft SQL Server.
//
// Like the postgres backend it is registry-selected; the pipeline itself only
// sees storage.Repository. Placeholders use the sqlserver driver's @pN form
// and row batches respect the server's 1000-row VALUES and 2100-parameter
// statement limits.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"postetl/internal/sanitize"
	"postetl/internal/storage"
)

const (
	maxRowsPerInsert = 1000
	maxBindVars      = 2000
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
// SQL Server runs DDL transactionally, so failure before commit leaves the
// previous table contents observable.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := spec.CheckRows(rows); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin replace %s: %w", spec.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, dropTableSQL(spec.Name)); err != nil {
		return fmt.Errorf("mssql: drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(spec)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
	}

	batch := maxBindVars / len(spec.Columns)
	if batch > maxRowsPerInsert {
		batch = maxRowsPerInsert
	}
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
			return fmt.Errorf("mssql: insert into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit replace %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Repo) Query(ctx context.Context, query string, args ...any) (*storage.Result, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mssql: query: %w", err)
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

// dropTableSQL embeds the table name both as an OBJECT_ID string literal and
// as a bracketed identifier.
func dropTableSQL(table string) string {
	return fmt.Sprintf("IF OBJECT_ID(N%s, N'U') IS NOT NULL DROP TABLE %s;",
		sanitize.Literal(table), msIdent(table))
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func columnType(t string) string {
	switch t {
	case "integer":
		return "BIGINT"
	default:
		return "NVARCHAR(MAX)"
	}
}

func createTableSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ := columnType(c.Type)
		if c.PrimaryKey && c.Type != "integer" {
			// NVARCHAR(MAX) cannot be a key column.
			typ = "NVARCHAR(450)"
		}
		col := msIdent(c.Name) + " " + typ
		if c.NotNull {
			col += " NOT NULL"
		}
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", msIdent(t.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL constructs a multi-row INSERT with @pN placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
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
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}
	return b.String(), args
}
