// Package report runs the pipeline's fixed analytical queries over the
// loaded posts and users tables.
//
// Every query operates on an inner join posts.user_id = users.id, so posts
// whose author is absent from the users table never appear in any result.
// SQL is assembled with squirrel against a per-backend dialect; values never
// appear in query text.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"postetl/internal/storage"
)

// Table is one rendered query result.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Dialect captures the few SQL differences between the storage backends.
type Dialect struct {
	Kind        string
	Placeholder sq.PlaceholderFormat
	// lengthFn is the character-length function name.
	lengthFn string
	// fetchFirst renders a row-limit clause as an ORDER BY suffix when the
	// backend has no LIMIT keyword (SQL Server).
	fetchFirst bool
}

// DialectFor returns the dialect for a storage backend kind. Unknown kinds
// fall back to the sqlite dialect.
func DialectFor(kind string) Dialect {
	switch kind {
	case "postgres":
		return Dialect{Kind: kind, Placeholder: sq.Dollar, lengthFn: "LENGTH"}
	case "mssql":
		return Dialect{Kind: kind, Placeholder: sq.AtP, lengthFn: "LEN", fetchFirst: true}
	default:
		return Dialect{Kind: "sqlite", Placeholder: sq.Question, lengthFn: "LENGTH"}
	}
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

// limit applies a row cap in the backend's syntax. The query must already
// carry an ORDER BY (required for OFFSET/FETCH).
func (d Dialect) limit(b sq.SelectBuilder, n uint64) sq.SelectBuilder {
	if d.fetchFirst {
		return b.Suffix(fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n))
	}
	return b.Limit(n)
}

// Engine executes the three fixed queries through a storage repository.
type Engine struct {
	repo storage.Repository
	d    Dialect
}

func NewEngine(repo storage.Repository, kind string) *Engine {
	return &Engine{repo: repo, d: DialectFor(kind)}
}

// PostsPerUser counts posts per authoring user, most prolific first.
// Users with zero posts are absent (inner join). Ties order by name so
// repeated runs print identically.
func (e *Engine) PostsPerUser(ctx context.Context) (*Table, error) {
	q := e.d.builder().
		Select("users.name AS name", "COUNT(posts.id) AS post_count").
		From("posts").
		Join("users ON posts.user_id = users.id").
		GroupBy("users.name").
		OrderBy("post_count DESC", "name ASC")

	return e.run(ctx, "Posts per user", q)
}

// LongestPost returns the single user/post pair with the longest body.
// Tie-break: smallest post id, so the result is deterministic even when
// several posts share the maximum length.
func (e *Engine) LongestPost(ctx context.Context) (*Table, error) {
	q := e.d.builder().
		Select("users.name AS name", fmt.Sprintf("%s(posts.body) AS body_length", e.d.lengthFn)).
		From("posts").
		Join("users ON posts.user_id = users.id").
		OrderBy("body_length DESC", "posts.id ASC")
	q = e.d.limit(q, 1)

	return e.run(ctx, "Longest post", q)
}

// TopAuthorsByContent sums body lengths per user and keeps the top 3.
// Fewer than three distinct authors simply yields fewer rows.
func (e *Engine) TopAuthorsByContent(ctx context.Context) (*Table, error) {
	q := e.d.builder().
		Select("users.name AS name", fmt.Sprintf("SUM(%s(posts.body)) AS total_length", e.d.lengthFn)).
		From("posts").
		Join("users ON posts.user_id = users.id").
		GroupBy("users.name").
		OrderBy("total_length DESC", "name ASC")
	q = e.d.limit(q, 3)

	return e.run(ctx, "Top authors by total content length", q)
}

// All runs the three queries in their fixed order A, B, C.
func (e *Engine) All(ctx context.Context) ([]*Table, error) {
	out := make([]*Table, 0, 3)
	for _, run := range []func(context.Context) (*Table, error){
		e.PostsPerUser,
		e.LongestPost,
		e.TopAuthorsByContent,
	} {
		tbl, err := run(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, tbl)
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, title string, q sq.SelectBuilder) (*Table, error) {
	sqlText, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("report: build %q: %w", title, err)
	}
	res, err := e.repo.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("report: %q: %w", title, err)
	}
	return &Table{Title: title, Columns: res.Columns, Rows: res.Rows}, nil
}

// Render writes the table as aligned text. Integer cells get locale-aware
// grouping so wide totals stay readable.
func Render(w io.Writer, t *Table) error {
	p := message.NewPrinter(language.English)

	if _, err := fmt.Fprintf(w, "%s\n", t.Title); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, c := range t.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)

	for _, row := range t.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, formatCell(p, v))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func formatCell(p *message.Printer, v any) string {
	switch n := v.(type) {
	case int64:
		return p.Sprintf("%d", n)
	case int:
		return p.Sprintf("%d", n)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
