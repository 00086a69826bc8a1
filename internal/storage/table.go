// TableSpec lives here so backend packages can consume it without circular
// imports with the pipeline.
package storage

import (
	"fmt"
	"strings"
)

type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // portable: "integer" | "text"
	PrimaryKey bool   `json:"primary_key,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks the spec is usable by any backend.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[n] = true
		switch c.Type {
		case "integer", "text":
		default:
			return fmt.Errorf("table %s column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	return nil
}

// CheckRows verifies every row has exactly one value per column.
func (t TableSpec) CheckRows(rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("table %s: row %d has %d values, want %d", t.Name, i, len(r), len(t.Columns))
		}
	}
	return nil
}
