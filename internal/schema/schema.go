// Package schema validates raw untyped records against a fixed contract.
//
// A Contract plays the role a struct tag or ORM mapping would play in a
// static pipeline: it names the required fields of one record kind, the type
// each must carry, and the storage column each lands in. Validation is
// all-or-nothing per collection: either every record conforms and a fully
// typed row set is returned, or a *ValidationError describing every offending
// record/field is returned and nothing is persisted downstream.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldType is the declared type of a contract field.
type FieldType string

const (
	// TypeInteger requires an integer-valued input (JSON number with no
	// fractional part, or a native Go integer).
	TypeInteger FieldType = "integer"
	// TypeText requires a string-valued input. Numbers are accepted and
	// rendered to their decimal form.
	TypeText FieldType = "text"
)

// Field declares one field of a record contract.
//
// Name is the key in the source record (e.g. "userId"). Column is the
// normalized storage column name (e.g. "user_id"); when empty, Name is used.
// This mirrors the header_map convention used elsewhere in this codebase:
// source keys keep their upstream spelling, tables use snake_case.
type Field struct {
	Name     string
	Column   string
	Type     FieldType
	Required bool
}

// Contract is the fixed shape of one record kind.
type Contract struct {
	// Name identifies the collection in error messages ("posts", "users").
	Name   string
	Fields []Field
}

// Columns returns the storage column name of every contract field, in
// declaration order.
func (c Contract) Columns() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.ColumnName()
	}
	return out
}

// ColumnName returns the storage column for the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Row is one validated record with values aligned to Contract.Fields order.
// Integer fields hold int64, text fields hold string.
type Row []any

// Issue describes a single field of a single record that failed validation.
type Issue struct {
	Record int // zero-based index into the input collection
	Field  string
	Reason string
}

// ValidationError reports every issue found while validating a collection.
type ValidationError struct {
	Collection string
	Issues     []Issue
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validate %s: %d issue(s)", e.Collection, len(e.Issues))
	// Keep the message bounded; full details remain on Issues.
	max := len(e.Issues)
	if max > 5 {
		max = 5
	}
	for _, iss := range e.Issues[:max] {
		fmt.Fprintf(&b, "; record %d field %q: %s", iss.Record, iss.Field, iss.Reason)
	}
	if len(e.Issues) > max {
		fmt.Fprintf(&b, "; and %d more", len(e.Issues)-max)
	}
	return b.String()
}

// Apply validates every record against the contract and returns typed rows in
// input order.
//
// Behavior:
//   - Extra fields in a record are ignored.
//   - A missing or null required field is an issue.
//   - A wrong-typed field is an issue (integer fields reject fractional
//     numbers and strings; text fields reject booleans, objects, arrays).
//   - On any issue, Apply returns (nil, *ValidationError) carrying every
//     issue found across the whole collection. Partial output is never
//     produced.
func Apply(records []map[string]any, c Contract) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	var issues []Issue

	for i, rec := range records {
		row := make(Row, len(c.Fields))
		ok := true

		for j, f := range c.Fields {
			raw, present := rec[f.Name]
			if !present || raw == nil {
				if f.Required {
					issues = append(issues, Issue{Record: i, Field: f.Name, Reason: "missing required field"})
					ok = false
				}
				continue
			}

			v, err := coerce(raw, f.Type)
			if err != nil {
				issues = append(issues, Issue{Record: i, Field: f.Name, Reason: err.Error()})
				ok = false
				continue
			}
			row[j] = v
		}

		if ok {
			rows = append(rows, row)
		}
	}

	if len(issues) > 0 {
		sort.SliceStable(issues, func(a, b int) bool { return issues[a].Record < issues[b].Record })
		return nil, &ValidationError{Collection: c.Name, Issues: issues}
	}
	return rows, nil
}

// coerce converts a raw JSON-decoded value into the declared field type.
//
// The fetch layer decodes with json.Decoder.UseNumber, so numeric inputs
// normally arrive as json.Number. float64 is still handled for callers that
// decode without UseNumber (tests, alternate sources).
func coerce(raw any, t FieldType) (any, error) {
	switch t {
	case TypeInteger:
		switch v := raw.(type) {
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got number %q", v.String())
			}
			return n, nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("expected integer, got fractional number %v", v)
			}
			return int64(v), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}

	case TypeText:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		default:
			return nil, fmt.Errorf("expected text, got %T", raw)
		}

	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}
