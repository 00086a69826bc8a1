// Package sanitize makes text values safe to embed inside SQL string
// literals.
//
// All storage backends in this repo bind values as parameters, so sanitize is
// not on the write path. It exists for the places where a value must appear
// inside literal syntax (ad-hoc debugging queries, DDL defaults) and to keep
// the round-trip property testable independently of any backend:
//
//	Unquote(Quote(s)) == s   for every string s
package sanitize

import "strings"

// Quote escapes every single quote in s by doubling it, matching the literal
// delimiter convention shared by SQLite, Postgres and SQL Server.
//
// Total: any input, including the empty string and strings consisting only of
// quotes, yields a well-formed literal body.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Unquote reverses Quote, collapsing doubled single quotes.
func Unquote(s string) string {
	return strings.ReplaceAll(s, "''", "'")
}

// Literal wraps s in single quotes after escaping, producing a complete SQL
// string literal.
func Literal(s string) string {
	return "'" + Quote(s) + "'"
}
