package sanitize

import "testing"

func TestQuoteUnquote_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "plain", in: "hello world"},
		{name: "empty", in: ""},
		{name: "single_quote", in: "a'b"},
		{name: "only_quotes", in: "'''"},
		{name: "injection_attempt", in: "'; DROP TABLE posts; --"},
		{name: "doubled_quotes_in_input", in: "it''s"},
		{name: "unicode", in: "héllo 世界 '—' done"},
		{name: "newlines_and_tabs", in: "line1\nline2\tend"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Unquote(Quote(tt.in))
			if got != tt.in {
				t.Fatalf("Unquote(Quote(%q)) = %q, want %q", tt.in, got, tt.in)
			}
		})
	}
}

func TestQuote_Escaping(t *testing.T) {
	t.Parallel()

	if got := Quote("a'b"); got != "a''b" {
		t.Fatalf("Quote(a'b) = %q, want a''b", got)
	}
	if got := Quote("'"); got != "''" {
		t.Fatalf("Quote(') = %q, want ''", got)
	}
	if got := Quote(""); got != "" {
		t.Fatalf("Quote(empty) = %q, want empty", got)
	}
}

func TestLiteral(t *testing.T) {
	t.Parallel()

	if got := Literal("O'Brien"); got != "'O''Brien'" {
		t.Fatalf("Literal(O'Brien) = %q", got)
	}
	if got := Literal(""); got != "''" {
		t.Fatalf("Literal(empty) = %q", got)
	}
}
