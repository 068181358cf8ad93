package mysql

import "testing"

func TestStringOrDash(t *testing.T) {
	for in, want := range map[string]string{"": "-", "  \t": "-", "decode": "decode"} {
		if got := stringOrDash(in); got != want {
			t.Errorf("stringOrDash(%q) = %q, want %q", in, got, want)
		}
	}
}
