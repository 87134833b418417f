package chatfmt

import (
	"testing"
	"time"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{name: "shorter stays", s: "abc", n: 10, want: "abc"},
		{name: "exact stays", s: "abc", n: 3, want: "abc"},
		{name: "truncates with ellipsis", s: "abcdef", n: 3, want: "abc…"},
		{name: "multibyte counts runes", s: "héllo wörld", n: 5, want: "héllo…"},
		{name: "zero yields empty", s: "abc", n: 0, want: ""},
		{name: "empty input", s: "", n: 5, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncRunes(tt.s, tt.n); got != tt.want {
				t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}

func TestPrettyBlock(t *testing.T) {
	t.Parallel()
	got := PrettyBlock(map[string]any{"f1": 0.91})
	want := "{\n  \"f1\": 0.91\n}"
	if got != want {
		t.Fatalf("PrettyBlock = %q, want %q", got, want)
	}

	// Unmarshalable values fall back to %+v instead of failing.
	if got := PrettyBlock(func() {}); got == "" {
		t.Fatal("PrettyBlock fallback produced empty string")
	}
}

func TestTook(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "0s"},
		{d: 300 * time.Millisecond, want: "0s"},
		{d: 1490 * time.Millisecond, want: "1s"},
		{d: 90 * time.Second, want: "1m30s"},
		{d: -5 * time.Second, want: "0s"},
	}
	for _, tt := range tests {
		if got := Took(tt.d); got != tt.want {
			t.Fatalf("Took(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
