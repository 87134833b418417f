package chatfmt

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// TruncRunes caps s at n runes, marking the cut with an ellipsis.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// PrettyBlock renders an arbitrary value as an indented block suitable for a
// code fence. Values that cannot be JSON-marshaled fall back to %+v.
func PrettyBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// Took formats an elapsed duration for progress lines.
// Sub-second noise is rounded away; zero renders as "0s".
func Took(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
