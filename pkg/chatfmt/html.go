package chatfmt

import (
	"html"
	"strings"
)

// H is a fragment of Telegram-safe HTML (ParseMode="HTML"). Treat values as
// already escaped; build them with Esc and the tag helpers below.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text for HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML. Use sparingly.
func Raw(s string) H { return H(s) }

// B, I and Code wrap escaped text in the corresponding tag.
func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

func tag(name, s string) H {
	return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">")
}

// Pre renders a preformatted block. Telegram requires balanced tags per
// message chunk, so split very long content into multiple blocks yourself.
func Pre(s string) H {
	return H("<pre><code>" + html.EscapeString(s) + "</code></pre>")
}

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		kept = append(kept, string(p))
	}
	return H(strings.Join(kept, sep))
}
