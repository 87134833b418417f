package notifier

import (
	"strconv"

	"trainbot/internal/transport"
	"trainbot/pkg/chatfmt"
)

// KV is one entry of a structured message. A slice keeps the caller's
// insertion order, which the embed preserves.
type KV struct {
	Key   string
	Value any
}

// BuildEmbed renders key/values as a structured embed: numeric values become
// inline fields, everything else a pretty-printed block. Title and footer are
// optional.
func BuildEmbed(kvs []KV, title, footer string) *transport.Embed {
	e := &transport.Embed{Title: title, Footer: footer}
	for _, kv := range kvs {
		if s, ok := numeric(kv.Value); ok {
			e.Fields = append(e.Fields, transport.EmbedField{Name: kv.Key, Value: s, Inline: true})
			continue
		}
		e.Fields = append(e.Fields, transport.EmbedField{
			Name:   kv.Key,
			Value:  "```json\n" + chatfmt.PrettyBlock(kv.Value) + "\n```",
			Inline: false,
		})
	}
	return e
}

func numeric(v any) (string, bool) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return "", false
	}
}
