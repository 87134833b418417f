package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trainbot/internal/transport"
	logx "trainbot/pkg/logx"
)

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New("", Config{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New("   ", Config{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestChannels(t *testing.T) {
	t.Parallel()
	s, err := New("tok", Config{ChatID: -100123}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chs, err := s.Channels(context.Background())
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(chs) != 1 || chs[0].ID != "-100123" || !chs[0].CanSend {
		t.Fatalf("Channels = %+v", chs)
	}

	// Without a configured chat there is nothing to write to.
	s2, _ := New("tok", Config{}, logx.Nop())
	chs, err = s2.Channels(context.Background())
	if err != nil || len(chs) != 0 {
		t.Fatalf("Channels without chat id = (%v, %v)", chs, err)
	}
}

func TestFetchUnknownMessage(t *testing.T) {
	t.Parallel()
	s, _ := New("tok", Config{ChatID: 1}, logx.Nop())
	if _, err := s.Fetch(context.Background(), "1", "99"); !errors.Is(err, transport.ErrMessageNotFound) {
		t.Fatalf("Fetch = %v, want ErrMessageNotFound", err)
	}
	if err := s.Edit(context.Background(), "1", "99", transport.Patch{}); !errors.Is(err, transport.ErrMessageNotFound) {
		t.Fatalf("Edit = %v, want ErrMessageNotFound", err)
	}
	if err := s.Delete(context.Background(), "1", "99"); !errors.Is(err, transport.ErrMessageNotFound) {
		t.Fatalf("Delete = %v, want ErrMessageNotFound", err)
	}
}

func TestIsGone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "edit gone", err: errors.New("telegram: message to edit not found (400)"), want: true},
		{name: "delete gone", err: errors.New("Bad Request: message to delete not found"), want: true},
		{name: "generic gone", err: errors.New("message can't be found"), want: true},
		{name: "other error", err: errors.New("too many requests"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isGone(tt.err); got != tt.want {
				t.Fatalf("isGone(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRenderBody(t *testing.T) {
	t.Parallel()

	t.Run("plain text is escaped", func(t *testing.T) {
		t.Parallel()
		if got := renderBody("a < b", nil); got != "a &lt; b" {
			t.Fatalf("renderBody = %q", got)
		}
	})

	t.Run("embed renders title fields footer", func(t *testing.T) {
		t.Parallel()
		got := renderBody("", &transport.Embed{
			Title: "Results",
			Fields: []transport.EmbedField{
				{Name: "loss", Value: "1.5", Inline: true},
				{Name: "report", Value: "{\n  \"f1\": 0.9\n}", Inline: false},
			},
			Footer: "Global step: 10 | Run: bert",
		})

		wantParts := []string{
			"<b>Results</b>",
			"<b>loss</b>: <code>1.5</code>",
			"<b>report</b>\n<pre><code>",
			"<i>Global step: 10 | Run: bert</i>",
		}
		for _, part := range wantParts {
			if !strings.Contains(got, part) {
				t.Fatalf("renderBody missing %q in %q", part, got)
			}
		}
		if strings.Index(got, "<b>Results</b>") > strings.Index(got, "<i>Global step") {
			t.Fatalf("title after footer: %q", got)
		}
	})

	t.Run("text and embed combine", func(t *testing.T) {
		t.Parallel()
		got := renderBody("hello", &transport.Embed{Title: "T"})
		if !strings.HasPrefix(got, "hello\n<b>T</b>") {
			t.Fatalf("renderBody = %q", got)
		}
	})
}
