package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
chat:
  backend: discord
  token: abc
  channel: training
  rate_per_sec: 3
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
reporter:
  transient_delay: 2s
heartbeat:
  enabled: true
  schedule: "*/5 * * * *"
history:
  path: runs.db
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Backend != "discord" || cfg.Chat.Token != "abc" || cfg.Chat.Channel != "training" {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
	if cfg.Chat.RatePerSec != 3 {
		t.Fatalf("rate_per_sec = %d", cfg.Chat.RatePerSec)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Reporter.TransientDelay != "2s" {
		t.Fatalf("reporter = %+v", cfg.Reporter)
	}
	if !cfg.Heartbeat.Enabled || cfg.Heartbeat.Schedule != "*/5 * * * *" {
		t.Fatalf("heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.History == nil || cfg.History.Path != "runs.db" {
		t.Fatalf("history = %+v", cfg.History)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"chat":{"backend":"telegram","channel_id":"-100123"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Chat.Backend != "telegram" || cfg.Chat.ChannelID != "-100123" {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
	if cfg.History != nil {
		t.Fatalf("history should be nil when omitted, got %+v", cfg.History)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
chat:
  token: abc
  chanel: typo-here
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	} else if !strings.Contains(err.Error(), "chanel") {
		t.Fatalf("error does not name the unknown field: %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"chat":{},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty is zero", raw: "", want: 0},
		{name: "spaces only", raw: "  ", want: 0},
		{name: "valid", raw: "1m30s", want: 90 * time.Second},
		{name: "millis", raw: "500ms", want: 500 * time.Millisecond},
		{name: "negative rejected", raw: "-1s", wantErr: true},
		{name: "garbage rejected", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationField("chat.ready_timeout", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received wrong config")
		}
	default:
		t.Fatal("subscriber did not receive the published config")
	}

	// A slow subscriber keeps only the newest config.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	select {
	case got := <-ch:
		if got != second {
			t.Fatal("expected newest config after overflow")
		}
	default:
		t.Fatal("no config queued after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after Unsubscribe")
	}
	// Unsubscribing twice is harmless.
	m.Unsubscribe(ch)
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := `
chat:
  token: abc
logging:
  level: %s
  console: true
  file:
    enabled: false
    path: ""
`
	writeFile(t, path, strings.ReplaceAll(base, "%s", "info"))

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- m.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, strings.ReplaceAll(base, "%s", "debug"))

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("reloaded level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload within deadline")
	}
	if got := m.Get(); got.Logging.Level != "debug" {
		t.Fatalf("Get after reload = %q", got.Logging.Level)
	}

	cancel()
	select {
	case err := <-watchDone:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}
