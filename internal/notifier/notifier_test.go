package notifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"trainbot/internal/transport"
	logx "trainbot/pkg/logx"
)

// fakeSession is an in-memory chat backend. It is driven from the worker
// goroutine only, matching the transport.Session contract.
type fakeSession struct {
	loginErr   error
	loginDelay time.Duration
	channels   []transport.Channel
	chanErr    error

	nextID int
	msgs   map[string]*transport.Message

	sends   int
	edits   int
	deletes int
	closes  int
}

func newFakeSession(channels ...transport.Channel) *fakeSession {
	return &fakeSession{channels: channels, msgs: map[string]*transport.Message{}}
}

func (s *fakeSession) Login(ctx context.Context) error {
	if s.loginDelay > 0 {
		select {
		case <-time.After(s.loginDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.loginErr
}

func (s *fakeSession) Channels(ctx context.Context) ([]transport.Channel, error) {
	if s.chanErr != nil {
		return nil, s.chanErr
	}
	return s.channels, nil
}

func (s *fakeSession) Send(ctx context.Context, channelID, text string, embed *transport.Embed) (string, error) {
	s.sends++
	s.nextID++
	id := fmt.Sprintf("m%d", s.nextID)
	s.msgs[id] = &transport.Message{ID: id, ChannelID: channelID, Text: text, Embed: embed}
	return id, nil
}

func (s *fakeSession) Fetch(ctx context.Context, channelID, messageID string) (*transport.Message, error) {
	msg, ok := s.msgs[messageID]
	if !ok {
		return nil, transport.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *fakeSession) Edit(ctx context.Context, channelID, messageID string, p transport.Patch) error {
	msg, ok := s.msgs[messageID]
	if !ok {
		return transport.ErrMessageNotFound
	}
	s.edits++
	if p.Text != nil {
		msg.Text = *p.Text
	}
	if p.ClearEmbed {
		msg.Embed = nil
	} else if p.Embed != nil {
		msg.Embed = p.Embed
	}
	return nil
}

func (s *fakeSession) Delete(ctx context.Context, channelID, messageID string) error {
	if _, ok := s.msgs[messageID]; !ok {
		return transport.ErrMessageNotFound
	}
	s.deletes++
	delete(s.msgs, messageID)
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closes++
	return nil
}

func writableChannel(id, name string, pos int) transport.Channel {
	return transport.Channel{ID: id, Name: name, Position: pos, CanSend: true}
}

func testConfig() Config {
	return Config{
		Token:         "test-token",
		ChannelName:   "training",
		ReadyTimeout:  2 * time.Second,
		CallTimeout:   2 * time.Second,
		ShutdownGrace: time.Second,
		RatePerSec:    1000,
	}
}

func newTestClient(t *testing.T, sess *fakeSession, cfg Config) *Client {
	t.Helper()
	c := New(cfg, func(string) (transport.Session, error) { return sess, nil }, logx.Nop())
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func mustInit(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestInitNoToken(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvChannel, "")

	cfg := testConfig()
	cfg.Token = ""
	c := newTestClient(t, newFakeSession(), cfg)

	if err := c.Init(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Init error = %v, want ErrNoToken", err)
	}
	if c.Initialized() {
		t.Fatal("client initialized after failed Init")
	}
	if id, err := c.SendMessage(context.Background(), "hello", nil); id != "" || err != nil {
		t.Fatalf("SendMessage after failed Init = (%q, %v), want no-op", id, err)
	}
}

func TestInitAuthFailure(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	sess.loginErr = errors.New("401 unauthorized")
	c := newTestClient(t, sess, testConfig())

	if err := c.Init(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("Init error = %v, want ErrAuth", err)
	}
	if c.Initialized() {
		t.Fatal("client initialized after auth failure")
	}
}

func TestInitReadyTimeout(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	sess.loginDelay = 10 * time.Second

	cfg := testConfig()
	cfg.ReadyTimeout = 50 * time.Millisecond
	cfg.ShutdownGrace = 500 * time.Millisecond
	c := newTestClient(t, sess, cfg)

	if err := c.Init(context.Background()); !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Init error = %v, want ErrConnectTimeout", err)
	}
	if c.Initialized() {
		t.Fatal("client initialized after ready timeout")
	}
}

func TestInitChannelNotFound(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(
		transport.Channel{ID: "1", Name: "training", Position: 0, CanSend: false},
		writableChannel("2", "random", 1),
	)
	cfg := testConfig()
	cfg.DefaultChannel = "general"
	c := newTestClient(t, sess, cfg)

	if err := c.Init(context.Background()); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("Init error = %v, want ErrChannelNotFound", err)
	}
}

func TestInitNoGuild(t *testing.T) {
	t.Parallel()
	sess := newFakeSession()
	sess.chanErr = transport.ErrNoGuild
	c := newTestClient(t, sess, testConfig())

	if err := c.Init(context.Background()); !errors.Is(err, ErrNoGuild) {
		t.Fatalf("Init error = %v, want ErrNoGuild", err)
	}
}

func TestInitTwiceIsNoop(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())

	mustInit(t, c)
	mustInit(t, c)
	if got := c.ChannelID(); got != "1" {
		t.Fatalf("ChannelID = %q, want %q", got, "1")
	}
}

func TestResolveChannel(t *testing.T) {
	t.Parallel()
	channels := []transport.Channel{
		{ID: "30", Name: "general", Position: 2, CanSend: true},
		{ID: "20", Name: "training", Position: 1, CanSend: true},
		{ID: "10", Name: "training", Position: 0, CanSend: false},
		{ID: "21", Name: "training", Position: 1, CanSend: true},
		{ID: "40", Name: "logs", Position: 3, CanSend: true},
	}

	tests := []struct {
		name        string
		chName      string
		chID        string
		defaultName string
		wantID      string
		wantRule    string
	}{
		{name: "by name skips unsendable and prefers lowest position then id", chName: "training", wantID: "20", wantRule: "name"},
		{name: "by id", chID: "40", wantID: "40", wantRule: "id"},
		{name: "name miss falls back to id", chName: "missing", chID: "40", wantID: "40", wantRule: "id"},
		{name: "default name last", chName: "missing", chID: "99", defaultName: "general", wantID: "30", wantRule: "default-name"},
		{name: "unsendable id rejected", chID: "10", wantID: "", wantRule: ""},
		{name: "nothing matches", chName: "missing", wantID: "", wantRule: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, rule := resolveChannel(channels, tt.chName, tt.chID, tt.defaultName)
			if id != tt.wantID || rule != tt.wantRule {
				t.Fatalf("resolveChannel = (%q, %q), want (%q, %q)", id, rule, tt.wantID, tt.wantRule)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	id, err := c.SendMessage(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id == "" {
		t.Fatal("SendMessage returned empty id")
	}

	msg, err := c.MessageByID(context.Background(), id)
	if err != nil {
		t.Fatalf("MessageByID: %v", err)
	}
	if msg == nil || msg.Text != "hello" {
		t.Fatalf("MessageByID = %+v, want text %q", msg, "hello")
	}

	if got := c.Snapshot(); len(got) != 1 || got[0].MessageID != id {
		t.Fatalf("Snapshot = %+v, want one item for %s", got, id)
	}
}

func TestSendMessageEmptyIsNoop(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	id, err := c.SendMessage(context.Background(), "", nil)
	if id != "" || err != nil {
		t.Fatalf("empty SendMessage = (%q, %v), want no-op", id, err)
	}
	if sess.sends != 0 {
		t.Fatalf("backend sends = %d, want 0", sess.sends)
	}
}

func TestMessageByIDMissing(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	msg, err := c.MessageByID(context.Background(), "never-sent")
	if msg != nil || err != nil {
		t.Fatalf("MessageByID(missing) = (%+v, %v), want (nil, nil)", msg, err)
	}
}

func TestUpdateOrSendEditsInPlace(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	id, err := c.SendMessage(context.Background(), "train: 0% | 0 / 10", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	next := "train: 50% | 5 / 10"
	got, err := c.UpdateOrSend(context.Background(), id, transport.Patch{Text: &next})
	if err != nil {
		t.Fatalf("UpdateOrSend: %v", err)
	}
	if got != id {
		t.Fatalf("UpdateOrSend id = %q, want %q (edit in place)", got, id)
	}

	msg, err := c.MessageByID(context.Background(), id)
	if err != nil || msg == nil {
		t.Fatalf("MessageByID after edit = (%+v, %v)", msg, err)
	}
	if msg.Text != next {
		t.Fatalf("edited text = %q, want %q", msg.Text, next)
	}
	if sess.sends != 1 || sess.edits != 1 {
		t.Fatalf("backend calls = %d sends, %d edits; want 1 and 1", sess.sends, sess.edits)
	}
}

func TestUpdateOrSendPatchSemantics(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	embed := &transport.Embed{Title: "Results"}
	id, err := c.SendMessage(context.Background(), "text", embed)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// Omitted fields stay untouched.
	next := "edited"
	if _, err := c.UpdateOrSend(context.Background(), id, transport.Patch{Text: &next}); err != nil {
		t.Fatalf("UpdateOrSend: %v", err)
	}
	msg, _ := c.MessageByID(context.Background(), id)
	if msg == nil || msg.Text != "edited" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Embed == nil || msg.Embed.Title != "Results" {
		t.Fatalf("text-only patch touched the embed: %+v", msg.Embed)
	}

	// Explicitly empty fields clear.
	empty := ""
	if _, err := c.UpdateOrSend(context.Background(), id, transport.Patch{Text: &empty, ClearEmbed: true}); err != nil {
		t.Fatalf("UpdateOrSend: %v", err)
	}
	msg, _ = c.MessageByID(context.Background(), id)
	if msg == nil || msg.Text != "" || msg.Embed != nil {
		t.Fatalf("clearing patch left residue: %+v", msg)
	}
}

func TestUpdateOrSendMissingFallsBack(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	text := "fresh line"
	id, err := c.UpdateOrSend(context.Background(), "vanished", transport.Patch{Text: &text})
	if err != nil {
		t.Fatalf("UpdateOrSend: %v", err)
	}
	if id == "" {
		t.Fatal("fallback send returned empty id")
	}
	if sess.edits != 0 || sess.sends != 1 {
		t.Fatalf("backend calls = %d edits, %d sends; want 0 and 1", sess.edits, sess.sends)
	}

	msg, err := c.MessageByID(context.Background(), id)
	if err != nil || msg == nil || msg.Text != text {
		t.Fatalf("fallback message = (%+v, %v), want text %q", msg, err, text)
	}
}

func TestUpdateOrSendEmptyIDSends(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	text := "first write"
	id, err := c.UpdateOrSend(context.Background(), "", transport.Patch{Text: &text})
	if err != nil || id == "" {
		t.Fatalf("UpdateOrSend(\"\") = (%q, %v), want fresh id", id, err)
	}
}

func TestDeleteAfterDelay(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())
	mustInit(t, c)

	id, err := c.SendMessage(context.Background(), "transient", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !c.DeleteAfterDelay(context.Background(), id, 0) {
		t.Fatal("DeleteAfterDelay = false for existing message")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		msg, err := c.MessageByID(context.Background(), id)
		if err != nil {
			t.Fatalf("MessageByID: %v", err)
		}
		if msg == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message not deleted within deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if c.DeleteAfterDelay(context.Background(), id, 0) {
		t.Fatal("DeleteAfterDelay = true for already deleted message")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())

	// Before Init it is a no-op.
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown before Init: %v", err)
	}

	mustInit(t, c)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if c.Initialized() {
		t.Fatal("client initialized after Shutdown")
	}
	if sess.closes != 1 {
		t.Fatalf("session closes = %d, want 1", sess.closes)
	}

	if id, err := c.SendMessage(context.Background(), "late", nil); id != "" || err != nil {
		t.Fatalf("SendMessage after Shutdown = (%q, %v), want no-op", id, err)
	}
}

func TestReinitAfterShutdown(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(writableChannel("1", "training", 0))
	c := newTestClient(t, sess, testConfig())

	mustInit(t, c)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mustInit(t, c)

	if id, err := c.SendMessage(context.Background(), "back again", nil); err != nil || id == "" {
		t.Fatalf("SendMessage after reinit = (%q, %v)", id, err)
	}
}
