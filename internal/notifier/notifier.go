package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trainbot/internal/transport"
	"trainbot/pkg/chatfmt"
	logx "trainbot/pkg/logx"
)

// Client is the blocking notifier facade. It is safe for concurrent use; all
// chat calls run on a single background worker goroutine.
//
// The zero Client is not usable; construct with New. A Client can be reused:
// Shutdown followed by Init starts a fresh session.
type Client struct {
	mu sync.Mutex

	cfg     Config
	log     logx.Logger
	factory transport.Factory

	// Worker state. All nil/false while uninitialized.
	sess        transport.Session
	channelID   string
	calls       chan call
	done        chan struct{}
	cancel      context.CancelFunc
	initialized bool

	limiter *rate.Limiter

	// pending tracks scheduled deletions so Shutdown can wait for their
	// goroutines to observe cancellation.
	pending sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, factory transport.Factory, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg.withDefaults(), factory: factory, log: log}
}

// Initialized reports whether a session is up and a channel is resolved.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// ChannelID returns the resolved target channel id ("" while uninitialized).
func (c *Client) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Init resolves credentials, starts the worker goroutine owning the chat
// session, waits for the session ready signal, and resolves the target
// channel. Calling Init on an initialized client is a no-op.
//
// Error taxonomy: ErrNoToken, ErrAuth, ErrConnectTimeout, ErrChannelNotFound,
// ErrNoGuild. Every failure leaves the client uninitialized and retryable.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		c.log.Debug("already initialized")
		return nil
	}

	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(EnvToken))
	}
	if token == "" {
		return ErrNoToken
	}

	chName, chID := c.cfg.ChannelName, c.cfg.ChannelID
	if chName == "" && chID == "" {
		if v := strings.TrimSpace(os.Getenv(EnvChannel)); v != "" {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				chID = v
			} else {
				chName = strings.TrimPrefix(v, "#")
			}
		}
	}

	sess, err := c.factory(token)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	calls := make(chan call)
	done := make(chan struct{})
	go c.run(wctx, sess, calls, done)

	teardown := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(c.cfg.ShutdownGrace):
		}
	}

	if _, err := submit(calls, done, c.cfg.ReadyTimeout, func(ctx context.Context) (any, error) {
		return nil, sess.Login(ctx)
	}); err != nil {
		teardown()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrConnectTimeout
		}
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	v, err := submit(calls, done, c.cfg.CallTimeout, func(ctx context.Context) (any, error) {
		return sess.Channels(ctx)
	})
	if err != nil {
		teardown()
		if errors.Is(err, transport.ErrNoGuild) {
			return ErrNoGuild
		}
		return fmt.Errorf("list channels: %w", err)
	}
	channels, _ := v.([]transport.Channel)

	id, rule := resolveChannel(channels, chName, chID, c.cfg.DefaultChannel)
	if id == "" {
		teardown()
		return ErrChannelNotFound
	}
	if rule == "default-name" {
		c.log.Warn("falling back to default channel name; configure a channel explicitly",
			logx.String("channel", c.cfg.DefaultChannel))
	}
	c.log.Info("channel resolved", logx.String("channel_id", id), logx.String("rule", rule))

	c.sess = sess
	c.channelID = id
	c.calls = calls
	c.done = done
	c.cancel = cancel
	c.limiter = rate.NewLimiter(rate.Limit(c.cfg.RatePerSec), c.cfg.RatePerSec)
	c.initialized = true
	return nil
}

// resolveChannel applies the deterministic search order: configured name,
// configured id, then the default channel name. Name matches prefer the
// oldest channel (lowest position, then id) and require send permission.
func resolveChannel(channels []transport.Channel, name, id, defaultName string) (string, string) {
	byName := func(n string) string {
		var match []transport.Channel
		for _, ch := range channels {
			if ch.CanSend && ch.Name == n {
				match = append(match, ch)
			}
		}
		if len(match) == 0 {
			return ""
		}
		sort.Slice(match, func(i, j int) bool {
			if match[i].Position != match[j].Position {
				return match[i].Position < match[j].Position
			}
			return match[i].ID < match[j].ID
		})
		return match[0].ID
	}

	if name != "" {
		if got := byName(name); got != "" {
			return got, "name"
		}
	}
	if id != "" {
		for _, ch := range channels {
			if ch.ID == id && ch.CanSend {
				return ch.ID, "id"
			}
		}
	}
	if defaultName != "" {
		if got := byName(defaultName); got != "" {
			return got, "default-name"
		}
	}
	return "", ""
}

// SendMessage posts text and/or a structured embed to the resolved channel
// and returns the new message id. It is a no-op returning ("", nil) when the
// client is uninitialized or both parts are empty.
func (c *Client) SendMessage(ctx context.Context, text string, embed *transport.Embed) (string, error) {
	c.mu.Lock()
	init, channelID, lim := c.initialized, c.channelID, c.limiter
	sess := c.sess
	c.mu.Unlock()

	if !init {
		return "", nil
	}
	if text == "" && embed == nil {
		return "", nil
	}

	if err := c.pace(ctx, lim); err != nil {
		return "", err
	}

	v, err := c.do(c.cfg.CallTimeout, func(ctx context.Context) (any, error) {
		return sess.Send(ctx, channelID, text, embed)
	})
	if err != nil {
		return "", err
	}
	id, _ := v.(string)
	c.recordSent(id, text)
	return id, nil
}

// MessageByID fetches a message from the resolved channel. A missing message
// returns (nil, nil), never an error.
func (c *Client) MessageByID(ctx context.Context, messageID string) (*transport.Message, error) {
	c.mu.Lock()
	init, channelID, sess := c.initialized, c.channelID, c.sess
	c.mu.Unlock()

	if !init || messageID == "" {
		return nil, nil
	}

	v, err := c.do(c.cfg.CallTimeout, func(ctx context.Context) (any, error) {
		return sess.Fetch(ctx, channelID, messageID)
	})
	if err != nil {
		if errors.Is(err, transport.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, err
	}
	msg, _ := v.(*transport.Message)
	return msg, nil
}

// UpdateOrSend edits the message identified by messageID with the given
// patch, returning the same id. If messageID is empty or the message is gone
// it falls back to sending a fresh message built from the patch; the returned
// id then replaces the old one.
func (c *Client) UpdateOrSend(ctx context.Context, messageID string, p transport.Patch) (string, error) {
	c.mu.Lock()
	init, channelID, lim, sess := c.initialized, c.channelID, c.limiter, c.sess
	c.mu.Unlock()

	if !init {
		return "", nil
	}

	if messageID != "" {
		msg, err := c.MessageByID(ctx, messageID)
		if err != nil {
			return "", err
		}
		if msg != nil {
			if err := c.pace(ctx, lim); err != nil {
				return "", err
			}
			_, err := c.do(c.cfg.CallTimeout, func(ctx context.Context) (any, error) {
				return nil, sess.Edit(ctx, channelID, messageID, p)
			})
			if err == nil {
				return messageID, nil
			}
			if !errors.Is(err, transport.ErrMessageNotFound) {
				return messageID, err
			}
			// Vanished between fetch and edit; fall through to send.
		}
	}

	var text string
	if p.Text != nil {
		text = *p.Text
	}
	return c.SendMessage(ctx, text, p.Embed)
}

// DeleteAfterDelay schedules the deletion of a message after delay. It
// reports whether the message was known to exist at schedule time and does
// not wait for the deletion. Scheduled deletions are dropped on Shutdown.
func (c *Client) DeleteAfterDelay(ctx context.Context, messageID string, delay time.Duration) bool {
	c.mu.Lock()
	init, channelID, sess, done := c.initialized, c.channelID, c.sess, c.done
	calls := c.calls
	c.mu.Unlock()

	if !init {
		return false
	}

	msg, err := c.MessageByID(ctx, messageID)
	if err != nil || msg == nil {
		return false
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-done:
			return
		}
		if _, err := submit(calls, done, c.cfg.CallTimeout, func(ctx context.Context) (any, error) {
			return nil, sess.Delete(ctx, channelID, messageID)
		}); err != nil && !errors.Is(err, transport.ErrMessageNotFound) && !errors.Is(err, ErrStopped) {
			c.log.Debug("scheduled delete failed", logx.String("message_id", messageID), logx.Err(err))
		}
	}()
	return true
}

// Shutdown closes the session, cancels pending scheduled work, stops the
// worker with a bounded join, and resets state so Init can be called again.
// Idempotent; calling it on an uninitialized client is a no-op.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	calls, done, cancel, sess := c.calls, c.done, c.cancel, c.sess
	c.sess = nil
	c.channelID = ""
	c.calls = nil
	c.done = nil
	c.cancel = nil
	c.limiter = nil
	c.initialized = false
	c.mu.Unlock()

	if calls == nil {
		return nil
	}

	// Close the session on the loop first so the backend can log out
	// cleanly; cancellation below is the fallback.
	if _, err := submit(calls, done, c.cfg.ShutdownGrace, func(ctx context.Context) (any, error) {
		return nil, sess.Close(ctx)
	}); err != nil && !errors.Is(err, ErrStopped) {
		c.log.Debug("session close", logx.Err(err))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownGrace):
		c.log.Warn("worker did not stop within grace window")
	}
	c.pending.Wait()

	c.log.Debug("notifier shut down")
	return nil
}

// Snapshot returns the recently sent messages (for operator visibility).
func (c *Client) Snapshot() []HistoryItem {
	c.hmu.Lock()
	out := append([]HistoryItem(nil), c.history...)
	c.hmu.Unlock()
	return out
}

func (c *Client) recordSent(id, text string) {
	c.hmu.Lock()
	c.history = append(c.history, HistoryItem{At: time.Now(), MessageID: id, Text: chatfmt.TruncRunes(text, 200)})
	if len(c.history) > 300 {
		c.history = c.history[len(c.history)-300:]
	}
	c.hmu.Unlock()
}

func (c *Client) pace(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return lim.Wait(ctx)
}
