package notifier

import "time"

// Env vars consumed when the corresponding Config field is empty.
const (
	EnvToken   = "TRAINBOT_TOKEN"
	EnvChannel = "TRAINBOT_CHANNEL"
)

// Config controls the blocking notifier facade.
type Config struct {
	// Token is the bot credential. Falls back to EnvToken.
	Token string

	// ChannelName is the preferred target channel, by name.
	ChannelName string
	// ChannelID is the target channel id, tried after name matches fail.
	// Falls back (together with ChannelName) to EnvChannel: a numeric value
	// is treated as an id, anything else as a name.
	ChannelID string
	// DefaultChannel is the last-resort channel name. The backend default
	// channel name depends on the server locale, so rely on this only for
	// throwaway setups.
	DefaultChannel string

	// ReadyTimeout bounds Init's wait for the session ready signal.
	ReadyTimeout time.Duration
	// CallTimeout bounds every other blocking wait on the worker.
	CallTimeout time.Duration
	// ShutdownGrace bounds the worker join during Shutdown.
	ShutdownGrace time.Duration

	// RatePerSec paces sends and edits so step-level progress updates
	// cannot flood the backend. 0 uses the default.
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.DefaultChannel == "" {
		c.DefaultChannel = "general"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 3 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	return c
}

// HistoryItem records a message the client sent, for operator visibility.
type HistoryItem struct {
	At        time.Time
	MessageID string
	Text      string
}
