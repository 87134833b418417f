package config

// Config is the root of trainbot's configuration file (JSON or YAML).
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Chat      ChatConfig      `json:"chat"`
	Logging   LoggingConfig   `json:"logging"`
	Reporter  ReporterConfig  `json:"reporter,omitempty"`
	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty"`
	History   *HistoryConfig  `json:"history,omitempty"`
}

// ChatConfig selects and credentials the chat backend.
//
// Token and channel fall back to the TRAINBOT_TOKEN / TRAINBOT_CHANNEL
// environment variables when left empty here.
type ChatConfig struct {
	// Backend is "discord" (default) or "telegram".
	Backend string `json:"backend,omitempty"`
	Token   string `json:"token,omitempty"`

	// Channel is the target channel name; ChannelID the numeric id
	// (Telegram only resolves by id). DefaultChannel is the last-resort
	// name ("general" if empty); the backend default depends on server
	// locale, so prefer an explicit channel.
	Channel        string `json:"channel,omitempty"`
	ChannelID      string `json:"channel_id,omitempty"`
	DefaultChannel string `json:"default_channel,omitempty"`

	ReadyTimeout  string `json:"ready_timeout,omitempty"`
	CallTimeout   string `json:"call_timeout,omitempty"`
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ReporterConfig controls progress message lifetimes.
type ReporterConfig struct {
	TransientDelay string `json:"transient_delay,omitempty"`
	PredictGrace   string `json:"predict_grace,omitempty"`
}

// HeartbeatConfig controls the periodic "still training" summary.
type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, e.g. "*/5 * * * *"
	Timezone string `json:"timezone,omitempty"`
}

// HistoryConfig controls run history persistence.
// Omit the section (or leave Path empty) to disable history.
type HistoryConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
