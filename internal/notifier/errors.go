package notifier

import (
	"errors"

	"trainbot/internal/transport"
)

var (
	// ErrNoToken means neither the config nor the environment supplied a
	// credential. Fatal until configuration is fixed; Init may be retried.
	ErrNoToken = errors.New("notifier: no credential token configured")

	// ErrAuth means the backend rejected the credential.
	ErrAuth = errors.New("notifier: authentication failed")

	// ErrConnectTimeout means the session did not report ready in time.
	// Retryable.
	ErrConnectTimeout = errors.New("notifier: session not ready before timeout")

	// ErrChannelNotFound means no resolution rule matched a writable
	// text channel.
	ErrChannelNotFound = errors.New("notifier: no writable text channel found")

	// ErrStopped means the worker is gone (never started, or shut down).
	ErrStopped = errors.New("notifier: stopped")
)

// ErrNoGuild means the session belongs to no server at all.
// Shared with the transport layer, which detects the condition.
var ErrNoGuild = transport.ErrNoGuild
