package transport

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by Fetch/Edit/Delete when the referenced
// message no longer exists in the target channel. Callers use it to degrade
// an edit into a fresh send; it is never fatal.
var ErrMessageNotFound = errors.New("transport: message not found")

// ErrNoGuild is returned by Channels when the session is not a member of any
// server at all (e.g. the bot was never invited).
var ErrNoGuild = errors.New("transport: no guild")

// Channel is a text channel the session could write to.
type Channel struct {
	ID       string
	Name     string
	Position int  // backend ordering, lowest first
	CanSend  bool // session has send permission
}

// EmbedField is a single key/value entry of a structured message.
// Inline fields render side by side; block fields take the full width.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is the structured part of a message (title, fields, footer).
type Embed struct {
	Title  string
	Fields []EmbedField
	Footer string
}

// Message is a fetched or sent chat message.
type Message struct {
	ID        string
	ChannelID string
	Text      string
	Embed     *Embed
}

// Patch describes a partial edit. Nil fields are left untouched; a pointer to
// the empty string clears the text, ClearEmbed removes the embed.
type Patch struct {
	Text       *string
	Embed      *Embed
	ClearEmbed bool
}

// Session is the narrow capability surface the notifier needs from a chat
// backend. Implementations are driven from a single goroutine; they do not
// need to be safe for concurrent use.
type Session interface {
	// Login authenticates and blocks until the session is ready to send,
	// or ctx expires.
	Login(ctx context.Context) error

	// Channels lists the text channels visible to the session.
	// Returns ErrNoGuild when the session belongs to no server.
	Channels(ctx context.Context) ([]Channel, error)

	Send(ctx context.Context, channelID, text string, embed *Embed) (string, error)
	Fetch(ctx context.Context, channelID, messageID string) (*Message, error)
	Edit(ctx context.Context, channelID, messageID string, p Patch) error
	Delete(ctx context.Context, channelID, messageID string) error

	Close(ctx context.Context) error
}

// Factory builds a Session from a credential token.
// The notifier calls it once per Init.
type Factory func(token string) (Session, error)
