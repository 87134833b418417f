package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"trainbot/internal/transport"
	logx "trainbot/pkg/logx"
)

// Session adapts a discordgo session to the transport capability surface.
// All methods are called from the notifier's worker goroutine.
type Session struct {
	dg  *discordgo.Session
	log logx.Logger
}

// NewFactory returns a transport.Factory building Discord sessions.
func NewFactory(log logx.Logger) transport.Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(token string) (transport.Session, error) {
		return New(token, log)
	}
}

func New(token string, log logx.Logger) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("discord token is empty")
	}
	dg, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	// Guild + message intents are all the notifier needs.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Session{dg: dg, log: log}, nil
}

func (s *Session) Login(ctx context.Context) error {
	ready := make(chan struct{})
	remove := s.dg.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		s.log.Info("logged on", logx.String("user", r.User.String()), logx.Int("guilds", len(r.Guilds)))
		close(ready)
	})
	defer remove()

	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		_ = s.dg.Close()
		return ctx.Err()
	}
}

func (s *Session) Channels(ctx context.Context) ([]transport.Channel, error) {
	guilds, err := s.dg.UserGuilds(100, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	if len(guilds) == 0 {
		return nil, transport.ErrNoGuild
	}

	var me string
	if s.dg.State != nil && s.dg.State.User != nil {
		me = s.dg.State.User.ID
	}

	var out []transport.Channel
	for _, g := range guilds {
		chans, err := s.dg.GuildChannels(g.ID)
		if err != nil {
			s.log.Warn("guild channels unavailable", logx.String("guild", g.ID), logx.Err(err))
			continue
		}
		for _, ch := range chans {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			c := transport.Channel{ID: ch.ID, Name: ch.Name, Position: ch.Position}
			if me != "" {
				perms, err := s.dg.UserChannelPermissions(me, ch.ID)
				c.CanSend = err == nil && perms&discordgo.PermissionSendMessages != 0
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Session) Send(ctx context.Context, channelID, text string, embed *transport.Embed) (string, error) {
	send := &discordgo.MessageSend{Content: text}
	if embed != nil {
		send.Embed = toEmbed(embed)
	}
	msg, err := s.dg.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *Session) Fetch(ctx context.Context, channelID, messageID string) (*transport.Message, error) {
	msg, err := s.dg.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, transport.ErrMessageNotFound
		}
		return nil, err
	}
	out := &transport.Message{ID: msg.ID, ChannelID: msg.ChannelID, Text: msg.Content}
	if len(msg.Embeds) > 0 {
		out.Embed = fromEmbed(msg.Embeds[0])
	}
	return out, nil
}

func (s *Session) Edit(ctx context.Context, channelID, messageID string, p transport.Patch) error {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	if p.Text != nil {
		edit.SetContent(*p.Text)
	}
	if p.Embed != nil {
		edit.SetEmbed(toEmbed(p.Embed))
	} else if p.ClearEmbed {
		edit.SetEmbeds([]*discordgo.MessageEmbed{})
	}
	_, err := s.dg.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return transport.ErrMessageNotFound
	}
	return err
}

func (s *Session) Delete(ctx context.Context, channelID, messageID string) error {
	err := s.dg.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return transport.ErrMessageNotFound
	}
	return err
}

func (s *Session) Close(ctx context.Context) error {
	return s.dg.Close()
}

func toEmbed(e *transport.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{Title: e.Title}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}

func fromEmbed(e *discordgo.MessageEmbed) *transport.Embed {
	out := &transport.Embed{Title: e.Title}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, transport.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	return out
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil && rerr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
