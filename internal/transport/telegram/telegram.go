package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"trainbot/internal/transport"
	"trainbot/pkg/chatfmt"
	logx "trainbot/pkg/logx"
)

// Config selects the target chat. The Bot API cannot enumerate the chats a
// bot belongs to, so the chat id has to be configured up front.
type Config struct {
	ChatID int64
}

// Session adapts a telebot bot to the transport capability surface.
//
// Two Bot API gaps are papered over here:
//   - There is no "fetch message" call. The adapter keeps a registry of the
//     messages it sent itself (the only ones the notifier ever edits) and
//     answers Fetch from it. Best-effort by design: a registry miss simply
//     degrades an edit into a fresh send upstream.
//   - There are no embeds. Structured content renders as HTML text.
//
// All methods run on the notifier's worker goroutine; the registry needs no
// locking.
type Session struct {
	token string
	cfg   Config
	log   logx.Logger

	bot  *tele.Bot
	msgs map[string]*transport.Message
}

// NewFactory returns a transport.Factory building Telegram sessions.
func NewFactory(cfg Config, log logx.Logger) transport.Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(token string) (transport.Session, error) {
		return New(token, cfg, log)
	}
}

func New(token string, cfg Config, log logx.Logger) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Session{
		token: strings.TrimSpace(token),
		cfg:   cfg,
		log:   log,
		msgs:  map[string]*transport.Message{},
	}, nil
}

// Login validates the token. telebot's NewBot performs the getMe call, so a
// bad credential fails here.
func (s *Session) Login(ctx context.Context) error {
	b, err := tele.NewBot(tele.Settings{
		Token: s.token,
		// The notifier only sends; no update polling.
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return err
	}
	s.bot = b
	s.log.Info("logged on", logx.String("user", b.Me.Username))
	return nil
}

func (s *Session) Channels(ctx context.Context) ([]transport.Channel, error) {
	if s.cfg.ChatID == 0 {
		return nil, nil
	}
	id := strconv.FormatInt(s.cfg.ChatID, 10)
	return []transport.Channel{{ID: id, Name: id, CanSend: true}}, nil
}

func (s *Session) Send(ctx context.Context, channelID, text string, embed *transport.Embed) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", errors.New("telegram channel id must be numeric: " + channelID)
	}

	body := renderBody(text, embed)
	msg, err := s.bot.Send(&tele.Chat{ID: chatID}, body, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return "", err
	}

	id := strconv.Itoa(msg.ID)
	s.msgs[id] = &transport.Message{ID: id, ChannelID: channelID, Text: text, Embed: embed}
	return id, nil
}

func (s *Session) Fetch(ctx context.Context, channelID, messageID string) (*transport.Message, error) {
	m, ok := s.msgs[messageID]
	if !ok || m.ChannelID != channelID {
		return nil, transport.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Session) Edit(ctx context.Context, channelID, messageID string, p transport.Patch) error {
	prev, ok := s.msgs[messageID]
	if !ok || prev.ChannelID != channelID {
		return transport.ErrMessageNotFound
	}

	next := *prev
	if p.Text != nil {
		next.Text = *p.Text
	}
	if p.Embed != nil {
		next.Embed = p.Embed
	} else if p.ClearEmbed {
		next.Embed = nil
	}

	stored := tele.StoredMessage{MessageID: messageID, ChatID: mustChatID(channelID)}
	_, err := s.bot.Edit(stored, renderBody(next.Text, next.Embed), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		if isGone(err) {
			delete(s.msgs, messageID)
			return transport.ErrMessageNotFound
		}
		// Editing to identical content is not an error for our purposes.
		if errors.Is(err, tele.ErrSameMessageContent) {
			s.msgs[messageID] = &next
			return nil
		}
		return err
	}
	s.msgs[messageID] = &next
	return nil
}

func (s *Session) Delete(ctx context.Context, channelID, messageID string) error {
	if _, ok := s.msgs[messageID]; !ok {
		return transport.ErrMessageNotFound
	}
	stored := tele.StoredMessage{MessageID: messageID, ChatID: mustChatID(channelID)}
	err := s.bot.Delete(stored)
	delete(s.msgs, messageID)
	if err != nil && isGone(err) {
		return transport.ErrMessageNotFound
	}
	return err
}

func (s *Session) Close(ctx context.Context) error {
	s.bot = nil
	s.msgs = map[string]*transport.Message{}
	return nil
}

func mustChatID(channelID string) int64 {
	id, _ := strconv.ParseInt(channelID, 10, 64)
	return id
}

// isGone matches Bot API "message to edit/delete not found" responses.
func isGone(err error) bool {
	if err == nil {
		return false
	}
	desc := strings.ToLower(err.Error())
	return strings.Contains(desc, "message to edit not found") ||
		strings.Contains(desc, "message to delete not found") ||
		strings.Contains(desc, "message can't be found")
}

// renderBody flattens text + embed into Telegram HTML.
func renderBody(text string, embed *transport.Embed) string {
	parts := make([]chatfmt.H, 0, 4)
	if text != "" {
		parts = append(parts, chatfmt.Esc(text))
	}
	if embed != nil {
		if embed.Title != "" {
			parts = append(parts, chatfmt.B(embed.Title))
		}
		for _, f := range embed.Fields {
			if f.Inline {
				parts = append(parts, chatfmt.JoinH(": ", chatfmt.B(f.Name), chatfmt.Code(f.Value)))
			} else {
				parts = append(parts, chatfmt.B(f.Name)+"\n"+chatfmt.Pre(f.Value))
			}
		}
		if embed.Footer != "" {
			parts = append(parts, chatfmt.I(embed.Footer))
		}
	}
	return chatfmt.JoinH("\n", parts...).String()
}
