package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"

	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

// PushConfig configures the Telegram push channel.
type PushConfig struct {
	Token        string
	ChatID       int64
	ThreadID     int
	DashboardURL string // prefixed to relative action targets
}

// sender is the part of *tele.Bot the push channel uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramPush sends each record as an HTML message to one chat.
type TelegramPush struct {
	cfg PushConfig
	bot sender
	log logx.Logger
}

// NewTelegramPush builds the channel without contacting Telegram.
func NewTelegramPush(cfg PushConfig, log logx.Logger) (*TelegramPush, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramPush(cfg, b, log), nil
}

func newTelegramPush(cfg PushConfig, b sender, log logx.Logger) *TelegramPush {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramPush{cfg: cfg, bot: b, log: log.With(logx.String("comp", "push"))}
}

func (p *TelegramPush) Deliver(ctx context.Context, rec notification.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              p.cfg.ThreadID,
	}
	if _, err := p.bot.Send(&tele.Chat{ID: p.cfg.ChatID}, p.format(rec), opts); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (p *TelegramPush) format(rec notification.Record) string {
	var b strings.Builder
	b.WriteString(prefixForPriority(rec.Priority))
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(rec.Title))
	b.WriteString("</b>\n")
	b.WriteString(html.EscapeString(rec.Message))
	if rec.Subject != nil && rec.Subject.Name != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(rec.Subject.Name))
		if rec.Subject.Stage != "" {
			b.WriteString(" / ")
			b.WriteString(html.EscapeString(rec.Subject.Stage))
		}
		b.WriteString("</i>")
	}
	if link := p.link(rec.ActionURL); link != "" {
		label := rec.ActionLabel
		if label == "" {
			label = "Open"
		}
		fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", html.EscapeString(link), html.EscapeString(label))
	}
	return b.String()
}

func (p *TelegramPush) link(target string) string {
	if target == "" {
		return ""
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if p.cfg.DashboardURL == "" {
		return ""
	}
	return strings.TrimRight(p.cfg.DashboardURL, "/") + "/" + strings.TrimLeft(target, "/")
}

func prefixForPriority(p notification.Priority) string {
	switch p {
	case notification.PriorityUrgent:
		return "🚨 "
	case notification.PriorityHigh:
		return "⚠️ "
	case notification.PriorityMedium:
		return "ℹ️ "
	default:
		return ""
	}
}
