package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"notify_relay/internal/domain"
)

// Sender delivers a confirmed announcement.
type Sender interface {
	Send(ctx context.Context, p domain.PendingAnnouncement) error
}

type Config struct {
	Token       string
	OwnerID     int64
	StagingDir  string
	PollTimeout time.Duration
}

type Bot struct {
	bot        *tele.Bot
	wizard     *Wizard
	sender     Sender
	ownerID    int64
	stagingDir string
	logger     *slog.Logger

	ctx context.Context
}

func NewBot(cfg Config, sender Sender, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	bot := &Bot{
		bot:        b,
		wizard:     NewWizard(),
		sender:     sender,
		ownerID:    cfg.OwnerID,
		stagingDir: cfg.StagingDir,
		logger:     logger.With("component", "telegram_bot"),
		ctx:        context.Background(),
	}
	bot.registerHandlers()
	return bot, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Use(b.ownerOnly)

	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("Use /announce to compose an announcement, /cancel to abort.")
	})
	b.bot.Handle("/announce", func(c tele.Context) error {
		return b.respond(c, b.wizard.Begin(c.Chat().ID))
	})
	b.bot.Handle("/cancel", func(c tele.Context) error {
		return b.respond(c, b.wizard.Cancel(c.Chat().ID))
	})
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return b.respond(c, b.wizard.Handle(c.Chat().ID, Input{Text: c.Text()}))
	})
	b.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		chatID := c.Chat().ID
		if b.wizard.Step(chatID) != StepPreview {
			return b.respond(c, b.wizard.Handle(chatID, Input{Text: c.Message().Caption}))
		}

		path, err := b.stage(c.Message().Photo)
		if err != nil {
			b.logger.Error("failed to stage photo", "error", err)
			return c.Send("❌ Could not download the photo, send a link or \"skip\" instead.")
		}
		return b.respond(c, b.wizard.Handle(chatID, Input{PhotoPath: path}))
	})
}

func (b *Bot) ownerOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || b.ownerID == 0 || sender.ID != b.ownerID {
			id := int64(0)
			if sender != nil {
				id = sender.ID
			}
			b.logger.Warn("unauthorized telegram user", "user_id", id)
			return c.Send("⛔ You are not allowed to use this bot.")
		}
		return next(c)
	}
}

func (b *Bot) stage(photo *tele.Photo) (string, error) {
	if photo == nil {
		return "", errors.New("message has no photo")
	}
	path := filepath.Join(b.stagingDir, uuid.NewString()+".jpg")
	if err := b.bot.Download(&photo.File, path); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func (b *Bot) respond(c tele.Context, reply Reply) error {
	b.discard(reply.Discard)

	if reply.Text != "" {
		if err := c.Send(reply.Text); err != nil {
			return err
		}
	}
	if reply.Submit == nil {
		return nil
	}

	p := *reply.Submit
	defer func() {
		if p.PreviewPath != "" {
			b.discard([]string{p.PreviewPath})
		}
	}()

	if err := b.sender.Send(b.ctx, p); err != nil {
		b.logger.Error("relay failed", "error", err)
		return c.Send("❌ Failed to send: " + err.Error())
	}
	b.logger.Info("announcement relayed", "title", p.Message)
	return c.Send("✅ Announcement sent.")
}

func (b *Bot) discard(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("failed to remove staged file", "path", p, "error", err)
		}
	}
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()

	b.logger.Info("telegram bot started", "username", b.bot.Me.Username)
	b.bot.Start()
	return nil
}
