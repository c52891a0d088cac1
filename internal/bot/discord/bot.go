package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Bot connects to the gateway and answers commands. The scheduler is owned by
// the caller and runs whether or not the gateway is connected.
type Bot struct {
	session  *discordgo.Session
	commands *Commands
	logger   *slog.Logger

	ctx context.Context
}

func NewBot(session *discordgo.Session, commands *Commands, logger *slog.Logger) *Bot {
	return &Bot{
		session:  session,
		commands: commands,
		logger:   logger.With("component", "discord_bot"),
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessage)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.session.Close()

	<-ctx.Done()
	b.logger.Info("closing discord session")
	return nil
}

// onReady fires on every gateway (re)connect.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	user := ""
	if r.User != nil {
		user = r.User.String()
	}
	b.logger.Info("discord session ready", "user", user, "guilds", len(r.Guilds))
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	reply := b.commands.Dispatch(b.ctx, m.Author.ID, m.Content)
	if reply == "" {
		return
	}

	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		b.logger.Warn("failed to reply to command", "channel_id", m.ChannelID, "error", err)
	}
}
