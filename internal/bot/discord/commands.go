// Package discord handles operator commands sent to the relay's Discord bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"notify_relay/internal/domain"
	"notify_relay/internal/scheduler"
	"notify_relay/internal/storage/postgres"
)

// CheckRunner runs a manual check through the scheduler so it cannot overlap
// a scheduled one.
type CheckRunner interface {
	RunOnce(ctx context.Context) (*domain.CheckResult, error)
}

type TestSender interface {
	SendTestVideo(ctx context.Context) (*domain.Video, error)
	SendTestStream(ctx context.Context) error
}

// HistoryReader lists recent announcements. Only the postgres state driver
// keeps a history.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]postgres.AnnouncementRecord, error)
}

const historyLimit = 10

const (
	replyDenied     = "⛔ You are not allowed to use this command."
	replyInProgress = "⏳ A check is already running, try again in a moment."
)

type Commands struct {
	runner  CheckRunner
	tester  TestSender
	history HistoryReader
	ownerID string
	prefix  string
	logger  *slog.Logger
}

func NewCommands(runner CheckRunner, tester TestSender, ownerID, prefix string, logger *slog.Logger) *Commands {
	if prefix == "" {
		prefix = "!"
	}
	return &Commands{
		runner:  runner,
		tester:  tester,
		ownerID: ownerID,
		prefix:  prefix,
		logger:  logger.With("component", "discord_commands"),
	}
}

func (c *Commands) SetHistory(history HistoryReader) {
	c.history = history
}

// Dispatch handles one message and returns the reply. An empty reply means
// the message was not a command.
func (c *Commands) Dispatch(ctx context.Context, authorID, content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, c.prefix) {
		return ""
	}

	fields := strings.Fields(strings.TrimPrefix(content, c.prefix))
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])

	switch name {
	case "help":
		return c.help()
	case "check", "testvideo", "teststream", "history":
	default:
		return ""
	}

	if !c.isOwner(authorID) {
		c.logger.Warn("unauthorized command", "command", name, "author_id", authorID)
		return replyDenied
	}

	c.logger.Info("running command", "command", name, "author_id", authorID)

	switch name {
	case "check":
		return c.check(ctx)
	case "testvideo":
		return c.testVideo(ctx)
	case "history":
		return c.recent(ctx)
	default:
		return c.testStream(ctx)
	}
}

func (c *Commands) isOwner(authorID string) bool {
	return c.ownerID != "" && authorID == c.ownerID
}

func (c *Commands) help() string {
	p := c.prefix
	return strings.Join([]string{
		"**Commands**",
		fmt.Sprintf("`%scheck` run a feed and stream check now (operator)", p),
		fmt.Sprintf("`%stestvideo` send a test video notice (operator)", p),
		fmt.Sprintf("`%steststream` send a test stream notice (operator)", p),
		fmt.Sprintf("`%shistory` list recent announcements (operator)", p),
		fmt.Sprintf("`%shelp` show this message", p),
	}, "\n")
}

func (c *Commands) check(ctx context.Context) string {
	result, err := c.runner.RunOnce(ctx)
	if errors.Is(err, scheduler.ErrCheckInProgress) {
		return replyInProgress
	}
	if err != nil {
		c.logger.Error("manual check failed", "error", err)
		return "❌ Check failed: " + err.Error()
	}
	return summarize(result)
}

func summarize(r *domain.CheckResult) string {
	var b strings.Builder
	b.WriteString("✅ Check complete.\n")

	switch {
	case r.VideoErr != nil:
		fmt.Fprintf(&b, "🎥 Video: error (%v)\n", r.VideoErr)
	case r.Video != nil:
		fmt.Fprintf(&b, "🎥 Video: announced **%s**\n", r.Video.Title)
	default:
		b.WriteString("🎥 Video: nothing new\n")
	}

	switch {
	case r.StreamErr != nil:
		fmt.Fprintf(&b, "🔴 Stream: error (%v)", r.StreamErr)
	case r.StreamStarted:
		b.WriteString("🔴 Stream: live, announced")
	case r.Live:
		b.WriteString("🔴 Stream: live, already announced")
	default:
		b.WriteString("⚫ Stream: offline")
	}
	return b.String()
}

func (c *Commands) testVideo(ctx context.Context) string {
	video, err := c.tester.SendTestVideo(ctx)
	if err != nil {
		c.logger.Error("test video failed", "error", err)
		return "❌ Test video failed: " + err.Error()
	}
	return fmt.Sprintf("✅ Test video notice sent: **%s**", video.Title)
}

func (c *Commands) testStream(ctx context.Context) string {
	if err := c.tester.SendTestStream(ctx); err != nil {
		c.logger.Error("test stream failed", "error", err)
		return "❌ Test stream failed: " + err.Error()
	}
	return "✅ Test stream notice sent."
}

func (c *Commands) recent(ctx context.Context) string {
	if c.history == nil {
		return "📭 Announcement history is not enabled."
	}

	records, err := c.history.Recent(ctx, historyLimit)
	if err != nil {
		c.logger.Error("history lookup failed", "error", err)
		return "❌ History lookup failed: " + err.Error()
	}
	if len(records) == 0 {
		return "📭 No announcements yet."
	}

	var b strings.Builder
	b.WriteString("**Recent announcements**")
	for _, r := range records {
		fmt.Fprintf(&b, "\n`%s` %s **%s** (%s)", r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Kind, r.Title, r.Status)
		if r.Error.Valid {
			fmt.Fprintf(&b, ": %s", r.Error.String)
		}
	}
	return b.String()
}
