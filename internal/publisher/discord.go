package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"notify_relay/internal/domain"
)

// ErrDestinationNotFound is returned when the target channel does not exist
// or the bot cannot see it.
var ErrDestinationNotFound = errors.New("destination channel not found")

const (
	colorGold = 0xF1C40F
	colorRed  = 0xE74C3C
	colorBlue = 0x3498DB

	youtubeIcon = "https://upload.wikimedia.org/wikipedia/commons/0/09/YouTube_full-color_icon_%282017%29.svg"
	twitchIcon  = "https://static.twitchcdn.net/assets/favicon-32-e29e246c157142c94346.png"
)

// MessageSender is the part of *discordgo.Session used to post messages.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordConfig struct {
	VideoChannelID  string
	StreamChannelID string
	RatePerSec      int
}

// Discord renders announcements as embeds and posts them to the configured
// channels.
type Discord struct {
	sender  MessageSender
	cfg     DiscordConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewDiscord(sender MessageSender, cfg DiscordConfig, logger *slog.Logger) *Discord {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if cfg.StreamChannelID == "" {
		cfg.StreamChannelID = cfg.VideoChannelID
	}
	return &Discord{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With("publisher", "discord"),
	}
}

func (d *Discord) Publish(ctx context.Context, a domain.Announcement) error {
	channelID := d.channelFor(a.Kind)

	msg := d.render(a)

	if a.ImagePath != "" {
		f, err := os.Open(a.ImagePath)
		if err != nil {
			return fmt.Errorf("open staged image: %w", err)
		}
		defer f.Close()

		name := filepath.Base(a.ImagePath)
		msg.Files = []*discordgo.File{{Name: name, Reader: f}}
		msg.Embeds[0].Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	_, err := d.sender.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownChannel(err) {
			return fmt.Errorf("%w: %s", ErrDestinationNotFound, channelID)
		}
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}

	d.logger.Debug("message sent",
		"channel_id", channelID,
		"kind", a.Kind,
		"announcement_id", a.ID,
	)
	return nil
}

func (d *Discord) channelFor(kind domain.AnnouncementKind) string {
	if kind == domain.KindStream {
		return d.cfg.StreamChannelID
	}
	return d.cfg.VideoChannelID
}

func isUnknownChannel(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (d *Discord) render(a domain.Announcement) *discordgo.MessageSend {
	var (
		content string
		embed   *discordgo.MessageEmbed
		button  string
	)

	switch a.Kind {
	case domain.KindVideo:
		content = "🚨 New video is out!"
		button = "Watch video"
		embed = &discordgo.MessageEmbed{
			Title:       "🔔 New video on YouTube!",
			URL:         a.URL,
			Description: "🔥 Watch it now 🔥",
			Color:       colorGold,
			Author:      &discordgo.MessageEmbedAuthor{Name: "YouTube", IconURL: youtubeIcon},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "🎥 Title", Value: "**" + a.Title + "**"},
			},
			Footer: &discordgo.MessageEmbedFooter{Text: "📌 Automatic notification"},
		}
	case domain.KindStream:
		content = "🚨 Stream is live!"
		button = "Join stream"
		embed = &discordgo.MessageEmbed{
			Title:       "🔴 Stream started! 🔴",
			URL:         a.URL,
			Description: "🟢 Come hang out 🟢",
			Color:       colorRed,
			Author:      &discordgo.MessageEmbedAuthor{Name: "Twitch", IconURL: twitchIcon},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "🎮 Streaming now", Value: "**" + a.Title + "**"},
			},
			Footer: &discordgo.MessageEmbedFooter{Text: "Automatic notification • Join in!"},
		}
	default:
		content = "📣 Announcement"
		button = "Open link"
		embed = &discordgo.MessageEmbed{
			Title: a.Title,
			URL:   a.URL,
			Color: colorBlue,
		}
	}

	if !a.CreatedAt.IsZero() {
		embed.Timestamp = a.CreatedAt.UTC().Format(time.RFC3339)
	}

	if a.ImageURL != "" {
		if domain.IsImageURL(a.ImageURL) {
			embed.Image = &discordgo.MessageEmbedImage{URL: a.ImageURL}
		} else {
			d.logger.Warn("dropping invalid image url", "image_url", a.ImageURL, "announcement_id", a.ID)
		}
	}

	msg := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}

	switch {
	case a.Test:
		msg.Content = "🧪 [test] " + content
	case a.Everyone:
		msg.Content = "@everyone " + content
		msg.AllowedMentions.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}
	default:
		msg.Content = content
	}

	if domain.IsHTTPURL(a.URL) {
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: button, Style: discordgo.LinkButton, URL: a.URL},
			}},
		}
	}

	return msg
}
