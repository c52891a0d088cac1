package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"notify_relay/internal/domain"
)

const SourceID = "youtube"

// Config holds YouTube feed source configuration.
type Config struct {
	FeedURL   string
	UserAgent string
	Timeout   time.Duration
}

// Source fetches and parses the channel upload feed.
type Source struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	feedURL    string
	userAgent  string
	logger     *slog.Logger
}

// New creates a new YouTube feed source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		parser:    gofeed.NewParser(),
		feedURL:   cfg.FeedURL,
		userAgent: cfg.UserAgent,
		logger:    logger.With("source", SourceID),
	}
}

// Fetch performs a single GET of the feed. Retrying is left to the caller.
func (s *Source) Fetch(ctx context.Context) (*domain.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml;q=0.9")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: FetchHTTPStatus, StatusCode: resp.StatusCode}
	}

	parsed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	feed := s.transform(parsed)

	s.logger.Debug("fetched feed", "entries", len(feed.Entries))

	return feed, nil
}

func (s *Source) transform(parsed *gofeed.Feed) *domain.Feed {
	feed := &domain.Feed{
		Title:   parsed.Title,
		Entries: make([]domain.FeedEntry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		entry := domain.FeedEntry{
			Title: item.Title,
			Link:  item.Link,
		}

		if item.PublishedParsed != nil {
			entry.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.PublishedAt = *item.UpdatedParsed
		}

		feed.Entries = append(feed.Entries, entry)
	}

	return feed
}
