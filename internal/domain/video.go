package domain

import (
	"fmt"
	"time"
)

type Feed struct {
	Title   string
	Entries []FeedEntry
}

type FeedEntry struct {
	Title       string
	Link        string
	PublishedAt time.Time
}

type ClassificationKind int

const (
	Malformed ClassificationKind = iota
	Excluded
	Qualifying
)

func (k ClassificationKind) String() string {
	switch k {
	case Qualifying:
		return "qualifying"
	case Excluded:
		return "excluded"
	default:
		return "malformed"
	}
}

// Classification is the result of resolving a feed entry link.
// VideoID is only set for Qualifying links.
type Classification struct {
	Kind    ClassificationKind
	VideoID string
	Reason  string
}

type Video struct {
	ID           string
	Title        string
	URL          string
	ThumbnailURL string
	PublishedAt  time.Time
}

func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID)
}

// CheckResult summarizes one check tick.
type CheckResult struct {
	Video         *Video
	StreamStarted bool
	Live          bool
	VideoErr      error
	StreamErr     error
	Duration      time.Duration
}
