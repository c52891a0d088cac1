package domain

import "time"

// Checkpoint is the persisted record of the last announced video.
// LastVideoID is only set when an announcement was attempted, never for a
// video that was merely seen in the feed.
type Checkpoint struct {
	LastVideoID    string    `db:"last_video_id"`
	LastVideoTitle string    `db:"last_video_title"`
	LastSentAt     time.Time `db:"last_sent_at"`
}

// SentWithin reports whether videoID was announced less than window before now.
func (c Checkpoint) SentWithin(videoID string, now time.Time, window time.Duration) bool {
	if c.LastVideoID == "" || c.LastVideoID != videoID || c.LastSentAt.IsZero() {
		return false
	}
	return now.Sub(c.LastSentAt) < window
}
