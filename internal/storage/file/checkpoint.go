// Package file persists the checkpoint as a single JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"notify_relay/internal/domain"
)

// checkpointFile is the on-disk layout. Empty strings are stored as null.
type checkpointFile struct {
	LastVideoID    *string `json:"last_video_id"`
	LastVideoTitle *string `json:"last_video_title"`
	LastSentTime   float64 `json:"last_sent_time"`
}

type CheckpointStore struct {
	path   string
	logger *slog.Logger
}

func NewCheckpointStore(path string, logger *slog.Logger) *CheckpointStore {
	return &CheckpointStore{
		path:   path,
		logger: logger.With("store", "checkpoint_file", "path", path),
	}
}

// Load never fails: a missing or unreadable file yields a zero checkpoint.
func (s *CheckpointStore) Load(ctx context.Context) *domain.Checkpoint {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("checkpoint file not found, starting fresh")
		} else {
			s.logger.Warn("failed to read checkpoint, starting fresh", "error", err)
		}
		return &domain.Checkpoint{}
	}

	var f checkpointFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("malformed checkpoint, starting fresh", "error", err)
		return &domain.Checkpoint{}
	}

	cp := &domain.Checkpoint{
		LastSentAt: fromUnixSeconds(f.LastSentTime),
	}
	if f.LastVideoID != nil {
		cp.LastVideoID = *f.LastVideoID
	}
	if f.LastVideoTitle != nil {
		cp.LastVideoTitle = *f.LastVideoTitle
	}
	return cp
}

// Save replaces the file atomically by writing a sibling temp file and
// renaming it over the target.
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	f := checkpointFile{
		LastVideoID:    nullable(cp.LastVideoID),
		LastVideoTitle: nullable(cp.LastVideoTitle),
		LastSentTime:   toUnixSeconds(cp.LastSentAt),
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnixSeconds(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
