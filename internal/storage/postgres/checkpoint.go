package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"notify_relay/internal/domain"
)

type checkpointRow struct {
	FeedID         string         `db:"feed_id"`
	LastVideoID    sql.NullString `db:"last_video_id"`
	LastVideoTitle sql.NullString `db:"last_video_title"`
	LastSentAt     sql.NullTime   `db:"last_sent_at"`
}

// CheckpointStore keeps one checkpoint row per feed.
type CheckpointStore struct {
	db     *sqlx.DB
	feedID string
	logger *slog.Logger
}

func NewCheckpointStore(db *sqlx.DB, feedID string, logger *slog.Logger) *CheckpointStore {
	return &CheckpointStore{
		db:     db,
		feedID: feedID,
		logger: logger.With("store", "checkpoint_postgres", "feed_id", feedID),
	}
}

// Load degrades to an empty checkpoint on any error.
func (s *CheckpointStore) Load(ctx context.Context) *domain.Checkpoint {
	var row checkpointRow
	query := `
		SELECT feed_id, last_video_id, last_video_title, last_sent_at
		FROM checkpoints
		WHERE feed_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, s.feedID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Checkpoint{}
	}
	if err != nil {
		s.logger.Warn("failed to load checkpoint, starting fresh", "error", err)
		return &domain.Checkpoint{}
	}

	cp := &domain.Checkpoint{
		LastVideoID:    row.LastVideoID.String,
		LastVideoTitle: row.LastVideoTitle.String,
	}
	if row.LastSentAt.Valid {
		cp.LastSentAt = row.LastSentAt.Time
	}
	return cp
}

func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (feed_id, last_video_id, last_video_title, last_sent_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (feed_id) DO UPDATE SET
			last_video_id = EXCLUDED.last_video_id,
			last_video_title = EXCLUDED.last_video_title,
			last_sent_at = EXCLUDED.last_sent_at,
			updated_at = EXCLUDED.updated_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		s.feedID,
		sql.NullString{String: cp.LastVideoID, Valid: cp.LastVideoID != ""},
		sql.NullString{String: cp.LastVideoTitle, Valid: cp.LastVideoTitle != ""},
		sql.NullTime{Time: cp.LastSentAt, Valid: !cp.LastSentAt.IsZero()},
		time.Now(),
	)
	return err
}
