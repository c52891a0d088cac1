package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"notify_relay/internal/domain"
)

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

type AnnouncementRecord struct {
	ID          string         `db:"id"`
	Kind        string         `db:"kind"`
	Title       string         `db:"title"`
	URL         sql.NullString `db:"url"`
	Status      string         `db:"status"`
	Error       sql.NullString `db:"error"`
	CreatedAt   time.Time      `db:"created_at"`
	DeliveredAt sql.NullTime   `db:"delivered_at"`
}

// AnnouncementStore is the history of attempted announcements.
type AnnouncementStore struct {
	db *sqlx.DB
}

func NewAnnouncementStore(db *sqlx.DB) *AnnouncementStore {
	return &AnnouncementStore{db: db}
}

func (s *AnnouncementStore) Record(ctx context.Context, a *domain.Announcement) error {
	query := `
		INSERT INTO announcements (id, kind, title, url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		a.ID,
		string(a.Kind),
		a.Title,
		sql.NullString{String: a.URL, Valid: a.URL != ""},
		StatusPending,
		a.CreatedAt,
	)
	return err
}

// MarkDelivered finalizes a recorded announcement. A nil sendErr marks it
// delivered, anything else failed.
func (s *AnnouncementStore) MarkDelivered(ctx context.Context, id string, sendErr error) error {
	status := StatusDelivered
	errText := sql.NullString{}
	deliveredAt := sql.NullTime{Time: time.Now(), Valid: true}
	if sendErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
		deliveredAt = sql.NullTime{}
	}

	query := `
		UPDATE announcements
		SET status = $2, error = $3, delivered_at = $4
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, status, errText, deliveredAt)
	return err
}

func (s *AnnouncementStore) Recent(ctx context.Context, limit int) ([]AnnouncementRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, kind, title, url, status, error, created_at, delivered_at
		FROM announcements
		ORDER BY created_at DESC
		LIMIT $1`

	var records []AnnouncementRecord
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &records, query, limit); err != nil {
		return nil, err
	}
	return records, nil
}
