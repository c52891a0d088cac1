//go:build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"notify_relay/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
	logger    *slog.Logger
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_checkpoints.up.sql"),
			filepath.Join(migrationsPath, "002_create_announcements.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM announcements")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM checkpoints")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_LoadEmpty() {
	store := NewCheckpointStore(s.db, "feed-1", s.logger)

	cp := store.Load(s.ctx)

	s.Require().NotNil(cp)
	s.Equal(domain.Checkpoint{}, *cp)
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_SaveAndLoad() {
	store := NewCheckpointStore(s.db, "feed-1", s.logger)
	sent := time.Now().Truncate(time.Microsecond)

	err := store.Save(s.ctx, domain.Checkpoint{
		LastVideoID:    "vid1",
		LastVideoTitle: "First",
		LastSentAt:     sent,
	})
	s.NoError(err)

	cp := store.Load(s.ctx)
	s.Equal("vid1", cp.LastVideoID)
	s.Equal("First", cp.LastVideoTitle)
	s.True(sent.Equal(cp.LastSentAt))
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_SaveOverwrites() {
	store := NewCheckpointStore(s.db, "feed-1", s.logger)

	s.NoError(store.Save(s.ctx, domain.Checkpoint{LastVideoID: "a", LastSentAt: time.Now()}))
	s.NoError(store.Save(s.ctx, domain.Checkpoint{LastVideoID: "b", LastSentAt: time.Now()}))

	var count int
	err := s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM checkpoints WHERE feed_id = $1", "feed-1")
	s.NoError(err)
	s.Equal(1, count)
	s.Equal("b", store.Load(s.ctx).LastVideoID)
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_SeparateFeeds() {
	first := NewCheckpointStore(s.db, "feed-1", s.logger)
	second := NewCheckpointStore(s.db, "feed-2", s.logger)

	s.NoError(first.Save(s.ctx, domain.Checkpoint{LastVideoID: "a"}))

	s.Equal("a", first.Load(s.ctx).LastVideoID)
	s.Empty(second.Load(s.ctx).LastVideoID)
}

func (s *PostgresIntegrationSuite) TestAnnouncementStore_RecordAndMark() {
	store := NewAnnouncementStore(s.db)
	a := &domain.Announcement{
		ID:        uuid.NewString(),
		Kind:      domain.KindVideo,
		Title:     "New video",
		URL:       "https://www.youtube.com/watch?v=x",
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}

	s.NoError(store.Record(s.ctx, a))
	s.NoError(store.MarkDelivered(s.ctx, a.ID, nil))

	records, err := store.Recent(s.ctx, 10)
	s.NoError(err)
	s.Require().Len(records, 1)
	s.Equal(StatusDelivered, records[0].Status)
	s.True(records[0].DeliveredAt.Valid)
	s.False(records[0].Error.Valid)
}

func (s *PostgresIntegrationSuite) TestAnnouncementStore_MarkFailed() {
	store := NewAnnouncementStore(s.db)
	a := &domain.Announcement{
		ID:        uuid.NewString(),
		Kind:      domain.KindStream,
		Title:     "Live",
		CreatedAt: time.Now(),
	}

	s.NoError(store.Record(s.ctx, a))
	s.NoError(store.MarkDelivered(s.ctx, a.ID, errors.New("discord down")))

	records, err := store.Recent(s.ctx, 10)
	s.NoError(err)
	s.Require().Len(records, 1)
	s.Equal(StatusFailed, records[0].Status)
	s.Equal("discord down", records[0].Error.String)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	checkpoints := NewCheckpointStore(s.db, "feed-1", s.logger)
	history := NewAnnouncementStore(s.db)
	a := &domain.Announcement{ID: uuid.NewString(), Kind: domain.KindVideo, Title: "t", CreatedAt: time.Now()}

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := checkpoints.Save(ctx, domain.Checkpoint{LastVideoID: "tx"}); err != nil {
			return err
		}
		return history.Record(ctx, a)
	})
	s.NoError(err)

	s.Equal("tx", checkpoints.Load(s.ctx).LastVideoID)
	records, err := history.Recent(s.ctx, 10)
	s.NoError(err)
	s.Len(records, 1)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	checkpoints := NewCheckpointStore(s.db, "feed-1", s.logger)

	s.NoError(checkpoints.Save(s.ctx, domain.Checkpoint{LastVideoID: "before"}))

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := checkpoints.Save(ctx, domain.Checkpoint{LastVideoID: "after"}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	s.Equal("before", checkpoints.Load(s.ctx).LastVideoID)
}
