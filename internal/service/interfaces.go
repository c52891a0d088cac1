package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"notify_relay/internal/domain"
)

type FeedSource interface {
	Fetch(ctx context.Context) (*domain.Feed, error)
}

type Resolver interface {
	Resolve(raw string) domain.Classification
}

type LivenessProber interface {
	Probe(ctx context.Context, username string) (bool, error)
}

// CheckpointStore loads fail-soft: a missing or unreadable checkpoint is the
// zero value, never an error.
type CheckpointStore interface {
	Load(ctx context.Context) *domain.Checkpoint
	Save(ctx context.Context, cp domain.Checkpoint) error
}

type AnnouncementLog interface {
	Record(ctx context.Context, a *domain.Announcement) error
	MarkDelivered(ctx context.Context, id string, sendErr error) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, a domain.Announcement) error
}

type ImageChecker interface {
	Available(ctx context.Context, url string) bool
}
