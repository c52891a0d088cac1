package publisher

import (
	"context"
	"log/slog"

	"notify_relay/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, a domain.Announcement) error
}

// Fanout delivers to a primary publisher and copies every announcement to
// mirrors. Only the primary's error is returned.
type Fanout struct {
	primary Publisher
	mirrors []Publisher
	logger  *slog.Logger
}

func NewFanout(primary Publisher, logger *slog.Logger, mirrors ...Publisher) *Fanout {
	return &Fanout{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("publisher", "fanout"),
	}
}

func (f *Fanout) Publish(ctx context.Context, a domain.Announcement) error {
	err := f.primary.Publish(ctx, a)

	for _, m := range f.mirrors {
		if mirrorErr := m.Publish(ctx, a); mirrorErr != nil {
			f.logger.Warn("mirror publish failed", "announcement_id", a.ID, "error", mirrorErr)
		}
	}

	return err
}
