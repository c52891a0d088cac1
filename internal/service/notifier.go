package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notify_relay/internal/domain"
	"notify_relay/internal/telemetry"
)

// ErrNoVideo is returned by SendTestVideo when the feed has no qualifying entry.
var ErrNoVideo = errors.New("no qualifying video in feed")

type NotifierConfig struct {
	Username      string
	StreamURL     string
	Cooldown      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	ProbeTimeout  time.Duration
	// StagingDir is the only directory relayed preview files may come from.
	// Empty rejects every preview_path.
	StagingDir string
}

// NotifierState is everything the engine carries between ticks. Checkpoint is
// persisted, Live is not.
type NotifierState struct {
	Checkpoint domain.Checkpoint
	Live       bool
}

// Notifier decides whether a video or stream start is new and emits each
// event once. mu guards state and is also the single-sender lock: every
// publish, scheduled or manual, happens while holding it.
type Notifier struct {
	feed        FeedSource
	resolver    Resolver
	prober      LivenessProber
	checkpoints CheckpointStore
	history     AnnouncementLog
	txManager   TransactionManager
	publisher   Publisher
	images      ImageChecker
	logger      *slog.Logger
	config      NotifierConfig

	mu    sync.Mutex
	state NotifierState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// NewNotifier builds the engine. history and txManager may be nil when the
// state driver has no announcement log.
func NewNotifier(
	feed FeedSource,
	resolver Resolver,
	prober LivenessProber,
	checkpoints CheckpointStore,
	history AnnouncementLog,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg NotifierConfig,
) *Notifier {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Notifier{
		feed:        feed,
		resolver:    resolver,
		prober:      prober,
		checkpoints: checkpoints,
		history:     history,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger.With("component", "notifier"),
		config:      cfg,
		now:         time.Now,
		sleep:       sleepContext,
		newID:       uuid.NewString,
	}
}

// SetImageChecker enables dropping unreachable preview links from relayed
// announcements.
func (n *Notifier) SetImageChecker(images ImageChecker) {
	n.images = images
}

// Restore loads the persisted checkpoint. The live flag always starts false.
func (n *Notifier) Restore(ctx context.Context) {
	cp := n.checkpoints.Load(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()

	if cp != nil {
		n.state.Checkpoint = *cp
	}
	n.state.Live = false

	n.logger.Info("checkpoint restored",
		"last_video_id", n.state.Checkpoint.LastVideoID,
		"last_sent_at", n.state.Checkpoint.LastSentAt,
	)
}

// State returns a copy of the current state.
func (n *Notifier) State() NotifierState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// LatestVideo fetches the feed with bounded retries and returns the newest
// qualifying video if it differs from the last announced one. Nil means no
// new video, including when every attempt failed.
func (n *Notifier) LatestVideo(ctx context.Context) *domain.Video {
	feed := n.fetchWithRetry(ctx)
	if feed == nil {
		return nil
	}

	n.mu.Lock()
	lastID := n.state.Checkpoint.LastVideoID
	n.mu.Unlock()

	video := n.firstQualifying(feed)
	if video == nil {
		n.logger.Debug("no qualifying entry in feed", "entries", len(feed.Entries))
		return nil
	}
	if video.ID == lastID {
		n.logger.Debug("newest video already announced", "video_id", video.ID)
		return nil
	}
	return video
}

func (n *Notifier) fetchWithRetry(ctx context.Context) *domain.Feed {
	attempts := n.config.RetryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		feed, err := n.feed.Fetch(ctx)
		switch {
		case err != nil:
			telemetry.Inc(telemetry.FetchFailures)
			n.logger.Warn("feed fetch failed",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		case len(feed.Entries) == 0:
			n.logger.Warn("feed has no entries",
				"attempt", attempt,
				"max_attempts", attempts,
			)
		default:
			return feed
		}

		if attempt < attempts {
			if err := n.sleep(ctx, n.config.RetryBackoff); err != nil {
				return nil
			}
		}
	}

	n.logger.Warn("giving up on feed for this tick", "attempts", attempts)
	return nil
}

func (n *Notifier) firstQualifying(feed *domain.Feed) *domain.Video {
	for _, entry := range feed.Entries {
		c := n.resolver.Resolve(entry.Link)
		switch c.Kind {
		case domain.Qualifying:
			return &domain.Video{
				ID:           c.VideoID,
				Title:        entry.Title,
				URL:          entry.Link,
				ThumbnailURL: domain.ThumbnailURL(c.VideoID),
				PublishedAt:  entry.PublishedAt,
			}
		case domain.Excluded:
			n.logger.Debug("skipping excluded entry", "link", entry.Link, "reason", c.Reason)
		default:
			n.logger.Warn("skipping malformed entry", "link", entry.Link, "reason", c.Reason)
		}
	}
	return nil
}

// AnnounceVideo emits a notice for video unless the same id was announced
// within the cooldown. The checkpoint is advanced and persisted before the
// send, so a failed send is not retried. It reports whether a send was
// attempted.
func (n *Notifier) AnnounceVideo(ctx context.Context, video domain.Video) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if n.state.Checkpoint.SentWithin(video.ID, now, n.config.Cooldown) {
		telemetry.Inc(telemetry.AnnouncementsMuted)
		n.logger.Info("video announced recently, suppressing",
			"video_id", video.ID,
			"last_sent_at", n.state.Checkpoint.LastSentAt,
		)
		return false, nil
	}

	cp := domain.Checkpoint{
		LastVideoID:    video.ID,
		LastVideoTitle: video.Title,
		LastSentAt:     now,
	}
	n.state.Checkpoint = cp

	a := domain.Announcement{
		ID:        n.newID(),
		Kind:      domain.KindVideo,
		Title:     video.Title,
		URL:       video.URL,
		ImageURL:  video.ThumbnailURL,
		Everyone:  true,
		CreatedAt: now,
	}

	if err := n.persist(ctx, cp, &a); err != nil {
		n.logger.Error("failed to persist checkpoint", "video_id", video.ID, "error", err)
	}

	if err := n.send(ctx, a); err != nil {
		return true, fmt.Errorf("send video %s: %w", video.ID, err)
	}

	n.logger.Info("announced new video", "video_id", video.ID, "title", video.Title)
	return true, nil
}

// CheckVideo runs the video pipeline once. It returns the announced video,
// or nil when nothing was sent.
func (n *Notifier) CheckVideo(ctx context.Context) (*domain.Video, error) {
	video := n.LatestVideo(ctx)
	if video == nil {
		return nil, nil
	}

	sent, err := n.AnnounceVideo(ctx, *video)
	if !sent {
		return nil, err
	}
	return video, err
}

// ObserveLive records a liveness observation and reports whether it is an
// offline to live edge.
func (n *Notifier) ObserveLive(live bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.observeLive(live)
}

func (n *Notifier) observeLive(live bool) bool {
	was := n.state.Live
	n.state.Live = live
	telemetry.SetLive(live)

	switch {
	case live && !was:
		return true
	case !live && was:
		n.logger.Info("stream went offline", "username", n.config.Username)
	}
	return false
}

// CheckStream probes the channel once and announces a stream start on the
// rising edge. A probe error counts as offline.
func (n *Notifier) CheckStream(ctx context.Context) (bool, error) {
	live := n.probe(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.observeLive(live) {
		return false, nil
	}

	a := n.streamAnnouncement(false)
	n.record(ctx, &a)

	if err := n.send(ctx, a); err != nil {
		return true, fmt.Errorf("send stream notice: %w", err)
	}

	n.logger.Info("announced stream start", "username", n.config.Username)
	return true, nil
}

func (n *Notifier) probe(ctx context.Context) bool {
	if n.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.ProbeTimeout)
		defer cancel()
	}

	live, err := n.prober.Probe(ctx, n.config.Username)
	if err != nil {
		telemetry.Inc(telemetry.ProbeFailures)
		n.logger.Warn("liveness probe failed, treating as offline",
			"username", n.config.Username,
			"error", err,
		)
		return false
	}
	return live
}

// Check runs one tick: video first, then stream. Errors are absorbed into
// the result.
func (n *Notifier) Check(ctx context.Context) *domain.CheckResult {
	start := n.now()
	result := &domain.CheckResult{}

	video, err := n.CheckVideo(ctx)
	result.Video = video
	if err != nil {
		result.VideoErr = err
		n.logger.Error("video check failed", "error", err)
	}

	started, err := n.CheckStream(ctx)
	result.StreamStarted = started
	if err != nil {
		result.StreamErr = err
		n.logger.Error("stream check failed", "error", err)
	}
	result.Live = n.State().Live

	result.Duration = n.now().Sub(start)
	telemetry.Inc(telemetry.ChecksTotal)
	telemetry.ObserveCheck(result.Duration)

	n.logger.Info("check completed",
		"new_video", video != nil,
		"stream_started", result.StreamStarted,
		"live", result.Live,
		"duration", result.Duration,
	)

	return result
}

// SendTestVideo sends the newest qualifying video as a test notice without
// touching the checkpoint.
func (n *Notifier) SendTestVideo(ctx context.Context) (*domain.Video, error) {
	feed := n.fetchWithRetry(ctx)
	if feed == nil {
		return nil, ErrNoVideo
	}
	video := n.firstQualifying(feed)
	if video == nil {
		return nil, ErrNoVideo
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.send(ctx, domain.Announcement{
		ID:        n.newID(),
		Kind:      domain.KindVideo,
		Title:     video.Title,
		URL:       video.URL,
		ImageURL:  video.ThumbnailURL,
		Test:      true,
		CreatedAt: n.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("send test video: %w", err)
	}
	return video, nil
}

// SendTestStream sends a stream notice without probing or touching the live
// flag.
func (n *Notifier) SendTestStream(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.send(ctx, n.streamAnnouncement(true)); err != nil {
		return fmt.Errorf("send test stream: %w", err)
	}
	return nil
}

// Relay validates an operator-authored announcement and sends it. It never
// touches the checkpoint.
func (n *Notifier) Relay(ctx context.Context, p domain.PendingAnnouncement) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if p.PreviewPath != "" {
		if err := n.checkStaged(p.PreviewPath); err != nil {
			n.logger.Warn("rejected preview file", "preview_path", p.PreviewPath, "error", err)
			return err
		}
	}

	if p.PreviewURL != "" && n.images != nil && !n.images.Available(ctx, p.PreviewURL) {
		n.logger.Warn("preview image unreachable, sending without it", "preview_url", p.PreviewURL)
		p.PreviewURL = ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	a := domain.Announcement{
		ID:        n.newID(),
		Kind:      domain.KindManual,
		Title:     p.Message,
		URL:       p.VideoURL,
		ImageURL:  p.PreviewURL,
		ImagePath: p.PreviewPath,
		Everyone:  true,
		CreatedAt: n.now(),
	}
	n.record(ctx, &a)

	if err := n.send(ctx, a); err != nil {
		return fmt.Errorf("relay announcement: %w", err)
	}

	n.logger.Info("relayed announcement", "id", a.ID, "title", a.Title)
	return nil
}

// checkStaged rejects preview files outside the staging directory, after
// resolving symlinks on both sides.
func (n *Notifier) checkStaged(path string) error {
	if n.config.StagingDir == "" {
		return &domain.ValidationError{Field: "preview_path", Reason: "file uploads are not enabled"}
	}

	dir, err := resolvePath(n.config.StagingDir)
	if err != nil {
		return &domain.ValidationError{Field: "preview_path", Reason: "staging directory unavailable"}
	}
	target, err := resolvePath(path)
	if err != nil {
		return &domain.ValidationError{Field: "preview_path", Reason: "file not found"}
	}

	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &domain.ValidationError{Field: "preview_path", Reason: "outside the staging directory"}
	}
	return nil
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (n *Notifier) streamAnnouncement(test bool) domain.Announcement {
	return domain.Announcement{
		ID:        n.newID(),
		Kind:      domain.KindStream,
		Title:     n.config.Username,
		URL:       n.config.StreamURL,
		Everyone:  !test,
		Test:      test,
		CreatedAt: n.now(),
	}
}

// persist saves the checkpoint and records the announcement together when a
// transaction manager is configured.
func (n *Notifier) persist(ctx context.Context, cp domain.Checkpoint, a *domain.Announcement) error {
	fn := func(ctx context.Context) error {
		if err := n.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		if n.history != nil {
			if err := n.history.Record(ctx, a); err != nil {
				return fmt.Errorf("record announcement: %w", err)
			}
		}
		return nil
	}

	if n.txManager == nil {
		return fn(ctx)
	}
	return n.txManager.WithTransaction(ctx, fn)
}

func (n *Notifier) record(ctx context.Context, a *domain.Announcement) {
	if n.history == nil || a.Test {
		return
	}
	if err := n.history.Record(ctx, a); err != nil {
		n.logger.Warn("failed to record announcement", "id", a.ID, "error", err)
	}
}

// send must be called with mu held.
func (n *Notifier) send(ctx context.Context, a domain.Announcement) error {
	err := n.publisher.Publish(ctx, a)
	telemetry.RecordAnnouncement(string(a.Kind), err)

	if n.history != nil && !a.Test {
		if markErr := n.history.MarkDelivered(ctx, a.ID, err); markErr != nil {
			n.logger.Warn("failed to update announcement status", "id", a.ID, "error", markErr)
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
