package discord

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notify_relay/internal/domain"
	"notify_relay/internal/scheduler"
	"notify_relay/internal/storage/postgres"
)

type fakeRunner struct {
	calls  int
	result *domain.CheckResult
	err    error
}

func (f *fakeRunner) RunOnce(ctx context.Context) (*domain.CheckResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeTester struct {
	videoCalls  int
	streamCalls int
	err         error
}

func (f *fakeTester) SendTestVideo(ctx context.Context) (*domain.Video, error) {
	f.videoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Video{ID: "abc", Title: "Latest upload"}, nil
}

func (f *fakeTester) SendTestStream(ctx context.Context) error {
	f.streamCalls++
	return f.err
}

func newTestCommands(runner *fakeRunner, tester *fakeTester) *Commands {
	return NewCommands(runner, tester, "owner", "!", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_IgnoresNonCommands(t *testing.T) {
	c := newTestCommands(&fakeRunner{}, &fakeTester{})
	ctx := context.Background()

	assert.Empty(t, c.Dispatch(ctx, "owner", "hello there"))
	assert.Empty(t, c.Dispatch(ctx, "owner", "!"))
	assert.Empty(t, c.Dispatch(ctx, "owner", "!unknown"))
}

func TestDispatch_HelpIsOpen(t *testing.T) {
	c := newTestCommands(&fakeRunner{}, &fakeTester{})

	reply := c.Dispatch(context.Background(), "someone", "!help")

	assert.Contains(t, reply, "!check")
	assert.Contains(t, reply, "!testvideo")
	assert.Contains(t, reply, "!teststream")
}

func TestDispatch_OperatorOnly(t *testing.T) {
	for _, cmd := range []string{"!check", "!testvideo", "!teststream", "!history"} {
		t.Run(cmd, func(t *testing.T) {
			runner := &fakeRunner{result: &domain.CheckResult{}}
			tester := &fakeTester{}
			c := newTestCommands(runner, tester)

			reply := c.Dispatch(context.Background(), "intruder", cmd)

			assert.Equal(t, replyDenied, reply)
			assert.Zero(t, runner.calls)
			assert.Zero(t, tester.videoCalls)
			assert.Zero(t, tester.streamCalls)
		})
	}
}

func TestDispatch_NoOwnerConfiguredDeniesAll(t *testing.T) {
	runner := &fakeRunner{}
	c := NewCommands(runner, &fakeTester{}, "", "!", slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, replyDenied, c.Dispatch(context.Background(), "", "!check"))
	assert.Zero(t, runner.calls)
}

func TestDispatch_Check(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   string
	}{
		{
			name:   "new video and stream",
			runner: &fakeRunner{result: &domain.CheckResult{Video: &domain.Video{Title: "Fresh"}, StreamStarted: true, Live: true}},
			want:   "announced **Fresh**",
		},
		{
			name:   "nothing new",
			runner: &fakeRunner{result: &domain.CheckResult{}},
			want:   "offline",
		},
		{
			name:   "video error",
			runner: &fakeRunner{result: &domain.CheckResult{VideoErr: errors.New("discord down")}},
			want:   "discord down",
		},
		{
			name:   "busy",
			runner: &fakeRunner{err: scheduler.ErrCheckInProgress},
			want:   replyInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCommands(tt.runner, &fakeTester{})

			reply := c.Dispatch(context.Background(), "owner", "  !CHECK  ")

			assert.Contains(t, reply, tt.want)
			assert.Equal(t, 1, tt.runner.calls)
		})
	}
}

func TestDispatch_TestNotices(t *testing.T) {
	tester := &fakeTester{}
	c := newTestCommands(&fakeRunner{}, tester)
	ctx := context.Background()

	assert.Contains(t, c.Dispatch(ctx, "owner", "!testvideo"), "Latest upload")
	assert.Contains(t, c.Dispatch(ctx, "owner", "!teststream"), "sent")
	assert.Equal(t, 1, tester.videoCalls)
	assert.Equal(t, 1, tester.streamCalls)

	tester.err = errors.New("no channel")
	assert.Contains(t, c.Dispatch(ctx, "owner", "!testvideo"), "failed")
	assert.Contains(t, c.Dispatch(ctx, "owner", "!teststream"), "failed")
}

func TestDispatch_CustomPrefix(t *testing.T) {
	runner := &fakeRunner{result: &domain.CheckResult{}}
	c := NewCommands(runner, &fakeTester{}, "owner", "?", slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Empty(t, c.Dispatch(context.Background(), "owner", "!check"))
	assert.NotEmpty(t, c.Dispatch(context.Background(), "owner", "?check"))
	assert.Equal(t, 1, runner.calls)
}

type fakeHistory struct {
	records []postgres.AnnouncementRecord
	err     error
	limit   int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]postgres.AnnouncementRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func TestDispatch_History(t *testing.T) {
	c := newTestCommands(&fakeRunner{}, &fakeTester{})
	assert.Contains(t, c.Dispatch(context.Background(), "owner", "!history"), "not enabled")

	history := &fakeHistory{}
	c.SetHistory(history)
	assert.Contains(t, c.Dispatch(context.Background(), "owner", "!history"), "No announcements yet")
	assert.Equal(t, historyLimit, history.limit)

	history.records = []postgres.AnnouncementRecord{
		{
			Kind:      "video",
			Title:     "New upload",
			Status:    postgres.StatusDelivered,
			CreatedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			Kind:      "stream",
			Title:     "streamer",
			Status:    postgres.StatusFailed,
			Error:     sql.NullString{String: "discord down", Valid: true},
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	reply := c.Dispatch(context.Background(), "owner", "!history")
	assert.Contains(t, reply, "`2025-03-01 12:30` video **New upload** (delivered)")
	assert.Contains(t, reply, "stream **streamer** (failed): discord down")

	history.err = errors.New("connection refused")
	assert.Contains(t, c.Dispatch(context.Background(), "owner", "!history"), "History lookup failed")
}
