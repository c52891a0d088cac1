package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify_relay/internal/domain"
)

func newTestStore(t *testing.T) (*CheckpointStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "youtube_state.json")
	return NewCheckpointStore(path, slog.New(slog.NewTextHandler(io.Discard, nil))), path
}

func TestCheckpointStore_LoadMissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	cp := store.Load(context.Background())

	require.NotNil(t, cp)
	assert.Equal(t, domain.Checkpoint{}, *cp)
}

func TestCheckpointStore_LoadMalformed(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cp := store.Load(context.Background())

	assert.Equal(t, domain.Checkpoint{}, *cp)
}

func TestCheckpointStore_LoadLegacyFile(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"last_video_id": "abc"}`), 0o600))

	cp := store.Load(context.Background())

	assert.Equal(t, "abc", cp.LastVideoID)
	assert.Empty(t, cp.LastVideoTitle)
	assert.True(t, cp.LastSentAt.IsZero())
}

func TestCheckpointStore_SaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sent := time.Unix(1700000000, 500000000)

	err := store.Save(ctx, domain.Checkpoint{
		LastVideoID:    "vid1",
		LastVideoTitle: "First video",
		LastSentAt:     sent,
	})
	require.NoError(t, err)

	cp := store.Load(ctx)
	assert.Equal(t, "vid1", cp.LastVideoID)
	assert.Equal(t, "First video", cp.LastVideoTitle)
	assert.True(t, sent.Equal(cp.LastSentAt))
}

func TestCheckpointStore_SaveZeroWritesNulls(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Save(context.Background(), domain.Checkpoint{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_video_id": null, "last_video_title": null, "last_sent_time": 0}`, string(data))
}

func TestCheckpointStore_RoundTripIsFixedPoint(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	original := `{"last_sent_time": 1700000000.5, "last_video_title": "Title", "last_video_id": "xyz"}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	require.NoError(t, store.Save(ctx, *store.Load(ctx)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, original, string(data))
}

func TestCheckpointStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Save(context.Background(), domain.Checkpoint{LastVideoID: "a"}))
	require.NoError(t, store.Save(context.Background(), domain.Checkpoint{LastVideoID: "b"}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "b", store.Load(context.Background()).LastVideoID)
}
