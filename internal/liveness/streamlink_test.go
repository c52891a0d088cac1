package liveness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamlinkOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		live    bool
		wantErr bool
	}{
		{"live", `{"plugin":"twitch","streams":{"best":{"type":"hls"},"worst":{"type":"hls"}}}`, true, false},
		{"offline", `{"error":"No playable streams found on this URL: https://twitch.tv/someone"}`, false, false},
		{"no streams key", `{"plugin":"twitch","streams":{}}`, false, false},
		{"plugin error", `{"error":"No plugin can handle URL"}`, false, true},
		{"empty", ``, false, true},
		{"garbage", `Traceback (most recent call last)`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live, err := parseStreamlinkOutput([]byte(tt.out))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.live, live)
		})
	}
}

func TestStreamlink_Probe(t *testing.T) {
	s := NewStreamlink("", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var gotArgs []string
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{"error":"No playable streams found on this URL"}`), errors.New("exit status 1")
	}

	live, err := s.Probe(context.Background(), "someone")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, []string{"streamlink", "--json", "https://twitch.tv/someone"}, gotArgs)
}

func TestStreamlink_ProbeFailure(t *testing.T) {
	s := NewStreamlink("/missing/streamlink", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("executable file not found")
	}

	_, err := s.Probe(context.Background(), "someone")

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, "someone", probeErr.Username)
}
