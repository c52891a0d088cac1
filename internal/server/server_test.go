package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify_relay/internal/domain"
	"notify_relay/internal/publisher"
)

type fakeRelayer struct {
	got   []domain.PendingAnnouncement
	err   error
	check bool
}

func (f *fakeRelayer) Relay(ctx context.Context, p domain.PendingAnnouncement) error {
	f.got = append(f.got, p)
	if f.check {
		p.Normalize()
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return f.err
}

func newTestServer(relayer Relayer, allowRemote bool) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(relayer, Config{AllowRemoteRelay: allowRemote}, logger).Handler()
}

func relayRequest(body, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/relay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	return req
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeRelayer{}, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestHealth_UnknownPath(t *testing.T) {
	h := newTestServer(&fakeRelayer{}, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelay_Sent(t *testing.T) {
	relayer := &fakeRelayer{}
	h := newTestServer(relayer, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, relayRequest(`{"message":"hello","preview_url":"https://x.test/a.png","video_url":"https://x.test/v"}`, "127.0.0.1:40000"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sent", rec.Body.String())
	require.Len(t, relayer.got, 1)
	assert.Equal(t, domain.PendingAnnouncement{
		Message:    "hello",
		PreviewURL: "https://x.test/a.png",
		VideoURL:   "https://x.test/v",
	}, relayer.got[0])
}

func TestRelay_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		relayer    *fakeRelayer
		body       string
		remoteAddr string
		allow      bool
		wantStatus int
	}{
		{"ipv6 loopback", &fakeRelayer{}, `{"message":"hi"}`, "[::1]:40000", false, http.StatusOK},
		{"remote rejected", &fakeRelayer{}, `{"message":"hi"}`, "192.0.2.10:40000", false, http.StatusForbidden},
		{"remote allowed", &fakeRelayer{}, `{"message":"hi"}`, "192.0.2.10:40000", true, http.StatusOK},
		{"bad json", &fakeRelayer{}, `{"message":`, "127.0.0.1:1", false, http.StatusBadRequest},
		{"validation", &fakeRelayer{check: true}, `{"message":""}`, "127.0.0.1:1", false, http.StatusBadRequest},
		{"not found", &fakeRelayer{err: fmt.Errorf("relay: %w", publisher.ErrDestinationNotFound)}, `{"message":"hi"}`, "127.0.0.1:1", false, http.StatusNotFound},
		{"internal", &fakeRelayer{err: errors.New("boom")}, `{"message":"hi"}`, "127.0.0.1:1", false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(tt.relayer, tt.allow)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, relayRequest(tt.body, tt.remoteAddr))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRelay_RemoteNeverReachesRelayer(t *testing.T) {
	relayer := &fakeRelayer{}
	h := newTestServer(relayer, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, relayRequest(`{"message":"hi"}`, "203.0.113.5:1234"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, relayer.got)
}

func TestRelay_MethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeRelayer{}, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics(t *testing.T) {
	h := newTestServer(&fakeRelayer{}, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
