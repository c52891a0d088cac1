// Package server exposes the health check, the relay endpoint used by the
// compose bot, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notify_relay/internal/domain"
	"notify_relay/internal/publisher"
	"notify_relay/internal/telemetry"
)

const maxRelayBody = 64 << 10

// Relayer sends an operator-authored announcement.
type Relayer interface {
	Relay(ctx context.Context, p domain.PendingAnnouncement) error
}

type Config struct {
	Addr             string
	AllowRemoteRelay bool
}

type Server struct {
	relayer Relayer
	cfg     Config
	logger  *slog.Logger
}

func New(relayer Relayer, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		relayer: relayer,
		cfg:     cfg,
		logger:  logger.With("component", "http"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /relay", s.handleRelay)
	mux.Handle("GET /metrics", promhttp.Handler())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", corr)

		s.logger.Debug("request start", "method", r.Method, "path", r.URL.Path, "corr", corr)
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowRemoteRelay && !isLoopback(r.RemoteAddr) {
		s.logger.Warn("rejected relay from remote address", "remote_addr", r.RemoteAddr)
		s.reply(w, http.StatusForbidden, "forbidden")
		return
	}

	var p domain.PendingAnnouncement
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBody)).Decode(&p); err != nil {
		s.reply(w, http.StatusBadRequest, "invalid json body")
		return
	}

	err := s.relayer.Relay(r.Context(), p)

	var verr *domain.ValidationError
	switch {
	case err == nil:
		s.reply(w, http.StatusOK, "sent")
	case errors.As(err, &verr):
		s.reply(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, publisher.ErrDestinationNotFound):
		s.logger.Error("relay destination not found", "error", err)
		s.reply(w, http.StatusNotFound, "destination channel not found")
	default:
		s.logger.Error("relay failed", "error", err)
		s.reply(w, http.StatusInternalServerError, "error: "+err.Error())
	}
}

func (s *Server) reply(w http.ResponseWriter, status int, body string) {
	telemetry.RecordRelayStatus(strconv.Itoa(status))
	writeText(w, status, body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.cfg.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
