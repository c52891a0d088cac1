// Package telemetry provides the relay's Prometheus metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChecksTotal        prometheus.Counter
	ChecksSkipped      prometheus.Counter
	FetchFailures      prometheus.Counter
	ProbeFailures      prometheus.Counter
	Announcements      *prometheus.CounterVec // kind, outcome
	RelayRequests      *prometheus.CounterVec // status
	AnnouncementsMuted prometheus.Counter

	// Histograms (seconds)
	CheckDuration prometheus.Observer

	// Gauges
	LiveGauge prometheus.Gauge // 1=live,0=offline
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChecksTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_checks_total", Help: "Number of check ticks run"})
		ChecksSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_checks_skipped_total", Help: "Number of ticks skipped because another check was running"})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_feed_fetch_failures_total", Help: "Number of failed feed fetch attempts"})
		ProbeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_probe_failures_total", Help: "Number of failed liveness probes"})
		Announcements = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_announcements_total", Help: "Announcements sent by kind and outcome"}, []string{"kind", "outcome"})
		RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_http_relay_requests_total", Help: "POST /relay requests by response status"}, []string{"status"})
		AnnouncementsMuted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_announcements_suppressed_total", Help: "Video announcements suppressed by the cooldown"})
		CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_check_duration_seconds", Help: "Check tick duration seconds", Buckets: prometheus.DefBuckets})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_stream_live", Help: "Stream live=1 offline=0"})
	})
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// RecordAnnouncement counts one send attempt.
func RecordAnnouncement(kind string, err error) {
	if Announcements == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	Announcements.WithLabelValues(kind, outcome).Inc()
}

func RecordRelayStatus(status string) {
	if RelayRequests != nil {
		RelayRequests.WithLabelValues(status).Inc()
	}
}

// SetLive sets the gauge to 1 if live else 0.
func SetLive(live bool) {
	if LiveGauge == nil {
		return
	}
	if live {
		LiveGauge.Set(1)
	} else {
		LiveGauge.Set(0)
	}
}

func ObserveCheck(d time.Duration) {
	if CheckDuration != nil {
		CheckDuration.Observe(d.Seconds())
	}
}
