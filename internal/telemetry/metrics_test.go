package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := ChecksTotal
	Init()

	require.NotNil(t, first)
	assert.Same(t, first, ChecksTotal)
}

func TestRecordAnnouncement(t *testing.T) {
	Init()

	before := testutil.ToFloat64(Announcements.WithLabelValues("video", "failed"))
	RecordAnnouncement("video", errors.New("boom"))
	after := testutil.ToFloat64(Announcements.WithLabelValues("video", "failed"))

	assert.Equal(t, before+1, after)
}

func TestSetLive(t *testing.T) {
	Init()

	SetLive(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(LiveGauge))

	SetLive(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(LiveGauge))
}
