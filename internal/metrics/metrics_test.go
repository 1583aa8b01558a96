package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := &Metrics{}
	m.Initialize()

	m.SampleWritten(TrackVideo, 100)
	m.SampleWritten(TrackVideo, 50)
	m.SampleDropped(TrackAudio)
	m.SessionEnded("completed")
	m.EncoderStarted()
	m.EncoderStarted()
	m.EncoderStopped()

	require.Equal(t, float64(2), testutil.ToFloat64(m.samplesWritten.WithLabelValues(TrackVideo)))
	require.Equal(t, float64(150), testutil.ToFloat64(m.bytesWritten.WithLabelValues(TrackVideo)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.samplesDropped.WithLabelValues(TrackAudio)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.sessions.WithLabelValues("completed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.encodersActive))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `avrecorder_samples_written_total{track="video"} 2`))
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.SampleWritten(TrackVideo, 1)
	m.SampleDropped(TrackVideo)
	m.SessionEnded("failed")
	m.EncoderStarted()
	m.EncoderStopped()
}
