package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/avrecorder/internal/test"
)

func TestServer(t *testing.T) {
	m := &Metrics{}
	m.Initialize()
	m.SessionEnded("too_short")

	s := &Server{
		Address: "127.0.0.1:0",
		Metrics: m,
		Parent:  test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	res, err := hc.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(byts), `avrecorder_sessions_total{outcome="too_short"} 1`))

	res2, err := hc.Get("http://" + s.Addr() + "/other")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusNotFound, res2.StatusCode)
}
