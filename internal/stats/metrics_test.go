package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollect(t *testing.T) {
	c := NewCollector()
	c.AddBytesIn(2048)
	c.AddRectangles(7)
	m := NewMetrics(c, "abc")

	expected := `
# HELP rdpc_rectangles_total Bitmap rectangles drawn.
# TYPE rdpc_rectangles_total counter
rdpc_rectangles_total{session_id="abc"} 7
# HELP rdpc_bytes_received_total Bytes read from the transport.
# TYPE rdpc_bytes_received_total counter
rdpc_bytes_received_total{session_id="abc"} 2048
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected),
		"rdpc_rectangles_total", "rdpc_bytes_received_total"))
	assert.Equal(t, len(counterHelp)+1, testutil.CollectAndCount(m))
}

func TestMetricsObserveStep(t *testing.T) {
	m := NewMetrics(NewCollector(), "abc")
	m.ObserveStep("attach", 5*time.Millisecond)
	m.ObserveStep("join", 5*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.steps))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "rdpc_handshake_step_seconds")
	assert.Contains(t, names, "go_goroutines")
}
