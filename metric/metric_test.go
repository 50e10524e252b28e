package metric_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/metric"
)

func TestMetrics(t *testing.T) {
	m := metric.New()
	buf := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 100},
		Data:   make([]float64, 2*50),
	}

	// counters are safe for concurrent jobs
	routines, packets := 4, 10
	var wg sync.WaitGroup
	wg.Add(routines)
	for i := 0; i < routines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < packets; j++ {
				m.Pass("decode")
				m.Step("decode", "in")
				m.Packet(nerve.DataPacket(buf))
			}
			m.Skip("decode")
		}()
	}
	wg.Wait()
	m.Packet(nerve.EventPacket(nerve.Finish))

	n, err := testutil.GatherAndCount(m.Registry(), "nerve_packets_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = testutil.GatherAndCount(m.Registry(), "nerve_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path := filepath.Join(t.TempDir(), "nerve.prom")
	require.NoError(t, m.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `nerve_packets_total{event="data"} 40`)
	assert.Contains(t, out, `nerve_packets_total{event="finish"} 1`)
	assert.Contains(t, out, `nerve_passes_total{job="decode"} 40`)
	assert.Contains(t, out, `nerve_steps_total{job="decode",section="in"} 40`)
	assert.Contains(t, out, `nerve_skips_total{job="decode"} 4`)
	assert.Contains(t, out, "nerve_frames_total 2000")
	assert.Contains(t, out, "nerve_played_seconds_total 20")
}

func TestNilMetrics(t *testing.T) {
	var m *metric.Metrics
	assert.NotPanics(t, func() {
		m.Pass("a")
		m.Step("a", "b")
		m.Skip("a")
		m.Packet(nerve.EventPacket(nerve.Finish))
	})
}
