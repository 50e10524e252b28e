package dsp_test

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/dsp"
	"github.com/bnkr/nerve/log"
	"github.com/bnkr/nerve/stage"
)

func mono(values ...float64) nerve.Packet {
	return nerve.DataPacket(&audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:   values,
	})
}

func TestGain(t *testing.T) {
	g := dsp.NewGain()
	r := g.Process(mono(0.5))
	require.True(t, r.Ok)
	assert.Equal(t, []float64{0.5}, r.Packet.Buffer.Data)

	require.NoError(t, g.Configure("db", "-6"))
	r = g.Process(mono(1, -1))
	assert.InDeltaSlice(t, []float64{0.501, -0.501}, r.Packet.Buffer.Data, 1e-3)
	assert.False(t, r.Buffering)

	// events pass untouched
	r = g.Process(nerve.EventPacket(nerve.Flush))
	assert.Equal(t, nerve.Flush, r.Packet.Event)

	assert.Error(t, g.Configure("db", "loud"))
	assert.ErrorIs(t, g.Configure("gain", "1"), stage.ErrUnknownKey)
}

func TestReframe(t *testing.T) {
	type step struct {
		in        []float64
		debuffer  bool
		drain     bool
		out       []float64
		buffering bool
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "short input waits",
			steps: []step{
				{in: []float64{1, 2}},
				{in: []float64{3}, out: []float64{1, 2, 3}},
			},
		},
		{
			name: "long input buffers",
			steps: []step{
				{in: []float64{1, 2, 3, 4, 5, 6, 7}, out: []float64{1, 2, 3}, buffering: true},
				{debuffer: true, out: []float64{4, 5, 6}},
				{in: []float64{8, 9}, out: []float64{7, 8, 9}},
			},
		},
		{
			name: "exact",
			steps: []step{
				{in: []float64{1, 2, 3}, out: []float64{1, 2, 3}},
				{in: []float64{4, 5, 6, 7, 8, 9}, out: []float64{4, 5, 6}, buffering: true},
				{debuffer: true, out: []float64{7, 8, 9}},
				{drain: true},
			},
		},
		{
			name: "finish emits the short tail",
			steps: []step{
				{in: []float64{1, 2, 3, 4, 5}, out: []float64{1, 2, 3}},
				{drain: true, out: []float64{4, 5}},
				{drain: true},
				{in: []float64{6}},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := dsp.NewReframe()
			require.NoError(t, r.Configure("frames", "3"))
			for i, s := range test.steps {
				var ret nerve.Return
				switch {
				case s.debuffer:
					ret = r.Debuffer()
				case s.drain:
					ret = r.Drain()
				default:
					ret = r.Process(mono(s.in...))
				}
				if s.out == nil {
					assert.False(t, ret.Ok, "step %d", i)
					continue
				}
				require.True(t, ret.Ok, "step %d", i)
				assert.Equal(t, s.out, ret.Packet.Buffer.Data, "step %d", i)
				assert.Equal(t, s.buffering, ret.Buffering, "step %d", i)
			}
		})
	}
}

func TestReframeReset(t *testing.T) {
	r := dsp.NewReframe()
	require.NoError(t, r.Configure("frames", "2"))
	assert.False(t, r.Process(mono(1)).Ok)
	r.Abandon()
	assert.False(t, r.Process(mono(2)).Ok)
	ret := r.Process(mono(3))
	require.True(t, ret.Ok)
	assert.Equal(t, []float64{2, 3}, ret.Packet.Buffer.Data)

	assert.Error(t, r.Configure("frames", "0"))
}

func TestMeter(t *testing.T) {
	m := dsp.NewMeter(log.Discard())
	m.Observe(mono(0.1, -0.8))
	m.Observe(mono(0.5))
	peak, frames := m.Peak()
	assert.Equal(t, 0.8, peak)
	assert.Equal(t, int64(3), frames)

	m.Finish()
	peak, frames = m.Peak()
	assert.Zero(t, peak)
	assert.Zero(t, frames)
}

func TestNull(t *testing.T) {
	var n dsp.Null
	p := mono(1)
	r := n.Process(p)
	assert.Equal(t, p, r.Packet)
	assert.False(t, n.Debuffer().Ok)
}
