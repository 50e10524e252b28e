package wav_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/log"
	"github.com/bnkr/nerve/stage"
	"github.com/bnkr/nerve/wav"
)

const sampleRate = 8000

// ramp returns a stereo buffer of n frames starting at sample value from.
func ramp(n, from int) *audio.FloatBuffer {
	b := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:   make([]float64, n*2),
	}
	for i := 0; i < n; i++ {
		v := float64(from+i) / 1000
		b.Data[2*i], b.Data[2*i+1] = v, -v
	}
	return b
}

// write creates a wav file with frames frames using the output stage.
func write(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramp.wav")
	out := wav.NewOutput(log.Discard())
	require.NoError(t, out.Configure("path", path))
	for sent := 0; sent < frames; sent += 100 {
		r := out.Process(nerve.DataPacket(ramp(100, sent)))
		require.True(t, r.Ok)
		assert.False(t, r.Buffering)
	}
	out.Finish()
	return path
}

func readAll(in *wav.Input) (packets int, samples []float64) {
	for {
		r := in.Read()
		if !r.Ok {
			return
		}
		packets++
		samples = append(samples, r.Packet.Buffer.Data...)
	}
}

func TestRoundTrip(t *testing.T) {
	path := write(t, 500)

	in := wav.NewInput()
	require.NoError(t, in.Configure("frames", "128"))
	require.NoError(t, in.Load(path))
	assert.Equal(t, path, in.Track())

	packets, samples := readAll(in)
	assert.Equal(t, 4, packets)
	require.Len(t, samples, 1000)
	assert.InDelta(t, 0.0, samples[0], 1e-4)
	assert.InDelta(t, 0.499, samples[998], 1e-4)
	assert.InDelta(t, -0.499, samples[999], 1e-4)
	assert.Equal(t, 500*time.Second/sampleRate, in.Position())

	// exhausted
	assert.False(t, in.Read().Ok)
}

func TestSkip(t *testing.T) {
	path := write(t, 800)
	in := wav.NewInput()
	require.NoError(t, in.Configure("frames", "256"))
	assert.ErrorIs(t, in.Skip(time.Second), wav.ErrNoTrack)
	require.NoError(t, in.Load(path))

	// 50ms is 400 frames
	require.NoError(t, in.Skip(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, in.Position())
	r := in.Read()
	require.True(t, r.Ok)
	assert.InDelta(t, 0.4, r.Packet.Buffer.Data[0], 1e-4)

	_, samples := readAll(in)
	assert.Len(t, samples, 2*(800-400)-len(r.Packet.Buffer.Data))
	assert.Equal(t, 100*time.Millisecond, in.Position())

	// skipping past the end leaves nothing to read
	require.NoError(t, in.Skip(time.Hour))
	assert.False(t, in.Read().Ok)
}

func TestPause(t *testing.T) {
	in := wav.NewInput()
	require.NoError(t, in.Load(write(t, 100)))
	in.Pause(true)
	assert.False(t, in.Read().Ok)
	in.Pause(false)
	assert.True(t, in.Read().Ok)
}

func TestErrors(t *testing.T) {
	in := wav.NewInput()
	assert.Error(t, in.Load(filepath.Join(t.TempDir(), "missing.wav")))

	garbage := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not a riff file at all"), 0o600))
	assert.ErrorIs(t, in.Load(garbage), wav.ErrInvalidFile)
	assert.False(t, in.Read().Ok)

	assert.ErrorIs(t, in.Configure("volume", "11"), stage.ErrUnknownKey)
	assert.Error(t, in.Configure("frames", "-1"))

	out := wav.NewOutput(log.Discard())
	assert.ErrorIs(t, out.Configure("bits", "12"), wav.ErrUnsupportedBitDepth)
	// no path: audio still passes through
	r := out.Process(nerve.DataPacket(ramp(10, 0)))
	assert.True(t, r.Ok)
	out.Finish()
}
