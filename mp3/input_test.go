package mp3_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve/log"
	"github.com/bnkr/nerve/mp3"
	"github.com/bnkr/nerve/stage"
)

func TestInputErrors(t *testing.T) {
	in := mp3.NewInput(log.Discard())
	assert.ErrorIs(t, in.Skip(time.Second), mp3.ErrNoTrack)
	assert.Error(t, in.Load(filepath.Join(t.TempDir(), "missing.mp3")))
	// a failed load leaves nothing to skip into
	assert.ErrorIs(t, in.Skip(0), mp3.ErrNoTrack)
	assert.Equal(t, "", in.Track())

	garbage := filepath.Join(t.TempDir(), "garbage.mp3")
	require.NoError(t, os.WriteFile(garbage, make([]byte, 64), 0o600))
	assert.Error(t, in.Load(garbage))
	assert.False(t, in.Read().Ok)
	assert.Equal(t, time.Duration(0), in.Position())

	assert.NoError(t, in.Configure("frames", "576"))
	assert.Error(t, in.Configure("frames", "none"))
	assert.ErrorIs(t, in.Configure("bitrate", "128"), stage.ErrUnknownKey)
}
