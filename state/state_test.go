package state_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve/state"
)

func TestState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")

	s, err := state.Load(path)
	require.NoError(t, err)
	assert.True(t, s.Empty())

	want := state.State{Track: "/music/a b.wav", Position: 90 * time.Second}
	require.NoError(t, state.Save(path, want))
	got, err := state.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.Empty())

	// overwriting leaves no temporary files behind
	require.NoError(t, state.Save(path, state.State{}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "track: a\nvolume: 3\n"},
		{name: "bad position", content: "track: a\nposition: soon\n"},
		{name: "negative position", content: "track: a\nposition: -1s\n"},
		{name: "not a map", content: "- a\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.yaml")
			require.NoError(t, os.WriteFile(path, []byte(test.content), 0o644))
			_, err := state.Load(path)
			assert.Error(t, err)
		})
	}
}
