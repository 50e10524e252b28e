// Package state persists the playback position between daemon runs.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// State is where playback stopped.
type State struct {
	Track    string        `yaml:"track"`
	Position time.Duration `yaml:"position"`
}

// Empty reports whether there is nothing to resume.
func (s State) Empty() bool {
	return s.Track == ""
}

// Load reads the state file. A missing file is an empty state.
func Load(path string) (State, error) {
	var s State
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.UnmarshalStrict(b, &s); err != nil {
		return State{}, fmt.Errorf("error reading state %s: %w", path, err)
	}
	if s.Position < 0 {
		return State{}, fmt.Errorf("error reading state %s: negative position %v", path, s.Position)
	}
	return s, nil
}

// Save replaces the state file. The file is written next to its final name
// and renamed, so a crash leaves the previous state intact.
func Save(path string, s State) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
