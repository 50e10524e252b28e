// Package stage creates stage instances for the plugins named in a
// configuration. Builtin plugins are registered by id; external plugins are
// Go plugins loaded from a path.
package stage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/config"
)

var (
	// ErrUnknownPlugin is returned for a builtin id that is not registered.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrUnknownKey is returned by Configure for a key a stage does not use.
	ErrUnknownKey = errors.New("unknown configuration key")
)

// Factory returns a new stage instance.
type Factory func() nerve.SimpleStage

type entry struct {
	category nerve.Category
	factory  Factory
}

// Registry maps plugin ids to factories.
type Registry struct {
	mu       sync.Mutex
	builtins map[string]entry
	loader   func(path string) (Factory, nerve.Category, error)
}

// NewRegistry returns an empty registry that loads external plugins with
// LoadExternal.
func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[string]entry),
		loader:   LoadExternal,
	}
}

// Register adds a builtin plugin. It panics if the id is taken.
func (r *Registry) Register(id string, c nerve.Category, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builtins[id]; ok {
		panic(fmt.Sprintf("stage: plugin %q registered twice", id))
	}
	r.builtins[id] = entry{category: c, factory: f}
}

// IDs returns the registered builtin ids in order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.builtins))
	for id := range r.builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the category a plugin provides. It has the signature the
// configuration resolver expects.
func (r *Registry) Lookup(p config.Plugin) (nerve.Category, bool) {
	e, err := r.entry(p)
	if err != nil {
		return nerve.Unset, false
	}
	return e.category, true
}

// New returns a fresh instance of the plugin and its category.
func (r *Registry) New(p config.Plugin) (nerve.SimpleStage, nerve.Category, error) {
	e, err := r.entry(p)
	if err != nil {
		return nil, nerve.Unset, err
	}
	return e.factory(), e.category, nil
}

func (r *Registry) entry(p config.Plugin) (entry, error) {
	if !p.External() {
		r.mu.Lock()
		defer r.mu.Unlock()
		e, ok := r.builtins[p.ID]
		if !ok {
			return entry{}, fmt.Errorf("%w: %q", ErrUnknownPlugin, p.ID)
		}
		return e, nil
	}
	f, c, err := r.loader(p.Path)
	if err != nil {
		return entry{}, err
	}
	return entry{category: c, factory: f}, nil
}

// Configure applies a configure block to a stage. Errors carry the position
// of the offending pair.
func Configure(s nerve.SimpleStage, cfg *config.Configure) error {
	if cfg == nil {
		return nil
	}
	for _, pair := range cfg.Pairs {
		if err := s.Configure(pair.Key, pair.Value); err != nil {
			return fmt.Errorf("%v: configure %q: %s: %w", pair.Pos, cfg.Name, pair.Key, err)
		}
	}
	return nil
}

// Base implements the control methods of nerve.SimpleStage as no-ops and
// rejects every configuration key. Stages embed it and override what they
// need.
type Base struct{}

// Abandon implements nerve.SimpleStage.
func (Base) Abandon() {}

// Flush implements nerve.SimpleStage.
func (Base) Flush() {}

// Finish implements nerve.SimpleStage.
func (Base) Finish() {}

// Configure implements nerve.SimpleStage.
func (Base) Configure(key, _ string) error {
	return fmt.Errorf("%w %q", ErrUnknownKey, key)
}
