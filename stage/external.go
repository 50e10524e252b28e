package stage

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/bnkr/nerve"
)

// Symbol is the name an external plugin exports its constructor under. The
// constructor must have the type of NewStageFunc.
const Symbol = "NewStage"

// NewStageFunc creates a stage of an external plugin.
type NewStageFunc = func() (nerve.SimpleStage, nerve.Category)

// ErrBadPlugin is returned when a shared object does not export a usable
// constructor.
var ErrBadPlugin = errors.New("bad plugin")

// LoadExternal opens the Go plugin at path and returns a factory for its
// stages and their category.
func LoadExternal(path string) (Factory, nerve.Category, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, nerve.Unset, fmt.Errorf("open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		return nil, nerve.Unset, fmt.Errorf("%w %s: %v", ErrBadPlugin, path, err)
	}
	var fn NewStageFunc
	switch v := sym.(type) {
	case NewStageFunc:
		fn = v
	case *NewStageFunc:
		fn = *v
	default:
		return nil, nerve.Unset, fmt.Errorf("%w %s: %s has type %T", ErrBadPlugin, path, Symbol, sym)
	}
	_, c := fn()
	if c == nerve.Unset {
		return nil, nerve.Unset, fmt.Errorf("%w %s: no category", ErrBadPlugin, path)
	}
	return func() nerve.SimpleStage {
		s, _ := fn()
		return s
	}, c, nil
}
