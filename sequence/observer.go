package sequence

import (
	"context"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/pipe"
)

// Observer shows data packets to observer stages and passes them on
// unchanged.
type Observer struct {
	stages []nerve.ObserverStage
	simple []nerve.SimpleStage
	in     pipe.Reader
	out    pipe.Writer
}

// NewObserver returns a sequence over stages reading from in and writing to
// out.
func NewObserver(stages []nerve.ObserverStage, in pipe.Reader, out pipe.Writer) *Observer {
	s := &Observer{
		stages: stages,
		simple: make([]nerve.SimpleStage, len(stages)),
		in:     in,
		out:    out,
	}
	for i := range stages {
		s.simple[i] = stages[i]
	}
	return s
}

// Step implements Sequence.
func (s *Observer) Step(ctx context.Context) (nerve.Status, error) {
	p, ok, err := s.in.Read(ctx)
	if err != nil || !ok {
		return nerve.Complete, err
	}
	if p.Event != nerve.Data {
		propagate(s.simple, s.out, p)
		return nerve.Complete, nil
	}
	for _, st := range s.stages {
		st.Observe(p)
	}
	return nerve.Complete, s.out.Write(ctx, p)
}

// WouldBlock implements Sequence.
func (s *Observer) WouldBlock() bool {
	return s.in.WouldBlock()
}
