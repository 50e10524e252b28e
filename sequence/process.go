package sequence

import (
	"context"
	"fmt"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/pipe"
)

// Process drives process and output stages through a progressive buffer.
type Process struct {
	stages []nerve.SimpleStage
	out    pipe.Writer
	buffer *Buffer
}

// NewProcess returns a sequence over stages reading from in and writing to
// out.
func NewProcess(stages []nerve.ProcessStage, in pipe.Reader, out pipe.Writer) *Process {
	s := &Process{
		stages: make([]nerve.SimpleStage, len(stages)),
		out:    out,
	}
	for i := range stages {
		s.stages[i] = stages[i]
	}
	s.buffer = NewBuffer(stages, in, out, s.event)
	return s
}

// Step implements Sequence.
func (s *Process) Step(ctx context.Context) (nerve.Status, error) {
	return s.buffer.Step(ctx)
}

// WouldBlock implements Sequence.
func (s *Process) WouldBlock() bool {
	return s.buffer.WouldBlock()
}

// Buffering is true while a stage holds output.
func (s *Process) Buffering() bool {
	return s.buffer.Buffering()
}

func (s *Process) event(ctx context.Context, p nerve.Packet) error {
	switch p.Event {
	case nerve.Abandon:
		s.buffer.AbandonReset()
	case nerve.Finish, nerve.Flush:
	default:
		panic(fmt.Sprintf("sequence: %v event reached a process sequence", p.Event))
	}
	propagate(s.stages, s.out, p)
	return nil
}
