// Package sequence drives runs of stages. A section of the pipeline is split
// into sequences by stage kind: the input stage, consecutive process and
// output stages, and consecutive observers. Each step of a sequence handles
// at most one packet from upstream.
package sequence

import (
	"context"
	"fmt"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/pipe"
)

// Sequence is a run of stages that can be stepped by a section.
type Sequence interface {
	// Step handles one packet. Buffering is returned while the sequence
	// holds output that must be drained before new input is read.
	Step(context.Context) (nerve.Status, error)
	// WouldBlock is true if Step would have to wait for upstream.
	WouldBlock() bool
}

// propagate passes a non-data event through stages and writes it with wipe,
// so the event supersedes everything still queued downstream.
func propagate(stages []nerve.SimpleStage, out pipe.Writer, p nerve.Packet) {
	for _, s := range stages {
		switch p.Event {
		case nerve.Flush:
			s.Flush()
		case nerve.Abandon:
			s.Abandon()
		case nerve.Finish:
			s.Finish()
		default:
			panic(fmt.Sprintf("sequence: cannot propagate %v event", p.Event))
		}
	}
	out.WriteWipe(p)
}
