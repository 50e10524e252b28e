// Package pipe connects sequences. A Local pipe joins two sequences that
// run one after another in the same job; an Async pipe joins jobs.
package pipe

import (
	"context"
	"errors"

	"github.com/bnkr/nerve"
)

// ErrClosed is returned by blocking operations on a closed pipe.
var ErrClosed = errors.New("pipe is closed")

type (
	// Reader is the receiving end of a pipe.
	Reader interface {
		// Read returns the next packet. Ok is false when a non-blocking
		// pipe is empty or a blocking one was woken.
		Read(context.Context) (p nerve.Packet, ok bool, err error)
		// WouldBlock is true if Read would have to wait for a writer.
		WouldBlock() bool
	}

	// Writer is the sending end of a pipe.
	Writer interface {
		Write(context.Context, nerve.Packet) error
		// WriteWipe replaces everything queued with the packet.
		WriteWipe(nerve.Packet)
	}

	// Link is both ends of a pipe.
	Link interface {
		Reader
		Writer
	}
)

// Local is a single slot pipe between two sequences of the same job. Both
// ends run sequentially, so it is not synchronised and never blocks.
type Local struct {
	packet nerve.Packet
	full   bool
}

// NewLocal returns an empty single slot pipe.
func NewLocal() *Local {
	return &Local{}
}

// Read takes the packet out of the slot.
func (l *Local) Read(context.Context) (nerve.Packet, bool, error) {
	if !l.full {
		return nerve.Packet{}, false, nil
	}
	p := l.packet
	l.packet, l.full = nerve.Packet{}, false
	return p, true, nil
}

// WouldBlock is always false.
func (l *Local) WouldBlock() bool {
	return false
}

// Write puts the packet in the slot. The slot must be empty: the reading
// sequence always drains it in the same pass.
func (l *Local) Write(_ context.Context, p nerve.Packet) error {
	if l.full {
		panic("pipe: write to occupied local slot")
	}
	l.packet, l.full = p, true
	return nil
}

// WriteWipe replaces the slot contents.
func (l *Local) WriteWipe(p nerve.Packet) {
	l.packet, l.full = p, true
}

// Full reports whether the slot holds a packet.
func (l *Local) Full() bool {
	return l.full
}
