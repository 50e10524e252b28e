package pipe

import (
	"context"
	"sync"

	"github.com/bnkr/nerve"
)

// Discard terminates the pipeline. It drops every packet it is given and
// signals once a finish event arrives.
type Discard struct {
	once     sync.Once
	finished chan struct{}

	mu     sync.Mutex
	counts map[nerve.Event]int
}

// NewDiscard returns a terminal writer.
func NewDiscard() *Discard {
	return &Discard{
		finished: make(chan struct{}),
		counts:   make(map[nerve.Event]int),
	}
}

// Write drops the packet.
func (d *Discard) Write(_ context.Context, p nerve.Packet) error {
	d.WriteWipe(p)
	return nil
}

// WriteWipe drops the packet.
func (d *Discard) WriteWipe(p nerve.Packet) {
	d.mu.Lock()
	d.counts[p.Event]++
	d.mu.Unlock()
	if p.Event == nerve.Finish {
		d.once.Do(func() { close(d.finished) })
	}
}

// Finished is closed when the first finish event reached the end of the
// pipeline.
func (d *Discard) Finished() <-chan struct{} {
	return d.finished
}

// Count returns how many packets with the event arrived.
func (d *Discard) Count(e nerve.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[e]
}
