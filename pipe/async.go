package pipe

import (
	"context"
	"sync"

	"github.com/bnkr/nerve"
)

// DefaultCapacity is the queue length of an Async pipe when none is given.
const DefaultCapacity = 8

// Async is a bounded queue between two jobs. Read waits while the queue is
// empty and Write waits while it is full; WriteWipe never waits.
type Async struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []nerve.Packet
	limit  int
	closed bool
	woken  bool
}

// NewAsync returns a pipe that holds up to capacity packets.
func NewAsync(capacity int) *Async {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	a := &Async{
		queue: make([]nerve.Packet, 0, capacity),
		limit: capacity,
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Read blocks until a packet is queued, the pipe is closed, ctx is done or
// the pipe is woken. A woken read returns no packet.
func (a *Async) Read(ctx context.Context) (nerve.Packet, bool, error) {
	stop := context.AfterFunc(ctx, a.broadcast)
	defer stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) == 0 {
		if a.closed {
			return nerve.Packet{}, false, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nerve.Packet{}, false, err
		}
		if a.woken {
			a.woken = false
			return nerve.Packet{}, false, nil
		}
		a.cond.Wait()
	}
	a.woken = false
	p := a.queue[0]
	a.queue[0] = nerve.Packet{}
	a.queue = a.queue[1:]
	a.cond.Broadcast()
	return p, true, nil
}

// TryRead returns the next packet if one is queued.
func (a *Async) TryRead() (nerve.Packet, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nerve.Packet{}, false
	}
	p := a.queue[0]
	a.queue[0] = nerve.Packet{}
	a.queue = a.queue[1:]
	a.cond.Broadcast()
	return p, true
}

// WouldBlock is true while the queue is empty and the pipe is open.
func (a *Async) WouldBlock() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue) == 0 && !a.closed
}

// Write blocks until there is room in the queue, the pipe is closed or ctx
// is done.
func (a *Async) Write(ctx context.Context, p nerve.Packet) error {
	stop := context.AfterFunc(ctx, a.broadcast)
	defer stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) >= a.limit {
		if a.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a.cond.Wait()
	}
	if a.closed {
		return ErrClosed
	}
	a.push(p)
	a.cond.Broadcast()
	return nil
}

// WriteWipe atomically replaces the whole queue with p. Writers waiting for
// room are released and will queue behind p.
func (a *Async) WriteWipe(p nerve.Packet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clear()
	a.push(p)
	a.cond.Broadcast()
}

// Wake releases a reader waiting on the empty queue, or the next one to
// wait if nobody does. A packet read first cancels the wake.
func (a *Async) Wake() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.woken = true
	a.cond.Broadcast()
}

// Clear drops every queued packet.
func (a *Async) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clear()
	a.cond.Broadcast()
}

// Len returns the number of queued packets.
func (a *Async) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Close releases all waiters. Queued packets can still be read.
func (a *Async) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.cond.Broadcast()
}

// Snapshot returns a copy of the queued packets.
func (a *Async) Snapshot() []nerve.Packet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]nerve.Packet(nil), a.queue...)
}

func (a *Async) push(p nerve.Packet) {
	// reslicing on read walks the queue along its backing array.
	if len(a.queue) == cap(a.queue) {
		a.queue = append(make([]nerve.Packet, 0, a.limit+1), a.queue...)
	}
	a.queue = append(a.queue, p)
}

func (a *Async) clear() {
	for i := range a.queue {
		a.queue[i] = nerve.Packet{}
	}
	a.queue = a.queue[:0]
}

func (a *Async) broadcast() {
	a.mu.Lock()
	a.cond.Broadcast()
	a.mu.Unlock()
}
