package sequence

import (
	"context"
	"fmt"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/pipe"
)

// EventFunc handles a non-data packet read by a buffer.
type EventFunc func(context.Context, nerve.Packet) error

// Buffer steps a chain of process stages so that every step costs at most
// one stage call per stage, however many packets a stage emits for one
// input. Stages that report buffering are bookmarked on a stack. While the
// stack is not empty, a step debuffers the stage on top and feeds the packet
// through the stages after it; upstream is read only once every stage has
// drained.
//
// Finish is held back while the stages that implement nerve.Drainer give up
// their partial blocks, one stage per step, and is handed on after the last
// of them.
type Buffer struct {
	stages []nerve.ProcessStage
	in     pipe.Reader
	out    pipe.Writer
	events EventFunc
	marks  []int
	finish *nerve.Packet
	drain  int
}

// NewBuffer returns a buffer over stages. Non-data packets are given to
// events, or written downstream unchanged if events is nil.
func NewBuffer(stages []nerve.ProcessStage, in pipe.Reader, out pipe.Writer, events EventFunc) *Buffer {
	b := &Buffer{
		stages: stages,
		in:     in,
		out:    out,
		events: events,
	}
	if b.events == nil {
		b.events = func(ctx context.Context, p nerve.Packet) error {
			return b.out.Write(ctx, p)
		}
	}
	return b
}

// Buffering is true while a stage holds output or finish is held back.
func (b *Buffer) Buffering() bool {
	return len(b.marks) > 0 || b.finish != nil
}

// Status returns Buffering while a stage holds output or finish is held
// back.
func (b *Buffer) Status() nerve.Status {
	if b.Buffering() {
		return nerve.Buffering
	}
	return nerve.Complete
}

// WouldBlock is true if a step would read from an upstream that is empty.
func (b *Buffer) WouldBlock() bool {
	return !b.Buffering() && b.in.WouldBlock()
}

// Step debuffers the bookmarked stage, drains the next stage towards a held
// finish or reads one packet from upstream. Then it writes the packet that
// comes out of the last stage, if any.
func (b *Buffer) Step(ctx context.Context) (nerve.Status, error) {
	if len(b.marks) > 0 {
		return b.debuffer(ctx)
	}
	if b.finish != nil {
		return b.finalise(ctx)
	}
	p, ok, err := b.in.Read(ctx)
	if err != nil || !ok {
		return nerve.Complete, err
	}
	switch p.Event {
	case nerve.Data:
		return b.feed(ctx, p, 0)
	case nerve.Finish:
		b.finish, b.drain = &p, 0
		return b.finalise(ctx)
	}
	return b.Status(), b.events(ctx, p)
}

func (b *Buffer) debuffer(ctx context.Context) (nerve.Status, error) {
	top := len(b.marks) - 1
	i := b.marks[top]
	r := b.stages[i].Debuffer()
	if !r.Ok {
		panic(fmt.Sprintf("sequence: stage %d (%T) was bookmarked but had nothing buffered", i, b.stages[i]))
	}
	if !r.Buffering {
		b.marks = b.marks[:top]
	}
	return b.feed(ctx, r.Packet, i+1)
}

// feed runs p through the stages from index start on.
func (b *Buffer) feed(ctx context.Context, p nerve.Packet, start int) (nerve.Status, error) {
	for i := start; i < len(b.stages); i++ {
		r := b.stages[i].Process(p)
		if !r.Ok {
			return b.Status(), nil
		}
		if r.Buffering {
			b.marks = append(b.marks, i)
		}
		p = r.Packet
	}
	if err := b.out.Write(ctx, p); err != nil {
		return b.Status(), err
	}
	return b.Status(), nil
}

// finalise asks the next drainable stage for its partial block and feeds it
// through the stages after it. Once no stage is left the held finish goes
// to events.
func (b *Buffer) finalise(ctx context.Context) (nerve.Status, error) {
	for b.drain < len(b.stages) {
		i := b.drain
		b.drain++
		d, ok := b.stages[i].(nerve.Drainer)
		if !ok {
			continue
		}
		r := d.Drain()
		if !r.Ok {
			continue
		}
		if r.Buffering {
			b.marks = append(b.marks, i)
		}
		return b.feed(ctx, r.Packet, i+1)
	}
	p := *b.finish
	b.finish = nil
	return b.Status(), b.events(ctx, p)
}

// AbandonReset drops every bookmark without visiting the stages.
func (b *Buffer) AbandonReset() {
	b.marks = b.marks[:0]
}
