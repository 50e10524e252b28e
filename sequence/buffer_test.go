package sequence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/internal/mock"
	"github.com/bnkr/nerve/pipe"
	"github.com/bnkr/nerve/sequence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func data(v float64) nerve.Packet {
	return nerve.DataPacket(mock.Buffer(1, v))
}

func events(ps []nerve.Packet) []nerve.Event {
	var e []nerve.Event
	for _, p := range ps {
		e = append(e, p.Event)
	}
	return e
}

func processStages(ms ...*mock.Process) []nerve.ProcessStage {
	s := make([]nerve.ProcessStage, len(ms))
	for i := range ms {
		s[i] = ms[i]
	}
	return s
}

// calls returns the number of Process and Debuffer calls a stage received.
func calls(m *mock.Process) int {
	n, _ := m.Count()
	return n + m.Debuffered()
}

func TestBufferPassThrough(t *testing.T) {
	ctx := context.Background()
	stages := []*mock.Process{{}, {}, {}}
	in, out := pipe.NewLocal(), pipe.NewAsync(16)
	b := sequence.NewBuffer(processStages(stages...), in, out, nil)

	for i := 1; i <= 3; i++ {
		require.NoError(t, in.Write(ctx, data(float64(i))))
		status, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, nerve.Complete, status)
		assert.Equal(t, i, out.Len())
	}
	for _, s := range stages {
		assert.Equal(t, []float64{1, 2, 3}, s.Values())
	}

	// nothing upstream, nothing written
	status, err := b.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, nerve.Complete, status)
	assert.Equal(t, 3, out.Len())
}

// Every step calls each stage at most once and writes at most one packet,
// however many packets the stages emit for one input.
func TestBufferConstantDelay(t *testing.T) {
	ctx := context.Background()
	stages := []*mock.Process{{Fanout: 3}, {}, {Fanout: 2}}
	in, out := pipe.NewLocal(), pipe.NewAsync(16)
	b := sequence.NewBuffer(processStages(stages...), in, out, nil)

	require.NoError(t, in.Write(ctx, data(1)))
	status, err := b.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, nerve.Buffering, status)
	assert.Equal(t, 1, out.Len())

	// queued upstream input waits until every stage has drained
	require.NoError(t, in.Write(ctx, data(2)))
	before := []int{calls(stages[0]), calls(stages[1]), calls(stages[2])}
	for step := 2; step <= 6; step++ {
		status, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, step, out.Len())
		assert.True(t, in.Full(), "upstream read while buffering at step %d", step)
		for i, s := range stages {
			after := calls(s)
			assert.LessOrEqual(t, after-before[i], 1, "stage %d called more than once at step %d", i, step)
			before[i] = after
		}
		if step < 6 {
			assert.Equal(t, nerve.Buffering, status, "step %d", step)
		} else {
			assert.Equal(t, nerve.Complete, status)
		}
	}
	assert.False(t, b.Buffering())

	status, err = b.Step(ctx)
	require.NoError(t, err)
	assert.False(t, in.Full())
	assert.Equal(t, nerve.Buffering, status)
	assert.Equal(t, 7, out.Len())
}

// A stage that starts buffering while an earlier one still buffers is
// drained first; the earlier stage resumes afterwards.
func TestBufferStack(t *testing.T) {
	ctx := context.Background()
	first, middle, last := &mock.Process{Fanout: 3}, &mock.Process{}, &mock.Process{Fanout: 2}
	in, out := pipe.NewLocal(), pipe.NewAsync(16)
	b := sequence.NewBuffer(processStages(first, middle, last), in, out, nil)

	require.NoError(t, in.Write(ctx, data(1)))
	steps := []struct {
		first, last int
	}{
		{first: 0, last: 0}, // read upstream: first and last start buffering
		{first: 0, last: 1}, // last drains
		{first: 1, last: 1}, // first resumes, last buffers again
		{first: 1, last: 2}, // last drains before first resumes
		{first: 2, last: 2},
		{first: 2, last: 3},
	}
	for i, want := range steps {
		_, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.first, first.Debuffered(), "step %d", i+1)
		assert.Equal(t, want.last, last.Debuffered(), "step %d", i+1)
	}
	assert.False(t, b.Buffering())
	assert.Equal(t, 6, out.Len())
	processed, _ := middle.Count()
	assert.Equal(t, 3, processed)
}

func TestBufferDrop(t *testing.T) {
	ctx := context.Background()
	drop, after := &mock.Process{Drop: true}, &mock.Process{}
	in, out := pipe.NewLocal(), pipe.NewAsync(4)
	b := sequence.NewBuffer(processStages(drop, after), in, out, nil)

	require.NoError(t, in.Write(ctx, data(1)))
	status, err := b.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, nerve.Complete, status)
	assert.Equal(t, 0, out.Len())
	n, _ := after.Count()
	assert.Equal(t, 0, n)
}

func TestBufferEvents(t *testing.T) {
	ctx := context.Background()
	in, out := pipe.NewLocal(), pipe.NewAsync(4)

	t.Run("forwarded by default", func(t *testing.T) {
		s := &mock.Process{}
		b := sequence.NewBuffer(processStages(s), in, out, nil)
		require.NoError(t, in.Write(ctx, nerve.EventPacket(nerve.Flush)))
		_, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, []nerve.Event{nerve.Flush}, events(out.Snapshot()))
		n, _ := s.Count()
		assert.Equal(t, 0, n)
		out.Clear()
	})
	t.Run("handler", func(t *testing.T) {
		var got []nerve.Packet
		b := sequence.NewBuffer(processStages(&mock.Process{}), in, out, func(_ context.Context, p nerve.Packet) error {
			got = append(got, p)
			return nil
		})
		require.NoError(t, in.Write(ctx, nerve.EventPacket(nerve.Finish)))
		_, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, []nerve.Event{nerve.Finish}, events(got))
		assert.Equal(t, 0, out.Len())
	})
}

func TestBufferAbandonReset(t *testing.T) {
	ctx := context.Background()
	s := &mock.Process{Fanout: 4}
	in, out := pipe.NewLocal(), pipe.NewAsync(16)
	b := sequence.NewBuffer(processStages(s), in, out, nil)

	require.NoError(t, in.Write(ctx, data(1)))
	_, err := b.Step(ctx)
	require.NoError(t, err)
	require.True(t, b.Buffering())

	b.AbandonReset()
	s.Abandon()
	assert.False(t, b.Buffering())
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 0, s.Debuffered())

	require.NoError(t, in.Write(ctx, data(2)))
	_, err = b.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.Values())
}

// Finish waits until every held block was drained, and each step still
// writes at most one packet.
func TestBufferFinishDrains(t *testing.T) {
	ctx := context.Background()
	hold, fan := &mock.Process{Hold: true}, &mock.Process{Fanout: 2}
	in, out := pipe.NewLocal(), pipe.NewLocal()
	b := sequence.NewBuffer(processStages(hold, fan), in, out, nil)

	for i := 1; i <= 2; i++ {
		require.NoError(t, in.Write(ctx, data(float64(i))))
		status, err := b.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, nerve.Complete, status)
		assert.True(t, out.WouldBlock())
	}

	require.NoError(t, in.Write(ctx, nerve.EventPacket(nerve.Finish)))
	var got []nerve.Packet
	for step := 0; ; step++ {
		require.Less(t, step, 10, "finish never came out")
		status, err := b.Step(ctx)
		require.NoError(t, err)
		p, ok, err := out.Read(ctx)
		require.NoError(t, err)
		require.True(t, ok, "step %d wrote nothing", step)
		got = append(got, p)
		if status == nerve.Complete {
			break
		}
		assert.False(t, b.WouldBlock(), "step %d", step)
	}

	require.Len(t, got, 5)
	var values []float64
	for _, p := range got[:4] {
		require.Equal(t, nerve.Data, p.Event)
		values = append(values, p.Buffer.Data[0])
	}
	assert.Equal(t, []float64{1, 1, 2, 2}, values)
	assert.Equal(t, nerve.Finish, got[4].Event)
	assert.False(t, b.Buffering())
	assert.Equal(t, 1, hold.Drained())
	assert.Equal(t, 1, fan.Drained())
	assert.Zero(t, hold.Held())
	assert.Zero(t, fan.Pending())
}

// liar claims to buffer but has nothing to hand out.
type liar struct {
	mock.Hooks
}

func (*liar) Process(p nerve.Packet) nerve.Return {
	return nerve.EmitBuffering(p)
}

func (*liar) Debuffer() nerve.Return {
	return nerve.Empty()
}

func TestBufferDebufferEmptyPanics(t *testing.T) {
	ctx := context.Background()
	in, out := pipe.NewLocal(), pipe.NewAsync(4)
	b := sequence.NewBuffer([]nerve.ProcessStage{&liar{}}, in, out, nil)

	require.NoError(t, in.Write(ctx, data(1)))
	_, err := b.Step(ctx)
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = b.Step(ctx) })
}

func TestBufferWouldBlock(t *testing.T) {
	ctx := context.Background()
	in, out := pipe.NewAsync(4), pipe.NewAsync(16)
	b := sequence.NewBuffer(processStages(&mock.Process{Fanout: 2}), in, out, nil)
	assert.True(t, b.WouldBlock())

	require.NoError(t, in.Write(ctx, data(1)))
	assert.False(t, b.WouldBlock())
	_, err := b.Step(ctx)
	require.NoError(t, err)
	// buffering: the next step does not read upstream
	assert.False(t, b.WouldBlock())
	_, err = b.Step(ctx)
	require.NoError(t, err)
	assert.True(t, b.WouldBlock())
}
