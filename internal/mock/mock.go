// Package mock provides stages for tests. They count what they are given
// and can be programmed to buffer, drop or fail.
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/bnkr/nerve"
)

const (
	defaultFrames     = 4
	defaultSampleRate = 44100
)

// Hooks records calls of the control methods and lets them fail.
type Hooks struct {
	mu        sync.Mutex
	abandoned int
	flushed   int
	finished  int
	config    map[string]string

	ErrorOnConfigure error
}

// Abandon implements nerve.SimpleStage.
func (h *Hooks) Abandon() {
	h.mu.Lock()
	h.abandoned++
	h.mu.Unlock()
}

// Flush implements nerve.SimpleStage.
func (h *Hooks) Flush() {
	h.mu.Lock()
	h.flushed++
	h.mu.Unlock()
}

// Finish implements nerve.SimpleStage.
func (h *Hooks) Finish() {
	h.mu.Lock()
	h.finished++
	h.mu.Unlock()
}

// Configure implements nerve.SimpleStage.
func (h *Hooks) Configure(key, value string) error {
	if h.ErrorOnConfigure != nil {
		return h.ErrorOnConfigure
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.config == nil {
		h.config = make(map[string]string)
	}
	h.config[key] = value
	return nil
}

// Calls returns how often abandon, flush and finish were called.
func (h *Hooks) Calls() (abandoned, flushed, finished int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.abandoned, h.flushed, h.finished
}

// Config returns a configured value.
func (h *Hooks) Config(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config[key]
}

// counter counts packets and frames.
type counter struct {
	mu      sync.Mutex
	packets []nerve.Packet
	frames  int
}

func (c *counter) advance(p nerve.Packet) {
	c.mu.Lock()
	c.packets = append(c.packets, p)
	c.frames += p.Frames()
	c.mu.Unlock()
}

// Count returns number of packets and frames seen.
func (c *counter) Count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets), c.frames
}

// Packets returns a copy of every packet seen.
func (c *counter) Packets() []nerve.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]nerve.Packet(nil), c.packets...)
}

// Values returns the first sample of every data packet seen. Input numbers
// its packets through the sample values, so this shows the order.
func (c *counter) Values() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var v []float64
	for _, p := range c.packets {
		if p.Event == nerve.Data && p.Buffer != nil && len(p.Buffer.Data) > 0 {
			v = append(v, p.Buffer.Data[0])
		}
	}
	return v
}

// Buffer returns a mono buffer of n frames all set to value.
func Buffer(n int, value float64) *audio.FloatBuffer {
	b := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: defaultSampleRate},
		Data:   make([]float64, n),
	}
	for i := range b.Data {
		b.Data[i] = value
	}
	return b
}

// Input mocks nerve.InputStage. Every loaded track yields Limit packets of
// Frames frames; the samples of the n-th packet of a track are set to n+1.
type Input struct {
	counter
	Hooks

	Limit       int
	Frames      int
	ErrorOnLoad error
	ErrorOnSkip error

	state  sync.Mutex
	track  string
	sent   int
	paused bool
	loads  []string
	skips  []time.Duration
}

// Load implements nerve.InputStage.
func (m *Input) Load(path string) error {
	m.state.Lock()
	defer m.state.Unlock()
	m.loads = append(m.loads, path)
	if m.ErrorOnLoad != nil {
		return m.ErrorOnLoad
	}
	m.track, m.sent = path, 0
	return nil
}

// Skip implements nerve.InputStage. The offset is counted in packets of
// one millisecond each.
func (m *Input) Skip(offset time.Duration) error {
	m.state.Lock()
	defer m.state.Unlock()
	m.skips = append(m.skips, offset)
	if m.ErrorOnSkip != nil {
		return m.ErrorOnSkip
	}
	m.sent = int(offset / time.Millisecond)
	return nil
}

// Pause implements nerve.InputStage.
func (m *Input) Pause(paused bool) {
	m.state.Lock()
	m.paused = paused
	m.state.Unlock()
}

// Read implements nerve.InputStage.
func (m *Input) Read() nerve.Return {
	m.state.Lock()
	if m.paused || m.track == "" || m.sent >= m.Limit {
		m.state.Unlock()
		return nerve.Empty()
	}
	m.sent++
	n := m.sent
	m.state.Unlock()

	frames := m.Frames
	if frames == 0 {
		frames = defaultFrames
	}
	p := nerve.DataPacket(Buffer(frames, float64(n)))
	m.advance(p)
	return nerve.Emit(p)
}

// Track implements nerve.Positioner.
func (m *Input) Track() string {
	m.state.Lock()
	defer m.state.Unlock()
	return m.track
}

// Position implements nerve.Positioner.
func (m *Input) Position() time.Duration {
	m.state.Lock()
	defer m.state.Unlock()
	return time.Duration(m.sent) * time.Millisecond
}

// Loads returns every path passed to Load.
func (m *Input) Loads() []string {
	m.state.Lock()
	defer m.state.Unlock()
	return append([]string(nil), m.loads...)
}

// Skips returns every offset passed to Skip.
func (m *Input) Skips() []time.Duration {
	m.state.Lock()
	defer m.state.Unlock()
	return append([]time.Duration(nil), m.skips...)
}

// Paused reports whether the input is paused.
func (m *Input) Paused() bool {
	m.state.Lock()
	defer m.state.Unlock()
	return m.paused
}

// Process mocks nerve.ProcessStage. Each packet is emitted Fanout times;
// every copy after the first is handed out by Debuffer. Drop makes Process
// swallow its input. Hold makes it keep every packet back until Drain.
type Process struct {
	counter
	Hooks

	Fanout int
	Drop   bool
	Hold   bool

	pending    []nerve.Packet
	held       []nerve.Packet
	debuffered int
	drained    int
}

// Process implements nerve.ProcessStage.
func (m *Process) Process(p nerve.Packet) nerve.Return {
	if len(m.pending) > 0 {
		panic(fmt.Sprintf("mock: process called with %d packets buffered", len(m.pending)))
	}
	m.advance(p)
	if m.Drop {
		return nerve.Empty()
	}
	if m.Hold {
		m.held = append(m.held, p)
		return nerve.Empty()
	}
	for i := 1; i < m.Fanout; i++ {
		m.pending = append(m.pending, p)
	}
	if len(m.pending) > 0 {
		return nerve.EmitBuffering(p)
	}
	return nerve.Emit(p)
}

// Debuffer implements nerve.ProcessStage.
func (m *Process) Debuffer() nerve.Return {
	if len(m.pending) == 0 {
		return nerve.Empty()
	}
	p := m.pending[0]
	m.pending = m.pending[1:]
	m.debuffered++
	if len(m.pending) > 0 {
		return nerve.EmitBuffering(p)
	}
	return nerve.Emit(p)
}

// Drain implements nerve.Drainer. The held packets come out in order; all
// but the first are handed out by Debuffer.
func (m *Process) Drain() nerve.Return {
	m.drained++
	if len(m.held) == 0 {
		return nerve.Empty()
	}
	p := m.held[0]
	m.pending = append(m.pending, m.held[1:]...)
	m.held = nil
	if len(m.pending) > 0 {
		return nerve.EmitBuffering(p)
	}
	return nerve.Emit(p)
}

// Abandon implements nerve.SimpleStage and drops pending output.
func (m *Process) Abandon() {
	m.pending = nil
	m.held = nil
	m.Hooks.Abandon()
}

// Held returns the number of packets kept back for Drain.
func (m *Process) Held() int {
	return len(m.held)
}

// Drained returns how many times Drain was called.
func (m *Process) Drained() int {
	return m.drained
}

// Pending returns the number of buffered packets.
func (m *Process) Pending() int {
	return len(m.pending)
}

// Debuffered returns how many packets were handed out by Debuffer.
func (m *Process) Debuffered() int {
	return m.debuffered
}

// Observer mocks nerve.ObserverStage.
type Observer struct {
	counter
	Hooks
}

// Observe implements nerve.ObserverStage.
func (m *Observer) Observe(p nerve.Packet) {
	m.advance(p)
}
