// Package dsp provides the builtin stages that work on samples: gain,
// reframe, meter and the null output.
package dsp

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/signal"
	"github.com/bnkr/nerve/stage"
)

// Gain scales data packets by a fixed amount of decibels.
type Gain struct {
	stage.Base
	factor float64
}

// NewGain returns a gain of 0 dB.
func NewGain() *Gain {
	return &Gain{factor: 1}
}

// Configure accepts "db".
func (s *Gain) Configure(key, value string) error {
	if key != "db" {
		return s.Base.Configure(key, value)
	}
	db, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	s.factor = math.Pow(10, db/20)
	return nil
}

// Process implements nerve.ProcessStage. Samples are scaled in place.
func (s *Gain) Process(p nerve.Packet) nerve.Return {
	if p.Event == nerve.Data && p.Buffer != nil && s.factor != 1 {
		for i := range p.Buffer.Data {
			p.Buffer.Data[i] *= s.factor
		}
	}
	return nerve.Emit(p)
}

// Debuffer implements nerve.ProcessStage.
func (s *Gain) Debuffer() nerve.Return {
	return nerve.Empty()
}

// DefaultFrames is the packet size of a reframe stage when none is set.
const DefaultFrames = 1024

// Reframe re-chunks the stream into packets of a fixed number of frames.
// An input packet that completes several output packets makes the stage
// buffer; frames that do not fill a packet wait for the next input and come
// out as a short packet when the stream finishes.
type Reframe struct {
	stage.Base
	frames int
	acc    *audio.FloatBuffer
}

// NewReframe returns a reframe stage producing DefaultFrames per packet.
func NewReframe() *Reframe {
	return &Reframe{frames: DefaultFrames}
}

// Configure accepts "frames".
func (s *Reframe) Configure(key, value string) error {
	if key != "frames" {
		return s.Base.Configure(key, value)
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("frames must be a positive number, got %q", value)
	}
	s.frames = n
	return nil
}

// Process implements nerve.ProcessStage.
func (s *Reframe) Process(p nerve.Packet) nerve.Return {
	if p.Event != nerve.Data || p.Buffer == nil {
		return nerve.Emit(p)
	}
	if s.acc != nil && *s.acc.Format != *p.Buffer.Format {
		// a new format starts a new stream
		s.acc = nil
	}
	s.acc = signal.Append(s.acc, p.Buffer)
	return s.next()
}

// Debuffer implements nerve.ProcessStage.
func (s *Reframe) Debuffer() nerve.Return {
	return s.next()
}

func (s *Reframe) next() nerve.Return {
	if signal.Frames(s.acc) < s.frames {
		return nerve.Empty()
	}
	out := signal.Slice(s.acc, 0, s.frames)
	s.acc = signal.Slice(s.acc, s.frames, signal.Frames(s.acc))
	p := nerve.DataPacket(out)
	if signal.Frames(s.acc) >= s.frames {
		return nerve.EmitBuffering(p)
	}
	return nerve.Emit(p)
}

// Drain implements nerve.Drainer.
func (s *Reframe) Drain() nerve.Return {
	out := s.acc
	s.acc = nil
	if signal.Frames(out) == 0 {
		return nerve.Empty()
	}
	return nerve.Emit(nerve.DataPacket(out))
}

// Abandon drops frames waiting for a packet.
func (s *Reframe) Abandon() {
	s.acc = nil
}

// Flush drops frames waiting for a packet.
func (s *Reframe) Flush() {
	s.acc = nil
}

// Finish drops frames waiting for a packet.
func (s *Reframe) Finish() {
	s.acc = nil
}

// Meter observes the peak level of a stream.
type Meter struct {
	stage.Base
	log    logrus.FieldLogger
	peak   float64
	frames int64
}

// NewMeter returns a meter that reports to log when a stream finishes.
func NewMeter(log logrus.FieldLogger) *Meter {
	return &Meter{log: log}
}

// Observe implements nerve.ObserverStage.
func (s *Meter) Observe(p nerve.Packet) {
	if p.Buffer == nil {
		return
	}
	for _, v := range p.Buffer.Data {
		if v = math.Abs(v); v > s.peak {
			s.peak = v
		}
	}
	s.frames += int64(signal.Frames(p.Buffer))
}

// Peak returns the highest absolute sample value seen and the number of
// frames observed since the last reset.
func (s *Meter) Peak() (float64, int64) {
	return s.peak, s.frames
}

// Abandon resets the meter.
func (s *Meter) Abandon() {
	s.peak, s.frames = 0, 0
}

// Finish logs the peak and resets the meter.
func (s *Meter) Finish() {
	db := math.Inf(-1)
	if s.peak > 0 {
		db = 20 * math.Log10(s.peak)
	}
	s.log.WithFields(logrus.Fields{"peak_db": db, "frames": s.frames}).Debug("meter")
	s.Abandon()
}

// Null is an output that plays nothing.
type Null struct {
	stage.Base
}

// Process implements nerve.ProcessStage.
func (Null) Process(p nerve.Packet) nerve.Return {
	return nerve.Emit(p)
}

// Debuffer implements nerve.ProcessStage.
func (Null) Debuffer() nerve.Return {
	return nerve.Empty()
}
