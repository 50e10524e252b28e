//go:build portaudio

// Package portaudio provides an output stage that plays audio on the
// default device.
package portaudio

import (
	"fmt"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/stage"
)

// DefaultFrames is the device buffer size when none is configured.
const DefaultFrames = 512

// Output plays packets on the default device. The stream is opened with the
// format of the first packet and reopened when the format changes.
type Output struct {
	stage.Base
	frames int
	log    logrus.FieldLogger

	stream *portaudio.Stream
	format audio.Format
	buf    []float32
	filled int
	failed bool
}

// NewOutput returns an output with DefaultFrames frames per device write.
func NewOutput(log logrus.FieldLogger) *Output {
	return &Output{
		frames: DefaultFrames,
		log:    log,
	}
}

// Configure accepts "frames".
func (s *Output) Configure(key, value string) error {
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

// Process writes the samples of data packets to the stream and passes every
// packet on. Writes block until the device has room.
func (s *Output) Process(p nerve.Packet) nerve.Return {
	if p.Event != nerve.Data || p.Buffer == nil || s.failed {
		return nerve.Emit(p)
	}
	if s.stream == nil || s.format != *p.Buffer.Format {
		if err := s.open(*p.Buffer.Format); err != nil {
			s.fail(err)
			return nerve.Emit(p)
		}
	}
	for _, v := range p.Buffer.Data {
		s.buf[s.filled] = float32(v)
		s.filled++
		if s.filled < len(s.buf) {
			continue
		}
		s.filled = 0
		if err := s.stream.Write(); err != nil {
			s.fail(err)
			break
		}
	}
	return nerve.Emit(p)
}

// Debuffer implements nerve.ProcessStage. The output never buffers.
func (s *Output) Debuffer() nerve.Return {
	return nerve.Empty()
}

// Abandon drops samples that have not been written to the device.
func (s *Output) Abandon() {
	s.filled = 0
}

// Flush drops samples that have not been written to the device.
func (s *Output) Flush() {
	s.filled = 0
}

// Finish terminates portaudio structures.
func (s *Output) Finish() {
	if err := s.close(); err != nil {
		s.log.WithError(err).Warn("portaudio close failed")
	}
	s.failed = false
}

func (s *Output) open(format audio.Format) error {
	if err := s.close(); err != nil {
		return err
	}
	s.buf = make([]float32, s.frames*format.NumChannels)
	s.filled = 0
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	stream, err := portaudio.OpenDefaultStream(0, format.NumChannels, float64(format.SampleRate), s.frames, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}
	s.stream, s.format = stream, format
	return nil
}

func (s *Output) fail(err error) {
	s.log.WithError(err).Warn("portaudio output failed, dropping audio until finish")
	s.failed = true
}

func (s *Output) close() error {
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		return err
	}
	if err := stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
