//go:build lame

package mp3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/viert/lame"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/signal"
	"github.com/bnkr/nerve/stage"
)

// Output encodes audio to an mp3 file. The encoder is set up with the
// format of the first packet and the file is completed when the stream
// finishes.
type Output struct {
	stage.Base
	path    string
	bitRate int
	quality int
	log     logrus.FieldLogger

	f      *os.File
	wr     *lame.LameWriter
	failed bool
}

// NewOutput creates new mp3 output with 192 kbit/s and quality 2.
func NewOutput(log logrus.FieldLogger) *Output {
	return &Output{
		bitRate: 192,
		quality: 2,
		log:     log,
	}
}

// Configure accepts "path", "bitrate" and "quality".
func (s *Output) Configure(key, value string) error {
	switch key {
	case "path":
		s.path = value
		return nil
	case "bitrate", "quality":
	default:
		return s.Base.Configure(key, value)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if key == "bitrate" {
		s.bitRate = n
	} else {
		s.quality = n
	}
	return nil
}

// Process writes data packets to the file and passes every packet on.
func (s *Output) Process(p nerve.Packet) nerve.Return {
	if p.Event != nerve.Data || p.Buffer == nil || s.failed {
		return nerve.Emit(p)
	}
	if s.wr == nil {
		if err := s.open(p.Buffer.Format.SampleRate, p.Buffer.Format.NumChannels); err != nil {
			s.fail(err)
			return nerve.Emit(p)
		}
	}
	buf := new(bytes.Buffer)
	ints := signal.AsInts(p.Buffer, signal.BitDepth16)
	for i := range ints {
		if err := binary.Write(buf, binary.LittleEndian, int16(ints[i])); err != nil {
			s.fail(err)
			return nerve.Emit(p)
		}
	}
	if _, err := s.wr.Write(buf.Bytes()); err != nil {
		s.fail(err)
	}
	return nerve.Emit(p)
}

// Debuffer implements nerve.ProcessStage. The output never buffers.
func (s *Output) Debuffer() nerve.Return {
	return nerve.Empty()
}

// Finish completes the file. The next packet starts a new one.
func (s *Output) Finish() {
	if err := s.close(); err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("mp3 output close failed")
	}
	s.failed = false
}

func (s *Output) open(sampleRate, numChannels int) error {
	if s.path == "" {
		return errors.New("mp3 output has no path configured")
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.f = f
	s.wr = lame.NewWriter(f)
	s.wr.Encoder.SetBitrate(s.bitRate)
	s.wr.Encoder.SetQuality(s.quality)
	s.wr.Encoder.SetNumChannels(numChannels)
	s.wr.Encoder.SetInSamplerate(sampleRate)
	s.wr.Encoder.SetMode(lame.JOINT_STEREO)
	s.wr.Encoder.SetVBR(lame.VBR_RH)
	s.wr.Encoder.InitParams()
	return nil
}

func (s *Output) fail(err error) {
	s.log.WithError(err).WithField("path", s.path).Warn("mp3 output failed, dropping audio until finish")
	s.failed = true
}

func (s *Output) close() error {
	if s.wr == nil {
		return nil
	}
	err := s.wr.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f, s.wr = nil, nil
	return err
}
