// Package wav provides a WAV file input stage and a WAV file output stage.
package wav

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/signal"
	"github.com/bnkr/nerve/stage"
)

// DefaultFrames is the number of frames per packet read from a file.
const DefaultFrames = 512

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 8, 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when a file is not a valid wav file.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrNoTrack is returned by Skip when nothing is loaded.
	ErrNoTrack = errors.New("no track loaded")
)

type (
	// Input reads tracks from wav files.
	Input struct {
		stage.Base
		frames int

		path     string
		file     *os.File
		decoder  *wav.Decoder
		format   *audio.Format
		bitDepth signal.BitDepth
		ib       *audio.IntBuffer
		// pending samples at the start of ib left over from a skip
		pending int
		read    int64
		paused  bool
	}

	// Output saves audio to a wav file. The file is created with the format
	// of the first packet and completed when the stream finishes.
	Output struct {
		stage.Base
		path     string
		bitDepth signal.BitDepth
		log      logrus.FieldLogger

		file    *os.File
		encoder *wav.Encoder
		format  *audio.Format
		failed  bool
	}
)

// NewInput creates a new wav input.
func NewInput() *Input {
	return &Input{frames: DefaultFrames}
}

// Configure accepts "frames", the number of frames per packet.
func (s *Input) Configure(key, value string) error {
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

// Load opens the file at path, closing the previous one.
func (s *Input) Load(path string) error {
	s.close()
	file, err := os.Open(path)
	if err != nil {
		return err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if !bitDepth.Supported() {
		file.Close()
		return fmt.Errorf("%w: %s has %d bits", ErrUnsupportedBitDepth, path, decoder.BitDepth)
	}

	s.path = path
	s.file = file
	s.decoder = decoder
	s.format = decoder.Format()
	s.bitDepth = bitDepth
	s.read, s.pending = 0, 0
	s.ib = &audio.IntBuffer{
		Format:         s.format,
		Data:           make([]int, s.frames*s.format.NumChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	return nil
}

// Skip seeks to offset from the start of the track. The track is decoded
// again up to the offset.
func (s *Input) Skip(offset time.Duration) error {
	if s.path == "" {
		return ErrNoTrack
	}
	if err := s.Load(s.path); err != nil {
		return err
	}
	ch := int64(s.format.NumChannels)
	skip := signal.FramesOf(s.format.SampleRate, offset) * ch
	for skip > 0 {
		n, err := s.decoder.PCMBuffer(s.ib)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if int64(n) > skip {
			// keep the samples after the offset for the next read
			s.pending = copy(s.ib.Data, s.ib.Data[skip:n])
			s.read += skip / ch
			break
		}
		skip -= int64(n)
		s.read += int64(n) / ch
	}
	return nil
}

// Pause stops reading until it is called with false.
func (s *Input) Pause(paused bool) {
	s.paused = paused
}

// Read returns the next packet of the track. The file is closed once the
// track is exhausted.
func (s *Input) Read() nerve.Return {
	if s.paused || s.decoder == nil {
		return nerve.Empty()
	}
	n := s.pending
	if n == 0 {
		var err error
		if n, err = s.decoder.PCMBuffer(s.ib); err != nil || n == 0 {
			s.close()
			return nerve.Empty()
		}
	}
	s.pending = 0
	b := signal.AsFloat(s.ib, n, s.bitDepth)
	s.read += int64(signal.Frames(b))
	return nerve.Emit(nerve.DataPacket(b))
}

// Finish closes the file.
func (s *Input) Finish() {
	s.close()
}

// Track returns the path of the loaded track.
func (s *Input) Track() string {
	return s.path
}

// Position returns how far into the track reading has got.
func (s *Input) Position() time.Duration {
	if s.format == nil {
		return 0
	}
	return signal.DurationOf(s.format.SampleRate, s.read)
}

func (s *Input) close() {
	if s.file != nil {
		s.file.Close()
	}
	s.file, s.decoder = nil, nil
}

// NewOutput creates new wav output writing 16 bit samples.
func NewOutput(log logrus.FieldLogger) *Output {
	return &Output{
		bitDepth: signal.BitDepth16,
		log:      log,
	}
}

// Configure accepts "path" and "bits".
func (s *Output) Configure(key, value string) error {
	switch key {
	case "path":
		s.path = value
	case "bits":
		n, err := strconv.Atoi(value)
		if err != nil || !signal.BitDepth(n).Supported() {
			return fmt.Errorf("%w: %q", ErrUnsupportedBitDepth, value)
		}
		s.bitDepth = signal.BitDepth(n)
	default:
		return s.Base.Configure(key, value)
	}
	return nil
}

// Process writes data packets to the file and passes every packet on.
func (s *Output) Process(p nerve.Packet) nerve.Return {
	if p.Event != nerve.Data || p.Buffer == nil || s.failed {
		return nerve.Emit(p)
	}
	if s.encoder == nil {
		if err := s.open(p.Buffer.Format); err != nil {
			s.fail(err)
			return nerve.Emit(p)
		}
	}
	ib := &audio.IntBuffer{
		Format:         s.format,
		Data:           signal.AsInts(p.Buffer, s.bitDepth),
		SourceBitDepth: int(s.bitDepth),
	}
	if err := s.encoder.Write(ib); err != nil {
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
		s.log.WithError(err).WithField("path", s.path).Warn("wav output close failed")
	}
	s.failed = false
}

func (s *Output) open(format *audio.Format) error {
	if s.path == "" {
		return errors.New("wav output has no path configured")
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = f
	s.format = format
	s.encoder = wav.NewEncoder(f, format.SampleRate, int(s.bitDepth), format.NumChannels, 1)
	return nil
}

func (s *Output) fail(err error) {
	s.log.WithError(err).WithField("path", s.path).Warn("wav output failed, dropping audio until finish")
	s.failed = true
}

func (s *Output) close() error {
	if s.encoder == nil {
		return nil
	}
	err := s.encoder.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.encoder = nil, nil
	return err
}
