// Package mp3 provides an mp3 input stage and, built with the lame tag, an
// mp3 file output stage.
package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/signal"
	"github.com/bnkr/nerve/stage"
)

const (
	// DefaultFrames is the number of frames per packet read from a file.
	DefaultFrames = 1152
	// the decoder always provides 16 bit stereo.
	numChannels = 2
	frameBytes  = numChannels * 2
)

// ErrNoTrack is returned by Skip when nothing is loaded.
var ErrNoTrack = errors.New("no track loaded")

// Input reads tracks from mp3 files.
type Input struct {
	stage.Base
	frames int
	log    logrus.FieldLogger

	path    string
	file    *os.File
	decoder *mp3.Decoder
	format  *audio.Format
	buf     []byte
	read    int64
	paused  bool
}

// NewInput creates a new mp3 input. Decoding errors are logged to log.
func NewInput(log logrus.FieldLogger) *Input {
	return &Input{frames: DefaultFrames, log: log}
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
	s.path = ""
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	s.path = path
	s.file = f
	s.decoder = d
	s.format = &audio.Format{NumChannels: numChannels, SampleRate: d.SampleRate()}
	s.buf = make([]byte, s.frames*frameBytes)
	s.read = 0
	return nil
}

// Skip seeks to offset from the start of the track. A track that played
// out is opened again.
func (s *Input) Skip(offset time.Duration) error {
	if s.path == "" {
		return ErrNoTrack
	}
	if s.decoder == nil {
		if err := s.Load(s.path); err != nil {
			return err
		}
	}
	frames := signal.FramesOf(s.format.SampleRate, offset)
	if _, err := s.decoder.Seek(frames*frameBytes, io.SeekStart); err != nil {
		return err
	}
	s.read = frames
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
	n, err := io.ReadFull(s.decoder, s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.log.WithError(err).WithField("track", s.path).Debug("decoding stopped")
	}
	n -= n % frameBytes
	if n == 0 {
		s.close()
		return nerve.Empty()
	}
	ib := &audio.IntBuffer{Format: s.format, Data: make([]int, n/2), SourceBitDepth: 16}
	for i := range ib.Data {
		ib.Data[i] = int(int16(binary.LittleEndian.Uint16(s.buf[2*i:])))
	}
	s.read += int64(n / frameBytes)
	return nerve.Emit(nerve.DataPacket(signal.AsFloat(ib, len(ib.Data), signal.BitDepth16)))
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
