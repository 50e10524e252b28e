// Package signal converts interleaved audio buffers between the integer
// samples of files and devices and the float samples stages work on.
package signal

import (
	"math"
	"time"

	"github.com/go-audio/audio"
)

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// Supported reports whether samples of this depth can be converted.
func (bitDepth BitDepth) Supported() bool {
	switch bitDepth {
	case BitDepth8, BitDepth16, BitDepth24, BitDepth32:
		return true
	}
	return false
}

// max is the largest sample value of the depth. Unknown depths convert
// values unscaled.
func (bitDepth BitDepth) max() float64 {
	if !bitDepth.Supported() {
		return 1
	}
	return float64(int64(1)<<(bitDepth-1) - 1)
}

// DurationOf returns time duration of passed frames for this sample rate.
func DurationOf(sampleRate int, frames int64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

// FramesOf returns the number of frames that last d at this sample rate.
func FramesOf(sampleRate int, d time.Duration) int64 {
	return int64(d.Seconds() * float64(sampleRate))
}

// AsFloat converts the first n samples of an int buffer to floats in the
// range [-1, 1].
func AsFloat(ints *audio.IntBuffer, n int, bitDepth BitDepth) *audio.FloatBuffer {
	if ints == nil || ints.Format == nil || ints.Format.NumChannels == 0 {
		return nil
	}
	if n > len(ints.Data) {
		n = len(ints.Data)
	}
	max := bitDepth.max()
	floats := &audio.FloatBuffer{
		Format: ints.Format,
		Data:   make([]float64, n),
	}
	for i, v := range ints.Data[:n] {
		floats.Data[i] = float64(v) / max
	}
	return floats
}

// AsInts converts floats to samples of the bit depth. Values outside
// [-1, 1] are clipped.
func AsInts(floats *audio.FloatBuffer, bitDepth BitDepth) []int {
	if floats == nil {
		return nil
	}
	max := bitDepth.max()
	ints := make([]int, len(floats.Data))
	for i, v := range floats.Data {
		if bitDepth.Supported() {
			v = math.Max(-1, math.Min(1, v))
		}
		ints[i] = int(math.Round(v * max))
	}
	return ints
}

// Frames returns number of frames in the buffer.
func Frames(floats *audio.FloatBuffer) int {
	if floats == nil || floats.Format == nil || floats.Format.NumChannels == 0 {
		return 0
	}
	return len(floats.Data) / floats.Format.NumChannels
}

// Slice creates a new copy of buffer from start frame with defined length.
// If buffer doesn't have enough frames, a shorter buffer is returned.
//
// if start >= buffer size, nil is returned
// if start < 0, nil is returned
func Slice(floats *audio.FloatBuffer, start, length int) *audio.FloatBuffer {
	size := Frames(floats)
	if start >= size || start < 0 {
		return nil
	}
	end := start + length
	if end > size {
		end = size
	}
	ch := floats.Format.NumChannels
	return &audio.FloatBuffer{
		Format: floats.Format,
		Data:   append([]float64(nil), floats.Data[start*ch:end*ch]...),
	}
}

// Append adds the frames of source to floats. A new buffer is returned if
// floats is nil.
func Append(floats, source *audio.FloatBuffer) *audio.FloatBuffer {
	if source == nil {
		return floats
	}
	if floats == nil {
		floats = &audio.FloatBuffer{
			Format: source.Format,
			Data:   make([]float64, 0, len(source.Data)),
		}
	}
	floats.Data = append(floats.Data, source.Data...)
	return floats
}
