package nerve

import (
	"fmt"
	"time"

	"github.com/go-audio/audio"
)

// Event tags a packet either as audio data or as a control event.
type Event int

// Events carried by packets.
const (
	// Data packets carry audio.
	Data Event = iota
	// Load asks the input stage to open a new track.
	Load
	// Skip asks the input stage to seek within the current track.
	Skip
	// Flush discards output that is still pending in stages.
	Flush
	// Abandon supersedes everything that was buffered ahead of it.
	Abandon
	// Finish marks the end of the stream.
	Finish
)

var eventNames = [...]string{
	Data:    "data",
	Load:    "load",
	Skip:    "skip",
	Flush:   "flush",
	Abandon: "abandon",
	Finish:  "finish",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// Packet is the only value that crosses thread boundaries. A packet is owned
// by exactly one pipe slot or stage at a time; ownership moves on every read
// and write.
type Packet struct {
	Event Event
	// Buffer is set for Data packets.
	Buffer *audio.FloatBuffer
	// Path is the track to open for Load packets.
	Path string
	// Offset is the seek position for Skip packets.
	Offset time.Duration
}

// DataPacket wraps an audio buffer.
func DataPacket(b *audio.FloatBuffer) Packet {
	return Packet{Event: Data, Buffer: b}
}

// LoadPacket returns a load control packet for the track at path.
func LoadPacket(path string) Packet {
	return Packet{Event: Load, Path: path}
}

// SkipPacket returns a skip control packet seeking to offset.
func SkipPacket(offset time.Duration) Packet {
	return Packet{Event: Skip, Offset: offset}
}

// EventPacket returns a packet that carries only an event tag.
func EventPacket(e Event) Packet {
	return Packet{Event: e}
}

// Frames returns the number of frames in a data packet.
func (p Packet) Frames() int {
	if p.Buffer == nil {
		return 0
	}
	return p.Buffer.NumFrames()
}

func (p Packet) String() string {
	switch p.Event {
	case Data:
		return fmt.Sprintf("data[%d]", p.Frames())
	case Load:
		return fmt.Sprintf("load[%s]", p.Path)
	case Skip:
		return fmt.Sprintf("skip[%v]", p.Offset)
	}
	return p.Event.String()
}

// Return is the result of one stage invocation. It is never queued.
type Return struct {
	Packet Packet
	// Ok is false when the stage had nothing ready this round.
	Ok bool
	// Buffering means the stage holds more output and must be debuffered
	// before new input is pulled.
	Buffering bool
}

// Empty returns a return that carries nothing.
func Empty() Return {
	return Return{}
}

// Emit returns a single packet with nothing left buffered.
func Emit(p Packet) Return {
	return Return{Packet: p, Ok: true}
}

// EmitBuffering returns a packet and reports that more output is queued.
func EmitBuffering(p Packet) Return {
	return Return{Packet: p, Ok: true, Buffering: true}
}
