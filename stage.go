package nerve

import (
	"fmt"
	"time"
)

// Category governs where a stage may appear in the pipeline.
type Category int

// Stage categories. Unset is only valid before the configuration is resolved.
const (
	Unset Category = iota
	Input
	Process
	Output
	Observe
)

var categoryNames = [...]string{
	Unset:   "unset",
	Input:   "input",
	Process: "process",
	Output:  "output",
	Observe: "observe",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory returns the category with the given keyword.
func ParseCategory(s string) (Category, bool) {
	for c, name := range categoryNames {
		if c != int(Unset) && name == s {
			return Category(c), true
		}
	}
	return Unset, false
}

type (
	// SimpleStage is the capability set every stage implements.
	SimpleStage interface {
		// Abandon drops all state belonging to the current stream.
		Abandon()
		// Flush drops pending output.
		Flush()
		// Finish is called once the stream ends.
		Finish()
		// Configure applies a single setting from a configure block.
		Configure(key, value string) error
	}

	// ProcessStage transforms packets. Output stages implement it as well
	// and return the played packet so observers can see it.
	ProcessStage interface {
		SimpleStage
		// Process consumes one packet. The return may be empty or carry a
		// packet with more output buffered.
		Process(Packet) Return
		// Debuffer returns the next buffered packet. It must only be
		// called after Process or Debuffer reported buffering.
		Debuffer() Return
	}

	// Drainer is implemented by process stages that keep a partial block
	// back. Drain is called once the stream finishes, before Finish, and
	// returns what is left like Process would.
	Drainer interface {
		Drain() Return
	}

	// ObserverStage sees data packets without altering them.
	ObserverStage interface {
		SimpleStage
		Observe(Packet)
	}

	// InputStage produces packets from a track.
	InputStage interface {
		SimpleStage
		Pause(paused bool)
		Skip(offset time.Duration) error
		Load(path string) error
		// Read returns the next data packet or an empty return once the
		// track is exhausted or the stage is paused.
		Read() Return
	}

	// Positioner is implemented by input stages that know how far into
	// the current track they are.
	Positioner interface {
		Track() string
		Position() time.Duration
	}
)

// Status is reported by every step of a sequence.
type Status int

const (
	// Complete means no output is pending.
	Complete Status = iota
	// Buffering means output is pending and the sequence must be stepped
	// again before new input is pulled.
	Buffering
)

func (s Status) String() string {
	if s == Buffering {
		return "buffering"
	}
	return "complete"
}
