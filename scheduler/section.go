package scheduler

import (
	"context"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/sequence"
)

// Section steps the sequences of one configured section. Sequences are
// joined by local pipes; the first reads from the section's upstream and the
// last writes downstream.
type Section struct {
	name      string
	sequences []sequence.Sequence
	// marks is a stack of buffering sequences. The top is the resume point.
	marks []int
}

func newSection(name string, sequences []sequence.Sequence) *Section {
	return &Section{
		name:      name,
		sequences: sequences,
	}
}

// Name returns the configured name of the section.
func (s *Section) Name() string {
	return s.name
}

// Buffering is true while any sequence holds pending output.
func (s *Section) Buffering() bool {
	return len(s.marks) > 0
}

// WouldBlock is true when the section would resume at its first sequence
// and that sequence has to wait for upstream.
func (s *Section) WouldBlock() bool {
	return len(s.marks) == 0 && s.sequences[0].WouldBlock()
}

// Step resumes at the innermost buffering sequence, or at the first one when
// nothing is buffered, and steps every sequence after it once.
func (s *Section) Step(ctx context.Context) error {
	start := 0
	if len(s.marks) > 0 {
		start = s.marks[len(s.marks)-1]
	}
	for i := start; i < len(s.sequences); i++ {
		status, err := s.sequences[i].Step(ctx)
		if err != nil {
			return err
		}
		resumed := len(s.marks) > 0 && s.marks[len(s.marks)-1] == i
		switch {
		case resumed && status == nerve.Complete:
			s.marks = s.marks[:len(s.marks)-1]
		case !resumed && status == nerve.Buffering:
			s.marks = append(s.marks, i)
		}
	}
	return nil
}
