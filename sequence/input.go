package sequence

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/pipe"
)

// Input drives the input stage. Commands arrive on its upstream pipe:
// load and skip are applied to the stage and travel on as abandon, so
// everything buffered for the old position is wiped. Between commands the
// stage is read one packet per step until it runs dry.
type Input struct {
	stage    nerve.InputStage
	simple   []nerve.SimpleStage
	commands pipe.Reader
	out      pipe.Writer
	log      logrus.FieldLogger
	idle     bool
}

// NewInput returns a sequence over stage. It is idle until the first load.
func NewInput(stage nerve.InputStage, commands pipe.Reader, out pipe.Writer, log logrus.FieldLogger) *Input {
	return &Input{
		stage:    stage,
		simple:   []nerve.SimpleStage{stage},
		commands: commands,
		out:      out,
		log:      log,
		idle:     true,
	}
}

// Idle is true when the stage has nothing to read until the next load.
func (s *Input) Idle() bool {
	return s.idle
}

// WouldBlock implements Sequence.
func (s *Input) WouldBlock() bool {
	return s.idle && s.commands.WouldBlock()
}

// Step implements Sequence. An idle input waits for a command.
func (s *Input) Step(ctx context.Context) (nerve.Status, error) {
	if s.idle || !s.commands.WouldBlock() {
		p, ok, err := s.commands.Read(ctx)
		if err != nil {
			return nerve.Complete, err
		}
		if ok {
			s.command(p)
			return nerve.Complete, nil
		}
		if s.idle {
			return nerve.Complete, nil
		}
	}
	r := s.stage.Read()
	if !r.Ok {
		s.log.Debug("input drained")
		s.idle = true
		return nerve.Complete, nil
	}
	return nerve.Complete, s.out.Write(ctx, r.Packet)
}

func (s *Input) command(p nerve.Packet) {
	switch p.Event {
	case nerve.Load:
		s.log.WithField("track", p.Path).Info("load")
		if err := s.stage.Load(p.Path); err != nil {
			s.log.WithError(err).WithField("track", p.Path).Warn("load failed")
			s.idle = true
		} else {
			s.stage.Pause(false)
			s.idle = false
		}
		s.out.WriteWipe(nerve.EventPacket(nerve.Abandon))
	case nerve.Skip:
		s.log.WithField("offset", p.Offset).Debug("skip")
		if err := s.stage.Skip(p.Offset); err != nil {
			s.log.WithError(err).WithField("offset", p.Offset).Warn("skip failed")
		} else {
			s.idle = false
		}
		s.out.WriteWipe(nerve.EventPacket(nerve.Abandon))
	case nerve.Flush:
		s.stage.Pause(true)
		s.idle = true
		propagate(s.simple, s.out, p)
	case nerve.Abandon:
		propagate(s.simple, s.out, p)
	case nerve.Finish:
		s.idle = true
		propagate(s.simple, s.out, p)
	default:
		panic(fmt.Sprintf("sequence: %v packet on the command pipe", p))
	}
}
