// Package builtin registers the stages that ship with the daemon.
package builtin

import (
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/dsp"
	"github.com/bnkr/nerve/mp3"
	"github.com/bnkr/nerve/stage"
	"github.com/bnkr/nerve/wav"
)

// optional holds registrations of stages that need a build tag.
var optional []func(*stage.Registry, logrus.FieldLogger)

// Register adds every builtin stage to r. Stages that log use log.
func Register(r *stage.Registry, log logrus.FieldLogger) {
	r.Register("wav", nerve.Input, func() nerve.SimpleStage { return wav.NewInput() })
	r.Register("mp3", nerve.Input, func() nerve.SimpleStage { return mp3.NewInput(log.WithField("stage", "mp3")) })
	r.Register("gain", nerve.Process, func() nerve.SimpleStage { return dsp.NewGain() })
	r.Register("reframe", nerve.Process, func() nerve.SimpleStage { return dsp.NewReframe() })
	r.Register("meter", nerve.Observe, func() nerve.SimpleStage { return dsp.NewMeter(log.WithField("stage", "meter")) })
	r.Register("null", nerve.Output, func() nerve.SimpleStage { return dsp.Null{} })
	r.Register("wavfile", nerve.Output, func() nerve.SimpleStage { return wav.NewOutput(log.WithField("stage", "wavfile")) })
	for _, register := range optional {
		register(r, log)
	}
}

// New returns a registry with every builtin stage.
func New(log logrus.FieldLogger) *stage.Registry {
	r := stage.NewRegistry()
	Register(r, log)
	return r
}
