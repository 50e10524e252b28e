//go:build portaudio

package builtin

import (
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/portaudio"
	"github.com/bnkr/nerve/stage"
)

func init() {
	optional = append(optional, func(r *stage.Registry, log logrus.FieldLogger) {
		r.Register("portaudio", nerve.Output, func() nerve.SimpleStage {
			return portaudio.NewOutput(log.WithField("stage", "portaudio"))
		})
	})
}
