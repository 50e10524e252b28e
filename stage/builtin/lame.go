//go:build lame

package builtin

import (
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/mp3"
	"github.com/bnkr/nerve/stage"
)

func init() {
	optional = append(optional, func(r *stage.Registry, log logrus.FieldLogger) {
		r.Register("mp3file", nerve.Output, func() nerve.SimpleStage {
			return mp3.NewOutput(log.WithField("stage", "mp3file"))
		})
	})
}
