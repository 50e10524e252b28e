package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve/metric"
	"github.com/bnkr/nerve/pipe"
)

// Job runs sections in a single goroutine locked to its OS thread.
type Job struct {
	name     string
	sections []*Section
	log      logrus.FieldLogger
	metrics  *metric.Metrics
	// idle is set when the last pass stepped nothing.
	idle bool
}

func newJob(name string, sections []*Section, log logrus.FieldLogger, m *metric.Metrics) *Job {
	return &Job{
		name:     name,
		sections: sections,
		log:      log,
		metrics:  m,
	}
}

// Name returns the thread name.
func (j *Job) Name() string {
	return j.name
}

// Run makes passes until ctx is done or a pipe is closed.
func (j *Job) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	j.log.Debug("job started")
	defer j.log.Debug("job stopped")
	for ctx.Err() == nil {
		if err := j.pass(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, pipe.ErrClosed) {
				return nil
			}
			return fmt.Errorf("job %s: %w", j.name, err)
		}
	}
	return nil
}

// pass visits every section once. A section that would block is skipped the
// first time it is met and stepped the second time, so the pass waits at most
// once and only after the rest of its sections had a chance to run. A pass
// that stepped nothing lets the next one block on its first section.
func (j *Job) pass(ctx context.Context) error {
	j.metrics.Pass(j.name)
	armed := j.idle
	blocked := false
	stepped := false
	for _, s := range j.sections {
		if s.WouldBlock() {
			if !armed || blocked {
				armed = true
				j.metrics.Skip(j.name)
				continue
			}
			blocked = true
		}
		if err := s.Step(ctx); err != nil {
			return fmt.Errorf("section %s: %w", s.Name(), err)
		}
		j.metrics.Step(j.name, s.Name())
		stepped = true
	}
	j.idle = !stepped
	return nil
}
