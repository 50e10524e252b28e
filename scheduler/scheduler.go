// Package scheduler turns a linked pipeline description into running jobs.
// Every job is a goroutine locked to an OS thread that makes passes over its
// sections; sections of different jobs are joined by bounded async pipes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/config"
	"github.com/bnkr/nerve/log"
	"github.com/bnkr/nerve/metric"
	"github.com/bnkr/nerve/pipe"
	"github.com/bnkr/nerve/sequence"
	"github.com/bnkr/nerve/stage"
)

var (
	// ErrNotLinked is returned when the pipeline was not linked cleanly.
	ErrNotLinked = errors.New("pipeline is not linked")
	// ErrNotStarted is returned by operations that need running jobs.
	ErrNotStarted = errors.New("scheduler is not started")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("scheduler is already started")
)

// Option configures a scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Every entry carries the run id.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithQueueSize sets the capacity of the pipes between jobs.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		s.queue = n
	}
}

// WithMetrics counts steps and played packets.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler owns the jobs of one pipeline and the pipes between them.
type Scheduler struct {
	id      xid.ID
	log     logrus.FieldLogger
	queue   int
	metrics *metric.Metrics

	commands *pipe.Async
	pipes    []*pipe.Async
	terminal *pipe.Discard
	wake     []*pipe.Async
	jobs     []*Job
	input    nerve.InputStage

	cancel context.CancelFunc
	group  *errgroup.Group
	done   <-chan struct{}
}

// New builds stages from r for every stage of p and wires them into jobs.
// Nothing runs until Start.
func New(p *config.Pipeline, r *stage.Registry, options ...Option) (*Scheduler, error) {
	if !p.Linked() {
		return nil, ErrNotLinked
	}
	s := &Scheduler{
		id:       xid.New(),
		log:      log.GetLogger(),
		queue:    pipe.DefaultCapacity,
		terminal: pipe.NewDiscard(),
	}
	for _, option := range options {
		option(s)
	}
	s.log = s.log.WithField("run", s.id.String())
	s.commands = pipe.NewAsync(s.queue)

	built := make(map[config.SectionID]*Section, len(p.Order))
	reads := make(map[config.SectionID]*pipe.Async, len(p.Order))
	var errs buildErrors
	var upstream pipe.Reader = s.commands
	for i, id := range p.Order {
		sec := p.Section(id)
		var downstream pipe.Writer
		if i == len(p.Order)-1 {
			downstream = terminal{Discard: s.terminal, metrics: s.metrics}
		} else {
			a := pipe.NewAsync(s.queue)
			s.pipes = append(s.pipes, a)
			downstream = a
		}
		section, err := s.section(sec, r, upstream, downstream)
		if err != nil {
			errs = append(errs, err)
		}
		built[id] = section
		if i < len(p.Order)-1 {
			upstream = s.pipes[len(s.pipes)-1]
			reads[p.Order[i+1]] = s.pipes[len(s.pipes)-1]
		}
	}
	if err := errs.ret(); err != nil {
		return nil, fmt.Errorf("error building pipeline: %w", err)
	}

	for jid, job := range p.Jobs {
		l := s.log.WithField("job", job.Name)
		var sections []*Section
		for _, id := range p.JobOrder(config.JobID(jid)) {
			sections = append(sections, built[id])
		}
		s.jobs = append(s.jobs, newJob(job.Name, sections, l, s.metrics))
	}
	// the input job may be waiting on another of its sections when a
	// command arrives; those reads are woken after every command.
	head := p.Section(p.First).Job
	for _, id := range p.JobOrder(head) {
		if a, ok := reads[id]; ok {
			s.wake = append(s.wake, a)
		}
	}
	return s, nil
}

// section builds the stages of sec and groups consecutive stages of the
// same kind into sequences joined by local pipes.
func (s *Scheduler) section(sec *config.Section, r *stage.Registry, in pipe.Reader, out pipe.Writer) (*Section, error) {
	var errs buildErrors
	type group struct {
		kind    nerve.Category
		process []nerve.ProcessStage
		observe []nerve.ObserverStage
		input   nerve.InputStage
	}
	var groups []*group
	for _, cfg := range sec.Stages {
		st, err := s.stage(cfg, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		kind := cfg.Category
		if kind == nerve.Output {
			kind = nerve.Process
		}
		if len(groups) == 0 || groups[len(groups)-1].kind != kind || kind == nerve.Input {
			groups = append(groups, &group{kind: kind})
		}
		g := groups[len(groups)-1]
		switch kind {
		case nerve.Input:
			g.input = st.(nerve.InputStage)
			s.input = g.input
		case nerve.Process:
			g.process = append(g.process, st.(nerve.ProcessStage))
		case nerve.Observe:
			g.observe = append(g.observe, st.(nerve.ObserverStage))
		}
	}
	if err := errs.ret(); err != nil {
		return nil, err
	}

	l := s.log.WithField("section", sec.Name)
	sequences := make([]sequence.Sequence, 0, len(groups))
	reader := in
	for i, g := range groups {
		writer := out
		var local *pipe.Local
		if i < len(groups)-1 {
			local = pipe.NewLocal()
			writer = local
		}
		switch g.kind {
		case nerve.Input:
			sequences = append(sequences, sequence.NewInput(g.input, reader, writer, l))
		case nerve.Process:
			sequences = append(sequences, sequence.NewProcess(g.process, reader, writer))
		case nerve.Observe:
			sequences = append(sequences, sequence.NewObserver(g.observe, reader, writer))
		}
		reader = local
	}
	return newSection(sec.Name, sequences), nil
}

// stage creates, checks and configures one stage.
func (s *Scheduler) stage(cfg *config.Stage, r *stage.Registry) (nerve.SimpleStage, error) {
	st, category, err := r.New(cfg.Plugin)
	if err != nil {
		return nil, fmt.Errorf("%v: stage %s: %w", cfg.Pos, cfg.Name, err)
	}
	if category != cfg.Category {
		return nil, fmt.Errorf("%v: stage %s: plugin %v is %v, configured as %v", cfg.Pos, cfg.Name, cfg.Plugin, category, cfg.Category)
	}
	var ok bool
	switch category {
	case nerve.Input:
		_, ok = st.(nerve.InputStage)
	case nerve.Process, nerve.Output:
		_, ok = st.(nerve.ProcessStage)
	case nerve.Observe:
		_, ok = st.(nerve.ObserverStage)
	}
	if !ok {
		return nil, fmt.Errorf("%v: stage %s: plugin %v does not implement %v", cfg.Pos, cfg.Name, cfg.Plugin, category)
	}
	if err := stage.Configure(st, cfg.Config); err != nil {
		return nil, err
	}
	return st, nil
}

// ID returns the run id used in log entries.
func (s *Scheduler) ID() xid.ID {
	return s.id
}

// Jobs returns the jobs in declaration order.
func (s *Scheduler) Jobs() []*Job {
	return s.jobs
}

// Start runs every job in its own goroutine. The jobs stop when ctx is done,
// when Stop is called or when any of them fails.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.group != nil {
		return ErrStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.done = ctx.Done()
	for _, j := range s.jobs {
		j := j
		s.group.Go(func() error {
			return j.Run(ctx)
		})
	}
	s.log.WithField("jobs", len(s.jobs)).Info("started")
	return nil
}

// Done is closed once the jobs are told to stop.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Load queues a track to play.
func (s *Scheduler) Load(ctx context.Context, path string) error {
	return s.command(ctx, nerve.LoadPacket(path))
}

// Skip queues a seek within the current track.
func (s *Scheduler) Skip(ctx context.Context, offset time.Duration) error {
	return s.command(ctx, nerve.SkipPacket(offset))
}

// Flush pauses the input and drops pending output along the pipeline.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.command(ctx, nerve.EventPacket(nerve.Flush))
}

func (s *Scheduler) command(ctx context.Context, p nerve.Packet) error {
	if err := s.commands.Write(ctx, p); err != nil {
		return err
	}
	s.nudge()
	return nil
}

// nudge wakes the reads of the input job's other sections so that its next
// pass sees the command.
func (s *Scheduler) nudge() {
	for _, a := range s.wake {
		a.Wake()
	}
}

// Stop replaces every queued command with finish and waits until it reaches
// the end of the pipeline or ctx is done. Then the jobs are cancelled and
// joined.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.group == nil {
		return ErrNotStarted
	}
	s.commands.WriteWipe(nerve.EventPacket(nerve.Finish))
	s.nudge()
	select {
	case <-s.terminal.Finished():
		s.log.Debug("finish reached the end of the pipeline")
	case <-s.done:
	case <-ctx.Done():
		s.log.WithError(ctx.Err()).Warn("stopping before finish reached the end of the pipeline")
	}
	s.cancel()
	return s.Wait()
}

// Wait blocks until every job returned and reports the first failure.
func (s *Scheduler) Wait() error {
	if s.group == nil {
		return ErrNotStarted
	}
	return s.group.Wait()
}

// Position reports the track and offset of the input stage. It reads stage
// state without synchronisation and must only be called once the jobs are
// joined.
func (s *Scheduler) Position() (track string, offset time.Duration, ok bool) {
	p, ok := s.input.(nerve.Positioner)
	if !ok {
		return "", 0, false
	}
	return p.Track(), p.Position(), true
}

// Count returns how many packets with the event reached the end of the
// pipeline.
func (s *Scheduler) Count(e nerve.Event) int {
	return s.terminal.Count(e)
}

// terminal counts packets leaving the last section.
type terminal struct {
	*pipe.Discard
	metrics *metric.Metrics
}

func (t terminal) Write(ctx context.Context, p nerve.Packet) error {
	t.metrics.Packet(p)
	return t.Discard.Write(ctx, p)
}

func (t terminal) WriteWipe(p nerve.Packet) {
	t.metrics.Packet(p)
	t.Discard.WriteWipe(p)
}

// buildErrors collects failures of every stage so they are reported at once.
type buildErrors []error

func (e buildErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, "; ")
}

// Unwrap exposes the collected errors to errors.Is.
func (e buildErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if the list is empty.
func (e buildErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
