package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve/config"
	"github.com/bnkr/nerve/control"
	"github.com/bnkr/nerve/log"
	"github.com/bnkr/nerve/metric"
	"github.com/bnkr/nerve/scheduler"
	"github.com/bnkr/nerve/stage/builtin"
	"github.com/bnkr/nerve/state"
)

var (
	successExitCode = 0
	errorExitCode   = 1
	version         = "dev"
)

// stopTimeout bounds how long finish may take to reach the end of the
// pipeline on shutdown.
const stopTimeout = 5 * time.Second

// stringList is a flag that may be given several times.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type app struct {
	args   []string
	stdout io.Writer
	stderr io.Writer

	cfg         stringList
	dump        bool
	traceLexer  bool
	traceParser bool
	statePath   string
	socket      string
	logTarget   string
	metrics     string
	queue       int
	play        string
	version     bool
}

func (a *app) register(fs *flag.FlagSet) {
	fs.Var(&a.cfg, "cfg", "pipeline configuration `file` (required, repeatable)")
	fs.BoolVar(&a.dump, "cfg-dump", false, "print the linked configuration and exit")
	fs.BoolVar(&a.traceLexer, "cfg-trace-lexer", false, "log every configuration token")
	fs.BoolVar(&a.traceParser, "cfg-trace-parser", false, "log every configuration statement")
	fs.StringVar(&a.statePath, "state", "", "`file` to resume playback from and save it to")
	fs.StringVar(&a.socket, "socket", "", "control socket `path`")
	fs.StringVar(&a.logTarget, "log", "-", "log `file`, - for stderr")
	fs.StringVar(&a.metrics, "metrics", "", "write Prometheus metrics to `file` on exit")
	fs.IntVar(&a.queue, "queue", 0, "capacity of the queues between threads")
	fs.StringVar(&a.play, "play", "", "track to play on start")
	fs.BoolVar(&a.version, "version", false, "print the version and exit")
}

func (a *app) run(ctx context.Context) int {
	fs := flag.NewFlagSet("nerved", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	a.register(fs)
	if err := fs.Parse(a.args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return successExitCode
		}
		return errorExitCode
	}
	if a.version {
		fmt.Fprintf(a.stdout, "nerved %s\n", version)
		return successExitCode
	}
	if len(a.cfg) == 0 {
		fmt.Fprintln(a.stderr, "Missing -cfg required flag")
		fs.PrintDefaults()
		return errorExitCode
	}

	logger, closer, err := log.Open(a.logTarget)
	if err != nil {
		fmt.Fprintf(a.stderr, "Cannot open log: %v\n", err)
		return errorExitCode
	}
	defer closer.Close()
	if a.traceLexer || a.traceParser {
		logger.SetLevel(logrus.TraceLevel)
	}

	registry := builtin.New(logger)
	pipeline, err := config.Load(registry.Lookup, a.cfg,
		config.WithLogger(logger),
		config.WithTrace(a.traceLexer, a.traceParser),
	)
	if err != nil {
		fmt.Fprintf(a.stderr, "Configuration failed:\n%v\n", err)
		return errorExitCode
	}
	if a.dump {
		if err := config.Dump(a.stdout, pipeline); err != nil {
			fmt.Fprintf(a.stderr, "Dump failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}

	var m *metric.Metrics
	if a.metrics != "" {
		m = metric.New()
	}
	sched, err := scheduler.New(pipeline, registry,
		scheduler.WithLogger(logger),
		scheduler.WithQueueSize(a.queue),
		scheduler.WithMetrics(m),
	)
	if err != nil {
		fmt.Fprintf(a.stderr, "Pipeline failed: %v\n", err)
		return errorExitCode
	}
	return a.serve(ctx, logger, sched, m)
}

// serve runs the pipeline until a signal, a control client or a failing job
// stops it.
func (a *app) serve(ctx context.Context, logger logrus.FieldLogger, sched *scheduler.Scheduler, m *metric.Metrics) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	if a.socket != "" {
		srv := control.New(a.socket, shutdown, control.WithLogger(logger))
		if err := srv.Listen(); err != nil {
			fmt.Fprintf(a.stderr, "Control socket failed: %v\n", err)
			return errorExitCode
		}
		defer srv.Close()
	}

	// jobs outlive ctx so that finish can drain them on shutdown
	if err := sched.Start(context.Background()); err != nil {
		fmt.Fprintf(a.stderr, "Start failed: %v\n", err)
		return errorExitCode
	}
	code := successExitCode
	if err := a.resume(ctx, sched); err != nil {
		logger.WithError(err).Error("cannot resume playback")
		code = errorExitCode
		shutdown()
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.WithError(err).Warn("sd_notify failed")
	}

	select {
	case <-ctx.Done():
	case <-sched.Done():
	}
	logger.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("pipeline failed")
		code = errorExitCode
	}
	if err := a.save(sched); err != nil {
		logger.WithError(err).Error("cannot save state")
		code = errorExitCode
	}
	if m != nil {
		if err := m.WriteFile(a.metrics); err != nil {
			logger.WithError(err).Error("cannot write metrics")
			code = errorExitCode
		}
	}
	return code
}

// resume loads the track given on the command line or the one the last run
// stopped in.
func (a *app) resume(ctx context.Context, sched *scheduler.Scheduler) error {
	s := state.State{Track: a.play}
	if s.Empty() && a.statePath != "" {
		var err error
		if s, err = state.Load(a.statePath); err != nil {
			return err
		}
	}
	if s.Empty() {
		return nil
	}
	if err := sched.Load(ctx, s.Track); err != nil {
		return err
	}
	if s.Position > 0 {
		return sched.Skip(ctx, s.Position)
	}
	return nil
}

func (a *app) save(sched *scheduler.Scheduler) error {
	if a.statePath == "" {
		return nil
	}
	track, pos, ok := sched.Position()
	if !ok {
		return nil
	}
	return state.Save(a.statePath, state.State{Track: track, Position: pos})
}

func main() {
	a := app{
		args:   os.Args[1:],
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	os.Exit(a.run(context.Background()))
}
