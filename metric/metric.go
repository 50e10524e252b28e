// Package metric collects counters of a running pipeline in a Prometheus
// registry. A nil *Metrics is valid and records nothing.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bnkr/nerve"
	"github.com/bnkr/nerve/signal"
)

const namespace = "nerve"

const (
	jobLabel     = "job"
	sectionLabel = "section"
	eventLabel   = "event"
)

// Metrics holds the counters of one scheduler.
type Metrics struct {
	registry *prometheus.Registry
	passes   *prometheus.CounterVec
	steps    *prometheus.CounterVec
	skips    *prometheus.CounterVec
	packets  *prometheus.CounterVec
	frames   prometheus.Counter
	duration prometheus.Counter
}

// New creates counters in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Passes a job made over its sections.",
		}, []string{jobLabel}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Steps of a section.",
		}, []string{jobLabel, sectionLabel}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_total",
			Help:      "Sections skipped in a pass because they would block.",
		}, []string{jobLabel}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets that reached the end of the pipeline.",
		}, []string{eventLabel}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Audio frames that reached the end of the pipeline.",
		}),
		duration: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "played_seconds_total",
			Help:      "Duration of audio that reached the end of the pipeline.",
		}),
	}
	m.registry.MustRegister(m.passes, m.steps, m.skips, m.packets, m.frames, m.duration)
	return m
}

// Registry returns the registry the counters live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Pass counts a pass of job.
func (m *Metrics) Pass(job string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(job).Inc()
}

// Step counts a step of a section.
func (m *Metrics) Step(job, section string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(job, section).Inc()
}

// Skip counts a section skipped by job.
func (m *Metrics) Skip(job string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(job).Inc()
}

// Packet counts a packet at the end of the pipeline.
func (m *Metrics) Packet(p nerve.Packet) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(p.Event.String()).Inc()
	if p.Event != nerve.Data || p.Buffer == nil || p.Buffer.Format == nil {
		return
	}
	frames := signal.Frames(p.Buffer)
	m.frames.Add(float64(frames))
	m.duration.Add(signal.DurationOf(p.Buffer.Format.SampleRate, int64(frames)).Seconds())
}

// WriteFile writes every counter to path in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
