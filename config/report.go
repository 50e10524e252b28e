package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// errFatal unwinds the parser after a fatal report.
var errFatal = errors.New("fatal configuration error")

// Diagnostic is a single reported problem.
type Diagnostic struct {
	Pos   Pos
	Msg   string
	Fatal bool
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%v: %s", d.Pos, d.Msg)
}

// Diagnostics is returned when analysis recorded any problem.
type Diagnostics []Diagnostic

func (d Diagnostics) Error() string {
	s := make([]string, 0, len(d))
	for _, e := range d {
		s = append(s, e.Error())
	}
	return strings.Join(s, "\n")
}

// Reporter accumulates diagnostics. Recoverable reports let analysis
// continue so every problem in a configuration surfaces in one pass.
type Reporter struct {
	diags Diagnostics
	log   logrus.FieldLogger
}

// NewReporter returns a reporter that also logs each diagnostic when log
// is not nil.
func NewReporter(log logrus.FieldLogger) *Reporter {
	return &Reporter{log: log}
}

// Report records a recoverable error.
func (r *Reporter) Report(pos Pos, format string, args ...interface{}) {
	r.add(Diagnostic{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// ReportFatal records an error that stops analysis of the current file.
// The returned error must be passed up unchanged.
func (r *Reporter) ReportFatal(pos Pos, format string, args ...interface{}) error {
	r.add(Diagnostic{Pos: pos, Msg: fmt.Sprintf(format, args...), Fatal: true})
	return errFatal
}

func (r *Reporter) add(d Diagnostic) {
	r.diags = append(r.diags, d)
	if r.log != nil {
		r.log.WithField("pos", d.Pos.String()).Error(d.Msg)
	}
}

// Count returns the number of recorded diagnostics.
func (r *Reporter) Count() int {
	return len(r.diags)
}

// Diagnostics returns a copy of the recorded diagnostics.
func (r *Reporter) Diagnostics() Diagnostics {
	return append(Diagnostics(nil), r.diags...)
}

// Err returns untyped nil if nothing was reported.
func (r *Reporter) Err() error {
	if len(r.diags) > 0 {
		return r.Diagnostics()
	}
	return nil
}
