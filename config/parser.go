package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/bnkr/nerve"
)

// Session carries the state of one parse and link run. Several files may be
// parsed into the same session; they form a single pipeline.
type Session struct {
	// TraceLexer logs every token.
	TraceLexer bool
	// TraceParser logs every statement and dumps the parsed tree.
	TraceParser bool

	log      logrus.FieldLogger
	reporter *Reporter
	pipeline *Pipeline
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithLogger sets the logger for diagnostics and traces.
func WithLogger(log logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// WithTrace enables lexer and parser traces.
func WithTrace(lexer, parser bool) SessionOption {
	return func(s *Session) {
		s.TraceLexer = lexer
		s.TraceParser = parser
	}
}

// NewSession returns a session with an empty pipeline.
func NewSession(options ...SessionOption) *Session {
	s := &Session{pipeline: NewPipeline()}
	for _, option := range options {
		option(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	s.reporter = NewReporter(s.log)
	return s
}

// Pipeline returns the pipeline built so far.
func (s *Session) Pipeline() *Pipeline {
	return s.pipeline
}

// Reporter returns the session's reporter.
func (s *Session) Reporter() *Reporter {
	return s.reporter
}

// Err returns every diagnostic recorded so far.
func (s *Session) Err() error {
	return s.reporter.Err()
}

// ParseFile reads and parses one configuration file.
func (s *Session) ParseFile(path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		_ = s.reporter.ReportFatal(Pos{File: path}, "%v", err)
		return
	}
	s.Parse(path, string(src))
}

// Parse parses src, attributing positions to file. Syntax errors stop this
// file only.
func (s *Session) Parse(file, src string) {
	p := &parser{
		session: s,
		lex:     newLexer(file, src),
	}
	if err := p.parseFile(); err != nil && !errors.Is(err, errFatal) {
		panic(err)
	}
	if s.TraceParser {
		s.log.WithField("file", file).Tracef("parsed pipeline:\n%s", spew.Sdump(s.pipeline))
	}
}

// Resolve sets the category of stages declared with the generic stage
// keyword. lookup reports the category a plugin provides; stages it cannot
// resolve are reported.
func (s *Session) Resolve(lookup func(Plugin) (nerve.Category, bool)) {
	for _, sec := range s.pipeline.Sections {
		for _, st := range sec.Stages {
			if st.Category != nerve.Unset {
				continue
			}
			c, ok := nerve.Unset, false
			if lookup != nil {
				c, ok = lookup(st.Plugin)
			}
			if !ok || c == nerve.Unset {
				s.reporter.Report(st.Pos, "cannot determine category of stage %q (plugin %v)", st.Name, st.Plugin)
				continue
			}
			st.Category = c
		}
	}
}

// Link links the parsed pipeline. It does nothing if parsing or resolving
// recorded errors, since the linker requires every category to be set.
func (s *Session) Link() error {
	if s.reporter.Count() == 0 {
		s.Resolve(nil)
	}
	if s.reporter.Count() > 0 {
		return s.reporter.Err()
	}
	Link(s.pipeline, s.reporter)
	return s.reporter.Err()
}

type parser struct {
	session *Session
	lex     *lexer
	tok     token
	peeked  bool
}

func (p *parser) next() (token, error) {
	if p.peeked {
		p.peeked = false
		return p.tok, nil
	}
	t, err := p.lex.next()
	if err != nil {
		return t, p.session.reporter.ReportFatal(p.lex.pos(), "%v", err)
	}
	if p.session.TraceLexer {
		p.session.log.WithField("pos", t.pos.String()).Tracef("token %v", t)
	}
	p.tok = t
	return t, nil
}

func (p *parser) peek() (token, error) {
	if p.peeked {
		return p.tok, nil
	}
	t, err := p.next()
	if err != nil {
		return t, err
	}
	p.peeked = true
	return t, nil
}

func (p *parser) trace(pos Pos, format string, args ...interface{}) {
	if p.session.TraceParser {
		p.session.log.WithField("pos", pos.String()).Tracef(format, args...)
	}
}

func (p *parser) fatal(t token, format string, args ...interface{}) error {
	return p.session.reporter.ReportFatal(t.pos, format, args...)
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.kind != kind {
		return t, p.fatal(t, "expected %v, found %v", kind, t)
	}
	return t, nil
}

// name accepts a word or a string.
func (p *parser) name(what string) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.kind != tokenWord && t.kind != tokenString {
		return t, p.fatal(t, "expected %s, found %v", what, t)
	}
	return t, nil
}

func (p *parser) parseFile() error {
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		switch {
		case t.kind == tokenEOF:
			return nil
		case t.kind == tokenWord && t.text == "thread":
			err = p.parseThread(t)
		case t.kind == tokenWord && t.text == "configure":
			err = p.parseConfigure(t)
		default:
			err = p.fatal(t, "expected thread or configure, found %v", t)
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) parseThread(kw token) error {
	var name string
	t, err := p.peek()
	if err != nil {
		return err
	}
	if t.kind == tokenWord || t.kind == tokenString {
		p.peeked = false
		name = t.text
	}
	if _, err := p.expect(tokenLBrace); err != nil {
		return err
	}
	pl := p.session.pipeline
	job := pl.AddJob(name, kw.pos)
	p.trace(kw.pos, "thread %q", pl.Jobs[job].Name)
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		switch {
		case t.kind == tokenRBrace:
			return nil
		case t.kind == tokenWord && t.text == "section":
			if err := p.parseSection(job, t); err != nil {
				return err
			}
		default:
			return p.fatal(t, "expected section or '}', found %v", t)
		}
	}
}

func (p *parser) parseSection(job JobID, kw token) error {
	name, err := p.name("section name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokenLBrace); err != nil {
		return err
	}
	pl := p.session.pipeline
	sec := pl.Section(pl.AddSection(job, name.text, kw.pos))
	p.trace(kw.pos, "section %q", sec.Name)
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind == tokenRBrace {
			return nil
		}
		if t.kind != tokenWord {
			return p.fatal(t, "expected statement or '}', found %v", t)
		}
		switch t.text {
		case "next":
			if err := p.parseNext(sec, t); err != nil {
				return err
			}
		case "stage":
			if err := p.parseStage(sec, nerve.Unset, t); err != nil {
				return err
			}
		default:
			c, ok := nerve.ParseCategory(t.text)
			if !ok {
				return p.fatal(t, "unknown statement %q", t.text)
			}
			if err := p.parseStage(sec, c, t); err != nil {
				return err
			}
		}
	}
}

func (p *parser) parseNext(sec *Section, kw token) error {
	name, err := p.name("section name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokenSemi); err != nil {
		return err
	}
	if sec.NextName != "" {
		p.session.reporter.Report(kw.pos, "section %q already continues with %q (%v)", sec.Name, sec.NextName, sec.NextPos)
		return nil
	}
	p.trace(kw.pos, "next %q", name.text)
	sec.NextName, sec.NextPos = name.text, kw.pos
	return nil
}

func (p *parser) parseStage(sec *Section, c nerve.Category, kw token) error {
	t, err := p.name("plugin")
	if err != nil {
		return err
	}
	st := &Stage{Category: c, Pos: kw.pos}
	if t.kind == tokenString {
		st.Plugin.Path = t.text
	} else {
		st.Plugin.ID = t.text
	}
	st.Name = st.Plugin.DefaultName()

	t, err = p.next()
	if err != nil {
		return err
	}
	if t.kind == tokenWord && t.text == "as" {
		name, err := p.name("stage name")
		if err != nil {
			return err
		}
		st.Name = name.text
		if t, err = p.next(); err != nil {
			return err
		}
	}
	if t.kind != tokenSemi {
		return p.fatal(t, "expected %v, found %v", tokenSemi, t)
	}
	p.trace(kw.pos, "%v stage %v as %q", c, st.Plugin, st.Name)
	sec.Stages = append(sec.Stages, st)
	return nil
}

func (p *parser) parseConfigure(kw token) error {
	name, err := p.name("configure name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokenLBrace); err != nil {
		return err
	}
	cfg := &Configure{Name: name.text, Pos: kw.pos}
	p.trace(kw.pos, "configure %q", cfg.Name)
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		switch t.kind {
		case tokenRBrace:
			p.session.pipeline.Configs = append(p.session.pipeline.Configs, cfg)
			return nil
		case tokenSemi:
			continue
		case tokenWord, tokenString:
		default:
			return p.fatal(t, "expected key or '}', found %v", t)
		}
		value, err := p.name(fmt.Sprintf("value for %q", t.text))
		if err != nil {
			return err
		}
		cfg.Pairs = append(cfg.Pairs, Pair{Key: t.text, Value: value.text, Pos: t.pos})
	}
}

// Load parses every file into one session and links the result.
func Load(lookup func(Plugin) (nerve.Category, bool), paths []string, options ...SessionOption) (*Pipeline, error) {
	s := NewSession(options...)
	for _, path := range paths {
		s.ParseFile(path)
	}
	s.Resolve(lookup)
	if err := s.Link(); err != nil {
		return nil, err
	}
	return s.pipeline, nil
}

// Sprint dumps the pipeline to a string.
func Sprint(p *Pipeline) string {
	var b bytes.Buffer
	_ = Dump(&b, p)
	return b.String()
}
