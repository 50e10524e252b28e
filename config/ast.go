// Package config holds the pipeline description: the sections and stages
// parsed from configuration files, and the linker that orders them into a
// single pipeline with one sub-order per thread.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/bnkr/nerve"
)

// Pos is a source location used in diagnostics.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return "-"
	case p.Line == 0:
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

type (
	// SectionID indexes Pipeline.Sections.
	SectionID int
	// JobID indexes Pipeline.Jobs.
	JobID int
)

// NoSection marks an unset link.
const NoSection SectionID = -1

// Plugin identifies the implementation of a stage. Exactly one of ID and
// Path is set.
type Plugin struct {
	// ID names a builtin stage.
	ID string
	// Path points at an external plugin.
	Path string
}

// External reports whether the plugin is loaded from a path.
func (p Plugin) External() bool {
	return p.Path != ""
}

func (p Plugin) String() string {
	if p.External() {
		return fmt.Sprintf("%q", p.Path)
	}
	return p.ID
}

// DefaultName is the display name used when the stage has none.
func (p Plugin) DefaultName() string {
	if p.External() {
		base := filepath.Base(p.Path)
		return base[:len(base)-len(filepath.Ext(base))]
	}
	return p.ID
}

// Stage describes one processing unit. It is owned by its section.
type Stage struct {
	Category nerve.Category
	Plugin   Plugin
	// Name is matched against configure blocks.
	Name string
	// Config is attached by the linker; nil when no block matched.
	Config *Configure
	Pos    Pos
}

// Section is an ordered run of stages.
type Section struct {
	Name     string
	Pos      Pos
	Job      JobID
	Stages   []*Stage
	// NextName is empty for the terminal section.
	NextName string
	NextPos  Pos

	// Set by the linker.
	Next    SectionID
	Prev    SectionID
	JobNext SectionID
}

// Job is one thread and the sections it runs.
type Job struct {
	Name string
	Pos  Pos
	// Sections in declaration order.
	Sections []SectionID

	// Job order bounds, set by the linker.
	First SectionID
	Last  SectionID
}

// Pair is a single configure setting.
type Pair struct {
	Key   string
	Value string
	Pos   Pos
}

// Configure is a named bag of settings matched to stages by name.
type Configure struct {
	Name  string
	Pos   Pos
	Pairs []Pair
}

// Pipeline is the root of the description. It is built by parsing, mutated
// by Link and read-only afterwards.
type Pipeline struct {
	Sections []*Section
	Jobs     []*Job
	Configs  []*Configure

	// First is the head section, set by the linker.
	First SectionID
	// Order is the global pipeline order, set by the linker.
	Order []SectionID

	linked bool
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{First: NoSection}
}

// AddJob appends a job and returns its id.
func (p *Pipeline) AddJob(name string, pos Pos) JobID {
	if name == "" {
		name = fmt.Sprintf("thread%d", len(p.Jobs))
	}
	p.Jobs = append(p.Jobs, &Job{
		Name:  name,
		Pos:   pos,
		First: NoSection,
		Last:  NoSection,
	})
	return JobID(len(p.Jobs) - 1)
}

// AddSection appends a section owned by job and returns its id.
func (p *Pipeline) AddSection(job JobID, name string, pos Pos) SectionID {
	id := SectionID(len(p.Sections))
	p.Sections = append(p.Sections, &Section{
		Name:    name,
		Pos:     pos,
		Job:     job,
		Next:    NoSection,
		Prev:    NoSection,
		JobNext: NoSection,
	})
	p.Jobs[job].Sections = append(p.Jobs[job].Sections, id)
	return id
}

// Section returns the section with the id.
func (p *Pipeline) Section(id SectionID) *Section {
	return p.Sections[id]
}

// Linked reports whether Link completed without errors.
func (p *Pipeline) Linked() bool {
	return p.linked
}

// JobOrder returns the sections of a job in pipeline order.
func (p *Pipeline) JobOrder(job JobID) []SectionID {
	var ids []SectionID
	for id := p.Jobs[job].First; id != NoSection; id = p.Sections[id].JobNext {
		ids = append(ids, id)
	}
	return ids
}

// Stages returns every stage in pipeline order.
func (p *Pipeline) Stages() []*Stage {
	var stages []*Stage
	for _, id := range p.Order {
		stages = append(stages, p.Sections[id].Stages...)
	}
	return stages
}

// Terminal returns the last section of the pipeline.
func (p *Pipeline) Terminal() SectionID {
	if len(p.Order) == 0 {
		return NoSection
	}
	return p.Order[len(p.Order)-1]
}
