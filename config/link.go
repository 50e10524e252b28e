package config

import (
	"fmt"

	"github.com/bnkr/nerve"
)

// Link resolves next references into one pipeline chain, builds the per-job
// orders, validates stage categories and attaches configure blocks. Problems
// are reported to r and linking continues as far as it can so that every
// error in a configuration is surfaced at once.
//
// Link panics if a stage category is unset, or if no head section exists
// while nothing has been reported.
func Link(p *Pipeline, r *Reporter) {
	before := r.Count()
	resetLinks(p)

	for _, job := range p.Jobs {
		if len(job.Sections) == 0 {
			r.Report(job.Pos, "thread %q has no sections", job.Name)
		}
	}
	for _, sec := range p.Sections {
		if len(sec.Stages) == 0 {
			r.Report(sec.Pos, "section %q has no stages", sec.Name)
		}
	}
	if len(p.Sections) == 0 {
		r.Report(Pos{}, "no sections configured")
		return
	}

	byName := sectionTable(p, r)
	resolveNext(p, r, byName)

	head := NoSection
	for id, sec := range p.Sections {
		if sec.Prev == NoSection {
			head = SectionID(id)
			break
		}
	}
	if head == NoSection {
		if r.Count() == before {
			panic("config: pipeline has no head section")
		}
		return
	}
	p.First = head

	walk(p, r)
	validateCategories(p, r)
	attachConfigs(p, r)

	p.linked = r.Count() == before
}

func resetLinks(p *Pipeline) {
	p.First = NoSection
	p.Order = nil
	p.linked = false
	for _, sec := range p.Sections {
		sec.Next, sec.Prev, sec.JobNext = NoSection, NoSection, NoSection
	}
	for _, job := range p.Jobs {
		job.First, job.Last = NoSection, NoSection
	}
}

// sectionTable maps names to sections. Duplicates are reported at both
// declarations and the first one wins.
func sectionTable(p *Pipeline, r *Reporter) map[string]SectionID {
	byName := make(map[string]SectionID, len(p.Sections))
	for id, sec := range p.Sections {
		if prev, ok := byName[sec.Name]; ok {
			first := p.Sections[prev]
			r.Report(sec.Pos, "duplicate section name %q", sec.Name)
			r.Report(first.Pos, "section %q first declared here", first.Name)
			continue
		}
		byName[sec.Name] = SectionID(id)
	}
	return byName
}

func resolveNext(p *Pipeline, r *Reporter, byName map[string]SectionID) {
	terminal := NoSection
	for i, sec := range p.Sections {
		id := SectionID(i)
		if sec.NextName == "" {
			if terminal != NoSection {
				t := p.Sections[terminal]
				r.Report(sec.Pos, "section %q and section %q (%v) both end the pipeline", sec.Name, t.Name, t.Pos)
				continue
			}
			terminal = id
			continue
		}
		next, ok := byName[sec.NextName]
		if !ok {
			r.Report(sec.NextPos, "section %q continues with unknown section %q", sec.Name, sec.NextName)
			continue
		}
		target := p.Sections[next]
		if target.Job == sec.Job {
			r.Report(sec.NextPos, "section %q continues with %q in the same thread %q", sec.Name, target.Name, p.Jobs[sec.Job].Name)
		}
		if target.Prev != NoSection {
			prev := p.Sections[target.Prev]
			r.Report(sec.NextPos, "section %q already follows section %q (%v)", target.Name, prev.Name, prev.NextPos)
			continue
		}
		sec.Next = next
		target.Prev = id
	}
	if terminal == NoSection {
		r.Report(p.Sections[0].Pos, "no section ends the pipeline: every section has a next")
	}
}

// walk follows the pipeline chain from the head, building the global order
// and each job's order.
func walk(p *Pipeline, r *Reporter) {
	visited := make([]bool, len(p.Sections))
	for id := p.First; id != NoSection; id = p.Sections[id].Next {
		if visited[id] {
			r.Report(p.Sections[id].Pos, "section %q is part of a cycle", p.Sections[id].Name)
			break
		}
		visited[id] = true
		p.Order = append(p.Order, id)

		job := p.Jobs[p.Sections[id].Job]
		if job.Last == NoSection {
			job.First = id
		} else {
			p.Sections[job.Last].JobNext = id
		}
		job.Last = id
	}
	for id, seen := range visited {
		if !seen {
			sec := p.Sections[id]
			r.Report(sec.Pos, "section %q is not reachable from the head section %q", sec.Name, p.Sections[p.First].Name)
		}
	}
}

// validateCategories checks the category of every stage in pipeline order
// against its predecessor.
func validateCategories(p *Pipeline, r *Reporter) {
	state := nerve.Unset
	var last *Stage
	for _, st := range p.Stages() {
		if st.Category == nerve.Unset {
			panic(fmt.Sprintf("config: stage %q at %v has no category", st.Name, st.Pos))
		}
		if state == nerve.Unset {
			if st.Category != nerve.Input {
				r.Report(st.Pos, "pipeline must start with an input stage, found %v stage %q", st.Category, st.Name)
			}
		} else if !follows(state, st.Category) {
			r.Report(st.Pos, "%v stage %q cannot follow %v stage %q", st.Category, st.Name, state, last.Name)
		}
		state, last = st.Category, st
	}
	if state != nerve.Output && state != nerve.Observe {
		pos := Pos{}
		if last != nil {
			pos = last.Pos
		}
		r.Report(pos, "no output stage present")
	}
}

func follows(prev, next nerve.Category) bool {
	switch prev {
	case nerve.Input, nerve.Process:
		return next == nerve.Process || next == nerve.Output
	case nerve.Output, nerve.Observe:
		return next == nerve.Observe
	}
	return false
}

func attachConfigs(p *Pipeline, r *Reporter) {
	byName := make(map[string]*Configure, len(p.Configs))
	for _, cfg := range p.Configs {
		if first, ok := byName[cfg.Name]; ok {
			r.Report(cfg.Pos, "duplicate configure block %q", cfg.Name)
			r.Report(first.Pos, "configure block %q first declared here", first.Name)
			continue
		}
		byName[cfg.Name] = cfg
	}
	for _, st := range p.Stages() {
		st.Config = byName[st.Name]
	}
}
