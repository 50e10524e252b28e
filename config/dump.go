package config

import (
	"bufio"
	"fmt"
	"io"
	"regexp"

	"github.com/bnkr/nerve"
)

var bareWord = regexp.MustCompile(`^[A-Za-z0-9_.+\-/]+$`)

// word renders a configure key bare when the lexer would read it back as one
// word that is not a keyword, quoted otherwise.
func word(s string) string {
	switch s {
	case "thread", "section", "configure", "next", "stage", "as",
		"input", "process", "output", "observe":
		return quote(s)
	}
	if bareWord.MatchString(s) {
		return s
	}
	return quote(s)
}

// Dump writes the pipeline in configuration syntax. Sections of a linked
// pipeline are written in job order, so parsing the dump yields the same
// job and pipeline orders.
func Dump(w io.Writer, p *Pipeline) error {
	bw := bufio.NewWriter(w)
	for i, job := range p.Jobs {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		fmt.Fprintf(bw, "thread %s {\n", quote(job.Name))
		ids := job.Sections
		if p.Linked() {
			ids = p.JobOrder(JobID(i))
		}
		for _, id := range ids {
			dumpSection(bw, p.Sections[id])
		}
		fmt.Fprintln(bw, "}")
	}
	for _, cfg := range p.Configs {
		fmt.Fprintf(bw, "\nconfigure %s {\n", quote(cfg.Name))
		for _, pair := range cfg.Pairs {
			fmt.Fprintf(bw, "\t%s %s;\n", word(pair.Key), quote(pair.Value))
		}
		fmt.Fprintln(bw, "}")
	}
	return bw.Flush()
}

func dumpSection(w io.Writer, sec *Section) {
	fmt.Fprintf(w, "\tsection %s {\n", quote(sec.Name))
	for _, st := range sec.Stages {
		keyword := "stage"
		if st.Category != nerve.Unset {
			keyword = st.Category.String()
		}
		// a quoted plugin reads back as a path, so ids are always bare
		plugin := st.Plugin.ID
		if st.Plugin.External() {
			plugin = quote(st.Plugin.Path)
		}
		if st.Name != st.Plugin.DefaultName() {
			fmt.Fprintf(w, "\t\t%s %s as %s;\n", keyword, plugin, quote(st.Name))
		} else {
			fmt.Fprintf(w, "\t\t%s %s;\n", keyword, plugin)
		}
	}
	if sec.NextName != "" {
		fmt.Fprintf(w, "\t\tnext %s;\n", quote(sec.NextName))
	}
	fmt.Fprintln(w, "\t}")
}
