package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnkr/nerve/state"
)

const pipeline = `
thread "decode" {
	section "in" {
		input wav;
		process reframe as frames;
		next "out";
	}
}
thread "play" {
	section "out" {
		output null;
		observe meter;
	}
}
configure frames {
	frames 256;
}
`

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nerve.conf")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newApp(args ...string) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{args: args, stdout: &stdout, stderr: &stderr}, &stdout, &stderr
}

func TestStringList(t *testing.T) {
	var l stringList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&l, "cfg", "")
	require.NoError(t, fs.Parse([]string{"-cfg", "a", "-cfg", "b"}))
	assert.Equal(t, stringList{"a", "b"}, l)
	assert.Equal(t, "a,b", l.String())
}

func TestRunExitCodes(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.conf")
	tests := []struct {
		name   string
		args   []string
		code   int
		stdout string
		stderr string
	}{
		{name: "version", args: []string{"-version"}, code: successExitCode, stdout: "nerved dev"},
		{name: "help", args: []string{"-h"}, code: successExitCode, stderr: "-cfg"},
		{name: "unknown flag", args: []string{"-nope"}, code: errorExitCode},
		{name: "no configuration", args: nil, code: errorExitCode, stderr: "Missing -cfg"},
		{name: "missing file", args: []string{"-cfg", missing}, code: errorExitCode, stderr: "missing.conf"},
		{
			name:   "link error",
			args:   []string{"-cfg", writeConfig(t, `thread { section a { output null; } }`)},
			code:   errorExitCode,
			stderr: "Configuration failed",
		},
		{
			name:   "unknown plugin",
			args:   []string{"-cfg", writeConfig(t, `thread { section a { input wav; output nope; } }`)},
			code:   errorExitCode,
			stderr: "nope",
		},
		{
			name:   "dump",
			args:   []string{"-cfg", writeConfig(t, pipeline), "-cfg-dump"},
			code:   successExitCode,
			stdout: `thread "decode" {`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, stdout, stderr := newApp(test.args...)
			assert.Equal(t, test.code, a.run(context.Background()))
			assert.Contains(t, stdout.String(), test.stdout)
			assert.Contains(t, stderr.String(), test.stderr)
		})
	}
}

func TestRunSavesState(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.yaml")
	metricsPath := filepath.Join(dir, "nerve.prom")
	a, _, stderr := newApp(
		"-cfg", writeConfig(t, pipeline),
		"-state", statePath,
		"-metrics", metricsPath,
		"-log", filepath.Join(dir, "nerve.log"),
		"-socket", filepath.Join(dir, "nerve.sock"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Equal(t, successExitCode, a.run(ctx), stderr.String())

	s, err := state.Load(statePath)
	require.NoError(t, err)
	assert.True(t, s.Empty())

	b, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `nerve_packets_total{event="finish"} 1`)
	_, err = os.Stat(filepath.Join(dir, "nerve.sock"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunResumeFailure(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(statePath, []byte("track: [\n"), 0o644))
	a, _, _ := newApp(
		"-cfg", writeConfig(t, pipeline),
		"-state", statePath,
		"-log", filepath.Join(dir, "nerve.log"),
	)
	assert.Equal(t, errorExitCode, a.run(context.Background()))
}
