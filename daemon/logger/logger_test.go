// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text"}, []Backend{NewWriterBackend(&buf, "text")})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[warn] warn message")
	assert.Contains(t, out, "[error] error message")
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug"}, []Backend{NewWriterBackend(&buf, "json")})

	child := l.With(Field{Key: "component", Value: "tail"}, Field{Key: "file", Value: "/var/log/kern.log"})
	child.Info("Reopened", Field{Key: "ticks", Value: 3})

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "tail", entry.Component)
	assert.Equal(t, "Reopened", entry.Message)
	assert.Equal(t, "/var/log/kern.log", entry.Fields["file"])
	assert.Equal(t, float64(3), entry.Fields["ticks"])
	assert.NotContains(t, entry.Fields, "component")
}

func TestToTextSortsFields(t *testing.T) {
	e := NewEntry("info", "engine", "Started", map[string]interface{}{
		"zeta":  1,
		"alpha": "a",
		"err":   errors.New("boom"),
	})
	text := e.ToText()
	assert.True(t, strings.HasSuffix(text, "[info] [engine] Started alpha=a err=boom zeta=1"), text)
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.Equal(t, level, ParseLevel(level).String())
	}
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestGlobalLogger(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	// Before Init everything is discarded.
	Info("dropped")
	With(Field{Key: "component", Value: "x"}).Info("dropped")

	var buf bytes.Buffer
	Init(Config{Level: "info"}, []Backend{NewWriterBackend(&buf, "text")})
	Debug("hidden")
	Info("shown")
	SetLevel("debug")
	Debug("now shown")
	With(Field{Key: "component", Value: "reload"}).Warn("slow")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "now shown")
	assert.Contains(t, out, "[warn] [reload] slow")
}

func TestFileBackendReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "fwlogd.log")

	b, err := NewFileBackend(path, "text")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Write(NewEntry("info", "", "first", nil)))

	// Simulate logrotate moving the file away.
	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, b.Reopen())
	require.NoError(t, b.Write(NewEntry("info", "", "second", nil)))

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "first")
	assert.NotContains(t, string(rotated), "second")
	assert.Contains(t, string(current), "second")

	require.NoError(t, b.Close())
	assert.Error(t, b.Write(NewEntry("info", "", "closed", nil)))
}

func TestJournalPriority(t *testing.T) {
	assert.Equal(t, "7", journalPriority("debug"))
	assert.Equal(t, "6", journalPriority("info"))
	assert.Equal(t, "4", journalPriority("warn"))
	assert.Equal(t, "3", journalPriority("error"))
}
