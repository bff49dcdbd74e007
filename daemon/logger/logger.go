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

// Package logger provides structured logging for the fwlogd daemon.
package logger

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger // Create child logger with preset fields
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Backend is the interface for log output backends
type Backend interface {
	Write(entry *Entry) error
	Close() error
}

// Config holds logger configuration
type Config struct {
	Level     string   // debug, info, warn, error
	Format    string   // text, json
	Outputs   []string // file, journald, stderr
	FilePath  string   // Path to log file
	Component string   // Default component name
}

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a string to a LogLevel
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// sink is shared by a logger and every child created with With.
type sink struct {
	mu       sync.RWMutex
	level    LogLevel
	backends []Backend
}

type standardLogger struct {
	sink      *sink
	component string
	fields    map[string]interface{}
}

// New creates a new logger with the given configuration and backends
func New(config Config, backends []Backend) Logger {
	return &standardLogger{
		sink:      &sink{level: ParseLevel(config.Level), backends: backends},
		component: config.Component,
		fields:    make(map[string]interface{}),
	}
}

func (l *standardLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *standardLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *standardLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *standardLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// With creates a child logger with preset fields. A "component" field
// replaces the component instead of becoming a field.
func (l *standardLogger) With(fields ...Field) Logger {
	child := &standardLogger{
		sink:      l.sink,
		component: l.component,
		fields:    make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, f := range fields {
		if s, ok := f.Value.(string); ok && f.Key == "component" {
			child.component = s
			continue
		}
		child.fields[f.Key] = f.Value
	}
	return child
}

func (l *standardLogger) log(level LogLevel, msg string, fields []Field) {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	if level < l.sink.level {
		return
	}

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}

	entry := NewEntry(level.String(), l.component, msg, merged)
	for _, backend := range l.sink.backends {
		if err := backend.Write(entry); err != nil {
			fmt.Fprintf(os.Stderr, "Logger backend error: %v\n", err)
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (n nopLogger) With(...Field) Logger { return n }

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

var (
	stdMu sync.RWMutex
	std   *standardLogger
)

// Init initializes the global logger, closing the backends of a previous
// one.
func Init(config Config, backends []Backend) {
	l := New(config, backends).(*standardLogger)

	stdMu.Lock()
	prev := std
	std = l
	stdMu.Unlock()

	if prev != nil {
		_ = closeBackends(prev.sink)
	}
}

// SetLevel changes the level of the global logger and its children.
func SetLevel(level string) {
	if l := global(); l != nil {
		l.sink.mu.Lock()
		l.sink.level = ParseLevel(level)
		l.sink.mu.Unlock()
	}
}

// Reopen reopens every file backend of the global logger, for use after
// log rotation.
func Reopen() error {
	l := global()
	if l == nil {
		return nil
	}
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	var errs []error
	for _, b := range l.sink.backends {
		if r, ok := b.(interface{ Reopen() error }); ok {
			errs = append(errs, r.Reopen())
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes the global logger's backends.
func Close() error {
	stdMu.Lock()
	l := std
	std = nil
	stdMu.Unlock()

	if l == nil {
		return nil
	}
	return closeBackends(l.sink)
}

func closeBackends(s *sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.backends {
		errs = append(errs, b.Close())
	}
	s.backends = nil
	return errors.Join(errs...)
}

func global() *standardLogger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

// With returns a child of the global logger. Before Init it returns a
// logger that discards everything.
func With(fields ...Field) Logger {
	if l := global(); l != nil {
		return l.With(fields...)
	}
	return nopLogger{}
}

// Debug logs a debug message using the global logger
func Debug(msg string, fields ...Field) {
	if l := global(); l != nil {
		l.Debug(msg, fields...)
	}
}

// Info logs an info message using the global logger
func Info(msg string, fields ...Field) {
	if l := global(); l != nil {
		l.Info(msg, fields...)
	}
}

// Warn logs a warning message using the global logger
func Warn(msg string, fields ...Field) {
	if l := global(); l != nil {
		l.Warn(msg, fields...)
	}
}

// Error logs an error message using the global logger
func Error(msg string, fields ...Field) {
	if l := global(); l != nil {
		l.Error(msg, fields...)
	}
}
