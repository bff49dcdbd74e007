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
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend appends log entries to a file
type FileBackend struct {
	path   string
	format string // "json" or "text"
	file   *os.File
	mu     sync.Mutex
}

// NewFileBackend creates a new file backend
func NewFileBackend(path string, format string) (*FileBackend, error) {
	b := &FileBackend{path: path, format: format}
	if err := b.open(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) open() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	b.file = file
	return nil
}

// Write writes a log entry to the file
func (b *FileBackend) Write(entry *Entry) error {
	line, err := entry.Render(b.format)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return fmt.Errorf("log file %s is closed", b.path)
	}
	if _, err := b.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}
	return nil
}

// Reopen closes and reopens the file so a rotated log is picked up.
func (b *FileBackend) Reopen() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}
	return b.open()
}

// Close closes the log file
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
