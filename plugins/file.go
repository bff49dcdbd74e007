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

package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend reads configuration documents from a directory. Absolute
// names are read as they are.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Dir returns the directory relative names are resolved in.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid document name: %q", name)
	}
	return filepath.Join(b.dir, name), nil
}

// Load reads the named document.
func (b *FileBackend) Load(name string) ([]byte, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Reopen checks that the directory is still readable. Files are opened on
// every Load, so there is nothing to reopen.
func (b *FileBackend) Reopen(ctx context.Context) error {
	if _, err := os.Stat(b.dir); err != nil {
		return fmt.Errorf("config directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }

// FileProvider serves a FileBackend over the plugin protocol, so the file
// backend can also run out of process.
type FileProvider struct {
	Backend *FileBackend
}

func (p *FileProvider) Metadata(ctx context.Context) (MetadataResponse, error) {
	return MetadataResponse{
		Name:        FileBackendName,
		Version:     "1.0.0",
		Description: "Configuration documents from " + p.Backend.Dir(),
	}, nil
}

func (p *FileProvider) Load(ctx context.Context, name string) ([]byte, error) {
	return p.Backend.Load(name)
}

func (p *FileProvider) Reopen(ctx context.Context) error {
	return p.Backend.Reopen(ctx)
}

func (p *FileProvider) Status(ctx context.Context) ([]byte, error) {
	return json.Marshal(map[string]string{"dir": p.Backend.Dir()})
}
