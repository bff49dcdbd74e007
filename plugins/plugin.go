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

// Package plugins loads the configuration backends fwlogd reads its
// network model from. The built-in backend reads files; other backends run
// out of process through Hashicorp's go-plugin framework.
package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BinaryPrefix is the file name prefix of backend plugin binaries.
const BinaryPrefix = "fwlogd-backend-"

// FileBackendName selects the built-in file backend.
const FileBackendName = "file"

// Backend serves configuration documents by name. Reopen is called on
// every reload before the documents are read again.
type Backend interface {
	Load(name string) ([]byte, error)
	Reopen(ctx context.Context) error
	Close() error
}

// PluginManager manages plugin discovery.
// It searches for plugins in multiple directories.
type PluginManager struct {
	pluginDirs []string
}

// NewPluginManager creates a new plugin manager with default search directories.
// Search order: ./bin (dev), /usr/lib/fwlogd/backends (system), /opt/fwlogd/backends (alt).
func NewPluginManager() *PluginManager {
	return &PluginManager{
		pluginDirs: []string{
			"./bin",
			"/usr/lib/fwlogd/backends",
			"/opt/fwlogd/backends",
		},
	}
}

// FindPlugin searches for a backend binary by name
// ("sqlite" -> "fwlogd-backend-sqlite").
func (pm *PluginManager) FindPlugin(name string) (string, error) {
	pluginName := BinaryPrefix + name

	for _, dir := range pm.pluginDirs {
		pluginPath := filepath.Join(dir, pluginName)
		if isExecutable(pluginPath) {
			return pluginPath, nil
		}
	}

	return "", fmt.Errorf("plugin not found: %s", name)
}

// ListPlugins returns the names of all available backend plugins, without
// the prefix.
func (pm *PluginManager) ListPlugins() ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, dir := range pm.pluginDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // Directory might not exist
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, BinaryPrefix) {
				continue
			}
			if !isExecutable(filepath.Join(dir, name)) {
				continue
			}
			name = strings.TrimPrefix(name, BinaryPrefix)
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}

	return result, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}

// Open returns the named backend. "file" (or "") is served in process from
// configDir; any other name is started as a plugin.
func (pm *PluginManager) Open(name, configDir string) (Backend, error) {
	if name == "" || name == FileBackendName {
		return NewFileBackend(configDir), nil
	}

	path, err := pm.FindPlugin(name)
	if err != nil {
		return nil, err
	}
	client, err := NewPluginClient(path)
	if err != nil {
		return nil, fmt.Errorf("failed to start backend %s: %w", name, err)
	}
	provider, err := client.Dispense()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &remoteBackend{client: client, provider: provider}, nil
}

// remoteBackend adapts a plugin Provider to Backend.
type remoteBackend struct {
	client   *PluginClient
	provider Provider
}

func (b *remoteBackend) Load(name string) ([]byte, error) {
	return b.provider.Load(context.Background(), name)
}

func (b *remoteBackend) Reopen(ctx context.Context) error {
	return b.provider.Reopen(ctx)
}

func (b *remoteBackend) Close() error {
	return b.client.Close()
}
