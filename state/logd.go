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

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/we-are-mono/fwlogd/types"
)

// Defaults for fwlogd.json.
const (
	DefaultSourceLog      = "/var/log/kern.log"
	DefaultOutputLog      = "/var/log/fwlogd/traffic.log"
	DefaultMarker         = "fwlogd:"
	DefaultNetworkModel   = "network.hcl"
	DefaultBackend        = "file"
	DefaultPollMS         = 30
	DefaultIdleTicks      = 1000
	DefaultBufferSize     = 1024
	DefaultSocketPath     = "/var/run/fwlogd.sock"
	DefaultMailboxKey     = 0x66776c67
	DefaultHandshakeTicks = 30
	DefaultStorePath      = "/var/lib/fwlogd/events.db"
	DefaultLogFile        = "/var/log/fwlogd/fwlogd.log"
)

// ConfigPath returns the location of fwlogd.json, or override when set.
func ConfigPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(GetConfigDir(), "fwlogd.json")
}

// LoadLogdConfig loads fwlogd.json from path (or the config dir when empty).
// A missing file yields the default configuration.
func LoadLogdConfig(path string) (*types.LogdConfig, error) {
	path = ConfigPath(path)

	config := DefaultLogdConfig()
	if err := LoadFile(path, config); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultLogdConfig(), nil
		}
		return nil, err
	}

	ApplyDefaults(config)
	if err := checkLogdConfig(config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// SaveLogdConfig writes config to path (or the config dir when empty).
func SaveLogdConfig(path string, config *types.LogdConfig) error {
	return SaveFile(ConfigPath(path), config)
}

// DefaultLogdConfig returns a configuration with every default filled in.
func DefaultLogdConfig() *types.LogdConfig {
	config := &types.LogdConfig{Version: "1.0"}
	ApplyDefaults(config)
	return config
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(c *types.LogdConfig) {
	if c.SourceLog == "" {
		c.SourceLog = DefaultSourceLog
	}
	if c.OutputLog == "" {
		c.OutputLog = DefaultOutputLog
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	if c.NetworkModel == "" {
		c.NetworkModel = DefaultNetworkModel
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.PollMS <= 0 {
		c.PollMS = DefaultPollMS
	}
	if c.IdleTicks <= 0 {
		c.IdleTicks = DefaultIdleTicks
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Mailbox == nil {
		c.Mailbox = &types.MailboxConfig{}
	}
	if c.Mailbox.Key == 0 {
		c.Mailbox.Key = DefaultMailboxKey
	}
	if c.Mailbox.HandshakeTicks <= 0 {
		c.Mailbox.HandshakeTicks = DefaultHandshakeTicks
	}
	if c.Store == nil {
		c.Store = &types.StoreConfig{}
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.MaintenanceS <= 0 {
		c.Store.MaintenanceS = 3600
	}
	if c.Logging == nil {
		c.Logging = &types.LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
}

func checkLogdConfig(c *types.LogdConfig) error {
	if c.SourceLog == c.OutputLog {
		return fmt.Errorf("source_log and output_log must differ")
	}
	if c.BufferSize < 128 {
		return fmt.Errorf("buffer_size %d is below the minimum of 128", c.BufferSize)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	return nil
}
