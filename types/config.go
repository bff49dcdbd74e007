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

package types

// LogdConfig is the daemon configuration (fwlogd.json).
type LogdConfig struct {
	SourceLog    string         `json:"source_log"`    // kernel log to tail
	OutputLog    string         `json:"output_log"`    // audit log written by the daemon
	Marker       string         `json:"marker"`        // token identifying firewall lines
	NetworkModel string         `json:"network_model"` // network model namespace/file, e.g. "network.hcl"
	Backend      string         `json:"backend"`       // "file" or the name of a backend plugin
	PollMS       int            `json:"poll_ms"`       // sleep between empty reads
	IdleTicks    int            `json:"idle_ticks"`    // empty reads before both logs are reopened
	BufferSize   int            `json:"buffer_size"`   // longest line read in one go
	SocketPath   string         `json:"socket_path"`   // status socket, FWLOGD_SOCKET_PATH overrides
	MetricsAddr  string         `json:"metrics_addr"`  // HTTP listen address for /metrics ("" disables)
	Mailbox      *MailboxConfig `json:"mailbox"`       // reload mailbox (optional)
	Store        *StoreConfig   `json:"store"`         // audit store (optional)
	Logging      *LoggingConfig `json:"logging"`       // daemon logging (optional)
	Version      string         `json:"version"`
}

// MailboxConfig configures the reload mailbox shared with the management
// process.
type MailboxConfig struct {
	Enabled        bool `json:"enabled"`
	Key            int  `json:"key"`             // System V IPC key
	HandshakeTicks int  `json:"handshake_ticks"` // one-second ticks to wait for the peer ack
}

// StoreConfig configures the SQLite audit store.
type StoreConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"` // 0 = forever
	MaxEntries    int    `json:"max_entries"`    // 0 = unlimited
	MaintenanceS  int    `json:"maintenance_s"`  // seconds between maintenance runs
}

// LoggingConfig configures the daemon's own log output.
type LoggingConfig struct {
	Level   string   `json:"level"`   // debug, info, warn, error (default: info)
	Format  string   `json:"format"`  // text, json (default: json)
	Outputs []string `json:"outputs"` // ["file", "journald", "stderr"] (default: auto-detect)
	File    string   `json:"file"`    // Log file path (default: /var/log/fwlogd/fwlogd.log)
}
