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

// Package daemon serves the status socket and the HTTP endpoint of a
// running fwlogd.
package daemon

import (
	"encoding/json"
	"time"

	"github.com/we-are-mono/fwlogd/engine"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/stats"
)

// Commands understood by the status socket.
const (
	CmdStatus      = "status"
	CmdCounters    = "counters"
	CmdReloadState = "reload-state"
	CmdReload      = "reload"
)

// Request represents a command sent to the daemon
type Request struct {
	Command string `json:"command"` // status, counters, reload-state, reload
}

// Response represents the daemon's response
type Response struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Success bool            `json:"success"`
}

// StatusReport is the payload of the status command.
type StatusReport struct {
	Info     engine.Info    `json:"info"`
	Counters stats.Snapshot `json:"counters"`
	Reload   reload.Status  `json:"reload"`
	Uptime   string         `json:"uptime"`
}

// Source is what the daemon reports on. *engine.Engine implements it.
type Source interface {
	Counters() stats.Snapshot
	ReloadStatus() reload.Status
	Info() engine.Info
	RequestReload()
}

var _ Source = (*engine.Engine)(nil)

// Report collects a StatusReport from src.
func Report(src Source, now time.Time) StatusReport {
	info := src.Info()
	r := StatusReport{
		Info:     info,
		Counters: src.Counters(),
		Reload:   src.ReloadStatus(),
	}
	if !info.Started.IsZero() {
		r.Uptime = now.Sub(info.Started).Truncate(time.Second).String()
	}
	return r
}
