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

package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/we-are-mono/fwlogd/daemon"
	"github.com/we-are-mono/fwlogd/engine"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/stats"
)

func TestFormatCounts(t *testing.T) {
	tests := []struct {
		name     string
		in       map[string]uint64
		expected string
	}{
		{"empty", nil, ""},
		{"sorted", map[string]uint64{"udp": 2, "icmp": 1, "tcp": 9}, "icmp=1 tcp=9 udp=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatCounts(tt.in))
		})
	}
}

func TestPrintStatus(t *testing.T) {
	r := &daemon.StatusReport{
		Uptime: "2h0m0s",
		Info: engine.Info{
			Started:    time.Now(),
			SourceLog:  "/var/log/kern.log",
			OutputLog:  "/var/log/fwlogd/traffic.log",
			Marker:     "fwlogd:",
			Backend:    "file",
			Zones:      12,
			Services:   30,
			Interfaces: 2,
		},
		Counters: stats.Snapshot{
			Total: 100, Firewall: 90, Foreign: 8, Invalid: 2,
			Actions:   map[string]uint64{"drop": 80, "accept": 10},
			Protocols: map[string]uint64{"tcp": 70, "udp": 20},
		},
		Reload: reload.Status{
			State:     reload.StateReady,
			Trigger:   reload.TriggerSignal,
			Result:    reload.Error,
			Cycles:    3,
			LastError: "fatal reload error: zones: bad address",
		},
	}

	var out bytes.Buffer
	printStatus(&out, r)
	s := out.String()

	assert.Contains(t, s, "Uptime:      2h0m0s")
	assert.Contains(t, s, "Tables:      12 addresses, 30 services, 2 interfaces")
	assert.Contains(t, s, "Store:       disabled")
	assert.Contains(t, s, "Lines: 100 total, 90 firewall, 8 foreign, 2 invalid")
	assert.Contains(t, s, "Actions: accept=10 drop=80")
	assert.Contains(t, s, "Reload: ready, 3 cycles, last error (signal)")
	assert.Contains(t, s, "[WARN] Last reload error: fatal reload error: zones: bad address")
}

func TestPrintStatusFreshDaemon(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &daemon.StatusReport{})
	assert.Contains(t, out.String(), "Uptime:      -")
	assert.Contains(t, out.String(), "Reload: ready\n")
	assert.NotContains(t, out.String(), "[WARN]")
}
