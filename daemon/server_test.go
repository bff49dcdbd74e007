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

package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/we-are-mono/fwlogd/engine"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/stats"
)

type fakeSource struct {
	reloads atomic.Int32
	started time.Time
}

func (f *fakeSource) Counters() stats.Snapshot {
	return stats.Snapshot{
		Total:     10,
		Firewall:  7,
		Foreign:   2,
		Invalid:   1,
		Actions:   map[string]uint64{"drop": 5, "accept": 2},
		Protocols: map[string]uint64{"tcp": 6, "icmp": 1},
	}
}

func (f *fakeSource) ReloadStatus() reload.Status {
	return reload.Status{State: reload.StateReady, Result: reload.NoChanges, Cycles: 2}
}

func (f *fakeSource) Info() engine.Info {
	return engine.Info{Started: f.started, SourceLog: "/var/log/kern.log", Marker: "fwlogd:"}
}

func (f *fakeSource) RequestReload() { f.reloads.Add(1) }

func TestHandleRequest(t *testing.T) {
	src := &fakeSource{started: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newServer(src)
	s.now = func() time.Time { return src.started.Add(90 * time.Minute) }

	tests := []struct {
		name    string
		command string
		success bool
		check   func(t *testing.T, resp Response)
	}{
		{
			name:    "status",
			command: CmdStatus,
			success: true,
			check: func(t *testing.T, resp Response) {
				var r StatusReport
				require.NoError(t, json.Unmarshal(resp.Data, &r))
				assert.Equal(t, "1h30m0s", r.Uptime)
				assert.Equal(t, "fwlogd:", r.Info.Marker)
				assert.Equal(t, uint64(7), r.Counters.Firewall)
				assert.Equal(t, reload.NoChanges, r.Reload.Result)
			},
		},
		{
			name:    "counters",
			command: CmdCounters,
			success: true,
			check: func(t *testing.T, resp Response) {
				var c stats.Snapshot
				require.NoError(t, json.Unmarshal(resp.Data, &c))
				assert.Equal(t, uint64(5), c.Actions["drop"])
			},
		},
		{
			name:    "reload state",
			command: CmdReloadState,
			success: true,
			check: func(t *testing.T, resp Response) {
				var st reload.Status
				require.NoError(t, json.Unmarshal(resp.Data, &st))
				assert.Equal(t, 2, st.Cycles)
				assert.Equal(t, reload.StateReady, st.State)
			},
		},
		{
			name:    "reload",
			command: CmdReload,
			success: true,
			check: func(t *testing.T, resp Response) {
				assert.Equal(t, "Reload requested", resp.Message)
				assert.Equal(t, int32(1), src.reloads.Load())
			},
		},
		{
			name:    "unknown",
			command: "commit",
			success: false,
			check: func(t *testing.T, resp Response) {
				assert.Contains(t, resp.Error, "unknown command: commit")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.handleRequest(Request{Command: tt.command})
			assert.Equal(t, tt.success, resp.Success)
			tt.check(t, resp)
		})
	}
}

func TestGetSocketPath(t *testing.T) {
	t.Setenv("FWLOGD_SOCKET_PATH", "")
	assert.Equal(t, DefaultSocketPath, GetSocketPath(""))
	assert.Equal(t, "/tmp/x.sock", GetSocketPath("/tmp/x.sock"))

	t.Setenv("FWLOGD_SOCKET_PATH", "/tmp/env.sock")
	assert.Equal(t, "/tmp/env.sock", GetSocketPath("/tmp/x.sock"))
}

func roundTrip(t *testing.T, path string, payload string) Response {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(payload + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestServerSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sock")
	src := &fakeSource{}
	s, err := NewServer(path, src)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	resp := roundTrip(t, path, `{"command":"counters"}`)
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"firewall":7`)

	resp = roundTrip(t, path, `not json`)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid request")

	require.NoError(t, s.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.NoFileExists(t, path)
}
