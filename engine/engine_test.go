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

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/we-are-mono/fwlogd/plugins"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/store"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/types"
)

const engineModel = `
zone "lan" {
  network "office" {
    address = "192.168.1.0/24"

    host "printer" {
      ipv4 = ["192.168.1.20"]
    }
  }
}

service "ssh" {
  port {
    protocol = "tcp"
    dst      = "22"
  }
}

service "ping" {
  icmp {
    type = 8
  }
}

interface "lan" {
  device  = "eth1"
  network = "office.lan"
  ipv4    = ["192.168.1.1"]
}

interface "wan" {
  device  = "eth0"
  dynamic = true
}
`

const (
	sshLine = "Jan  5 12:34:56 gw kernel: fwlogd: DROP ssh-in IN=eth0 OUT= SRC=198.51.100.7 " +
		"DST=203.0.113.2 LEN=60 TOS=0x00 TTL=64 ID=1 DF PROTO=TCP SPT=40000 DPT=22 WINDOW=1024 SYN URGP=0"
	sshOut = "Jan  5 12:34:56: DROP ssh: 198.51.100.7 -> firewall [ssh-in] in: eth0 " +
		"(198.51.100.7:40000 -> 203.0.113.2:22) TCP flags: ****s* len:60 ttl:64"

	pingLine = "Mar 10 23:59:59 gw kernel: fwlogd: ACCEPT IN=eth1 OUT=eth0 SRC=192.168.1.20 " +
		"DST=9.9.9.9 LEN=84 TTL=63 ID=0 PROTO=ICMP TYPE=8 CODE=0 ID=7 SEQ=1"
	pingOut = "Mar 10 23:59:59: ACCEPT ping: printer.office.lan -> 9.9.9.9 [none] in: eth1 out: eth0 " +
		"(192.168.1.20 -> 9.9.9.9) ICMP type 8 code 0 len:84 ttl:63"

	foreignLine = "Mar 10 23:59:59 gw kernel: usb 1-1: new high-speed USB device"
	invalidLine = "Mar 10 23:59:59 gw kernel: fwlogd: DROP IN=eth0 OUT= DST=9.9.9.9 LEN=1 TTL=1 PROTO=UDP SPT=1 DPT=2"
)

type fixture struct {
	dir     string
	cfgPath string
	source  string
	output  string
	model   string
	nl      *system.MockNetlinkClient
	mb      *reload.MemoryMailbox
	now     atomic.Int64
	sleeps  atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		cfgPath: filepath.Join(dir, "fwlogd.json"),
		source:  filepath.Join(dir, "kern.log"),
		output:  filepath.Join(dir, "out", "traffic.log"),
		model:   filepath.Join(dir, "network.hcl"),
		nl:      system.NewMockNetlinkClient(),
		mb:      reload.NewMemoryMailbox(),
	}
	f.now.Store(time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC).Unix())
	f.nl.AddDevice("eth0", "203.0.113.2/29")
	f.nl.AddDevice("eth1", "192.168.1.1/24")

	require.NoError(t, os.WriteFile(f.source, nil, 0644))
	require.NoError(t, os.WriteFile(f.model, []byte(engineModel), 0644))
	f.writeConfig(t, func(*types.LogdConfig) {})
	return f
}

func (f *fixture) writeConfig(t *testing.T, edit func(*types.LogdConfig)) {
	t.Helper()
	cfg := &types.LogdConfig{
		SourceLog:    f.source,
		OutputLog:    f.output,
		NetworkModel: "network.hcl",
		IdleTicks:    3,
		Store: &types.StoreConfig{
			Enabled: true,
			Path:    filepath.Join(f.dir, "events.db"),
		},
	}
	edit(cfg)
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.cfgPath, data, 0644))
}

func (f *fixture) options() Options {
	return Options{
		ConfigPath: f.cfgPath,
		Netlink:    f.nl,
		Plugins:    plugins.NewPluginManager(),
		Mailbox:    f.mb,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps.Add(1)
			return ctx.Err()
		},
		Now:       func() time.Time { return time.Unix(f.now.Load(), 0) },
		FromStart: true,
	}
}

func (f *fixture) start(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), f.options())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func (f *fixture) appendSource(t *testing.T, lines ...string) {
	t.Helper()
	fh, err := os.OpenFile(f.source, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer fh.Close()
	for _, l := range lines {
		_, err := fh.WriteString(l + "\n")
		require.NoError(t, err)
	}
}

func (f *fixture) outputLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// drain steps until the engine reports an idle read.
func drain(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; i < 100; i++ {
		idle, err := e.Step(context.Background())
		require.NoError(t, err)
		if idle {
			return
		}
	}
	t.Fatal("engine never went idle")
}

func TestEngineProcessesLines(t *testing.T) {
	f := newFixture(t)
	f.appendSource(t, sshLine, foreignLine, pingLine, invalidLine)
	e := f.start(t)

	drain(t, e)

	assert.Equal(t, []string{sshOut, pingOut}, f.outputLines(t))

	c := e.Counters()
	assert.Equal(t, uint64(4), c.Total)
	assert.Equal(t, uint64(2), c.Firewall)
	assert.Equal(t, uint64(1), c.Foreign)
	assert.Equal(t, uint64(1), c.Invalid)
	// The invalid line is a DROP missing SRC=; its action still counts.
	assert.Equal(t, uint64(2), c.Actions["drop"])
	assert.Equal(t, uint64(1), c.Actions["accept"])
	assert.Equal(t, uint64(1), c.Protocols["tcp"])
	assert.Equal(t, uint64(1), c.Protocols["icmp"])

	s, err := store.Open(filepath.Join(f.dir, "events.db"))
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Query(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "printer.office.lan", entries[0].SrcName)
	assert.Equal(t, "ssh", entries[1].Service)
	assert.Equal(t, "firewall", entries[1].DstName)

	info := e.Info()
	assert.Equal(t, f.source, info.SourceLog)
	assert.Equal(t, f.output, info.OutputLog)
	assert.True(t, info.StoreOpen)
	assert.NotEmpty(t, info.Fingerprint)
	assert.Equal(t, 2, info.Interfaces)

	var buf bytes.Buffer
	require.NoError(t, e.Report(&buf))
	assert.Contains(t, buf.String(), "lines: 4 total, 2 firewall, 1 foreign, 1 invalid")
}

func TestEngineFollowsFromEnd(t *testing.T) {
	f := newFixture(t)
	f.appendSource(t, sshLine)

	opts := f.options()
	opts.FromStart = false
	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer e.Close()

	drain(t, e)
	f.appendSource(t, pingLine)
	drain(t, e)

	assert.Equal(t, []string{pingOut}, f.outputLines(t))
}

func TestEngineSignalReload(t *testing.T) {
	f := newFixture(t)
	e := f.start(t)
	before := e.Fingerprint()

	e.RequestReload()
	drain(t, e)
	st := e.ReloadStatus()
	assert.Equal(t, reload.NoChanges, st.Result)
	assert.Equal(t, reload.TriggerSignal, st.Trigger)
	assert.Equal(t, before, e.Fingerprint())
	assert.Zero(t, f.sleeps.Load(), "signal reloads skip the handshake")

	// Name the unknown source and reload again.
	model := strings.Replace(engineModel, `zone "lan" {`, `zone "inet" {
  network "partner" {
    address = "198.51.100.0/24"

    host "scanner" {
      ipv4 = ["198.51.100.7"]
    }
  }
}

zone "lan" {`, 1)
	require.NoError(t, os.WriteFile(f.model, []byte(model), 0644))

	e.RequestReload()
	f.appendSource(t, sshLine)
	drain(t, e)

	assert.Equal(t, reload.Success, e.ReloadStatus().Result)
	assert.NotEqual(t, before, e.Fingerprint())
	assert.Equal(t, []string{strings.Replace(sshOut, "198.51.100.7 -> firewall", "scanner.partner.inet -> firewall", 1)}, f.outputLines(t))
}

func TestEnginePeerReload(t *testing.T) {
	f := newFixture(t)
	e := f.start(t)

	_, err := reload.Update(context.Background(), f.mb, func(r *reload.Record) { r.ReloadRequested = true })
	require.NoError(t, err)

	_, err = e.Step(context.Background())
	require.NoError(t, err)

	st := e.ReloadStatus()
	assert.Equal(t, reload.TriggerPeer, st.Trigger)
	assert.Equal(t, reload.NoChanges, st.Result)
	assert.Equal(t, int64(30), f.sleeps.Load(), "handshake waits every tick without an ack")

	rec, err := reload.Peek(context.Background(), f.mb)
	require.NoError(t, err)
	assert.Equal(t, reload.Ready, rec.Result)
	assert.Equal(t, 0, rec.Progress)
}

func TestEngineConfigFailureKeepsRunning(t *testing.T) {
	f := newFixture(t)
	e := f.start(t)

	require.NoError(t, os.WriteFile(f.cfgPath, []byte(`{"source_log": `), 0644))
	e.RequestReload()
	f.appendSource(t, pingLine)
	drain(t, e)

	assert.Equal(t, reload.NoChanges, e.ReloadStatus().Result)
	assert.Equal(t, []string{pingOut}, f.outputLines(t))
}

func TestEngineFatalReload(t *testing.T) {
	f := newFixture(t)
	e := f.start(t)

	require.NoError(t, os.WriteFile(f.model, []byte(`zone "lan" {`), 0644))
	e.RequestReload()

	_, err := e.Step(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, reload.ErrFatal)
	assert.Contains(t, err.Error(), "interfaces")
	assert.Equal(t, reload.Error, e.ReloadStatus().Result)
}

func TestEngineNetlinkFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	e := f.start(t)

	f.nl.LinkByNameError = assert.AnError
	e.RequestReload()

	_, err := e.Step(context.Background())
	assert.ErrorIs(t, err, reload.ErrFatal)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestEngineIdleReopenAfterRotation(t *testing.T) {
	f := newFixture(t)
	f.appendSource(t, sshLine)
	e := f.start(t)
	drain(t, e)

	// Rotate both logs the way logrotate does.
	require.NoError(t, os.Rename(f.source, f.source+".1"))
	require.NoError(t, os.Rename(f.output, f.output+".1"))
	require.NoError(t, os.WriteFile(f.source, nil, 0644))
	f.appendSource(t, pingLine)

	// IdleTicks is 3 and drain already saw one idle read: two more idle
	// reads, then the reopen.
	for i := 0; i < 2; i++ {
		idle, err := e.Step(context.Background())
		require.NoError(t, err)
		require.True(t, idle)
	}
	assert.Equal(t, 0, e.Info().Reopens)
	_, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.Info().Reopens)

	drain(t, e)
	assert.Equal(t, []string{pingOut}, f.outputLines(t))
}

func TestEngineStoreMaintenance(t *testing.T) {
	f := newFixture(t)
	f.writeConfig(t, func(c *types.LogdConfig) {
		c.Store.MaxEntries = 1
		c.Store.MaintenanceS = 60
	})
	f.appendSource(t, sshLine, pingLine, sshLine)
	e := f.start(t)
	drain(t, e)

	f.now.Add(120)
	drain(t, e)

	s, err := store.Open(filepath.Join(f.dir, "events.db"))
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Query(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewFailures(t *testing.T) {
	t.Run("invalid model", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.WriteFile(f.model, []byte(`interface "x" {}`), 0644))
		_, err := New(context.Background(), f.options())
		assert.Error(t, err)
	})

	t.Run("missing source log", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.Remove(f.source))
		_, err := New(context.Background(), f.options())
		assert.ErrorContains(t, err, "source log")
	})

	t.Run("invalid config", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.WriteFile(f.cfgPath, []byte(`{`), 0644))
		_, err := New(context.Background(), f.options())
		assert.Error(t, err)
	})
}

func TestRunStops(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		time.Sleep(time.Millisecond)
		return ctx.Err()
	}
	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer e.Close()

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
