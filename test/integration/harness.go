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

//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vishvananda/netlink"
	"github.com/we-are-mono/fwlogd/client"
	"github.com/we-are-mono/fwlogd/daemon"
	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/engine"
	"github.com/we-are-mono/fwlogd/types"
)

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestHarness provides isolated test environment for integration tests
type TestHarness struct {
	t             *testing.T
	configDir     string
	socketPath    string
	SourceLog     string
	OutputLog     string
	StorePath     string
	MailboxKey    int
	createdIfaces []string

	eng    *engine.Engine
	srv    *daemon.Server
	cancel context.CancelFunc
	runErr chan error
	Logs   syncBuffer
}

// NewTestHarness creates a new isolated test environment. Dummy interfaces
// and System V IPC need root.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("Integration tests require root privileges")
	}

	configDir := t.TempDir()
	h := &TestHarness{
		t:          t,
		configDir:  configDir,
		socketPath: filepath.Join(configDir, "fwlogd.sock"),
		SourceLog:  filepath.Join(configDir, "kern.log"),
		OutputLog:  filepath.Join(configDir, "out", "traffic.log"),
		StorePath:  filepath.Join(configDir, "events.db"),
		MailboxKey: 0x66770000 | (os.Getpid() & 0xffff),
	}

	t.Setenv("FWLOGD_CONFIG_DIR", configDir)
	t.Setenv("FWLOGD_SOCKET_PATH", h.socketPath)

	if err := os.WriteFile(h.SourceLog, nil, 0644); err != nil {
		t.Fatalf("Failed to create source log: %v", err)
	}

	t.Logf("Created test harness: config=%s, socket=%s", configDir, h.socketPath)
	t.Cleanup(h.Cleanup)
	return h
}

// WriteConfig writes a configuration file to the test config directory
func (h *TestHarness) WriteConfig(filename string, content []byte) {
	h.t.Helper()
	path := filepath.Join(h.configDir, filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		h.t.Fatalf("Failed to write config file %s: %v", filename, err)
	}
}

// WriteDaemonConfig writes fwlogd.json pointing every path into the test
// directory, with the mailbox enabled and short poll intervals.
func (h *TestHarness) WriteDaemonConfig(edit func(*types.LogdConfig)) {
	h.t.Helper()
	cfg := &types.LogdConfig{
		SourceLog:    h.SourceLog,
		OutputLog:    h.OutputLog,
		NetworkModel: "network.hcl",
		PollMS:       5,
		IdleTicks:    20,
		Mailbox:      &types.MailboxConfig{Enabled: true, Key: h.MailboxKey, HandshakeTicks: 5},
		Store:        &types.StoreConfig{Enabled: true, Path: h.StorePath},
		Logging:      &types.LoggingConfig{Level: "debug"},
	}
	if edit != nil {
		edit(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		h.t.Fatalf("Failed to marshal config: %v", err)
	}
	h.WriteConfig("fwlogd.json", data)
}

// CreateDummyInterface creates an up dummy interface with the given
// addresses. The name is prefixed with "t" to stay clear of real devices.
func (h *TestHarness) CreateDummyInterface(name string, cidrs ...string) string {
	h.t.Helper()

	actualName := "t" + name
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: actualName}}
	if err := netlink.LinkAdd(link); err != nil {
		h.t.Fatalf("Failed to create dummy interface %s: %v", actualName, err)
	}
	h.createdIfaces = append(h.createdIfaces, actualName)

	// No link-local address showing up later and changing the fingerprint.
	_ = os.WriteFile(filepath.Join("/proc/sys/net/ipv6/conf", actualName, "disable_ipv6"), []byte("1"), 0644)

	if err := netlink.LinkSetUp(link); err != nil {
		h.t.Fatalf("Failed to bring up interface %s: %v", actualName, err)
	}
	for _, c := range cidrs {
		h.AddAddress(actualName, c)
	}
	return actualName
}

// AddAddress adds cidr to an existing interface.
func (h *TestHarness) AddAddress(device, cidr string) {
	h.t.Helper()
	link, err := netlink.LinkByName(device)
	if err != nil {
		h.t.Fatalf("Failed to find interface %s: %v", device, err)
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		h.t.Fatalf("Invalid address %s: %v", cidr, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		h.t.Fatalf("Failed to add %s to %s: %v", cidr, device, err)
	}
}

// StartDaemon starts the engine and the status socket in-process.
func (h *TestHarness) StartDaemon() error {
	logger.Init(logger.Config{Level: "debug", Format: "json", Component: "daemon"},
		[]logger.Backend{logger.NewWriterBackend(&h.Logs, "json")})

	ctx, cancel := context.WithCancel(context.Background())
	eng, err := engine.New(ctx, engine.Options{FromStart: true})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	srv, err := daemon.NewServer(daemon.GetSocketPath(""), eng)
	if err != nil {
		cancel()
		eng.Close()
		return fmt.Errorf("failed to create status socket: %w", err)
	}
	go srv.Start()

	h.eng, h.srv, h.cancel = eng, srv, cancel
	h.runErr = make(chan error, 1)
	go func() { h.runErr <- eng.Run(ctx) }()
	return nil
}

// WaitForDaemon waits for daemon to be ready to accept connections
func (h *TestHarness) WaitForDaemon(timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := h.Client().Status(); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	h.t.Fatal("Daemon did not become ready within timeout")
}

// Client returns a client for the harness socket.
func (h *TestHarness) Client() *client.Client {
	return client.New("")
}

// AppendLog appends kernel log lines to the source log.
func (h *TestHarness) AppendLog(lines ...string) {
	h.t.Helper()
	f, err := os.OpenFile(h.SourceLog, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		h.t.Fatalf("Failed to open source log: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			h.t.Fatalf("Failed to append to source log: %v", err)
		}
	}
}

// WaitForOutput waits until the output log holds n lines and returns them.
func (h *TestHarness) WaitForOutput(n int, timeout time.Duration) []string {
	h.t.Helper()

	var lines []string
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(h.OutputLog)
		if err == nil {
			lines = nil
			if s := strings.TrimSuffix(string(data), "\n"); s != "" {
				lines = strings.Split(s, "\n")
			}
			if len(lines) >= n {
				return lines
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	h.t.Fatalf("Output log has %d lines, want %d", len(lines), n)
	return nil
}

// StopDaemon stops the engine and returns what Run returned.
func (h *TestHarness) StopDaemon() error {
	if h.eng == nil {
		return nil
	}
	h.eng.Stop()
	var err error
	select {
	case err = <-h.runErr:
	case <-time.After(5 * time.Second):
		h.cancel()
		err = <-h.runErr
	}
	h.cancel()
	h.srv.Stop()
	h.eng.Close()
	h.eng = nil
	return err
}

// Cleanup tears down the test environment
func (h *TestHarness) Cleanup() {
	if err := h.StopDaemon(); err != nil {
		h.t.Logf("Daemon stopped with error: %v", err)
	}
	logger.Close()

	for _, iface := range h.createdIfaces {
		if link, err := netlink.LinkByName(iface); err == nil {
			_ = netlink.LinkDel(link)
		}
	}

	if _, err := net.Dial("unix", h.socketPath); err == nil {
		h.t.Logf("Status socket still answering after cleanup")
	}
}
