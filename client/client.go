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

// Package client provides a client library for the fwlogd status socket.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/we-are-mono/fwlogd/daemon"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/stats"
)

// Client talks to one daemon socket.
type Client struct {
	path    string
	timeout time.Duration
}

// New returns a client for the socket at path, resolved through
// daemon.GetSocketPath.
func New(path string) *Client {
	return &Client{path: daemon.GetSocketPath(path), timeout: 10 * time.Second}
}

// SocketPath returns the socket the client connects to.
func (c *Client) SocketPath() string {
	return c.path
}

func (c *Client) Send(req daemon.Request) (*daemon.Response, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon (is it running?): %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	data = append(data, '\n')
	if _, err = conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp daemon.Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// call sends command and decodes the response data into out.
func (c *Client) call(command string, out interface{}) (*daemon.Response, error) {
	resp, err := c.Send(daemon.Request{Command: command})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, errors.New(resp.Error)
	}
	if out != nil {
		if len(resp.Data) == 0 {
			return resp, fmt.Errorf("%s: empty response", command)
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return resp, fmt.Errorf("%s: failed to decode response: %w", command, err)
		}
	}
	return resp, nil
}

func (c *Client) Status() (*daemon.StatusReport, error) {
	var r daemon.StatusReport
	if _, err := c.call(daemon.CmdStatus, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Counters() (*stats.Snapshot, error) {
	var s stats.Snapshot
	if _, err := c.call(daemon.CmdCounters, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ReloadState() (*reload.Status, error) {
	var s reload.Status
	if _, err := c.call(daemon.CmdReloadState, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Reload asks the daemon for a reload without the mailbox handshake.
func (c *Client) Reload() (string, error) {
	resp, err := c.call(daemon.CmdReload, nil)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}
