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
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"github.com/we-are-mono/fwlogd/daemon/logger"
)

// PluginClient wraps a go-plugin client for lifecycle management
type PluginClient struct {
	client    *plugin.Client
	rpcClient plugin.ClientProtocol
}

// NewPluginClient starts the plugin binary at pluginPath and connects to it.
func NewPluginClient(pluginPath string) (*PluginClient, error) {
	debug := os.Getenv("FWLOGD_DEBUG") != ""

	// Framework logs are discarded unless FWLOGD_DEBUG is set
	var output io.Writer = io.Discard
	logLevel := hclog.Error
	if debug {
		output = os.Stderr
		logLevel = hclog.Debug
	}
	hlog := hclog.New(&hclog.LoggerOptions{
		Name:   "plugin",
		Output: output,
		Level:  logLevel,
	})

	logger.Debug("Starting backend plugin", logger.Field{Key: "path", Value: pluginPath})

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			pluginName: &RPCPlugin{},
		},
		Cmd:    exec.Command(pluginPath),
		Logger: hlog,
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to get RPC client: %w", err)
	}

	return &PluginClient{
		client:    client,
		rpcClient: rpcClient,
	}, nil
}

// Dispense dispenses the plugin provider
func (c *PluginClient) Dispense() (Provider, error) {
	raw, err := c.rpcClient.Dispense(pluginName)
	if err != nil {
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	provider, ok := raw.(Provider)
	if !ok {
		return nil, fmt.Errorf("dispensed plugin is not a Provider")
	}

	return provider, nil
}

// Close terminates the plugin
func (c *PluginClient) Close() error {
	if c.client != nil {
		c.client.Kill()
	}
	return nil
}
