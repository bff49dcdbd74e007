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
	"context"
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is used to verify that client and server are compatible.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FWLOGD_PLUGIN",
	MagicCookieValue: "backend",
}

// pluginName is the key the backend is registered and dispensed under.
const pluginName = "backend"

// Provider is the interface backend plugins implement for RPC
// communication. Documents travel as raw bytes; decoding them is the
// daemon's job.
type Provider interface {
	// Metadata returns plugin information
	Metadata(ctx context.Context) (MetadataResponse, error)

	// Load returns the named configuration document
	Load(ctx context.Context, name string) ([]byte, error)

	// Reopen drops cached handles so the next Load sees fresh data
	Reopen(ctx context.Context) error

	// Status returns current status (response is JSON-encoded)
	Status(ctx context.Context) ([]byte, error)
}

// MetadataResponse contains plugin metadata
type MetadataResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// RPCPlugin is the go-plugin Plugin implementation
type RPCPlugin struct {
	plugin.Plugin
	Impl Provider
}

// Server returns the RPC server for this plugin
func (p *RPCPlugin) Server(broker *plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

// Client returns the RPC client for this plugin
func (p *RPCPlugin) Client(broker *plugin.MuxBroker, client *rpc.Client) (interface{}, error) {
	return &RPCClient{client: client}, nil
}

// ============================================================================
// RPC Server Implementation
// ============================================================================

// RPCServer is the RPC server that wraps Provider
type RPCServer struct {
	Impl Provider
}

type MetadataArgs struct{}
type MetadataReply struct {
	Error    string
	Metadata MetadataResponse
}

func (s *RPCServer) Metadata(args *MetadataArgs, reply *MetadataReply) error {
	metadata, err := s.Impl.Metadata(context.Background())
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	reply.Metadata = metadata
	return nil
}

type LoadArgs struct {
	Name string
}
type LoadReply struct {
	Error string
	Data  []byte
}

func (s *RPCServer) Load(args *LoadArgs, reply *LoadReply) error {
	data, err := s.Impl.Load(context.Background(), args.Name)
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	reply.Data = data
	return nil
}

type ReopenArgs struct{}
type ReopenReply struct {
	Error string
}

func (s *RPCServer) Reopen(args *ReopenArgs, reply *ReopenReply) error {
	if err := s.Impl.Reopen(context.Background()); err != nil {
		reply.Error = err.Error()
	}
	return nil
}

type StatusArgs struct{}
type StatusReply struct {
	Error      string
	StatusJSON []byte
}

func (s *RPCServer) Status(args *StatusArgs, reply *StatusReply) error {
	statusJSON, err := s.Impl.Status(context.Background())
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	reply.StatusJSON = statusJSON
	return nil
}

// ============================================================================
// RPC Client Implementation
// ============================================================================

// RPCClient is the RPC client that implements Provider
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Metadata(ctx context.Context) (MetadataResponse, error) {
	var reply MetadataReply
	if err := c.client.Call("Plugin.Metadata", &MetadataArgs{}, &reply); err != nil {
		return MetadataResponse{}, err
	}
	if reply.Error != "" {
		return MetadataResponse{}, ErrFromString(reply.Error)
	}
	return reply.Metadata, nil
}

func (c *RPCClient) Load(ctx context.Context, name string) ([]byte, error) {
	var reply LoadReply
	if err := c.client.Call("Plugin.Load", &LoadArgs{Name: name}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, ErrFromString(reply.Error)
	}
	return reply.Data, nil
}

func (c *RPCClient) Reopen(ctx context.Context) error {
	var reply ReopenReply
	if err := c.client.Call("Plugin.Reopen", &ReopenArgs{}, &reply); err != nil {
		return err
	}
	return ErrFromString(reply.Error)
}

func (c *RPCClient) Status(ctx context.Context) ([]byte, error) {
	var reply StatusReply
	if err := c.client.Call("Plugin.Status", &StatusArgs{}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, ErrFromString(reply.Error)
	}
	return reply.StatusJSON, nil
}

// ErrFromString rebuilds an error that crossed the RPC boundary as text.
func ErrFromString(s string) error {
	if s == "" {
		return nil
	}
	return &rpcError{msg: s}
}

type rpcError struct {
	msg string
}

func (e *rpcError) Error() string {
	return e.msg
}

// ServePlugin serves impl as a backend plugin. It blocks until the daemon
// kills the plugin process.
func ServePlugin(impl Provider) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			pluginName: &RPCPlugin{Impl: impl},
		},
	})
}
