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
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/state"
)

// DefaultSocketPath is used when neither the environment nor the
// configuration names a socket.
const DefaultSocketPath = state.DefaultSocketPath

// GetSocketPath returns the socket path, preferring FWLOGD_SOCKET_PATH
// over the configured one.
func GetSocketPath(configured string) string {
	if path := os.Getenv("FWLOGD_SOCKET_PATH"); path != "" {
		return path
	}
	if configured != "" {
		return configured
	}
	return DefaultSocketPath
}

// handlerFunc is a function that handles a daemon command
type handlerFunc func(Request) Response

// Server answers status queries on a unix socket. Each connection carries
// one newline-terminated JSON request and its response.
type Server struct {
	src      Source
	path     string
	listener net.Listener
	done     chan struct{}
	once     sync.Once
	handlers map[string]handlerFunc
	now      func() time.Time
	log      logger.Logger
}

func NewServer(socketPath string, src Source) (*Server, error) {
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s := newServer(src)
	s.path = socketPath
	s.listener = listener
	return s, nil
}

func newServer(src Source) *Server {
	s := &Server{
		src:  src,
		done: make(chan struct{}),
		now:  time.Now,
		log:  logger.With(logger.Field{Key: "component", Value: "status"}),
	}
	s.handlers = map[string]handlerFunc{
		CmdStatus:      func(Request) Response { return s.handleStatus() },
		CmdCounters:    func(Request) Response { return s.handleCounters() },
		CmdReloadState: func(Request) Response { return s.handleReloadState() },
		CmdReload:      func(Request) Response { return s.handleReload() },
	}
	return s
}

// Start accepts connections until Stop is called.
func (s *Server) Start() error {
	s.log.Info("Status socket listening", logger.Field{Key: "socket", Value: s.path})

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("Failed to accept connection",
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) Stop() error {
	s.once.Do(func() { close(s.done) })
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if s.path != "" {
		os.Remove(s.path)
	}
	return err
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	data, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendResponse(conn, Response{
			Success: false,
			Error:   fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	s.sendResponse(conn, s.handleRequest(req))
}

func (s *Server) handleRequest(req Request) Response {
	handler, exists := s.handlers[req.Command]
	if !exists {
		return Response{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s", req.Command),
		}
	}
	return handler(req)
}

func (s *Server) handleStatus() Response {
	return dataResponse(Report(s.src, s.now()), "")
}

func (s *Server) handleCounters() Response {
	return dataResponse(s.src.Counters(), "")
}

func (s *Server) handleReloadState() Response {
	return dataResponse(s.src.ReloadStatus(), "")
}

// handleReload queues a signal-style reload; the handshake is reserved
// for mailbox peers.
func (s *Server) handleReload() Response {
	s.src.RequestReload()
	s.log.Info("Reload requested over status socket")
	return Response{Success: true, Message: "Reload requested"}
}

func dataResponse(v interface{}, msg string) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("failed to encode response: %v", err)}
	}
	return Response{Success: true, Data: data, Message: msg}
}

func (s *Server) sendResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("Failed to marshal response",
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.log.Error("Failed to write response",
			logger.Field{Key: "error", Value: err.Error()})
	}
}
