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
	"os"
	"os/signal"
	"syscall"

	"github.com/we-are-mono/fwlogd/daemon/logger"
)

// HandleSignals routes SIGHUP to a reload request and SIGINT/SIGTERM to
// Stop. The handler only flips atomic flags; the loop acts on them. The
// returned function stops the routing.
func (e *Engine) HandleSignals() func() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				logger.Debug("Signal received", logger.Field{Key: "signal", Value: sig.String()})
				if sig == syscall.SIGHUP {
					e.RequestReload()
				} else {
					e.Stop()
				}
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
