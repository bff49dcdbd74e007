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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/lookup"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/resolve"
	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/store"
	"github.com/we-are-mono/fwlogd/tail"
	"github.com/we-are-mono/fwlogd/types"
)

// staged holds what a reload has built so far. Nothing in it is visible
// to the ingestion path until RebuildTables commits it.
type staged struct {
	cfg       *types.LogdConfig
	model     *types.NetworkModel
	modelData []byte
	ifaces    []state.ResolvedInterface
	zones     *lookup.Zones
	services  *lookup.Services
}

var _ reload.Rebuilder = (*Engine)(nil)

// ReloadConfig reads fwlogd.json. On failure the active configuration
// stays in place for the rest of the cycle.
func (e *Engine) ReloadConfig(ctx context.Context) error {
	e.next = staged{cfg: e.cfg}
	cfg, err := state.LoadLogdConfig(e.opts.ConfigPath)
	if err != nil {
		return err
	}
	e.next.cfg = cfg
	return nil
}

// ReopenBackends reopens the configuration backend, or replaces it when
// the configured backend changed.
func (e *Engine) ReopenBackends(ctx context.Context) error {
	name := e.next.cfg.Backend
	if e.backend != nil && name == e.backendName {
		return e.backend.Reopen(ctx)
	}

	b, err := e.opts.Plugins.Open(name, e.configDir())
	if err != nil {
		return fmt.Errorf("failed to open backend %s: %w", name, err)
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.log.Warn("Failed to close previous backend", logger.Field{Key: "error", Value: err.Error()})
		}
	}
	e.backend = b
	e.backendName = name
	return nil
}

// ReloadInterfaces loads the network model and resolves the firewall's
// interface addresses.
func (e *Engine) ReloadInterfaces(ctx context.Context) error {
	m, data, err := state.LoadModel(e.backend, e.next.cfg.NetworkModel)
	if err != nil {
		return err
	}
	ifaces, err := state.ResolveInterfaces(e.opts.Netlink, m)
	if err != nil {
		return err
	}
	e.next.model = m
	e.next.modelData = data
	e.next.ifaces = ifaces
	return nil
}

// ReloadZones builds the address table, including the firewall and
// broadcast entries.
func (e *Engine) ReloadZones(ctx context.Context) error {
	zones, err := lookup.BuildZones(e.next.model, e.next.ifaces)
	if err != nil {
		return err
	}
	e.next.zones = zones
	return nil
}

// ReloadServices builds the service table.
func (e *Engine) ReloadServices(ctx context.Context) error {
	services, err := lookup.BuildServices(e.next.model)
	if err != nil {
		return err
	}
	e.next.services = services
	return nil
}

// RebuildTables creates a resolver over the staged tables and makes the
// staged state active.
func (e *Engine) RebuildTables(ctx context.Context) error {
	r, err := resolve.New(e.next.zones, e.next.services)
	if err != nil {
		return err
	}

	cfg := e.next.cfg
	level := cfg.Logging.Level
	if e.opts.LogLevel != "" {
		level = e.opts.LogLevel
	}
	if level != e.level {
		logger.SetLevel(level)
		e.level = level
	}
	e.cfg = cfg
	e.parser = logline.NewParser(cfg.Marker)
	e.resolver = r
	e.fingerprint = state.Fingerprint(cfg, e.next.modelData, e.next.ifaces)

	e.setInfo(func(i *Info) {
		i.Started = e.started
		i.Marker = cfg.Marker
		i.Backend = e.backendName
		i.Fingerprint = e.fingerprint
		i.Zones = e.next.zones.Len()
		i.Services = e.next.services.Len()
		i.Interfaces = len(e.next.ifaces)
	})
	e.log.Info("Lookup tables rebuilt",
		logger.Field{Key: "zones", Value: e.next.zones.Len()},
		logger.Field{Key: "services", Value: e.next.services.Len()},
		logger.Field{Key: "interfaces", Value: len(e.next.ifaces)})
	e.next = staged{}
	return nil
}

// ReopenLogs reopens the source and output logs, the daemon's own log and
// the audit store.
func (e *Engine) ReopenLogs(ctx context.Context) error {
	cfg := e.cfg

	if e.reader == nil || cfg.SourceLog != e.sourcePath {
		r, err := tail.NewReader(tail.FileOpener(cfg.SourceLog), tail.Config{
			BufferSize:    cfg.BufferSize,
			IdleThreshold: cfg.IdleTicks,
			FromStart:     e.opts.FromStart,
		}, tail.ReopenFunc(e.reopenOutput))
		if err != nil {
			return err
		}
		if e.reader != nil {
			e.reader.Close()
		}
		e.reader = r
		e.sourcePath = cfg.SourceLog
		if err := e.reopenOutput(); err != nil {
			return err
		}
	} else if err := e.reader.Reopen(); err != nil {
		return err
	}

	if err := logger.Reopen(); err != nil {
		return fmt.Errorf("failed to reopen daemon log: %w", err)
	}

	if err := e.reopenStore(); err != nil {
		return err
	}

	e.setInfo(func(i *Info) {
		i.SourceLog = e.sourcePath
		i.OutputLog = e.outPath
		i.StoreOpen = e.store != nil
	})
	return nil
}

// reopenOutput opens the output log for appending, closing the previous
// handle. It runs whenever the source log is reopened.
func (e *Engine) reopenOutput() error {
	path := e.cfg.OutputLog
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("failed to open output log: %w", err)
	}
	if e.out != nil {
		e.out.Close()
	}
	e.out = f
	e.outPath = path
	return nil
}

// reopenStore opens, closes or moves the audit store to match the active
// configuration.
func (e *Engine) reopenStore() error {
	sc := e.cfg.Store
	if !sc.Enabled {
		if e.store != nil {
			err := e.store.Close()
			e.store = nil
			e.storePath = ""
			return err
		}
		return nil
	}
	if e.store != nil && sc.Path == e.storePath {
		return nil
	}

	s, err := store.Open(sc.Path)
	if err != nil {
		return err
	}
	if e.store != nil {
		e.store.Close()
	}
	e.store = s
	e.storePath = sc.Path
	return nil
}

// Fingerprint identifies the active configuration.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}
