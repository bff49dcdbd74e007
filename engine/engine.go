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

// Package engine is the ingestion loop. It owns every component the
// daemon needs and threads them through a single polling loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/format"
	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/plugins"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/resolve"
	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/stats"
	"github.com/we-are-mono/fwlogd/store"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/tail"
	"github.com/we-are-mono/fwlogd/types"
)

// ErrInternal marks programming errors surfaced by the parser or the
// resolver. The daemon exits on them.
var ErrInternal = errors.New("engine: internal error")

// Options configures an Engine. Only ConfigPath is required.
type Options struct {
	ConfigPath string
	Netlink    system.NetlinkClient   // default: the kernel
	Plugins    *plugins.PluginManager // default: NewPluginManager()
	Mailbox    reload.Mailbox         // default: opened from the configuration
	Metrics    *stats.Metrics         // nil disables Prometheus mirroring
	// Sleep waits between empty reads and between handshake ticks.
	Sleep func(ctx context.Context, d time.Duration) error
	Tick  time.Duration // handshake tick, default one second
	Now   func() time.Time
	// FromStart reads the source log from the beginning instead of only
	// following new lines.
	FromStart bool
	// LogLevel overrides the configured logging level.
	LogLevel string
}

// Info describes the active configuration for status output.
type Info struct {
	Started     time.Time `json:"started"`
	SourceLog   string    `json:"source_log"`
	OutputLog   string    `json:"output_log"`
	Marker      string    `json:"marker"`
	Backend     string    `json:"backend"`
	Fingerprint string    `json:"fingerprint"`
	Zones       int       `json:"zone_entries"`
	Services    int       `json:"service_entries"`
	Interfaces  int       `json:"interfaces"`
	Reopens     int       `json:"reopens"`
	StoreOpen   bool      `json:"store_open"`
}

// Engine is the application context: every piece of mutable daemon state
// lives here and is only touched by the goroutine running Run, except for
// the atomics and the info snapshot.
type Engine struct {
	opts     Options
	log      logger.Logger
	counters *stats.Counters

	cfg         *types.LogdConfig
	backend     plugins.Backend
	backendName string
	parser      *logline.Parser
	resolver    *resolve.Resolver
	fingerprint string
	level       string

	reader     *tail.Reader
	sourcePath string
	out        *os.File
	outPath    string

	store     *store.Store
	storePath string
	lastMaint time.Time

	mailbox    reload.Mailbox
	ownMailbox bool
	coord      *reload.Coordinator

	next staged

	quit    atomic.Bool
	started time.Time

	infoMu sync.RWMutex
	info   Info
}

// New loads the configuration, builds the lookup tables and opens both
// logs. Any failure here is fatal.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Netlink == nil {
		opts.Netlink = system.NewDefaultNetlinkClient()
	}
	if opts.Plugins == nil {
		opts.Plugins = plugins.NewPluginManager()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		opts:     opts,
		log:      logger.With(logger.Field{Key: "component", Value: "engine"}),
		counters: stats.New(opts.Metrics),
	}
	e.started = opts.Now()
	e.lastMaint = e.started

	if err := e.ReloadConfig(ctx); err != nil {
		return nil, err
	}
	if err := e.rebuild(ctx); err != nil {
		e.Close()
		return nil, err
	}

	if err := e.openMailbox(); err != nil {
		e.Close()
		return nil, err
	}
	e.coord = reload.NewCoordinator(e.mailbox, e, reload.Options{
		HandshakeTicks: e.cfg.Mailbox.HandshakeTicks,
		Tick:           opts.Tick,
		Sleep:          opts.Sleep,
		Logger:         logger.With(logger.Field{Key: "component", Value: "reload"}),
		OnResult:       func(r reload.Result) { opts.Metrics.Reload(r.String()) },
	})

	e.log.Info("Engine ready",
		logger.Field{Key: "source", Value: e.sourcePath},
		logger.Field{Key: "output", Value: e.outPath},
		logger.Field{Key: "mailbox", Value: e.mailbox.ID()})
	return e, nil
}

// rebuild runs every reload step after the configuration load.
func (e *Engine) rebuild(ctx context.Context) error {
	steps := []func(context.Context) error{
		e.ReopenBackends,
		e.ReloadInterfaces,
		e.ReloadZones,
		e.ReloadServices,
		e.RebuildTables,
		e.ReopenLogs,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) openMailbox() error {
	if e.opts.Mailbox != nil {
		e.mailbox = e.opts.Mailbox
		return nil
	}
	if !e.cfg.Mailbox.Enabled {
		e.mailbox = reload.NewMemoryMailbox()
		e.ownMailbox = true
		return nil
	}
	mb, err := reload.OpenSysV(e.cfg.Mailbox.Key, true)
	if err != nil {
		return fmt.Errorf("failed to create reload mailbox: %w", err)
	}
	e.mailbox = mb
	e.ownMailbox = true
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RequestReload asks for a reload at the next loop iteration. Safe from
// any goroutine.
func (e *Engine) RequestReload() {
	e.coord.RequestReload()
}

// Stop asks Run to return at the next loop iteration. Safe from any
// goroutine.
func (e *Engine) Stop() {
	e.quit.Store(true)
}

// Run polls until Stop is called, ctx is done or a fatal error occurs.
func (e *Engine) Run(ctx context.Context) error {
	poll := time.Duration(e.cfg.PollMS) * time.Millisecond
	for !e.quit.Load() && ctx.Err() == nil {
		idle, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if idle {
			if err := e.opts.Sleep(ctx, poll); err != nil {
				break
			}
		}
	}
	e.log.Info("Ingestion stopped")
	return nil
}

// Step runs one loop iteration: reload check, store maintenance and one
// read from the source log. idle reports that the caller should sleep.
func (e *Engine) Step(ctx context.Context) (idle bool, err error) {
	trigger, ok, err := e.coord.Poll(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", reload.ErrFatal, err)
	}
	if ok {
		if _, err := e.coord.Run(ctx, trigger); err != nil {
			return false, err
		}
	}

	e.maintain(ctx)

	line, status, err := e.reader.Next()
	if err != nil {
		return false, fmt.Errorf("%w: %w", reload.ErrFatal, err)
	}
	switch status {
	case tail.Line:
		return false, e.process(ctx, line)
	case tail.Reopened:
		e.log.Debug("Logs reopened after idle period", logger.Field{Key: "reopens", Value: e.reader.Reopens()})
		e.setInfo(func(i *Info) { i.Reopens = e.reader.Reopens() })
	}
	return true, nil
}

// process handles one complete line.
func (e *Engine) process(ctx context.Context, line string) error {
	e.counters.Line()

	var ev logline.Event
	res := e.parser.Parse(line, &ev)
	switch res.Outcome {
	case logline.InternalError:
		return fmt.Errorf("%w: parser: %s", ErrInternal, res.Reason)
	case logline.Rejected:
		if res.Foreign {
			e.counters.Foreign()
		} else {
			e.counters.Invalid()
			if res.HasAction {
				e.counters.Action(res.Class)
			}
			e.log.Debug("Invalid firewall line", logger.Field{Key: "reason", Value: res.Reason})
		}
		return nil
	}
	e.counters.Firewall(&ev)

	names, err := e.resolver.Resolve(&ev)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}

	if _, err := io.WriteString(e.out, format.Line(&ev, names)+"\n"); err != nil {
		return fmt.Errorf("%w: failed to write output log: %w", reload.ErrFatal, err)
	}

	if e.store != nil {
		if _, err := e.store.Insert(ctx, store.NewEntry(&ev, names, e.opts.Now())); err != nil {
			e.log.Warn("Failed to store event", logger.Field{Key: "error", Value: err.Error()})
		} else {
			e.opts.Metrics.StoredEvent()
		}
	}
	return nil
}

// maintain applies the store retention policy when it is due.
func (e *Engine) maintain(ctx context.Context) {
	if e.store == nil {
		return
	}
	now := e.opts.Now()
	if now.Sub(e.lastMaint) < time.Duration(e.cfg.Store.MaintenanceS)*time.Second {
		return
	}
	e.lastMaint = now
	if _, err := e.store.Maintain(ctx, now, e.cfg.Store.RetentionDays, e.cfg.Store.MaxEntries); err != nil {
		e.log.Warn("Audit store maintenance failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

// Counters returns a snapshot of the tallies. Safe from any goroutine.
func (e *Engine) Counters() stats.Snapshot {
	return e.counters.Snapshot()
}

// ReloadStatus returns the reload coordinator state. Safe from any
// goroutine.
func (e *Engine) ReloadStatus() reload.Status {
	return e.coord.Status()
}

// Info returns the active configuration summary. Safe from any goroutine.
func (e *Engine) Info() Info {
	e.infoMu.RLock()
	defer e.infoMu.RUnlock()
	return e.info
}

func (e *Engine) setInfo(fn func(*Info)) {
	e.infoMu.Lock()
	fn(&e.info)
	e.infoMu.Unlock()
}

// Report writes the counters summary printed at shutdown.
func (e *Engine) Report(w io.Writer) error {
	return e.counters.Snapshot().Report(w)
}

// Close releases everything the engine opened. It is safe to call on a
// partially constructed engine.
func (e *Engine) Close() error {
	var errs []error
	if e.reader != nil {
		errs = append(errs, e.reader.Close())
		e.reader = nil
	}
	if e.out != nil {
		errs = append(errs, e.out.Close())
		e.out = nil
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
		e.store = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Close())
		e.backend = nil
	}
	if e.mailbox != nil && e.ownMailbox {
		errs = append(errs, e.mailbox.Close())
		e.mailbox = nil
	}
	return errors.Join(errs...)
}

// configDir is where the file backend resolves relative document names.
func (e *Engine) configDir() string {
	return filepath.Dir(state.ConfigPath(e.opts.ConfigPath))
}
