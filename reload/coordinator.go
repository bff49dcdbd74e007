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

package reload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/we-are-mono/fwlogd/daemon/logger"
)

// ErrFatal marks reload failures after which ingestion cannot continue.
var ErrFatal = errors.New("reload: fatal")

// DefaultHandshakeTicks is how many ticks the coordinator waits for the
// peer to acknowledge a result.
const DefaultHandshakeTicks = 30

// Rebuilder performs the steps of a reload. The coordinator calls them in
// milestone order.
type Rebuilder interface {
	ReloadConfig(ctx context.Context) error
	ReopenBackends(ctx context.Context) error
	ReloadInterfaces(ctx context.Context) error
	ReloadZones(ctx context.Context) error
	ReloadServices(ctx context.Context) error
	RebuildTables(ctx context.Context) error
	ReopenLogs(ctx context.Context) error
	// Fingerprint summarizes the active configuration. Equal fingerprints
	// before and after a reload mean nothing changed.
	Fingerprint() string
}

// Milestone is a named point of a reload with a fixed progress value.
type Milestone struct {
	Name     string
	Progress int
}

// Milestones lists every progress value a reload reports, in order.
var Milestones = []Milestone{
	{"start", 0},
	{"config", 10},
	{"backends", 20},
	{"interfaces", 40},
	{"zones", 60},
	{"services", 70},
	{"tables", 80},
	{"logs", 90},
	{"done", 100},
}

// Status is a snapshot of the coordinator for status reporting.
type Status struct {
	State     State     `json:"state"`
	Trigger   Trigger   `json:"trigger"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Milestone string    `json:"milestone,omitempty"`
	Progress  int       `json:"progress"`
	Result    Result    `json:"result"`
	Cycles    int       `json:"cycles"`
	LastError string    `json:"last_error,omitempty"`
	Started   time.Time `json:"started,omitempty"`
	Finished  time.Time `json:"finished,omitempty"`
	PeerName  string    `json:"peer_name,omitempty"`
	PeerUser  string    `json:"peer_user,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	HandshakeTicks int           // ticks to wait for the peer ack (default 30)
	Tick           time.Duration // tick length (default one second)
	// Sleep waits for one tick. Tests replace it to avoid real waiting.
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   logger.Logger
	OnResult func(Result) // called once per finished cycle
}

// Coordinator runs reload cycles. Poll and Run are called from the
// ingestion loop only; RequestReload and Status are safe from any
// goroutine.
type Coordinator struct {
	mb   Mailbox
	rb   Rebuilder
	opts Options
	log  logger.Logger

	hup atomic.Bool

	mu     sync.Mutex
	status Status
}

// NewCoordinator creates a coordinator over mb and rb.
func NewCoordinator(mb Mailbox, rb Rebuilder, opts Options) *Coordinator {
	if opts.HandshakeTicks <= 0 {
		opts.HandshakeTicks = DefaultHandshakeTicks
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	log := opts.Logger
	if log == nil {
		log = logger.With(logger.Field{Key: "component", Value: "reload"})
	}
	return &Coordinator{
		mb:     mb,
		rb:     rb,
		opts:   opts,
		log:    log,
		status: Status{State: StateReady, Result: Ready},
	}
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

// RequestReload asks for a signal-style reload at the next Poll. It only
// sets a flag and is safe to call from a signal handler goroutine.
func (c *Coordinator) RequestReload() {
	c.hup.Store(true)
}

// Poll reports whether a reload was requested, by signal or by the peer.
// A peer request is consumed from the mailbox.
func (c *Coordinator) Poll(ctx context.Context) (Trigger, bool, error) {
	if c.hup.Swap(false) {
		return TriggerSignal, true, nil
	}

	if err := c.mb.Acquire(ctx); err != nil {
		return 0, false, fmt.Errorf("mailbox acquire: %w", err)
	}
	rec, err := c.mb.Load()
	requested := err == nil && rec.ReloadRequested
	if requested {
		rec.ReloadRequested = false
		rec.Result = NoResult
		rec.Progress = 0
		err = c.mb.Store(rec)
	}
	c.mb.Release()
	if err != nil {
		return 0, false, fmt.Errorf("mailbox: %w", err)
	}

	c.mu.Lock()
	c.status.PeerName = rec.Name
	c.status.PeerUser = rec.Username
	c.mu.Unlock()

	if requested {
		return TriggerPeer, true, nil
	}
	return 0, false, nil
}

type step struct {
	milestone int // index into Milestones
	fatal     bool
	run       func(context.Context) error
}

// Run executes one reload cycle. An error wrapping ErrFatal means the
// daemon must shut down; the returned Result is the code reported to the
// peer.
func (c *Coordinator) Run(ctx context.Context, trigger Trigger) (Result, error) {
	id := uuid.NewString()
	log := c.log.With(logger.Field{Key: "cycle", Value: id}, logger.Field{Key: "trigger", Value: trigger.String()})

	c.mu.Lock()
	c.status.State = StateRunning
	c.status.Trigger = trigger
	c.status.CycleID = id
	c.status.Result = NoResult
	c.status.LastError = ""
	c.status.Started = time.Now()
	c.status.Finished = time.Time{}
	c.mu.Unlock()

	log.Info("Reload started")
	before := c.rb.Fingerprint()
	if err := c.progress(ctx, trigger, 0); err != nil {
		return c.fail(ctx, trigger, log, err)
	}

	steps := []step{
		{1, false, c.rb.ReloadConfig},
		{2, true, c.rb.ReopenBackends},
		{3, true, c.rb.ReloadInterfaces},
		{4, true, c.rb.ReloadZones},
		{5, true, c.rb.ReloadServices},
		{6, true, c.rb.RebuildTables},
		{7, true, c.rb.ReopenLogs},
	}

	for _, s := range steps {
		m := Milestones[s.milestone]
		if err := s.run(ctx); err != nil {
			if !s.fatal {
				log.Warn("Reload step failed, keeping previous settings",
					logger.Field{Key: "step", Value: m.Name},
					logger.Field{Key: "error", Value: err.Error()})
			} else {
				return c.fail(ctx, trigger, log, fmt.Errorf("%w: %s: %w", ErrFatal, m.Name, err))
			}
		}
		if err := c.progress(ctx, trigger, s.milestone); err != nil {
			return c.fail(ctx, trigger, log, err)
		}
	}

	if err := c.progress(ctx, trigger, len(Milestones)-1); err != nil {
		return c.fail(ctx, trigger, log, err)
	}

	result := Success
	if c.rb.Fingerprint() == before {
		result = NoChanges
	}
	log.Info("Reload finished", logger.Field{Key: "result", Value: result.String()})

	if err := c.finish(ctx, trigger, result, ""); err != nil {
		return result, err
	}
	return result, nil
}

// progress records milestone i in the status and, for peer cycles, in the
// mailbox.
func (c *Coordinator) progress(ctx context.Context, trigger Trigger, i int) error {
	m := Milestones[i]

	c.mu.Lock()
	c.status.Milestone = m.Name
	c.status.Progress = m.Progress
	c.mu.Unlock()

	if trigger != TriggerPeer {
		return nil
	}
	_, err := Update(ctx, c.mb, func(r *Record) { r.Progress = m.Progress })
	if err != nil {
		return fmt.Errorf("%w: mailbox: %w", ErrFatal, err)
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, trigger Trigger, log logger.Logger, err error) (Result, error) {
	log.Error("Reload failed", logger.Field{Key: "error", Value: err.Error()})
	if ferr := c.finish(ctx, trigger, Error, err.Error()); ferr != nil {
		return Error, errors.Join(err, ferr)
	}
	if !errors.Is(err, ErrFatal) {
		err = fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return Error, err
}

// finish publishes the result. Peer cycles then wait for the
// acknowledgment, except after a failure, and the mailbox returns to
// Ready either way.
func (c *Coordinator) finish(ctx context.Context, trigger Trigger, result Result, errMsg string) error {
	c.mu.Lock()
	c.status.Result = result
	c.status.LastError = errMsg
	c.status.Cycles++
	if trigger == TriggerPeer {
		c.status.State = StateResultPending
	}
	c.mu.Unlock()

	if c.opts.OnResult != nil {
		c.opts.OnResult(result)
	}

	var err error
	if trigger == TriggerPeer {
		err = c.handshake(ctx, result)
	}

	c.mu.Lock()
	c.status.State = StateReady
	c.status.Finished = time.Now()
	c.mu.Unlock()
	return err
}

func (c *Coordinator) handshake(ctx context.Context, result Result) error {
	if _, err := Update(ctx, c.mb, func(r *Record) { r.Result = result }); err != nil {
		return fmt.Errorf("%w: mailbox: %w", ErrFatal, err)
	}
	if result == Error {
		return nil
	}

	acked := false
	for tick := 0; tick < c.opts.HandshakeTicks && !acked; tick++ {
		if err := c.opts.Sleep(ctx, c.opts.Tick); err != nil {
			break
		}
		rec, err := Peek(ctx, c.mb)
		if err != nil {
			return fmt.Errorf("%w: mailbox: %w", ErrFatal, err)
		}
		acked = rec.Result == Acknowledged
	}
	if !acked {
		c.log.Warn("Peer did not acknowledge reload result, resetting",
			logger.Field{Key: "ticks", Value: c.opts.HandshakeTicks})
	}

	// Reset with a fresh context so shutdown during the wait still leaves
	// the mailbox usable for the next daemon.
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := Update(resetCtx, c.mb, func(r *Record) {
		r.Result = Ready
		r.Progress = 0
	})
	if err != nil {
		return fmt.Errorf("%w: mailbox: %w", ErrFatal, err)
	}
	return nil
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
