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
	"time"
)

// ErrBusy is returned when a reload is requested while another one is
// still being processed.
var ErrBusy = errors.New("reload: a reload is already in progress")

// Peer is the management side of the mailbox. It requests reloads and
// follows their progress.
type Peer struct {
	mb       Mailbox
	interval time.Duration
}

// NewPeer returns a peer polling mb every interval while watching a reload.
func NewPeer(mb Mailbox, interval time.Duration) *Peer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Peer{mb: mb, interval: interval}
}

// Hello records the peer identity in the mailbox.
func (p *Peer) Hello(ctx context.Context, name, username string) error {
	_, err := Update(ctx, p.mb, func(r *Record) {
		r.Name = name
		r.Username = username
		r.Connected = ConnectedYes
	})
	return err
}

// Bye marks the peer as disconnected.
func (p *Peer) Bye(ctx context.Context) error {
	_, err := Update(ctx, p.mb, func(r *Record) { r.Connected = ConnectedNo })
	return err
}

// RequestReload sets the request flag. It fails with ErrBusy unless the
// mailbox is ready.
func (p *Peer) RequestReload(ctx context.Context) error {
	var busy bool
	_, err := Update(ctx, p.mb, func(r *Record) {
		if r.ReloadRequested || r.Result != Ready {
			busy = true
			return
		}
		r.ReloadRequested = true
	})
	if err != nil {
		return err
	}
	if busy {
		return ErrBusy
	}
	return nil
}

// Watch polls the mailbox until the reload ends, calling fn with every
// new progress value. It returns the terminal result.
func (p *Peer) Watch(ctx context.Context, fn func(progress int)) (Result, error) {
	last := -1
	for {
		rec, err := Peek(ctx, p.mb)
		if err != nil {
			return NoResult, err
		}
		if rec.Progress != last && !rec.ReloadRequested {
			last = rec.Progress
			if fn != nil {
				fn(rec.Progress)
			}
		}
		if rec.Result.Terminal() {
			return rec.Result, nil
		}

		t := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return NoResult, fmt.Errorf("waiting for reload: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// Ack acknowledges a terminal result so the daemon can return to ready.
func (p *Peer) Ack(ctx context.Context) error {
	_, err := Update(ctx, p.mb, func(r *Record) {
		if r.Result.Terminal() {
			r.Result = Acknowledged
		}
	})
	return err
}
