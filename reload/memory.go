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
	"sync"
	"sync/atomic"
)

var memoryIDs atomic.Int64

// MemoryMailbox is an in-process Mailbox. The semaphore is a one slot
// channel.
type MemoryMailbox struct {
	id     int
	sem    chan struct{}
	mu     sync.Mutex
	rec    Record
	closed bool
}

// NewMemoryMailbox returns a mailbox in the Ready state.
func NewMemoryMailbox() *MemoryMailbox {
	m := &MemoryMailbox{
		id:  int(memoryIDs.Add(1)),
		sem: make(chan struct{}, 1),
		rec: Record{Result: Ready},
	}
	m.sem <- struct{}{}
	return m
}

func (m *MemoryMailbox) ID() int { return m.id }

func (m *MemoryMailbox) Acquire(ctx context.Context) error {
	select {
	case <-m.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryMailbox) Release() error {
	select {
	case m.sem <- struct{}{}:
		return nil
	default:
		return errors.New("reload: release of a semaphore that is not held")
	}
}

func (m *MemoryMailbox) Load() (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, errors.New("reload: mailbox closed")
	}
	return m.rec, nil
}

func (m *MemoryMailbox) Store(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("reload: mailbox closed")
	}
	m.rec = r
	return nil
}

func (m *MemoryMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
