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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by OpenSysV on platforms without System V IPC.
var ErrUnsupported = errors.New("reload: system V IPC is not supported on this platform")

const identityLen = 32

// RecordSize is the size of the encoded mailbox record.
const RecordSize = 2*identityLen + 4*4

// Record is the mailbox shared with the management process.
type Record struct {
	Name            string // caller identity, at most 31 bytes survive encoding
	Username        string
	Connected       Connected
	ReloadRequested bool
	Result          Result
	Progress        int
}

// MarshalBinary encodes the record into its fixed layout: two
// NUL-terminated 32 byte strings followed by four little-endian int32s.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	putString(buf[0:identityLen], r.Name)
	putString(buf[identityLen:2*identityLen], r.Username)

	ints := buf[2*identityLen:]
	requested := int32(0)
	if r.ReloadRequested {
		requested = 1
	}
	binary.LittleEndian.PutUint32(ints[0:], uint32(r.Connected))
	binary.LittleEndian.PutUint32(ints[4:], uint32(requested))
	binary.LittleEndian.PutUint32(ints[8:], uint32(r.Result))
	binary.LittleEndian.PutUint32(ints[12:], uint32(int32(r.Progress)))
	return buf, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("mailbox record too short: %d bytes", len(data))
	}
	ints := data[2*identityLen:]
	*r = Record{
		Name:            getString(data[0:identityLen]),
		Username:        getString(data[identityLen : 2*identityLen]),
		Connected:       Connected(int32(binary.LittleEndian.Uint32(ints[0:]))),
		ReloadRequested: binary.LittleEndian.Uint32(ints[4:]) != 0,
		Result:          Result(int32(binary.LittleEndian.Uint32(ints[8:]))),
		Progress:        int(int32(binary.LittleEndian.Uint32(ints[12:]))),
	}
	return nil
}

func putString(dst []byte, s string) {
	clear(dst)
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	copy(dst, s)
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Mailbox is a record shared between processes and guarded by a binary
// semaphore. Load and Store must only be called between Acquire and
// Release, with no I/O in between.
type Mailbox interface {
	// ID identifies the semaphore guarding the record.
	ID() int
	Acquire(ctx context.Context) error
	Release() error
	Load() (Record, error)
	Store(Record) error
	Close() error
}

// Update runs fn on the record under the semaphore and stores the result.
func Update(ctx context.Context, mb Mailbox, fn func(*Record)) (Record, error) {
	if err := mb.Acquire(ctx); err != nil {
		return Record{}, err
	}
	defer mb.Release()

	rec, err := mb.Load()
	if err != nil {
		return Record{}, err
	}
	fn(&rec)
	if err := mb.Store(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Peek reads the record under the semaphore.
func Peek(ctx context.Context, mb Mailbox) (Record, error) {
	if err := mb.Acquire(ctx); err != nil {
		return Record{}, err
	}
	defer mb.Release()
	return mb.Load()
}
