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

//go:build !linux

package reload

import "context"

// SysVMailbox is unavailable outside Linux.
type SysVMailbox struct{}

// OpenSysV always fails with ErrUnsupported.
func OpenSysV(key int, create bool) (*SysVMailbox, error) {
	return nil, ErrUnsupported
}

func (m *SysVMailbox) ID() int                           { return -1 }
func (m *SysVMailbox) Acquire(ctx context.Context) error { return ErrUnsupported }
func (m *SysVMailbox) Release() error                    { return ErrUnsupported }
func (m *SysVMailbox) Load() (Record, error)             { return Record{}, ErrUnsupported }
func (m *SysVMailbox) Store(Record) error                { return ErrUnsupported }
func (m *SysVMailbox) Close() error                      { return nil }
