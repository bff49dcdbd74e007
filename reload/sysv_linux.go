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

//go:build linux

package reload

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	semSetVal = 16     // SETVAL
	semUndo   = 0x1000 // SEM_UNDO

	acquirePoll = time.Millisecond
)

type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// SysVMailbox keeps the record in a System V shared memory segment guarded
// by a one-value System V semaphore, both under the same IPC key.
type SysVMailbox struct {
	key    int
	shmID  int
	semID  int
	seg    []byte
	owner  bool
	closed bool
}

// OpenSysV attaches to the mailbox under key. With create set the segment
// and semaphore are created if needed, initialized to Ready and removed
// again on Close.
func OpenSysV(key int, create bool) (*SysVMailbox, error) {
	flag := 0600
	if create {
		flag |= unix.IPC_CREAT
	}

	shmID, err := unix.SysvShmGet(key, RecordSize, flag)
	if err != nil {
		return nil, fmt.Errorf("shmget key %#x: %w", key, err)
	}

	seg, err := unix.SysvShmAttach(shmID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat key %#x: %w", key, err)
	}
	if len(seg) < RecordSize {
		_ = unix.SysvShmDetach(seg)
		return nil, fmt.Errorf("shared memory segment key %#x is %d bytes, want %d", key, len(seg), RecordSize)
	}

	semID, err := semget(key, flag)
	if err != nil {
		_ = unix.SysvShmDetach(seg)
		return nil, fmt.Errorf("semget key %#x: %w", key, err)
	}

	m := &SysVMailbox{key: key, shmID: shmID, semID: semID, seg: seg, owner: create}
	if create {
		if err := semctl(semID, semSetVal, 1); err != nil {
			m.Close()
			return nil, fmt.Errorf("semctl SETVAL key %#x: %w", key, err)
		}
		if err := m.Store(Record{Result: Ready}); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *SysVMailbox) ID() int { return m.semID }

// Acquire decrements the semaphore, polling so ctx is honored.
func (m *SysVMailbox) Acquire(ctx context.Context) error {
	for {
		err := semop(m.semID, -1, unix.IPC_NOWAIT|semUndo)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("semop acquire: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquirePoll):
		}
	}
}

func (m *SysVMailbox) Release() error {
	if err := semop(m.semID, 1, semUndo); err != nil {
		return fmt.Errorf("semop release: %w", err)
	}
	return nil
}

func (m *SysVMailbox) Load() (Record, error) {
	if m.closed {
		return Record{}, errors.New("reload: mailbox closed")
	}
	var r Record
	err := r.UnmarshalBinary(m.seg[:RecordSize])
	return r, err
}

func (m *SysVMailbox) Store(r Record) error {
	if m.closed {
		return errors.New("reload: mailbox closed")
	}
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	copy(m.seg, data)
	return nil
}

// Close detaches the segment. The creating side also removes the segment
// and the semaphore.
func (m *SysVMailbox) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	errs := []error{unix.SysvShmDetach(m.seg)}
	if m.owner {
		_, err := unix.SysvShmCtl(m.shmID, unix.IPC_RMID, nil)
		errs = append(errs, err, semctl(m.semID, unix.IPC_RMID, 0))
	}
	return errors.Join(errs...)
}

func semget(key, flag int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(flag))
	if errno != 0 {
		return 0, errno
	}
	return int(id), nil
}

func semop(id int, op int16, flg int16) error {
	buf := sembuf{num: 0, op: op, flg: flg}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&buf)), 1)
	if errno != 0 {
		return errno
	}
	return nil
}

// semctl issues a command on semaphore 0. The value argument is passed
// the way the kernel reads union semun's val.
func semctl(id, cmd, val int) error {
	arg := uintptr(val)
	if bigEndian64() {
		arg <<= 32
	}
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), arg, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func bigEndian64() bool {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		return false
	}
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 0
}
