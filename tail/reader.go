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

// Package tail follows a growing log file line by line, surviving log
// rotation by reopening the file after a quiet period.
package tail

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Defaults for Config.
const (
	DefaultBufferSize    = 1024
	DefaultIdleThreshold = 1000
	DefaultPollInterval  = 30 * time.Millisecond
	minBufferSize        = 16
)

// Status describes what a call to Next produced.
type Status int

const (
	Line     Status = iota // a complete line (or an over-long fragment)
	Partial                // an unterminated line; the reader rewound to its start
	Idle                   // nothing to read
	Reopened               // idle for too long; the source was reopened
)

func (s Status) String() string {
	switch s {
	case Line:
		return "line"
	case Partial:
		return "partial"
	case Idle:
		return "idle"
	case Reopened:
		return "reopened"
	default:
		return "unknown"
	}
}

// File is an open log file.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Opener opens the log being followed.
type Opener interface {
	Open() (File, error)
}

// FileOpener opens a path on disk.
type FileOpener string

// Open opens the file read-only.
func (p FileOpener) Open() (File, error) {
	return os.Open(string(p))
}

// Reopener is notified whenever the source log is reopened, so dependent
// files (the output log) can be reopened with it.
type Reopener interface {
	Reopen() error
}

// ReopenFunc adapts a function to Reopener.
type ReopenFunc func() error

// Reopen calls f.
func (f ReopenFunc) Reopen() error { return f() }

// Config configures a Reader.
type Config struct {
	BufferSize    int  // longest line returned in one piece
	IdleThreshold int  // empty reads before the source is reopened
	FromStart     bool // read existing content instead of starting at the end
}

// Reader follows a log file. It is not safe for concurrent use.
type Reader struct {
	opener  Opener
	onOpen  Reopener
	cfg     Config
	file    File
	br      *bufio.Reader
	idle    int
	reopens int
}

// NewReader opens the source through opener. onReopen may be nil.
func NewReader(opener Opener, cfg Config, onReopen Reopener) (*Reader, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize < minBufferSize {
		cfg.BufferSize = minBufferSize
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}

	r := &Reader{opener: opener, onOpen: onReopen, cfg: cfg}

	f, err := opener.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open source log: %w", err)
	}
	if !cfg.FromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to seek to end of source log: %w", err)
		}
	}
	r.file = f
	r.br = bufio.NewReaderSize(f, cfg.BufferSize)
	return r, nil
}

// Next returns the next line without its line ending. A nil error with a
// status other than Line means the caller should sleep before polling
// again.
func (r *Reader) Next() (string, Status, error) {
	line, err := r.br.ReadSlice('\n')

	switch {
	case err == nil:
		r.idle = 0
		return trimEOL(line), Line, nil

	case errors.Is(err, bufio.ErrBufferFull):
		// Over-long line: hand out what fits, the rest follows as the next
		// line. Rewinding here would loop forever.
		r.idle = 0
		return string(line), Line, nil

	case errors.Is(err, io.EOF):
		status := Idle
		if len(line) > 0 {
			if _, err := r.file.Seek(-int64(len(line)), io.SeekCurrent); err != nil {
				return "", Idle, fmt.Errorf("failed to rewind source log: %w", err)
			}
			r.br.Reset(r.file)
			status = Partial
		}

		r.idle++
		if r.idle <= r.cfg.IdleThreshold {
			return "", status, nil
		}
		if err := r.Reopen(); err != nil {
			return "", Reopened, err
		}
		return "", Reopened, nil

	default:
		return "", Idle, fmt.Errorf("failed to read source log: %w", err)
	}
}

// Reopen reopens the source log and notifies the Reopener. When the new
// handle is the same file, reading continues where it left off; a rotated
// or truncated file is read from the start.
func (r *Reader) Reopen() error {
	r.idle = 0
	r.reopens++

	offset, err := r.offset()
	if err != nil {
		return err
	}

	f, err := r.opener.Open()
	if err != nil {
		return fmt.Errorf("failed to reopen source log: %w", err)
	}

	start := int64(0)
	if sameFile(r.file, f) {
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to stat source log: %w", err)
		}
		if size >= offset {
			start = offset
		}
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("failed to seek source log: %w", err)
	}

	r.file.Close()
	r.file = f
	r.br.Reset(f)

	if r.onOpen != nil {
		if err := r.onOpen.Reopen(); err != nil {
			return fmt.Errorf("failed to reopen dependent log: %w", err)
		}
	}
	return nil
}

// Reopens returns how many times the source has been reopened.
func (r *Reader) Reopens() int {
	return r.reopens
}

// Close closes the source log.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// offset is the position of the first byte not yet handed out.
func (r *Reader) offset() (int64, error) {
	pos, err := r.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("failed to query source log offset: %w", err)
	}
	return pos - int64(r.br.Buffered()), nil
}

// sameFile reports whether two handles refer to the same file. Handles
// without Stat are assumed to be the same file.
func sameFile(a, b File) bool {
	sa, okA := a.(interface{ Stat() (os.FileInfo, error) })
	sb, okB := b.(interface{ Stat() (os.FileInfo, error) })
	if !okA || !okB {
		return true
	}
	ia, errA := sa.Stat()
	ib, errB := sb.Stat()
	if errA != nil || errB != nil {
		return true
	}
	return os.SameFile(ia, ib)
}

func trimEOL(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return string(b[:n])
}
