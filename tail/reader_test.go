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

package tail

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLog is an in-memory log that can grow and be replaced, standing in
// for a file that logrotate moves away.
type memLog struct {
	mu    sync.Mutex
	data  []byte
	opens int
	err   error
}

func (l *memLog) Append(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, s...)
}

func (l *memLog) Replace(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = []byte(s)
}

func (l *memLog) Open() (File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.opens++
	return &memFile{log: l}, nil
}

type memFile struct {
	log *memLog
	pos int64
}

func (f *memFile) Read(p []byte) (int, error) {
	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	if f.pos >= int64(len(f.log.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.log.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += int64(len(f.log.data))
	}
	if offset < 0 {
		return 0, errors.New("negative offset")
	}
	f.pos = offset
	return offset, nil
}

func (f *memFile) Close() error { return nil }

type countingReopener struct{ calls int }

func (c *countingReopener) Reopen() error {
	c.calls++
	return nil
}

func next(t *testing.T, r *Reader) (string, Status) {
	t.Helper()
	line, status, err := r.Next()
	require.NoError(t, err)
	return line, status
}

func TestReaderLines(t *testing.T) {
	log := &memLog{}
	log.Append("one\ntwo\r\n")

	r, err := NewReader(log, Config{FromStart: true}, nil)
	require.NoError(t, err)

	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "one", line)

	line, status = next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "two", line)

	_, status = next(t, r)
	assert.Equal(t, Idle, status)
}

func TestReaderStartsAtEnd(t *testing.T) {
	log := &memLog{}
	log.Append("old line\n")

	r, err := NewReader(log, Config{}, nil)
	require.NoError(t, err)

	_, status := next(t, r)
	assert.Equal(t, Idle, status)

	log.Append("new line\n")
	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "new line", line)
}

func TestReaderSplitLineEmittedOnce(t *testing.T) {
	log := &memLog{}
	r, err := NewReader(log, Config{FromStart: true}, nil)
	require.NoError(t, err)

	log.Append("Jan  1 00:00:00 gw kernel: fwlogd: DROP IN=eth0 ")
	_, status := next(t, r)
	assert.Equal(t, Partial, status)

	// Polling again before the writer finishes must not duplicate anything.
	_, status = next(t, r)
	assert.Equal(t, Partial, status)

	log.Append("SRC=10.0.0.1\n")
	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "Jan  1 00:00:00 gw kernel: fwlogd: DROP IN=eth0 SRC=10.0.0.1", line)

	_, status = next(t, r)
	assert.Equal(t, Idle, status)
}

func TestReaderOverlongLine(t *testing.T) {
	log := &memLog{}
	log.Append(strings.Repeat("x", 40) + "\nshort\n")

	r, err := NewReader(log, Config{BufferSize: 16, FromStart: true}, nil)
	require.NoError(t, err)

	var lines []string
	for {
		line, status := next(t, r)
		if status != Line {
			break
		}
		lines = append(lines, line)
	}
	assert.Equal(t, []string{strings.Repeat("x", 16), strings.Repeat("x", 16), strings.Repeat("x", 8), "short"}, lines)
}

func TestReaderOverlongPartialDoesNotLoop(t *testing.T) {
	log := &memLog{}
	log.Append(strings.Repeat("y", 20))

	r, err := NewReader(log, Config{BufferSize: 16, FromStart: true}, nil)
	require.NoError(t, err)

	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, strings.Repeat("y", 16), line)

	_, status = next(t, r)
	assert.Equal(t, Partial, status)
}

func TestReaderIdleReopenExactlyOnce(t *testing.T) {
	log := &memLog{}
	hook := &countingReopener{}

	r, err := NewReader(log, Config{IdleThreshold: 3}, hook)
	require.NoError(t, err)

	var statuses []Status
	for i := 0; i < 5; i++ {
		_, status := next(t, r)
		statuses = append(statuses, status)
	}
	assert.Equal(t, []Status{Idle, Idle, Idle, Reopened, Idle}, statuses)
	assert.Equal(t, 1, hook.calls)
	assert.Equal(t, 1, r.Reopens())
	assert.Equal(t, 2, log.opens)

	log.Append("after reopen\n")
	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "after reopen", line)
}

func TestReaderReopenKeepsOffsetOnSameFile(t *testing.T) {
	log := &memLog{}
	log.Append("a\nb\n")

	r, err := NewReader(log, Config{FromStart: true}, nil)
	require.NoError(t, err)
	line, _ := next(t, r)
	assert.Equal(t, "a", line)

	require.NoError(t, r.Reopen())
	line, _ = next(t, r)
	assert.Equal(t, "b", line)
}

func TestReaderReopenAfterTruncate(t *testing.T) {
	log := &memLog{}
	log.Append("first line that is long\n")

	r, err := NewReader(log, Config{FromStart: true}, nil)
	require.NoError(t, err)
	next(t, r)

	log.Replace("new\n")
	require.NoError(t, r.Reopen())
	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "new", line)
}

func TestReaderRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kern.log")
	require.NoError(t, os.WriteFile(path, []byte("before rotation line\n"), 0644))

	r, err := NewReader(FileOpener(path), Config{FromStart: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	line, _ := next(t, r)
	assert.Equal(t, "before rotation line", line)

	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))

	require.NoError(t, r.Reopen())
	line, status := next(t, r)
	assert.Equal(t, Line, status)
	assert.Equal(t, "x", line)
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader(&memLog{err: os.ErrNotExist}, Config{}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewReader(FileOpener(filepath.Join(t.TempDir(), "missing")), Config{}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	log := &memLog{}
	hook := ReopenFunc(func() error { return errors.New("output log gone") })
	r, err := NewReader(log, Config{IdleThreshold: 1}, hook)
	require.NoError(t, err)

	_, status, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Idle, status)
	_, status, err = r.Next()
	assert.Equal(t, Reopened, status)
	assert.ErrorContains(t, err, "output log gone")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "line", Line.String())
	assert.Equal(t, "partial", Partial.String())
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "reopened", Reopened.String())
}
