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

// Package store keeps a queryable copy of the emitted audit events in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/resolve"

	_ "modernc.org/sqlite" // Pure-Go SQLite3 driver
)

// Entry is one stored firewall event.
type Entry struct {
	ID           int64     `json:"id"`
	Received     time.Time `json:"received"`
	LogTime      string    `json:"log_time"` // syslog timestamp, which has no year
	Hostname     string    `json:"hostname"`
	Action       string    `json:"action"`
	Prefix       string    `json:"prefix"`
	Service      string    `json:"service"`
	SrcIP        string    `json:"src_ip"`
	SrcName      string    `json:"src_name"`
	DstIP        string    `json:"dst_ip"`
	DstName      string    `json:"dst_name"`
	Protocol     int       `json:"protocol"`
	SrcPort      int       `json:"src_port"`
	DstPort      int       `json:"dst_port"`
	InterfaceIn  string    `json:"interface_in"`
	InterfaceOut string    `json:"interface_out"`
	PacketLength int       `json:"packet_length"`
	TTL          int       `json:"ttl"`
}

// NewEntry builds the stored form of a resolved event.
func NewEntry(ev *logline.Event, n resolve.Names, received time.Time) Entry {
	sport, dport := ev.Ports()
	return Entry{
		Received:     received,
		LogTime:      fmt.Sprintf("%s %2d %02d:%02d:%02d", ev.Month, ev.Day, ev.Hour, ev.Minute, ev.Second),
		Hostname:     ev.Hostname,
		Action:       ev.Action,
		Prefix:       ev.Prefix,
		Service:      n.Service,
		SrcIP:        ev.Src,
		SrcName:      n.Source,
		DstIP:        ev.Dst,
		DstName:      n.Destination,
		Protocol:     ev.Protocol,
		SrcPort:      sport,
		DstPort:      dport,
		InterfaceIn:  ev.InIface,
		InterfaceOut: ev.OutIface,
		PacketLength: ev.Length,
		TTL:          ev.TTL,
	}
}

// Store is the SQLite audit store.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{path: path, db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Audit store opened", logger.Field{Key: "path", Value: path})
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS firewall_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			received INTEGER NOT NULL,
			log_time TEXT NOT NULL,
			hostname TEXT,
			action TEXT NOT NULL,
			prefix TEXT,
			service TEXT,
			src_ip TEXT NOT NULL,
			src_name TEXT,
			dst_ip TEXT NOT NULL,
			dst_name TEXT,
			protocol INTEGER NOT NULL,
			src_port INTEGER DEFAULT 0,
			dst_port INTEGER DEFAULT 0,
			interface_in TEXT,
			interface_out TEXT,
			packet_length INTEGER DEFAULT 0,
			ttl INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_firewall_logs_received ON firewall_logs(received)`,
		`CREATE INDEX IF NOT EXISTS idx_firewall_logs_action ON firewall_logs(action)`,
		`CREATE INDEX IF NOT EXISTS idx_firewall_logs_src_ip ON firewall_logs(src_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_firewall_logs_dst_ip ON firewall_logs(dst_ip)`,
	}
	for i, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert stores an entry and returns its id.
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO firewall_logs (received, log_time, hostname, action, prefix, service,
			src_ip, src_name, dst_ip, dst_name, protocol, src_port, dst_port,
			interface_in, interface_out, packet_length, ttl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Received.Unix(), e.LogTime, e.Hostname, e.Action, e.Prefix, e.Service,
		e.SrcIP, e.SrcName, e.DstIP, e.DstName, e.Protocol, e.SrcPort, e.DstPort,
		e.InterfaceIn, e.InterfaceOut, e.PacketLength, e.TTL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert log: %w", err)
	}
	return res.LastInsertId()
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Action  string
	Address string // matches source or destination
	Service string
	Since   time.Time
	Limit   int
}

// Query returns matching entries, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []interface{}

	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, strings.ToUpper(f.Action))
	}
	if f.Address != "" {
		where = append(where, "(src_ip = ? OR dst_ip = ?)")
		args = append(args, f.Address, f.Address)
	}
	if f.Service != "" {
		where = append(where, "service = ?")
		args = append(args, f.Service)
	}
	if !f.Since.IsZero() {
		where = append(where, "received >= ?")
		args = append(args, f.Since.Unix())
	}

	query := `SELECT id, received, log_time, hostname, action, prefix, service,
		src_ip, src_name, dst_ip, dst_name, protocol, src_port, dst_port,
		interface_in, interface_out, packet_length, ttl FROM firewall_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var received int64
		err := rows.Scan(&e.ID, &received, &e.LogTime, &e.Hostname, &e.Action, &e.Prefix, &e.Service,
			&e.SrcIP, &e.SrcName, &e.DstIP, &e.DstName, &e.Protocol, &e.SrcPort, &e.DstPort,
			&e.InterfaceIn, &e.InterfaceOut, &e.PacketLength, &e.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Received = time.Unix(received, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return entries, nil
}

// Stats summarizes the stored events.
type Stats struct {
	Total     int64            `json:"total"`
	ByAction  map[string]int64 `json:"by_action"`
	SizeBytes int64            `json:"size_bytes"`
}

// Stats counts the stored events per action.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT action, COUNT(*) FROM firewall_logs GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("failed to count logs: %w", err)
	}
	defer rows.Close()

	st := &Stats{ByAction: make(map[string]int64)}
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		st.ByAction[action] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

// Rates returns the number of events per minute for the minutes-long
// window ending at now, oldest first. Minutes without events are zero.
func (s *Store) Rates(ctx context.Context, now time.Time, minutes int) ([]float64, error) {
	if minutes <= 0 {
		return nil, nil
	}
	end := now.Unix() / 60
	start := end - int64(minutes) + 1

	rows, err := s.db.QueryContext(ctx,
		`SELECT received / 60 AS minute, COUNT(*) FROM firewall_logs
		WHERE received >= ? AND received < ? GROUP BY minute`,
		start*60, (end+1)*60)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	rates := make([]float64, minutes)
	for rows.Next() {
		var minute, n int64
		if err := rows.Scan(&minute, &n); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		if i := minute - start; i >= 0 && i < int64(minutes) {
			rates[i] = float64(n)
		}
	}
	return rates, rows.Err()
}

// CleanupOld deletes entries received more than retentionDays before now.
func (s *Store) CleanupOld(ctx context.Context, now time.Time, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM firewall_logs WHERE received < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old logs: %w", err)
	}
	return res.RowsAffected()
}

// Trim keeps only the newest maxEntries entries.
func (s *Store) Trim(ctx context.Context, maxEntries int) (int64, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM firewall_logs WHERE id NOT IN (
			SELECT id FROM firewall_logs ORDER BY id DESC LIMIT ?)`, maxEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to trim logs: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum compacts the database to reclaim unused space.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// Maintain applies the retention policy and compacts the database when
// anything was deleted.
func (s *Store) Maintain(ctx context.Context, now time.Time, retentionDays, maxEntries int) (int64, error) {
	old, err := s.CleanupOld(ctx, now, retentionDays)
	if err != nil {
		return 0, err
	}
	trimmed, err := s.Trim(ctx, maxEntries)
	if err != nil {
		return old, err
	}

	deleted := old + trimmed
	if deleted > 0 {
		if err := s.Vacuum(ctx); err != nil {
			return deleted, err
		}
		logger.Info("Audit store maintenance",
			logger.Field{Key: "expired", Value: old},
			logger.Field{Key: "trimmed", Value: trimmed})
	}
	return deleted, nil
}
