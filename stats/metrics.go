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

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the counters into Prometheus.
type Metrics struct {
	Lines     *prometheus.CounterVec
	Actions   *prometheus.CounterVec
	Protocols *prometheus.CounterVec
	Reloads   *prometheus.CounterVec
	Stored    prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwlogd_lines_total",
			Help: "Lines read from the kernel log by classification",
		}, []string{"kind"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwlogd_actions_total",
			Help: "Firewall events by action",
		}, []string{"action"}),
		Protocols: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwlogd_protocols_total",
			Help: "Firewall events by protocol",
		}, []string{"proto"}),
		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fwlogd_reloads_total",
			Help: "Reload cycles by result",
		}, []string{"result"}),
		Stored: f.NewCounter(prometheus.CounterOpts{
			Name: "fwlogd_store_events_total",
			Help: "Events written to the audit store",
		}),
	}
}

func (m *Metrics) line(kind string) {
	if m == nil {
		return
	}
	m.Lines.WithLabelValues(kind).Inc()
}

// Reload counts a finished reload cycle.
func (m *Metrics) Reload(result string) {
	if m == nil {
		return
	}
	m.Reloads.WithLabelValues(result).Inc()
}

// StoredEvent counts an event written to the audit store.
func (m *Metrics) StoredEvent() {
	if m == nil {
		return
	}
	m.Stored.Inc()
}
