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
	"bytes"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/we-are-mono/fwlogd/logline"
)

func event(class logline.ActionClass, proto int) *logline.Event {
	return &logline.Event{Class: class, Protocol: proto}
}

func TestCounters(t *testing.T) {
	var c Counters

	for i := 0; i < 5; i++ {
		c.Line()
	}
	c.Foreign()
	c.Invalid()
	c.Firewall(event(logline.ActionDrop, logline.ProtoTCP))
	c.Firewall(event(logline.ActionAccept, logline.ProtoICMPv6))
	c.Firewall(event(logline.ActionOther, logline.ProtoGRE))

	s := c.Snapshot()
	assert.Equal(t, uint64(5), s.Total)
	assert.Equal(t, uint64(3), s.Firewall)
	assert.Equal(t, uint64(1), s.Foreign)
	assert.Equal(t, uint64(1), s.Invalid)
	assert.Equal(t, map[string]uint64{"accept": 1, "drop": 1, "reject": 0, "queue": 0, "other": 1}, s.Actions)
	assert.Equal(t, map[string]uint64{"tcp": 1, "udp": 0, "icmp": 1, "other": 1}, s.Protocols)
}

func TestCountersConcurrent(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Line()
				c.Firewall(event(logline.ActionReject, logline.ProtoUDP))
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, uint64(8000), s.Total)
	assert.Equal(t, uint64(8000), s.Actions["reject"])
	assert.Equal(t, uint64(8000), s.Protocols["udp"])
}

func TestProtoBucket(t *testing.T) {
	tests := []struct {
		proto int
		want  int
	}{
		{logline.ProtoTCP, ProtoTCP},
		{logline.ProtoUDP, ProtoUDP},
		{logline.ProtoICMP, ProtoICMP},
		{logline.ProtoICMPv6, ProtoICMP},
		{logline.ProtoESP, ProtoOther},
		{132, ProtoOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProtoBucket(tt.proto), "proto %d", tt.proto)
	}
}

func TestCountersActionOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(m)

	c.Invalid()
	c.Action(logline.ActionReject)
	c.Action(logline.ActionClass(42))

	s := c.Snapshot()
	assert.Zero(t, s.Firewall)
	assert.Equal(t, uint64(1), s.Actions["reject"])
	assert.Equal(t, uint64(1), s.Actions["other"], "unknown classes fall into other")
	assert.Zero(t, s.Protocols["tcp"]+s.Protocols["udp"]+s.Protocols["icmp"]+s.Protocols["other"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("reject")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Lines.WithLabelValues("firewall")))
}

func TestMetricsMirror(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(m)

	c.Line()
	c.Line()
	c.Foreign()
	c.Firewall(event(logline.ActionQueue, logline.ProtoTCP))
	m.Reload("success")
	m.StoredEvent()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lines.WithLabelValues("total")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lines.WithLabelValues("foreign")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lines.WithLabelValues("firewall")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Protocols.WithLabelValues("tcp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stored))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "fwlogd_lines_total")
	assert.Contains(t, names, "fwlogd_reloads_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reload("error")
		m.StoredEvent()
	})
}

func TestReport(t *testing.T) {
	var c Counters
	c.Line()
	c.Line()
	c.Invalid()
	c.Firewall(event(logline.ActionDrop, logline.ProtoUDP))

	var buf bytes.Buffer
	require.NoError(t, c.Snapshot().Report(&buf))
	assert.Equal(t,
		"lines: 2 total, 1 firewall, 0 foreign, 1 invalid\n"+
			"actions: 0 accept, 1 drop, 0 reject, 0 queue, 0 other\n"+
			"protocols: 0 tcp, 1 udp, 0 icmp, 0 other\n",
		buf.String())
}
