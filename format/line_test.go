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

package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/lookup"
	"github.com/we-are-mono/fwlogd/resolve"
	"github.com/we-are-mono/fwlogd/types"
)

func render(t *testing.T, line string) string {
	t.Helper()

	var ev logline.Event
	res := logline.NewParser("").Parse(line, &ev)
	require.Equal(t, logline.Valid, res.Outcome, res.Reason)

	m := &types.NetworkModel{}
	zones, err := lookup.BuildZones(m, nil)
	require.NoError(t, err)
	services, err := lookup.BuildServices(m)
	require.NoError(t, err)
	r, err := resolve.New(zones, services)
	require.NoError(t, err)

	names, err := r.Resolve(&ev)
	require.NoError(t, err)
	return Line(&ev, names)
}

func TestLineRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "tcp",
			line: "Jan  5 12:34:56 gw kernel: fwlogd: DROP web-in IN=eth0 OUT= " +
				"MAC=00:11:22:33:44:55:66:77:88:99:aa:bb:08:00 SRC=192.0.2.10 DST=198.51.100.1 LEN=60 " +
				"TOS=0x00 PREC=0x00 TTL=64 ID=54321 DF PROTO=TCP SPT=40000 DPT=22 WINDOW=29200 RES=0x00 ACK SYN URGP=0",
			want: "Jan  5 12:34:56: DROP 40000->22(tcp): 192.0.2.10 -> 198.51.100.1 [web-in] in: eth0 " +
				"(192.0.2.10:40000 -> 198.51.100.1:22) (66:77:88:99:aa:bb -> 00:11:22:33:44:55) TCP flags: *a**s* len:60 ttl:64",
		},
		{
			name: "udp",
			line: "Feb 28 01:02:03 gw kernel: fwlogd: ACCEPT IN=eth1 OUT=eth0 SRC=10.0.0.5 DST=9.9.9.9 " +
				"LEN=73 TOS=0x00 PREC=0x00 TTL=63 ID=1 PROTO=UDP SPT=5353 DPT=53 LEN=53",
			want: "Feb 28 01:02:03: ACCEPT 5353->53(udp): 10.0.0.5 -> 9.9.9.9 [none] in: eth1 out: eth0 " +
				"(10.0.0.5:5353 -> 9.9.9.9:53) UDP len:73 ttl:63",
		},
		{
			name: "icmp",
			line: "Mar 10 23:59:59 gw kernel: fwlogd: REJECT ping IN=eth0 OUT= SRC=203.0.113.9 DST=192.0.2.1 " +
				"LEN=84 TOS=0x00 PREC=0x00 TTL=52 ID=0 DF PROTO=ICMP TYPE=8 CODE=0 ID=12 SEQ=1",
			want: "Mar 10 23:59:59: REJECT 8.0(icmp)(echo-request): 203.0.113.9 -> 192.0.2.1 [ping] in: eth0 " +
				"(203.0.113.9 -> 192.0.2.1) ICMP type 8 code 0 len:84 ttl:52",
		},
		{
			name: "icmpv6",
			line: "Apr  1 00:00:01 gw kernel: fwlogd: DROP IN=eth0 OUT= SRC=2001:db8::1 DST=2001:db8::2 " +
				"LEN=104 TC=0 HOPLIMIT=255 FLOWLBL=0 PROTO=ICMPv6 TYPE=135 CODE=0",
			want: "Apr  1 00:00:01: DROP 135.0(icmpv6)(neighbour-solicitation): 2001:db8::1 -> 2001:db8::2 [none] in: eth0 " +
				"(2001:db8::1 -> 2001:db8::2) ICMPv6 type 135 code 0 len:104 ttl:255",
		},
		{
			name: "gre",
			line: "May 20 08:00:00 gw kernel: fwlogd: QUEUE IN=eth0 OUT=eth1 SRC=192.0.2.7 DST=198.51.100.7 " +
				"LEN=120 TOS=0x00 PREC=0x00 TTL=60 ID=5 PROTO=47",
			want: "May 20 08:00:00: QUEUE proto-47: 192.0.2.7 -> 198.51.100.7 [none] in: eth0 out: eth1 " +
				"(192.0.2.7 -> 198.51.100.7) GRE len:120 ttl:60",
		},
		{
			name: "sctp",
			line: "May 20 08:00:00 gw kernel: fwlogd: DROP IN=eth0 OUT= SRC=192.0.2.7 DST=198.51.100.7 " +
				"LEN=120 TOS=0x00 PREC=0x00 TTL=60 ID=5 PROTO=132",
			want: "May 20 08:00:00: DROP proto-132: 192.0.2.7 -> 198.51.100.7 [none] in: eth0 " +
				"(192.0.2.7 -> 198.51.100.7) PROTO 132 len:120 ttl:60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.line))
		})
	}
}

func TestLineClipsLongFields(t *testing.T) {
	ev := &logline.Event{
		Month: "Dec", Day: 31, Hour: 23, Minute: 59, Second: 59,
		Action:   strings.Repeat("A", 40),
		Prefix:   strings.Repeat("p", 100),
		Src:      "10.0.0.1",
		Dst:      "10.0.0.2",
		Protocol: logline.ProtoUDP,
		Detail:   logline.Transport{SrcPort: 1, DstPort: 2},
	}
	names := resolve.Names{
		Source:      strings.Repeat("s", 200),
		Destination: "dst",
		Service:     strings.Repeat("v", 65),
		In:          "in: " + strings.Repeat("i", 30),
	}
	evCopy, namesCopy := *ev, names

	out := Line(ev, names)
	assert.Contains(t, out, " "+strings.Repeat("A", ActionWidth)+" ")
	assert.Contains(t, out, " "+strings.Repeat("v", NameWidth)+": ")
	assert.Contains(t, out, ": "+strings.Repeat("s", NameWidth)+" -> dst ")
	assert.Contains(t, out, "["+strings.Repeat("p", PrefixWidth)+"]")
	assert.Contains(t, out, "in: "+strings.Repeat("i", IfaceWidth)+" (")
	assert.Equal(t, evCopy, *ev)
	assert.Equal(t, namesCopy, names)
}

func TestLineTCPWithoutFlags(t *testing.T) {
	ev := &logline.Event{
		Month: "Jan", Day: 1, Src: "10.0.0.1", Dst: "10.0.0.2",
		Protocol: logline.ProtoTCP,
		Detail:   logline.Transport{SrcPort: 1, DstPort: 2},
	}
	assert.True(t, strings.HasSuffix(Line(ev, resolve.Names{}), "TCP flags: ****** len:0 ttl:0"))
}

func TestClip(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "eth0", 16, "eth0"},
		{"exact", "abcd", 4, "abcd"},
		{"long", "abcdef", 4, "abcd"},
		{"zero width", "abc", 0, ""},
		{"negative width", "abc", -3, ""},
		{"utf8 boundary", "abécd", 3, "ab"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clip(tt.in, tt.width))
		})
	}
}

func TestLineICMPWithoutTypeCode(t *testing.T) {
	tests := []struct {
		name   string
		detail logline.ICMP
		tail   string
	}{
		{"both missing", logline.ICMP{Type: -1, Code: -1}, ") ICMP len:84 ttl:52"},
		{"code missing", logline.ICMP{Type: 3, Code: -1}, ") ICMP type 3 len:84 ttl:52"},
		{"both present", logline.ICMP{Type: 3, Code: 1}, ") ICMP type 3 code 1 len:84 ttl:52"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &logline.Event{
				Month: "Mar", Day: 10, Hour: 23, Minute: 59, Second: 59,
				Action: "DROP", Prefix: "none",
				Src: "203.0.113.9", Dst: "192.0.2.1",
				Protocol: logline.ProtoICMP, Length: 84, TTL: 52,
				Detail: tt.detail,
			}
			out := Line(ev, resolve.Names{Source: ev.Src, Destination: ev.Dst, Service: "icmp"})
			assert.True(t, strings.HasSuffix(out, tt.tail), out)
			assert.NotContains(t, out, "-1")
		})
	}
}
