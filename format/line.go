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

// Package format renders resolved firewall events as audit log lines.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/resolve"
)

// Display widths. Longer values are clipped.
const (
	NameWidth   = 64
	PrefixWidth = 32
	IfaceWidth  = 16
	ActionWidth = 16
)

// Clip shortens s to at most width bytes without splitting a UTF-8
// sequence.
func Clip(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) <= width {
		return s
	}
	cut := width
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Line renders one audit line:
//
//	Mar  5 14:02:11: DROP ssh: nas.office.lan -> firewall [lan-in] in: eth1 (192.168.1.30:40000 -> 192.168.1.1:22) TCP flags: ****s* len:60 ttl:64
//
// It never fails and does not modify its arguments.
func Line(ev *logline.Event, n resolve.Names) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %2d %02d:%02d:%02d: %s %s: %s -> %s [%s] ",
		ev.Month, ev.Day, ev.Hour, ev.Minute, ev.Second,
		Clip(ev.Action, ActionWidth),
		Clip(n.Service, NameWidth),
		Clip(n.Source, NameWidth),
		Clip(n.Destination, NameWidth),
		Clip(ev.Prefix, PrefixWidth))

	if n.In != "" {
		b.WriteString(annotation(n.In, "in: "))
		b.WriteByte(' ')
	}
	if n.Out != "" {
		b.WriteString(annotation(n.Out, "out: "))
		b.WriteByte(' ')
	}

	switch d := ev.Detail.(type) {
	case logline.Transport:
		fmt.Fprintf(&b, "(%s:%d -> %s:%d) ", ev.Src, d.SrcPort, ev.Dst, d.DstPort)
	default:
		fmt.Fprintf(&b, "(%s -> %s) ", ev.Src, ev.Dst)
	}

	if ev.SrcMAC != "" && ev.DstMAC != "" {
		fmt.Fprintf(&b, "(%s -> %s) ", ev.SrcMAC, ev.DstMAC)
	}

	b.WriteString(tail(ev, n))
	return b.String()
}

func annotation(s, label string) string {
	return label + Clip(strings.TrimPrefix(s, label), IfaceWidth)
}

func tail(ev *logline.Event, n resolve.Names) string {
	lenTTL := fmt.Sprintf("len:%d ttl:%d", ev.Length, ev.TTL)

	switch ev.Protocol {
	case logline.ProtoTCP:
		flags := n.Flags
		if flags == "" {
			flags = "******"
		}
		return "TCP flags: " + flags + " " + lenTTL
	case logline.ProtoUDP:
		return "UDP " + lenTTL
	case logline.ProtoICMP, logline.ProtoICMPv6:
		name := "ICMP"
		if ev.Protocol == logline.ProtoICMPv6 {
			name = "ICMPv6"
		}
		// Type and code are -1 when the kernel did not log them.
		d, _ := ev.Detail.(logline.ICMP)
		if d.Type >= 0 {
			name += fmt.Sprintf(" type %d", d.Type)
			if d.Code >= 0 {
				name += fmt.Sprintf(" code %d", d.Code)
			}
		}
		return name + " " + lenTTL
	case logline.ProtoGRE:
		return "GRE " + lenTTL
	case logline.ProtoESP:
		return "ESP " + lenTTL
	case logline.ProtoAH:
		return "AH " + lenTTL
	case logline.ProtoIPv6:
		return "IPv6 " + lenTTL
	default:
		return fmt.Sprintf("PROTO %d %s", ev.Protocol, lenTTL)
	}
}
