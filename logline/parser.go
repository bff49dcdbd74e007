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

package logline

import (
	"net/netip"
	"strings"
	"time"
)

// DefaultMarker is the log prefix the rule compiler puts in front of every
// firewall LOG target.
const DefaultMarker = "fwlogd:"

const (
	maxNumberDigits = 5
	maxProtoDigits  = 3
	macLength       = 17
	maxPort         = 65535
)

// Outcome is the verdict of parsing one line.
type Outcome int

const (
	// InternalError is only returned on misuse (nil parser or event).
	// Callers must treat it as fatal.
	InternalError Outcome = -1
	// Rejected means the line is not a usable firewall line.
	Rejected Outcome = 0
	// Valid means the event was fully populated.
	Valid Outcome = 1
)

// Result is what Parse returns. Foreign is set when the line does not
// carry the firewall marker at all; Reason names the failed step otherwise.
// HasAction and Class are set as soon as the action token was read, also
// for lines rejected afterwards.
type Result struct {
	Outcome   Outcome
	Foreign   bool
	Reason    string
	HasAction bool
	Class     ActionClass
}

func rejected(reason string) Result {
	return Result{Outcome: Rejected, Reason: reason}
}

var months = map[string]bool{
	"Jan": true, "Feb": true, "Mar": true, "Apr": true, "May": true, "Jun": true,
	"Jul": true, "Aug": true, "Sep": true, "Oct": true, "Nov": true, "Dec": true,
}

// Parser parses kernel firewall log lines tagged with a marker token.
type Parser struct {
	marker string
}

// NewParser returns a parser for lines carrying marker. An empty marker
// selects DefaultMarker.
func NewParser(marker string) *Parser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Parser{marker: marker}
}

// Marker returns the marker token the parser looks for.
func (p *Parser) Marker() string {
	return p.marker
}

// Parse fills ev from line. ev is only written when the outcome is Valid;
// it is replaced as a whole, never merged with a previous event.
//
// Every keyword after the marker is searched for only past the marker, so
// text added in front of it by the logging subsystem cannot be mistaken
// for a field.
func (p *Parser) Parse(line string, ev *Event) Result {
	if p == nil || ev == nil {
		return Result{Outcome: InternalError, Reason: "nil parser or event"}
	}

	var e Event
	res := p.parse(line, &e)
	if e.Action != "" {
		res.HasAction = true
		res.Class = e.Class
	}
	if res.Outcome == Valid {
		*ev = e
	}
	return res
}

func (p *Parser) parse(line string, e *Event) Result {
	line = strings.TrimRight(line, "\r\n")

	mk := strings.Index(line, p.marker)
	if mk < 0 {
		return Result{Outcome: Rejected, Foreign: true, Reason: "no marker"}
	}

	if !parseHeader(line[:mk], e) {
		return rejected("header")
	}

	// Action is the first token after the marker.
	pos := mk + len(p.marker)
	for pos < len(line) && line[pos] == ' ' {
		pos++
	}
	actionEnd := pos
	for actionEnd < len(line) && line[actionEnd] != ' ' {
		actionEnd++
	}
	// A key=value token right after the marker means the action is missing.
	if actionEnd == pos || strings.Contains(line[pos:actionEnd], "=") {
		return rejected("action")
	}
	e.Action = line[pos:actionEnd]
	e.Class = Classify(e.Action)

	in := Scan(line, actionEnd, "IN=")
	if in.Kind == NotFound {
		return rejected("IN=")
	}
	e.Prefix = strings.TrimSpace(line[actionEnd:in.KeywordStart])
	if e.Prefix == "" {
		e.Prefix = "none"
	}
	e.InIface = in.Value(line)

	body := in.KeywordStart
	e.OutIface = Scan(line, body, "OUT=").Value(line)

	var ok bool
	if e.Src, ok = address(line, body, "SRC="); !ok {
		return rejected("SRC=")
	}
	if e.Dst, ok = address(line, body, "DST="); !ok {
		return rejected("DST=")
	}

	if mac := Scan(line, body, "MAC=").Value(line); len(mac) >= 2*macLength+1 {
		// Destination first, then source, no delimiter the scanner knows.
		e.DstMAC = mac[:macLength]
		e.SrcMAC = mac[macLength+1 : 2*macLength+1]
	}

	if e.Length, ok = number(line, body, "LEN=", maxNumberDigits); !ok {
		return rejected("LEN=")
	}
	if e.TTL, ok = number(line, body, "TTL=", maxNumberDigits); !ok {
		// IPv6 packets carry a hop limit instead.
		if Scan(line, body, "TTL=").Kind != NotFound {
			return rejected("TTL=")
		}
		if e.TTL, ok = number(line, body, "HOPLIMIT=", maxNumberDigits); !ok {
			return rejected("TTL=")
		}
	}

	pm := Scan(line, body, "PROTO=")
	if pm.Kind != Found {
		return rejected("PROTO=")
	}
	if e.Protocol, ok = protocolNumber(pm.Value(line)); !ok {
		return rejected("PROTO=")
	}

	tail := pm.End
	switch e.Protocol {
	case ProtoTCP, ProtoUDP:
		var t Transport
		if t.SrcPort, ok = port(line, tail, "SPT="); !ok {
			return rejected("SPT=")
		}
		if t.DstPort, ok = port(line, tail, "DPT="); !ok {
			return rejected("DPT=")
		}
		if e.Protocol == ProtoTCP {
			t.Flags = TCPFlags{
				SYN: HasToken(line, tail, "SYN"),
				FIN: HasToken(line, tail, "FIN"),
				RST: HasToken(line, tail, "RST"),
				ACK: HasToken(line, tail, "ACK"),
				PSH: HasToken(line, tail, "PSH"),
				URG: HasToken(line, tail, "URG"),
			}
		}
		e.Detail = t
	case ProtoICMP, ProtoICMPv6:
		ic := ICMP{Type: -1, Code: -1}
		if ic.Type, ok = optionalNumber(line, tail, "TYPE="); !ok {
			return rejected("TYPE=")
		}
		if ic.Code, ok = optionalNumber(line, tail, "CODE="); !ok {
			return rejected("CODE=")
		}
		e.Detail = ic
	default:
		e.Detail = Opaque{}
	}

	return Result{Outcome: Valid}
}

// parseHeader reads the syslog timestamp and hostname. Both the classic
// "Mon DD HH:MM:SS host" form and the RFC 3339 form are accepted.
func parseHeader(h string, e *Event) bool {
	f := strings.Fields(h)
	if len(f) >= 2 {
		if ts, err := time.Parse(time.RFC3339Nano, f[0]); err == nil {
			e.Month = ts.Month().String()[:3]
			e.Day = ts.Day()
			e.Hour, e.Minute, e.Second = ts.Clock()
			e.Hostname = f[1]
			return true
		}
	}
	if len(f) < 4 || !months[f[0]] {
		return false
	}

	day, ok := bounded(f[1], 2)
	if !ok || day < 1 || day > 31 {
		return false
	}
	clock := f[2]
	if len(clock) != 8 || clock[2] != ':' || clock[5] != ':' {
		return false
	}
	hh, ok1 := bounded(clock[0:2], 2)
	mm, ok2 := bounded(clock[3:5], 2)
	ss, ok3 := bounded(clock[6:8], 2)
	if !ok1 || !ok2 || !ok3 || hh > 23 || mm > 59 || ss > 60 {
		return false
	}

	e.Month, e.Day = f[0], day
	e.Hour, e.Minute, e.Second = hh, mm, ss
	e.Hostname = f[3]
	return true
}

// bounded parses a non-empty run of at most width decimal digits.
func bounded(s string, width int) (int, bool) {
	if s == "" || len(s) > width {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func number(line string, from int, keyword string, width int) (int, bool) {
	m := Scan(line, from, keyword)
	if m.Kind != Found {
		return 0, false
	}
	return bounded(m.Value(line), width)
}

// optionalNumber returns -1 when keyword is absent and fails only on a
// present but malformed value.
func optionalNumber(line string, from int, keyword string) (int, bool) {
	m := Scan(line, from, keyword)
	if m.Kind == NotFound {
		return -1, true
	}
	n, ok := bounded(m.Value(line), maxProtoDigits)
	if !ok || n > 255 {
		return 0, false
	}
	return n, true
}

func port(line string, from int, keyword string) (int, bool) {
	n, ok := number(line, from, keyword, maxNumberDigits)
	if !ok || n > maxPort {
		return 0, false
	}
	return n, true
}

func address(line string, from int, keyword string) (string, bool) {
	v := Scan(line, from, keyword).Value(line)
	if v == "" {
		return "", false
	}
	if _, err := netip.ParseAddr(v); err != nil {
		return "", false
	}
	return v, true
}

func protocolNumber(token string) (int, bool) {
	switch strings.ToLower(token) {
	case "tcp":
		return ProtoTCP, true
	case "udp":
		return ProtoUDP, true
	case "icmp":
		return ProtoICMP, true
	case "icmpv6":
		return ProtoICMPv6, true
	case "ah":
		return ProtoAH, true
	case "esp":
		return ProtoESP, true
	case "gre":
		return ProtoGRE, true
	}
	n, ok := bounded(token, maxProtoDigits)
	if !ok || n < 1 || n > 255 {
		return 0, false
	}
	return n, true
}
