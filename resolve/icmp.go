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

package resolve

import "fmt"

type icmpType struct {
	name  string
	codes map[int]string
}

var icmpv4Types = map[int]icmpType{
	0: {name: "echo-reply"},
	3: {name: "destination-unreachable", codes: map[int]string{
		0:  "network-unreachable",
		1:  "host-unreachable",
		2:  "protocol-unreachable",
		3:  "port-unreachable",
		4:  "fragmentation-needed",
		5:  "source-route-failed",
		6:  "network-unknown",
		7:  "host-unknown",
		9:  "network-prohibited",
		10: "host-prohibited",
		11: "TOS-network-unreachable",
		12: "TOS-host-unreachable",
		13: "communication-prohibited",
		14: "host-precedence-violation",
		15: "precedence-cutoff",
	}},
	4: {name: "source-quench"},
	5: {name: "redirect", codes: map[int]string{
		0: "network-redirect",
		1: "host-redirect",
		2: "TOS-network-redirect",
		3: "TOS-host-redirect",
	}},
	8:  {name: "echo-request"},
	9:  {name: "router-advertisement"},
	10: {name: "router-solicitation"},
	11: {name: "time-exceeded", codes: map[int]string{
		0: "ttl-zero-during-transit",
		1: "ttl-zero-during-reassembly",
	}},
	12: {name: "parameter-problem", codes: map[int]string{
		0: "ip-header-bad",
		1: "required-option-missing",
	}},
	13: {name: "timestamp-request"},
	14: {name: "timestamp-reply"},
	17: {name: "address-mask-request"},
	18: {name: "address-mask-reply"},
}

var icmpv6Types = map[int]icmpType{
	1: {name: "destination-unreachable", codes: map[int]string{
		0: "no-route",
		1: "communication-prohibited",
		2: "beyond-scope",
		3: "address-unreachable",
		4: "port-unreachable",
		5: "failed-policy",
		6: "reject-route",
	}},
	2: {name: "packet-too-big"},
	3: {name: "time-exceeded", codes: map[int]string{
		0: "ttl-zero-during-transit",
		1: "ttl-zero-during-reassembly",
	}},
	4: {name: "parameter-problem", codes: map[int]string{
		0: "bad-header",
		1: "unknown-header-type",
		2: "unknown-option",
	}},
	128: {name: "echo-request"},
	129: {name: "echo-reply"},
	130: {name: "mld-listener-query"},
	131: {name: "mld-listener-report"},
	132: {name: "mld-listener-done"},
	133: {name: "router-solicitation"},
	134: {name: "router-advertisement"},
	135: {name: "neighbour-solicitation"},
	136: {name: "neighbour-advertisement"},
	137: {name: "redirect"},
}

// ICMPShortName names an ICMP type/code pair, preferring the code's own
// name. Unknown types are "unknown"; a negative code means the code was not
// logged.
func ICMPShortName(typ, code int, v6 bool) (string, error) {
	if typ < 0 || typ > 255 || code > 255 {
		return "", fmt.Errorf("icmp type %d code %d out of range", typ, code)
	}

	table := icmpv4Types
	if v6 {
		table = icmpv6Types
	}
	t, ok := table[typ]
	if !ok {
		return "unknown", nil
	}
	if name, ok := t.codes[code]; ok {
		return name, nil
	}
	return t.name, nil
}
