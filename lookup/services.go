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

package lookup

import (
	"fmt"
	"sort"

	"github.com/we-are-mono/fwlogd/types"
	"github.com/we-are-mono/fwlogd/validation"
)

type portRule struct {
	name            string
	srcLow, srcHigh int
	dstLow, dstHigh int
	width           int
}

func (r portRule) matches(sport, dport int) bool {
	return sport >= r.srcLow && sport <= r.srcHigh && dport >= r.dstLow && dport <= r.dstHigh
}

type icmpRule struct {
	name string
	typ  int
	code int // -1 matches any code
}

// Services maps (source port, destination port, protocol) and ICMP
// (type, code, protocol) to service names.
type Services struct {
	ports map[int][]portRule
	icmp  map[int][]icmpRule
}

// BuildServices derives the service table from the model. When several
// rules match, the narrowest port ranges win; ties go to the service
// defined first.
func BuildServices(m *types.NetworkModel) (*Services, error) {
	s := &Services{
		ports: make(map[int][]portRule),
		icmp:  make(map[int][]icmpRule),
	}

	for _, svc := range m.Services {
		for _, p := range svc.Ports {
			proto, err := validation.ProtocolNumber(p.Protocol)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", svc.Name, err)
			}
			srcLow, srcHigh, err := validation.ParsePortRange(p.Src)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", svc.Name, err)
			}
			dstLow, dstHigh, err := validation.ParsePortRange(p.Dst)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", svc.Name, err)
			}
			s.ports[proto] = append(s.ports[proto], portRule{
				name:   svc.Name,
				srcLow: srcLow, srcHigh: srcHigh,
				dstLow: dstLow, dstHigh: dstHigh,
				width: (srcHigh - srcLow) + (dstHigh - dstLow),
			})
		}
		for _, ic := range svc.ICMP {
			proto := 1
			if ic.IPv6 {
				proto = 58
			}
			code := -1
			if ic.Code != nil {
				code = *ic.Code
			}
			s.icmp[proto] = append(s.icmp[proto], icmpRule{name: svc.Name, typ: ic.Type, code: code})
		}
	}

	for _, rules := range s.ports {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].width < rules[j].width })
	}
	for _, rules := range s.icmp {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].code > rules[j].code })
	}
	return s, nil
}

// LookupPorts returns the service matching the port pair for proto.
func (s *Services) LookupPorts(sport, dport, proto int) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, r := range s.ports[proto] {
		if r.matches(sport, dport) {
			return r.name, true
		}
	}
	return "", false
}

// LookupICMP returns the service matching an ICMP type and code. proto is
// 1 for ICMP and 58 for ICMPv6.
func (s *Services) LookupICMP(typ, code, proto int) (string, bool) {
	if s == nil || typ < 0 {
		return "", false
	}
	for _, r := range s.icmp[proto] {
		if r.typ == typ && (r.code == -1 || r.code == code) {
			return r.name, true
		}
	}
	return "", false
}

// Len returns the number of port and ICMP rules.
func (s *Services) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.ports {
		n += len(r)
	}
	for _, r := range s.icmp {
		n += len(r)
	}
	return n
}
