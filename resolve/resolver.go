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

// Package resolve turns the addresses, ports and protocol of a parsed log
// event into administrator-defined zone and service names.
package resolve

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/we-are-mono/fwlogd/logline"
	"github.com/we-are-mono/fwlogd/lookup"
)

// ErrInternal marks failures that are programming errors rather than bad
// input. Callers treat them as fatal.
var ErrInternal = errors.New("resolve: internal error")

// DefaultCacheSize is the number of addresses whose names are cached.
const DefaultCacheSize = 4096

// FirewallName is shown for addresses that belong to the firewall itself.
const FirewallName = "firewall"

// ZoneLookup finds the zone entry for an address.
type ZoneLookup interface {
	Lookup(addr string) (lookup.Entry, bool)
}

// ServiceLookup finds services by port pair or by ICMP type and code.
type ServiceLookup interface {
	LookupPorts(sport, dport, proto int) (string, bool)
	LookupICMP(typ, code, proto int) (string, bool)
}

// Names is the resolved view of one event.
type Names struct {
	Source      string
	Destination string
	Service     string
	In          string // "in: eth0", empty when the packet had no inbound interface
	Out         string // "out: eth1", likewise
	Flags       string // "uaprsf" with '*' for unset flags, TCP only
}

// Resolver resolves events against one generation of lookup tables. Build
// a new one after every reload; it never sees newer tables.
type Resolver struct {
	zones     ZoneLookup
	services  ServiceLookup
	cache     *lru.Cache[string, string]
	cacheSize int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheSize sets the address cache capacity.
func WithCacheSize(n int) Option {
	return func(r *Resolver) {
		r.cacheSize = n
	}
}

// New creates a resolver over the given tables.
func New(zones ZoneLookup, services ServiceLookup, opts ...Option) (*Resolver, error) {
	if zones == nil || services == nil {
		return nil, fmt.Errorf("%w: nil lookup table", ErrInternal)
	}

	r := &Resolver{zones: zones, services: services, cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.New[string, string](r.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Resolve computes the names for ev. Only ErrInternal-wrapped errors are
// returned; unknown addresses and services are not errors.
func (r *Resolver) Resolve(ev *logline.Event) (Names, error) {
	if r == nil || ev == nil {
		return Names{}, fmt.Errorf("%w: nil resolver or event", ErrInternal)
	}

	n := Names{
		Source:      r.Address(ev.Src),
		Destination: r.Address(ev.Dst),
	}
	if ev.InIface != "" {
		n.In = "in: " + ev.InIface
	}
	if ev.OutIface != "" {
		n.Out = "out: " + ev.OutIface
	}
	if t, ok := ev.Detail.(logline.Transport); ok && ev.Protocol == logline.ProtoTCP {
		n.Flags = t.Flags.String()
	}

	service, err := r.service(ev)
	if err != nil {
		return Names{}, err
	}
	n.Service = service
	return n, nil
}

// Address returns the zone name for addr, FirewallName for the firewall's
// own addresses, or addr itself when it is unknown.
func (r *Resolver) Address(addr string) string {
	if name, ok := r.cache.Get(addr); ok {
		return name
	}

	name := addr
	if e, ok := r.zones.Lookup(addr); ok {
		name = e.Name
		if e.Kind == lookup.KindNetwork {
			name = FirewallName
		}
	}
	r.cache.Add(addr, name)
	return name
}

func (r *Resolver) service(ev *logline.Event) (string, error) {
	proto := ev.Protocol

	switch proto {
	case logline.ProtoICMP, logline.ProtoICMPv6:
		d, _ := ev.Detail.(logline.ICMP)
		protoName := logline.ProtocolName(proto)
		if d.Type < 0 {
			return protoName, nil
		}
		if name, ok := r.services.LookupICMP(d.Type, d.Code, proto); ok {
			return name, nil
		}
		short, err := ICMPShortName(d.Type, d.Code, proto == logline.ProtoICMPv6)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if d.Code < 0 {
			return fmt.Sprintf("%d(%s)(%s)", d.Type, protoName, short), nil
		}
		return fmt.Sprintf("%d.%d(%s)(%s)", d.Type, d.Code, protoName, short), nil

	case logline.ProtoTCP, logline.ProtoUDP:
		sport, dport := ev.Ports()
		if name, ok := r.services.LookupPorts(sport, dport, proto); ok {
			return name, nil
		}
		if name, ok := r.services.LookupPorts(dport, sport, proto); ok {
			return name, nil
		}
		return fmt.Sprintf("%d->%d(%s)", sport, dport, logline.ProtocolName(proto)), nil

	case logline.ProtoGRE, logline.ProtoESP, logline.ProtoAH, logline.ProtoIPv6:
		sport, dport := ev.Ports()
		if name, ok := r.services.LookupPorts(sport, dport, proto); ok {
			return name, nil
		}
		if sport == 0 && dport == 0 {
			return fmt.Sprintf("proto-%d", proto), nil
		}
		return fmt.Sprintf("%d*%d(%s)", sport, dport, logline.ProtocolName(proto)), nil

	default:
		return fmt.Sprintf("proto-%d", proto), nil
	}
}
