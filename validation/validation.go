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

// Package validation checks the network model before lookup tables are
// built from it.
package validation

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/we-are-mono/fwlogd/types"
)

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,31}$`)

// ValidateName checks a zone, network, host, group, service or interface
// label. Dots are reserved for composing full names.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid %s name %q (letters, digits, '-' and '_', max 32 characters)", kind, name)
	}
	return nil
}

// ValidatePort validates that a port number is in the range [1, 65535].
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of valid range [1, 65535]", port)
	}
	return nil
}

// ParsePortRange parses "22", "1024-65535" or "" (any port) into an
// inclusive range.
func ParsePortRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 65535, nil
	}

	lowStr, highStr, isRange := strings.Cut(s, "-")
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if err := ValidatePort(low); err != nil {
		return 0, 0, err
	}
	if !isRange {
		return low, low, nil
	}

	high, err := strconv.Atoi(strings.TrimSpace(highStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end port in range %q: %w", s, err)
	}
	if err := ValidatePort(high); err != nil {
		return 0, 0, err
	}
	if low > high {
		return 0, 0, fmt.Errorf("invalid port range %q: start port is above end port", s)
	}
	return low, high, nil
}

// ValidateIP validates an IPv4 or IPv6 address.
func ValidateIP(ip string) error {
	if ip == "" {
		return fmt.Errorf("IP address cannot be empty")
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}
	return nil
}

// ValidateCIDR validates a network in CIDR notation.
func ValidateCIDR(cidr string) error {
	if cidr == "" {
		return fmt.Errorf("CIDR cannot be empty")
	}
	if _, err := netip.ParsePrefix(cidr); err != nil {
		return fmt.Errorf("invalid CIDR notation %s: %w", cidr, err)
	}
	return nil
}

// ValidateMAC validates a MAC address. Empty is allowed.
func ValidateMAC(mac string) error {
	if mac == "" {
		return nil
	}
	if _, err := net.ParseMAC(mac); err != nil {
		return fmt.Errorf("invalid MAC address %s: %w", mac, err)
	}
	return nil
}

// ProtocolNumber maps a protocol name or decimal number to its IP
// protocol number.
func ProtocolNumber(proto string) (int, error) {
	proto = strings.TrimSpace(proto)
	switch strings.ToLower(proto) {
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	case "icmp":
		return 1, nil
	case "icmpv6", "ipv6-icmp":
		return 58, nil
	case "gre":
		return 47, nil
	case "esp":
		return 50, nil
	case "ah":
		return 51, nil
	case "ipv6":
		return 41, nil
	}
	n, err := strconv.Atoi(proto)
	if err != nil || n < 1 || n > 255 {
		return 0, fmt.Errorf("invalid protocol %q (name or number 1-255)", proto)
	}
	return n, nil
}

// ValidateModel checks the whole network model and reports every problem.
func ValidateModel(m *types.NetworkModel) error {
	v := NewCollector()
	networks := make(map[string]bool)

	zones := make(map[string]bool)
	for _, z := range m.Zones {
		zv := v.In("zone " + z.Name)
		zv.Check(ValidateName("zone", z.Name))
		if zones[z.Name] {
			zv.Check(fmt.Errorf("duplicate zone"))
		}
		zones[z.Name] = true

		for _, n := range z.Networks {
			validateNetwork(zv.In("network "+n.Name), n)
			networks[n.Name+"."+z.Name] = true
		}
	}

	services := make(map[string]bool)
	for _, s := range m.Services {
		sv := v.In("service " + s.Name)
		sv.Check(ValidateName("service", s.Name))
		if services[s.Name] {
			sv.Check(fmt.Errorf("duplicate service"))
		}
		services[s.Name] = true
		if len(s.Ports) == 0 && len(s.ICMP) == 0 {
			sv.Check(fmt.Errorf("service has neither port nor icmp blocks"))
		}
		for _, p := range s.Ports {
			proto, err := ProtocolNumber(p.Protocol)
			sv.Check(err)
			if proto == 1 || proto == 58 {
				sv.Check(fmt.Errorf("use an icmp block for protocol %s", p.Protocol))
			}
			_, _, err = ParsePortRange(p.Src)
			sv.Check(err)
			_, _, err = ParsePortRange(p.Dst)
			sv.Check(err)
		}
		for _, ic := range s.ICMP {
			if ic.Type < 0 || ic.Type > 255 {
				sv.Check(fmt.Errorf("icmp type %d out of range [0, 255]", ic.Type))
			}
			if ic.Code != nil && (*ic.Code < 0 || *ic.Code > 255) {
				sv.Check(fmt.Errorf("icmp code %d out of range [0, 255]", *ic.Code))
			}
		}
	}

	for _, iface := range m.Interfaces {
		iv := v.In("interface " + iface.Name)
		iv.Check(ValidateName("interface", iface.Name))
		if iface.Device == "" {
			iv.Check(fmt.Errorf("device cannot be empty"))
		}
		if iface.Network != "" && !networks[iface.Network] {
			iv.Check(fmt.Errorf("unknown network %q", iface.Network))
		}
		for _, ip := range append(append([]string{}, iface.IPv4...), iface.IPv6...) {
			iv.Check(ValidateIP(ip))
		}
		if !iface.Dynamic && len(iface.IPv4)+len(iface.IPv6) == 0 {
			iv.Check(fmt.Errorf("static interface without addresses"))
		}
	}

	return v.Error()
}

func validateNetwork(v *ErrorCollector, n types.Network) {
	v.Check(ValidateName("network", n.Name))
	v.Check(ValidateCIDR(n.Address))

	hosts := make(map[string]bool)
	for _, h := range n.Hosts {
		hv := v.In("host " + h.Name)
		hv.Check(ValidateName("host", h.Name))
		if hosts[h.Name] {
			hv.Check(fmt.Errorf("duplicate host"))
		}
		hosts[h.Name] = true
		if len(h.IPv4)+len(h.IPv6) == 0 {
			hv.Check(fmt.Errorf("host without addresses"))
		}
		for _, ip := range h.IPv4 {
			hv.Check(ValidateIP(ip))
		}
		for _, ip := range h.IPv6 {
			hv.Check(ValidateIP(ip))
		}
		hv.Check(ValidateMAC(h.MAC))
	}

	for _, g := range n.Groups {
		gv := v.In("group " + g.Name)
		gv.Check(ValidateName("group", g.Name))
		for _, m := range g.Members {
			if !hosts[m] {
				gv.Check(fmt.Errorf("unknown member host %q", m))
			}
		}
	}
}
