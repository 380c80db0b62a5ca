// Package netx classifies addresses against CIDR sets and resolves the
// client address of a request behind trusted proxies.
package netx

import (
	"fmt"
	"net"
	"strings"
)

type CIDRSet struct {
	nets []*net.IPNet
}

// ParseCIDRSet accepts CIDR notation or bare IPs.
func ParseCIDRSet(items []string) (*CIDRSet, error) {
	set := &CIDRSet{}
	for _, raw := range items {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("invalid ip: %q", s)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			s = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q: %w", s, err)
		}
		set.nets = append(set.nets, n)
	}
	return set, nil
}

// MustParseCIDRSet is ParseCIDRSet for literals known to be valid.
func MustParseCIDRSet(items ...string) *CIDRSet {
	set, err := ParseCIDRSet(items)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *CIDRSet) Contains(ip net.IP) bool {
	if s == nil || len(s.nets) == 0 || ip == nil {
		return false
	}
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ContainsString parses addr and reports membership; unparsable input is
// never contained.
func (s *CIDRSet) ContainsString(addr string) bool {
	return s.Contains(net.ParseIP(strings.TrimSpace(addr)))
}
