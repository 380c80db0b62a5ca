package netx

import (
	"net"
	"net/http"
	"strings"
)

// IPResolver picks the originating client address of a request. Forwarding
// headers are honoured only when the direct peer is a trusted proxy.
type IPResolver struct {
	Trusted *CIDRSet
}

func (r IPResolver) ClientIP(req *http.Request) string {
	remoteIP := parseRemoteIP(req.RemoteAddr)
	if remoteIP != nil && r.Trusted.Contains(remoteIP) {
		// first IP is original client (left-most)
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if xrip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-Ip"))); xrip != nil {
			return xrip.String()
		}
	}
	if remoteIP != nil {
		return remoteIP.String()
	}
	return req.RemoteAddr
}

func parseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(remoteAddr)
	}
	return net.ParseIP(host)
}
