package gatekeeper

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const unknownClient = "unknown"

// ProxyTrust lists the peers whose forwarding headers are believed
type ProxyTrust []netip.Prefix

// ClientIP is the connection's address unless that peer is a trusted proxy.
// Behind a trusted proxy X-Forwarded-For is read right to left and the first untrusted hop wins,
// then X-Real-IP is tried. Headers from any other peer are ignored.
func (t ProxyTrust) ClientIP(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if remote == "" {
		return unknownClient
	}
	peer, err := netip.ParseAddr(remote)
	if err != nil || !t.trusted(peer) {
		return remote
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !t.trusted(hop) {
				return hop.Unmap().String()
			}
		}
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return remote
}

func (t ProxyTrust) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// ClientIP resolves the caller's address with the configured trusted proxies
func (g *Gatekeeper) ClientIP(r *http.Request) string {
	return g.proxies.ClientIP(r)
}
