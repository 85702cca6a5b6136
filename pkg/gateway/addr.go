package gateway

import (
	"net"
	"strconv"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = "8000"
)

// NormalizeAddr turns the configured bind target into a host:port pair.
// Accepted forms: empty (default host and port), a bare port ("8080"),
// a bare IP ("0.0.0.0"), or a full host:port which passes through.
func NormalizeAddr(addr string) string {
	if addr == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}
	if _, err := strconv.Atoi(addr); err == nil {
		return net.JoinHostPort(defaultHost, addr)
	}
	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}
