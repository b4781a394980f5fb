// Package netutil provides small network helpers shared across the toolkit.
package netutil

import (
	"fmt"
	"net"
)

// probeAddr is only dialed on paper: UDP "connections" send no packets, so
// any routable address works for discovering the outbound interface
const probeAddr = "239.255.255.250:1900"

// LocalIP returns the IPv4 address of the interface that routes to the
// local network. Devices deliver event notifications to this address, so it
// must be reachable from the LAN - loopback is never returned.
func LocalIP() (net.IP, error) {
	conn, err := net.Dial("udp4", probeAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to determine local address: %w", err)
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return nil, fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	if addr.IP.IsLoopback() {
		return nil, fmt.Errorf("local address %s is loopback; no LAN-reachable interface found", addr.IP)
	}
	return addr.IP, nil
}

// ResolveBindIP picks the address to advertise in callback URLs. An
// explicit non-wildcard host wins; a wildcard or empty host falls back to
// the outbound-interface address.
func ResolveBindIP(host string) (net.IP, error) {
	if host != "" && host != "0.0.0.0" && host != "::" {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("invalid bind address %q", host)
		}
		return ip, nil
	}
	return LocalIP()
}
