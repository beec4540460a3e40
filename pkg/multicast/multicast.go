// Package multicast manages group membership across network interfaces.
package multicast

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// Source lists candidate interfaces for group membership.
type Source func() ([]net.Interface, error)

// EligibleInterfaces returns every interface that is up and
// multicast-capable.
func EligibleInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var eligible []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		eligible = append(eligible, iface)
	}
	return eligible, nil
}

// Join joins group on each given interface, or on every eligible one
// when none are given. Interfaces that refuse membership are skipped as
// long as at least one accepts; the interfaces actually joined are
// returned so the caller can leave them later.
func Join(pc *ipv4.PacketConn, group net.IP, ifaces ...net.Interface) ([]net.Interface, error) {
	if len(ifaces) == 0 {
		var err error
		ifaces, err = EligibleInterfaces()
		if err != nil {
			return nil, err
		}
	}

	gaddr := &net.UDPAddr{IP: group}
	joined := make([]net.Interface, 0, len(ifaces))
	var lastErr error
	for i := range ifaces {
		if err := pc.JoinGroup(&ifaces[i], gaddr); err != nil {
			lastErr = err
			continue
		}
		joined = append(joined, ifaces[i])
	}
	if len(joined) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("joining %v: %w", group, lastErr)
		}
		return nil, fmt.Errorf("no multicast-capable interface to join %v", group)
	}
	return joined, nil
}

// Leave drops membership on each interface. Errors are discarded; the
// socket is normally about to close anyway.
func Leave(pc *ipv4.PacketConn, group net.IP, ifaces ...net.Interface) {
	gaddr := &net.UDPAddr{IP: group}
	for i := range ifaces {
		pc.LeaveGroup(&ifaces[i], gaddr)
	}
}
