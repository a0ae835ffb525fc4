package connstore

import (
	"fmt"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
)

// LocalInterface describes one bound listening interface, for orientation
// purposes: its address and port. Orient compares addresses only.
type LocalInterface struct {
	Addr addr.IP
	Port uint16
}

// Orient implements §4.3: decide which of a connection's two ends is
// "local" by matching each end's host address against the set of bound
// interfaces, and swap the ends if it is the remote one that matches.
// A connection with neither end matching, or with both ends matching
// distinct interfaces (ambiguous), is rejected.
func Orient(c *Connection, interfaces []LocalInterface) error {
	localMatches := matchesAny(c.Local.Host, interfaces)
	remoteMatches := matchesAny(c.Remote.Host, interfaces)

	switch {
	case localMatches && remoteMatches:
		return fmt.Errorf("connstore: %s: both ends match a local interface, ambiguous orientation", c)
	case localMatches:
		return nil
	case remoteMatches:
		c.Local, c.Remote = c.Remote, c.Local
		return nil
	default:
		return fmt.Errorf("connstore: %s: neither end matches a local interface", c)
	}
}

func matchesAny(host addr.IP, interfaces []LocalInterface) bool {
	for _, iface := range interfaces {
		if iface.Addr.Equal(host) {
			return true
		}
	}
	return false
}

// IsOriented reports whether c's local end currently matches a bound
// interface; used by callers that must re-check orientation after an
// interface is removed (e.g. a DHCP lease change).
func IsOriented(c *Connection, interfaces []LocalInterface) bool {
	return matchesAny(c.Local.Host, interfaces)
}
