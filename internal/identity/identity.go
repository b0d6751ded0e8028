// Package identity derives this node's stable link-local address and id
// from the mesh interface's MAC address (spec.md §4.1, component C1).
package identity

import (
	"crypto/md5"
	"fmt"
	"net"

	"meshnode/internal/merr"
)

// Identity is this node's derived address and id. Both are the same
// string: the link-local IPv4 address is used verbatim as node_id.
type Identity struct {
	InterfaceName string
	MAC           net.HardwareAddr
	Address       net.IP
}

// NodeID returns the node identifier, equal to the derived address.
func (id Identity) NodeID() string {
	return id.Address.String()
}

// InterfaceLookup resolves a network interface's hardware address.
// Satisfied by net.InterfaceByName in production and faked in tests.
type InterfaceLookup func(name string) (net.HardwareAddr, error)

// LookupMAC is the production InterfaceLookup, backed by the stdlib net
// package. Reading one interface's hardware address does not need
// internal/netlinkx, which only parses /proc/net tables and serves
// internal/peers' neighbor-table reads.
func LookupMAC(name string) (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}

// Derive computes this node's Identity from the named mesh interface.
// Fails with a ConfigurationError (spec.md §4.1 Failure clause) if the
// interface is absent or carries no hardware address.
func Derive(ifaceName string, lookup InterfaceLookup) (Identity, error) {
	mac, err := lookup(ifaceName)
	if err != nil {
		return Identity{}, merr.Configuration(fmt.Sprintf("mesh interface %q not found: %v", ifaceName, err))
	}
	if len(mac) < 6 {
		return Identity{}, merr.Configuration(fmt.Sprintf("mesh interface %q has no 48-bit MAC", ifaceName))
	}
	addr := DeriveAddress(mac)
	return Identity{InterfaceName: ifaceName, MAC: mac, Address: addr}, nil
}

// DeriveAddress is the pure function at the heart of C1: given a 48-bit
// MAC, it returns a deterministic address in 169.254.0.0/16.
//
// Scheme (spec.md §4.1 "the implementation chooses one scheme
// consistently across the fleet"): the third octet is the first byte of
// the MD5(MAC) digest to spread nodes across the /16 and reduce collisions between
// devices whose vendor-assigned MACs share a last byte; the fourth octet
// is M[5] directly, preserving a visible link to the source MAC. This is
// a pure function of its input — calling it twice with the same MAC
// always yields the same address (spec.md §8 "Address determinism").
func DeriveAddress(mac net.HardwareAddr) net.IP {
	sum := md5.Sum(mac)
	third := sum[0]
	fourth := mac[len(mac)-1]

	if third == 0 && fourth == 0 {
		third, fourth = 0, 1
	}
	if third == 255 && fourth == 255 {
		third, fourth = 254, 254
	}
	return net.IPv4(169, 254, third, fourth)
}
