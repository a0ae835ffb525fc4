// Package addr implements the identity/selector algebra of §4.1: IP
// addresses, endpoints (address+proto+port) and selectors (address range +
// optional proto/port), plus the byte-level "blit" operation used to
// synthesize network/host addresses from a mask boundary.
package addr

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Version distinguishes v4 from v6 independently of byte length, so that an
// "unset" address (zero Version) is never confused with 0.0.0.0.
type Version uint8

const (
	Unspecified Version = iota
	V4
	V6
)

// IP is a version-tagged, fixed-size raw address. The zero value is "unset"
// and is distinguishable from any real address, including the any-address.
type IP struct {
	version Version
	bytes   [16]byte // only the first 4 bytes are meaningful for V4
}

// FromNetIP builds an IP from a net.IP, preserving the 4-vs-16 byte form the
// caller supplies (net.IP.To4/To16 is the caller's job beforehand if a
// specific family is required).
func FromNetIP(ip net.IP) (IP, error) {
	if ip == nil {
		return IP{}, fmt.Errorf("addr: nil net.IP")
	}
	if v4 := ip.To4(); v4 != nil {
		var a IP
		a.version = V4
		copy(a.bytes[:4], v4)
		return a, nil
	}
	if v6 := ip.To16(); v6 != nil {
		var a IP
		a.version = V6
		copy(a.bytes[:16], v6)
		return a, nil
	}
	return IP{}, fmt.Errorf("addr: invalid net.IP %v", ip)
}

// Parse parses a textual address, e.g. "10.0.0.1" or "2001:db8::1".
func Parse(s string) (IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IP{}, fmt.Errorf("addr: cannot parse %q", s)
	}
	return FromNetIP(ip)
}

// AnyV4 and AnyV6 are the well-known any-addresses, distinct from IP{} (unset).
var (
	AnyV4 = IP{version: V4}
	AnyV6 = IP{version: V6}
)

func (a IP) Version() Version { return a.version }

// IsSet reports whether a carries a real version tag; the zero value is not set.
func (a IP) IsSet() bool { return a.version != Unspecified }

func (a IP) size() int {
	if a.version == V4 {
		return 4
	}
	return 16
}

// Raw returns the meaningful byte slice for the address's family.
func (a IP) Raw() []byte {
	if !a.IsSet() {
		return nil
	}
	b := make([]byte, a.size())
	copy(b, a.bytes[:a.size()])
	return b
}

// IsAny reports whether the address is the all-zeros any-address for its family.
func (a IP) IsAny() bool {
	if !a.IsSet() {
		return false
	}
	for _, b := range a.bytes[:a.size()] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsLoopback reports 127.0.0.0/8 for v4 and ::1 for v6.
func (a IP) IsLoopback() bool {
	if !a.IsSet() {
		return false
	}
	return net.IP(a.Raw()).IsLoopback()
}

// IsSpecified is the negation of IsAny, mirroring net.IP.IsUnspecified but
// additionally requiring the address be set at all.
func (a IP) IsSpecified() bool { return a.IsSet() && !a.IsAny() }

func (a IP) Equal(b IP) bool {
	if a.version != b.version {
		return false
	}
	if !a.IsSet() {
		return true // both unset
	}
	return a.bytes == b.bytes
}

func (a IP) String() string {
	if !a.IsSet() {
		return "<unset>"
	}
	return net.IP(a.Raw()).String()
}

// ReverseDNS produces the PTR query name for the address: dotted
// ".IN-ADDR.ARPA." form for v4, nibble-reversed ".IP6.ARPA." form for v6.
func (a IP) ReverseDNS() (string, error) {
	if !a.IsSet() {
		return "", fmt.Errorf("addr: reverse DNS of unset address")
	}
	raw := a.Raw()
	if a.version == V4 {
		s := ""
		for i := len(raw) - 1; i >= 0; i-- {
			s += fmt.Sprintf("%d.", raw[i])
		}
		return s + "IN-ADDR.ARPA.", nil
	}
	s := ""
	for i := len(raw) - 1; i >= 0; i-- {
		s += fmt.Sprintf("%x.%x.", raw[i]&0x0f, raw[i]>>4)
	}
	return s + "IP6.ARPA.", nil
}

// Endpoint is an address plus protocol and port, e.g. a UDP/500 socket.
type Endpoint struct {
	Addr     IP
	Protocol uint8
	Port     uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d/%d", e.Addr, e.Port, e.Protocol)
}

func (e Endpoint) Equal(o Endpoint) bool {
	return e.Addr.Equal(o.Addr) && e.Protocol == o.Protocol && e.Port == o.Port
}

// CIDR is an address plus prefix length.
type CIDR struct {
	Addr         IP
	PrefixLength uint8
}

func (c CIDR) String() string {
	return fmt.Sprintf("%s/%d", c.Addr, c.PrefixLength)
}

// Contains reports whether ip lies within the CIDR's prefix.
func (c CIDR) Contains(ip IP) bool {
	if c.Addr.version != ip.version {
		return false
	}
	masked, err := AddressBlit(ip, c.PrefixLength, Keep, Clear)
	if err != nil {
		return false
	}
	network, err := AddressBlit(c.Addr, c.PrefixLength, Keep, Clear)
	if err != nil {
		return false
	}
	return masked.Equal(network)
}

// Selector is an address range (as a prefix+mask) plus an optional protocol
// and port range, per §3/§4.1.
type Selector struct {
	Base         IP
	PrefixLength uint8
	Protocol     uint8 // 0 == any
	PortLo, PortHi uint16
}

// ContainsAddress reports whether ip (with no protocol/port constraint)
// falls within the selector's address range.
func (s Selector) ContainsAddress(ip IP) bool {
	return CIDR{Addr: s.Base, PrefixLength: s.PrefixLength}.Contains(ip)
}

// ContainsEndpoint reports whether an endpoint is covered by the selector's
// address range, protocol, and port range.
func (s Selector) ContainsEndpoint(e Endpoint) bool {
	if !s.ContainsAddress(e.Addr) {
		return false
	}
	if s.Protocol != 0 && e.Protocol != 0 && s.Protocol != e.Protocol {
		return false
	}
	if s.PortHi != 0 && (e.Port < s.PortLo || e.Port > s.PortHi) {
		return false
	}
	return true
}

// RangeOf returns a CIDR's first and last address, via
// apparentlymart/go-cidr's AddressRange rather than a second byte-blit
// implementation of the same computation AddressBlit already does —
// useful wherever a selector needs reporting or comparing as a plain
// address range instead of a prefix, the role the original's
// IPNetToFirstLastAddress helper played.
func RangeOf(c CIDR) (lo, hi IP, err error) {
	_, ipNet, err := net.ParseCIDR(c.String())
	if err != nil {
		return IP{}, IP{}, err
	}
	first, last := cidr.AddressRange(ipNet)
	if lo, err = FromNetIP(first); err != nil {
		return IP{}, IP{}, err
	}
	if hi, err = FromNetIP(last); err != nil {
		return IP{}, IP{}, err
	}
	return lo, hi, nil
}

// SubnetInSubnet reports whether inner is fully contained in outer.
func SubnetInSubnet(outer, inner CIDR) bool {
	if outer.Addr.Version() != inner.Addr.Version() {
		return false
	}
	if inner.PrefixLength < outer.PrefixLength {
		return false
	}
	return outer.Contains(inner.Addr)
}

// BlitOp is one of the three byte-blit operators from the original
// implementation's address_blit: Clear zeroes bits, Set forces them to one,
// Keep leaves them untouched.
type BlitOp struct {
	and, or byte
}

var (
	Clear = BlitOp{and: 0x00, or: 0x00}
	Set   = BlitOp{and: 0x00, or: 0xff}
	Keep  = BlitOp{and: 0xff, or: 0x00}
)

// AddressBlit splits the address's raw bytes at the bit boundary maskBits
// and independently applies prefixOp to the leading (routing-prefix) bytes
// and hostOp to the trailing (host-id) bytes; the cross-over byte at the
// boundary gets a bitwise mix of both, matching address_blit in
// lib/libswan/ip_address.c. maskBits > bit-length of the address is rejected;
// maskBits at a byte boundary never touches the cross-over branch.
func AddressBlit(a IP, maskBits uint8, prefixOp, hostOp BlitOp) (IP, error) {
	if !a.IsSet() {
		return IP{}, fmt.Errorf("addr: blit of unset address")
	}
	raw := a.Raw()
	bitlen := uint8(len(raw) * 8)
	if maskBits > bitlen {
		return IP{}, fmt.Errorf("addr: mask bits %d exceeds address length %d", maskBits, bitlen)
	}
	xbyte := int(maskBits / 8)
	xbit := uint(maskBits % 8)

	for b := 0; b < xbyte; b++ {
		raw[b] = (raw[b] & prefixOp.and) | prefixOp.or
	}
	trailing := xbyte
	if xbit != 0 {
		hmask := byte(0xFF >> xbit) // clears the most-significant xbit bits
		pmask := ^hmask
		raw[xbyte] = (raw[xbyte] & ((prefixOp.and & pmask) | (hostOp.and & hmask))) |
			((prefixOp.or & pmask) | (hostOp.or & hmask))
		trailing = xbyte + 1
	}
	for b := trailing; b < len(raw); b++ {
		raw[b] = (raw[b] & hostOp.and) | hostOp.or
	}

	out := a
	copy(out.bytes[:len(raw)], raw)
	return out, nil
}
