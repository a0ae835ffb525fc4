// Package kernel defines the vtable of §4.8: the operations the routing
// engine and the ipsec-interface lifecycle need from whatever is actually
// programming the kernel (XFRM policy/SA, bare shunts, ipsec-interface
// devices, and the updown script).
package kernel

import (
	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
)

// Kernel is the full set of kernel operations §4.4 and §4.8 name. It is
// larger than routing.Hooks: routing.Hooks is the subset the routing
// engine calls directly, while Kernel also covers the ipsec-interface
// vtable and raw/bare-shunt primitives the higher layers call before a
// routing-engine transition exists to drive them.
type Kernel interface {
	// Policy / SA install, mirroring routing.Hooks so one implementation
	// can satisfy both interfaces.
	RawEroute(c *connstore.Connection) error
	ShuntEroute(c *connstore.Connection, shunt connstore.Shunt) error
	DeleteBareShunt(local, remote addr.Selector) error
	ReplaceBareShunt(local, remote addr.Selector, shunt connstore.Shunt) error
	AddBareShunt(local, remote addr.Selector, shunt connstore.Shunt) error
	AssignHoldpass(c *connstore.Connection) error
	OrphanHoldpass(local, remote addr.Selector) error
	InstallInboundIPsecSA(c *connstore.Connection) error
	InstallOutboundIPsecSA(c *connstore.Connection) error
	DoUpdown(op UpdownOp, c *connstore.Connection) error

	// ipsec-interface vtable, §4.8.
	LinkAdd(name string, ifID uint32) error
	LinkSetUp(name string) error
	LinkDel(name string) error
	AddrAdd(name string, cidr addr.CIDR) error
	AddrDel(name string, cidr addr.CIDR) error
	AddrFindOnInterface(name string, cidr addr.CIDR) (bool, error)
	FindInterface(name string) (*connstore.Interface, error)
	Supported() bool
	CheckStale(name string) error
	Shutdown(name string) error
}

// UpdownOp names which updown hook to invoke, mirroring the
// up-client/down-client/up-host/down-host variants.
type UpdownOp uint8

const (
	UpdownPrepareClient UpdownOp = iota
	UpdownUpClient
	UpdownDownClient
	UpdownUpHost
	UpdownDownHost
)

func (op UpdownOp) String() string {
	switch op {
	case UpdownPrepareClient:
		return "prepare-client"
	case UpdownUpClient:
		return "up-client"
	case UpdownDownClient:
		return "down-client"
	case UpdownUpHost:
		return "up-host"
	case UpdownDownHost:
		return "down-host"
	default:
		return "unknown-updown"
	}
}

// ifIDRemapSentinel implements the if_id==0 special case noted in §4.8: a
// connection with no explicit if_id shares the kernel's default,
// unnumbered XFRM interface rather than getting its own, so it is remapped
// to a private sentinel the driver recognizes instead of allocating a new
// link for every such connection.
const ifIDRemapSentinel uint32 = 1<<32 - 1

// RemapIfID applies the if_id==0 remap described in §4.8.
func RemapIfID(ifID uint32) uint32 {
	if ifID == 0 {
		return ifIDRemapSentinel
	}
	return ifID
}
