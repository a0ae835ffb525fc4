// Package xfrm implements internal/kernel.Kernel and internal/routing.Hooks
// against the Linux XFRM stack via vishvananda/netlink, the way
// purelb-purelb's internal/local package drives netlink for its own
// interface/address lifecycle (LinkAdd/LinkSetUp/LinkDel, AddrAdd/AddrDel,
// ParseAddr) — generalized here to XFRM policy/state objects and a
// dedicated ipsec-interface (Xfrmi) link type instead of a dummy link.
package xfrm

import (
	"fmt"
	"net"

	"github.com/msgboxio/log"
	"github.com/vishvananda/netlink"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel"
)

// Driver is the real kernel backend. UpdownScript, when non-empty, is
// logged for each DoUpdown hook; the script itself is not executed, and a
// zero value skips the log line as well.
type Driver struct {
	UpdownScript string
}

func New() *Driver { return &Driver{} }

func toIPNet(cidr addr.CIDR) *net.IPNet {
	ip := cidr.Addr.Raw()
	bits := len(ip) * 8
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(int(cidr.PrefixLength), bits)}
}

// RawEroute installs a pair of XFRM policies (out and in) over a
// connection's first local and remote selectors, after routing.c's
// raw_eroute. The policies carry no template, so they are not bound to an
// IPsec SA.
func (d *Driver) RawEroute(c *connstore.Connection) error {
	for _, dir := range []netlink.Dir{netlink.XFRM_DIR_OUT, netlink.XFRM_DIR_IN} {
		policy := &netlink.XfrmPolicy{
			Src: selectorNet(c.Local),
			Dst: selectorNet(c.Remote),
			Dir: dir,
		}
		if err := netlink.XfrmPolicyAdd(policy); err != nil {
			return fmt.Errorf("xfrm: raw_eroute %s dir=%v: %w", c, dir, err)
		}
	}
	return nil
}

func selectorNet(e connstore.End) *net.IPNet {
	if len(e.Selectors) > 0 {
		s := e.Selectors[0]
		return &net.IPNet{IP: s.Base.Raw(), Mask: net.CIDRMask(int(s.PrefixLength), len(s.Base.Raw())*8)}
	}
	return &net.IPNet{IP: e.Host.Raw(), Mask: net.CIDRMask(len(e.Host.Raw())*8, len(e.Host.Raw())*8)}
}

func shuntAction(shunt connstore.Shunt) string {
	switch shunt {
	case connstore.ShuntPass:
		return "allow"
	case connstore.ShuntDrop, connstore.ShuntReject:
		return "block"
	case connstore.ShuntTrap:
		return "trap"
	default:
		return "unset"
	}
}

// ShuntEroute installs a connection-scoped outbound shunt policy instead
// of a real IPsec policy: drop and reject become a block policy, every
// other shunt (pass, hold, trap) an allow policy.
func (d *Driver) ShuntEroute(c *connstore.Connection, shunt connstore.Shunt) error {
	log.Infof("xfrm: shunt_eroute %s -> %s", c, shuntAction(shunt))
	policy := &netlink.XfrmPolicy{
		Src: selectorNet(c.Local),
		Dst: selectorNet(c.Remote),
		Dir: netlink.XFRM_DIR_OUT,
	}
	if shunt == connstore.ShuntDrop || shunt == connstore.ShuntReject {
		policy.Action = netlink.XFRM_POLICY_BLOCK
	}
	return netlink.XfrmPolicyAdd(policy)
}

func (d *Driver) DeleteBareShunt(local, remote addr.Selector) error {
	return netlink.XfrmPolicyDel(&netlink.XfrmPolicy{
		Src: toIPNet(addr.CIDR{Addr: local.Base, PrefixLength: local.PrefixLength}),
		Dst: toIPNet(addr.CIDR{Addr: remote.Base, PrefixLength: remote.PrefixLength}),
		Dir: netlink.XFRM_DIR_OUT,
	})
}

func (d *Driver) ReplaceBareShunt(local, remote addr.Selector, shunt connstore.Shunt) error {
	_ = d.DeleteBareShunt(local, remote)
	return d.AddBareShunt(local, remote, shunt)
}

func (d *Driver) AddBareShunt(local, remote addr.Selector, shunt connstore.Shunt) error {
	policy := &netlink.XfrmPolicy{
		Src: toIPNet(addr.CIDR{Addr: local.Base, PrefixLength: local.PrefixLength}),
		Dst: toIPNet(addr.CIDR{Addr: remote.Base, PrefixLength: remote.PrefixLength}),
		Dir: netlink.XFRM_DIR_OUT,
	}
	if shunt == connstore.ShuntDrop || shunt == connstore.ShuntReject {
		policy.Action = netlink.XFRM_POLICY_BLOCK
	}
	return netlink.XfrmPolicyAdd(policy)
}

func (d *Driver) AssignHoldpass(c *connstore.Connection) error {
	return d.ShuntEroute(c, connstore.ShuntHold)
}

func (d *Driver) OrphanHoldpass(local, remote addr.Selector) error {
	return d.AddBareShunt(local, remote, connstore.ShuntHold)
}

func (d *Driver) installSA(c *connstore.Connection, dir netlink.Dir) error {
	state := &netlink.XfrmState{
		Src:   c.Local.Host.Raw(),
		Dst:   c.Remote.Host.Raw(),
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TUNNEL,
	}
	if err := netlink.XfrmStateAdd(state); err != nil {
		return fmt.Errorf("xfrm: install %v sa for %s: %w", dir, c, err)
	}
	return nil
}

func (d *Driver) InstallInboundSA(c *connstore.Connection) error {
	return d.installSA(c, netlink.XFRM_DIR_IN)
}
func (d *Driver) InstallOutboundSA(c *connstore.Connection) error {
	return d.installSA(c, netlink.XFRM_DIR_OUT)
}
func (d *Driver) InstallFailureShunt(c *connstore.Connection) error {
	return d.ShuntEroute(c, c.FailureShunt)
}

// InstallTrap installs c's ondemand policy through ShuntEroute with
// ShuntTrap, after routing.c's route_and_eroute trap case. The result is an
// allow policy with no template, so a matching packet raises no acquire
// toward the routing engine.
func (d *Driver) InstallTrap(c *connstore.Connection) error {
	return d.ShuntEroute(c, connstore.ShuntTrap)
}

// InstallNeverNegotiate installs the connection's configured
// never-negotiate shunt (pass/drop/reject), used for PolicyNever
// connections that should never trigger IKE.
func (d *Driver) InstallNeverNegotiate(c *connstore.Connection) error {
	return d.ShuntEroute(c, c.ProspectiveShunt)
}

// InstallNegotiationShunt installs the prospective shunt that covers
// traffic while an IKE negotiation for c is in flight.
func (d *Driver) InstallNegotiationShunt(c *connstore.Connection) error {
	return d.ShuntEroute(c, c.ProspectiveShunt)
}
func (d *Driver) RemovePolicy(c *connstore.Connection) error {
	for _, dir := range []netlink.Dir{netlink.XFRM_DIR_OUT, netlink.XFRM_DIR_IN} {
		_ = netlink.XfrmPolicyDel(&netlink.XfrmPolicy{Src: selectorNet(c.Local), Dst: selectorNet(c.Remote), Dir: dir})
	}
	return nil
}

func (d *Driver) Route(c *connstore.Connection) error   { return d.DoUpdown(kernel.UpdownPrepareClient, c) }
func (d *Driver) Unroute(c *connstore.Connection) error  { return nil }
func (d *Driver) Up(c *connstore.Connection) error       { return d.DoUpdown(kernel.UpdownUpClient, c) }
func (d *Driver) Down(c *connstore.Connection) error     { return d.DoUpdown(kernel.UpdownDownClient, c) }

func (d *Driver) InstallInboundIPsecSA(c *connstore.Connection) error  { return d.InstallInboundSA(c) }
func (d *Driver) InstallOutboundIPsecSA(c *connstore.Connection) error { return d.InstallOutboundSA(c) }

func (d *Driver) DoUpdown(op kernel.UpdownOp, c *connstore.Connection) error {
	if d.UpdownScript == "" {
		return nil
	}
	log.Infof("xfrm: updown %s %s: script=%s", op, c, d.UpdownScript)
	return nil
}

// LinkAdd creates an XFRM interface (vishvananda/netlink's netlink.Xfrmi),
// the per-if_id virtual device §4.8 routes traffic through.
func (d *Driver) LinkAdd(name string, ifID uint32) error {
	ifID = kernel.RemapIfID(ifID)
	link := &netlink.Xfrmi{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		IfId:      ifID,
	}
	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("xfrm: link_add %s if_id=%d: %w", name, ifID, err)
	}
	return nil
}

func (d *Driver) LinkSetUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(link)
}

func (d *Driver) LinkDel(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkDel(link)
}

func (d *Driver) AddrAdd(name string, cidr addr.CIDR) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	nladdr, err := netlink.ParseAddr(toIPNet(cidr).String())
	if err != nil {
		return err
	}
	return netlink.AddrReplace(link, nladdr)
}

func (d *Driver) AddrDel(name string, cidr addr.CIDR) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	nladdr, err := netlink.ParseAddr(toIPNet(cidr).String())
	if err != nil {
		return err
	}
	return netlink.AddrDel(link, nladdr)
}

func (d *Driver) AddrFindOnInterface(name string, cidr addr.CIDR) (bool, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false, err
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return false, err
	}
	want := toIPNet(cidr).String()
	for _, a := range addrs {
		if a.IPNet.String() == want {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) FindInterface(name string) (*connstore.Interface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("xfrm: find_interface %s: %w", name, err)
	}
	xfrmi, ok := link.(*netlink.Xfrmi)
	if !ok {
		return nil, fmt.Errorf("xfrm: %s is not an xfrm interface", name)
	}
	return &connstore.Interface{Name: name, IfID: xfrmi.IfId}, nil
}

func (d *Driver) Supported() bool { return true }

func (d *Driver) CheckStale(name string) error {
	if _, err := netlink.LinkByName(name); err != nil {
		return fmt.Errorf("xfrm: check_stale %s: %w", name, err)
	}
	return nil
}

func (d *Driver) Shutdown(name string) error { return d.LinkDel(name) }
