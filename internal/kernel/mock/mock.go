// Package mock is a recording, fault-injectable implementation of
// internal/kernel.Kernel and internal/routing.Hooks, used by engine and
// routing tests in place of real XFRM calls.
package mock

import (
	"fmt"
	"sync"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel"
)

// Call records one invocation against the mock kernel, for assertions in
// test code.
type Call struct {
	Method string
	Conn   string
}

// Kernel records calls to its policy, SA, updown and link methods and can
// be told to fail a named method: while Fail holds an error for a method
// name, every recorded call to that method returns it. DoUpdown and
// LinkAdd are recorded but never fail; LinkDel, AddrFindOnInterface,
// FindInterface, Supported, CheckStale and Shutdown are not recorded. This
// is the same shape egorse-ike's own test fakes use for the
// session/transport seam.
type Kernel struct {
	mu    sync.Mutex
	Calls []Call
	Fail  map[string]error

	interfaces map[string]*connstore.Interface
}

func New() *Kernel {
	return &Kernel{Fail: map[string]error{}, interfaces: map[string]*connstore.Interface{}}
}

func (k *Kernel) record(method string, c *connstore.Connection) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	name := ""
	if c != nil {
		name = c.Name
	}
	k.Calls = append(k.Calls, Call{Method: method, Conn: name})
	if err, ok := k.Fail[method]; ok {
		return err
	}
	return nil
}

func (k *Kernel) InstallTrap(c *connstore.Connection) error             { return k.record("InstallTrap", c) }
func (k *Kernel) InstallNeverNegotiate(c *connstore.Connection) error    { return k.record("InstallNeverNegotiate", c) }
func (k *Kernel) InstallNegotiationShunt(c *connstore.Connection) error  { return k.record("InstallNegotiationShunt", c) }
func (k *Kernel) InstallInboundSA(c *connstore.Connection) error         { return k.record("InstallInboundSA", c) }
func (k *Kernel) InstallOutboundSA(c *connstore.Connection) error        { return k.record("InstallOutboundSA", c) }
func (k *Kernel) InstallFailureShunt(c *connstore.Connection) error      { return k.record("InstallFailureShunt", c) }
func (k *Kernel) RemovePolicy(c *connstore.Connection) error             { return k.record("RemovePolicy", c) }
func (k *Kernel) Route(c *connstore.Connection) error                    { return k.record("Route", c) }
func (k *Kernel) Unroute(c *connstore.Connection) error                  { return k.record("Unroute", c) }
func (k *Kernel) Up(c *connstore.Connection) error                       { return k.record("Up", c) }
func (k *Kernel) Down(c *connstore.Connection) error                     { return k.record("Down", c) }

func (k *Kernel) RawEroute(c *connstore.Connection) error             { return k.record("RawEroute", c) }
func (k *Kernel) ShuntEroute(c *connstore.Connection, _ connstore.Shunt) error {
	return k.record("ShuntEroute", c)
}
func (k *Kernel) DeleteBareShunt(_, _ addr.Selector) error { return k.record("DeleteBareShunt", nil) }
func (k *Kernel) ReplaceBareShunt(_, _ addr.Selector, _ connstore.Shunt) error {
	return k.record("ReplaceBareShunt", nil)
}
func (k *Kernel) AddBareShunt(_, _ addr.Selector, _ connstore.Shunt) error {
	return k.record("AddBareShunt", nil)
}
func (k *Kernel) AssignHoldpass(c *connstore.Connection) error { return k.record("AssignHoldpass", c) }
func (k *Kernel) OrphanHoldpass(_, _ addr.Selector) error      { return k.record("OrphanHoldpass", nil) }
func (k *Kernel) InstallInboundIPsecSA(c *connstore.Connection) error {
	return k.record("InstallInboundIPsecSA", c)
}
func (k *Kernel) InstallOutboundIPsecSA(c *connstore.Connection) error {
	return k.record("InstallOutboundIPsecSA", c)
}
func (k *Kernel) DoUpdown(op kernel.UpdownOp, c *connstore.Connection) error {
	k.mu.Lock()
	name := ""
	if c != nil {
		name = c.Name
	}
	k.Calls = append(k.Calls, Call{Method: "DoUpdown:" + op.String(), Conn: name})
	k.mu.Unlock()
	return nil
}

func (k *Kernel) LinkAdd(name string, ifID uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Calls = append(k.Calls, Call{Method: "LinkAdd", Conn: name})
	k.interfaces[name] = &connstore.Interface{Name: name, IfID: ifID}
	return nil
}
func (k *Kernel) LinkSetUp(name string) error { return k.record("LinkSetUp", nil) }
func (k *Kernel) LinkDel(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.interfaces, name)
	return nil
}
func (k *Kernel) AddrAdd(name string, cidr addr.CIDR) error { return k.record("AddrAdd", nil) }
func (k *Kernel) AddrDel(name string, cidr addr.CIDR) error { return k.record("AddrDel", nil) }
func (k *Kernel) AddrFindOnInterface(name string, cidr addr.CIDR) (bool, error) { return true, nil }
func (k *Kernel) FindInterface(name string) (*connstore.Interface, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if iface, ok := k.interfaces[name]; ok {
		return iface, nil
	}
	return nil, fmt.Errorf("mock: no such interface %s", name)
}
func (k *Kernel) Supported() bool              { return true }
func (k *Kernel) CheckStale(name string) error { return nil }
func (k *Kernel) Shutdown(name string) error   { return nil }
