// Package connstore implements §4.2/§4.3: the in-memory connection
// database, host-pair indexing and matching, and orientation.
package connstore

import (
	"fmt"
	"sync/atomic"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
)

// Kind enumerates the connection kinds of §3.
type Kind uint8

const (
	KindGroup Kind = iota
	KindTemplate
	KindInstance
	KindPermanent
	KindLabeledTemplate
	KindLabeledParent
	KindLabeledChild
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "GROUP"
	case KindTemplate:
		return "TEMPLATE"
	case KindInstance:
		return "INSTANCE"
	case KindPermanent:
		return "PERMANENT"
	case KindLabeledTemplate:
		return "LABELED_TEMPLATE"
	case KindLabeledParent:
		return "LABELED_PARENT"
	case KindLabeledChild:
		return "LABELED_CHILD"
	default:
		return "UNKNOWN"
	}
}

// Policy is the connection policy bitset of §3.
type Policy uint32

const (
	PolicyEncrypt Policy = 1 << iota
	PolicyAuthenticate
	PolicyTunnel // unset => transport
	PolicyPFS
	PolicyCompress
	PolicyOpportunistic
	PolicyNarrowing
	PolicyRoute
	PolicyUp
	PolicyPPKAllow
	PolicyPPKInsist
	PolicyIKEFrag
	PolicyESN
	PolicyAuthNull
)

// Autostart is the `auto=` keyword (§6).
type Autostart uint8

const (
	AutostartIgnore Autostart = iota
	AutostartAdd
	AutostartOndemand
	AutostartStart
	AutostartKeep
)

// Shunt is a standalone policy action (§ Glossary).
type Shunt uint8

const (
	ShuntUnset Shunt = iota
	ShuntTrap
	ShuntPass
	ShuntDrop
	ShuntReject
	ShuntHold
	ShuntNone
	ShuntIPsec
)

// OwnerRole names the well-known owner slots of §3.
type OwnerRole uint8

const (
	OwnerNegotiatingIKE OwnerRole = iota
	OwnerEstablishedIKE
	OwnerNewestIPsec
	OwnerNewestRouting
	ownerRoleCount
)

// NobodySerial marks an owner slot as unoccupied.
const NobodySerial = 0

// Serial is a monotonic object identifier; zero means "no such object".
type Serial uint64

var serialCounter uint64

// NextSerial returns a fresh, process-wide monotonic serial. Tests that need
// determinism should reset via ResetSerialsForTest.
func NextSerial() Serial {
	return Serial(atomic.AddUint64(&serialCounter, 1))
}

// ResetSerialsForTest resets the monotonic counter; for use by tests only.
func ResetSerialsForTest() { atomic.StoreUint64(&serialCounter, 0) }

// End is one side (local or remote) of a connection.
type End struct {
	Host        addr.IP
	HostID      string
	IDType      uint8
	AuthMethod  uint8
	Selectors   []addr.Selector
	AddressPool *addr.CIDR
	Port        uint16
	IKEPort     uint16
	VirtualNet  *addr.CIDR
	SecLabel    string
}

// Owners holds the per-connection owner tuple of §3, keyed by role.
type Owners [ownerRoleCount]Serial

func (o *Owners) Get(r OwnerRole) Serial { return o[r] }

// Set mutates a single owner slot, logging before/after per Design Note
// "Owner tuple": callers should go through this instead of touching the
// array directly so cross-talk between IKE SA and Child SA roles is
// visible in one place.
func (o *Owners) Set(r OwnerRole, logf func(format string, args ...interface{}), newVal Serial) {
	old := o[r]
	o[r] = newVal
	if logf != nil && old != newVal {
		logf("owner[%v]: %v -> %v", r, old, newVal)
	}
}

// Interface is the shared, ref-counted ipsec-interface descriptor of §3/§4.8.
type Interface struct {
	Name      string
	IfID      uint32
	refs      int32
	Addresses map[string]*InterfaceAddress
}

func (i *Interface) AddRef()  { atomic.AddInt32(&i.refs, 1) }
func (i *Interface) DelRef() int32 {
	return atomic.AddInt32(&i.refs, -1)
}
func (i *Interface) RefCount() int32 { return atomic.LoadInt32(&i.refs) }

// InterfaceAddress is one ref-counted CIDR hung off an Interface.
type InterfaceAddress struct {
	CIDR addr.CIDR
	refs int32
}

func (a *InterfaceAddress) AddRef()     { atomic.AddInt32(&a.refs, 1) }
func (a *InterfaceAddress) DelRef() int32 { return atomic.AddInt32(&a.refs, -1) }
func (a *InterfaceAddress) RefCount() int32 { return atomic.LoadInt32(&a.refs) }

// Connection is a configured or instantiated policy object, §3.
type Connection struct {
	Name           string
	Serial         Serial
	InstanceSerial Serial // 0 if not an instance

	Local, Remote End

	IKEVersion uint8 // 1 or 2
	Kind       Kind
	Policy     Policy
	Autostart  Autostart

	ProspectiveShunt, FailureShunt Shunt

	Owners Owners

	Routing RoutingState

	IPsecIface *Interface

	// parent connection for LABELED_PARENT/LABELED_CHILD clones, and
	// template for INSTANCE.
	Parent *Connection

	refs int32
}

func (c *Connection) AddRef()       { atomic.AddInt32(&c.refs, 1) }
func (c *Connection) DelRef() int32 { return atomic.AddInt32(&c.refs, -1) }
func (c *Connection) RefCount() int32 { return atomic.LoadInt32(&c.refs) }

func (c *Connection) String() string {
	if c.InstanceSerial != 0 {
		return fmt.Sprintf("%s[%d]/%d", c.Name, c.InstanceSerial, c.Serial)
	}
	return fmt.Sprintf("%s/%d", c.Name, c.Serial)
}

// IsNeverNegotiate reports whether this connection is a "never negotiate"
// (packet-shunt-only) connection, i.e. it has neither encrypt nor
// authenticate policy bits.
func (c *Connection) IsNeverNegotiate() bool {
	return c.Policy&(PolicyEncrypt|PolicyAuthenticate) == 0
}

// IsXauth reports whether the connection requires XAUTH (IKEv1 only; not
// modeled as a distinct bit here beyond policy, kept for matcher parity).
func (c *Connection) IsXauth() bool {
	return c.Policy&policyXauth != 0
}

// policyXauth is a private bit reserved for the IKEv1 matcher; it does not
// appear in the public Policy bitset table in §3 because XAUTH is IKEv1-only.
const policyXauth Policy = 1 << 30

// IsGroupInstance reports an INSTANCE cloned off a GROUP connection.
func (c *Connection) IsGroupInstance() bool {
	return c.Kind == KindInstance && c.Parent != nil && c.Parent.Kind == KindGroup
}

// CheckInvariants validates the structural invariants listed in §3; it is
// intended for use in tests and assertions, not the hot path.
func (c *Connection) CheckInvariants() error {
	if c.Kind == KindLabeledChild {
		if c.Parent == nil || c.Parent.Kind != KindLabeledParent {
			return fmt.Errorf("connstore: %s: LABELED_CHILD must clone a LABELED_PARENT", c)
		}
	}
	if c.Kind == KindLabeledParent {
		if c.Parent == nil || c.Parent.Kind != KindLabeledTemplate {
			return fmt.Errorf("connstore: %s: LABELED_PARENT must clone a LABELED_TEMPLATE", c)
		}
	}
	if c.Owners.Get(OwnerNewestRouting) != NobodySerial {
		switch c.Routing {
		case RoutingUnroutedInbound, RoutingUnroutedInboundNegotiation,
			RoutingUnroutedTunnel, RoutingRoutedInboundNegotiation, RoutingRoutedTunnel:
		default:
			return fmt.Errorf("connstore: %s: newest_routing_sa set but routing=%v", c, c.Routing)
		}
	}
	return nil
}
