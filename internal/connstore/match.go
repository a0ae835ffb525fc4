package connstore

import (
	"github.com/PatrisiousHaddad/libreswan/internal/addr"
)

// ResponderMatchContext carries the per-message facts the IKEv1-main-mode
// style matcher needs, grounded on ikev1_host_pair.c's match_v1_connection.
type ResponderMatchContext struct {
	IKEVersion  uint8
	WantXauth   bool
	Aggressive  bool
	PeerID      string // empty means "unknown"
	PeerIDIsAny bool
	PeerAuthBy  []uint8 // authby values the peer offered
}

// idKindFromCert and idKindAny mirror "c->remote->host.id.kind != ID_FROMCERT &&
// !id_is_any(...)" — a configured peer id of FROMCERT or any-id always
// matches regardless of the live peer id.
const (
	idKindFromCert = 0xf0
	idKindAny      = 0xf1
)

// MatchesResponder reports whether c is an acceptable responder match for
// ctx, applying the reject rules enumerated in §4.2. It does not consider
// host-pair membership; callers are expected to have already restricted the
// candidate set to a host-pair bucket.
func (c *Connection) MatchesResponder(ctx ResponderMatchContext) bool {
	if c.IKEVersion != ctx.IKEVersion {
		return false
	}
	if c.IsNeverNegotiate() {
		// a group-instance never-negotiate connection IS selected, so that
		// NO_PROPOSAL_CHOSEN can be returned to the peer.
		return c.IsGroupInstance()
	}
	if ctx.WantXauth != c.IsXauth() {
		return false
	}
	if ctx.Aggressive != (c.Policy&policyAggressive != 0) {
		return false
	}
	if ctx.PeerID != "" {
		localKind := c.idKind()
		sameID := c.Remote.HostID == ctx.PeerID
		fromCertOrAny := localKind == idKindFromCert || localKind == idKindAny
		if !sameID && !fromCertOrAny {
			return false
		}
	}
	if len(ctx.PeerAuthBy) > 0 {
		ok := false
		for _, a := range ctx.PeerAuthBy {
			if a == c.Remote.AuthMethod {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *Connection) idKind() uint8 { return c.Remote.IDType }

// policyAggressive is a private bit for the IKEv1 aggressive-mode matcher;
// like policyXauth it is IKEv1-specific and outside the public §3 bitset.
const policyAggressive Policy = 1 << 29

// FindHostPairConnectionOnResponder iterates the host-pair index in
// insertion order and returns the first connection for which predicate
// holds, per §4.2. Order matters: some tests rely on insertion order to
// disambiguate otherwise-tied candidates.
func FindHostPairConnectionOnResponder(store *Store, version uint8, local, remote addr.IP, predicate func(*Connection) bool) *Connection {
	for _, c := range store.ConnectionsForHostPair(HostPair{Local: local, Remote: remote}) {
		if predicate(c) {
			return c
		}
	}
	return nil
}

// FindResponderConnection implements the full §4.2 responder search: exact
// host-pair match first; on miss, retry with remote=any (road-warrior
// templates); for IKEv1 main mode also scan every wildcard connection and
// pick the one with the tightest selector containing the peer.
func FindResponderConnection(store *Store, local, remote addr.IP, ctx ResponderMatchContext, peerEndpointForTightest *addr.Endpoint) *Connection {
	pred := func(c *Connection) bool { return c.MatchesResponder(ctx) }

	if c := FindHostPairConnectionOnResponder(store, ctx.IKEVersion, local, remote, pred); c != nil {
		return c
	}

	any := anyAddressFor(local)
	if c := FindHostPairConnectionOnResponder(store, ctx.IKEVersion, local, any, pred); c != nil {
		return InstantiateRoadWarrior(c, remote)
	}

	if ctx.IKEVersion == 1 && peerEndpointForTightest != nil {
		var best *Connection
		var bestPrefix uint8
		for _, bucket := range store.AllForHostPairIteration() {
			for _, c := range bucket {
				if !c.Remote.Host.Equal(any) {
					continue
				}
				if !pred(c) {
					continue
				}
				for _, sel := range c.Remote.Selectors {
					if sel.ContainsEndpoint(*peerEndpointForTightest) && sel.PrefixLength >= bestPrefix {
						best, bestPrefix = c, sel.PrefixLength
					}
				}
			}
		}
		if best != nil {
			return InstantiateRoadWarrior(best, remote)
		}
	}
	return nil
}

func anyAddressFor(like addr.IP) addr.IP {
	if like.Version() == addr.V6 {
		return addr.AnyV6
	}
	return addr.AnyV4
}

// InstantiateRoadWarrior clones a wildcard-remote TEMPLATE into an INSTANCE
// bound to the peer's actual address, per §4.2/instantiate.c.
func InstantiateRoadWarrior(template *Connection, peerAddr addr.IP) *Connection {
	inst := cloneConnection(template)
	inst.Kind = KindInstance
	inst.Parent = template
	inst.InstanceSerial = NextSerial()
	inst.Remote.Host = peerAddr
	return inst
}

// FindOpportunisticTemplate searches for a routed template whose selectors
// contain both the triggering local and peer endpoints, per §4.2's
// Opportunistic rule, and fabricates an INSTANCE whose selectors are the
// exact triggering endpoints.
func FindOpportunisticTemplate(store *Store, ourEndpoint, peerEndpoint addr.Endpoint) *Connection {
	for _, c := range store.All() {
		if c.Policy&PolicyOpportunistic == 0 {
			continue
		}
		if !c.Routing.IsRouted() {
			continue
		}
		if !anySelectorContains(c.Local.Selectors, ourEndpoint) {
			continue
		}
		if !anySelectorContains(c.Remote.Selectors, peerEndpoint) {
			continue
		}
		inst := cloneConnection(c)
		inst.Kind = KindInstance
		inst.Parent = c
		inst.InstanceSerial = NextSerial()
		inst.Local.Selectors = []addr.Selector{endpointAsSelector(ourEndpoint)}
		inst.Remote.Selectors = []addr.Selector{endpointAsSelector(peerEndpoint)}
		inst.Remote.Host = peerEndpoint.Addr
		return inst
	}
	return nil
}

func anySelectorContains(sels []addr.Selector, e addr.Endpoint) bool {
	for _, s := range sels {
		if s.ContainsEndpoint(e) {
			return true
		}
	}
	return false
}

func endpointAsSelector(e addr.Endpoint) addr.Selector {
	bits := uint8(32)
	if e.Addr.Version() == addr.V6 {
		bits = 128
	}
	return addr.Selector{Base: e.Addr, PrefixLength: bits, Protocol: e.Protocol, PortLo: e.Port, PortHi: e.Port}
}

func cloneConnection(src *Connection) *Connection {
	cp := *src
	cp.Serial = NextSerial()
	cp.Owners = Owners{}
	cp.Routing = RoutingUnrouted
	cp.Local.Selectors = append([]addr.Selector(nil), src.Local.Selectors...)
	cp.Remote.Selectors = append([]addr.Selector(nil), src.Remote.Selectors...)
	return &cp
}
