package routing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
)

type recordingHooks struct {
	calls []string
	fail  string
}

func (h *recordingHooks) record(name string) error {
	h.calls = append(h.calls, name)
	if h.fail == name {
		return errFail(name)
	}
	return nil
}

type errFail string

func (e errFail) Error() string { return string(e) + ": hook failed" }

func (h *recordingHooks) InstallTrap(c *connstore.Connection) error             { return h.record("InstallTrap") }
func (h *recordingHooks) InstallNeverNegotiate(c *connstore.Connection) error   { return h.record("InstallNeverNegotiate") }
func (h *recordingHooks) InstallNegotiationShunt(c *connstore.Connection) error { return h.record("InstallNegotiationShunt") }
func (h *recordingHooks) InstallInboundSA(c *connstore.Connection) error        { return h.record("InstallInboundSA") }
func (h *recordingHooks) InstallOutboundSA(c *connstore.Connection) error       { return h.record("InstallOutboundSA") }
func (h *recordingHooks) InstallFailureShunt(c *connstore.Connection) error     { return h.record("InstallFailureShunt") }
func (h *recordingHooks) RemovePolicy(c *connstore.Connection) error           { return h.record("RemovePolicy") }
func (h *recordingHooks) Route(c *connstore.Connection) error                  { return h.record("Route") }
func (h *recordingHooks) Unroute(c *connstore.Connection) error                { return h.record("Unroute") }
func (h *recordingHooks) Up(c *connstore.Connection) error                     { return h.record("Up") }
func (h *recordingHooks) Down(c *connstore.Connection) error                   { return h.record("Down") }

type neverRevive struct{}

func (neverRevive) RevivalScheduled(*connstore.Connection) bool { return false }

type alwaysRevive struct{}

func (alwaysRevive) RevivalScheduled(*connstore.Connection) bool { return true }

// TestScenarioS1IKEv2InitiatorHappyPath walks the routing side of spec
// scenario S1: UNROUTED -> ROUTED_ONDEMAND -> ROUTED_NEGOTIATION ->
// ROUTED_INBOUND_NEGOTIATION -> ROUTED_TUNNEL, with the up-hook firing
// exactly once.
func TestScenarioS1IKEv2InitiatorHappyPath(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, neverRevive{}, nil)
	c := &connstore.Connection{
		Name:       "a-to-b",
		Kind:       connstore.KindPermanent,
		IKEVersion: 2,
		Policy:     connstore.PolicyEncrypt | connstore.PolicyAuthenticate,
	}

	if err := eng.Dispatch(EventRoute, c); err != nil {
		t.Fatalf("ROUTE: %v", err)
	}
	if c.Routing != connstore.RoutingRoutedOndemand {
		t.Fatalf("after ROUTE: got %v want ROUTED_ONDEMAND", c.Routing)
	}

	if err := eng.Dispatch(EventInitiate, c); err != nil {
		t.Fatalf("INITIATE: %v", err)
	}
	if c.Routing != connstore.RoutingRoutedNegotiation {
		t.Fatalf("after INITIATE: got %v want ROUTED_NEGOTIATION", c.Routing)
	}

	if err := eng.Dispatch(EventEstablishInbound, c); err != nil {
		t.Fatalf("ESTABLISH_INBOUND: %v", err)
	}
	if c.Routing != connstore.RoutingRoutedInboundNegotiation {
		t.Fatalf("after ESTABLISH_INBOUND: got %v want ROUTED_INBOUND_NEGOTIATION", c.Routing)
	}

	if err := eng.Dispatch(EventEstablishOutbound, c); err != nil {
		t.Fatalf("ESTABLISH_OUTBOUND: %v", err)
	}
	if c.Routing != connstore.RoutingRoutedTunnel {
		t.Fatalf("after ESTABLISH_OUTBOUND: got %v want ROUTED_TUNNEL", c.Routing)
	}

	if diff := cmp.Diff([]string{"InstallTrap", "Route", "InstallNegotiationShunt", "InstallInboundSA", "InstallOutboundSA", "Up"}, hooks.calls); diff != "" {
		t.Fatalf("unexpected hook call sequence (-want +got):\n%s", diff)
	}
}

// TestScenarioS5TeardownWithRevival mirrors S5: TEARDOWN_CHILD from
// ROUTED_TUNNEL with revival scheduled lands on ROUTED_ONDEMAND and fires
// down but not unroute; a second TEARDOWN_IKE leaves routing unchanged.
func TestScenarioS5TeardownWithRevival(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, alwaysRevive{}, nil)
	c := &connstore.Connection{
		Kind:    connstore.KindPermanent,
		Routing: connstore.RoutingRoutedTunnel,
	}

	if err := eng.Dispatch(EventTeardownChild, c); err != nil {
		t.Fatalf("TEARDOWN_CHILD: %v", err)
	}
	if c.Routing != connstore.RoutingRoutedOndemand {
		t.Fatalf("got %v want ROUTED_ONDEMAND", c.Routing)
	}
	for _, call := range hooks.calls {
		if call == "Unroute" {
			t.Fatal("did not expect Unroute to fire on revival path")
		}
	}

	before := c.Routing
	if err := eng.Dispatch(EventTeardownIKE, c); err != nil {
		t.Fatalf("TEARDOWN_IKE: %v", err)
	}
	if c.Routing != before {
		t.Fatalf("TEARDOWN_IKE on ROUTED_ONDEMAND changed routing: %v -> %v", before, c.Routing)
	}
}

// TestTeardownChildThenIkeOnIKEv2Tunnel covers the admin down/terminate
// ordering: TEARDOWN_CHILD always runs before TEARDOWN_IKE, including for
// an IKEv2 ROUTED_TUNNEL connection, and the second dispatch against
// whatever routing state the first one landed on must not error.
func TestTeardownChildThenIkeOnIKEv2Tunnel(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, neverRevive{}, nil)
	c := &connstore.Connection{
		Kind:       connstore.KindPermanent,
		IKEVersion: 2,
		Routing:    connstore.RoutingRoutedTunnel,
	}

	require.NoError(t, eng.Dispatch(EventTeardownChild, c))
	assert.Equal(t, connstore.RoutingUnrouted, c.Routing)

	require.NoError(t, eng.Dispatch(EventTeardownIKE, c))
	assert.Equal(t, connstore.RoutingUnrouted, c.Routing)

	if diff := cmp.Diff([]string{"Down", "RemovePolicy"}, hooks.calls); diff != "" {
		t.Fatalf("unexpected hook call sequence (-want +got):\n%s", diff)
	}
}

// TestUnrouteIdempotence covers testable property 9.
func TestUnrouteIdempotence(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, neverRevive{}, nil)
	c := &connstore.Connection{
		Kind:    connstore.KindPermanent,
		Routing: connstore.RoutingRoutedOndemand,
	}
	if err := eng.Dispatch(EventUnroute, c); err != nil {
		t.Fatalf("first UNROUTE: %v", err)
	}
	if c.Routing != connstore.RoutingUnrouted {
		t.Fatalf("got %v want UNROUTED", c.Routing)
	}
	callsAfterFirst := len(hooks.calls)
	if err := eng.Dispatch(EventUnroute, c); err != nil {
		t.Fatalf("second UNROUTE: %v", err)
	}
	if c.Routing != connstore.RoutingUnrouted {
		t.Fatal("second UNROUTE must leave routing UNROUTED")
	}
	if len(hooks.calls) != callsAfterFirst {
		t.Fatal("second UNROUTE must not invoke any hooks")
	}
}

func TestUnrouteRefusesRouteBusy(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, neverRevive{}, nil)
	c := &connstore.Connection{Routing: connstore.RoutingRoutedTunnel}
	if err := eng.Dispatch(EventUnroute, c); err == nil {
		t.Fatal("expected route busy error")
	}
}

func TestUnhandledTripleReturnsError(t *testing.T) {
	hooks := &recordingHooks{}
	eng := NewEngine(hooks, neverRevive{}, nil)
	c := &connstore.Connection{Kind: connstore.KindGroup, Routing: connstore.RoutingRoutedOndemand}
	if err := eng.Dispatch(EventRoute, c); err == nil {
		t.Fatal("expected error for unhandled (event, routing, kind) triple")
	}
}
