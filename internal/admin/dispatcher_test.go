package admin

import (
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel/mock"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
)

type fakeInitiator struct {
	initiateErr error
	terminateErr error
	initiated    []string
}

func (f *fakeInitiator) InitiateIKE(c *connstore.Connection, remoteHost string) error {
	f.initiated = append(f.initiated, c.Name)
	return f.initiateErr
}

func (f *fakeInitiator) TerminateIKE(c *connstore.Connection) error { return f.terminateErr }

func newTestDispatcher(t *testing.T) (*Dispatcher, *connstore.Connection) {
	t.Helper()
	connstore.ResetSerialsForTest()
	store := connstore.NewStore()
	local, _ := addr.Parse("192.0.2.1")
	remote, _ := addr.Parse("192.0.2.2")
	c := &connstore.Connection{
		Name:       "test-conn",
		Serial:     connstore.NextSerial(),
		IKEVersion: 2,
		Kind:       connstore.KindPermanent,
		Policy:     connstore.PolicyEncrypt | connstore.PolicyAuthenticate | connstore.PolicyTunnel,
		Local:      connstore.End{Host: local},
		Remote:     connstore.End{Host: remote},
	}
	if err := store.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	k := mock.New()
	hooks := &recordingHooks{k: k}
	eng := routing.NewEngine(hooks, nil, t.Logf)
	return NewDispatcher(store, eng, &fakeInitiator{}), c
}

// recordingHooks is a minimal routing.Hooks that always succeeds, enough
// to exercise the dispatcher's route/unroute/down paths without pulling
// in the full xfrm/kernel wiring.
type recordingHooks struct{ k *mock.Kernel }

func (h *recordingHooks) InstallTrap(c *connstore.Connection) error             { return nil }
func (h *recordingHooks) InstallNeverNegotiate(c *connstore.Connection) error   { return nil }
func (h *recordingHooks) InstallNegotiationShunt(c *connstore.Connection) error { return nil }
func (h *recordingHooks) InstallInboundSA(c *connstore.Connection) error        { return nil }
func (h *recordingHooks) InstallOutboundSA(c *connstore.Connection) error       { return nil }
func (h *recordingHooks) InstallFailureShunt(c *connstore.Connection) error     { return nil }
func (h *recordingHooks) RemovePolicy(c *connstore.Connection) error            { return nil }
func (h *recordingHooks) Route(c *connstore.Connection) error                  { return nil }
func (h *recordingHooks) Unroute(c *connstore.Connection) error                { return nil }
func (h *recordingHooks) Up(c *connstore.Connection) error                     { return nil }
func (h *recordingHooks) Down(c *connstore.Connection) error                   { return nil }

func TestDispatchUnknownConnection(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Verb: VerbUp, ConnName: "nope"})
	if resp.Code != RC_UNKNOWN_NAME {
		t.Fatalf("got %v want RC_UNKNOWN_NAME", resp.Code)
	}
}

func TestDispatchUpRequiresPeerOrRemoteHost(t *testing.T) {
	d, c := newTestDispatcher(t)
	c.Remote.Host = addr.IP{}
	resp := d.Dispatch(Request{Verb: VerbUp, ConnName: c.Name})
	if resp.Code != RC_NOPEERIP {
		t.Fatalf("got %v want RC_NOPEERIP", resp.Code)
	}
}

func TestDispatchUpSucceeds(t *testing.T) {
	d, c := newTestDispatcher(t)
	resp := d.Dispatch(Request{Verb: VerbUp, ConnName: c.Name})
	if resp.Code != RC_OK {
		t.Fatalf("got %v: %s", resp.Code, resp.Message)
	}
}

func TestDispatchDeleteUnknown(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Verb: VerbDelete, ConnName: "nope"})
	if resp.Code != RC_UNKNOWN_NAME {
		t.Fatalf("got %v want RC_UNKNOWN_NAME", resp.Code)
	}
}

func TestDispatchStatusAll(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Request{Verb: VerbStatus})
	if resp.Code != RC_OK {
		t.Fatalf("got %v", resp.Code)
	}
}

func TestDispatchAddDuplicateName(t *testing.T) {
	d, c := newTestDispatcher(t)
	resp := d.Dispatch(Request{Verb: VerbAdd, ConnName: c.Name})
	if resp.Code != RC_DUPNAME {
		t.Fatalf("got %v want RC_DUPNAME", resp.Code)
	}
}
