package engine

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel/mock"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
	"github.com/PatrisiousHaddad/libreswan/internal/secrets"
)

// fakeConn is a transport.Conn that never produces packets on its own;
// tests drive dispatchInbound directly instead of through Run.
type fakeConn struct {
	written []writtenPacket
}

type writtenPacket struct {
	b    []byte
	addr net.Addr
}

func (f *fakeConn) ReadPacket() ([]byte, net.Addr, net.IP, error) {
	return nil, nil, nil, errors.New("fakeConn: no packets")
}
func (f *fakeConn) WritePacket(b []byte, remoteAddr net.Addr) error {
	f.written = append(f.written, writtenPacket{b: b, addr: remoteAddr})
	return nil
}
func (f *fakeConn) LocalAddr() net.Addr { return &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 500} }
func (f *fakeConn) Close() error        { return nil }

type noopHooks struct{}

func (noopHooks) InstallTrap(c *connstore.Connection) error             { return nil }
func (noopHooks) InstallNeverNegotiate(c *connstore.Connection) error   { return nil }
func (noopHooks) InstallNegotiationShunt(c *connstore.Connection) error { return nil }
func (noopHooks) InstallInboundSA(c *connstore.Connection) error        { return nil }
func (noopHooks) InstallOutboundSA(c *connstore.Connection) error       { return nil }
func (noopHooks) InstallFailureShunt(c *connstore.Connection) error     { return nil }
func (noopHooks) RemovePolicy(c *connstore.Connection) error            { return nil }
func (noopHooks) Route(c *connstore.Connection) error                  { return nil }
func (noopHooks) Unroute(c *connstore.Connection) error                { return nil }
func (noopHooks) Up(c *connstore.Connection) error                     { return nil }
func (noopHooks) Down(c *connstore.Connection) error                   { return nil }

func newTestDaemon(t *testing.T) (*Daemon, *connstore.Connection) {
	t.Helper()
	connstore.ResetSerialsForTest()
	store := connstore.NewStore()
	local, _ := addr.Parse("192.0.2.1")
	c := &connstore.Connection{
		Name:       "engine-test",
		Serial:     connstore.NextSerial(),
		IKEVersion: 1,
		Kind:       connstore.KindPermanent,
		Local:      connstore.End{Host: local, HostID: "@left", Port: 500, IKEPort: 500},
		Remote:     connstore.End{HostID: "@right", Port: 500, IKEPort: 500},
	}
	if err := store.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	eng := routing.NewEngine(noopHooks{}, nil, t.Logf)
	secretStore := secrets.NewStore()
	secretStore.Add("@left", "@right", secrets.Secret{Kind: secrets.KindPSK, PSK: []byte("testpsk")})

	d := New(store, eng, mock.New(), secretStore, &fakeConn{}, local)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, c
}

func TestDispatchInboundUnknownPeerNoMatch(t *testing.T) {
	d, _ := newTestDaemon(t)
	remote := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 500}
	b := make([]byte, 28)
	b[17] = 1 << 4 // IKEv1
	if err := d.dispatchInbound(b, remote); err == nil {
		t.Fatal("expected error for unmatched peer")
	}
}

func TestDispatchInboundUnsupportedVersion(t *testing.T) {
	d, _ := newTestDaemon(t)
	remote := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 500}
	b := make([]byte, 28)
	b[17] = 9 << 4
	if err := d.dispatchInbound(b, remote); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestDispatchInboundTooShort(t *testing.T) {
	d, _ := newTestDaemon(t)
	remote := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 500}
	if err := d.dispatchInbound([]byte{1, 2, 3}, remote); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestInitiateIKERequiresPeerAddress(t *testing.T) {
	d, c := newTestDaemon(t)
	if err := d.InitiateIKE(c, ""); err == nil {
		t.Fatal("expected error with no peer address known")
	}
}

func TestTerminateIKENoSessionIsNotError(t *testing.T) {
	d, c := newTestDaemon(t)
	if err := d.TerminateIKE(c); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestPskForMissingSecretsProvider(t *testing.T) {
	d, c := newTestDaemon(t)
	d.Secrets = nil
	if _, err := d.pskFor(c); err == nil {
		t.Fatal("expected error with nil Secrets provider")
	}
}

func TestPskForResolvesFromStore(t *testing.T) {
	d, c := newTestDaemon(t)
	psk, err := d.pskFor(c)
	if err != nil {
		t.Fatalf("pskFor: %v", err)
	}
	if string(psk) != "testpsk" {
		t.Fatalf("got %q want testpsk", psk)
	}
}
