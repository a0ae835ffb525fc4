// Package engine implements §5's single-threaded event loop: the one
// goroutine allowed to mutate the connection index, host-pair index, and
// ipsec-interface list, generalized from the teacher's
// single-goroutine-per-IKE-SA, channel-driven event loop into a daemon
// that owns one shared transport.Conn and fans inbound packets out to
// per-peer IKEv1/IKEv2 sessions.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/msgboxio/log"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/ikev1"
	"github.com/PatrisiousHaddad/libreswan/internal/ikev2"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel"
	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
	"github.com/PatrisiousHaddad/libreswan/internal/secrets"
	"github.com/PatrisiousHaddad/libreswan/internal/transport"
)

// session is the shape internal/ikev1.Session and internal/ikev2.Session
// both present; the daemon drives either through this seam without
// knowing which IKE version it negotiated.
type session interface {
	HandleInbound(raw []byte) error
	Close()
}

type sessionEntry struct {
	handle   session
	remote   string
	serial   connstore.Serial
}

// Daemon owns the event-loop goroutine, the shared packet transport, and
// every live IKE session. Run is the only goroutine that calls
// dispatchInbound; InitiateIKE and TerminateIKE are also called from the
// admin dispatcher, and InitiateIKE from RunTimers' ondemand revival, so
// the session maps they share (byRemote, bySerial) are guarded by mu.
type Daemon struct {
	Store   *connstore.Store
	Routing *routing.Engine
	Kernel  kernel.Kernel
	Secrets secrets.Provider
	Conn    transport.Conn
	LocalIP addr.IP

	IKEv1Proposal  *protocol.SaProposal
	IKEv2Proposals []*protocol.SaProposal

	mu         sync.Mutex
	byRemote   map[string]*sessionEntry
	bySerial   map[connstore.Serial]*sessionEntry

	ctx    context.Context
	cancel context.CancelFunc
}

func New(store *connstore.Store, routingEngine *routing.Engine, kern kernel.Kernel, secretsProvider secrets.Provider, conn transport.Conn, localIP addr.IP) *Daemon {
	return &Daemon{
		Store:    store,
		Routing:  routingEngine,
		Kernel:   kern,
		Secrets:  secretsProvider,
		Conn:     conn,
		LocalIP:  localIP,
		byRemote: make(map[string]*sessionEntry),
		bySerial: make(map[connstore.Serial]*sessionEntry),
	}
}

// Run pumps inbound packets until ctx is canceled. It is the only
// intended caller of dispatchInbound.
func (d *Daemon) Run(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	defer d.cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		b, remoteAddr, _, err := d.Conn.ReadPacket()
		if err != nil {
			return err
		}
		if err := d.dispatchInbound(b, remoteAddr); err != nil {
			log.Warningf("engine: %v", err)
		}
	}
}

// Shutdown closes every live session and cancels the event loop.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.byRemote {
		e.handle.Close()
	}
	d.byRemote = make(map[string]*sessionEntry)
	d.bySerial = make(map[connstore.Serial]*sessionEntry)
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) register(e *sessionEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byRemote[e.remote] = e
	d.bySerial[e.serial] = e
}

func (d *Daemon) lookupByRemote(key string) (*sessionEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byRemote[key]
	return e, ok
}

// dispatchInbound demultiplexes one datagram to its owning session,
// instantiating a new responder session on the first packet from an
// unrecognized peer. The IKE major-version byte sits at the same offset
// (17, high nibble) in both the IKEv1 and IKEv2 fixed headers, so the
// version can be read before either wire codec is invoked.
func (d *Daemon) dispatchInbound(b []byte, remoteAddr net.Addr) error {
	const versionOffset = 17
	if len(b) <= versionOffset {
		return fmt.Errorf("packet from %s too short to classify", remoteAddr)
	}
	key := remoteAddr.String()
	if e, ok := d.lookupByRemote(key); ok {
		return e.handle.HandleInbound(b)
	}

	major := b[versionOffset] >> 4
	remoteIP, err := addrFromNetAddr(remoteAddr)
	if err != nil {
		return err
	}

	switch major {
	case 1:
		c := connstore.FindResponderConnection(d.Store, d.LocalIP, remoteIP,
			connstore.ResponderMatchContext{IKEVersion: 1}, nil)
		if c == nil {
			return fmt.Errorf("no connection matches IKEv1 initial packet from %s", remoteAddr)
		}
		psk, err := d.pskFor(c)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		s := ikev1.NewSession(d.ctx, d.Conn, remoteAddr, d.Routing, c, false, d.IKEv1Proposal, psk)
		d.register(&sessionEntry{handle: s, remote: key, serial: c.Serial})
		return s.HandleInbound(b)
	case 2:
		c := connstore.FindResponderConnection(d.Store, d.LocalIP, remoteIP,
			connstore.ResponderMatchContext{IKEVersion: 2}, nil)
		if c == nil {
			return fmt.Errorf("no connection matches IKEv2 initial packet from %s", remoteAddr)
		}
		s := ikev2.NewSession(d.ctx, d.Conn, remoteAddr, d.Routing, c, false, d.IKEv2Proposals)
		d.register(&sessionEntry{handle: s, remote: key, serial: c.Serial})
		return s.HandleInbound(b)
	default:
		return fmt.Errorf("unsupported IKE major version %d from %s", major, remoteAddr)
	}
}

func (d *Daemon) pskFor(c *connstore.Connection) ([]byte, error) {
	if d.Secrets == nil {
		return nil, fmt.Errorf("no secrets provider configured")
	}
	s, err := d.Secrets.Lookup(c.Local.HostID, c.Remote.HostID)
	if err != nil {
		return nil, err
	}
	return s.PSK, nil
}

func addrFromNetAddr(a net.Addr) (addr.IP, error) {
	udp, ok := a.(*net.UDPAddr)
	if !ok {
		return addr.IP{}, fmt.Errorf("engine: unsupported remote address type %T", a)
	}
	return addr.FromNetIP(udp.IP)
}

// InitiateIKE implements admin.Initiator: builds and registers a new
// initiator session for c, toward remoteHost if given (`initiate
// --remote-host`) or c.Remote.Host otherwise, and sends its first message.
func (d *Daemon) InitiateIKE(c *connstore.Connection, remoteHost string) error {
	remoteIP := c.Remote.Host
	if remoteHost != "" {
		ip, err := addr.Parse(remoteHost)
		if err != nil {
			return fmt.Errorf("remote-host %q: %w", remoteHost, err)
		}
		remoteIP = ip
		c.Remote.Host = ip
	}
	if !remoteIP.IsSet() {
		return fmt.Errorf("no peer address known")
	}
	port := c.Remote.IKEPort
	if port == 0 {
		port = 500
	}
	remoteAddr := &net.UDPAddr{IP: net.IP(remoteIP.Raw()), Port: int(port)}
	key := remoteAddr.String()

	var s session
	if c.IKEVersion == 1 {
		psk, err := d.pskFor(c)
		if err != nil {
			return err
		}
		sess := ikev1.NewSession(d.ctx, d.Conn, remoteAddr, d.Routing, c, true, d.IKEv1Proposal, psk)
		if err := sess.InitiateMain(); err != nil {
			return err
		}
		s = sess
	} else {
		sess := ikev2.NewSession(d.ctx, d.Conn, remoteAddr, d.Routing, c, true, d.IKEv2Proposals)
		if err := sess.InitiateIkeSaInit(); err != nil {
			return err
		}
		s = sess
	}
	d.register(&sessionEntry{handle: s, remote: key, serial: c.Serial})
	return nil
}

// TerminateIKE implements admin.Initiator: closes the live session bound
// to c, if any. Closing with no session registered is not an error — an
// admin `down`/`terminate` on a connection that never initiated still
// proceeds to the routing-engine teardown the caller dispatches next.
func (d *Daemon) TerminateIKE(c *connstore.Connection) error {
	d.mu.Lock()
	e, ok := d.bySerial[c.Serial]
	if ok {
		delete(d.bySerial, c.Serial)
		delete(d.byRemote, e.remote)
	}
	d.mu.Unlock()
	if ok {
		e.handle.Close()
	}
	return nil
}
