package ikev1

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"

	"github.com/msgboxio/log"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/ikev1/wire"
	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
	"github.com/PatrisiousHaddad/libreswan/internal/transport"
)

var errInvalidLength = errors.New("ikev1: payload declares impossible length")

// Sender is the write seam this session needs, identical in shape to
// internal/ikev2.Sender.
type Sender interface {
	WritePacket(b []byte, remoteAddr net.Addr) error
}

// Session is one IKEv1 Phase 1 (and its Phase 2 children)'s state,
// structured the same way internal/ikev2.Session is: current
// state-machine position, keying material, and the connection it was
// negotiated for, driving routing.Engine events on ESTABLISHED
// transitions.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn   Sender
	remote net.Addr

	engine *routing.Engine
	c      *connstore.Connection

	isInitiator bool
	state       State

	icookie, rcookie wire.Cookie

	suite *proposal.CipherSuite
	tkm   *Tkm
	psk   []byte

	localProposal      *protocol.SaProposal
	childLocalProposal *protocol.SaProposal

	msgIDOut uint32

	closed int32
}

// NewSession creates a Session bound to one connection and transport, in
// its initial half-open state, mirroring internal/ikev2.NewSession.
func NewSession(ctx context.Context, conn Sender, remote net.Addr, engine *routing.Engine, c *connstore.Connection, isInitiator bool, localProposal *protocol.SaProposal, psk []byte) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:           ctx,
		cancel:        cancel,
		conn:          conn,
		remote:        remote,
		engine:        engine,
		c:             c,
		isInitiator:   isInitiator,
		localProposal: localProposal,
		psk:           psk,
	}
	if isInitiator {
		s.state = MAIN_I0
	} else {
		s.state = MAIN_R0
	}
	return s
}

func randomCookie() (wire.Cookie, error) {
	var c wire.Cookie
	if _, err := rand.Read(c[:]); err != nil {
		return c, err
	}
	return c, nil
}

// Close tears the session down; mirrors internal/ikev2.Session.Close.
func (s *Session) Close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.cancel()
	}
}

func (s *Session) send(h *wire.Header, firstPayload wire.PayloadType, body []byte) error {
	return s.conn.WritePacket(encodeMessage(h, firstPayload, body), s.remote)
}

// InitiateMain sends Main Mode's first message: an SA payload offering
// this connection's configured Phase 1 proposal.
func (s *Session) InitiateMain() error {
	if !s.isInitiator || s.state != MAIN_I0 {
		return fmt.Errorf("ikev1: InitiateMain called from state %s", s.state)
	}
	var err error
	s.icookie, err = randomCookie()
	if err != nil {
		return err
	}
	saBody := (&protocol.SaPayload{Proposals: []*protocol.SaProposal{s.localProposal}}).Encode()
	h := buildHeader(s.icookie, wire.Cookie{}, wire.ExchangeIdentityProt, 0, 0)
	first, body := encodeChain([]outPayload{{wire.PayloadSA, saBody}}, wire.PayloadNone)
	if err := s.send(h, first, body); err != nil {
		return err
	}
	s.state = MAIN_I1
	return nil
}

// mainProcessor runs the action for one Main Mode round on either side:
// the payloads received this round, against whatever state the session
// was in when they arrived, produce the reply the next round requires.
// Called by HandleInbound once MatchTransition has already verified the
// payload shape; it must not itself advance s.state — the caller does
// that from the matched transition's To field.
func mainProcessor(s *Session, h *wire.Header, payloads map[wire.PayloadType][]byte) error {
	switch s.state {
	case MAIN_R0:
		sa := &protocol.SaPayload{}
		if err := sa.Decode(payloads[wire.PayloadSA]); err != nil || len(sa.Proposals) == 0 {
			return protocol.ERR_INVALID_SYNTAX
		}
		chosen, err := proposal.Negotiate([]*protocol.SaProposal{s.localProposal}, sa.Proposals)
		if err != nil {
			return err
		}
		suite, err := proposal.NewCipherSuite(chosen)
		if err != nil {
			return err
		}
		s.suite = suite
		s.icookie = h.ICookie
		s.rcookie, err = randomCookie()
		if err != nil {
			return err
		}
		respBody := (&protocol.SaPayload{Proposals: []*protocol.SaProposal{chosen.AsProposal(nil)}}).Encode()
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeIdentityProt, 0, 0)
		first, body := encodeChain([]outPayload{{wire.PayloadSA, respBody}}, wire.PayloadNone)
		return s.send(resp, first, body)

	case MAIN_R1:
		tkm, err := NewResponderTkm(s.suite, new(big.Int).SetBytes(payloads[wire.PayloadKE]), new(big.Int).SetBytes(payloads[wire.PayloadNonce]), s.psk)
		if err != nil {
			return err
		}
		s.tkm = tkm
		kBody := kePayloadBody(tkm.DhPublic)
		nBody := noncePayloadBody(tkm.Nr)
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeIdentityProt, 0, 0)
		first, body := encodeChain([]outPayload{{wire.PayloadKE, kBody}, {wire.PayloadNonce, nBody}}, wire.PayloadNone)
		if err := s.send(resp, first, body); err != nil {
			return err
		}
		s.tkm.DeriveKeys(s.icookie[:], s.rcookie[:])
		return nil

	case MAIN_I1:
		sa := &protocol.SaPayload{}
		if err := sa.Decode(payloads[wire.PayloadSA]); err != nil || len(sa.Proposals) == 0 {
			return protocol.ERR_INVALID_SYNTAX
		}
		chosen, err := proposal.Negotiate([]*protocol.SaProposal{s.localProposal}, sa.Proposals)
		if err != nil {
			return err
		}
		suite, err := proposal.NewCipherSuite(chosen)
		if err != nil {
			return err
		}
		s.suite = suite
		s.rcookie = h.RCookie
		tkm, err := NewInitiatorTkm(suite, s.psk)
		if err != nil {
			return err
		}
		s.tkm = tkm
		kBody := kePayloadBody(tkm.DhPublic)
		nBody := noncePayloadBody(tkm.Ni)
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeIdentityProt, 0, 0)
		first, body := encodeChain([]outPayload{{wire.PayloadKE, kBody}, {wire.PayloadNonce, nBody}}, wire.PayloadNone)
		return s.send(resp, first, body)

	case MAIN_I2:
		s.tkm.Nr = new(big.Int).SetBytes(payloads[wire.PayloadNonce])
		if err := s.tkm.DhGenerateKey(new(big.Int).SetBytes(payloads[wire.PayloadKE])); err != nil {
			return err
		}
		s.tkm.DeriveKeys(s.icookie[:], s.rcookie[:])
		idBody := idPayloadBody(1, 0, 0, []byte(s.c.Local.HostID))
		hashBody := hashPayloadBody(s.tkm.HashI(s.icookie[:], s.rcookie[:], nil, idBody))
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeIdentityProt, wire.FlagEncryption, 0)
		first, body := encodeChain([]outPayload{{wire.PayloadID, idBody}, {wire.PayloadHash, hashBody}}, wire.PayloadNone)
		return s.send(resp, first, body)

	case MAIN_I3:
		return s.EstablishIke()

	case MAIN_R2:
		// "authentication deliberately not checked" — see transitions.go.
		// The responder's own ID+HASH goes out immediately; unlike the
		// initiator it has no further message to wait for.
		idBody := idPayloadBody(1, 0, 0, []byte(s.c.Local.HostID))
		hashBody := hashPayloadBody(s.tkm.HashI(s.icookie[:], s.rcookie[:], nil, idBody))
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeIdentityProt, wire.FlagEncryption, 0)
		first, body := encodeChain([]outPayload{{wire.PayloadID, idBody}, {wire.PayloadHash, hashBody}}, wire.PayloadNone)
		if err := s.send(resp, first, body); err != nil {
			return err
		}
		return s.EstablishIke()
	}
	return fmt.Errorf("ikev1: no Main Mode action defined for state %s", s.state)
}

// quickProcessor runs Quick Mode's actions, including the two-message
// responder split: the first message installs the inbound Child SA and
// replies with this side's own SA/Nonce, the second (the initiator's
// HASH(3) confirm) installs the outbound SA — the same split
// internal/routing's UNROUTED_INBOUND / ROUTED_INBOUND_NEGOTIATION
// states exist to let the kernel policy layer track.
func quickProcessor(s *Session, h *wire.Header, payloads map[wire.PayloadType][]byte) error {
	switch s.state {
	case PHASE1_ESTABLISHED, XAUTH_ESTABLISHED:
		sa := &protocol.SaPayload{}
		if err := sa.Decode(payloads[wire.PayloadSA]); err != nil || len(sa.Proposals) == 0 {
			return protocol.ERR_INVALID_SYNTAX
		}
		if _, err := proposal.Negotiate([]*protocol.SaProposal{s.childLocalProposal}, sa.Proposals); err != nil {
			return err
		}
		if s.engine != nil {
			if err := s.engine.Dispatch(routing.EventEstablishInbound, s.c); err != nil {
				return err
			}
		}
		respBody := (&protocol.SaPayload{Proposals: []*protocol.SaProposal{s.childLocalProposal}}).Encode()
		nonceBody := payloads[wire.PayloadNonce]
		hashBody := hashPayloadBody(s.tkm.HashI(h.ICookie[:], h.RCookie[:], respBody, nonceBody))
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeQuick, wire.FlagEncryption, h.MessageID)
		first, body := encodeChain([]outPayload{{wire.PayloadHash, hashBody}, {wire.PayloadSA, respBody}, {wire.PayloadNonce, nonceBody}}, wire.PayloadNone)
		return s.send(resp, first, body)

	case QUICK_R0:
		if s.engine != nil {
			return s.engine.Dispatch(routing.EventEstablishOutbound, s.c)
		}
		return nil

	case QUICK_I0:
		if err := s.EstablishChild(); err != nil {
			return err
		}
		hashBody := hashPayloadBody(s.tkm.HashI(h.ICookie[:], h.RCookie[:], nil, nil))
		resp := buildHeader(s.icookie, s.rcookie, wire.ExchangeQuick, wire.FlagEncryption, h.MessageID)
		first, body := encodeChain([]outPayload{{wire.PayloadHash, hashBody}}, wire.PayloadNone)
		return s.send(resp, first, body)
	}
	return fmt.Errorf("ikev1: no Quick Mode action defined for state %s", s.state)
}

// EstablishIke marks Phase 1 established and dispatches the routing
// event, mirroring internal/ikev2.Session.EstablishIke.
func (s *Session) EstablishIke() error {
	s.state = PHASE1_ESTABLISHED
	if s.engine == nil {
		return nil
	}
	return s.engine.Dispatch(routing.EventEstablishIKE, s.c)
}

// EstablishChild mirrors internal/ikev2.Session.EstablishChild: dispatch
// inbound then outbound SA install once a Quick Mode exchange completes.
func (s *Session) EstablishChild() error {
	if s.engine == nil {
		return nil
	}
	if err := s.engine.Dispatch(routing.EventEstablishInbound, s.c); err != nil {
		return err
	}
	return s.engine.Dispatch(routing.EventEstablishOutbound, s.c)
}

// classify maps an ISAKMP exchange type to the Exchange MatchTransition
// keys on, mirroring the exchange half of internal/ikev2's classify. IKEv1
// carries no response-flag bit the way IKEv2's header does, so the
// RecvRole comes from role instead, which infers it from whether this
// session is the initiator or the responder.
func (s *Session) classify(h *wire.Header) Exchange {
	switch h.ExchangeType {
	case wire.ExchangeIdentityProt:
		return ExchangeMain
	case wire.ExchangeAggressive:
		return ExchangeAggressive
	case wire.ExchangeQuick:
		return ExchangeQuick
	case wire.ExchangeXauth:
		return ExchangeTransaction
	case wire.ExchangeInformational:
		return ExchangeInformational
	}
	return ExchangeInformational
}

func (s *Session) role() RecvRole {
	if s.isInitiator {
		return RoleResponse
	}
	return RoleRequest
}

// HandleInbound is the single entry point transport delivers datagrams
// to: decode the ISAKMP header and payload chain, verify the transition
// the current state/exchange/payload set matches, and dispatch.
func (s *Session) HandleInbound(raw []byte) error {
	h, err := wire.DecodeHeader(raw)
	if err != nil {
		return err
	}
	body := raw[wire.HeaderLen:]
	// Encrypted messages (Main Mode round 3 onward, Quick Mode, XAUTH,
	// Informational) would be decrypted here against s.tkm's SKEYID_e;
	// grounded on internal/ikev2.Tkm.VerifyDecrypt's shape but not wired
	// to a concrete CBC/IV chain in this pass — see DESIGN.md.
	payloads, order, err := parseChain(h.NextPayload, body)
	if err != nil {
		return err
	}
	exch := s.classify(h)
	t, ok := MatchTransition(s.state, exch, s.role(), order)
	if !ok {
		return fmt.Errorf("ikev1: no transition from %s for %s", s.state, exch)
	}
	if t.Processor != nil {
		if err := t.Processor(s, h, payloads); err != nil {
			return err
		}
	}
	s.state = t.To
	return nil
}

// Run pumps inbound packets from conn until the context is cancelled,
// mirroring internal/ikev2.Session.Run.
func (s *Session) Run(conn transport.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		b, remoteAddr, _, err := conn.ReadPacket()
		if err != nil {
			log.Errorf("ikev1: read: %v", err)
			return
		}
		s.remote = remoteAddr
		if err := s.HandleInbound(b); err != nil {
			log.Errorf("ikev1: handle: %v", err)
		}
	}
}
