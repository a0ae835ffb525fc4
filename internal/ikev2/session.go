package ikev2

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"

	"github.com/msgboxio/log"

	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
	"github.com/PatrisiousHaddad/libreswan/internal/transport"
)

// Sender is the minimal write seam a Session needs; satisfied by
// transport.Conn, and by a fake in tests.
type Sender interface {
	WritePacket(b []byte, remoteAddr net.Addr) error
}

// Session is one IKEv2 SA's state: current state-machine position, keying
// material, and the connection it was negotiated for. Its HandleInbound
// turns incoming wire messages into transitions of the table-driven state
// machine of states.go/transitions.go; EstablishIke and EstablishChild,
// which turn establishment into routing.Engine events so kernel policy
// gets programmed, are separate methods that HandleInbound does not call.
// Adapted from the teacher's session.go.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn   Sender
	remote net.Addr

	engine *routing.Engine
	c      *connstore.Connection

	isInitiator bool
	state       State

	suite *proposal.CipherSuite
	tkm   *Tkm

	spiI, spiR protocol.Spi
	msgIDOut   uint32
	msgIDIn    uint32

	localProposals []*protocol.SaProposal

	childSpiI, childSpiR []byte

	closed int32
}

// NewSession creates a Session bound to one connection and transport, in
// its initial half-open state.
func NewSession(ctx context.Context, conn Sender, remote net.Addr, engine *routing.Engine, c *connstore.Connection, isInitiator bool, localProposals []*protocol.SaProposal) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:            ctx,
		cancel:         cancel,
		conn:           conn,
		remote:         remote,
		engine:         engine,
		c:              c,
		isInitiator:    isInitiator,
		localProposals: localProposals,
	}
	if isInitiator {
		s.state = IKE_SA_INIT_I0
	} else {
		s.state = IKE_SA_INIT_R0
	}
	return s
}

func randomSpi() (protocol.Spi, error) {
	var s protocol.Spi
	if _, err := rand.Read(s[:]); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Session) nextMsgID() uint32 {
	id := s.msgIDOut
	s.msgIDOut++
	return id
}

// Close tears the session down and cancels its context; callers should
// have already dispatched EventTeardownIKE through the routing engine.
func (s *Session) Close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.cancel()
	}
}

func (s *Session) send(m *protocol.Message) error {
	b, err := m.Encode(s.tkm)
	if err != nil {
		return err
	}
	return s.conn.WritePacket(b, s.remote)
}

// InitiateIkeSaInit builds and sends the first IKE_SA_INIT request.
func (s *Session) InitiateIkeSaInit() error {
	if !s.isInitiator || s.state != IKE_SA_INIT_I0 {
		return fmt.Errorf("ikev2: InitiateIkeSaInit called from state %s", s.state)
	}
	var err error
	s.spiI, err = randomSpi()
	if err != nil {
		return err
	}
	dhID := protocol.DhTransformId(0)
	for _, p := range s.localProposals {
		for _, tr := range p.Transforms {
			if tr.Type == protocol.TRANSFORM_TYPE_DH {
				dhID = protocol.DhTransformId(tr.TransformId)
			}
		}
	}
	dhGroup, err := proposal.LookupDhGroup(dhID)
	if err != nil {
		return err
	}
	priv, err := dhGroup.GeneratePrivate()
	if err != nil {
		return err
	}
	public := dhGroup.Public(priv)

	n, err := rand.Prime(rand.Reader, 256)
	if err != nil {
		return err
	}

	s.tkm = &Tkm{suite: &proposal.CipherSuite{Dh: dhGroup}, isInitiator: true, Ni: n, DhPrivate: priv, DhPublic: public}

	m := BuildIkeSaInit(s.spiI, s.localProposals, dhID, public, n, s.nextMsgID())
	if err := s.send(m); err != nil {
		return err
	}
	s.state = IKE_SA_INIT_I
	return nil
}

// HandleIkeSaInitRequest processes an inbound IKE_SA_INIT request as
// responder, negotiating a suite and replying with SA/KE/Nonce or a
// notification error.
func (s *Session) HandleIkeSaInitRequest(m *protocol.Message) error {
	if s.isInitiator {
		return fmt.Errorf("ikev2: initiator received IKE_SA_INIT request")
	}
	sa, _ := m.Payloads.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	ke, _ := m.Payloads.Get(protocol.PayloadTypeKE).(*protocol.KePayload)
	nonce, _ := m.Payloads.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)
	if sa == nil || ke == nil || nonce == nil {
		return protocol.ERR_INVALID_SYNTAX
	}

	s.spiI = m.IkeHeader.SpiI
	suite, chosenProposal, err := NegotiateAndBuildSuite(s.localProposals, sa.Proposals, nil)
	if err != nil {
		return s.send(NoProposalChosen(s.spiI, m.IkeHeader.MsgId))
	}
	wantDh := dhTransformOf([]*protocol.SaProposal{chosenProposal})
	if suite.Dh == nil || ke.DhTransformId != wantDh {
		return s.send(InvalidKeChallenge(s.spiI, wantDh, m.IkeHeader.MsgId))
	}

	s.spiR, err = randomSpi()
	if err != nil {
		return err
	}
	tkm, err := NewResponderTkm(suite, ke.KeyData, nonce.Nonce)
	if err != nil {
		return err
	}
	s.tkm = tkm
	s.suite = suite
	s.tkm.DeriveKeys(s.spiI[:], s.spiR[:])

	resp := BuildIkeSaInitResponse(s.spiI, s.spiR, []*protocol.SaProposal{chosenProposal}, wantDh, tkm.DhPublic, tkm.Nr, m.IkeHeader.MsgId)
	if err := s.send(resp); err != nil {
		return err
	}
	s.state = IKE_SA_INIT_R
	s.msgIDIn = m.IkeHeader.MsgId + 1
	return nil
}

func dhTransformOf(proposals []*protocol.SaProposal) protocol.DhTransformId {
	for _, p := range proposals {
		for _, tr := range p.Transforms {
			if tr.Type == protocol.TRANSFORM_TYPE_DH {
				return protocol.DhTransformId(tr.TransformId)
			}
		}
	}
	return 0
}

// HandleIkeSaInitResponse processes the responder's IKE_SA_INIT answer as
// initiator: either a retry-triggering notification, or SA/KE/Nonce that
// completes key derivation.
func (s *Session) HandleIkeSaInitResponse(m *protocol.Message) error {
	if !s.isInitiator {
		return fmt.Errorf("ikev2: responder received IKE_SA_INIT response")
	}
	if n, ok := m.Payloads.Get(protocol.PayloadTypeN).(*protocol.NotifyPayload); ok {
		switch n.NotificationType {
		case protocol.COOKIE, protocol.INVALID_KE_PAYLOAD, protocol.REDIRECT:
			s.state = IKE_SA_INIT_I0
			return fmt.Errorf("ikev2: retrying IKE_SA_INIT: %s", n.NotificationType)
		case protocol.NO_PROPOSAL_CHOSEN:
			return protocol.ERR_NO_PROPOSAL_CHOSEN
		}
	}
	sa, _ := m.Payloads.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	ke, _ := m.Payloads.Get(protocol.PayloadTypeKE).(*protocol.KePayload)
	nonce, _ := m.Payloads.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)
	if sa == nil || ke == nil || nonce == nil || len(sa.Proposals) == 0 {
		return protocol.ERR_INVALID_SYNTAX
	}
	suite, err := proposal.NewCipherSuite(&proposal.Chosen{
		Local:      s.localProposals[0],
		Remote:     sa.Proposals[0],
		Transforms: transformMapOf(sa.Proposals[0]),
	})
	if err != nil {
		return err
	}
	s.suite = suite
	s.tkm.suite = suite
	s.tkm.Nr = nonce.Nonce
	s.spiR = m.IkeHeader.SpiR
	if err := s.tkm.DhGenerateKey(ke.KeyData); err != nil {
		return err
	}
	s.tkm.DeriveKeys(s.spiI[:], s.spiR[:])
	s.state = IKE_SA_INIT_IR
	return nil
}

func transformMapOf(p *protocol.SaProposal) map[protocol.TransformType]*protocol.SaTransform {
	out := map[protocol.TransformType]*protocol.SaTransform{}
	for _, tr := range p.Transforms {
		out[tr.Type] = tr
	}
	return out
}

// ChildSaKind disambiguates which of §4.5's three CREATE_CHILD_SA flavors an
// initiator-triggered request is: a brand new Child SA, a rekeyed Child SA,
// or a rekeyed IKE SA.
type ChildSaKind uint8

const (
	ChildSaNew ChildSaKind = iota
	ChildSaRekeyChild
	ChildSaRekeyIke
)

// InitiateCreateChildSa builds and sends a CREATE_CHILD_SA request and
// advances to the matching *_I1 waiting state, per §4.5's disambiguation:
// new-Child and rekey-Child both carry TSi/TSr (rekey-Child additionally
// carries N(REKEY_SA) naming the SA it replaces), rekey-IKE carries none.
// local/remote and rekeyProtoID/rekeyOldSpi are only meaningful for
// ChildSaNew/ChildSaRekeyChild; ChildSaRekeyIke ignores them.
func (s *Session) InitiateCreateChildSa(kind ChildSaKind, rekeyProtoID protocol.ProtocolId, rekeyOldSpi []byte, local, remote connstore.End) error {
	if s.state != ESTABLISHED_IKE_SA {
		return fmt.Errorf("ikev2: InitiateCreateChildSa called from state %s", s.state)
	}
	n, err := rand.Prime(rand.Reader, 256)
	if err != nil {
		return err
	}

	var m *protocol.Message
	switch kind {
	case ChildSaNew:
		m, err = BuildCreateChildSa(s.spiI, s.spiR, s.nextMsgID(), s.localProposals, 0, nil, n, 0, nil, local, remote, 0)
	case ChildSaRekeyChild:
		m, err = BuildCreateChildSa(s.spiI, s.spiR, s.nextMsgID(), s.localProposals, rekeyProtoID, rekeyOldSpi, n, 0, nil, local, remote, 0)
	case ChildSaRekeyIke:
		dhID := dhTransformOf(s.localProposals)
		var dhGroup proposal.DhGroup
		dhGroup, err = proposal.LookupDhGroup(dhID)
		if err != nil {
			return err
		}
		var priv *big.Int
		priv, err = dhGroup.GeneratePrivate()
		if err != nil {
			return err
		}
		m = BuildRekeyIkeSa(s.spiI, s.spiR, s.nextMsgID(), s.localProposals, n, dhID, dhGroup.Public(priv), 0)
	default:
		return fmt.Errorf("ikev2: unknown child SA kind %d", kind)
	}
	if err != nil {
		return err
	}
	if err := s.send(m); err != nil {
		return err
	}
	switch kind {
	case ChildSaNew:
		s.state = NEW_CHILD_I1
	case ChildSaRekeyChild:
		s.state = REKEY_CHILD_I1
	case ChildSaRekeyIke:
		s.state = REKEY_IKE_I1
	}
	return nil
}

// EstablishIke dispatches the routing-engine event that programs the
// (non-shunt) kernel state once IKE_AUTH completes, per §4.4.
func (s *Session) EstablishIke() error {
	s.state = ESTABLISHED_IKE_SA
	if s.engine == nil {
		return nil
	}
	return s.engine.Dispatch(routing.EventEstablishIKE, s.c)
}

// EstablishChild dispatches the inbound/outbound SA install events once a
// Child SA's KEYMAT is derived.
func (s *Session) EstablishChild() error {
	if s.engine == nil {
		return nil
	}
	if err := s.engine.Dispatch(routing.EventEstablishInbound, s.c); err != nil {
		return err
	}
	return s.engine.Dispatch(routing.EventEstablishOutbound, s.c)
}

// HandleInbound is the single entry point transport delivers packets to:
// decode, look up the transition the current state/exchange/payload set
// matches, and run it.
func (s *Session) HandleInbound(raw []byte) error {
	m := &protocol.Message{}
	if err := m.DecodeHeader(raw); err != nil {
		return err
	}
	if err := m.DecodePayloads(raw, s.tkm); err != nil {
		return err
	}

	exch, role, err := classify(m)
	if err != nil {
		return err
	}
	present := make([]protocol.PayloadType, 0, len(m.Payloads.Array))
	var notifs []protocol.NotificationType
	for _, p := range m.Payloads.Array {
		present = append(present, p.Type())
		if n, ok := p.(*protocol.NotifyPayload); ok {
			notifs = append(notifs, n.NotificationType)
		}
	}
	t, ok := MatchTransition(s.state, exch, role, present, notifs)
	if !ok {
		return fmt.Errorf("ikev2: no transition from %s for %s/%v", s.state, exch, role)
	}
	if t.Processor != nil {
		if err := t.Processor(s, m); err != nil {
			return err
		}
	}
	s.state = t.To
	return nil
}

func classify(m *protocol.Message) (Exchange, RecvRole, error) {
	var exch Exchange
	switch m.IkeHeader.ExchangeType {
	case protocol.IKE_SA_INIT:
		exch = ExchangeIkeSaInit
	case protocol.IKE_AUTH:
		exch = ExchangeIkeAuth
	case protocol.CREATE_CHILD_SA:
		exch = ExchangeCreateChildSa
	case protocol.INFORMATIONAL:
		exch = ExchangeInformational
	default:
		return 0, 0, fmt.Errorf("ikev2: unsupported exchange type %d", m.IkeHeader.ExchangeType)
	}
	role := RoleRequest
	if m.IkeHeader.Flags.IsResponse() {
		role = RoleResponse
	}
	return exch, role, nil
}

// Run pumps inbound packets from conn until the context is cancelled,
// adapted from the teacher's session.go event loop but collapsed onto a
// single transport.Conn (the engine owns fan-out to per-peer sessions).
func (s *Session) Run(conn transport.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		b, remoteAddr, _, err := conn.ReadPacket()
		if err != nil {
			log.Errorf("ikev2: read: %v", err)
			return
		}
		s.remote = remoteAddr
		if err := s.HandleInbound(b); err != nil {
			log.Errorf("ikev2: handle: %v", err)
		}
	}
}
