package ikev2

import (
	"fmt"
	"math/big"
	"net"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
)

// saPayload renders a single negotiated/offered proposal list into a wire
// SA payload, chained to nextType.
func saPayload(proposals []*protocol.SaProposal, nextType protocol.PayloadType) *protocol.SaPayload {
	return &protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{NextPayload: nextType},
		Proposals:     proposals,
	}
}

// kePayload renders a DH public value into a wire KE payload.
func kePayload(dhID protocol.DhTransformId, public *big.Int, nextType protocol.PayloadType) *protocol.KePayload {
	return &protocol.KePayload{
		PayloadHeader: &protocol.PayloadHeader{NextPayload: nextType},
		DhTransformId: dhID,
		KeyData:       public,
	}
}

// noncePayload renders a nonce into a wire Nonce payload.
func noncePayload(n *big.Int, nextType protocol.PayloadType) *protocol.NoncePayload {
	return &protocol.NoncePayload{
		PayloadHeader: &protocol.PayloadHeader{NextPayload: nextType},
		Nonce:         n,
	}
}

// selectorToTS converts one configured selector into a wire traffic
// selector, computing the address range's low/high bounds the same way
// lib/libswan/ip_address.c's address_blit does: Keep the routing-prefix
// bytes, Clear the host bits for the low end and Set them for the high end.
func selectorToTS(s addr.Selector) (*protocol.Selector, error) {
	lo, err := addr.AddressBlit(s.Base, s.PrefixLength, addr.Keep, addr.Clear)
	if err != nil {
		return nil, err
	}
	hi, err := addr.AddressBlit(s.Base, s.PrefixLength, addr.Keep, addr.Set)
	if err != nil {
		return nil, err
	}
	stype := protocol.TS_IPV4_ADDR_RANGE
	if s.Base.Version() == addr.V6 {
		stype = protocol.TS_IPV6_ADDR_RANGE
	}
	portLo, portHi := s.PortLo, s.PortHi
	if portHi == 0 {
		portHi = 0xffff
	}
	return &protocol.Selector{
		Type:         stype,
		IpProtocolId: s.Protocol,
		StartPort:    portLo,
		Endport:      portHi,
		StartAddress: net.IP(lo.Raw()),
		EndAddress:   net.IP(hi.Raw()),
	}, nil
}

// trafficSelectorPayload renders a connection End's configured selectors
// into a TSi/TSr payload; an End with no explicit selectors falls back to
// its single host address, host-to-host style.
func trafficSelectorPayload(t protocol.PayloadType, e connstore.End, nextType protocol.PayloadType) (*protocol.TrafficSelectorPayload, error) {
	p := protocol.NewTrafficSelectorPayload(t)
	p.PayloadHeader.NextPayload = nextType
	selectors := e.Selectors
	if len(selectors) == 0 {
		selectors = []addr.Selector{{Base: e.Host, PrefixLength: 32}}
		if e.Host.Version() == addr.V6 {
			selectors[0].PrefixLength = 128
		}
	}
	for _, s := range selectors {
		ts, err := selectorToTS(s)
		if err != nil {
			return nil, err
		}
		p.Selectors = append(p.Selectors, ts)
	}
	return p, nil
}

// BuildIkeSaInit constructs the initiator's first IKE_SA_INIT message:
// SA, KE, Nonce, chained in that order and terminated.
func BuildIkeSaInit(spiI protocol.Spi, proposals []*protocol.SaProposal, dhID protocol.DhTransformId, dhPublic *big.Int, nonce *big.Int, msgID uint32) *protocol.Message {
	sa := saPayload(proposals, protocol.PayloadTypeKE)
	ke := kePayload(dhID, dhPublic, protocol.PayloadTypeNonce)
	no := noncePayload(nonce, protocol.PayloadTypeNone)

	payloads := protocol.NewPayloads()
	payloads.Add(sa)
	payloads.Add(ke)
	payloads.Add(no)

	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			NextPayload:  protocol.PayloadTypeSA,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.IKE_SA_INIT,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}
}

// BuildIkeSaInitResponse mirrors BuildIkeSaInit for the responder side,
// carrying both SPIs and the RESPONSE flag.
func BuildIkeSaInitResponse(spiI, spiR protocol.Spi, proposals []*protocol.SaProposal, dhID protocol.DhTransformId, dhPublic *big.Int, nonce *big.Int, msgID uint32) *protocol.Message {
	m := BuildIkeSaInit(spiI, proposals, dhID, dhPublic, nonce, msgID)
	m.IkeHeader.SpiR = spiR
	m.IkeHeader.Flags = protocol.RESPONSE
	return m
}

// notifyOnlyResponse builds an unencrypted IKE_SA_INIT response carrying a
// single notification, for the cookie/INVALID_KE_PAYLOAD/NO_PROPOSAL_CHOSEN
// error paths that must be answered before any keying material exists.
func notifyOnlyResponse(spiI protocol.Spi, nt protocol.NotificationType, data []byte, msgID uint32) *protocol.Message {
	payloads := protocol.NewPayloads()
	payloads.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{NextPayload: protocol.PayloadTypeNone},
		ProtocolId:       protocol.IKE,
		NotificationType: nt,
		Data:             data,
	})
	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			NextPayload:  protocol.PayloadTypeN,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.IKE_SA_INIT,
			Flags:        protocol.RESPONSE,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}
}

// CookieChallenge answers an unthrottled IKE_SA_INIT request with a COOKIE
// notification, per §4.5's anti-DDoS retry transition.
func CookieChallenge(spiI protocol.Spi, cookie []byte, msgID uint32) *protocol.Message {
	return notifyOnlyResponse(spiI, protocol.COOKIE, cookie, msgID)
}

// InvalidKeChallenge answers a mismatched DH group choice with the group
// this side actually configured, 2 bytes big-endian per RFC 7296 §3.10.1.
func InvalidKeChallenge(spiI protocol.Spi, wantGroup protocol.DhTransformId, msgID uint32) *protocol.Message {
	buf := []byte{byte(wantGroup >> 8), byte(wantGroup)}
	return notifyOnlyResponse(spiI, protocol.INVALID_KE_PAYLOAD, buf, msgID)
}

// NoProposalChosen answers with NO_PROPOSAL_CHOSEN when negotiation fails.
func NoProposalChosen(spiI protocol.Spi, msgID uint32) *protocol.Message {
	return notifyOnlyResponse(spiI, protocol.NO_PROPOSAL_CHOSEN, nil, msgID)
}

// idPayload renders an identity into a wire IDi/IDr payload.
func idPayload(t protocol.PayloadType, idType protocol.IdType, data []byte, nextType protocol.PayloadType) *protocol.IdPayload {
	p := protocol.NewIdPayload(t, idType, data)
	p.PayloadHeader.NextPayload = nextType
	return p
}

// authPayload renders a computed AUTH value into a wire AUTH payload.
func authPayload(method protocol.AuthMethod, data []byte, nextType protocol.PayloadType) *protocol.AuthPayload {
	return &protocol.AuthPayload{
		PayloadHeader: &protocol.PayloadHeader{NextPayload: nextType},
		Method:        method,
		Data:          data,
	}
}

// BuildIkeAuth constructs the encrypted IKE_AUTH request/response body:
// IDi or IDr (idPayloadType picks which), AUTH, and the Child SA's
// SA/TSi/TSr. The caller sets IkeHeader.Flags for initiator vs responder.
func BuildIkeAuth(spiI, spiR protocol.Spi, msgID uint32, idPayloadType protocol.PayloadType, idType protocol.IdType, idData []byte, authMethod protocol.AuthMethod, authData []byte, childProposals []*protocol.SaProposal, local, remote connstore.End) (*protocol.Message, error) {
	tsI, tsR := local, remote
	payloads := protocol.NewPayloads()

	id := idPayload(idPayloadType, idType, idData, protocol.PayloadTypeAUTH)
	payloads.Add(id)

	auth := authPayload(authMethod, authData, protocol.PayloadTypeSA)
	payloads.Add(auth)

	sa := saPayload(childProposals, protocol.PayloadTypeTSi)
	payloads.Add(sa)

	tsi, err := trafficSelectorPayload(protocol.PayloadTypeTSi, tsI, protocol.PayloadTypeTSr)
	if err != nil {
		return nil, err
	}
	payloads.Add(tsi)

	tsr, err := trafficSelectorPayload(protocol.PayloadTypeTSr, tsR, protocol.PayloadTypeNone)
	if err != nil {
		return nil, err
	}
	payloads.Add(tsr)

	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			NextPayload:  protocol.PayloadTypeSK,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.IKE_AUTH,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}, nil
}

// BuildInformational constructs an encrypted empty (liveness) or Delete
// INFORMATIONAL message.
func BuildInformational(spiI, spiR protocol.Spi, msgID uint32, protoID protocol.ProtocolId, spis [][]byte, flags protocol.IkeFlags) *protocol.Message {
	payloads := protocol.NewPayloads()
	if len(spis) > 0 {
		spiSize := 0
		if len(spis[0]) > 0 {
			spiSize = len(spis[0])
		}
		payloads.Add(&protocol.DeletePayload{
			PayloadHeader: &protocol.PayloadHeader{NextPayload: protocol.PayloadTypeNone},
			ProtocolId:    protoID,
			SpiSize:       uint8(spiSize),
			Spis:          spis,
		})
	}
	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			NextPayload:  protocol.PayloadTypeSK,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.INFORMATIONAL,
			Flags:        flags,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}
}

// rekeyNotifyPayload renders the N(REKEY_SA) payload identifying the old
// Child SA a CREATE_CHILD_SA rekey-Child request is replacing, per §4.5.
func rekeyNotifyPayload(protoID protocol.ProtocolId, oldSpi []byte, nextType protocol.PayloadType) *protocol.NotifyPayload {
	return &protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{NextPayload: nextType},
		ProtocolId:       protoID,
		NotificationType: protocol.REKEY_SA,
		Spi:              oldSpi,
	}
}

// BuildCreateChildSa constructs a CREATE_CHILD_SA request or response for a
// new or rekeyed Child SA: SA, optional N(REKEY_SA), Nonce, optional KE (for
// PFS), TSi, TSr. rekeyOldSpi is nil for a brand new Child SA, and the old
// Child SA's inbound SPI when rekeying it, per §4.5's disambiguation.
func BuildCreateChildSa(spiI, spiR protocol.Spi, msgID uint32, proposals []*protocol.SaProposal, rekeyProtoID protocol.ProtocolId, rekeyOldSpi []byte, nonce *big.Int, dhID protocol.DhTransformId, dhPublic *big.Int, local, remote connstore.End, flags protocol.IkeFlags) (*protocol.Message, error) {
	payloads := protocol.NewPayloads()

	afterSA := protocol.PayloadTypeNonce
	if rekeyOldSpi != nil {
		afterSA = protocol.PayloadTypeN
	}
	sa := saPayload(proposals, afterSA)
	payloads.Add(sa)

	if rekeyOldSpi != nil {
		payloads.Add(rekeyNotifyPayload(rekeyProtoID, rekeyOldSpi, protocol.PayloadTypeNonce))
	}

	afterNonce := protocol.PayloadTypeTSi
	if dhPublic != nil {
		afterNonce = protocol.PayloadTypeKE
	}
	payloads.Add(noncePayload(nonce, afterNonce))

	if dhPublic != nil {
		payloads.Add(kePayload(dhID, dhPublic, protocol.PayloadTypeTSi))
	}

	tsi, err := trafficSelectorPayload(protocol.PayloadTypeTSi, local, protocol.PayloadTypeTSr)
	if err != nil {
		return nil, err
	}
	payloads.Add(tsi)

	tsr, err := trafficSelectorPayload(protocol.PayloadTypeTSr, remote, protocol.PayloadTypeNone)
	if err != nil {
		return nil, err
	}
	payloads.Add(tsr)

	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			NextPayload:  protocol.PayloadTypeSK,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.CREATE_CHILD_SA,
			Flags:        flags,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}, nil
}

// BuildRekeyIkeSa constructs a CREATE_CHILD_SA request or response that
// rekeys the IKE SA itself: SA, Nonce, KE — no traffic selectors, which is
// exactly what §4.5 uses to tell this apart from a Child SA exchange.
func BuildRekeyIkeSa(spiI, spiR protocol.Spi, msgID uint32, proposals []*protocol.SaProposal, nonce *big.Int, dhID protocol.DhTransformId, dhPublic *big.Int, flags protocol.IkeFlags) *protocol.Message {
	payloads := protocol.NewPayloads()
	payloads.Add(saPayload(proposals, protocol.PayloadTypeNonce))
	payloads.Add(noncePayload(nonce, protocol.PayloadTypeKE))
	payloads.Add(kePayload(dhID, dhPublic, protocol.PayloadTypeNone))

	return &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			NextPayload:  protocol.PayloadTypeSK,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			MinorVersion: protocol.IKEV2_MINOR_VERSION,
			ExchangeType: protocol.CREATE_CHILD_SA,
			Flags:        flags,
			MsgId:        msgID,
		},
		Payloads: payloads,
	}
}

// ProposalsFromSuiteConfig turns a locally configured transform list into
// the wire SA payload's proposal list for one protocol id, assigning spi.
func ProposalsFromSuiteConfig(protoID protocol.ProtocolId, transforms []*protocol.SaTransform, spi []byte) []*protocol.SaProposal {
	out := append([]*protocol.SaTransform{}, transforms...)
	if n := len(out); n > 0 {
		out[n-1].IsLast = true
	}
	return []*protocol.SaProposal{{
		IsLast:     true,
		Number:     1,
		ProtocolId: protoID,
		Spi:        spi,
		Transforms: out,
	}}
}

// NegotiateAndBuildSuite runs §4.7 negotiation for one protocol id and
// builds the resulting CipherSuite, returning the chosen proposal rendered
// back for the response message alongside it.
func NegotiateAndBuildSuite(local, remote []*protocol.SaProposal, responseSpi []byte) (*proposal.CipherSuite, *protocol.SaProposal, error) {
	chosen, err := proposal.Negotiate(local, remote)
	if err != nil {
		return nil, nil, err
	}
	suite, err := proposal.NewCipherSuite(chosen)
	if err != nil {
		return nil, nil, fmt.Errorf("ikev2: building cipher suite: %w", err)
	}
	return suite, chosen.AsProposal(responseSpi), nil
}
