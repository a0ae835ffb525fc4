package ikev1

import (
	"math/big"

	"github.com/PatrisiousHaddad/libreswan/internal/ikev1/wire"
)

// outPayload is one link of an outgoing payload chain: its own type (so
// the previous link's generic header can reference it) and encoded body.
type outPayload struct {
	pt   wire.PayloadType
	body []byte
}

// encodeChain concatenates a payload chain, wiring each generic header's
// NextPayload field to the type of the payload that follows it (or
// lastNext for the final one — PayloadNone for a plaintext message, or
// whatever payload type would follow once the whole chain is encrypted).
func encodeChain(payloads []outPayload, lastNext wire.PayloadType) (wire.PayloadType, []byte) {
	if len(payloads) == 0 {
		return lastNext, nil
	}
	var out []byte
	for i, p := range payloads {
		next := lastNext
		if i+1 < len(payloads) {
			next = payloads[i+1].pt
		}
		out = append(out, wire.EncodeGenericHeader(next, len(p.body))...)
		out = append(out, p.body...)
	}
	return payloads[0].pt, out
}

func saPayloadBody(proposalBytes []byte) []byte { return proposalBytes }

func kePayloadBody(public *big.Int) []byte { return public.Bytes() }

func noncePayloadBody(n *big.Int) []byte { return n.Bytes() }

func idPayloadBody(idType, protocol uint8, port uint16, data []byte) []byte {
	return (&wire.IDPayload{IDType: idType, Protocol: protocol, Port: port, Data: data}).Encode()
}

func hashPayloadBody(h []byte) []byte { return (&wire.HashPayload{Data: h}).Encode() }

func notifyPayloadBody(protocolID uint8, msgType uint16, spi, data []byte) []byte {
	return (&wire.NotifyPayload{ProtocolID: protocolID, SpiSize: uint8(len(spi)), MessageType: msgType, Spi: spi, Data: data}).Encode()
}

func deletePayloadBody(protocolID uint8, spiSize uint8, spis [][]byte) []byte {
	return (&wire.DeletePayload{ProtocolID: protocolID, SpiSize: spiSize, Spis: spis}).Encode()
}

// buildHeader fills in the ISAKMP header fixed fields; Length/NextPayload
// are set by the caller once the body is known.
func buildHeader(icookie, rcookie wire.Cookie, exchange wire.ExchangeType, flags wire.Flags, msgID uint32) *wire.Header {
	return &wire.Header{
		ICookie:      icookie,
		RCookie:      rcookie,
		ExchangeType: exchange,
		Flags:        flags,
		MessageID:    msgID,
	}
}

// encodeMessage assembles a full ISAKMP datagram from a header and a
// (possibly already-encrypted) body whose first payload type is known.
func encodeMessage(h *wire.Header, firstPayload wire.PayloadType, body []byte) []byte {
	h.NextPayload = firstPayload
	h.Length = uint32(wire.HeaderLen + len(body))
	return append(h.Encode(), body...)
}

// parseChain walks a decoded payload chain starting at firstType,
// returning each payload's raw body keyed by type. IKEv1's payload types
// don't repeat within one message in any exchange this module drives, so
// a flat map (rather than ikev2's ordered Payloads.Array) is enough here.
func parseChain(firstType wire.PayloadType, b []byte) (map[wire.PayloadType][]byte, []wire.PayloadType, error) {
	out := map[wire.PayloadType][]byte{}
	var order []wire.PayloadType
	next := firstType
	for next != wire.PayloadNone && len(b) > 0 {
		gh, err := wire.DecodeGenericHeader(b)
		if err != nil {
			return nil, nil, err
		}
		if int(gh.Length) < wire.GenericPayloadHeaderLen || int(gh.Length) > len(b) {
			return nil, nil, errInvalidLength
		}
		out[next] = append([]byte{}, b[wire.GenericPayloadHeaderLen:gh.Length]...)
		order = append(order, next)
		b = b[gh.Length:]
		next = gh.NextPayload
	}
	return out, order, nil
}
