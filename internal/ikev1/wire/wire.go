// Package wire implements the IKEv1 packet framing of §6: the same
// big-endian header/generic-payload-header discipline as
// internal/protocol's IKEv2 codec, but the smaller RFC 2408/2409 payload
// set Main/Aggressive/Quick/Informational exchanges actually use.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/msgboxio/packets"
)

const HeaderLen = 28

// ExchangeType is RFC 2408 §3.1's exchange-type field.
type ExchangeType uint8

const (
	ExchangeBase         ExchangeType = 1
	ExchangeIdentityProt ExchangeType = 2 // Main Mode
	ExchangeAuthOnly     ExchangeType = 3
	ExchangeAggressive   ExchangeType = 4
	ExchangeInformational ExchangeType = 5
	ExchangeQuick        ExchangeType = 32
	ExchangeNewGroup     ExchangeType = 33
	ExchangeXauth        ExchangeType = 6 // Transaction/XAUTH (ISAKMP draft mode-cfg)
)

func (e ExchangeType) String() string {
	switch e {
	case ExchangeBase:
		return "BASE"
	case ExchangeIdentityProt:
		return "MAIN"
	case ExchangeAuthOnly:
		return "AUTH_ONLY"
	case ExchangeAggressive:
		return "AGGRESSIVE"
	case ExchangeInformational:
		return "INFORMATIONAL"
	case ExchangeQuick:
		return "QUICK"
	case ExchangeNewGroup:
		return "NEW_GROUP"
	case ExchangeXauth:
		return "TRANSACTION"
	default:
		return fmt.Sprintf("Exchange(%d)", e)
	}
}

// Flags is RFC 2408 §3.1's 8-bit flags field; only Encryption and Commit
// are used here (Authentication-only is never negotiated by this module).
type Flags uint8

const (
	FlagEncryption Flags = 1 << 0
	FlagCommit     Flags = 1 << 1
)

// PayloadType is RFC 2408 §3.2's next-payload field.
type PayloadType uint8

const (
	PayloadNone       PayloadType = 0
	PayloadSA         PayloadType = 1
	PayloadProposal   PayloadType = 2
	PayloadTransform  PayloadType = 3
	PayloadKE         PayloadType = 4
	PayloadID         PayloadType = 5
	PayloadCert       PayloadType = 6
	PayloadCertReq    PayloadType = 7
	PayloadHash       PayloadType = 8
	PayloadSig        PayloadType = 9
	PayloadNonce      PayloadType = 10
	PayloadNotify     PayloadType = 11
	PayloadDelete     PayloadType = 12
	PayloadVendorID   PayloadType = 13
	PayloadAttributes PayloadType = 14 // Mode-Config / XAUTH attribute payload
	PayloadNatD       PayloadType = 20
	PayloadNatOA      PayloadType = 21
)

// Cookie is one ISAKMP SPI half: 8 bytes, initiator or responder.
type Cookie [8]byte

// Header is the fixed 28-byte ISAKMP header.
type Header struct {
	ICookie, RCookie   Cookie
	NextPayload        PayloadType
	MajorVersion, MinorVersion uint8
	ExchangeType       ExchangeType
	Flags              Flags
	MessageID          uint32
	Length             uint32
}

func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < HeaderLen {
		return nil, errors.New("wire: isakmp header too short")
	}
	h := &Header{}
	copy(h.ICookie[:], b[0:8])
	copy(h.RCookie[:], b[8:16])
	h.NextPayload = PayloadType(b[16])
	h.MajorVersion = b[17] >> 4
	h.MinorVersion = b[17] & 0x0f
	h.ExchangeType = ExchangeType(b[18])
	h.Flags = Flags(b[19])
	h.MessageID = binary.BigEndian.Uint32(b[20:24])
	h.Length = binary.BigEndian.Uint32(b[24:28])
	if h.Length < HeaderLen {
		return nil, errors.New("wire: isakmp header declares impossible length")
	}
	return h, nil
}

func (h *Header) Encode() []byte {
	b := make([]byte, HeaderLen)
	copy(b[0:8], h.ICookie[:])
	copy(b[8:16], h.RCookie[:])
	b[16] = byte(h.NextPayload)
	b[17] = h.MajorVersion<<4 | h.MinorVersion
	b[18] = byte(h.ExchangeType)
	b[19] = byte(h.Flags)
	binary.BigEndian.PutUint32(b[20:24], h.MessageID)
	binary.BigEndian.PutUint32(b[24:28], h.Length)
	return b
}

const GenericPayloadHeaderLen = 4

// GenericHeader is RFC 2408 §3.2's per-payload header.
type GenericHeader struct {
	NextPayload PayloadType
	Reserved    uint8
	Length      uint16
}

func DecodeGenericHeader(b []byte) (*GenericHeader, error) {
	if len(b) < GenericPayloadHeaderLen {
		return nil, errors.New("wire: generic payload header too short")
	}
	return &GenericHeader{
		NextPayload: PayloadType(b[0]),
		Length:      binary.BigEndian.Uint16(b[2:4]),
	}, nil
}

func EncodeGenericHeader(next PayloadType, bodyLen int) []byte {
	b := make([]byte, GenericPayloadHeaderLen)
	b[0] = byte(next)
	binary.BigEndian.PutUint16(b[2:4], uint16(bodyLen+GenericPayloadHeaderLen))
	return b
}

// IDPayload is RFC 2407 §4.6.2's identification payload: ID type and
// (for the address types) protocol/port, followed by the identity data.
type IDPayload struct {
	IDType   uint8
	Protocol uint8
	Port     uint16
	Data     []byte
}

func DecodeIDPayload(b []byte) (*IDPayload, error) {
	if len(b) < 4 {
		return nil, errors.New("wire: id payload too short")
	}
	return &IDPayload{IDType: b[0], Protocol: b[1], Port: binary.BigEndian.Uint16(b[2:4]), Data: append([]byte{}, b[4:]...)}, nil
}

func (p *IDPayload) Encode() []byte {
	b := []byte{p.IDType, p.Protocol, 0, 0}
	binary.BigEndian.PutUint16(b[2:4], p.Port)
	return append(b, p.Data...)
}

// NoncePayload carries the raw nonce bytes (no ASN.1/big.Int framing in
// IKEv1, unlike the IKEv2 codec's big.Int-typed NoncePayload).
type NoncePayload struct{ Data []byte }

func (p *NoncePayload) Encode() []byte { return append([]byte{}, p.Data...) }

// HashPayload carries the PRF output used in place of a signature/MAC for
// pre-shared-key authentication, per RFC 2409 §5.
type HashPayload struct{ Data []byte }

func (p *HashPayload) Encode() []byte { return append([]byte{}, p.Data...) }

// NotifyPayload is RFC 2408 §3.14's notification payload; DOI/Protocol-ID/
// SPI/Notify-Message-Type plus an opaque data blob (N-payload types reuse
// the IKEv2 numbering where RFC 2407 overlaps, e.g. DPD's
// R-U-THERE/R-U-THERE-ACK).
type NotifyPayload struct {
	DOI        uint32
	ProtocolID uint8
	SpiSize    uint8
	MessageType uint16
	Spi        []byte
	Data       []byte
}

func DecodeNotifyPayload(b []byte) (*NotifyPayload, error) {
	if len(b) < 8 {
		return nil, errors.New("wire: notify payload too short")
	}
	n := &NotifyPayload{
		DOI:         binary.BigEndian.Uint32(b[0:4]),
		ProtocolID:  b[4],
		SpiSize:     b[5],
		MessageType: binary.BigEndian.Uint16(b[6:8]),
	}
	rest := b[8:]
	if len(rest) < int(n.SpiSize) {
		return nil, errors.New("wire: notify payload spi truncated")
	}
	n.Spi = append([]byte{}, rest[:n.SpiSize]...)
	n.Data = append([]byte{}, rest[n.SpiSize:]...)
	return n, nil
}

func (n *NotifyPayload) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], n.DOI)
	b[4] = n.ProtocolID
	b[5] = uint8(len(n.Spi))
	binary.BigEndian.PutUint16(b[6:8], n.MessageType)
	b = append(b, n.Spi...)
	b = append(b, n.Data...)
	return b
}

// DeletePayload is RFC 2408 §3.15's delete payload.
type DeletePayload struct {
	DOI        uint32
	ProtocolID uint8
	SpiSize    uint8
	Spis       [][]byte
}

func (d *DeletePayload) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], d.DOI)
	b[4] = d.ProtocolID
	b[5] = d.SpiSize
	binary.BigEndian.PutUint16(b[6:8], uint16(len(d.Spis)))
	for _, spi := range d.Spis {
		b = append(b, spi...)
	}
	return b
}

// AttributesPayload is RFC 2407's Mode-Config / XAUTH attribute payload:
// a transaction type plus a flat TV/TLV attribute list, reusing
// internal/protocol's big-endian attribute codec style.
type AttributesPayload struct {
	MessageType uint8
	Identifier  uint16
	Attributes  []Attribute
}

// Attribute is one TV (short, len==2) or TLV Mode-Config/XAUTH attribute.
type Attribute struct {
	Type  uint16
	Value []byte
}

func DecodeAttributesPayload(b []byte) (*AttributesPayload, error) {
	if len(b) < 4 {
		return nil, errors.New("wire: attributes payload too short")
	}
	p := &AttributesPayload{MessageType: b[0], Identifier: binary.BigEndian.Uint16(b[2:4])}
	rest := b[4:]
	for len(rest) >= 4 {
		af := rest[0]&0x80 != 0
		t := binary.BigEndian.Uint16(rest[0:2]) &^ 0x8000
		if af {
			p.Attributes = append(p.Attributes, Attribute{Type: t, Value: rest[2:4]})
			rest = rest[4:]
			continue
		}
		l := int(binary.BigEndian.Uint16(rest[2:4]))
		if len(rest) < 4+l {
			return nil, errors.New("wire: attribute value truncated")
		}
		p.Attributes = append(p.Attributes, Attribute{Type: t, Value: append([]byte{}, rest[4:4+l]...)})
		rest = rest[4+l:]
	}
	return p, nil
}

func (p *AttributesPayload) Encode() []byte {
	b := []byte{p.MessageType, 0, 0, 0}
	binary.BigEndian.PutUint16(b[2:4], p.Identifier)
	for _, a := range p.Attributes {
		if len(a.Value) == 2 {
			hdr := make([]byte, 2)
			binary.BigEndian.PutUint16(hdr, a.Type|0x8000)
			b = append(b, hdr...)
			b = append(b, a.Value...)
			continue
		}
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint16(hdr[0:2], a.Type)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(a.Value)))
		b = append(b, hdr...)
		b = append(b, a.Value...)
	}
	return b
}

// VendorIDPayload carries an opaque vendor identifier, used here to
// detect DPD and XAUTH capability advertisements per RFC 3706/draft-xauth.
type VendorIDPayload struct{ Data []byte }

func (v *VendorIDPayload) Encode() []byte { return append([]byte{}, v.Data...) }

// ReadB32/WriteB32 reuse the same packets helper the IKEv2 codec uses, for
// the few call sites that decode fixed integers out of a larger buffer
// rather than a single payload body.
func ReadB32(b []byte, off int) (uint32, error) { return packets.ReadB32(b, off) }
func WriteB32(b []byte, off int, v uint32)      { packets.WriteB32(b, off, v) }
