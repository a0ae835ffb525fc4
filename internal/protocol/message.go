// Package protocol implements the IKEv2 wire format of §4.5/§6: header,
// payload framing, and the payload types needed to build IKE_SA_INIT,
// IKE_AUTH, CREATE_CHILD_SA, and INFORMATIONAL exchanges.
package protocol

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net"

	"github.com/msgboxio/log"
	"github.com/msgboxio/packets"
)

const (
	IKE_PORT      = 500
	IKE_NATT_PORT = 4500
)

const (
	LOG_CODEC = 3
)

type Packet interface {
	Decode([]byte) error
	Encode() []byte
}

const (
	IKEV2_MAJOR_VERSION = 2
	IKEV2_MINOR_VERSION = 0
)

type Spi [8]byte

type IkeExchangeType uint16

const (
	IKE_SA_INIT        IkeExchangeType = 34
	IKE_AUTH           IkeExchangeType = 35
	CREATE_CHILD_SA    IkeExchangeType = 36
	INFORMATIONAL      IkeExchangeType = 37
	IKE_SESSION_RESUME IkeExchangeType = 38
	GSA_AUTH           IkeExchangeType = 39
	GSA_REGISTRATION   IkeExchangeType = 40
	GSA_REKEY          IkeExchangeType = 41
)

type PayloadType uint8

const (
	PayloadTypeNone PayloadType = 0
	PayloadTypeSA   PayloadType = 33
	PayloadTypeKE   PayloadType = 34
	PayloadTypeIDi  PayloadType = 35
	PayloadTypeIDr  PayloadType = 36
	PayloadTypeCERT PayloadType = 37
	PayloadTypeCERTREQ PayloadType = 38
	PayloadTypeAUTH PayloadType = 39
	PayloadTypeNonce PayloadType = 40
	PayloadTypeN    PayloadType = 41
	PayloadTypeD    PayloadType = 42
	PayloadTypeV    PayloadType = 43
	PayloadTypeTSi  PayloadType = 44
	PayloadTypeTSr  PayloadType = 45
	PayloadTypeSK   PayloadType = 46
	PayloadTypeCP   PayloadType = 47
	PayloadTypeEAP  PayloadType = 48
	PayloadTypeGSPM PayloadType = 49
	PayloadTypeIDg  PayloadType = 50
	PayloadTypeGSA  PayloadType = 51
	PayloadTypeKD   PayloadType = 52
	PayloadTypeSKF  PayloadType = 53
)

type IkeFlags uint8

const (
	RESPONSE  IkeFlags = 1 << 5
	VERSION   IkeFlags = 1 << 4
	INITIATOR IkeFlags = 1 << 3
)

func (f IkeFlags) IsResponse() bool  { return f&RESPONSE != 0 }
func (f IkeFlags) IsInitiator() bool { return f&INITIATOR != 0 }

type ProtocolId uint8

const (
	IKE ProtocolId = 1
	AH  ProtocolId = 2
	ESP ProtocolId = 3
)

type TransformType uint8

const (
	TRANSFORM_TYPE_ENCR  TransformType = 1
	TRANSFORM_TYPE_PRF   TransformType = 2
	TRANSFORM_TYPE_INTEG TransformType = 3
	TRANSFORM_TYPE_DH    TransformType = 4
	TRANSFORM_TYPE_ESN   TransformType = 5
)

type EncrTransformId uint16

const (
	ENCR_DES_IV64 EncrTransformId = 1
	ENCR_DES      EncrTransformId = 2
	ENCR_3DES     EncrTransformId = 3
	ENCR_RC5      EncrTransformId = 4
	ENCR_IDEA     EncrTransformId = 5
	ENCR_CAST     EncrTransformId = 6
	ENCR_BLOWFISH EncrTransformId = 7
	ENCR_3IDEA    EncrTransformId = 8
	ENCR_DES_IV32 EncrTransformId = 9
	ENCR_NULL                EncrTransformId = 11
	ENCR_AES_CBC             EncrTransformId = 12
	ENCR_AES_CTR             EncrTransformId = 13
	ENCR_AES_CCM_8           EncrTransformId = 14
	ENCR_AES_CCM_12          EncrTransformId = 15
	ENCR_AES_CCM_16          EncrTransformId = 16
	AEAD_AES_GCM_8           EncrTransformId = 18
	AEAD_AES_GCM_12          EncrTransformId = 19
	AEAD_AES_GCM_16          EncrTransformId = 20
	ENCR_NULL_AUTH_AES_GMAC  EncrTransformId = 21
	ENCR_CAMELLIA_CBC        EncrTransformId = 23
	ENCR_CAMELLIA_CTR        EncrTransformId = 24
	ENCR_CAMELLIA_CCM_8_ICV  EncrTransformId = 25
	ENCR_CAMELLIA_CCM_12_ICV EncrTransformId = 26
	ENCR_CAMELLIA_CCM_16_ICV EncrTransformId = 27
)

type PrfTransformId uint16

const (
	PRF_HMAC_MD5      PrfTransformId = 1
	PRF_HMAC_SHA1     PrfTransformId = 2
	PRF_HMAC_TIGER    PrfTransformId = 3
	PRF_AES128_XCBC   PrfTransformId = 4
	PRF_HMAC_SHA2_256 PrfTransformId = 5
	PRF_HMAC_SHA2_384 PrfTransformId = 6
	PRF_HMAC_SHA2_512 PrfTransformId = 7
	PRF_AES128_CMAC   PrfTransformId = 8
)

type AuthTransformId uint16

const (
	AUTH_NONE              AuthTransformId = 0
	AUTH_HMAC_MD5_96       AuthTransformId = 1
	AUTH_HMAC_SHA1_96      AuthTransformId = 2
	AUTH_DES_MAC           AuthTransformId = 3
	AUTH_KPDK_MD5          AuthTransformId = 4
	AUTH_AES_XCBC_96       AuthTransformId = 5
	AUTH_HMAC_MD5_128      AuthTransformId = 6
	AUTH_HMAC_SHA1_160     AuthTransformId = 7
	AUTH_AES_CMAC_96       AuthTransformId = 8
	AUTH_AES_128_GMAC      AuthTransformId = 9
	AUTH_AES_192_GMAC      AuthTransformId = 10
	AUTH_AES_256_GMAC      AuthTransformId = 11
	AUTH_HMAC_SHA2_256_128 AuthTransformId = 12
	AUTH_HMAC_SHA2_384_192 AuthTransformId = 13
	AUTH_HMAC_SHA2_512_256 AuthTransformId = 14
)

type DhTransformId uint16

const (
	MODP_NONE           DhTransformId = 0
	MODP_768            DhTransformId = 1
	MODP_1024           DhTransformId = 2
	MODP_1536           DhTransformId = 5
	MODP_2048           DhTransformId = 14
	MODP_3072           DhTransformId = 15
	MODP_4096           DhTransformId = 16
	MODP_6144           DhTransformId = 17
	MODP_8192           DhTransformId = 18
	ECP_256             DhTransformId = 19
	ECP_384             DhTransformId = 20
	ECP_521             DhTransformId = 21
	MODP_1024_PRIME_160 DhTransformId = 22
	MODP_2048_PRIME_224 DhTransformId = 23
	MODP_2048_PRIME_256 DhTransformId = 24
	ECP_192             DhTransformId = 25
	ECP_224             DhTransformId = 26
)

type EsnTransformid uint16

const (
	ESN_NONE EsnTransformid = 0
	ESN      EsnTransformid = 1
)

const IKE_HEADER_LEN = 28

type IkeHeader struct {
	SpiI, SpiR                 Spi
	NextPayload                PayloadType
	MajorVersion, MinorVersion uint8
	ExchangeType               IkeExchangeType
	Flags                      IkeFlags
	MsgId                      uint32
	MsgLength                  uint32
}

func DecodeIkeHeader(b []byte) (h *IkeHeader, err error) {
	h = &IkeHeader{}
	if len(b) < IKE_HEADER_LEN {
		log.V(LOG_CODEC).Infof("packet too short: %d", len(b))
		return nil, ERR_INVALID_SYNTAX
	}
	copy(h.SpiI[:], b)
	copy(h.SpiR[:], b[8:])
	pt, _ := packets.ReadB8(b, 16)
	h.NextPayload = PayloadType(pt)
	ver, _ := packets.ReadB8(b, 16+1)
	h.MajorVersion = ver >> 4
	h.MinorVersion = ver & 0x0f
	et, _ := packets.ReadB8(b, 16+2)
	h.ExchangeType = IkeExchangeType(et)
	flags, _ := packets.ReadB8(b, 16+3)
	h.Flags = IkeFlags(flags)
	h.MsgId, _ = packets.ReadB32(b, 16+4)
	h.MsgLength, _ = packets.ReadB32(b, 16+8)
	if h.MsgLength < IKE_HEADER_LEN {
		return nil, ERR_INVALID_SYNTAX
	}
	log.V(LOG_CODEC).Infof("ike header: %+v from\n%s", *h, hex.Dump(b))
	return
}

func (h *IkeHeader) Encode() (b []byte) {
	b = make([]byte, IKE_HEADER_LEN)
	copy(b, h.SpiI[:])
	copy(b[8:], h.SpiR[:])
	packets.WriteB8(b, 16, uint8(h.NextPayload))
	packets.WriteB8(b, 17, h.MajorVersion<<4|h.MinorVersion)
	packets.WriteB8(b, 18, uint8(h.ExchangeType))
	packets.WriteB8(b, 19, uint8(h.Flags))
	packets.WriteB32(b, 20, h.MsgId)
	packets.WriteB32(b, 24, h.MsgLength)
	return
}

const PAYLOAD_HEADER_LENGTH = 4

type PayloadHeader struct {
	NextPayload   PayloadType
	IsCritical    bool
	PayloadLength uint16
}

func (h *PayloadHeader) NextPayloadType() PayloadType { return h.NextPayload }

func encodePayloadHeader(pt PayloadType, plen uint16) (b []byte) {
	b = make([]byte, PAYLOAD_HEADER_LENGTH)
	packets.WriteB8(b, 0, uint8(pt))
	packets.WriteB16(b, 2, plen+PAYLOAD_HEADER_LENGTH)
	return
}

func (h *PayloadHeader) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ERR_INVALID_SYNTAX
	}
	pt, _ := packets.ReadB8(b, 0)
	h.NextPayload = PayloadType(pt)
	if c, _ := packets.ReadB8(b, 1); c&0x80 != 0 {
		h.IsCritical = true
	}
	h.PayloadLength, _ = packets.ReadB16(b, 2)
	return
}

type Payload interface {
	Type() PayloadType
	Decode([]byte) error
	Encode() []byte
	NextPayloadType() PayloadType
}

type AttributeType uint16

const ATTRIBUTE_TYPE_KEY_LENGTH AttributeType = 14

type TransformAttribute struct {
	Type  AttributeType
	Value uint16
}

const MIN_LEN_ATTRIBUTE = 4

func decodeAttribute(b []byte) (attr *TransformAttribute, used int, err error) {
	if len(b) < MIN_LEN_ATTRIBUTE {
		err = ERR_INVALID_SYNTAX
		return
	}
	if at, _ := packets.ReadB16(b, 0); AttributeType(at&0x7fff) != ATTRIBUTE_TYPE_KEY_LENGTH {
		err = ERR_INVALID_SYNTAX
		return
	}
	alen, _ := packets.ReadB16(b, 2)
	attr = &TransformAttribute{Type: ATTRIBUTE_TYPE_KEY_LENGTH, Value: alen}
	used = 4
	return
}

type SaTransform struct {
	Transform
	// KeyLength is the key length attribute in bits, for ENCR algorithms
	// that take a variable key size; 0 when absent.
	KeyLength uint16
	IsLast    bool
}

const MIN_LEN_TRANSFORM = 8

func decodeTransform(b []byte) (trans *SaTransform, used int, err error) {
	if len(b) < MIN_LEN_TRANSFORM {
		err = ERR_INVALID_SYNTAX
		return
	}
	trans = &SaTransform{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		trans.IsLast = true
	}
	trLength, _ := packets.ReadB16(b, 2)
	if len(b) < int(trLength) || int(trLength) < MIN_LEN_TRANSFORM {
		err = ERR_INVALID_SYNTAX
		return
	}
	trType, _ := packets.ReadB8(b, 4)
	trans.Type = TransformType(trType)
	trans.TransformId, _ = packets.ReadB16(b, 6)
	b = b[MIN_LEN_TRANSFORM:int(trLength)]
	attrs := make(map[AttributeType]*TransformAttribute)
	for len(b) > 0 {
		attr, attrUsed, attrErr := decodeAttribute(b)
		if attrErr != nil {
			err = attrErr
			return
		}
		b = b[attrUsed:]
		attrs[attr.Type] = attr
	}
	if at, ok := attrs[ATTRIBUTE_TYPE_KEY_LENGTH]; ok {
		trans.KeyLength = at.Value
	}
	used = int(trLength)
	return
}

func encodeTransform(trans *SaTransform, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_TRANSFORM)
	if !isLast {
		packets.WriteB8(b, 0, 3)
	}
	packets.WriteB8(b, 4, uint8(trans.Type))
	packets.WriteB16(b, 6, trans.TransformId)
	if trans.KeyLength != 0 {
		attr := make([]byte, 4)
		packets.WriteB16(attr, 0, 0x8000|14)
		packets.WriteB16(attr, 2, trans.KeyLength)
		b = append(b, attr...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

type SaProposal struct {
	IsLast     bool
	Number     uint8
	ProtocolId ProtocolId
	Spi        []byte
	Transforms []*SaTransform
}

const MIN_LEN_PROPOSAL = 8

func decodeProposal(b []byte) (prop *SaProposal, used int, err error) {
	if len(b) < MIN_LEN_PROPOSAL {
		err = ERR_INVALID_SYNTAX
		return
	}
	prop = &SaProposal{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		prop.IsLast = true
	}
	propLength, _ := packets.ReadB16(b, 2)
	if len(b) < int(propLength) || int(propLength) < MIN_LEN_PROPOSAL {
		err = ERR_INVALID_SYNTAX
		return
	}
	prop.Number, _ = packets.ReadB8(b, 4)
	pId, _ := packets.ReadB8(b, 5)
	prop.ProtocolId = ProtocolId(pId)
	spiSize, _ := packets.ReadB8(b, 6)
	numTransforms, _ := packets.ReadB8(b, 7)
	if len(b) < MIN_LEN_PROPOSAL+int(spiSize) {
		err = ERR_INVALID_SYNTAX
		return
	}
	used = MIN_LEN_PROPOSAL + int(spiSize)
	prop.Spi = append([]byte{}, b[8:used]...)
	b = b[used:int(propLength)]
	for len(b) > 0 {
		trans, usedT, errT := decodeTransform(b)
		if errT != nil {
			err = errT
			return
		}
		prop.Transforms = append(prop.Transforms, trans)
		b = b[usedT:]
		if trans.IsLast {
			if len(b) > 0 {
				err = ERR_INVALID_SYNTAX
				return
			}
			break
		}
	}
	if len(prop.Transforms) != int(numTransforms) {
		err = ERR_INVALID_SYNTAX
		return
	}
	used = int(propLength)
	return
}

func encodeProposal(prop *SaProposal, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_PROPOSAL)
	if !isLast {
		packets.WriteB8(b, 0, 2)
	}
	packets.WriteB8(b, 4, prop.Number)
	packets.WriteB8(b, 5, uint8(prop.ProtocolId))
	packets.WriteB8(b, 6, uint8(len(prop.Spi)))
	packets.WriteB8(b, 7, uint8(len(prop.Transforms)))
	b = append(b, prop.Spi...)
	for idx, tr := range prop.Transforms {
		b = append(b, encodeTransform(tr, idx == len(prop.Transforms)-1)...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

type SaPayload struct {
	*PayloadHeader
	Proposals []*SaProposal
}

func (s *SaPayload) Type() PayloadType { return PayloadTypeSA }
func (s *SaPayload) Encode() (b []byte) {
	for idx, prop := range s.Proposals {
		b = append(b, encodeProposal(prop, idx == len(s.Proposals)-1)...)
	}
	return
}
func (s *SaPayload) Decode(b []byte) (err error) {
	for len(b) > 0 {
		prop, used, errP := decodeProposal(b)
		if errP != nil {
			return errP
		}
		s.Proposals = append(s.Proposals, prop)
		b = b[used:]
		if prop.IsLast {
			if len(b) > 0 {
				return ERR_INVALID_SYNTAX
			}
			break
		}
	}
	return
}

type KePayload struct {
	*PayloadHeader
	DhTransformId DhTransformId
	KeyData       *big.Int
}

func (s *KePayload) Type() PayloadType { return PayloadTypeKE }
func (s *KePayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB16(b, 0, uint16(s.DhTransformId))
	return append(b, s.KeyData.Bytes()...)
}
func (s *KePayload) Decode(b []byte) (err error) {
	gn, _ := packets.ReadB16(b, 0)
	s.DhTransformId = DhTransformId(gn)
	s.KeyData = new(big.Int).SetBytes(b[4:])
	return
}

type IdType uint8

const (
	ID_IPV4_ADDR   IdType = 1
	ID_FQDN        IdType = 2
	ID_RFC822_ADDR IdType = 3
	ID_IPV6_ADDR   IdType = 5
	ID_DER_ASN1_DN IdType = 9
	ID_DER_ASN1_GN IdType = 10
	ID_KEY_ID      IdType = 11
)

type IdPayload struct {
	*PayloadHeader
	idPayloadType PayloadType
	IdType        IdType
	Data          []byte
}

func NewIdPayload(t PayloadType, idType IdType, data []byte) *IdPayload {
	return &IdPayload{PayloadHeader: &PayloadHeader{}, idPayloadType: t, IdType: idType, Data: data}
}

func (s *IdPayload) Type() PayloadType { return s.idPayloadType }
func (s *IdPayload) Encode() (b []byte) {
	b = []byte{uint8(s.IdType), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *IdPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "id payload too short")
	}
	idt, _ := packets.ReadB8(b, 0)
	s.IdType = IdType(idt)
	s.Data = append([]byte{}, b[4:]...)
	return
}

// CertEncoding enumerates the RFC 7296 §3.6 certificate encodings.
type CertEncoding uint8

const (
	CERT_X509_SIGNATURE CertEncoding = 4
	CERT_RAW_RSA_KEY     CertEncoding = 11
)

type CertPayload struct {
	*PayloadHeader
	Encoding CertEncoding
	Data     []byte
}

func (s *CertPayload) Type() PayloadType { return PayloadTypeCERT }
func (s *CertPayload) Encode() (b []byte) {
	return append([]byte{uint8(s.Encoding)}, s.Data...)
}
func (s *CertPayload) Decode(b []byte) (err error) {
	if len(b) < 1 {
		return ErrF(ERR_INVALID_SYNTAX, "cert payload too short")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.Data = append([]byte{}, b[1:]...)
	return
}

type CertRequestPayload struct {
	*PayloadHeader
	Encoding       CertEncoding
	CertAuthority  []byte
}

func (s *CertRequestPayload) Type() PayloadType { return PayloadTypeCERTREQ }
func (s *CertRequestPayload) Encode() (b []byte) {
	return append([]byte{uint8(s.Encoding)}, s.CertAuthority...)
}
func (s *CertRequestPayload) Decode(b []byte) (err error) {
	if len(b) < 1 {
		return ErrF(ERR_INVALID_SYNTAX, "cert request payload too short")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.CertAuthority = append([]byte{}, b[1:]...)
	return
}

type AuthMethod uint8

const (
	RSA_DIGITAL_SIGNATURE             AuthMethod = 1
	SHARED_KEY_MESSAGE_INTEGRITY_CODE AuthMethod = 2
	DSS_DIGITAL_SIGNATURE             AuthMethod = 3
)

type AuthPayload struct {
	*PayloadHeader
	Method AuthMethod
	Data   []byte
}

func (s *AuthPayload) Type() PayloadType { return PayloadTypeAUTH }
func (s *AuthPayload) Encode() (b []byte) {
	b = []byte{uint8(s.Method), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *AuthPayload) Decode(b []byte) (err error) {
	authMethod, _ := packets.ReadB8(b, 0)
	s.Method = AuthMethod(authMethod)
	s.Data = append([]byte{}, b[4:]...)
	return
}

type NoncePayload struct {
	*PayloadHeader
	Nonce *big.Int
}

func (s *NoncePayload) Type() PayloadType { return PayloadTypeNonce }
func (s *NoncePayload) Encode() (b []byte) { return s.Nonce.Bytes() }
func (s *NoncePayload) Decode(b []byte) (err error) {
	if len(b) < 16 || len(b) > 256 {
		return ERR_INVALID_SYNTAX
	}
	s.Nonce = new(big.Int).SetBytes(b)
	return
}

type NotificationType uint16

const (
	UNSUPPORTED_CRITICAL_PAYLOAD NotificationType = 1
	INVALID_IKE_SPI              NotificationType = 4
	INVALID_MAJOR_VERSION        NotificationType = 5
	INVALID_SYNTAX               NotificationType = 7
	INVALID_MESSAGE_ID           NotificationType = 9
	INVALID_SPI                  NotificationType = 11
	NO_PROPOSAL_CHOSEN           NotificationType = 14
	INVALID_KE_PAYLOAD           NotificationType = 17
	AUTHENTICATION_FAILED        NotificationType = 24
	SINGLE_PAIR_REQUIRED         NotificationType = 34
	NO_ADDITIONAL_SAS            NotificationType = 35
	INTERNAL_ADDRESS_FAILURE     NotificationType = 36
	FAILED_CP_REQUIRED           NotificationType = 37
	TS_UNACCEPTABLE              NotificationType = 38
	INVALID_SELECTORS            NotificationType = 39
	TEMPORARY_FAILURE            NotificationType = 43
	CHILD_SA_NOT_FOUND           NotificationType = 44

	INITIAL_CONTACT               NotificationType = 16384
	SET_WINDOW_SIZE               NotificationType = 16385
	ADDITIONAL_TS_POSSIBLE        NotificationType = 16386
	IPCOMP_SUPPORTED              NotificationType = 16387
	NAT_DETECTION_SOURCE_IP       NotificationType = 16388
	NAT_DETECTION_DESTINATION_IP  NotificationType = 16389
	COOKIE                        NotificationType = 16390
	USE_TRANSPORT_MODE            NotificationType = 16391
	HTTP_CERT_LOOKUP_SUPPORTED    NotificationType = 16392
	REKEY_SA                      NotificationType = 16393
	ESP_TFC_PADDING_NOT_SUPPORTED NotificationType = 16394
	NON_FIRST_FRAGMENTS_ALSO      NotificationType = 16395
	SIGNATURE_HASH_ALGORITHMS    NotificationType = 16409
	REDIRECT                      NotificationType = 16407
	REDIRECTED_FROM               NotificationType = 16408
	REDIRECT_SUPPORTED            NotificationType = 16406
)

type NotifyPayload struct {
	*PayloadHeader
	ProtocolId       ProtocolId
	NotificationType NotificationType
	Spi              []byte
	Data             []byte
}

func (s *NotifyPayload) Type() PayloadType { return PayloadTypeN }
func (s *NotifyPayload) Encode() (b []byte) {
	b = []byte{uint8(s.ProtocolId), uint8(len(s.Spi)), 0, 0}
	packets.WriteB16(b, 2, uint16(s.NotificationType))
	b = append(b, s.Spi...)
	b = append(b, s.Data...)
	return
}
func (s *NotifyPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ERR_INVALID_SYNTAX
	}
	pId, _ := packets.ReadB8(b, 0)
	s.ProtocolId = ProtocolId(pId)
	spiLen, _ := packets.ReadB8(b, 1)
	if len(b) < 4+int(spiLen) {
		return ERR_INVALID_SYNTAX
	}
	nType, _ := packets.ReadB16(b, 2)
	s.NotificationType = NotificationType(nType)
	s.Spi = append([]byte{}, b[4:spiLen+4]...)
	s.Data = append([]byte{}, b[spiLen+4:]...)
	return
}

// DeletePayload is a Delete payload (RFC 7296 §3.11): the protocol id, the
// SPI size, and the SPIs being deleted.
type DeletePayload struct {
	*PayloadHeader
	ProtocolId ProtocolId
	SpiSize    uint8
	Spis       [][]byte
}

func (s *DeletePayload) Type() PayloadType { return PayloadTypeD }
func (s *DeletePayload) Encode() (b []byte) {
	b = []byte{uint8(s.ProtocolId), s.SpiSize, 0, 0}
	packets.WriteB16(b, 2, uint16(len(s.Spis)))
	for _, spi := range s.Spis {
		b = append(b, spi...)
	}
	return
}
func (s *DeletePayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "delete payload too short")
	}
	pId, _ := packets.ReadB8(b, 0)
	s.ProtocolId = ProtocolId(pId)
	s.SpiSize, _ = packets.ReadB8(b, 1)
	numSpi, _ := packets.ReadB16(b, 2)
	b = b[4:]
	for i := 0; i < int(numSpi); i++ {
		if len(b) < int(s.SpiSize) {
			return ErrF(ERR_INVALID_SYNTAX, "delete payload spi truncated")
		}
		s.Spis = append(s.Spis, append([]byte{}, b[:s.SpiSize]...))
		b = b[s.SpiSize:]
	}
	return
}

type VendorIdPayload struct {
	*PayloadHeader
	Vid []byte
}

func (s *VendorIdPayload) Type() PayloadType  { return PayloadTypeV }
func (s *VendorIdPayload) Encode() (b []byte) { return append([]byte{}, s.Vid...) }
func (s *VendorIdPayload) Decode(b []byte) (err error) {
	s.Vid = append([]byte{}, b...)
	return
}

type SelectorType uint8

const (
	TS_IPV4_ADDR_RANGE SelectorType = 7
	TS_IPV6_ADDR_RANGE SelectorType = 8
)

const MIN_LEN_SELECTOR = 8

type Selector struct {
	Type                     SelectorType
	IpProtocolId             uint8
	StartPort, Endport       uint16
	StartAddress, EndAddress net.IP
}

func decodeSelector(b []byte) (sel *Selector, used int, err error) {
	if len(b) < MIN_LEN_SELECTOR {
		err = ERR_INVALID_SYNTAX
		return
	}
	stype, _ := packets.ReadB8(b, 0)
	id, _ := packets.ReadB8(b, 1)
	slen, _ := packets.ReadB16(b, 2)
	if len(b) < int(slen) {
		err = ERR_INVALID_SYNTAX
		return
	}
	sport, _ := packets.ReadB16(b, 8)
	eport, _ := packets.ReadB16(b, 10)
	iplen := net.IPv4len
	if SelectorType(stype) == TS_IPV6_ADDR_RANGE {
		iplen = net.IPv6len
	}
	if len(b) < 8+2*iplen {
		err = ERR_INVALID_SYNTAX
		return
	}
	sel = &Selector{
		Type:         SelectorType(stype),
		IpProtocolId: id,
		StartPort:    sport,
		Endport:      eport,
		StartAddress: append([]byte{}, b[8:8+iplen]...),
		EndAddress:   append([]byte{}, b[8+iplen:8+2*iplen]...),
	}
	used = 8 + 2*iplen
	return
}

func encodeSelector(sel *Selector) (b []byte) {
	b = make([]byte, MIN_LEN_SELECTOR)
	packets.WriteB8(b, 0, uint8(sel.Type))
	packets.WriteB8(b, 1, uint8(sel.IpProtocolId))
	packets.WriteB16(b, 4, sel.StartPort)
	packets.WriteB16(b, 6, sel.Endport)
	b = append(b, sel.StartAddress...)
	b = append(b, sel.EndAddress...)
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

const MIN_LEN_TRAFFIC_SELECTOR = 4

type TrafficSelectorPayload struct {
	*PayloadHeader
	trafficSelectorPayloadType PayloadType
	Selectors                  []*Selector
}

func NewTrafficSelectorPayload(t PayloadType) *TrafficSelectorPayload {
	return &TrafficSelectorPayload{PayloadHeader: &PayloadHeader{}, trafficSelectorPayloadType: t}
}

func (s *TrafficSelectorPayload) Type() PayloadType { return s.trafficSelectorPayloadType }
func (s *TrafficSelectorPayload) Encode() (b []byte) {
	b = []byte{uint8(len(s.Selectors)), 0, 0, 0}
	for _, sel := range s.Selectors {
		b = append(b, encodeSelector(sel)...)
	}
	return
}
func (s *TrafficSelectorPayload) Decode(b []byte) (err error) {
	if len(b) < MIN_LEN_TRAFFIC_SELECTOR {
		return ERR_INVALID_SYNTAX
	}
	numSel, _ := packets.ReadB8(b, 0)
	b = b[4:]
	for len(b) > 0 {
		sel, used, serr := decodeSelector(b)
		if serr != nil {
			return serr
		}
		s.Selectors = append(s.Selectors, sel)
		b = b[used:]
	}
	if len(s.Selectors) != int(numSel) {
		return ERR_INVALID_SYNTAX
	}
	return
}

type ConfigurationPayload struct {
	*PayloadHeader
	CfgType    uint8
	Attributes []byte
}

func (s *ConfigurationPayload) Type() PayloadType { return PayloadTypeCP }
func (s *ConfigurationPayload) Encode() (b []byte) {
	b = []byte{s.CfgType, 0, 0, 0}
	return append(b, s.Attributes...)
}
func (s *ConfigurationPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "configuration payload too short")
	}
	s.CfgType, _ = packets.ReadB8(b, 0)
	s.Attributes = append([]byte{}, b[4:]...)
	return
}

type EapPayload struct {
	*PayloadHeader
	Data []byte
}

func (s *EapPayload) Type() PayloadType  { return PayloadTypeEAP }
func (s *EapPayload) Encode() (b []byte) { return append([]byte{}, s.Data...) }
func (s *EapPayload) Decode(b []byte) (err error) {
	s.Data = append([]byte{}, b...)
	return
}

type Payloads struct {
	Map   map[PayloadType]int
	Array []Payload
}

func makePayloads() *Payloads { return &Payloads{Map: make(map[PayloadType]int)} }

// NewPayloads is the exported constructor callers outside this package
// use to build an outgoing Message's payload set.
func NewPayloads() *Payloads { return makePayloads() }

func (p *Payloads) Get(t PayloadType) Payload {
	if idx, ok := p.Map[t]; ok {
		return p.Array[idx]
	}
	return nil
}
func (p *Payloads) Add(t Payload) {
	if idx, ok := p.Map[t.Type()]; ok {
		p.Array[idx] = t
		return
	}
	p.Array = append(p.Array, t)
	p.Map[t.Type()] = len(p.Array) - 1
}

// Tkm is the minimal cryptographic seam the message codec needs: verify
// and decrypt an SK payload, and produce one for encoding. The real
// implementation lives in internal/ikev2 (adapted from the teacher's tkm.go).
type Tkm interface {
	VerifyDecrypt(ike []byte) (PayloadType, []byte, error)
	Encrypt(payload []byte) []byte
	Mac(b []byte) []byte
	HashLength() int
}

type Message struct {
	IkeHeader *IkeHeader
	Payloads  *Payloads
}

func (s *Message) DecodeHeader(b []byte) (err error) {
	s.IkeHeader, err = DecodeIkeHeader(b[:IKE_HEADER_LEN])
	return
}

func (s *Message) DecodePayloads(ib []byte, tkm Tkm) (err error) {
	s.Payloads = makePayloads()
	if len(ib) < int(s.IkeHeader.MsgLength) {
		return ERR_INVALID_SYNTAX
	}
	nextPayload := s.IkeHeader.NextPayload
	b := ib[IKE_HEADER_LEN:s.IkeHeader.MsgLength]
	if nextPayload == PayloadTypeSK {
		if tkm == nil {
			return errors.New("protocol: cannot decrypt, no session key material")
		}
		if nextPayload, b, err = tkm.VerifyDecrypt(ib); err != nil {
			return
		}
	}
	for nextPayload != PayloadTypeNone {
		pHeader := &PayloadHeader{}
		if err = pHeader.Decode(b[:PAYLOAD_HEADER_LENGTH]); err != nil {
			return
		}
		var payload Payload
		switch nextPayload {
		case PayloadTypeSA:
			payload = &SaPayload{PayloadHeader: pHeader}
		case PayloadTypeKE:
			payload = &KePayload{PayloadHeader: pHeader}
		case PayloadTypeIDi:
			payload = &IdPayload{PayloadHeader: pHeader, idPayloadType: PayloadTypeIDi}
		case PayloadTypeIDr:
			payload = &IdPayload{PayloadHeader: pHeader, idPayloadType: PayloadTypeIDr}
		case PayloadTypeCERT:
			payload = &CertPayload{PayloadHeader: pHeader}
		case PayloadTypeCERTREQ:
			payload = &CertRequestPayload{PayloadHeader: pHeader}
		case PayloadTypeAUTH:
			payload = &AuthPayload{PayloadHeader: pHeader}
		case PayloadTypeNonce:
			payload = &NoncePayload{PayloadHeader: pHeader}
		case PayloadTypeN:
			payload = &NotifyPayload{PayloadHeader: pHeader}
		case PayloadTypeD:
			payload = &DeletePayload{PayloadHeader: pHeader}
		case PayloadTypeV:
			payload = &VendorIdPayload{PayloadHeader: pHeader}
		case PayloadTypeTSi:
			payload = &TrafficSelectorPayload{PayloadHeader: pHeader, trafficSelectorPayloadType: PayloadTypeTSi}
		case PayloadTypeTSr:
			payload = &TrafficSelectorPayload{PayloadHeader: pHeader, trafficSelectorPayloadType: PayloadTypeTSr}
		case PayloadTypeCP:
			payload = &ConfigurationPayload{PayloadHeader: pHeader}
		case PayloadTypeEAP:
			payload = &EapPayload{PayloadHeader: pHeader}
		default:
			return ErrF(ERR_INVALID_SYNTAX, "unknown payload type %d", nextPayload)
		}
		if int(pHeader.PayloadLength) < PAYLOAD_HEADER_LENGTH || int(pHeader.PayloadLength) > len(b) {
			return ErrF(ERR_INVALID_SYNTAX, "payload length out of range")
		}
		pbuf := b[PAYLOAD_HEADER_LENGTH:pHeader.PayloadLength]
		if err = payload.Decode(pbuf); err != nil {
			return
		}
		nextPayload = pHeader.NextPayload
		b = b[pHeader.PayloadLength:]
		s.Payloads.Add(payload)
	}
	return
}

func encodePayloads(payloads *Payloads) (b []byte) {
	for _, pl := range payloads.Array {
		body := pl.Encode()
		hdr := encodePayloadHeader(pl.NextPayloadType(), uint16(len(body)))
		b = append(b, hdr...)
		b = append(b, body...)
	}
	return
}

func (s *Message) Encode(tkm Tkm) (b []byte, err error) {
	nextPayload := s.IkeHeader.NextPayload
	if nextPayload == PayloadTypeSK {
		if tkm == nil {
			return nil, errors.New("protocol: cannot encrypt, no session key material")
		}
		encr := tkm.Encrypt(encodePayloads(s.Payloads))
		firstInner := PayloadTypeNone
		if len(s.Payloads.Array) > 0 {
			firstInner = s.Payloads.Array[0].Type()
		}
		b = append(encodePayloadHeader(firstInner, uint16(len(encr))), encr...)
		s.IkeHeader.MsgLength = uint32(len(b) + IKE_HEADER_LEN + tkm.HashLength())
		b = append(s.IkeHeader.Encode(), b...)
		b = append(b, tkm.Mac(b)...)
	} else {
		b = encodePayloads(s.Payloads)
		s.IkeHeader.MsgLength = uint32(len(b) + IKE_HEADER_LEN)
		b = append(s.IkeHeader.Encode(), b...)
	}
	return
}
