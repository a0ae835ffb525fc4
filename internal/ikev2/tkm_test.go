package ikev2

import (
	"bytes"
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
)

func aesSha256Dh2048() *proposal.Chosen {
	transforms := []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)}, IsLast: true},
	}
	p := &protocol.SaProposal{IsLast: true, Number: 1, ProtocolId: protocol.IKE, Transforms: transforms}
	chosen, err := proposal.Negotiate([]*protocol.SaProposal{p}, []*protocol.SaProposal{p})
	if err != nil {
		panic(err)
	}
	return chosen
}

func TestTkmKeyDerivationAgrees(t *testing.T) {
	suite, err := proposal.NewCipherSuite(aesSha256Dh2048())
	if err != nil {
		t.Fatalf("NewCipherSuite: %v", err)
	}

	initTkm, err := NewInitiatorTkm(suite)
	if err != nil {
		t.Fatalf("NewInitiatorTkm: %v", err)
	}
	respTkm, err := NewResponderTkm(suite, initTkm.DhPublic, initTkm.Ni)
	if err != nil {
		t.Fatalf("NewResponderTkm: %v", err)
	}
	if err := initTkm.DhGenerateKey(respTkm.DhPublic); err != nil {
		t.Fatalf("initiator DhGenerateKey: %v", err)
	}
	initTkm.Nr = respTkm.Nr

	spiI, spiR := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	initTkm.DeriveKeys(spiI, spiR)
	respTkm.DeriveKeys(spiI, spiR)

	if !bytes.Equal(initTkm.skD, respTkm.skD) {
		t.Fatalf("SK_d mismatch")
	}
	if !bytes.Equal(initTkm.skEi, respTkm.skEi) || !bytes.Equal(initTkm.skEr, respTkm.skEr) {
		t.Fatalf("SK_e mismatch")
	}
	if !bytes.Equal(initTkm.skAi, respTkm.skAi) || !bytes.Equal(initTkm.skAr, respTkm.skAr) {
		t.Fatalf("SK_a mismatch")
	}

	ei1, ai1, er1, ar1 := initTkm.IpsecSaCreate()
	ei2, ai2, er2, ar2 := respTkm.IpsecSaCreate()
	if !bytes.Equal(ei1, ei2) || !bytes.Equal(ai1, ai2) || !bytes.Equal(er1, er2) || !bytes.Equal(ar1, ar2) {
		t.Fatalf("child sa keymat mismatch")
	}
}

func TestTkmEncryptVerifyDecryptRoundTrip(t *testing.T) {
	suite, err := proposal.NewCipherSuite(aesSha256Dh2048())
	if err != nil {
		t.Fatalf("NewCipherSuite: %v", err)
	}
	initTkm, _ := NewInitiatorTkm(suite)
	respTkm, _ := NewResponderTkm(suite, initTkm.DhPublic, initTkm.Ni)
	_ = initTkm.DhGenerateKey(respTkm.DhPublic)
	initTkm.Nr = respTkm.Nr

	spiI, spiR := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	initTkm.DeriveKeys(spiI, spiR)
	respTkm.DeriveKeys(spiI, spiR)

	msg := &protocol.Message{
		IkeHeader: &protocol.IkeHeader{
			NextPayload:  protocol.PayloadTypeSK,
			MajorVersion: protocol.IKEV2_MAJOR_VERSION,
			ExchangeType: protocol.IKE_AUTH,
		},
		Payloads: protocol.NewPayloads(),
	}
	msg.Payloads.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{NextPayload: protocol.PayloadTypeNone},
		ProtocolId:       protocol.IKE,
		NotificationType: protocol.NotificationType(0x4000),
	})

	encoded, err := msg.Encode(initTkm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := &protocol.Message{}
	if err := decoded.DecodeHeader(encoded); err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if err := decoded.DecodePayloads(encoded, respTkm); err != nil {
		t.Fatalf("DecodePayloads: %v", err)
	}
	if decoded.Payloads.Get(protocol.PayloadTypeN) == nil {
		t.Fatalf("expected decoded notify payload")
	}
}
