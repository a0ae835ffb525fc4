package ikev1

import (
	"bytes"
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
)

func aesSha256Dh2048Suite(t *testing.T) *proposal.CipherSuite {
	t.Helper()
	transforms := []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)}, IsLast: true},
	}
	p := &protocol.SaProposal{IsLast: true, Number: 1, ProtocolId: protocol.IKE, Transforms: transforms}
	chosen, err := proposal.Negotiate([]*protocol.SaProposal{p}, []*protocol.SaProposal{p})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	suite, err := proposal.NewCipherSuite(chosen)
	if err != nil {
		t.Fatalf("NewCipherSuite: %v", err)
	}
	return suite
}

func TestTkmPskKeyDerivationAgrees(t *testing.T) {
	suite := aesSha256Dh2048Suite(t)
	psk := []byte("shared secret")

	initTkm, err := NewInitiatorTkm(suite, psk)
	if err != nil {
		t.Fatalf("NewInitiatorTkm: %v", err)
	}
	respTkm, err := NewResponderTkm(suite, initTkm.DhPublic, initTkm.Ni, psk)
	if err != nil {
		t.Fatalf("NewResponderTkm: %v", err)
	}
	if err := initTkm.DhGenerateKey(respTkm.DhPublic); err != nil {
		t.Fatalf("initiator DhGenerateKey: %v", err)
	}
	initTkm.Nr = respTkm.Nr

	icookie, rcookie := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	initTkm.DeriveKeys(icookie, rcookie)
	respTkm.DeriveKeys(icookie, rcookie)

	if !bytes.Equal(initTkm.skeyid, respTkm.skeyid) {
		t.Fatalf("SKEYID mismatch")
	}
	if !bytes.Equal(initTkm.skeyidD, respTkm.skeyidD) {
		t.Fatalf("SKEYID_d mismatch")
	}
	if !bytes.Equal(initTkm.skeyidA, respTkm.skeyidA) {
		t.Fatalf("SKEYID_a mismatch")
	}
	if !bytes.Equal(initTkm.skeyidE, respTkm.skeyidE) {
		t.Fatalf("SKEYID_e mismatch")
	}
}

func TestTkmSignatureSkeyidDiffersFromPsk(t *testing.T) {
	suite := aesSha256Dh2048Suite(t)
	psk := []byte("shared secret")

	pskTkm, _ := NewInitiatorTkm(suite, psk)
	sigTkm, _ := NewInitiatorTkm(suite, nil)
	pskTkm.Nr = sigTkm.Ni
	sigTkm.Ni = pskTkm.Ni
	sigTkm.Nr = pskTkm.Nr
	sigTkm.DhShared = pskTkm.DhPublic

	icookie, rcookie := []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1}
	pskTkm.DhShared = sigTkm.DhShared
	pskTkm.DeriveKeys(icookie, rcookie)
	sigTkm.DeriveKeys(icookie, rcookie)

	if bytes.Equal(pskTkm.skeyid, sigTkm.skeyid) {
		t.Fatalf("expected PSK and signature SKEYID formulas to diverge")
	}
}

func TestQuickModeKeymatDeterministic(t *testing.T) {
	suite := aesSha256Dh2048Suite(t)
	psk := []byte("shared secret")
	tkm, err := NewInitiatorTkm(suite, psk)
	if err != nil {
		t.Fatalf("NewInitiatorTkm: %v", err)
	}
	tkm.DhShared = tkm.DhPublic
	tkm.Nr = tkm.Ni
	tkm.DeriveKeys([]byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{8, 7, 6, 5, 4, 3, 2, 1})

	spi := []byte{9, 9, 9, 9}
	k1 := tkm.QuickModeKeymat(3, spi, tkm.Ni, tkm.Ni, nil, 32)
	k2 := tkm.QuickModeKeymat(3, spi, tkm.Ni, tkm.Ni, nil, 32)
	if !bytes.Equal(k1, k2) {
		t.Fatalf("expected QuickModeKeymat to be deterministic given the same inputs")
	}
	if len(k1) != 32 {
		t.Fatalf("expected 32 bytes of keymat, got %d", len(k1))
	}
}
