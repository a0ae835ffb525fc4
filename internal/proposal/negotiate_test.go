package proposal

import (
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
)

func aesSha256Dh2048() []*protocol.SaTransform {
	return []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)}, IsLast: true},
	}
}

func camelliaSha1Dh1024() []*protocol.SaTransform {
	return []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_CAMELLIA_CBC)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA1)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA1_96)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_1024)}, IsLast: true},
	}
}

func aesCtrSha256Dh2048() []*protocol.SaTransform {
	return []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CTR)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)}, IsLast: true},
	}
}

func aeadGcmDh2048() []*protocol.SaTransform {
	return []*protocol.SaTransform{
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.AEAD_AES_GCM_16)}, KeyLength: 128},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
		{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)}, IsLast: true},
	}
}

func TestNegotiateFirstLocalProposalWins(t *testing.T) {
	local := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true},
	}
	remote := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: camelliaSha1Dh1024()},
		{Number: 2, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true},
	}
	chosen, err := Negotiate(local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.Remote.Number != 2 {
		t.Fatalf("expected remote proposal 2 (the matching one), got %d", chosen.Remote.Number)
	}
	if protocol.EncrTransformId(chosen.Transforms[protocol.TRANSFORM_TYPE_ENCR].TransformId) != protocol.ENCR_AES_CBC {
		t.Fatal("expected AES to be chosen")
	}
}

func TestNegotiatePrefersEarlierLocalProposal(t *testing.T) {
	local := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aeadGcmDh2048()},
		{Number: 2, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true},
	}
	remote := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aeadGcmDh2048()},
		{Number: 2, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true},
	}
	chosen, err := Negotiate(local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.Local.Number != 1 {
		t.Fatalf("expected first local proposal (AEAD) to win, got proposal %d", chosen.Local.Number)
	}
}

func TestNegotiateNoMatchReturnsNoProposalChosen(t *testing.T) {
	local := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true},
	}
	remote := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: camelliaSha1Dh1024(), IsLast: true},
	}
	_, err := Negotiate(local, remote)
	if err == nil {
		t.Fatal("expected negotiation failure")
	}
	ikeErr, ok := err.(protocol.IkeError)
	if !ok || ikeErr.IkeErrorCode != protocol.ERR_NO_PROPOSAL_CHOSEN {
		t.Fatalf("expected ERR_NO_PROPOSAL_CHOSEN, got %v", err)
	}
}

func TestNegotiateAeadSkipsIntegrityRequirement(t *testing.T) {
	local := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aeadGcmDh2048(), IsLast: true},
	}
	remote := []*protocol.SaProposal{
		{Number: 1, ProtocolId: protocol.IKE, Transforms: aeadGcmDh2048(), IsLast: true},
	}
	chosen, err := Negotiate(local, remote)
	if err != nil {
		t.Fatalf("expected AEAD proposal (no INTEG transform) to be accepted: %v", err)
	}
	if _, ok := chosen.Transforms[protocol.TRANSFORM_TYPE_INTEG]; ok {
		t.Fatal("AEAD proposal should not carry a separate INTEG transform")
	}
}

func TestNewCipherSuiteFromChosenAES(t *testing.T) {
	local := []*protocol.SaProposal{{Number: 1, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true}}
	chosen, err := Negotiate(local, local)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := NewCipherSuite(chosen)
	if err != nil {
		t.Fatal(err)
	}
	if cs.IsAead() {
		t.Fatal("expected non-AEAD cipher suite")
	}
	if cs.Block == nil || cs.Integ == nil || cs.Dh == nil {
		t.Fatal("expected block cipher, integrity, and dh group to be populated")
	}
}

func TestCipherSuiteCBCRoundTrip(t *testing.T) {
	local := []*protocol.SaProposal{{Number: 1, ProtocolId: protocol.IKE, Transforms: aesSha256Dh2048(), IsLast: true}}
	chosen, _ := Negotiate(local, local)
	cs, err := NewCipherSuite(chosen)
	if err != nil {
		t.Fatal(err)
	}
	key := make([]byte, cs.KeyLen)
	clear := []byte("a test message that needs padding to a block boundary")
	enc, err := cs.EncryptCBC(clear, key)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := cs.DecryptCBC(enc, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != string(clear) {
		t.Fatalf("roundtrip mismatch: got %q want %q", dec, clear)
	}
}

func TestCipherSuiteCTRRoundTrip(t *testing.T) {
	local := []*protocol.SaProposal{{Number: 1, ProtocolId: protocol.IKE, Transforms: aesCtrSha256Dh2048(), IsLast: true}}
	chosen, _ := Negotiate(local, local)
	cs, err := NewCipherSuite(chosen)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Ctr == nil {
		t.Fatal("expected ctr cipher to be populated")
	}
	key := make([]byte, cs.KeyLen)
	var nonce [4]byte
	clear := []byte("ctr mode needs no padding at all")
	enc, err := cs.EncryptCTR(clear, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := cs.DecryptCTR(enc, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != string(clear) {
		t.Fatalf("roundtrip mismatch: got %q want %q", dec, clear)
	}
}

func TestCipherSuiteAeadRoundTrip(t *testing.T) {
	local := []*protocol.SaProposal{{Number: 1, ProtocolId: protocol.IKE, Transforms: aeadGcmDh2048(), IsLast: true}}
	chosen, _ := Negotiate(local, local)
	cs, err := NewCipherSuite(chosen)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.IsAead() {
		t.Fatal("expected AEAD cipher suite")
	}
	key := make([]byte, cs.KeyLen+4) // +4 for the fixed nonce portion
	aad := []byte("header")
	clear := []byte("secret payload bytes")
	sealed, err := cs.SealAead(clear, key, aad)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := cs.OpenAead(sealed, key, aad)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != string(clear) {
		t.Fatalf("aead roundtrip mismatch: got %q want %q", opened, clear)
	}
}
