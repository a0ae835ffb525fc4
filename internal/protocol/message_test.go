package protocol

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/msgboxio/packets"
)

// saInitHeader is the first 28 bytes of a real IKE_SA_INIT packet capture,
// used to exercise IkeHeader encode/decode symmetry.
var saInitHeader = `
92 8f 3f 58 1f 05 a5 63  00 00 00 00 00 00 00 00
21 20 22 08 00 00 00 00  00 00 01 a8
`

func TestIkeHeaderRoundTrip(t *testing.T) {
	b := packets.Hexit(saInitHeader).Bytes()
	h, err := DecodeIkeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if h.ExchangeType != IKE_SA_INIT {
		t.Fatalf("got exchange type %s, want IKE_SA_INIT", h.ExchangeType)
	}
	if h.MajorVersion != 2 || h.MinorVersion != 0 {
		t.Fatalf("got version %d.%d, want 2.0", h.MajorVersion, h.MinorVersion)
	}
	if !h.Flags.IsInitiator() {
		t.Fatal("expected initiator flag set")
	}
	if h.Flags.IsResponse() {
		t.Fatal("did not expect response flag set")
	}
	enc := h.Encode()
	if !bytes.Equal(enc, b) {
		t.Fatalf("encode/decode mismatch:\n got %x\nwant %x", enc, b)
	}
}

func TestMessagePlaintextRoundTrip(t *testing.T) {
	msg := &Message{
		IkeHeader: &IkeHeader{
			NextPayload:   PayloadTypeSA,
			MajorVersion:  IKEV2_MAJOR_VERSION,
			MinorVersion:  IKEV2_MINOR_VERSION,
			ExchangeType:  IKE_SA_INIT,
			Flags:         INITIATOR,
		},
		Payloads: makePayloads(),
	}
	msg.Payloads.Add(&SaPayload{
		PayloadHeader: &PayloadHeader{NextPayload: PayloadTypeKE},
		Proposals: []*SaProposal{{
			IsLast:     true,
			Number:     1,
			ProtocolId: IKE,
			Transforms: []*SaTransform{
				{Transform: _ENCR_AES_CBC, KeyLength: 128},
				{Transform: _PRF_HMAC_SHA2_256},
				{Transform: _AUTH_HMAC_SHA2_256_128},
				{Transform: _MODP_2048, IsLast: true},
			},
		}},
	})
	msg.Payloads.Add(&KePayload{
		PayloadHeader: &PayloadHeader{NextPayload: PayloadTypeNonce},
		DhTransformId: MODP_2048,
		KeyData:       big.NewInt(0x1234567890),
	})
	msg.Payloads.Add(&NoncePayload{
		PayloadHeader: &PayloadHeader{NextPayload: PayloadTypeNone},
		Nonce:         new(big.Int).SetBytes(bytes.Repeat([]byte{0x42}, 32)),
	})

	enc, err := msg.Encode(nil)
	if err != nil {
		t.Fatal(err)
	}

	got := &Message{}
	if err := got.DecodeHeader(enc); err != nil {
		t.Fatal(err)
	}
	if err := got.DecodePayloads(enc, nil); err != nil {
		t.Fatal(err)
	}

	sa, ok := got.Payloads.Get(PayloadTypeSA).(*SaPayload)
	if !ok {
		t.Fatal("expected SA payload")
	}
	if len(sa.Proposals) != 1 || len(sa.Proposals[0].Transforms) != 4 {
		t.Fatalf("unexpected proposal shape: %+v", sa.Proposals)
	}

	ke, ok := got.Payloads.Get(PayloadTypeKE).(*KePayload)
	if !ok || ke.DhTransformId != MODP_2048 {
		t.Fatalf("unexpected KE payload: %+v", ke)
	}

	no, ok := got.Payloads.Get(PayloadTypeNonce).(*NoncePayload)
	if !ok || no.Nonce.Cmp(new(big.Int).SetBytes(bytes.Repeat([]byte{0x42}, 32))) != 0 {
		t.Fatalf("unexpected nonce payload: %+v", no)
	}
}

func TestSkfFragmentRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 2500)
	frags := Fragmenter(payload, 1024)
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	for i, f := range frags {
		if f.FragmentNumber != uint16(i+1) || f.TotalFragments != 3 {
			t.Fatalf("fragment %d has wrong numbering: %+v", i, f)
		}
		enc := f.Encode()
		got := &SkfPayload{PayloadHeader: &PayloadHeader{}}
		if err := got.Decode(enc); err != nil {
			t.Fatal(err)
		}
		if got.FragmentNumber != f.FragmentNumber || got.TotalFragments != f.TotalFragments {
			t.Fatalf("fragment header mismatch after roundtrip: %+v vs %+v", got, f)
		}
		if !bytes.Equal(got.Data, f.Data) {
			t.Fatal("fragment data mismatch after roundtrip")
		}
	}
	if !bytes.Equal(Reassemble(frags), payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestSkfFragmentRejectsOutOfRangeNumber(t *testing.T) {
	b := make([]byte, MIN_LEN_SKF)
	packets.WriteB16(b, 0, 0)
	packets.WriteB16(b, 2, 2)
	f := &SkfPayload{PayloadHeader: &PayloadHeader{}}
	if err := f.Decode(b); err == nil {
		t.Fatal("expected error for fragment number 0")
	}
}

func TestNotificationTypeStringsDoNotCollideWithErrorCodes(t *testing.T) {
	if _, ok := GetIkeErrorCode(NO_PROPOSAL_CHOSEN); !ok {
		t.Fatal("expected NO_PROPOSAL_CHOSEN to map to an error code")
	}
	if _, ok := GetIkeErrorCode(INITIAL_CONTACT); ok {
		t.Fatal("INITIAL_CONTACT is a status type, not an error type")
	}
}
