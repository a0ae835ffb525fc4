// Package ikev2 implements the IKEv2 exchange state machine of §4.5/§4.6:
// the per-SA keying material (this file), the message builders for
// IKE_SA_INIT/IKE_AUTH/CREATE_CHILD_SA/INFORMATIONAL, the IKE_SA_INIT
// request/response handlers, and the session that ties them to
// internal/routing.
package ikev2

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
)

// Tkm holds the per-IKE-SA keying material: nonces, the DH exchange, and
// the keys an IKE_SA_INIT exchange derives (SK_d/SK_ai/SK_ar/SK_ei/SK_er/
// SK_pi/SK_pr), following the SKEYSEED/prf+ construction of RFC 7296
// §2.14. It implements protocol.Tkm so the wire codec can call back into
// it for encrypt/decrypt/mac without depending on this package.
type Tkm struct {
	suite       *proposal.CipherSuite
	isInitiator bool

	Ni, Nr *big.Int

	DhPrivate, DhPublic, DhShared *big.Int

	skD        []byte
	skPi, skPr []byte
	skAi, skAr []byte
	skEi, skEr []byte
}

// NewInitiatorTkm creates the nonce and DH keypair an initiator sends in
// IKE_SA_INIT.
func NewInitiatorTkm(suite *proposal.CipherSuite) (*Tkm, error) {
	t := &Tkm{suite: suite, isInitiator: true}
	if err := t.nonceCreate(suite.PrfLen * 8); err != nil {
		return nil, err
	}
	if err := t.dhCreate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewResponderTkm creates the responder's nonce and DH keypair, and
// immediately computes the shared secret from the initiator's public
// value since the responder never sends a second message for it.
func NewResponderTkm(suite *proposal.CipherSuite, theirPublic, ni *big.Int) (*Tkm, error) {
	t := &Tkm{suite: suite, Ni: ni}
	if err := t.nonceCreate(ni.BitLen()); err != nil {
		return nil, err
	}
	if err := t.dhCreate(); err != nil {
		return nil, err
	}
	if err := t.DhGenerateKey(theirPublic); err != nil {
		return nil, err
	}
	return t, nil
}

// nonceCreate generates this side's nonce. RFC 7296 §2.10: at least half
// the negotiated prf's key size, never fewer than 128 bits.
func (t *Tkm) nonceCreate(bits int) error {
	if bits < 128 {
		bits = 128
	}
	n, err := rand.Prime(rand.Reader, bits)
	if err != nil {
		return err
	}
	if t.isInitiator {
		t.Ni = n
	} else {
		t.Nr = n
	}
	return nil
}

func (t *Tkm) dhCreate() error {
	if t.suite.Dh == nil {
		return errors.New("ikev2: no dh group negotiated")
	}
	priv, err := t.suite.Dh.GeneratePrivate()
	if err != nil {
		return err
	}
	t.DhPrivate = priv
	t.DhPublic = t.suite.Dh.Public(priv)
	return nil
}

// DhGenerateKey computes the shared secret once the peer's public value
// is known.
func (t *Tkm) DhGenerateKey(theirPublic *big.Int) error {
	shared, err := t.suite.Dh.SharedSecret(theirPublic, t.DhPrivate)
	if err != nil {
		return err
	}
	t.DhShared = shared
	return nil
}

// prfplus is RFC 7296 §2.13's prf+: T1 = prf(K, S | 0x01), T2 = prf(K, T1
// | S | 0x02), ... concatenated until at least n bytes are available.
func (t *Tkm) prfplus(key, data []byte, n int) []byte {
	var ret, prev []byte
	for round := byte(1); len(ret) < n; round++ {
		in := append(append([]byte{}, prev...), data...)
		in = append(in, round)
		prev = t.suite.Prf(key, in)
		ret = append(ret, prev...)
	}
	return ret[:n]
}

// macKeyLen and encrKeyLen account for RFC 5282's combined-mode (AEAD)
// case: SK_ai/SK_ar are not derived at all, and SK_ei/SK_er carry a
// 4-byte salt appended to the raw encryption key.
func macKeyLen(cs *proposal.CipherSuite) int {
	if cs.IsAead() {
		return 0
	}
	return cs.MacKeyLen
}

func encrKeyLen(cs *proposal.CipherSuite) int {
	if cs.IsAead() {
		return cs.KeyLen + 4
	}
	return cs.KeyLen
}

// DeriveKeys computes SKEYSEED and the seven SK_* keys once both nonces
// and the DH shared secret are known, per RFC 7296 §2.14.
func (t *Tkm) DeriveKeys(spiI, spiR []byte) {
	skeyseed := t.suite.Prf(append(t.Ni.Bytes(), t.Nr.Bytes()...), t.DhShared.Bytes())

	mkl := macKeyLen(t.suite)
	ekl := encrKeyLen(t.suite)
	kmLen := 3*t.suite.PrfLen + 2*ekl + 2*mkl

	seed := append(append([]byte{}, t.Ni.Bytes()...), t.Nr.Bytes()...)
	seed = append(seed, spiI...)
	seed = append(seed, spiR...)
	keymat := t.prfplus(skeyseed, seed, kmLen)

	offset := 0
	t.skD = keymat[offset : offset+t.suite.PrfLen]
	offset += t.suite.PrfLen
	t.skAi = keymat[offset : offset+mkl]
	offset += mkl
	t.skAr = keymat[offset : offset+mkl]
	offset += mkl
	t.skEi = keymat[offset : offset+ekl]
	offset += ekl
	t.skEr = keymat[offset : offset+ekl]
	offset += ekl
	t.skPi = keymat[offset : offset+t.suite.PrfLen]
	offset += t.suite.PrfLen
	t.skPr = keymat[offset : offset+t.suite.PrfLen]
}

// IpsecSaCreate derives the four ESP/AH keys for a Child SA from SK_d,
// per RFC 7296 §2.17: KEYMAT = prf+(SK_d, Ni | Nr).
func (t *Tkm) IpsecSaCreate() (encrI, authI, encrR, authR []byte) {
	ekl := encrKeyLen(t.suite)
	mkl := macKeyLen(t.suite)
	kmLen := 2*ekl + 2*mkl
	keymat := t.prfplus(t.skD, append(t.Ni.Bytes(), t.Nr.Bytes()...), kmLen)

	offset := 0
	encrI = keymat[offset : offset+ekl]
	offset += ekl
	authI = keymat[offset : offset+mkl]
	offset += mkl
	encrR = keymat[offset : offset+ekl]
	offset += ekl
	authR = keymat[offset : offset+mkl]
	return
}

func (t *Tkm) integKey(forVerify bool) []byte {
	if forVerify == t.isInitiator {
		return t.skAr
	}
	return t.skAi
}

func (t *Tkm) encrKey(forDecrypt bool) []byte {
	if forDecrypt == t.isInitiator {
		return t.skEr
	}
	return t.skEi
}

// VerifyDecrypt implements protocol.Tkm: verify the trailing integrity
// checksum over the whole message, then decrypt the SK payload body.
// ike is the full, still-encoded message (header included).
func (t *Tkm) VerifyDecrypt(ike []byte) (protocol.PayloadType, []byte, error) {
	macLen := t.suite.MacLen
	if len(ike) < protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH+macLen {
		return 0, nil, errors.New("ikev2: encrypted message too short")
	}
	if !t.suite.IsAead() {
		msg := ike[:len(ike)-macLen]
		mac := ike[len(ike)-macLen:]
		expected := t.suite.Integ(t.integKey(true), msg)[:macLen]
		if !hmac.Equal(mac, expected) {
			return 0, nil, errors.New("ikev2: integrity check failed")
		}
	}
	hdr := &protocol.PayloadHeader{}
	if err := hdr.Decode(ike[protocol.IKE_HEADER_LEN : protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH]); err != nil {
		return 0, nil, err
	}
	body := ike[protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH : len(ike)-macLenIfSeparate(t.suite)]

	var clear []byte
	var err error
	key := t.encrKey(true)
	if t.suite.IsAead() {
		aad := ike[:protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH]
		clear, err = t.suite.OpenAead(body, key, aad)
	} else {
		clear, err = t.suite.DecryptCBC(body, key)
	}
	if err != nil {
		return 0, nil, err
	}
	return hdr.NextPayloadType(), clear, nil
}

func macLenIfSeparate(cs *proposal.CipherSuite) int {
	if cs.IsAead() {
		return 0
	}
	return cs.MacLen
}

// Encrypt implements protocol.Tkm: encrypt (and, for AEAD suites,
// authenticate) one payload block. The caller appends the IKE header and
// (for non-AEAD suites) calls Mac separately.
func (t *Tkm) Encrypt(payload []byte) []byte {
	key := t.encrKey(false)
	var enc []byte
	var err error
	if t.suite.IsAead() {
		enc, err = t.suite.SealAead(payload, key, nil)
	} else {
		enc, err = t.suite.EncryptCBC(payload, key)
	}
	if err != nil {
		// suite was validated at negotiation time; a failure here means a
		// key-length mismatch bug, not a recoverable runtime condition.
		panic(fmt.Sprintf("ikev2: encrypt: %v", err))
	}
	return enc
}

// Mac implements protocol.Tkm. AEAD suites carry their tag inside the
// ciphertext already, so there is no separate trailer.
func (t *Tkm) Mac(b []byte) []byte {
	if t.suite.IsAead() {
		return nil
	}
	return t.suite.Integ(t.integKey(false), b)[:t.suite.MacLen]
}

// HashLength implements protocol.Tkm.
func (t *Tkm) HashLength() int {
	if t.suite.IsAead() {
		return 0
	}
	return t.suite.MacLen
}
