package ikev1

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/PatrisiousHaddad/libreswan/internal/proposal"
)

// Tkm holds one Phase 1 SA's keying material: SKEYID and the three keys
// derived from it (SKEYID_d/SKEYID_a/SKEYID_e), following RFC 2409 §5's
// construction. It plays the same role internal/ikev2's Tkm does for
// IKEv2, generalized to IKEv1's distinct SKEYID formula (PSK vs
// signature authentication use different inputs) and its feedback-style
// key expansion (RFC 2409 Appendix B) rather than IKEv2's counter-based
// prf+.
type Tkm struct {
	suite       *proposal.CipherSuite
	isInitiator bool

	Ni, Nr *big.Int

	DhPrivate, DhPublic, DhShared *big.Int

	peerPublic *big.Int // set by DhGenerateKey

	psk []byte // nil when authenticating by signature

	skeyid  []byte
	skeyidD []byte
	skeyidA []byte
	skeyidE []byte
}

// NewInitiatorTkm creates the nonce and DH keypair an initiator sends in
// Main/Aggressive Mode's first keying message.
func NewInitiatorTkm(suite *proposal.CipherSuite, psk []byte) (*Tkm, error) {
	t := &Tkm{suite: suite, isInitiator: true, psk: psk}
	if err := t.nonceCreate(true); err != nil {
		return nil, err
	}
	if err := t.dhCreate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewResponderTkm mirrors internal/ikev2's NewResponderTkm.
func NewResponderTkm(suite *proposal.CipherSuite, theirPublic, ni *big.Int, psk []byte) (*Tkm, error) {
	t := &Tkm{suite: suite, psk: psk, Ni: ni}
	if err := t.nonceCreate(false); err != nil {
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

func (t *Tkm) nonceCreate(initiator bool) error {
	n, err := rand.Prime(rand.Reader, 256)
	if err != nil {
		return err
	}
	if initiator {
		t.Ni = n
	} else {
		t.Nr = n
	}
	return nil
}

func (t *Tkm) dhCreate() error {
	if t.suite.Dh == nil {
		return errors.New("ikev1: no dh group negotiated")
	}
	priv, err := t.suite.Dh.GeneratePrivate()
	if err != nil {
		return err
	}
	t.DhPrivate = priv
	t.DhPublic = t.suite.Dh.Public(priv)
	return nil
}

func (t *Tkm) DhGenerateKey(theirPublic *big.Int) error {
	shared, err := t.suite.Dh.SharedSecret(theirPublic, t.DhPrivate)
	if err != nil {
		return err
	}
	t.DhShared = shared
	t.peerPublic = theirPublic
	return nil
}

// feedbackExpand implements RFC 2409 Appendix B's key-expansion idiom:
// K1 = prf(key, seed), Kn = prf(key, Kn-1 | seed), concatenated until n
// bytes are available. Unlike internal/ikev2's prfplus this carries no
// round counter; the previous block IS the counter.
func (t *Tkm) feedbackExpand(key, seed []byte, n int) []byte {
	var ret, prev []byte
	for len(ret) < n {
		in := append(append([]byte{}, prev...), seed...)
		prev = t.suite.Prf(key, in)
		ret = append(ret, prev...)
	}
	return ret[:n]
}

// DeriveKeys computes SKEYID and SKEYID_d/a/e once both nonces and the DH
// shared secret are known; the SKEYID_d/a/e seeds include g^xy under PSK
// authentication as well. icookie/rcookie are the ISAKMP header's initiator/responder
// cookies (RFC 2409 calls them CKY-I/CKY-R).
func (t *Tkm) DeriveKeys(icookie, rcookie []byte) {
	nonces := append(append([]byte{}, t.Ni.Bytes()...), t.Nr.Bytes()...)
	if t.psk != nil {
		// PSK authentication: SKEYID = prf(pre-shared-key, Ni_b | Nr_b).
		t.skeyid = t.suite.Prf(t.psk, nonces)
	} else {
		// Signature authentication: SKEYID = prf(Ni_b | Nr_b, g^xy).
		t.skeyid = t.suite.Prf(nonces, t.DhShared.Bytes())
	}

	ckyPair := append(append([]byte{}, icookie...), rcookie...)

	dSeed := append(append([]byte{}, t.DhShared.Bytes()...), ckyPair...)
	dSeed = append(dSeed, 0)
	t.skeyidD = t.feedbackExpand(t.skeyid, dSeed, t.suite.PrfLen)

	aSeed := append(append([]byte{}, t.skeyidD...), t.DhShared.Bytes()...)
	aSeed = append(aSeed, ckyPair...)
	aSeed = append(aSeed, 1)
	t.skeyidA = t.feedbackExpand(t.skeyid, aSeed, t.suite.PrfLen)

	eSeed := append(append([]byte{}, t.skeyidA...), t.DhShared.Bytes()...)
	eSeed = append(eSeed, ckyPair...)
	eSeed = append(eSeed, 2)
	t.skeyidE = t.feedbackExpand(t.skeyid, eSeed, encrKeyLen(t.suite))
}

func encrKeyLen(cs *proposal.CipherSuite) int {
	if cs.KeyLen > 0 {
		return cs.KeyLen
	}
	return cs.PrfLen
}

// HashI computes the authentication HASH payload RFC 2409 §5 defines for
// Main/Aggressive Mode: prf(SKEYID, own DH public | peer DH public | CKY-I
// | CKY-R | saBody | idBody). Called by the initiator this is HASH_I's
// g^xi | g^xr order; called by the responder its own public value comes
// first, while the cookies stay in initiator/responder order.
func (t *Tkm) HashI(icookie, rcookie, saBody, idBody []byte) []byte {
	in := append(append([]byte{}, t.DhPublic.Bytes()...), t.dhPeerPublicOrEmpty()...)
	in = append(in, icookie...)
	in = append(in, rcookie...)
	in = append(in, saBody...)
	in = append(in, idBody...)
	return t.suite.Prf(t.skeyid, in)
}

func (t *Tkm) dhPeerPublicOrEmpty() []byte {
	if t.peerPublic == nil {
		return nil
	}
	return t.peerPublic.Bytes()
}

// QuickModeKeymat derives one direction's Phase 2 keying material per RFC
// 2409 §5.5: KEYMAT = prf(SKEYID_d, protocol | SPI | Ni_b | Nr_b), or with
// the DH value prepended when PFS is in use.
func (t *Tkm) QuickModeKeymat(protocolID byte, spi []byte, ni, nr *big.Int, pfsShared *big.Int, n int) []byte {
	seed := []byte{protocolID}
	seed = append(seed, spi...)
	seed = append(seed, ni.Bytes()...)
	seed = append(seed, nr.Bytes()...)
	if pfsShared != nil {
		seed = append(append([]byte{}, pfsShared.Bytes()...), seed...)
	}
	return t.feedbackExpand(t.skeyidD, seed, n)
}
