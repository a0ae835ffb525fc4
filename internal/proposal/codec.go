package proposal

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// newCtrStream builds the RFC 3686 CTR construction IKEv2 expects for
// ENCR_AES_CTR/ENCR_CAMELLIA_CTR: a 4-byte nonce (from the key material),
// the 8-byte IV carried on the wire, and a 4-byte big-endian block counter
// that starts at 1 and increments once per block — never reused within an
// SA's lifetime, since a repeated (key, counter) pair breaks CTR mode's
// confidentiality.
func newCtrStream(block cipher.Block, nonce [4]byte, iv []byte) cipher.Stream {
	var counter [4]byte
	counter[3] = 1
	full := append(append(append([]byte{}, nonce[:]...), iv...), counter[:]...)
	return cipher.NewCTR(block, full)
}

// EncryptCBC pads clear to the cipher's block size (pad byte encodes
// padlen-1, RFC 7296 §3.14) and CBC-encrypts it with a fresh random IV,
// returning iv||ciphertext.
func (cs *CipherSuite) EncryptCBC(clear, key []byte) ([]byte, error) {
	if cs.Block == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no CBC block cipher")
	}
	iv := make([]byte, cs.IvLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	mode := cs.Block(key, iv, false)
	if mode == nil {
		return append(iv, clear...), nil
	}
	padLen := mode.BlockSize() - len(clear)%mode.BlockSize()
	padded := append(append([]byte{}, clear...), make([]byte, padLen)...)
	padded[len(padded)-1] = byte(padLen - 1)
	ciphertext := make([]byte, len(padded))
	mode.CryptBlocks(ciphertext, padded)
	return append(iv, ciphertext...), nil
}

// DecryptCBC reverses EncryptCBC: splits the leading IV, CBC-decrypts, and
// strips the trailing pad using the pad-length byte.
func (cs *CipherSuite) DecryptCBC(ivAndCiphertext, key []byte) ([]byte, error) {
	if cs.Block == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no CBC block cipher")
	}
	if len(ivAndCiphertext) < cs.IvLen {
		return nil, fmt.Errorf("proposal: ciphertext shorter than iv")
	}
	iv := ivAndCiphertext[:cs.IvLen]
	ciphertext := ivAndCiphertext[cs.IvLen:]
	mode := cs.Block(key, iv, true)
	if mode == nil {
		return ciphertext, nil
	}
	if len(ciphertext)%mode.BlockSize() != 0 {
		return nil, fmt.Errorf("proposal: ciphertext not a multiple of block size")
	}
	clear := make([]byte, len(ciphertext))
	mode.CryptBlocks(clear, ciphertext)
	if len(clear) == 0 {
		return nil, fmt.Errorf("proposal: empty plaintext")
	}
	padLen := int(clear[len(clear)-1]) + 1
	if padLen > len(clear) || padLen > mode.BlockSize() {
		return nil, fmt.Errorf("proposal: invalid pad length %d", padLen)
	}
	return clear[:len(clear)-padLen], nil
}

// EncryptCTR RFC-3686-encrypts clear with a fresh random 8-byte IV,
// returning iv||ciphertext. CTR needs no padding, unlike EncryptCBC.
func (cs *CipherSuite) EncryptCTR(clear, key []byte, nonce [4]byte) ([]byte, error) {
	if cs.Ctr == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no ctr cipher")
	}
	iv := make([]byte, cs.IvLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	stream, err := cs.Ctr(key, nonce, iv)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(clear))
	stream.XORKeyStream(ciphertext, clear)
	return append(iv, ciphertext...), nil
}

// DecryptCTR reverses EncryptCTR.
func (cs *CipherSuite) DecryptCTR(ivAndCiphertext, key []byte, nonce [4]byte) ([]byte, error) {
	if cs.Ctr == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no ctr cipher")
	}
	if len(ivAndCiphertext) < cs.IvLen {
		return nil, fmt.Errorf("proposal: ciphertext shorter than iv")
	}
	iv := ivAndCiphertext[:cs.IvLen]
	ciphertext := ivAndCiphertext[cs.IvLen:]
	stream, err := cs.Ctr(key, nonce, iv)
	if err != nil {
		return nil, err
	}
	clear := make([]byte, len(ciphertext))
	stream.XORKeyStream(clear, ciphertext)
	return clear, nil
}

// SealAead encrypts+authenticates clear with associated data aad (the IKE
// header and unencrypted payload headers), returning iv||ciphertext||tag.
// key is the cipher key followed by the 4-byte salt (RFC 5282); the nonce
// is salt||iv.
func (cs *CipherSuite) SealAead(clear, key, aad []byte) ([]byte, error) {
	if cs.Aead == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no AEAD cipher")
	}
	aead, err := cs.Aead(key[:len(key)-4])
	if err != nil {
		return nil, err
	}
	iv := make([]byte, cs.IvLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	nonce := append(append([]byte{}, key[len(key)-4:]...), iv...)
	sealed := aead.Seal(nil, nonce[:aead.NonceSize()], clear, aad)
	return append(iv, sealed...), nil
}

// OpenAead reverses SealAead.
func (cs *CipherSuite) OpenAead(ivAndSealed, key, aad []byte) ([]byte, error) {
	if cs.Aead == nil {
		return nil, fmt.Errorf("proposal: cipher suite has no AEAD cipher")
	}
	if len(ivAndSealed) < cs.IvLen {
		return nil, fmt.Errorf("proposal: sealed data shorter than iv")
	}
	aead, err := cs.Aead(key[:len(key)-4])
	if err != nil {
		return nil, err
	}
	iv := ivAndSealed[:cs.IvLen]
	sealed := ivAndSealed[cs.IvLen:]
	nonce := append(append([]byte{}, key[len(key)-4:]...), iv...)
	return aead.Open(nil, nonce[:aead.NonceSize()], sealed, aad)
}
