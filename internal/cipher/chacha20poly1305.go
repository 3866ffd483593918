package cipher

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"

	"github.com/dantte-lp/gossh/internal/wire"
)

// chachaKeySize is the key size for each of K1 and K2 (RFC: chacha20 uses
// 256-bit keys).
const chachaKeySize = 32

// poly1305TagSize is the Poly1305 authentication tag size.
const poly1305TagSize = 16

// chacha20Poly1305Codec implements the chacha20-poly1305@openssh.com cipher
// (SPEC_FULL.md Section 4.C): two keys K1/K2; length encrypted with K1
// keystream at block 0; payload encrypted with K2 starting at block 1;
// Poly1305 tag over length ∥ ciphertext with a one-time key taken from K2
// block 0.
//
// Unlike the CTR ciphers, chacha20poly1305 derives its keystream fresh from
// (key, nonce) per packet rather than advancing a continuous stream, so
// seqNum alone determines the nonce and no pending-decode state is needed
// across calls with insufficient data.
type chacha20Poly1305Codec struct {
	lengthKey  [chachaKeySize]byte
	payloadKey [chachaKeySize]byte
}

// NewChaCha20Poly1305 returns a Codec for chacha20-poly1305@openssh.com.
// lengthKey and payloadKey must each be chachaKeySize bytes (K1, K2 in the
// OpenSSH naming; this implementation keeps K2 = payloadKey since the
// payload is the larger and more frequently referenced key).
func NewChaCha20Poly1305(lengthKey, payloadKey []byte) (Codec, error) {
	if len(lengthKey) != chachaKeySize || len(payloadKey) != chachaKeySize {
		return nil, fmt.Errorf("ssh: chacha20-poly1305: keys must be %d bytes", chachaKeySize)
	}
	c := &chacha20Poly1305Codec{}
	copy(c.lengthKey[:], lengthKey)
	copy(c.payloadKey[:], payloadKey)
	return c, nil
}

// fullNonce returns the 12-byte chacha20 nonce for seqNum: eight zero bytes
// followed by the 4-byte big-endian sequence number (the OpenSSH extension's
// 64-bit big-endian sequence number, left-padded with four zero bytes).
func fullNonce(seqNum uint32) [12]byte {
	var n [12]byte
	copy(n[8:], wire.PutUint32(nil, seqNum))
	return n
}

func (c *chacha20Poly1305Codec) polyKey(nonce [12]byte) ([32]byte, *chacha20.Cipher, error) {
	payCipher, err := chacha20.NewUnauthenticatedCipher(c.payloadKey[:], nonce[:])
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("ssh: chacha20-poly1305: %w", err)
	}
	var key [32]byte
	payCipher.XORKeyStream(key[:], key[:])
	payCipher.SetCounter(1)
	return key, payCipher, nil
}

func (c *chacha20Poly1305Codec) Encode(dst []byte, payload []byte, seqNum uint32) ([]byte, error) {
	padLen := computePaddingLength(len(payload), 8)
	pad, err := randomPadding(int(padLen))
	if err != nil {
		return nil, err
	}

	packetLen := uint32(1 + len(payload) + len(pad))
	lengthBytes := wire.PutUint32(nil, packetLen)

	nonce := fullNonce(seqNum)
	lenCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("ssh: chacha20-poly1305: %w", err)
	}
	encLength := make([]byte, 4)
	lenCipher.XORKeyStream(encLength, lengthBytes)

	polyKey, payCipher, err := c.polyKey(nonce)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, 0, packetLen)
	plain = append(plain, padLen)
	plain = append(plain, payload...)
	plain = append(plain, pad...)
	ciphertext := make([]byte, len(plain))
	payCipher.XORKeyStream(ciphertext, plain)

	msg := make([]byte, 0, 4+len(ciphertext))
	msg = append(msg, encLength...)
	msg = append(msg, ciphertext...)
	var tag [poly1305TagSize]byte
	poly1305.Sum(&tag, msg, &polyKey)

	dst = append(dst, encLength...)
	dst = append(dst, ciphertext...)
	dst = append(dst, tag[:]...)
	return dst, nil
}

func (c *chacha20Poly1305Codec) Decode(buf []byte, seqNum uint32, maxLen uint32) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}

	nonce := fullNonce(seqNum)
	lenCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce[:])
	if err != nil {
		return nil, 0, fmt.Errorf("ssh: chacha20-poly1305: %w", err)
	}
	var declared [4]byte
	lenCipher.XORKeyStream(declared[:], buf[:4])

	packetLen, _, err := wire.ParseUint32(declared[:])
	if err != nil {
		return nil, 0, fmt.Errorf("ssh: chacha20-poly1305: %w", err)
	}
	if err := checkMaxLen(packetLen, maxLen); err != nil {
		return nil, 0, err
	}

	total := 4 + int(packetLen) + poly1305TagSize
	if len(buf) < total {
		return nil, 0, nil
	}

	polyKey, payCipher, err := c.polyKey(nonce)
	if err != nil {
		return nil, 0, err
	}

	msg := make([]byte, 0, 4+int(packetLen))
	msg = append(msg, buf[:4]...)
	msg = append(msg, buf[4:4+packetLen]...)
	var wantTag [poly1305TagSize]byte
	poly1305.Sum(&wantTag, msg, &polyKey)
	gotTag := buf[4+packetLen : total]
	if subtle.ConstantTimeCompare(wantTag[:], gotTag) != 1 {
		return nil, 0, ErrIntegrityFailure
	}

	plain := make([]byte, packetLen)
	payCipher.XORKeyStream(plain, buf[4:4+packetLen])

	padLen := int(plain[0])
	payloadEnd := len(plain) - padLen
	if padLen < 4 || payloadEnd < 1 {
		return nil, 0, fmt.Errorf("ssh: chacha20-poly1305: pad_len %d invalid: %w", padLen, ErrMalformedPacket)
	}
	payload := make([]byte, payloadEnd-1)
	copy(payload, plain[1:payloadEnd])
	return payload, total, nil
}

func (c *chacha20Poly1305Codec) Zero() {
	zero(c.lengthKey[:])
	zero(c.payloadKey[:])
}
