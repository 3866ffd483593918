package cipher

import (
	"crypto/aes"
	cryptocipher "crypto/cipher"
	"fmt"

	"github.com/dantte-lp/gossh/internal/wire"
)

// gcmTagSize is the AES-GCM authentication tag size (RFC 5647).
const gcmTagSize = 16

// gcmFixedSize is the fixed portion of the 12-byte GCM nonce (RFC 5647
// Section 7.1): the remaining 8 bytes are the invocation counter.
const gcmFixedSize = 4

// gcmCodec implements an AES-GCM cipher (RFC 5647, "aes128-gcm@openssh.com"
// / "aes256-gcm@openssh.com"): the packet_length field is plaintext and
// serves as AAD, ciphertext length is a multiple of 16, and the 12-byte IV
// is split into a 4-byte fixed field and an 8-byte invocation counter
// incremented big-endian after every packet (SPEC_FULL.md Section 4.C).
type gcmCodec struct {
	aead       cryptocipher.AEAD
	fixed      [gcmFixedSize]byte
	invocation uint64
}

// NewGCM returns a Codec for AES-GCM with the given key and the 4-byte
// fixed IV field (the remaining 8 bytes are the invocation counter, which
// starts at zero and is owned by this codec).
func NewGCM(key []byte, fixedIV []byte) (Codec, error) {
	if len(fixedIV) != gcmFixedSize {
		return nil, fmt.Errorf("ssh: gcm: fixed IV must be %d bytes", gcmFixedSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ssh: gcm: %w", err)
	}
	aead, err := cryptocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ssh: gcm: %w", err)
	}
	c := &gcmCodec{aead: aead}
	copy(c.fixed[:], fixedIV)
	return c, nil
}

func (c *gcmCodec) nonce() [12]byte {
	var n [12]byte
	copy(n[:gcmFixedSize], c.fixed[:])
	copy(n[gcmFixedSize:], wire.PutUint64(nil, c.invocation))
	return n
}

// advance increments the invocation counter big-endian, wrapping per RFC
// 5647 Section 7.1 (in practice a rekey happens long before this wraps).
func (c *gcmCodec) advance() {
	c.invocation++
}

func (c *gcmCodec) Encode(dst []byte, payload []byte, _ uint32) ([]byte, error) {
	padLen := computePaddingLength(len(payload), 16)
	pad, err := randomPadding(int(padLen))
	if err != nil {
		return nil, err
	}

	packetLen := uint32(1 + len(payload) + len(pad))
	lengthBytes := wire.PutUint32(nil, packetLen)

	plain := make([]byte, 0, packetLen)
	plain = append(plain, padLen)
	plain = append(plain, payload...)
	plain = append(plain, pad...)

	nonce := c.nonce()
	sealed := c.aead.Seal(nil, nonce[:], plain, lengthBytes)
	c.advance()

	dst = append(dst, lengthBytes...)
	dst = append(dst, sealed...)
	return dst, nil
}

func (c *gcmCodec) Decode(buf []byte, _ uint32, maxLen uint32) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	packetLen, _, err := wire.ParseUint32(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("ssh: gcm: %w", err)
	}
	if err := checkMaxLen(packetLen, maxLen); err != nil {
		return nil, 0, err
	}
	if packetLen%16 != 0 {
		return nil, 0, fmt.Errorf("ssh: gcm: packet_length %d not a multiple of 16: %w", packetLen, ErrBadLength)
	}

	total := 4 + int(packetLen) + gcmTagSize
	if len(buf) < total {
		return nil, 0, nil
	}

	nonce := c.nonce()
	plain, err := c.aead.Open(nil, nonce[:], buf[4:total], buf[:4])
	if err != nil {
		return nil, 0, ErrIntegrityFailure
	}
	c.advance()

	padLen := int(plain[0])
	payloadEnd := len(plain) - padLen
	if padLen < 4 || payloadEnd < 1 {
		return nil, 0, fmt.Errorf("ssh: gcm: pad_len %d invalid: %w", padLen, ErrMalformedPacket)
	}
	payload := make([]byte, payloadEnd-1)
	copy(payload, plain[1:payloadEnd])
	return payload, total, nil
}

func (c *gcmCodec) Zero() {
	zero(c.fixed[:])
}
