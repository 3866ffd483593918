package cipher

import (
	"crypto/aes"
	cryptocipher "crypto/cipher"
	"crypto/hmac"
	"fmt"
	"hash"

	"github.com/dantte-lp/gossh/internal/wire"
)

// macFunc builds a new hash.Hash for HMAC, keyed by macKey. Stored rather
// than a *hmac instance so a fresh HMAC state can be derived per packet.
type macFunc func() hash.Hash

// ctrEtmCodec implements CTR encryption with encrypt-then-MAC ordering
// (SPEC_FULL.md Section 4.C): the packet_length field travels in the
// clear, the MAC covers seq_no || length || ciphertext, and the ciphertext
// is only decrypted after the MAC has been verified.
type ctrEtmCodec struct {
	block   cryptocipher.Block
	stream  cryptocipher.Stream
	macKey  []byte
	macFunc macFunc
	macSize int
}

// NewCTRMACEtM returns a Codec for an aes*-ctr cipher combined with an HMAC
// in encrypt-then-MAC mode (e.g. "aes128-ctr" with "hmac-sha2-256-etm@openssh.com").
func NewCTRMACEtM(cipherKey, iv, macKey []byte, mf macFunc, macSize int) (Codec, error) {
	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("ssh: ctr-etm: %w", err)
	}
	return &ctrEtmCodec{
		block:   block,
		stream:  cryptocipher.NewCTR(block, iv),
		macKey:  macKey,
		macFunc: mf,
		macSize: macSize,
	}, nil
}

func (c *ctrEtmCodec) blockSize() int { return c.block.BlockSize() }

func (c *ctrEtmCodec) Encode(dst []byte, payload []byte, seqNum uint32) ([]byte, error) {
	padLen := computePaddingLength(len(payload), c.blockSize())
	pad, err := randomPadding(int(padLen))
	if err != nil {
		return nil, err
	}

	packetLen := uint32(1 + len(payload) + len(pad))
	lengthOff := len(dst)
	dst = wire.PutUint32(dst, packetLen)
	plainOff := len(dst)
	dst = append(dst, padLen)
	dst = append(dst, payload...)
	dst = append(dst, pad...)

	c.stream.XORKeyStream(dst[plainOff:], dst[plainOff:])

	mac := hmac.New(c.macFunc, c.macKey)
	mac.Write(wire.PutUint32(nil, seqNum))
	mac.Write(dst[lengthOff:])
	dst = mac.Sum(dst)
	return dst, nil
}

func (c *ctrEtmCodec) Decode(buf []byte, seqNum uint32, maxLen uint32) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	packetLen, _, err := wire.ParseUint32(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("ssh: ctr-etm: %w", err)
	}
	if err := checkMaxLen(packetLen, maxLen); err != nil {
		return nil, 0, err
	}
	if int(packetLen)%c.blockSize() != 0 {
		return nil, 0, fmt.Errorf("ssh: ctr-etm: packet_length %d not a multiple of block size %d: %w", packetLen, c.blockSize(), ErrBadLength)
	}

	total := 4 + int(packetLen) + c.macSize
	if len(buf) < total {
		return nil, 0, nil
	}

	mac := hmac.New(c.macFunc, c.macKey)
	mac.Write(wire.PutUint32(nil, seqNum))
	mac.Write(buf[:4+packetLen])
	want := mac.Sum(nil)
	got := buf[4+packetLen : total]
	if !hmac.Equal(want, got) {
		return nil, 0, ErrIntegrityFailure
	}

	plain := make([]byte, packetLen)
	c.stream.XORKeyStream(plain, buf[4:4+packetLen])

	padLen := int(plain[0])
	payloadEnd := len(plain) - padLen
	if padLen < 4 || payloadEnd < 1 {
		return nil, 0, fmt.Errorf("ssh: ctr-etm: pad_len %d invalid: %w", padLen, ErrMalformedPacket)
	}
	payload := make([]byte, payloadEnd-1)
	copy(payload, plain[1:payloadEnd])
	return payload, total, nil
}

func (c *ctrEtmCodec) Zero() {
	zero(c.macKey)
}

// ctrEmCodec implements CTR encryption with encrypt-and-MAC ordering
// (SPEC_FULL.md Section 4.C): the packet_length field is itself encrypted,
// so the first cipher block must be decrypted to learn the total length,
// and the MAC covers seq_no || plaintext_packet.
type ctrEmCodec struct {
	block   cryptocipher.Block
	stream  cryptocipher.Stream
	macKey  []byte
	macFunc macFunc
	macSize int

	// pending holds in-flight decode state across calls, since learning
	// the packet length requires permanently advancing the CTR
	// keystream by one block before the rest of the packet has arrived.
	pending *pendingEM
}

type pendingEM struct {
	packetLen  uint32
	firstBlock []byte
}

// NewCTRMACEM returns a Codec for an aes*-ctr cipher combined with an HMAC
// in the classic encrypt-and-MAC mode (e.g. "aes128-ctr" with "hmac-sha2-256").
func NewCTRMACEM(cipherKey, iv, macKey []byte, mf macFunc, macSize int) (Codec, error) {
	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("ssh: ctr: %w", err)
	}
	return &ctrEmCodec{
		block:   block,
		stream:  cryptocipher.NewCTR(block, iv),
		macKey:  macKey,
		macFunc: mf,
		macSize: macSize,
	}, nil
}

func (c *ctrEmCodec) blockSize() int { return c.block.BlockSize() }

func (c *ctrEmCodec) Encode(dst []byte, payload []byte, seqNum uint32) ([]byte, error) {
	// The length field is encrypted too, so the padding aligns the whole
	// framed packet (4 + packet_length) to the block size, as Decode checks.
	padLen := computePaddingLength(4+len(payload), c.blockSize())
	pad, err := randomPadding(int(padLen))
	if err != nil {
		return nil, err
	}

	packetLen := uint32(1 + len(payload) + len(pad))
	plain := wire.PutUint32(nil, packetLen)
	plain = append(plain, padLen)
	plain = append(plain, payload...)
	plain = append(plain, pad...)

	mac := hmac.New(c.macFunc, c.macKey)
	mac.Write(wire.PutUint32(nil, seqNum))
	mac.Write(plain)
	tag := mac.Sum(nil)

	off := len(dst)
	dst = append(dst, plain...)
	c.stream.XORKeyStream(dst[off:], dst[off:])
	dst = append(dst, tag...)
	return dst, nil
}

func (c *ctrEmCodec) Decode(buf []byte, seqNum uint32, maxLen uint32) ([]byte, int, error) {
	block := c.blockSize()

	if c.pending == nil {
		if len(buf) < block {
			return nil, 0, nil
		}
		first := make([]byte, block)
		c.stream.XORKeyStream(first, buf[:block])

		packetLen, _, err := wire.ParseUint32(first)
		if err != nil {
			return nil, 0, fmt.Errorf("ssh: ctr: %w", err)
		}
		if err := checkMaxLen(packetLen, maxLen); err != nil {
			return nil, 0, err
		}
		if int(4+packetLen)%block != 0 {
			return nil, 0, fmt.Errorf("ssh: ctr: framed length %d not a multiple of block size %d: %w", 4+packetLen, block, ErrBadLength)
		}
		c.pending = &pendingEM{packetLen: packetLen, firstBlock: first}
	}

	total := 4 + int(c.pending.packetLen) + c.macSize
	if len(buf) < total {
		return nil, 0, nil
	}

	plain := make([]byte, 4+c.pending.packetLen)
	copy(plain, c.pending.firstBlock)
	if rem := len(plain) - block; rem > 0 {
		c.stream.XORKeyStream(plain[block:], buf[block:block+rem])
	}

	mac := hmac.New(c.macFunc, c.macKey)
	mac.Write(wire.PutUint32(nil, seqNum))
	mac.Write(plain)
	want := mac.Sum(nil)
	got := buf[4+c.pending.packetLen : total]
	if !hmac.Equal(want, got) {
		c.pending = nil
		return nil, 0, ErrIntegrityFailure
	}

	padLen := int(plain[4])
	payloadEnd := len(plain) - padLen
	if padLen < 4 || payloadEnd < 5 {
		c.pending = nil
		return nil, 0, fmt.Errorf("ssh: ctr: pad_len %d invalid: %w", padLen, ErrMalformedPacket)
	}
	payload := make([]byte, payloadEnd-5)
	copy(payload, plain[5:payloadEnd])

	c.pending = nil
	return payload, total, nil
}

func (c *ctrEmCodec) Zero() {
	zero(c.macKey)
}
