// Package cipher implements the SSH packet encoder/decoder family (RFC 4253
// Section 6, RFC 5647, RFC 4344, the ChaCha20-Poly1305 OpenSSH extension):
// framing, padding, sequence-number handling, and per-algorithm
// confidentiality/integrity, behind one PacketCodec capability set so the
// transport loop holds a tagged variant rather than a type switch per
// packet (SPEC_FULL.md Section 9, "Dynamic dispatch").
package cipher

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// DefaultMaxPacketLength is the default maximum decoded packet length (RFC
// 4253 Section 6.1): 32768 bytes of payload is the mandatory minimum a
// server must accept, but implementations commonly allow up to 35000
// total framed bytes; this implementation uses that as MaxPacketLength's
// default, matching the specification.
const DefaultMaxPacketLength = 35000

// absoluteMaxPacketLength is a hard ceiling independent of configuration,
// matching RFC 4253's informal guidance against multi-megabyte packets;
// 2^18 bytes (262144).
const absoluteMaxPacketLength = 1 << 18

// Sentinel errors for packet codec faults. All are fatal to the transport
// (SPEC_FULL.md Section 7): the connection must be torn down, never
// recovered from in place.
var (
	// ErrPacketTooLong indicates a declared packet length exceeding
	// MaxPacketLength or the absolute ceiling.
	ErrPacketTooLong = errors.New("ssh: packet too long")

	// ErrBadLength indicates a packet length that is not a multiple of
	// the cipher's required block size.
	ErrBadLength = errors.New("ssh: packet length not a multiple of block size")

	// ErrIntegrityFailure indicates a MAC or AEAD tag mismatch.
	ErrIntegrityFailure = errors.New("ssh: MAC or tag verification failed")

	// ErrMalformedPacket indicates a structurally invalid packet (e.g. a
	// padding length that leaves no payload).
	ErrMalformedPacket = errors.New("ssh: malformed packet")
)

// Codec is the common contract every cipher family implements: an
// Encoder/Decoder pair bound to one direction (client-to-server or
// server-to-client) with its own key material and nonce/IV state.
//
// A Codec is stateful and single-owner: Encode and Decode advance internal
// counters and must be called in strict sequence-number order.
type Codec interface {
	// Encode appends the framed, encrypted representation of payload to
	// dst and returns the result. seqNum is the outbound sequence number
	// for this packet (SPEC_FULL.md Section 3, "Sequence numbers").
	Encode(dst []byte, payload []byte, seqNum uint32) ([]byte, error)

	// Decode attempts to decode one packet from the front of buf, which
	// holds all currently buffered inbound bytes. It returns the decoded
	// payload and the number of leading bytes of buf that were consumed.
	// If buf does not yet hold a complete packet, it returns (nil, 0, nil)
	// (Pending) without consuming anything. maxLen bounds the declared
	// packet_length field; the transport passes MaxPacketLength.
	Decode(buf []byte, seqNum uint32, maxLen uint32) (payload []byte, consumed int, err error)

	// Zero overwrites the key and IV bytes the codec keeps in its own
	// fields: both ChaCha20 keys, the CTR codecs' MAC key, and the GCM
	// fixed IV field. Key schedules and counters held inside crypto/aes and
	// crypto/cipher values (the AES cipher keys, the CTR stream state) are
	// not overwritten. Called once, immediately before the codec is
	// discarded at NEWKEYS (SPEC_FULL.md Section 9, "Key zeroization").
	Zero()
}

// paddedBlockSize returns max(cipherBlockSize, 8) per RFC 4253 Section 6: padding
// always rounds up to a multiple of the larger of the cipher block size and
// 8 bytes, even for stream-shaped ciphers that have no real block size.
func paddedBlockSize(cipherBlockSize int) int {
	if cipherBlockSize < 8 {
		return 8
	}
	return cipherBlockSize
}

// computePaddingLength returns the pad_len such that
// 1 (pad_len field) + len(payload) + pad_len is a multiple of block, and
// pad_len is at least 4 (RFC 4253 Section 6).
func computePaddingLength(payloadLen int, block int) byte {
	block = paddedBlockSize(block)
	total := 1 + payloadLen
	pad := block - (total % block)
	if pad < 4 {
		pad += block
	}
	return byte(pad)
}

// randomPadding returns n freshly generated random padding bytes.
func randomPadding(n int) ([]byte, error) {
	pad := make([]byte, n)
	if _, err := rand.Read(pad); err != nil {
		return nil, fmt.Errorf("ssh: generate padding: %w", err)
	}
	return pad, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func checkMaxLen(declared uint32, maxLen uint32) error {
	limit := maxLen
	if limit == 0 || limit > absoluteMaxPacketLength {
		limit = absoluteMaxPacketLength
	}
	if declared > limit {
		return fmt.Errorf("ssh: declared length %d exceeds limit %d: %w", declared, limit, ErrPacketTooLong)
	}
	return nil
}
