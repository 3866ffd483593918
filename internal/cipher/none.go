package cipher

import (
	"fmt"

	"github.com/dantte-lp/gossh/internal/wire"
)

// noneCodec implements the "none" cipher: the pre-KEX framing and the
// explicit no-encryption choice (SPEC_FULL.md Section 4.C):
// uint32 length | byte pad_len | payload | pad | no MAC.
type noneCodec struct{}

// NewNone returns a Codec implementing the unencrypted framing used before
// the first NEWKEYS and whenever "none" is explicitly negotiated.
func NewNone() Codec {
	return &noneCodec{}
}

func (c *noneCodec) Encode(dst []byte, payload []byte, _ uint32) ([]byte, error) {
	padLen := computePaddingLength(len(payload), 8)
	pad, err := randomPadding(int(padLen))
	if err != nil {
		return nil, err
	}

	packetLen := uint32(1 + len(payload) + len(pad))
	dst = wire.PutUint32(dst, packetLen)
	dst = append(dst, padLen)
	dst = append(dst, payload...)
	dst = append(dst, pad...)
	return dst, nil
}

func (c *noneCodec) Decode(buf []byte, _ uint32, maxLen uint32) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	packetLen, _, err := wire.ParseUint32(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("ssh: none cipher: %w", err)
	}
	if err := checkMaxLen(packetLen, maxLen); err != nil {
		return nil, 0, err
	}
	total := 4 + int(packetLen)
	if len(buf) < total {
		return nil, 0, nil
	}

	padLen := int(buf[4])
	payloadEnd := total - padLen
	if padLen < 4 || payloadEnd < 5 {
		return nil, 0, fmt.Errorf("ssh: none cipher: pad_len %d invalid for packet_length %d: %w", padLen, packetLen, ErrMalformedPacket)
	}

	payload := make([]byte, payloadEnd-5)
	copy(payload, buf[5:payloadEnd])
	return payload, total, nil
}

func (c *noneCodec) Zero() {}
