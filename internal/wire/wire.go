// Package wire implements the SSH binary wire format (RFC 4251 Section 5):
// fixed-width integers, length-prefixed strings, name-lists, mpints, and
// booleans, plus a reflection-based marshaler that encodes the fields of
// fixed-shape protocol messages in declaration order.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Sentinel errors for malformed wire data. Every decode failure in this
// package wraps one of these so callers can classify faults with errors.Is.
var (
	// ErrMalformedPacket indicates a truncated read or a length field that
	// overruns the remaining buffer.
	ErrMalformedPacket = errors.New("ssh: malformed packet")

	// ErrStringTooLong indicates a string or name-list length prefix larger
	// than the remaining buffer could possibly hold. It wraps
	// ErrMalformedPacket.
	ErrStringTooLong = fmt.Errorf("ssh: string length exceeds buffer: %w", ErrMalformedPacket)
)

// PutUint32 appends n as a 4-byte big-endian integer.
func PutUint32(dst []byte, n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return append(dst, b[:]...)
}

// PutUint64 appends n as an 8-byte big-endian integer.
func PutUint64(dst []byte, n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return append(dst, b[:]...)
}

// PutBool appends b as a single byte, 1 for true and 0 for false
// (RFC 4251 Section 5).
func PutBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// PutString appends s as a uint32 length prefix followed by its bytes
// (RFC 4251 Section 5).
func PutString(dst []byte, s []byte) []byte {
	dst = PutUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// PutNameList appends names as a comma-joined string (RFC 4251 Section 5).
func PutNameList(dst []byte, names []string) []byte {
	joined := joinNames(names)
	return PutString(dst, joined)
}

func joinNames(names []string) []byte {
	n := 0
	for i, name := range names {
		if i > 0 {
			n++
		}
		n += len(name)
	}
	out := make([]byte, 0, n)
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, name...)
	}
	return out
}

// PutMpint appends n in the SSH mpint encoding (RFC 4251 Section 5): a
// uint32 length prefix followed by the two's-complement big-endian bytes.
// Zero is encoded with zero length. A leading 0x00 byte is inserted only
// when the high bit of the first magnitude byte is set, so the value is
// never misread as negative.
func PutMpint(dst []byte, n *big.Int) []byte {
	if n.Sign() == 0 {
		return PutUint32(dst, 0)
	}
	if n.Sign() < 0 {
		// Negative mpints are not produced by this implementation's KEX
		// math (shared secrets and DH publics are always positive), but
		// the encoding is defined here for completeness: two's complement
		// of the magnitude, sign-extended to clear the high bit rule.
		return putNegativeMpint(dst, n)
	}

	b := n.Bytes()
	if b[0]&0x80 != 0 {
		dst = PutUint32(dst, uint32(len(b)+1))
		dst = append(dst, 0x00)
		return append(dst, b...)
	}
	dst = PutUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func putNegativeMpint(dst []byte, n *big.Int) []byte {
	length := n.BitLen()/8 + 1
	twos := new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), uint(length)*8))
	b := twos.Bytes()
	for len(b) < length {
		b = append([]byte{0}, b...)
	}
	dst = PutUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// ParseUint32 reads a 4-byte big-endian integer from the front of buf and
// returns the remainder.
func ParseUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("ssh: read uint32: %w", ErrMalformedPacket)
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

// ParseBool reads a single byte from the front of buf and returns the
// remainder. Any non-zero byte is true (RFC 4251 Section 5).
func ParseBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, fmt.Errorf("ssh: read bool: %w", ErrMalformedPacket)
	}
	return buf[0] != 0, buf[1:], nil
}

// ParseString reads a length-prefixed byte string from the front of buf and
// returns the remainder. The returned slice aliases buf; callers that need
// to retain it past buf's lifetime must copy.
func ParseString(buf []byte) ([]byte, []byte, error) {
	n, rest, err := ParseUint32(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: read string length: %w", err)
	}
	if uint64(n) > uint64(len(rest)) {
		return nil, nil, fmt.Errorf("ssh: string length %d exceeds remaining %d: %w", n, len(rest), ErrStringTooLong)
	}
	return rest[:n], rest[n:], nil
}

// ParseNameList reads a comma-joined name-list from the front of buf and
// returns the remainder. An empty list decodes as a single empty-string
// element per RFC 4251, which this function normalizes to a nil slice.
func ParseNameList(buf []byte) ([]string, []byte, error) {
	s, rest, err := ParseString(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: read name-list: %w", err)
	}
	if len(s) == 0 {
		return nil, rest, nil
	}
	names := splitComma(s)
	return names, rest, nil
}

func splitComma(s []byte) []string {
	var names []string
	start := 0
	for i, c := range s {
		if c == ',' {
			names = append(names, string(s[start:i]))
			start = i + 1
		}
	}
	names = append(names, string(s[start:]))
	return names
}

// ParseMpint reads an SSH mpint from the front of buf and returns the
// remainder (RFC 4251 Section 5). Negative values (high bit set in the
// first byte with no extra 0x00) are decoded via two's complement.
func ParseMpint(buf []byte) (*big.Int, []byte, error) {
	b, rest, err := ParseString(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: read mpint: %w", err)
	}
	if len(b) == 0 {
		return new(big.Int), rest, nil
	}
	if b[0]&0x80 != 0 {
		// Negative: interpret as two's complement.
		twos := new(big.Int).SetBytes(b)
		twos.Sub(twos, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
		return twos, rest, nil
	}
	return new(big.Int).SetBytes(b), rest, nil
}
