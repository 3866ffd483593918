package cipher

import (
	"crypto/sha256"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

// codecPair holds a fresh encode/decode Codec pair for one cipher family
// under test, sharing the same key material so the decoder can read what
// the encoder produced.
type codecPair struct {
	name    string
	encoder Codec
	decoder Codec
}

func newCTREtMPair(t *testing.T) codecPair {
	t.Helper()
	key := make([]byte, 16)
	iv := make([]byte, 16)
	macKey := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	for i := range macKey {
		macKey[i] = byte(i + 2)
	}
	enc, err := NewCTRMACEtM(key, iv, macKey, sha256.New, sha256.Size)
	if err != nil {
		t.Fatalf("NewCTRMACEtM encoder: %v", err)
	}
	dec, err := NewCTRMACEtM(key, iv, macKey, sha256.New, sha256.Size)
	if err != nil {
		t.Fatalf("NewCTRMACEtM decoder: %v", err)
	}
	return codecPair{name: "ctr-etm", encoder: enc, decoder: dec}
}

func newCTREMPair(t *testing.T) codecPair {
	t.Helper()
	key := make([]byte, 16)
	iv := make([]byte, 16)
	macKey := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 5)
	}
	for i := range iv {
		iv[i] = byte(i + 6)
	}
	for i := range macKey {
		macKey[i] = byte(i + 7)
	}
	enc, err := NewCTRMACEM(key, iv, macKey, sha256.New, sha256.Size)
	if err != nil {
		t.Fatalf("NewCTRMACEM encoder: %v", err)
	}
	dec, err := NewCTRMACEM(key, iv, macKey, sha256.New, sha256.Size)
	if err != nil {
		t.Fatalf("NewCTRMACEM decoder: %v", err)
	}
	return codecPair{name: "ctr-em", encoder: enc, decoder: dec}
}

func newChaChaPair(t *testing.T) codecPair {
	t.Helper()
	lengthKey := make([]byte, chachaKeySize)
	payloadKey := make([]byte, chachaKeySize)
	for i := range lengthKey {
		lengthKey[i] = byte(i + 10)
	}
	for i := range payloadKey {
		payloadKey[i] = byte(i + 20)
	}
	enc, err := NewChaCha20Poly1305(lengthKey, payloadKey)
	if err != nil {
		t.Fatalf("NewChaCha20Poly1305 encoder: %v", err)
	}
	dec, err := NewChaCha20Poly1305(lengthKey, payloadKey)
	if err != nil {
		t.Fatalf("NewChaCha20Poly1305 decoder: %v", err)
	}
	return codecPair{name: "chacha20-poly1305", encoder: enc, decoder: dec}
}

func newGCMPair(t *testing.T) codecPair {
	t.Helper()
	key := make([]byte, chacha20poly1305.KeySize)
	fixed := make([]byte, gcmFixedSize)
	for i := range key {
		key[i] = byte(i + 30)
	}
	for i := range fixed {
		fixed[i] = byte(i + 40)
	}
	enc, err := NewGCM(key, fixed)
	if err != nil {
		t.Fatalf("NewGCM encoder: %v", err)
	}
	dec, err := NewGCM(key, fixed)
	if err != nil {
		t.Fatalf("NewGCM decoder: %v", err)
	}
	return codecPair{name: "aes-gcm", encoder: enc, decoder: dec}
}

func newNonePair(t *testing.T) codecPair {
	t.Helper()
	return codecPair{name: "none", encoder: NewNone(), decoder: NewNone()}
}

func allPairs(t *testing.T) []codecPair {
	t.Helper()
	return []codecPair{
		newNonePair(t),
		newCTREtMPair(t),
		newCTREMPair(t),
		newChaChaPair(t),
		newGCMPair(t),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		[]byte("ssh-connection"),
		make([]byte, 1000),
	}

	for _, p := range allPairs(t) {
		for _, payload := range payloads {
			framed, err := p.encoder.Encode(nil, payload, 0)
			if err != nil {
				t.Fatalf("%s: Encode: %v", p.name, err)
			}
			got, consumed, err := p.decoder.Decode(framed, 0, DefaultMaxPacketLength)
			if err != nil {
				t.Fatalf("%s: Decode: %v", p.name, err)
			}
			if consumed != len(framed) {
				t.Fatalf("%s: consumed %d, want %d", p.name, consumed, len(framed))
			}
			if len(got) != len(payload) {
				t.Fatalf("%s: decoded payload len %d, want %d", p.name, len(got), len(payload))
			}
			for i := range payload {
				if got[i] != payload[i] {
					t.Fatalf("%s: byte %d = %x, want %x", p.name, i, got[i], payload[i])
				}
			}
		}
	}
}

func TestCodecSequentialPackets(t *testing.T) {
	for _, p := range allPairs(t) {
		for seq := uint32(0); seq < 4; seq++ {
			payload := []byte{byte(seq), byte(seq + 1), byte(seq + 2)}
			framed, err := p.encoder.Encode(nil, payload, seq)
			if err != nil {
				t.Fatalf("%s: Encode seq %d: %v", p.name, seq, err)
			}
			got, _, err := p.decoder.Decode(framed, seq, DefaultMaxPacketLength)
			if err != nil {
				t.Fatalf("%s: Decode seq %d: %v", p.name, seq, err)
			}
			if string(got) != string(payload) {
				t.Fatalf("%s: seq %d payload = %x, want %x", p.name, seq, got, payload)
			}
		}
	}
}

func TestCodecDecodePending(t *testing.T) {
	for _, p := range allPairs(t) {
		framed, err := p.encoder.Encode(nil, []byte("hello"), 0)
		if err != nil {
			t.Fatalf("%s: Encode: %v", p.name, err)
		}
		if len(framed) < 2 {
			continue
		}
		got, consumed, err := p.decoder.Decode(framed[:len(framed)-1], 0, DefaultMaxPacketLength)
		if err != nil {
			t.Fatalf("%s: Decode partial: %v", p.name, err)
		}
		if consumed != 0 || got != nil {
			t.Fatalf("%s: Decode partial should be pending, got consumed=%d payload=%v", p.name, consumed, got)
		}
	}
}

func TestCodecTamperDetection(t *testing.T) {
	for _, p := range allPairs(t) {
		if p.name == "none" {
			continue // "none" has no integrity protection by design.
		}
		framed, err := p.encoder.Encode(nil, []byte("ssh-connection"), 0)
		if err != nil {
			t.Fatalf("%s: Encode: %v", p.name, err)
		}
		tampered := make([]byte, len(framed))
		copy(tampered, framed)
		tampered[len(tampered)-1] ^= 0xFF

		_, _, err = p.decoder.Decode(tampered, 0, DefaultMaxPacketLength)
		if err == nil {
			t.Fatalf("%s: expected integrity failure on tampered packet", p.name)
		}
	}
}

func TestCodecRejectsOversizePacket(t *testing.T) {
	for _, p := range allPairs(t) {
		framed, err := p.encoder.Encode(nil, make([]byte, 100), 0)
		if err != nil {
			t.Fatalf("%s: Encode: %v", p.name, err)
		}
		_, _, err = p.decoder.Decode(framed, 0, 10)
		if err == nil {
			t.Fatalf("%s: expected ErrPacketTooLong for maxLen below declared length", p.name)
		}
	}
}

func TestCodecZeroDoesNotPanic(t *testing.T) {
	for _, p := range allPairs(t) {
		p.encoder.Zero()
		p.decoder.Zero()
	}
}
