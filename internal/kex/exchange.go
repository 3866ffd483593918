package kex

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

// Exchange performs one side of a two-party key agreement for a negotiated
// kex algorithm: generate an ephemeral keypair, and compute the shared
// secret once the peer's public value is known.
//
// Curve25519 uses golang.org/x/crypto/curve25519 (SPEC_FULL.md Section 4.C
// DOMAIN STACK note); the NIST curves use stdlib crypto/ecdh; finite-field
// groups use stdlib math/big modular exponentiation — all per RFC 4253
// Section 8 / RFC 5656 Section 4.
type Exchange interface {
	// PublicValue returns this side's ephemeral public value, wire-ready
	// (raw bytes for ECDH/curve25519, the big-endian magnitude bytes of the
	// public value for DH, not yet mpint-encoded).
	PublicValue() []byte

	// SharedSecret computes K from the peer's public value.
	SharedSecret(peerPublic []byte) (*big.Int, error)
}

// NewExchange constructs an Exchange for the named, already-negotiated kex
// algorithm.
func NewExchange(kexAlgo string) (Exchange, error) {
	switch kexAlgo {
	case Curve25519SHA256, Curve25519SHA256LibSSH:
		return newCurve25519Exchange()
	case ECDHSHA2NistP256:
		return newECDHExchange(ecdh.P256())
	case ECDHSHA2NistP384:
		return newECDHExchange(ecdh.P384())
	case ECDHSHA2NistP521:
		return newECDHExchange(ecdh.P521())
	case DiffieHellmanGroup14SHA256, DiffieHellmanGroup14SHA1:
		return newDHExchange(dhGroup14)
	case DiffieHellmanGroup1SHA1:
		return newDHExchange(dhGroup1)
	default:
		return nil, fmt.Errorf("ssh: kex: unsupported algorithm %q", kexAlgo)
	}
}

// curve25519Exchange implements Exchange for curve25519-sha256.
type curve25519Exchange struct {
	private [32]byte
	public  [32]byte
}

func newCurve25519Exchange() (*curve25519Exchange, error) {
	e := &curve25519Exchange{}
	if _, err := rand.Read(e.private[:]); err != nil {
		return nil, fmt.Errorf("ssh: kex: generate curve25519 private: %w", err)
	}
	// Clamping is performed internally by curve25519.X25519.
	pub, err := curve25519.X25519(e.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: derive curve25519 public: %w", err)
	}
	copy(e.public[:], pub)
	return e, nil
}

func (e *curve25519Exchange) PublicValue() []byte { return append([]byte{}, e.public[:]...) }

func (e *curve25519Exchange) SharedSecret(peerPublic []byte) (*big.Int, error) {
	if len(peerPublic) != 32 {
		return nil, fmt.Errorf("ssh: kex: curve25519 peer public must be 32 bytes, got %d", len(peerPublic))
	}
	secret, err := curve25519.X25519(e.private[:], peerPublic)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: curve25519 shared secret: %w", err)
	}
	return new(big.Int).SetBytes(secret), nil
}

// ecdhExchange implements Exchange for ecdh-sha2-nistp256/384/521 (RFC 5656).
type ecdhExchange struct {
	curve   ecdh.Curve
	private *ecdh.PrivateKey
}

func newECDHExchange(curve ecdh.Curve) (*ecdhExchange, error) {
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: generate ECDH key: %w", err)
	}
	return &ecdhExchange{curve: curve, private: priv}, nil
}

func (e *ecdhExchange) PublicValue() []byte {
	return e.private.PublicKey().Bytes()
}

func (e *ecdhExchange) SharedSecret(peerPublic []byte) (*big.Int, error) {
	peer, err := e.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: parse ECDH peer public: %w", err)
	}
	secret, err := e.private.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: ECDH shared secret: %w", err)
	}
	return new(big.Int).SetBytes(secret), nil
}

// dhGroup describes a finite-field Diffie-Hellman group (RFC 3526).
type dhGroup struct {
	prime     *big.Int
	generator *big.Int
}

// dhGroup14 is the 2048-bit MODP group (RFC 3526 Section 3).
var dhGroup14 = &dhGroup{
	prime: mustPrime(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
			"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519" +
			"B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7" +
			"EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F" +
			"24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C5" +
			"5D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9E" +
			"D529077096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
			"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C" +
			"9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E" +
			"5A8AACAA68FFFFFFFFFFFFFFFF"),
	generator: big.NewInt(2),
}

// dhGroup1 is the 1024-bit MODP group (RFC 2409 Section 6.2, "Second
// Oakley Group"), offered only as a last-resort negotiation fallback per
// SPEC_FULL.md's Non-goals on legacy algorithms.
var dhGroup1 = &dhGroup{
	prime: mustPrime(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
			"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519" +
			"B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7" +
			"EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F" +
			"24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF"),
	generator: big.NewInt(2),
}

func mustPrime(hexDigits string) *big.Int {
	p, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		panic("ssh: kex: invalid embedded DH prime constant")
	}
	return p
}

// dhExchange implements Exchange for the finite-field Diffie-Hellman groups
// (RFC 4253 Section 8).
type dhExchange struct {
	group   *dhGroup
	private *big.Int
	public  *big.Int
}

func newDHExchange(group *dhGroup) (*dhExchange, error) {
	// Private exponent x: 1 < x < (p-1)/2, per RFC 4253 Section 8's
	// guidance to choose x from a range that frustrates small-subgroup
	// attacks; this implementation uses a value as wide as the prime.
	max := new(big.Int).Sub(group.prime, big.NewInt(3))
	x, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: generate DH private: %w", err)
	}
	x.Add(x, big.NewInt(2))

	pub := new(big.Int).Exp(group.generator, x, group.prime)
	return &dhExchange{group: group, private: x, public: pub}, nil
}

func (e *dhExchange) PublicValue() []byte { return e.public.Bytes() }

func (e *dhExchange) SharedSecret(peerPublic []byte) (*big.Int, error) {
	f := new(big.Int).SetBytes(peerPublic)
	if f.Cmp(big.NewInt(1)) <= 0 || f.Cmp(new(big.Int).Sub(e.group.prime, big.NewInt(1))) >= 0 {
		return nil, fmt.Errorf("ssh: kex: DH peer public value out of range")
	}
	return new(big.Int).Exp(f, e.private, e.group.prime), nil
}
