package userauth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/wire"
)

// ErrUnsupportedKeyType is returned when a loaded or wrapped private key is
// not one of ed25519/ecdsa(P-256/384/521)/rsa.
var ErrUnsupportedKeyType = errors.New("ssh: userauth: unsupported private key type")

// ErrEncryptedPrivateKey is returned when a PEM block carries an
// encryption header. Passphrase-protected keys are out of scope for this
// loader (SPEC_FULL.md's publickey support targets the signing hook
// itself, not a full OpenSSH-format key-file reader).
var ErrEncryptedPrivateKey = errors.New("ssh: userauth: encrypted private keys are not supported")

// KeySigner adapts a stdlib crypto.Signer (ed25519.PrivateKey,
// *ecdsa.PrivateKey, or *rsa.PrivateKey) to the Signer interface
// RunClient's publickey method needs (SPEC_FULL.md Section 4.G,
// "added" paragraph).
type KeySigner struct {
	signer crypto.Signer
	blob   []byte
	algos  []string
}

// NewKeySigner wraps a crypto.Signer, precomputing its SSH wire-format
// public key blob and its ordered list of usable signature algorithm
// names. Returns ErrUnsupportedKeyType for any key type other than
// ed25519/ecdsa/rsa.
func NewKeySigner(signer crypto.Signer) (*KeySigner, error) {
	blob, algos, err := publicKeyBlobAndAlgorithms(signer.Public())
	if err != nil {
		return nil, err
	}
	return &KeySigner{signer: signer, blob: blob, algos: algos}, nil
}

func (k *KeySigner) PublicKeyBlob() []byte { return k.blob }

func (k *KeySigner) Algorithms() []string { return k.algos }

// Sign produces a signature over data using the named algorithm. algo
// selects the digest for RSA (rsa-sha2-256/512 vs. the legacy ssh-rsa
// SHA-1) but is otherwise informative: ed25519 and ecdsa each have exactly
// one signature scheme regardless of which name negotiation picked.
func (k *KeySigner) Sign(algo string, data []byte) ([]byte, error) {
	switch pub := k.signer.Public().(type) {
	case ed25519.PublicKey:
		return k.signer.Sign(rand.Reader, data, crypto.Hash(0))
	case *ecdsa.PublicKey:
		return signECDSA(k.signer, pub, data)
	case *rsa.PublicKey:
		return signRSA(k.signer, data, algo)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}
}

func signECDSA(signer crypto.Signer, pub *ecdsa.PublicKey, data []byte) ([]byte, error) {
	hashID := ecdsaHashFor(pub.Curve)
	h := hashID.New()
	h.Write(data)
	digest := h.Sum(nil)

	sig, err := signer.Sign(rand.Reader, digest, hashID)
	if err != nil {
		return nil, fmt.Errorf("ssh: userauth: ecdsa sign: %w", err)
	}

	var parsed struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(sig, &parsed); err != nil {
		return nil, fmt.Errorf("ssh: userauth: parse ecdsa signature: %w", err)
	}
	out := wire.PutMpint(nil, parsed.R)
	out = wire.PutMpint(out, parsed.S)
	return out, nil
}

func signRSA(signer crypto.Signer, data []byte, algo string) ([]byte, error) {
	hashID := rsaHashForAlgo(algo)
	h := hashID.New()
	h.Write(data)
	digest := h.Sum(nil)

	sig, err := signer.Sign(rand.Reader, digest, hashID)
	if err != nil {
		return nil, fmt.Errorf("ssh: userauth: rsa sign: %w", err)
	}
	return sig, nil
}

func ecdsaHashFor(curve elliptic.Curve) crypto.Hash {
	switch curve.Params().BitSize {
	case 256:
		return crypto.SHA256
	case 384:
		return crypto.SHA384
	default:
		return crypto.SHA512
	}
}

func rsaHashForAlgo(algo string) crypto.Hash {
	switch algo {
	case kex.HostKeyRSASHA512:
		return crypto.SHA512
	case kex.HostKeyRSASHA256:
		return crypto.SHA256
	default:
		return crypto.SHA1
	}
}

// publicKeyBlobAndAlgorithms builds the RFC 4253 Section 6.6 / RFC 5656
// public key blob and the signature algorithm preference list for a
// stdlib public key.
func publicKeyBlobAndAlgorithms(pub crypto.PublicKey) (blob []byte, algos []string, err error) {
	switch p := pub.(type) {
	case ed25519.PublicKey:
		blob = wire.PutString(nil, []byte(kex.HostKeyED25519))
		blob = wire.PutString(blob, p)
		return blob, []string{kex.HostKeyED25519}, nil

	case *ecdsa.PublicKey:
		algo, curveName, err := ecdsaAlgorithmFor(p.Curve)
		if err != nil {
			return nil, nil, err
		}
		point := elliptic.Marshal(p.Curve, p.X, p.Y)
		blob = wire.PutString(nil, []byte(algo))
		blob = wire.PutString(blob, []byte(curveName))
		blob = wire.PutString(blob, point)
		return blob, []string{algo}, nil

	case *rsa.PublicKey:
		blob = wire.PutString(nil, []byte(kex.HostKeyRSA))
		blob = wire.PutMpint(blob, big.NewInt(int64(p.E)))
		blob = wire.PutMpint(blob, p.N)
		// Prefer the RFC 8332 SHA-2 variants; ssh-rsa (SHA-1) is kept as
		// the final, least-preferred fallback for servers that never
		// advertise server-sig-algs.
		return blob, []string{kex.HostKeyRSASHA512, kex.HostKeyRSASHA256, kex.HostKeyRSA}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}
}

func ecdsaAlgorithmFor(curve elliptic.Curve) (algo, curveName string, err error) {
	switch curve.Params().BitSize {
	case 256:
		return kex.HostKeyECDSAP256, "nistp256", nil
	case 384:
		return kex.HostKeyECDSAP384, "nistp384", nil
	case 521:
		return kex.HostKeyECDSAP521, "nistp521", nil
	default:
		return "", "", fmt.Errorf("%w: ecdsa curve with bit size %d", ErrUnsupportedKeyType, curve.Params().BitSize)
	}
}

// LoadPrivateKeySigner reads an unencrypted PEM-encoded private key file
// (PKCS#8, SEC1 EC, or PKCS#1 RSA) and returns a Signer ready to use as a
// userauth.PublicKey credential.
func LoadPrivateKeySigner(path string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: userauth: read private key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("ssh: userauth: %s: no PEM block found", path)
	}
	if _, encrypted := block.Headers["DEK-Info"]; encrypted {
		return nil, fmt.Errorf("ssh: userauth: %s: %w", path, ErrEncryptedPrivateKey)
	}

	signer, err := parsePrivateKeyDER(block.Type, block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ssh: userauth: parse private key %s: %w", path, err)
	}
	return NewKeySigner(signer)
}

func parsePrivateKeyDER(blockType string, der []byte) (crypto.Signer, error) {
	switch blockType {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key of type %T", ErrUnsupportedKeyType, key)
		}
		return signer, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(der)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(der)
	default:
		return nil, fmt.Errorf("%w: PEM block type %q", ErrUnsupportedKeyType, blockType)
	}
}
