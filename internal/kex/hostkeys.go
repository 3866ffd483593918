package kex

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/dantte-lp/gossh/internal/wire"
)

// VerifyHostKeySignature checks the server's KEX reply signature against
// its host key blob, dispatching on the negotiated host-key algorithm
// (RFC 4253 Section 6.6, RFC 5656 Section 3.1, RFC 8332 Section 3).
// signedData is the exchange hash H; signature is the opaque signature
// blob as received in KEXDH_REPLY/KEX_ECDH_REPLY.
func VerifyHostKeySignature(algo string, hostKeyBlob, signedData, signature []byte) error {
	sigAlgo, sigBlob, err := parseSignatureBlob(signature)
	if err != nil {
		return fmt.Errorf("ssh: kex: parse signature: %w", err)
	}

	switch algo {
	case HostKeyED25519:
		return verifyED25519(hostKeyBlob, signedData, sigAlgo, sigBlob)
	case HostKeyECDSAP256, HostKeyECDSAP384, HostKeyECDSAP521:
		return verifyECDSA(algo, hostKeyBlob, signedData, sigAlgo, sigBlob)
	case HostKeyRSA, HostKeyRSASHA256, HostKeyRSASHA512:
		return verifyRSA(hostKeyBlob, signedData, sigAlgo, sigBlob)
	default:
		return fmt.Errorf("ssh: kex: unsupported host key algorithm %q", algo)
	}
}

func parseSignatureBlob(buf []byte) (algo string, blob []byte, err error) {
	name, rest, err := wire.ParseString(buf)
	if err != nil {
		return "", nil, err
	}
	sig, _, err := wire.ParseString(rest)
	if err != nil {
		return "", nil, err
	}
	return string(name), sig, nil
}

func verifyED25519(hostKeyBlob, signedData []byte, sigAlgo string, sig []byte) error {
	if sigAlgo != HostKeyED25519 {
		return fmt.Errorf("ssh: kex: signature algorithm %q does not match host key type %q", sigAlgo, HostKeyED25519)
	}
	name, rest, err := wire.ParseString(hostKeyBlob)
	if err != nil {
		return err
	}
	if string(name) != HostKeyED25519 {
		return fmt.Errorf("ssh: kex: host key blob type %q, want %q", name, HostKeyED25519)
	}
	pub, _, err := wire.ParseString(rest)
	if err != nil {
		return err
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("ssh: kex: ed25519 public key has length %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("ssh: kex: ed25519 signature has length %d, want %d", len(sig), ed25519.SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), signedData, sig) {
		return fmt.Errorf("ssh: kex: ed25519 signature verification failed")
	}
	return nil
}

// ecdsaCurveFor returns the elliptic.Curve and the crypto.Hash used to
// digest the exchange hash before verification, per RFC 5656 Section 6.2.1
// (the hash is tied to the curve's field size, not separately negotiated).
func ecdsaCurveFor(algo string) (elliptic.Curve, crypto.Hash) {
	switch algo {
	case HostKeyECDSAP256:
		return elliptic.P256(), crypto.SHA256
	case HostKeyECDSAP384:
		return elliptic.P384(), crypto.SHA384
	default:
		return elliptic.P521(), crypto.SHA512
	}
}

func verifyECDSA(algo string, hostKeyBlob, signedData []byte, sigAlgo string, sig []byte) error {
	if sigAlgo != algo {
		return fmt.Errorf("ssh: kex: signature algorithm %q does not match host key type %q", sigAlgo, algo)
	}
	name, rest, err := wire.ParseString(hostKeyBlob)
	if err != nil {
		return err
	}
	if string(name) != algo {
		return fmt.Errorf("ssh: kex: host key blob type %q, want %q", name, algo)
	}
	_, rest, err = wire.ParseString(rest) // curve identifier, e.g. "nistp256"
	if err != nil {
		return err
	}
	point, _, err := wire.ParseString(rest)
	if err != nil {
		return err
	}

	curve, hashID := ecdsaCurveFor(algo)
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return fmt.Errorf("ssh: kex: invalid ecdsa point for %q", algo)
	}
	pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}

	r, s, err := parseECDSASignatureBlob(sig)
	if err != nil {
		return err
	}

	h := hashID.New()
	h.Write(signedData)
	digest := h.Sum(nil)

	if !ecdsa.Verify(pub, digest, r, s) {
		return fmt.Errorf("ssh: kex: ecdsa signature verification failed")
	}
	return nil
}

func parseECDSASignatureBlob(blob []byte) (r, s *big.Int, err error) {
	r, rest, err := wire.ParseMpint(blob)
	if err != nil {
		return nil, nil, err
	}
	s, _, err = wire.ParseMpint(rest)
	if err != nil {
		return nil, nil, err
	}
	return r, s, nil
}

// rsaHashFor maps the negotiated public-key signature algorithm to the
// hash used to digest the exchange hash before PKCS#1 v1.5 verification
// (RFC 4253 Section 6.6 for "ssh-rsa"; RFC 8332 Section 3 for the
// rsa-sha2-* extension algorithms).
func rsaHashFor(sigAlgo string) crypto.Hash {
	switch sigAlgo {
	case HostKeyRSASHA256:
		return crypto.SHA256
	case HostKeyRSASHA512:
		return crypto.SHA512
	default:
		return crypto.SHA1
	}
}

func verifyRSA(hostKeyBlob, signedData []byte, sigAlgo string, sig []byte) error {
	name, rest, err := wire.ParseString(hostKeyBlob)
	if err != nil {
		return err
	}
	if string(name) != HostKeyRSA {
		return fmt.Errorf("ssh: kex: host key blob type %q, want %q", name, HostKeyRSA)
	}
	e, rest, err := wire.ParseMpint(rest)
	if err != nil {
		return err
	}
	n, _, err := wire.ParseMpint(rest)
	if err != nil {
		return err
	}
	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}

	cryptoHash := rsaHashFor(sigAlgo)
	h := cryptoHash.New()
	h.Write(signedData)
	digest := h.Sum(nil)

	if err := rsa.VerifyPKCS1v15(pub, cryptoHash, digest, sig); err != nil {
		return fmt.Errorf("ssh: kex: rsa signature verification failed: %w", err)
	}
	return nil
}
