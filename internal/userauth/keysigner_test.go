package userauth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/gossh/internal/kex"
)

// verifyRoundTrip signs data with signer for its first preferred algorithm
// and checks kex.VerifyHostKeySignature accepts it against the signer's
// own public key blob — end-to-end proof that the blob and signature
// wire formats this package produces are exactly what the kex package's
// host-key verifier (grounded on the same RFC 4253/5656/8332 formats)
// expects.
func verifyRoundTrip(t *testing.T, signer Signer, algo string) {
	t.Helper()

	data := []byte("userauth keysigner round-trip test payload")
	sig, err := signer.Sign(algo, data)
	if err != nil {
		t.Fatalf("Sign(%q): %v", algo, err)
	}
	sigBlob := marshalSignatureBlob(algo, sig)

	if err := kex.VerifyHostKeySignature(algo, signer.PublicKeyBlob(), data, sigBlob); err != nil {
		t.Errorf("VerifyHostKeySignature(%q): %v", algo, err)
	}
}

func TestKeySignerEd25519(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewKeySigner(priv)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}

	if got := signer.Algorithms(); len(got) != 1 || got[0] != kex.HostKeyED25519 {
		t.Errorf("Algorithms() = %v, want [%s]", got, kex.HostKeyED25519)
	}

	verifyRoundTrip(t, signer, kex.HostKeyED25519)
}

func TestKeySignerECDSA(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		curve elliptic.Curve
		algo  string
	}{
		{elliptic.P256(), kex.HostKeyECDSAP256},
		{elliptic.P384(), kex.HostKeyECDSAP384},
		{elliptic.P521(), kex.HostKeyECDSAP521},
	} {
		priv, err := ecdsa.GenerateKey(tc.curve, rand.Reader)
		if err != nil {
			t.Fatalf("generate %s key: %v", tc.algo, err)
		}
		signer, err := NewKeySigner(priv)
		if err != nil {
			t.Fatalf("NewKeySigner(%s): %v", tc.algo, err)
		}
		if got := signer.Algorithms(); len(got) != 1 || got[0] != tc.algo {
			t.Errorf("Algorithms() = %v, want [%s]", got, tc.algo)
		}
		verifyRoundTrip(t, signer, tc.algo)
	}
}

func TestKeySignerRSA(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	signer, err := NewKeySigner(priv)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}

	wantAlgos := []string{kex.HostKeyRSASHA512, kex.HostKeyRSASHA256, kex.HostKeyRSA}
	if got := signer.Algorithms(); len(got) != len(wantAlgos) {
		t.Fatalf("Algorithms() = %v, want %v", got, wantAlgos)
	}

	for _, algo := range wantAlgos {
		verifyRoundTrip(t, signer, algo)
	}
}

func TestLoadPrivateKeySignerPKCS8(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	path := writeKeyPEM(t, "PRIVATE KEY", der, nil)

	signer, err := LoadPrivateKeySigner(path)
	if err != nil {
		t.Fatalf("LoadPrivateKeySigner: %v", err)
	}
	verifyRoundTrip(t, signer, kex.HostKeyED25519)
}

func TestLoadPrivateKeySignerECPrivateKey(t *testing.T) {
	t.Parallel()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal ec private key: %v", err)
	}
	path := writeKeyPEM(t, "EC PRIVATE KEY", der, nil)

	signer, err := LoadPrivateKeySigner(path)
	if err != nil {
		t.Fatalf("LoadPrivateKeySigner: %v", err)
	}
	verifyRoundTrip(t, signer, kex.HostKeyECDSAP256)
}

func TestLoadPrivateKeySignerEncryptedRejected(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	path := writeKeyPEM(t, "PRIVATE KEY", der, map[string]string{"DEK-Info": "AES-128-CBC,0"})

	_, err = LoadPrivateKeySigner(path)
	if err == nil {
		t.Fatal("LoadPrivateKeySigner() on an encrypted-looking PEM returned nil error")
	}
}

func writeKeyPEM(t *testing.T, blockType string, der []byte, headers map[string]string) string {
	t.Helper()

	block := &pem.Block{Type: blockType, Bytes: der, Headers: headers}
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}
