package userauth

// Signer signs data with a private key and identifies itself with a public
// key blob and algorithm name, matching crypto.Signer plus the two extra
// pieces of metadata the SSH wire format needs. A *userauth.KeySigner
// wraps any crypto.Signer (RSA, ECDSA, Ed25519) that implements this.
type Signer interface {
	// PublicKeyBlob returns the SSH wire encoding of the public key
	// (RFC 4253 Section 6.6 format, e.g. the ssh-ed25519 or
	// ecdsa-sha2-nistp256 encoding).
	PublicKeyBlob() []byte
	// Algorithms returns the signature algorithm names this key can
	// produce, most preferred first (e.g. ["rsa-sha2-512",
	// "rsa-sha2-256", "ssh-rsa"] for an RSA key, enabling RFC 8332
	// negotiation against the server's server-sig-algs list).
	Algorithms() []string
	// Sign produces a signature over data using the named algorithm.
	Sign(algo string, data []byte) ([]byte, error)
}

// Credential is one authentication method to try, in the order supplied to
// RunClient.
type Credential interface {
	isCredential()
}

// Password is a password-authentication credential (RFC 4252 Section 8).
type Password string

func (Password) isCredential() {}

// PublicKey is a publickey-authentication credential (RFC 4252 Section 7).
type PublicKey struct {
	Signer Signer
}

func (PublicKey) isCredential() {}
