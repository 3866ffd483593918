// Package kex implements the SSH version/banner exchange and the key
// exchange state machine (RFC 4253 Sections 4, 7, 8; RFC 5656; RFC 8308):
// algorithm negotiation, curve25519/ECDH/finite-field Diffie-Hellman key
// agreement, exchange-hash computation, and session-key derivation
// (SPEC_FULL.md Section 4.E).
package kex

import (
	"fmt"

	"github.com/dantte-lp/gossh/internal/wire"
)

// Named key exchange algorithms, grounded on
// other_examples/lib-ssh-common.go's defaultKexAlgos/allSupportedKexAlgos.
const (
	Curve25519SHA256       = "curve25519-sha256"
	Curve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	ECDHSHA2NistP256       = "ecdh-sha2-nistp256"
	ECDHSHA2NistP384       = "ecdh-sha2-nistp384"
	ECDHSHA2NistP521       = "ecdh-sha2-nistp521"
	DiffieHellmanGroup14SHA256 = "diffie-hellman-group14-sha256"
	DiffieHellmanGroup14SHA1   = "diffie-hellman-group14-sha1"
	DiffieHellmanGroup1SHA1    = "diffie-hellman-group1-sha1"

	// extInfoC is appended to the client's kex_algorithms name-list per
	// RFC 8308 Section 2.1, advertising support for SSH_MSG_EXT_INFO. It
	// is never itself negotiated as the chosen key exchange algorithm.
	extInfoC = "ext-info-c"
)

// Named host key / public key algorithms, preference order per
// SPEC_FULL.md Section 4.E.
const (
	HostKeyED25519          = "ssh-ed25519"
	HostKeyECDSAP256        = "ecdsa-sha2-nistp256"
	HostKeyECDSAP384        = "ecdsa-sha2-nistp384"
	HostKeyECDSAP521        = "ecdsa-sha2-nistp521"
	HostKeyRSASHA256        = "rsa-sha2-256"
	HostKeyRSASHA512        = "rsa-sha2-512"
	HostKeyRSA              = "ssh-rsa"
)

// Named cipher and MAC algorithms offered in KEXINIT, grounded on the same
// source's defaultCiphers/supportedMACs, adapted to the cipher family this
// module actually implements (internal/cipher).
const (
	CipherAES128GCM    = "aes128-gcm@openssh.com"
	CipherAES256GCM    = "aes256-gcm@openssh.com"
	CipherChaCha20     = "chacha20-poly1305@openssh.com"
	CipherAES128CTR    = "aes128-ctr"
	CipherAES192CTR    = "aes192-ctr"
	CipherAES256CTR    = "aes256-ctr"

	MACHMACSHA2256EtM = "hmac-sha2-256-etm@openssh.com"
	MACHMACSHA2512EtM = "hmac-sha2-512-etm@openssh.com"
	MACHMACSHA2256    = "hmac-sha2-256"
	MACHMACSHA2512    = "hmac-sha2-512"

	CompressionNone = "none"
)

// DefaultKexAlgos is the client's key exchange preference list.
// diffie-hellman-group14-sha1 and diffie-hellman-group1-sha1 are not in
// it; they are offered only when listed explicitly in Preferences.KexAlgos,
// per SPEC_FULL.md's Non-goals on legacy algorithms.
var DefaultKexAlgos = []string{
	Curve25519SHA256,
	Curve25519SHA256LibSSH,
	ECDHSHA2NistP256,
	ECDHSHA2NistP384,
	ECDHSHA2NistP521,
	DiffieHellmanGroup14SHA256,
}

// DefaultHostKeyAlgos is the client's host-key preference list.
var DefaultHostKeyAlgos = []string{
	HostKeyED25519,
	HostKeyECDSAP256,
	HostKeyECDSAP384,
	HostKeyECDSAP521,
	HostKeyRSASHA256,
	HostKeyRSASHA512,
	HostKeyRSA,
}

// DefaultCiphers is the client's cipher preference list, applied
// identically to both directions unless overridden.
var DefaultCiphers = []string{
	CipherChaCha20,
	CipherAES128GCM,
	CipherAES256GCM,
	CipherAES128CTR,
	CipherAES192CTR,
	CipherAES256CTR,
}

// DefaultMACs is the client's MAC preference list. Ciphers that are
// AEADs (chacha20-poly1305, the GCM modes) ignore the negotiated MAC;
// it is still offered for compatibility with non-AEAD ciphers.
var DefaultMACs = []string{
	MACHMACSHA2256EtM,
	MACHMACSHA2512EtM,
	MACHMACSHA2256,
	MACHMACSHA2512,
}

// DefaultCompressions is the client's compression preference list.
// SPEC_FULL.md's Non-goals exclude compression transforms; "none" is the
// only member ever offered.
var DefaultCompressions = []string{CompressionNone}

// DirectionAlgorithms holds the negotiated cipher/MAC/compression for one
// direction of traffic (grounded on lib-ssh-common.go's DirectionAlgorithms).
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// Algorithms holds the full negotiation result for one KEXINIT exchange.
type Algorithms struct {
	Kex         string
	HostKey     string
	ClientToServer DirectionAlgorithms
	ServerToClient DirectionAlgorithms
}

// ErrNoCommonAlgorithm is returned when a category of KEXINIT negotiation
// has no intersection between the client's and server's name-lists
// (SPEC_FULL.md Section 4.E, step 2).
type ErrNoCommonAlgorithm struct {
	Category string
	Client   []string
	Server   []string
}

func (e *ErrNoCommonAlgorithm) Error() string {
	return fmt.Sprintf("ssh: no common algorithm for %s; client offered: %v, server offered: %v", e.Category, e.Client, e.Server)
}

// findCommon returns the first entry in client that also appears in
// server: negotiation always defers to the client's preference order
// (SPEC_FULL.md Section 4.E, step 2).
func findCommon(category string, client, server []string) (string, error) {
	for _, c := range client {
		if c == extInfoC {
			continue
		}
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", &ErrNoCommonAlgorithm{Category: category, Client: client, Server: server}
}

// Negotiate computes the agreed algorithm set from the client's and
// server's KEXINIT messages, failing on the first category with no
// intersection.
func Negotiate(client, server *wire.KexInitMsg) (*Algorithms, error) {
	var algs Algorithms
	var err error

	if algs.Kex, err = findCommon("key exchange", client.KexAlgos, server.KexAlgos); err != nil {
		return nil, err
	}
	if algs.HostKey, err = findCommon("host key", client.ServerHostKeyAlgos, server.ServerHostKeyAlgos); err != nil {
		return nil, err
	}
	if algs.ClientToServer.Cipher, err = findCommon("client to server cipher", client.CiphersClientServer, server.CiphersClientServer); err != nil {
		return nil, err
	}
	if algs.ServerToClient.Cipher, err = findCommon("server to client cipher", client.CiphersServerClient, server.CiphersServerClient); err != nil {
		return nil, err
	}
	if algs.ClientToServer.MAC, err = findCommon("client to server MAC", client.MACsClientServer, server.MACsClientServer); err != nil {
		return nil, err
	}
	if algs.ServerToClient.MAC, err = findCommon("server to client MAC", client.MACsServerClient, server.MACsServerClient); err != nil {
		return nil, err
	}
	if algs.ClientToServer.Compression, err = findCommon("client to server compression", client.CompressionClientServer, server.CompressionClientServer); err != nil {
		return nil, err
	}
	if algs.ServerToClient.Compression, err = findCommon("server to client compression", client.CompressionServerClient, server.CompressionServerClient); err != nil {
		return nil, err
	}
	return &algs, nil
}

// BuildClientKexInit returns a KexInitMsg populated from the given
// preference lists, with a fresh random cookie and ext-info-c appended
// (RFC 8308 Section 2.1).
func BuildClientKexInit(cookie [16]byte, kexAlgos, hostKeyAlgos, ciphers, macs, compressions []string) *wire.KexInitMsg {
	kexWithExt := append(append([]string{}, kexAlgos...), extInfoC)
	return &wire.KexInitMsg{
		Cookie:                  cookie,
		KexAlgos:                kexWithExt,
		ServerHostKeyAlgos:      hostKeyAlgos,
		CiphersClientServer:     ciphers,
		CiphersServerClient:     ciphers,
		MACsClientServer:        macs,
		MACsServerClient:        macs,
		CompressionClientServer: compressions,
		CompressionServerClient: compressions,
		LanguagesClientServer:   nil,
		LanguagesServerClient:   nil,
		FirstKexFollows:         false,
	}
}
