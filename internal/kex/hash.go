package kex

import (
	"crypto/sha1" //nolint:gosec // dh-group1/group14-sha1 are legacy fallbacks, not defaults.
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// hashFuncs maps each key exchange algorithm to the hash it uses for the
// exchange hash H and for session-key derivation (RFC 4253 Section 8, RFC
// 5656 Section 4, grounded on other_examples/lib-ssh-common.go's hashFuncs
// table).
var hashFuncs = map[string]func() hash.Hash{
	Curve25519SHA256:           sha256.New,
	Curve25519SHA256LibSSH:     sha256.New,
	ECDHSHA2NistP256:           sha256.New,
	ECDHSHA2NistP384:           sha512.New384,
	ECDHSHA2NistP521:           sha512.New,
	DiffieHellmanGroup14SHA256: sha256.New,
	DiffieHellmanGroup14SHA1:   sha1.New,
	DiffieHellmanGroup1SHA1:    sha1.New,
}

func hashFuncFor(kexAlgo string) (func() hash.Hash, bool) {
	h, ok := hashFuncs[kexAlgo]
	return h, ok
}
