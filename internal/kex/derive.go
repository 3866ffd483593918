package kex

import (
	"hash"
	"math/big"

	"github.com/dantte-lp/gossh/internal/wire"
)

// Key letters identify which of the six session keys is being derived
// (RFC 4253 Section 7.2).
const (
	KeyIVClientToServer  = 'A'
	KeyIVServerToClient  = 'B'
	KeyEncClientToServer = 'C'
	KeyEncServerToClient = 'D'
	KeyMACClientToServer = 'E'
	KeyMACServerToClient = 'F'
)

// Keys holds the six session keys derived after a key exchange (RFC 4253
// Section 7.2).
type Keys struct {
	IVClientToServer  []byte
	IVServerToClient  []byte
	EncClientToServer []byte
	EncServerToClient []byte
	MACClientToServer []byte
	MACServerToClient []byte
}

// DeriveKeys computes all six session keys from the shared secret K, the
// exchange hash H, and the session id, using sizes appropriate to the
// negotiated cipher/MAC pair (SPEC_FULL.md Section 4.E, step 4).
func DeriveKeys(newHash func() hash.Hash, k *big.Int, h, sessionID []byte, ivLen, encLen, macLen int) *Keys {
	return &Keys{
		IVClientToServer:  deriveKey(newHash, k, h, sessionID, KeyIVClientToServer, ivLen),
		IVServerToClient:  deriveKey(newHash, k, h, sessionID, KeyIVServerToClient, ivLen),
		EncClientToServer: deriveKey(newHash, k, h, sessionID, KeyEncClientToServer, encLen),
		EncServerToClient: deriveKey(newHash, k, h, sessionID, KeyEncServerToClient, encLen),
		MACClientToServer: deriveKey(newHash, k, h, sessionID, KeyMACClientToServer, macLen),
		MACServerToClient: deriveKey(newHash, k, h, sessionID, KeyMACServerToClient, macLen),
	}
}

// deriveKey computes HASH(K ∥ H ∥ letter ∥ session_id), then extends with
// HASH(K ∥ H ∥ digest-so-far) until at least length bytes are produced
// (RFC 4253 Section 7.2).
func deriveKey(newHash func() hash.Hash, k *big.Int, h, sessionID []byte, letter byte, length int) []byte {
	kBytes := wire.PutMpint(nil, k)

	hh := newHash()
	hh.Write(kBytes)
	hh.Write(h)
	hh.Write([]byte{letter})
	hh.Write(sessionID)
	digest := hh.Sum(nil)

	out := append([]byte{}, digest...)
	for len(out) < length {
		hh = newHash()
		hh.Write(kBytes)
		hh.Write(h)
		hh.Write(out)
		digest = hh.Sum(nil)
		out = append(out, digest...)
	}
	return out[:length]
}

// ExchangeHashParams collects the fields hashed to produce H (RFC 4253
// Section 8 for finite-field DH; RFC 5656 Section 4 for ECDH/curve25519 —
// both share the same field order and string/mpint framing).
type ExchangeHashParams struct {
	ClientVersion   []byte
	ServerVersion   []byte
	ClientKexInit   []byte
	ServerKexInit   []byte
	HostKey         []byte
	ClientPublic    []byte // raw bytes; hashed as an mpint when ClientPublicIsMpint is set (DH)
	ServerPublic    []byte
	ClientPublicIsMpint bool
	ServerPublicIsMpint bool
	SharedSecret    *big.Int
}

// ComputeExchangeHash returns H = hash(V_C ∥ V_S ∥ I_C ∥ I_S ∥ K_S ∥ <public values> ∥ K).
func ComputeExchangeHash(newHash func() hash.Hash, p ExchangeHashParams) []byte {
	hh := newHash()
	write := func(b []byte) { hh.Write(wire.PutString(nil, b)) }

	write(p.ClientVersion)
	write(p.ServerVersion)
	write(p.ClientKexInit)
	write(p.ServerKexInit)
	write(p.HostKey)

	if p.ClientPublicIsMpint {
		hh.Write(wire.PutMpint(nil, new(big.Int).SetBytes(p.ClientPublic)))
	} else {
		write(p.ClientPublic)
	}
	if p.ServerPublicIsMpint {
		hh.Write(wire.PutMpint(nil, new(big.Int).SetBytes(p.ServerPublic)))
	} else {
		write(p.ServerPublic)
	}

	hh.Write(wire.PutMpint(nil, p.SharedSecret))
	return hh.Sum(nil)
}
