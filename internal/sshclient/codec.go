package sshclient

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/dantte-lp/gossh/internal/cipher"
	"github.com/dantte-lp/gossh/internal/kex"
)

// buildCodecs constructs the read (server-to-client) and write
// (client-to-server) cipher.Codec for one direction pair from a completed
// key exchange, dispatching on the negotiated cipher name (SPEC_FULL.md
// Section 4.C). The MAC ordering (ETM vs E&M) follows the negotiated MAC
// name: the "-etm@openssh.com" names select ETM and the plain hmac-sha2-*
// names select E&M; AEAD ciphers ignore the MAC list entirely. DefaultMACs
// lists both forms, so E&M is used whenever negotiation settles on a plain
// hmac-sha2-* name.
func buildCodecs(algs *kex.Algorithms, keys *kex.Keys) (readCodec, writeCodec cipher.Codec, err error) {
	writeCodec, err = newDirectionCodec(algs.ClientToServer, keys.EncClientToServer, keys.IVClientToServer, keys.MACClientToServer)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: build client-to-server codec: %w", err)
	}
	readCodec, err = newDirectionCodec(algs.ServerToClient, keys.EncServerToClient, keys.IVServerToClient, keys.MACServerToClient)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: build server-to-client codec: %w", err)
	}
	return readCodec, writeCodec, nil
}

func newDirectionCodec(dir kex.DirectionAlgorithms, encKey, iv, macKey []byte) (cipher.Codec, error) {
	switch dir.Cipher {
	case kex.CipherChaCha20:
		// DeriveKeys packs the main/payload key followed by the header/
		// length key into one 64-byte "enc" slot, per the OpenSSH
		// convention (PROTOCOL.chacha20poly1305): the first 32 bytes key
		// the payload cipher, the second 32 bytes key the length cipher.
		// See keySizesFor in internal/kex.
		if len(encKey) != 64 {
			return nil, fmt.Errorf("ssh: chacha20-poly1305: want 64-byte derived key, got %d", len(encKey))
		}
		return cipher.NewChaCha20Poly1305(encKey[32:], encKey[:32])
	case kex.CipherAES128GCM, kex.CipherAES256GCM:
		// RFC 5647 Section 7.1: only the first 4 bytes of the derived IV
		// seed the fixed field; the codec owns the 8-byte invocation
		// counter itself, starting at zero.
		if len(iv) < 4 {
			return nil, fmt.Errorf("ssh: gcm: derived IV has length %d, want at least 4", len(iv))
		}
		return cipher.NewGCM(encKey, iv[:4])
	case kex.CipherAES128CTR, kex.CipherAES192CTR, kex.CipherAES256CTR:
		mf, macSize, etm := macFuncFor(dir.MAC)
		if etm {
			return cipher.NewCTRMACEtM(encKey, iv, macKey, mf, macSize)
		}
		return cipher.NewCTRMACEM(encKey, iv, macKey, mf, macSize)
	default:
		return nil, fmt.Errorf("ssh: unsupported cipher %q", dir.Cipher)
	}
}

func macFuncFor(name string) (mf func() hash.Hash, size int, etm bool) {
	switch name {
	case kex.MACHMACSHA2256EtM:
		return sha256.New, 32, true
	case kex.MACHMACSHA2512EtM:
		return sha512.New, 64, true
	case kex.MACHMACSHA2512:
		return sha512.New, 64, false
	default:
		return sha256.New, 32, false
	}
}
