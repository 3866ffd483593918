package kex

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/dantte-lp/gossh/internal/wire"
)

// Option configures RunClient's optional logging hook (SPEC_FULL.md
// Section 10). Omitting opts entirely gets slog.Default().
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

func newRunConfig(opts []Option) runConfig {
	cfg := runConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger replaces the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// PacketIO is the minimal packet-level contract the kex state machine
// needs from the transport (SPEC_FULL.md Section 4.D owns the concrete
// implementation: a cipher.Codec pair plus sequence counters over a
// wire.Buffer). Decoupling kex from transport this way avoids a transport
// <-> kex import cycle, since transport also invokes kex on rekey.
type PacketIO interface {
	ReadPacket() ([]byte, error)
	WritePacket(payload []byte) error
}

// Preferences is the caller-configurable algorithm preference lists
// (SPEC_FULL.md Section 3, "Connection settings"). Nil fields fall back to
// the package defaults.
type Preferences struct {
	KexAlgos      []string
	HostKeyAlgos  []string
	Ciphers       []string
	MACs          []string
	Compressions  []string
	MaxPacketSize uint32
}

func (p Preferences) withDefaults() Preferences {
	if p.KexAlgos == nil {
		p.KexAlgos = DefaultKexAlgos
	}
	if p.HostKeyAlgos == nil {
		p.HostKeyAlgos = DefaultHostKeyAlgos
	}
	if p.Ciphers == nil {
		p.Ciphers = DefaultCiphers
	}
	if p.MACs == nil {
		p.MACs = DefaultMACs
	}
	if p.Compressions == nil {
		p.Compressions = DefaultCompressions
	}
	return p
}

// Result is everything the caller needs after a successful key exchange:
// the negotiated algorithms, the derived session keys, the exchange hash
// (which becomes the session id on the first kex), and the server's raw
// host key blob for verification against the trust store.
//
// The RFC 8308 server-sig-algs extension is not carried here: per Section
// 2.3 it is sent as the packet immediately following NEWKEYS, which
// travels under the newly derived keys — this function hands back control
// before that swap happens, so internal/userauth recognizes and consumes
// SSH_MSG_EXT_INFO itself via kex.ParseServerSigAlgs.
type Result struct {
	Algorithms   *Algorithms
	Keys         *Keys
	ExchangeHash []byte
	HostKeyBlob  []byte
}

// RunClient performs one full key exchange: KEXINIT negotiation, the
// negotiated key exchange algorithm, signature verification, session-key
// derivation, and the NEWKEYS handshake (SPEC_FULL.md Section 4.E). The
// banner exchange is not done here: the caller exchanges version lines
// beforehand and passes both in as clientVersion/serverVersion, which feed
// the exchange hash.
//
// On a rekey, pass the existing sessionID (unchanged across the
// connection's lifetime per RFC 4253 Section 7.2) and nil for
// clientVersion/serverVersion (the banner is only exchanged once).
func RunClient(pio PacketIO, clientVersion, serverVersion []byte, prefs Preferences, sessionID []byte, verifyHostKey func(hostKeyBlob []byte) error, verifySignature func(hostKeyBlob, signedData, signature []byte) error, opts ...Option) (*Result, error) {
	cfg := newRunConfig(opts)
	prefs = prefs.withDefaults()
	cfg.logger.Debug("ssh: kex: starting key exchange", "rekey", sessionID != nil)

	var cookie [16]byte
	if _, err := rand.Read(cookie[:]); err != nil {
		return nil, fmt.Errorf("ssh: kex: generate cookie: %w", err)
	}
	clientInit := BuildClientKexInit(cookie, prefs.KexAlgos, prefs.HostKeyAlgos, prefs.Ciphers, prefs.MACs, prefs.Compressions)
	clientInitBytes := clientInit.Marshal()
	if err := pio.WritePacket(clientInitBytes); err != nil {
		return nil, fmt.Errorf("ssh: kex: write KEXINIT: %w", err)
	}

	serverInitBytes, err := pio.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: read KEXINIT: %w", err)
	}
	serverInit, err := wire.ParseKexInitMsg(serverInitBytes)
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: parse KEXINIT: %w", err)
	}

	algs, err := Negotiate(clientInit, serverInit)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("ssh: kex: negotiated algorithms", "kex", algs.Kex, "cipher", algs.ClientToServer.Cipher, "mac", algs.ClientToServer.MAC)

	newHash, ok := hashFuncFor(algs.Kex)
	if !ok {
		return nil, fmt.Errorf("ssh: kex: no hash function registered for %q", algs.Kex)
	}

	exchange, err := NewExchange(algs.Kex)
	if err != nil {
		return nil, err
	}
	isDH := algs.Kex == DiffieHellmanGroup14SHA256 || algs.Kex == DiffieHellmanGroup14SHA1 || algs.Kex == DiffieHellmanGroup1SHA1

	clientPublic := exchange.PublicValue()
	if isDH {
		if err := pio.WritePacket(marshalKexDHInit(clientPublic)); err != nil {
			return nil, fmt.Errorf("ssh: kex: write KEXDH_INIT: %w", err)
		}
	} else {
		init := &kexECDHInitMsg{ClientPublic: clientPublic}
		if err := pio.WritePacket(init.marshal()); err != nil {
			return nil, fmt.Errorf("ssh: kex: write KEX_ECDH_INIT: %w", err)
		}
	}

	replyBytes, err := pio.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: read KEX reply: %w", err)
	}

	var hostKeyBlob, serverPublic, signature []byte
	if isDH {
		reply, err := parseKexDHReplyMsg(replyBytes)
		if err != nil {
			return nil, fmt.Errorf("ssh: kex: parse KEXDH_REPLY: %w", err)
		}
		hostKeyBlob, signature = reply.HostKey, reply.Signature
		serverPublic = reply.ServerPublic.Bytes()
	} else {
		reply, err := parseKexECDHReplyMsg(replyBytes)
		if err != nil {
			return nil, fmt.Errorf("ssh: kex: parse KEX_ECDH_REPLY: %w", err)
		}
		hostKeyBlob, serverPublic, signature = reply.HostKey, reply.ServerPublic, reply.Signature
	}

	if verifyHostKey != nil {
		if err := verifyHostKey(hostKeyBlob); err != nil {
			return nil, err
		}
	}

	k, err := exchange.SharedSecret(serverPublic)
	if err != nil {
		return nil, err
	}

	h := ComputeExchangeHash(newHash, ExchangeHashParams{
		ClientVersion:       clientVersion,
		ServerVersion:       serverVersion,
		ClientKexInit:       clientInitBytes,
		ServerKexInit:       serverInitBytes,
		HostKey:             hostKeyBlob,
		ClientPublic:        clientPublic,
		ServerPublic:        serverPublic,
		ClientPublicIsMpint: isDH,
		ServerPublicIsMpint: isDH,
		SharedSecret:        k,
	})

	if verifySignature != nil {
		if err := verifySignature(hostKeyBlob, h, signature); err != nil {
			return nil, err
		}
	}

	effectiveSessionID := sessionID
	if effectiveSessionID == nil {
		effectiveSessionID = h
	}

	ivLen, encLen, macLen := keySizesFor(algs)
	keys := DeriveKeys(newHash, k, h, effectiveSessionID, ivLen, encLen, macLen)

	if err := pio.WritePacket(marshalNewKeys()); err != nil {
		return nil, fmt.Errorf("ssh: kex: write NEWKEYS: %w", err)
	}
	newKeysBytes, err := pio.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("ssh: kex: read NEWKEYS: %w", err)
	}
	if !isNewKeys(newKeysBytes) {
		return nil, fmt.Errorf("ssh: kex: expected NEWKEYS, got message id %d", firstByte(newKeysBytes))
	}
	cfg.logger.Info("ssh: kex: key exchange completed", "kex", algs.Kex, "host_key", algs.HostKey)

	return &Result{
		Algorithms:   algs,
		Keys:         keys,
		ExchangeHash: h,
		HostKeyBlob:  hostKeyBlob,
	}, nil
}

func firstByte(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	return int(b[0])
}

func marshalKexDHInit(publicBytes []byte) []byte {
	m := &kexDHInitMsg{ClientPublic: new(big.Int).SetBytes(publicBytes)}
	return m.marshal()
}

// keySizesFor returns the IV/encryption-key/MAC-key lengths required by the
// negotiated cipher and MAC, using the client-to-server cipher as
// representative (this implementation negotiates the same cipher for both
// directions, per Preferences).
func keySizesFor(algs *Algorithms) (ivLen, encLen, macLen int) {
	switch algs.ClientToServer.Cipher {
	case CipherChaCha20:
		return 0, 64, 0 // two 32-byte keys packed into the "enc" key slot
	case CipherAES128GCM:
		return 12, 16, 0
	case CipherAES256GCM:
		return 12, 32, 0
	case CipherAES128CTR:
		ivLen, encLen = 16, 16
	case CipherAES192CTR:
		ivLen, encLen = 16, 24
	case CipherAES256CTR:
		ivLen, encLen = 16, 32
	default:
		ivLen, encLen = 16, 16
	}

	switch algs.ClientToServer.MAC {
	case MACHMACSHA2512, MACHMACSHA2512EtM:
		macLen = 64
	default:
		macLen = 32
	}
	return ivLen, encLen, macLen
}
