package sshclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/gossh/internal/cipher"
	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/transport"
)

// rekeyer adapts kex.RunClient to transport.KeyExchanger, closing over
// everything a rekey needs that stays fixed for the life of the
// connection: the negotiation preferences, the session id (never changes
// after the first kex, RFC 4253 Section 7.2), and the same host-key
// verification the initial handshake used, since a server cannot swap its
// host key mid-session without failing verification.
type rekeyer struct {
	prefs           kex.Preferences
	sessionID       []byte
	verifyHostKey   func(hostKeyBlob []byte) error
	verifySignature func(hostKeyBlob, signedData, signature []byte) error
	logger          *slog.Logger
}

var _ transport.KeyExchanger = (*rekeyer)(nil)

// Rekey runs a fresh key exchange over the live transport (clientVersion
// and serverVersion are nil: the banner is exchanged exactly once, at
// connection start) and returns the freshly derived codec pair.
func (r *rekeyer) Rekey(ctx context.Context, t transport.PacketIO) (readCodec, writeCodec cipher.Codec, err error) {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	result, err := kex.RunClient(pacAdapter{t}, nil, nil, r.prefs, r.sessionID, r.verifyHostKey, r.verifySignature, kex.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: rekey: %w", err)
	}
	return buildCodecs(result.Algorithms, result.Keys)
}

// pacAdapter satisfies kex.PacketIO in terms of transport.PacketIO; the two
// interfaces are structurally identical but declared separately by each
// package to avoid import cycles (see internal/kex/client.go,
// internal/userauth/client.go). A thin wrapper is cheaper than exporting a
// shared type across three packages that must not import one another.
type pacAdapter struct{ transport.PacketIO }
