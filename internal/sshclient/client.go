// Package sshclient is the connect driver (SPEC_FULL.md Section 4.H): it
// orchestrates TCP dial, version/kex handshake, host-key verification, and
// user authentication into one Connect call, exposing the resulting
// transport.Transport as a packet-oriented Conn for the (out of scope)
// channel multiplexer to build on.
package sshclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/dantte-lp/gossh/internal/cipher"
	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/knownhosts"
	"github.com/dantte-lp/gossh/internal/transport"
	"github.com/dantte-lp/gossh/internal/userauth"
)

// Conn is a connected, authenticated SSH transport, ready to serve a
// higher-level channel layer (explicitly out of this module's scope, per
// SPEC_FULL.md Section 1).
type Conn struct {
	*transport.Transport
	Info ConnectionInfo
}

// Connect performs the full sequence in SPEC_FULL.md Section 4.H: dial,
// version/kex exchange, host-key verification, user authentication. On any
// failure before Ready it returns *ErrConnectFailed (or the unwrapped
// ErrCancelled on cancellation, never both).
func Connect(ctx context.Context, s Settings) (*Conn, error) {
	if len(s.Credentials) == 0 {
		return nil, &ErrConnectFailed{Cause: ErrNoCredentials}
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("ssh: sshclient: dialing", "host", s.Host, "port", s.port())

	deadline := time.Time{}
	if s.ConnectTimeout > 0 {
		deadline = time.Now().Add(s.ConnectTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	conn, err := dial(ctx, s)
	if err != nil {
		logger.Warn("ssh: sshclient: dial failed", "host", s.Host, "error", err)
		return nil, wrapConnectFailed(classifyDialError(ctx, err))
	}

	c, info, err := handshake(ctx, conn, s, logger)
	if err != nil {
		conn.Close()
		logger.Warn("ssh: sshclient: handshake failed", "host", s.Host, "error", err)
		return nil, wrapConnectFailed(classifyDialError(ctx, err))
	}
	logger.Info("ssh: sshclient: connected", "host", s.Host, "port", s.port(), "user", s.User)
	return &Conn{Transport: c, Info: info}, nil
}

func classifyDialError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ErrCancelled
	}
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

func dial(ctx context.Context, s Settings) (net.Conn, error) {
	addr := destination(s.Host, s.port())
	if s.ProxyURL == "" {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	dialer, err := proxy.SOCKS5("tcp", s.ProxyURL, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("ssh: configure socks5 proxy: %w", err)
	}
	type contextDialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
	if cd, ok := dialer.(contextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return dialer.Dial("tcp", addr)
}

// handshake runs §4.E through §4.G over an already-connected socket.
func handshake(ctx context.Context, conn net.Conn, s Settings, logger *slog.Logger) (*transport.Transport, ConnectionInfo, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	serverVersion, err := kex.ExchangeVersions(r, conn)
	if err != nil {
		return nil, ConnectionInfo{}, err
	}

	maxLen := s.MaxPacketLength
	if maxLen == 0 {
		maxLen = cipher.DefaultMaxPacketLength
	}

	noneCodec := cipher.NewNone()
	initialPio := newBufferedPacketIO(r, conn, noneCodec, noneCodec, maxLen)

	info := ConnectionInfo{Host: s.Host, Port: s.port(), ServerVersion: string(serverVersion)}

	verifier := knownhosts.New(s.KnownHostsFilePath, s.GlobalKnownHostsPath, s.CheckGlobalKnownHosts, s.HostAuthentication)

	var negotiatedHostKeyType string
	verifyHostKey := func(hostKeyBlob []byte) error {
		negotiatedHostKeyType = hostKeyType(hostKeyBlob)
		return verifier.Verify(ctx, s.Host, s.port(), negotiatedHostKeyType, hostKeyBlob)
	}
	verifySignature := func(hostKeyBlob, signedData, signature []byte) error {
		return kex.VerifyHostKeySignature(negotiatedHostKeyType, hostKeyBlob, signedData, signature)
	}

	result, err := kex.RunClient(initialPio, []byte(kex.ClientVersionString), serverVersion, s.Preferences, nil, verifyHostKey, verifySignature, kex.WithLogger(logger))
	if err != nil {
		return nil, ConnectionInfo{}, err
	}

	info.Algorithms = result.Algorithms
	info.SessionID = result.ExchangeHash
	info.ServerHostKeyBlob = result.HostKeyBlob
	info.ServerHostKeyType = negotiatedHostKeyType
	info.ServerKeySHA256Fingerprint = fingerprintSHA256(result.HostKeyBlob)
	info.ServerKeyMD5Fingerprint = fingerprintMD5(result.HostKeyBlob)

	readCodec, writeCodec, err := buildCodecs(result.Algorithms, result.Keys)
	if err != nil {
		return nil, ConnectionInfo{}, err
	}

	rk := &rekeyer{
		prefs:           s.Preferences,
		sessionID:       result.ExchangeHash,
		verifyHostKey:   verifyHostKey,
		verifySignature: verifySignature,
		logger:          logger,
	}

	var transportOpts []transport.Option
	var userauthOpts []userauth.Option
	transportOpts = append(transportOpts, transport.WithLogger(logger))
	userauthOpts = append(userauthOpts, userauth.WithLogger(logger))
	if s.Metrics != nil {
		transportOpts = append(transportOpts, transport.WithMetrics(s.Host, s.Metrics))
		userauthOpts = append(userauthOpts, userauth.WithMetrics(s.Host, s.Metrics))
	}

	t := transport.New(bufferedConn{Conn: conn, r: r}, readCodec, writeCodec, maxLen, rk, transportOpts...)

	if err := userauth.RunClient(t, s.User, result.ExchangeHash, s.Credentials, nil, userauthOpts...); err != nil {
		t.Close()
		return nil, ConnectionInfo{}, err
	}

	_ = conn.SetDeadline(time.Time{}) // Ready: no per-call deadline past this point.
	return t, info, nil
}
