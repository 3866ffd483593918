package userauth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/wire"
)

// Metrics is the narrow counter surface RunClient drives directly,
// declared locally (like kex.PacketIO and this package's own PacketIO)
// rather than importing internal/sshmetrics; *sshmetrics.Collector
// already satisfies it.
type Metrics interface {
	IncAuthFailure(host, method string)
}

type noopMetrics struct{}

func (noopMetrics) IncAuthFailure(string, string) {}

// Option configures RunClient's optional observability hooks
// (SPEC_FULL.md Section 10). Omitting opts entirely gets a no-op Metrics
// and slog.Default(), so every existing call site keeps compiling
// unchanged.
type Option func(*runConfig)

type runConfig struct {
	metrics     Metrics
	metricsHost string
	logger      *slog.Logger
}

func newRunConfig(opts []Option) runConfig {
	cfg := runConfig{metrics: noopMetrics{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMetrics wires the host-labeled authentication-failure counter.
func WithMetrics(host string, m Metrics) Option {
	return func(c *runConfig) {
		c.metricsHost = host
		c.metrics = m
	}
}

// WithLogger replaces the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// PacketIO is the minimal transport surface RunClient needs. It mirrors
// kex.PacketIO; declaring it here keeps userauth independent of
// internal/transport, whose *Transport satisfies it.
type PacketIO interface {
	ReadPacket() ([]byte, error)
	WritePacket(payload []byte) error
}

// ErrAuthenticationFailed is returned once every supplied credential has
// been tried and rejected. It carries the last method list the server
// advertised, so callers can report "try: password, publickey" etc.
type ErrAuthenticationFailed struct {
	Methods []string
}

func (e *ErrAuthenticationFailed) Error() string {
	return fmt.Sprintf("ssh: userauth: authentication failed, server allows: %v", e.Methods)
}

// ErrNoCredentials is returned immediately if RunClient is called with an
// empty credential list.
var ErrNoCredentials = errors.New("ssh: userauth: no credentials supplied")

// ErrUnexpectedMessage indicates a message arrived that the authentication
// state machine was not prepared to interpret in its current state.
var ErrUnexpectedMessage = errors.New("ssh: userauth: unexpected message")

// RunClient drives the ssh-userauth service request and the
// none/password/publickey method sequence (RFC 4252, SPEC_FULL.md Section
// 4.G) to completion, trying each credential in order until one succeeds
// or all are exhausted.
//
// serverSigAlgs seeds the RFC 8308 server-sig-algs list for callers that
// already learned it some other way (nil if unknown); RunClient also
// recognizes and consumes an inline SSH_MSG_EXT_INFO immediately after
// NEWKEYS and, if present, its server-sig-algs value takes precedence.
// Either way the result picks a publickey signature algorithm the server
// actually accepts, falling back to the Signer's own preference order
// when neither source has an answer.
func RunClient(pio PacketIO, user string, sessionID []byte, credentials []Credential, serverSigAlgs []string, opts ...Option) error {
	cfg := newRunConfig(opts)

	if len(credentials) == 0 {
		return ErrNoCredentials
	}

	if err := pio.WritePacket(marshalServiceRequest(serviceUserAuth)); err != nil {
		return fmt.Errorf("ssh: userauth: send service request: %w", err)
	}

	// RFC 8308 Section 2.3: SSH_MSG_EXT_INFO, if the server sends it at
	// all, arrives as the very first packet after NEWKEYS — which, from
	// the client's viewpoint, is whatever it reads first here. Consume it
	// transparently and keep reading for the real SERVICE_ACCEPT.
	reply, err := pio.ReadPacket()
	if err != nil {
		return fmt.Errorf("ssh: userauth: read service accept: %w", err)
	}
	if kex.IsExtInfo(reply) {
		if algos, ok := kex.ParseServerSigAlgs(reply); ok {
			serverSigAlgs = algos
		}
		reply, err = pio.ReadPacket()
		if err != nil {
			return fmt.Errorf("ssh: userauth: read service accept after ext-info: %w", err)
		}
	}
	if name, err := parseServiceAccept(reply); err != nil || name != serviceUserAuth {
		if err != nil {
			return fmt.Errorf("ssh: userauth: service accept: %w", err)
		}
		return fmt.Errorf("ssh: userauth: service accept named %q, want %q: %w", name, serviceUserAuth, ErrUnexpectedMessage)
	}
	cfg.logger.Debug("ssh: userauth: service accepted", "user", user)

	allowed, noneSucceeded, err := probeNone(pio, user)
	if err != nil {
		return err
	}
	if noneSucceeded {
		cfg.logger.Info("ssh: userauth: authenticated", "user", user, "method", "none")
		return nil
	}

	lastMethods := allowed
	for _, cred := range credentials {
		method := credentialMethod(cred)
		if allowed != nil && !contains(allowed, method) {
			continue
		}

		var ok bool
		switch c := cred.(type) {
		case Password:
			ok, allowed, err = tryPassword(pio, user, string(c))
		case PublicKey:
			ok, allowed, err = tryPublicKey(pio, user, sessionID, c.Signer, serverSigAlgs)
		default:
			err = fmt.Errorf("ssh: userauth: unsupported credential type %T", cred)
		}
		if err != nil {
			return err
		}
		if ok {
			cfg.logger.Info("ssh: userauth: authenticated", "user", user, "method", method)
			return nil
		}
		cfg.metrics.IncAuthFailure(cfg.metricsHost, method)
		cfg.logger.Debug("ssh: userauth: credential rejected", "user", user, "method", method)
		lastMethods = allowed
	}

	cfg.logger.Warn("ssh: userauth: all credentials exhausted", "user", user, "methods", lastMethods)
	return &ErrAuthenticationFailed{Methods: lastMethods}
}

// probeNone sends the "none" method to discover which methods the server
// allows before spending a real credential (RFC 4252 Section 5.2). A
// server that grants access outright (rare, but legal) is treated as
// success with no further methods tried.
func probeNone(pio PacketIO, user string) (methods []string, succeeded bool, err error) {
	if err := pio.WritePacket(marshalUserAuthRequestNone(user)); err != nil {
		return nil, false, fmt.Errorf("ssh: userauth: send none request: %w", err)
	}
	buf, err := pio.ReadPacket()
	if err != nil {
		return nil, false, fmt.Errorf("ssh: userauth: read none reply: %w", err)
	}
	if isUserAuthBanner(buf) {
		buf, err = pio.ReadPacket()
		if err != nil {
			return nil, false, fmt.Errorf("ssh: userauth: read reply after banner: %w", err)
		}
	}
	if isUserAuthSuccess(buf) {
		return nil, true, nil
	}
	failure, err := parseUserAuthFailure(buf)
	if err != nil {
		return nil, false, fmt.Errorf("ssh: userauth: none reply: %w", err)
	}
	return failure.Methods, false, nil
}

// tryPassword attempts the password method once. USERAUTH_PASSWD_CHANGEREQ
// is treated as a terminal failure of this method: SPEC_FULL.md's Open
// Question decision is that a server demanding a password change is not
// supported and the credential is abandoned.
func tryPassword(pio PacketIO, user, password string) (ok bool, methods []string, err error) {
	if err := pio.WritePacket(marshalUserAuthRequestPassword(user, password)); err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: send password request: %w", err)
	}
	buf, err := pio.ReadPacket()
	if err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: read password reply: %w", err)
	}
	if isUserAuthBanner(buf) {
		buf, err = pio.ReadPacket()
		if err != nil {
			return false, nil, fmt.Errorf("ssh: userauth: read reply after banner: %w", err)
		}
	}
	switch {
	case isUserAuthSuccess(buf):
		return true, nil, nil
	case isPasswdChangeReq(buf):
		return false, nil, nil
	default:
		failure, err := parseUserAuthFailure(buf)
		if err != nil {
			return false, nil, fmt.Errorf("ssh: userauth: password reply: %w", err)
		}
		return false, failure.Methods, nil
	}
}

// tryPublicKey performs the probe-then-sign flow (RFC 4252 Section 7):
// first an unsigned request to check whether the server would even accept
// this key, and only on PK_OK a second request carrying a signature over
// session_id ∥ request.
func tryPublicKey(pio PacketIO, user string, sessionID []byte, signer Signer, serverSigAlgs []string) (ok bool, methods []string, err error) {
	algo := pickSignatureAlgorithm(signer.Algorithms(), serverSigAlgs)
	blob := signer.PublicKeyBlob()

	if err := pio.WritePacket(marshalUserAuthRequestPublicKeyProbe(user, algo, blob)); err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: send publickey probe: %w", err)
	}
	buf, err := pio.ReadPacket()
	if err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: read publickey probe reply: %w", err)
	}
	if isUserAuthBanner(buf) {
		buf, err = pio.ReadPacket()
		if err != nil {
			return false, nil, fmt.Errorf("ssh: userauth: read reply after banner: %w", err)
		}
	}
	if !isPubKeyOK(buf) {
		failure, ferr := parseUserAuthFailure(buf)
		if ferr != nil {
			return false, nil, fmt.Errorf("ssh: userauth: publickey probe reply: %w", ferr)
		}
		return false, failure.Methods, nil
	}

	signedData := buildSignedPublicKeyRequestData(sessionID, user, algo, blob)
	signature, err := signer.Sign(algo, signedData)
	if err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: sign publickey request: %w", err)
	}
	signatureBlob := marshalSignatureBlob(algo, signature)

	if err := pio.WritePacket(marshalUserAuthRequestPublicKeySigned(user, algo, blob, signatureBlob)); err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: send signed publickey request: %w", err)
	}
	buf, err = pio.ReadPacket()
	if err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: read signed publickey reply: %w", err)
	}
	if isUserAuthBanner(buf) {
		buf, err = pio.ReadPacket()
		if err != nil {
			return false, nil, fmt.Errorf("ssh: userauth: read reply after banner: %w", err)
		}
	}
	if isUserAuthSuccess(buf) {
		return true, nil, nil
	}
	failure, err := parseUserAuthFailure(buf)
	if err != nil {
		return false, nil, fmt.Errorf("ssh: userauth: signed publickey reply: %w", err)
	}
	return false, failure.Methods, nil
}

// marshalSignatureBlob encodes the signature field of a publickey request:
// an SSH string containing the algorithm name followed by the opaque
// signature bytes (RFC 4253 Section 6.6).
func marshalSignatureBlob(algo string, signature []byte) []byte {
	out := wire.PutString(nil, []byte(algo))
	out = wire.PutString(out, signature)
	return out
}

// pickSignatureAlgorithm chooses the first of the signer's preferred
// algorithms that the server's advertised server-sig-algs also lists
// (RFC 8332 Section 4). If the server did not advertise the extension,
// the signer's own first choice is used.
func pickSignatureAlgorithm(signerAlgos, serverSigAlgs []string) string {
	if len(serverSigAlgs) == 0 {
		return signerAlgos[0]
	}
	for _, a := range signerAlgos {
		if contains(serverSigAlgs, a) {
			return a
		}
	}
	return signerAlgos[0]
}

func credentialMethod(c Credential) string {
	switch c.(type) {
	case Password:
		return methodPassword
	case PublicKey:
		return methodPublicKey
	default:
		return ""
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
