package sshclient

import (
	"context"
	"errors"
)

// Error taxonomy for Connect (SPEC_FULL.md Section 7). Kinds are
// distinguished with errors.Is/errors.As, not string matching.
var (
	// ErrTimeout indicates the connect deadline elapsed before the
	// handshake reached Ready.
	ErrTimeout = errors.New("ssh: connect: timeout")

	// ErrCancelled indicates the caller's context was cancelled. Unlike
	// every other sentinel here, it is never wrapped inside
	// ErrConnectFailed (SPEC_FULL.md Section 4.H).
	ErrCancelled = errors.New("ssh: connect: cancelled")

	// ErrNoCredentials indicates Credentials was empty at Connect start.
	ErrNoCredentials = errors.New("ssh: connect: no credentials supplied")
)

// ErrConnectFailed is the umbrella failure returned for anything that goes
// wrong before the connection reaches Ready. Cause is always non-nil and
// carries the specific reason (ErrTimeout, kex.ErrProtocol,
// kex.ErrNoCommonAlgorithm, knownhosts.ErrHostKeyVerificationFailed,
// userauth.ErrAuthenticationFailed, userauth.ErrNoCredentials, or an
// arbitrary error surfaced by a HostAuthentication callback).
//
// ErrCancelled is the one exception: it propagates unwrapped, never as the
// Cause of an ErrConnectFailed (SPEC_FULL.md Section 4.H, "Cancellation").
type ErrConnectFailed struct {
	Cause error
}

func (e *ErrConnectFailed) Error() string {
	return "ssh: connect failed: " + e.Cause.Error()
}

func (e *ErrConnectFailed) Unwrap() error { return e.Cause }

// wrapConnectFailed applies the "never double-wrap, never wrap
// cancellation" rule from SPEC_FULL.md Section 4.H. A nil err wraps to nil.
func wrapConnectFailed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	var already *ErrConnectFailed
	if errors.As(err, &already) {
		return err
	}
	return &ErrConnectFailed{Cause: err}
}
