package sshclient

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/knownhosts"
	"github.com/dantte-lp/gossh/internal/userauth"
	"github.com/dantte-lp/gossh/internal/wire"
)

// Metrics is the full counter surface Connect drives across the
// transport and userauth packages, declared here so Settings can accept
// one value satisfying both without either package importing the
// concrete internal/sshmetrics collector. *sshmetrics.Collector already
// satisfies it.
type Metrics interface {
	IncPacketsSent(host string)
	IncPacketsReceived(host string)
	IncPacketsDropped(host string)
	IncAuthFailure(host, method string)
}

// Settings is the immutable-once-Connect-begins configuration
// (SPEC_FULL.md Section 3, "Connection settings").
type Settings struct {
	User string
	Host string
	Port int // 0 means the default, 22.

	ConnectTimeout time.Duration

	KnownHostsFilePath    string // Empty means "no user known-hosts file".
	CheckGlobalKnownHosts bool
	GlobalKnownHostsPath  string // Only consulted when CheckGlobalKnownHosts.
	HostAuthentication    knownhosts.Callback

	Credentials []userauth.Credential

	Preferences kex.Preferences
	MaxPacketLength uint32 // 0 means the package default (35000).

	// ProxyURL, when non-empty, is a socks5://host:port URL to dial
	// through instead of connecting directly (SPEC_FULL.md Section 11
	// enrichment: golang.org/x/net/proxy).
	ProxyURL string

	// Logger receives lifecycle and error events from the handshake and
	// transport/userauth/kex packages (SPEC_FULL.md Section 10). Nil
	// means slog.Default().
	Logger *slog.Logger

	// Metrics, when non-nil, is wired into the transport read/write
	// loops and userauth's failure path (SPEC_FULL.md Section 10).
	Metrics Metrics
}

func (s Settings) port() int {
	if s.Port == 0 {
		return 22
	}
	return s.Port
}

// ConnectionInfo is observable to the HostAuthentication callback and to
// the caller after Connect succeeds (SPEC_FULL.md Section 3).
type ConnectionInfo struct {
	Host                       string
	Port                       int
	ServerVersion              string
	Algorithms                 *kex.Algorithms
	SessionID                  []byte
	ServerHostKeyBlob          []byte
	ServerHostKeyType          string
	ServerKeySHA256Fingerprint string
	ServerKeyMD5Fingerprint    string
}

func fingerprintSHA256(blob []byte) string {
	sum := sha256.Sum256(blob)
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sum[:])
}

// FingerprintSHA256 computes the same "SHA256:<base64>" fingerprint string
// used for ConnectionInfo.ServerKeySHA256Fingerprint, exported so callers
// (e.g. a host-key verification prompt) can render it for keys they only
// have as a raw blob, such as a knownhosts.Callback's candidate key.
func FingerprintSHA256(blob []byte) string {
	return fingerprintSHA256(blob)
}

func fingerprintMD5(blob []byte) string {
	sum := md5.Sum(blob)
	hexStr := hex.EncodeToString(sum[:])
	out := make([]byte, 0, len(hexStr)+len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexStr[i], hexStr[i+1])
	}
	return "MD5:" + string(out)
}

// hostKeyType reads the algorithm name from the front of a host key blob
// (RFC 4253 Section 6.6: the blob's first field is always that name as an
// SSH string), returning "" if the blob is malformed.
func hostKeyType(blob []byte) string {
	name, _, err := wire.ParseString(blob)
	if err != nil {
		return ""
	}
	return string(name)
}

func destination(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
