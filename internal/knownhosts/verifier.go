package knownhosts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Result classifies a server host key against the known-hosts store
// (SPEC_FULL.md Section 4.F).
type Result int

const (
	// Unknown means no entry in any consulted file matches the host.
	Unknown Result = iota
	// Trusted means a matching entry has the same key type and blob.
	Trusted
	// Changed means a matching entry has the same key type but a
	// different key blob — the classic MITM/host-reinstall warning.
	Changed
	// Revoked means a matching entry carries the @revoked marker for
	// this key type.
	Revoked
)

func (r Result) String() string {
	switch r {
	case Trusted:
		return "Trusted"
	case Changed:
		return "Changed"
	case Revoked:
		return "Revoked"
	default:
		return "Unknown"
	}
}

// Decision is the caller's resolution for a non-Trusted classification
// (SPEC_FULL.md Section 4.F).
type Decision int

const (
	DecisionUnknown Decision = iota
	DecisionTrusted
	DecisionAddKnownHost
	DecisionRevoked
	DecisionChanged
)

// ErrHostKeyVerificationFailed is returned when the callback's decision is
// anything other than Trusted or AddKnownHost.
var ErrHostKeyVerificationFailed = errors.New("ssh: host key verification failed")

// Callback is invoked with the classification result so the caller can
// decide whether to proceed (SPEC_FULL.md Section 4.F).
type Callback func(ctx context.Context, result Result, host string, port int, keyType string, keyBlob []byte) (Decision, error)

// Verifier implements host-key verification against one or two known_hosts
// files.
type Verifier struct {
	userPath         string
	globalPath       string
	checkGlobal      bool
	callback         Callback
}

// New constructs a Verifier. userPath may be empty, meaning "no user
// known-hosts file" (SPEC_FULL.md's Open Question decision: empty and
// unset are not behaviourally distinguished). globalPath is consulted only
// when checkGlobal is true.
func New(userPath, globalPath string, checkGlobal bool, callback Callback) *Verifier {
	return &Verifier{userPath: userPath, globalPath: globalPath, checkGlobal: checkGlobal, callback: callback}
}

// Verify classifies (host, port, keyType, keyBlob) against the configured
// known_hosts files, invokes the callback to resolve anything other than
// an immediate Trusted match, and appends a new entry on AddKnownHost. It
// returns nil only when the connection may proceed.
func (v *Verifier) Verify(ctx context.Context, host string, port int, keyType string, keyBlob []byte) error {
	result, err := v.classify(host, port, keyType, keyBlob)
	if err != nil {
		return err
	}

	if result == Trusted {
		return nil
	}

	if v.callback == nil {
		return fmt.Errorf("ssh: knownhosts: host key %s for %s: %w", result, host, ErrHostKeyVerificationFailed)
	}

	decision, err := v.callback(ctx, result, host, port, keyType, keyBlob)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ssh: knownhosts: host authentication callback: %w", err)
	}

	switch decision {
	case DecisionTrusted:
		return nil
	case DecisionAddKnownHost:
		if v.userPath == "" {
			return nil // No file configured: AddKnownHost is a no-op, still Trusted.
		}
		if err := v.append(host, port, keyType, keyBlob); err != nil {
			return fmt.Errorf("ssh: knownhosts: append entry: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("ssh: knownhosts: host key %s for %s: %w", result, host, ErrHostKeyVerificationFailed)
	}
}

func (v *Verifier) classify(host string, port int, keyType string, keyBlob []byte) (Result, error) {
	addr := normalizeAddr(host, port)

	entries, err := v.loadEntries()
	if err != nil {
		return Unknown, err
	}

	best := Unknown
	for _, e := range entries {
		if e.keyType != keyType {
			continue
		}
		if !matchHost(e.patterns, addr) {
			continue
		}
		switch {
		case e.marker == markerRevoked:
			return Revoked, nil // Revocation is terminal: return immediately.
		case bytesEqual(e.keyBlob, keyBlob):
			best = Trusted
		case best != Trusted:
			best = Changed
		}
	}
	return best, nil
}

func (v *Verifier) loadEntries() ([]entry, error) {
	var all []entry
	if v.userPath != "" {
		entries, err := readEntriesFile(v.userPath)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	if v.checkGlobal && v.globalPath != "" {
		entries, err := readEntriesFile(v.globalPath)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func readEntriesFile(path string) ([]entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil // A missing known_hosts file classifies as Unknown, not an error.
	}
	if err != nil {
		return nil, fmt.Errorf("ssh: knownhosts: open %s: %w", path, err)
	}
	defer f.Close()
	return parseEntries(f)
}

// append writes a new hashed-host entry under an advisory file lock so
// concurrent Connect calls sharing a known-hosts path never interleave
// writes (SPEC_FULL.md Section 4.F, grounded on internal/netio's
// golang.org/x/sys/unix use for the teacher's raw-socket options).
func (v *Verifier) append(host string, port int, keyType string, keyBlob []byte) error {
	if err := os.MkdirAll(filepath.Dir(v.userPath), 0o700); err != nil {
		return fmt.Errorf("create known-hosts directory: %w", err)
	}

	unlock, err := lockFile(v.userPath)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(v.userPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known-hosts for append: %w", err)
	}
	defer f.Close()

	salt := make([]byte, 20)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate host salt: %w", err)
	}

	addr := normalizeAddr(host, port)
	line := formatEntry(addr, keyType, keyBlob, salt)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write known-hosts entry: %w", err)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
