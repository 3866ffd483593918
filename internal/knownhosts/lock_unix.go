//go:build unix

package knownhosts

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an advisory, blocking exclusive lock on a sibling
// "<path>.lock" file (not the known-hosts file itself, so readers never
// need to take the lock) and returns a function to release it.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ssh: knownhosts: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("ssh: knownhosts: acquire lock: %w", err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck // best-effort on release
		f.Close()
	}, nil
}
