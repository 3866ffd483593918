package knownhosts

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// marker distinguishes the OpenSSH known_hosts line markers that change how
// a matching entry is treated (man 8 sshd).
type marker int

const (
	markerNone marker = iota
	markerCertAuthority
	markerRevoked
)

// entry is one parsed, non-comment known_hosts line.
type entry struct {
	marker   marker
	patterns []hostPattern
	keyType  string
	keyBlob  []byte
	rawLine  string
}

// parseEntries reads and parses every non-comment, non-blank line from r.
// Malformed individual lines are skipped rather than aborting the whole
// file, matching OpenSSH's tolerant parser (a known_hosts file accumulates
// entries from many sources over years and is never expected to be
// perfectly clean).
func parseEntries(r io.Reader) ([]entry, error) {
	var entries []entry
	scanner := bufio.NewScanner(r)
	// known_hosts lines can exceed bufio.Scanner's 64KiB default (large
	// certificate blobs); grow the buffer generously.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, ok := parseEntryLine(line)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ssh: knownhosts: read entries: %w", err)
	}
	return entries, nil
}

func parseEntryLine(line string) (entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return entry{}, false
	}

	m := markerNone
	switch fields[0] {
	case "@cert-authority":
		m, fields = markerCertAuthority, fields[1:]
	case "@revoked":
		m, fields = markerRevoked, fields[1:]
	}
	if len(fields) < 3 {
		return entry{}, false
	}

	patterns, err := parseHostPatterns(fields[0])
	if err != nil {
		return entry{}, false
	}
	keyType := fields[1]
	keyBlob, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return entry{}, false
	}

	return entry{
		marker:   m,
		patterns: patterns,
		keyType:  keyType,
		keyBlob:  keyBlob,
		rawLine:  line,
	}, true
}

// formatEntry renders a new known_hosts line for (addr, keyType, keyBlob),
// using a freshly hashed host field so appended entries never leak
// plaintext hostnames (matching `ssh-keyscan -H` / modern OpenSSH
// defaults).
func formatEntry(addr, keyType string, keyBlob []byte, salt []byte) string {
	return fmt.Sprintf("%s %s %s\n", encodeHashedHost(addr, salt), keyType, base64.StdEncoding.EncodeToString(keyBlob))
}
