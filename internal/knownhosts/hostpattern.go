// Package knownhosts implements the OpenSSH known_hosts file format and the
// trust-on-first-use host-key verification workflow (SPEC_FULL.md Section
// 4.F): parse/append known-hosts entries, match hostnames (including
// hashed entries), classify a server's host key against the store, and
// invoke a caller-supplied callback to resolve unknown or changed keys.
package knownhosts

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // mandated by the OpenSSH hashed-hostname format, not a new design choice.
	"encoding/base64"
	"fmt"
	"strings"
)

// hostPattern is one comma-separated, possibly-negated element of a
// known_hosts host-patterns field (man 8 sshd, "Hashed host names").
type hostPattern struct {
	negate  bool
	literal string // "" when hashed is set
	hashed  *hashedHost
}

type hashedHost struct {
	salt []byte
	hash []byte
}

// matchHost reports whether addr (already including "[host]:port" framing
// when the port is non-default) matches any non-negated pattern in
// patterns, with no negated pattern also matching (OpenSSH semantics:
// negated patterns veto an otherwise-matching line).
func matchHost(patterns []hostPattern, addr string) bool {
	matched := false
	for _, p := range patterns {
		if p.matches(addr) {
			if p.negate {
				return false
			}
			matched = true
		}
	}
	return matched
}

func (p hostPattern) matches(addr string) bool {
	if p.hashed != nil {
		return p.hashed.matches(addr)
	}
	return globMatch(p.literal, addr)
}

func (h *hashedHost) matches(addr string) bool {
	mac := hmac.New(sha1.New, h.salt)
	mac.Write([]byte(addr))
	sum := mac.Sum(nil)
	return hmac.Equal(sum, h.hash)
}

// globMatch implements the restricted glob OpenSSH uses for known_hosts
// patterns: "*" matches any run of characters, "?" matches exactly one.
func globMatch(pattern, s string) bool {
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(pattern, s []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive stars, then try every possible split.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchRunes(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}

// parseHostPatterns splits a known_hosts "hosts" field on commas and
// parses each element as a literal pattern or a hashed-host entry
// (`|1|salt|hash`, man 8 sshd).
func parseHostPatterns(field string) ([]hostPattern, error) {
	var out []hostPattern
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			continue
		}
		negate := false
		if strings.HasPrefix(part, "!") {
			negate = true
			part = part[1:]
		}
		if strings.HasPrefix(part, "|1|") {
			hh, err := parseHashedHost(part)
			if err != nil {
				return nil, err
			}
			out = append(out, hostPattern{negate: negate, hashed: hh})
			continue
		}
		out = append(out, hostPattern{negate: negate, literal: part})
	}
	return out, nil
}

func parseHashedHost(field string) (*hashedHost, error) {
	parts := strings.Split(field, "|")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "1" {
		return nil, fmt.Errorf("ssh: knownhosts: malformed hashed host %q", field)
	}
	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("ssh: knownhosts: decode hashed host salt: %w", err)
	}
	hash, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("ssh: knownhosts: decode hashed host hash: %w", err)
	}
	return &hashedHost{salt: salt, hash: hash}, nil
}

// encodeHashedHost returns the `|1|salt|hash` encoding of addr under a
// freshly generated salt, used when appending a new entry in hashed form.
func encodeHashedHost(addr string, salt []byte) string {
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(addr))
	sum := mac.Sum(nil)
	return "|1|" + base64.StdEncoding.EncodeToString(salt) + "|" + base64.StdEncoding.EncodeToString(sum)
}

// normalizeAddr formats (host, port) as the known_hosts convention: the
// bare host when port is 22, otherwise "[host]:port" (man 8 sshd).
func normalizeAddr(host string, port int) string {
	if port == 22 || port == 0 {
		return host
	}
	return fmt.Sprintf("[%s]:%d", host, port)
}
