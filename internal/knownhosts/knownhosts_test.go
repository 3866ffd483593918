package knownhosts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "other.com", false},
		{"*.example.com", "host.example.com", true},
		{"*.example.com", "example.com", false},
		{"10.0.0.?", "10.0.0.5", true},
		{"10.0.0.?", "10.0.0.55", false},
		{"*", "anything", true},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.s); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestMatchHostNegation(t *testing.T) {
	patterns, err := parseHostPatterns("*.example.com,!bad.example.com")
	if err != nil {
		t.Fatalf("parseHostPatterns: %v", err)
	}
	if matchHost(patterns, "host.example.com") != true {
		t.Error("host.example.com should match")
	}
	if matchHost(patterns, "bad.example.com") != false {
		t.Error("bad.example.com should be vetoed by negation")
	}
}

func TestHashedHostRoundTrip(t *testing.T) {
	salt := []byte("0123456789abcdefghij") // 20 bytes, fixed for test determinism
	encoded := encodeHashedHost("example.com:2222", salt)

	patterns, err := parseHostPatterns(encoded)
	if err != nil {
		t.Fatalf("parseHostPatterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0].hashed == nil {
		t.Fatalf("expected one hashed pattern, got %+v", patterns)
	}
	if !matchHost(patterns, "example.com:2222") {
		t.Error("hashed host did not match its own encoding")
	}
	if matchHost(patterns, "other.com:2222") {
		t.Error("hashed host matched an unrelated address")
	}
}

func writeKnownHosts(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

func TestClassifyTrusted(t *testing.T) {
	dir := t.TempDir()
	path := writeKnownHosts(t, dir, "example.com ssh-ed25519 AAE=\n")
	v := New(path, "", false, nil)

	result, err := v.classify("example.com", 22, "ssh-ed25519", []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != Trusted {
		t.Errorf("result = %v, want Trusted", result)
	}
}

func TestClassifyChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeKnownHosts(t, dir, "example.com ssh-ed25519 AAE=\n")
	v := New(path, "", false, nil)

	result, err := v.classify("example.com", 22, "ssh-ed25519", []byte{0xFF, 0xFF})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != Changed {
		t.Errorf("result = %v, want Changed", result)
	}
}

func TestClassifyRevoked(t *testing.T) {
	dir := t.TempDir()
	path := writeKnownHosts(t, dir, "@revoked example.com ssh-ed25519 AAE=\n")
	v := New(path, "", false, nil)

	result, err := v.classify("example.com", 22, "ssh-ed25519", []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != Revoked {
		t.Errorf("result = %v, want Revoked", result)
	}
}

func TestClassifyUnknown(t *testing.T) {
	dir := t.TempDir()
	path := writeKnownHosts(t, dir, "other.com ssh-ed25519 AAE=\n")
	v := New(path, "", false, nil)

	result, err := v.classify("example.com", 22, "ssh-ed25519", []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != Unknown {
		t.Errorf("result = %v, want Unknown", result)
	}
}

func TestVerifyMissingFileIsUnknownNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")
	v := New(path, "", false, func(ctx context.Context, result Result, host string, port int, keyType string, keyBlob []byte) (Decision, error) {
		if result != Unknown {
			t.Errorf("callback result = %v, want Unknown", result)
		}
		return DecisionTrusted, nil
	})

	if err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", []byte{0x01}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyAddKnownHostAppendsAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")
	v := New(path, "", false, func(ctx context.Context, result Result, host string, port int, keyType string, keyBlob []byte) (Decision, error) {
		return DecisionAddKnownHost, nil
	})

	if err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	// A second Connect against the same now-populated file should find
	// the key Trusted without invoking AddKnownHost again.
	v2 := New(path, "", false, func(ctx context.Context, result Result, host string, port int, keyType string, keyBlob []byte) (Decision, error) {
		t.Fatalf("callback should not be invoked once the key is Trusted (result=%v)", result)
		return DecisionTrusted, nil
	})
	if err := v2.Verify(context.Background(), "example.com", 22, "ssh-ed25519", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
}

func TestVerifyRejectsNonTrustedDecision(t *testing.T) {
	dir := t.TempDir()
	path := writeKnownHosts(t, dir, "example.com ssh-ed25519 AAE=\n")
	v := New(path, "", false, func(ctx context.Context, result Result, host string, port int, keyType string, keyBlob []byte) (Decision, error) {
		return DecisionChanged, nil
	})

	err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", []byte{0xFF})
	if err == nil {
		t.Fatal("expected ErrHostKeyVerificationFailed")
	}
}

func TestVerifyNoCallbackFailsClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")
	v := New(path, "", false, nil)

	err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", []byte{0x01})
	if err == nil {
		t.Fatal("expected ErrHostKeyVerificationFailed when no callback is configured")
	}
}
