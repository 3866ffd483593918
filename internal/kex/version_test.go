package kex

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestExchangeVersionsReadsServerBanner(t *testing.T) {
	server := "SSH-2.0-OpenSSH_9.6\r\n"
	r := bufio.NewReader(strings.NewReader(server))
	var written bytes.Buffer

	got, err := ExchangeVersions(r, &written)
	if err != nil {
		t.Fatalf("ExchangeVersions: %v", err)
	}
	if string(got) != "SSH-2.0-OpenSSH_9.6" {
		t.Errorf("server version = %q", got)
	}
	if !strings.HasPrefix(written.String(), "SSH-2.0-gossh") {
		t.Errorf("client did not write its own version string: %q", written.String())
	}
}

func TestExchangeVersionsSkipsPreambleLines(t *testing.T) {
	server := "Welcome to example corp\r\nSSH-2.0-OpenSSH_9.6\r\n"
	r := bufio.NewReader(strings.NewReader(server))
	var written bytes.Buffer

	got, err := ExchangeVersions(r, &written)
	if err != nil {
		t.Fatalf("ExchangeVersions: %v", err)
	}
	if string(got) != "SSH-2.0-OpenSSH_9.6" {
		t.Errorf("server version = %q, want SSH-2.0-OpenSSH_9.6", got)
	}
}

func TestExchangeVersionsFailsWithoutSSHLine(t *testing.T) {
	server := strings.Repeat("not an ssh line\r\n", 10)
	r := bufio.NewReader(strings.NewReader(server))
	var written bytes.Buffer

	if _, err := ExchangeVersions(r, &written); err == nil {
		t.Fatal("expected error when server never sends an SSH-2.0 line")
	}
}
