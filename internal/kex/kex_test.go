package kex

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"github.com/dantte-lp/gossh/internal/wire"
)

func bigFromHex(t *testing.T, hexDigits string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		t.Fatalf("invalid hex digits %q", hexDigits)
	}
	return n
}

func TestNegotiateFindsCommonAlgorithms(t *testing.T) {
	client := BuildClientKexInit([16]byte{}, DefaultKexAlgos, DefaultHostKeyAlgos, DefaultCiphers, DefaultMACs, DefaultCompressions)
	server := &wire.KexInitMsg{
		KexAlgos:                []string{"diffie-hellman-group14-sha256", Curve25519SHA256},
		ServerHostKeyAlgos:      []string{HostKeyED25519},
		CiphersClientServer:     []string{CipherAES128GCM, CipherChaCha20},
		CiphersServerClient:     []string{CipherAES128GCM, CipherChaCha20},
		MACsClientServer:        []string{MACHMACSHA2256},
		MACsServerClient:        []string{MACHMACSHA2256},
		CompressionClientServer: []string{CompressionNone},
		CompressionServerClient: []string{CompressionNone},
	}

	algs, err := Negotiate(client, server)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if algs.Kex != Curve25519SHA256 {
		t.Errorf("Kex = %q, want %q (client preference order)", algs.Kex, Curve25519SHA256)
	}
	if algs.HostKey != HostKeyED25519 {
		t.Errorf("HostKey = %q, want %q", algs.HostKey, HostKeyED25519)
	}
	if algs.ClientToServer.Cipher != CipherChaCha20 {
		t.Errorf("ClientToServer.Cipher = %q, want %q", algs.ClientToServer.Cipher, CipherChaCha20)
	}
}

func TestNegotiateNoCommonAlgorithm(t *testing.T) {
	client := BuildClientKexInit([16]byte{}, []string{Curve25519SHA256}, DefaultHostKeyAlgos, DefaultCiphers, DefaultMACs, DefaultCompressions)
	server := &wire.KexInitMsg{
		KexAlgos:                []string{DiffieHellmanGroup1SHA1},
		ServerHostKeyAlgos:      DefaultHostKeyAlgos,
		CiphersClientServer:     DefaultCiphers,
		CiphersServerClient:     DefaultCiphers,
		MACsClientServer:        DefaultMACs,
		MACsServerClient:        DefaultMACs,
		CompressionClientServer: DefaultCompressions,
		CompressionServerClient: DefaultCompressions,
	}

	_, err := Negotiate(client, server)
	if err == nil {
		t.Fatal("expected ErrNoCommonAlgorithm")
	}
	var noCommon *ErrNoCommonAlgorithm
	if !errors.As(err, &noCommon) {
		t.Fatalf("error type = %T, want *ErrNoCommonAlgorithm", err)
	}
}

func TestBuildClientKexInitAppendsExtInfo(t *testing.T) {
	m := BuildClientKexInit([16]byte{}, []string{Curve25519SHA256}, DefaultHostKeyAlgos, DefaultCiphers, DefaultMACs, DefaultCompressions)
	if got := m.KexAlgos[len(m.KexAlgos)-1]; got != extInfoC {
		t.Errorf("last kex algo = %q, want %q", got, extInfoC)
	}
}

func TestDeriveKeysProducesDistinctKeysOfRequestedLength(t *testing.T) {
	k := bigFromHex(t, "deadbeef")
	h := []byte("exchange-hash")
	sessionID := []byte("session-id")

	keys := DeriveKeys(sha256.New, k, h, sessionID, 16, 32, 32)

	lens := map[string]int{
		"IVClientToServer":  len(keys.IVClientToServer),
		"IVServerToClient":  len(keys.IVServerToClient),
		"EncClientToServer": len(keys.EncClientToServer),
		"EncServerToClient": len(keys.EncServerToClient),
		"MACClientToServer": len(keys.MACClientToServer),
		"MACServerToClient": len(keys.MACServerToClient),
	}
	want := map[string]int{
		"IVClientToServer": 16, "IVServerToClient": 16,
		"EncClientToServer": 32, "EncServerToClient": 32,
		"MACClientToServer": 32, "MACServerToClient": 32,
	}
	for name, l := range want {
		if lens[name] != l {
			t.Errorf("%s length = %d, want %d", name, lens[name], l)
		}
	}

	if bytes.Equal(keys.IVClientToServer, keys.IVServerToClient) {
		t.Error("IV keys for both directions must differ")
	}
	if bytes.Equal(keys.EncClientToServer, keys.EncServerToClient) {
		t.Error("encryption keys for both directions must differ")
	}
}

func TestDeriveKeyExtendsBeyondOneHashBlock(t *testing.T) {
	k := bigFromHex(t, "01")
	h := []byte("h")
	sessionID := []byte("sid")

	// sha256 produces 32 bytes per round; request more than that to
	// exercise the extension loop.
	key := deriveKey(sha256.New, k, h, sessionID, KeyEncClientToServer, 48)
	if len(key) != 48 {
		t.Fatalf("len(key) = %d, want 48", len(key))
	}
}

func TestCurve25519ExchangeAgreesOnSharedSecret(t *testing.T) {
	client, err := NewExchange(Curve25519SHA256)
	if err != nil {
		t.Fatalf("NewExchange(client): %v", err)
	}
	server, err := NewExchange(Curve25519SHA256)
	if err != nil {
		t.Fatalf("NewExchange(server): %v", err)
	}

	clientSecret, err := client.SharedSecret(server.PublicValue())
	if err != nil {
		t.Fatalf("client.SharedSecret: %v", err)
	}
	serverSecret, err := server.SharedSecret(client.PublicValue())
	if err != nil {
		t.Fatalf("server.SharedSecret: %v", err)
	}

	if clientSecret.Cmp(serverSecret) != 0 {
		t.Fatal("curve25519 shared secrets do not match")
	}
}

func TestECDHExchangeAgreesOnSharedSecret(t *testing.T) {
	for _, algo := range []string{ECDHSHA2NistP256, ECDHSHA2NistP384, ECDHSHA2NistP521} {
		client, err := NewExchange(algo)
		if err != nil {
			t.Fatalf("%s: NewExchange(client): %v", algo, err)
		}
		server, err := NewExchange(algo)
		if err != nil {
			t.Fatalf("%s: NewExchange(server): %v", algo, err)
		}

		clientSecret, err := client.SharedSecret(server.PublicValue())
		if err != nil {
			t.Fatalf("%s: client.SharedSecret: %v", algo, err)
		}
		serverSecret, err := server.SharedSecret(client.PublicValue())
		if err != nil {
			t.Fatalf("%s: server.SharedSecret: %v", algo, err)
		}
		if clientSecret.Cmp(serverSecret) != 0 {
			t.Fatalf("%s: shared secrets do not match", algo)
		}
	}
}

func TestDHExchangeAgreesOnSharedSecret(t *testing.T) {
	client, err := NewExchange(DiffieHellmanGroup14SHA256)
	if err != nil {
		t.Fatalf("NewExchange(client): %v", err)
	}
	server, err := NewExchange(DiffieHellmanGroup14SHA256)
	if err != nil {
		t.Fatalf("NewExchange(server): %v", err)
	}

	clientSecret, err := client.SharedSecret(server.PublicValue())
	if err != nil {
		t.Fatalf("client.SharedSecret: %v", err)
	}
	serverSecret, err := server.SharedSecret(client.PublicValue())
	if err != nil {
		t.Fatalf("server.SharedSecret: %v", err)
	}
	if clientSecret.Cmp(serverSecret) != 0 {
		t.Fatal("DH shared secrets do not match")
	}
}

func TestComputeExchangeHashIsDeterministic(t *testing.T) {
	params := ExchangeHashParams{
		ClientVersion: []byte("SSH-2.0-client"),
		ServerVersion: []byte("SSH-2.0-server"),
		ClientKexInit: []byte{1, 2, 3},
		ServerKexInit: []byte{4, 5, 6},
		HostKey:       []byte("hostkey"),
		ClientPublic:  []byte{0x01, 0x02},
		ServerPublic:  []byte{0x03, 0x04},
		SharedSecret:  bigFromHex(t, "ff"),
	}
	h1 := ComputeExchangeHash(sha256.New, params)
	h2 := ComputeExchangeHash(sha256.New, params)
	if !bytes.Equal(h1, h2) {
		t.Fatal("ComputeExchangeHash is not deterministic")
	}

	params.ServerPublic = []byte{0x03, 0x05}
	h3 := ComputeExchangeHash(sha256.New, params)
	if bytes.Equal(h1, h3) {
		t.Fatal("ComputeExchangeHash did not change with a different server public value")
	}
}
