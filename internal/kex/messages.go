package kex

import (
	"math/big"
	"strings"

	"github.com/dantte-lp/gossh/internal/wire"
)

// kexECDHInitMsg is SSH_MSG_KEX_ECDH_INIT (RFC 5656 Section 4), also used
// for curve25519-sha256 (whose "ECDH Q_C" is the Curve25519 public value).
type kexECDHInitMsg struct {
	ClientPublic []byte
}

func (m *kexECDHInitMsg) marshal() []byte {
	out := []byte{wire.MsgKexECDHInit}
	return wire.PutString(out, m.ClientPublic)
}

func parseKexECDHInitMsg(buf []byte) (*kexECDHInitMsg, error) {
	if len(buf) < 1 || buf[0] != wire.MsgKexECDHInit {
		return nil, wire.ErrMalformedPacket
	}
	pub, _, err := wire.ParseString(buf[1:])
	if err != nil {
		return nil, err
	}
	return &kexECDHInitMsg{ClientPublic: append([]byte{}, pub...)}, nil
}

// kexECDHReplyMsg is SSH_MSG_KEX_ECDH_REPLY (RFC 5656 Section 4).
type kexECDHReplyMsg struct {
	HostKey      []byte
	ServerPublic []byte
	Signature    []byte
}

func (m *kexECDHReplyMsg) marshal() []byte {
	out := []byte{wire.MsgKexECDHReply}
	out = wire.PutString(out, m.HostKey)
	out = wire.PutString(out, m.ServerPublic)
	out = wire.PutString(out, m.Signature)
	return out
}

func parseKexECDHReplyMsg(buf []byte) (*kexECDHReplyMsg, error) {
	if len(buf) < 1 || buf[0] != wire.MsgKexECDHReply {
		return nil, wire.ErrMalformedPacket
	}
	buf = buf[1:]
	m := &kexECDHReplyMsg{}
	var err error
	var hostKey, serverPub, sig []byte
	if hostKey, buf, err = wire.ParseString(buf); err != nil {
		return nil, err
	}
	if serverPub, buf, err = wire.ParseString(buf); err != nil {
		return nil, err
	}
	if sig, _, err = wire.ParseString(buf); err != nil {
		return nil, err
	}
	m.HostKey = append([]byte{}, hostKey...)
	m.ServerPublic = append([]byte{}, serverPub...)
	m.Signature = append([]byte{}, sig...)
	return m, nil
}

// kexDHInitMsg is SSH_MSG_KEXDH_INIT (RFC 4253 Section 8), used for the
// finite-field Diffie-Hellman groups.
type kexDHInitMsg struct {
	ClientPublic *big.Int
}

func (m *kexDHInitMsg) marshal() []byte {
	out := []byte{wire.MsgKexECDHInit} // numerically identical to KEXDH_INIT (30)
	return wire.PutMpint(out, m.ClientPublic)
}

func parseKexDHInitMsg(buf []byte) (*kexDHInitMsg, error) {
	if len(buf) < 1 || buf[0] != wire.MsgKexECDHInit {
		return nil, wire.ErrMalformedPacket
	}
	pub, _, err := wire.ParseMpint(buf[1:])
	if err != nil {
		return nil, err
	}
	return &kexDHInitMsg{ClientPublic: pub}, nil
}

// kexDHReplyMsg is SSH_MSG_KEXDH_REPLY (RFC 4253 Section 8).
type kexDHReplyMsg struct {
	HostKey      []byte
	ServerPublic *big.Int
	Signature    []byte
}

func parseKexDHReplyMsg(buf []byte) (*kexDHReplyMsg, error) {
	if len(buf) < 1 || buf[0] != wire.MsgKexECDHReply {
		return nil, wire.ErrMalformedPacket
	}
	buf = buf[1:]
	m := &kexDHReplyMsg{}
	var err error
	var hostKey, sig []byte
	if hostKey, buf, err = wire.ParseString(buf); err != nil {
		return nil, err
	}
	if m.ServerPublic, buf, err = wire.ParseMpint(buf); err != nil {
		return nil, err
	}
	if sig, _, err = wire.ParseString(buf); err != nil {
		return nil, err
	}
	m.HostKey = append([]byte{}, hostKey...)
	m.Signature = append([]byte{}, sig...)
	return m, nil
}

// marshalNewKeys returns SSH_MSG_NEWKEYS (RFC 4253 Section 7.3): a bare message id,
// no payload.
func marshalNewKeys() []byte { return []byte{wire.MsgNewKeys} }

func isNewKeys(buf []byte) bool { return len(buf) == 1 && buf[0] == wire.MsgNewKeys }

// extInfoMsg is SSH_MSG_EXT_INFO (RFC 8308 Section 2.3): a count followed
// by that many (name, value) string pairs.
type extInfoMsg struct {
	Extensions map[string]string
}

func parseExtInfoMsg(buf []byte) (*extInfoMsg, error) {
	if len(buf) < 1 || buf[0] != wire.MsgExtInfo {
		return nil, wire.ErrMalformedPacket
	}
	buf = buf[1:]
	count, buf, err := wire.ParseUint32(buf)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		var name, value []byte
		if name, buf, err = wire.ParseString(buf); err != nil {
			return nil, err
		}
		if value, buf, err = wire.ParseString(buf); err != nil {
			return nil, err
		}
		exts[string(name)] = string(value)
	}
	return &extInfoMsg{Extensions: exts}, nil
}

// IsExtInfo reports whether buf is SSH_MSG_EXT_INFO (RFC 8308 Section 2.3),
// exported so callers reading the transport immediately after NEWKEYS (the
// only point the message is allowed to appear) can recognize and consume
// it without depending on this package's internal message types.
func IsExtInfo(buf []byte) bool {
	return len(buf) >= 1 && buf[0] == wire.MsgExtInfo
}

// ParseServerSigAlgs extracts the RFC 8308 "server-sig-algs" extension
// value from an SSH_MSG_EXT_INFO packet, returning the comma-separated
// algorithm list split into a slice. ok is false if buf is not EXT_INFO or
// does not carry the extension.
func ParseServerSigAlgs(buf []byte) (algos []string, ok bool) {
	msg, err := parseExtInfoMsg(buf)
	if err != nil {
		return nil, false
	}
	value, present := msg.Extensions["server-sig-algs"]
	if !present {
		return nil, false
	}
	return strings.Split(value, ","), true
}
