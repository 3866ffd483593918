package wire

// SSH message numbers (RFC 4250 Section 4.1, RFC 4252 Section 6, RFC 4253
// Section 12).
const (
	MsgDisconnect  = 1
	MsgIgnore      = 2
	MsgUnimplented = 3
	MsgDebug       = 4
	MsgServiceRequest = 5
	MsgServiceAccept  = 6
	MsgExtInfo        = 7 // RFC 8308 Section 2.3

	MsgKexInit = 20
	MsgNewKeys = 21

	// Key-exchange-method-specific message ids share the 30-49 range
	// across kex algorithms (RFC 4253 Section 12); the kex package
	// interprets them according to the negotiated algorithm.
	MsgKexECDHInit  = 30
	MsgKexECDHReply = 31

	MsgUserAuthRequest = 50
	MsgUserAuthFailure = 51
	MsgUserAuthSuccess = 52
	MsgUserAuthBanner  = 53

	MsgUserAuthPasswdChangeReq = 60
	MsgUserAuthPubKeyOK        = 60 // numerically shared; disambiguated by auth method in flight

	MsgGlobalRequest       = 80
	MsgRequestSuccess      = 81
	MsgRequestFailure      = 82
	MsgChannelOpen         = 90
	MsgChannelOpenConfirm  = 91
	MsgChannelOpenFailure  = 92
	MsgChannelWindowAdjust = 93
	MsgChannelData         = 94
	MsgChannelExtendedData = 95
	MsgChannelEOF          = 96
	MsgChannelClose        = 97
	MsgChannelRequest      = 98
	MsgChannelSuccess      = 99
	MsgChannelFailure      = 100
)

// DisconnectReason enumerates RFC 4253 Section 11.1 disconnect codes.
type DisconnectReason uint32

// Disconnect reason codes (RFC 4253 Section 11.1).
const (
	DisconnectHostNotAllowedToConnect DisconnectReason = 1
	DisconnectProtocolError           DisconnectReason = 2
	DisconnectKeyExchangeFailed       DisconnectReason = 3
	DisconnectHostAuthenticationFailed DisconnectReason = 4
	DisconnectMACError                DisconnectReason = 5
	DisconnectCompressionError        DisconnectReason = 6
	DisconnectServiceNotAvailable     DisconnectReason = 7
	DisconnectProtocolVersionNotSupported DisconnectReason = 8
	DisconnectHostKeyNotVerifiable    DisconnectReason = 9
	DisconnectConnectionLost         DisconnectReason = 10
	DisconnectByApplication          DisconnectReason = 11
	DisconnectTooManyConnections     DisconnectReason = 12
	DisconnectAuthCancelledByUser    DisconnectReason = 13
	DisconnectNoMoreAuthMethods      DisconnectReason = 14
	DisconnectIllegalUsername        DisconnectReason = 15
)

// KexInitMsg is the body of MsgKexInit (RFC 4253 Section 7.1). The leading
// message-id byte is not a field: Marshal prepends it and ParseKexInitMsg
// checks and strips it.
type KexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

// Marshal encodes the KEXINIT payload including the leading message id.
func (m *KexInitMsg) Marshal() []byte {
	out := []byte{MsgKexInit}
	out = append(out, m.Cookie[:]...)
	out = PutNameList(out, m.KexAlgos)
	out = PutNameList(out, m.ServerHostKeyAlgos)
	out = PutNameList(out, m.CiphersClientServer)
	out = PutNameList(out, m.CiphersServerClient)
	out = PutNameList(out, m.MACsClientServer)
	out = PutNameList(out, m.MACsServerClient)
	out = PutNameList(out, m.CompressionClientServer)
	out = PutNameList(out, m.CompressionServerClient)
	out = PutNameList(out, m.LanguagesClientServer)
	out = PutNameList(out, m.LanguagesServerClient)
	out = PutBool(out, m.FirstKexFollows)
	out = PutUint32(out, m.Reserved)
	return out
}

// ParseKexInitMsg decodes a KEXINIT payload, including the leading message
// id, which must equal MsgKexInit.
func ParseKexInitMsg(buf []byte) (*KexInitMsg, error) {
	if len(buf) < 1 || buf[0] != MsgKexInit {
		return nil, ErrMalformedPacket
	}
	buf = buf[1:]

	m := &KexInitMsg{}
	if len(buf) < 16 {
		return nil, ErrMalformedPacket
	}
	copy(m.Cookie[:], buf[:16])
	buf = buf[16:]

	fields := []*[]string{
		&m.KexAlgos, &m.ServerHostKeyAlgos,
		&m.CiphersClientServer, &m.CiphersServerClient,
		&m.MACsClientServer, &m.MACsServerClient,
		&m.CompressionClientServer, &m.CompressionServerClient,
		&m.LanguagesClientServer, &m.LanguagesServerClient,
	}
	var err error
	for _, f := range fields {
		*f, buf, err = ParseNameList(buf)
		if err != nil {
			return nil, err
		}
	}

	m.FirstKexFollows, buf, err = ParseBool(buf)
	if err != nil {
		return nil, err
	}
	m.Reserved, _, err = ParseUint32(buf)
	if err != nil {
		return nil, err
	}
	return m, nil
}
