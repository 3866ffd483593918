package sshclient

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/dantte-lp/gossh/internal/cipher"
)

// bufferedConn lets a net.Conn's byte stream be read through a bufio.Reader
// that was already used for the version-banner exchange, so that any bytes
// the server pipelined immediately after its banner (already buffered,
// never re-readable from the raw conn) are not lost once
// internal/transport takes over raw conn.Read calls post-handshake.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c bufferedConn) Read(b []byte) (int, error) { return c.r.Read(b) }

// bufferedPacketIO is a synchronous, single-goroutine packet reader/writer
// used only for the initial key exchange (first KEXINIT through NEWKEYS;
// the banner is read from the bufio.Reader directly, and ssh-userauth runs
// over the transport.Transport built afterwards): a plain "none" codec over
// whatever bytes the version-exchange bufio.Reader already buffered, with
// no sequence-number wraparound concerns since a connection never rekeys
// before authenticating.
//
// internal/transport.Transport is not used here because it owns a
// background reader goroutine intended for the long-lived, concurrent
// post-Ready connection; the handshake is simpler serialized inline, and
// constructing the Transport only once the final negotiated codecs are
// known avoids a throwaway pair of goroutines per Connect attempt.
type bufferedPacketIO struct {
	r          io.Reader
	w          io.Writer
	readCodec  cipher.Codec
	writeCodec cipher.Codec
	maxLen     uint32
	seq        uint32
	writeSeq   uint32
	buf        []byte
}

func newBufferedPacketIO(r io.Reader, w io.Writer, readCodec, writeCodec cipher.Codec, maxLen uint32) *bufferedPacketIO {
	return &bufferedPacketIO{r: r, w: w, readCodec: readCodec, writeCodec: writeCodec, maxLen: maxLen}
}

func (p *bufferedPacketIO) ReadPacket() ([]byte, error) {
	tmp := make([]byte, 32*1024)
	for {
		payload, consumed, err := p.readCodec.Decode(p.buf, p.seq, p.maxLen)
		if err != nil {
			return nil, fmt.Errorf("ssh: handshake: decode packet: %w", err)
		}
		if consumed > 0 {
			p.buf = p.buf[consumed:]
			p.seq++
			return payload, nil
		}
		n, err := p.r.Read(tmp)
		if n > 0 {
			p.buf = append(p.buf, tmp[:n]...)
		}
		if err != nil {
			return nil, fmt.Errorf("ssh: handshake: read: %w", err)
		}
	}
}

func (p *bufferedPacketIO) WritePacket(payload []byte) error {
	framed, err := p.writeCodec.Encode(nil, payload, p.writeSeq)
	if err != nil {
		return fmt.Errorf("ssh: handshake: encode packet: %w", err)
	}
	if _, err := p.w.Write(framed); err != nil {
		return fmt.Errorf("ssh: handshake: write: %w", err)
	}
	p.writeSeq++
	return nil
}
