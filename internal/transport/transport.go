// Package transport drives the per-connection reader and writer loops on
// top of internal/cipher's packet codecs: framing bytes from the socket
// into decoded payloads, serializing outbound writes, tracking the
// sequence numbers and traffic counters that trigger a rekey, and
// performing the NEWKEYS codec swap (SPEC_FULL.md Section 4.D).
//
// Grounded on golang.org/x/crypto/ssh's handshakeTransport: a reader
// goroutine feeding a channel and a mutex-guarded writer. Writes run on the
// caller's goroutine and are not blocked during a key change;
// golang.org/x/sync/errgroup is used only by WaitGroupRun, which ties the
// reader's lifetime to a caller's errgroup.Group.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gossh/internal/cipher"
	"github.com/dantte-lp/gossh/internal/wire"
)

// Rekey thresholds (RFC 4253 Section 9 guidance; SPEC_FULL.md's Open
// Question decision records these exact values).
const (
	RekeyMaxBytes   = 1 << 30 // 1 GiB
	RekeyMaxPackets = 1 << 32 // 2^32 packets
	RekeyMaxAge     = time.Hour
)

// ErrConnectionClosed is wrapped, together with the underlying cause, by
// the errors ReadPacket/WritePacket return once the transport has torn
// down, whether due to a fatal decode/I/O error or an explicit Close.
var ErrConnectionClosed = errors.New("ssh: connection closed")

// KeyExchanger runs one key exchange (initial or rekey) over the
// transport's current codecs and returns the new read/write codec pair to
// install at NEWKEYS. It is supplied by the caller (internal/sshclient),
// which owns the kex.RunClient / knownhosts wiring; transport only knows
// about the resulting Codec pair, keeping this package independent of
// internal/kex.
type KeyExchanger interface {
	Rekey(ctx context.Context, t PacketIO) (readCodec, writeCodec cipher.Codec, err error)
}

// PacketIO is the minimal read/write surface a KeyExchanger needs to
// negotiate over: plain packet exchange under whatever codec is live at
// the time.
type PacketIO interface {
	ReadPacket() ([]byte, error)
	WritePacket(payload []byte) error
}

// Metrics is the narrow counter surface the read/write loops drive
// directly. It is declared locally rather than importing
// internal/sshmetrics so transport stays independent of the concrete
// Prometheus collector; *sshmetrics.Collector already satisfies it.
type Metrics interface {
	IncPacketsSent(host string)
	IncPacketsReceived(host string)
	IncPacketsDropped(host string)
}

type noopMetrics struct{}

func (noopMetrics) IncPacketsSent(string)     {}
func (noopMetrics) IncPacketsReceived(string) {}
func (noopMetrics) IncPacketsDropped(string)  {}

// Option configures the optional observability hooks on a Transport
// (SPEC_FULL.md Section 10). The zero value of Transport behaves as if
// none were supplied: a no-op Metrics and slog.Default().
type Option func(*Transport)

// WithMetrics wires host-labeled packet counters into the read and write
// loops.
func WithMetrics(host string, m Metrics) Option {
	return func(t *Transport) {
		t.metricsHost = host
		t.metrics = m
	}
}

// WithLogger replaces the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport owns one net.Conn, one inbound decoder, and one outbound
// encoder, each independently replaceable at NEWKEYS, and serializes all
// writes through a single mutex so concurrent callers never interleave
// partial packets on the wire.
type Transport struct {
	conn   net.Conn
	maxLen uint32

	rekey KeyExchanger

	mu         sync.Mutex
	writeCodec cipher.Codec
	writeSeq   uint32
	writtenB   uint64
	writtenP   uint64
	writeSince time.Time
	writeErr   error
	rekeying   bool

	readMu    sync.Mutex
	readCodec cipher.Codec
	readSeq   uint32
	readB     uint64
	readP     uint64
	readSince time.Time

	incoming  chan []byte
	readErr   error
	closeOnce sync.Once
	closed    chan struct{}

	bufPool *wire.BufferPool

	metrics     Metrics
	metricsHost string
	logger      *slog.Logger
}

// New wraps conn with the given initial codecs (cipher.NewNone() for a
// fresh connection before the first KEXINIT completes). maxLen bounds the
// declared packet length field; pass cipher.DefaultMaxPacketLength absent
// a configured override. opts configures optional metrics/logging hooks
// (SPEC_FULL.md Section 10); callers that pass none get a no-op Metrics
// and slog.Default().
func New(conn net.Conn, readCodec, writeCodec cipher.Codec, maxLen uint32, rekey KeyExchanger, opts ...Option) *Transport {
	now := timeNow()
	t := &Transport{
		conn:       conn,
		maxLen:     maxLen,
		rekey:      rekey,
		readCodec:  readCodec,
		writeCodec: writeCodec,
		writeSince: now,
		readSince:  now,
		incoming:   make(chan []byte, 16),
		closed:     make(chan struct{}),
		bufPool:    wire.NewBufferPool(),
		metrics:    noopMetrics{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger.Debug("ssh: transport: starting read loop", "host", t.metricsHost)
	go t.readLoop()
	return t
}

// timeNow exists so tests can't accidentally depend on wall-clock
// granularity; production always uses time.Now.
func timeNow() time.Time { return time.Now() }

// ReadPacket returns the next decoded inbound payload, blocking until one
// arrives or the transport closes.
func (t *Transport) ReadPacket() ([]byte, error) {
	select {
	case p, ok := <-t.incoming:
		if !ok {
			return nil, t.terminalReadError()
		}
		return p, nil
	case <-t.closed:
		return nil, t.terminalReadError()
	}
}

func (t *Transport) terminalReadError() error {
	if t.readErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, t.readErr)
	}
	return ErrConnectionClosed
}

// WritePacket encodes and writes one payload, first triggering a rekey if
// any threshold has been crossed (SPEC_FULL.md Section 4.D). Safe for
// concurrent use.
func (t *Transport) WritePacket(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.writeErr != nil {
		return t.writeErr
	}
	if !t.rekeying && t.rekeyDue() {
		if err := t.runRekeyLocked(); err != nil {
			t.writeErr = err
			return err
		}
	}

	framed, err := t.writeCodec.Encode(nil, payload, t.writeSeq)
	if err != nil {
		t.writeErr = fmt.Errorf("ssh: transport: encode packet: %w", err)
		return t.writeErr
	}
	if _, err := t.conn.Write(framed); err != nil {
		t.writeErr = fmt.Errorf("ssh: transport: write: %w", err)
		return t.writeErr
	}

	t.writeSeq++
	t.writtenB += uint64(len(payload))
	t.writtenP++
	t.metrics.IncPacketsSent(t.metricsHost)
	return nil
}

func (t *Transport) rekeyDue() bool {
	return t.writtenB >= RekeyMaxBytes ||
		t.writtenP >= RekeyMaxPackets ||
		timeNow().Sub(t.writeSince) >= RekeyMaxAge
}

// runRekeyLocked performs a rekey: it must be called with t.mu held, and
// temporarily releases it while the KeyExchanger negotiates (which itself
// calls back into ReadPacket/WritePacket). Other writers are not blocked
// meanwhile: with rekeying set they skip the threshold check and write
// under the current codec until the new pair is installed.
func (t *Transport) runRekeyLocked() error {
	if t.rekey == nil {
		return nil // No KeyExchanger configured: caller opted out of rekeying.
	}
	t.rekeying = true
	t.mu.Unlock()

	readCodec, writeCodec, err := t.rekey.Rekey(context.Background(), t)

	t.mu.Lock()
	t.rekeying = false
	if err != nil {
		return fmt.Errorf("ssh: transport: rekey: %w", err)
	}

	t.readMu.Lock()
	old := t.readCodec
	t.readCodec = readCodec
	t.readMu.Unlock()
	old.Zero()

	t.writeCodec.Zero()
	t.writeCodec = writeCodec
	t.writtenB, t.writtenP, t.writeSince = 0, 0, timeNow()
	t.logger.Info("ssh: transport: rekey completed", "host", t.metricsHost)
	return nil
}

// readLoop decodes packets from conn as bytes arrive and feeds them to
// incoming, closing it on the first fatal error (decode failure or I/O
// error), consistent with the "fatal errors tear down the connection"
// invariant (SPEC_FULL.md Section 7).
func (t *Transport) readLoop() {
	buf := wire.NewBuffer(t.bufPool)
	defer buf.Release()
	tmp := make([]byte, 32*1024)

	for {
		t.readMu.Lock()
		codec := t.readCodec
		seq := t.readSeq
		t.readMu.Unlock()

		contig, _ := buf.Peek(buf.Len())
		payload, consumed, err := codec.Decode(contig, seq, t.maxLen)
		if err != nil {
			t.metrics.IncPacketsDropped(t.metricsHost)
			t.logger.Warn("ssh: transport: dropping connection after decode error", "host", t.metricsHost, "error", err)
			t.fail(fmt.Errorf("ssh: transport: decode packet: %w", err))
			return
		}
		if consumed == 0 {
			n, err := t.conn.Read(tmp)
			if n > 0 {
				buf.Append(tmp[:n])
			}
			if err != nil {
				t.logger.Debug("ssh: transport: read loop exiting", "host", t.metricsHost, "error", err)
				t.fail(fmt.Errorf("ssh: transport: read: %w", err))
				return
			}
			continue
		}

		buf.Remove(consumed)
		t.readMu.Lock()
		t.readSeq++
		t.readB += uint64(len(payload))
		t.readP++
		due := t.readB >= RekeyMaxBytes || t.readP >= RekeyMaxPackets || timeNow().Sub(t.readSince) >= RekeyMaxAge
		t.readMu.Unlock()

		if due {
			t.mu.Lock()
			rekeying := t.rekeying
			t.mu.Unlock()
			if !rekeying {
				go t.rekeyOnReadThreshold()
			}
		}

		t.metrics.IncPacketsReceived(t.metricsHost)

		// incoming and closed are only ever closed by this goroutine (via
		// fail), so sending here can never race a concurrent close.
		t.incoming <- payload
	}
}

// rekeyOnReadThreshold runs triggerRekey off readLoop's own goroutine.
// The KeyExchanger reads the peer's kex messages back through
// ReadPacket, which only readLoop's goroutine ever satisfies by
// continuing to decode and feed incoming; calling triggerRekey directly
// from readLoop would block the very goroutine the rekey is waiting on.
// A failure here closes the connection rather than calling fail itself,
// so the terminal error still reaches fail through readLoop's own
// conn.Read path, preserving fail's single-caller invariant.
func (t *Transport) rekeyOnReadThreshold() {
	if err := t.triggerRekey(); err != nil {
		t.logger.Warn("ssh: transport: rekey on read threshold failed", "host", t.metricsHost, "error", err)
		t.conn.Close()
	}
}

// triggerRekey initiates a rekey from the read side, mirroring the inline
// check in WritePacket for the write side (SPEC_FULL.md Section 4.D:
// thresholds apply independently per direction).
func (t *Transport) triggerRekey() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rekeying || t.writeErr != nil {
		return nil
	}
	if err := t.runRekeyLocked(); err != nil {
		t.writeErr = err
		return err
	}
	t.readMu.Lock()
	t.readB, t.readP, t.readSince = 0, 0, timeNow()
	t.readMu.Unlock()
	return nil
}

// fail records the terminal read error and closes incoming/closed,
// unblocking every pending ReadPacket. It must only ever be called from
// readLoop: incoming has exactly one writer, readLoop, and exactly one
// closer, this function on that same goroutine, so there is no
// send-on-closed-channel race. Close does not call this directly; it only
// closes the underlying conn, which makes readLoop's blocked conn.Read
// fail and drive this path itself.
func (t *Transport) fail(err error) {
	t.mu.Lock()
	if t.writeErr == nil {
		t.writeErr = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	t.mu.Unlock()

	t.readErr = err
	t.closeOnce.Do(func() {
		close(t.incoming)
		close(t.closed)
	})
}

// Close tears down the underlying connection. This causes readLoop's
// blocked conn.Read to fail, which drives fail() to close incoming/closed
// and fault all pending and future reads/writes with ErrConnectionClosed.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// WaitGroupRun is a convenience for callers that want the reader loop's
// lifetime tied to an errgroup alongside other connection goroutines
// (e.g. a higher-level dispatcher); it blocks until the transport closes
// and returns the terminal error, matching errgroup.Group.Go's signature.
func (t *Transport) WaitGroupRun(g *errgroup.Group) {
	g.Go(func() error {
		<-t.closed
		if t.readErr != nil && !errors.Is(t.readErr, ErrConnectionClosed) {
			return t.readErr
		}
		return nil
	})
}
