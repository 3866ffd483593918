package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/gossh/internal/cipher"
)

// echoPeer reads raw "none"-codec framed packets off one end of a
// net.Pipe and echoes each payload straight back, so tests can drive a
// Transport against a live, if trivial, counterpart.
func echoPeer(t *testing.T, conn net.Conn) {
	t.Helper()
	codec := cipher.NewNone()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	var seq uint32
	for {
		payload, consumed, err := codec.Decode(buf, seq, cipher.DefaultMaxPacketLength)
		if err != nil {
			return
		}
		if consumed == 0 {
			n, err := conn.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
			}
			if err != nil {
				return
			}
			continue
		}
		buf = buf[consumed:]
		seq++

		framed, err := codec.Encode(nil, payload, 0)
		if err != nil {
			return
		}
		if _, err := conn.Write(framed); err != nil {
			return
		}
	}
}

func TestTransportRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go echoPeer(t, server)

	tr := New(client, cipher.NewNone(), cipher.NewNone(), cipher.DefaultMaxPacketLength, nil)
	defer tr.Close()

	if err := tr.WritePacket([]byte("hello")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	got, err := tr.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestTransportSequenceMonotonicity(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go echoPeer(t, server)

	tr := New(client, cipher.NewNone(), cipher.NewNone(), cipher.DefaultMaxPacketLength, nil)
	defer tr.Close()

	for i := 0; i < 5; i++ {
		if err := tr.WritePacket([]byte{byte(i)}); err != nil {
			t.Fatalf("WritePacket %d: %v", i, err)
		}
		if _, err := tr.ReadPacket(); err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
	}
	if tr.writeSeq != 5 {
		t.Errorf("writeSeq = %d, want 5", tr.writeSeq)
	}
	if tr.readSeq != 5 {
		t.Errorf("readSeq = %d, want 5", tr.readSeq)
	}
}

// fakeRekeyer swaps in a fresh pair of none codecs, recording that it ran.
type fakeRekeyer struct {
	called int
}

func (f *fakeRekeyer) Rekey(ctx context.Context, t PacketIO) (cipher.Codec, cipher.Codec, error) {
	f.called++
	return cipher.NewNone(), cipher.NewNone(), nil
}

func TestTransportRekeysOnByteThreshold(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go echoPeer(t, server)

	rekeyer := &fakeRekeyer{}
	tr := New(client, cipher.NewNone(), cipher.NewNone(), cipher.DefaultMaxPacketLength, rekeyer)
	defer tr.Close()

	tr.writtenB = RekeyMaxBytes // force the threshold check to trip on the next write

	if err := tr.WritePacket([]byte("triggers rekey")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if rekeyer.called != 1 {
		t.Errorf("Rekey called %d times, want 1", rekeyer.called)
	}
	if tr.writtenB != uint64(len("triggers rekey")) {
		t.Errorf("writtenB = %d, want reset then incremented by payload length", tr.writtenB)
	}
}

func TestTransportCloseUnblocksReadPacket(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := New(client, cipher.NewNone(), cipher.NewNone(), cipher.DefaultMaxPacketLength, nil)

	done := make(chan error, 1)
	go func() {
		_, err := tr.ReadPacket()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected ReadPacket to return an error after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadPacket did not unblock after Close")
	}
}
