package wire

import "sync"

// segmentSize is the fixed allocation unit for Buffer segments. A
// maximum-size SSH packet (35000 bytes, RFC 4253 Section 6.1) spans three
// segments.
const segmentSize = 16384

// BufferPool is a multi-producer pool of segmented byte buffers used to
// accumulate inbound SSH packet bytes (internal/transport's read loop)
// without a per-packet heap allocation on the steady-state path.
//
// Pattern grounded on internal/bfd/packet.go's PacketPool: a sync.Pool of
// *[]byte to avoid the interface-allocation cost of Get()/Put() on a bare
// []byte value.
type BufferPool struct {
	segments sync.Pool
}

// NewBufferPool creates a BufferPool ready for use.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		segments: sync.Pool{
			New: func() any {
				b := make([]byte, segmentSize)
				return &b
			},
		},
	}
}

func (p *BufferPool) getSegment() *[]byte {
	return p.segments.Get().(*[]byte)
}

func (p *BufferPool) putSegment(seg *[]byte) {
	p.segments.Put(seg)
}

// Buffer is a growable byte buffer backed by pool-allocated segments.
// A Buffer is single-owner: concurrent use by more than one goroutine is
// not supported, matching the transport loop's single-reader/single-writer
// ownership of its inbound/outbound buffers.
type Buffer struct {
	pool     *BufferPool
	segs     []*[]byte
	readOff  int // offset into segs[0] of unread data
	writeSeg int // index into segs currently being appended to
	writeOff int // offset into segs[writeSeg] of the next write
}

// NewBuffer creates an empty Buffer drawing segments from pool.
func NewBuffer(pool *BufferPool) *Buffer {
	return &Buffer{pool: pool}
}

// Append copies p into the buffer, allocating additional segments from the
// pool as needed.
func (b *Buffer) Append(p []byte) {
	for len(p) > 0 {
		if len(b.segs) == 0 || b.writeOff == segmentSize {
			b.segs = append(b.segs, b.pool.getSegment())
			b.writeSeg = len(b.segs) - 1
			b.writeOff = 0
		}
		seg := *b.segs[b.writeSeg]
		n := copy(seg[b.writeOff:], p)
		b.writeOff += n
		p = p[n:]
	}
}

// Len returns the number of unread bytes currently held by the buffer.
func (b *Buffer) Len() int {
	if len(b.segs) == 0 {
		return 0
	}
	total := 0
	for i, seg := range b.segs {
		lo := 0
		hi := len(*seg)
		if i == 0 {
			lo = b.readOff
		}
		if i == b.writeSeg {
			hi = b.writeOff
		} else if i > b.writeSeg {
			hi = 0
		}
		if hi > lo {
			total += hi - lo
		}
	}
	return total
}

// Peek returns the first n unread bytes without consuming them. It returns
// false if fewer than n bytes are available. The returned slice may span
// pool segments and is only valid until the next call to Append or Remove.
func (b *Buffer) Peek(n int) ([]byte, bool) {
	if b.Len() < n {
		return nil, false
	}
	if n == 0 {
		return nil, true
	}
	// Fast path: entirely within the first segment.
	seg0 := *b.segs[0]
	if b.readOff+n <= len(seg0) {
		return seg0[b.readOff : b.readOff+n], true
	}
	out := make([]byte, 0, n)
	remaining := n
	for i := 0; remaining > 0; i++ {
		seg := *b.segs[i]
		lo := 0
		if i == 0 {
			lo = b.readOff
		}
		hi := len(seg)
		if i == b.writeSeg {
			hi = b.writeOff
		}
		avail := hi - lo
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, seg[lo:lo+take]...)
		remaining -= take
	}
	return out, true
}

// Remove discards the first n unread bytes, releasing any segment that
// becomes fully consumed back to the pool.
func (b *Buffer) Remove(n int) {
	for n > 0 && len(b.segs) > 0 {
		seg := *b.segs[0]
		hi := len(seg)
		if b.writeSeg == 0 {
			hi = b.writeOff
		}
		avail := hi - b.readOff
		if avail > n {
			b.readOff += n
			return
		}
		n -= avail
		b.pool.putSegment(b.segs[0])
		b.segs = b.segs[1:]
		b.writeSeg--
		b.readOff = 0
	}
}

// Release returns all remaining segments to the pool and resets the
// buffer to empty. Callers must not use the Buffer after Release except to
// Append into it again, which reallocates from the pool as needed.
func (b *Buffer) Release() {
	for _, seg := range b.segs {
		b.pool.putSegment(seg)
	}
	b.segs = nil
	b.readOff = 0
	b.writeSeg = 0
	b.writeOff = 0
}
