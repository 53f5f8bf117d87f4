// Package packet provides a reference-counted, pool-backed view over a
// captured NIC frame, with lazy on-demand header parsing.
package packet

import (
	"sync/atomic"
	"time"
)

// Buffer is one captured frame. The underlying bytes are immutable after
// ingress; concurrent readers never race because packet delivery is
// single-writer per 5-tuple (RSS affinity), but the refcount itself is
// atomic because reassembly, the tracker, and a callback may each hold an
// independent reference that is dropped from different call sites.
type Buffer struct {
	pool   *Pool
	slab   []byte
	length int

	refcount atomic.Int32

	captureTime time.Time
	ifaceIndex  int
	mark        uint32

	layers layerCache
}

// CaptureTime is the time the frame was handed to us by the ingress
// source (pcap timestamp, or time.Now() for synthetic test buffers).
func (b *Buffer) CaptureTime() time.Time { return b.captureTime }

// SetCaptureTime records when the frame was captured. Called once by the
// ingress loop before the buffer is handed to a worker.
func (b *Buffer) SetCaptureTime(t time.Time) { b.captureTime = t }

// IngressInterface is the index of the NIC interface the frame arrived
// on, used for per-interface statistics.
func (b *Buffer) IngressInterface() int { return b.ifaceIndex }

func (b *Buffer) SetIngressInterface(idx int) { b.ifaceIndex = idx }

// Mark is an opaque tag a filter stage may stamp on a buffer (e.g. the
// matched hardware-offload class) and a later stage may read back.
func (b *Buffer) Mark() uint32     { return b.mark }
func (b *Buffer) SetMark(m uint32) { b.mark = m }

// Bytes returns the captured frame, from the Ethernet header on.
func (b *Buffer) Bytes() []byte { return b.slab[:b.length] }

// Len is the number of captured bytes.
func (b *Buffer) Len() int { return b.length }

// Clone bumps the reference count and returns the same buffer handle;
// every Clone must be matched with a Drop.
func (b *Buffer) Clone() *Buffer {
	b.refcount.Add(1)
	return b
}

// Drop releases one reference. The underlying slab returns to its pool
// when the last reference is dropped.
func (b *Buffer) Drop() {
	if b.refcount.Add(-1) == 0 {
		b.layers = layerCache{}
		if b.pool != nil {
			b.pool.put(b.slab)
		}
	}
}

// RefCount reports the current number of live holders, for tests and
// diagnostics.
func (b *Buffer) RefCount() int32 {
	return b.refcount.Load()
}

// NewTestBuffer wraps an already-allocated slice without a backing pool,
// for unit tests that construct synthetic frames. Drop is a no-op once
// the single reference reaches zero.
func NewTestBuffer(data []byte) *Buffer {
	b := &Buffer{slab: data, length: len(data), captureTime: time.Time{}}
	b.refcount.Store(1)
	return b
}
