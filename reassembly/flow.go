// Package reassembly reorders TCP segments per direction into an
// in-order byte stream, without copying payload bytes out of their
// packet buffers.
//
// This is a from-scratch algorithm rather than a wrapper around
// gopacket/reassembly: that library's flush/page-list policy does not
// match the explicit next-seq/ring/drop-new/earlier-wins rules this
// package implements. The Flow/Stream split below mirrors the shape of
// a conventional per-direction-flow TCP reassembler, generalized to
// those explicit rules.
package reassembly

import (
	"github.com/flowlens/flowlens/packet"
)

// seqLess reports whether a comes before b on the wrapping 32-bit TCP
// sequence space.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func seqLessOrEqual(a, b uint32) bool {
	return a == b || seqLess(a, b)
}

// Segment is one in-order-eligible span of payload bytes, still backed
// by its original packet buffer.
type Segment struct {
	Seq  uint32
	Data []byte
	buf  *packet.Buffer
}

func (s Segment) end() uint32 { return s.Seq + uint32(len(s.Data)) }

// held is one entry retained in a Flow's out-of-order ring.
type held struct {
	seg Segment
}

// Flow reorders one direction of a TCP connection.
type Flow struct {
	nextSeq     uint32
	initialized bool

	ring         []held
	ringCapacity int

	closed bool
	gaps   uint64
	drops  uint64
}

// NewFlow creates a Flow whose out-of-order ring holds at most
// ringCapacity segments before it starts dropping new arrivals.
func NewFlow(ringCapacity int) *Flow {
	return &Flow{ringCapacity: ringCapacity}
}

// Gaps is the number of segments that arrived beyond next_seq and are
// still waiting for the missing bytes in between.
func (f *Flow) Gaps() uint64 { return f.gaps }

// Drops is the number of segments discarded under the ring-full
// drop-new policy.
func (f *Flow) Drops() uint64 { return f.drops }

// Closed reports whether this direction has seen FIN or RST.
func (f *Flow) Closed() bool { return f.closed }

// Pending reports how many out-of-order segments are currently held.
func (f *Flow) Pending() int { return len(f.ring) }

// Init establishes next_seq for this direction from the first observed
// packet (the TCP SYN's sequence number plus one, or the first data
// segment's sequence number for a mid-stream capture). It must be
// called exactly once, before the first Accept.
func (f *Flow) Init(seq uint32) {
	f.nextSeq = seq
	f.initialized = true
}

// Accept ingests one TCP segment and returns the Segments now
// deliverable in strict sequence order (zero or more). buf is the
// packet buffer backing data; Accept takes ownership of one reference
// to buf for any bytes it retains in the ring, and expects the caller
// to still hold its own reference for bytes it returns (the caller
// drops those once delivered downstream).
func (f *Flow) Accept(seq uint32, data []byte, buf *packet.Buffer) []Segment {
	if f.closed || len(data) == 0 {
		return nil
	}
	if !f.initialized {
		f.Init(seq)
	}

	var out []Segment
	seg := Segment{Seq: seq, Data: data, buf: buf}

	if seqLess(seg.Seq, f.nextSeq) {
		if !seqLess(f.nextSeq, seg.end()) {
			// Fully covered by bytes already delivered: drop.
			return nil
		}
		// Partially covered: trim the already-delivered prefix and treat
		// the remainder as arriving exactly at next_seq.
		trim := f.nextSeq - seg.Seq
		seg.Seq = f.nextSeq
		seg.Data = seg.Data[trim:]
	}

	if seg.Seq == f.nextSeq {
		out = append(out, seg)
		f.nextSeq = seg.end()
		out = append(out, f.drain()...)
		return out
	}

	// seg.Seq > f.nextSeq: out-of-order arrival.
	f.insertHeld(seg)
	return out
}

// insertHeld resolves overlap against everything already held
// (earlier-received bytes win) before admitting the segment, then
// enforces the ring-full drop-new policy.
func (f *Flow) insertHeld(seg Segment) {
	pending := []Segment{seg}

	for _, h := range f.ring {
		var next []Segment
		for _, p := range pending {
			next = append(next, subtractRange(p, h.seg)...)
		}
		pending = next
		if len(pending) == 0 {
			break
		}
	}

	for _, p := range pending {
		if len(p.Data) == 0 {
			continue
		}
		if len(f.ring) >= f.ringCapacity {
			f.drops++
			continue
		}
		f.gaps++
		f.ring = append(f.ring, held{seg: p})
	}
}

// subtractRange removes the byte range covered by existing from p,
// returning the (zero, one, or two) remaining sub-segments of p. The
// earlier-received segment (existing) always wins the overlap.
func subtractRange(p, existing Segment) []Segment {
	pStart, pEnd := p.Seq, p.end()
	eStart, eEnd := existing.Seq, existing.end()

	if !seqLess(eStart, pEnd) || !seqLess(pStart, eEnd) {
		// No overlap.
		return []Segment{p}
	}

	var out []Segment
	if seqLess(pStart, eStart) {
		n := eStart - pStart
		out = append(out, Segment{Seq: pStart, Data: p.Data[:n], buf: p.buf})
	}
	if seqLess(eEnd, pEnd) {
		n := eEnd - pStart
		out = append(out, Segment{Seq: eEnd, Data: p.Data[n:], buf: p.buf})
	}
	return out
}

// drain pulls every held segment now contiguous with next_seq, in
// order, advancing next_seq past each.
func (f *Flow) drain() []Segment {
	var out []Segment
	for {
		idx := -1
		for i, h := range f.ring {
			if seqLessOrEqual(h.seg.Seq, f.nextSeq) && seqLess(f.nextSeq, h.seg.end()) {
				idx = i
				break
			}
		}
		if idx == -1 {
			return out
		}

		seg := f.ring[idx].seg
		f.ring = append(f.ring[:idx], f.ring[idx+1:]...)

		if seqLess(seg.Seq, f.nextSeq) {
			trim := f.nextSeq - seg.Seq
			seg.Seq = f.nextSeq
			seg.Data = seg.Data[trim:]
		}
		if len(seg.Data) == 0 {
			continue
		}
		out = append(out, seg)
		f.nextSeq = seg.end()
	}
}

// Close flushes held segments without delivering them (a persistent
// gap means they can never become contiguous) and marks the direction
// closed. The caller is responsible for dropping the buffer references
// of the segments Close returns.
func (f *Flow) Close() []Segment {
	f.closed = true
	flushed := make([]Segment, 0, len(f.ring))
	for _, h := range f.ring {
		flushed = append(flushed, h.seg)
	}
	f.ring = nil
	return flushed
}
