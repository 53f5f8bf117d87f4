package packet

import "sync/atomic"

// Pool is a fixed-size free list of equally sized byte slabs, standing in
// for the NIC driver's pinned DMA memory pool. It never grows past its
// startup sizing: once exhausted, Get reports ErrPoolExhausted so the
// caller can drop the incoming frame and bump a counter instead of
// allocating under datapath pressure.
type Pool struct {
	slabSize int
	free     chan []byte

	outstanding atomic.Int64
	exhausted   atomic.Uint64
}

// NewPool preallocates count slabs of slabSize bytes each.
func NewPool(count, slabSize int) *Pool {
	p := &Pool{
		slabSize: slabSize,
		free:     make(chan []byte, count),
	}
	for i := 0; i < count; i++ {
		p.free <- make([]byte, slabSize)
	}
	return p
}

// SlabSize is the fixed capacity of every slab this pool hands out.
func (p *Pool) SlabSize() int {
	return p.slabSize
}

// Get claims one slab for a captured frame of n bytes. n must not exceed
// the pool's slab size.
func (p *Pool) Get(n int) (*Buffer, error) {
	if n > p.slabSize {
		return nil, ErrOutOfRange
	}
	select {
	case slab := <-p.free:
		p.outstanding.Add(1)
		buf := &Buffer{pool: p, slab: slab, length: n}
		buf.refcount.Store(1)
		return buf, nil
	default:
		p.exhausted.Add(1)
		return nil, ErrPoolExhausted
	}
}

// Outstanding reports the number of slabs currently checked out.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

// Exhausted reports the number of Get calls that found no free slab.
func (p *Pool) Exhausted() uint64 {
	return p.exhausted.Load()
}

func (p *Pool) put(slab []byte) {
	p.outstanding.Add(-1)
	select {
	case p.free <- slab[:cap(slab)]:
	default:
		// Pool was over-provisioned relative to its own capacity; drop the
		// slab rather than block the caller returning it.
	}
}
