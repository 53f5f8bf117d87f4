// Package timerwheel implements a hashed timing wheel used by the
// connection tracker to reap idle and slow-to-establish connections in
// O(1) amortized time, without arming one timer per connection.
//
// The wheel is owned by a single core's tracker and is not safe for
// concurrent use — the same run-to-completion assumption that lets the
// tracker itself skip locking.
package timerwheel

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// EstablishingResolution is the viper key for the bucket width of
	// connections still in the Probing state. Only its default is set
	// here; the connection tracker does not read it and uses one
	// resolution for every entry (conn.Config.EstablishingResolution).
	EstablishingResolution = "timerwheel-establishing-resolution"

	// IdleResolution is the viper key for the bucket width of fully
	// tracked connections. The connection tracker does not read it.
	IdleResolution = "timerwheel-idle-resolution"

	// Slots is the viper key for the number of buckets per wheel. The
	// connection tracker takes its slot count from conn.Config.WheelSlots.
	Slots = "timerwheel-slots"
)

func init() {
	viper.SetDefault(EstablishingResolution, 100*time.Millisecond)
	viper.SetDefault(IdleResolution, 1*time.Second)
	viper.SetDefault(Slots, 4096)
}

// Key identifies a wheel entry. Seq disambiguates two connections that
// happen to land in the same slot with the same deadline.
type Key struct {
	ConnID uint64
	Seq    uint64
}

type entry struct {
	key      Key
	deadline time.Time
	next     int // index into wheel.entries, -1 if none
	prev     int
}

// Wheel buckets entries by deadline into a fixed number of slots, each
// holding a doubly linked list so Remove is O(1) and Advance only walks
// the slots that have actually elapsed.
type Wheel struct {
	resolution time.Duration
	slots      []int // head entry index per slot, -1 if empty
	entries    []entry
	free       []int // recycled entry indices

	byKey map[Key]int

	epoch time.Time
	tick  int64 // number of resolution-sized ticks since epoch at last Advance
}

// New creates a wheel with the given slot count and resolution. now is
// the time origin the wheel measures ticks from.
func New(slots int, resolution time.Duration, now time.Time) *Wheel {
	w := &Wheel{
		resolution: resolution,
		slots:      make([]int, slots),
		byKey:      make(map[Key]int),
		epoch:      now,
	}
	for i := range w.slots {
		w.slots[i] = -1
	}
	return w
}

func (w *Wheel) slotFor(deadline time.Time) int {
	ticks := int64(deadline.Sub(w.epoch) / w.resolution)
	if ticks < 0 {
		ticks = 0
	}
	return int(ticks % int64(len(w.slots)))
}

func (w *Wheel) alloc() int {
	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		return idx
	}
	w.entries = append(w.entries, entry{})
	return len(w.entries) - 1
}

// Insert schedules key to expire at deadline. If key is already present
// its deadline is updated in place (equivalent to Remove then Insert).
func (w *Wheel) Insert(key Key, deadline time.Time) {
	w.Remove(key)

	idx := w.alloc()
	slot := w.slotFor(deadline)
	head := w.slots[slot]

	w.entries[idx] = entry{key: key, deadline: deadline, next: head, prev: -1}
	if head != -1 {
		w.entries[head].prev = idx
	}
	w.slots[slot] = idx
	w.byKey[key] = idx
}

// Remove cancels a pending expiration. It is a no-op if key is not
// present.
func (w *Wheel) Remove(key Key) {
	idx, ok := w.byKey[key]
	if !ok {
		return
	}
	delete(w.byKey, key)

	e := w.entries[idx]
	if e.prev != -1 {
		w.entries[e.prev].next = e.next
	} else {
		w.slots[w.slotFor(e.deadline)] = e.next
	}
	if e.next != -1 {
		w.entries[e.next].prev = e.prev
	}
	w.free = append(w.free, idx)
}

// Advance moves the wheel forward to now and returns every key whose
// deadline has elapsed. Only the slots that ticked over since the
// previous Advance are walked, which is what keeps reaping O(1)
// amortized rather than O(slots) per call; a connection updated more
// recently than one wheel revolution is never returned, because Insert
// always re-buckets it to a future slot first.
func (w *Wheel) Advance(now time.Time) []Key {
	currentTick := int64(now.Sub(w.epoch) / w.resolution)
	if currentTick < w.tick {
		return nil
	}

	elapsedTicks := currentTick - w.tick
	nSlots := int64(len(w.slots))
	if elapsedTicks > nSlots {
		// Large clock jump (or first call far from epoch): cap the walk to
		// one full revolution, we'll still visit every slot exactly once.
		elapsedTicks = nSlots
	}

	var expired []Key
	for i := int64(0); i < elapsedTicks; i++ {
		slot := int((w.tick + i) % nSlots)
		idx := w.slots[slot]
		for idx != -1 {
			next := w.entries[idx].next
			if !w.entries[idx].deadline.After(now) {
				expired = append(expired, w.entries[idx].key)
				w.Remove(w.entries[idx].key)
			}
			idx = next
		}
	}

	w.tick = currentTick
	return expired
}

// Len reports the number of entries currently scheduled.
func (w *Wheel) Len() int {
	return len(w.byKey)
}
