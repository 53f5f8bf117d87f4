// Package stats is the global, lock-free per-core counter aggregator:
// each worker core owns one Core of plain atomic counters it updates
// on the datapath, and Registry holds the set of live Cores so an
// operator-facing reader can take a point-in-time snapshot without
// ever blocking a worker.
//
// The parent-holds-children-under-a-lock-only-at-registration shape is
// grounded on SharedRateLimit/rateLimitCollector in
// trace/rate_limit.go: registration takes a lock, the hot path never
// does.
package stats

import (
	"sync"
	"sync/atomic"
)

// Core is one worker core's counters. All fields are updated with
// plain atomic adds from the core's own goroutine; nothing here is
// ever written cross-core.
type Core struct {
	id int

	PacketsReceived  atomic.Uint64
	PacketsDropped   atomic.Uint64
	MempoolExhausted atomic.Uint64
	ConnectionsOpen  atomic.Uint64
	ConnectionsClosed atomic.Uint64
	SessionsParsed   atomic.Uint64
	ParseErrors      atomic.Uint64
	CallbacksFired   atomic.Uint64
	CallbacksDropped atomic.Uint64
}

// Snapshot is a consistent-enough (not transactional — each field is
// read independently) point-in-time copy of a Core's counters, safe to
// hand to a reporting goroutine.
type Snapshot struct {
	CoreID            int
	PacketsReceived   uint64
	PacketsDropped    uint64
	MempoolExhausted  uint64
	ConnectionsOpen   uint64
	ConnectionsClosed uint64
	SessionsParsed    uint64
	ParseErrors       uint64
	CallbacksFired    uint64
	CallbacksDropped  uint64
}

func (c *Core) Snapshot() Snapshot {
	return Snapshot{
		CoreID:            c.id,
		PacketsReceived:   c.PacketsReceived.Load(),
		PacketsDropped:    c.PacketsDropped.Load(),
		MempoolExhausted:  c.MempoolExhausted.Load(),
		ConnectionsOpen:   c.ConnectionsOpen.Load(),
		ConnectionsClosed: c.ConnectionsClosed.Load(),
		SessionsParsed:    c.SessionsParsed.Load(),
		ParseErrors:       c.ParseErrors.Load(),
		CallbacksFired:    c.CallbacksFired.Load(),
		CallbacksDropped:  c.CallbacksDropped.Load(),
	}
}

// Registry is the global set of live per-core counter blocks.
type Registry struct {
	lock  sync.Mutex
	cores []*Core
}

var global = &Registry{}

// Global returns the process-wide registry every worker core
// registers with.
func Global() *Registry { return global }

// NewCore allocates and registers a Core for coreID.
func (r *Registry) NewCore(coreID int) *Core {
	c := &Core{id: coreID}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.cores = append(r.cores, c)
	return c
}

// Snapshot takes an atomic-read snapshot of every registered core.
func (r *Registry) Snapshot() []Snapshot {
	r.lock.Lock()
	cores := append([]*Core(nil), r.cores...)
	r.lock.Unlock()

	out := make([]Snapshot, len(cores))
	for i, c := range cores {
		out[i] = c.Snapshot()
	}
	return out
}
