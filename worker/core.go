// Package worker runs the per-core run-to-completion datapath loop:
// poll an ingress queue, run the compiled packet filter, hand the
// packet to the core's connection tracker, and invoke matched
// callbacks inline.
//
// One Core owns one ingress queue and one conn.Tracker; nothing here
// is shared with another core's goroutine, mirroring the
// one-receiver-plus-fixed-worker-pool-per-shard shape in
// jroosing-HydraDNS's udp_server.go (SO_REUSEPORT-style per-core
// sockets, a fixed worker pool, non-blocking receive) generalized from
// a UDP-only fan-out to this repository's single run-to-completion
// loop per core.
package worker

import (
	"context"
	"time"

	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/conn"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/printer"
	"github.com/flowlens/flowlens/stats"
	"github.com/flowlens/flowlens/telemetry"
)

// Source yields packet buffers for one core's receive queue. The
// external interface's NIC driver contract (DMA-backed,
// reference-counted buffers, one receive queue per worker core) is
// satisfied by whatever adapts package pcap to this signature.
type Source interface {
	// Next blocks until a buffer is available or ctx is done. A nil
	// buffer with a nil error signals a clean end of input (replay
	// sources only; a live capture never returns this).
	Next(ctx context.Context) (*packet.Buffer, error)
}

// CallbackRegistry resolves a subscription's callback name to the
// function a terminal match invokes. Subscriptions are resolved at
// build time, so an unknown name here is a configuration bug codegen
// should have rejected, not a datapath condition to recover from.
type CallbackRegistry interface {
	Invoke(callback string, view any)
}

// Core is one worker's run-to-completion loop.
type Core struct {
	id       int
	source   Source
	program  *codegen.Program
	tracker  *conn.Tracker
	registry CallbackRegistry
	dispatcher *Dispatcher

	counters *stats.Core
	out      printer.P

	timerInterval time.Duration
}

// Config configures one Core.
type Config struct {
	CoreID         int
	ReassemblyRing int
	WheelSlots     int
	IdleTimeout    time.Duration
	TimerInterval  time.Duration
	DispatcherSize int
}

// NewCore builds a Core bound to one ingress source and one compiled
// Program, with its own conn.Tracker and stats.Core.
func NewCore(cfg Config, source Source, program *codegen.Program, registry CallbackRegistry, now time.Time) *Core {
	trackerCfg := conn.Config{
		CoreID:         cfg.CoreID,
		ReassemblyRing: cfg.ReassemblyRing,
		IdleTimeout:    cfg.IdleTimeout,
		WheelSlots:     cfg.WheelSlots,
	}
	interval := cfg.TimerInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	counters := stats.Global().NewCore(cfg.CoreID)
	dispatcher := NewDispatcher(cfg.DispatcherSize)
	dispatcher.OnDrop(func() { counters.CallbacksDropped.Add(1) })

	return &Core{
		id:            cfg.CoreID,
		source:        source,
		program:       program,
		tracker:       conn.NewTracker(trackerCfg, program, now),
		registry:      registry,
		dispatcher:    dispatcher,
		counters:      counters,
		out:           printer.Core(cfg.CoreID),
		timerInterval: interval,
	}
}

// Run blocks, pulling packets and driving the tracker, until ctx is
// cancelled or the source signals clean end of input.
func (c *Core) Run(ctx context.Context) {
	ticker := time.NewTicker(c.timerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.tracker.AdvanceTimers(now, c.dispatch)
		default:
		}

		buf, err := c.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.RateLimitError("worker.ingress", err)
			continue
		}
		if buf == nil {
			return
		}

		c.process(buf)
	}
}

// Dispatcher exposes the core's bounded hand-off ring, for a
// CallbackRegistry whose callback does non-trivial work and must not
// run inline on the datapath.
func (c *Core) Dispatcher() *Dispatcher { return c.dispatcher }

func (c *Core) process(buf *packet.Buffer) {
	defer telemetry.Recover(c.id, "worker.process")
	defer buf.Drop()

	c.counters.PacketsReceived.Add(1)

	five, ok := conn.FiveTupleOf(buf)
	if !ok {
		c.counters.PacketsDropped.Add(1)
		return
	}

	c.tracker.Process(buf, five, c.dispatch)
}

func (c *Core) dispatch(subIdx int, callback string, view any) {
	c.counters.CallbacksFired.Add(1)
	c.registry.Invoke(callback, view)
}
