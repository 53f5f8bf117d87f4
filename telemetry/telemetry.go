// Package telemetry isolates panics inside per-core worker loops and
// rate-limits the error logging generated by high-volume datapath faults
// (malformed packets, protocol probe failures, ring overflow) so that a
// pathological flow cannot flood stderr.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/printer"
)

// Recover guards a per-core run-to-completion loop. A panic inside packet
// processing must not take down the other cores; it is logged, counted,
// and the loop's caller decides whether to keep iterating.
func Recover(coreID int, context string) {
	if r := recover(); r != nil {
		err := errors.Errorf("panic in %s: %v", context, r)
		RateLimitError(context, err)
		Faults.Add(coreID)
	}
}

type eventRecord struct {
	// Number of occurrences since the last one was logged.
	Count int

	// Next time at which a log line for this context may be emitted.
	NextSend time.Time
}

var rateLimitMap sync.Map

const rateLimitWindow = 60 * time.Second

// RateLimitError logs an error attributed to inContext, printing at most
// one line per rateLimitWindow for that context; the remainder are
// counted and folded into the next line once the window reopens.
func RateLimitError(inContext string, e error) {
	newRecord := eventRecord{
		Count:    0,
		NextSend: time.Now().Add(rateLimitWindow),
	}
	existing, present := rateLimitMap.LoadOrStore(inContext, newRecord)

	count := 1
	if present {
		record := existing.(eventRecord)

		if record.NextSend.After(time.Now()) {
			record.Count += 1
			rateLimitMap.Store(inContext, record)
			return
		}

		count = record.Count + 1
		rateLimitMap.Store(inContext, newRecord)
	}

	if count > 1 {
		printer.Errorf("%s: %v (%d occurrences suppressed)\n", inContext, e, count-1)
	} else {
		printer.Errorf("%s: %v\n", inContext, e)
	}
}

// faultCounters is a lock-free, per-core fault tally, read through its
// Snapshot method. It intentionally does not track what kind
// of fault occurred; RateLimitError's log line carries that detail.
type faultCounters struct {
	counts []atomic.Uint64
}

var Faults = newFaultCounters(256)

func newFaultCounters(maxCores int) *faultCounters {
	return &faultCounters{counts: make([]atomic.Uint64, maxCores)}
}

func (f *faultCounters) Add(coreID int) {
	if coreID < 0 || coreID >= len(f.counts) {
		return
	}
	f.counts[coreID].Add(1)
}

func (f *faultCounters) Snapshot(coreID int) uint64 {
	if coreID < 0 || coreID >= len(f.counts) {
		return 0
	}
	return f.counts[coreID].Load()
}
