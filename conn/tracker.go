// Package conn implements the per-core connection tracker: a hash
// table from normalized 5-tuple to connection entry, driving each
// entry through the Probing → Parsing → Tracking → Remove state
// machine as packets and reassembled bytes arrive.
//
// One Tracker belongs to exactly one worker core. The NIC's
// receive-side scaling guarantees a given 5-tuple always lands on the
// same core, so nothing here takes a lock.
package conn

import (
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/filter"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/printer"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/reassembly"
	"github.com/flowlens/flowlens/telemetry"
	"github.com/flowlens/flowlens/timerwheel"
)

// Config bounds the per-connection resources a Tracker hands out.
type Config struct {
	CoreID              int
	ReassemblyRing      int
	EstablishingTimeout time.Duration
	IdleTimeout         time.Duration
	WheelSlots          int
}

// Tracker is the per-core connection table.
type Tracker struct {
	cfg     Config
	program *codegen.Program
	out     printer.P

	table map[ID]*Entry
	wheel *timerwheel.Wheel
	seq   uint64 // monotonic key disambiguator for the timer wheel
}

// NewTracker builds an empty tracker bound to program's compiled
// filter/track artifact.
func NewTracker(cfg Config, program *codegen.Program, now time.Time) *Tracker {
	return &Tracker{
		cfg:     cfg,
		program: program,
		out:     printer.Core(cfg.CoreID),
		table:   make(map[ID]*Entry),
		wheel:   timerwheel.New(cfg.WheelSlots, cfg.EstablishingResolution(), now),
	}
}

// EstablishingResolution returns EstablishingTimeout, or 100ms when it
// is unset. The tracker uses it both as the wheel's single bucket
// resolution and as each new entry's expiry delay; there is no separate
// resolution for established connections.
func (c Config) EstablishingResolution() time.Duration {
	if c.EstablishingTimeout <= 0 {
		return 100 * time.Millisecond
	}
	return c.EstablishingTimeout
}

// Dispatch is how a matched terminal subscription's callback actually
// runs; the worker supplies it so this package has no dependency on
// the callback registry's concrete type.
type Dispatch func(subIdx int, callback string, view any)

// Process looks up five's entry, creating one if absent and the
// packet is a TCP SYN or any UDP datagram, then drives the entry's
// state machine one step with this packet.
func (t *Tracker) Process(buf *packet.Buffer, five PacketFiveTuple, dispatch Dispatch) {
	id, toOriginator := Normalize(five.toTrack())

	entry, ok := t.table[id]
	if !ok {
		if !five.AcceptsNewConnection() {
			return
		}
		entry = newEntry(id, t.program, t.cfg.ReassemblyRing, time.Now())
		entry.track.OnFirstPacket(five.toTrack(), entry.pending)
		t.table[id] = entry
		t.arm(id, entry)
		t.out.V(1).Debugf("conn %s: opened", entry.correlationID)
	}
	if entry.state == Remove {
		return
	}
	entry.lastActivity = time.Now()

	view := filter.ViewOf(buf)
	pktResult := filter.PacketFilter(t.program.Tree, view)
	nonterminal := pktResult.NonterminalMatches
	nonterminal.AndNot(entry.delivered)
	entry.pending.Union(nonterminal)
	// PacketFilter always walks from the root, so its nonterminal_nodes
	// only describe the packet-layer position. Once probing has chosen
	// a protocol (or a session has advanced the frontier deeper), that
	// deeper position must not be clobbered by this packet's shallow
	// re-walk.
	if entry.state == Probing {
		entry.frontier = pktResult.NonterminalNodes
	}
	t.deliverTerminal(entry, pktResult.TerminalMatches, dispatch)

	dir := proto.ToResponder
	if toOriginator {
		dir = proto.ToOriginator
	}

	var payload []byte
	if tcp, err := buf.TCP(); err == nil {
		payload = tcp.LayerPayload()
	} else if udp, err := buf.UDP(); err == nil {
		payload = udp.LayerPayload()
	}
	t.advanceProbing(entry, dir, payload, dispatch)
	if entry.state == Parsing {
		t.advanceParsing(entry, dir, five.Seq, payload, buf, dispatch)
	}

	entry.track.OnPacket(buf, toOriginator)

	if entry.pending.Empty() && entry.state != Probing {
		t.remove(id, dispatch)
	}
}

func (t *Tracker) advanceProbing(entry *Entry, dir proto.Direction, payload []byte, dispatch Dispatch) {
	if entry.state != Probing {
		return
	}
	var kept []proto.Candidate
	var chosen *proto.Candidate
	for _, c := range entry.candidates {
		switch c.Parser.Probe(dir, payload) {
		case proto.Match:
			cc := c
			chosen = &cc
		case proto.Inconclusive:
			kept = append(kept, c)
		case proto.Reject:
		}
		if chosen != nil {
			break
		}
	}
	switch {
	case chosen != nil:
		entry.chosen = chosen
		entry.state = Parsing
		protoRes := filter.ProtoFilter(t.program.Tree, entry.frontier, chosen.Kind)
		entry.pending.Union(protoRes.NonterminalMatches)
		entry.frontier = protoRes.NonterminalNodes
		t.deliverTerminal(entry, protoRes.TerminalMatches, dispatch)
	case len(kept) == 0:
		entry.state = Tracking
	default:
		entry.candidates = kept
	}
}

func (t *Tracker) advanceParsing(entry *Entry, dir proto.Direction, seq uint32, payload []byte, buf *packet.Buffer, dispatch Dispatch) {
	toOrig := dir == proto.ToResponder
	streamDir := reassembly.ClientToServer
	if !toOrig {
		streamDir = reassembly.ServerToClient
	}
	var segments []reassembly.Segment
	if entry.id.five.Proto == protoUDP {
		// Each datagram is a complete message; there is no sequence
		// space to reorder against.
		if len(payload) > 0 {
			segments = []reassembly.Segment{{Seq: seq, Data: payload}}
		}
	} else {
		segments = entry.stream.Accept(streamDir, seq, payload, buf)
		if entry.stream.Stuck() {
			t.remove(entry.id, dispatch)
			return
		}
	}

	for _, seg := range segments {
		outcome, session, err := entry.chosen.Parser.Parse(dir, seg.Data)
		if err != nil {
			telemetry.RateLimitError("conn.parse", err)
			entry.state = Tracking
			return
		}
		if outcome == proto.SessionReady || outcome == proto.Done {
			if session != nil {
				keep := entry.track.OnSession(session)
				sessionRes := filter.SessionFilter(t.program.Tree, entry.frontier, session)
				entry.pending.Union(sessionRes.NonterminalMatches)
				entry.frontier = sessionRes.NonterminalNodes
				t.deliverTerminal(entry, sessionRes.TerminalMatches, dispatch)
				if !keep {
					entry.state = Tracking
				}
			}
		}
	}
}

// deliverTerminal masks terminal against whatever this entry has
// already delivered, so a subscription whose pattern terminates at a
// shallow layer (re-derived by every packet, since PacketFilter and
// ProtoFilter both walk from a fixed starting point) fires its
// callback exactly once per connection rather than once per packet.
func (t *Tracker) deliverTerminal(entry *Entry, terminal filter.Bitmap, dispatch Dispatch) {
	terminal.AndNot(entry.delivered)
	if terminal.Empty() {
		return
	}
	entry.delivered.Union(terminal)
	entry.pending.AndNot(terminal)

	actions := t.program.Tree.ActionsFor(terminal)
	entry.track.OnTerminate(terminal, func(subIdx int, view any) {
		for _, a := range actions {
			if a.SubscriptionIndex == subIdx {
				dispatch(subIdx, a.Callback, view)
			}
		}
	})
}

// AdvanceTimers reaps every entry whose deadline has elapsed.
func (t *Tracker) AdvanceTimers(now time.Time, dispatch Dispatch) {
	expired := t.wheel.Advance(now)
	for _, k := range expired {
		for id, e := range t.table {
			if e != nil && k.ConnID == idHash(id) {
				t.remove(id, dispatch)
				break
			}
		}
	}
}

func (t *Tracker) arm(id ID, entry *Entry) {
	t.seq++
	deadline := entry.establishedAt.Add(t.cfg.EstablishingResolution())
	t.wheel.Insert(timerwheel.Key{ConnID: idHash(id), Seq: t.seq}, deadline)
}

// remove flushes whatever subscriptions are still pending on entry
// through the termination stage, the deliver-on-terminate directive
// for patterns that never reached a terminal node of their own, then
// drops the entry from the table.
func (t *Tracker) remove(id ID, dispatch Dispatch) {
	e, ok := t.table[id]
	if !ok {
		return
	}
	terminal := filter.TerminationFilter(t.program.Tree, e.frontier)
	t.deliverTerminal(e, terminal, dispatch)
	e.track.Close()
	e.state = Remove
	delete(t.table, id)
	t.out.V(1).Debugf("conn %s: removed", e.correlationID)
}

// Len reports the number of live entries, for stats reporting.
func (t *Tracker) Len() int { return len(t.table) }

// idHash folds a connection ID's 5-tuple into the timer wheel's
// uint64 key space. xxhash.Checksum64 is the same string/byte hashing
// primitive package codegen could reach for anywhere a fast,
// non-cryptographic digest over a small byte slice is needed.
func idHash(id ID) uint64 {
	var buf [37]byte
	n := copy(buf[:], id.five.SrcIP[:])
	n += copy(buf[n:], id.five.DstIP[:])
	buf[n] = byte(id.five.SrcPort)
	buf[n+1] = byte(id.five.SrcPort >> 8)
	buf[n+2] = byte(id.five.DstPort)
	buf[n+3] = byte(id.five.DstPort >> 8)
	buf[n+4] = id.five.Proto
	n += 5
	return xxhash.Checksum64(buf[:n])
}
