package conn

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/filter"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/reassembly"
	"github.com/flowlens/flowlens/track"
)

// Entry is one connection's full tracked context: its position in the
// state machine, its reassembly streams, its remaining protocol
// candidates or chosen parser, and the tracked-state struct its
// matching subscriptions populate.
//
// Tracker owns every Entry; an Entry never back-references its
// Tracker or its timer wheel key, avoiding the Connection↔TrackedData
// cyclic reference the design notes call out — the tracker looks
// Entry up by ID when a timer fires instead.
type Entry struct {
	id    ID
	state State

	// correlationID has no role in the hash table lookup (id already
	// does that); it exists so log lines about this connection stay
	// joinable across the probing/parsing/tracking lifecycle without
	// printing the raw 5-tuple on every line.
	correlationID uuid.UUID

	candidates []proto.Candidate
	chosen     *proto.Candidate

	stream *reassembly.Stream
	track  *track.State

	frontier  filter.NodeIDs
	pending   filter.Bitmap
	delivered filter.Bitmap

	establishedAt time.Time
	lastActivity  time.Time
}

func newEntry(id ID, program *codegen.Program, ringCapacity int, now time.Time) *Entry {
	return &Entry{
		id:            id,
		state:         Probing,
		correlationID: uuid.New(),
		candidates:    program.Registry.NewCandidates(),
		stream:        reassembly.NewStream(ringCapacity),
		track:         program.NewState(),
		frontier:      program.InitialFrontier(),
		establishedAt: now,
		lastActivity:  now,
	}
}
