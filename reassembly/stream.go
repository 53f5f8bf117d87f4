package reassembly

import "github.com/flowlens/flowlens/packet"

// Direction distinguishes the two halves of a TCP connection. The
// tracker assigns ClientToServer to whichever direction sent the first
// observed packet.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

// Stream owns both directions of one TCP connection.
type Stream struct {
	flows        [2]*Flow
	ringCapacity int
}

// NewStream creates a Stream with independent rings for each direction.
func NewStream(ringCapacity int) *Stream {
	return &Stream{
		flows:        [2]*Flow{NewFlow(ringCapacity), NewFlow(ringCapacity)},
		ringCapacity: ringCapacity,
	}
}

// Flow returns the per-direction reassembler.
func (s *Stream) Flow(dir Direction) *Flow {
	return s.flows[dir]
}

// Init establishes the starting sequence number for one direction.
func (s *Stream) Init(dir Direction, seq uint32) {
	s.flows[dir].Init(seq)
}

// Accept routes a segment to its direction's Flow.
func (s *Stream) Accept(dir Direction, seq uint32, data []byte, buf *packet.Buffer) []Segment {
	return s.flows[dir].Accept(seq, data, buf)
}

// CloseDirection flushes and closes one direction (FIN or RST
// observed), returning the segments that were held but can never be
// delivered.
func (s *Stream) CloseDirection(dir Direction) []Segment {
	return s.flows[dir].Close()
}

// Done reports whether both directions are closed.
func (s *Stream) Done() bool {
	return s.flows[ClientToServer].Closed() && s.flows[ServerToClient].Closed()
}

// Stuck reports whether a direction's reassembly cannot progress: its
// ring is at capacity and it still isn't delivering, which per the
// error handling design means the connection should transition to
// Remove.
func (s *Stream) Stuck() bool {
	for _, f := range s.flows {
		if f.Pending() >= f.ringCapacity && f.ringCapacity > 0 {
			return true
		}
	}
	return false
}
