// Package track holds the per-connection tracked-state struct the
// initialization-time builder in package codegen produces a factory
// for.
//
// Go has no macro-time struct union, so the "compile-time generated"
// struct spec.md describes is realized here as one concrete type
// covering the union of every datatype this repository ships support
// for (raw frames, TCP connection metadata, TLS handshake, HTTP
// transaction, DNS transaction, QUIC packet) plus an embedded
// match-data bitset, rather than as a source emitter invoked mid-build.
package track

import (
	"time"

	"github.com/flowlens/flowlens/filter"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/proto"
)

// datatype mirrors subscription.Datatype without importing package
// subscription, which itself depends on this package for validation.
type datatype string

const (
	datatypeRawFrames    datatype = "raw_frames"
	datatypeTCPConn      datatype = "tcp_conn"
	datatypeTLSHandshake datatype = "tls_handshake"
	datatypeHTTPTxn      datatype = "http_transaction"
	datatypeDNSTxn       datatype = "dns_transaction"
	datatypeQUICPacket   datatype = "quic_packet"
)

// KnownDatatype reports whether name is a datatype this build's
// tracked-state struct has a field for.
func KnownDatatype(name string) bool {
	switch datatype(name) {
	case datatypeRawFrames, datatypeTCPConn, datatypeTLSHandshake,
		datatypeHTTPTxn, datatypeDNSTxn, datatypeQUICPacket:
		return true
	default:
		return false
	}
}

// FiveTuple is the normalized connection key.
type FiveTuple struct {
	SrcIP, DstIP     [16]byte
	SrcPort, DstPort uint16
	Proto            uint8
}

// TCPConnInfo is the DatatypeTCPConn view: connection-level metadata
// independent of any parsed session.
type TCPConnInfo struct {
	FiveTuple  FiveTuple
	OpenedAt   time.Time
	ClosedAt   time.Time
	BytesOrig  uint64
	BytesResp  uint64
}

// State is the single concrete struct unioning every datatype a
// compiled subscription set may request for one connection. Multiple
// subscriptions asking for the same datatype share this one copy;
// wanted gates which fields on_packet/on_session actually populate so
// an application that only wants raw_frames pays nothing to also
// accumulate an HTTP transaction it never asked for.
type State struct {
	five    FiveTuple
	wanted  map[datatype]bool
	pending filter.Bitmap // subscriptions still without a terminal match

	frames []*packet.Buffer

	conn TCPConnInfo
	tls  *proto.TLSHandshake
	http []*proto.HTTPTransaction
	dns  []*proto.DNSTransaction
	quic *proto.QUICPacket
}

// NewState builds the tracked state for one connection: called once
// per new connection entry, never on a hot per-packet path.
func NewState(wanted []string) *State {
	w := make(map[datatype]bool, len(wanted))
	for _, name := range wanted {
		w[datatype(name)] = true
	}
	return &State{wanted: w}
}

// OnFirstPacket initializes the struct for a newly created connection
// entry.
func (s *State) OnFirstPacket(five FiveTuple, pending filter.Bitmap) {
	s.five = five
	s.pending = pending
	s.conn.FiveTuple = five
	s.conn.OpenedAt = time.Now()
}

// OnPacket updates the fields of every datatype in the wanted set
// fixed at NewState. buf is cloned (refcount incremented) before being
// retained, matching the reference-counted handle design note.
func (s *State) OnPacket(buf *packet.Buffer, toOriginator bool) {
	if s.wanted[datatypeRawFrames] {
		s.frames = append(s.frames, buf.Clone())
	}
	if s.wanted[datatypeTCPConn] {
		if toOriginator {
			s.conn.BytesResp += uint64(buf.Len())
		} else {
			s.conn.BytesOrig += uint64(buf.Len())
		}
	}
}

// OnSession stashes or finalizes a parsed session, returning whether
// the connection should keep tracking (true) or can transition toward
// Remove because every subscription interested in this datatype has
// now been satisfied.
func (s *State) OnSession(session *proto.Session) (keepTracking bool) {
	switch session.Kind {
	case proto.SessionTLS:
		if s.wanted[datatypeTLSHandshake] {
			s.tls = session.TLS
		}
	case proto.SessionHTTP:
		if s.wanted[datatypeHTTPTxn] {
			s.http = append(s.http, session.HTTP)
		}
		return true // pipelining: more transactions may follow
	case proto.SessionDNS:
		if s.wanted[datatypeDNSTxn] {
			s.dns = append(s.dns, session.DNS)
		}
		return true // one UDP 5-tuple may carry more query/response pairs
	case proto.SessionQUIC:
		if s.wanted[datatypeQUICPacket] {
			s.quic = session.QUIC
		}
	}
	return false
}

// OnTerminate iterates terminal-match bits and invokes each
// subscription's callback with the requested datatype view. dispatch
// is supplied by the caller (package conn) so this package stays free
// of a dependency on the callback registry's concrete type.
//
// A connection's subscriptions don't all reach a terminal node at the
// same time — one pattern may terminate at the protocol layer while
// another is still waiting on a session or on connection end — so this
// can run more than once per connection. It only delivers; it never
// releases retained state, since a later call still needs it.
func (s *State) OnTerminate(terminal filter.Bitmap, dispatch func(subIdx int, view any)) {
	view := s.viewFor()
	for _, idx := range terminal.Indices() {
		dispatch(idx, view)
	}
}

// Close marks the connection finished and releases retained frame
// buffers. Called once, when the tracker removes the entry for good.
func (s *State) Close() {
	s.conn.ClosedAt = time.Now()
	s.release()
}

// viewFor builds the composite view handed to a callback. Every
// requested datatype is additive: a subscription wanting both
// raw_frames and tls_handshake receives both populated on the same
// view, per the union semantics in spec.md's first Open Question.
func (s *State) viewFor() View {
	return View{
		Conn:   s.conn,
		Frames: s.frames,
		TLS:    s.tls,
		HTTP:   s.http,
		DNS:    s.dns,
		QUIC:   s.quic,
	}
}

// View is the borrowed, read-only projection of State a callback
// receives. It is not safe to retain past the callback's return; a
// callback that needs the raw frames beyond that must Clone() them.
type View struct {
	Conn   TCPConnInfo
	Frames []*packet.Buffer
	TLS    *proto.TLSHandshake
	HTTP   []*proto.HTTPTransaction
	DNS    []*proto.DNSTransaction
	QUIC   *proto.QUICPacket
}

func (s *State) release() {
	for _, f := range s.frames {
		f.Drop()
	}
	s.frames = nil
}
