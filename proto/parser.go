// Package proto defines the ProbeParse contract every bundled L7
// parser implements, and the fixed-size registry the connection
// tracker probes against.
package proto

// ProbeResult is the outcome of inspecting a byte stream without
// committing to it.
type ProbeResult int

const (
	Match ProbeResult = iota
	Reject
	Inconclusive
)

func (r ProbeResult) String() string {
	switch r {
	case Match:
		return "Match"
	case Reject:
		return "Reject"
	case Inconclusive:
		return "Inconclusive"
	default:
		return "Unknown"
	}
}

// ParseOutcome is the result of feeding more bytes to a parser's
// internal state machine.
type ParseOutcome int

const (
	InProgress ParseOutcome = iota
	SessionReady
	Done
	ParseError
)

func (o ParseOutcome) String() string {
	switch o {
	case InProgress:
		return "InProgress"
	case SessionReady:
		return "SessionReady"
	case Done:
		return "Done"
	case ParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

// Session is a tagged sum over the L7 protocol units parsers may
// produce: an HTTP transaction, a TLS handshake, a DNS transaction, a
// QUIC packet summary. Exactly one of these fields is non-nil.
type Session struct {
	Kind SessionKind

	HTTP *HTTPTransaction
	TLS  *TLSHandshake
	DNS  *DNSTransaction
	QUIC *QUICPacket
}

type SessionKind int

const (
	SessionHTTP SessionKind = iota
	SessionTLS
	SessionDNS
	SessionQUIC
)

// Direction distinguishes the originator's bytes from the responder's,
// so a parser can correlate a request on one side with a response on
// the other.
type Direction int

const (
	ToResponder Direction = iota
	ToOriginator
)

// Parser is the ProbeParse contract every bundled protocol
// implementation satisfies. A Parser instance is stateful across Parse
// calls for the lifetime of one connection (both directions feed the
// same instance), but Probe is pure inspection and must not depend on
// state from prior Parse calls.
type Parser interface {
	// Name identifies the protocol for logging and filter grammar
	// keywords ("tls", "http", "dns", "quic").
	Name() string

	// Probe inspects data without committing to it. While a connection
	// is probing it is called with each packet's payload, in either
	// direction, until it returns Match or Reject; the number of packets
	// that may return Inconclusive is not limited.
	Probe(dir Direction, data []byte) ProbeResult

	// Parse accumulates data into the parser's internal state machine.
	// It may emit more than one session over the lifetime of a
	// connection (HTTP pipelining, repeated DNS transactions on one UDP
	// 5-tuple).
	Parse(dir Direction, data []byte) (ParseOutcome, *Session, error)
}

// Factory constructs a fresh Parser instance for one connection,
// so per-connection state machines never leak across
// connections sharing a core.
type Factory func() Parser
