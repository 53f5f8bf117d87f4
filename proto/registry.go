package proto

import "github.com/pkg/errors"

// Kind enumerates the protocols this repository ships parsers for. The
// registry is a fixed-size array indexed by Kind rather than an
// open-ended slice, mirroring the bundled-protocol tagged union: the
// set of parsers is fixed at subscription-compile time, not extensible
// at runtime.
type Kind int

const (
	KindHTTP Kind = iota
	KindTLS
	KindDNS
	KindQUIC
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindTLS:
		return "tls"
	case KindDNS:
		return "dns"
	case KindQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// ParseKind parses a filter grammar protocol keyword into a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "http":
		return KindHTTP, true
	case "tls":
		return KindTLS, true
	case "dns":
		return KindDNS, true
	case "quic":
		return KindQUIC, true
	default:
		return 0, false
	}
}

// Registry holds at most one Factory per Kind, for the kinds its
// caller has enabled. The set is not derived from the subscriptions:
// the run command enables all four kinds.
type Registry struct {
	factories [numKinds]Factory
}

// NewRegistry builds an empty registry; Enable populates its slots.
func NewRegistry() *Registry {
	return &Registry{}
}

// Enable registers the factory for kind, so NewCandidates will include
// it when probing a connection.
func (r *Registry) Enable(kind Kind, f Factory) {
	r.factories[kind] = f
}

// Enabled reports whether kind has a registered factory.
func (r *Registry) Enabled(kind Kind) bool {
	return r.factories[kind] != nil
}

// NewCandidates instantiates one fresh Parser per enabled Kind, for a
// single connection's probing phase.
func (r *Registry) NewCandidates() []Candidate {
	candidates := make([]Candidate, 0, numKinds)
	for k, f := range r.factories {
		if f == nil {
			continue
		}
		candidates = append(candidates, Candidate{Kind: Kind(k), Parser: f()})
	}
	return candidates
}

// Candidate pairs a live Parser instance with the Kind it was built
// for, so the probing loop can report which protocol matched.
type Candidate struct {
	Kind   Kind
	Parser Parser
}

// ErrAllRejected reports that every candidate parser has rejected a
// connection. Package conn does not return it: its tracker moves such a
// connection to the Tracking state instead.
var ErrAllRejected = errors.New("proto: all candidate parsers rejected")
