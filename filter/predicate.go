package filter

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

// Layer is the protocol tier a predicate belongs to. Patterns are
// ordered by Layer so the trie naturally slices at stage boundaries:
// a predicate that mentions a protocol keyword implicitly requires
// the layers below it, so LayerPacket predicates always precede
// LayerProtocol ones within a pattern.
type Layer int

const (
	LayerPacket Layer = iota
	LayerProtocol
	LayerSession
	LayerTermination
	numLayers
)

func (l Layer) String() string {
	switch l {
	case LayerPacket:
		return "packet"
	case LayerProtocol:
		return "protocol"
	case LayerSession:
		return "session"
	case LayerTermination:
		return "termination"
	default:
		return "unknown"
	}
}

// Op is a predicate comparison operator.
type Op int

const (
	OpPresent Op = iota // bare protocol keyword, e.g. "tls"
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpRegex
)

// Predicate is one evaluable test at a single protocol layer. Field
// names follow the filter grammar's dotted keywords ("tcp.port",
// "tls.sni", "ipv4").
type Predicate struct {
	Layer Layer
	Field string
	Op    Op
	Value string

	// re is populated for OpRegex predicates. Matching reuses the
	// standard library regexp engine, the same way trace/filters.go
	// compiles its host/path matchers once and reuses them per packet;
	// a hand-rolled DFA engine would only pay for itself at a traffic
	// scale this repository does not target.
	re *regexp.Regexp
}

func newPredicate(layer Layer, field string, op Op, value string) (Predicate, error) {
	p := Predicate{Layer: layer, Field: field, Op: op, Value: value}
	if op == OpRegex {
		re, err := regexp.Compile(value)
		if err != nil {
			return Predicate{}, errors.Wrapf(err, "filter: invalid regex %q", value)
		}
		p.re = re
	}
	return p, nil
}

// key identifies a predicate for trie-edge deduplication: two
// patterns that test the same field the same way at the same layer
// share a trie edge (common-prefix sharing).
func (p Predicate) key() string {
	return fmt.Sprintf("%d|%s|%d|%s", p.Layer, p.Field, p.Op, p.Value)
}

func (p Predicate) negate() Predicate {
	n := p
	switch p.Op {
	case OpEq:
		n.Op = OpNeq
	case OpNeq:
		n.Op = OpEq
	case OpLt:
		n.Op = OpGte
	case OpLte:
		n.Op = OpGt
	case OpGt:
		n.Op = OpLte
	case OpGte:
		n.Op = OpLt
	}
	return n
}
