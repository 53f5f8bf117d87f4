// Package codegen is the initialization-time builder spec.md's
// compile-time generator resolves to in Go: invoked once from cmd
// before the first worker starts, never re-entered on the datapath. It
// parses each subscription's filter string, builds the single
// predicate trie, and returns a Program holding that trie (the stage
// filters slice it by layer at evaluation time) and the datatype set
// its NewState builds tracked state from — the same "compile once, run
// many times" shape as a regex engine's Compile/Find split.
package codegen

import (
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/filter"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/subscription"
	"github.com/flowlens/flowlens/track"
)

// Program is the immutable artifact a worker core evaluates per
// packet: the four stage filters (as one shared PTree, since slicing
// happens at eval time by layer, not by building four separate trees)
// and the set of datatypes any subscription requested.
type Program struct {
	Tree         *filter.PTree
	Declarations []subscription.Declaration
	Registry     *proto.Registry
	AllDatatypes []string

	needsTCP, needsUDP, needsIPv4, needsIPv6 bool
}

// Build compiles decls into a Program. It is the only place filter
// parse errors surface; everything after Build runs error-free on the
// datapath by construction.
func Build(decls []subscription.Declaration, registry *proto.Registry) (*Program, error) {
	tree := filter.NewPTree()
	seen := map[string]bool{}
	var allDatatypes []string
	prog := &Program{Tree: tree, Declarations: decls, Registry: registry}

	for idx, d := range decls {
		patterns, err := filter.Parse(d.Filter)
		if err != nil {
			return nil, errors.Wrapf(err, "codegen: subscription %q", d.Name)
		}
		for _, p := range patterns {
			tree.Insert(p, idx, filter.Action{SubscriptionIndex: idx, Callback: d.Callback})
			prog.absorbOffloadHint(p)
		}
		for _, dt := range d.Datatypes {
			if !seen[string(dt)] {
				seen[string(dt)] = true
				allDatatypes = append(allDatatypes, string(dt))
			}
		}
	}

	prog.AllDatatypes = allDatatypes
	return prog, nil
}

// absorbOffloadHint folds one pattern's packet-layer predicates into
// the program's collapsed hardware-offload hint: the coarsest boolean
// approximation of "could this NIC-classifiable field ever matter to
// any subscription". A NIC that can only pre-filter by L3/L4 protocol
// gains nothing from tighter predicates like exact port numbers, so
// those are deliberately not folded in here.
func (p *Program) absorbOffloadHint(pattern []filter.Predicate) {
	hinted := false
	for _, pred := range pattern {
		if pred.Layer != filter.LayerPacket {
			break
		}
		switch pred.Field {
		case "tcp", "tcp.port":
			p.needsTCP, hinted = true, true
		case "udp", "udp.port":
			p.needsUDP, hinted = true, true
		case "ipv4":
			p.needsIPv4, hinted = true, true
		case "ipv6":
			p.needsIPv6, hinted = true, true
		}
	}
	if !hinted {
		// A pattern with no L3/L4 predicate can match any packet.
		p.needsTCP, p.needsUDP, p.needsIPv4, p.needsIPv6 = true, true, true, true
	}
}

// CollapsedOffload reports whether view is coarsely compatible with
// this program's subscriptions, for an optional NIC-side pre-filter.
// It never produces a false negative: a packet the real multi-stage
// filter could match always passes this check too, so hardware
// pre-filtering changes performance, never semantics.
func (p *Program) CollapsedOffload(view filter.PacketView) bool {
	if !p.needsTCP && !p.needsUDP && !p.needsIPv4 && !p.needsIPv6 {
		return true // no packet-layer predicates at all; offload can't help
	}
	if p.needsTCP && view.HasTCP {
		return true
	}
	if p.needsUDP && view.HasUDP {
		return true
	}
	if p.needsIPv4 && view.HasIPv4 {
		return true
	}
	if p.needsIPv6 && view.HasIPv6 {
		return true
	}
	return false
}

// NewState builds a track.State for the full union of datatypes this Program's subscriptions require, so every
// connection's tracked struct is built with the same field set
// regardless of which subscriptions end up matching it.
func (p *Program) NewState() *track.State {
	return track.NewState(p.AllDatatypes)
}

// InitialFrontier is the trie position every new connection's packet
// filter evaluation starts from.
func (p *Program) InitialFrontier() filter.NodeIDs {
	return p.Tree.Root()
}
