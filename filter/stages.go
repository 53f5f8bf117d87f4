package filter

import (
	"strconv"

	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/proto"
)

// PacketView exposes the packet-layer fields predicates can test,
// without requiring callers to depend on package packet directly.
type PacketView struct {
	HasIPv4    bool
	HasIPv6    bool
	HasTCP     bool
	HasUDP     bool
	TCPPort    uint16
	UDPPort    uint16
	TCPFlagSYN bool
}

// ViewOf extracts a PacketView from a buffer's parsed headers.
func ViewOf(buf *packet.Buffer) PacketView {
	var v PacketView
	if _, err := buf.IPv4(); err == nil {
		v.HasIPv4 = true
	} else if _, err := buf.IPv6(); err == nil {
		v.HasIPv6 = true
	}
	if tcp, err := buf.TCP(); err == nil {
		v.HasTCP = true
		v.TCPPort = uint16(tcp.DstPort)
		v.TCPFlagSYN = tcp.SYN
	} else if udp, err := buf.UDP(); err == nil {
		v.HasUDP = true
		v.UDPPort = uint16(udp.DstPort)
	}
	return v
}

// PacketFilter evaluates the packet-layer sub-trie. This is the
// `packet_filter(pkt) -> FilterResult` callable codegen emits.
func PacketFilter(t *PTree, view PacketView) FilterResult {
	frontier := t.Root()
	return t.eval(frontier, LayerPacket, func(p Predicate) bool {
		return matchPacket(p, view)
	})
}

func matchPacket(p Predicate, v PacketView) bool {
	switch p.Field {
	case "ipv4":
		return v.HasIPv4
	case "ipv6":
		return v.HasIPv6
	case "tcp":
		return v.HasTCP
	case "udp":
		return v.HasUDP
	case "tcp.port":
		return v.HasTCP && compareUint(p.Op, uint64(v.TCPPort), p.Value)
	case "udp.port":
		return v.HasUDP && compareUint(p.Op, uint64(v.UDPPort), p.Value)
	default:
		return false
	}
}

func compareUint(op Op, got uint64, want string) bool {
	n, err := strconv.ParseUint(want, 10, 64)
	if err != nil {
		return false
	}
	switch op {
	case OpEq, OpPresent:
		return got == n
	case OpNeq:
		return got != n
	case OpLt:
		return got < n
	case OpLte:
		return got <= n
	case OpGt:
		return got > n
	case OpGte:
		return got >= n
	default:
		return false
	}
}

// ProtoFilter evaluates the protocol-identified sub-trie once a
// connection's L7 protocol kind has been established. This is the
// `proto_filter(nonterm_nodes, conn) -> FilterResult` callable.
func ProtoFilter(t *PTree, frontier NodeIDs, kind proto.Kind) FilterResult {
	return t.eval(frontier, LayerProtocol, func(p Predicate) bool {
		return p.Field == kind.String()
	})
}

// SessionFilter evaluates the session-field sub-trie against a parsed
// session. This is the `session_filter(session, nonterm_nodes) ->
// FilterResult` callable.
func SessionFilter(t *PTree, frontier NodeIDs, session *proto.Session) FilterResult {
	return t.eval(frontier, LayerSession, func(p Predicate) bool {
		return matchSession(p, session)
	})
}

func matchSession(p Predicate, s *proto.Session) bool {
	if s == nil {
		return false
	}
	switch p.Field {
	case "http.method":
		return s.HTTP != nil && compareString(p, s.HTTP.Method)
	case "http.status":
		return s.HTTP != nil && compareUint(p.Op, uint64(s.HTTP.StatusCode), p.Value)
	case "http.uri":
		return s.HTTP != nil && compareString(p, s.HTTP.URI)
	case "tls.sni":
		return s.TLS != nil && compareString(p, s.TLS.SNI)
	case "dns.query":
		return s.DNS != nil && compareString(p, s.DNS.Query)
	default:
		return false
	}
}

func compareString(p Predicate, got string) bool {
	switch p.Op {
	case OpEq:
		return got == p.Value
	case OpNeq:
		return got != p.Value
	case OpRegex:
		return p.re != nil && p.re.MatchString(got)
	default:
		return false
	}
}

// TerminationFilter resolves whichever subscriptions are still
// reachable from frontier when a connection is about to be removed.
// There is no later packet to test a predicate against at this point,
// so this is pure delivery dispatch rather than a new matching pass:
// every subscription whose pattern frontier hadn't reached a terminal
// node yet is flushed now, using each frontier node's precomputed
// descendant set.
func TerminationFilter(t *PTree, frontier NodeIDs) Bitmap {
	var matched Bitmap
	for i := 0; i < frontier.Len(); i++ {
		matched.Union(t.nodes[frontier.At(i)].descendant)
	}
	return matched
}
