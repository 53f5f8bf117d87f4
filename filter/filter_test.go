package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/proto"
)

func buildTree(t *testing.T, exprs map[int]string) *PTree {
	tree := NewPTree()
	for idx, src := range exprs {
		patterns, err := Parse(src)
		require.NoError(t, err)
		for _, p := range patterns {
			tree.Insert(p, idx, Action{SubscriptionIndex: idx, Callback: "cb"})
		}
	}
	return tree
}

func TestPacketFilterMatchesTCPPort(t *testing.T) {
	tree := buildTree(t, map[int]string{0: "tcp.port = 443"})

	res := PacketFilter(tree, PacketView{HasTCP: true, TCPPort: 443})
	require.True(t, res.TerminalMatches.Test(0))

	res = PacketFilter(tree, PacketView{HasTCP: true, TCPPort: 80})
	require.False(t, res.TerminalMatches.Test(0))
}

func TestFilterAdvancesThroughStages(t *testing.T) {
	tree := buildTree(t, map[int]string{0: "tls and tls.sni ~ '.*\\.example\\.com$'"})

	pktRes := PacketFilter(tree, PacketView{})
	require.True(t, pktRes.TerminalMatches.Empty())
	require.False(t, pktRes.NonterminalMatches.Empty())

	protoRes := ProtoFilter(tree, pktRes.NonterminalNodes, proto.KindTLS)
	require.True(t, protoRes.TerminalMatches.Empty())
	require.False(t, protoRes.NonterminalMatches.Empty())

	session := &proto.Session{Kind: proto.SessionTLS, TLS: &proto.TLSHandshake{SNI: "api.example.com"}}
	sessionRes := SessionFilter(tree, protoRes.NonterminalNodes, session)
	require.True(t, sessionRes.TerminalMatches.Test(0))
}

func TestSessionFilterRejectsNonMatchingSNI(t *testing.T) {
	tree := buildTree(t, map[int]string{0: "tls.sni = 'internal.corp'"})

	pktRes := PacketFilter(tree, PacketView{})
	protoRes := ProtoFilter(tree, pktRes.NonterminalNodes, proto.KindTLS)

	session := &proto.Session{Kind: proto.SessionTLS, TLS: &proto.TLSHandshake{SNI: "public.example.com"}}
	sessionRes := SessionFilter(tree, protoRes.NonterminalNodes, session)
	require.False(t, sessionRes.TerminalMatches.Test(0))
}

func TestOrExpandsToMultipleDisjuncts(t *testing.T) {
	patterns, err := Parse("tcp.port = 80 or tcp.port = 443")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
}

func TestConstantFoldingDropsAncestorRedundantKeyword(t *testing.T) {
	tree := buildTree(t, map[int]string{0: "ipv4 and ipv4"})
	// The second conjunct is implied by its ipv4 ancestor and is folded
	// out at insertion, so the root has exactly one ipv4 child, not a chain.
	require.Len(t, tree.nodes[rootID].children, 1)
	require.Empty(t, tree.nodes[tree.nodes[rootID].children[0]].children)
}
