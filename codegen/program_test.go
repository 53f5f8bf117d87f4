package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/filter"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/subscription"
)

func TestBuildCompilesDeclarationsIntoOneTree(t *testing.T) {
	decls := []subscription.Declaration{
		{Name: "sni-match", Filter: "tls.sni ~ '.*\\.example\\.com$'", Datatypes: []subscription.Datatype{subscription.DatatypeTLSHandshake}, Callback: "onSNI"},
		{Name: "https-only", Filter: "tcp.port = 443", Datatypes: []subscription.Datatype{subscription.DatatypeTCPConn}, Callback: "onHTTPS"},
	}
	prog, err := Build(decls, proto.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, prog.Tree)
	require.ElementsMatch(t, []string{"tls_handshake", "tcp_conn"}, prog.AllDatatypes)

	require.True(t, prog.CollapsedOffload(filter.PacketView{HasTCP: true}))
	// The tls.sni pattern names no L3/L4 protocol, so UDP must pass too.
	require.True(t, prog.CollapsedOffload(filter.PacketView{HasUDP: true}))

	tcpOnly, err := Build(decls[1:], proto.NewRegistry())
	require.NoError(t, err)
	require.False(t, tcpOnly.CollapsedOffload(filter.PacketView{HasUDP: true}))
}

func TestBuildRejectsMalformedFilter(t *testing.T) {
	decls := []subscription.Declaration{
		{Name: "bad", Filter: "tcp.port ===", Callback: "onX"},
	}
	_, err := Build(decls, proto.NewRegistry())
	require.Error(t, err)
}
