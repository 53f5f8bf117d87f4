package httpp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/proto"
)

func TestProbeRequestLine(t *testing.T) {
	p := New()
	require.Equal(t, proto.Match, p.Probe(proto.ToResponder, []byte("GET /x HTTP/1.1\r\n")))
	require.Equal(t, proto.Reject, p.Probe(proto.ToResponder, []byte("not a verb")))
	require.Equal(t, proto.Inconclusive, p.Probe(proto.ToResponder, []byte("GE")))
}

func TestProbeStatusLine(t *testing.T) {
	p := New()
	require.Equal(t, proto.Match, p.Probe(proto.ToOriginator, []byte("HTTP/1.1 200 OK\r\n")))
	require.Equal(t, proto.Reject, p.Probe(proto.ToOriginator, []byte("garbage\r\n")))
}

func TestParseRequestResponseTransaction(t *testing.T) {
	p := New()

	req := "GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n"
	outcome, session, err := p.Parse(proto.ToResponder, []byte(req))
	require.NoError(t, err)
	require.Equal(t, proto.InProgress, outcome)
	require.Nil(t, session)

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	outcome, session, err = p.Parse(proto.ToOriginator, []byte(resp))
	require.NoError(t, err)
	require.Equal(t, proto.SessionReady, outcome)
	require.NotNil(t, session)
	require.Equal(t, proto.SessionHTTP, session.Kind)
	require.Equal(t, "GET", session.HTTP.Method)
	require.Equal(t, "/hello", session.HTTP.URI)
	require.Equal(t, 200, session.HTTP.StatusCode)
}
