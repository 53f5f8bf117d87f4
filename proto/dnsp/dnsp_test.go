package dnsp

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/proto"
)

func buildQuery(id uint16, name string) []byte {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = id
	out, _ := m.Pack()
	return out
}

func buildResponse(id uint16, name, ip string) []byte {
	m := new(dns.Msg)
	m.Response = true
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = id
	rr, _ := dns.NewRR(dns.Fqdn(name) + " 300 IN A " + ip)
	m.Answer = append(m.Answer, rr)
	out, _ := m.Pack()
	return out
}

func TestProbeDistinguishesQueryAndResponse(t *testing.T) {
	p := New()
	require.Equal(t, proto.Match, p.Probe(proto.ToResponder, buildQuery(1, "example.com")))
	require.Equal(t, proto.Reject, p.Probe(proto.ToResponder, buildResponse(1, "example.com", "1.2.3.4")))
}

func TestParseMatchesQueryAndResponseByTransactionID(t *testing.T) {
	p := New()

	outcome, session, err := p.Parse(proto.ToResponder, buildQuery(42, "example.com"))
	require.NoError(t, err)
	require.Equal(t, proto.InProgress, outcome)
	require.Nil(t, session)

	outcome, session, err = p.Parse(proto.ToOriginator, buildResponse(42, "example.com", "93.184.216.34"))
	require.NoError(t, err)
	require.Equal(t, proto.SessionReady, outcome)
	require.NotNil(t, session)
	require.Equal(t, uint16(42), session.DNS.TxnID)
	require.Equal(t, "example.com.", session.DNS.Query)
	require.Len(t, session.DNS.Answers, 1)
}
