package conn

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/proto/dnsp"
	"github.com/flowlens/flowlens/subscription"
)

func buildUDPBuffer(t *testing.T, srcIP, dstIP net.IP, srcPort, dstPort int, payload []byte) *packet.Buffer {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, DstMAC: net.HardwareAddr{6, 5, 4, 3, 2, 1}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: srcIP, DstIP: dstIP}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return packet.NewTestBuffer(buf.Bytes())
}

// TestTrackerDNSEndToEndDeliversEachSubscriptionExactlyOnce drives a
// real parser (package dnsp, backed by github.com/miekg/dns) through
// Tracker.Process across a query packet and its response, covering the
// probe -> parse -> session -> deliver pipeline: a bare-protocol
// subscription must fire exactly once as soon as DNS is identified,
// and a session-field subscription must fire exactly once once the
// query/response pair resolves, regardless of how many packets the
// connection sees.
func TestTrackerDNSEndToEndDeliversEachSubscriptionExactlyOnce(t *testing.T) {
	registry := proto.NewRegistry()
	registry.Enable(proto.KindDNS, dnsp.New)

	decls := []subscription.Declaration{
		{Name: "any-dns", Filter: "dns", Callback: "onDNS"},
		{Name: "example-query", Filter: "dns and dns.query = 'example.com.'", Callback: "onExampleQuery"},
	}
	prog, err := codegen.Build(decls, registry)
	require.NoError(t, err)

	tr := NewTracker(Config{CoreID: 0, ReassemblyRing: 4, WheelSlots: 16}, prog, time.Now())

	var delivered []string
	dispatch := func(subIdx int, callback string, view any) {
		delivered = append(delivered, callback)
	}

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.Id = 42
	queryBytes, err := query.Pack()
	require.NoError(t, err)

	reply := new(dns.Msg)
	reply.SetReply(query)
	rr, err := dns.NewRR("example.com. 300 IN A 93.184.216.34")
	require.NoError(t, err)
	reply.Answer = append(reply.Answer, rr)
	replyBytes, err := reply.Pack()
	require.NoError(t, err)

	client := net.IPv4(10, 0, 0, 1)
	server := net.IPv4(10, 0, 0, 2)

	queryBuf := buildUDPBuffer(t, client, server, 51000, 53, queryBytes)
	five, ok := FiveTupleOf(queryBuf)
	require.True(t, ok)
	tr.Process(queryBuf, five, dispatch)

	require.Equal(t, []string{"onDNS"}, delivered,
		"bare protocol subscription delivers as soon as the parser is chosen")
	require.Equal(t, 1, tr.Len(), "the query-match subscription is still pending a response")

	replyBuf := buildUDPBuffer(t, server, client, 53, 51000, replyBytes)
	five2, ok := FiveTupleOf(replyBuf)
	require.True(t, ok)
	tr.Process(replyBuf, five2, dispatch)

	require.Equal(t, []string{"onDNS", "onExampleQuery"}, delivered,
		"onDNS does not re-fire on the second packet; onExampleQuery fires once the transaction resolves")
	require.Equal(t, 0, tr.Len(), "every subscription resolved, entry removed")
}
