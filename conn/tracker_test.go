package conn

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/subscription"
)

func buildTCPBuffer(t *testing.T, srcPort, dstPort int, seq uint32, syn bool, payload []byte) *packet.Buffer {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, DstMAC: net.HardwareAddr{6, 5, 4, 3, 2, 1}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), Seq: seq, SYN: syn, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return packet.NewTestBuffer(buf.Bytes())
}

func TestTrackerMatchesTCPPortAndDelivers(t *testing.T) {
	decls := []subscription.Declaration{
		{Name: "https", Filter: "tcp.port = 443", Callback: "onHTTPS"},
	}
	prog, err := codegen.Build(decls, proto.NewRegistry())
	require.NoError(t, err)

	tr := NewTracker(Config{CoreID: 0, ReassemblyRing: 4, WheelSlots: 16}, prog, time.Now())

	var delivered []string
	dispatch := func(subIdx int, callback string, view any) {
		delivered = append(delivered, callback)
	}

	buf := buildTCPBuffer(t, 51000, 443, 0, true, nil)
	five, ok := FiveTupleOf(buf)
	require.True(t, ok)

	tr.Process(buf, five, dispatch)
	require.Equal(t, []string{"onHTTPS"}, delivered)
	require.Equal(t, 0, tr.Len(), "entry removed once its only subscription delivered")
}

func TestTrackerNonMatchingPortDeliversNothing(t *testing.T) {
	decls := []subscription.Declaration{
		{Name: "https", Filter: "tcp.port = 443", Callback: "onHTTPS"},
	}
	prog, err := codegen.Build(decls, proto.NewRegistry())
	require.NoError(t, err)

	tr := NewTracker(Config{CoreID: 0, ReassemblyRing: 4, WheelSlots: 16}, prog, time.Now())

	var delivered []string
	dispatch := func(subIdx int, callback string, view any) { delivered = append(delivered, callback) }

	buf := buildTCPBuffer(t, 51000, 80, 0, true, nil)
	five, ok := FiveTupleOf(buf)
	require.True(t, ok)

	tr.Process(buf, five, dispatch)
	require.Empty(t, delivered)
}
