package pcap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/packet"
)

// fakeWrapper replays a fixed set of packets instead of opening a real
// NIC handle, using the same pcapWrapper seam production code opens a
// live capture through.
type fakeWrapper struct {
	pkts []gopacket.Packet
}

func (f *fakeWrapper) capturePackets(done <-chan struct{}, interfaceName, bpfFilter string) (<-chan gopacket.Packet, error) {
	ch := make(chan gopacket.Packet, len(f.pkts))
	for _, p := range f.pkts {
		ch <- p
	}
	close(ch)
	return ch, nil
}

func (f *fakeWrapper) getInterfaceAddrs(interfaceName string) ([]net.IP, error) {
	return []net.IP{net.IPv4(10, 0, 0, 1)}, nil
}

func buildTestPacket(t *testing.T) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, DstMAC: net.HardwareAddr{6, 5, 4, 3, 2, 1}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}, eth, ip, udp))
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestLiveSourceReplaysIntoPoolBackedBuffers(t *testing.T) {
	pool := packet.NewPool(4, 2048)
	wrap := &fakeWrapper{pkts: []gopacket.Packet{buildTestPacket(t)}}

	src, err := newLiveSource("eth0", "", pool, wrap)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf, err := src.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.Equal(t, buildTestPacket(t).Data(), buf.Bytes())

	buf, err = src.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, buf)
}

func TestFakeWrapperReturnsInterfaceAddrs(t *testing.T) {
	wrap := &fakeWrapper{}
	addrs, err := wrap.getInterfaceAddrs("eth0")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
}
