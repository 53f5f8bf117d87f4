package packet

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func buildTCPFrame(t *testing.T, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{
		SrcPort: 443,
		DstPort: 51000,
		Seq:     1000,
		Window:  65535,
		ACK:     true,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestBufferLazyHeaderDecode(t *testing.T) {
	frame := buildTCPFrame(t, []byte("hello"))
	b := NewTestBuffer(frame)

	eth, err := b.Ethernet()
	require.NoError(t, err)
	require.Equal(t, layers.EthernetTypeIPv4, eth.EthernetType)

	ip4, err := b.IPv4()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", ip4.SrcIP.String())

	tcp, err := b.TCP()
	require.NoError(t, err)
	require.EqualValues(t, 443, tcp.SrcPort)
	require.True(t, tcp.ACK)

	_, err = b.UDP()
	require.Error(t, err)
}

func TestBufferRefcounting(t *testing.T) {
	pool := NewPool(1, 64)
	b, err := pool.Get(10)
	require.NoError(t, err)
	require.EqualValues(t, 1, pool.Outstanding())

	clone := b.Clone()
	require.Same(t, b, clone)
	require.EqualValues(t, 2, b.RefCount())

	b.Drop()
	require.EqualValues(t, 1, pool.Outstanding())

	clone.Drop()
	require.EqualValues(t, 0, pool.Outstanding())

	// Pool was exhausted until the slab came back.
	_, err = pool.Get(10)
	require.NoError(t, err)
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(1, 64)
	_, err := pool.Get(10)
	require.NoError(t, err)

	_, err = pool.Get(10)
	require.ErrorIs(t, err, ErrPoolExhausted)
	require.EqualValues(t, 1, pool.Exhausted())
}
