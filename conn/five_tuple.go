package conn

import (
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/track"
)

// PacketFiveTuple is the per-packet view Tracker.Process needs:
// enough to build a track.FiveTuple, decide whether a SYN/any-UDP
// packet may open a new entry, and feed reassembly its sequence
// number.
type PacketFiveTuple struct {
	SrcIP, DstIP     [16]byte
	SrcPort, DstPort uint16
	Proto            uint8
	Seq              uint32
	SYN              bool
}

func (p PacketFiveTuple) toTrack() track.FiveTuple {
	return track.FiveTuple{
		SrcIP: p.SrcIP, DstIP: p.DstIP,
		SrcPort: p.SrcPort, DstPort: p.DstPort,
		Proto: p.Proto,
	}
}

// AcceptsNewConnection reports whether this packet may create a new
// connection entry: any TCP SYN, or any UDP datagram (UDP has no
// handshake to gate on).
func (p PacketFiveTuple) AcceptsNewConnection() bool {
	if p.Proto == protoTCP {
		return p.SYN
	}
	return p.Proto == protoUDP
}

const (
	protoTCP = 6
	protoUDP = 17
)

// FiveTupleOf extracts a PacketFiveTuple from a buffer's parsed
// headers, for callers (package worker) that only have a raw buffer.
func FiveTupleOf(buf *packet.Buffer) (PacketFiveTuple, bool) {
	var ft PacketFiveTuple

	if ip4, err := buf.IPv4(); err == nil {
		copy(ft.SrcIP[:4], ip4.SrcIP.To4())
		copy(ft.DstIP[:4], ip4.DstIP.To4())
		ft.Proto = uint8(ip4.Protocol)
	} else if ip6, err := buf.IPv6(); err == nil {
		copy(ft.SrcIP[:], ip6.SrcIP.To16())
		copy(ft.DstIP[:], ip6.DstIP.To16())
		ft.Proto = uint8(ip6.NextHeader)
	} else {
		return ft, false
	}

	if tcp, err := buf.TCP(); err == nil {
		ft.SrcPort = uint16(tcp.SrcPort)
		ft.DstPort = uint16(tcp.DstPort)
		ft.Seq = tcp.Seq
		ft.SYN = tcp.SYN
	} else if udp, err := buf.UDP(); err == nil {
		ft.SrcPort = uint16(udp.SrcPort)
		ft.DstPort = uint16(udp.DstPort)
	} else {
		return ft, false
	}

	return ft, true
}
