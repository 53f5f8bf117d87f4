package packet

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// layerCache memoizes the headers already decoded for this buffer so a
// second accessor call (e.g. the packet filter and then the connection
// tracker both asking for TCP()) does not redecode.
type layerCache struct {
	eth    *layers.Ethernet
	ethErr error

	ip4    *layers.IPv4
	ip4Err error

	ip6    *layers.IPv6
	ip6Err error

	tcp    *layers.TCP
	tcpErr error

	udp    *layers.UDP
	udpErr error
}

var feedback = gopacket.NilDecodeFeedback

// Ethernet decodes the Ethernet header, if not already cached.
func (b *Buffer) Ethernet() (*layers.Ethernet, error) {
	if b.layers.eth != nil || b.layers.ethErr != nil {
		return b.layers.eth, b.layers.ethErr
	}
	eth := &layers.Ethernet{}
	if err := eth.DecodeFromBytes(b.Bytes(), feedback); err != nil {
		b.layers.ethErr = errors.Wrapf(ErrOutOfRange, "ethernet: %v", err)
		return nil, b.layers.ethErr
	}
	b.layers.eth = eth
	return eth, nil
}

// IPv4 decodes the IPv4 header following the Ethernet header, if not
// already cached.
func (b *Buffer) IPv4() (*layers.IPv4, error) {
	if b.layers.ip4 != nil || b.layers.ip4Err != nil {
		return b.layers.ip4, b.layers.ip4Err
	}
	eth, err := b.Ethernet()
	if err != nil {
		b.layers.ip4Err = err
		return nil, err
	}
	if eth.EthernetType != layers.EthernetTypeIPv4 {
		b.layers.ip4Err = errors.New("packet: not an IPv4 frame")
		return nil, b.layers.ip4Err
	}
	ip4 := &layers.IPv4{}
	if err := ip4.DecodeFromBytes(eth.LayerPayload(), feedback); err != nil {
		b.layers.ip4Err = errors.Wrapf(ErrOutOfRange, "ipv4: %v", err)
		return nil, b.layers.ip4Err
	}
	b.layers.ip4 = ip4
	return ip4, nil
}

// IPv6 decodes the IPv6 header following the Ethernet header, if not
// already cached.
func (b *Buffer) IPv6() (*layers.IPv6, error) {
	if b.layers.ip6 != nil || b.layers.ip6Err != nil {
		return b.layers.ip6, b.layers.ip6Err
	}
	eth, err := b.Ethernet()
	if err != nil {
		b.layers.ip6Err = err
		return nil, err
	}
	if eth.EthernetType != layers.EthernetTypeIPv6 {
		b.layers.ip6Err = errors.New("packet: not an IPv6 frame")
		return nil, b.layers.ip6Err
	}
	ip6 := &layers.IPv6{}
	if err := ip6.DecodeFromBytes(eth.LayerPayload(), feedback); err != nil {
		b.layers.ip6Err = errors.Wrapf(ErrOutOfRange, "ipv6: %v", err)
		return nil, b.layers.ip6Err
	}
	b.layers.ip6 = ip6
	return ip6, nil
}

// transportPayload returns the byte slice and protocol following the IP
// header, whichever IP version is present.
func (b *Buffer) transportPayload() ([]byte, layers.IPProtocol, error) {
	if ip4, err := b.IPv4(); err == nil {
		return ip4.LayerPayload(), ip4.Protocol, nil
	}
	if ip6, err := b.IPv6(); err == nil {
		return ip6.LayerPayload(), ip6.NextHeader, nil
	}
	return nil, 0, errors.New("packet: no IP header present")
}

// TCP decodes the TCP header following the IP header, if not already
// cached.
func (b *Buffer) TCP() (*layers.TCP, error) {
	if b.layers.tcp != nil || b.layers.tcpErr != nil {
		return b.layers.tcp, b.layers.tcpErr
	}
	payload, proto, err := b.transportPayload()
	if err != nil {
		b.layers.tcpErr = err
		return nil, err
	}
	if proto != layers.IPProtocolTCP {
		b.layers.tcpErr = errors.New("packet: not a TCP segment")
		return nil, b.layers.tcpErr
	}
	tcp := &layers.TCP{}
	if err := tcp.DecodeFromBytes(payload, feedback); err != nil {
		b.layers.tcpErr = errors.Wrapf(ErrOutOfRange, "tcp: %v", err)
		return nil, b.layers.tcpErr
	}
	b.layers.tcp = tcp
	return tcp, nil
}

// UDP decodes the UDP header following the IP header, if not already
// cached.
func (b *Buffer) UDP() (*layers.UDP, error) {
	if b.layers.udp != nil || b.layers.udpErr != nil {
		return b.layers.udp, b.layers.udpErr
	}
	payload, proto, err := b.transportPayload()
	if err != nil {
		b.layers.udpErr = err
		return nil, err
	}
	if proto != layers.IPProtocolUDP {
		b.layers.udpErr = errors.New("packet: not a UDP datagram")
		return nil, b.layers.udpErr
	}
	udp := &layers.UDP{}
	if err := udp.DecodeFromBytes(payload, feedback); err != nil {
		b.layers.udpErr = errors.Wrapf(ErrOutOfRange, "udp: %v", err)
		return nil, b.layers.udpErr
	}
	b.layers.udp = udp
	return udp, nil
}
