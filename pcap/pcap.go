// Package pcap adapts github.com/google/gopacket/pcap live capture to
// the worker.Source interface, behind a capturePackets/pcapWrapper
// seam so tests can inject a replay source instead of opening a real
// NIC handle.
package pcap

import (
	"context"
	"net"

	"github.com/google/gopacket"
	_ "github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/printer"
)

const defaultSnapLen = 262144 // tcpdump's default

type pcapWrapper interface {
	capturePackets(done <-chan struct{}, interfaceName, bpfFilter string) (<-chan gopacket.Packet, error)
	getInterfaceAddrs(interfaceName string) ([]net.IP, error)
}

type pcapImpl struct{}

func (p *pcapImpl) capturePackets(done <-chan struct{}, interfaceName, bpfFilter string) (<-chan gopacket.Packet, error) {
	handle, err := pcap.OpenLive(interfaceName, defaultSnapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrapf(err, "pcap: failed to open %s", interfaceName)
	}
	if bpfFilter != "" {
		if err := handle.SetBPFFilter(bpfFilter); err != nil {
			handle.Close()
			return nil, errors.Wrap(err, "pcap: failed to set BPF filter")
		}
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	pktChan := packetSource.Packets()

	wrapped := make(chan gopacket.Packet, 64)
	go func() {
		defer func() {
			close(wrapped)
			handle.Close()
		}()
		for {
			select {
			case <-done:
				return
			case pkt, ok := <-pktChan:
				if !ok {
					return
				}
				wrapped <- pkt
			}
		}
	}()
	return wrapped, nil
}

func (p *pcapImpl) getInterfaceAddrs(interfaceName string) ([]net.IP, error) {
	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return nil, errors.Wrapf(err, "pcap: no interface named %s", interfaceName)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, errors.Wrapf(err, "pcap: failed to get addresses on %s", iface.Name)
	}
	var ips []net.IP
	for _, addr := range addrs {
		switch a := addr.(type) {
		case *net.IPNet:
			ips = append(ips, a.IP)
		default:
			printer.Warningf("pcap: ignoring address of unknown type on %s: %v\n", iface.Name, addr)
		}
	}
	return ips, nil
}

// LiveSource implements worker.Source over one NIC queue, copying each
// captured frame into a pool-backed packet.Buffer.
type LiveSource struct {
	iface  string
	filter string
	wrap   pcapWrapper
	pool   *packet.Pool

	pkts chan gopacket.Packet
	done chan struct{}
}

// NewLiveSource opens interfaceName with an optional BPF pre-filter.
// The RSS/per-queue binding this repository's external interface
// assumes is handled by the caller opening one LiveSource per worker
// core against the same interface; the kernel's SO_REUSEPORT-style
// queue steering (or the NIC's RSS hashing for AF_PACKET/DPDK capture)
// keeps a given 5-tuple on one queue.
func NewLiveSource(interfaceName, bpfFilter string, pool *packet.Pool) (*LiveSource, error) {
	return newLiveSource(interfaceName, bpfFilter, pool, &pcapImpl{})
}

func newLiveSource(interfaceName, bpfFilter string, pool *packet.Pool, wrap pcapWrapper) (*LiveSource, error) {
	done := make(chan struct{})
	pkts, err := wrap.capturePackets(done, interfaceName, bpfFilter)
	if err != nil {
		return nil, err
	}
	return &LiveSource{iface: interfaceName, filter: bpfFilter, wrap: wrap, pool: pool, pkts: pkts, done: done}, nil
}

// Next implements worker.Source.
func (s *LiveSource) Next(ctx context.Context) (*packet.Buffer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pkt, ok := <-s.pkts:
		if !ok {
			return nil, nil
		}
		return s.toBuffer(pkt)
	}
}

func (s *LiveSource) toBuffer(pkt gopacket.Packet) (*packet.Buffer, error) {
	data := pkt.Data()
	buf, err := s.pool.Get(len(data))
	if err != nil {
		return nil, err
	}
	copy(buf.Bytes(), data)
	if md := pkt.Metadata(); md != nil {
		buf.SetCaptureTime(md.Timestamp)
	}
	return buf, nil
}

// Close stops the underlying capture.
func (s *LiveSource) Close() {
	close(s.done)
}

// InterfaceAddrs returns the host's addresses on the given interface.
func InterfaceAddrs(interfaceName string) ([]net.IP, error) {
	return (&pcapImpl{}).getInterfaceAddrs(interfaceName)
}
