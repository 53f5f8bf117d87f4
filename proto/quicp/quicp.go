// Package quicp probes long-header QUIC packets far enough to recover
// the version and connection IDs, without touching anything encrypted
// under the QUIC-TLS handshake.
//
// Varint decoding reuses github.com/quic-go/quic-go/quicvarint, the
// same package the quic-go client/server stack itself uses, rather
// than reimplementing RFC 9000 section 16's variable-length integers.
package quicp

import (
	"bytes"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/flowlens/flowlens/proto"
)

// Name is the filter grammar keyword for this protocol.
const Name = "quic"

const (
	longHeaderBit  = 0x80
	packetTypeMask = 0x30
	initialType    = 0x00
)

type parser struct {
	done bool
}

// New is a proto.Factory for the QUIC parser.
func New() proto.Parser { return &parser{} }

func (p *parser) Name() string { return Name }

// Probe matches the first byte's long-header form bit; QUIC has no
// per-direction asymmetry worth checking at the probe stage.
func (p *parser) Probe(dir proto.Direction, data []byte) proto.ProbeResult {
	if len(data) < 5 {
		return proto.Inconclusive
	}
	if data[0]&longHeaderBit == 0 {
		return proto.Reject
	}
	return proto.Match
}

// Parse decodes the long header: version, the length-prefixed
// destination and source connection IDs, and for Initial packets the
// varint-encoded token length. It emits a session on the first packet
// seen and never needs bytes from the other direction.
func (p *parser) Parse(dir proto.Direction, data []byte) (proto.ParseOutcome, *proto.Session, error) {
	if p.done {
		return proto.Done, nil, nil
	}
	if len(data) < 7 {
		return proto.InProgress, nil, nil
	}

	firstByte := data[0]
	version := uint32(data[1])<<24 | uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])

	rest := data[5:]
	dcidLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < dcidLen+1 {
		return proto.InProgress, nil, nil
	}
	dcid := rest[:dcidLen]
	rest = rest[dcidLen:]

	scidLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < scidLen {
		return proto.InProgress, nil, nil
	}
	scid := rest[:scidLen]
	rest = rest[scidLen:]

	if (firstByte&packetTypeMask)>>4 == initialType {
		r := quicvarint.NewReader(bytes.NewReader(rest))
		if _, err := quicvarint.Read(r); err != nil {
			return proto.InProgress, nil, nil
		}
	}

	p.done = true
	pkt := &proto.QUICPacket{
		Version: version,
		DCID:    append([]byte(nil), dcid...),
		SCID:    append([]byte(nil), scid...),
	}
	return proto.Done, &proto.Session{Kind: proto.SessionQUIC, QUIC: pkt}, nil
}
