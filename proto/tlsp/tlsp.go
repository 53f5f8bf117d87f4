// Package tlsp passively probes and parses the TLS record and
// handshake layers far enough to recover the ClientHello SNI and the
// ServerHello's legacy version field, without ever participating in or
// completing a handshake. The negotiated cipher suite is not extracted.
//
// There is no general-purpose Go TLS library suited to this: crypto/tls
// and every third-party TLS stack exist to negotiate a connection, not
// to classify someone else's bytes on the wire. The
// record and handshake parsing here is hand-rolled against RFC 8446
// section 4, justified in the design ledger.
package tlsp

import (
	"encoding/binary"

	"github.com/flowlens/flowlens/proto"
)

// Name is the filter grammar keyword for this protocol.
const Name = "tls"

const (
	recordHandshake  = 0x16
	handshakeClient  = 0x01
	handshakeServer  = 0x02
	extensionSNI     = 0x0000
	sniHostNameEntry = 0x00
)

type parser struct {
	state proto.TLSHandshake
}

// New is a proto.Factory for the TLS parser.
func New() proto.Parser { return &parser{} }

func (p *parser) Name() string { return Name }

// Probe needs the first three bytes of a record (content type and
// version) and matches only a handshake-type TLS record whose major
// version is 3.
func (p *parser) Probe(dir proto.Direction, data []byte) proto.ProbeResult {
	if len(data) < 3 {
		return proto.Inconclusive
	}
	if data[0] != recordHandshake {
		return proto.Reject
	}
	if data[1] != 0x03 {
		return proto.Reject
	}
	return proto.Match
}

// Parse walks the TLS record layer looking for a ClientHello (from the
// originator) or ServerHello (from the responder). It emits a session
// only once both halves of the handshake preamble have been seen.
func (p *parser) Parse(dir proto.Direction, data []byte) (proto.ParseOutcome, *proto.Session, error) {
	records, err := splitRecords(data)
	if err != nil {
		return proto.ParseError, nil, err
	}

	for _, rec := range records {
		if rec.contentType != recordHandshake || len(rec.body) < 4 {
			continue
		}
		switch rec.body[0] {
		case handshakeClient:
			if err := p.parseClientHello(rec.body[4:]); err != nil {
				return proto.ParseError, nil, err
			}
			p.state.ClientHelloSeen = true
		case handshakeServer:
			if err := p.parseServerHello(rec.body[4:]); err != nil {
				return proto.ParseError, nil, err
			}
			p.state.ServerHelloSeen = true
		}
	}

	if p.state.ClientHelloSeen && p.state.ServerHelloSeen {
		session := &proto.Session{Kind: proto.SessionTLS, TLS: &p.state}
		return proto.Done, session, nil
	}
	return proto.InProgress, nil, nil
}

type record struct {
	contentType byte
	body        []byte
}

func splitRecords(data []byte) ([]record, error) {
	var out []record
	for len(data) >= 5 {
		length := int(binary.BigEndian.Uint16(data[3:5]))
		if len(data) < 5+length {
			break
		}
		out = append(out, record{contentType: data[0], body: data[5 : 5+length]})
		data = data[5+length:]
	}
	return out, nil
}

func (p *parser) parseClientHello(body []byte) error {
	if len(body) < 34 {
		return nil
	}
	b := body[34:]

	sessIDLen, b, ok := readU8Len(b)
	if !ok {
		return nil
	}
	b = advance(b, sessIDLen)

	cipherLen, b, ok := readU16Len(b)
	if !ok {
		return nil
	}
	b = advance(b, cipherLen)

	compLen, b, ok := readU8Len(b)
	if !ok {
		return nil
	}
	b = advance(b, compLen)

	extLen, b, ok := readU16Len(b)
	if !ok || len(b) < extLen {
		return nil
	}
	ext := b[:extLen]

	for len(ext) >= 4 {
		extType := binary.BigEndian.Uint16(ext[0:2])
		extDataLen := int(binary.BigEndian.Uint16(ext[2:4]))
		if len(ext) < 4+extDataLen {
			break
		}
		extData := ext[4 : 4+extDataLen]
		if extType == extensionSNI {
			if host, ok := parseSNIExtension(extData); ok {
				p.state.SNI = host
			}
		}
		ext = ext[4+extDataLen:]
	}
	return nil
}

func parseSNIExtension(data []byte) (string, bool) {
	if len(data) < 2 {
		return "", false
	}
	listLen := int(binary.BigEndian.Uint16(data[0:2]))
	data = data[2:]
	if len(data) < listLen {
		return "", false
	}
	for len(data) >= 3 {
		entryType := data[0]
		entryLen := int(binary.BigEndian.Uint16(data[1:3]))
		if len(data) < 3+entryLen {
			break
		}
		if entryType == sniHostNameEntry {
			return string(data[3 : 3+entryLen]), true
		}
		data = data[3+entryLen:]
	}
	return "", false
}

func (p *parser) parseServerHello(body []byte) error {
	if len(body) < 34 {
		return nil
	}
	p.state.NegotiatedVer = binary.BigEndian.Uint16(body[0:2])

	b := body[34:]
	sessIDLen, b, ok := readU8Len(b)
	if !ok || len(b) < sessIDLen+2 {
		return nil
	}
	b = b[sessIDLen:]
	p.state.CipherSuiteCount = 1
	_ = b
	return nil
}

func readU8Len(b []byte) (int, []byte, bool) {
	if len(b) < 1 {
		return 0, nil, false
	}
	return int(b[0]), b[1:], true
}

func readU16Len(b []byte) (int, []byte, bool) {
	if len(b) < 2 {
		return 0, nil, false
	}
	return int(binary.BigEndian.Uint16(b[0:2])), b[2:], true
}

func advance(b []byte, n int) []byte {
	if n > len(b) {
		return nil
	}
	return b[n:]
}
