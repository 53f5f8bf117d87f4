package proto

import "time"

// HTTPTransaction is one request/response pair observed on an HTTP/1.1
// connection. A pipelined connection produces one of these per pair, in
// arrival order.
type HTTPTransaction struct {
	Method        string
	URI           string
	RequestHeader map[string][]string

	StatusCode     int
	ResponseHeader map[string][]string

	RequestTime  time.Time
	ResponseTime time.Time
}

// TLSHandshake carries the fields extracted from a passively observed
// ClientHello/ServerHello exchange.
type TLSHandshake struct {
	SNI              string
	ClientHelloSeen  bool
	ServerHelloSeen  bool
	NegotiatedVer    uint16
	CipherSuiteCount int
}

// DNSTransaction is one query/response pair matched by transaction ID.
type DNSTransaction struct {
	TxnID     uint16
	Query     string
	QueryType string
	Answers   []string
	RTT       time.Duration
}

// QUICPacket summarizes one long-header QUIC packet's connection
// identifiers and version, enough to correlate an encrypted flow
// without decrypting it.
type QUICPacket struct {
	Version uint32
	DCID    []byte
	SCID    []byte
}
