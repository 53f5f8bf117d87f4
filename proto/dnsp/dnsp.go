// Package dnsp probes and parses DNS query/response transactions,
// matching a response back to its query by transaction ID.
//
// Message decoding is delegated to github.com/miekg/dns rather than
// hand-rolled, the same way the rest of this repository reaches for an
// ecosystem wire-format library wherever one exists.
package dnsp

import (
	"time"

	"github.com/miekg/dns"

	"github.com/flowlens/flowlens/proto"
)

// Name is the filter grammar keyword for this protocol.
const Name = "dns"

type pendingQuery struct {
	msg  *dns.Msg
	sent time.Time
}

type parser struct {
	pending map[uint16]pendingQuery
}

// New is a proto.Factory for the DNS parser.
func New() proto.Parser {
	return &parser{pending: make(map[uint16]pendingQuery)}
}

func (p *parser) Name() string { return Name }

// Probe unpacks the message, cheap enough to call on every candidate
// prefix, and matches provided the QR bit agrees with the observed
// direction.
func (p *parser) Probe(dir proto.Direction, data []byte) proto.ProbeResult {
	if len(data) < 12 {
		return proto.Inconclusive
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return proto.Reject
	}
	if dir == proto.ToResponder && msg.Response {
		return proto.Reject
	}
	if dir == proto.ToOriginator && !msg.Response {
		return proto.Reject
	}
	return proto.Match
}

// Parse unpacks a full DNS message. A query is held until its response
// arrives (matched by transaction ID) so both can be reported as one
// DNSTransaction with RTT filled in.
func (p *parser) Parse(dir proto.Direction, data []byte) (proto.ParseOutcome, *proto.Session, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return proto.InProgress, nil, nil
	}

	if !msg.Response {
		p.pending[msg.Id] = pendingQuery{msg: msg, sent: time.Now()}
		return proto.InProgress, nil, nil
	}

	q, ok := p.pending[msg.Id]
	if !ok {
		return proto.InProgress, nil, nil
	}
	delete(p.pending, msg.Id)

	txn := &proto.DNSTransaction{TxnID: msg.Id, RTT: time.Since(q.sent)}
	if len(q.msg.Question) > 0 {
		txn.Query = q.msg.Question[0].Name
		txn.QueryType = dns.TypeToString[q.msg.Question[0].Qtype]
	}
	for _, rr := range msg.Answer {
		txn.Answers = append(txn.Answers, rr.String())
	}

	return proto.SessionReady, &proto.Session{Kind: proto.SessionDNS, DNS: txn}, nil
}
