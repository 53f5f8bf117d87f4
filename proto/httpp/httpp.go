// Package httpp probes and parses HTTP/1.1 request/response pairs off
// a reassembled TCP byte stream.
//
// It reads framed messages the same way bassosimone-nop's httpconn.go
// does — buffer bytes, hand them to the stdlib HTTP reader, and keep
// whatever is left for the next message — but as a passive,
// non-blocking probe/parse state machine instead of an active round
// trip: flowlens never originates a request, it only classifies one it
// observed.
package httpp

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/flowlens/flowlens/proto"
)

// Name is the filter grammar keyword for this protocol.
const Name = "http"

type parser struct {
	reqBuf  bytes.Buffer
	respBuf bytes.Buffer

	pendingReq     *http.Request
	pendingReqTime time.Time
}

// New is a proto.Factory for the HTTP parser.
func New() proto.Parser { return &parser{} }

func (p *parser) Name() string { return Name }

// Probe looks for a request line or a status line at the start of the
// stream; it does not require the full message to be present.
func (p *parser) Probe(dir proto.Direction, data []byte) proto.ProbeResult {
	if len(data) == 0 {
		return proto.Inconclusive
	}
	if dir == proto.ToResponder {
		return probeRequestLine(data)
	}
	return probeStatusLine(data)
}

func probeRequestLine(data []byte) proto.ProbeResult {
	for _, m := range httpMethods {
		if len(data) < len(m) {
			if bytes.HasPrefix([]byte(m), data) {
				return proto.Inconclusive
			}
			continue
		}
		if bytes.HasPrefix(data, []byte(m+" ")) {
			return proto.Match
		}
	}
	return proto.Reject
}

func probeStatusLine(data []byte) proto.ProbeResult {
	const prefix = "HTTP/"
	n := len(prefix)
	if len(data) < n {
		if bytes.HasPrefix([]byte(prefix), data) {
			return proto.Inconclusive
		}
		return proto.Reject
	}
	if bytes.HasPrefix(data, []byte(prefix)) {
		return proto.Match
	}
	return proto.Reject
}

var httpMethods = []string{
	"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "CONNECT", "TRACE",
}

// Parse accumulates bytes per direction and, once a complete message
// is framed, emits a session. A request is held until its matching
// response arrives so the two can be reported as one transaction.
func (p *parser) Parse(dir proto.Direction, data []byte) (proto.ParseOutcome, *proto.Session, error) {
	if dir == proto.ToResponder {
		p.reqBuf.Write(data)
		return p.tryRequest()
	}
	p.respBuf.Write(data)
	return p.tryResponse()
}

func (p *parser) tryRequest() (proto.ParseOutcome, *proto.Session, error) {
	r := bufio.NewReader(bytes.NewReader(p.reqBuf.Bytes()))
	req, err := http.ReadRequest(r)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return proto.InProgress, nil, nil
	}
	if err != nil {
		p.reqBuf.Reset()
		return proto.ParseError, nil, err
	}

	consumed := p.reqBuf.Len() - r.Buffered()
	remaining := make([]byte, r.Buffered())
	io.ReadFull(r, remaining)
	p.reqBuf.Reset()
	p.reqBuf.Write(remaining)
	_ = consumed

	p.pendingReq = req
	p.pendingReqTime = time.Now()
	return proto.InProgress, nil, nil
}

func (p *parser) tryResponse() (proto.ParseOutcome, *proto.Session, error) {
	if p.pendingReq == nil {
		return proto.InProgress, nil, nil
	}

	r := bufio.NewReader(bytes.NewReader(p.respBuf.Bytes()))
	resp, err := http.ReadResponse(r, p.pendingReq)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return proto.InProgress, nil, nil
	}
	if err != nil {
		p.respBuf.Reset()
		return proto.ParseError, nil, err
	}

	remaining := make([]byte, r.Buffered())
	io.ReadFull(r, remaining)
	p.respBuf.Reset()
	p.respBuf.Write(remaining)

	txn := &proto.HTTPTransaction{
		Method:         p.pendingReq.Method,
		URI:            p.pendingReq.RequestURI,
		RequestHeader:  map[string][]string(p.pendingReq.Header),
		StatusCode:     resp.StatusCode,
		ResponseHeader: map[string][]string(resp.Header),
		RequestTime:    p.pendingReqTime,
		ResponseTime:   time.Now(),
	}
	resp.Body.Close()
	p.pendingReq = nil

	return proto.SessionReady, &proto.Session{Kind: proto.SessionHTTP, HTTP: txn}, nil
}
