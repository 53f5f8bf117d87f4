package tlsp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/proto"
)

func buildClientHello(host string) []byte {
	hostBytes := []byte(host)

	var sni []byte
	sni = append(sni, 0x00) // name type: host_name
	sni = append(sni, u16(len(hostBytes))...)
	sni = append(sni, hostBytes...)

	var sniList []byte
	sniList = append(sniList, u16(len(sni))...)
	sniList = append(sniList, sni...)

	var ext []byte
	ext = append(ext, u16(0x0000)...) // extension type: server_name
	ext = append(ext, u16(len(sniList))...)
	ext = append(ext, sniList...)

	var body []byte
	body = append(body, 0x03, 0x03) // client_version
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)       // session_id_len
	body = append(body, u16(2)...)  // cipher_suites_len
	body = append(body, 0x13, 0x01) // a cipher suite
	body = append(body, 0x01, 0x00) // compression methods
	body = append(body, u16(len(ext))...)
	body = append(body, ext...)

	var handshake []byte
	handshake = append(handshake, handshakeClient)
	handshake = append(handshake, u24(len(body))...)
	handshake = append(handshake, body...)

	return record(handshake)
}

func buildServerHello() []byte {
	var body []byte
	body = append(body, 0x03, 0x03) // negotiated version
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00) // session_id_len

	var handshake []byte
	handshake = append(handshake, handshakeServer)
	handshake = append(handshake, u24(len(body))...)
	handshake = append(handshake, body...)

	return record(handshake)
}

func record(handshake []byte) []byte {
	var rec []byte
	rec = append(rec, recordHandshake, 0x03, 0x01)
	rec = append(rec, u16(len(handshake))...)
	rec = append(rec, handshake...)
	return rec
}

func u16(n int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(n))
	return b
}

func u24(n int) []byte {
	return []byte{byte(n >> 16), byte(n >> 8), byte(n)}
}

func TestProbeMatchesHandshakeRecord(t *testing.T) {
	p := New()
	data := buildClientHello("example.com")
	require.Equal(t, proto.Match, p.Probe(proto.ToResponder, data))
}

func TestProbeRejectsNonTLS(t *testing.T) {
	p := New()
	require.Equal(t, proto.Reject, p.Probe(proto.ToResponder, []byte("GET / HTTP/1.1\r\n")))
}

func TestParseExtractsSNIAndCompletesOnServerHello(t *testing.T) {
	p := New()

	outcome, session, err := p.Parse(proto.ToResponder, buildClientHello("example.com"))
	require.NoError(t, err)
	require.Equal(t, proto.InProgress, outcome)
	require.Nil(t, session)

	outcome, session, err = p.Parse(proto.ToOriginator, buildServerHello())
	require.NoError(t, err)
	require.Equal(t, proto.Done, outcome)
	require.NotNil(t, session)
	require.Equal(t, "example.com", session.TLS.SNI)
	require.True(t, session.TLS.ClientHelloSeen)
	require.True(t, session.TLS.ServerHelloSeen)
}
