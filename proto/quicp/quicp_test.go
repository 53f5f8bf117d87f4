package quicp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/proto"
)

func buildLongHeader(version uint32, dcid, scid []byte) []byte {
	out := []byte{0xC0 | initialType<<4}
	out = append(out, byte(version>>24), byte(version>>16), byte(version>>8), byte(version))
	out = append(out, byte(len(dcid)))
	out = append(out, dcid...)
	out = append(out, byte(len(scid)))
	out = append(out, scid...)
	out = append(out, 0x00) // token length varint: 0
	out = append(out, 0x00, 0x00, 0x00, 0x00)
	return out
}

func TestProbeMatchesLongHeader(t *testing.T) {
	p := New()
	data := buildLongHeader(1, []byte{1, 2, 3, 4}, []byte{5, 6})
	require.Equal(t, proto.Match, p.Probe(proto.ToResponder, data))
}

func TestProbeRejectsShortHeader(t *testing.T) {
	p := New()
	require.Equal(t, proto.Reject, p.Probe(proto.ToResponder, []byte{0x40, 0x01, 0x02, 0x03, 0x04}))
}

func TestParseExtractsVersionAndConnectionIDs(t *testing.T) {
	p := New()
	data := buildLongHeader(1, []byte{1, 2, 3, 4}, []byte{5, 6})

	outcome, session, err := p.Parse(proto.ToResponder, data)
	require.NoError(t, err)
	require.Equal(t, proto.Done, outcome)
	require.NotNil(t, session)
	require.Equal(t, uint32(1), session.QUIC.Version)
	require.Equal(t, []byte{1, 2, 3, 4}, session.QUIC.DCID)
	require.Equal(t, []byte{5, 6}, session.QUIC.SCID)
}
