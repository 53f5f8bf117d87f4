package conn

import "github.com/flowlens/flowlens/track"

// ID is the normalized 5-tuple this connection table hashes on.
// Normalization (smaller address/port pair first) is the caller's
// responsibility via Normalize, so the originator→responder direction
// is a fixed, comparison-free fact of which side matches the tuple as
// recorded versus swapped.
type ID struct {
	five track.FiveTuple
}

// Normalize builds a connection ID from one packet's observed
// direction, reporting whether the packet traveled originator-to-
// responder (swapped == false) or the reverse.
func Normalize(five track.FiveTuple) (ID, bool) {
	if less(five.SrcIP, five.SrcPort, five.DstIP, five.DstPort) {
		return ID{five: five}, false
	}
	swappedTuple := track.FiveTuple{
		SrcIP: five.DstIP, SrcPort: five.DstPort,
		DstIP: five.SrcIP, DstPort: five.SrcPort,
		Proto: five.Proto,
	}
	return ID{five: swappedTuple}, true
}

func less(aIP [16]byte, aPort uint16, bIP [16]byte, bPort uint16) bool {
	for i := range aIP {
		if aIP[i] != bIP[i] {
			return aIP[i] < bIP[i]
		}
	}
	return aPort < bPort
}
