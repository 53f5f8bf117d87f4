package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshotsIndependentCores(t *testing.T) {
	r := &Registry{}
	c0 := r.NewCore(0)
	c1 := r.NewCore(1)

	c0.PacketsReceived.Add(10)
	c1.PacketsReceived.Add(3)
	c1.MempoolExhausted.Add(1)

	snaps := r.Snapshot()
	require.Len(t, snaps, 2)
	require.Equal(t, uint64(10), snaps[0].PacketsReceived)
	require.Equal(t, uint64(3), snaps[1].PacketsReceived)
	require.Equal(t, uint64(1), snaps[1].MempoolExhausted)
}
