package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherEnqueueAndDrain(t *testing.T) {
	d := NewDispatcher(2)
	require.True(t, d.Enqueue(Job{Callback: "a"}))
	require.True(t, d.Enqueue(Job{Callback: "b"}))

	var dropped int
	d.OnDrop(func() { dropped++ })
	require.False(t, d.Enqueue(Job{Callback: "c"}))
	require.Equal(t, 1, dropped)

	job := <-d.Jobs()
	require.Equal(t, "a", job.Callback)
}

func TestDispatcherOnDropCalledOnlyWhenFull(t *testing.T) {
	d := NewDispatcher(1)
	var dropped int
	d.OnDrop(func() { dropped++ })

	require.True(t, d.Enqueue(Job{Callback: "a"}))
	require.Equal(t, 0, dropped)
	require.False(t, d.Enqueue(Job{Callback: "b"}))
	require.Equal(t, 1, dropped)
}
