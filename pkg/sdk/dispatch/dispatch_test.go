package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := New(4)
	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		require.True(t, d.Go(func() { ran.Add(1) }))
		require.NoError(t, d.Wait(context.Background()))
	}
	assert.Equal(t, int32(4), ran.Load())
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := New(2)
	release := make(chan struct{})
	block := func() { <-release }

	require.True(t, d.Go(block))
	require.True(t, d.Go(block))
	assert.False(t, d.Go(block), "third job exceeds the limit")
	assert.Equal(t, uint64(1), d.Dropped())

	close(release)
	require.NoError(t, d.Wait(context.Background()))
	assert.True(t, d.Go(func() {}), "slots free up after jobs finish")
}

func TestDispatcherClose(t *testing.T) {
	d := New(1)
	require.True(t, d.Go(func() { time.Sleep(10 * time.Millisecond) }))
	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Go(func() {}))
}

func TestDispatcherWaitTimeout(t *testing.T) {
	d := New(1)
	release := make(chan struct{})
	defer close(release)
	require.True(t, d.Go(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}
