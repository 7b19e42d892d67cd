package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) ProcessPending(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestNewSyncProcessor_DefaultsInterval(t *testing.T) {
	p := NewSyncProcessor(&countingSweeper{}, SyncProcessorConfig{})
	assert.Equal(t, 30*time.Second, p.config.PollInterval)
	assert.False(t, p.IsRunning())
}

func TestSyncProcessor_SweepsUntilStopped(t *testing.T) {
	sw := &countingSweeper{}
	p := NewSyncProcessor(sw, SyncProcessorConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return sw.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())

	after := sw.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sw.calls.Load(), "no sweeps after stop")
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	p := NewSyncProcessor(&countingSweeper{}, DefaultSyncProcessorConfig())
	assert.NoError(t, p.Stop(context.Background()))
}

func TestSyncProcessor_RestartsAfterContextCancel(t *testing.T) {
	sw := &countingSweeper{}
	p := NewSyncProcessor(sw, SyncProcessorConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop(context.Background()))
}

func TestSyncProcessor_ConcurrentStop(t *testing.T) {
	p := NewSyncProcessor(&countingSweeper{}, SyncProcessorConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Stop(context.Background()))
		}()
	}
	wg.Wait()
	assert.False(t, p.IsRunning())
}
