package handshake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyGatePreset(t *testing.T) {
	g := NewReadyGate(true)
	require.True(t, g.Pending())

	require.NoError(t, g.WaitAndClear(context.Background(), 10*time.Millisecond))
	assert.False(t, g.Pending())
}

func TestReadyGateStartsClear(t *testing.T) {
	g := NewReadyGate(false)
	assert.False(t, g.Pending())

	err := g.WaitAndClear(context.Background(), 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestReadyGateCoalescesSignals(t *testing.T) {
	g := NewReadyGate(false)

	assert.True(t, g.Signal(), "first signal sets the gate")
	for i := 0; i < 9; i++ {
		assert.False(t, g.Signal(), "further signals are coalesced")
	}
	assert.Equal(t, uint64(10), g.Signals())
	assert.Equal(t, uint64(9), g.Coalesced())

	require.NoError(t, g.WaitAndClear(context.Background(), 10*time.Millisecond))
	err := g.WaitAndClear(context.Background(), 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout, "only one wait is satisfied")
}

func TestReadyGateWakesWaiter(t *testing.T) {
	g := NewReadyGate(false)

	done := make(chan error, 1)
	go func() {
		done <- g.WaitAndClear(context.Background(), 0)
	}()

	time.Sleep(10 * time.Millisecond)
	g.Signal()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.False(t, g.Pending())
}

func TestReadyGateContextCancel(t *testing.T) {
	g := NewReadyGate(false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- g.WaitAndClear(ctx, 0)
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("wait did not return on cancel")
	}
}

func TestReadyGateSignalNeverBlocks(t *testing.T) {
	g := NewReadyGate(true)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			g.Signal()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Signal blocked")
	}
}
