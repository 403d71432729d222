package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestSupervisor_AllWorkersStart(t *testing.T) {
	s := NewSupervisor()

	var started [3]atomic.Bool
	for i := 0; i < 3; i++ {
		idx := i
		s.Add("worker", func(ctx context.Context) error {
			started[idx].Store(true)
			<-ctx.Done()
			return nil
		}, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool {
		return started[0].Load() && started[1].Load() && started[2].Load()
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, s.Wait(ctx))
}

func TestSupervisor_ShutdownReverseOrder(t *testing.T) {
	s := NewSupervisor()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		idx := i
		s.Add("worker", blockUntilDone, func() error {
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	_ = s.Wait(ctx)

	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestSupervisor_FailureStopsOthers(t *testing.T) {
	s := NewSupervisor()
	boom := errors.New("socket vanished")

	var sawCancel atomic.Bool
	s.Add("healthy", func(ctx context.Context) error {
		<-ctx.Done()
		sawCancel.Store(true)
		return nil
	}, nil)
	s.Add("failing", func(ctx context.Context) error {
		return boom
	}, nil)

	// The parent context is never cancelled; the failure alone ends Wait.
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Wait(ctx) }()

	select {
	case err := <-done:
		assert.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for supervisor to stop")
	}
	assert.True(t, sawCancel.Load())
}

func TestSupervisor_OnlyFirstErrorReturned(t *testing.T) {
	s := NewSupervisor()
	first := errors.New("first error")
	second := errors.New("second error")

	var barrier sync.WaitGroup
	barrier.Add(1)
	s.Add("first", func(ctx context.Context) error {
		barrier.Done()
		return first
	}, nil)
	s.Add("second", func(ctx context.Context) error {
		barrier.Wait()
		time.Sleep(10 * time.Millisecond)
		return second
	}, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, first, s.Wait(ctx))
}

func TestSupervisor_CloseErrorIgnored(t *testing.T) {
	s := NewSupervisor()
	s.Add("worker", blockUntilDone, func() error {
		return errors.New("close error")
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.NoError(t, s.Wait(ctx))
}

func TestSupervisor_Empty(t *testing.T) {
	s := NewSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.NoError(t, s.Wait(ctx))
}
