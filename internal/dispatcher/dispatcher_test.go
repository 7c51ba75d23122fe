package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// reverseDelay makes later inputs finish first.
func reverseDelay(n int) func(ctx context.Context, in int) (int, error) {
	return func(_ context.Context, in int) (int, error) {
		time.Sleep(time.Duration(n-in) * 5 * time.Millisecond)
		return in * 10, nil
	}
}

func TestCollectPreservesInputOrder(t *testing.T) {
	t.Parallel()

	inputs := []int{0, 1, 2, 3, 4, 5, 6, 7}
	want := []int{0, 10, 20, 30, 40, 50, 60, 70}

	strategies := map[string]Strategy{
		"batch join":     BatchJoin{},
		"pool of three":  NewPool(3),
		"pool of thirty": NewPool(30),
	}
	for name, strategy := range strategies {
		strategy := strategy
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := Collect(context.Background(), strategy, inputs, reverseDelay(len(inputs)))
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestBatchJoinFailsFastAndCancelsSiblings(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var canceled atomic.Int32
	_, err := Collect(context.Background(), BatchJoin{}, []int{0, 1, 2}, func(ctx context.Context, in int) (int, error) {
		if in == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			canceled.Add(1)
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return in, nil
		}
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), canceled.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32
	pool := NewPool(2)
	err := pool.Run(context.Background(), 10, func(_ context.Context, _ int) error {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolRunsEveryTaskAndReturnsFirstError(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	err := NewPool(1).Run(context.Background(), 4, func(_ context.Context, i int) error {
		ran.Add(1)
		if i == 1 {
			return errors.New("task 1 failed")
		}
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "task 1 failed")
	require.Equal(t, int32(4), ran.Load())
}

func TestPoolWorkers(t *testing.T) {
	t.Parallel()

	pool := NewPool(30)
	require.Equal(t, 5, pool.Workers(5))
	require.Equal(t, 30, pool.Workers(50))
	require.Equal(t, 1, pool.Workers(0))
	require.NoError(t, pool.Run(context.Background(), 0, nil))
}
