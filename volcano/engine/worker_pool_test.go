package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWorkerPool_OrderPreserving(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(4)
	results := make([]int, 100)

	err := pool.Execute(context.Background(), len(results), func(ctx context.Context, idx int) error {
		results[idx] = idx * 2
		return nil
	})
	require.NoError(t, err)

	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(4)
	var ran int64

	err := pool.Execute(context.Background(), 10, func(ctx context.Context, idx int) error {
		atomic.AddInt64(&ran, 1)
		if idx == 5 || idx == 7 {
			return fmt.Errorf("intentional error at %d", idx)
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, "parallel execution failed at index 5: intentional error at 5", err.Error())
	assert.Equal(t, int64(10), ran, "a failing job does not stop the others")
}

func TestWorkerPool_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	err := pool.Execute(ctx, 5, func(ctx context.Context, idx int) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran)
}

func TestWorkerPool_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	err := pool.Execute(context.Background(), 0, func(ctx context.Context, idx int) error {
		t.Fatal("no job expected")
		return nil
	})
	assert.NoError(t, err)
}

func TestWorkerPool_DefaultWorkerCount(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), NewWorkerPool(0).WorkerCount())
	assert.Equal(t, 3, NewWorkerPool(3).WorkerCount())
}
