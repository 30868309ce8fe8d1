package pool

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

func TestRun_OrderAndIsolation(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []Progress
	)
	p := New(func(_ context.Context, job string) (string, error) {
		if job == "B" {
			return "", errors.New("boom")
		}
		// 让完成顺序与提交顺序不同
		if job == "A" {
			time.Sleep(20 * time.Millisecond)
		}
		return job + "!", nil
	}, Options{Concurrency: 2, OnProgress: func(pr Progress) {
		mu.Lock()
		calls = append(calls, pr)
		mu.Unlock()
	}})

	rep := p.Run(context.Background(), []string{"A", "B", "C", "D"})
	require.Len(t, rep.Results, 4)
	for i, want := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, i, rep.Results[i].Index)
		assert.Equal(t, want, rep.Results[i].Job)
	}
	assert.Equal(t, "A!", rep.Results[0].Value)
	assert.EqualError(t, rep.Results[1].Err, "boom")
	assert.NoError(t, rep.Results[2].Err)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 4, rep.Succeeded+rep.Failed)
	assert.False(t, rep.Cancelled)

	require.Len(t, calls, 4)
	last := calls[len(calls)-1]
	assert.Equal(t, Progress{Completed: 4, Total: 4, Succeeded: 3, Failed: 1}, last)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	p := New(func(_ context.Context, _ int) (struct{}, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	}, Options{Concurrency: 3})

	rep := p.Run(context.Background(), make([]int, 20))
	assert.Len(t, rep.Results, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_PanicBecomesError(t *testing.T) {
	p := New(func(_ context.Context, job int) (int, error) {
		if job == 2 {
			panic("bad job")
		}
		return job * 10, nil
	}, Options{Concurrency: 2})

	rep := p.Run(context.Background(), []int{1, 2, 3})
	require.Len(t, rep.Results, 3)
	assert.ErrorContains(t, rep.Results[1].Err, "bad job")
	assert.Equal(t, 2, rep.Results[1].Job)
	assert.Equal(t, 30, rep.Results[2].Value)
}

func TestCancel_CooperativeAndIdempotent(t *testing.T) {
	var p *Pool[int, int]
	p = New(func(_ context.Context, job int) (int, error) {
		if job == 0 {
			p.Cancel()
			p.Cancel()
			// 已在运行的任务照常完成
			time.Sleep(10 * time.Millisecond)
		}
		return job, nil
	}, Options{Concurrency: 1})

	rep := p.Run(context.Background(), []int{0, 1, 2, 3})
	assert.True(t, p.Cancelled())
	assert.True(t, rep.Cancelled)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, 0, rep.Results[0].Value)
	assert.NoError(t, rep.Results[0].Err)
}

func TestRun_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	p := New(func(_ context.Context, _ int) (int, error) {
		calls.Add(1)
		return 0, nil
	}, Options{Concurrency: 4})

	rep := p.Run(ctx, []int{1, 2, 3})
	assert.Empty(t, rep.Results)
	assert.True(t, rep.Cancelled)
	assert.Zero(t, calls.Load())
}

func TestRun_Empty(t *testing.T) {
	p := New(func(_ context.Context, _ int) (int, error) { return 0, nil }, Options{})
	rep := p.Run(context.Background(), nil)
	assert.Empty(t, rep.Results)
	assert.False(t, rep.Cancelled)
}
