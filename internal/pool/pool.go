// 包 pool 提供有界并发的任务执行器：
// - 固定数量的 worker 从共享游标领取任务，同时运行的任务不超过 Concurrency
// - 单个任务失败（含 panic）只记录在其结果上，不影响其他任务
// - 结果按提交顺序返回，进度回调按完成顺序触发
// - Cancel 为协作式：已在运行的任务会完成，之后不再领取新任务
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Progress 为进度回调的载荷。
type Progress struct {
	Completed int
	Total     int
	Succeeded int
	Failed    int
}

// Options 配置并发数与进度回调。
type Options struct {
	Concurrency int
	OnProgress  func(Progress)
}

// Result 为单个任务的结果，Job 为原始任务。
type Result[J, R any] struct {
	Index int
	Job   J
	Value R
	Err   error
}

// Report 为一次 Run 的结果；Results 只包含已完成的任务，按提交顺序排列。
type Report[J, R any] struct {
	Results   []Result[J, R]
	Succeeded int
	Failed    int
	Cancelled bool
}

// Func 为任务处理函数。
type Func[J, R any] func(ctx context.Context, job J) (R, error)

// Pool 为泛型任务池。
type Pool[J, R any] struct {
	fn        Func[J, R]
	opts      Options
	cancelled atomic.Bool
}

// New 创建任务池；Concurrency 小于 1 时按 1 处理。
func New[J, R any](fn Func[J, R], opts Options) *Pool[J, R] {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pool[J, R]{fn: fn, opts: opts}
}

// Cancel 停止领取新任务；可重复调用。
func (p *Pool[J, R]) Cancel() { p.cancelled.Store(true) }

// Cancelled 是否已取消。
func (p *Pool[J, R]) Cancelled() bool { return p.cancelled.Load() }

// Run 执行全部任务并等待已领取的任务结束。ctx 取消与 Cancel 等价。
func (p *Pool[J, R]) Run(ctx context.Context, jobs []J) Report[J, R] {
	n := len(jobs)
	results := make([]Result[J, R], n)
	done := make([]bool, n)

	var (
		next     atomic.Int64
		mu       sync.Mutex
		progress = Progress{Total: n}
		wg       sync.WaitGroup
	)
	workers := min(p.opts.Concurrency, n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if p.cancelled.Load() || ctx.Err() != nil {
					return
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return
				}
				res := Result[J, R]{Index: i, Job: jobs[i]}
				res.Value, res.Err = p.call(ctx, jobs[i])

				mu.Lock()
				results[i], done[i] = res, true
				progress.Completed++
				if res.Err != nil {
					progress.Failed++
				} else {
					progress.Succeeded++
				}
				snap := progress
				if p.opts.OnProgress != nil {
					p.opts.OnProgress(snap)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rep := Report[J, R]{Results: make([]Result[J, R], 0, n)}
	for i := range results {
		if !done[i] {
			continue
		}
		rep.Results = append(rep.Results, results[i])
		if results[i].Err != nil {
			rep.Failed++
		} else {
			rep.Succeeded++
		}
	}
	rep.Cancelled = len(rep.Results) < n
	return rep
}

// call 执行单个任务，将 panic 转为错误。
func (p *Pool[J, R]) call(ctx context.Context, job J) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return p.fn(ctx, job)
}
