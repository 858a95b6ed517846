package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// installFunc installs one task and returns its error.
type installFunc func(ctx context.Context, task InstallTask) error

// poolResult is the completion of one task.
type poolResult struct {
	Task     InstallTask
	Err      error
	Duration time.Duration

	// Cancelled is set for tasks that never started.
	Cancelled bool
	Reason    string
}

// workerPool runs install tasks with a bounded number in flight. Tasks are
// submitted in order; the pool never starts more than limit at once.
type workerPool struct {
	limit    int
	failFast bool

	// tolerated reports whether a task's failure must not stop the pool.
	tolerated func(task InstallTask) bool

	// onStart and onDone are called around every task that actually runs.
	onStart func(task InstallTask)
	onDone  func(result poolResult)
}

// newWorkerPool creates a pool of the given size.
func newWorkerPool(limit int, failFast bool) *workerPool {
	if limit < 1 {
		limit = 1
	}
	return &workerPool{
		limit:     limit,
		failFast:  failFast,
		tolerated: func(InstallTask) bool { return false },
		onStart:   func(InstallTask) {},
		onDone:    func(poolResult) {},
	}
}

// Run executes tasks through install and reports every task exactly once
// through onDone. Under fail-fast the first failure stops tasks that have not
// started yet; tasks in flight finish normally. Cancellation of ctx has the
// same effect. Run returns true if it stopped early.
func (p *workerPool) Run(ctx context.Context, tasks []InstallTask, install installFunc) bool {
	var stopped atomic.Bool
	var reason atomic.Value
	var once sync.Once
	reason.Store("")

	// reason is stored before stopped becomes visible
	stop := func(why string) {
		once.Do(func() {
			reason.Store(why)
			stopped.Store(true)
		})
	}

	cancelled := func(task InstallTask) {
		why, _ := reason.Load().(string)
		if why == "" {
			why = "cancelled"
		}
		p.onDone(poolResult{Task: task, Cancelled: true, Reason: why})
	}

	var g errgroup.Group
	g.SetLimit(p.limit)

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			stop("interrupted")
		}
		if stopped.Load() {
			cancelled(task)
			continue
		}

		g.Go(func() error {
			// A slot may free up after a failure was recorded
			if stopped.Load() {
				cancelled(task)
				return nil
			}
			if ctx.Err() != nil {
				stop("interrupted")
				cancelled(task)
				return nil
			}

			p.onStart(task)
			start := time.Now()
			err := install(ctx, task)
			result := poolResult{Task: task, Err: err, Duration: time.Since(start)}

			if err != nil && p.failFast && !p.tolerated(task) {
				stop("cancelled after failure of " + task.Item)
			}
			p.onDone(result)
			return nil
		})
	}

	_ = g.Wait()
	return stopped.Load()
}
