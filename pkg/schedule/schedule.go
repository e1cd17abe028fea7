// Package schedule provides cancellable deferred restorations. Every timed
// rollback in the harness (permission bits, file locks, offline windows,
// space-query interception) runs through a Task so that disabling an
// injector can never race with its own restoration firing late.
package schedule

import (
	"sync"
	"time"
)

// Task is a single deferred callback. Cancel, Fire and the timer expiring
// are mutually exclusive: exactly one of them runs the terminal transition.
type Task struct {
	timer *time.Timer
	fn    func()
	once  sync.Once
	done  chan struct{}
}

// After schedules fn to run once after delay. The callback runs on the
// timer goroutine; keep it short and non-blocking.
func After(delay time.Duration, fn func()) *Task {
	task := &Task{fn: fn, done: make(chan struct{})}
	task.timer = time.AfterFunc(delay, task.run)
	return task
}

func (t *Task) run() {
	t.once.Do(func() {
		defer close(t.done)
		t.fn()
	})
}

// Cancel stops the task if it has not fired yet and reports whether the
// callback was prevented from running. Safe to call more than once.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	stopped := t.timer.Stop()
	if stopped {
		t.once.Do(func() { close(t.done) })
	}
	return stopped
}

// Fire runs the callback immediately if it is still pending, used by
// injectors that want deterministic rollback on Disable instead of waiting
// out the timer.
func (t *Task) Fire() {
	if t == nil {
		return
	}
	if t.timer.Stop() {
		t.run()
	}
}

// Done is closed once the task has either fired or been cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
