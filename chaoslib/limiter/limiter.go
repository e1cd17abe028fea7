// Package limiter applies sustained resource pressure: background workers
// hold memory, occupy cpu cores or hammer the disk until released.
// Unlike the one-shot failure scenarios, a limit stays in force until its
// handle is released, and every worker honors its stop flag within one
// work cycle.
package limiter

import (
	"sync"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/math"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

// Limiter owns at most one active limit per resource kind.
type Limiter struct {
	scratchDir string

	mu      sync.Mutex
	handles map[types.ResourceKind]*Handle
}

// Handle is one active limit. Release is idempotent and blocks until every
// worker has drained.
type Handle struct {
	limiter *Limiter
	kind    types.ResourceKind
	workers int
	stop    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	released bool
}

// New builds a limiter. scratchDir receives the IO worker files.
func New(scratchDir string) *Limiter {
	return &Limiter{
		scratchDir: scratchDir,
		handles:    map[types.ResourceKind]*Handle{},
	}
}

// clampFraction normalizes a requested fraction into [0.1, 1.0], warning
// when the caller asked for something outside it.
func clampFraction(kind types.ResourceKind, fraction float64) float64 {
	if fraction < 0.1 || fraction > 1.0 {
		clamped := math.Clamp(fraction, 0.1, 1.0)
		log.Warnf("[Prepare]: %v fraction %.2f out of range, using %.2f", kind, fraction, clamped)
		return clamped
	}
	return fraction
}

// install registers a new handle for the kind, replacing and releasing any
// limit already in force.
func (l *Limiter) install(kind types.ResourceKind, workers int) *Handle {
	l.mu.Lock()
	previous := l.handles[kind]
	h := &Handle{
		limiter: l,
		kind:    kind,
		workers: workers,
		stop:    make(chan struct{}),
	}
	l.handles[kind] = h
	l.mu.Unlock()

	if previous != nil {
		log.Warnf("[Prepare]: Replacing active %v limit", kind)
		previous.Release()
	}
	telemetry.ActiveStressWorkers.WithLabelValues(string(kind)).Add(float64(workers))
	return h
}

// Release stops the limit's workers and waits for them to drain. Releasing
// an already released handle is a no-op.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	close(h.stop)
	h.wg.Wait()
	telemetry.ActiveStressWorkers.WithLabelValues(string(h.kind)).Sub(float64(h.workers))

	h.limiter.mu.Lock()
	if h.limiter.handles[h.kind] == h {
		delete(h.limiter.handles, h.kind)
	}
	h.limiter.mu.Unlock()
	log.Infof("[Recovery]: Released %v limit (%d workers)", h.kind, h.workers)
}

// Workers reports how many workers the handle runs.
func (h *Handle) Workers() int { return h.workers }

// Release stops the active limit for the given kind, if any.
func (l *Limiter) Release(kind types.ResourceKind) {
	l.mu.Lock()
	h := l.handles[kind]
	l.mu.Unlock()
	if h != nil {
		h.Release()
	}
}

// ReleaseMemory stops the active memory limit, if any.
func (l *Limiter) ReleaseMemory() { l.Release(types.ResourceMemory) }

// ReleaseCPU stops the active cpu limit, if any.
func (l *Limiter) ReleaseCPU() { l.Release(types.ResourceCPU) }

// ReleaseIO stops the active io limit, if any.
func (l *Limiter) ReleaseIO() { l.Release(types.ResourceIO) }

// ReleaseAll stops every active limit.
func (l *Limiter) ReleaseAll() {
	l.mu.Lock()
	handles := make([]*Handle, 0, len(l.handles))
	for _, h := range l.handles {
		handles = append(handles, h)
	}
	l.mu.Unlock()
	for _, h := range handles {
		h.Release()
	}
}

// ActiveWorkers is a census of live workers by resource kind. Kinds with no
// active limit are absent.
func (l *Limiter) ActiveWorkers() map[types.ResourceKind]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	census := make(map[types.ResourceKind]int, len(l.handles))
	for kind, h := range l.handles {
		census[kind] = h.workers
	}
	return census
}
