// Package injector implements probabilistic fault gates for network and
// filesystem operations. Each injector wraps a Gate that decides, per
// attempt, whether the fault fires, and a variant-specific Inject that
// mutates the operation context or returns the fault error.
package injector

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/math"
)

// Context carries the attributes of the operation under fault injection.
// Injectors read the target fields and write the outcome fields.
type Context struct {
	// Target of the operation. Resource is the generic match key used by
	// include/exclude filters; the remaining fields narrow specific variants.
	Resource string
	Hostname string
	URL      string
	Path     string

	// Payload of the operation, mutated in place by corruption variants.
	Content []byte

	// Outcome written by HTTP variants.
	StatusCode int
	Body       []byte
}

// Injector is a single fault source. TryInject reports whether the fault
// fired and returns the injected error, if the variant produces one.
type Injector interface {
	Name() string
	TryInject(ctx context.Context, ictx *Context) (bool, error)
}

// Gate holds the trigger state shared by every injector variant.
type Gate struct {
	name        string
	mu          sync.Mutex
	probability float64
	enabled     bool
	include     []string
	exclude     []string
	rng         *rand.Rand
	fired       int
}

// NewGate builds a gate with the given trigger probability, clamped to
// [0, 1]. Gates start enabled and carry their own RNG so concurrent
// injectors do not contend on a shared source.
func NewGate(name string, probability float64) *Gate {
	if probability < 0 || probability > 1 {
		log.Warnf("[Prepare]: %v probability %.2f out of range, clamping", name, probability)
		probability = math.Clamp(probability, 0, 1)
	}
	return &Gate{
		name:        name,
		probability: probability,
		enabled:     true,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the injector name used in logs and filters.
func (g *Gate) Name() string { return g.name }

// Enable arms the gate.
func (g *Gate) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = true
}

// Disable disarms the gate; TryInject becomes a no-op.
func (g *Gate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
}

// SetProbability updates the trigger probability, clamped to [0, 1].
func (g *Gate) SetProbability(p float64) {
	if p < 0 || p > 1 {
		log.Warnf("[Prepare]: %v probability %.2f out of range, clamping", g.name, p)
		p = math.Clamp(p, 0, 1)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probability = p
}

// Include restricts the gate to resources matching any of the given
// patterns. Patterns use filepath.Match syntax.
func (g *Gate) Include(patterns ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.include = append(g.include, patterns...)
}

// Exclude exempts resources matching any of the given patterns. Exclusion
// wins over inclusion.
func (g *Gate) Exclude(patterns ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exclude = append(g.exclude, patterns...)
}

// Fired returns how many times the gate has triggered.
func (g *Gate) Fired() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// shouldFire rolls the gate for the given resource. It is the single
// decision point: enabled state, filters and probability are all evaluated
// under the gate lock.
func (g *Gate) shouldFire(resource string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.enabled {
		return false
	}
	if !g.matchesLocked(resource) {
		return false
	}
	if g.rng.Float64() >= g.probability {
		return false
	}
	g.fired++
	return true
}

func (g *Gate) matchesLocked(resource string) bool {
	for _, pattern := range g.exclude {
		if ok, _ := filepath.Match(pattern, resource); ok {
			return false
		}
	}
	if len(g.include) == 0 {
		return true
	}
	for _, pattern := range g.include {
		if ok, _ := filepath.Match(pattern, resource); ok {
			return true
		}
	}
	return false
}

func (g *Gate) randFloat() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func (g *Gate) randIntn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
