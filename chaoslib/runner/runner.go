// Package runner drives stress campaigns end to end: it steps resource
// limits or schedules failure scenarios over a run window, samples system
// telemetry on every tick, computes the verdict and persists the run
// artifact. Runs are registered so callers can fetch results or stop
// everything at once.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kyokomi/emoji"

	"github.com/stressforge/harness-go/chaoslib/limiter"
	"github.com/stressforge/harness-go/chaoslib/monkey"
	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/events"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/result"
	"github.com/stressforge/harness-go/pkg/types"
)

// successThreshold is the verdict bar for both step success rate and
// recovery rate.
const successThreshold = 0.7

// Runner owns the campaign registry and the harness components campaigns
// run against.
type Runner struct {
	details  types.HarnessDetails
	limiter  *limiter.Limiter
	monkey   *monkey.Monkey
	recorder *events.Recorder

	mu      sync.Mutex
	rng     *rand.Rand
	active  map[string]context.CancelFunc
	results map[string]*result.RunResult
	order   []string
}

// New wires a runner against its components. Zero-valued details get the
// production defaults; a negative ChaosProbability disables induced
// failures in stepped campaigns.
func New(details types.HarnessDetails, m *monkey.Monkey, l *limiter.Limiter, recorder *events.Recorder) *Runner {
	if details.TickInterval == 0 {
		details.TickInterval = time.Second
	}
	if details.ChaosProbability == 0 {
		details.ChaosProbability = 0.3
	}
	if details.ResultsDir == "" {
		details.ResultsDir = "data/stress_test_results"
	}
	if recorder == nil {
		recorder = events.NewRecorder()
	}
	return &Runner{
		details:  details,
		limiter:  l,
		monkey:   m,
		recorder: recorder,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		active:   map[string]context.CancelFunc{},
		results:  map[string]*result.RunResult{},
	}
}

// newTestID builds a campaign id with a short unique suffix.
func (r *Runner) newTestID(testType string) string {
	return fmt.Sprintf("%s_%s", testType, uuid.New().String()[:8])
}

// register records a new run and returns the context the campaign must
// honor.
func (r *Runner) register(ctx context.Context, run *result.RunResult) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.active[run.TestID] = cancel
	r.results[run.TestID] = run
	r.order = append(r.order, run.TestID)
	r.mu.Unlock()
	return ctx
}

// deregister drops the cancel hook of a finished run; the result stays.
func (r *Runner) deregister(testID string) {
	r.mu.Lock()
	if cancel, ok := r.active[testID]; ok {
		cancel()
		delete(r.active, testID)
	}
	r.mu.Unlock()
}

// mutate runs fn against a run record under the registry lock so in-flight
// campaigns and result queries never observe each other mid-write.
func (r *Runner) mutate(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// GetTestResults returns a copy of the run with the given id, or a summary
// of every run when id is empty. The copy is safe to read while the
// campaign is still running.
func (r *Runner) GetTestResults(testID string) (*result.RunResult, result.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if testID != "" {
		run, ok := r.results[testID]
		if !ok {
			return nil, result.Summary{}, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeNotFoundFault,
				Phase:     types.Summary,
				Target:    testID,
				Reason:    "no such test",
			}
		}
		return run.Clone(), result.Summary{}, nil
	}

	runs := make([]*result.RunResult, 0, len(r.order))
	for _, id := range r.order {
		runs = append(runs, r.results[id])
	}
	return nil, result.Summarize(runs), nil
}

// StopAllTests cancels every active campaign and releases every resource
// limit. Campaigns observe the cancellation within one tick and finish
// with a stopped status.
func (r *Runner) StopAllTests() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.active))
	for _, cancel := range r.active {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	log.Infof("[Stopped]: Stopping %d active campaigns", len(cancels))
	for _, cancel := range cancels {
		cancel()
	}
	r.limiter.ReleaseAll()
}

// finalize computes the verdict, persists the artifact and logs the
// outcome. The run status must already be set for stopped campaigns;
// otherwise it becomes completed or failed from the verdict.
func (r *Runner) finalize(run *result.RunResult) {
	r.mu.Lock()
	run.EndTime = time.Now()
	run.ActualDuration = run.EndTime.Sub(run.StartTime).Seconds()

	successes := 0
	for _, failure := range run.Failures {
		if failure.Success {
			successes++
			run.RecoveryTimes = append(run.RecoveryTimes, failure.RecoveryTime)
		}
	}
	if len(run.Failures) == 0 {
		run.RecoveryRate = 1.0
	} else {
		run.RecoveryRate = float64(successes) / float64(len(run.Failures))
	}
	if len(run.RecoveryTimes) > 0 {
		var sum float64
		for _, rt := range run.RecoveryTimes {
			sum += rt
		}
		run.AvgRecoveryTime = sum / float64(len(run.RecoveryTimes))
	}

	if len(run.Steps) > 0 {
		passed := 0
		for _, step := range run.Steps {
			if step.Success {
				passed++
			}
		}
		run.SuccessRate = float64(passed) / float64(len(run.Steps))
	} else {
		run.SuccessRate = run.RecoveryRate
	}

	run.Success = run.SuccessRate >= successThreshold && run.RecoveryRate >= successThreshold
	if run.Status != types.StatusStopped {
		if run.Success {
			run.Status = types.StatusCompleted
		} else {
			run.Status = types.StatusFailed
		}
	}
	r.mu.Unlock()

	if path, err := result.Save(r.details.ResultsDir, run); err != nil {
		log.Errorf("[Summary]: Failed to persist %v: %v", run.TestID, err)
	} else {
		log.Infof("[Summary]: Run artifact written to %v", path)
	}

	if run.Success {
		log.Infof("[Summary]: %v finished, success rate %.2f, recovery rate %.2f %v",
			run.TestID, run.SuccessRate, run.RecoveryRate, emoji.Sprint(":smile:"))
	} else {
		log.Infof("[Summary]: %v finished, success rate %.2f, recovery rate %.2f %v",
			run.TestID, run.SuccessRate, run.RecoveryRate, emoji.Sprint(":cry:"))
	}

	eventsDetails := types.EventDetails{}
	events.SetEventAttributes(&eventsDetails, types.Summary, "Normal",
		fmt.Sprintf("%v finished with status %v", run.TestID, run.Status), run.TestID)
	r.recorder.GenerateEvents(&eventsDetails)
}
