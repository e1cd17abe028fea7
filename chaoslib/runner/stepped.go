package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/stressforge/harness-go/chaoslib/limiter"
	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/math"
	"github.com/stressforge/harness-go/pkg/result"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

// SteppedConfig describes a stepped resource campaign: the limit walks from
// LimitStart to LimitEnd across Steps equal slices of Duration.
type SteppedConfig struct {
	TestID     string
	Duration   time.Duration
	LimitStart float64
	LimitEnd   float64
	Steps      int
}

func (c *SteppedConfig) withDefaults() {
	if c.Duration == 0 {
		c.Duration = 60 * time.Second
	}
	if c.LimitStart == 0 {
		c.LimitStart = 0.3
	}
	if c.LimitEnd == 0 {
		c.LimitEnd = 0.9
	}
	if c.Steps <= 0 {
		c.Steps = 5
	}
}

// RunCPUStressTest walks the cpu limit through the configured steps.
func (r *Runner) RunCPUStressTest(ctx context.Context, cfg SteppedConfig) (*result.RunResult, error) {
	return r.runStepped(ctx, "cpu", cfg, r.limiter.LimitCPU)
}

// RunMemoryStressTest walks the held memory fraction through the configured
// steps.
func (r *Runner) RunMemoryStressTest(ctx context.Context, cfg SteppedConfig) (*result.RunResult, error) {
	return r.runStepped(ctx, "memory", cfg, r.limiter.LimitMemory)
}

func (r *Runner) runStepped(ctx context.Context, testType string, cfg SteppedConfig, apply func(float64) (*limiter.Handle, error)) (*result.RunResult, error) {
	cfg.withDefaults()
	if cfg.TestID == "" {
		cfg.TestID = r.newTestID(testType)
	}

	run := &result.RunResult{
		TestID:   cfg.TestID,
		TestType: testType,
		Params: map[string]interface{}{
			"duration":    cfg.Duration.Seconds(),
			"limit_start": cfg.LimitStart,
			"limit_end":   cfg.LimitEnd,
			"steps":       cfg.Steps,
		},
		StartTime: time.Now(),
		Duration:  cfg.Duration.Seconds(),
		Status:    types.StatusCreated,
	}
	ctx = r.register(ctx, run)
	defer r.deregister(run.TestID)

	ctx, span := telemetry.StartTracing(ctx, testType+" stress campaign")
	defer span.End()

	r.mutate(func() { run.Status = types.StatusRunning })
	log.InfoWithValues("[Prepare]: Starting stepped campaign", map[string]interface{}{
		"TestID":     run.TestID,
		"TestType":   testType,
		"Duration":   cfg.Duration,
		"LimitStart": cfg.LimitStart,
		"LimitEnd":   cfg.LimitEnd,
		"Steps":      cfg.Steps,
	})

	stepDuration := cfg.Duration / time.Duration(cfg.Steps)
	for i := 0; i < cfg.Steps; i++ {
		if ctx.Err() != nil {
			r.mutate(func() { run.Status = types.StatusStopped })
			break
		}
		limit := math.Interpolate(cfg.LimitStart, cfg.LimitEnd, i, cfg.Steps)
		step := r.runStep(ctx, fmt.Sprintf("step_%d", i+1), limit, stepDuration, apply)
		r.mutate(func() {
			run.Steps = append(run.Steps, step)
			run.Failures = append(run.Failures, collectFailures(step)...)
		})

		if step.CriticalError {
			log.Errorf("[Summary]: %v aborted at %v after a critical error", run.TestID, step.StepID)
			r.finalize(run)
			return run, cerrors.Generic{
				Phase:  types.Summary,
				Reason: fmt.Sprintf("campaign %v aborted at %v", run.TestID, step.StepID),
			}
		}
	}
	if ctx.Err() != nil {
		r.mutate(func() { run.Status = types.StatusStopped })
	}

	r.finalize(run)
	return run, nil
}

// runStep applies one limit slice and samples the system every tick. The
// limit is always released before the step returns, critical errors
// included.
func (r *Runner) runStep(ctx context.Context, stepID string, limit float64, duration time.Duration, apply func(float64) (*limiter.Handle, error)) result.StepResult {
	step := result.StepResult{
		StepID:    stepID,
		Limit:     limit,
		Duration:  duration.Seconds(),
		StartTime: time.Now(),
	}
	log.Infof("[ChaosInject]: %v applying limit %.2f for %v", stepID, limit, duration)

	handle, err := apply(limit)
	if err != nil {
		step.EndTime = time.Now()
		step.CriticalError = true
		step.Errors = append(step.Errors, result.ErrorRecord{
			Time:      time.Now(),
			Operation: "apply limit",
			Error:     err.Error(),
		})
		return step
	}
	defer handle.Release()

	ticker := time.NewTicker(r.details.TickInterval)
	defer ticker.Stop()
	deadline := time.After(duration)

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-deadline:
			done = true
		case <-ticker.C:
			step.Samples = append(step.Samples, telemetry.CollectSystemStats(ctx))
			if r.rollChaos() {
				record := r.induceFailure(ctx, &step)
				step.InducedFailures = append(step.InducedFailures, record)
				if step.CriticalError {
					done = true
				}
			}
		}
	}

	step.EndTime = time.Now()
	step.ActualDuration = step.EndTime.Sub(step.StartTime).Seconds()
	step.Success = !step.CriticalError && len(step.Errors) == 0
	return step
}

func (r *Runner) rollChaos() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.details.ChaosProbability
}

// induceFailure triggers a random scenario inside a step and records the
// outcome. Scenario errors count against the step but only a
// resource-exhaustion error marks it critical and aborts the campaign.
func (r *Runner) induceFailure(ctx context.Context, step *result.StepResult) types.RecoveryRecord {
	scenario := r.monkey.RandomScenario()
	trigger := time.Now()
	recoveryTime, err := r.monkey.Trigger(ctx, scenario)
	if err != nil {
		rootCause, errorCode := cerrors.GetRootCauseAndErrorCode(err)
		log.ErrorWithValues("[ChaosInject]: Scenario failed", map[string]interface{}{
			"Scenario":  scenario,
			"RootCause": rootCause,
			"ErrorCode": errorCode,
		})
		step.Errors = append(step.Errors, result.ErrorRecord{
			Time:      time.Now(),
			Operation: string(scenario),
			Error:     err.Error(),
			Injected:  cerrors.IsInjectedFault(err),
		})
		if cerrors.IsCritical(err) {
			step.CriticalError = true
		}
	}
	return types.RecoveryRecord{
		Scenario:     scenario,
		TriggerTime:  trigger,
		RecoveryTime: recoveryTime,
		Success:      err == nil,
	}
}

// collectFailures lifts a step's induced failures into run-level failure
// records. Stepped campaigns have no pre/post snapshots per failure; the
// step samples carry the telemetry.
func collectFailures(step result.StepResult) []result.FailureRecord {
	failures := make([]result.FailureRecord, 0, len(step.InducedFailures))
	for _, induced := range step.InducedFailures {
		failures = append(failures, result.FailureRecord{
			Time:         induced.TriggerTime,
			Scenario:     induced.Scenario,
			RecoveryTime: induced.RecoveryTime,
			Success:      induced.Success,
		})
	}
	return failures
}
