package runner

import (
	"context"
	"strings"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/result"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
	"github.com/stressforge/harness-go/pkg/utils/stringutils"
)

// ChaosConfig describes a chaos campaign: random failure scenarios fire at
// the failure interval across the run window.
type ChaosConfig struct {
	TestID          string
	Duration        time.Duration
	FailureInterval time.Duration
}

func (c *ChaosConfig) withDefaults() {
	if c.Duration == 0 {
		c.Duration = 60 * time.Second
	}
	if c.FailureInterval == 0 {
		c.FailureInterval = 10 * time.Second
	}
}

// RunChaosTest fires a random failure scenario every failure interval and
// scores the run on the recovery rate.
func (r *Runner) RunChaosTest(ctx context.Context, cfg ChaosConfig) (*result.RunResult, error) {
	cfg.withDefaults()
	if cfg.TestID == "" {
		cfg.TestID = r.newTestID("chaos")
	}

	run := &result.RunResult{
		TestID:   cfg.TestID,
		TestType: "chaos",
		Params: map[string]interface{}{
			"duration":         cfg.Duration.Seconds(),
			"failure_interval": cfg.FailureInterval.Seconds(),
		},
		StartTime: time.Now(),
		Duration:  cfg.Duration.Seconds(),
		Status:    types.StatusCreated,
	}
	ctx = r.register(ctx, run)
	defer r.deregister(run.TestID)

	ctx, span := telemetry.StartTracing(ctx, "chaos campaign")
	defer span.End()

	catalog := make([]string, 0, len(types.Scenarios()))
	for _, s := range types.Scenarios() {
		catalog = append(catalog, string(s))
	}

	r.mutate(func() { run.Status = types.StatusRunning })
	log.InfoWithValues("[Prepare]: Starting chaos campaign", map[string]interface{}{
		"TestID":          run.TestID,
		"Duration":        cfg.Duration,
		"FailureInterval": cfg.FailureInterval,
		"Scenarios":       stringutils.FormatScenarioList(strings.Join(catalog, ",")),
	})

	ticker := time.NewTicker(r.details.TickInterval)
	defer ticker.Stop()
	deadline := time.After(cfg.Duration)
	lastFailure := run.StartTime

	for done := false; !done; {
		select {
		case <-ctx.Done():
			r.mutate(func() { run.Status = types.StatusStopped })
			done = true
		case <-deadline:
			done = true
		case <-ticker.C:
			if time.Since(lastFailure) < cfg.FailureInterval {
				continue
			}
			lastFailure = time.Now()
			record := r.triggerFailure(ctx, run)
			r.mutate(func() { run.Failures = append(run.Failures, record) })
		}
	}

	r.finalize(run)
	return run, nil
}

// triggerFailure runs one random scenario with telemetry snapshots taken
// before and after it.
func (r *Runner) triggerFailure(ctx context.Context, run *result.RunResult) result.FailureRecord {
	scenario := r.monkey.RandomScenario()
	record := result.FailureRecord{
		Time:     time.Now(),
		Scenario: scenario,
		PreStats: telemetry.CollectSystemStats(ctx),
	}

	recoveryTime, err := r.monkey.Trigger(ctx, scenario)
	record.PostStats = telemetry.CollectSystemStats(ctx)
	record.RecoveryTime = recoveryTime
	record.Success = err == nil
	if err != nil {
		rootCause, errorCode := cerrors.GetRootCauseAndErrorCode(err)
		log.ErrorWithValues("[ChaosInject]: Scenario failed", map[string]interface{}{
			"Scenario":  scenario,
			"RootCause": rootCause,
			"ErrorCode": errorCode,
		})
		r.mutate(func() {
			run.Errors = append(run.Errors, result.ErrorRecord{
				Time:      time.Now(),
				Operation: string(scenario),
				Error:     err.Error(),
				Injected:  cerrors.IsInjectedFault(err),
			})
		})
	}
	return record
}
