// Package result defines the persisted run artifact and its JSON CRUD.
package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

// ErrorRecord captures a non-fatal error observed during a run, with the
// operation that produced it. Injected marks errors the harness delivered
// on purpose, as opposed to internal failures.
type ErrorRecord struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation,omitempty"`
	Error     string    `json:"error"`
	Injected  bool      `json:"injected,omitempty"`
}

// StepResult is the outcome of one limit step inside a stepped campaign.
type StepResult struct {
	StepID          string                  `json:"step_id"`
	Limit           float64                 `json:"limit"`
	Duration        float64                 `json:"duration"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         time.Time               `json:"end_time"`
	Samples         []telemetry.SystemStats `json:"samples"`
	Errors          []ErrorRecord           `json:"errors"`
	InducedFailures []types.RecoveryRecord  `json:"induced_failures,omitempty"`
	Success         bool                    `json:"success"`
	CriticalError   bool                    `json:"critical_error"`
	ActualDuration  float64                 `json:"actual_duration"`
}

// FailureRecord is one scenario trigger inside a chaos campaign, with the
// telemetry snapshots bracketing it.
type FailureRecord struct {
	Time         time.Time             `json:"time"`
	Scenario     types.FailureScenario `json:"scenario"`
	RecoveryTime float64               `json:"recovery_time"`
	PreStats     telemetry.SystemStats `json:"pre_stats"`
	PostStats    telemetry.SystemStats `json:"post_stats"`
	Success      bool                  `json:"success"`
}

// RunResult is the terminal record of one campaign, registered in memory
// and persisted as a JSON artifact.
type RunResult struct {
	TestID          string                 `json:"test_id"`
	TestType        string                 `json:"test_type"`
	Params          map[string]interface{} `json:"params,omitempty"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	Duration        float64                `json:"duration"`
	ActualDuration  float64                `json:"actual_duration"`
	Steps           []StepResult           `json:"steps,omitempty"`
	Failures        []FailureRecord        `json:"failures,omitempty"`
	Errors          []ErrorRecord          `json:"errors,omitempty"`
	RecoveryTimes   []float64              `json:"recovery_times,omitempty"`
	RecoveryRate    float64                `json:"recovery_rate"`
	AvgRecoveryTime float64                `json:"avg_recovery_time"`
	SuccessRate     float64                `json:"success_rate"`
	Success         bool                   `json:"success"`
	Status          types.RunStatus        `json:"status"`
}

// Clone returns a deep copy of the run, safe to read while the campaign
// goroutine keeps appending to the original.
func (r *RunResult) Clone() *RunResult {
	out := *r
	if r.Params != nil {
		out.Params = make(map[string]interface{}, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	if len(r.Steps) > 0 {
		out.Steps = make([]StepResult, len(r.Steps))
		for i, step := range r.Steps {
			out.Steps[i] = step
			out.Steps[i].Samples = append([]telemetry.SystemStats(nil), step.Samples...)
			out.Steps[i].Errors = append([]ErrorRecord(nil), step.Errors...)
			out.Steps[i].InducedFailures = append([]types.RecoveryRecord(nil), step.InducedFailures...)
		}
	}
	out.Failures = append([]FailureRecord(nil), r.Failures...)
	out.Errors = append([]ErrorRecord(nil), r.Errors...)
	out.RecoveryTimes = append([]float64(nil), r.RecoveryTimes...)
	return &out
}

// RunDigest is the per-run line of a Summary.
type RunDigest struct {
	TestID    string    `json:"test_id"`
	TestType  string    `json:"test_type"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"`
	Success   bool      `json:"success"`
}

// Summary aggregates every registered run.
type Summary struct {
	TotalTests     int         `json:"total_tests"`
	SucceededTests int         `json:"succeeded_tests"`
	FailedTests    int         `json:"failed_tests"`
	Tests          []RunDigest `json:"tests"`
}

// Save writes the run artifact as indented JSON under resultsDir and
// returns the file path. The caller decides whether a failure is fatal; the
// runner only logs it.
func Save(resultsDir string, run *RunResult) (string, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", cerrors.ResultCRUD{Phase: types.Summary, Target: run.TestID, Operation: "create directory for", Reason: err.Error()}
	}

	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", cerrors.ResultCRUD{Phase: types.Summary, Target: run.TestID, Operation: "marshal", Reason: err.Error()}
	}

	filename := run.TestID + "_" + time.Now().Format("20060102_150405") + ".json"
	path := filepath.Join(resultsDir, filename)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", cerrors.ResultCRUD{Phase: types.Summary, Target: run.TestID, Operation: "write", Reason: err.Error()}
	}
	return path, nil
}

// Load reads a previously persisted run artifact.
func Load(path string) (*RunResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.ResultCRUD{Target: path, Operation: "read", Reason: err.Error()}
	}
	run := &RunResult{}
	if err := json.Unmarshal(raw, run); err != nil {
		return nil, cerrors.ResultCRUD{Target: path, Operation: "unmarshal", Reason: err.Error()}
	}
	return run, nil
}

// Summarize reduces a set of runs to a Summary, preserving the given order.
func Summarize(runs []*RunResult) Summary {
	summary := Summary{Tests: make([]RunDigest, 0, len(runs))}
	for _, run := range runs {
		summary.TotalTests++
		if run.Success {
			summary.SucceededTests++
		} else {
			summary.FailedTests++
		}
		summary.Tests = append(summary.Tests, RunDigest{
			TestID:    run.TestID,
			TestType:  run.TestType,
			StartTime: run.StartTime,
			Duration:  run.ActualDuration,
			Success:   run.Success,
		})
	}
	return summary
}
