package types

import (
	"time"
)

const (
	// ChaosInject marks the main fault injection stage
	ChaosInject string = "ChaosInject"
	// Recovery marks the restoration and verification stage after a fault
	Recovery string = "Recovery"
	// Summary final stage of a campaign, the verdict is computed
	Summary string = "Summary"
	// Stopped marks an externally aborted campaign
	Stopped string = "Stopped"
)

// FailureScenario is a named category of injected failure. The catalog is
// closed; Scenarios lists every member.
type FailureScenario string

const (
	MemoryOverload FailureScenario = "memory-overload"
	NetworkJitter  FailureScenario = "network-jitter"
	GPUFailure     FailureScenario = "gpu-failure"
	DiskLatency    FailureScenario = "disk-latency"
	CPUThrottling  FailureScenario = "cpu-throttling"
	ProcessKill    FailureScenario = "process-kill"
	FileCorruption FailureScenario = "file-corruption"
)

// Scenarios is the immutable failure catalog, in trigger-dispatch order.
func Scenarios() []FailureScenario {
	return []FailureScenario{
		MemoryOverload,
		NetworkJitter,
		GPUFailure,
		DiskLatency,
		CPUThrottling,
		ProcessKill,
		FileCorruption,
	}
}

// IsValidScenario reports whether s belongs to the catalog.
func IsValidScenario(s FailureScenario) bool {
	for _, known := range Scenarios() {
		if s == known {
			return true
		}
	}
	return false
}

// ResourceKind names the resource an active limit consumes.
type ResourceKind string

const (
	ResourceMemory ResourceKind = "memory"
	ResourceCPU    ResourceKind = "cpu"
	ResourceIO     ResourceKind = "io"
)

// RunStatus is the one-way status of a StressTestRun:
// created -> running -> {completed, failed, stopped}
type RunStatus string

const (
	StatusCreated   RunStatus = "created"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusStopped   RunStatus = "stopped"
)

// RecoveryRecord is written exactly once per scenario trigger and never
// mutated afterwards. RecoveryTime is seconds, -1 meaning not recovered.
type RecoveryRecord struct {
	Scenario     FailureScenario `json:"scenario"`
	TriggerTime  time.Time       `json:"trigger_time"`
	RecoveryTime float64         `json:"recovery_time"`
	Success      bool            `json:"success"`
}

// RecoveryStats aggregates recovery outcomes across triggers. Owned by
// ChaosMonkey, updated under a single mutex, exactly once per trigger.
type RecoveryStats struct {
	TotalFailures        int       `json:"total_failures"`
	SuccessfulRecoveries int       `json:"successful_recoveries"`
	FailedRecoveries     int       `json:"failed_recoveries"`
	RecoveryTimes        []float64 `json:"recovery_times"`
}

// EventDetails is for collecting all the events-related details
type EventDetails struct {
	Message  string
	Reason   string
	Resource string
	Type     string
	Time     time.Time
}

// HarnessDetails is for collecting all the global campaign variables
type HarnessDetails struct {
	InstanceID       string
	ResultsDir       string
	ScratchDir       string
	TickInterval     time.Duration
	ChaosProbability float64
	GracePeriod      time.Duration
	Timeout          int
	Delay            int
	OTELEndpoint     string
}
