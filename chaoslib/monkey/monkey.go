// Package monkey triggers resource failure scenarios against the running
// process and verifies the system recovers from each one. A Monkey owns its
// recovery bookkeeping: one scenario runs at a time, and every trigger
// produces exactly one recovery record, whether the scenario succeeds,
// errors or panics.
package monkey

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/kyokomi/emoji"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/events"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/probe/comparator"
	"github.com/stressforge/harness-go/pkg/simenv"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
	"github.com/stressforge/harness-go/pkg/utils/retry"
)

// MemoryOptions tunes the memory-overload scenario.
type MemoryOptions struct {
	// BlockSize is the allocation unit; every megabyte of each block is
	// touched so the pages are actually committed.
	BlockSize int
	// TargetRatio is the memory usage the scenario drives towards.
	TargetRatio float64
	// SafetyCeiling aborts allocation before the host starts swapping or
	// the OOM killer wakes up.
	SafetyCeiling float64
	// MaxBlocks bounds the allocation regardless of observed usage.
	MaxBlocks int
}

// DiskOptions tunes the disk-latency scenario.
type DiskOptions struct {
	FileSize   int64
	FileCount  int
	ReadCycles int
}

// NetworkOptions tunes the network-jitter scenario.
type NetworkOptions struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Pulses   int
}

// ProcessOptions tunes the process-kill scenario.
type ProcessOptions struct {
	Workers      int
	RestartDelay time.Duration
}

// Options collects the tunables for every scenario. Zero values are filled
// with production defaults by New.
type Options struct {
	// ScratchDir receives the transient files of the disk and corruption
	// scenarios.
	ScratchDir string
	// ObservationWindow is how long a scenario holds its induced pressure
	// before releasing it.
	ObservationWindow time.Duration
	// RecoveryFraction is the share of pre-fault available memory that must
	// be available again for the system to count as recovered.
	RecoveryFraction float64
	// RecoveryTimeout bounds the post-scenario recovery wait.
	RecoveryTimeout time.Duration
	// CPUWorkers overrides the cpu-throttling worker count; zero means one
	// fewer than the core count, minimum one.
	CPUWorkers int

	Memory  MemoryOptions
	Disk    DiskOptions
	Network NetworkOptions
	Process ProcessOptions
}

func defaultOptions() Options {
	return Options{
		ScratchDir:        "data/stress_test_io",
		ObservationWindow: 5 * time.Second,
		RecoveryFraction:  0.5,
		RecoveryTimeout:   30 * time.Second,
		Memory: MemoryOptions{
			BlockSize:     10 * 1024 * 1024,
			TargetRatio:   0.9,
			SafetyCeiling: 0.95,
			MaxBlocks:     1024,
		},
		Disk: DiskOptions{
			FileSize:   50 * 1024 * 1024,
			FileCount:  5,
			ReadCycles: 20,
		},
		Network: NetworkOptions{
			MinDelay: 50 * time.Millisecond,
			MaxDelay: 500 * time.Millisecond,
			Pulses:   10,
		},
		Process: ProcessOptions{
			Workers:      3,
			RestartDelay: 500 * time.Millisecond,
		},
	}
}

type scenarioFunc func(ctx context.Context) error

// Monkey runs failure scenarios one at a time and keeps their recovery
// history.
type Monkey struct {
	mu       sync.Mutex
	opts     Options
	rng      *rand.Rand
	recorder *events.Recorder
	facade   *simenv.Facade

	stats   types.RecoveryStats
	records []types.RecoveryRecord

	scenarios map[types.FailureScenario]scenarioFunc
}

// New builds a Monkey with production defaults overlaid by opts; zero
// fields in opts keep their default.
func New(opts Options, recorder *events.Recorder) *Monkey {
	def := defaultOptions()
	if opts.ScratchDir == "" {
		opts.ScratchDir = def.ScratchDir
	}
	if opts.ObservationWindow == 0 {
		opts.ObservationWindow = def.ObservationWindow
	}
	if opts.RecoveryFraction == 0 {
		opts.RecoveryFraction = def.RecoveryFraction
	}
	if opts.RecoveryTimeout == 0 {
		opts.RecoveryTimeout = def.RecoveryTimeout
	}
	if opts.Memory.BlockSize == 0 {
		opts.Memory.BlockSize = def.Memory.BlockSize
	}
	if opts.Memory.TargetRatio == 0 {
		opts.Memory.TargetRatio = def.Memory.TargetRatio
	}
	if opts.Memory.SafetyCeiling == 0 {
		opts.Memory.SafetyCeiling = def.Memory.SafetyCeiling
	}
	if opts.Memory.MaxBlocks == 0 {
		opts.Memory.MaxBlocks = def.Memory.MaxBlocks
	}
	if opts.Disk.FileSize == 0 {
		opts.Disk.FileSize = def.Disk.FileSize
	}
	if opts.Disk.FileCount == 0 {
		opts.Disk.FileCount = def.Disk.FileCount
	}
	if opts.Disk.ReadCycles == 0 {
		opts.Disk.ReadCycles = def.Disk.ReadCycles
	}
	if opts.Network.MinDelay == 0 {
		opts.Network.MinDelay = def.Network.MinDelay
	}
	if opts.Network.MaxDelay == 0 {
		opts.Network.MaxDelay = def.Network.MaxDelay
	}
	if opts.Network.Pulses == 0 {
		opts.Network.Pulses = def.Network.Pulses
	}
	if opts.Process.Workers == 0 {
		opts.Process.Workers = def.Process.Workers
	}
	if opts.Process.RestartDelay == 0 {
		opts.Process.RestartDelay = def.Process.RestartDelay
	}
	if recorder == nil {
		recorder = events.NewRecorder()
	}

	m := &Monkey{
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		recorder: recorder,
		facade:   simenv.New(),
	}
	m.scenarios = map[types.FailureScenario]scenarioFunc{
		types.MemoryOverload: m.memoryOverload,
		types.NetworkJitter:  m.networkJitter,
		types.GPUFailure:     m.gpuFailure,
		types.DiskLatency:    m.diskLatency,
		types.CPUThrottling:  m.cpuThrottling,
		types.ProcessKill:    m.processKill,
		types.FileCorruption: m.fileCorruption,
	}
	return m
}

// RandomScenario picks one of the supported scenarios uniformly.
func (m *Monkey) RandomScenario() types.FailureScenario {
	catalog := types.Scenarios()
	m.mu.Lock()
	defer m.mu.Unlock()
	return catalog[m.rng.Intn(len(catalog))]
}

// Trigger runs the given scenario and blocks until the system has recovered
// or the recovery window expires. It returns the recovery time in seconds.
// Exactly one recovery record is written per call, panics included.
func (m *Monkey) Trigger(ctx context.Context, scenario types.FailureScenario) (recoveryTime float64, err error) {
	run, ok := m.scenarios[scenario]
	if !ok {
		return 0, cerrors.Generic{
			Phase:  types.ChaosInject,
			Reason: fmt.Sprintf("unknown failure scenario %q", scenario),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := telemetry.StartTracing(ctx, "inject "+string(scenario))
	defer span.End()

	log.Infof("[Inject]: Triggering %v scenario", scenario)
	telemetry.InjectedFaultsTotal.WithLabelValues(string(scenario)).Inc()

	eventsDetails := types.EventDetails{}
	events.SetEventAttributes(&eventsDetails, types.ChaosInject, "Warning",
		fmt.Sprintf("injecting %v", scenario), string(scenario))
	m.recorder.GenerateEvents(&eventsDetails)

	preAvailable, _, statErr := telemetry.AvailableMemory(ctx)
	if statErr != nil {
		log.Warnf("[Inject]: Could not snapshot available memory: %v", statErr)
	}

	start := time.Now()
	success := false
	defer func() {
		if r := recover(); r != nil {
			err = cerrors.Generic{
				Phase:  types.ChaosInject,
				Reason: fmt.Sprintf("%v scenario panicked: %v", scenario, r),
			}
			success = false
		}
		if !success {
			recoveryTime = -1
		}
		m.finalizeLocked(scenario, start, recoveryTime, success)
	}()

	if err = run(ctx); err != nil {
		return 0, err
	}
	if err = m.awaitRecoveryLocked(ctx, preAvailable); err != nil {
		return 0, err
	}

	recoveryTime = time.Since(start).Seconds()
	success = true
	return recoveryTime, nil
}

// awaitRecoveryLocked polls available memory until it reaches the recovery
// fraction of the pre-fault figure or the recovery window expires. A zero
// pre-fault snapshot (stat failure) recovers immediately.
func (m *Monkey) awaitRecoveryLocked(ctx context.Context, preAvailable uint64) error {
	if preAvailable == 0 {
		return nil
	}
	threshold := uint64(m.opts.RecoveryFraction * float64(preAvailable))
	delay := 250 * time.Millisecond
	attempts := uint(m.opts.RecoveryTimeout/delay) + 1

	return retry.Times(attempts).
		Wait(delay).
		Try(func(attempt uint) error {
			if err := ctx.Err(); err != nil {
				return cerrors.Generic{Phase: types.Recovery, Reason: err.Error()}
			}
			available, _, err := telemetry.AvailableMemory(ctx)
			if err != nil {
				return cerrors.Generic{Phase: types.Recovery, Reason: err.Error()}
			}
			return comparator.FirstValue(float64(available)).
				SecondValue(float64(threshold)).
				Criteria(">=").
				ProbeName("memory-recovery").
				CompareFloat(cerrors.ErrorTypeResourceExhaustion)
		})
}

// finalizeLocked writes the single recovery record for a trigger and keeps
// the aggregate stats and metrics in step with it.
func (m *Monkey) finalizeLocked(scenario types.FailureScenario, start time.Time, recoveryTime float64, success bool) {
	record := types.RecoveryRecord{
		Scenario:     scenario,
		TriggerTime:  start,
		RecoveryTime: recoveryTime,
		Success:      success,
	}
	m.records = append(m.records, record)
	m.stats.TotalFailures++

	verdict := "failed"
	if success {
		verdict = "recovered"
		m.stats.SuccessfulRecoveries++
		m.stats.RecoveryTimes = append(m.stats.RecoveryTimes, recoveryTime)
		telemetry.RecoverySeconds.WithLabelValues(string(scenario)).Observe(recoveryTime)
		log.Infof("[Recovery]: %v recovered in %.2fs %v", scenario, recoveryTime, emoji.Sprint(":smile:"))
	} else {
		m.stats.FailedRecoveries++
		log.Infof("[Recovery]: %v did not recover %v", scenario, emoji.Sprint(":cry:"))
	}
	telemetry.RecoveriesTotal.WithLabelValues(string(scenario), verdict).Inc()
}

// Stats returns a copy of the aggregate recovery statistics.
func (m *Monkey) Stats() types.RecoveryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.RecoveryTimes = append([]float64(nil), m.stats.RecoveryTimes...)
	return stats
}

// Records returns a copy of every recovery record written so far.
func (m *Monkey) Records() []types.RecoveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.RecoveryRecord(nil), m.records...)
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

// cpuWorkerCount leaves one core for the rest of the process.
func cpuWorkerCount(override int) int {
	if override > 0 {
		return override
	}
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return workers
}
