package monkey

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressforge/harness-go/pkg/types"
)

// The test binary doubles as the worker target the process-kill scenario
// re-execs.
func TestMain(m *testing.M) {
	MaybeRunWorker()
	os.Exit(m.Run())
}

func quickOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		ScratchDir:        t.TempDir(),
		ObservationWindow: 30 * time.Millisecond,
		RecoveryTimeout:   5 * time.Second,
		CPUWorkers:        1,
		Memory: MemoryOptions{
			BlockSize:     1 << 20,
			TargetRatio:   0.99,
			SafetyCeiling: 0.995,
			MaxBlocks:     2,
		},
		Disk: DiskOptions{
			FileSize:   1 << 20,
			FileCount:  2,
			ReadCycles: 3,
		},
		Network: NetworkOptions{
			MinDelay: time.Millisecond,
			MaxDelay: 3 * time.Millisecond,
			Pulses:   2,
		},
		Process: ProcessOptions{
			Workers:      2,
			RestartDelay: 20 * time.Millisecond,
		},
	}
}

func TestTriggerUnknownScenario(t *testing.T) {
	m := New(quickOptions(t), nil)
	_, err := m.Trigger(context.Background(), types.FailureScenario("meteor-strike"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown failure scenario")
	assert.Empty(t, m.Records())
}

func TestTriggerScenarios(t *testing.T) {
	testCases := []struct {
		scenario types.FailureScenario
	}{
		{scenario: types.MemoryOverload},
		{scenario: types.NetworkJitter},
		{scenario: types.GPUFailure},
		{scenario: types.DiskLatency},
		{scenario: types.CPUThrottling},
		{scenario: types.ProcessKill},
		{scenario: types.FileCorruption},
	}

	for _, tc := range testCases {
		t.Run(string(tc.scenario), func(t *testing.T) {
			m := New(quickOptions(t), nil)
			recoveryTime, err := m.Trigger(context.Background(), tc.scenario)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, recoveryTime, 0.0)

			records := m.Records()
			require.Len(t, records, 1)
			assert.Equal(t, tc.scenario, records[0].Scenario)
			assert.True(t, records[0].Success)
			assert.Equal(t, recoveryTime, records[0].RecoveryTime)

			stats := m.Stats()
			assert.Equal(t, 1, stats.TotalFailures)
			assert.Equal(t, 1, stats.SuccessfulRecoveries)
			assert.Zero(t, stats.FailedRecoveries)
		})
	}
}

func TestTriggerWritesExactlyOneRecordPerCall(t *testing.T) {
	m := New(quickOptions(t), nil)
	for i := 0; i < 3; i++ {
		_, err := m.Trigger(context.Background(), types.NetworkJitter)
		require.NoError(t, err)
	}
	assert.Len(t, m.Records(), 3)
	assert.Equal(t, 3, m.Stats().TotalFailures)
}

func TestTriggerRecoversFromPanic(t *testing.T) {
	m := New(quickOptions(t), nil)
	m.scenarios[types.GPUFailure] = func(ctx context.Context) error {
		panic("scenario blew up")
	}

	recoveryTime, err := m.Trigger(context.Background(), types.GPUFailure)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, -1.0, recoveryTime)

	records := m.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, -1.0, records[0].RecoveryTime)

	stats := m.Stats()
	assert.Equal(t, 1, stats.TotalFailures)
	assert.Equal(t, 1, stats.FailedRecoveries)
	assert.Empty(t, stats.RecoveryTimes)

	// The monkey stays usable after a panic.
	m.scenarios[types.GPUFailure] = func(ctx context.Context) error { return nil }
	_, err = m.Trigger(context.Background(), types.GPUFailure)
	assert.NoError(t, err)
}

func TestTriggerHonorsCancellation(t *testing.T) {
	opts := quickOptions(t)
	opts.ObservationWindow = 10 * time.Second
	m := New(opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Trigger(ctx, types.GPUFailure)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	records := m.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestProcessKillUsesRealWorkerProcesses(t *testing.T) {
	w, err := spawnWorker(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w.cmd.Process)
	assert.Greater(t, w.cmd.Process.Pid, 0)
	assert.NotEqual(t, os.Getpid(), w.cmd.Process.Pid, "the worker must be a separate OS process")

	// Closing stdin is the orderly exit signal; a clean exit reports no
	// error, and stopping twice is a no-op.
	require.NoError(t, w.stop())
	require.NoError(t, w.stop())
}

func TestProcessKillReplacesVictim(t *testing.T) {
	m := New(quickOptions(t), nil)
	recoveryTime, err := m.Trigger(context.Background(), types.ProcessKill)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, recoveryTime, 0.0)

	records := m.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
}

func TestRandomScenarioIsValid(t *testing.T) {
	m := New(quickOptions(t), nil)
	seen := map[types.FailureScenario]bool{}
	for i := 0; i < 200; i++ {
		s := m.RandomScenario()
		require.True(t, types.IsValidScenario(s))
		seen[s] = true
	}
	// 200 uniform draws over 7 scenarios should hit most of the catalog.
	assert.Greater(t, len(seen), 3)
}

func TestStatsReturnsCopy(t *testing.T) {
	m := New(quickOptions(t), nil)
	_, err := m.Trigger(context.Background(), types.NetworkJitter)
	require.NoError(t, err)

	stats := m.Stats()
	require.Len(t, stats.RecoveryTimes, 1)
	stats.RecoveryTimes[0] = -999
	assert.NotEqual(t, -999.0, m.Stats().RecoveryTimes[0])
}

func TestCPUWorkerCount(t *testing.T) {
	assert.Equal(t, 4, cpuWorkerCount(4))
	assert.GreaterOrEqual(t, cpuWorkerCount(0), 1)
}
