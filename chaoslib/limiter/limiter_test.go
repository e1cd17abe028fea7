package limiter

import (
	"context"
	"math/rand"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

func TestClampFraction(t *testing.T) {
	testCases := []struct {
		name     string
		fraction float64
		want     float64
	}{
		{
			name:     "in range untouched",
			fraction: 0.5,
			want:     0.5,
		},
		{
			name:     "below range clamps to floor",
			fraction: 0.01,
			want:     0.1,
		},
		{
			name:     "negative clamps to floor",
			fraction: -3,
			want:     0.1,
		},
		{
			name:     "above range clamps to ceiling",
			fraction: 1.5,
			want:     1.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, clampFraction(types.ResourceCPU, tc.fraction))
		})
	}
}

func TestLimitCPULifecycle(t *testing.T) {
	l := New(t.TempDir())
	h, err := l.LimitCPU(0.3)
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.Workers(), 1)

	census := l.ActiveWorkers()
	assert.Equal(t, h.Workers(), census[types.ResourceCPU])

	start := time.Now()
	h.Release()
	assert.Less(t, time.Since(start), 2*time.Second, "release must drain within the grace period")
	assert.Empty(t, l.ActiveWorkers())

	// Idempotent.
	h.Release()
	assert.Empty(t, l.ActiveWorkers())
}

func TestLimitIOWorkerScaling(t *testing.T) {
	testCases := []struct {
		intensity   float64
		wantWorkers int
	}{
		{intensity: 0.1, wantWorkers: 1},
		{intensity: 0.25, wantWorkers: 1},
		{intensity: 0.5, wantWorkers: 2},
		{intensity: 1.0, wantWorkers: 4},
		{intensity: 7.0, wantWorkers: 4},
	}

	for _, tc := range testCases {
		l := New(t.TempDir())
		h, err := l.LimitIO(tc.intensity)
		require.NoError(t, err)
		assert.Equal(t, tc.wantWorkers, h.Workers(), "intensity %.2f", tc.intensity)
		h.Release()
	}
}

func TestLimitIOReleaseDrains(t *testing.T) {
	l := New(t.TempDir())
	h, err := l.LimitIO(0.2)
	require.NoError(t, err)

	// Let the workers run a few cycles before stopping them.
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	h.Release()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, l.ActiveWorkers())
}

func TestIOWorkerWritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "io_load_0.dat")
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, 4096)
	back := make([]byte, 4096)

	// Two cycles through the same file, each with a fresh random buffer.
	for cycle := 0; cycle < 2; cycle++ {
		rng.Read(buf)
		require.NoError(t, writeReadOnce(path, buf, back))
		assert.Equal(t, buf, back, "cycle %d must read back what it wrote", cycle)
	}
}

func TestLimitCPUWorkerCount(t *testing.T) {
	cores := runtime.NumCPU()
	testCases := []struct {
		fraction float64
		want     int
	}{
		{fraction: 0.5, want: clampWorkers(int(float64(cores) * 0.5), cores)},
		{fraction: 1.0, want: 1},
		{fraction: 0.1, want: clampWorkers(int(float64(cores) * 0.9), cores)},
	}

	for _, tc := range testCases {
		l := New(t.TempDir())
		h, err := l.LimitCPU(tc.fraction)
		require.NoError(t, err)
		assert.Equal(t, tc.want, h.Workers(), "fraction %.2f on %d cores", tc.fraction, cores)
		h.Release()
	}
}

func clampWorkers(workers, cores int) int {
	if workers < 1 {
		return 1
	}
	if workers > cores {
		return cores
	}
	return workers
}

func TestLimitMemoryLifecycle(t *testing.T) {
	available, total, err := telemetry.AvailableMemory(context.Background())
	require.NoError(t, err)
	ratio := float64(available) / float64(total)
	if ratio < 0.15 {
		t.Skipf("system memory already pressured (%.0f%% available)", ratio*100)
	}

	// Target the current availability so the worker settles after at most a
	// handful of blocks.
	l := New(t.TempDir())
	h, err := l.LimitMemory(ratio)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Workers())
	assert.Equal(t, 1, l.ActiveWorkers()[types.ResourceMemory])

	h.Release()
	assert.Empty(t, l.ActiveWorkers())
}

func TestReleaseMemoryRestoresAvailability(t *testing.T) {
	preAvailable, total, err := telemetry.AvailableMemory(context.Background())
	require.NoError(t, err)
	ratio := float64(preAvailable) / float64(total)
	if ratio < 0.2 {
		t.Skipf("system memory already pressured (%.0f%% available)", ratio*100)
	}

	// Aim one percent of total below the current availability so the worker
	// commits a handful of real blocks.
	target := ratio - 0.01
	l := New(t.TempDir())
	h, err := l.LimitMemory(target)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		available, _, err := telemetry.AvailableMemory(context.Background())
		if err != nil {
			return false
		}
		return float64(available)/float64(total) <= target+0.005
	}, 10*time.Second, 50*time.Millisecond, "limit never reached its target")

	h.Release()
	assert.Eventually(t, func() bool {
		available, _, err := telemetry.AvailableMemory(context.Background())
		if err != nil {
			return false
		}
		return float64(available) >= 0.95*float64(preAvailable)
	}, 10*time.Second, 50*time.Millisecond, "release must restore at least 95 percent of pre-limit availability")
}

func TestInstallReplacesActiveLimit(t *testing.T) {
	l := New(t.TempDir())
	h1, err := l.LimitIO(0.2)
	require.NoError(t, err)
	h2, err := l.LimitIO(0.2)
	require.NoError(t, err)

	// The first handle was released by the replacement.
	assert.Equal(t, h2.Workers(), l.ActiveWorkers()[types.ResourceIO])
	h1.Release()
	assert.Equal(t, h2.Workers(), l.ActiveWorkers()[types.ResourceIO])
	h2.Release()
	assert.Empty(t, l.ActiveWorkers())
}

func TestReleaseAll(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.LimitCPU(0.2)
	require.NoError(t, err)
	_, err = l.LimitIO(0.2)
	require.NoError(t, err)
	require.Len(t, l.ActiveWorkers(), 2)

	l.ReleaseAll()
	assert.Empty(t, l.ActiveWorkers())
}

func TestReleaseByKind(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.LimitIO(0.2)
	require.NoError(t, err)

	l.ReleaseIO()
	assert.Empty(t, l.ActiveWorkers())

	// Releasing an absent kind is a no-op.
	l.ReleaseMemory()
	l.ReleaseCPU()
}
