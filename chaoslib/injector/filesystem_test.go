package injector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/simenv"
)

func TestNotFound(t *testing.T) {
	n := NewNotFound(1.0, "*.json")

	fired, err := n.TryInject(context.Background(), &Context{Path: "data/result.json"})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeNotFoundFault, cerrors.GetErrorType(err))

	fired, err = n.TryInject(context.Background(), &Context{Path: "data/result.txt"})
	assert.False(t, fired)
	assert.NoError(t, err)
}

func TestCorruptionDamage(t *testing.T) {
	testCases := []struct {
		name  string
		mode  string
		input []byte
		check func(t *testing.T, original, damaged []byte)
	}{
		{
			name:  "truncate is strictly shorter and non-empty",
			mode:  CorruptTruncate,
			input: bytes.Repeat([]byte("abcdefgh"), 10),
			check: func(t *testing.T, original, damaged []byte) {
				assert.Less(t, len(damaged), len(original))
				assert.NotEmpty(t, damaged)
			},
		},
		{
			name:  "random bytes keeps length, changes content",
			mode:  CorruptRandomBytes,
			input: bytes.Repeat([]byte("abcdefgh"), 10),
			check: func(t *testing.T, original, damaged []byte) {
				assert.Equal(t, len(original), len(damaged))
				assert.NotEqual(t, original, damaged)
			},
		},
		{
			name:  "header damage keeps length",
			mode:  CorruptHeaderDamage,
			input: bytes.Repeat([]byte("abcdefgh"), 10),
			check: func(t *testing.T, original, damaged []byte) {
				assert.Equal(t, len(original), len(damaged))
				assert.Equal(t, original[64:], damaged[64:])
			},
		},
		{
			name:  "tiny file gets a single flipped byte",
			mode:  CorruptTruncate,
			input: []byte("short"),
			check: func(t *testing.T, original, damaged []byte) {
				assert.Equal(t, len(original), len(damaged))
				diff := 0
				for i := range original {
					if original[i] != damaged[i] {
						diff++
					}
				}
				assert.Equal(t, 1, diff)
			},
		},
		{
			name:  "empty input stays empty",
			mode:  CorruptRandomBytes,
			input: nil,
			check: func(t *testing.T, original, damaged []byte) {
				assert.Empty(t, damaged)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCorruption(1.0, tc.mode)
			original := append([]byte(nil), tc.input...)
			damaged := c.damage(tc.input)
			assert.Equal(t, original, tc.input, "input must not be mutated")
			tc.check(t, original, damaged)
		})
	}
}

func TestCorruptionOnDiskAndRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")
	original := bytes.Repeat([]byte{0xAB, 0xCD}, 100)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	c := NewCorruption(1.0, CorruptRandomBytes)
	fired, err := c.TryInject(context.Background(), &Context{Path: path})
	require.NoError(t, err)
	assert.True(t, fired)

	damaged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, original, damaged)

	assert.Equal(t, 1, c.RestoreAll())
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key: value"), 0o644))

	p := NewPermissionDenied(1.0, time.Hour)
	fired, err := p.TryInject(context.Background(), &Context{Path: path})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypePermissionFault, cerrors.GetErrorType(err))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm())

	// Held paths keep failing without re-rolling the gate.
	p.SetProbability(0)
	fired, err = p.TryInject(context.Background(), &Context{Path: path})
	assert.True(t, fired)
	assert.Error(t, err)

	p.RestoreAll()
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	fired, err = p.TryInject(context.Background(), &Context{Path: path})
	assert.False(t, fired)
	assert.NoError(t, err)
}

func TestDiskSpaceWindow(t *testing.T) {
	facade := simenv.New()
	d := NewDiskSpace(1.0, facade, DiskSpaceException, time.Hour)

	fired, err := d.TryInject(context.Background(), &Context{Path: "data/out.json"})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeOutOfSpaceFault, cerrors.GetErrorType(err))
	assert.True(t, d.Active())

	free, err := facade.FreeSpace("/")
	require.NoError(t, err)
	assert.Zero(t, free)

	// Every write during the window observes the condition.
	d.SetProbability(0)
	fired, err = d.TryInject(context.Background(), &Context{Path: "data/other.json"})
	assert.True(t, fired)
	assert.Error(t, err)

	d.Restore()
	assert.False(t, d.Active())
	fired, err = d.TryInject(context.Background(), &Context{Path: "data/out.json"})
	assert.False(t, fired)
	assert.NoError(t, err)

	free, err = facade.FreeSpace("/")
	require.NoError(t, err)
	assert.NotZero(t, free)
}

func TestDiskSpaceSlowMode(t *testing.T) {
	facade := simenv.New()
	d := NewDiskSpace(1.0, facade, DiskSpaceSlow, time.Hour)
	d.SlowDelay = 30 * time.Millisecond
	defer d.Restore()

	start := time.Now()
	fired, err := d.TryInject(context.Background(), &Context{Path: "data/out.json"})
	assert.True(t, fired)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFileLocked(t *testing.T) {
	f := NewFileLocked(1.0, time.Hour)

	fired, err := f.TryInject(context.Background(), &Context{Path: "data/index.db"})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeLockFault, cerrors.GetErrorType(err))
	assert.True(t, f.Locked("data/index.db"))

	// A different path rolls its own gate.
	f.SetProbability(0)
	fired, err = f.TryInject(context.Background(), &Context{Path: "data/other.db"})
	assert.False(t, fired)
	assert.NoError(t, err)

	// The locked path keeps failing.
	fired, err = f.TryInject(context.Background(), &Context{Path: "data/index.db"})
	assert.True(t, fired)
	assert.Error(t, err)

	f.RestoreAll()
	assert.False(t, f.Locked("data/index.db"))
}

func TestFileLockedHoldsHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	f := NewFileLocked(1.0, time.Hour)
	fired, err := f.TryInject(context.Background(), &Context{Path: path})
	assert.True(t, fired)
	require.Error(t, err)

	// An existing file is held through a real open handle for the lock's
	// lifetime; a path with nothing behind it is tracked without one.
	f.mu.Lock()
	lock := f.locks[path]
	f.mu.Unlock()
	require.NotNil(t, lock)
	assert.NotNil(t, lock.handle)

	fired, err = f.TryInject(context.Background(), &Context{Path: "data/ghost.db"})
	assert.True(t, fired)
	require.Error(t, err)
	f.mu.Lock()
	ghost := f.locks["data/ghost.db"]
	f.mu.Unlock()
	require.NotNil(t, ghost)
	assert.Nil(t, ghost.handle)

	// RestoreAll closes the handle; a closed file rejects further reads.
	held := lock.handle
	f.RestoreAll()
	assert.False(t, f.Locked(path))
	_, readErr := held.Read(make([]byte, 1))
	assert.Error(t, readErr)
}

func TestFileLockedExpiryClosesHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	f := NewFileLocked(1.0, 30*time.Millisecond)
	fired, err := f.TryInject(context.Background(), &Context{Path: path})
	assert.True(t, fired)
	require.Error(t, err)

	f.mu.Lock()
	held := f.locks[path].handle
	f.mu.Unlock()
	require.NotNil(t, held)

	assert.Eventually(t, func() bool {
		return !f.Locked(path)
	}, 2*time.Second, 10*time.Millisecond)
	_, readErr := held.Read(make([]byte, 1))
	assert.Error(t, readErr)
}

func TestFileSystemSimulatorRestoreAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	original := bytes.Repeat([]byte{0x01, 0x02}, 50)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	facade := simenv.New()
	sim := NewFileSystemSimulator(facade)
	sim.corruption.SetProbability(1.0)

	fired, err := sim.Apply(context.Background(), &Context{Path: path})
	require.NoError(t, err)
	assert.True(t, fired)

	sim.RestoreAll()
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestFileSystemSimulatorDisableAllRestores(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	original := bytes.Repeat([]byte{0x0a, 0x0b}, 50)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	sim := NewFileSystemSimulator(simenv.New())
	sim.EnableAll(0)
	sim.corruption.SetProbability(1.0)

	fired, err := sim.Apply(context.Background(), &Context{Path: path})
	require.NoError(t, err)
	assert.True(t, fired)

	// Disabling the bundle also undoes its persistent effects.
	sim.DisableAll()
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}
