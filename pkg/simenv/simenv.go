// Package simenv is the environment facade the injectors install simulated
// process-wide conditions into: an offline window for network primitives and
// a near-zero free-space figure for space queries. The system under test
// routes its network and free-space checks through a Facade instead of the
// harness patching shared runtime state; nested installs are reference
// counted so composed injectors never race on teardown.
package simenv

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
)

// OfflineBehavior selects how network primitives react during an offline
// window.
type OfflineBehavior string

const (
	OfflineFail    OfflineBehavior = "fail"
	OfflineTimeout OfflineBehavior = "timeout"
	// OfflinePartial keeps calls succeeding while IsOffline reports true,
	// mimicking a half-dead link.
	OfflinePartial OfflineBehavior = "partial"
)

// Facade holds the simulated environment state for one campaign. Its
// lifecycle belongs to the campaign, not the process.
type Facade struct {
	mu       sync.Mutex
	refcount int

	offlineUntil    time.Time
	offlineBehavior OfflineBehavior

	freeSpaceUntil time.Time
	freeSpaceBytes uint64
}

// New returns an inactive facade.
func New() *Facade {
	return &Facade{}
}

// Install takes a reference on the facade. Injectors call it when enabled so
// that composed injectors share one facade without racing on Restore.
func (f *Facade) Install() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refcount++
}

// Restore drops one reference; when the last reference goes the simulated
// state is cleared immediately.
func (f *Facade) Restore() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refcount > 0 {
		f.refcount--
	}
	if f.refcount == 0 {
		f.offlineUntil = time.Time{}
		f.freeSpaceUntil = time.Time{}
		log.Debugf("environment facade restored")
	}
}

// SetOffline opens an offline window with the given behavior.
func (f *Facade) SetOffline(duration time.Duration, behavior OfflineBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offlineUntil = time.Now().Add(duration)
	f.offlineBehavior = behavior
}

// ClearOffline ends the offline window early.
func (f *Facade) ClearOffline() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offlineUntil = time.Time{}
}

// IsOffline reports whether the facade is inside an offline window.
func (f *Facade) IsOffline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Now().Before(f.offlineUntil)
}

// CheckNetwork is the guard the system under test consults before touching a
// network primitive. During an offline window it returns the configured
// fault; OfflinePartial returns nil so the operation proceeds while the link
// still reports down.
func (f *Facade) CheckNetwork(host string) error {
	f.mu.Lock()
	behavior := f.offlineBehavior
	offline := time.Now().Before(f.offlineUntil)
	f.mu.Unlock()

	if !offline {
		return nil
	}
	switch behavior {
	case OfflineTimeout:
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeConnectionFault, Target: host, Reason: "network timeout (simulated)"}
	case OfflinePartial:
		return nil
	default:
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeConnectionFault, Target: host, Reason: "network disconnected (simulated)"}
	}
}

// SetFreeSpace makes FreeSpace report a simulated figure for the window.
func (f *Facade) SetFreeSpace(bytes uint64, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeSpaceBytes = bytes
	f.freeSpaceUntil = time.Now().Add(duration)
}

// ClearFreeSpace ends the simulated free-space window early.
func (f *Facade) ClearFreeSpace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeSpaceUntil = time.Time{}
}

// FreeSpace reports available bytes for path, the simulated figure while a
// space window is active and the real filesystem answer otherwise.
func (f *Facade) FreeSpace(path string) (uint64, error) {
	f.mu.Lock()
	simulated := time.Now().Before(f.freeSpaceUntil)
	bytes := f.freeSpaceBytes
	f.mu.Unlock()

	if simulated {
		return bytes, nil
	}
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
