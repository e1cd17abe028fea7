package injector

import (
	"context"
	"os"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/schedule"
	"github.com/stressforge/harness-go/pkg/simenv"
	"github.com/stressforge/harness-go/pkg/types"
)

// NotFound fails lookups of matching paths as if the file were absent.
type NotFound struct {
	*Gate
}

func NewNotFound(probability float64, patterns ...string) *NotFound {
	n := &NotFound{Gate: NewGate("file-not-found", probability)}
	n.Include(patterns...)
	return n
}

func (n *NotFound) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	path := ictx.Path
	if path == "" {
		path = ictx.Resource
	}
	if !n.shouldFire(path) {
		return false, nil
	}
	return true, cerrors.Error{
		ErrorCode: cerrors.ErrorTypeNotFoundFault,
		Phase:     types.ChaosInject,
		Target:    path,
		Reason:    "no such file or directory",
	}
}

// Corruption modes.
const (
	CorruptTruncate     = "truncate"
	CorruptRandomBytes  = "random-bytes"
	CorruptHeaderDamage = "header-damage"
)

// Corruption damages the file at ictx.Path in place, keeping the original
// bytes so RestoreAll can undo every hit. When no path is set the in-memory
// ictx.Content is damaged instead. Files shorter than ten bytes always get
// a single flipped byte regardless of mode, since there is not enough
// material to truncate or damage a header meaningfully.
type Corruption struct {
	*Gate
	Mode string

	backups map[string][]byte
}

func NewCorruption(probability float64, mode string) *Corruption {
	switch mode {
	case CorruptTruncate, CorruptRandomBytes, CorruptHeaderDamage:
	default:
		mode = CorruptRandomBytes
	}
	return &Corruption{
		Gate:    NewGate("file-corruption", probability),
		Mode:    mode,
		backups: map[string][]byte{},
	}
}

func (c *Corruption) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	resource := ictx.Path
	if resource == "" {
		resource = ictx.Resource
	}
	if !c.shouldFire(resource) {
		return false, nil
	}

	if ictx.Path == "" {
		ictx.Content = c.damage(ictx.Content)
		return true, nil
	}

	original, err := os.ReadFile(ictx.Path)
	if err != nil {
		return true, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Phase:     types.ChaosInject,
			Target:    ictx.Path,
			Reason:    err.Error(),
		}
	}
	c.mu.Lock()
	if _, ok := c.backups[ictx.Path]; !ok {
		c.backups[ictx.Path] = original
	}
	c.mu.Unlock()

	damaged := c.damage(original)
	if err := os.WriteFile(ictx.Path, damaged, 0o644); err != nil {
		return true, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Phase:     types.ChaosInject,
			Target:    ictx.Path,
			Reason:    err.Error(),
		}
	}
	log.Infof("[Inject]: Corrupted %v (%v, %d -> %d bytes)", ictx.Path, c.Mode, len(original), len(damaged))
	return true, nil
}

// damage returns a corrupted copy of data. It never returns data unchanged
// for non-empty input.
func (c *Corruption) damage(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := make([]byte, len(data))
	copy(out, data)

	if len(out) < 10 {
		i := c.randIntn(len(out))
		out[i] ^= 0xFF
		return out
	}

	switch c.Mode {
	case CorruptTruncate:
		// Strictly shorter but never empty.
		keep := 1 + c.randIntn(len(out)-1)
		return out[:keep]
	case CorruptHeaderDamage:
		header := 64
		if header > len(out) {
			header = len(out)
		}
		for i := 0; i < header; i++ {
			out[i] = byte(c.randIntn(256))
		}
		return out
	default:
		// Flip roughly one byte in ten, at least one.
		hits := len(out) / 10
		if hits < 1 {
			hits = 1
		}
		for i := 0; i < hits; i++ {
			out[c.randIntn(len(out))] ^= 0xFF
		}
		return out
	}
}

// RestoreAll rewrites every corrupted file from its backup and reports how
// many files were restored.
func (c *Corruption) RestoreAll() int {
	c.mu.Lock()
	backups := c.backups
	c.backups = map[string][]byte{}
	c.mu.Unlock()

	restored := 0
	for path, original := range backups {
		if err := os.WriteFile(path, original, 0o644); err != nil {
			log.Errorf("[Recovery]: Failed to restore %v: %v", path, err)
			continue
		}
		restored++
	}
	return restored
}

// PermissionDenied strips all permission bits from the file at ictx.Path
// and schedules their restoration after Duration. The operation that
// triggered it, and every operation on that path until restoration, fails
// with a permission fault.
type PermissionDenied struct {
	*Gate
	Duration time.Duration

	active map[string]*permissionHold
}

type permissionHold struct {
	mode    os.FileMode
	restore *schedule.Task
}

func NewPermissionDenied(probability float64, duration time.Duration) *PermissionDenied {
	return &PermissionDenied{
		Gate:     NewGate("permission-denied", probability),
		Duration: duration,
		active:   map[string]*permissionHold{},
	}
}

func (p *PermissionDenied) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	path := ictx.Path
	if path == "" {
		path = ictx.Resource
	}

	p.mu.Lock()
	_, held := p.active[path]
	p.mu.Unlock()
	if held {
		return true, p.fault(path)
	}

	if !p.shouldFire(path) {
		return false, nil
	}

	if ictx.Path != "" {
		info, err := os.Stat(ictx.Path)
		if err == nil {
			if err := os.Chmod(ictx.Path, 0); err == nil {
				hold := &permissionHold{mode: info.Mode().Perm()}
				hold.restore = schedule.After(p.Duration, func() { p.release(path) })
				p.mu.Lock()
				p.active[path] = hold
				p.mu.Unlock()
				log.Infof("[Inject]: Revoked permissions on %v for %v", path, p.Duration)
			}
		}
	}
	return true, p.fault(path)
}

func (p *PermissionDenied) fault(path string) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypePermissionFault,
		Phase:     types.ChaosInject,
		Target:    path,
		Reason:    "permission denied",
	}
}

func (p *PermissionDenied) release(path string) {
	p.mu.Lock()
	hold, ok := p.active[path]
	delete(p.active, path)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := os.Chmod(path, hold.mode); err != nil {
		log.Errorf("[Recovery]: Failed to restore permissions on %v: %v", path, err)
		return
	}
	log.Infof("[Recovery]: Permissions restored on %v", path)
}

// RestoreAll releases every held path immediately, cancelling the pending
// timers.
func (p *PermissionDenied) RestoreAll() {
	p.mu.Lock()
	paths := make([]string, 0, len(p.active))
	for path, hold := range p.active {
		hold.restore.Cancel()
		paths = append(paths, path)
	}
	p.mu.Unlock()
	for _, path := range paths {
		p.release(path)
	}
}

// Disk space modes.
const (
	DiskSpaceException    = "exception"
	DiskSpaceSlow         = "slow"
	DiskSpaceIntermittent = "intermittent"
)

// DiskSpace simulates an out-of-space window. Once triggered, every write
// during the window observes the condition: exception mode fails outright,
// slow mode stalls writes, intermittent mode fails about half of them. The
// facade reports near-zero free space for the whole window.
type DiskSpace struct {
	*Gate
	Facade    *simenv.Facade
	Behavior  string
	Window    time.Duration
	SlowDelay time.Duration

	activeUntil time.Time
}

func NewDiskSpace(probability float64, facade *simenv.Facade, behavior string, window time.Duration) *DiskSpace {
	switch behavior {
	case DiskSpaceException, DiskSpaceSlow, DiskSpaceIntermittent:
	default:
		behavior = DiskSpaceException
	}
	return &DiskSpace{
		Gate:      NewGate("disk-space", probability),
		Facade:    facade,
		Behavior:  behavior,
		Window:    window,
		SlowDelay: 500 * time.Millisecond,
	}
}

func (d *DiskSpace) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	d.mu.Lock()
	active := time.Now().Before(d.activeUntil)
	d.mu.Unlock()

	if !active {
		if !d.shouldFire(ictx.Resource) {
			return false, nil
		}
		d.mu.Lock()
		d.activeUntil = time.Now().Add(d.Window)
		d.mu.Unlock()
		d.Facade.SetFreeSpace(0, d.Window)
		log.Infof("[Inject]: Simulating exhausted disk space for %v (%v)", d.Window, d.Behavior)
	}

	switch d.Behavior {
	case DiskSpaceSlow:
		if err := sleepCtx(ctx, d.SlowDelay); err != nil {
			return true, err
		}
		return true, nil
	case DiskSpaceIntermittent:
		if d.randFloat() < 0.5 {
			return true, nil
		}
		return true, d.fault(ictx)
	default:
		return true, d.fault(ictx)
	}
}

func (d *DiskSpace) fault(ictx *Context) error {
	path := ictx.Path
	if path == "" {
		path = ictx.Resource
	}
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeOutOfSpaceFault,
		Phase:     types.ChaosInject,
		Target:    path,
		Reason:    "no space left on device",
	}
}

// Active reports whether an out-of-space window is currently open.
func (d *DiskSpace) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Now().Before(d.activeUntil)
}

// Restore closes the window early.
func (d *DiskSpace) Restore() {
	d.mu.Lock()
	d.activeUntil = time.Time{}
	d.mu.Unlock()
	d.Facade.ClearFreeSpace()
}

// FileLocked holds an open handle on the file at ictx.Path for a bounded
// duration, standing in for another process owning the lock. Every
// operation on a locked path fails until the lock expires.
type FileLocked struct {
	*Gate
	Duration time.Duration

	locks map[string]*fileLock
}

// fileLock is one held lock: the open handle (nil when the path does not
// exist on disk) and the scheduled unlock.
type fileLock struct {
	handle *os.File
	task   *schedule.Task
}

func NewFileLocked(probability float64, duration time.Duration) *FileLocked {
	return &FileLocked{
		Gate:     NewGate("file-locked", probability),
		Duration: duration,
		locks:    map[string]*fileLock{},
	}
}

func (f *FileLocked) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	path := ictx.Path
	if path == "" {
		path = ictx.Resource
	}

	f.mu.Lock()
	_, locked := f.locks[path]
	f.mu.Unlock()
	if locked {
		return true, f.fault(path)
	}

	if !f.shouldFire(path) {
		return false, nil
	}

	// Hold a real handle while the lock is in force; a path with no file
	// behind it is still tracked so repeat operations keep failing.
	handle, err := os.Open(path)
	if err != nil {
		handle = nil
	}
	lock := &fileLock{handle: handle}
	lock.task = schedule.After(f.Duration, func() {
		if handle != nil {
			handle.Close()
		}
		f.mu.Lock()
		delete(f.locks, path)
		f.mu.Unlock()
		log.Infof("[Recovery]: Lock released on %v", path)
	})
	f.mu.Lock()
	f.locks[path] = lock
	f.mu.Unlock()
	log.Infof("[Inject]: Locked %v for %v", path, f.Duration)
	return true, f.fault(path)
}

func (f *FileLocked) fault(path string) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeLockFault,
		Phase:     types.ChaosInject,
		Target:    path,
		Reason:    "resource temporarily unavailable (file locked)",
	}
}

// Locked reports whether the given path currently holds a simulated lock.
func (f *FileLocked) Locked(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.locks[path]
	return ok
}

// RestoreAll drops every held lock immediately, closing its handle.
func (f *FileLocked) RestoreAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path, lock := range f.locks {
		lock.task.Cancel()
		if lock.handle != nil {
			lock.handle.Close()
		}
		delete(f.locks, path)
	}
}

// FileSystemSimulator bundles the filesystem injectors the same way
// NetworkSimulator bundles the network set.
type FileSystemSimulator struct {
	Injectors []Injector

	facade      *simenv.Facade
	corruption  *Corruption
	permissions *PermissionDenied
	diskSpace   *DiskSpace
	locks       *FileLocked
}

func NewFileSystemSimulator(facade *simenv.Facade) *FileSystemSimulator {
	s := &FileSystemSimulator{
		facade:      facade,
		corruption:  NewCorruption(0, CorruptRandomBytes),
		permissions: NewPermissionDenied(0, 5*time.Second),
		diskSpace:   NewDiskSpace(0, facade, DiskSpaceException, 5*time.Second),
		locks:       NewFileLocked(0, 5*time.Second),
	}
	s.Injectors = []Injector{
		NewNotFound(0),
		s.corruption,
		s.permissions,
		s.diskSpace,
		s.locks,
	}
	return s
}

// Apply runs each injector against the operation and stops at the first
// fault that produces an error.
func (s *FileSystemSimulator) Apply(ctx context.Context, ictx *Context) (bool, error) {
	fired := false
	for _, inj := range s.Injectors {
		ok, err := inj.TryInject(ctx, ictx)
		fired = fired || ok
		if err != nil {
			return fired, err
		}
	}
	return fired, nil
}

// EnableAll arms every bundled injector at the given probability and takes
// a reference on the shared environment facade.
func (s *FileSystemSimulator) EnableAll(probability float64) {
	s.facade.Install()
	for _, inj := range s.Injectors {
		if g, ok := inj.(interface {
			Enable()
			SetProbability(float64)
		}); ok {
			g.SetProbability(probability)
			g.Enable()
		}
	}
}

// DisableAll disarms every bundled injector, undoes their persistent
// effects and drops the facade reference.
func (s *FileSystemSimulator) DisableAll() {
	for _, inj := range s.Injectors {
		if g, ok := inj.(interface{ Disable() }); ok {
			g.Disable()
		}
	}
	s.RestoreAll()
	s.facade.Restore()
}

// RestoreAll undoes every persistent effect: corrupt files, revoked
// permissions, the disk space window and held locks.
func (s *FileSystemSimulator) RestoreAll() {
	s.corruption.RestoreAll()
	s.permissions.RestoreAll()
	s.diskSpace.Restore()
	s.locks.RestoreAll()
}
