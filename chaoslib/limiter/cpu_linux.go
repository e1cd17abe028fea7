//go:build linux

package limiter

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/stressforge/harness-go/pkg/log"
)

// pinWorker binds the calling goroutine's OS thread to one core so the
// matrix load lands on distinct cores instead of migrating.
func pinWorker(worker int) {
	runtime.LockOSThread()
	cpu := worker % runtime.NumCPU()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Debugf("could not pin worker %d to cpu %d: %v", worker, cpu, err)
	}
}
