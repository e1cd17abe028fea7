//go:build !linux

package limiter

// pinWorker is a no-op where thread affinity is not available.
func pinWorker(worker int) {}
