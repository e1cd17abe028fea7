package monkey

import (
	"fmt"
	"io"
	"os"
)

const (
	workerModeEnv   = "HARNESS_WORKER_MODE"
	workerReadyLine = "worker ready"
)

// MaybeRunWorker turns the current process into a stress worker when the
// worker mode marker is set in its environment: it prints the readiness
// line and blocks until stdin closes, which is the orderly exit signal.
// Entry points call this before anything else; it never returns in worker
// mode.
func MaybeRunWorker() {
	if os.Getenv(workerModeEnv) == "" {
		return
	}
	fmt.Println(workerReadyLine)
	io.Copy(io.Discard, os.Stdin)
	os.Exit(0)
}
