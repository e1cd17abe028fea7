package monkey

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/types"
)

const workerReadyTimeout = 5 * time.Second

// processKill spawns a pool of real worker processes, signals one to exit
// by closing its stdin and verifies a replacement process reports readiness
// within the ready window.
func (m *Monkey) processKill(ctx context.Context) error {
	opts := m.opts.Process

	workers := make([]*workerProc, 0, opts.Workers)
	defer func() {
		for _, w := range workers {
			w.stop()
		}
	}()

	for i := 0; i < opts.Workers; i++ {
		w, err := spawnWorker(ctx)
		if err != nil {
			return err
		}
		workers = append(workers, w)
	}

	victim := m.rng.Intn(len(workers))
	log.Infof("[Inject]: Stopping worker process %d of %d (pid %d)", victim, opts.Workers, workers[victim].pid())
	if err := workers[victim].stop(); err != nil {
		return cerrors.Generic{
			Phase:  types.ChaosInject,
			Reason: fmt.Sprintf("worker process did not exit cleanly: %v", err),
		}
	}

	if err := sleepCtx(ctx, opts.RestartDelay); err != nil {
		return err
	}

	log.Infof("[Recovery]: Starting replacement for worker %d", victim)
	replacement, err := spawnWorker(ctx)
	if err != nil {
		return err
	}
	workers[victim] = replacement
	return nil
}

// workerProc is one live worker process. The harness re-execs its own
// binary in worker mode, watches stdout for the readiness line and closes
// stdin to tell the worker to exit.
type workerProc struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stopped bool
}

func spawnWorker(ctx context.Context) (*workerProc, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, cerrors.Generic{
			Phase:  types.ChaosInject,
			Reason: "cannot locate own binary: " + err.Error(),
		}
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), workerModeEnv+"=1")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, cerrors.Generic{Phase: types.ChaosInject, Reason: err.Error()}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cerrors.Generic{Phase: types.ChaosInject, Reason: err.Error()}
	}
	if err := cmd.Start(); err != nil {
		return nil, cerrors.Generic{
			Phase:  types.ChaosInject,
			Reason: "cannot start worker process: " + err.Error(),
		}
	}

	w := &workerProc{cmd: cmd, stdin: stdin}
	ready := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if scanner.Text() == workerReadyLine {
				ready <- nil
				// Keep draining so the worker never blocks on stdout.
				for scanner.Scan() {
				}
				return
			}
		}
		ready <- fmt.Errorf("worker exited before reporting ready")
	}()

	select {
	case err := <-ready:
		if err != nil {
			w.stop()
			return nil, cerrors.Generic{Phase: types.ChaosInject, Reason: err.Error()}
		}
		return w, nil
	case <-time.After(workerReadyTimeout):
		w.stop()
		return nil, cerrors.Generic{
			Phase:  types.Recovery,
			Reason: fmt.Sprintf("worker not ready within %v", workerReadyTimeout),
		}
	case <-ctx.Done():
		w.stop()
		return nil, ctx.Err()
	}
}

func (w *workerProc) pid() int {
	if w.cmd.Process != nil {
		return w.cmd.Process.Pid
	}
	return 0
}

// stop signals orderly exit by closing stdin and waits briefly before
// killing a worker that does not comply. Stopping twice is a no-op.
func (w *workerProc) stop() error {
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		w.cmd.Process.Kill()
		return <-done
	}
}
