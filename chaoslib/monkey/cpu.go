package monkey

import (
	"context"
	"sync"

	"github.com/stressforge/harness-go/pkg/log"
)

const throttleMatrixSize = 48

// cpuThrottling saturates all but one core with dense matrix multiplies for
// the observation window, then lets the workers drain. Workers check their
// stop flag between multiplies so release is prompt.
func (m *Monkey) cpuThrottling(ctx context.Context) error {
	workers := cpuWorkerCount(m.opts.CPUWorkers)
	log.Infof("[Inject]: Spinning %d cpu workers for %v", workers, m.opts.ObservationWindow)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			multiplyUntil(stop)
		}()
	}

	err := sleepCtx(ctx, m.opts.ObservationWindow)
	close(stop)
	wg.Wait()
	return err
}

func multiplyUntil(stop <-chan struct{}) {
	a := make([]float64, throttleMatrixSize*throttleMatrixSize)
	b := make([]float64, throttleMatrixSize*throttleMatrixSize)
	c := make([]float64, throttleMatrixSize*throttleMatrixSize)
	for i := range a {
		a[i] = float64(i % 13)
		b[i] = float64(i % 17)
	}

	for {
		select {
		case <-stop:
			return
		default:
		}
		for i := 0; i < throttleMatrixSize; i++ {
			for j := 0; j < throttleMatrixSize; j++ {
				var sum float64
				for k := 0; k < throttleMatrixSize; k++ {
					sum += a[i*throttleMatrixSize+k] * b[k*throttleMatrixSize+j]
				}
				c[i*throttleMatrixSize+j] = sum
			}
		}
	}
}
