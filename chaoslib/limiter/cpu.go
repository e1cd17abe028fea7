package limiter

import (
	"runtime"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/types"
)

const cpuMatrixSize = 64

// LimitCPU occupies cores until roughly the given fraction of total cpu
// remains for everyone else: workers = cores * (1 - fraction), at least one.
// Each worker runs a dense matrix multiply on its own best-effort pinned
// core and checks its stop flag between iterations.
func (l *Limiter) LimitCPU(fraction float64) (*Handle, error) {
	fraction = clampFraction(types.ResourceCPU, fraction)

	cores := runtime.NumCPU()
	workers := int(float64(cores) * (1 - fraction))
	if workers < 1 {
		workers = 1
	}
	if workers > cores {
		workers = cores
	}
	h := l.install(types.ResourceCPU, workers)

	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go func(worker int) {
			defer h.wg.Done()
			pinWorker(worker)
			h.burnCPU()
		}(i)
	}

	log.Infof("[Prepare]: Occupying %d of %d cores (target fraction %.2f left free)", workers, cores, fraction)
	return h, nil
}

func (h *Handle) burnCPU() {
	a := make([]float64, cpuMatrixSize*cpuMatrixSize)
	b := make([]float64, cpuMatrixSize*cpuMatrixSize)
	c := make([]float64, cpuMatrixSize*cpuMatrixSize)
	for i := range a {
		a[i] = float64(i % 7)
		b[i] = float64(i % 11)
	}

	for {
		select {
		case <-h.stop:
			return
		default:
		}
		for i := 0; i < cpuMatrixSize; i++ {
			for j := 0; j < cpuMatrixSize; j++ {
				var sum float64
				for k := 0; k < cpuMatrixSize; k++ {
					sum += a[i*cpuMatrixSize+k] * b[k*cpuMatrixSize+j]
				}
				c[i*cpuMatrixSize+j] = sum
			}
		}
	}
}
