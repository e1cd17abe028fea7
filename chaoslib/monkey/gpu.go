package monkey

import (
	"context"
	"os"

	"github.com/stressforge/harness-go/pkg/log"
)

// gpuFailure stalls for the observation window as a stand-in for a hung
// accelerator. When no GPU device is present the stall is the whole
// scenario; with a device node present the scenario still only simulates
// the hang, it never touches the hardware. A small allocation after the
// stall stands in for the post-reset health probe.
func (m *Monkey) gpuFailure(ctx context.Context) error {
	if _, err := os.Stat("/dev/nvidia0"); err != nil {
		log.Info("[Inject]: No GPU device found, simulating accelerator stall")
	} else {
		log.Info("[Inject]: Simulating accelerator stall (device untouched)")
	}
	if err := sleepCtx(ctx, m.opts.ObservationWindow); err != nil {
		return err
	}

	probe := make([]float64, 1024)
	for i := range probe {
		probe[i] = float64(i)
	}
	log.Info("[Inject]: Accelerator probe allocation succeeded")
	return nil
}
