package monkey

import (
	"context"
	"runtime/debug"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/telemetry"
)

// memoryOverload allocates committed blocks until system memory usage
// reaches the target ratio, holds the pressure for the observation window,
// then releases everything. The safety ceiling aborts allocation before the
// host starts swapping.
func (m *Monkey) memoryOverload(ctx context.Context) error {
	opts := m.opts.Memory
	blocks := make([][]byte, 0, opts.MaxBlocks)

	for len(blocks) < opts.MaxBlocks {
		if err := ctx.Err(); err != nil {
			blocks = nil
			debug.FreeOSMemory()
			return err
		}
		available, total, err := telemetry.AvailableMemory(ctx)
		if err != nil || total == 0 {
			break
		}
		usage := 1 - float64(available)/float64(total)
		if usage >= opts.SafetyCeiling {
			log.Warnf("[Inject]: Memory usage %.1f%% hit the safety ceiling, stopping allocation", usage*100)
			break
		}
		if usage >= opts.TargetRatio {
			break
		}

		block := make([]byte, opts.BlockSize)
		// Touch each megabyte so the pages are committed, not just reserved.
		for off := 0; off < len(block); off += 1 << 20 {
			block[off] = 1
		}
		blocks = append(blocks, block)
	}

	log.Infof("[Inject]: Holding %d memory blocks for %v", len(blocks), m.opts.ObservationWindow)
	err := sleepCtx(ctx, m.opts.ObservationWindow)

	blocks = nil
	debug.FreeOSMemory()

	// A small committed allocation proves the allocator is healthy again.
	probe := make([]byte, 1<<20)
	probe[0] = 1
	probe[len(probe)-1] = 1
	return err
}
