package limiter

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

const (
	memoryBlockSize = 10 * 1024 * 1024
	memoryMaxBlocks = 1000
	// memorySafetyAvailable is the floor of system-wide available memory the
	// worker refuses to allocate past.
	memorySafetyAvailable = 0.05
)

// LimitMemory occupies system memory until the available fraction drops to
// the given value, then holds it until the handle is released. The worker
// allocates in committed 10MB blocks and backs off rather than drive
// availability below the safety floor.
func (l *Limiter) LimitMemory(fraction float64) (*Handle, error) {
	fraction = clampFraction(types.ResourceMemory, fraction)

	if _, _, err := telemetry.AvailableMemory(context.Background()); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeResourceExhaustion,
			Target:    string(types.ResourceMemory),
			Reason:    err.Error(),
		}
	}
	h := l.install(types.ResourceMemory, 1)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.holdMemory(fraction)
	}()

	log.Infof("[Prepare]: Occupying memory until %.0f%% of the system remains available", fraction*100)
	return h, nil
}

func (h *Handle) holdMemory(fraction float64) {
	blocks := make([][]byte, 0, memoryMaxBlocks)
	defer func() {
		blocks = nil
		debug.FreeOSMemory()
	}()

	for len(blocks) < memoryMaxBlocks {
		select {
		case <-h.stop:
			return
		default:
		}
		available, total, err := telemetry.AvailableMemory(context.Background())
		if err != nil {
			log.Warnf("[Prepare]: Unable to read memory stats, holding at %d blocks: %v", len(blocks), err)
			break
		}
		ratio := float64(available) / float64(total)
		// The floor is checked before the target so a sudden external drop
		// in availability is reported rather than treated as target reached.
		if ratio < memorySafetyAvailable {
			log.Warnf("[Prepare]: Available memory below safety floor, holding at %d blocks", len(blocks))
			break
		}
		if ratio <= fraction {
			break
		}

		block := make([]byte, memoryBlockSize)
		for off := 0; off < len(block); off += 1 << 20 {
			block[off] = 1
		}
		blocks = append(blocks, block)
	}

	// Hold until released.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
	}
}
