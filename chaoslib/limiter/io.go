package limiter

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/types"
)

const ioBaseBufferSize = 5 * 1024 * 1024

// LimitIO runs synced write/read-back workers against the scratch directory
// until the handle is released. Intensity scales the worker count, the buffer size
// and the duty sleep: more intensity means more threads pushing bigger
// buffers with shorter pauses.
func (l *Limiter) LimitIO(intensity float64) (*Handle, error) {
	intensity = clampFraction(types.ResourceIO, intensity)

	if err := os.MkdirAll(l.scratchDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create scratch directory")
	}

	workers := int(4 * intensity)
	if workers < 1 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}
	bufferSize := int(ioBaseBufferSize * intensity)
	dutySleep := time.Duration((1 - intensity) * float64(time.Second))
	if dutySleep < 100*time.Millisecond {
		dutySleep = 100 * time.Millisecond
	}

	h := l.install(types.ResourceIO, workers)
	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go func(worker int) {
			defer h.wg.Done()
			path := filepath.Join(l.scratchDir, fmt.Sprintf("io_load_%d.dat", worker))
			defer os.Remove(path)
			h.hammerIO(path, bufferSize, dutySleep)
		}(i)
	}

	log.Infof("[Prepare]: Running %d io workers with %d byte buffers", workers, bufferSize)
	return h, nil
}

// hammerIO rewrites the worker file with synced random buffers and reads
// each one back, pausing for the duty sleep every ten cycles. Random data
// keeps filesystem compression from absorbing the load.
func (h *Handle) hammerIO(path string, bufferSize int, dutySleep time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	buf := make([]byte, bufferSize)
	back := make([]byte, bufferSize)

	cycle := 0
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		rng.Read(buf)
		if err := writeReadOnce(path, buf, back); err != nil {
			log.Errorf("[Prepare]: io worker cycle failed: %v", err)
			timer := time.NewTimer(time.Second)
			select {
			case <-h.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		cycle++
		if cycle%10 == 0 {
			timer := time.NewTimer(dutySleep)
			select {
			case <-h.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func writeReadOnce(path string, buf, back []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.ReadFull(r, back)
	return err
}
