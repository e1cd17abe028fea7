package monkey

import (
	"context"
	"time"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/simenv"
)

// networkJitter opens a degraded-link window on the connectivity facade and
// emits latency pulses with random spacing for its duration, modelling an
// unstable link rather than a flat delay. The window is cleared even when
// the context is cancelled mid-pulse.
func (m *Monkey) networkJitter(ctx context.Context) error {
	opts := m.opts.Network
	log.Infof("[Inject]: Emitting %d jitter pulses between %v and %v",
		opts.Pulses, opts.MinDelay, opts.MaxDelay)

	m.facade.SetOffline(m.opts.ObservationWindow, simenv.OfflinePartial)
	defer m.facade.ClearOffline()

	start := time.Now()
	span := float64(opts.MaxDelay - opts.MinDelay)
	for i := 0; i < opts.Pulses; i++ {
		delay := opts.MinDelay + time.Duration(m.rng.Float64()*span)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	log.Infof("[Inject]: Link degradation held for %v", time.Since(start).Round(time.Millisecond))
	return nil
}
