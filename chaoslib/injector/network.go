package injector

import (
	"context"
	"fmt"
	"time"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/schedule"
	"github.com/stressforge/harness-go/pkg/simenv"
	"github.com/stressforge/harness-go/pkg/types"
)

// Latency delays the operation by a random duration in [Min, Max], with an
// additional jitter of 10 to 30 percent applied in either direction.
type Latency struct {
	*Gate
	Min time.Duration
	Max time.Duration
}

// NewLatency builds a latency injector. Min and Max are swapped if given
// out of order.
func NewLatency(probability float64, min, max time.Duration) *Latency {
	if max < min {
		min, max = max, min
	}
	return &Latency{Gate: NewGate("network-latency", probability), Min: min, Max: max}
}

func (l *Latency) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	if !l.shouldFire(ictx.Resource) {
		return false, nil
	}
	delay := l.Min + time.Duration(l.randFloat()*float64(l.Max-l.Min))
	jitter := 0.1 + l.randFloat()*0.2
	if l.randFloat() < 0.5 {
		jitter = -jitter
	}
	delay = time.Duration(float64(delay) * (1 + jitter))
	log.Infof("[Inject]: Adding %v latency to %v", delay.Round(time.Millisecond), ictx.Resource)
	if err := sleepCtx(ctx, delay); err != nil {
		return true, err
	}
	return true, nil
}

// PacketLoss drops the operation outright. Once triggered it keeps dropping
// for Burst consecutive attempts, modelling loss that arrives in runs rather
// than as independent events.
type PacketLoss struct {
	*Gate
	Burst     int
	burstLeft int
}

func NewPacketLoss(rate float64, burst int) *PacketLoss {
	if burst < 1 {
		burst = 1
	}
	return &PacketLoss{Gate: NewGate("packet-loss", rate), Burst: burst}
}

func (p *PacketLoss) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	// A running burst still respects the enabled flag so disarming the
	// injector mid-burst stops the drops immediately.
	p.mu.Lock()
	if p.enabled && p.burstLeft > 0 {
		p.burstLeft--
		p.fired++
		p.mu.Unlock()
		return true, p.dropError(ictx)
	}
	p.mu.Unlock()

	if !p.shouldFire(ictx.Resource) {
		return false, nil
	}
	p.mu.Lock()
	p.burstLeft = p.Burst - 1
	p.mu.Unlock()
	return true, p.dropError(ictx)
}

func (p *PacketLoss) dropError(ictx *Context) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeConnectionFault,
		Phase:     types.ChaosInject,
		Target:    ictx.Resource,
		Reason:    "packet dropped",
	}
}

// Reset modes for ConnReset.
const (
	ResetRandom       = "random"
	ResetAfterReceive = "after-receive"
	ResetDuringSend   = "during-send"
)

// ConnReset aborts the operation with a connection reset. The Mode controls
// where in the exchange the reset is reported to occur.
type ConnReset struct {
	*Gate
	Mode string
}

func NewConnReset(probability float64, mode string) *ConnReset {
	switch mode {
	case ResetRandom, ResetAfterReceive, ResetDuringSend:
	default:
		mode = ResetRandom
	}
	return &ConnReset{Gate: NewGate("connection-reset", probability), Mode: mode}
}

func (c *ConnReset) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	if !c.shouldFire(ictx.Resource) {
		return false, nil
	}
	mode := c.Mode
	if mode == ResetRandom {
		if c.randFloat() < 0.5 {
			mode = ResetAfterReceive
		} else {
			mode = ResetDuringSend
		}
	}
	var reason string
	switch mode {
	case ResetAfterReceive:
		reason = "connection reset by peer after partial response"
	default:
		reason = "connection reset by peer during send"
	}
	return true, cerrors.Error{
		ErrorCode: cerrors.ErrorTypeResetFault,
		Phase:     types.ChaosInject,
		Target:    ictx.Resource,
		Reason:    reason,
	}
}

// DNS failure modes.
const (
	DNSTimeout   = "timeout"
	DNSNotFound  = "not-found"
	DNSTemporary = "temporary"
)

// DNSFailure fails name resolution for matching hostnames. Timeout mode
// also blocks for the configured Delay before failing, matching how a real
// resolver stalls.
type DNSFailure struct {
	*Gate
	Mode  string
	Delay time.Duration
}

func NewDNSFailure(probability float64, mode string) *DNSFailure {
	switch mode {
	case DNSTimeout, DNSNotFound, DNSTemporary:
	default:
		mode = DNSNotFound
	}
	return &DNSFailure{Gate: NewGate("dns-failure", probability), Mode: mode, Delay: 2 * time.Second}
}

func (d *DNSFailure) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	host := ictx.Hostname
	if host == "" {
		host = ictx.Resource
	}
	if !d.shouldFire(host) {
		return false, nil
	}
	var reason string
	switch d.Mode {
	case DNSTimeout:
		if err := sleepCtx(ctx, d.Delay); err != nil {
			return true, err
		}
		reason = fmt.Sprintf("lookup %v: i/o timeout", host)
	case DNSTemporary:
		reason = fmt.Sprintf("lookup %v: temporary failure in name resolution", host)
	default:
		reason = fmt.Sprintf("lookup %v: no such host", host)
	}
	return true, cerrors.Error{
		ErrorCode: cerrors.ErrorTypeResolutionFault,
		Phase:     types.ChaosInject,
		Target:    host,
		Reason:    reason,
	}
}

// Disconnect flips the simulated environment offline for Duration and fails
// the current operation according to the facade's offline behavior. The
// restoration is scheduled, not inline, so later operations during the
// window observe the outage too.
type Disconnect struct {
	*Gate
	Facade   *simenv.Facade
	Behavior simenv.OfflineBehavior
	Duration time.Duration

	restore *schedule.Task
}

func NewDisconnect(probability float64, facade *simenv.Facade, behavior simenv.OfflineBehavior, duration time.Duration) *Disconnect {
	return &Disconnect{
		Gate:     NewGate("network-disconnect", probability),
		Facade:   facade,
		Behavior: behavior,
		Duration: duration,
	}
}

func (d *Disconnect) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	if d.Facade.IsOffline() {
		return true, d.Facade.CheckNetwork(ictx.Hostname)
	}
	if !d.shouldFire(ictx.Resource) {
		return false, nil
	}
	log.Infof("[Inject]: Taking network offline for %v (behavior: %v)", d.Duration, d.Behavior)
	d.Facade.SetOffline(d.Duration, d.Behavior)
	d.mu.Lock()
	d.restore = schedule.After(d.Duration, func() {
		d.Facade.ClearOffline()
		log.Info("[Recovery]: Network restored")
	})
	d.mu.Unlock()
	return true, d.Facade.CheckNetwork(ictx.Hostname)
}

// Restore cancels any pending reconnection and brings the network back
// immediately.
func (d *Disconnect) Restore() {
	d.mu.Lock()
	task := d.restore
	d.restore = nil
	d.mu.Unlock()
	if task != nil && task.Cancel() {
		d.Facade.ClearOffline()
	}
}

// HTTPError rewrites the response of matching requests to a random status
// code from Codes. It does not return an error; the rewritten response is
// the fault.
type HTTPError struct {
	*Gate
	Codes []int
}

func NewHTTPError(probability float64, codes ...int) *HTTPError {
	if len(codes) == 0 {
		codes = []int{500, 502, 503, 504}
	}
	return &HTTPError{Gate: NewGate("http-error", probability), Codes: codes}
}

func (h *HTTPError) TryInject(ctx context.Context, ictx *Context) (bool, error) {
	resource := ictx.URL
	if resource == "" {
		resource = ictx.Resource
	}
	if !h.shouldFire(resource) {
		return false, nil
	}
	code := h.Codes[h.randIntn(len(h.Codes))]
	ictx.StatusCode = code
	ictx.Body = []byte(fmt.Sprintf(`{"error":"injected server error","status":%d}`, code))
	log.Infof("[Inject]: Rewrote response for %v to HTTP %d", resource, code)
	return true, nil
}

// NetworkSimulator bundles the network injectors behind one gate surface so
// a caller can run every configured fault against an operation in order.
type NetworkSimulator struct {
	Injectors []Injector

	facade *simenv.Facade
}

// NewNetworkSimulator wires the default network fault set against the given
// environment facade. Probabilities of zero leave a variant dormant but
// still adjustable through its gate.
func NewNetworkSimulator(facade *simenv.Facade) *NetworkSimulator {
	return &NetworkSimulator{
		facade: facade,
		Injectors: []Injector{
			NewLatency(0, 100*time.Millisecond, 2*time.Second),
			NewPacketLoss(0, 3),
			NewConnReset(0, ResetRandom),
			NewDNSFailure(0, DNSNotFound),
			NewDisconnect(0, facade, simenv.OfflineFail, 5*time.Second),
			NewHTTPError(0),
		},
	}
}

// Apply runs each injector against the operation and stops at the first
// fault that produces an error. It reports whether any fault fired.
func (n *NetworkSimulator) Apply(ctx context.Context, ictx *Context) (bool, error) {
	fired := false
	for _, inj := range n.Injectors {
		ok, err := inj.TryInject(ctx, ictx)
		fired = fired || ok
		if err != nil {
			return fired, err
		}
	}
	return fired, nil
}

// EnableAll arms every bundled injector at the given probability and takes
// a reference on the shared environment facade.
func (n *NetworkSimulator) EnableAll(probability float64) {
	n.facade.Install()
	for _, inj := range n.Injectors {
		if g, ok := inj.(interface {
			Enable()
			SetProbability(float64)
		}); ok {
			g.SetProbability(probability)
			g.Enable()
		}
	}
}

// DisableAll disarms every bundled injector, cancels any pending offline
// restoration and drops the facade reference, clearing leftover simulated
// state once the last simulator lets go.
func (n *NetworkSimulator) DisableAll() {
	for _, inj := range n.Injectors {
		if g, ok := inj.(interface{ Disable() }); ok {
			g.Disable()
		}
		if d, ok := inj.(*Disconnect); ok {
			d.Restore()
		}
	}
	n.facade.Restore()
}
