package injector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/simenv"
)

func TestGateProbabilityBounds(t *testing.T) {
	testCases := []struct {
		name        string
		probability float64
		want        bool
	}{
		{
			name:        "probability one always fires",
			probability: 1.0,
			want:        true,
		},
		{
			name:        "probability zero never fires",
			probability: 0.0,
			want:        false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate("test", tc.probability)
			for i := 0; i < 100; i++ {
				assert.Equal(t, tc.want, g.shouldFire("resource"))
			}
		})
	}
}

func TestGateEmpiricalProbability(t *testing.T) {
	g := NewGate("test", 0.3)
	trials := 2000
	fired := 0
	for i := 0; i < trials; i++ {
		if g.shouldFire("resource") {
			fired++
		}
	}
	rate := float64(fired) / float64(trials)
	assert.InDelta(t, 0.3, rate, 0.06, "observed fire rate %v", rate)
	assert.Equal(t, fired, g.Fired())
}

func TestGateClampsProbability(t *testing.T) {
	g := NewGate("test", 1.5)
	assert.Equal(t, 1.0, g.probability)

	g.SetProbability(-0.2)
	assert.Equal(t, 0.0, g.probability)
}

func TestGateFilters(t *testing.T) {
	testCases := []struct {
		name     string
		include  []string
		exclude  []string
		resource string
		want     bool
	}{
		{
			name:     "no filters matches everything",
			resource: "anything",
			want:     true,
		},
		{
			name:     "include pattern matches",
			include:  []string{"*.json"},
			resource: "result.json",
			want:     true,
		},
		{
			name:     "include pattern misses",
			include:  []string{"*.json"},
			resource: "result.txt",
			want:     false,
		},
		{
			name:     "exclude wins over include",
			include:  []string{"*"},
			exclude:  []string{"critical*"},
			resource: "critical-config",
			want:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate("test", 1.0)
			g.Include(tc.include...)
			g.Exclude(tc.exclude...)
			assert.Equal(t, tc.want, g.shouldFire(tc.resource))
		})
	}
}

func TestGateDisable(t *testing.T) {
	g := NewGate("test", 1.0)
	g.Disable()
	assert.False(t, g.shouldFire("resource"))
	g.Enable()
	assert.True(t, g.shouldFire("resource"))
}

func TestLatencyBounds(t *testing.T) {
	min, max := 20*time.Millisecond, 50*time.Millisecond
	l := NewLatency(1.0, min, max)

	start := time.Now()
	fired, err := l.TryInject(context.Background(), &Context{Resource: "api"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, fired)
	// Jitter extends the range by at most 30 percent either way.
	assert.GreaterOrEqual(t, elapsed, time.Duration(float64(min)*0.7))
	assert.LessOrEqual(t, elapsed, time.Duration(float64(max)*1.3)+20*time.Millisecond)
}

func TestLatencyHonorsCancellation(t *testing.T) {
	l := NewLatency(1.0, 5*time.Second, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	fired, err := l.TryInject(ctx, &Context{Resource: "api"})
	assert.True(t, fired)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacketLossBurst(t *testing.T) {
	p := NewPacketLoss(1.0, 3)

	fired, err := p.TryInject(context.Background(), &Context{Resource: "api"})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeConnectionFault, cerrors.GetErrorType(err))

	// The remaining burst drops regardless of probability.
	p.SetProbability(0)
	for i := 0; i < 2; i++ {
		fired, err = p.TryInject(context.Background(), &Context{Resource: "api"})
		assert.True(t, fired, "burst attempt %d", i)
		assert.Error(t, err, "burst attempt %d", i)
	}

	// Burst exhausted, probability zero: clean again.
	fired, err = p.TryInject(context.Background(), &Context{Resource: "api"})
	assert.False(t, fired)
	assert.NoError(t, err)
}

func TestPacketLossDisableStopsBurst(t *testing.T) {
	p := NewPacketLoss(1.0, 5)

	fired, err := p.TryInject(context.Background(), &Context{Resource: "api"})
	assert.True(t, fired)
	require.Error(t, err)

	// Disarming mid-burst stops the drops immediately.
	p.Disable()
	fired, err = p.TryInject(context.Background(), &Context{Resource: "api"})
	assert.False(t, fired, "a disabled injector must not fire")
	assert.NoError(t, err)

	// Re-arming resumes the leftover burst.
	p.Enable()
	fired, err = p.TryInject(context.Background(), &Context{Resource: "api"})
	assert.True(t, fired)
	assert.Error(t, err)
}

func TestConnResetModes(t *testing.T) {
	testCases := []struct {
		mode string
	}{
		{mode: ResetAfterReceive},
		{mode: ResetDuringSend},
		{mode: ResetRandom},
		{mode: "bogus"},
	}

	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			c := NewConnReset(1.0, tc.mode)
			fired, err := c.TryInject(context.Background(), &Context{Resource: "api"})
			assert.True(t, fired)
			require.Error(t, err)
			assert.Equal(t, cerrors.ErrorTypeResetFault, cerrors.GetErrorType(err))
		})
	}
}

func TestDNSFailure(t *testing.T) {
	d := NewDNSFailure(1.0, DNSNotFound)
	fired, err := d.TryInject(context.Background(), &Context{Hostname: "db.internal"})
	assert.True(t, fired)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeResolutionFault, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "no such host")
}

func TestDNSFailureDomainFilter(t *testing.T) {
	d := NewDNSFailure(1.0, DNSNotFound)
	d.Include("*.internal")

	fired, err := d.TryInject(context.Background(), &Context{Hostname: "db.internal"})
	assert.True(t, fired)
	assert.Error(t, err)

	fired, err = d.TryInject(context.Background(), &Context{Hostname: "example.com"})
	assert.False(t, fired)
	assert.NoError(t, err)
}

func TestDisconnectWindow(t *testing.T) {
	facade := simenv.New()
	d := NewDisconnect(1.0, facade, simenv.OfflineFail, time.Hour)

	fired, err := d.TryInject(context.Background(), &Context{Resource: "api", Hostname: "db"})
	assert.True(t, fired)
	assert.Error(t, err)
	assert.True(t, facade.IsOffline())

	// Later operations during the window fail without re-rolling the gate.
	d.SetProbability(0)
	fired, err = d.TryInject(context.Background(), &Context{Resource: "api", Hostname: "db"})
	assert.True(t, fired)
	assert.Error(t, err)

	d.Restore()
	assert.False(t, facade.IsOffline())
	fired, err = d.TryInject(context.Background(), &Context{Resource: "api", Hostname: "db"})
	assert.False(t, fired)
	assert.NoError(t, err)
}

func TestDisconnectPartialBehavior(t *testing.T) {
	facade := simenv.New()
	d := NewDisconnect(1.0, facade, simenv.OfflinePartial, time.Hour)
	defer d.Restore()

	fired, err := d.TryInject(context.Background(), &Context{Resource: "api", Hostname: "db"})
	assert.True(t, fired)
	assert.NoError(t, err)
	assert.True(t, facade.IsOffline())
}

func TestHTTPErrorRewritesResponse(t *testing.T) {
	h := NewHTTPError(1.0, 503)
	ictx := &Context{URL: "https://api.example.com/v1/items", StatusCode: 200}

	fired, err := h.TryInject(context.Background(), ictx)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 503, ictx.StatusCode)
	assert.Contains(t, string(ictx.Body), "injected server error")
}

func TestNetworkSimulatorDisabledByDefault(t *testing.T) {
	sim := NewNetworkSimulator(simenv.New())
	for i := 0; i < 50; i++ {
		fired, err := sim.Apply(context.Background(), &Context{Resource: "api"})
		assert.False(t, fired)
		assert.NoError(t, err)
	}
}

func TestNetworkSimulatorEnableDisable(t *testing.T) {
	sim := NewNetworkSimulator(simenv.New())
	sim.EnableAll(1.0)
	fired, _ := sim.Apply(context.Background(), &Context{Resource: "api"})
	assert.True(t, fired)

	sim.DisableAll()
	fired, err := sim.Apply(context.Background(), &Context{Resource: "api"})
	assert.False(t, fired)
	assert.NoError(t, err)
}
