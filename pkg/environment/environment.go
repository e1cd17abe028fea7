package environment

import (
	"os"
	"strconv"
	"time"

	"github.com/stressforge/harness-go/pkg/types"
	"github.com/stressforge/harness-go/pkg/utils/stringutils"
)

// Getenv fetches the env by its name, fallback is returned when unset.
func Getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	return value
}

//GetENV fetches all the env variables that tune a harness run
func GetENV(harnessDetails *types.HarnessDetails) {
	harnessDetails.InstanceID = Getenv("INSTANCE_ID", stringutils.GetRunID())
	harnessDetails.ResultsDir = Getenv("RESULTS_DIR", "data/stress_test_results")
	harnessDetails.ScratchDir = Getenv("SCRATCH_DIR", "data/stress_test_io")
	harnessDetails.ChaosProbability = getenvFloat("CHAOS_PROBABILITY", 0.3)
	harnessDetails.TickInterval = getenvDuration("TICK_INTERVAL", time.Second)
	harnessDetails.GracePeriod = getenvDuration("GRACE_PERIOD", 2*time.Second)
	harnessDetails.Timeout, _ = strconv.Atoi(Getenv("STATUS_CHECK_TIMEOUT", "180"))
	harnessDetails.Delay, _ = strconv.Atoi(Getenv("STATUS_CHECK_DELAY", "2"))
	harnessDetails.OTELEndpoint = Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func getenvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
