package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stressforge/harness-go/chaoslib/limiter"
	"github.com/stressforge/harness-go/chaoslib/monkey"
	"github.com/stressforge/harness-go/chaoslib/runner"
	"github.com/stressforge/harness-go/pkg/environment"
	"github.com/stressforge/harness-go/pkg/events"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/result"
	"github.com/stressforge/harness-go/pkg/telemetry"
	"github.com/stressforge/harness-go/pkg/types"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

var (
	flagResultsDir      string
	flagScratchDir      string
	flagProfile         string
	flagDuration        time.Duration
	flagLimitStart      float64
	flagLimitEnd        float64
	flagSteps           int
	flagFailureInterval time.Duration
)

func main() {
	// In worker mode this process is a disposable stress target and never
	// reaches the CLI.
	monkey.MaybeRunWorker()

	rootCmd := &cobra.Command{
		Use:   "harness",
		Short: "Resource stress and chaos campaigns against the local system",
	}
	rootCmd.PersistentFlags().StringVar(&flagResultsDir, "results-dir", "", "directory for run artifacts (default from RESULTS_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagScratchDir, "scratch-dir", "", "directory for transient io files (default from SCRATCH_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "campaign profile YAML; overrides the command flags")
	rootCmd.PersistentFlags().DurationVar(&flagDuration, "duration", time.Minute, "campaign duration")

	cpuCmd := &cobra.Command{
		Use:   "cpu",
		Short: "Stepped cpu stress campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaign("cpu")
		},
	}
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Stepped memory stress campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaign("memory")
		},
	}
	for _, cmd := range []*cobra.Command{cpuCmd, memoryCmd} {
		cmd.Flags().Float64Var(&flagLimitStart, "limit-start", 0.3, "first step limit fraction")
		cmd.Flags().Float64Var(&flagLimitEnd, "limit-end", 0.9, "last step limit fraction")
		cmd.Flags().IntVar(&flagSteps, "steps", 5, "number of limit steps")
	}

	chaosCmd := &cobra.Command{
		Use:   "chaos",
		Short: "Random failure scenario campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaign("chaos")
		},
	}
	chaosCmd.Flags().DurationVar(&flagFailureInterval, "failure-interval", 10*time.Second, "time between induced failures")

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the failure scenario catalog",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range types.Scenarios() {
				cmd.Println(string(s))
			}
		},
	}

	rootCmd.AddCommand(cpuCmd, memoryCmd, chaosCmd, scenariosCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCampaign(testType string) error {
	harnessDetails := types.HarnessDetails{}
	environment.GetENV(&harnessDetails)
	if flagResultsDir != "" {
		harnessDetails.ResultsDir = flagResultsDir
	}
	if flagScratchDir != "" {
		harnessDetails.ScratchDir = flagScratchDir
	}

	if flagProfile != "" {
		profile, err := environment.LoadProfile(flagProfile)
		if err != nil {
			return err
		}
		testType = profile.Test
		if profile.Duration > 0 {
			flagDuration = time.Duration(profile.Duration) * time.Second
		}
		if profile.LimitStart > 0 {
			flagLimitStart = profile.LimitStart
		}
		if profile.LimitEnd > 0 {
			flagLimitEnd = profile.LimitEnd
		}
		if profile.Steps > 0 {
			flagSteps = profile.Steps
		}
		if profile.FailureInterval > 0 {
			flagFailureInterval = time.Duration(profile.FailureInterval) * time.Second
		}
		if profile.ResultsDir != "" {
			harnessDetails.ResultsDir = profile.ResultsDir
		}
	}

	ctx := context.Background()
	if harnessDetails.OTELEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, harnessDetails.OTELEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Errorf("Failed to shut down otel sdk: %v", err)
			}
		}()
	}

	recorder := events.NewRecorder()
	m := monkey.New(monkey.Options{ScratchDir: harnessDetails.ScratchDir}, recorder)
	l := limiter.New(harnessDetails.ScratchDir)
	r := runner.New(harnessDetails, m, l, recorder)

	// A signal stops every campaign instead of killing the process with
	// limits still applied.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		sig, ok := <-signals
		if !ok {
			return
		}
		log.Warnf("Received %v, stopping all campaigns", sig)
		r.StopAllTests()
	}()

	var (
		run *result.RunResult
		err error
	)
	switch testType {
	case "cpu":
		run, err = r.RunCPUStressTest(ctx, runner.SteppedConfig{
			Duration:   flagDuration,
			LimitStart: flagLimitStart,
			LimitEnd:   flagLimitEnd,
			Steps:      flagSteps,
		})
	case "memory":
		run, err = r.RunMemoryStressTest(ctx, runner.SteppedConfig{
			Duration:   flagDuration,
			LimitStart: flagLimitStart,
			LimitEnd:   flagLimitEnd,
			Steps:      flagSteps,
		})
	case "chaos":
		run, err = r.RunChaosTest(ctx, runner.ChaosConfig{
			Duration:        flagDuration,
			FailureInterval: flagFailureInterval,
		})
	default:
		log.Fatalf("Unsupported test type %v", testType)
	}
	signal.Stop(signals)
	if err != nil {
		return err
	}
	if !run.Success {
		log.Errorf("Campaign %v did not meet the success thresholds", run.TestID)
		os.Exit(1)
	}
	return nil
}
