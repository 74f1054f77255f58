// cmd/simulate.go
package cmd

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/sirengate/internal/config"
	"github.com/ColonelBlimp/sirengate/internal/logging"
	"github.com/ColonelBlimp/sirengate/internal/metrics"
	"github.com/ColonelBlimp/sirengate/internal/synth"
)

var (
	simSNRdB     float64
	simLeadSec   float64
	simToneSec   float64
	simTailSec   float64
	simSweepLow  float64
	simSweepHigh float64
	simSeed      int64
	simJSON      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the detection chain on a synthetic siren scenario",
	Long: `Generates silence, a swept siren tone buried in Gaussian noise at the
requested SNR, and trailing silence, feeds it through the full detection
chain, and reports confirmation latency, false positives, and the resulting
signal states.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64Var(&simSNRdB, "snr-db", -5.5, "signal-to-noise ratio of the tone segment in dB")
	simulateCmd.Flags().Float64Var(&simLeadSec, "lead", 2.0, "seconds of leading silence")
	simulateCmd.Flags().Float64Var(&simToneSec, "tone", 6.0, "seconds of swept siren tone")
	simulateCmd.Flags().Float64Var(&simTailSec, "tail", 2.0, "seconds of trailing silence")
	simulateCmd.Flags().Float64Var(&simSweepLow, "sweep-low", 700, "sweep start frequency in Hz")
	simulateCmd.Flags().Float64Var(&simSweepHigh, "sweep-high", 1400, "sweep end frequency in Hz")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "noise generator seed")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "print the run report as JSON")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}
	applyLogLevel(settings)
	defer logging.Sync()

	if simToneSec <= 0 {
		return fmt.Errorf("tone duration must be positive, got %v", simToneSec)
	}
	if simLeadSec < 0 || simTailSec < 0 {
		return fmt.Errorf("lead and tail durations must not be negative")
	}

	rate := settings.SampleRate
	nLead := int(simLeadSec * rate)
	nTone := int(simToneSec * rate)
	nTail := int(simTailSec * rate)

	tone := synth.Chirp(simSweepLow, simSweepHigh, rate, nTone)

	// The noise bed covers only the siren segment; the surrounding spans
	// stay silent so the scenario has unambiguous ground truth.
	rng := rand.New(rand.NewSource(simSeed))
	noise := synth.Noise(rng, nTone)
	noisy, achieved := synth.MixAtSNR(tone, noise, simSNRdB)
	mix := synth.Concat(synth.Silence(nLead), noisy, synth.Silence(nTail))

	rec := metrics.NewRecorder(metrics.Config{
		SampleRate:      rate,
		FrameSize:       settings.WindowSize,
		Hop:             settings.WindowHop,
		DebounceFrames:  settings.DebounceFrames,
		LatencyTargetMs: settings.LatencyTargetMs,
		Truth: []metrics.Interval{
			{OnsetSample: int64(nLead), EndSample: int64(nLead + nTone)},
		},
	})
	rec.SetMeasuredSNR(achieved)

	p, controller, err := newPipeline(settings, rec)
	if err != nil {
		return err
	}
	if !simJSON {
		controller.SetCallback(printPreemption)
	}

	// Feed the mix in capture-sized chunks
	samples := make(chan []float32, 8)
	go func() {
		defer close(samples)
		for start := 0; start < len(mix); start += settings.BufferSize {
			end := start + settings.BufferSize
			if end > len(mix) {
				end = len(mix)
			}
			samples <- synth.ToFloat32(mix[start:end])
		}
	}()

	if err := p.Run(cmd.Context(), samples); err != nil {
		return err
	}

	report := rec.Report()
	w := cmd.OutOrStdout()
	if simJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	fmt.Fprintf(w, "run %s\n", report.RunID)
	fmt.Fprintf(w, "  measured SNR:    %.1f dB\n", report.MeasuredSNRdB)
	fmt.Fprintf(w, "  frames:          %d (confirmed %d, overruns %d)\n",
		report.FramesProcessed, report.ConfirmedFrames, report.Overruns)
	for _, e := range report.Episodes {
		status := "missed target"
		if e.WithinTarget {
			status = "within target"
		}
		fmt.Fprintf(w, "  episode %s: latency %.1f ms (%s of %.0f ms)\n",
			e.ID, e.LatencyMs, status, report.LatencyTargetMs)
	}
	fmt.Fprintf(w, "  missed episodes: %d\n", report.MissedEpisodes)
	fmt.Fprintf(w, "  false positives: %d frames\n", report.FalsePositiveFrames)
	fmt.Fprintf(w, "  preemptions:     %d engaged, %d released, %d from red\n",
		report.PreemptionEngages, report.PreemptionReleases, report.EmergencyGrants)
	fmt.Fprintf(w, "  final state:     %s\n", p.State())
	return nil
}
