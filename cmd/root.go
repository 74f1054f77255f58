// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/sirengate/internal/audio"
	"github.com/ColonelBlimp/sirengate/internal/config"
	"github.com/ColonelBlimp/sirengate/internal/dsp"
	"github.com/ColonelBlimp/sirengate/internal/logging"
	"github.com/ColonelBlimp/sirengate/internal/metrics"
	"github.com/ColonelBlimp/sirengate/internal/pipeline"
	tsignal "github.com/ColonelBlimp/sirengate/internal/signal"
)

var rootCmd = &cobra.Command{
	Use:   "sirengate",
	Short: "Acoustic emergency-vehicle preemption for a traffic signal",
	Long: `Listens to a roadside microphone, detects approaching siren energy in the
600-1500 Hz band, and drives a preemption state machine for the protected
approach. State changes are written to stdout for the signal head.`,
	RunE:          runDetector,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// applyLogLevel sets the global log level from settings. The debug flag
// wins over the configured level.
func applyLogLevel(s *config.Settings) {
	if s.Debug {
		logging.SetLevel(zapcore.DebugLevel)
		return
	}
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		// Validate already rejected bad levels; keep the default
		return
	}
	logging.SetLevel(level)
}

// newPipeline assembles the detection chain from validated settings.
func newPipeline(s *config.Settings, rec *metrics.Recorder) (*pipeline.Pipeline, *tsignal.Controller, error) {
	windower, err := dsp.NewWindower(dsp.WindowerConfig{
		FrameSize:  s.WindowSize,
		Hop:        s.WindowHop,
		PadPartial: s.PadPartial,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("windower: %w", err)
	}

	analyzer, err := dsp.NewSpectralAnalyzer(dsp.AnalyzerConfig{
		SampleRate: s.SampleRate,
		FrameSize:  s.WindowSize,
		BandLowHz:  s.BandLowHz,
		BandHighHz: s.BandHighHz,
		NormWindow: s.NormalizationWindow,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: %w", err)
	}

	classifier, err := dsp.NewSirenClassifier(dsp.ClassifierConfig{
		Threshold:      s.Threshold,
		DebounceFrames: s.DebounceFrames,
		DebounceRatio:  s.DebounceRatio,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("classifier: %w", err)
	}

	controller := tsignal.NewController()

	p, err := pipeline.New(pipeline.Config{
		Windower:   windower,
		Analyzer:   analyzer,
		Classifier: classifier,
		Controller: controller,
		Recorder:   rec,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}

	return p, controller, nil
}

// printPreemption writes one state-change line to stdout. This is the
// machine-readable surface the signal head follows.
func printPreemption(e tsignal.PreemptionEvent) {
	verb := "RELEASE"
	if e.Active {
		verb = "PREEMPT"
	}
	fmt.Printf("%s %s %s\n", e.Timestamp.Format(time.RFC3339), verb, e.State)
}

func runDetector(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}
	applyLogLevel(settings)
	log := logging.GetLogger()
	defer logging.Sync()

	p, controller, err := newPipeline(settings, nil)
	if err != nil {
		return err
	}
	controller.SetCallback(printPreemption)

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return err
	}
	defer capture.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx, capture.Samples)
	})
	g.Go(func() error {
		if err := capture.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Infow("shutdown complete",
		"state", p.State().String(),
		"framesProcessed", p.FramesProcessed(),
		"overruns", p.Overruns(),
		"droppedChunks", capture.Dropped(),
	)
	return nil
}
