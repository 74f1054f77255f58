// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"github.com/ColonelBlimp/sirengate/internal/dsp"
	"github.com/ColonelBlimp/sirengate/internal/metrics"
	"github.com/ColonelBlimp/sirengate/internal/signal"
	"github.com/ColonelBlimp/sirengate/internal/synth"
)

// Test configuration constants - these mirror config file values
const (
	testSampleRate     = 8000.0
	testFrameSize      = 256
	testHop            = 128
	testBandLow        = 600.0
	testBandHigh       = 1500.0
	testNormWindow     = 50
	testThreshold      = 0.65
	testDebounceFrames = 10
	testDebounceRatio  = 0.6
	testLatencyTarget  = 150.0
)

func newTestStages(t *testing.T, padPartial bool) Config {
	t.Helper()

	windower, err := dsp.NewWindower(dsp.WindowerConfig{
		FrameSize:  testFrameSize,
		Hop:        testHop,
		PadPartial: padPartial,
	})
	if err != nil {
		t.Fatalf("NewWindower failed: %v", err)
	}
	analyzer, err := dsp.NewSpectralAnalyzer(dsp.AnalyzerConfig{
		SampleRate: testSampleRate,
		FrameSize:  testFrameSize,
		BandLowHz:  testBandLow,
		BandHighHz: testBandHigh,
		NormWindow: testNormWindow,
	})
	if err != nil {
		t.Fatalf("NewSpectralAnalyzer failed: %v", err)
	}
	classifier, err := dsp.NewSirenClassifier(dsp.ClassifierConfig{
		Threshold:      testThreshold,
		DebounceFrames: testDebounceFrames,
		DebounceRatio:  testDebounceRatio,
	})
	if err != nil {
		t.Fatalf("NewSirenClassifier failed: %v", err)
	}

	return Config{
		Windower:   windower,
		Analyzer:   analyzer,
		Classifier: classifier,
		Controller: signal.NewController(),
		Logger:     zap.NewNop().Sugar(),
	}
}

func newTestPipeline(t *testing.T, rec *metrics.Recorder) *Pipeline {
	t.Helper()
	cfg := newTestStages(t, false)
	cfg.Recorder = rec
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func newTestRecorder(truth []metrics.Interval) *metrics.Recorder {
	return metrics.NewRecorder(metrics.Config{
		SampleRate:      testSampleRate,
		FrameSize:       testFrameSize,
		Hop:             testHop,
		DebounceFrames:  testDebounceFrames,
		LatencyTargetMs: testLatencyTarget,
		Truth:           truth,
	})
}

// feed buffers the whole signal as capture-sized chunks and closes the
// channel, so Run drains it without a producer goroutine.
func feed(samples []float64) <-chan []float32 {
	const chunk = 256
	ch := make(chan []float32, len(samples)/chunk+2)
	for i := 0; i < len(samples); i += chunk {
		end := i + chunk
		if end > len(samples) {
			end = len(samples)
		}
		ch <- synth.ToFloat32(samples[i:end])
	}
	close(ch)
	return ch
}

func TestNew_NilStage(t *testing.T) {
	testCases := []struct {
		name   string
		mangle func(*Config)
	}{
		{"nil windower", func(c *Config) { c.Windower = nil }},
		{"nil analyzer", func(c *Config) { c.Analyzer = nil }},
		{"nil classifier", func(c *Config) { c.Classifier = nil }},
		{"nil controller", func(c *Config) { c.Controller = nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestStages(t, false)
			tc.mangle(&cfg)
			if _, err := New(cfg); err != ErrNilStage {
				t.Errorf("expected ErrNilStage, got: %v", err)
			}
		})
	}
}

func TestNew_FrameSizeMismatch(t *testing.T) {
	cfg := newTestStages(t, false)

	analyzer, err := dsp.NewSpectralAnalyzer(dsp.AnalyzerConfig{
		SampleRate: testSampleRate,
		FrameSize:  512,
		BandLowHz:  testBandLow,
		BandHighHz: testBandHigh,
		NormWindow: testNormWindow,
	})
	if err != nil {
		t.Fatalf("NewSpectralAnalyzer failed: %v", err)
	}
	cfg.Analyzer = analyzer

	if _, err := New(cfg); err != ErrFrameSizeMismatch {
		t.Errorf("expected ErrFrameSizeMismatch, got: %v", err)
	}
}

// TestPipeline_EndToEndSweptSirenAtNegativeSNR drives the whole detection
// chain with the reference scenario: 2 s of silence, 6 s of a 700-1400 Hz
// sweep buried in Gaussian noise at -5.5 dB SNR, then 2 s of silence. The
// siren must be granted exactly one emergency green, within the analytic
// latency bound, with no false positives, and the signal must have released
// to GreenNormal by the end of the tail.
func TestPipeline_EndToEndSweptSirenAtNegativeSNR(t *testing.T) {
	const (
		leadSamples = 2 * 8000
		toneSamples = 6 * 8000
		tailSamples = 2 * 8000
	)

	tone := synth.Chirp(700, 1400, testSampleRate, toneSamples)
	noise := synth.Noise(rand.New(rand.NewSource(1)), toneSamples)
	noisy, achieved := synth.MixAtSNR(tone, noise, -5.5)
	mix := synth.Concat(synth.Silence(leadSamples), noisy, synth.Silence(tailSamples))

	truth := []metrics.Interval{{OnsetSample: leadSamples, EndSample: leadSamples + toneSamples}}
	rec := newTestRecorder(truth)
	rec.SetMeasuredSNR(achieved)
	p := newTestPipeline(t, rec)

	if err := p.Run(context.Background(), feed(mix)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	report := rec.Report()

	if math.Abs(report.MeasuredSNRdB-(-5.5)) > 1e-9 {
		t.Errorf("MeasuredSNRdB = %v, want -5.5", report.MeasuredSNRdB)
	}
	if report.MissedEpisodes != 0 {
		t.Fatalf("MissedEpisodes = %d, want 0", report.MissedEpisodes)
	}
	if len(report.Episodes) != 1 {
		t.Fatalf("episodes = %d, want 1", len(report.Episodes))
	}

	// Latency can never exceed the debounce depth plus one frame of lookback:
	// ConfirmFrames hops to gather the votes, FrameSize samples before the
	// first decision exists.
	e := report.Episodes[0]
	bound := int64(7*testHop + testFrameSize)
	if e.LatencySamples <= 0 || e.LatencySamples > bound {
		t.Errorf("LatencySamples = %d, want in (0, %d]", e.LatencySamples, bound)
	}
	if !report.AllWithinTarget {
		t.Errorf("AllWithinTarget = false; latency %v ms against a %v ms target", e.LatencyMs, testLatencyTarget)
	}

	if report.FalsePositiveFrames != 0 {
		t.Errorf("FalsePositiveFrames = %d, want 0", report.FalsePositiveFrames)
	}
	if report.EmergencyGrants != 1 {
		t.Errorf("EmergencyGrants = %d, want 1", report.EmergencyGrants)
	}
	if report.PreemptionEngages < 1 {
		t.Errorf("PreemptionEngages = %d, want at least 1", report.PreemptionEngages)
	}

	// The sweep spans 375 hops; the confirmed stretch covers most of it
	if report.ConfirmedFrames < 300 || report.ConfirmedFrames > 400 {
		t.Errorf("ConfirmedFrames = %d, want in [300, 400]", report.ConfirmedFrames)
	}

	// The tail of silence must have released the preemption
	if got := p.State(); got != signal.GreenNormal {
		t.Errorf("final state = %v, want GreenNormal", got)
	}
}

func TestPipeline_SilenceNeverDetects(t *testing.T) {
	rec := newTestRecorder(nil)
	p := newTestPipeline(t, rec)

	if err := p.Run(context.Background(), feed(synth.Silence(2*8000))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	report := rec.Report()
	if report.ConfirmedFrames != 0 {
		t.Errorf("ConfirmedFrames = %d, want 0", report.ConfirmedFrames)
	}
	if report.FalsePositiveFrames != 0 {
		t.Errorf("FalsePositiveFrames = %d, want 0", report.FalsePositiveFrames)
	}
	if got := p.State(); got != signal.Red {
		t.Errorf("final state = %v, want Red", got)
	}
}

func TestPipeline_RunResetsBetweenRuns(t *testing.T) {
	p := newTestPipeline(t, nil)

	// First run ends while the siren is still sounding, leaving the signal
	// preempted
	if err := p.Run(context.Background(), feed(synth.Tone(1000, testSampleRate, 8000))); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if got := p.State(); !got.Preempted() {
		t.Fatalf("state after siren run = %v, want a preempted state", got)
	}
	firstFrames := p.FramesProcessed()

	// The second run must start over from Red with empty windows
	if err := p.Run(context.Background(), feed(synth.Silence(8000))); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if got := p.State(); got != signal.Red {
		t.Errorf("state after silence run = %v, want Red", got)
	}
	if p.FramesProcessed() != firstFrames {
		t.Errorf("FramesProcessed = %d, want a fresh count of %d", p.FramesProcessed(), firstFrames)
	}
}

func TestPipeline_CancelReturnsContextError(t *testing.T) {
	p := newTestPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan []float32)
	if err := p.Run(ctx, ch); err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestPipeline_FlushOnClose(t *testing.T) {
	testCases := []struct {
		name       string
		padPartial bool
		wantFrames int64
	}{
		{"partial frame padded", true, 2},
		{"partial frame discarded", false, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestStages(t, tc.padPartial)
			p, err := New(cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			// One full frame plus 44 leftover samples
			if err := p.Run(context.Background(), feed(synth.Silence(300))); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if got := p.FramesProcessed(); got != tc.wantFrames {
				t.Errorf("FramesProcessed = %d, want %d", got, tc.wantFrames)
			}
		})
	}
}

func TestPipeline_SanitizeHandlesHostileInput(t *testing.T) {
	p := newTestPipeline(t, nil)

	hostile := make([]float32, 2*testFrameSize)
	for i := range hostile {
		switch i % 4 {
		case 0:
			hostile[i] = float32(math.NaN())
		case 1:
			hostile[i] = float32(math.Inf(1))
		case 2:
			hostile[i] = float32(math.Inf(-1))
		default:
			hostile[i] = 7.5
		}
	}

	ch := make(chan []float32, 1)
	ch <- hostile
	close(ch)

	if err := p.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Three frames of clamped garbage cannot fill the debounce window
	if got := p.State(); got != signal.Red {
		t.Errorf("final state = %v, want Red", got)
	}
}
