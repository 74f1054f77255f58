// internal/pipeline/pipeline.go

// Package pipeline runs the detection chain: windowing, spectral analysis,
// classification, and signal control, in that order, on a single goroutine.
// Frames are processed strictly in arrival order; no frame is dropped or
// reordered between stages.
package pipeline

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ColonelBlimp/sirengate/internal/dsp"
	"github.com/ColonelBlimp/sirengate/internal/logging"
	"github.com/ColonelBlimp/sirengate/internal/metrics"
	"github.com/ColonelBlimp/sirengate/internal/signal"
)

var (
	// ErrNilStage indicates a required pipeline stage was not provided
	ErrNilStage = errors.New("pipeline stage must not be nil")
	// ErrFrameSizeMismatch indicates the windower and analyzer disagree on frame size
	ErrFrameSizeMismatch = errors.New("windower and analyzer frame sizes must match")
)

// Config holds the assembled pipeline stages. Windower, Analyzer, Classifier
// and Controller are required; Recorder and Logger are optional.
type Config struct {
	Windower   *dsp.Windower
	Analyzer   *dsp.SpectralAnalyzer
	Classifier *dsp.SirenClassifier
	Controller *signal.Controller
	Recorder   *metrics.Recorder
	Logger     *zap.SugaredLogger
}

// Pipeline consumes capture chunks and drives the signal controller. The
// per-frame processing budget is one hop interval: a frame that takes longer
// is surfaced as an overrun and degrades to a non-detection for that frame,
// so a stalled analyzer can never hold a stale preemption.
type Pipeline struct {
	windower   *dsp.Windower
	analyzer   *dsp.SpectralAnalyzer
	classifier *dsp.SirenClassifier
	controller *signal.Controller
	recorder   *metrics.Recorder
	log        *zap.SugaredLogger

	sampleRate float64
	budget     time.Duration

	scratch []float64

	framesProcessed int64
	overruns        int64
}

// New creates a pipeline from already-constructed stages. Returns an error
// if a required stage is missing or the stages disagree on frame geometry.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Windower == nil || cfg.Analyzer == nil || cfg.Classifier == nil || cfg.Controller == nil {
		return nil, ErrNilStage
	}
	if cfg.Windower.Config().FrameSize != cfg.Analyzer.Config().FrameSize {
		return nil, ErrFrameSizeMismatch
	}
	log := cfg.Logger
	if log == nil {
		log = logging.GetLogger()
	}

	rate := cfg.Analyzer.Config().SampleRate
	hop := cfg.Windower.Config().Hop

	return &Pipeline{
		windower:   cfg.Windower,
		analyzer:   cfg.Analyzer,
		classifier: cfg.Classifier,
		controller: cfg.Controller,
		recorder:   cfg.Recorder,
		log:        log,
		sampleRate: rate,
		budget:     time.Duration(float64(hop) / rate * float64(time.Second)),
	}, nil
}

// Run consumes chunks from samples until the channel closes or ctx is
// canceled. All detection state is reset on entry, so every run starts from
// Red with empty windows. On channel close the final partial frame is
// flushed through the windower before returning nil; on cancellation any
// partial frame is discarded and the context error is returned.
func (p *Pipeline) Run(ctx context.Context, samples <-chan []float32) error {
	p.Reset()

	p.log.Infow("pipeline started",
		"sampleRate", p.sampleRate,
		"frameSize", p.windower.Config().FrameSize,
		"hop", p.windower.Config().Hop,
		"frameBudget", p.budget,
	)

	for {
		select {
		case <-ctx.Done():
			p.windower.Reset()
			p.log.Infow("pipeline canceled", "framesProcessed", p.framesProcessed)
			return ctx.Err()
		case chunk, ok := <-samples:
			if !ok {
				if frame, ok := p.windower.Flush(); ok {
					p.processFrame(frame)
				}
				p.log.Infow("pipeline stopped",
					"framesProcessed", p.framesProcessed,
					"overruns", p.overruns,
				)
				return nil
			}
			for _, frame := range p.windower.Push(p.sanitize(chunk)) {
				p.processFrame(frame)
			}
		}
	}
}

// sanitize converts a capture chunk into the shared scratch buffer, mapping
// NaN to zero and clamping everything else to [-1, 1].
func (p *Pipeline) sanitize(chunk []float32) []float64 {
	if cap(p.scratch) < len(chunk) {
		p.scratch = make([]float64, len(chunk))
	}
	p.scratch = p.scratch[:len(chunk)]
	for i, v := range chunk {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			f = 0
		case f > 1:
			f = 1
		case f < -1:
			f = -1
		}
		p.scratch[i] = f
	}
	return p.scratch
}

func (p *Pipeline) processFrame(frame dsp.AudioFrame) {
	start := time.Now()
	energy := p.analyzer.Analyze(frame)
	verdict := p.classifier.Classify(energy)
	elapsed := time.Since(start)

	if elapsed > p.budget {
		p.overruns++
		p.log.Errorw("frame processing exceeded the hop interval",
			"elapsed", elapsed,
			"budget", p.budget,
			"frameStart", frame.Start,
		)
		if p.recorder != nil {
			p.recorder.RecordOverrun()
		}
		// Degrade to a non-detection for this frame; the raw verdict
		// already entered the debounce window
		verdict.Confirmed = false
	}

	prev := p.controller.State()
	state := p.controller.OnConfirmedDetection(verdict.Confirmed)

	if p.recorder != nil {
		p.recorder.Record(verdict)
		if state != prev {
			p.recorder.RecordTransition(prev, state)
		}
	}
	p.framesProcessed++
}

// FramesProcessed returns the frames handled so far. Safe to read after Run
// returns.
func (p *Pipeline) FramesProcessed() int64 {
	return p.framesProcessed
}

// Overruns returns the deadline overruns so far. Safe to read after Run
// returns.
func (p *Pipeline) Overruns() int64 {
	return p.overruns
}

// State returns the current signal state.
func (p *Pipeline) State() signal.LightState {
	return p.controller.State()
}

// Reset clears all detection state and returns the signal to Red. The
// recorder is a passive sink owned by the caller and is left untouched.
func (p *Pipeline) Reset() {
	p.windower.Reset()
	p.analyzer.Reset()
	p.classifier.Reset()
	p.controller.Reset()
	p.framesProcessed = 0
	p.overruns = 0
}
