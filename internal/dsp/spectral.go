// internal/dsp/spectral.go
package dsp

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidBand indicates the band must satisfy 0 < low < high
	ErrInvalidBand = errors.New("band low must be positive and less than band high")
	// ErrBandAboveNyquist indicates the band must fit under the Nyquist frequency
	ErrBandAboveNyquist = errors.New("band high must not exceed the Nyquist frequency")
	// ErrEmptyBand indicates no transform bin falls inside the band
	ErrEmptyBand = errors.New("no transform bin falls inside the band; increase frame size or widen the band")
	// ErrInvalidNormWindow indicates the normalization window must hold at least one frame
	ErrInvalidNormWindow = errors.New("normalization window must be at least one frame")
)

// minReference is the floor for the normalization reference. It keeps
// silence at exactly zero instead of dividing zero by zero.
const minReference = 0.001

// BandEnergySample is the normalized mean magnitude across the target band
// for one frame. Energy is in [0,1]: the raw band mean divided by the
// maximum band mean seen over the recent normalization window.
type BandEnergySample struct {
	Start  int64
	Energy float64
}

// AnalyzerConfig holds configuration for the spectral analyzer.
// All values should come from the application config file.
type AnalyzerConfig struct {
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate float64
	// FrameSize is the transform size in samples (from config: window_size)
	FrameSize int
	// BandLowHz is the lower edge of the target band (from config: band_low_hz)
	BandLowHz float64
	// BandHighHz is the upper edge of the target band (from config: band_high_hz)
	BandHighHz float64
	// NormWindow is the number of recent frames the normalization reference
	// is tracked over (from config: normalization_window)
	NormWindow int
}

// SpectralAnalyzer converts audio frames into a normalized band-energy
// scalar. Each frame is Hann-windowed, transformed with a real FFT, and the
// mean magnitude across the bins whose center frequency lies inside the
// configured band is divided by a running maximum over the last NormWindow
// frames. The running maximum is bounded and causal; it never consults
// frames older than the window or frames that have not arrived yet.
type SpectralAnalyzer struct {
	config AnalyzerConfig

	fft    *fourier.FFT
	hann   []float64 // precomputed window coefficients
	binLow int       // first bin inside the band (inclusive)
	binHi  int       // last bin inside the band (inclusive)

	// Scratch buffers reused across frames
	windowed []float64
	coeffs   []complex128
	mags     []float64

	// Bounded history of raw band means for the running-maximum reference
	history []float64
	histIdx int
	histLen int
	lastRef float64
}

// NewSpectralAnalyzer creates an analyzer with the given configuration.
// Returns an error if the configuration is invalid or if the transform
// resolution cannot place a single bin inside the band.
func NewSpectralAnalyzer(cfg AnalyzerConfig) (*SpectralAnalyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.FrameSize <= 0 {
		return nil, ErrInvalidFrameSize
	}
	if cfg.BandLowHz <= 0 || cfg.BandLowHz >= cfg.BandHighHz {
		return nil, ErrInvalidBand
	}
	nyquist := cfg.SampleRate / 2.0
	if cfg.BandHighHz > nyquist {
		return nil, ErrBandAboveNyquist
	}
	if cfg.NormWindow < 1 {
		return nil, ErrInvalidNormWindow
	}

	// Bin i has center frequency i * sampleRate / frameSize. Select every
	// bin whose center lies inside [low, high].
	hzPerBin := cfg.SampleRate / float64(cfg.FrameSize)
	binLow := int(math.Ceil(cfg.BandLowHz / hzPerBin))
	binHi := int(math.Floor(cfg.BandHighHz / hzPerBin))
	if binHi > cfg.FrameSize/2 {
		binHi = cfg.FrameSize / 2
	}
	if binLow > binHi {
		return nil, ErrEmptyBand
	}

	// Hann window, computed once
	hann := make([]float64, cfg.FrameSize)
	for i := range hann {
		hann[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(cfg.FrameSize-1)))
	}

	return &SpectralAnalyzer{
		config:   cfg,
		fft:      fourier.NewFFT(cfg.FrameSize),
		hann:     hann,
		binLow:   binLow,
		binHi:    binHi,
		windowed: make([]float64, cfg.FrameSize),
		coeffs:   make([]complex128, cfg.FrameSize/2+1),
		mags:     make([]float64, cfg.FrameSize/2+1),
		history:  make([]float64, cfg.NormWindow),
	}, nil
}

// Analyze computes the normalized band energy for one frame. Silence (or any
// degenerate input) yields exactly 0; the result is never NaN or infinite.
func (a *SpectralAnalyzer) Analyze(frame AudioFrame) BandEnergySample {
	// Window into the scratch buffer; a short final frame is treated as
	// zero-padded.
	n := len(frame.Samples)
	if n > a.config.FrameSize {
		n = a.config.FrameSize
	}
	for i := 0; i < n; i++ {
		a.windowed[i] = frame.Samples[i] * a.hann[i]
	}
	for i := n; i < a.config.FrameSize; i++ {
		a.windowed[i] = 0
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	// One-sided magnitude spectrum, then the mean across the band bins.
	// Bins outside the band are never consulted.
	scale := 2.0 / float64(a.config.FrameSize)
	var sum float64
	for i := a.binLow; i <= a.binHi; i++ {
		m := cmplx.Abs(a.coeffs[i]) * scale
		a.mags[i] = m
		sum += m
	}
	mean := sum / float64(a.binHi-a.binLow+1)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		mean = 0
	}

	// Update the bounded history, current frame included, and take the
	// window maximum as the normalization reference.
	a.history[a.histIdx] = mean
	a.histIdx = (a.histIdx + 1) % len(a.history)
	if a.histLen < len(a.history) {
		a.histLen++
	}
	ref := minReference
	for i := 0; i < a.histLen; i++ {
		if a.history[i] > ref {
			ref = a.history[i]
		}
	}
	a.lastRef = ref

	return BandEnergySample{Start: frame.Start, Energy: mean / ref}
}

// BinRange returns the inclusive bin indices selected for the band.
func (a *SpectralAnalyzer) BinRange() (low, high int) {
	return a.binLow, a.binHi
}

// FrequencyForBin returns the center frequency in Hz of the given bin.
func (a *SpectralAnalyzer) FrequencyForBin(bin int) float64 {
	return float64(bin) * a.config.SampleRate / float64(a.config.FrameSize)
}

// Reference returns the current normalization reference (for monitoring).
func (a *SpectralAnalyzer) Reference() float64 {
	return a.lastRef
}

// Magnitudes returns a copy of the band-bin magnitudes from the most recent
// frame. Only bins inside the band carry values. Not safe to call
// concurrently with Analyze.
func (a *SpectralAnalyzer) Magnitudes() []float64 {
	out := make([]float64, len(a.mags))
	copy(out, a.mags)
	return out
}

// Reset clears the normalization history (restart support).
func (a *SpectralAnalyzer) Reset() {
	a.histIdx = 0
	a.histLen = 0
	a.lastRef = 0
	for i := range a.history {
		a.history[i] = 0
	}
}

// Config returns the current configuration.
func (a *SpectralAnalyzer) Config() AnalyzerConfig {
	return a.config
}
