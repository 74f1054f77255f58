// internal/dsp/classifier.go
package dsp

import "errors"

var (
	// ErrInvalidThreshold indicates the detection threshold must be in (0,1]
	ErrInvalidThreshold = errors.New("detection threshold must be greater than 0 and at most 1")
	// ErrInvalidDebounceFrames indicates the debounce window must hold at least one frame
	ErrInvalidDebounceFrames = errors.New("debounce window must be at least one frame")
	// ErrInvalidDebounceRatio indicates the debounce ratio must be in (0,1]
	ErrInvalidDebounceRatio = errors.New("debounce ratio must be greater than 0 and at most 1")
)

// DetectionSample is the classifier verdict for one frame. Raw is the
// instantaneous threshold comparison; Confirmed is the debounced decision
// the signal controller acts on.
type DetectionSample struct {
	Start     int64
	Raw       bool
	Confirmed bool
}

// ClassifierConfig holds configuration for the siren classifier.
// All values should come from the application config file.
type ClassifierConfig struct {
	// Threshold is the normalized band energy above which a frame counts
	// as a raw detection (from config: threshold)
	Threshold float64
	// DebounceFrames is the size of the recent-verdict window
	// (from config: debounce_frames)
	DebounceFrames int
	// DebounceRatio is the fraction of the window that must be raw
	// detections, exceeded strictly, before a detection is confirmed
	// (from config: debounce_ratio)
	DebounceRatio float64
}

// SirenClassifier turns per-frame band energy into debounced detection
// verdicts. A ring buffer holds the raw verdict for each of the last
// DebounceFrames frames; the detection is confirmed only while the count of
// raw detections in the ring, divided by the full window size, strictly
// exceeds DebounceRatio. Frames not yet seen count as non-detections, so a
// freshly created or reset classifier cannot confirm before the window has
// accumulated enough evidence.
type SirenClassifier struct {
	config ClassifierConfig

	ring      []bool
	idx       int
	trueCount int
}

// NewSirenClassifier creates a classifier with the given configuration.
// Returns an error if the configuration is invalid.
func NewSirenClassifier(cfg ClassifierConfig) (*SirenClassifier, error) {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if cfg.DebounceFrames < 1 {
		return nil, ErrInvalidDebounceFrames
	}
	if cfg.DebounceRatio <= 0 || cfg.DebounceRatio > 1 {
		return nil, ErrInvalidDebounceRatio
	}
	return &SirenClassifier{
		config: cfg,
		ring:   make([]bool, cfg.DebounceFrames),
	}, nil
}

// Classify records the raw verdict for one frame and returns both the raw
// and the debounced confirmed decision.
func (c *SirenClassifier) Classify(s BandEnergySample) DetectionSample {
	raw := s.Energy > c.config.Threshold

	// Replace the oldest verdict, keeping the running count incremental
	if c.ring[c.idx] {
		c.trueCount--
	}
	c.ring[c.idx] = raw
	if raw {
		c.trueCount++
	}
	c.idx = (c.idx + 1) % len(c.ring)

	confirmed := float64(c.trueCount)/float64(len(c.ring)) > c.config.DebounceRatio

	return DetectionSample{Start: s.Start, Raw: raw, Confirmed: confirmed}
}

// ConfirmFrames returns the smallest count of raw detections within the
// window that yields a confirmed verdict. The comparison is strict, so a
// ratio that lands exactly on a whole frame count still requires one more.
func (c *SirenClassifier) ConfirmFrames() int {
	// Walk the counts with the same comparison Classify uses so the answer
	// cannot drift from the actual confirmation behavior.
	m := len(c.ring)
	for k := 1; k <= m; k++ {
		if float64(k)/float64(m) > c.config.DebounceRatio {
			return k
		}
	}
	return m + 1
}

// TrueCount returns the raw detections currently in the window (for
// testing/monitoring).
func (c *SirenClassifier) TrueCount() int {
	return c.trueCount
}

// Reset clears the debounce window (restart support).
func (c *SirenClassifier) Reset() {
	for i := range c.ring {
		c.ring[i] = false
	}
	c.idx = 0
	c.trueCount = 0
}

// Config returns the current configuration.
func (c *SirenClassifier) Config() ClassifierConfig {
	return c.config
}
