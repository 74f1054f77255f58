// internal/dsp/windower.go
package dsp

import "errors"

var (
	// ErrInvalidFrameSize indicates frame size must be positive
	ErrInvalidFrameSize = errors.New("frame size must be positive")
	// ErrInvalidHop indicates hop must be positive and smaller than the frame size
	ErrInvalidHop = errors.New("hop must be positive and less than frame size")
)

// AudioFrame is one fixed-size window of the sample stream.
// Start is the absolute index of the frame's first sample, so frames are
// strictly ordered and no two frames share a timestamp. Samples is a fresh
// copy owned by the consumer; it never aliases the windower's buffer.
type AudioFrame struct {
	Start   int64
	Samples []float64
}

// WindowerConfig holds configuration for the stream windower.
// All values should come from the application config file.
type WindowerConfig struct {
	// FrameSize is the number of samples per frame (from config: window_size)
	FrameSize int
	// Hop is the number of samples to advance between frames (from config: window_hop)
	Hop int
	// PadPartial zero-pads the final partial frame at end of stream instead
	// of discarding it (from config: pad_partial). Padding adds one
	// trailing frame to latency accounting.
	PadPartial bool
}

// Windower slices a continuous sample stream into fixed-size overlapping
// frames in strict arrival order. It buffers internally and never drops or
// reorders samples; backpressure is the caller's synchronous call chain.
type Windower struct {
	config WindowerConfig

	buf   []float64
	start int64 // absolute index of buf[0]
}

// NewWindower creates a windower with the given configuration.
func NewWindower(cfg WindowerConfig) (*Windower, error) {
	if cfg.FrameSize <= 0 {
		return nil, ErrInvalidFrameSize
	}
	if cfg.Hop <= 0 || cfg.Hop >= cfg.FrameSize {
		return nil, ErrInvalidHop
	}

	return &Windower{
		config: cfg,
		buf:    make([]float64, 0, 2*cfg.FrameSize),
	}, nil
}

// Push appends samples to the internal buffer and returns every complete
// frame that can be extracted, in order. Each returned frame holds its own
// copy of the samples.
func (w *Windower) Push(samples []float64) []AudioFrame {
	w.buf = append(w.buf, samples...)

	var frames []AudioFrame
	for len(w.buf) >= w.config.FrameSize {
		frame := AudioFrame{
			Start:   w.start,
			Samples: make([]float64, w.config.FrameSize),
		}
		copy(frame.Samples, w.buf[:w.config.FrameSize])
		frames = append(frames, frame)

		// Slide the buffer by the hop
		copy(w.buf, w.buf[w.config.Hop:])
		w.buf = w.buf[:len(w.buf)-w.config.Hop]
		w.start += int64(w.config.Hop)
	}

	return frames
}

// Flush handles the partial frame left at end of stream. When PadPartial is
// set and samples remain, the remainder is zero-padded to a full frame and
// returned; otherwise the remainder is discarded. Either way the buffer is
// empty afterwards.
func (w *Windower) Flush() (AudioFrame, bool) {
	if len(w.buf) == 0 || !w.config.PadPartial {
		w.buf = w.buf[:0]
		return AudioFrame{}, false
	}

	frame := AudioFrame{
		Start:   w.start,
		Samples: make([]float64, w.config.FrameSize),
	}
	copy(frame.Samples, w.buf)
	w.buf = w.buf[:0]
	w.start += int64(w.config.Hop)
	return frame, true
}

// Buffered returns the number of samples currently held (for testing).
func (w *Windower) Buffered() int {
	return len(w.buf)
}

// Reset discards buffered samples and restarts the timestamp sequence.
func (w *Windower) Reset() {
	w.buf = w.buf[:0]
	w.start = 0
}

// Config returns the current configuration.
func (w *Windower) Config() WindowerConfig {
	return w.config
}
