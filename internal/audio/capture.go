// internal/audio/capture.go
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/ColonelBlimp/sirengate/internal/logging"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 8000
	Channels    uint32 // interleaved channels are averaged down to mono
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns sensible defaults for roadside siren detection
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  8000,
		Channels:    1,
		BufferSize:  256,
	}
}

// SampleCallback is called directly from the audio thread with new samples.
// Use for low-latency processing. Must be non-blocking and fast.
type SampleCallback func(samples []float32)

// Capture streams mono audio from a capture device into the Samples channel.
// The channel carries float32 samples normalized to [-1.0, 1.0]; it is
// closed by Close, which the pipeline treats as end of stream.
type Capture struct {
	config   Config
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	mu       sync.RWMutex
	callback atomic.Pointer[SampleCallback]
	dropped  atomic.Uint64

	Samples chan []float32
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{
		config:  cfg,
		Samples: make(chan []float32, 64),
	}
}

// SetCallback sets a callback for real-time sample processing. The callback
// is invoked directly from the audio thread - it must be non-blocking and
// fast. Pass nil to remove the callback.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callback.Store(nil)
		return
	}
	c.callback.Store(&cb)
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctxConfig := malgo.ContextConfig{}
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx
	logging.GetLogger().Debug("audio backend initialized")

	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start begins audio capture
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.ctx == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.mu.Unlock()

	deviceConfig := malgo.DeviceConfig{
		DeviceType:         malgo.Capture,
		SampleRate:         c.config.SampleRate,
		PeriodSizeInFrames: c.config.BufferSize,
		Capture: malgo.SubConfig{
			Format:   malgo.FormatF32,
			Channels: c.config.Channels,
		},
	}

	// Resolve the requested device before opening anything
	if c.config.DeviceIndex >= 0 {
		devices, err := c.ListDevices()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[c.config.DeviceIndex].ID.Pointer()
	}

	log := logging.GetLogger()

	onRecvFrames := func(outputSamples, inputSamples []byte, frameCount uint32) {
		if len(inputSamples) == 0 {
			return
		}

		samples := toMonoFloat32(inputSamples, int(c.config.Channels))

		if cb := c.callback.Load(); cb != nil {
			(*cb)(samples)
		}

		// Non-blocking send; the audio thread must never stall on a
		// slow consumer. Drops are counted and surfaced.
		select {
		case c.Samples <- samples:
		default:
			if n := c.dropped.Add(1); n == 1 || n%256 == 0 {
				log.Warnw("capture consumer too slow, dropping samples", "dropped", n)
			}
		}
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: onRecvFrames,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.running = true
	c.mu.Unlock()

	log.Infow("audio capture started",
		"device", c.config.DeviceIndex,
		"sampleRate", c.config.SampleRate,
		"bufferSize", c.config.BufferSize,
	)

	// Stop capture when the context is canceled
	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return nil
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}

	c.running = false
	logging.GetLogger().Infow("audio capture stopped", "dropped", c.dropped.Load())
	return nil
}

// Close releases all audio resources and closes the Samples channel,
// signaling end of stream to the consumer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running && c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
		c.running = false
	}

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}

	close(c.Samples)
	return nil
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Dropped returns the count of chunks dropped because the consumer lagged
// (for testing/monitoring).
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// toMonoFloat32 converts raw little-endian float32 bytes to mono samples,
// averaging interleaved channels.
func toMonoFloat32(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	numSamples := len(data) / 4
	numFrames := numSamples / channels
	samples := make([]float32, numFrames)

	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			offset := (i*channels + ch) * 4
			bits := uint32(data[offset]) |
				uint32(data[offset+1])<<8 |
				uint32(data[offset+2])<<16 |
				uint32(data[offset+3])<<24
			sum += math.Float32frombits(bits)
		}
		samples[i] = sum / float32(channels)
	}

	return samples
}
