// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/sirengate/internal/logging"
)

const (
	AppName       = "sirengate"
	ConfigType    = "yaml"
	DefaultConfig = `# Siren Gate Configuration

# Audio device settings
device_index: -1          # -1 for default capture device
sample_rate: 8000         # Audio sample rate in Hz
channels: 1               # Number of channels (interleaved input is mixed down to mono)
buffer_size: 256          # Frames per capture callback

# Analysis window
window_size: 256          # Frame size in samples (power of 2)
window_hop: 128           # Hop between successive frames, must be less than window_size
pad_partial: false        # Zero-pad the final partial frame instead of discarding it

# Siren band
band_low_hz: 600          # Lower edge of the siren band in Hz
band_high_hz: 1500        # Upper edge of the siren band in Hz (at most sample_rate/2)

# Detection
threshold: 0.65           # Normalized band energy above which a frame is a raw detection
debounce_frames: 10       # Recent frames considered for confirmation
debounce_ratio: 0.6       # Fraction of the window that raw detections must strictly exceed
normalization_window: 50  # Frames the normalization reference is tracked over

# Reporting
latency_target_ms: 150    # Confirmation latency target used in run reports

# Output
log_level: "info"         # debug, info, warn, or error
debug: false              # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Analysis window
	WindowSize int  `mapstructure:"window_size"`
	WindowHop  int  `mapstructure:"window_hop"`
	PadPartial bool `mapstructure:"pad_partial"`

	// Siren band
	BandLowHz  float64 `mapstructure:"band_low_hz"`
	BandHighHz float64 `mapstructure:"band_high_hz"`

	// Detection
	Threshold           float64 `mapstructure:"threshold"`
	DebounceFrames      int     `mapstructure:"debounce_frames"`
	DebounceRatio       float64 `mapstructure:"debounce_ratio"`
	NormalizationWindow int     `mapstructure:"normalization_window"`

	// Reporting
	LatencyTargetMs float64 `mapstructure:"latency_target_ms"`

	// Output
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/sirengate/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 8000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 256)
	viper.SetDefault("window_size", 256)
	viper.SetDefault("window_hop", 128)
	viper.SetDefault("pad_partial", false)
	viper.SetDefault("band_low_hz", 600)
	viper.SetDefault("band_high_hz", 1500)
	viper.SetDefault("threshold", 0.65)
	viper.SetDefault("debounce_frames", 10)
	viper.SetDefault("debounce_ratio", 0.6)
	viper.SetDefault("normalization_window", 50)
	viper.SetDefault("latency_target_ms", 150)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/sirengate/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges. Every
// violation is reported; the application refuses to start on any of them.
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 4000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 4000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}

	// Analysis window
	if s.WindowSize < 32 || s.WindowSize > 4096 {
		errs = append(errs, fmt.Errorf("window_size must be between 32 and 4096, got %d", s.WindowSize))
	}
	// Power of 2 keeps the transform on its fast path
	if s.WindowSize&(s.WindowSize-1) != 0 {
		errs = append(errs, fmt.Errorf("window_size must be a power of 2, got %d", s.WindowSize))
	}
	if s.WindowHop < 1 || s.WindowHop >= s.WindowSize {
		errs = append(errs, fmt.Errorf("window_hop must be between 1 and window_size-1, got %d", s.WindowHop))
	}

	// Siren band
	if s.BandLowHz <= 0 {
		errs = append(errs, fmt.Errorf("band_low_hz must be positive, got %v", s.BandLowHz))
	}
	if s.BandHighHz <= s.BandLowHz {
		errs = append(errs, fmt.Errorf("band_high_hz must be greater than band_low_hz, got %v", s.BandHighHz))
	}

	// Detection
	if s.Threshold <= 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be greater than 0.0 and at most 1.0, got %v", s.Threshold))
	}
	if s.DebounceFrames < 1 || s.DebounceFrames > 200 {
		errs = append(errs, fmt.Errorf("debounce_frames must be between 1 and 200, got %d", s.DebounceFrames))
	}
	if s.DebounceRatio <= 0.0 || s.DebounceRatio > 1.0 {
		errs = append(errs, fmt.Errorf("debounce_ratio must be greater than 0.0 and at most 1.0, got %v", s.DebounceRatio))
	}
	if s.NormalizationWindow < 1 || s.NormalizationWindow > 10000 {
		errs = append(errs, fmt.Errorf("normalization_window must be between 1 and 10000, got %d", s.NormalizationWindow))
	}

	// Reporting
	if s.LatencyTargetMs <= 0 {
		errs = append(errs, fmt.Errorf("latency_target_ms must be positive, got %v", s.LatencyTargetMs))
	}

	// Output
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", s.LogLevel))
	}

	// Nyquist check: the whole band must sit below half the sample rate
	if s.BandHighHz > s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("band_high_hz (%v Hz) must not exceed the Nyquist frequency (%v Hz)", s.BandHighHz, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
