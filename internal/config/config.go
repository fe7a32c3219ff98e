// Package config loads the immutable Configuration record used by every
// other component. Configuration is loaded once at startup from a JSON
// file (or, in legacy mode, synthesized from positional CLI arguments)
// and never mutated afterward — there is no reload or environment
// variable overlay in this system.
package config

import (
	"fmt"
	"time"
)

// Fixed internal constants the spec does not expose as config keys.
const (
	OutChannels            = 2
	DefaultSRTTimeout      = 2 * time.Second
	DefaultSRTRetryBackoff = 500 * time.Millisecond
)

// Config is the immutable, process-wide configuration record.
type Config struct {
	SRTURL   string `koanf:"srt_url"`
	BGFile   string `koanf:"bg_file"`
	StreamID string `koanf:"stream_id"`

	OutWidth  int `koanf:"out_width"`
	OutHeight int `koanf:"out_height"`
	OutFPS    int `koanf:"out_fps"`

	VideoBitrate int `koanf:"video_bitrate"`
	AudioBitrate int `koanf:"audio_bitrate"`
	SampleRate   int `koanf:"sample_rate"`

	BGUnmuteDelaySeconds float64 `koanf:"bg_unmute_delay"`

	// Fixed, not loaded from JSON, but carried on the record so every
	// component can read it off one object.
	OutChannels     int
	SRTTimeout      time.Duration
	SRTRetryBackoff time.Duration
}

// Defaults matches spec.md §6's default table exactly.
func Defaults() Config {
	return Config{
		BGFile:               "background.mp4",
		StreamID:             "",
		OutWidth:             1280,
		OutHeight:            720,
		OutFPS:               30,
		VideoBitrate:         4_000_000,
		AudioBitrate:         128_000,
		SampleRate:           48_000,
		BGUnmuteDelaySeconds: 5.0,
		OutChannels:          OutChannels,
		SRTTimeout:           DefaultSRTTimeout,
		SRTRetryBackoff:      DefaultSRTRetryBackoff,
	}
}

// BGUnmuteDelay returns the configured grace period as a Duration.
func (c Config) BGUnmuteDelay() time.Duration {
	return time.Duration(c.BGUnmuteDelaySeconds * float64(time.Second))
}

// Validate checks the one required field and the handful of values that
// must be positive for the rest of the pipeline to construct cleanly.
func (c Config) Validate() error {
	if c.SRTURL == "" {
		return fmt.Errorf("config: srt_url is required")
	}
	if c.OutWidth <= 0 || c.OutHeight <= 0 {
		return fmt.Errorf("config: out_width/out_height must be positive")
	}
	if c.OutFPS <= 0 {
		return fmt.Errorf("config: out_fps must be positive")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive")
	}
	return nil
}
