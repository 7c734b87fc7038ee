package pwar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of fields the session lifecycle needs (§4.8,
// §6). Restart-only fields require tearing the session down and
// re-initializing it to take effect; PassthroughTest is the one
// runtime-mutable field.
type Config struct {
	Backend BackendKind `yaml:"backend"`

	StreamIP   string `yaml:"stream_ip"`
	StreamPort int    `yaml:"stream_port"`

	SampleRate       int `yaml:"sample_rate"`
	BufferSize       int `yaml:"buffer_size"`       // device (callback) buffer, in frames
	PacketBufferSize int `yaml:"packet_buffer_size"` // must be a multiple of BufferSize
	RingBufferDepth  int `yaml:"ring_buffer_depth"`

	CaptureDevice  string `yaml:"capture_device"`
	PlaybackDevice string `yaml:"playback_device"`

	PassthroughTest bool `yaml:"passthrough_test"`

	AudioStatsIntervalSec int    `yaml:"audio_stats_interval_sec"`
	TimestampFormat       string `yaml:"timestamp_format"`
}

// DefaultConfig returns the baseline configuration used when no flags or
// file override a field.
func DefaultConfig() Config {
	return Config{
		Backend:               BackendSimulated,
		StreamIP:              "127.0.0.1",
		StreamPort:            8321,
		SampleRate:            48000,
		BufferSize:            128,
		PacketBufferSize:      256,
		RingBufferDepth:       1024,
		AudioStatsIntervalSec: 100,
	}
}

// LoadConfigFile reads YAML key/value overrides from path into a copy of
// base, for the --config-file front-end option; CLI flags that were
// explicitly set should still take precedence over this (§6: "Persisted
// state: None on Linux" concerns the session's own state, not optional
// input configuration).
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("pwar: read config file %q: %w", path, err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("pwar: parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration-level invariants (§3, §6, §7):
// well-formed chunk sizes, a valid backend kind, and a positive port.
func (c Config) Validate() error {
	if c.BufferSize < MinChunk || c.BufferSize > MaxChunk {
		return fmt.Errorf("pwar: buffer_size %d outside [%d, %d]", c.BufferSize, MinChunk, MaxChunk)
	}
	if c.PacketBufferSize%c.BufferSize != 0 {
		return fmt.Errorf("pwar: packet_buffer_size %d is not a multiple of buffer_size %d", c.PacketBufferSize, c.BufferSize)
	}
	if c.RingBufferDepth <= 0 {
		return fmt.Errorf("pwar: ring_buffer_depth must be positive, got %d", c.RingBufferDepth)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("pwar: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.StreamPort <= 0 || c.StreamPort > 65535 {
		return fmt.Errorf("pwar: stream_port %d out of range", c.StreamPort)
	}
	switch c.Backend {
	case BackendALSA, BackendPipeWire, BackendSimulated, BackendPortAudio:
	default:
		return fmt.Errorf("pwar: unknown backend %q", c.Backend)
	}
	return nil
}

// restartOnlyDiffers reports whether any field that requires a full
// session restart differs between c and other (§4.8: update_config).
func (c Config) restartOnlyDiffers(other Config) bool {
	return c.BufferSize != other.BufferSize ||
		c.RingBufferDepth != other.RingBufferDepth ||
		c.StreamIP != other.StreamIP ||
		c.StreamPort != other.StreamPort ||
		c.Backend != other.Backend
}
