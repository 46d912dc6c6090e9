package sonic

import (
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds engine-wide settings. It's created once per engine and
// passed by reference to all components of that engine.
type Config struct {
	SampleRate  int           `yaml:"sample_rate"`
	BlockSize   int           `yaml:"block_size"`
	ControlRate int           `yaml:"control_rate"`
	Latency     time.Duration `yaml:"latency"`
	Debug       bool          `yaml:"debug"`
}

// Option of a config.
type Option func(c *Config)

// SampleRate defines sample rate.
func SampleRate(sampleRate int) Option {
	return func(c *Config) {
		c.SampleRate = sampleRate
	}
}

// BlockSize defines number of frames rendered per block.
func BlockSize(blockSize int) Option {
	return func(c *Config) {
		c.BlockSize = blockSize
	}
}

// ControlRate defines how many frames pass between control-rate updates.
func ControlRate(frames int) Option {
	return func(c *Config) {
		c.ControlRate = frames
	}
}

// Latency defines the output latency requested from drivers.
func Latency(d time.Duration) Option {
	return func(c *Config) {
		c.Latency = d
	}
}

// Debug enables buffer canary and zero block checks on every block.
func Debug(enabled bool) Option {
	return func(c *Config) {
		c.Debug = enabled
	}
}

// NewConfig creates a new config with defaults and applies options.
func NewConfig(options ...Option) (*Config, error) {
	c := &Config{}
	for _, option := range options {
		option(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads config from YAML. Missing fields get default values.
func LoadConfig(r io.Reader) (*Config, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ControlMask returns the mask applied to frame counters to detect
// control-rate boundaries.
func (c *Config) ControlMask() uint64 {
	return uint64(c.ControlRate - 1)
}

// BlockDuration returns time duration of a single block.
func (c *Config) BlockDuration() time.Duration {
	return DurationOf(c.SampleRate, int64(c.BlockSize))
}

// DurationOf returns time duration of passed frames for this sample rate.
func DurationOf(sampleRate int, frames int64) time.Duration {
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

func (c *Config) validate() error {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.ControlRate == 0 {
		c.ControlRate = c.BlockSize
	}
	if c.Latency == 0 {
		c.Latency = 4 * c.BlockDuration()
	}
	switch {
	case c.SampleRate < 0:
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	case c.BlockSize < 0 || c.BlockSize > MaxBlockSize || !powerOfTwo(c.BlockSize):
		return fmt.Errorf("invalid block size: %d", c.BlockSize)
	case c.ControlRate < 0 || !powerOfTwo(c.ControlRate):
		return fmt.Errorf("invalid control rate: %d", c.ControlRate)
	}
	return nil
}

func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
