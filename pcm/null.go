package pcm

import (
	"time"
)

// NullDriver is the name of wall clock paced driver that discards output
// and reads silence.
const NullDriver = "null"

func init() {
	Register(NullDriver, func(config DriverConfig) (Driver, error) {
		return newNull(config, time.Now), nil
	})
}

// null plays into nothing at real time speed.
type null struct {
	config  DriverConfig
	now     func() time.Time
	started time.Time
	// written frames.
	written int64
	latency int64
}

func newNull(config DriverConfig, now func() time.Time) *null {
	latency := int64(config.Latency.Seconds() * float64(config.SampleRate))
	if latency < int64(config.BlockSize) {
		latency = int64(config.BlockSize)
	}
	return &null{
		config:  config,
		now:     now,
		latency: latency,
	}
}

func (d *null) PCMFrequency() int {
	return d.config.SampleRate
}

func (d *null) Readable() bool {
	return d.config.Capture
}

func (d *null) Writable() bool {
	return true
}

// CheckIO keeps written frames within latency of played frames.
func (d *null) CheckIO(frames int, timeout *time.Duration) bool {
	if d.started.IsZero() {
		return true
	}
	played := int64(d.now().Sub(d.started).Seconds() * float64(d.config.SampleRate))
	ahead := d.written + int64(frames) - played
	if ahead <= d.latency {
		return true
	}
	if timeout != nil {
		*timeout = time.Duration(float64(ahead-d.latency) / float64(d.config.SampleRate) * float64(time.Second))
	}
	return false
}

func (d *null) Read(buf []float32) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (d *null) Write(buf []float32) error {
	if d.started.IsZero() {
		d.started = d.now()
	}
	d.written += int64(len(buf) / d.config.Channels)
	return nil
}

func (d *null) Close() error {
	return nil
}
