// Package pcm connects engine graphs to audio hardware.
package pcm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Driver is a hardware PCM device. Samples are interleaved float32 values.
// All methods except Close are called on render goroutine and must not
// block longer than it takes to transfer a block.
type Driver interface {
	// PCMFrequency returns actual sample rate of device.
	PCMFrequency() int
	// Readable reports if device was opened for capture.
	Readable() bool
	// Writable reports if device was opened for playback.
	Writable() bool
	// CheckIO reports if frames can be transferred without blocking. If
	// not, it may store a hint when it's worth to check again.
	CheckIO(frames int, timeout *time.Duration) bool
	// Read reads interleaved values into buf and returns number of values
	// read.
	Read(buf []float32) (int, error)
	// Write writes interleaved values.
	Write(buf []float32) error
	// Close releases device.
	Close() error
}

// DriverConfig is requested device configuration.
type DriverConfig struct {
	Device     string
	SampleRate int
	Channels   int
	BlockSize  int
	Latency    time.Duration
	// Capture requests device opened for reading as well.
	Capture bool
}

// OpenFunc opens driver.
type OpenFunc func(DriverConfig) (Driver, error)

var (
	// ErrUnknownDriver is returned when driver with provided name isn't
	// registered.
	ErrUnknownDriver = errors.New("unknown pcm driver")

	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes driver available by name. It panics if the same name is
// registered twice.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if open == nil {
		panic("pcm: register driver with nil open func")
	}
	if _, dup := drivers[name]; dup {
		panic("pcm: register called twice for driver " + name)
	}
	drivers[name] = open
}

// Drivers returns sorted list of registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens registered driver.
func Open(name string, config DriverConfig) (Driver, error) {
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	return open(config)
}
