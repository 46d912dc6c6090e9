// Package portaudio registers pcm driver that plays and captures through
// portaudio blocking streams.
package portaudio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/pcm"
)

// Name of the driver in pcm registry.
const Name = "portaudio"

func init() {
	pcm.Register(Name, Open)
}

// Driver is portaudio stream opened for playback and optionally capture.
type Driver struct {
	stream     *portaudio.Stream
	sampleRate int
	channels   int
	capture    bool
	out        []float32
	in         []float32
}

// Open initializes portaudio and starts the stream on requested device. Empty
// device name means default device.
func Open(config pcm.DriverConfig) (pcm.Driver, error) {
	op := fmt.Sprintf("open pcm driver %s", Name)
	if err := portaudio.Initialize(); err != nil {
		return nil, sonic.NewError(sonic.ErrDeviceOpen, op, err)
	}
	d, err := open(config)
	if err != nil {
		portaudio.Terminate()
		if errors.Is(err, portaudio.DeviceUnavailable) {
			return nil, sonic.NewError(sonic.ErrDeviceBusy, op, err)
		}
		return nil, sonic.NewError(sonic.ErrDeviceOpen, op, err)
	}
	return d, nil
}

func open(config pcm.DriverConfig) (*Driver, error) {
	out, err := device(config.Device)
	if err != nil {
		return nil, err
	}
	var in *portaudio.DeviceInfo
	if config.Capture {
		if in, err = portaudio.DefaultInputDevice(); err != nil {
			return nil, err
		}
	}
	params := portaudio.HighLatencyParameters(in, out)
	params.Output.Channels = config.Channels
	if in != nil {
		params.Input.Channels = config.Channels
	}
	if config.Latency > 0 {
		params.Output.Latency = config.Latency
		params.Input.Latency = config.Latency
	}
	params.SampleRate = float64(config.SampleRate)
	params.FramesPerBuffer = config.BlockSize

	d := &Driver{
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		capture:    in != nil,
		out:        make([]float32, config.BlockSize*config.Channels),
	}
	if d.capture {
		d.in = make([]float32, config.BlockSize*config.Channels)
		d.stream, err = portaudio.OpenStream(params, d.in, d.out)
	} else {
		d.stream, err = portaudio.OpenStream(params, d.out)
	}
	if err != nil {
		return nil, err
	}
	if err = d.stream.Start(); err != nil {
		d.stream.Close()
		return nil, err
	}
	if info := d.stream.Info(); info != nil && info.SampleRate > 0 {
		d.sampleRate = int(info.SampleRate)
	}
	return d, nil
}

// device finds output device by name.
func device(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q not found", name)
}

// PCMFrequency implements pcm.Driver.
func (d *Driver) PCMFrequency() int {
	return d.sampleRate
}

// Readable implements pcm.Driver.
func (d *Driver) Readable() bool {
	return d.capture
}

// Writable implements pcm.Driver.
func (d *Driver) Writable() bool {
	return true
}

// CheckIO implements pcm.Driver.
func (d *Driver) CheckIO(frames int, timeout *time.Duration) bool {
	available, err := d.stream.AvailableToWrite()
	if err != nil || available >= frames {
		// errors are returned by the following write.
		return true
	}
	if timeout != nil {
		*timeout = sonic.DurationOf(d.sampleRate, int64(frames-available))
	}
	return false
}

// Read implements pcm.Driver.
func (d *Driver) Read(buf []float32) (int, error) {
	if !d.capture {
		return 0, sonic.NewError(sonic.ErrDeviceNotCapture, "read pcm", nil)
	}
	if err := d.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, err
	}
	return copy(buf, d.in), nil
}

// Write implements pcm.Driver. Underflows are ignored.
func (d *Driver) Write(buf []float32) error {
	n := copy(d.out, buf)
	clear(d.out[n:])
	if err := d.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return err
	}
	return nil
}

// Close stops the stream and terminates portaudio. All steps are attempted,
// their errors are joined.
func (d *Driver) Close() error {
	return errors.Join(
		d.stream.Stop(),
		d.stream.Close(),
		portaudio.Terminate(),
	)
}
