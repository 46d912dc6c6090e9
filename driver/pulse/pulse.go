// Package pulse registers pcm driver that plays and captures through
// PulseAudio native protocol. Pulse pulls samples from its own goroutine, so
// driver keeps lock-free rings between the stream callbacks and the render
// goroutine.
package pulse

import (
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/internal/lfq"
	"github.com/dudk/sonic/pcm"
)

// Name of the driver in pcm registry.
const Name = "pulse"

// defaultLatency is used when config doesn't request latency.
const defaultLatency = 50 * time.Millisecond

func init() {
	pcm.Register(Name, Open)
}

// Driver is a stereo pulse playback stream and optional record stream.
type Driver struct {
	client     *pulse.Client
	playback   *pulse.PlaybackStream
	record     *pulse.RecordStream
	sampleRate int
	channels   int
	out        *ring
	in         *ring
}

// Open connects to the pulse server and starts streams.
func Open(config pcm.DriverConfig) (pcm.Driver, error) {
	op := fmt.Sprintf("open pcm driver %s", Name)
	if config.Channels != 2 {
		return nil, sonic.NewError(sonic.ErrFormatUnsupported, op, fmt.Errorf("%d channels", config.Channels))
	}
	latency := config.Latency
	if latency <= 0 {
		latency = defaultLatency
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName("sonic"))
	if err != nil {
		return nil, sonic.NewError(sonic.ErrDeviceOpen, op, err)
	}
	size := 2 * config.Channels * int(latency.Seconds()*float64(config.SampleRate))
	if floor := 2 * config.Channels * config.BlockSize; size < floor {
		size = floor
	}
	d := &Driver{
		client:     client,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		out:        newRing(size),
	}
	d.playback, err = client.NewPlayback(
		pulse.Float32Reader(d.out.pull),
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(config.SampleRate),
		pulse.PlaybackLatency(latency.Seconds()),
	)
	if err != nil {
		client.Close()
		return nil, sonic.NewError(sonic.ErrDeviceOpen, op, err)
	}
	if config.Capture {
		d.in = newRing(size)
		d.record, err = client.NewRecord(
			pulse.Float32Writer(d.in.push),
			pulse.RecordStereo,
			pulse.RecordSampleRate(config.SampleRate),
			pulse.RecordLatency(latency.Seconds()),
		)
		if err != nil {
			d.playback.Close()
			client.Close()
			return nil, sonic.NewError(sonic.ErrDeviceOpen, op, err)
		}
		d.record.Start()
	}
	d.playback.Start()
	return d, nil
}

// PCMFrequency implements pcm.Driver.
func (d *Driver) PCMFrequency() int {
	return d.sampleRate
}

// Readable implements pcm.Driver.
func (d *Driver) Readable() bool {
	return d.record != nil
}

// Writable implements pcm.Driver.
func (d *Driver) Writable() bool {
	return true
}

// CheckIO implements pcm.Driver.
func (d *Driver) CheckIO(frames int, timeout *time.Duration) bool {
	free := d.out.free() / d.channels
	if free >= frames {
		return true
	}
	if timeout != nil {
		*timeout = sonic.DurationOf(d.sampleRate, int64(frames-free))
	}
	return false
}

// Read implements pcm.Driver.
func (d *Driver) Read(buf []float32) (int, error) {
	if d.in == nil {
		return 0, sonic.NewError(sonic.ErrDeviceNotCapture, "read pcm", nil)
	}
	return d.in.queue.DequeueSlice(buf), nil
}

// Write implements pcm.Driver. Values that don't fit are dropped.
func (d *Driver) Write(buf []float32) error {
	if err := d.playback.Error(); err != nil {
		return err
	}
	d.out.queue.EnqueueSlice(buf)
	return nil
}

// Close stops streams and disconnects from server.
func (d *Driver) Close() error {
	if d.record != nil {
		d.record.Close()
	}
	d.playback.Close()
	d.client.Close()
	return nil
}

// ring passes interleaved values between render goroutine and pulse.
type ring struct {
	queue *lfq.SPSC[float32]
}

func newRing(size int) *ring {
	return &ring{queue: lfq.NewSPSC[float32](size)}
}

func (r *ring) free() int {
	return r.queue.Cap() - r.queue.Len()
}

// pull fills buf for playback. Missing values are silence.
func (r *ring) pull(buf []float32) (int, error) {
	n := r.queue.DequeueSlice(buf)
	clear(buf[n:])
	return len(buf), nil
}

// push stores recorded values. Values that don't fit are dropped.
func (r *ring) push(buf []float32) (int, error) {
	r.queue.EnqueueSlice(buf)
	return len(buf), nil
}
