package pcm

import (
	"errors"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/processor"
	"github.com/dudk/sonic/shm"
	"github.com/dudk/sonic/signal"
)

// Bridge owns output and input modules that connect engine graphs to a
// driver. Output module sums its two joint inputs and main stereo outputs
// of root processors, input module splits driver input into two outputs.
type Bridge struct {
	engine    *engine.Engine
	driver    Driver
	log       log.Logger
	procs     *processor.Engine
	broadcast []float32

	output *engine.Module
	input  *engine.Module
	poll   *engine.Poll

	// fields below are owned by the render goroutine.
	left, right *signal.FloatBuffer
	out         []float32
	in          []float32
	capture     *capture
	writeFailed bool
	readFailed  bool
	checked     bool
}

// BridgeOption provides a way to set functional parameters to bridge.
type BridgeOption func(b *Bridge)

// WithLogger sets logger to bridge.
func WithLogger(l log.Logger) BridgeOption {
	return func(b *Bridge) {
		b.log = l
	}
}

// WithProcessors mixes main stereo outputs of root processors into output.
func WithProcessors(e *processor.Engine) BridgeOption {
	return func(b *Bridge) {
		b.procs = e
	}
}

// WithBroadcast mirrors every output block into shared memory block.
func WithBroadcast(block shm.Block) BridgeOption {
	return func(b *Bridge) {
		b.broadcast = block.Float32s()
	}
}

// NewBridge creates output and input modules for driver.
func NewBridge(e *engine.Engine, d Driver, options ...BridgeOption) *Bridge {
	b := &Bridge{
		engine: e,
		driver: d,
		log:    log.New("pcm"),
		left:   signal.NewFloatBuffer(sonic.MaxBlockSize),
		right:  signal.NewFloatBuffer(sonic.MaxBlockSize),
		out:    make([]float32, 2*sonic.MaxBlockSize),
		in:     make([]float32, 2*sonic.MaxBlockSize),
	}
	for _, option := range options {
		option(b)
	}
	b.output = engine.NewModule(&engine.Class{
		JointInputs: 2,
		Cost:        engine.Expensive,
		Render:      b.renderOutput,
	}, b)
	b.input = engine.NewModule(&engine.Class{
		Outputs: 2,
		Cost:    engine.Cheap,
		Render:  b.renderInput,
	}, b)
	b.poll = &engine.Poll{Func: d.CheckIO}
	return b
}

// Output returns output module. Its joint inputs 0 and 1 are left and right.
func (b *Bridge) Output() *engine.Module {
	return b.output
}

// Input returns input module. Its outputs 0 and 1 are left and right.
func (b *Bridge) Input() *engine.Module {
	return b.input
}

// Driver returns bridged driver.
func (b *Bridge) Driver() Driver {
	return b.driver
}

// Install adds jobs that integrate bridge modules and subscribe the render
// loop to driver readiness.
func (b *Bridge) Install(t *engine.Trans) {
	t.Add(
		engine.Integrate(b.output),
		engine.Integrate(b.input),
		engine.SetConsumer(b.output, true),
		engine.AddPoll(b.poll),
	)
}

// Uninstall adds jobs that remove bridge from engine. Attached file
// writer is closed on control side.
func (b *Bridge) Uninstall(t *engine.Trans) {
	t.Add(
		engine.Access(b.output, func(*engine.Module) {
			b.detach()
		}, nil),
		engine.RemovePoll(b.poll),
		engine.Discard(b.output),
		engine.Discard(b.input),
	)
}

// AttachWriter returns job that mirrors output to w starting at tick. Previous
// writer is closed on control side.
func (b *Bridge) AttachWriter(w FileWriter, tick uint64) engine.Job {
	return engine.Access(b.output, func(*engine.Module) {
		b.detach()
		b.capture = &capture{writer: w, start: tick, channels: 2}
	}, nil)
}

// DetachWriter returns job that stops mirroring output and closes writer on
// control side.
func (b *Bridge) DetachWriter() engine.Job {
	return engine.Access(b.output, func(*engine.Module) {
		b.detach()
	}, nil)
}

func (b *Bridge) detach() {
	if b.capture == nil {
		return
	}
	w := b.capture.writer
	b.capture = nil
	b.engine.UserCallback(func() {
		if err := w.Close(); err != nil {
			b.engine.Report(sonic.NewError(sonic.ErrFileWrite, "close capture", err))
		}
	})
}

func (b *Bridge) renderOutput(m *engine.Module, n int) {
	left, right := b.left.Own()[:n], b.right.Own()[:n]
	signal.Sum(left, m.JointInputs[0].Buffers...)
	signal.Sum(right, m.JointInputs[1].Buffers...)
	if b.procs != nil {
		b.procs.RenderBlock(m.Tick(), n)
		for _, p := range b.procs.Roots() {
			for ob := processor.OBusID(1); int(ob) <= p.NumOBuses(); ob++ {
				if p.OBus(ob).Arrangement() != processor.Stereo {
					continue
				}
				signal.Mix(left, p.Output(ob, 0)[:n])
				signal.Mix(right, p.Output(ob, 1)[:n])
			}
		}
	}
	out := b.out[:2*n]
	signal.Interleave(out, n, left, right)

	if b.driver.Writable() && !b.writeFailed {
		if err := b.driver.Write(out); err != nil {
			b.writeFailed = true
			b.engine.Report(asError(err, sonic.ErrDeviceIO, "write pcm"))
		}
	}
	if b.capture != nil {
		if err := b.capture.write(m.Tick(), out); err != nil {
			b.engine.Report(asError(err, sonic.ErrFileWrite, "write capture"))
			b.detach()
		}
	}
	if b.broadcast != nil {
		copy(b.broadcast, out)
	}
}

func (b *Bridge) renderInput(m *engine.Module, n int) {
	if !b.checked {
		b.checked = true
		readable := b.driver.Readable()
		b.engine.UserCallback(func() {
			if !readable {
				b.engine.Report(sonic.NewError(sonic.ErrDeviceNotCapture, "read pcm", nil))
			}
		})
	}
	if !b.driver.Readable() || b.readFailed {
		m.Outputs[0].Redirect(signal.Zero(n))
		m.Outputs[1].Redirect(signal.Zero(n))
		return
	}
	in := b.in[:2*n]
	read, err := b.driver.Read(in)
	if err != nil {
		b.readFailed = true
		b.engine.Report(asError(err, sonic.ErrDeviceIO, "read pcm"))
		read = 0
	}
	clear(in[read:])
	signal.Deinterleave(in, n, m.Outputs[0].Buffer, m.Outputs[1].Buffer)
}

// asError wraps driver error unless it's already environmental.
func asError(err error, code sonic.ErrorCode, op string) error {
	var e *sonic.Error
	if errors.As(err, &e) {
		return err
	}
	return sonic.NewError(code, op, err)
}
