// Package mock provides scriptable drivers, module classes and processors
// for integration tests.
package mock

import (
	"sync"
	"time"

	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/processor"
)

// Driver mocks pcm.Driver. It's safe for concurrent use.
type Driver struct {
	mu sync.Mutex
	counter
	SampleRate int
	Capture    bool
	Playback   bool
	// Ready is returned by CheckIO, Hint is stored as timeout when not
	// ready.
	Ready bool
	Hint  time.Duration
	// Value is read from capture.
	Value        float32
	ErrorOnRead  error
	ErrorOnWrite error
	written      []float32
	checks       int
	closed       bool
}

// SetReady changes readiness.
func (d *Driver) SetReady(ready bool) {
	d.mu.Lock()
	d.Ready = ready
	d.mu.Unlock()
}

// PCMFrequency implements pcm.Driver.
func (d *Driver) PCMFrequency() int {
	return d.SampleRate
}

// Readable implements pcm.Driver.
func (d *Driver) Readable() bool {
	return d.Capture
}

// Writable implements pcm.Driver.
func (d *Driver) Writable() bool {
	return d.Playback
}

// CheckIO implements pcm.Driver.
func (d *Driver) CheckIO(frames int, timeout *time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	if !d.Ready && timeout != nil && d.Hint > 0 {
		*timeout = d.Hint
	}
	return d.Ready
}

// Read implements pcm.Driver.
func (d *Driver) Read(buf []float32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ErrorOnRead != nil {
		return 0, d.ErrorOnRead
	}
	for i := range buf {
		buf[i] = d.Value
	}
	return len(buf), nil
}

// Write implements pcm.Driver.
func (d *Driver) Write(buf []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ErrorOnWrite != nil {
		return d.ErrorOnWrite
	}
	d.written = append(d.written, buf...)
	d.advance(len(buf))
	return nil
}

// Close implements pcm.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Written returns all written values.
func (d *Driver) Written() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float32(nil), d.written...)
}

// Writes returns number of write calls and written values.
func (d *Driver) Writes() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Count()
}

// Checks returns number of CheckIO calls.
func (d *Driver) Checks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checks
}

// Closed reports if driver was closed.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Writer mocks pcm.FileWriter. It's safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	counter
	ErrorOnWrite error
	ErrorOnClose error
	values       []float32
	closed       bool
}

// WriteBlock implements pcm.FileWriter.
func (w *Writer) WriteBlock(interleaved []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ErrorOnWrite != nil {
		return w.ErrorOnWrite
	}
	w.values = append(w.values, interleaved...)
	w.advance(len(interleaved))
	return nil
}

// Close implements pcm.FileWriter.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.ErrorOnClose
}

// Values returns all written values.
func (w *Writer) Values() []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float32(nil), w.values...)
}

// Closed reports if writer was closed.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Source is a module class data that writes constant value to all outputs.
// Use it on render goroutine only.
type Source struct {
	counter
	Value float64
	Hooks
}

// Class returns module class with provided number of outputs.
func (s *Source) Class(outputs int) *engine.Class {
	return &engine.Class{
		Outputs: outputs,
		Render: func(m *engine.Module, n int) {
			for _, out := range m.Outputs {
				for i := range out.Buffer[:n] {
					out.Buffer[i] = s.Value
				}
			}
			s.advance(n)
		},
		Reset: func(*engine.Module) {
			s.Resetted = true
		},
		Free: func(interface{}) {
			s.Freed = true
		},
	}
}

// Processor renders constant value into a single output bus.
type Processor struct {
	counter
	Value       float64
	Arrangement processor.SpeakerArrangement
	Out         processor.OBusID
	Hooks
}

// Initialize implements processor.Renderer.
func (p *Processor) Initialize(proc *processor.Processor) {
	p.Out = proc.AddOBus("out", p.Arrangement)
}

// Reset implements processor.Renderer.
func (p *Processor) Reset(*processor.Processor) {
	p.Resetted = true
}

// Render implements processor.Renderer.
func (p *Processor) Render(proc *processor.Processor, n int) {
	for ch := 0; ch < p.Arrangement.Channels(); ch++ {
		out := proc.OFloats(p.Out, ch)[:n]
		for i := range out {
			out[i] = p.Value
		}
	}
	p.advance(n)
}

// Hooks allows to check lifecycle calls.
type Hooks struct {
	Resetted bool
	Freed    bool
}

// counter counts calls and frames.
type counter struct {
	calls  int
	frames int
}

func (c *counter) advance(size int) {
	c.calls++
	c.frames += size
}

// Count returns number of calls and frames.
func (c *counter) Count() (int, int) {
	return c.calls, c.frames
}
