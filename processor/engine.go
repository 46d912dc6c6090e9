// Package processor implements bus oriented processor graph. Processors are
// rendered by the render goroutine of the engine package and mutated
// through its jobs, so both graphs share one mutation queue and one tick.
package processor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/metric"
)

const (
	unvisited = iota
	visiting
	visited
)

// Engine owns root processors and their render schedule.
type Engine struct {
	config *sonic.Config
	log    log.Logger
	meter  metric.ResetFunc

	notifyHead atomic.Pointer[param]

	// fields below are owned by the render goroutine.
	roots      []*Processor
	schedule   []*Processor
	dirty      bool
	blockTick  uint64
	blockSize  int
	frameCount uint64
	rendered   bool
	measure    metric.MeasureFunc
}

// Option provides a way to set functional parameters to engine.
type Option func(e *Engine)

// WithLogger sets logger to engine.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates processor engine.
func NewEngine(config *sonic.Config, options ...Option) *Engine {
	e := &Engine{
		config:    config,
		log:       log.New("processor"),
		blockSize: config.BlockSize,
	}
	for _, option := range options {
		option(e)
	}
	e.meter = metric.Meter(e, config.SampleRate)
	e.measure = e.meter()
	return e
}

// Config returns engine config.
func (e *Engine) Config() *sonic.Config {
	return e.config
}

// ControlFrames returns number of frames from offset of the current block
// to the next control-rate boundary, but not past the block end. Render
// goroutine only.
func (e *Engine) ControlFrames(offset int) int {
	left := e.blockSize - offset
	rate := uint64(e.config.ControlRate)
	if rate == 0 {
		return left
	}
	pos := e.frameCount + uint64(offset)
	if frames := int(rate - pos&e.config.ControlMask()); frames < left {
		return frames
	}
	return left
}

// FrameCount returns number of rendered frames. Render goroutine only.
func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

// Roots returns root processors. Render goroutine only.
func (e *Engine) Roots() []*Processor {
	return e.roots
}

// AddRoot registers processor that is rendered every block. Render
// goroutine only.
func (e *Engine) AddRoot(p *Processor) {
	e.assertOwn(p)
	for _, r := range e.roots {
		if r == p {
			panic(fmt.Sprintf("processor: %v is already root", p))
		}
	}
	e.roots = append(e.roots, p)
	e.Reschedule()
}

// DelRoot unregisters root processor. Render goroutine only.
func (e *Engine) DelRoot(p *Processor) {
	for i, r := range e.roots {
		if r == p {
			e.roots = append(e.roots[:i], e.roots[i+1:]...)
			e.Reschedule()
			return
		}
	}
	panic(fmt.Sprintf("processor: %v is not root", p))
}

// Connect adds output bus ob of src as source of input bus ib of dst and
// reconfigures the input bus. Render goroutine only.
func (e *Engine) Connect(dst *Processor, ib IBusID, src *Processor, ob OBusID) {
	e.assertOwn(dst)
	e.assertOwn(src)
	b := dst.ibus(ib)
	o := src.obus(ob)
	for _, s := range b.sources {
		if s.proc == src && s.obus == ob {
			panic(fmt.Sprintf("processor: %v bus %d is already connected to %v bus %d", dst, ib, src, ob))
		}
	}
	b.sources = append(b.sources, source{proc: src, obus: ob})
	o.consumers++
	dst.reconfigure(ib)
	e.Reschedule()
}

// Disconnect removes all sources of input bus ib of dst. Render goroutine
// only.
func (e *Engine) Disconnect(dst *Processor, ib IBusID) {
	b := dst.ibus(ib)
	if len(b.sources) == 0 {
		panic(fmt.Sprintf("processor: %v bus %d is not connected", dst, ib))
	}
	for _, s := range b.sources {
		s.proc.obus(s.obus).consumers--
	}
	b.sources = nil
	dst.reconfigure(ib)
	e.Reschedule()
}

// Reconfigure recomputes arrangement of input bus. It's idempotent. Render
// goroutine only.
func (e *Engine) Reconfigure(p *Processor, ib IBusID) {
	p.reconfigure(ib)
}

// Reschedule marks schedule outdated. It's rebuilt before the next render.
func (e *Engine) Reschedule() {
	e.dirty = true
}

// Enqueue appends processor to the schedule after all its sources.
// Processors already in schedule are skipped. Render goroutine only.
func (e *Engine) Enqueue(p *Processor) {
	switch p.mark {
	case visited:
		return
	case visiting:
		panic(fmt.Sprintf("processor: cycle detected at %v", p))
	}
	p.mark = visiting
	for _, b := range p.ibuses {
		for _, s := range b.sources {
			e.Enqueue(s.proc)
		}
	}
	p.mark = visited
	e.schedule = append(e.schedule, p)
}

// MakeSchedule computes render order of processors reachable from roots.
// Render goroutine only.
func (e *Engine) MakeSchedule() []*Processor {
	for _, p := range e.schedule {
		p.mark = unvisited
	}
	for _, r := range e.roots {
		e.clearMarks(r)
	}
	e.schedule = e.schedule[:0]
	for _, r := range e.roots {
		e.Enqueue(r)
	}
	e.dirty = false
	e.log.Debug(fmt.Sprintf("processor: scheduled %d processors", len(e.schedule)))
	return e.schedule
}

// clearMarks resets marks of processors reachable from p. Cycles are
// tolerated here and reported by Enqueue.
func (e *Engine) clearMarks(p *Processor) {
	if p.mark == unvisited {
		return
	}
	p.mark = unvisited
	for _, b := range p.ibuses {
		for _, s := range b.sources {
			e.clearMarks(s.proc)
		}
	}
}

// RenderBlock renders all scheduled processors for the block starting at
// tick. It's idempotent for the same tick, so several consumers can request
// the same block. Render goroutine only.
func (e *Engine) RenderBlock(tick uint64, n int) {
	if e.rendered && tick == e.blockTick {
		return
	}
	start := time.Now()
	if e.dirty {
		e.MakeSchedule()
	}
	e.rendered = true
	e.blockTick = tick
	e.blockSize = n
	for _, p := range e.schedule {
		p.render(tick, n)
	}
	e.frameCount += uint64(n)
	e.measure(int64(n), time.Since(start))
}

// ResetProcessor makes processor reset before its next render. Render
// goroutine only.
func (e *Engine) ResetProcessor(p *Processor) {
	p.needsReset = true
}

func (e *Engine) assertOwn(p *Processor) {
	if p.engine != e {
		panic(fmt.Sprintf("processor: %v belongs to another engine", p))
	}
}

// AddRootJob returns engine job that adds root processor.
func (e *Engine) AddRootJob(p *Processor) engine.Job {
	e.assertOwn(p)
	return engine.Callback(func() { e.AddRoot(p) }, nil)
}

// DelRootJob returns engine job that removes root processor.
func (e *Engine) DelRootJob(p *Processor) engine.Job {
	e.assertOwn(p)
	return engine.Callback(func() { e.DelRoot(p) }, nil)
}

// ConnectJob returns engine job that connects output bus ob of src to
// input bus ib of dst. Bus ids are validated immediately.
func (e *Engine) ConnectJob(dst *Processor, ib IBusID, src *Processor, ob OBusID) engine.Job {
	e.assertOwn(dst)
	e.assertOwn(src)
	dst.ibus(ib)
	src.obus(ob)
	return engine.Callback(func() { e.Connect(dst, ib, src, ob) }, nil)
}

// DisconnectJob returns engine job that disconnects input bus ib of dst.
func (e *Engine) DisconnectJob(dst *Processor, ib IBusID) engine.Job {
	e.assertOwn(dst)
	dst.ibus(ib)
	return engine.Callback(func() { e.Disconnect(dst, ib) }, nil)
}

// ResetJob returns engine job that resets processor before its next render.
func (e *Engine) ResetJob(p *Processor) engine.Job {
	e.assertOwn(p)
	return engine.Callback(func() { e.ResetProcessor(p) }, nil)
}
