package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/internal/lfq"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/metric"
)

const (
	transQueueSize   = 1024
	controlQueueSize = 4096
)

var (
	// ErrEngineRunning is returned if Run is called on already running engine.
	ErrEngineRunning = errors.New("engine is already running")
	// ErrEngineStopped is returned if control side waits for the render
	// goroutine that isn't running.
	ErrEngineStopped = errors.New("engine is not running")
)

// Engine owns the module graph and renders it block by block. Methods
// documented as render goroutine methods must be called either from Run or
// from the goroutine that steps the engine manually.
type Engine struct {
	config *sonic.Config
	log    log.Logger
	report func(error)
	meter  metric.ResetFunc

	// control side.
	producer   sync.Mutex
	collector  sync.Mutex
	transQueue *lfq.SPSC[*Trans]
	committed  atomic.Uint64
	applied    atomic.Uint64
	nextTick   atomic.Uint64
	committing atomic.Bool
	wakec      chan struct{}
	drainedc   chan struct{}
	running    atomic.Bool

	// control queue carries callbacks from render goroutine to control side.
	controlQueue *lfq.SPSC[func()]
	overflow     []func()

	// fields below are owned by the render goroutine.
	tick          uint64
	seq           uint64
	looping       bool
	freeRun       bool
	modules       []*Module
	schedule      []*Module
	scheduleDirty bool
	polls         []*Poll
	pollsReady    bool
	timers        []timer
	delayed       []*Trans
	boundary      []timedJob
	measure       metric.MeasureFunc
}

type timer struct {
	fn   TimerFunc
	free func()
}

// Option provides a way to set functional parameters to engine.
type Option func(e *Engine)

// WithLogger sets logger to engine.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithReporter sets the function that receives environmental errors on
// control side. By default errors are logged.
func WithReporter(fn func(error)) Option {
	return func(e *Engine) {
		e.report = fn
	}
}

// WithFreeRun makes the engine render blocks as fast as possible when no
// poll functions are registered. Used for offline rendering.
func WithFreeRun() Option {
	return func(e *Engine) {
		e.freeRun = true
	}
}

// New creates a new engine.
func New(config *sonic.Config, options ...Option) *Engine {
	e := &Engine{
		config:       config,
		log:          log.New("engine"),
		transQueue:   lfq.NewSPSC[*Trans](transQueueSize),
		controlQueue: lfq.NewSPSC[func()](controlQueueSize),
		wakec:        make(chan struct{}, 1),
		drainedc:     make(chan struct{}, 1),
	}
	for _, option := range options {
		option(e)
	}
	if e.report == nil {
		e.report = func(err error) {
			e.log.Warn(err)
		}
	}
	e.meter = metric.Meter(e, config.SampleRate)
	e.measure = e.meter()
	return e
}

// Config returns engine config.
func (e *Engine) Config() *sonic.Config {
	return e.config
}

// NextTick returns the stamp of the next block boundary. It's safe to call
// from any goroutine.
func (e *Engine) NextTick() uint64 {
	return e.nextTick.Load()
}

// Running reports if render loop is running.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Tick returns the stamp of the current block. Render goroutine only.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// UserCallback schedules fn to be executed on control side by Collect.
// Render goroutine only, never blocks.
func (e *Engine) UserCallback(fn func()) {
	e.flushOverflow()
	if len(e.overflow) > 0 || !e.controlQueue.Enqueue(fn) {
		e.overflow = append(e.overflow, fn)
	}
}

// Report hands environmental error to the reporter on control side. Render
// goroutine only.
func (e *Engine) Report(err error) {
	e.UserCallback(func() {
		e.report(err)
	})
}

// Collect executes callbacks scheduled by the render goroutine: job free
// functions, module Free functions and user callbacks. It returns number
// of executed callbacks. Control side.
func (e *Engine) Collect() int {
	e.collector.Lock()
	defer e.collector.Unlock()
	n := 0
	for {
		fn, ok := e.controlQueue.Dequeue()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Pending reports if there are callbacks waiting for Collect.
func (e *Engine) Pending() bool {
	return e.controlQueue.Len() > 0
}

// WaitOnTrans blocks until all transactions committed before the call are
// applied. Delayed transactions are waited for until their tick is reached.
func (e *Engine) WaitOnTrans(ctx context.Context) error {
	target := e.committed.Load()
	if e.applied.Load() < target && !e.running.Load() {
		return ErrEngineStopped
	}
	poll := time.NewTicker(e.config.BlockDuration())
	defer poll.Stop()
	for e.applied.Load() < target {
		e.wake()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.drainedc:
		case <-poll.C:
			if !e.running.Load() && e.applied.Load() < target {
				return ErrEngineStopped
			}
		}
	}
	return nil
}

// wake interrupts render loop sleep.
func (e *Engine) wake() {
	select {
	case e.wakec <- struct{}{}:
	default:
	}
}

func (e *Engine) signalDrained() {
	select {
	case e.drainedc <- struct{}{}:
	default:
	}
}

// free schedules fn on control side if it's not nil.
func (e *Engine) free(fn func()) {
	if fn != nil {
		e.UserCallback(fn)
	}
}

func (e *Engine) flushOverflow() {
	for len(e.overflow) > 0 {
		if !e.controlQueue.Enqueue(e.overflow[0]) {
			return
		}
		e.overflow[0] = nil
		e.overflow = e.overflow[1:]
	}
	e.overflow = nil
}
