// Package metric exposes render counters through expvar.
//
// All counters are published under a single "sonic.components" map, one
// nested map per component type:
//
//	{"sonic.components": {"*engine.Engine": {"Blocks": 10, "Frames": 640, ...}}}
package metric

import (
	"expvar"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dudk/sonic"
)

const (
	// BlockCounter measures number of rendered blocks.
	BlockCounter = "Blocks"
	// FrameCounter measures number of rendered frames.
	FrameCounter = "Frames"
	// LatencyCounter measures time between render calls.
	LatencyCounter = "Latency"
	// DurationCounter accumulates the duration of rendered signal.
	DurationCounter = "Duration"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
	// OverrunCounter counts blocks that took longer to render than their
	// duration.
	OverrunCounter = "Overruns"
)

var registry = struct {
	sync.Mutex
	root  *expvar.Map
	types map[string]*counters
}{
	root:  expvar.NewMap("sonic.components"),
	types: make(map[string]*counters),
}

// counters of a single component type. Values are updated directly, the map
// only serves reads.
type counters struct {
	vars       expvar.Map
	components expvar.Int
	blocks     expvar.Int
	frames     expvar.Int
	overruns   expvar.Int
	latency    duration
	duration   duration
}

func lookup(componentType string) *counters {
	registry.Lock()
	defer registry.Unlock()
	if c, ok := registry.types[componentType]; ok {
		return c
	}
	c := &counters{}
	c.vars.Init()
	c.vars.Set(ComponentCounter, &c.components)
	c.vars.Set(BlockCounter, &c.blocks)
	c.vars.Set(FrameCounter, &c.frames)
	c.vars.Set(OverrunCounter, &c.overruns)
	c.vars.Set(LatencyCounter, &c.latency)
	c.vars.Set(DurationCounter, &c.duration)
	registry.types[componentType] = c
	registry.root.Set(componentType, &c.vars)
	return c
}

func (c *counters) snapshot() map[string]string {
	m := make(map[string]string)
	c.vars.Do(func(kv expvar.KeyValue) {
		m[kv.Key] = kv.Value.String()
	})
	return m
}

// ResetFunc returns new Measure closure. Capture starts when the closure is
// created, so components call it right before they start rendering.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a block is rendered. It's called with
// number of frames and the time spent rendering them.
type MeasureFunc func(frames int64, spent time.Duration)

// Meter registers one more component of the provided type and returns a
// reset function for its measurements. Components of the same type share
// counters.
func Meter(component interface{}, sampleRate int) ResetFunc {
	c := lookup(typeOf(component))
	c.components.Add(1)
	return func() MeasureFunc {
		last := time.Now()
		var (
			size   int64
			length time.Duration
		)
		return func(frames int64, spent time.Duration) {
			now := time.Now()
			c.latency.set(now.Sub(last))
			last = now
			if frames != size {
				size, length = frames, sonic.DurationOf(sampleRate, frames)
			}
			c.blocks.Add(1)
			c.frames.Add(frames)
			c.duration.add(length)
			if spent > length {
				c.overruns.Add(1)
			}
		}
	}
}

// Get returns counter values of the component type. The result is empty if
// no component of this type was metered.
func Get(component interface{}) map[string]string {
	registry.Lock()
	c, ok := registry.types[typeOf(component)]
	registry.Unlock()
	if !ok {
		return map[string]string{}
	}
	return c.snapshot()
}

// GetAll returns counter values of all metered component types.
func GetAll() map[string]map[string]string {
	registry.Lock()
	defer registry.Unlock()
	all := make(map[string]map[string]string, len(registry.types))
	for t, c := range registry.types {
		all[t] = c.snapshot()
	}
	return all
}

// typeOf strips pointers so *T and T share counters.
func typeOf(component interface{}) string {
	t := reflect.TypeOf(component)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// duration is an expvar.Var holding time.Duration.
type duration struct {
	atomic.Int64
}

func (d *duration) String() string {
	return `"` + time.Duration(d.Load()).String() + `"`
}

func (d *duration) add(delta time.Duration) {
	d.Add(int64(delta))
}

func (d *duration) set(v time.Duration) {
	d.Store(int64(v))
}
