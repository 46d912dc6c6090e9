package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/signal"
)

// Cost is a hint for the scheduler. Expensive modules are scheduled first.
type Cost int

// Costs of module render.
const (
	Cheap Cost = iota
	Normal
	Expensive
)

// RenderFunc renders n frames of module. Input buffers are read-only,
// output buffers must be fully written.
type RenderFunc func(m *Module, n int)

// Class is a function table shared by all modules of the same kind.
type Class struct {
	Inputs      int
	JointInputs int
	Outputs     int
	Cost        Cost

	// Render is called for every full block.
	Render RenderFunc
	// RenderPartial is called when block is split by flow jobs or resume
	// boundaries. Render is used if it's nil.
	RenderPartial RenderFunc
	// Reset is called on render goroutine before first render and after
	// ForceReset job.
	Reset func(m *Module)
	// Teardown is called on render goroutine when module is discarded.
	Teardown func(m *Module)
	// Free releases user data. It's always called on the control side.
	Free func(data interface{})
}

// State is a lifecycle state of module.
type State int32

// Module lifecycle: created on control side, integrated by job, active on
// render goroutine, discarding after discard job and freed on control side.
const (
	Created State = iota
	Integrated
	Active
	Discarding
	Freed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Integrated:
		return "integrated"
	case Active:
		return "active"
	case Discarding:
		return "discarding"
	case Freed:
		return "freed"
	}
	return "unknown"
}

// Module is a node of the graph.
type Module struct {
	UID  string
	Data interface{}

	Inputs      []Input
	JointInputs []JointInput
	Outputs     []Output

	class *Class
	state atomic.Int32

	// fields below are owned by the render goroutine.
	engine     *Engine
	seq        uint64
	tick       uint64
	consumer   bool
	suspended  bool
	resumeAt   uint64
	resuming   bool
	needsReset bool
	flowJobs   []timedJob
	mark       int

	// whole-block input views kept while render is split.
	splitInputs [][]float64
	splitJoint  [][][]float64
}

// Input is a stream reading a single upstream output.
type Input struct {
	// Buffer is valid only during render and only while Connected.
	// Unconnected inputs get the zero block.
	Buffer    []float64
	Connected bool
	src       *Module
	srcOut    int
}

// JointInput is a stream reading any number of upstream outputs. Consumer
// is responsible to sum them up.
type JointInput struct {
	// Buffers has one block per connection.
	Buffers [][]float64
	links   []link
}

// Output is a stream produced by module.
type Output struct {
	// Buffer is the block the module must write. Module may point it to
	// another block that stays valid for the current render block.
	Buffer []float64
	// Connected is true if at least one input reads this output.
	Connected bool
	own       *signal.FloatBuffer
	consumers []link
}

// link is a connection endpoint. For outputs it's a consumer stream, for
// joint inputs it's a source output.
type link struct {
	module *Module
	index  int
	joint  bool
}

// NewModule creates a module of class with user data. The module must be
// handed to the engine with Integrate job.
func NewModule(class *Class, data interface{}) *Module {
	if class == nil || class.Render == nil {
		panic("engine: module class without render function")
	}
	m := &Module{
		UID:         sonic.NewUID(),
		Data:        data,
		class:       class,
		Inputs:      make([]Input, class.Inputs),
		JointInputs: make([]JointInput, class.JointInputs),
		Outputs:     make([]Output, class.Outputs),
		splitInputs: make([][]float64, class.Inputs),
		splitJoint:  make([][][]float64, class.JointInputs),
	}
	for i := range m.Outputs {
		m.Outputs[i].own = signal.NewFloatBuffer(sonic.MaxBlockSize)
	}
	return m
}

// Class returns class of module.
func (m *Module) Class() *Class {
	return m.class
}

// State returns lifecycle state of module. It's safe to call from any
// goroutine.
func (m *Module) State() State {
	return State(m.state.Load())
}

// Tick returns the stamp of the first frame currently rendered. Valid only on
// render goroutine.
func (m *Module) Tick() uint64 {
	return m.tick
}

// Engine returns the engine module is integrated into. Valid only on render
// goroutine.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Consumer reports if module is a consumer. Valid only on render goroutine.
func (m *Module) Consumer() bool {
	return m.consumer
}

// Suspended reports if module is suspended. Valid only on render goroutine.
func (m *Module) Suspended() bool {
	return m.suspended
}

// Count returns number of connections of joint input.
func (j *JointInput) Count() int {
	return len(j.links)
}

// Redirect points output to block for the current render call. Block must
// stay unchanged until the end of the render block.
func (o *Output) Redirect(block []float64) {
	o.Buffer = block
}

// String returns module uid.
func (m *Module) String() string {
	return m.UID
}

func (m *Module) assertActive(op string) {
	if m.State() != Active {
		panic(fmt.Sprintf("engine: %s: module %v is %v", op, m, m.State()))
	}
}

func (m *Module) checkInput(i int) {
	if i < 0 || i >= len(m.Inputs) {
		panic(fmt.Sprintf("engine: module %v has no input %d", m, i))
	}
}

func (m *Module) checkJointInput(i int) {
	if i < 0 || i >= len(m.JointInputs) {
		panic(fmt.Sprintf("engine: module %v has no joint input %d", m, i))
	}
}

func (m *Module) checkOutput(i int) {
	if i < 0 || i >= len(m.Outputs) {
		panic(fmt.Sprintf("engine: module %v has no output %d", m, i))
	}
}

// connect links input stream of m to output of src.
func (m *Module) connect(in int, src *Module, out int) {
	m.assertActive("connect")
	src.assertActive("connect")
	if m.Inputs[in].Connected {
		panic(fmt.Sprintf("engine: input %d of module %v is already connected", in, m))
	}
	m.Inputs[in].Connected = true
	m.Inputs[in].src = src
	m.Inputs[in].srcOut = out
	src.Outputs[out].addConsumer(link{module: m, index: in})
}

func (m *Module) disconnect(in int) {
	m.assertActive("disconnect")
	input := &m.Inputs[in]
	if !input.Connected {
		panic(fmt.Sprintf("engine: input %d of module %v is not connected", in, m))
	}
	input.src.Outputs[input.srcOut].removeConsumer(link{module: m, index: in})
	*input = Input{}
}

func (m *Module) jconnect(in int, src *Module, out int) {
	m.assertActive("jconnect")
	src.assertActive("jconnect")
	j := &m.JointInputs[in]
	j.links = append(j.links, link{module: src, index: out})
	if n := len(j.links); cap(j.Buffers) < n {
		j.Buffers = make([][]float64, 0, 2*n)
		m.splitJoint[in] = make([][]float64, 0, 2*n)
	}
	src.Outputs[out].addConsumer(link{module: m, index: in, joint: true})
}

func (m *Module) jdisconnect(in int, src *Module, out int) {
	m.assertActive("jdisconnect")
	j := &m.JointInputs[in]
	for i, l := range j.links {
		if l.module == src && l.index == out {
			j.links = append(j.links[:i], j.links[i+1:]...)
			src.Outputs[out].removeConsumer(link{module: m, index: in, joint: true})
			return
		}
	}
	panic(fmt.Sprintf("engine: joint input %d of module %v is not connected to %v:%d", in, m, src, out))
}

// killInputs drops all input and joint input connections.
func (m *Module) killInputs() {
	for i := range m.Inputs {
		if m.Inputs[i].Connected {
			m.disconnect(i)
		}
	}
	for i := range m.JointInputs {
		for len(m.JointInputs[i].links) > 0 {
			l := m.JointInputs[i].links[0]
			m.jdisconnect(i, l.module, l.index)
		}
	}
}

// killOutputs drops all connections reading outputs of m.
func (m *Module) killOutputs() {
	for i := range m.Outputs {
		for len(m.Outputs[i].consumers) > 0 {
			c := m.Outputs[i].consumers[0]
			if c.joint {
				c.module.jdisconnect(c.index, m, i)
			} else {
				c.module.disconnect(c.index)
			}
		}
	}
}

func (o *Output) addConsumer(l link) {
	o.consumers = append(o.consumers, l)
	o.Connected = true
}

func (o *Output) removeConsumer(l link) {
	for i, c := range o.consumers {
		if c == l {
			o.consumers = append(o.consumers[:i], o.consumers[i+1:]...)
			break
		}
	}
	o.Connected = len(o.consumers) > 0
}
