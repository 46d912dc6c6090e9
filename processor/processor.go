package processor

import (
	"fmt"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/signal"
)

// Renderer is implemented by every processor kind.
type Renderer interface {
	// Initialize declares buses and parameters. It's called once on control
	// side when processor is created.
	Initialize(p *Processor)
	// Reset clears render state. It's called on render goroutine before
	// first render and after reset job.
	Reset(p *Processor)
	// Render renders n frames into output buses.
	Render(p *Processor, n int)
}

// Reconfigurer is implemented by processors that adapt input bus to its
// sources. Reconfigure receives union of connected source arrangements and
// returns arrangement the bus should take. It's never called for
// disconnected bus, that one reverts to the declared arrangement.
type Reconfigurer interface {
	Reconfigure(p *Processor, ib IBusID, offered SpeakerArrangement) SpeakerArrangement
}

// Processor is a node of processor graph.
type Processor struct {
	UID      string
	renderer Renderer
	engine   *Engine
	ibuses   []*IBus
	obuses   []*OBus
	params   []*param

	initialized bool
	// fields below are owned by the render goroutine.
	needsReset bool
	stamp      uint64
	mark       int
}

// NewProcessor creates processor and initializes it with renderer.
func (e *Engine) NewProcessor(r Renderer) *Processor {
	if r == nil {
		panic("processor: nil renderer")
	}
	p := &Processor{
		UID:        sonic.NewUID(),
		renderer:   r,
		engine:     e,
		needsReset: true,
	}
	r.Initialize(p)
	p.initialized = true
	return p
}

// Renderer returns renderer of processor.
func (p *Processor) Renderer() Renderer {
	return p.renderer
}

// Engine returns engine processor belongs to.
func (p *Processor) Engine() *Engine {
	return p.engine
}

func (p *Processor) String() string {
	return fmt.Sprintf("%T(%s)", p.renderer, p.UID)
}

func (p *Processor) assertInitializing(op string) {
	if p.initialized {
		panic(fmt.Sprintf("processor: %s: %v is already initialized", op, p))
	}
}

// AddIBus declares input bus. Only valid during Initialize.
func (p *Processor) AddIBus(ident string, arrangement SpeakerArrangement) IBusID {
	p.assertInitializing("add input bus")
	b := &IBus{
		Ident:       ident,
		declared:    arrangement,
		arrangement: arrangement,
		channels:    newChannels(arrangement.Channels()),
		scratch:     make([]float64, sonic.MaxBlockSize),
	}
	p.ibuses = append(p.ibuses, b)
	return IBusID(len(p.ibuses))
}

// AddOBus declares output bus. Only valid during Initialize.
func (p *Processor) AddOBus(ident string, arrangement SpeakerArrangement) OBusID {
	p.assertInitializing("add output bus")
	p.obuses = append(p.obuses, &OBus{
		Ident:       ident,
		arrangement: arrangement,
		channels:    newChannels(arrangement.Channels()),
	})
	return OBusID(len(p.obuses))
}

// AddParam declares parameter. Only valid during Initialize.
func (p *Processor) AddParam(info ParamInfo) ParamID {
	p.assertInitializing("add param")
	id := ParamID(len(p.params) + 1)
	p.params = append(p.params, newParam(p, id, info))
	return id
}

// NumIBuses returns number of input buses.
func (p *Processor) NumIBuses() int {
	return len(p.ibuses)
}

// NumOBuses returns number of output buses.
func (p *Processor) NumOBuses() int {
	return len(p.obuses)
}

// IBus returns input bus by id.
func (p *Processor) IBus(ib IBusID) *IBus {
	return p.ibus(ib)
}

// OBus returns output bus by id.
func (p *Processor) OBus(ob OBusID) *OBus {
	return p.obus(ob)
}

func (p *Processor) ibus(ib IBusID) *IBus {
	if ib < 1 || int(ib) > len(p.ibuses) {
		panic(fmt.Sprintf("processor: %v has no input bus %d", p, ib))
	}
	return p.ibuses[ib-1]
}

func (p *Processor) obus(ob OBusID) *OBus {
	if ob < 1 || int(ob) > len(p.obuses) {
		panic(fmt.Sprintf("processor: %v has no output bus %d", p, ob))
	}
	return p.obuses[ob-1]
}

func (p *Processor) param(id ParamID) *param {
	if id < 1 || int(id) > len(p.params) {
		panic(fmt.Sprintf("processor: %v has no param %d", p, id))
	}
	return p.params[id-1]
}

// IFloats returns channel ch of input bus. Valid only during Render.
func (p *Processor) IFloats(ib IBusID, ch int) []float64 {
	return p.ibus(ib).channels[ch].Samples()
}

// OFloats returns writable channel ch of output bus. Valid only during
// Render.
func (p *Processor) OFloats(ob OBusID, ch int) []float64 {
	return p.obus(ob).channels[ch].Samples()
}

// Redirect points channel ch of output bus to block for the current
// render. Block must stay unchanged until the end of the render block.
func (p *Processor) Redirect(ob OBusID, ch int, block []float64) {
	p.obus(ob).channels[ch].Redirect(block)
}

// Output returns rendered channel ch of output bus. If processor wasn't
// rendered in the current block, the zero block is returned.
func (p *Processor) Output(ob OBusID, ch int) []float64 {
	b := p.obus(ob)
	n := p.engine.blockSize
	if p.stamp == 0 || p.stamp-1 != p.engine.blockTick {
		return signal.Zero(n)
	}
	return b.channels[ch].Samples()
}

// SetParam sets parameter value. Value is clamped to the parameter range.
// It returns false if value didn't change, in that case parameter isn't
// marked dirty and no notification is sent. Safe to call from any
// goroutine.
func (p *Processor) SetParam(id ParamID, v float64) bool {
	return p.param(id).set(v)
}

// GetParam returns parameter value and clears its dirty flag. Dirty is true
// only for the first call after value has changed.
func (p *Processor) GetParam(id ParamID) (float64, bool) {
	prm := p.param(id)
	dirty := prm.fetchDirty()
	return prm.load(), dirty
}

// ParamValue returns parameter value without touching dirty flag.
func (p *Processor) ParamValue(id ParamID) float64 {
	return p.param(id).load()
}

// ParamInfo returns parameter description.
func (p *Processor) ParamInfo(id ParamID) ParamInfo {
	return p.param(id).info
}

// FindParam returns parameter id by ident.
func (p *Processor) FindParam(ident string) (ParamID, bool) {
	for _, prm := range p.params {
		if prm.info.Ident == ident {
			return prm.id, true
		}
	}
	return 0, false
}

// AddNotify registers fn to be called on control side by CallNotifies
// when parameter value changes.
func (p *Processor) AddNotify(id ParamID, fn NotifyFunc) NotifyID {
	if fn == nil {
		panic("processor: nil notify func")
	}
	return p.param(id).addNotify(fn)
}

// DelNotify removes notification. It returns false if notification isn't
// registered.
func (p *Processor) DelNotify(id ParamID, nid NotifyID) bool {
	return p.param(id).delNotify(nid)
}

// reconfigure recomputes effective arrangement of input bus.
func (p *Processor) reconfigure(ib IBusID) {
	b := p.ibus(ib)
	arrangement := b.declared
	if len(b.sources) > 0 {
		if r, ok := p.renderer.(Reconfigurer); ok {
			var offered SpeakerArrangement
			for _, src := range b.sources {
				offered |= src.proc.obus(src.obus).arrangement
			}
			arrangement = r.Reconfigure(p, ib, offered)
		}
	}
	if arrangement == b.arrangement {
		return
	}
	b.arrangement = arrangement
	if n := arrangement.Channels(); n != len(b.channels) {
		b.channels = newChannels(n)
	}
}

// render renders processor for block starting at tick.
func (p *Processor) render(tick uint64, n int) {
	for _, b := range p.ibuses {
		b.bind(n)
	}
	for _, b := range p.obuses {
		for _, ch := range b.channels {
			ch.Redirect(nil)
		}
	}
	if p.needsReset {
		p.needsReset = false
		p.renderer.Reset(p)
	}
	p.renderer.Render(p, n)
	p.stamp = tick + 1
}
