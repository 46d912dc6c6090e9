// Package mixer provides processor that sums up stereo inputs.
package mixer

import (
	"fmt"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/processor"
	"github.com/dudk/sonic/signal"
)

// Mixer sums up multiple stereo input buses into a single stereo output.
// Every input has its own volume parameter.
type Mixer struct {
	inputs  int
	average bool

	ibuses  []processor.IBusID
	volumes []processor.ParamID
	master  processor.ParamID
	out     processor.OBusID

	gains   []float64
	gain    float64
	scratch []float64
}

// Option provides a way to set functional parameters to mixer.
type Option func(m *Mixer)

// Average divides the sum by number of connected inputs.
func Average() Option {
	return func(m *Mixer) {
		m.average = true
	}
}

// New returns new mixer with provided number of inputs.
func New(inputs int, options ...Option) *Mixer {
	if inputs < 1 {
		panic(fmt.Sprintf("mixer: invalid number of inputs: %d", inputs))
	}
	m := &Mixer{
		inputs:  inputs,
		gains:   make([]float64, inputs),
		scratch: make([]float64, sonic.MaxBlockSize),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Initialize declares buses and volume parameters.
func (m *Mixer) Initialize(p *processor.Processor) {
	for i := 0; i < m.inputs; i++ {
		m.ibuses = append(m.ibuses, p.AddIBus(fmt.Sprintf("in%d", i+1), processor.Stereo))
		m.volumes = append(m.volumes, p.AddParam(processor.ParamInfo{
			Ident:   fmt.Sprintf("volume%d", i+1),
			Label:   fmt.Sprintf("Volume %d", i+1),
			Min:     0,
			Max:     2,
			Default: 1,
		}))
	}
	m.master = p.AddParam(processor.ParamInfo{
		Ident:   "master",
		Label:   "Master",
		Min:     0,
		Max:     2,
		Default: 1,
	})
	m.out = p.AddOBus("out", processor.Stereo)
}

// In returns input bus id of input i.
func (m *Mixer) In(i int) processor.IBusID {
	return m.ibuses[i]
}

// Volume returns volume parameter id of input i.
func (m *Mixer) Volume(i int) processor.ParamID {
	return m.volumes[i]
}

// Master returns master volume parameter id.
func (m *Mixer) Master() processor.ParamID {
	return m.master
}

// Out returns output bus id.
func (m *Mixer) Out() processor.OBusID {
	return m.out
}

// Reset picks up current parameter values.
func (m *Mixer) Reset(p *processor.Processor) {
	for i, id := range m.volumes {
		m.gains[i], _ = p.GetParam(id)
	}
	m.gain, _ = p.GetParam(m.master)
}

// Render sums up connected inputs.
func (m *Mixer) Render(p *processor.Processor, n int) {
	for i, id := range m.volumes {
		if v, dirty := p.GetParam(id); dirty {
			m.gains[i] = v
		}
	}
	if v, dirty := p.GetParam(m.master); dirty {
		m.gain = v
	}
	connected := 0
	for _, ib := range m.ibuses {
		if p.IBus(ib).Connections() > 0 {
			connected++
		}
	}
	gain := m.gain
	if m.average && connected > 1 {
		gain = gain / float64(connected)
	}
	tmp := m.scratch[:n]
	for ch := 0; ch < 2; ch++ {
		out := p.OFloats(m.out, ch)[:n]
		clear(out)
		for i, ib := range m.ibuses {
			if p.IBus(ib).Connections() == 0 {
				continue
			}
			signal.Scale(tmp, p.IFloats(ib, ch)[:n], m.gains[i]*gain)
			signal.Mix(out, tmp)
		}
	}
}
