// Package osc provides sine oscillator processor.
package osc

import (
	"math"

	"github.com/dudk/sonic/processor"
)

// Oscillator renders sine wave into a stereo output bus. Both channels
// share the same block.
type Oscillator struct {
	sampleRate float64
	frequency  processor.ParamID
	gain       processor.ParamID
	out        processor.OBusID

	phase float64
	step  float64
	level float64
}

// New returns oscillator for sample rate.
func New(sampleRate int) *Oscillator {
	return &Oscillator{sampleRate: float64(sampleRate)}
}

// Initialize declares output bus and parameters.
func (o *Oscillator) Initialize(p *processor.Processor) {
	o.frequency = p.AddParam(processor.ParamInfo{
		Ident:   "frequency",
		Label:   "Frequency",
		Min:     1,
		Max:     o.sampleRate / 2,
		Default: 440,
	})
	o.gain = p.AddParam(processor.ParamInfo{
		Ident:   "gain",
		Label:   "Gain",
		Min:     0,
		Max:     1,
		Default: 0.5,
	})
	o.out = p.AddOBus("out", processor.Stereo)
}

// Frequency returns frequency parameter id.
func (o *Oscillator) Frequency() processor.ParamID {
	return o.frequency
}

// Gain returns gain parameter id.
func (o *Oscillator) Gain() processor.ParamID {
	return o.gain
}

// Out returns output bus id.
func (o *Oscillator) Out() processor.OBusID {
	return o.out
}

// Reset restarts phase.
func (o *Oscillator) Reset(p *processor.Processor) {
	o.phase = 0
	freq, _ := p.GetParam(o.frequency)
	o.step = 2 * math.Pi * freq / o.sampleRate
	o.level, _ = p.GetParam(o.gain)
}

// Render renders n frames of sine. Parameters are polled at control-rate
// boundaries.
func (o *Oscillator) Render(p *processor.Processor, n int) {
	e := p.Engine()
	left := p.OFloats(o.out, 0)[:n]
	for i := 0; i < n; {
		o.control(p)
		end := min(n, i+e.ControlFrames(i))
		for j := i; j < end; j++ {
			left[j] = o.level * math.Sin(o.phase)
			o.phase += o.step
			if o.phase >= 2*math.Pi {
				o.phase -= 2 * math.Pi
			}
		}
		i = end
	}
	p.Redirect(o.out, 1, left)
}

func (o *Oscillator) control(p *processor.Processor) {
	if freq, dirty := p.GetParam(o.frequency); dirty {
		o.step = 2 * math.Pi * freq / o.sampleRate
	}
	if level, dirty := p.GetParam(o.gain); dirty {
		o.level = level
	}
}
