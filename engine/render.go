package engine

import (
	"fmt"
	"time"

	"github.com/dudk/sonic/signal"
)

// renderBlock renders n frames of every scheduled module and advances tick.
func (e *Engine) renderBlock(n int) {
	start := time.Now()
	if e.scheduleDirty {
		e.makeSchedule()
	}
	tick := e.tick
	for _, m := range e.schedule {
		e.renderModule(m, tick, n)
	}
	if e.config.Debug {
		e.checkBuffers()
	}
	end := tick + uint64(n)
	e.tick = end
	e.runBoundary(end)
	e.runTimers(tick)
	e.measure(int64(n), time.Since(start))
}

// renderModule binds streams of m and renders it. If flow jobs or resume
// fall inside the block, render is split into partial segments.
func (e *Engine) renderModule(m *Module, tick uint64, n int) {
	m.tick = tick
	bindInputs(m, n)
	for i := range m.Outputs {
		m.Outputs[i].Buffer = m.Outputs[i].own.Own()[:n]
	}
	end := tick + uint64(n)
	if !m.splitsAt(end) {
		if m.suspended {
			for i := range m.Outputs {
				m.Outputs[i].Buffer = signal.Zero(n)
			}
			return
		}
		m.reset()
		m.class.Render(m, n)
		return
	}

	inputs, joint := m.splitInputs, m.splitJoint
	for i := range m.Inputs {
		inputs[i] = m.Inputs[i].Buffer
	}
	for i := range m.JointInputs {
		joint[i] = append(joint[i][:0], m.JointInputs[i].Buffers...)
	}
	for pos := 0; pos < n; {
		now := tick + uint64(pos)
		for len(m.flowJobs) > 0 && m.flowJobs[0].tick <= now {
			fj := m.flowJobs[0]
			m.flowJobs = m.flowJobs[1:]
			m.tick = now
			fj.access(m)
			e.free(fj.free)
		}
		if m.suspended && m.resuming && m.resumeAt <= now {
			m.suspended = false
			m.resuming = false
			m.needsReset = true
		}
		next := n
		if len(m.flowJobs) > 0 && m.flowJobs[0].tick < end {
			next = int(m.flowJobs[0].tick - tick)
		}
		if m.suspended && m.resuming && m.resumeAt < end && int(m.resumeAt-tick) < next {
			next = int(m.resumeAt - tick)
		}
		e.renderSegment(m, now, pos, next, inputs, joint)
		pos = next
	}
	m.tick = tick
	for i := range m.Inputs {
		m.Inputs[i].Buffer = inputs[i]
	}
	for i := range m.JointInputs {
		copy(m.JointInputs[i].Buffers, joint[i])
	}
	for i := range m.Outputs {
		m.Outputs[i].Buffer = m.Outputs[i].own.Own()[:n]
	}
}

// renderSegment renders frames [from, to) of the block into owned output
// storage.
func (e *Engine) renderSegment(m *Module, now uint64, from, to int, inputs [][]float64, joint [][][]float64) {
	for i := range m.Inputs {
		m.Inputs[i].Buffer = inputs[i][from:to]
	}
	for i := range m.JointInputs {
		for k := range joint[i] {
			m.JointInputs[i].Buffers[k] = joint[i][k][from:to]
		}
	}
	for i := range m.Outputs {
		m.Outputs[i].Buffer = m.Outputs[i].own.Own()[from:to]
	}
	if m.suspended {
		for i := range m.Outputs {
			clear(m.Outputs[i].Buffer)
		}
		return
	}
	m.tick = now
	m.reset()
	render := m.class.RenderPartial
	if render == nil {
		render = m.class.Render
	}
	render(m, to-from)
	for i := range m.Outputs {
		own := m.Outputs[i].own.Own()[from:to]
		if out := m.Outputs[i].Buffer; len(out) > 0 && &out[0] != &own[0] {
			copy(own, out)
		}
	}
}

// splitsAt reports if render of m must be split before end.
func (m *Module) splitsAt(end uint64) bool {
	if len(m.flowJobs) > 0 && m.flowJobs[0].tick < end {
		return true
	}
	return m.suspended && m.resuming && m.resumeAt < end
}

func (m *Module) reset() {
	if !m.needsReset {
		return
	}
	m.needsReset = false
	if m.class.Reset != nil {
		m.class.Reset(m)
	}
}

// bindInputs points input streams to upstream outputs. Upstream modules are
// always rendered before m.
func bindInputs(m *Module, n int) {
	for i := range m.Inputs {
		in := &m.Inputs[i]
		if in.Connected {
			in.Buffer = in.src.Outputs[in.srcOut].Buffer[:n]
		} else {
			in.Buffer = signal.Zero(n)
		}
	}
	for i := range m.JointInputs {
		j := &m.JointInputs[i]
		j.Buffers = j.Buffers[:0]
		for _, l := range j.links {
			j.Buffers = append(j.Buffers, l.module.Outputs[l.index].Buffer[:n])
		}
	}
}

// runBoundary executes boundary jobs of blocks that ended before end.
func (e *Engine) runBoundary(end uint64) {
	for len(e.boundary) > 0 && e.boundary[0].tick < end {
		bj := e.boundary[0]
		e.boundary = e.boundary[1:]
		if bj.discard {
			if bj.module.State() == Active {
				e.discard(bj.module)
			}
			continue
		}
		bj.access(bj.module)
		e.free(bj.free)
	}
}

func (e *Engine) runTimers(tick uint64) {
	timers := e.timers[:0]
	for _, t := range e.timers {
		if t.fn(tick) {
			timers = append(timers, t)
			continue
		}
		e.free(t.free)
	}
	for i := len(timers); i < len(e.timers); i++ {
		e.timers[i] = timer{}
	}
	e.timers = timers
}

// checkBuffers verifies that no module wrote outside of its output storage
// and nobody wrote the shared zero block.
func (e *Engine) checkBuffers() {
	for _, m := range e.schedule {
		for i := range m.Outputs {
			if !m.Outputs[i].own.Intact() {
				panic(fmt.Sprintf("engine: module %v overran output %d", m, i))
			}
		}
	}
	if !signal.ZeroIntact() {
		panic("engine: shared zero block was written")
	}
}
