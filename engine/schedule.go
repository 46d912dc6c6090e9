package engine

import (
	"fmt"
	"sort"
)

const (
	unvisited = iota
	visiting
	visited
)

// makeSchedule orders modules so that every module is rendered after all
// modules it reads. Only modules reachable from consumers are scheduled.
func (e *Engine) makeSchedule() {
	e.schedule = e.schedule[:0]
	consumers := make([]*Module, 0, len(e.modules))
	for _, m := range e.modules {
		m.mark = unvisited
		if m.consumer {
			consumers = append(consumers, m)
		}
	}
	byCost(consumers)
	for _, m := range consumers {
		e.visit(m)
	}
	e.scheduleDirty = false
	e.log.Debug(fmt.Sprintf("engine: scheduled %d of %d modules", len(e.schedule), len(e.modules)))
}

func (e *Engine) visit(m *Module) {
	switch m.mark {
	case visited:
		return
	case visiting:
		panic(fmt.Sprintf("engine: cycle detected at module %v", m))
	}
	m.mark = visiting
	sources := m.sources()
	byCost(sources)
	for _, src := range sources {
		e.visit(src)
	}
	m.mark = visited
	e.schedule = append(e.schedule, m)
}

// sources returns unique modules read by inputs and joint inputs of m.
func (m *Module) sources() []*Module {
	var sources []*Module
	add := func(src *Module) {
		for _, s := range sources {
			if s == src {
				return
			}
		}
		sources = append(sources, src)
	}
	for _, in := range m.Inputs {
		if in.Connected {
			add(in.src)
		}
	}
	for _, j := range m.JointInputs {
		for _, l := range j.links {
			add(l.module)
		}
	}
	return sources
}

// byCost sorts modules: expensive first, then in integration order.
func byCost(modules []*Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].class.Cost != modules[j].class.Cost {
			return modules[i].class.Cost > modules[j].class.Cost
		}
		return modules[i].seq < modules[j].seq
	})
}

// Scheduled reports if module is rendered in current schedule. Render
// goroutine only.
func (e *Engine) Scheduled(m *Module) bool {
	if e.scheduleDirty {
		e.makeSchedule()
	}
	for _, s := range e.schedule {
		if s == m {
			return true
		}
	}
	return false
}
