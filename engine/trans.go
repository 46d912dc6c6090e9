package engine

import (
	"time"
)

// Trans is an ordered batch of jobs applied atomically at a block boundary.
// Transaction is not safe for concurrent use, but different transactions
// can be committed from different goroutines.
type Trans struct {
	engine *Engine
	jobs   []Job
	tick   uint64
	closed bool
}

// Open creates an empty transaction.
func (e *Engine) Open() *Trans {
	return &Trans{engine: e}
}

// Add appends jobs to transaction.
func (t *Trans) Add(jobs ...Job) *Trans {
	t.assertOpen("add")
	t.jobs = append(t.jobs, jobs...)
	return t
}

// Merge appends all jobs of other transaction. Other transaction is closed
// after merge.
func (t *Trans) Merge(other *Trans) *Trans {
	t.assertOpen("merge")
	other.assertOpen("merge")
	if t.engine != other.engine {
		panic("engine: merge transactions of different engines")
	}
	t.jobs = append(t.jobs, other.jobs...)
	other.jobs = nil
	other.closed = true
	return t
}

// Len returns number of jobs in transaction.
func (t *Trans) Len() int {
	return len(t.jobs)
}

// Commit hands transaction to the render goroutine. It returns the stamp of
// the block boundary it's expected to take effect at: the next one, or one
// block later if render goroutine already passed its drain point.
func (t *Trans) Commit() uint64 {
	return t.commit(0)
}

// CommitDelayed hands transaction to the render goroutine, but its jobs are
// applied not earlier than the block containing tick.
func (t *Trans) CommitDelayed(tick uint64) uint64 {
	return t.commit(tick)
}

// Dismiss discards uncommitted transaction without side effects.
func (t *Trans) Dismiss() {
	t.assertOpen("dismiss")
	for _, j := range t.jobs {
		if j.kind == integrateJob {
			j.module.state.CompareAndSwap(int32(Integrated), int32(Created))
		}
	}
	t.jobs = nil
	t.closed = true
}

func (t *Trans) commit(tick uint64) uint64 {
	t.assertOpen("commit")
	t.closed = true
	e := t.engine
	next := e.nextTick.Load()
	if len(t.jobs) == 0 {
		if tick > next {
			return tick
		}
		return next
	}

	e.producer.Lock()
	defer e.producer.Unlock()
	e.committed.Add(1)
	for {
		// the flag brackets stamp and enqueue, see Engine.publish.
		e.committing.Store(true)
		stamp := tick
		if next = e.nextTick.Load(); stamp < next {
			stamp = next
		}
		t.tick = stamp
		if e.transQueue.Enqueue(t) {
			e.committing.Store(false)
			e.wake()
			return stamp
		}
		e.committing.Store(false)
		// queue is full, render goroutine needs to catch up.
		e.wake()
		time.Sleep(e.config.BlockDuration())
	}
}

func (t *Trans) assertOpen(op string) {
	if t.closed {
		panic("engine: " + op + " on closed transaction")
	}
}
