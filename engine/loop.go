package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"
)

// Prepare reports if the engine has work to dispatch. If it doesn't, timeout
// is how long the loop may sleep before calling Check. Negative timeout means
// sleep until transaction is committed. Render goroutine only.
func (e *Engine) Prepare() (bool, time.Duration) {
	timeout := time.Duration(-1)
	ready := e.transQueue.Len() > 0
	if len(e.polls) > 0 {
		e.pollsReady = e.checkPolls(&timeout)
		ready = ready || e.pollsReady
		if !e.pollsReady && timeout < 0 {
			timeout = e.config.BlockDuration()
		}
	} else if e.freeRun && e.hasConsumers() {
		ready = true
	}
	if ready {
		timeout = 0
	}
	return ready, timeout
}

// Check is called after the loop slept the timeout returned by Prepare. It
// reports if Dispatch should be called. Render goroutine only.
func (e *Engine) Check() bool {
	ready := e.transQueue.Len() > 0
	if len(e.polls) > 0 {
		e.pollsReady = e.checkPolls(nil)
		return ready || e.pollsReady
	}
	return ready || (e.freeRun && e.hasConsumers())
}

// Dispatch applies due transactions and renders a single block if poll
// sources are ready. Without poll sources the block is rendered if engine
// is free running or stepped manually. Render goroutine only.
func (e *Engine) Dispatch() {
	e.drain()
	render := false
	switch {
	case len(e.polls) > 0:
		render = e.pollsReady
	case e.freeRun:
		render = e.hasConsumers()
	default:
		render = !e.looping
	}
	e.pollsReady = false
	if render {
		e.publish(e.tick + uint64(e.config.BlockSize))
		// commits stamped with the current tick may have missed the first
		// drain.
		e.drain()
		e.renderBlock(e.config.BlockSize)
	}
	e.flushOverflow()
}

// Run executes the render loop until ctx is done. Only one loop per engine
// can run at the time.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.running.Store(false)
	e.looping = true
	defer func() { e.looping = false }()
	e.log.Debug("engine: render loop started")
	defer e.log.Debug("engine: render loop stopped")
	e.measure = e.meter()

	sleep := time.NewTimer(time.Hour)
	sleep.Stop()
	defer sleep.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, timeout := e.Prepare()
		if !ready {
			if timeout >= 0 {
				sleep.Reset(timeout)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wakec:
				if timeout >= 0 && !sleep.Stop() {
					<-sleep.C
				}
			case <-sleep.C:
			}
			if !e.Check() {
				continue
			}
		}
		e.Dispatch()
	}
}

func (e *Engine) checkPolls(timeout *time.Duration) bool {
	ready := true
	for _, p := range e.polls {
		hint := time.Duration(-1)
		if !p.Func(e.config.BlockSize, &hint) {
			ready = false
			if timeout != nil && hint >= 0 && (*timeout < 0 || hint < *timeout) {
				*timeout = hint
			}
		}
	}
	return ready
}

func (e *Engine) hasConsumers() bool {
	for _, m := range e.modules {
		if m.consumer {
			return true
		}
	}
	return false
}

// publish moves the stamp handed to new commits to tick. When it returns,
// every commit stamped with the previous value is in the queue.
func (e *Engine) publish(tick uint64) {
	e.nextTick.Store(tick)
	for e.committing.Load() {
		runtime.Gosched()
	}
}

// drain applies transactions due at the next block boundary.
func (e *Engine) drain() {
	due := e.tick
	for len(e.delayed) > 0 && e.delayed[0].tick <= due {
		t := e.delayed[0]
		e.delayed[0] = nil
		e.delayed = e.delayed[1:]
		e.apply(t)
	}
	for {
		t, ok := e.transQueue.Dequeue()
		if !ok {
			return
		}
		if t.tick > due {
			e.delay(t)
			continue
		}
		e.apply(t)
	}
}

func (e *Engine) delay(t *Trans) {
	i := sort.Search(len(e.delayed), func(i int) bool {
		return e.delayed[i].tick > t.tick
	})
	e.delayed = append(e.delayed, nil)
	copy(e.delayed[i+1:], e.delayed[i:])
	e.delayed[i] = t
}

func (e *Engine) apply(t *Trans) {
	for _, j := range t.jobs {
		e.applyJob(j)
	}
	t.jobs = nil
	e.applied.Add(1)
	e.signalDrained()
}

func (e *Engine) applyJob(j Job) {
	m := j.module
	switch j.kind {
	case integrateJob:
		if !m.state.CompareAndSwap(int32(Integrated), int32(Active)) {
			panic(fmt.Sprintf("engine: integrate: module %v is %v", m, m.State()))
		}
		m.engine = e
		m.seq = e.seq
		e.seq++
		m.needsReset = true
		e.modules = append(e.modules, m)
		e.scheduleDirty = true
	case discardJob:
		m.assertActive("discard")
		e.discard(m)
	case connectJob:
		m.connect(j.in, j.src, j.out)
		e.scheduleDirty = true
	case disconnectJob:
		m.disconnect(j.in)
		e.scheduleDirty = true
	case jconnectJob:
		m.jconnect(j.in, j.src, j.out)
		e.scheduleDirty = true
	case jdisconnectJob:
		m.jdisconnect(j.in, j.src, j.out)
		e.scheduleDirty = true
	case killInputsJob:
		m.assertActive("kill inputs")
		m.killInputs()
		e.scheduleDirty = true
	case killOutputsJob:
		m.assertActive("kill outputs")
		m.killOutputs()
		e.scheduleDirty = true
	case forceResetJob:
		m.assertActive("force reset")
		m.needsReset = true
	case setConsumerJob:
		m.assertActive("set consumer")
		m.consumer = j.flag
		e.scheduleDirty = true
	case suspendJob:
		m.assertActive("suspend")
		m.suspended = true
		m.resuming = false
	case resumeJob:
		m.assertActive("resume")
		if m.suspended {
			m.resuming = true
			m.resumeAt = j.tick
		}
	case addPollJob:
		e.polls = append(e.polls, j.poll)
	case removePollJob:
		e.removePoll(j.poll)
	case addTimerJob:
		e.timers = append(e.timers, timer{fn: j.timer, free: j.free})
		return
	case accessJob:
		m.assertActive("access")
		j.access(m)
	case flowAccessJob:
		m.assertActive("flow access")
		if j.tick <= e.tick {
			j.access(m)
			break
		}
		m.flowJobs = insertTimed(m.flowJobs, timedJob{tick: j.tick, module: m, access: j.access, free: j.free})
		return
	case boundaryAccessJob:
		m.assertActive("boundary access")
		e.boundary = insertTimed(e.boundary, timedJob{tick: j.tick, module: m, access: j.access, free: j.free})
		return
	case boundaryDiscardJob:
		m.assertActive("boundary discard")
		e.boundary = insertTimed(e.boundary, timedJob{tick: j.tick, module: m, discard: true})
		return
	case callbackJob:
		j.fn()
	default:
		panic(fmt.Sprintf("engine: unknown job %v", j))
	}
	e.free(j.free)
}

// discard detaches module from the graph and schedules its release.
func (e *Engine) discard(m *Module) {
	m.killInputs()
	m.killOutputs()
	for i, mod := range e.modules {
		if mod == m {
			e.modules = append(e.modules[:i], e.modules[i+1:]...)
			break
		}
	}
	for _, fj := range m.flowJobs {
		e.free(fj.free)
	}
	m.flowJobs = nil
	boundary := e.boundary[:0]
	for _, bj := range e.boundary {
		if bj.module == m {
			e.free(bj.free)
			continue
		}
		boundary = append(boundary, bj)
	}
	e.boundary = boundary
	m.consumer = false
	m.state.Store(int32(Discarding))
	if m.class.Teardown != nil {
		m.class.Teardown(m)
	}
	e.scheduleDirty = true
	e.UserCallback(func() {
		if m.class.Free != nil {
			m.class.Free(m.Data)
		}
		m.state.Store(int32(Freed))
	})
}

func (e *Engine) removePoll(p *Poll) {
	for i, poll := range e.polls {
		if poll == p {
			e.polls = append(e.polls[:i], e.polls[i+1:]...)
			e.free(p.Free)
			return
		}
	}
	panic("engine: remove poll: poll is not registered")
}

// insertTimed inserts job keeping slice ordered by tick. Jobs with equal
// ticks keep commit order.
func insertTimed(jobs []timedJob, j timedJob) []timedJob {
	i := sort.Search(len(jobs), func(i int) bool {
		return jobs[i].tick > j.tick
	})
	jobs = append(jobs, timedJob{})
	copy(jobs[i+1:], jobs[i:])
	jobs[i] = j
	return jobs
}
