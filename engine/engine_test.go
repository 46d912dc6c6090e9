package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/signal"
)

const blockSize = 128

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(t *testing.T, options ...engine.Option) *engine.Engine {
	t.Helper()
	cfg, err := sonic.NewConfig(sonic.BlockSize(blockSize))
	require.NoError(t, err)
	return engine.New(cfg, append([]engine.Option{engine.WithLogger(log.Silent())}, options...)...)
}

// constant is a source class that writes its value to every output.
type constant struct {
	value   float64
	renders int
	resets  int
	frames  []int
	freed   int
}

func (c *constant) class(outputs int) *engine.Class {
	return &engine.Class{
		Outputs: outputs,
		Render: func(m *engine.Module, n int) {
			c.renders++
			c.frames = append(c.frames, n)
			for _, out := range m.Outputs {
				for i := range out.Buffer[:n] {
					out.Buffer[i] = c.value
				}
			}
		},
		Reset: func(m *engine.Module) {
			c.resets++
		},
		Free: func(data interface{}) {
			c.freed++
		},
	}
}

// sink is a consumer class that remembers what it read.
type sink struct {
	renders int
	input   []float64
	joint   []float64
	count   int
}

func (s *sink) class() *engine.Class {
	return &engine.Class{
		Inputs:      1,
		JointInputs: 1,
		Render: func(m *engine.Module, n int) {
			s.renders++
			s.input = m.Inputs[0].Buffer
			s.count = m.JointInputs[0].Count()
			s.joint = make([]float64, n)
			signal.Sum(s.joint, m.JointInputs[0].Buffers...)
		},
	}
}

func TestCommitTicks(t *testing.T) {
	e := newEngine(t)
	var order []string
	t1 := e.Open().Add(engine.Callback(func() { order = append(order, "t1") }, nil)).Commit()
	e.Dispatch()
	t2 := e.Open().Add(engine.Callback(func() { order = append(order, "t2") }, nil)).Commit()
	e.Dispatch()
	assert.Equal(t, uint64(0), t1)
	assert.Equal(t, uint64(blockSize), t2)
	assert.GreaterOrEqual(t, t2, t1)
	assert.Equal(t, []string{"t1", "t2"}, order)
	assert.Equal(t, uint64(2*blockSize), e.NextTick())
}

func TestEmptyCommit(t *testing.T) {
	e := newEngine(t)
	assert.Equal(t, uint64(0), e.Open().Commit())
	assert.Equal(t, uint64(1000), e.Open().CommitDelayed(1000))
}

func TestCommitDuringRender(t *testing.T) {
	e := newEngine(t)
	var (
		stamp   uint64
		next    uint64
		applied []uint64
	)
	rendering := make(chan struct{})
	committed := make(chan struct{})
	m := engine.NewModule(&engine.Class{
		Outputs: 1,
		Render: func(m *engine.Module, n int) {
			if m.Engine().Tick() != blockSize {
				return
			}
			next = m.Engine().NextTick()
			close(rendering)
			<-committed
		},
	}, nil)
	e.Open().Add(
		engine.Integrate(m),
		engine.SetConsumer(m, true),
	).Commit()
	e.Dispatch()

	go func() {
		<-rendering
		stamp = e.Open().Add(engine.Callback(func() {
			applied = append(applied, e.Tick())
		}, nil)).Commit()
		close(committed)
	}()
	e.Dispatch()
	assert.Equal(t, uint64(2*blockSize), next, "next boundary is published before render")
	assert.Equal(t, uint64(2*blockSize), stamp)
	assert.Empty(t, applied, "jobs are not applied before their stamp")

	e.Dispatch()
	assert.Equal(t, []uint64{stamp}, applied)
}

func TestCommitStampsAreMonotonic(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), nil)
	e.Open().Add(
		engine.Integrate(m),
		engine.SetConsumer(m, true),
	).Commit()

	var applied []uint64
	stamps := make(chan uint64, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(stamps); i++ {
			stamps <- e.Open().Add(engine.Callback(func() {
				applied = append(applied, e.Tick())
			}, nil)).Commit()
		}
	}()
	for {
		e.Dispatch()
		select {
		case <-done:
		default:
			continue
		}
		break
	}
	e.Dispatch()
	close(stamps)

	var last uint64
	i := 0
	for stamp := range stamps {
		assert.GreaterOrEqual(t, stamp, last)
		assert.Equal(t, stamp, applied[i], "transaction %d is applied at its stamp", i)
		last = stamp
		i++
	}
	assert.Len(t, applied, cap(stamps))
}

func TestIntegrateDiscardNeverRenders(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), "data")
	e.Open().Add(
		engine.Integrate(m),
		engine.SetConsumer(m, true),
		engine.Discard(m),
	).Commit()
	e.Dispatch()
	e.Dispatch()
	assert.Equal(t, 0, src.renders)
	assert.Equal(t, engine.Discarding, m.State())
	assert.Equal(t, 0, src.freed)
	e.Collect()
	assert.Equal(t, 1, src.freed)
	assert.Equal(t, engine.Freed, m.State())
}

func TestJointInput(t *testing.T) {
	e := newEngine(t)
	one, two := &constant{value: 1}, &constant{value: 2}
	s := &sink{}
	m1 := engine.NewModule(one.class(1), nil)
	m2 := engine.NewModule(two.class(1), nil)
	ms := engine.NewModule(s.class(), nil)
	e.Open().Add(
		engine.Integrate(m1),
		engine.Integrate(m2),
		engine.Integrate(ms),
		engine.JConnect(m1, 0, ms, 0),
		engine.JConnect(m2, 0, ms, 0),
		engine.SetConsumer(ms, true),
	).Commit()
	e.Dispatch()

	assert.Equal(t, 1, s.renders)
	assert.Equal(t, 2, s.count)
	for _, v := range s.joint {
		assert.Equal(t, 3.0, v)
	}
	assert.True(t, signal.IsZero(s.input), "unconnected input reads zero block")
	assert.Len(t, s.input, blockSize)

	e.Open().Add(engine.JDisconnect(ms, 0, m2, 0)).Commit()
	e.Dispatch()
	assert.Equal(t, 1, s.count)
	assert.Equal(t, 1.0, s.joint[0])
}

func TestUnreachableNotRendered(t *testing.T) {
	e := newEngine(t)
	orphan, fed := &constant{value: 1}, &constant{value: 2}
	s := &sink{}
	mo := engine.NewModule(orphan.class(1), nil)
	mf := engine.NewModule(fed.class(1), nil)
	ms := engine.NewModule(s.class(), nil)
	e.Open().Add(
		engine.Integrate(mo),
		engine.Integrate(mf),
		engine.Integrate(ms),
		engine.Connect(mf, 0, ms, 0),
		engine.SetConsumer(ms, true),
	).Commit()
	e.Dispatch()
	assert.Equal(t, 0, orphan.renders)
	assert.Equal(t, 1, fed.renders)
	assert.Equal(t, 1, fed.resets)
	assert.Equal(t, 2.0, s.input[0])
	assert.False(t, e.Scheduled(mo))
	assert.True(t, e.Scheduled(mf))
}

func TestRedirectedOutput(t *testing.T) {
	e := newEngine(t)
	block := make([]float64, sonic.MaxBlockSize)
	block[0] = 42
	src := engine.NewModule(&engine.Class{
		Outputs: 1,
		Render: func(m *engine.Module, n int) {
			m.Outputs[0].Redirect(block[:n])
		},
	}, nil)
	s := &sink{}
	ms := engine.NewModule(s.class(), nil)
	e.Open().Add(
		engine.Integrate(src),
		engine.Integrate(ms),
		engine.Connect(src, 0, ms, 0),
		engine.SetConsumer(ms, true),
	).Commit()
	e.Dispatch()
	require.Len(t, s.input, blockSize)
	assert.Equal(t, &block[0], &s.input[0])
}

func TestPollNeverReady(t *testing.T) {
	e := newEngine(t)
	s := &sink{}
	ms := engine.NewModule(s.class(), nil)
	hint := 3 * time.Millisecond
	var polls int32
	poll := &engine.Poll{
		Func: func(n int, timeout *time.Duration) bool {
			atomic.AddInt32(&polls, 1)
			*timeout = hint
			return false
		},
	}
	e.Open().Add(
		engine.Integrate(ms),
		engine.SetConsumer(ms, true),
		engine.AddPoll(poll),
	).Commit()

	ready, timeout := e.Prepare()
	assert.True(t, ready, "transaction is pending")
	assert.Equal(t, time.Duration(0), timeout)
	e.Dispatch()

	ready, timeout = e.Prepare()
	assert.False(t, ready)
	assert.Equal(t, hint, timeout)
	assert.False(t, e.Check())
	e.Dispatch()
	assert.Equal(t, 0, s.renders)
	assert.Equal(t, uint64(0), e.NextTick())
}

func TestRunUsesTimeout(t *testing.T) {
	e := newEngine(t)
	s := &sink{}
	ms := engine.NewModule(s.class(), nil)
	var polls int32
	var ready atomic.Bool
	poll := &engine.Poll{
		Func: func(n int, timeout *time.Duration) bool {
			atomic.AddInt32(&polls, 1)
			*timeout = 10 * time.Millisecond
			return ready.Load()
		},
	}
	e.Open().Add(
		engine.Integrate(ms),
		engine.SetConsumer(ms, true),
		engine.AddPoll(poll),
	).Commit()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- e.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	// prepare and check per 10ms sleep.
	assert.Less(t, atomic.LoadInt32(&polls), int32(40), "render loop must not spin")
	assert.Equal(t, uint64(0), e.NextTick())

	ready.Store(true)
	assert.Eventually(t, func() bool {
		return e.NextTick() > 0
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunTwice(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- e.Run(ctx)
	}()
	var applied atomic.Bool
	e.Open().Add(engine.Callback(func() { applied.Store(true) }, nil)).Commit()
	require.Eventually(t, applied.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, e.Run(ctx), engine.ErrEngineRunning)
	cancel()
	<-done
}

func TestWaitOnTrans(t *testing.T) {
	e := newEngine(t)
	var applied atomic.Bool
	e.Open().Add(engine.Callback(func() { applied.Store(true) }, nil)).Commit()
	assert.ErrorIs(t, e.WaitOnTrans(context.Background()), engine.ErrEngineStopped)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- e.Run(ctx)
	}()
	require.Eventually(t, e.Running, time.Second, time.Millisecond)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, e.WaitOnTrans(waitCtx))
	assert.True(t, applied.Load())
	cancel()
	<-done
}

func TestFreeCallbacks(t *testing.T) {
	e := newEngine(t)
	var frees []string
	free := func(name string) func() {
		return func() { frees = append(frees, name) }
	}
	poll := &engine.Poll{
		Func: func(int, *time.Duration) bool { return true },
		Free: free("poll"),
	}
	e.Open().Add(
		engine.Callback(func() {}, free("callback")),
		engine.AddPoll(poll),
		engine.AddTimer(func(uint64) bool { return false }, free("timer")),
	).Commit()
	for i := 0; i < 2; i++ {
		e.Prepare()
		e.Dispatch()
	}
	assert.Empty(t, frees, "free callbacks run on control side only")
	assert.True(t, e.Pending())
	assert.Equal(t, 2, e.Collect())
	assert.Equal(t, []string{"callback", "timer"}, frees)

	e.Open().Add(engine.RemovePoll(poll)).Commit()
	e.Dispatch()
	e.Collect()
	assert.Equal(t, []string{"callback", "timer", "poll"}, frees)
}

func TestTimers(t *testing.T) {
	e := newEngine(t)
	var ticks []uint64
	e.Open().Add(engine.AddTimer(func(tick uint64) bool {
		ticks = append(ticks, tick)
		return len(ticks) < 3
	}, nil)).Commit()
	for i := 0; i < 5; i++ {
		e.Dispatch()
	}
	assert.Equal(t, []uint64{0, blockSize, 2 * blockSize}, ticks)
}

func TestCommitDelayed(t *testing.T) {
	e := newEngine(t)
	var appliedAt []uint64
	tick := e.Open().Add(engine.Callback(func() {
		appliedAt = append(appliedAt, e.Tick())
	}, nil)).CommitDelayed(300)
	assert.Equal(t, uint64(300), tick)
	for i := 0; i < 3; i++ {
		e.Dispatch()
		assert.Empty(t, appliedAt)
	}
	e.Dispatch()
	assert.Equal(t, []uint64{3 * blockSize}, appliedAt)
}

func TestDismissAndMerge(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), nil)
	tr := e.Open().Add(engine.Integrate(m), engine.SetConsumer(m, true))
	assert.Equal(t, engine.Integrated, m.State())
	tr.Dismiss()
	assert.Equal(t, engine.Created, m.State())
	e.Dispatch()
	assert.Equal(t, 0, src.renders)
	assert.Panics(t, func() { tr.Commit() })

	first := e.Open().Add(engine.Integrate(m))
	second := e.Open().Add(engine.SetConsumer(m, true))
	first.Merge(second)
	assert.Equal(t, 2, first.Len())
	assert.Panics(t, func() { second.Add(engine.ForceReset(m)) })
	first.Commit()
	e.Dispatch()
	assert.Equal(t, engine.Active, m.State())
	assert.Equal(t, 1, src.renders)

	other := newEngine(t)
	assert.Panics(t, func() { e.Open().Merge(other.Open()) })
}

func TestFlowAccess(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), nil)
	var accessedAt []uint64
	e.Open().Add(
		engine.Integrate(m),
		engine.SetConsumer(m, true),
		engine.FlowAccess(m, 32, func(m *engine.Module) {
			accessedAt = append(accessedAt, m.Tick())
		}, nil),
	).Commit()
	e.Dispatch()
	assert.Equal(t, []uint64{32}, accessedAt)
	assert.Equal(t, []int{32, 96}, src.frames)
	e.Dispatch()
	assert.Equal(t, []int{32, 96, blockSize}, src.frames)
}

func TestSuspendResume(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), nil)
	e.Open().Add(engine.Integrate(m), engine.SetConsumer(m, true)).Commit()
	e.Dispatch()
	assert.Equal(t, 1, src.resets)

	e.Open().Add(engine.SuspendNow(m)).Commit()
	e.Dispatch()
	assert.True(t, signal.IsZero(m.Outputs[0].Buffer), "suspended output reads zero block")
	assert.Equal(t, 1, src.renders)

	e.Open().Add(engine.ResumeAt(m, 2*blockSize+64)).Commit()
	e.Dispatch()
	out := m.Outputs[0].Buffer
	require.Len(t, out, blockSize)
	assert.Equal(t, 0.0, out[63])
	assert.Equal(t, 1.0, out[64])
	assert.Equal(t, 2, src.resets, "module is reset on resume")
	assert.Equal(t, []int{blockSize, 64}, src.frames)
}

func TestBoundaryJobs(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	m := engine.NewModule(src.class(1), nil)
	var accessed []uint64
	e.Open().Add(
		engine.Integrate(m),
		engine.SetConsumer(m, true),
		engine.BoundaryAccess(m, blockSize+1, func(m *engine.Module) {
			accessed = append(accessed, m.Engine().NextTick())
		}, nil),
		engine.BoundaryDiscard(m, 2*blockSize),
	).Commit()
	e.Dispatch()
	assert.Empty(t, accessed)
	e.Dispatch()
	assert.Equal(t, []uint64{2 * blockSize}, accessed)
	assert.Equal(t, engine.Active, m.State())
	e.Dispatch()
	assert.Equal(t, engine.Discarding, m.State())
	assert.Equal(t, 3, src.renders)
	e.Dispatch()
	assert.Equal(t, 3, src.renders)
	e.Collect()
	assert.Equal(t, engine.Freed, m.State())
}

func TestKillConnections(t *testing.T) {
	e := newEngine(t)
	src := &constant{value: 1}
	s := &sink{}
	m := engine.NewModule(src.class(1), nil)
	ms := engine.NewModule(s.class(), nil)
	e.Open().Add(
		engine.Integrate(m),
		engine.Integrate(ms),
		engine.Connect(m, 0, ms, 0),
		engine.JConnect(m, 0, ms, 0),
		engine.SetConsumer(ms, true),
	).Commit()
	e.Dispatch()
	assert.True(t, m.Outputs[0].Connected)

	e.Open().Add(engine.KillOutputs(m)).Commit()
	e.Dispatch()
	assert.False(t, m.Outputs[0].Connected)
	assert.False(t, ms.Inputs[0].Connected)
	assert.Equal(t, 0, s.count)
	assert.Equal(t, 1, src.renders)
}

func TestProgrammingErrors(t *testing.T) {
	var tests = []struct {
		description string
		fn          func(e *engine.Engine)
	}{
		{
			description: "connect invalid output",
			fn: func(e *engine.Engine) {
				a := engine.NewModule((&constant{}).class(1), nil)
				b := engine.NewModule((&sink{}).class(), nil)
				engine.Connect(a, 1, b, 0)
			},
		},
		{
			description: "double integrate",
			fn: func(e *engine.Engine) {
				m := engine.NewModule((&constant{}).class(1), nil)
				engine.Integrate(m)
				engine.Integrate(m)
			},
		},
		{
			description: "class without render",
			fn: func(e *engine.Engine) {
				engine.NewModule(&engine.Class{}, nil)
			},
		},
		{
			description: "disconnect unconnected input",
			fn: func(e *engine.Engine) {
				m := engine.NewModule((&sink{}).class(), nil)
				e.Open().Add(engine.Integrate(m), engine.Disconnect(m, 0)).Commit()
				e.Dispatch()
			},
		},
		{
			description: "connect not integrated module",
			fn: func(e *engine.Engine) {
				a := engine.NewModule((&constant{}).class(1), nil)
				b := engine.NewModule((&sink{}).class(), nil)
				e.Open().Add(engine.Integrate(b), engine.Connect(a, 0, b, 0)).Commit()
				e.Dispatch()
			},
		},
		{
			description: "cycle",
			fn: func(e *engine.Engine) {
				class := &engine.Class{
					Inputs:  1,
					Outputs: 1,
					Render:  func(*engine.Module, int) {},
				}
				a := engine.NewModule(class, nil)
				b := engine.NewModule(class, nil)
				e.Open().Add(
					engine.Integrate(a),
					engine.Integrate(b),
					engine.Connect(a, 0, b, 0),
					engine.Connect(b, 0, a, 0),
					engine.SetConsumer(a, true),
				).Commit()
				e.Dispatch()
			},
		},
	}
	for _, test := range tests {
		e := newEngine(t)
		assert.Panics(t, func() { test.fn(e) }, test.description)
	}
}

func TestDebugZeroBlock(t *testing.T) {
	cfg, err := sonic.NewConfig(sonic.BlockSize(blockSize), sonic.Debug(true))
	require.NoError(t, err)
	e := engine.New(cfg, engine.WithLogger(log.Silent()))
	m := engine.NewModule(&engine.Class{
		Inputs: 1,
		Render: func(m *engine.Module, n int) {
			m.Inputs[0].Buffer[0] = 1
		},
	}, nil)
	e.Open().Add(engine.Integrate(m), engine.SetConsumer(m, true)).Commit()
	defer func() {
		signal.Zero(1)[0] = 0
	}()
	assert.Panics(t, e.Dispatch)
}

func TestReport(t *testing.T) {
	var reported []error
	e := newEngine(t, engine.WithReporter(func(err error) {
		reported = append(reported, err)
	}))
	e.Open().Add(engine.Callback(func() {
		e.Report(sonic.NewError(sonic.ErrDeviceIO, "write", nil))
	}, nil)).Commit()
	e.Dispatch()
	assert.Empty(t, reported)
	e.Collect()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], sonic.ErrDeviceIO)
}
