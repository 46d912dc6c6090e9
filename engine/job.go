package engine

import (
	"fmt"
	"time"
)

// PollFunc reports if the engine can render nFrames without blocking. It's
// called on render goroutine during prepare and check. If not ready, it may
// store a hint in timeout when it's worth to poll again.
type PollFunc func(nFrames int, timeout *time.Duration) bool

// TimerFunc is called on render goroutine after every rendered block with the
// stamp of the block. Timer is removed when it returns false.
type TimerFunc func(tick uint64) bool

// AccessFunc is executed on render goroutine with exclusive access to module.
type AccessFunc func(m *Module)

// Poll is a handle of registered poll function.
type Poll struct {
	Func PollFunc
	// Free is called on control side after the poll is removed.
	Free func()
}

type jobKind int

const (
	integrateJob jobKind = iota
	discardJob
	connectJob
	disconnectJob
	jconnectJob
	jdisconnectJob
	killInputsJob
	killOutputsJob
	forceResetJob
	setConsumerJob
	suspendJob
	resumeJob
	addPollJob
	removePollJob
	addTimerJob
	accessJob
	flowAccessJob
	boundaryAccessJob
	boundaryDiscardJob
	callbackJob
)

var jobNames = map[jobKind]string{
	integrateJob:       "integrate",
	discardJob:         "discard",
	connectJob:         "connect",
	disconnectJob:      "disconnect",
	jconnectJob:        "jconnect",
	jdisconnectJob:     "jdisconnect",
	killInputsJob:      "kill-inputs",
	killOutputsJob:     "kill-outputs",
	forceResetJob:      "force-reset",
	setConsumerJob:     "set-consumer",
	suspendJob:         "suspend",
	resumeJob:          "resume",
	addPollJob:         "add-poll",
	removePollJob:      "remove-poll",
	addTimerJob:        "add-timer",
	accessJob:          "access",
	flowAccessJob:      "flow-access",
	boundaryAccessJob:  "boundary-access",
	boundaryDiscardJob: "boundary-discard",
	callbackJob:        "callback",
}

func (k jobKind) String() string {
	return jobNames[k]
}

// Job is a single deferred mutation. Jobs are values and do nothing until
// their transaction is committed.
type Job struct {
	kind   jobKind
	module *Module
	src    *Module
	in     int
	out    int
	tick   uint64
	flag   bool
	poll   *Poll
	timer  TimerFunc
	access AccessFunc
	fn     func()
	// free is executed on control side after the job was applied.
	free func()
}

func (j Job) String() string {
	if j.module != nil {
		return fmt.Sprintf("%v(%v)", j.kind, j.module)
	}
	return j.kind.String()
}

// timedJob is a module access bound to a tick.
type timedJob struct {
	tick    uint64
	module  *Module
	access  AccessFunc
	discard bool
	free    func()
}

func mustModule(m *Module, op string) {
	if m == nil {
		panic(fmt.Sprintf("engine: %s: nil module", op))
	}
}

// Integrate hands module to the engine. Module becomes active when the
// transaction is applied. Integrating the same module twice is a
// programming error.
func Integrate(m *Module) Job {
	mustModule(m, "integrate")
	if !m.state.CompareAndSwap(int32(Created), int32(Integrated)) {
		panic(fmt.Sprintf("engine: integrate: module %v is %v", m, m.State()))
	}
	return Job{kind: integrateJob, module: m}
}

// Discard removes module from the engine. All connections are dropped,
// Teardown is called on render goroutine and Free is called on control side.
func Discard(m *Module) Job {
	mustModule(m, "discard")
	return Job{kind: discardJob, module: m}
}

// Connect links output srcOut of src to input dstIn of dst.
func Connect(src *Module, srcOut int, dst *Module, dstIn int) Job {
	mustModule(src, "connect")
	mustModule(dst, "connect")
	src.checkOutput(srcOut)
	dst.checkInput(dstIn)
	return Job{kind: connectJob, module: dst, in: dstIn, src: src, out: srcOut}
}

// Disconnect drops connection of input dstIn of dst.
func Disconnect(dst *Module, dstIn int) Job {
	mustModule(dst, "disconnect")
	dst.checkInput(dstIn)
	return Job{kind: disconnectJob, module: dst, in: dstIn}
}

// JConnect adds a connection from output srcOut of src to joint input dstIn
// of dst.
func JConnect(src *Module, srcOut int, dst *Module, dstIn int) Job {
	mustModule(src, "jconnect")
	mustModule(dst, "jconnect")
	src.checkOutput(srcOut)
	dst.checkJointInput(dstIn)
	return Job{kind: jconnectJob, module: dst, in: dstIn, src: src, out: srcOut}
}

// JDisconnect removes a connection from output srcOut of src to joint input
// dstIn of dst.
func JDisconnect(dst *Module, dstIn int, src *Module, srcOut int) Job {
	mustModule(src, "jdisconnect")
	mustModule(dst, "jdisconnect")
	src.checkOutput(srcOut)
	dst.checkJointInput(dstIn)
	return Job{kind: jdisconnectJob, module: dst, in: dstIn, src: src, out: srcOut}
}

// KillInputs drops all input connections of module.
func KillInputs(m *Module) Job {
	mustModule(m, "kill inputs")
	return Job{kind: killInputsJob, module: m}
}

// KillOutputs drops all connections that read outputs of module.
func KillOutputs(m *Module) Job {
	mustModule(m, "kill outputs")
	return Job{kind: killOutputsJob, module: m}
}

// ForceReset makes engine call Reset before the next render of module.
func ForceReset(m *Module) Job {
	mustModule(m, "force reset")
	return Job{kind: forceResetJob, module: m}
}

// SetConsumer marks module as consumer. Consumers and everything they read
// are rendered every block.
func SetConsumer(m *Module, consumer bool) Job {
	mustModule(m, "set consumer")
	return Job{kind: setConsumerJob, module: m, flag: consumer}
}

// SuspendNow stops rendering of module. Its outputs read as silence.
func SuspendNow(m *Module) Job {
	mustModule(m, "suspend")
	return Job{kind: suspendJob, module: m}
}

// ResumeAt resumes suspended module at tick. Module is reset before it
// renders again. If tick falls inside a block, the block is split.
func ResumeAt(m *Module, tick uint64) Job {
	mustModule(m, "resume")
	return Job{kind: resumeJob, module: m, tick: tick}
}

// AddPoll registers poll function.
func AddPoll(p *Poll) Job {
	if p == nil || p.Func == nil {
		panic("engine: add poll: nil poll")
	}
	return Job{kind: addPollJob, poll: p}
}

// RemovePoll unregisters poll function. Its Free is called on control side.
func RemovePoll(p *Poll) Job {
	if p == nil {
		panic("engine: remove poll: nil poll")
	}
	return Job{kind: removePollJob, poll: p}
}

// AddTimer registers timer function. Free is called on control side after
// timer is removed.
func AddTimer(fn TimerFunc, free func()) Job {
	if fn == nil {
		panic("engine: add timer: nil func")
	}
	return Job{kind: addTimerJob, timer: fn, free: free}
}

// Access executes fn with exclusive access to module when the job is
// applied. Free is called on control side afterwards.
func Access(m *Module, fn AccessFunc, free func()) Job {
	mustModule(m, "access")
	return Job{kind: accessJob, module: m, access: fn, free: free}
}

// FlowAccess executes fn at tick. If tick falls inside a block, render of
// module is split at that frame.
func FlowAccess(m *Module, tick uint64, fn AccessFunc, free func()) Job {
	mustModule(m, "flow access")
	return Job{kind: flowAccessJob, module: m, tick: tick, access: fn, free: free}
}

// BoundaryAccess executes fn after the block containing tick is rendered.
func BoundaryAccess(m *Module, tick uint64, fn AccessFunc, free func()) Job {
	mustModule(m, "boundary access")
	return Job{kind: boundaryAccessJob, module: m, tick: tick, access: fn, free: free}
}

// BoundaryDiscard discards module after the block containing tick is
// rendered.
func BoundaryDiscard(m *Module, tick uint64) Job {
	mustModule(m, "boundary discard")
	return Job{kind: boundaryDiscardJob, module: m, tick: tick}
}

// Callback executes fn on render goroutine. Free is called on control side
// afterwards.
func Callback(fn func(), free func()) Job {
	if fn == nil {
		panic("engine: callback: nil func")
	}
	return Job{kind: callbackJob, fn: fn, free: free}
}
