package processor

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ParamID identifies parameter of a processor. Valid ids start with 1.
type ParamID int

// ParamInfo describes parameter. Values are clamped to [Min, Max].
type ParamInfo struct {
	Ident   string
	Label   string
	Min     float64
	Max     float64
	Default float64
}

// NotifyFunc is called on control side when parameter value has changed.
type NotifyFunc func(p *Processor, id ParamID, value float64)

// NotifyID is a handle of registered notification.
type NotifyID uint64

const (
	dirtyFlag uint32 = 1 << iota
	notifyFlag
)

// param is a value shared between control and render sides. Only atomics
// cross the boundary.
type param struct {
	id    ParamID
	info  ParamInfo
	proc  *Processor
	value atomic.Uint64
	flags atomic.Uint32
	// next links params pending notification. Owned by whoever holds the
	// notify flag.
	next *param

	notifiers  atomic.Int32
	mu         sync.Mutex
	notifyList []notifier
}

type notifier struct {
	id NotifyID
	fn NotifyFunc
}

var notifyIDs atomic.Uint64

func newParam(p *Processor, id ParamID, info ParamInfo) *param {
	if info.Min > info.Max {
		panic(fmt.Sprintf("processor: param %s: min %v greater than max %v", info.Ident, info.Min, info.Max))
	}
	prm := &param{id: id, info: info, proc: p}
	prm.value.Store(math.Float64bits(clamp(info.Default, info.Min, info.Max)))
	prm.flags.Store(dirtyFlag)
	return prm
}

func (prm *param) load() float64 {
	return math.Float64frombits(prm.value.Load())
}

// set stores new value. It returns false if value didn't change.
func (prm *param) set(v float64) bool {
	v = clamp(v, prm.info.Min, prm.info.Max)
	bits := math.Float64bits(v)
	for {
		old := prm.value.Load()
		if old == bits {
			return false
		}
		if prm.value.CompareAndSwap(old, bits) {
			break
		}
	}
	prm.setFlags(dirtyFlag)
	if prm.notifiers.Load() > 0 && prm.setFlags(notifyFlag)&notifyFlag == 0 {
		prm.proc.engine.pushNotify(prm)
	}
	return true
}

// fetchDirty clears dirty flag and returns its previous state.
func (prm *param) fetchDirty() bool {
	return prm.clearFlags(dirtyFlag)&dirtyFlag != 0
}

// setFlags sets bits and returns previous flags.
func (prm *param) setFlags(bits uint32) uint32 {
	for {
		old := prm.flags.Load()
		if prm.flags.CompareAndSwap(old, old|bits) {
			return old
		}
	}
}

// clearFlags clears bits and returns previous flags.
func (prm *param) clearFlags(bits uint32) uint32 {
	for {
		old := prm.flags.Load()
		if prm.flags.CompareAndSwap(old, old&^bits) {
			return old
		}
	}
}

func (prm *param) addNotify(fn NotifyFunc) NotifyID {
	id := NotifyID(notifyIDs.Add(1))
	prm.mu.Lock()
	prm.notifyList = append(prm.notifyList, notifier{id: id, fn: fn})
	prm.mu.Unlock()
	prm.notifiers.Add(1)
	return id
}

func (prm *param) delNotify(id NotifyID) bool {
	prm.mu.Lock()
	defer prm.mu.Unlock()
	for i, n := range prm.notifyList {
		if n.id == id {
			prm.notifyList = append(prm.notifyList[:i], prm.notifyList[i+1:]...)
			prm.notifiers.Add(-1)
			return true
		}
	}
	return false
}

func (prm *param) notify() {
	prm.mu.Lock()
	list := append([]notifier(nil), prm.notifyList...)
	prm.mu.Unlock()
	v := prm.load()
	for _, n := range list {
		n.fn(prm.proc, prm.id, v)
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// pushNotify adds param to the pending list. Caller must own notify flag.
func (e *Engine) pushNotify(prm *param) {
	for {
		head := e.notifyHead.Load()
		prm.next = head
		if e.notifyHead.CompareAndSwap(head, prm) {
			return
		}
	}
}

// CallNotifies delivers notifications of parameters changed since the
// previous call. It must be called periodically on control side and returns
// number of notified parameters.
func (e *Engine) CallNotifies() int {
	head := e.notifyHead.Swap(nil)
	// list is pushed in reverse order.
	var pending []*param
	for prm := head; prm != nil; prm = prm.next {
		pending = append(pending, prm)
	}
	for i := len(pending) - 1; i >= 0; i-- {
		prm := pending[i]
		prm.next = nil
		prm.clearFlags(notifyFlag)
		prm.notify()
	}
	return len(pending)
}
