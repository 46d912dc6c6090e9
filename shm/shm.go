// Package shm provides a shared memory arena used to broadcast render
// results to other processes.
package shm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/log"
)

// Alignment of every block.
const Alignment = 64

// DefaultWarnFraction of capacity that triggers pressure warning.
const DefaultWarnFraction = 0.8

// Arena is a fixed size region with first fit allocator. It's safe for
// concurrent use.
type Arena struct {
	log          log.Logger
	warnFraction float64

	mu     sync.Mutex
	data   []byte
	spans  []span
	used   int
	warned bool
	closed bool

	pressure atomic.Int64
}

// span is a free range of arena.
type span struct {
	offset int
	size   int
}

// Block is an allocated range of arena.
type Block struct {
	Offset int
	Data   []byte
}

// Option provides a way to set functional parameters to arena.
type Option func(a *Arena)

// WithLogger sets logger to arena.
func WithLogger(l log.Logger) Option {
	return func(a *Arena) {
		a.log = l
	}
}

// WithWarnFraction sets the usage fraction above which arena reports
// pressure.
func WithWarnFraction(f float64) Option {
	return func(a *Arena) {
		a.warnFraction = f
	}
}

// NewArena maps a shared region of size bytes. Size is rounded up to the
// alignment.
func NewArena(size int, options ...Option) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid arena size: %d", size)
	}
	size = align(size)
	a := &Arena{
		log:          log.New("shm"),
		warnFraction: DefaultWarnFraction,
	}
	for _, option := range options {
		option(a)
	}
	data, err := mmap(size)
	if err != nil {
		return nil, sonic.NewError(sonic.ErrNoMemory, "map shared arena", err)
	}
	a.data = data
	a.spans = []span{{offset: 0, size: size}}
	return a, nil
}

// Size returns capacity of arena.
func (a *Arena) Size() int {
	return len(a.data)
}

// Used returns number of allocated bytes.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Pressure returns how many times usage crossed the warning fraction or
// allocation failed.
func (a *Arena) Pressure() int64 {
	return a.pressure.Load()
}

// Alloc allocates block of at least n bytes.
func (a *Arena) Alloc(n int) (Block, error) {
	if n <= 0 {
		panic(fmt.Sprintf("shm: invalid allocation size: %d", n))
	}
	size := align(n)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic("shm: alloc from closed arena")
	}
	for i, s := range a.spans {
		if s.size < size {
			continue
		}
		if s.size == size {
			a.spans = append(a.spans[:i], a.spans[i+1:]...)
		} else {
			a.spans[i] = span{offset: s.offset + size, size: s.size - size}
		}
		a.used += size
		a.checkPressure()
		return Block{
			Offset: s.offset,
			Data:   a.data[s.offset : s.offset+n : s.offset+size],
		}, nil
	}
	a.pressure.Add(1)
	a.log.Warn(fmt.Sprintf("shm: failed to allocate %d bytes, used %d of %d", size, a.used, len(a.data)))
	return Block{}, sonic.NewError(sonic.ErrNoMemory, "allocate shared block", nil)
}

// Free returns block to arena. Adjacent free ranges are merged.
func (a *Arena) Free(b Block) {
	size := cap(b.Data)
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.Offset < 0 || size == 0 || b.Offset+size > len(a.data) {
		panic(fmt.Sprintf("shm: free of foreign block at %d", b.Offset))
	}
	i := sort.Search(len(a.spans), func(i int) bool {
		return a.spans[i].offset >= b.Offset
	})
	if i < len(a.spans) && a.spans[i].offset < b.Offset+size ||
		i > 0 && a.spans[i-1].offset+a.spans[i-1].size > b.Offset {
		panic(fmt.Sprintf("shm: double free of block at %d", b.Offset))
	}
	a.spans = append(a.spans, span{})
	copy(a.spans[i+1:], a.spans[i:])
	a.spans[i] = span{offset: b.Offset, size: size}
	// merge with next and previous.
	if i+1 < len(a.spans) && a.spans[i].offset+a.spans[i].size == a.spans[i+1].offset {
		a.spans[i].size += a.spans[i+1].size
		a.spans = append(a.spans[:i+1], a.spans[i+2:]...)
	}
	if i > 0 && a.spans[i-1].offset+a.spans[i-1].size == a.spans[i].offset {
		a.spans[i-1].size += a.spans[i].size
		a.spans = append(a.spans[:i], a.spans[i+1:]...)
	}
	a.used -= size
	a.checkPressure()
}

// Close unmaps arena. Blocks must not be used after close.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return munmap(a.data)
}

// checkPressure warns once per crossing of the warning fraction.
func (a *Arena) checkPressure() {
	high := float64(a.used) > a.warnFraction*float64(len(a.data))
	switch {
	case high && !a.warned:
		a.warned = true
		a.pressure.Add(1)
		a.log.Warn(fmt.Sprintf("shm: arena usage %d of %d bytes is above %.0f%%", a.used, len(a.data), a.warnFraction*100))
	case !high:
		a.warned = false
	}
}

// Float32s returns block data as float32 samples.
func (b Block) Float32s() []float32 {
	if len(b.Data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.Data[0])), len(b.Data)/4)
}

func align(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
