package signal

import (
	"math"
)

// canary is written around every buffer to detect overruns.
var canary = math.Float64frombits(0x7ff8dead0000beef)

const guards = 4

// zero is the shared read-only block of silence.
var zero = make([]float64, maxFrames)

// maxFrames must match sonic.MaxBlockSize. It's duplicated to keep signal
// free of root package dependency.
const maxFrames = 1024

// Zero returns the shared zero block of n frames. It must never be written.
func Zero(n int) []float64 {
	return zero[:n]
}

// ZeroIntact reports if the shared zero block wasn't overwritten.
func ZeroIntact() bool {
	for _, v := range zero {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsZero reports if buf is the shared zero block.
func IsZero(buf []float64) bool {
	return len(buf) > 0 && &buf[0] == &zero[0]
}

// FloatBuffer is a single-channel block of samples. It owns its storage
// surrounded with canaries, but can be redirected to another block to avoid
// copies between connected buses.
type FloatBuffer struct {
	storage  []float64
	own      []float64
	redirect []float64
}

// NewFloatBuffer allocates a buffer of n frames.
func NewFloatBuffer(n int) *FloatBuffer {
	storage := make([]float64, n+2*guards)
	for i := 0; i < guards; i++ {
		storage[i] = canary
		storage[len(storage)-1-i] = canary
	}
	return &FloatBuffer{
		storage: storage,
		own:     storage[guards : guards+n : guards+n],
	}
}

// Samples returns the active block: redirected one if set, owned otherwise.
func (b *FloatBuffer) Samples() []float64 {
	if b.redirect != nil {
		return b.redirect
	}
	return b.own
}

// Own returns the owned storage regardless of redirection.
func (b *FloatBuffer) Own() []float64 {
	return b.own
}

// Redirect makes Samples return block instead of owned storage. Passing nil
// resets redirection.
func (b *FloatBuffer) Redirect(block []float64) {
	b.redirect = block
}

// Redirected reports if buffer currently points to foreign storage.
func (b *FloatBuffer) Redirected() bool {
	return b.redirect != nil
}

// Clear zeroes owned storage and resets redirection.
func (b *FloatBuffer) Clear() {
	b.redirect = nil
	for i := range b.own {
		b.own[i] = 0
	}
}

// Intact reports if canaries around owned storage are untouched.
func (b *FloatBuffer) Intact() bool {
	for i := 0; i < guards; i++ {
		if math.Float64bits(b.storage[i]) != math.Float64bits(canary) ||
			math.Float64bits(b.storage[len(b.storage)-1-i]) != math.Float64bits(canary) {
			return false
		}
	}
	return true
}
