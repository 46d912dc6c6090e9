// Package signal provides the sample containers shared by both graph models:
// 	- block-sized float buffers with overrun canaries and redirection;
// 	- a shared read-only zero block;
// 	- interleaving for driver and file I/O.
package signal

// Float64 is a non-interleaved float64 signal, one slice per channel.
type Float64 [][]float64

// MakeFloat64 allocates a zeroed signal.
func MakeFloat64(channels, frames int) Float64 {
	f := make(Float64, channels)
	for i := range f {
		f[i] = make([]float64, frames)
	}
	return f
}

// Channels returns number of channels.
func (f Float64) Channels() int {
	return len(f)
}

// Frames returns number of frames in the first channel.
func (f Float64) Frames() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// Interleave writes non-interleaved channels into interleaved float32 slice.
// Channels shorter than frames and missing channels are written as zeros.
func Interleave(dst []float32, frames int, channels ...[]float64) {
	n := len(channels)
	for i := 0; i < frames; i++ {
		for c, ch := range channels {
			var v float64
			if i < len(ch) {
				v = ch[i]
			}
			dst[i*n+c] = float32(v)
		}
	}
}

// Deinterleave splits interleaved float32 slice into channels.
func Deinterleave(src []float32, frames int, channels ...[]float64) {
	n := len(channels)
	for i := 0; i < frames && (i+1)*n <= len(src); i++ {
		for c := range channels {
			channels[c][i] = float64(src[i*n+c])
		}
	}
}
