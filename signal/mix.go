package signal

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Mix adds src into dst: dst[i] += src[i]. Only the common length is mixed.
func Mix(dst, src []float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	vecmath.AddBlockInPlace(dst[:n], src[:n])
}

// Scale writes src multiplied by gain into dst.
func Scale(dst, src []float64, gain float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	vecmath.ScaleBlock(dst[:n], src[:n], gain)
}

// Sum writes the element-wise sum of sources into dst. With no sources dst
// is zeroed.
func Sum(dst []float64, sources ...[]float64) {
	if len(sources) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	copy(dst, sources[0])
	for i := len(sources[0]); i < len(dst); i++ {
		dst[i] = 0
	}
	for _, src := range sources[1:] {
		Mix(dst, src)
	}
}

// Gain multiplies buf by gain in place.
func Gain(buf []float64, gain float64) {
	vecmath.ScaleBlock(buf, buf, gain)
}
