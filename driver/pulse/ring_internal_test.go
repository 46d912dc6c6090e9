package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	r := newRing(8)
	assert.Equal(t, 8, r.free())

	n, err := r.push([]float32{1, 2, 3})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 5, r.free())

	buf := []float32{9, 9, 9, 9, 9}
	n, err = r.pull(buf)
	assert.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, []float32{1, 2, 3, 0, 0}, buf)

	n, _ = r.push(make([]float32, 12))
	assert.Equal(t, 12, n, "overflow is dropped")
	assert.Equal(t, 0, r.free())
}
