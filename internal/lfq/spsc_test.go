package lfq_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/sonic/internal/lfq"
)

func TestSPSC(t *testing.T) {
	q := lfq.NewSPSC[int](3)
	assert.Equal(t, 4, q.Cap())

	_, ok := q.Dequeue()
	assert.False(t, ok)

	for i := 0; i < 4; i++ {
		assert.True(t, q.Enqueue(i))
	}
	assert.False(t, q.Enqueue(4))
	assert.Equal(t, 4, q.Len())

	v, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestSPSCConcurrent(t *testing.T) {
	const n = 100000
	q := lfq.NewSPSC[int](64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if q.Enqueue(i) {
				i++
			}
		}
	}()
	expected := 0
	for expected < n {
		if v, ok := q.Dequeue(); ok {
			if v != expected {
				t.Fatalf("out of order: got %d expected %d", v, expected)
			}
			expected++
		}
	}
	wg.Wait()
}

func TestSPSCSlice(t *testing.T) {
	q := lfq.NewSPSC[float32](8)
	assert.Equal(t, 6, q.EnqueueSlice([]float32{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, 2, q.EnqueueSlice([]float32{7, 8, 9}))

	dst := make([]float32, 5)
	assert.Equal(t, 5, q.DequeueSlice(dst))
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, dst)

	// wraps around the ring.
	assert.Equal(t, 4, q.EnqueueSlice([]float32{10, 11, 12, 13}))
	dst = make([]float32, 10)
	assert.Equal(t, 7, q.DequeueSlice(dst))
	assert.Equal(t, []float32{6, 7, 8, 10, 11, 12, 13}, dst[:7])
	assert.Equal(t, 0, q.DequeueSlice(dst))
}
