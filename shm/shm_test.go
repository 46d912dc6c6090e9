package shm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/shm"
)

func TestArena(t *testing.T) {
	a, err := shm.NewArena(1000, shm.WithLogger(log.Silent()))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1024, a.Size())

	b1, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Len(t, b1.Data, 100)
	assert.Equal(t, 0, b1.Offset)
	b2, err := a.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, 128, b2.Offset, "blocks are aligned")
	assert.Equal(t, 192, a.Used())

	b1.Data[0] = 7
	a.Free(b1)
	b3, err := a.Alloc(128)
	require.NoError(t, err)
	assert.Equal(t, 0, b3.Offset, "first fit reuses freed range")

	a.Free(b2)
	a.Free(b3)
	assert.Equal(t, 0, a.Used())
	b4, err := a.Alloc(1024)
	require.NoError(t, err, "free ranges are merged")
	a.Free(b4)
	assert.Panics(t, func() { a.Free(b4) }, "double free")
}

func TestArenaPressure(t *testing.T) {
	var tests = []struct {
		description string
		fraction    float64
		allocs      []int
		pressure    int64
		failed      int
	}{
		{
			description: "below fraction",
			fraction:    0.8,
			allocs:      []int{128, 128},
		},
		{
			description: "crossing once",
			fraction:    0.5,
			allocs:      []int{256, 256, 128},
			pressure:    1,
		},
		{
			description: "exhausted",
			fraction:    0.8,
			allocs:      []int{512, 512, 64},
			pressure:    2,
			failed:      1,
		},
	}
	for _, test := range tests {
		a, err := shm.NewArena(1024, shm.WithWarnFraction(test.fraction), shm.WithLogger(log.Silent()))
		require.NoError(t, err)
		failed := 0
		for _, n := range test.allocs {
			if _, err := a.Alloc(n); err != nil {
				assert.ErrorIs(t, err, sonic.ErrNoMemory, test.description)
				failed++
			}
		}
		assert.Equal(t, test.failed, failed, test.description)
		assert.Equal(t, test.pressure, a.Pressure(), test.description)
		assert.NoError(t, a.Close())
	}
}

func TestBlockFloat32s(t *testing.T) {
	a, err := shm.NewArena(256, shm.WithLogger(log.Silent()))
	require.NoError(t, err)
	defer a.Close()
	b, err := a.Alloc(16)
	require.NoError(t, err)
	floats := b.Float32s()
	require.Len(t, floats, 4)
	floats[3] = 1.5
	assert.NotZero(t, b.Data[15])
}
