package pcm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNullPacing(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	d := newNull(DriverConfig{
		SampleRate: 1000,
		Channels:   2,
		BlockSize:  10,
		Latency:    50 * time.Millisecond,
	}, clock)

	var timeout time.Duration
	assert.True(t, d.CheckIO(10, &timeout), "not started")
	assert.NoError(t, d.Write(make([]float32, 100)))

	assert.False(t, d.CheckIO(10, &timeout))
	assert.InDelta(t, float64(10*time.Millisecond), float64(timeout), float64(time.Microsecond))

	now = now.Add(20 * time.Millisecond)
	assert.True(t, d.CheckIO(10, &timeout))
}

func TestNullLatencyFloor(t *testing.T) {
	d := newNull(DriverConfig{SampleRate: 1000, Channels: 2, BlockSize: 256}, time.Now)
	assert.Equal(t, int64(256), d.latency)
}
