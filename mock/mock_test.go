package mock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/sonic/mock"
)

var errTest = errors.New("test error")

func TestDriver(t *testing.T) {
	d := &mock.Driver{SampleRate: 44100, Playback: true, Hint: time.Millisecond, Value: 0.5}
	var timeout time.Duration
	assert.False(t, d.CheckIO(64, &timeout))
	assert.Equal(t, time.Millisecond, timeout)
	d.SetReady(true)
	assert.True(t, d.CheckIO(64, &timeout))
	assert.Equal(t, 2, d.Checks())

	assert.NoError(t, d.Write([]float32{1, 2}))
	assert.NoError(t, d.Write([]float32{3}))
	calls, values := d.Writes()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, values)
	assert.Equal(t, []float32{1, 2, 3}, d.Written())

	buf := make([]float32, 4)
	n, err := d.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, float32(0.5), buf[3])

	d.ErrorOnWrite = errTest
	assert.Equal(t, errTest, d.Write(buf))
	assert.NoError(t, d.Close())
	assert.True(t, d.Closed())
}
