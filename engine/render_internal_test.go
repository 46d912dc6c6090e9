package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/log"
)

func TestSplitRenderAllocs(t *testing.T) {
	cfg, err := sonic.NewConfig(sonic.BlockSize(64))
	require.NoError(t, err)
	e := New(cfg, WithLogger(log.Silent()))

	src := NewModule(&Class{
		Outputs: 1,
		Render: func(m *Module, n int) {
			for i := range m.Outputs[0].Buffer[:n] {
				m.Outputs[0].Buffer[i] = 1
			}
		},
	}, nil)
	segments := 0
	dst := NewModule(&Class{
		Inputs:      1,
		JointInputs: 1,
		Outputs:     1,
		Render: func(m *Module, n int) {
			segments++
			copy(m.Outputs[0].Buffer[:n], m.Inputs[0].Buffer[:n])
		},
	}, nil)
	e.Open().Add(
		Integrate(src),
		Integrate(dst),
		Connect(src, 0, dst, 0),
		JConnect(src, 0, dst, 0),
		SetConsumer(dst, true),
	).Commit()
	e.Dispatch()
	require.Equal(t, 1, segments)

	access := func(*Module) {}
	jobs := make([]timedJob, 1)
	allocs := testing.AllocsPerRun(10, func() {
		jobs[0] = timedJob{tick: e.tick + 16, module: dst, access: access}
		dst.flowJobs = jobs
		e.Dispatch()
	})
	assert.Zero(t, allocs)
	assert.Equal(t, 1+2*11, segments, "every block is split in two segments")
	assert.Equal(t, 1.0, dst.Outputs[0].Buffer[63])
	assert.Equal(t, 1, dst.JointInputs[0].Count())
}
