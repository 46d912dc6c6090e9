package mixer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/processor"
	"github.com/dudk/sonic/processor/mixer"
)

const blockSize = 32

// constant writes value to all channels of its output.
type constant struct {
	value       float64
	arrangement processor.SpeakerArrangement
	out         processor.OBusID
}

func (c *constant) Initialize(p *processor.Processor) {
	c.out = p.AddOBus("out", c.arrangement)
}

func (c *constant) Reset(p *processor.Processor) {}

func (c *constant) Render(p *processor.Processor, n int) {
	for ch := 0; ch < c.arrangement.Channels(); ch++ {
		out := p.OFloats(c.out, ch)[:n]
		for i := range out {
			out[i] = c.value
		}
	}
}

func TestMixer(t *testing.T) {
	tests := []struct {
		description string
		inputs      int
		options     []mixer.Option
		tracks      []constant
		volumes     map[int]float64
		master      float64
		expected    float64
	}{
		{
			description: "sum",
			inputs:      2,
			tracks: []constant{
				{value: 0.5, arrangement: processor.Stereo},
				{value: 0.25, arrangement: processor.Stereo},
			},
			master:   1,
			expected: 0.75,
		},
		{
			description: "average",
			inputs:      3,
			options:     []mixer.Option{mixer.Average()},
			tracks: []constant{
				{value: 0.75, arrangement: processor.Stereo},
				{value: 0.25, arrangement: processor.Stereo},
			},
			master:   1,
			expected: 0.5,
		},
		{
			description: "volumes and mono input",
			inputs:      2,
			tracks: []constant{
				{value: 0.5, arrangement: processor.Mono},
				{value: 0.5, arrangement: processor.Stereo},
			},
			volumes:  map[int]float64{1: 0},
			master:   0.5,
			expected: 0.25,
		},
	}

	for _, test := range tests {
		cfg, err := sonic.NewConfig(sonic.BlockSize(blockSize))
		require.NoError(t, err)
		e := processor.NewEngine(cfg, processor.WithLogger(log.Silent()))
		m := mixer.New(test.inputs, test.options...)
		pm := e.NewProcessor(m)
		e.AddRoot(pm)
		for i := range test.tracks {
			track := &test.tracks[i]
			pt := e.NewProcessor(track)
			e.Connect(pm, m.In(i), pt, track.out)
		}
		for i, v := range test.volumes {
			pm.SetParam(m.Volume(i), v)
		}
		pm.SetParam(m.Master(), test.master)
		e.RenderBlock(0, blockSize)
		for ch := 0; ch < 2; ch++ {
			out := pm.Output(m.Out(), ch)
			assert.InDelta(t, test.expected, out[0], 1e-9, test.description)
			assert.InDelta(t, test.expected, out[blockSize-1], 1e-9, test.description)
		}
	}
}

func TestNewMixerPanics(t *testing.T) {
	assert.Panics(t, func() { mixer.New(0) })
}
