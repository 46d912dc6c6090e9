// Package wav decodes wave files into module sources and encodes captured
// output blocks.
package wav

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/signal"
)

// Data is a decoded wave file.
type Data struct {
	Samples    signal.Float64
	SampleRate int
	Channels   int
	BitDepth   BitDepth
}

// BitDepth is the sample width of integer PCM.
type BitDepth int

// Supported bit depths.
const (
	BitDepth16 BitDepth = 16
	BitDepth24 BitDepth = 24
	BitDepth32 BitDepth = 32
)

// Frames returns number of frames.
func (d *Data) Frames() int {
	return d.Samples.Frames()
}

func supported(bitDepth BitDepth) bool {
	switch bitDepth {
	case BitDepth16, BitDepth24, BitDepth32:
		return true
	}
	return false
}

// Load decodes the whole file at path.
func Load(path string) (*Data, error) {
	op := fmt.Sprintf("load wav %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, sonic.NewError(sonic.ErrFileOpen, op, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, sonic.NewError(sonic.ErrFormatUnsupported, op, fmt.Errorf("not a wave file"))
	}
	bitDepth := BitDepth(decoder.BitDepth)
	if !supported(bitDepth) {
		return nil, sonic.NewError(sonic.ErrFormatUnsupported, op, fmt.Errorf("%d bit depth", bitDepth))
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, sonic.NewError(sonic.ErrCodec, op, err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, sonic.NewError(sonic.ErrFormatUnsupported, op, fmt.Errorf("%d channels", channels))
	}
	buf.SourceBitDepth = int(bitDepth)
	floats := buf.AsFloat32Buffer()
	frames := len(floats.Data) / channels
	samples := signal.MakeFloat64(channels, frames)
	signal.Deinterleave(floats.Data, frames, samples...)
	return &Data{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// Class returns module class with an output per channel that streams data.
// The class keeps stream position, so it must be used by a single module.
// Reset rewinds the stream. After the end, outputs are silent unless loop
// is set.
func Class(data *Data, loop bool) *engine.Class {
	var pos int
	render := func(m *engine.Module, n int) {
		frames := data.Frames()
		for i := 0; i < n; {
			if pos >= frames {
				if !loop || frames == 0 {
					for c := range m.Outputs {
						clear(m.Outputs[c].Buffer[i:n])
					}
					return
				}
				pos = 0
			}
			size := n - i
			if left := frames - pos; left < size {
				size = left
			}
			for c := range m.Outputs {
				copy(m.Outputs[c].Buffer[i:i+size], data.Samples[c][pos:pos+size])
			}
			pos += size
			i += size
		}
	}
	return &engine.Class{
		Outputs:       data.Channels,
		Render:        render,
		RenderPartial: render,
		Reset: func(*engine.Module) {
			pos = 0
		},
	}
}
