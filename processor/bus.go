package processor

import (
	"math/bits"
	"strings"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/signal"
)

// SpeakerArrangement is a bitmask of speaker positions. Number of channels
// equals number of position bits set.
type SpeakerArrangement uint64

// Speaker positions.
const (
	FrontLeft SpeakerArrangement = 1 << iota
	FrontRight
	FrontCenter
	LowFrequency
	BackLeft
	BackRight
	SideLeft
	SideRight
)

// Aux marks auxiliary buses, e.g. side chains. It doesn't count as channel.
const Aux SpeakerArrangement = 1 << 63

// Common arrangements.
const (
	Mono   = FrontCenter
	Stereo = FrontLeft | FrontRight
)

const channelMask = ^Aux

// Channels returns number of channels in arrangement.
func (a SpeakerArrangement) Channels() int {
	return bits.OnesCount64(uint64(a & channelMask))
}

// IsAux reports if arrangement is auxiliary.
func (a SpeakerArrangement) IsAux() bool {
	return a&Aux != 0
}

// Positions returns arrangement without the aux flag.
func (a SpeakerArrangement) Positions() SpeakerArrangement {
	return a & channelMask
}

var positionNames = []string{"FL", "FR", "FC", "LFE", "BL", "BR", "SL", "SR"}

func (a SpeakerArrangement) String() string {
	switch a.Positions() {
	case 0:
		if a.IsAux() {
			return "aux"
		}
		return "none"
	case Mono:
		if a.IsAux() {
			return "aux-mono"
		}
		return "mono"
	case Stereo:
		if a.IsAux() {
			return "aux-stereo"
		}
		return "stereo"
	}
	var names []string
	for i, name := range positionNames {
		if a&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if a.IsAux() {
		names = append([]string{"aux"}, names...)
	}
	return strings.Join(names, "+")
}

// IBusID identifies input bus of a processor. Valid ids start with 1.
type IBusID int

// OBusID identifies output bus of a processor. Valid ids start with 1.
type OBusID int

// IBus is an input bus. Its arrangement follows connected sources if
// processor supports reconfiguration, otherwise it's fixed.
type IBus struct {
	Ident       string
	declared    SpeakerArrangement
	arrangement SpeakerArrangement
	sources     []source
	channels    []*signal.FloatBuffer
	scratch     []float64
}

// OBus is an output bus. It's arrangement is fixed at initialization.
type OBus struct {
	Ident       string
	arrangement SpeakerArrangement
	channels    []*signal.FloatBuffer
	consumers   int
}

type source struct {
	proc *Processor
	obus OBusID
}

func newChannels(n int) []*signal.FloatBuffer {
	channels := make([]*signal.FloatBuffer, n)
	for i := range channels {
		channels[i] = signal.NewFloatBuffer(sonic.MaxBlockSize)
	}
	return channels
}

// Arrangement returns effective arrangement of bus.
func (b *IBus) Arrangement() SpeakerArrangement {
	return b.arrangement
}

// Channels returns effective number of channels.
func (b *IBus) Channels() int {
	return len(b.channels)
}

// Connections returns number of connected output buses.
func (b *IBus) Connections() int {
	return len(b.sources)
}

// Arrangement returns arrangement of bus.
func (b *OBus) Arrangement() SpeakerArrangement {
	return b.arrangement
}

// Channels returns number of channels.
func (b *OBus) Channels() int {
	return len(b.channels)
}

// Connected reports if any input bus reads this bus.
func (b *OBus) Connected() bool {
	return b.consumers > 0
}

// bind prepares channel buffers of input bus for n frames. Single source
// with the same channel count is redirected without copy, everything else
// is mixed into owned storage.
func (b *IBus) bind(n int) {
	if len(b.sources) == 0 {
		for _, ch := range b.channels {
			ch.Redirect(signal.Zero(n))
		}
		return
	}
	if len(b.sources) == 1 {
		src := b.sources[0]
		if src.proc.obus(src.obus).Channels() == len(b.channels) {
			for c, ch := range b.channels {
				ch.Redirect(src.proc.Output(src.obus, c)[:n])
			}
			return
		}
	}
	for c, ch := range b.channels {
		ch.Redirect(nil)
		dst := ch.Own()[:n]
		clear(dst)
		for _, src := range b.sources {
			b.mixChannel(dst, src, c, n)
		}
	}
}

// mixChannel adds channel c of the source adapted to the bus channels into
// dst.
func (b *IBus) mixChannel(dst []float64, src source, c, n int) {
	total := len(b.channels)
	ob := src.proc.obus(src.obus)
	srcChannels := ob.Channels()
	switch {
	case srcChannels == 0:
	case srcChannels == total:
		signal.Mix(dst, src.proc.Output(src.obus, c)[:n])
	case srcChannels == 1:
		signal.Mix(dst, src.proc.Output(src.obus, 0)[:n])
	case total == 1:
		// downmix to mono keeps the level of correlated channels.
		tmp := b.scratch[:n]
		clear(tmp)
		for i := 0; i < srcChannels; i++ {
			signal.Mix(tmp, src.proc.Output(src.obus, i)[:n])
		}
		signal.Gain(tmp, 1/float64(srcChannels))
		signal.Mix(dst, tmp)
	case c < srcChannels:
		signal.Mix(dst, src.proc.Output(src.obus, c)[:n])
	}
}
