/*
Package sonic is a block-synchronous audio render engine.

Concept

Audio is rendered in fixed-size blocks by a single render goroutine. Graph
structure is never touched by anyone else: control goroutines describe
mutations as jobs, group them into transactions and commit them. The render
goroutine drains committed transactions at block boundaries, so every render
pass sees a frozen graph.

Two graph models share the same render goroutine and tick counter:

    engine    - modules with typed streams (inputs, joint inputs, outputs);
    processor - processors with named multi-channel buses and parameters.

The pcm package bridges both into a single hardware output.

Configuration

Every engine instance is created with a Config. There are no package-level
engine globals, so multiple engines can coexist in one process:

    cfg, err := sonic.NewConfig(sonic.SampleRate(48000), sonic.BlockSize(128))
*/
package sonic

import (
	"github.com/rs/xid"
)

const (
	// MaxBlockSize is the upper bound of frames rendered in a single block.
	MaxBlockSize = 1024

	// DefaultBlockSize is used when config doesn't define one.
	DefaultBlockSize = 128

	// DefaultSampleRate is used when config doesn't define one.
	DefaultSampleRate = 48000
)

// NewUID returns new unique id value.
func NewUID() string {
	return xid.New().String()
}
