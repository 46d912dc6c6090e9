package wav

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/sonic"
	"github.com/dudk/sonic/log"
)

const (
	// DefaultBlocks is number of blocks that can wait for encoder.
	DefaultBlocks = 64
	// pcmFormat is wave format tag of integer PCM.
	pcmFormat = 1
)

// errOverflow is returned when encoder doesn't keep up with render.
var errOverflow = errors.New("capture overflow")

// CaptureWriter encodes interleaved blocks into wave file. WriteBlock never
// blocks: blocks are copied into preallocated buffers and encoded on a
// separate goroutine.
type CaptureWriter struct {
	log      log.Logger
	path     string
	file     *os.File
	encoder  *wav.Encoder
	bitDepth BitDepth
	channels int
	blocks   int

	free    chan []float32
	pending chan []float32
	done    chan struct{}
	err     atomic.Pointer[sonic.Error]
	frames  atomic.Int64
	once    sync.Once
}

// CaptureOption provides a way to set functional parameters to capture.
type CaptureOption func(w *CaptureWriter)

// WithLogger sets logger to capture.
func WithLogger(l log.Logger) CaptureOption {
	return func(w *CaptureWriter) {
		w.log = l
	}
}

// WithBlocks sets number of blocks that can wait for encoder. Each of them
// holds up to sonic.MaxBlockSize frames.
func WithBlocks(n int) CaptureOption {
	return func(w *CaptureWriter) {
		w.blocks = n
	}
}

// Capture creates wave file at path and starts encoder.
func Capture(path string, sampleRate, channels int, bitDepth BitDepth, options ...CaptureOption) (*CaptureWriter, error) {
	op := fmt.Sprintf("capture wav %s", path)
	if !supported(bitDepth) {
		return nil, sonic.NewError(sonic.ErrFormatUnsupported, op, fmt.Errorf("%d bit depth", bitDepth))
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, sonic.NewError(sonic.ErrFileOpen, op, err)
	}
	w := &CaptureWriter{
		log:      log.New("wav"),
		path:     path,
		file:     file,
		encoder:  wav.NewEncoder(file, sampleRate, int(bitDepth), channels, pcmFormat),
		bitDepth: bitDepth,
		channels: channels,
		blocks:   DefaultBlocks,
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(w)
	}
	w.free = make(chan []float32, w.blocks)
	w.pending = make(chan []float32, w.blocks)
	for i := 0; i < w.blocks; i++ {
		w.free <- make([]float32, 0, sonic.MaxBlockSize*channels)
	}
	go w.encode(sampleRate)
	return w, nil
}

// WriteBlock implements pcm.FileWriter. It must not be called after Close.
func (w *CaptureWriter) WriteBlock(interleaved []float32) error {
	if err := w.err.Load(); err != nil {
		return err
	}
	select {
	case buf := <-w.free:
		w.pending <- append(buf[:0], interleaved...)
		return nil
	default:
		return sonic.NewError(sonic.ErrFileWrite, "capture wav "+w.path, errOverflow)
	}
}

// Frames returns number of encoded frames.
func (w *CaptureWriter) Frames() int64 {
	return w.frames.Load()
}

// Close waits for pending blocks and finalizes the file.
func (w *CaptureWriter) Close() error {
	w.once.Do(func() {
		close(w.pending)
	})
	<-w.done
	if err := w.err.Load(); err != nil {
		return err
	}
	return nil
}

// encode runs until pending is closed. The first failure stops encoding,
// remaining blocks are only recycled.
func (w *CaptureWriter) encode(sampleRate int) {
	defer close(w.done)
	op := "capture wav " + w.path
	floats := &audio.FloatBuffer{
		Format: &audio.Format{
			NumChannels: w.channels,
			SampleRate:  sampleRate,
		},
		Data: make([]float64, 0, sonic.MaxBlockSize*w.channels),
	}
	scale := float64(audio.IntMaxSignedValue(int(w.bitDepth)))
	for block := range w.pending {
		if w.err.Load() == nil {
			floats.Data = floats.Data[:0]
			for _, v := range block {
				floats.Data = append(floats.Data, max(-1, min(1, float64(v)))*scale)
			}
			if err := w.encoder.Write(floats.AsIntBuffer()); err != nil {
				w.err.Store(sonic.NewError(sonic.ErrFileWrite, op, err))
			} else {
				w.frames.Add(int64(len(block) / w.channels))
			}
		}
		w.free <- block
	}
	if err := w.encoder.Close(); err != nil && w.err.Load() == nil {
		w.err.Store(sonic.NewError(sonic.ErrFileWrite, op, err))
	}
	if err := w.file.Close(); err != nil && w.err.Load() == nil {
		w.err.Store(sonic.NewError(sonic.ErrFileWrite, op, err))
	}
	w.log.Debug(fmt.Sprintf("wav: captured %d frames into %s", w.frames.Load(), w.path))
}
