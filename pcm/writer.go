package pcm

// FileWriter receives a copy of every block written to hardware.
// WriteBlock is called on render goroutine and must not block, Close is
// called on control side.
type FileWriter interface {
	WriteBlock(interleaved []float32) error
	Close() error
}

// capture mirrors output blocks to file writer starting at exact tick.
type capture struct {
	writer   FileWriter
	start    uint64
	channels int
}

// write passes part of the block at tick that isn't before start.
func (c *capture) write(tick uint64, interleaved []float32) error {
	frames := uint64(len(interleaved) / c.channels)
	if tick+frames <= c.start {
		return nil
	}
	if tick < c.start {
		interleaved = interleaved[(c.start-tick)*uint64(c.channels):]
	}
	return c.writer.WriteBlock(interleaved)
}
