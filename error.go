package sonic

import (
	"fmt"
)

// ErrorCode is a closed set of environmental failures. Programming errors are
// never represented by codes, they panic.
type ErrorCode int

// Environmental error codes.
const (
	ErrDeviceOpen ErrorCode = iota + 1
	ErrDeviceBusy
	ErrDeviceIO
	ErrDeviceNotCapture
	ErrFileOpen
	ErrFileWrite
	ErrCodec
	ErrFormatUnsupported
	ErrNoMemory
)

var codeNames = map[ErrorCode]string{
	ErrDeviceOpen:        "device open failed",
	ErrDeviceBusy:        "device busy",
	ErrDeviceIO:          "device input/output error",
	ErrDeviceNotCapture:  "device not opened for capture",
	ErrFileOpen:          "file open failed",
	ErrFileWrite:         "file write failed",
	ErrCodec:             "codec error",
	ErrFormatUnsupported: "format not supported",
	ErrNoMemory:          "out of memory",
}

func (c ErrorCode) Error() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error %d", int(c))
}

// Error is an environmental failure. The affected subsystem falls back to a
// degraded mode, the engine keeps running.
type Error struct {
	Code ErrorCode
	// Op describes what was attempted, e.g. "open pcm driver null".
	Op  string
	Err error
}

// UserMessage is a structured description of an error, ready to be shown
// to a user.
type UserMessage struct {
	Title     string
	Primary   string
	Secondary string
	Detail    string
}

// NewError wraps err with code.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Code)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true if target is the same error code.
func (e *Error) Is(target error) bool {
	if c, ok := target.(ErrorCode); ok {
		return e.Code == c
	}
	return false
}

// Message converts error to user message.
func (e *Error) Message() UserMessage {
	m := UserMessage{
		Secondary: e.Op,
	}
	if e.Err != nil {
		m.Detail = e.Err.Error()
	}
	switch e.Code {
	case ErrDeviceOpen, ErrDeviceBusy, ErrDeviceIO:
		m.Title = "Audio Device"
		m.Primary = "Failed to use the audio device: " + e.Code.Error() + ". Playback continues silently."
	case ErrDeviceNotCapture:
		m.Title = "Audio Input"
		m.Primary = "The audio device was not opened for recording. Input will be silent."
	case ErrFileOpen, ErrFileWrite:
		m.Title = "Recording"
		m.Primary = "Failed to write the recording file: " + e.Code.Error() + ". Recording is disabled."
	case ErrCodec, ErrFormatUnsupported:
		m.Title = "Audio Format"
		m.Primary = "Failed to process audio data: " + e.Code.Error() + "."
	case ErrNoMemory:
		m.Title = "Memory"
		m.Primary = "Not enough memory: " + e.Code.Error() + "."
	default:
		m.Title = "Error"
		m.Primary = e.Code.Error()
	}
	return m
}
