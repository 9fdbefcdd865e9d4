package mpvframe

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable is returned when the media engine library cannot be loaded.
	ErrEngineUnavailable = errors.New("media engine library not available")

	// ErrCreateContext is returned when the engine refuses to allocate a playback context.
	ErrCreateContext = errors.New("could not create playback context")

	// ErrInvalidDimensions is returned for non-positive framebuffer sizes.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrFramebufferBusy is returned when the other role owns the framebuffer.
	ErrFramebufferBusy = errors.New("framebuffer busy")

	// ErrFramebufferReleased is returned when a released framebuffer is used.
	ErrFramebufferReleased = errors.New("framebuffer released")

	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrUnsupportedTarget is returned when a render target does not match the bridge API.
	ErrUnsupportedTarget = errors.New("render target not supported by bridge API")
)

// Engine status codes. The values match libmpv's mpv_error enum so that
// every engine implementation reports the same codes.
const (
	ErrorSuccess             = 0
	ErrorEventQueueFull      = -1
	ErrorNoMem               = -2
	ErrorUninitialized       = -3
	ErrorInvalidParameter    = -4
	ErrorOptionNotFound      = -5
	ErrorOptionFormat        = -6
	ErrorOptionError         = -7
	ErrorPropertyNotFound    = -8
	ErrorPropertyFormat      = -9
	ErrorPropertyUnavailable = -10
	ErrorPropertyError       = -11
	ErrorCommand             = -12
	ErrorLoadingFailed       = -13
	ErrorAOInitFailed        = -14
	ErrorVOInitFailed        = -15
	ErrorNothingToPlay       = -16
	ErrorUnknownFormat       = -17
	ErrorUnsupported         = -18
	ErrorNotImplemented      = -19
	ErrorGeneric             = -20
)

var errorStrings = map[int]string{
	ErrorSuccess:             "success",
	ErrorEventQueueFull:      "event queue full",
	ErrorNoMem:               "memory allocation failed",
	ErrorUninitialized:       "core not initialized",
	ErrorInvalidParameter:    "invalid parameter",
	ErrorOptionNotFound:      "option not found",
	ErrorOptionFormat:        "unsupported format for accessing option",
	ErrorOptionError:         "error setting option",
	ErrorPropertyNotFound:    "property not found",
	ErrorPropertyFormat:      "unsupported format for accessing property",
	ErrorPropertyUnavailable: "property unavailable",
	ErrorPropertyError:       "error accessing property",
	ErrorCommand:             "error running command",
	ErrorLoadingFailed:       "loading failed",
	ErrorAOInitFailed:        "audio output initialization failed",
	ErrorVOInitFailed:        "video output initialization failed",
	ErrorNothingToPlay:       "no audio or video data played",
	ErrorUnknownFormat:       "unrecognized file format",
	ErrorUnsupported:         "not supported",
	ErrorNotImplemented:      "operation not implemented",
	ErrorGeneric:             "something happened",
}

// ErrorString returns the human-readable text for an engine status code.
func ErrorString(code int) string {
	if s, ok := errorStrings[code]; ok {
		return s
	}
	return "unknown error"
}

// EngineError reports a non-success status code from the media engine.
type EngineError struct {
	Op      string // Engine operation, e.g. "initialize"
	Code    int    // Engine status code (negative)
	Message string // Engine-provided description
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// newEngineError builds an EngineError using the built-in message table.
func newEngineError(op string, code int) *EngineError {
	return &EngineError{Op: op, Code: code, Message: ErrorString(code)}
}

// IsEngineCode reports whether err carries the given engine status code.
func IsEngineCode(err error, code int) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == code
}
