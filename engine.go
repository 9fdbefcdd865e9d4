package mpvframe

import (
	"fmt"
	"time"
)

// Format selects how a property value is delivered.
type Format int32

const (
	FormatNone   Format = 0
	FormatString Format = 1
	FormatFlag   Format = 3
	FormatInt64  Format = 4
	FormatDouble Format = 5
)

// EventID identifies an engine event. Values match libmpv's mpv_event_id.
type EventID int32

const (
	EventNone             EventID = 0
	EventShutdown         EventID = 1
	EventLogMessage       EventID = 2
	EventGetPropertyReply EventID = 3
	EventSetPropertyReply EventID = 4
	EventCommandReply     EventID = 5
	EventStartFile        EventID = 6
	EventEndFile          EventID = 7
	EventFileLoaded       EventID = 8
	EventVideoReconfig    EventID = 17
	EventAudioReconfig    EventID = 18
	EventSeek             EventID = 20
	EventPlaybackRestart  EventID = 21
	EventPropertyChange   EventID = 22
	EventQueueOverflow    EventID = 24
)

func (e EventID) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventShutdown:
		return "shutdown"
	case EventLogMessage:
		return "log-message"
	case EventGetPropertyReply:
		return "get-property-reply"
	case EventSetPropertyReply:
		return "set-property-reply"
	case EventCommandReply:
		return "command-reply"
	case EventStartFile:
		return "start-file"
	case EventEndFile:
		return "end-file"
	case EventFileLoaded:
		return "file-loaded"
	case EventVideoReconfig:
		return "video-reconfig"
	case EventAudioReconfig:
		return "audio-reconfig"
	case EventSeek:
		return "seek"
	case EventPlaybackRestart:
		return "playback-restart"
	case EventPropertyChange:
		return "property-change"
	case EventQueueOverflow:
		return "event-queue-overflow"
	default:
		return fmt.Sprintf("event(%d)", int32(e))
	}
}

// PropertyChange carries a new value of an observed property. Value is nil
// when the property became unavailable, otherwise its Go type follows Format
// (string, bool, int64 or float64).
type PropertyChange struct {
	Name   string
	Format Format
	Value  any
}

// Float returns the value as float64 when the property is a double.
func (p *PropertyChange) Float() (float64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p.Value.(float64)
	return v, ok
}

// Event is one entry drained from the engine's event queue.
type Event struct {
	ID            EventID
	ReplyUserdata uint64
	Err           error           // set for failed replies and end-file errors
	Property      *PropertyChange // set for EventPropertyChange
}

// UpdateFlags is the bit set returned by RenderBridge.Update.
type UpdateFlags uint64

// UpdateFrame signals that a new video frame is due.
const UpdateFrame UpdateFlags = 1 << 0

// Has reports whether all bits in flag are set.
func (f UpdateFlags) Has(flag UpdateFlags) bool { return f&flag == flag }

// API selects the graphics binding of a render bridge.
type API string

const (
	APISoftware API = "sw"     // render into CPU memory
	APIOpenGL   API = "opengl" // render into an OpenGL framebuffer object
)

// ProcAddressFunc resolves a GPU API entry point by name.
type ProcAddressFunc func(name string) uintptr

// BridgeConfig configures render bridge creation.
type BridgeConfig struct {
	API API

	// ProcAddress is required for APIOpenGL.
	ProcAddress ProcAddressFunc

	// AdvancedControl hands frame timing to the host: the bridge only renders
	// when asked after Update reports UpdateFrame.
	AdvancedControl bool

	// BlockForTargetTime makes Render wait for the frame's display time.
	BlockForTargetTime bool
}

// RenderParams are per-call render options.
type RenderParams struct {
	FlipY bool // mirror the picture vertically relative to NativeBottomUp
}

// Notifier is called by an engine from its own threads. Implementations must
// return immediately and must not call back into the engine.
type Notifier func()

// Engine is a playback context: it owns demuxing, decoding, options and the
// event queue. All methods except the notifiers it invokes are called from the
// host goroutine.
type Engine interface {
	// SetOption sets a named option before Initialize.
	SetOption(name, value string) error

	// Initialize starts the engine.
	Initialize() error

	// ObserveProperty requests EventPropertyChange events for name.
	ObserveProperty(userdata uint64, name string, format Format) error

	// Command runs a command synchronously.
	Command(args ...string) error

	// CommandAsync queues a command; its result arrives as EventCommandReply.
	CommandAsync(userdata uint64, args ...string) error

	// PollEvent returns the next queued event, waiting up to timeout.
	// It returns an EventNone event when the queue is empty.
	PollEvent(timeout time.Duration) Event

	// SetWakeupNotifier registers fn to be called when events are queued.
	SetWakeupNotifier(fn Notifier)

	// CreateRenderBridge creates the render context bound to cfg.API.
	CreateRenderBridge(cfg BridgeConfig) (RenderBridge, error)

	// Destroy releases the playback context.
	Destroy()
}

// RenderBridge draws decoded frames into a Framebuffer. All methods must be
// called from the goroutine that owns the graphics context.
type RenderBridge interface {
	// SetUpdateNotifier registers fn to be called when Update should be polled.
	SetUpdateNotifier(fn Notifier)

	// Update polls pending work without blocking.
	Update() UpdateFlags

	// Render draws the current frame into target.
	Render(target *Framebuffer, params RenderParams) error

	// ReportSwap tells the engine the host presented a frame.
	ReportSwap()

	// NativeBottomUp reports whether rows come out bottom-up relative to the
	// host's top-left sampling convention when FlipY is false.
	NativeBottomUp() bool

	// Free releases the render context.
	Free()
}

// EngineFactory allocates a new playback context.
type EngineFactory func() (Engine, error)

// Engine names accepted by SelectEngine.
const (
	EngineMPV     = "mpv"
	EnginePattern = "pattern"
	EngineAuto    = "auto"
)

// SelectEngine resolves an engine name to a factory. EngineAuto prefers
// libmpv and falls back to the pattern engine when libmpv cannot be loaded.
// The returned name is the engine actually chosen.
func SelectEngine(name string) (EngineFactory, string, error) {
	switch name {
	case EngineMPV:
		if !IsMPVAvailable() {
			_, err := MPVVersion()
			return nil, "", err
		}
		return MPVFactory(), EngineMPV, nil
	case EnginePattern:
		return PatternEngineFactory(), EnginePattern, nil
	case EngineAuto, "":
		if IsMPVAvailable() {
			return MPVFactory(), EngineMPV, nil
		}
		return PatternEngineFactory(), EnginePattern, nil
	default:
		return nil, "", fmt.Errorf("unknown engine %q (want mpv, pattern or auto)", name)
	}
}
