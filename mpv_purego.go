//go:build darwin || linux

// libmpv client and render API bindings using purego.

package mpvframe

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mpvOnce    sync.Once
	mpvHandle  uintptr
	mpvInitErr error
	mpvLoaded  bool
)

// libmpv function pointers
var (
	mpvClientAPIVersion  func() uint64
	mpvErrorString       func(code int32) uintptr
	mpvCreate            func() uintptr
	mpvInitialize        func(ctx uintptr) int32
	mpvTerminateDestroy  func(ctx uintptr)
	mpvSetOptionString   func(ctx uintptr, name, data string) int32
	mpvObserveProperty   func(ctx uintptr, reply uint64, name string, format int32) int32
	mpvCommand           func(ctx uintptr, args uintptr) int32
	mpvCommandAsync      func(ctx uintptr, reply uint64, args uintptr) int32
	mpvWaitEvent         func(ctx uintptr, timeout float64) uintptr
	mpvSetWakeupCallback func(ctx uintptr, cb uintptr, d uintptr)
	mpvRenderCreate      func(res uintptr, ctx uintptr, params uintptr) int32
	mpvRenderSetUpdateCb func(rctx uintptr, cb uintptr, d uintptr)
	mpvRenderUpdate      func(rctx uintptr) uint64
	mpvRenderRender      func(rctx uintptr, params uintptr) int32
	mpvRenderReportSwap  func(rctx uintptr)
	mpvRenderContextFree func(rctx uintptr)
)

// mpv_render_param_type values
const (
	mpvRenderParamInvalid            = 0
	mpvRenderParamAPIType            = 1
	mpvRenderParamOpenGLInitParams   = 2
	mpvRenderParamOpenGLFBO          = 3
	mpvRenderParamFlipY              = 4
	mpvRenderParamAdvancedControl    = 10
	mpvRenderParamBlockForTargetTime = 12
	mpvRenderParamSWSize             = 17
	mpvRenderParamSWFormat           = 18
	mpvRenderParamSWStride           = 19
	mpvRenderParamSWPointer          = 20
)

// mpv_render_param
type mpvRenderParam struct {
	Type int32
	_    int32
	Data unsafe.Pointer
}

// mpv_opengl_init_params
type mpvOpenGLInitParams struct {
	GetProcAddress    uintptr
	GetProcAddressCtx uintptr
}

// mpv_opengl_fbo
type mpvOpenGLFBO struct {
	FBO            int32
	W              int32
	H              int32
	InternalFormat int32
}

// mpv_event
type mpvEvent struct {
	EventID       int32
	Error         int32
	ReplyUserdata uint64
	Data          uintptr
}

// mpv_event_end_file, leading fields
type mpvEventEndFile struct {
	Reason int32
	Error  int32
}

// mpv_end_file_reason
const mpvEndFileReasonError = 4

// mpv_event_property
type mpvEventProperty struct {
	Name   uintptr
	Format int32
	_      int32
	Data   uintptr
}

// loadMPV loads the libmpv shared library.
func loadMPV() error {
	mpvOnce.Do(func() {
		mpvInitErr = loadMPVLib()
		if mpvInitErr == nil {
			mpvLoaded = true
		}
	})
	return mpvInitErr
}

func loadMPVLib() error {
	paths := getMPVLibPaths()

	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			mpvHandle = handle
			if err := loadMPVSymbols(); err != nil {
				purego.Dlclose(handle)
				lastErr = err
				continue
			}
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("%w: failed to load libmpv: %w", ErrEngineUnavailable, lastErr)
	}
	return fmt.Errorf("%w: libmpv not found in any standard location", ErrEngineUnavailable)
}

func getMPVLibPaths() []string {
	var paths []string

	libNames := []string{"libmpv.so.2", "libmpv.so.1", "libmpv.so"}
	if runtime.GOOS == "darwin" {
		libNames = []string{"libmpv.2.dylib", "libmpv.dylib"}
	}

	// Environment variable override: a file or a directory
	if envPath := os.Getenv("MPV_LIB_PATH"); envPath != "" {
		if fi, err := os.Stat(envPath); err == nil && fi.IsDir() {
			for _, name := range libNames {
				paths = append(paths, filepath.Join(envPath, name))
			}
		} else {
			paths = append(paths, envPath)
		}
	}

	// Next to the executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		for _, name := range libNames {
			paths = append(paths,
				filepath.Join(exeDir, name),
				filepath.Join(exeDir, "..", "lib", name),
			)
		}
	}

	// Module checkout (tests, go run)
	for _, root := range []string{findSourceRoot(), findModuleRoot()} {
		if root == "" {
			continue
		}
		for _, name := range libNames {
			paths = append(paths, filepath.Join(root, "build", name))
		}
	}

	// System paths, letting the dynamic loader search first
	switch runtime.GOOS {
	case "darwin":
		for _, name := range libNames {
			paths = append(paths,
				name,
				"/opt/homebrew/lib/"+name,
				"/usr/local/lib/"+name,
			)
		}
	case "linux":
		for _, name := range libNames {
			paths = append(paths,
				name,
				"/usr/lib/x86_64-linux-gnu/"+name,
				"/usr/lib/aarch64-linux-gnu/"+name,
				"/usr/local/lib/"+name,
				"/usr/lib/"+name,
			)
		}
	}

	return paths
}

func loadMPVSymbols() (err error) {
	// RegisterLibFunc panics on a missing symbol
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libmpv symbol lookup: %v", r)
		}
	}()

	purego.RegisterLibFunc(&mpvClientAPIVersion, mpvHandle, "mpv_client_api_version")
	purego.RegisterLibFunc(&mpvErrorString, mpvHandle, "mpv_error_string")
	purego.RegisterLibFunc(&mpvCreate, mpvHandle, "mpv_create")
	purego.RegisterLibFunc(&mpvInitialize, mpvHandle, "mpv_initialize")
	purego.RegisterLibFunc(&mpvTerminateDestroy, mpvHandle, "mpv_terminate_destroy")
	purego.RegisterLibFunc(&mpvSetOptionString, mpvHandle, "mpv_set_option_string")
	purego.RegisterLibFunc(&mpvObserveProperty, mpvHandle, "mpv_observe_property")
	purego.RegisterLibFunc(&mpvCommand, mpvHandle, "mpv_command")
	purego.RegisterLibFunc(&mpvCommandAsync, mpvHandle, "mpv_command_async")
	purego.RegisterLibFunc(&mpvWaitEvent, mpvHandle, "mpv_wait_event")
	purego.RegisterLibFunc(&mpvSetWakeupCallback, mpvHandle, "mpv_set_wakeup_callback")
	purego.RegisterLibFunc(&mpvRenderCreate, mpvHandle, "mpv_render_context_create")
	purego.RegisterLibFunc(&mpvRenderSetUpdateCb, mpvHandle, "mpv_render_context_set_update_callback")
	purego.RegisterLibFunc(&mpvRenderUpdate, mpvHandle, "mpv_render_context_update")
	purego.RegisterLibFunc(&mpvRenderRender, mpvHandle, "mpv_render_context_render")
	purego.RegisterLibFunc(&mpvRenderReportSwap, mpvHandle, "mpv_render_context_report_swap")
	purego.RegisterLibFunc(&mpvRenderContextFree, mpvHandle, "mpv_render_context_free")
	return nil
}

// IsMPVAvailable checks if libmpv can be loaded.
func IsMPVAvailable() bool {
	if err := loadMPV(); err != nil {
		return false
	}
	return mpvLoaded
}

// MPVVersion returns libmpv's client API version as major.minor.
func MPVVersion() (string, error) {
	if err := loadMPV(); err != nil {
		return "", err
	}
	v := mpvClientAPIVersion()
	return fmt.Sprintf("%d.%d", v>>16, v&0xffff), nil
}

// mpvError converts a libmpv status code, using libmpv's own message.
func mpvError(op string, code int32) error {
	if code >= 0 {
		return nil
	}
	var msg string
	if mpvErrorString != nil {
		msg = goStringFromPtr(mpvErrorString(code))
	}
	if msg == "" {
		msg = ErrorString(int(code))
	}
	return &EngineError{Op: op, Code: int(code), Message: msg}
}

// Global callback state for purego. C receives an id, never a Go pointer.
var (
	mpvCallbacksMu      sync.RWMutex
	mpvCallbacks        = make(map[uintptr]Notifier)
	mpvProcResolvers    = make(map[uintptr]ProcAddressFunc)
	mpvCallbackCounter  uintptr
	mpvNotifyCallback   uintptr
	mpvProcAddrCallback uintptr
	mpvCallbackOnce     sync.Once
)

// initMPVCallbacks creates the purego trampolines once per process.
func initMPVCallbacks() {
	mpvCallbackOnce.Do(func() {
		mpvNotifyCallback = purego.NewCallback(mpvNotifyHandler)
		mpvProcAddrCallback = purego.NewCallback(mpvProcAddrHandler)
	})
}

// mpvNotifyHandler is called by libmpv threads for wakeup and update
// callbacks.
func mpvNotifyHandler(userData uintptr) {
	mpvCallbacksMu.RLock()
	fn := mpvCallbacks[userData]
	mpvCallbacksMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// mpvProcAddrHandler resolves OpenGL entry points during render context
// creation.
func mpvProcAddrHandler(userData uintptr, name uintptr) uintptr {
	mpvCallbacksMu.RLock()
	fn := mpvProcResolvers[userData]
	mpvCallbacksMu.RUnlock()
	if fn == nil {
		return 0
	}
	return fn(goStringFromPtr(name))
}

func registerNotifier(fn Notifier) uintptr {
	mpvCallbacksMu.Lock()
	defer mpvCallbacksMu.Unlock()
	mpvCallbackCounter++
	mpvCallbacks[mpvCallbackCounter] = fn
	return mpvCallbackCounter
}

func registerProcResolver(fn ProcAddressFunc) uintptr {
	mpvCallbacksMu.Lock()
	defer mpvCallbacksMu.Unlock()
	mpvCallbackCounter++
	mpvProcResolvers[mpvCallbackCounter] = fn
	return mpvCallbackCounter
}

func unregisterCallback(id uintptr) {
	if id == 0 {
		return
	}
	mpvCallbacksMu.Lock()
	delete(mpvCallbacks, id)
	delete(mpvProcResolvers, id)
	mpvCallbacksMu.Unlock()
}

// MPV is an Engine backed by libmpv.
type MPV struct {
	handle   uintptr
	wakeupID uintptr
	mu       sync.Mutex
}

// NewMPV creates a libmpv playback context.
func NewMPV() (*MPV, error) {
	if err := loadMPV(); err != nil {
		return nil, err
	}
	initMPVCallbacks()

	handle := mpvCreate()
	if handle == 0 {
		return nil, ErrCreateContext
	}
	return &MPV{handle: handle}, nil
}

// MPVFactory returns an EngineFactory producing libmpv engines.
func MPVFactory() EngineFactory {
	return func() (Engine, error) {
		m, err := NewMPV()
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// SetOption implements Engine.
func (m *MPV) SetOption(name, value string) error {
	return mpvError("set option "+name, mpvSetOptionString(m.handle, name, value))
}

// Initialize implements Engine.
func (m *MPV) Initialize() error {
	return mpvError("initialize", mpvInitialize(m.handle))
}

// ObserveProperty implements Engine.
func (m *MPV) ObserveProperty(userdata uint64, name string, format Format) error {
	return mpvError("observe "+name, mpvObserveProperty(m.handle, userdata, name, int32(format)))
}

// Command implements Engine.
func (m *MPV) Command(args ...string) error {
	argv, strs := cStringArray(args)
	rc := mpvCommand(m.handle, uintptr(unsafe.Pointer(&argv[0])))
	runtime.KeepAlive(argv)
	runtime.KeepAlive(strs)
	return mpvError(commandName(args), rc)
}

// CommandAsync implements Engine.
func (m *MPV) CommandAsync(userdata uint64, args ...string) error {
	argv, strs := cStringArray(args)
	rc := mpvCommandAsync(m.handle, userdata, uintptr(unsafe.Pointer(&argv[0])))
	runtime.KeepAlive(argv)
	runtime.KeepAlive(strs)
	return mpvError(commandName(args), rc)
}

func commandName(args []string) string {
	if len(args) == 0 {
		return "command"
	}
	return args[0]
}

// PollEvent implements Engine.
func (m *MPV) PollEvent(timeout time.Duration) Event {
	secs := timeout.Seconds()
	if timeout < 0 {
		secs = -1
	}
	ptr := mpvWaitEvent(m.handle, secs)
	if ptr == 0 {
		return Event{ID: EventNone}
	}
	return decodeEvent((*mpvEvent)(unsafe.Pointer(ptr)))
}

func decodeEvent(raw *mpvEvent) Event {
	ev := Event{
		ID:            EventID(raw.EventID),
		ReplyUserdata: raw.ReplyUserdata,
	}
	if raw.Error < 0 {
		ev.Err = mpvError(ev.ID.String(), raw.Error)
	}
	if raw.Data == 0 {
		return ev
	}
	switch ev.ID {
	case EventPropertyChange:
		ev.Property = readEventProperty((*mpvEventProperty)(unsafe.Pointer(raw.Data)))
	case EventEndFile:
		// End-file failures are carried in the payload, not in raw.Error.
		if err := endFileError((*mpvEventEndFile)(unsafe.Pointer(raw.Data))); err != nil {
			ev.Err = err
		}
	}
	return ev
}

func endFileError(ef *mpvEventEndFile) error {
	if ef.Reason != mpvEndFileReasonError {
		return nil
	}
	if ef.Error < 0 {
		return mpvError(EventEndFile.String(), ef.Error)
	}
	return newEngineError(EventEndFile.String(), ErrorLoadingFailed)
}

func readEventProperty(p *mpvEventProperty) *PropertyChange {
	prop := &PropertyChange{
		Name:   goStringFromPtr(p.Name),
		Format: Format(p.Format),
	}
	if p.Data == 0 {
		prop.Format = FormatNone
		return prop
	}
	switch prop.Format {
	case FormatDouble:
		v := *(*float64)(unsafe.Pointer(p.Data))
		if !math.IsNaN(v) {
			prop.Value = v
		}
	case FormatInt64:
		prop.Value = *(*int64)(unsafe.Pointer(p.Data))
	case FormatFlag:
		prop.Value = *(*int32)(unsafe.Pointer(p.Data)) != 0
	case FormatString:
		prop.Value = goStringFromPtr(*(*uintptr)(unsafe.Pointer(p.Data)))
	}
	return prop
}

// SetWakeupNotifier implements Engine.
func (m *MPV) SetWakeupNotifier(fn Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fn == nil {
		mpvSetWakeupCallback(m.handle, 0, 0)
		unregisterCallback(m.wakeupID)
		m.wakeupID = 0
		return
	}
	old := m.wakeupID
	m.wakeupID = registerNotifier(fn)
	mpvSetWakeupCallback(m.handle, mpvNotifyCallback, m.wakeupID)
	unregisterCallback(old)
}

// CreateRenderBridge implements Engine.
func (m *MPV) CreateRenderBridge(cfg BridgeConfig) (RenderBridge, error) {
	api := cfg.API
	if api == "" {
		api = APISoftware
	}
	if api != APISoftware && api != APIOpenGL {
		return nil, newEngineError("create render context "+string(api), ErrorNotImplemented)
	}
	if api == APIOpenGL && cfg.ProcAddress == nil {
		return nil, errors.New("create render context: opengl requires a proc address resolver")
	}

	apiName := cString(string(api))
	advanced := boolInt(cfg.AdvancedControl)
	block := boolInt(cfg.BlockForTargetTime)

	params := []mpvRenderParam{
		{Type: mpvRenderParamAPIType, Data: unsafe.Pointer(&apiName[0])},
		{Type: mpvRenderParamAdvancedControl, Data: unsafe.Pointer(&advanced)},
		{Type: mpvRenderParamBlockForTargetTime, Data: unsafe.Pointer(&block)},
	}

	var (
		resolverID uintptr
		glInit     mpvOpenGLInitParams
	)
	if api == APIOpenGL {
		resolverID = registerProcResolver(cfg.ProcAddress)
		glInit = mpvOpenGLInitParams{
			GetProcAddress:    mpvProcAddrCallback,
			GetProcAddressCtx: resolverID,
		}
		params = append(params, mpvRenderParam{Type: mpvRenderParamOpenGLInitParams, Data: unsafe.Pointer(&glInit)})
	}
	params = append(params, mpvRenderParam{Type: mpvRenderParamInvalid})

	var rctx uintptr
	rc := mpvRenderCreate(uintptr(unsafe.Pointer(&rctx)), m.handle, uintptr(unsafe.Pointer(&params[0])))
	runtime.KeepAlive(apiName)
	runtime.KeepAlive(&advanced)
	runtime.KeepAlive(&block)
	runtime.KeepAlive(&glInit)
	runtime.KeepAlive(params)
	if err := mpvError("create render context", rc); err != nil {
		unregisterCallback(resolverID)
		return nil, err
	}
	return &mpvRenderBridge{ctx: rctx, api: api, resolverID: resolverID}, nil
}

// Destroy implements Engine.
func (m *MPV) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == 0 {
		return
	}
	mpvSetWakeupCallback(m.handle, 0, 0)
	unregisterCallback(m.wakeupID)
	m.wakeupID = 0
	mpvTerminateDestroy(m.handle)
	m.handle = 0
}

// mpvRenderBridge wraps mpv_render_context.
type mpvRenderBridge struct {
	ctx        uintptr
	api        API
	resolverID uintptr
	updateID   uintptr
}

// SetUpdateNotifier implements RenderBridge.
func (b *mpvRenderBridge) SetUpdateNotifier(fn Notifier) {
	old := b.updateID
	if fn == nil {
		mpvRenderSetUpdateCb(b.ctx, 0, 0)
		b.updateID = 0
	} else {
		b.updateID = registerNotifier(fn)
		mpvRenderSetUpdateCb(b.ctx, mpvNotifyCallback, b.updateID)
	}
	unregisterCallback(old)
}

// Update implements RenderBridge.
func (b *mpvRenderBridge) Update() UpdateFlags {
	return UpdateFlags(mpvRenderUpdate(b.ctx))
}

// Render implements RenderBridge.
func (b *mpvRenderBridge) Render(target *Framebuffer, params RenderParams) error {
	if b.api == APIOpenGL {
		return b.renderGL(target, params)
	}
	return b.renderSW(target, params)
}

func (b *mpvRenderBridge) renderSW(target *Framebuffer, params RenderParams) error {
	pix := target.Pix()
	if len(pix) == 0 {
		return fmt.Errorf("render: %w", ErrUnsupportedTarget)
	}
	size := [2]int32{int32(target.Width()), int32(target.Height())}
	format := cString(target.Format().swFormatName())
	stride := uintptr(target.Stride())

	rp := []mpvRenderParam{
		{Type: mpvRenderParamSWSize, Data: unsafe.Pointer(&size[0])},
		{Type: mpvRenderParamSWFormat, Data: unsafe.Pointer(&format[0])},
		{Type: mpvRenderParamSWStride, Data: unsafe.Pointer(&stride)},
		{Type: mpvRenderParamSWPointer, Data: unsafe.Pointer(&pix[0])},
		{Type: mpvRenderParamInvalid},
	}
	rc := mpvRenderRender(b.ctx, uintptr(unsafe.Pointer(&rp[0])))
	runtime.KeepAlive(&size)
	runtime.KeepAlive(format)
	runtime.KeepAlive(&stride)
	runtime.KeepAlive(pix)
	runtime.KeepAlive(rp)
	if err := mpvError("render", rc); err != nil {
		return err
	}
	if target.Format().HasAlpha() {
		fillAlpha(pix, target.Stride(), target.Width(), target.Height())
	}
	// The software renderer has no flip parameter.
	if params.FlipY {
		FlipRows(pix, target.Stride(), target.Height())
	}
	return nil
}

func (b *mpvRenderBridge) renderGL(target *Framebuffer, params RenderParams) error {
	if target.Pix() != nil {
		return fmt.Errorf("render: %w", ErrUnsupportedTarget)
	}
	fbo := mpvOpenGLFBO{
		FBO: int32(target.FBO()),
		W:   int32(target.Width()),
		H:   int32(target.Height()),
	}
	flip := boolInt(params.FlipY)
	rp := []mpvRenderParam{
		{Type: mpvRenderParamOpenGLFBO, Data: unsafe.Pointer(&fbo)},
		{Type: mpvRenderParamFlipY, Data: unsafe.Pointer(&flip)},
		{Type: mpvRenderParamInvalid},
	}
	rc := mpvRenderRender(b.ctx, uintptr(unsafe.Pointer(&rp[0])))
	runtime.KeepAlive(&fbo)
	runtime.KeepAlive(&flip)
	runtime.KeepAlive(rp)
	return mpvError("render", rc)
}

// ReportSwap implements RenderBridge.
func (b *mpvRenderBridge) ReportSwap() {
	mpvRenderReportSwap(b.ctx)
}

// NativeBottomUp implements RenderBridge. OpenGL framebuffers have their
// origin at the bottom-left; the software renderer writes top-down.
func (b *mpvRenderBridge) NativeBottomUp() bool {
	return b.api == APIOpenGL
}

// Free implements RenderBridge.
func (b *mpvRenderBridge) Free() {
	if b.ctx == 0 {
		return
	}
	mpvRenderSetUpdateCb(b.ctx, 0, 0)
	unregisterCallback(b.updateID)
	b.updateID = 0
	mpvRenderContextFree(b.ctx)
	b.ctx = 0
	unregisterCallback(b.resolverID)
	b.resolverID = 0
}

func boolInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
