// Package mpvframe composites video frames decoded by a media-playback
// engine (libmpv) into a host graphics toolkit's scene through a shared
// framebuffer.
//
// Key pieces include:
//   - Engine and RenderBridge, the playback context and its render context
//   - Session, which walks the engine through its lifecycle states and
//     releases every handle in reverse order on close or startup failure
//   - Handoff, the per-iteration frame handoff (blocking or advanced mode)
//   - Compositor and Host, which draw the framebuffer with gogpu/gg
//   - Player, the host frame loop tying them together
//
// # Architecture
//
//	engine threads:  update notifier -> Signal (render ready)
//	                 wakeup notifier -> Signal (events pending)
//	host goroutine:  drain events -> Clock
//	                 Handoff.Step -> RenderBridge.Render -> Framebuffer
//	                 Compositor.Compose(Framebuffer, Clock) -> Host
//	                 Handoff.ReportSwap
//
// Notifiers only set signals; all engine calls, rendering and drawing run on
// the host goroutine.
//
// # Engines
//
// MPV binds libmpv with purego (CGO_ENABLED=0). Set MPV_LIB_PATH to the
// library file or its directory to override discovery. PatternEngine is a
// pure-Go engine playing synthetic test patterns (pattern://colorbars,
// pattern://movingbox, ...) used by the tests and when libmpv is missing.
//
// # Flip orientation
//
// A render bridge may produce bottom-up rows (OpenGL). PlanFlip picks exactly
// one stage to mirror the picture: the bridge (RenderParams.FlipY) or the
// compositor (CompositorLayer.FlipY).
package mpvframe
