// Package engine runs the application loop: it drains window events, lets
// the game update and fill a frame packet, and hands the packet to the
// renderer.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

// Window is the part of the platform layer the engine needs.
type Window interface {
	driver.Surface
	core.EventSource
	PumpMessages()
	// WaitMessages blocks until at least one event is available.
	WaitMessages()
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAssetManager shares an asset manager with the engine. The engine
// closes it on Shutdown.
func WithAssetManager(am *assets.AssetManager) Option {
	return func(e *Engine) {
		e.assetManager = am
	}
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	window       Window
	backend      driver.Backend
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	input        *core.InputState
	clock        *core.Clock
	metrics      *core.Metrics
	logger       *log.Logger

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	lastTime    float64
	packet      FramePacket
}

func New(g *Game, window Window, backend driver.Backend, opts ...Option) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine: game and application config are required")
	}
	if err := g.ApplicationConfig.Config.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		window:       window,
		backend:      backend,
		input:        core.NewInputState(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.ApplicationConfig.Config.Window.Width,
		height:       g.ApplicationConfig.Config.Window.Height,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = core.Logger()
	}
	if e.assetManager == nil {
		am, err := assets.NewAssetManager(e.logger)
		if err != nil {
			e.logger.Error("failed to create asset manager", "err", err)
			return nil, err
		}
		e.assetManager = am
	}
	return e, nil
}

// Initialize brings up the renderer and its pipelines, then calls the
// game's initialize hook.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine: initialize called twice")
	}
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig.Config

	e.renderer = renderer.New(e.backend, cfg.Renderer,
		renderer.WithLogger(e.logger),
		renderer.WithAssetManager(e.assetManager),
	)
	if err := e.renderer.Initialize(e.window, e.gameInstance.ApplicationConfig.Name, 0, cfg.Renderer.VSync); err != nil {
		return err
	}
	s := cfg.Renderer.Shaders
	if err := e.renderer.SetupPipelines(s.QuadVertex, s.QuadFragment, s.TextVertex, s.TextFragment, s.ParticleVertex, s.ParticleFragment, s.ParticleCompute); err != nil {
		return err
	}
	if err := e.renderer.CreateUniformBuffers(layout.UniformDataSize); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	e.width, e.height = e.renderer.GetFramebufferSize()
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until Stop is called, the window asks to quit or a
// fatal error occurs.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.window.PumpMessages()
		core.DispatchEvents(e.window, e, e.input)
		if !e.isRunning.Load() {
			break
		}
		if e.isSuspended {
			e.window.WaitMessages()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime
		frameStart := time.Now()

		if err := e.frame(currentTime, delta); err != nil {
			e.isRunning.Store(false)
			return err
		}

		e.metrics.Update(time.Since(frameStart).Seconds())
		// Input state is copied last so the game sees this frame's edges.
		e.input.Update()
	}
	return nil
}

func (e *Engine) frame(currentTime, delta float64) error {
	g := e.gameInstance
	if g.FnUpdate != nil {
		if err := g.FnUpdate(e, delta); err != nil {
			e.logger.Error("game update failed, shutting down", "err", err)
			return err
		}
	}

	e.packet.reset()
	w, h := float32(e.width), float32(e.height)
	e.packet.Uniform = layout.UniformData{
		ViewProjection: math.NewMat4ScreenSpace(w, h).Data,
		ScreenSize:     [2]float32{w, h},
		Time:           float32(currentTime),
	}
	if g.FnRender != nil {
		if err := g.FnRender(&e.packet, delta); err != nil {
			e.logger.Error("game render failed, shutting down", "err", err)
			return err
		}
	}

	p := &e.packet
	err := e.renderer.Render(float32(delta), p.Uniform, p.Quads, p.Texts, p.Particles)
	switch {
	case err == nil:
		return nil
	case core.IsFatal(err):
		e.logger.Error("renderer failed, shutting down", "err", err)
		return err
	case errors.Is(err, core.ErrCapacityExceeded):
		e.logger.Warn("frame rejected", "err", err)
		return nil
	}
	e.logger.Error("frame failed", "err", err)
	return err
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases the renderer and the asset manager. The window is owned
// by the caller.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.renderer != nil {
		if err := e.renderer.DeviceWait(); err != nil && !errors.Is(err, core.ErrNotInitialized) {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.assetManager.Close(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Input() *core.InputState {
	return e.input
}

// Metrics averages the CPU time of whole engine frames. The renderer keeps
// its own averages of the frame delta for RenderStatistics.
func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer as last reported by the window.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) VisitQuit(core.Quit) {
	e.logger.Info("quit requested, shutting down")
	e.Stop()
}

func (e *Engine) VisitWindowResized(ev core.WindowResized) {
	if ev.Width == e.width && ev.Height == e.height {
		return
	}
	e.width, e.height = ev.Width, ev.Height
	e.logger.Debug("window resize", "width", ev.Width, "height", ev.Height)

	if e.renderer != nil {
		e.renderer.OnResize(ev.Width, ev.Height)
	}
	// Handle minimization
	if ev.Width == 0 || ev.Height == 0 {
		e.logger.Info("window minimized, suspending application")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		e.logger.Info("window restored, resuming application")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(ev.Width, ev.Height); err != nil {
			e.logger.Error("game resize failed", "err", err)
		}
	}
}

// VisitKeyPressed runs before the input state sees the event, so a key
// that is already down is a repeat.
func (e *Engine) VisitKeyPressed(ev core.KeyPressed) {
	if e.input.IsKeyDown(ev.Key) {
		return
	}
	switch ev.Key {
	case core.KEY_ESCAPE:
		e.Stop()
	case core.KEY_C:
		if e.renderer != nil {
			e.renderer.ToggleComputeParticles()
		}
	}
}

func (e *Engine) VisitKeyReleased(core.KeyReleased) {}
func (e *Engine) VisitMouseButton(core.MouseButton) {}
func (e *Engine) VisitMouseMoved(core.MouseMoved)   {}
func (e *Engine) VisitScroll(core.Scroll)           {}
