package engine

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
	"github.com/spaghettifunk/lumen/engine/renderer/shader/shadertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWindow struct {
	*headless.Window
	events *containers.RingQueue[core.Event]
	// onPump runs before each pump, keyed by pump count.
	onPump map[int]func(w *testWindow)
	pumps  int
}

func newTestWindow(width, height uint32) *testWindow {
	return &testWindow{
		Window: headless.NewWindow(width, height),
		events: containers.NewRingQueue[core.Event](64),
		onPump: map[int]func(*testWindow){},
	}
}

func (w *testWindow) PumpMessages() {
	w.pumps++
	if fn, ok := w.onPump[w.pumps]; ok {
		fn(w)
	}
}

func (w *testWindow) WaitMessages() { w.PumpMessages() }

func (w *testWindow) Dequeue() (core.Event, error) { return w.events.Dequeue() }
func (w *testWindow) IsEmpty() bool                { return w.events.IsEmpty() }

func (w *testWindow) push(e core.Event) { _ = w.events.Enqueue(e) }

func writeShaders(t *testing.T) config.Shaders {
	t.Helper()
	instanced := func(b *shadertest.Builder) *shadertest.Builder {
		return b.Input(0, 2).Input(1, 2).Input(2, 2).Input(3, 2).Input(4, 4)
	}
	dir := t.TempDir()
	write := func(name string, code []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, code, 0o644))
		return p
	}
	return config.Shaders{
		QuadVertex: write("quad.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 4).Input(6, 1).InputUint(7).Uniform(0, 0, layout.UniformDataSize).Build()),
		QuadFragment: write("quad.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").
			Textures(0, 1, 4).Build()),
		TextVertex: write("text.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 4).InputUint(6).Input(7, 1).Uniform(0, 0, layout.UniformDataSize).Build()),
		TextFragment: write("text.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").
			SampledImages(0, 1, 2).Sampler(0, 2).Build()),
		ParticleVertex: write("particle.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 1).Input(6, 1).Input(7, 1).Uniform(0, 0, layout.UniformDataSize).Build()),
		ParticleFragment: write("particle.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").Build()),
		ParticleCompute: write("particle_sim.comp.spv", shadertest.NewBuilder().EntryPoint(driver.StageCompute, "main").
			LocalSize(64, 1, 1).Uniform(0, 0, layout.ComputeUniformSize).Storage(0, 1, true).Storage(0, 2, false).Build()),
	}
}

type testRig struct {
	engine  *Engine
	window  *testWindow
	backend *headless.Backend
	frames  int
}

// newTestRig builds an engine on the headless backend whose game stops it
// after maxFrames updates.
func newTestRig(t *testing.T, maxFrames int) *testRig {
	t.Helper()
	cfg := config.Default()
	cfg.Renderer.MaxQuads = 64
	cfg.Renderer.MaxGlyphs = 64
	cfg.Renderer.MaxParticles = 128
	cfg.Renderer.MaxTextures = 4
	cfg.Renderer.MaxFonts = 2
	cfg.Renderer.FenceTimeout = config.Duration(time.Second)
	cfg.Renderer.Shaders = writeShaders(t)

	rig := &testRig{
		window:  newTestWindow(cfg.Window.Width, cfg.Window.Height),
		backend: headless.NewBackend(),
	}
	rig.backend.Kernels[filepath.Base(cfg.Renderer.Shaders.ParticleCompute)] = renderer.ParticleKernel

	game := &Game{
		ApplicationConfig: NewApplicationConfig(cfg),
		FnUpdate: func(e *Engine, dt float64) error {
			rig.frames++
			if rig.frames >= maxFrames {
				e.Stop()
			}
			return nil
		},
		FnRender: func(p *FramePacket, dt float64) error {
			p.Quads = append(p.Quads, layout.InstanceData{
				Position: [2]float32{10, 10},
				Size:     [2]float32{32, 32},
				Colour:   [4]float32{1, 1, 1, 1},
				UVRect:   [4]float32{0, 0, 1, 1},
			})
			return nil
		},
	}

	logger := core.NewLogger(io.Discard, log.DebugLevel)
	e, err := New(game, rig.window, rig.backend, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	rig.engine = e
	return rig
}

func (r *testRig) shutdown(t *testing.T) {
	t.Helper()
	dev := r.backend.Device
	require.NoError(t, r.engine.Shutdown())
	assert.Equal(t, EngineStageShutdown, r.engine.Stage())
	assert.Empty(t, dev.Errors())
	assert.Zero(t, dev.LiveTotal(), "live objects: %v", dev.LiveCounts())
}

func TestRunDrawsUntilStopped(t *testing.T) {
	rig := newTestRig(t, 10)
	require.NoError(t, rig.engine.Run())

	assert.Equal(t, 10, rig.frames)
	stats := rig.engine.Renderer().Statistics()
	assert.EqualValues(t, 10, stats.Frame)
	assert.EqualValues(t, 1, stats.QuadsDrawn)
	rig.shutdown(t)
}

func TestQuitAndEscapeStopTheLoop(t *testing.T) {
	rig := newTestRig(t, 1000)
	rig.window.onPump[3] = func(w *testWindow) { w.push(core.Quit{}) }
	require.NoError(t, rig.engine.Run())
	assert.Equal(t, 2, rig.frames)
	rig.shutdown(t)

	rig = newTestRig(t, 1000)
	rig.window.onPump[2] = func(w *testWindow) { w.push(core.KeyPressed{Key: core.KEY_ESCAPE}) }
	require.NoError(t, rig.engine.Run())
	assert.Equal(t, 1, rig.frames)
	rig.shutdown(t)
}

func TestComputeToggleKey(t *testing.T) {
	rig := newTestRig(t, 4)
	rig.window.onPump[1] = func(w *testWindow) {
		w.push(core.KeyPressed{Key: core.KEY_C})
		// A repeat on the same frame does not toggle twice.
		w.push(core.KeyPressed{Key: core.KEY_C})
	}
	require.NoError(t, rig.engine.Run())
	// The key switched compute off, so toggling again turns it back on.
	assert.True(t, rig.engine.Renderer().ToggleComputeParticles())
	rig.shutdown(t)
}

func TestResizeAndMinimize(t *testing.T) {
	rig := newTestRig(t, 6)
	rig.window.onPump[2] = func(w *testWindow) {
		w.SetSize(0, 0)
		w.push(core.WindowResized{})
	}
	rig.window.onPump[4] = func(w *testWindow) {
		w.SetSize(1920, 1080)
		w.push(core.WindowResized{Width: 1920, Height: 1080})
	}
	require.NoError(t, rig.engine.Run())

	width, height := rig.engine.GetFramebufferSize()
	assert.EqualValues(t, 1920, width)
	assert.EqualValues(t, 1080, height)
	stats := rig.engine.Renderer().Statistics()
	assert.EqualValues(t, 1, stats.Recreations)
	// Pumps 2 and 3 happen while minimized and draw nothing.
	assert.Equal(t, 6, rig.frames)
	assert.Equal(t, 8, rig.window.pumps)
	rig.shutdown(t)
}

func TestRunRequiresInitialize(t *testing.T) {
	game := &Game{ApplicationConfig: NewApplicationConfig(config.Default())}
	e, err := New(game, newTestWindow(800, 800), headless.NewBackend(), WithLogger(core.NewLogger(io.Discard, log.InfoLevel)))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(), core.ErrNotInitialized)
	require.NoError(t, e.Shutdown())
}

func TestMetricsCountEachFrameOnce(t *testing.T) {
	rig := newTestRig(t, 30)
	require.NoError(t, rig.engine.Run())

	assert.Equal(t, 30, rig.frames)
	assert.EqualValues(t, 30, rig.engine.Renderer().Statistics().Frame)
	assert.EqualValues(t, 30, rig.engine.Metrics().Frames)
	rig.shutdown(t)
}
