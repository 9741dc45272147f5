package renderer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
	"github.com/spaghettifunk/lumen/engine/renderer/shader/shadertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = float32(1) / 60

// writeShaders writes declaration-only SPIR-V modules matching the
// renderer's vertex layouts and returns their paths in SetupPipelines
// order.
func writeShaders(t *testing.T) []string {
	t.Helper()
	instanced := func(b *shadertest.Builder) *shadertest.Builder {
		return b.Input(0, 2).Input(1, 2).Input(2, 2).Input(3, 2).Input(4, 4)
	}
	modules := []struct {
		name string
		code []byte
	}{
		{"quad.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 4).Input(6, 1).InputUint(7).Uniform(0, 0, layout.UniformDataSize).Build()},
		{"quad.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").
			Textures(0, 1, 4).Build()},
		{"text.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 4).InputUint(6).Input(7, 1).Uniform(0, 0, layout.UniformDataSize).Build()},
		{"text.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").
			SampledImages(0, 1, 2).Sampler(0, 2).Build()},
		{"particle.vert.spv", instanced(shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main")).
			Input(5, 1).Input(6, 1).Input(7, 1).Uniform(0, 0, layout.UniformDataSize).Build()},
		{"particle.frag.spv", shadertest.NewBuilder().EntryPoint(driver.StageFragment, "main").Build()},
		{"particle_sim.comp.spv", shadertest.NewBuilder().EntryPoint(driver.StageCompute, "main").
			LocalSize(64, 1, 1).Uniform(0, 0, layout.ComputeUniformSize).Storage(0, 1, true).Storage(0, 2, false).Build()},
	}
	dir := t.TempDir()
	paths := make([]string, len(modules))
	for i, m := range modules {
		paths[i] = filepath.Join(dir, m.name)
		require.NoError(t, os.WriteFile(paths[i], m.code, 0o644))
	}
	return paths
}

func testConfig() config.Renderer {
	cfg := config.DefaultRenderer()
	cfg.MaxQuads = 64
	cfg.MaxGlyphs = 64
	cfg.MaxParticles = 128
	cfg.MaxTextures = 4
	cfg.MaxFonts = 2
	cfg.FenceTimeout = config.Duration(time.Second)
	return cfg
}

type rig struct {
	r       *Renderer
	backend *headless.Backend
	window  *headless.Window
}

func (g *rig) device() *headless.Device {
	return g.backend.Device
}

// shutdown releases the renderer and checks that the device saw no
// protocol errors and no leaks.
func (g *rig) shutdown(t *testing.T) {
	t.Helper()
	dev := g.device()
	require.NoError(t, g.r.Shutdown())
	assert.Empty(t, dev.Errors())
	assert.Zero(t, dev.LiveTotal(), "live objects: %v", dev.LiveCounts())
	assert.Equal(t, StateDestroyed, g.r.State())
}

func newRig(t *testing.T, width, height uint32, mutate func(*config.Renderer), opts ...Option) *rig {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	paths := writeShaders(t)
	backend := headless.NewBackend()
	backend.Kernels[filepath.Base(paths[6])] = ParticleKernel
	window := headless.NewWindow(width, height)

	opts = append([]Option{WithLogger(core.NewLogger(io.Discard, log.DebugLevel))}, opts...)
	r := New(backend, cfg, opts...)
	require.NoError(t, r.Initialize(window, "lumen-test", 0, config.VSyncEnabled))
	require.NoError(t, r.SetupPipelines(paths[0], paths[1], paths[2], paths[3], paths[4], paths[5], paths[6]))
	require.NoError(t, r.CreateUniformBuffers(layout.UniformDataSize))
	return &rig{r: r, backend: backend, window: window}
}

func quadsN(n int) []layout.InstanceData {
	qs := make([]layout.InstanceData, n)
	for i := range qs {
		qs[i] = layout.InstanceData{
			Position:     [2]float32{float32(i * 10), float32(i * 5)},
			Size:         [2]float32{8, 8},
			Colour:       [4]float32{1, 0.5, 0.25, 1},
			UVRect:       [4]float32{0, 0, 1, 1},
			Rotation:     float32(i) * 0.1,
			TextureIndex: uint32(i % 4),
		}
	}
	return qs
}

func particlesN(n int, lifetime float32) []layout.ParticleData {
	ps := make([]layout.ParticleData, n)
	for i := range ps {
		ps[i] = layout.ParticleData{
			Position: [2]float32{float32(i), 100},
			Velocity: [2]float32{float32(i%5) - 2, -30},
			Colour:   [4]float32{1, 1, 1, 1},
			Size:     4,
			Lifetime: lifetime,
		}
	}
	return ps
}

func uniformFor(w, h float32) layout.UniformData {
	return layout.UniformData{
		ViewProjection: math.NewMat4ScreenSpace(w, h).Data,
		ScreenSize:     [2]float32{w, h},
	}
}

func drawsOf(calls []headless.DrawCall, pipeline string) []headless.DrawCall {
	var out []headless.DrawCall
	for _, c := range calls {
		if c.Pipeline == pipeline {
			out = append(out, c)
		}
	}
	return out
}

func TestInitializeAndShutdown(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	assert.Equal(t, StateInitialized, g.r.State())
	w, h := g.r.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	assert.Equal(t, 3, g.r.swapchain.ImageCount())
	assert.Len(t, g.r.frames, 3)
	assert.Equal(t, 1, g.device().Live("swapchain"))
	g.shutdown(t)

	assert.NoError(t, g.r.Shutdown(), "second shutdown is a no-op")
	assert.ErrorIs(t, g.r.Render(dt, layout.UniformData{}, nil, nil, nil), core.ErrNotInitialized)
}

func TestRenderBeforeSetup(t *testing.T) {
	backend := headless.NewBackend()
	r := New(backend, testConfig(), WithLogger(core.NewLogger(io.Discard, log.InfoLevel)))
	assert.ErrorIs(t, r.Render(dt, layout.UniformData{}, nil, nil, nil), core.ErrNotInitialized)
	assert.ErrorIs(t, r.ReCreateSwapchain(), core.ErrNotInitialized)

	require.NoError(t, r.Initialize(headless.NewWindow(320, 240), "lumen-test", 0, config.VSyncDisabled))
	assert.ErrorIs(t, r.Render(dt, layout.UniformData{}, nil, nil, nil), core.ErrNotInitialized)
	assert.Error(t, r.CreateUniformBuffers(16))
	assert.Error(t, r.Initialize(headless.NewWindow(320, 240), "lumen-test", 0, config.VSyncDisabled))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, backend.Device.Errors())
	assert.Zero(t, backend.Device.LiveTotal())
}

func TestInitializeMinimizedIsFatal(t *testing.T) {
	backend := headless.NewBackend()
	r := New(backend, testConfig(), WithLogger(core.NewLogger(io.Discard, log.InfoLevel)))
	err := r.Initialize(headless.NewWindow(0, 0), "lumen-test", 0, config.VSyncEnabled)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Zero(t, backend.Device.LiveTotal())
}

func TestFramesInFlightBounded(t *testing.T) {
	for _, frames := range []uint32{1, 2, 3} {
		g := newRig(t, 800, 600, func(c *config.Renderer) { c.MaxFramesInFlight = frames })
		quads := quadsN(10)
		for i := 0; i < 200; i++ {
			require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quads, nil, nil))
		}
		assert.LessOrEqual(t, g.device().MaxPending(), int(frames), "max frames in flight %d", frames)
		assert.Equal(t, uint64(200), g.r.Statistics().Frame)
		assert.Zero(t, g.r.Statistics().FramesSkipped)
		g.shutdown(t)
	}
}

func TestQuadInstancesReachTheDraw(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	quads := quadsN(17)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quads, nil, nil))
	require.NoError(t, g.r.DeviceWait())

	draws := drawsOf(g.device().DrawCalls(), "quad")
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(6), draws[0].IndexCount)
	assert.Equal(t, uint32(17), draws[0].InstanceCount)
	assert.Equal(t, layout.EncodeInstances(quads), draws[0].Instances)
	assert.Empty(t, drawsOf(g.device().DrawCalls(), "text"), "empty categories are not drawn")
	assert.Empty(t, drawsOf(g.device().DrawCalls(), "particle"))

	stats := g.r.Statistics()
	assert.Equal(t, uint32(17), stats.QuadsDrawn)
	assert.Zero(t, stats.QuadsDropped)
	g.shutdown(t)
}

func TestClearColour(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	g.r.SetClearColour(math.Vec4{X: 0.1, Y: 0.2, Z: 0.3, W: 1})
	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), nil, nil, nil))
	require.NoError(t, g.r.DeviceWait())
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, g.device().LastClearColour())
	g.shutdown(t)
}

func TestRecreateTwiceIsStable(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(3), nil, nil))

	require.NoError(t, g.r.ReCreateSwapchain())
	extent, images := g.r.swapchain.Extent(), g.r.swapchain.ImageCount()
	live := g.device().LiveCounts()

	require.NoError(t, g.r.ReCreateSwapchain())
	assert.Equal(t, extent, g.r.swapchain.Extent())
	assert.Equal(t, images, g.r.swapchain.ImageCount())
	assert.Equal(t, live, g.device().LiveCounts())
	assert.Equal(t, uint64(2), g.r.Statistics().Recreations)

	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(3), nil, nil))
	g.shutdown(t)
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(2), nil, nil))
	submissions := g.device().Submissions()
	swapchains := g.device().SwapchainsCreated()
	live := g.device().LiveCounts()

	g.window.SetSize(0, 0)
	g.r.OnResize(0, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(2), nil, nil))
	}
	require.NoError(t, g.r.ReCreateSwapchain())
	assert.Equal(t, submissions, g.device().Submissions())
	assert.Equal(t, swapchains, g.device().SwapchainsCreated())
	assert.Equal(t, live, g.device().LiveCounts())
	assert.Equal(t, uint64(5), g.r.Statistics().FramesSkipped)
	assert.Equal(t, uint64(1), g.r.Statistics().Frame)
	assert.Equal(t, StateSwapchainInvalid, g.r.State())

	g.window.SetSize(800, 600)
	g.r.OnResize(800, 600)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(2), nil, nil))
	assert.Equal(t, uint64(2), g.r.Statistics().Frame)
	assert.Equal(t, uint64(1), g.r.Statistics().Recreations)
	assert.Equal(t, StateIdle, g.r.State())
	g.shutdown(t)
}

func TestOutOfDateIsRecovered(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	u := uniformFor(800, 600)

	g.device().InjectAcquireOutOfDate(1)
	require.NoError(t, g.r.Render(dt, u, quadsN(4), nil, nil))
	assert.Equal(t, uint64(1), g.r.Statistics().FramesSkipped)
	assert.Equal(t, uint64(1), g.r.Statistics().Recreations)

	require.NoError(t, g.r.Render(dt, u, quadsN(4), nil, nil))
	assert.Equal(t, uint64(1), g.r.Statistics().Frame)

	g.device().InjectPresentOutOfDate(1)
	require.NoError(t, g.r.Render(dt, u, quadsN(4), nil, nil))
	assert.Equal(t, uint64(2), g.r.Statistics().Frame)
	assert.Equal(t, StateSwapchainInvalid, g.r.State())

	require.NoError(t, g.r.Render(dt, u, quadsN(4), nil, nil))
	assert.Equal(t, uint64(3), g.r.Statistics().Frame)
	assert.Equal(t, uint64(2), g.r.Statistics().Recreations)
	assert.Equal(t, uint64(1), g.r.Statistics().FramesSkipped)
	g.shutdown(t)
}

func TestComputeParticlesMatchCPUStep(t *testing.T) {
	g := newRig(t, 800, 600, func(c *config.Renderer) { c.ComputeParticles = true })
	gravity := g.r.cfg.Gravity
	ps := particlesN(70, 1.5)

	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), nil, nil, ps))
	require.NoError(t, g.r.DeviceWait())

	assert.Equal(t, 1, g.device().Dispatches())
	assert.Empty(t, g.device().Hazards())
	assert.Equal(t, uint32(2), g.r.Statistics().ComputeGroups)
	assert.Equal(t, uint32(70), g.r.Statistics().ParticlesDrawn)

	draws := drawsOf(g.device().DrawCalls(), "particle")
	require.Len(t, draws, 1)
	require.Len(t, draws[0].Instances, 70*layout.ParticleDataSize)
	for i, p := range ps {
		got := layout.ReadParticle(draws[0].Instances[i*layout.ParticleDataSize:])
		assert.Equal(t, StepParticle(p, dt, gravity), got, "particle %d", i)
	}

	// The CPU path produces the same records for the aged pool.
	assert.False(t, g.r.ToggleComputeParticles())
	aged := append([]layout.ParticleData(nil), g.r.pool.Particles()...)
	g.device().ResetDrawCalls()
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), nil, nil, nil))
	require.NoError(t, g.r.DeviceWait())
	assert.Equal(t, 1, g.device().Dispatches())
	assert.Zero(t, g.r.Statistics().ComputeGroups)

	draws = drawsOf(g.device().DrawCalls(), "particle")
	require.Len(t, draws, 1)
	for i, p := range aged {
		got := layout.ReadParticle(draws[0].Instances[i*layout.ParticleDataSize:])
		assert.Equal(t, StepParticle(p, dt, gravity), got, "particle %d", i)
	}
	g.shutdown(t)
}

func TestParticlesExpire(t *testing.T) {
	g := newRig(t, 800, 800, nil)
	quads := quadsN(50)
	u := uniformFor(800, 800)
	ps := particlesN(100, 1.5)
	for i := range ps {
		ps[i].Velocity = [2]float32{}
	}

	for frame := 0; frame < 120; frame++ {
		var spawn []layout.ParticleData
		if frame == 0 {
			spawn = ps
		}
		require.NoError(t, g.r.Render(dt, u, quads, nil, spawn), "frame %d", frame)
		if frame == 0 {
			assert.Equal(t, 100, g.r.LiveParticles())
		}
	}
	assert.Equal(t, 0, g.r.LiveParticles())
	assert.Equal(t, uint64(120), g.r.Statistics().Frame)
	assert.Zero(t, g.r.Statistics().FramesSkipped)
	require.NoError(t, g.r.DeviceWait())
	assert.Empty(t, g.device().Hazards())
	g.shutdown(t)
}

func TestParticlesExpireAtLifetime(t *testing.T) {
	for _, compute := range []bool{true, false} {
		name := "cpu"
		if compute {
			name = "compute"
		}
		t.Run(name, func(t *testing.T) {
			g := newRig(t, 800, 600, func(c *config.Renderer) { c.ComputeParticles = compute })
			ps := particlesN(10, 2)
			for i := range ps {
				ps[i].Velocity = [2]float32{}
			}

			// 120 frames of 1/60 add up to just under 2 in float32.
			for frame := 0; frame < 119; frame++ {
				var spawn []layout.ParticleData
				if frame == 0 {
					spawn = ps
				}
				require.NoError(t, g.r.Render(dt, uniformFor(800, 600), nil, nil, spawn), "frame %d", frame)
			}
			assert.Equal(t, 10, g.r.LiveParticles())

			g.device().ResetDrawCalls()
			require.NoError(t, g.r.Render(dt, uniformFor(800, 600), nil, nil, nil))
			require.NoError(t, g.r.DeviceWait())
			assert.Equal(t, 0, g.r.LiveParticles())

			draws := drawsOf(g.device().DrawCalls(), "particle")
			require.Len(t, draws, 1)
			for i := range ps {
				p := layout.ReadParticle(draws[0].Instances[i*layout.ParticleDataSize:])
				assert.Zero(t, p.Size, "particle %d", i)
				assert.Zero(t, p.Colour[3], "particle %d", i)
			}
			g.shutdown(t)
		})
	}
}

func TestSkippedFramesKeepSpawns(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	g.window.SetSize(0, 0)
	g.r.OnResize(0, 0)

	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(1), nil, particlesN(200, 1)))
	stats := g.r.Statistics()
	assert.Equal(t, uint64(1), stats.FramesSkipped)
	assert.Equal(t, uint32(72), stats.ParticlesDropped)
	assert.Equal(t, 128, g.r.LiveParticles())

	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(1), nil, particlesN(5, 1)))
	assert.Equal(t, uint32(5), g.r.Statistics().ParticlesDropped)
	assert.Equal(t, 128, g.r.LiveParticles())

	g.window.SetSize(800, 600)
	g.r.OnResize(800, 600)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quadsN(1), nil, nil))
	stats = g.r.Statistics()
	assert.Equal(t, uint64(1), stats.Frame)
	assert.Equal(t, uint64(2), stats.FramesSkipped)
	assert.Equal(t, uint32(128), stats.ParticlesDrawn)
	assert.Zero(t, stats.ParticlesDropped)
	g.shutdown(t)
}

func TestResizeRecreatesOnce(t *testing.T) {
	g := newRig(t, 800, 800, nil)
	quads := quadsN(20)

	for i := 0; i < 10; i++ {
		require.NoError(t, g.r.Render(dt, uniformFor(800, 800), quads, nil, nil))
	}
	g.window.SetSize(1920, 1080)
	g.r.OnResize(1920, 1080)
	for i := 0; i < 10; i++ {
		require.NoError(t, g.r.Render(dt, uniformFor(1920, 1080), quads, nil, nil))
	}

	stats := g.r.Statistics()
	assert.Equal(t, uint64(1), stats.Recreations)
	assert.LessOrEqual(t, stats.FramesSkipped, uint64(1))
	w, h := g.r.GetFramebufferSize()
	assert.Equal(t, uint32(1920), w)
	assert.Equal(t, uint32(1080), h)
	assert.Equal(t, driver.Extent2D{Width: 1920, Height: 1080}, g.r.swapchain.Extent())
	g.shutdown(t)
}

func TestResizeWithoutNotification(t *testing.T) {
	g := newRig(t, 800, 800, nil)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 800), quadsN(1), nil, nil))

	// The stale chain is only discovered by acquire.
	g.window.SetSize(1024, 768)
	for i := 0; i < 3; i++ {
		require.NoError(t, g.r.Render(dt, uniformFor(1024, 768), quadsN(1), nil, nil))
	}
	assert.Equal(t, uint64(1), g.r.Statistics().Recreations)
	assert.Equal(t, uint64(1), g.r.Statistics().FramesSkipped)
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, g.r.swapchain.Extent())
	g.shutdown(t)
}

func TestOverflowClamp(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	quads := quadsN(70)
	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), quads, nil, particlesN(200, 1)))
	require.NoError(t, g.r.DeviceWait())

	stats := g.r.Statistics()
	assert.Equal(t, uint32(64), stats.QuadsDrawn)
	assert.Equal(t, uint32(6), stats.QuadsDropped)
	assert.Equal(t, uint32(128), stats.ParticlesDrawn)
	assert.Equal(t, uint32(72), stats.ParticlesDropped)
	assert.Equal(t, 128, g.r.LiveParticles())

	draws := drawsOf(g.device().DrawCalls(), "quad")
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(64), draws[0].InstanceCount)
	assert.Equal(t, layout.EncodeInstances(quads[:64]), draws[0].Instances)
	g.shutdown(t)
}

func TestOverflowReject(t *testing.T) {
	g := newRig(t, 800, 600, func(c *config.Renderer) { c.Overflow = config.OverflowReject })
	submissions := g.device().Submissions()

	err := g.r.Render(dt, uniformFor(800, 600), quadsN(65), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	var ce *core.CapacityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "quads", ce.Category)
	assert.Equal(t, 65, ce.Requested)
	assert.Equal(t, 64, ce.Max)
	assert.False(t, core.IsFatal(err))

	assert.Equal(t, submissions, g.device().Submissions())
	assert.Equal(t, 0, g.r.queue.Frame())
	assert.Zero(t, g.r.Statistics().Frame)

	require.NoError(t, g.r.Render(dt, uniformFor(800, 600), nil, nil, particlesN(100, 1)))
	err = g.r.Render(dt, uniformFor(800, 600), nil, nil, particlesN(29, 1))
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 100, g.r.LiveParticles())
	g.shutdown(t)
}

func TestRejectedFramesDrainFullPool(t *testing.T) {
	g := newRig(t, 800, 600, func(c *config.Renderer) { c.Overflow = config.OverflowReject })
	u := uniformFor(800, 600)
	require.NoError(t, g.r.Render(dt, u, nil, nil, particlesN(128, 0.5)))
	assert.Equal(t, 128, g.r.LiveParticles())

	rejected := 0
	for frame := 1; frame <= 60; frame++ {
		err := g.r.Render(dt, u, quadsN(1), nil, particlesN(1, 0.5))
		if err != nil {
			require.ErrorIs(t, err, core.ErrCapacityExceeded, "frame %d", frame)
			rejected++
		}
	}
	// The full pool expires after 30 frames of ageing, rejected or not.
	assert.Equal(t, 29, rejected)
	assert.Equal(t, uint64(32), g.r.Statistics().Frame)
	assert.Equal(t, uint32(1), g.r.Statistics().QuadsDrawn)
	assert.Less(t, g.r.LiveParticles(), 128)
	g.shutdown(t)
}

func TestBufferWriteIsBoundsChecked(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	buf, err := g.r.buffers.CreateDynamicBuffer(16, driver.BufferVertex)
	require.NoError(t, err)
	require.NoError(t, buf.Write(4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.Mapped()[4:8])
	assert.Error(t, buf.Write(12, make([]byte, 8)))
	g.r.buffers.DestroyBuffer(buf)

	local, err := g.r.buffers.CreateBuffer(16, driver.BufferVertex, driver.MemoryDeviceLocal)
	require.NoError(t, err)
	assert.Error(t, local.Write(0, []byte{1}), "device local buffers are not mapped")
	g.r.buffers.DestroyBuffer(local)
	g.shutdown(t)
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	g := newRig(t, 800, 600, nil)
	fence, err := g.device().NewFence(false)
	require.NoError(t, err)

	err = waitFence(fence, time.Millisecond, "test", g.r.logger)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrFenceTimeout)
	fence.Destroy()
	g.shutdown(t)
}
