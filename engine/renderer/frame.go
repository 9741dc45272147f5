package renderer

import (
	"errors"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

func (r *Renderer) ready() bool {
	switch r.state {
	case StateUninitialized, StateDestroyed:
		return false
	}
	return r.pipelines != nil && len(r.frames) > 0
}

// limitInstances applies the overflow policy to one category. It returns
// how many instances to keep.
func (r *Renderer) limitInstances(category string, requested, max int) (int, error) {
	if requested <= max {
		return requested, nil
	}
	if r.cfg.Overflow == config.OverflowReject {
		r.logger.Error("instance capacity exceeded", "category", category, "requested", requested, "max", max)
		return 0, &core.CapacityError{Category: category, Requested: requested, Max: max}
	}
	r.logger.Warn("instance capacity exceeded, dropping the excess", "category", category, "requested", requested, "max", max)
	return max, nil
}

// limits applies the overflow policy to one frame's instance counts. Only
// new spawns count against the particle pool; live particles always fit.
func (r *Renderer) limits(quads, texts, particles int) (nQuads, nTexts, nParticles int, err error) {
	if nQuads, err = r.limitInstances("quads", quads, int(r.cfg.MaxQuads)); err != nil {
		return 0, 0, 0, err
	}
	if nTexts, err = r.limitInstances("glyphs", texts, int(r.cfg.MaxGlyphs)); err != nil {
		return 0, 0, 0, err
	}
	if nParticles, err = r.limitInstances("particles", particles, r.pool.Free()); err != nil {
		return 0, 0, 0, err
	}
	return nQuads, nTexts, nParticles, nil
}

// Render records and presents one frame. quads and texts are drawn this
// frame only; particles are newly spawned and join the live pool.
//
// A minimized window or an out of date swapchain skips the frame and
// returns nil; its spawns still join the pool. With the reject overflow
// policy a frame carrying too many instances fails with a
// *core.CapacityError before any GPU work.
func (r *Renderer) Render(deltaTime float32, uniform layout.UniformData, quads []layout.InstanceData, texts []layout.TextData, particles []layout.ParticleData) error {
	if !r.ready() {
		return core.ErrNotInitialized
	}

	nQuads, nTexts, nParticles, err := r.limits(len(quads), len(texts), len(particles))
	if err != nil {
		// A rejected frame still ages the pool, otherwise a full pool
		// would reject every later spawn.
		r.pool.Advance(deltaTime)
		return err
	}
	r.stats.resetFrame()
	r.stats.QuadsDropped = uint32(len(quads) - nQuads)
	r.stats.GlyphsDropped = uint32(len(texts) - nTexts)
	r.stats.ParticlesDropped = uint32(len(particles) - nParticles)
	quads, texts, particles = quads[:nQuads], texts[:nTexts], particles[:nParticles]

	if w, h := r.surface.FramebufferSize(); w == 0 || h == 0 {
		r.skipFrame("window has no area", deltaTime, particles)
		return nil
	}
	if !r.swapchain.Valid() {
		if err := r.ReCreateSwapchain(); err != nil {
			return err
		}
		if !r.swapchain.Valid() {
			r.skipFrame("swapchain recreation deferred", deltaTime, particles)
			return nil
		}
	}
	if err := r.reloadAssets(); err != nil {
		return err
	}

	r.state = StateRendering
	frame := r.queue.Frame()
	if err := r.queue.WaitForFrame(frame); err != nil {
		return err
	}
	image, err := r.queue.AcquireNextImage(frame)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		r.skipFrame("swapchain out of date on acquire", deltaTime, particles)
		return r.ReCreateSwapchain()
	}
	if err != nil {
		return err
	}

	fence := r.queue.Fence(frame)
	if inFlight := r.imagesInFlight[image]; inFlight != nil && inFlight != fence {
		if err := waitFence(inFlight, r.timeout, "wait for image", r.logger); err != nil {
			return err
		}
	}
	r.imagesInFlight[image] = fence

	f := r.frames[image]
	if err := r.updateSets(f); err != nil {
		return err
	}

	uniform.Put(f.uniform.Mapped())
	for i := range quads {
		quads[i].Put(f.quads.Mapped()[i*layout.InstanceDataSize:])
	}
	for i := range texts {
		texts[i].Put(f.text.Mapped()[i*layout.TextDataSize:])
	}

	r.pool.Spawn(particles)
	n := uint32(r.pool.Len())
	compute := r.computeParticles && n > 0
	var groups uint32
	if compute {
		r.pool.WriteStorage(f.storage.Mapped())
		cu := layout.ComputeUniform{DeltaTime: deltaTime, ParticleCount: n, Gravity: r.cfg.Gravity}
		cu.Put(f.computeUniform.Mapped())
		groups = math.DivCeil(n, r.pipelines.Get(PipelineParticleCompute).LocalSize[0])
	} else {
		r.pool.WriteStepped(f.particles.Mapped(), deltaTime, r.cfg.Gravity)
	}

	if err := r.record(f, image, uint32(len(quads)), uint32(len(texts)), n, groups); err != nil {
		return err
	}
	if err := r.queue.Submit(f.cmd, frame, fence); err != nil {
		return err
	}
	if err := r.queue.Present(image, frame); err != nil {
		if !errors.Is(err, core.ErrSwapchainOutOfDate) {
			return err
		}
		r.logger.Debug("swapchain out of date on present, recreating next frame")
	}

	r.queue.Advance()
	r.pool.Advance(deltaTime)

	r.stats.Frame++
	r.stats.QuadsDrawn = uint32(len(quads))
	r.stats.GlyphsDrawn = uint32(len(texts))
	r.stats.ParticlesDrawn = n
	r.stats.ComputeGroups = groups
	r.metrics.Update(float64(deltaTime))
	r.stats.FPS, r.stats.FrameTime = r.metrics.Frame()
	if r.swapchain.Valid() {
		r.state = StateIdle
	} else {
		r.state = StateSwapchainInvalid
	}
	return nil
}

// skipFrame gives up on drawing this frame. The spawns still join the pool
// and the pool still ages, so particle time follows the caller's clock.
func (r *Renderer) skipFrame(reason string, deltaTime float32, particles []layout.ParticleData) {
	r.pool.Spawn(particles)
	r.pool.Advance(deltaTime)
	r.stats.FramesSkipped++
	r.logger.Debug("frame skipped", "reason", reason, "skipped", r.stats.FramesSkipped)
	if r.state != StateSwapchainInvalid {
		r.state = StateIdle
	}
}

// reloadAssets re-uploads textures and fonts whose files changed. A failed
// reload keeps the previous contents and is only logged.
func (r *Renderer) reloadAssets() error {
	if !r.textures.Dirty() && !r.fonts.Dirty() {
		return nil
	}
	if err := r.DeviceWait(); err != nil {
		return err
	}
	n, err := r.textures.ReloadDirty()
	if core.IsFatal(err) {
		return err
	}
	m, ferr := r.fonts.ReloadDirty()
	if core.IsFatal(ferr) {
		return ferr
	}
	if err := errors.Join(err, ferr); err != nil {
		r.logger.Warn("some assets failed to reload", "err", err)
	}
	r.logger.Info("assets reloaded", "textures", n, "fonts", m)
	return nil
}

// record fills f's command buffer: the particle dispatch and its barrier
// first, then one render pass with the three instanced draws.
func (r *Renderer) record(f *frameResources, image, nQuads, nTexts, nParticles, groups uint32) error {
	cb := f.cmd
	if err := cb.Begin(false); err != nil {
		return core.Fatal("begin command buffer", err)
	}

	if groups > 0 {
		cp := r.pipelines.Get(PipelineParticleCompute)
		cb.BindPipeline(cp.Handle)
		cb.BindDescriptorSet(cp.Handle, 0, f.sets[PipelineParticleCompute])
		cb.Dispatch(groups, 1, 1)
		cb.PipelineBarrier(
			driver.PipelineStageComputeShader, driver.PipelineStageVertexInput,
			driver.AccessShaderWrite, driver.AccessVertexAttributeRead,
		)
	}

	extent := r.swapchain.Extent()
	area := driver.Rect2D{Width: extent.Width, Height: extent.Height}
	cb.BeginRenderPass(r.renderPass, r.framebuffers[image], area, r.clearColour, 1)
	cb.SetViewport(driver.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
	cb.SetScissor(area)

	draws := []struct {
		kind      PipelineKind
		instances *Buffer
		count     uint32
	}{
		{PipelineQuad, f.quads, nQuads},
		{PipelineText, f.text, nTexts},
		{PipelineParticle, f.particles, nParticles},
	}
	for _, d := range draws {
		if d.count == 0 {
			continue
		}
		p := r.pipelines.Get(d.kind)
		cb.BindPipeline(p.Handle)
		cb.BindDescriptorSet(p.Handle, 0, f.sets[d.kind])
		cb.BindVertexBuffers(0, []driver.Buffer{r.quadVertices.Handle, d.instances.Handle}, []uint64{0, 0})
		cb.BindIndexBuffer(r.quadIndices.Handle, 0, driver.IndexUint16)
		cb.DrawIndexed(uint32(len(layout.QuadIndices)), d.count, 0, 0, 0)
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return core.Fatal("end command buffer", err)
	}
	return nil
}
