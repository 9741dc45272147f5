package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

type State uint8

const (
	// Renderer has not been initialized
	StateUninitialized State = iota
	// Device, swapchain and static resources exist
	StateInitialized
	// A frame is being recorded and submitted
	StateRendering
	// The last frame was presented, or skipped
	StateIdle
	// The swapchain must be recreated before the next frame
	StateSwapchainInvalid
	// The swapchain is being recreated
	StateRecreating
	// Shutdown released every resource
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRendering:
		return "rendering"
	case StateIdle:
		return "idle"
	case StateSwapchainInvalid:
		return "swapchain_invalid"
	case StateRecreating:
		return "recreating"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

type Option func(*Renderer)

func WithLogger(logger *log.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithAssetManager enables hot reload: every texture and font loaded
// afterwards is watched and re-uploaded when its files change.
func WithAssetManager(am *assets.AssetManager) Option {
	return func(r *Renderer) {
		r.assets = am
	}
}

// WithImageLoader replaces the decoder used for textures and font atlases.
func WithImageLoader(load ImageLoadFunc) Option {
	return func(r *Renderer) {
		r.loadImage = load
	}
}

// frameResources are the per swapchain image buffers, descriptor sets and
// command buffer. They are only touched once the fence of the last frame
// that used the image has signaled.
type frameResources struct {
	uniform        *Buffer
	quads          *Buffer
	text           *Buffer
	particles      *Buffer
	storage        *Buffer
	computeUniform *Buffer

	cmd     driver.CommandBuffer
	sets    [pipelineKindCount]driver.DescriptorSet
	written bool
	texGen  uint64
	fontGen uint64
}

// Renderer owns the device and every GPU object and drives the frame loop.
// It is not safe for concurrent use; only MarkDirty callbacks from the asset
// watcher may run on other goroutines.
type Renderer struct {
	cfg       config.Renderer
	backend   driver.Backend
	logger    *log.Logger
	metrics   *core.Metrics
	assets    *assets.AssetManager
	loadImage ImageLoadFunc

	state   State
	surface driver.Surface
	device  driver.Device
	timeout time.Duration

	buffers          *BufferManager
	swapchain        *Swapchain
	queue            *Queue
	renderPass       driver.RenderPass
	renderPassFormat driver.Format
	framebuffers     []driver.Framebuffer
	pipelines        *Pipelines
	quadVertices     *Buffer
	quadIndices      *Buffer
	sampler          driver.Sampler
	jobs             *core.JobSystem
	textures         *TextureManager
	fonts            *FontManager

	frames         []*frameResources
	uniformSize    uint64
	imagesInFlight []driver.Fence

	pool             *ParticlePool
	clearColour      [4]float32
	computeParticles bool
	stats            RenderStatistics
	watches          []uuid.UUID
}

func New(backend driver.Backend, cfg config.Renderer, opts ...Option) *Renderer {
	r := &Renderer{
		cfg:              cfg,
		backend:          backend,
		loadImage:        loaders.LoadImage,
		metrics:          core.NewMetrics(),
		timeout:          time.Duration(cfg.FenceTimeout),
		clearColour:      cfg.ClearColour,
		computeParticles: cfg.ComputeParticles,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = core.Logger()
	}
	r.logger = r.logger.WithPrefix("renderer")
	return r
}

// Initialize opens the device and creates everything that does not depend
// on shaders: swapchain, queue, render pass, framebuffers, the unit quad and
// the texture and font managers.
func (r *Renderer) Initialize(window driver.Surface, appName string, apiVersion uint32, vsync config.VSync) error {
	if r.state != StateUninitialized {
		return fmt.Errorf("renderer already initialized (state %s)", r.state)
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if err := r.initialize(window, appName, apiVersion, vsync); err != nil {
		r.logger.Error("renderer initialization failed", "err", err)
		r.release()
		return err
	}
	r.state = StateInitialized
	r.logger.Info("renderer initialized",
		"backend", r.backend.Name(),
		"images", r.swapchain.ImageCount(),
		"frames_in_flight", r.cfg.MaxFramesInFlight,
		"present_mode", r.swapchain.PresentMode(),
	)
	return nil
}

func (r *Renderer) initialize(window driver.Surface, appName string, apiVersion uint32, vsync config.VSync) error {
	var err error
	r.surface = window
	if r.device, err = r.backend.Open(window, appName, apiVersion); err != nil {
		return core.Fatal("open device", err)
	}
	if r.buffers, err = NewBufferManager(r.device, r.timeout, r.logger); err != nil {
		return err
	}

	r.swapchain = NewSwapchain(r.device, r.buffers, vsync, r.logger)
	if err := r.swapchain.Create(); err != nil {
		return core.Fatal("create swapchain", err)
	}
	if r.queue, err = NewQueue(r.device, r.swapchain, int(r.cfg.MaxFramesInFlight), r.timeout, r.logger); err != nil {
		return err
	}
	if err := r.createRenderPass(); err != nil {
		return err
	}
	if err := r.createFramebuffers(); err != nil {
		return err
	}

	if r.quadVertices, err = r.buffers.CreateStaticBuffer(layout.EncodeVertices(layout.QuadVertices), driver.BufferVertex); err != nil {
		return err
	}
	if r.quadIndices, err = r.buffers.CreateStaticBuffer(layout.EncodeIndices(layout.QuadIndices), driver.BufferIndex); err != nil {
		return err
	}
	if r.sampler, err = r.device.NewSampler(driver.SamplerDesc{Filter: driver.FilterLinear, AddressMode: driver.AddressClampToEdge}); err != nil {
		return core.Fatal("create sampler", err)
	}
	if r.jobs, err = core.NewJobSystem(runtime.NumCPU(), int(r.cfg.MaxTextures)); err != nil {
		return err
	}
	if r.textures, err = NewTextureManager(r.buffers, r.cfg.MaxTextures, r.loadImage, r.jobs, r.logger); err != nil {
		return err
	}
	r.fonts = NewFontManager(r.buffers, r.cfg.MaxFonts, r.loadImage, r.logger)

	r.imagesInFlight = make([]driver.Fence, r.swapchain.ImageCount())
	r.pool = NewParticlePool(int(r.cfg.MaxParticles))
	return nil
}

func (r *Renderer) createRenderPass() error {
	rp, err := r.device.NewRenderPass(driver.RenderPassDesc{
		ColorFormat: r.swapchain.Format(),
		DepthFormat: r.device.DepthFormat(),
	})
	if err != nil {
		return core.Fatal("create render pass", err)
	}
	r.renderPass = rp
	r.renderPassFormat = r.swapchain.Format()
	return nil
}

func (r *Renderer) createFramebuffers() error {
	extent := r.swapchain.Extent()
	depth := r.swapchain.Depth()
	for _, img := range r.swapchain.Images() {
		fb, err := r.device.NewFramebuffer(r.renderPass, []driver.Image{img, depth.Image}, extent.Width, extent.Height)
		if err != nil {
			return core.Fatal("create framebuffer", err)
		}
		r.framebuffers = append(r.framebuffers, fb)
	}
	return nil
}

func (r *Renderer) destroyFramebuffers() {
	for _, fb := range r.framebuffers {
		fb.Destroy()
	}
	r.framebuffers = nil
}

// SetupPipelines loads the seven shaders and builds the quad, text and
// particle pipelines and the particle compute pipeline.
func (r *Renderer) SetupPipelines(quadVert, quadFrag, textVert, textFrag, particleVert, particleFrag, particleComp string) error {
	if r.state == StateUninitialized || r.state == StateDestroyed {
		return core.ErrNotInitialized
	}
	paths := config.Shaders{
		QuadVertex:       quadVert,
		QuadFragment:     quadFrag,
		TextVertex:       textVert,
		TextFragment:     textFrag,
		ParticleVertex:   particleVert,
		ParticleFragment: particleFrag,
		ParticleCompute:  particleComp,
	}
	pipelines, err := LoadPipelines(r.device, r.renderPass, paths, r.logger)
	if err != nil {
		return err
	}
	if r.pipelines != nil {
		if err := r.DeviceWait(); err != nil {
			pipelines.Destroy()
			return err
		}
		r.destroySets()
		r.pipelines.Destroy()
	}
	r.pipelines = pipelines
	r.logger.Info("pipelines ready", "compute_local_size", pipelines.Get(PipelineParticleCompute).LocalSize[0])
	return nil
}

// CreateUniformBuffers creates one set of mapped buffers per swapchain
// image. dataSize is the size of the uniform block.
func (r *Renderer) CreateUniformBuffers(dataSize uint64) error {
	if r.state == StateUninitialized || r.state == StateDestroyed {
		return core.ErrNotInitialized
	}
	if dataSize < layout.UniformDataSize {
		return fmt.Errorf("uniform data size %d is smaller than the %d byte uniform block", dataSize, layout.UniformDataSize)
	}
	if err := r.DeviceWait(); err != nil {
		return err
	}
	r.resizeFrames(0)
	r.uniformSize = dataSize
	return r.resizeFrames(r.swapchain.ImageCount())
}

func (r *Renderer) createFrame() (*frameResources, error) {
	f := &frameResources{}
	specs := []struct {
		dst   **Buffer
		size  uint64
		usage driver.BufferUsage
	}{
		{&f.uniform, r.uniformSize, driver.BufferUniform},
		{&f.quads, uint64(r.cfg.MaxQuads) * layout.InstanceDataSize, driver.BufferVertex},
		{&f.text, uint64(r.cfg.MaxGlyphs) * layout.TextDataSize, driver.BufferVertex},
		{&f.particles, uint64(r.cfg.MaxParticles) * layout.ParticleDataSize, driver.BufferVertex | driver.BufferStorage},
		{&f.storage, uint64(r.cfg.MaxParticles) * layout.ParticleDataSize, driver.BufferStorage},
		{&f.computeUniform, layout.ComputeUniformSize, driver.BufferUniform},
	}
	for _, s := range specs {
		b, err := r.buffers.CreateDynamicBuffer(s.size, s.usage)
		if err != nil {
			r.destroyFrame(f)
			return nil, err
		}
		*s.dst = b
	}
	cmd, err := r.device.NewCommandBuffer()
	if err != nil {
		r.destroyFrame(f)
		return nil, core.Fatal("create command buffer", err)
	}
	f.cmd = cmd
	return f, nil
}

func (r *Renderer) destroyFrame(f *frameResources) {
	for i, set := range f.sets {
		if set != nil {
			set.Destroy()
			f.sets[i] = nil
		}
	}
	if f.cmd != nil {
		f.cmd.Destroy()
	}
	for _, b := range []*Buffer{f.uniform, f.quads, f.text, f.particles, f.storage, f.computeUniform} {
		r.buffers.DestroyBuffer(b)
	}
}

// resizeFrames grows or shrinks the per image resources to n, keeping the
// ones that survive. The device must be idle.
func (r *Renderer) resizeFrames(n int) error {
	for len(r.frames) > n {
		last := len(r.frames) - 1
		r.destroyFrame(r.frames[last])
		r.frames = r.frames[:last]
	}
	for len(r.frames) < n {
		f, err := r.createFrame()
		if err != nil {
			return err
		}
		r.frames = append(r.frames, f)
	}
	return nil
}

func (r *Renderer) destroySets() {
	for _, f := range r.frames {
		for i, set := range f.sets {
			if set != nil {
				set.Destroy()
				f.sets[i] = nil
			}
		}
		f.written = false
	}
}

// updateSets writes f's descriptor sets when they are new or the texture
// or font tables changed since they were last written.
func (r *Renderer) updateSets(f *frameResources) error {
	texGen, fontGen := r.textures.Generation(), r.fonts.Generation()
	if f.written && f.texGen == texGen && f.fontGen == fontGen {
		return nil
	}
	for kind := PipelineKind(0); kind < pipelineKindCount; kind++ {
		p := r.pipelines.Get(kind)
		if f.sets[kind] == nil {
			set, err := r.device.NewDescriptorSet(p.SetLayout)
			if err != nil {
				return core.Fatal("create descriptor set", err)
			}
			f.sets[kind] = set
		}
		if err := r.writeSet(f, p); err != nil {
			return core.Fatal("write descriptor set", fmt.Errorf("%s: %w", kind, err))
		}
	}
	f.written, f.texGen, f.fontGen = true, texGen, fontGen
	return nil
}

func (r *Renderer) writeSet(f *frameResources, p *Pipeline) error {
	set := f.sets[p.Kind]
	for _, b := range p.Bindings {
		var err error
		switch b.Type {
		case driver.DescriptorUniformBuffer:
			buf := f.uniform
			if p.Kind == PipelineParticleCompute {
				buf = f.computeUniform
			}
			err = set.WriteBuffer(b.Binding, buf.Handle, 0, buf.Size)
		case driver.DescriptorStorageBuffer:
			buf := f.particles
			if p.Kind == PipelineParticleCompute && b.ReadOnly {
				buf = f.storage
			}
			err = set.WriteBuffer(b.Binding, buf.Handle, 0, buf.Size)
		case driver.DescriptorCombinedImageSampler, driver.DescriptorSampledImage:
			images, samplers := r.textures.Images(b.Count)
			if p.Kind == PipelineText {
				images, samplers = r.fonts.Images(b.Count, r.textures.Default())
			}
			if b.Type == driver.DescriptorSampledImage {
				samplers = nil
			}
			err = set.WriteImages(b.Binding, images, samplers)
		case driver.DescriptorSampler:
			samplers := make([]driver.Sampler, b.Count)
			for i := range samplers {
				samplers[i] = r.sampler
			}
			err = set.WriteImages(b.Binding, nil, samplers)
		}
		if err != nil {
			return fmt.Errorf("binding %d: %w", b.Binding, err)
		}
	}
	return nil
}

// ReCreateSwapchain replaces the swapchain and everything sized by it. With
// a minimized window it only marks the chain invalid and returns nil.
func (r *Renderer) ReCreateSwapchain() error {
	if r.state == StateUninitialized || r.state == StateDestroyed {
		return core.ErrNotInitialized
	}
	if w, h := r.surface.FramebufferSize(); w == 0 || h == 0 {
		r.swapchain.Invalidate()
		r.state = StateSwapchainInvalid
		return nil
	}

	r.state = StateRecreating
	if err := r.DeviceWait(); err != nil {
		return err
	}
	r.destroyFramebuffers()
	if err := r.swapchain.Recreate(); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			r.state = StateSwapchainInvalid
			return nil
		}
		return err
	}

	if r.swapchain.Format() != r.renderPassFormat {
		r.logger.Info("swapchain format changed, rebuilding render pass", "format", r.swapchain.Format())
		r.renderPass.Destroy()
		if err := r.createRenderPass(); err != nil {
			return err
		}
		if r.pipelines != nil {
			r.destroySets()
			if err := r.pipelines.Rebuild(r.renderPass); err != nil {
				return err
			}
		}
	}
	if err := r.createFramebuffers(); err != nil {
		return err
	}
	if count := r.swapchain.ImageCount(); len(r.frames) > 0 && len(r.frames) != count {
		if err := r.resizeFrames(count); err != nil {
			return err
		}
	}
	r.imagesInFlight = make([]driver.Fence, r.swapchain.ImageCount())

	r.stats.Recreations++
	r.state = StateInitialized
	extent := r.swapchain.Extent()
	r.logger.Info("swapchain recreated", "width", extent.Width, "height", extent.Height, "images", r.swapchain.ImageCount(), "recreations", r.stats.Recreations)
	return nil
}

// OnResize is called from the window's resize callback. The swapchain is
// only invalidated here and rebuilt at the start of the next frame.
func (r *Renderer) OnResize(width, height uint32) {
	if r.swapchain == nil {
		return
	}
	r.logger.Debug("window resized", "width", width, "height", height)
	r.swapchain.Invalidate()
	if r.state != StateUninitialized && r.state != StateDestroyed {
		r.state = StateSwapchainInvalid
	}
}

// DeviceWait blocks until the device has finished all submitted work.
func (r *Renderer) DeviceWait() error {
	if r.device == nil {
		return core.ErrNotInitialized
	}
	if err := r.device.WaitIdle(); err != nil {
		return core.Fatal("wait idle", err)
	}
	return nil
}

// GetFramebufferSize returns the drawable size of the window in pixels.
func (r *Renderer) GetFramebufferSize() (uint32, uint32) {
	if r.surface == nil {
		return 0, 0
	}
	return r.surface.FramebufferSize()
}

func (r *Renderer) SetClearColour(c math.Vec4) {
	r.clearColour = [4]float32{c.X, c.Y, c.Z, c.W}
}

// ToggleComputeParticles switches particle simulation between the compute
// pipeline and the CPU and returns the new setting.
func (r *Renderer) ToggleComputeParticles() bool {
	r.computeParticles = !r.computeParticles
	r.logger.Info("particle simulation switched", "compute", r.computeParticles)
	return r.computeParticles
}

func (r *Renderer) Statistics() RenderStatistics {
	return r.stats
}

func (r *Renderer) LiveParticles() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.Len()
}

func (r *Renderer) State() State {
	return r.state
}

// LoadTexture uploads an image file and returns its texture index.
func (r *Renderer) LoadTexture(path string) (uint32, error) {
	if r.textures == nil {
		return 0, core.ErrNotInitialized
	}
	id, err := r.textures.Load(path)
	if err != nil {
		r.logger.Error("failed to load texture", "path", path, "err", err)
		return 0, err
	}
	r.watch(func() { r.textures.MarkDirty(id) }, path)
	return id, nil
}

// LoadTextures decodes several image files in parallel and uploads them.
// ids[i] is zero when paths[i] failed; the error joins every failure.
func (r *Renderer) LoadTextures(paths ...string) ([]uint32, error) {
	if r.textures == nil {
		return nil, core.ErrNotInitialized
	}
	ids, err := r.textures.LoadMany(paths)
	for i, id := range ids {
		if id != 0 {
			r.watch(func() { r.textures.MarkDirty(id) }, paths[i])
		}
	}
	if err != nil {
		r.logger.Error("failed to load textures", "err", err)
	}
	return ids, err
}

// LoadAtlas uploads an atlas image and returns its texture index together
// with the frames of atlasPath normalized to UVs.
func (r *Renderer) LoadAtlas(imagePath, atlasPath string) (uint32, *loaders.AtlasData, error) {
	if r.textures == nil {
		return 0, nil, core.ErrNotInitialized
	}
	res, err := (&loaders.AtlasLoader{}).Load(atlasPath)
	if err != nil {
		return 0, nil, err
	}
	atlas := res.Data.(*loaders.AtlasData)
	id, err := r.LoadTexture(imagePath)
	if err != nil {
		return 0, nil, err
	}
	tex, _ := r.textures.Get(id)
	if err := atlas.Normalize(tex.Width, tex.Height); err != nil {
		return 0, nil, err
	}
	return id, atlas, nil
}

// LoadMSDFFont loads a signed distance field font and returns its index.
func (r *Renderer) LoadMSDFFont(imagePath, metadataPath string) (uint32, error) {
	if r.fonts == nil {
		return 0, core.ErrNotInitialized
	}
	id, err := r.fonts.LoadMSDF(imagePath, metadataPath)
	if err != nil {
		r.logger.Error("failed to load font", "metadata", metadataPath, "err", err)
		return 0, err
	}
	r.watch(func() { r.fonts.MarkDirty(id) }, r.fonts.Paths(id)...)
	return id, nil
}

func (r *Renderer) LoadBitmapFont(fntPath string) (uint32, error) {
	if r.fonts == nil {
		return 0, core.ErrNotInitialized
	}
	id, err := r.fonts.LoadBitmap(fntPath)
	if err != nil {
		r.logger.Error("failed to load font", "path", fntPath, "err", err)
		return 0, err
	}
	r.watch(func() { r.fonts.MarkDirty(id) }, r.fonts.Paths(id)...)
	return id, nil
}

func (r *Renderer) watch(mark func(), paths ...string) {
	if r.assets == nil {
		return
	}
	for _, path := range paths {
		id, err := r.assets.Watch(path, func(string) { mark() })
		if err != nil {
			r.logger.Warn("hot reload disabled for asset", "path", path, "err", err)
			continue
		}
		r.watches = append(r.watches, id)
	}
}

// DrawText lays out text with font fontID and appends the glyph instances
// to dst.
func (r *Renderer) DrawText(text string, position math.Vec2, colour math.Vec4, scale float32, fontID uint32, dst []layout.TextData, align TextAlign) ([]layout.TextData, error) {
	if r.fonts == nil {
		return dst, core.ErrNotInitialized
	}
	f, ok := r.fonts.Get(fontID)
	if !ok {
		return dst, fmt.Errorf("font %d is not loaded", fontID)
	}
	return LayoutText(f, fontID, text, position, colour, scale, align, dst), nil
}

func (r *Renderer) MeasureText(text string, scale float32, fontID uint32) (math.Vec2, error) {
	if r.fonts == nil {
		return math.Vec2{}, core.ErrNotInitialized
	}
	f, ok := r.fonts.Get(fontID)
	if !ok {
		return math.Vec2{}, fmt.Errorf("font %d is not loaded", fontID)
	}
	return MeasureText(f, text, scale), nil
}

// Shutdown waits for the device and releases every object it created.
func (r *Renderer) Shutdown() error {
	if r.state == StateDestroyed {
		return nil
	}
	var err error
	if r.device != nil {
		err = r.DeviceWait()
	}
	r.release()
	r.state = StateDestroyed
	r.logger.Info("renderer shut down")
	return err
}

// release destroys whatever exists, in reverse creation order.
func (r *Renderer) release() {
	if r.assets != nil {
		for _, id := range r.watches {
			r.assets.Unwatch(id)
		}
		r.watches = nil
	}
	for _, f := range r.frames {
		r.destroyFrame(f)
	}
	r.frames = nil
	if r.pipelines != nil {
		r.pipelines.Destroy()
		r.pipelines = nil
	}
	if r.fonts != nil {
		r.fonts.Destroy()
		r.fonts = nil
	}
	if r.textures != nil {
		r.textures.Destroy()
		r.textures = nil
	}
	if r.jobs != nil {
		_ = r.jobs.Shutdown()
		r.jobs = nil
	}
	if r.sampler != nil {
		r.sampler.Destroy()
		r.sampler = nil
	}
	if r.buffers != nil {
		r.buffers.DestroyBuffer(r.quadVertices)
		r.buffers.DestroyBuffer(r.quadIndices)
		r.quadVertices, r.quadIndices = nil, nil
	}
	r.destroyFramebuffers()
	if r.renderPass != nil {
		r.renderPass.Destroy()
		r.renderPass = nil
	}
	if r.queue != nil {
		r.queue.Destroy()
		r.queue = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	if r.buffers != nil {
		r.buffers.Destroy()
		r.buffers = nil
	}
	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}
	r.imagesInFlight = nil
	r.pool = nil
}
