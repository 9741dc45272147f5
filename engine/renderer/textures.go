package renderer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// ImageLoadFunc decodes an image file into RGBA8 pixels.
type ImageLoadFunc func(path string) (*loaders.ImageData, error)

// dirtySet collects ids marked from any goroutine until the render loop
// takes them.
type dirtySet struct {
	mu    sync.Mutex
	ids   map[uint32]struct{}
	dirty atomic.Bool
}

func (d *dirtySet) mark(id uint32) {
	d.mu.Lock()
	if d.ids == nil {
		d.ids = make(map[uint32]struct{})
	}
	d.ids[id] = struct{}{}
	d.mu.Unlock()
	d.dirty.Store(true)
}

func (d *dirtySet) take() map[uint32]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.ids
	d.ids = nil
	d.dirty.Store(false)
	return ids
}

// TextureManager owns every sampled texture. Slot 0 always holds a 1x1
// white texture that stands in for unused slots.
type TextureManager struct {
	buffers    *BufferManager
	logger     *log.Logger
	load       ImageLoadFunc
	jobs       *core.JobSystem
	table      *core.IdentifierTable[*Texture]
	paths      map[uint32]string
	generation uint64
	pending    dirtySet
}

// NewTextureManager creates the manager and its default texture. jobs may be
// nil, in which case images are decoded on the calling goroutine.
func NewTextureManager(buffers *BufferManager, max uint32, load ImageLoadFunc, jobs *core.JobSystem, logger *log.Logger) (*TextureManager, error) {
	if max == 0 {
		return nil, errors.New("texture manager needs at least one slot")
	}
	white, err := buffers.CreateTexture(uuid.NewString(), 1, 1, []byte{255, 255, 255, 255})
	if err != nil {
		return nil, err
	}
	tm := &TextureManager{
		buffers: buffers,
		logger:  logger,
		load:    load,
		jobs:    jobs,
		table:   core.NewIdentifierTable[*Texture](max),
		paths:   make(map[uint32]string),
	}
	if err := tm.table.Set(0, white); err != nil {
		buffers.DestroyTexture(white)
		return nil, err
	}
	return tm, nil
}

// Load decodes path and uploads it into a free slot.
func (tm *TextureManager) Load(path string) (uint32, error) {
	img, err := tm.load(path)
	if err != nil {
		return 0, fmt.Errorf("loading texture %s: %w", path, err)
	}
	return tm.add(path, img)
}

// LoadMany decodes paths in parallel and uploads them in order. ids[i] is
// zero when paths[i] failed.
func (tm *TextureManager) LoadMany(paths []string) ([]uint32, error) {
	images, errs := tm.decode(paths)
	ids := make([]uint32, len(paths))
	for i, path := range paths {
		if errs[i] != nil {
			continue
		}
		if ids[i], errs[i] = tm.add(path, images[i]); errs[i] != nil {
			tm.logger.Error("texture upload failed", "path", path, "err", errs[i])
		}
	}
	return ids, errors.Join(errs...)
}

func (tm *TextureManager) add(path string, img *loaders.ImageData) (uint32, error) {
	tex, err := tm.upload(path, img)
	if err != nil {
		return 0, err
	}
	id, err := tm.table.Acquire(tex)
	if err != nil {
		tm.buffers.DestroyTexture(tex)
		return 0, err
	}
	tm.paths[id] = path
	tm.generation++
	tm.logger.Debug("texture loaded", "id", id, "path", path, "width", tex.Width, "height", tex.Height)
	return id, nil
}

// decode runs the image loader for every path, on the job system when
// there is one.
func (tm *TextureManager) decode(paths []string) ([]*loaders.ImageData, []error) {
	images := make([]*loaders.ImageData, len(paths))
	fns := make([]func() error, len(paths))
	for i, path := range paths {
		fns[i] = func() error {
			img, err := tm.load(path)
			if err != nil {
				return fmt.Errorf("loading texture %s: %w", path, err)
			}
			images[i] = img
			return nil
		}
	}
	if tm.jobs == nil {
		errs := make([]error, len(fns))
		for i, fn := range fns {
			errs[i] = fn()
		}
		return images, errs
	}
	return images, tm.jobs.RunAll(fns...)
}

func (tm *TextureManager) upload(path string, img *loaders.ImageData) (*Texture, error) {
	return tm.buffers.CreateTexture(filepath.Base(path), img.Width, img.Height, img.Pixels)
}

func (tm *TextureManager) Get(id uint32) (*Texture, bool) {
	return tm.table.Get(id)
}

func (tm *TextureManager) Default() *Texture {
	tex, _ := tm.table.Get(0)
	return tex
}

// Unload frees id's slot. The caller must make sure no pending frame still
// samples it.
func (tm *TextureManager) Unload(id uint32) error {
	if id == 0 {
		return errors.New("the default texture cannot be unloaded")
	}
	tex, ok := tm.table.Get(id)
	if !ok {
		return fmt.Errorf("texture %d is not loaded", id)
	}
	if err := tm.table.Release(id); err != nil {
		return err
	}
	tm.buffers.DestroyTexture(tex)
	delete(tm.paths, id)
	tm.generation++
	return nil
}

// Images returns count image and sampler descriptors. Empty slots get the
// default texture.
func (tm *TextureManager) Images(count uint32) ([]driver.Image, []driver.Sampler) {
	return slotImages(count, tm.Default(), func(i uint32) *Texture {
		tex, _ := tm.table.Get(i)
		return tex
	})
}

func slotImages(count uint32, fallback *Texture, get func(uint32) *Texture) ([]driver.Image, []driver.Sampler) {
	images := make([]driver.Image, count)
	samplers := make([]driver.Sampler, count)
	for i := uint32(0); i < count; i++ {
		tex := get(i)
		if tex == nil {
			tex = fallback
		}
		images[i] = tex.Image
		samplers[i] = tex.Sampler
	}
	return images, samplers
}

// Generation changes whenever the set of textures changes, which means
// descriptor sets must be rewritten.
func (tm *TextureManager) Generation() uint64 {
	return tm.generation
}

// MarkDirty schedules id for re-upload. It is safe to call from any
// goroutine.
func (tm *TextureManager) MarkDirty(id uint32) {
	tm.pending.mark(id)
}

func (tm *TextureManager) Dirty() bool {
	return tm.pending.dirty.Load()
}

// ReloadDirty re-uploads every texture marked dirty. The device must be
// idle. A texture that fails to reload keeps its old contents.
func (tm *TextureManager) ReloadDirty() (int, error) {
	var (
		ids   []uint32
		paths []string
	)
	for id := range tm.pending.take() {
		if path, ok := tm.paths[id]; ok {
			ids = append(ids, id)
			paths = append(paths, path)
		}
	}
	images, decodeErrs := tm.decode(paths)

	var errs []error
	n := 0
	for i, id := range ids {
		if decodeErrs[i] != nil {
			tm.logger.Error("texture reload failed", "id", id, "path", paths[i], "err", decodeErrs[i])
			errs = append(errs, decodeErrs[i])
			continue
		}
		tex, err := tm.upload(paths[i], images[i])
		if err != nil {
			tm.logger.Error("texture reload failed", "id", id, "path", paths[i], "err", err)
			errs = append(errs, err)
			continue
		}
		old, _ := tm.table.Get(id)
		if err := tm.table.Set(id, tex); err != nil {
			tm.buffers.DestroyTexture(tex)
			errs = append(errs, err)
			continue
		}
		tm.buffers.DestroyTexture(old)
		n++
	}
	if n > 0 {
		tm.generation++
	}
	return n, errors.Join(errs...)
}

func (tm *TextureManager) Destroy() {
	tm.table.Each(func(id uint32, tex *Texture) {
		tm.buffers.DestroyTexture(tex)
		_ = tm.table.Release(id)
	})
	tm.paths = make(map[uint32]string)
}
