package renderer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Glyph is a glyph's metrics in em units and its normalized atlas UVs.
type Glyph struct {
	Advance float32
	Plane   loaders.Bounds
	// UV is u0, v0, u1, v1 with v0 at the top of the glyph.
	UV    [4]float32
	Empty bool
}

// Font is a loaded atlas with its glyph and kerning tables.
type Font struct {
	Name          string
	Type          loaders.FontType
	Texture       *Texture
	LineHeight    float32
	Ascender      float32
	Descender     float32
	DistanceRange float32
	GlyphSize     float32

	glyphs  map[rune]Glyph
	kerning map[[2]rune]float32
}

func newFont(data *loaders.FontData, tex *Texture) *Font {
	w, h := float32(data.AtlasWidth), float32(data.AtlasHeight)
	if w == 0 || h == 0 {
		w, h = float32(tex.Width), float32(tex.Height)
	}
	f := &Font{
		Name:          data.Face,
		Type:          data.Type,
		Texture:       tex,
		LineHeight:    data.LineHeight,
		Ascender:      data.Ascender,
		Descender:     data.Descender,
		DistanceRange: data.DistanceRange,
		GlyphSize:     data.GlyphSize,
		glyphs:        make(map[rune]Glyph, len(data.Glyphs)),
		kerning:       make(map[[2]rune]float32, len(data.Kernings)),
	}
	for _, g := range data.Glyphs {
		glyph := Glyph{Advance: g.Advance, Plane: g.PlaneBounds, Empty: g.Empty}
		if !g.Empty {
			a := g.AtlasBounds
			v0, v1 := a.Top/h, a.Bottom/h
			if data.YOriginBottom {
				v0, v1 = 1-a.Top/h, 1-a.Bottom/h
			}
			glyph.UV = [4]float32{a.Left / w, v0, a.Right / w, v1}
		}
		f.glyphs[g.Codepoint] = glyph
	}
	for _, k := range data.Kernings {
		f.kerning[[2]rune{k.Codepoint0, k.Codepoint1}] += k.Advance
	}
	return f
}

// Glyph returns r's glyph, or the '?' glyph when the font lacks r.
func (f *Font) Glyph(r rune) (Glyph, bool) {
	if g, ok := f.glyphs[r]; ok {
		return g, true
	}
	g, ok := f.glyphs['?']
	return g, ok
}

// Kerning returns the extra advance, in em, between a and b.
func (f *Font) Kerning(a, b rune) float32 {
	return f.kerning[[2]rune{a, b}]
}

type fontSource struct {
	imagePath    string
	metadataPath string
	bitmap       bool
}

// FontManager owns loaded fonts and their atlas textures.
type FontManager struct {
	buffers    *BufferManager
	logger     *log.Logger
	load       ImageLoadFunc
	table      *core.IdentifierTable[*Font]
	sources    map[uint32]fontSource
	generation uint64
	pending    dirtySet
}

func NewFontManager(buffers *BufferManager, max uint32, load ImageLoadFunc, logger *log.Logger) *FontManager {
	return &FontManager{
		buffers: buffers,
		logger:  logger,
		load:    load,
		table:   core.NewIdentifierTable[*Font](max),
		sources: make(map[uint32]fontSource),
	}
}

// LoadMSDF loads a multi-channel signed distance field atlas and its
// msdf-atlas-gen metadata.
func (fm *FontManager) LoadMSDF(imagePath, metadataPath string) (uint32, error) {
	return fm.add(fontSource{imagePath: imagePath, metadataPath: metadataPath})
}

// LoadBitmap loads an AngelCode .fnt font. Its first page is the atlas.
func (fm *FontManager) LoadBitmap(fntPath string) (uint32, error) {
	return fm.add(fontSource{metadataPath: fntPath, bitmap: true})
}

func (fm *FontManager) add(src fontSource) (uint32, error) {
	font, err := fm.build(src)
	if err != nil {
		return 0, err
	}
	id, err := fm.table.Acquire(font)
	if err != nil {
		fm.buffers.DestroyTexture(font.Texture)
		return 0, err
	}
	fm.sources[id] = src
	fm.generation++
	fm.logger.Debug("font loaded", "id", id, "face", font.Name, "glyphs", len(font.glyphs))
	return id, nil
}

func (fm *FontManager) build(src fontSource) (*Font, error) {
	var (
		data *loaders.FontData
		err  error
	)
	imagePath := src.imagePath
	if src.bitmap {
		data, err = loaders.LoadBitmapFont(src.metadataPath)
		if err == nil {
			if len(data.Pages) == 0 {
				return nil, fmt.Errorf("bitmap font %s has no pages", src.metadataPath)
			}
			imagePath = filepath.Join(filepath.Dir(src.metadataPath), data.Pages[0])
		}
	} else {
		data, err = loaders.LoadMSDFMetadata(src.metadataPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading font %s: %w", src.metadataPath, err)
	}

	img, err := fm.load(imagePath)
	if err != nil {
		return nil, fmt.Errorf("loading font atlas %s: %w", imagePath, err)
	}
	tex, err := fm.buffers.CreateTexture(data.Face, img.Width, img.Height, img.Pixels)
	if err != nil {
		return nil, err
	}
	return newFont(data, tex), nil
}

// Paths returns the files a font was loaded from.
func (fm *FontManager) Paths(id uint32) []string {
	src, ok := fm.sources[id]
	if !ok {
		return nil
	}
	if src.bitmap {
		return []string{src.metadataPath}
	}
	return []string{src.imagePath, src.metadataPath}
}

func (fm *FontManager) Get(id uint32) (*Font, bool) {
	return fm.table.Get(id)
}

// Images returns count atlas descriptors, using fallback for empty slots.
func (fm *FontManager) Images(count uint32, fallback *Texture) ([]driver.Image, []driver.Sampler) {
	return slotImages(count, fallback, func(i uint32) *Texture {
		if f, ok := fm.table.Get(i); ok {
			return f.Texture
		}
		return nil
	})
}

func (fm *FontManager) Generation() uint64 {
	return fm.generation
}

// MarkDirty schedules id for reload. It is safe to call from any goroutine.
func (fm *FontManager) MarkDirty(id uint32) {
	fm.pending.mark(id)
}

func (fm *FontManager) Dirty() bool {
	return fm.pending.dirty.Load()
}

// ReloadDirty rebuilds every font marked dirty. The device must be idle.
func (fm *FontManager) ReloadDirty() (int, error) {
	var errs []error
	n := 0
	for id := range fm.pending.take() {
		src, ok := fm.sources[id]
		if !ok {
			continue
		}
		font, err := fm.build(src)
		if err != nil {
			fm.logger.Error("font reload failed", "id", id, "err", err)
			errs = append(errs, err)
			continue
		}
		old, _ := fm.table.Get(id)
		if err := fm.table.Set(id, font); err != nil {
			fm.buffers.DestroyTexture(font.Texture)
			errs = append(errs, err)
			continue
		}
		fm.buffers.DestroyTexture(old.Texture)
		n++
	}
	if n > 0 {
		fm.generation++
	}
	return n, errors.Join(errs...)
}

func (fm *FontManager) Destroy() {
	fm.table.Each(func(id uint32, f *Font) {
		fm.buffers.DestroyTexture(f.Texture)
		_ = fm.table.Release(id)
	})
	fm.sources = make(map[uint32]fontSource)
}
