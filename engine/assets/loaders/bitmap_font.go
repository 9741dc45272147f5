package loaders

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fzipp/bmfont"
)

type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (*Resource, error) {
	fd, err := LoadBitmapFont(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     fd.Face,
		FullPath: path,
		Type:     ResourceTypeBitmapFont,
		Data:     fd,
	}, nil
}

// LoadBitmapFont imports an AngelCode .fnt file. Pixel metrics are divided
// by the font size so bitmap and MSDF fonts share one layout path.
func LoadBitmapFont(path string) (*FontData, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, err
	}
	desc := font.Descriptor

	size := float32(desc.Info.Size)
	if size < 0 {
		// Negative sizes mean the cell height was matched instead of the
		// character height.
		size = -size
	}
	if size == 0 {
		return nil, fmt.Errorf("bitmap font %s: zero size", filepath.Base(path))
	}
	base := float32(desc.Common.Base)

	out := &FontData{
		Type:        FontTypeBitmap,
		Face:        desc.Info.Face,
		LineHeight:  float32(desc.Common.LineHeight) / size,
		Ascender:    base / size,
		Descender:   -(float32(desc.Common.LineHeight) - base) / size,
		GlyphSize:   size,
		AtlasWidth:  uint32(desc.Common.ScaleW),
		AtlasHeight: uint32(desc.Common.ScaleH),
		Glyphs:      make([]FontGlyph, 0, len(desc.Chars)),
		Kernings:    make([]FontKerning, 0, len(desc.Kerning)),
	}

	pages := make(map[int]string)
	for _, p := range desc.Pages {
		pages[int(p.ID)] = p.File
	}
	for i := 0; i < len(pages); i++ {
		out.Pages = append(out.Pages, pages[i])
	}

	for _, g := range desc.Chars {
		w, h := float32(g.Width), float32(g.Height)
		glyph := FontGlyph{
			Codepoint: rune(g.ID),
			Advance:   float32(g.XAdvance) / size,
			Empty:     g.Width == 0 || g.Height == 0,
		}
		if !glyph.Empty {
			left := float32(g.XOffset) / size
			top := (base - float32(g.YOffset)) / size
			glyph.PlaneBounds = Bounds{
				Left:   left,
				Top:    top,
				Right:  left + w/size,
				Bottom: top - h/size,
			}
			glyph.AtlasBounds = Bounds{
				Left:   float32(g.X),
				Top:    float32(g.Y),
				Right:  float32(g.X) + w,
				Bottom: float32(g.Y) + h,
			}
		}
		out.Glyphs = append(out.Glyphs, glyph)
	}
	sort.Slice(out.Glyphs, func(i, j int) bool { return out.Glyphs[i].Codepoint < out.Glyphs[j].Codepoint })

	for p, k := range desc.Kerning {
		out.Kernings = append(out.Kernings, FontKerning{
			Codepoint0: rune(p.First),
			Codepoint1: rune(p.Second),
			Advance:    float32(k.Amount) / size,
		})
	}
	return out, nil
}
