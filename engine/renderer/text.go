package renderer

import (
	"strings"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// lineWidth is the pen advance of one line, including kerning.
func lineWidth(f *Font, line string, scale float32) float32 {
	var w float32
	prev := rune(-1)
	for _, r := range line {
		g, ok := f.Glyph(r)
		if !ok {
			prev = -1
			continue
		}
		if prev >= 0 {
			w += f.Kerning(prev, r) * scale
		}
		w += g.Advance * scale
		prev = r
	}
	return w
}

func lineStart(f *Font, line string, x, scale float32, align TextAlign) float32 {
	switch align {
	case AlignCenter:
		return x - lineWidth(f, line, scale)/2
	case AlignRight:
		return x - lineWidth(f, line, scale)
	}
	return x
}

// LayoutText appends one TextData per visible glyph of text to dst.
// Coordinates are in pixels with y pointing down, pos is the baseline origin
// of the first line and scale is the em size in pixels.
func LayoutText(f *Font, fontIndex uint32, text string, pos math.Vec2, colour math.Vec4, scale float32, align TextAlign, dst []layout.TextData) []layout.TextData {
	lines := strings.Split(text, "\n")
	var pxRange float32
	if f.Type == loaders.FontTypeMSDF && f.GlyphSize > 0 {
		pxRange = f.DistanceRange * scale / f.GlyphSize
	}
	rgba := [4]float32{colour.X, colour.Y, colour.Z, colour.W}

	y := pos.Y
	for i, line := range lines {
		if i > 0 {
			y += f.LineHeight * scale
		}
		x := lineStart(f, line, pos.X, scale, align)
		prev := rune(-1)
		for _, r := range line {
			g, ok := f.Glyph(r)
			if !ok {
				prev = -1
				continue
			}
			if prev >= 0 {
				x += f.Kerning(prev, r) * scale
			}
			prev = r
			if !g.Empty {
				left := x + g.Plane.Left*scale
				right := x + g.Plane.Right*scale
				top := y - g.Plane.Top*scale
				bottom := y - g.Plane.Bottom*scale
				dst = append(dst, layout.TextData{
					Position:  [2]float32{(left + right) / 2, (top + bottom) / 2},
					Size:      [2]float32{right - left, bottom - top},
					Colour:    rgba,
					UVRect:    g.UV,
					FontIndex: fontIndex,
					PxRange:   pxRange,
				})
			}
			x += g.Advance * scale
		}
	}
	return dst
}

// MeasureText returns the width of the widest line and the total height of
// text at scale.
func MeasureText(f *Font, text string, scale float32) math.Vec2 {
	lines := strings.Split(text, "\n")
	var w float32
	for _, line := range lines {
		w = max(w, lineWidth(f, line, scale))
	}
	return math.Vec2{X: w, Y: f.LineHeight * scale * float32(len(lines))}
}
