package renderer

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFont() *Font {
	data := &loaders.FontData{
		Type:          loaders.FontTypeMSDF,
		Face:          "test",
		LineHeight:    1.2,
		Ascender:      0.9,
		Descender:     -0.3,
		DistanceRange: 4,
		GlyphSize:     32,
		AtlasWidth:    100,
		AtlasHeight:   100,
		YOriginBottom: true,
		Glyphs: []loaders.FontGlyph{
			{Codepoint: ' ', Advance: 0.25, Empty: true},
			{
				Codepoint:   'A',
				Advance:     0.5,
				PlaneBounds: loaders.Bounds{Left: 0, Bottom: 0, Right: 0.5, Top: 0.7},
				AtlasBounds: loaders.Bounds{Left: 0, Bottom: 60, Right: 50, Top: 100},
			},
			{
				Codepoint:   'V',
				Advance:     0.5,
				PlaneBounds: loaders.Bounds{Left: 0, Bottom: 0, Right: 0.5, Top: 0.7},
				AtlasBounds: loaders.Bounds{Left: 50, Bottom: 60, Right: 100, Top: 100},
			},
			{
				Codepoint:   '?',
				Advance:     0.4,
				PlaneBounds: loaders.Bounds{Left: 0, Bottom: 0, Right: 0.4, Top: 0.7},
				AtlasBounds: loaders.Bounds{Left: 0, Bottom: 0, Right: 40, Top: 40},
			},
		},
		Kernings: []loaders.FontKerning{{Codepoint0: 'A', Codepoint1: 'V', Advance: -0.1}},
	}
	return newFont(data, &Texture{Width: 1, Height: 1})
}

func TestFontNormalizesAtlasBounds(t *testing.T) {
	f := testFont()
	a, ok := f.Glyph('A')
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0, 0, 0.5, 0.4}, a.UV[:], 1e-6)

	q, ok := f.Glyph('Z')
	require.True(t, ok, "missing glyphs fall back to '?'")
	assert.Equal(t, float32(0.4), q.Advance)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.4, 1}, q.UV[:], 1e-6)

	assert.Equal(t, float32(-0.1), f.Kerning('A', 'V'))
	assert.Zero(t, f.Kerning('V', 'A'))
}

func TestLayoutTextPlacesGlyphs(t *testing.T) {
	f := testFont()
	white := math.Vec4{X: 1, Y: 1, Z: 1, W: 1}
	out := LayoutText(f, 1, "A A", math.Vec2{X: 10, Y: 100}, white, 32, AlignLeft, nil)
	require.Len(t, out, 2, "spaces only advance the pen")

	first := out[0]
	assert.InDelta(t, 18, first.Position[0], 1e-4)
	assert.InDelta(t, 88.8, first.Position[1], 1e-4)
	assert.InDelta(t, 16, first.Size[0], 1e-4)
	assert.InDelta(t, 22.4, first.Size[1], 1e-4)
	assert.Equal(t, uint32(1), first.FontIndex)
	assert.InDelta(t, 4, first.PxRange, 1e-6)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, first.Colour)

	// 16 px for the first A plus 8 px for the space.
	assert.InDelta(t, 42, out[1].Position[0], 1e-4)
}

func TestLayoutTextKerningAndLines(t *testing.T) {
	f := testFont()
	var c math.Vec4

	out := LayoutText(f, 0, "AV", math.Vec2{X: 10, Y: 100}, c, 32, AlignLeft, nil)
	require.Len(t, out, 2)
	assert.InDelta(t, 22.8+8, out[1].Position[0], 1e-4)

	out = LayoutText(f, 0, "A\nA", math.Vec2{X: 10, Y: 100}, c, 32, AlignLeft, nil)
	require.Len(t, out, 2)
	assert.InDelta(t, out[0].Position[0], out[1].Position[0], 1e-4)
	assert.InDelta(t, 1.2*32, out[1].Position[1]-out[0].Position[1], 1e-4)
}

func TestLayoutTextAlignment(t *testing.T) {
	f := testFont()
	var c math.Vec4
	pos := math.Vec2{X: 100, Y: 50}

	center := LayoutText(f, 0, "AA", pos, c, 32, AlignCenter, nil)
	require.Len(t, center, 2)
	assert.InDelta(t, 100-16+8, center[0].Position[0], 1e-4)

	right := LayoutText(f, 0, "AA", pos, c, 32, AlignRight, nil)
	require.Len(t, right, 2)
	assert.InDelta(t, 100-8, right[1].Position[0], 1e-4)
}

func TestLayoutTextAppends(t *testing.T) {
	f := testFont()
	dst := []layout.TextData{{FontIndex: 9}}
	dst = LayoutText(f, 0, "AV", math.Vec2{}, math.Vec4{}, 16, AlignLeft, dst)
	require.Len(t, dst, 3)
	assert.Equal(t, uint32(9), dst[0].FontIndex)
}

func TestMeasureText(t *testing.T) {
	f := testFont()
	size := MeasureText(f, "A\nAA", 32)
	assert.InDelta(t, 32, size.X, 1e-4)
	assert.InDelta(t, 2*1.2*32, size.Y, 1e-4)

	bitmap := testFont()
	bitmap.Type = loaders.FontTypeBitmap
	out := LayoutText(bitmap, 0, "A", math.Vec2{}, math.Vec4{}, 32, AlignLeft, nil)
	require.Len(t, out, 1)
	assert.Zero(t, out[0].PxRange)
}
