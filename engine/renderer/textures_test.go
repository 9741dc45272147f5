package renderer

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func solid(w, h int, c color.RGBA) []byte {
	out := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		out = append(out, c.R, c.G, c.B, c.A)
	}
	return out
}

func TestLoadTextureUploadsPixels(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	red := color.RGBA{R: 255, A: 255}
	path := filepath.Join(t.TempDir(), "red.png")
	writePNG(t, path, 4, 2, red)

	gen := g.r.textures.Generation()
	id, err := g.r.LoadTexture(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id, "slot 0 holds the default texture")
	assert.Greater(t, g.r.textures.Generation(), gen)
	require.NoError(t, g.r.DeviceWait())

	tex, ok := g.r.textures.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint32(4), tex.Width)
	assert.Equal(t, uint32(2), tex.Height)
	assert.Equal(t, solid(4, 2, red), headless.Texels(tex.Image))
	assert.Equal(t, solid(1, 1, color.RGBA{255, 255, 255, 255}), headless.Texels(g.r.textures.Default().Image))

	_, err = g.r.LoadTexture(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
	g.shutdown(t)
}

func TestTextureSlotsAreBounded(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	dir := t.TempDir()
	for i := 1; i < int(testConfig().MaxTextures); i++ {
		p := filepath.Join(dir, "t"+string(rune('a'+i))+".png")
		writePNG(t, p, 1, 1, color.RGBA{uint8(i), 0, 0, 255})
		_, err := g.r.LoadTexture(p)
		require.NoError(t, err)
	}
	extra := filepath.Join(dir, "extra.png")
	writePNG(t, extra, 1, 1, color.RGBA{A: 255})
	_, err := g.r.LoadTexture(extra)
	assert.Error(t, err, "every slot is taken")

	require.NoError(t, g.r.DeviceWait())
	require.NoError(t, g.r.textures.Unload(2))
	assert.Error(t, g.r.textures.Unload(0))
	assert.Error(t, g.r.textures.Unload(2))
	id, err := g.r.LoadTexture(extra)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id, "released slots are reused")
	g.shutdown(t)
}

func TestLoadTexturesDecodesInParallel(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	dir := t.TempDir()
	colours := []color.RGBA{{R: 255, A: 255}, {G: 255, A: 255}}
	paths := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "missing.png"),
		filepath.Join(dir, "b.png"),
	}
	writePNG(t, paths[0], 2, 1, colours[0])
	writePNG(t, paths[2], 1, 2, colours[1])

	ids, err := g.r.LoadTextures(paths...)
	assert.Error(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, []uint32{1, 0, 2}, ids, "uploads keep the order of paths")

	require.NoError(t, g.r.DeviceWait())
	a, ok := g.r.textures.Get(ids[0])
	require.True(t, ok)
	assert.Equal(t, solid(2, 1, colours[0]), headless.Texels(a.Image))
	b, ok := g.r.textures.Get(ids[2])
	require.True(t, ok)
	assert.Equal(t, solid(1, 2, colours[1]), headless.Texels(b.Image))
	g.shutdown(t)
}

func TestDirtyTextureReloadsBeforeFrame(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	path := filepath.Join(t.TempDir(), "swap.png")
	writePNG(t, path, 2, 2, color.RGBA{R: 255, A: 255})
	id, err := g.r.LoadTexture(path)
	require.NoError(t, err)
	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), quadsN(4), nil, nil))

	blue := color.RGBA{B: 255, A: 255}
	writePNG(t, path, 2, 2, blue)
	gen := g.r.textures.Generation()
	g.r.textures.MarkDirty(id)
	assert.True(t, g.r.textures.Dirty())

	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), quadsN(4), nil, nil))
	assert.False(t, g.r.textures.Dirty())
	assert.Greater(t, g.r.textures.Generation(), gen)
	require.NoError(t, g.r.DeviceWait())
	tex, ok := g.r.textures.Get(id)
	require.True(t, ok)
	assert.Equal(t, solid(2, 2, blue), headless.Texels(tex.Image))
	assert.Empty(t, g.device().Hazards())
	g.shutdown(t)
}

func TestFailedReloadKeepsTexture(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	path := filepath.Join(t.TempDir(), "broken.png")
	writePNG(t, path, 1, 1, color.RGBA{G: 255, A: 255})
	id, err := g.r.LoadTexture(path)
	require.NoError(t, err)
	before, _ := g.r.textures.Get(id)

	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))
	g.r.textures.MarkDirty(id)
	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), nil, nil, nil))

	after, ok := g.r.textures.Get(id)
	require.True(t, ok)
	assert.Same(t, before, after)
	g.shutdown(t)
}

func TestLoadAtlasNormalizesFrames(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	dir := t.TempDir()
	img := filepath.Join(dir, "sheet.png")
	writePNG(t, img, 4, 2, color.RGBA{A: 255})
	atlasPath := filepath.Join(dir, "sheet.json")
	require.NoError(t, os.WriteFile(atlasPath, []byte(`{"image": "sheet.png", "frames": {
		"left": {"x": 0, "y": 0, "w": 2, "h": 2},
		"right": {"x": 2, "y": 0, "w": 2, "h": 2}}}`), 0o644))

	id, atlas, err := g.r.LoadAtlas(img, atlasPath)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, [4]float32{0, 0, 0.5, 1}, atlas.Frames["left"].UV)
	assert.Equal(t, [4]float32{0.5, 0, 1, 1}, atlas.Frames["right"].UV)
	g.shutdown(t)
}

const msdfFixture = `{
	"atlas": {"type": "msdf", "distanceRange": 4, "size": 32, "width": 128, "height": 64, "yOrigin": "bottom"},
	"metrics": {"emSize": 2, "lineHeight": 2.4, "ascender": 1.8, "descender": -0.4},
	"glyphs": [
		{"unicode": 32, "advance": 0.5},
		{"unicode": 63, "advance": 1.2, "planeBounds": {"left": 0, "bottom": 0, "right": 1, "top": 1.4},
			"atlasBounds": {"left": 20.5, "bottom": 10.5, "right": 40.5, "top": 40.5}},
		{"unicode": 65, "advance": 1.2, "planeBounds": {"left": 0, "bottom": 0, "right": 1, "top": 1.4},
			"atlasBounds": {"left": 0.5, "bottom": 10.5, "right": 20.5, "top": 40.5}}
	],
	"kerning": [{"unicode1": 65, "unicode2": 65, "advance": -0.1}]
}`

func loadFixtureFont(t *testing.T, g *rig) uint32 {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "font.png")
	writePNG(t, img, 128, 64, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	meta := filepath.Join(dir, "font.json")
	require.NoError(t, os.WriteFile(meta, []byte(msdfFixture), 0o644))
	id, err := g.r.LoadMSDFFont(img, meta)
	require.NoError(t, err)
	return id
}

func TestMSDFFontDrawsText(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	id := loadFixtureFont(t, g)

	size, err := g.r.MeasureText("AA", 10, id)
	require.NoError(t, err)
	assert.InDelta(t, 11.5, size.X, 1e-4)
	assert.InDelta(t, 12, size.Y, 1e-4)

	glyphs, err := g.r.DrawText("A A", math.Vec2{X: 10, Y: 50}, math.Vec4{X: 1, Y: 1, Z: 1, W: 1}, 10, id, nil, AlignLeft)
	require.NoError(t, err)
	require.Len(t, glyphs, 2, "the space has no quad")
	for _, gl := range glyphs {
		assert.Equal(t, id, gl.FontIndex)
		assert.InDelta(t, 1.25, gl.PxRange, 1e-5)
	}
	assert.InDelta(t, 8.5, glyphs[1].Position[0]-glyphs[0].Position[0], 1e-4)

	g.device().ResetDrawCalls()
	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), nil, glyphs, nil))
	require.NoError(t, g.r.DeviceWait())
	draws := drawsOf(g.device().DrawCalls(), "text")
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(2), draws[0].InstanceCount)
	assert.Equal(t, uint32(2), g.r.Statistics().GlyphsDrawn)

	_, err = g.r.DrawText("A", math.Vec2{}, math.Vec4{}, 10, id+1, nil, AlignLeft)
	assert.Error(t, err, "unknown font")
	g.shutdown(t)
}

func TestDirtyFontReloads(t *testing.T) {
	g := newRig(t, 320, 240, nil)
	id := loadFixtureFont(t, g)
	before, ok := g.r.fonts.Get(id)
	require.True(t, ok)
	gen := g.r.fonts.Generation()

	g.r.fonts.MarkDirty(id)
	require.NoError(t, g.r.Render(dt, uniformFor(320, 240), nil, nil, nil))
	after, ok := g.r.fonts.Get(id)
	require.True(t, ok)
	assert.NotSame(t, before, after)
	assert.Greater(t, g.r.fonts.Generation(), gen)
	g.shutdown(t)
}
