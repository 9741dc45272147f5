package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const msdfJSON = `{
  "atlas": {"type": "msdf", "distanceRange": 4, "size": 32, "width": 128, "height": 64, "yOrigin": "bottom"},
  "metrics": {"emSize": 2, "lineHeight": 2.4, "ascender": 1.8, "descender": -0.4},
  "glyphs": [
    {"unicode": 32, "advance": 0.5},
    {"unicode": 65, "advance": 1.2,
     "planeBounds": {"left": 0, "bottom": 0, "right": 1, "top": 1.4},
     "atlasBounds": {"left": 0.5, "bottom": 10.5, "right": 20.5, "top": 40.5}}
  ],
  "kerning": [{"unicode1": 65, "unicode2": 65, "advance": -0.1}]
}`

func TestParseMSDFMetadataScalesToEm(t *testing.T) {
	fd, err := ParseMSDFMetadata([]byte(msdfJSON), "test.json")
	require.NoError(t, err)

	assert.Equal(t, FontTypeMSDF, fd.Type)
	assert.Equal(t, "test.json", fd.Face)
	assert.InDelta(t, 1.2, fd.LineHeight, 1e-6)
	assert.InDelta(t, 0.9, fd.Ascender, 1e-6)
	assert.Equal(t, float32(4), fd.DistanceRange)
	assert.Equal(t, uint32(128), fd.AtlasWidth)
	assert.True(t, fd.YOriginBottom)

	require.Len(t, fd.Glyphs, 2)
	assert.True(t, fd.Glyphs[0].Empty)
	assert.InDelta(t, 0.25, fd.Glyphs[0].Advance, 1e-6)

	a := fd.Glyphs[1]
	assert.False(t, a.Empty)
	assert.InDelta(t, 0.6, a.Advance, 1e-6)
	assert.InDelta(t, 0.7, a.PlaneBounds.Top, 1e-6)
	assert.Equal(t, float32(40.5), a.AtlasBounds.Top)

	require.Len(t, fd.Kernings, 1)
	assert.InDelta(t, -0.05, fd.Kernings[0].Advance, 1e-6)
}

func TestParseMSDFMetadataRejectsIncompleteFiles(t *testing.T) {
	_, err := ParseMSDFMetadata([]byte(`{"atlas": {"width": 0}}`), "x")
	assert.Error(t, err)
	_, err = ParseMSDFMetadata([]byte(`{"atlas": {"width": 4, "height": 4}}`), "x")
	assert.ErrorContains(t, err, "no glyphs")
	_, err = ParseMSDFMetadata([]byte(`not json`), "x")
	assert.Error(t, err)
}

func TestLoadImageConvertsToRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	p := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := LoadImage(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	require.Len(t, img.Pixels, 3*2*4)
	off := (1*3 + 2) * 4
	assert.Equal(t, []byte{10, 20, 30, 255}, img.Pixels[off:off+4])
}

func TestAtlasLoaderNormalizesFrames(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sprites.json")
	require.NoError(t, os.WriteFile(p, []byte(`{
		"image": "sprites.png",
		"frames": {"ship": {"x": 0, "y": 0, "w": 32, "h": 16}, "rock": {"x": 32, "y": 16, "w": 32, "h": 48}}
	}`), 0o644))

	res, err := (&AtlasLoader{}).Load(p)
	require.NoError(t, err)
	atlas := res.Data.(*AtlasData)
	require.NoError(t, atlas.Normalize(64, 64))

	assert.Equal(t, [4]float32{0, 0, 0.5, 0.25}, atlas.Frames["ship"].UV)
	assert.Equal(t, [4]float32{0.5, 0.25, 1, 1}, atlas.Frames["rock"].UV)

	atlas.Frames["bad"] = AtlasFrame{X: 60, Y: 0, W: 10, H: 10}
	assert.Error(t, atlas.Normalize(64, 64))
}
