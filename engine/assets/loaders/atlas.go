package loaders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AtlasFrame is a named sub-rectangle of an atlas image in pixels, with
// the matching normalized UV rectangle.
type AtlasFrame struct {
	X, Y, W, H int
	UV         [4]float32
}

type AtlasData struct {
	Image  string
	Width  uint32
	Height uint32
	Frames map[string]AtlasFrame
}

type atlasFile struct {
	Image  string `json:"image"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Frames map[string]struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"frames"`
}

type AtlasLoader struct{}

func (al *AtlasLoader) Load(path string) (*Resource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var af atlasFile
	if err := json.Unmarshal(raw, &af); err != nil {
		return nil, fmt.Errorf("parsing atlas %s: %w", path, err)
	}
	data := &AtlasData{Image: af.Image, Width: af.Width, Height: af.Height, Frames: make(map[string]AtlasFrame, len(af.Frames))}
	for name, f := range af.Frames {
		data.Frames[name] = AtlasFrame{X: f.X, Y: f.Y, W: f.W, H: f.H}
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Type:     ResourceTypeAtlas,
		Data:     data,
	}, nil
}

// Normalize fills every frame's UV rectangle for an atlas image of the given
// size. Sizes declared in the file win over the image size when present.
func (a *AtlasData) Normalize(imageWidth, imageHeight uint32) error {
	if a.Width == 0 {
		a.Width = imageWidth
	}
	if a.Height == 0 {
		a.Height = imageHeight
	}
	if a.Width == 0 || a.Height == 0 {
		return fmt.Errorf("atlas has zero size")
	}
	w, h := float32(a.Width), float32(a.Height)
	for name, f := range a.Frames {
		if f.X < 0 || f.Y < 0 || f.X+f.W > int(a.Width) || f.Y+f.H > int(a.Height) {
			return fmt.Errorf("atlas frame %q lies outside the %dx%d image", name, a.Width, a.Height)
		}
		f.UV = [4]float32{float32(f.X) / w, float32(f.Y) / h, float32(f.X+f.W) / w, float32(f.Y+f.H) / h}
		a.Frames[name] = f
	}
	return nil
}
