package loaders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// msdfMetadata mirrors the JSON layout written by msdf-atlas-gen.
type msdfMetadata struct {
	Atlas struct {
		Type          string  `json:"type"`
		DistanceRange float32 `json:"distanceRange"`
		Size          float32 `json:"size"`
		Width         uint32  `json:"width"`
		Height        uint32  `json:"height"`
		YOrigin       string  `json:"yOrigin"`
	} `json:"atlas"`
	Name    string `json:"name"`
	Metrics struct {
		EmSize     float32 `json:"emSize"`
		LineHeight float32 `json:"lineHeight"`
		Ascender   float32 `json:"ascender"`
		Descender  float32 `json:"descender"`
	} `json:"metrics"`
	Glyphs []struct {
		Unicode     rune    `json:"unicode"`
		Advance     float32 `json:"advance"`
		PlaneBounds *Bounds `json:"planeBounds"`
		AtlasBounds *Bounds `json:"atlasBounds"`
	} `json:"glyphs"`
	Kerning []struct {
		Unicode1 rune    `json:"unicode1"`
		Unicode2 rune    `json:"unicode2"`
		Advance  float32 `json:"advance"`
	} `json:"kerning"`
}

type MSDFFontLoader struct{}

func (ml *MSDFFontLoader) Load(path string) (*Resource, error) {
	fd, err := LoadMSDFMetadata(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     fd.Face,
		FullPath: path,
		Type:     ResourceTypeMSDFFont,
		Data:     fd,
	}, nil
}

// LoadMSDFMetadata parses msdf-atlas-gen JSON metadata. Metrics are scaled
// to em units when the file was generated with an em size other than one.
func LoadMSDFMetadata(path string) (*FontData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMSDFMetadata(raw, filepath.Base(path))
}

func ParseMSDFMetadata(raw []byte, name string) (*FontData, error) {
	var md msdfMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("parsing msdf metadata %s: %w", name, err)
	}
	if md.Atlas.Width == 0 || md.Atlas.Height == 0 {
		return nil, fmt.Errorf("msdf metadata %s: atlas size is missing", name)
	}
	if len(md.Glyphs) == 0 {
		return nil, fmt.Errorf("msdf metadata %s: no glyphs", name)
	}
	em := md.Metrics.EmSize
	if em == 0 {
		em = 1
	}
	face := md.Name
	if face == "" {
		face = name
	}

	fd := &FontData{
		Type:          FontTypeMSDF,
		Face:          face,
		LineHeight:    md.Metrics.LineHeight / em,
		Ascender:      md.Metrics.Ascender / em,
		Descender:     md.Metrics.Descender / em,
		DistanceRange: md.Atlas.DistanceRange,
		GlyphSize:     md.Atlas.Size,
		AtlasWidth:    md.Atlas.Width,
		AtlasHeight:   md.Atlas.Height,
		YOriginBottom: md.Atlas.YOrigin != "top",
		Glyphs:        make([]FontGlyph, 0, len(md.Glyphs)),
		Kernings:      make([]FontKerning, 0, len(md.Kerning)),
	}
	for _, g := range md.Glyphs {
		glyph := FontGlyph{Codepoint: g.Unicode, Advance: g.Advance / em}
		if g.PlaneBounds == nil || g.AtlasBounds == nil {
			glyph.Empty = true
		} else {
			glyph.PlaneBounds = Bounds{
				Left:   g.PlaneBounds.Left / em,
				Bottom: g.PlaneBounds.Bottom / em,
				Right:  g.PlaneBounds.Right / em,
				Top:    g.PlaneBounds.Top / em,
			}
			glyph.AtlasBounds = *g.AtlasBounds
		}
		fd.Glyphs = append(fd.Glyphs, glyph)
	}
	for _, k := range md.Kerning {
		fd.Kernings = append(fd.Kernings, FontKerning{
			Codepoint0: k.Unicode1,
			Codepoint1: k.Unicode2,
			Advance:    k.Advance / em,
		})
	}
	return fd, nil
}
