package loaders

type FontType int

const (
	FontTypeMSDF FontType = iota
	FontTypeBitmap
)

// Bounds is an axis aligned rectangle. For plane bounds the unit is the em
// with y pointing up from the baseline; for atlas bounds the unit is the
// atlas pixel.
type Bounds struct {
	Left   float32 `json:"left"`
	Bottom float32 `json:"bottom"`
	Right  float32 `json:"right"`
	Top    float32 `json:"top"`
}

type FontGlyph struct {
	Codepoint   rune
	Advance     float32
	PlaneBounds Bounds
	AtlasBounds Bounds
	// Empty glyphs, like space, only advance the pen.
	Empty bool
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Advance    float32
}

// FontData holds glyph metrics normalized to em units together with the
// atlas description needed to turn atlas bounds into UVs.
type FontData struct {
	Type          FontType
	Face          string
	LineHeight    float32
	Ascender      float32
	Descender     float32
	DistanceRange float32
	// GlyphSize is the number of atlas pixels per em.
	GlyphSize   float32
	AtlasWidth  uint32
	AtlasHeight uint32
	// YOriginBottom is set when atlas bounds count rows from the bottom.
	YOriginBottom bool
	Glyphs        []FontGlyph
	Kernings      []FontKerning
	// Pages lists atlas image files relative to the metadata file.
	Pages []string
}
