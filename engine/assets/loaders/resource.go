package loaders

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeImage
	ResourceTypeShader
	ResourceTypeMSDFFont
	ResourceTypeBitmapFont
	ResourceTypeAtlas
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeMSDFFont:
		return "msdf-font"
	case ResourceTypeBitmapFont:
		return "bitmap-font"
	case ResourceTypeAtlas:
		return "atlas"
	}
	return "none"
}

// Resource is a decoded asset. Data holds the loader specific payload:
// *ImageData, []byte, *FontData or *AtlasData.
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     interface{}
}

type Loader interface {
	Load(path string) (*Resource, error)
}
