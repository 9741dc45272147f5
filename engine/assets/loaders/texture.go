package loaders

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageData is a decoded image as tightly packed 8-bit RGBA rows.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string) (*Resource, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Type:     ResourceTypeImage,
		DataSize: uint64(len(img.Pixels)),
		Data:     img,
	}, nil
}

// LoadImage decodes any registered image format (png, jpeg, bmp, tiff,
// webp) into RGBA.
func LoadImage(path string) (*ImageData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return ToRGBA(img), nil
}

// ToRGBA converts img to tightly packed RGBA, copying only when the source
// is not already laid out that way.
func ToRGBA(img image.Image) *ImageData {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*w || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &ImageData{
		Width:  uint32(w),
		Height: uint32(h),
		Pixels: rgba.Pix,
	}
}
