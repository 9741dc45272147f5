package loaders

import (
	"os"
	"path/filepath"
)

type ShaderLoader struct{}

// Load reads a shader file as is: SPIR-V binaries and WGSL sources are
// both returned as raw bytes.
func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Type:     ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}
