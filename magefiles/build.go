//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"
)

const (
	shaderDir = "assets/shaders"
	glslDir   = "assets/shaders/glsl"
	spvDir    = "assets/shaders/spv"
	binary    = "bin/lumen"
)

type Build mg.Namespace

// Compiles the GLSL sources with glslc into assets/shaders/spv.
func (Build) Shaders() error {
	if err := os.MkdirAll(spvDir, 0o755); err != nil {
		return err
	}
	sources, err := filepath.Glob(filepath.Join(glslDir, "*.*"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		ext := filepath.Ext(src)
		if ext == ".glsl" {
			// include only
			continue
		}
		name := strings.TrimSuffix(filepath.Base(src), ext) + "." + strings.TrimPrefix(ext, ".") + ".spv"
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", src, "-o", filepath.Join(spvDir, name)), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Compiles the WGSL sources to SPIR-V with naga, to catch errors before
// the engine loads them.
func (Build) WGSL() error {
	if err := os.MkdirAll(spvDir, 0o755); err != nil {
		return err
	}
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		code, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(code))
		if err != nil {
			return fmt.Errorf("compiling %s: %w", src, err)
		}
		out := filepath.Join(spvDir, strings.TrimSuffix(filepath.Base(src), ".wgsl")+".wgsl.spv")
		if err := os.WriteFile(out, spirv, 0o644); err != nil {
			return err
		}
		fmt.Printf("Compiled %s -> %s (%d bytes)\n", src, out, len(spirv))
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.WGSL)
	if _, err := executeCmd("go", withArgs("build", "-o", binary, "."), withEnv("CGO_ENABLED=1"), withStream()); err != nil {
		return err
	}
	return nil
}
