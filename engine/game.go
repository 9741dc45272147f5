package engine

import (
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, deltaTime float64) error
type Render func(packet *FramePacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

// FramePacket is everything the game hands to the renderer for one frame.
// The slices are reused between frames.
type FramePacket struct {
	Uniform   layout.UniformData
	Quads     []layout.InstanceData
	Texts     []layout.TextData
	Particles []layout.ParticleData
}

func (p *FramePacket) reset() {
	p.Quads = p.Quads[:0]
	p.Texts = p.Texts[:0]
	p.Particles = p.Particles[:0]
}
