// Package testbed is a small demo scene: bouncing sprites, a particle
// fountain and a statistics overlay.
package testbed

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

const (
	spriteCount      = 50
	spriteSize       = 48
	particlesPerSec  = 240
	particleLifetime = 2.0
)

// Asset paths used by the demo. Missing files are skipped with a warning.
const (
	SpriteTexture = "assets/textures/checker.png"
	FontImage     = "assets/fonts/ui.png"
	FontMetadata  = "assets/fonts/ui.json"
)

type sprite struct {
	position math.Vec2
	velocity math.Vec2
	rotation float32
	spin     float32
	colour   math.Vec4
}

type gameState struct {
	engine  *engine.Engine
	random  *math.Random
	sprites []sprite
	texture uint32
	font    uint32
	hasFont bool

	width, height float32
	spawnBudget   float64
	elapsed       float64
}

func NewTestGame(cfg config.Config) *engine.Game {
	state := &gameState{random: math.NewRandom(1)}
	return &engine.Game{
		ApplicationConfig: engine.NewApplicationConfig(cfg),
		State:             state,
		FnInitialize:      state.Initialize,
		FnUpdate:          state.Update,
		FnRender:          state.Render,
		FnOnResize:        state.OnResize,
		FnShutdown:        state.Shutdown,
	}
}

func (s *gameState) Initialize(e *engine.Engine) error {
	core.LogDebug("testbed initialize")
	s.engine = e
	r := e.Renderer()

	if _, err := os.Stat(SpriteTexture); err == nil {
		id, err := r.LoadTexture(SpriteTexture)
		if err != nil {
			return err
		}
		s.texture = id
	} else {
		core.LogWarn("sprite texture %s not found, using the default texture", SpriteTexture)
	}

	if _, err := os.Stat(FontMetadata); err == nil {
		id, err := r.LoadMSDFFont(FontImage, FontMetadata)
		if err != nil {
			return err
		}
		s.font, s.hasFont = id, true
	} else {
		core.LogWarn("font %s not found, statistics overlay disabled", FontMetadata)
	}

	w, h := e.GetFramebufferSize()
	s.width, s.height = float32(w), float32(h)
	s.sprites = make([]sprite, spriteCount)
	for i := range s.sprites {
		s.sprites[i] = sprite{
			position: math.NewVec2(s.random.FloatInRange(0, s.width-spriteSize), s.random.FloatInRange(0, s.height-spriteSize)),
			velocity: math.NewVec2(s.random.FloatInRange(-150, 150), s.random.FloatInRange(-150, 150)),
			spin:     s.random.FloatInRange(-2, 2),
			colour: math.NewVec4(
				s.random.FloatInRange(0.4, 1),
				s.random.FloatInRange(0.4, 1),
				s.random.FloatInRange(0.4, 1),
				1,
			),
		}
	}
	return nil
}

func (s *gameState) Update(e *engine.Engine, deltaTime float64) error {
	s.elapsed += deltaTime
	dt := float32(deltaTime)
	for i := range s.sprites {
		sp := &s.sprites[i]
		sp.position = sp.position.Add(sp.velocity.MulScalar(dt))
		sp.rotation += sp.spin * dt
		if sp.position.X < 0 || sp.position.X > s.width-spriteSize {
			sp.velocity.X = -sp.velocity.X
		}
		if sp.position.Y < 0 || sp.position.Y > s.height-spriteSize {
			sp.velocity.Y = -sp.velocity.Y
		}
		sp.position.X = math.Clamp(sp.position.X, 0, math.Clamp(s.width-spriteSize, 0, s.width))
		sp.position.Y = math.Clamp(sp.position.Y, 0, math.Clamp(s.height-spriteSize, 0, s.height))
	}
	return nil
}

func (s *gameState) Render(packet *engine.FramePacket, deltaTime float64) error {
	for _, sp := range s.sprites {
		packet.Quads = append(packet.Quads, layout.InstanceData{
			Position:     [2]float32{sp.position.X, sp.position.Y},
			Size:         [2]float32{spriteSize, spriteSize},
			Colour:       sp.colour.Array(),
			UVRect:       [4]float32{0, 0, 1, 1},
			Rotation:     sp.rotation,
			TextureIndex: s.texture,
		})
	}

	// Particles are spawned at a fixed rate from the bottom centre.
	s.spawnBudget += deltaTime * particlesPerSec
	for ; s.spawnBudget >= 1; s.spawnBudget-- {
		packet.Particles = append(packet.Particles, layout.ParticleData{
			Position: [2]float32{s.width / 2, s.height - 10},
			Velocity: [2]float32{s.random.FloatInRange(-60, 60), s.random.FloatInRange(-260, -160)},
			Colour:   [4]float32{1, s.random.FloatInRange(0.3, 0.8), 0.1, 1},
			Size:     s.random.FloatInRange(3, 7),
			Lifetime: s.random.FloatInRange(particleLifetime/2, particleLifetime),
		})
	}

	if !s.hasFont {
		return nil
	}
	stats := s.engine.Renderer().Statistics()
	line := fmt.Sprintf("%.0f fps  %.2f ms  particles %d", stats.FPS, stats.FrameTime, s.engine.Renderer().LiveParticles())
	texts, err := s.engine.Renderer().DrawText(line, math.NewVec2(12, 12), math.NewVec4One(), 0.5, s.font, packet.Texts, renderer.AlignLeft)
	if err != nil {
		return err
	}
	packet.Texts = texts
	return nil
}

func (s *gameState) OnResize(width, height uint32) error {
	s.width, s.height = float32(width), float32(height)
	return nil
}

func (s *gameState) Shutdown() error {
	core.LogDebug("testbed shutdown")
	return nil
}
