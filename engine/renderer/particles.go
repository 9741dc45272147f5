package renderer

import (
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
)

// lifetimeEpsilon absorbs the float32 rounding of an age summed one frame
// at a time, so a 2s particle stepped 120 times at 1/60 still expires.
const lifetimeEpsilon = 1e-4

// expired reports whether a particle of the given age has outlived its
// lifetime. The compute shaders use the same comparison.
func expired(age, lifetime float32) bool {
	return age >= lifetime-lifetimeEpsilon
}

// StepParticle advances a particle from its spawn state by its age plus dt
// under constant gravity. A particle whose lifetime has run out comes back
// with zero size and alpha so it draws nothing.
func StepParticle(p layout.ParticleData, dt float32, gravity [2]float32) layout.ParticleData {
	t := p.Age + dt
	out := p
	out.Age = t
	if expired(t, p.Lifetime) {
		out.Size = 0
		out.Colour[3] = 0
		return out
	}
	for i := 0; i < 2; i++ {
		out.Position[i] = p.Position[i] + p.Velocity[i]*t + 0.5*gravity[i]*t*t
		out.Velocity[i] = p.Velocity[i] + gravity[i]*t
	}
	out.Colour[3] = p.Colour[3] * (1 - t/p.Lifetime)
	return out
}

// Binding numbers the particle compute shader uses.
const (
	particleComputeUniformBinding = 0
	particleStorageBinding        = 1
	particleInstanceBinding       = 2
)

// ParticleKernel runs the particle compute shader on the CPU. It reads the
// compute uniform at binding 0 and the spawn records at binding 1, and
// writes stepped records to binding 2.
func ParticleKernel(groups [3]uint32, bindings map[uint32][]byte, push []byte) {
	params := layout.ReadComputeUniform(bindings[particleComputeUniformBinding])
	src := bindings[particleStorageBinding]
	dst := bindings[particleInstanceBinding]
	for i := 0; i < int(params.ParticleCount); i++ {
		off := i * layout.ParticleDataSize
		if off+layout.ParticleDataSize > len(src) || off+layout.ParticleDataSize > len(dst) {
			return
		}
		p := StepParticle(layout.ReadParticle(src[off:]), params.DeltaTime, params.Gravity)
		p.Put(dst[off:])
	}
}

// ParticlePool holds live particles in their spawn state plus age.
type ParticlePool struct {
	particles []layout.ParticleData
	max       int
}

func NewParticlePool(max int) *ParticlePool {
	return &ParticlePool{particles: make([]layout.ParticleData, 0, max), max: max}
}

func (pp *ParticlePool) Len() int  { return len(pp.particles) }
func (pp *ParticlePool) Free() int { return pp.max - len(pp.particles) }

// Spawn adds as many of ps as fit and returns how many were dropped.
func (pp *ParticlePool) Spawn(ps []layout.ParticleData) int {
	n := len(ps)
	if free := pp.Free(); n > free {
		n = free
	}
	pp.particles = append(pp.particles, ps[:n]...)
	return len(ps) - n
}

func (pp *ParticlePool) Particles() []layout.ParticleData {
	return pp.particles
}

// WriteStorage serializes the spawn records for the compute kernel.
func (pp *ParticlePool) WriteStorage(dst []byte) {
	for i := range pp.particles {
		pp.particles[i].Put(dst[i*layout.ParticleDataSize:])
	}
}

// WriteStepped steps every particle on the CPU and serializes the result as
// instance records.
func (pp *ParticlePool) WriteStepped(dst []byte, dt float32, gravity [2]float32) {
	for i, p := range pp.particles {
		s := StepParticle(p, dt, gravity)
		s.Put(dst[i*layout.ParticleDataSize:])
	}
}

// Advance ages every particle by dt and drops the expired ones.
func (pp *ParticlePool) Advance(dt float32) {
	live := pp.particles[:0]
	for _, p := range pp.particles {
		p.Age += dt
		if !expired(p.Age, p.Lifetime) {
			live = append(live, p)
		}
	}
	pp.particles = live
}

func (pp *ParticlePool) Clear() {
	pp.particles = pp.particles[:0]
}
