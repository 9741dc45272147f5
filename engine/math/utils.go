package math

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// DivCeil returns n/d rounded up. d must be non-zero.
func DivCeil[T constraints.Unsigned](n, d T) T {
	return (n + d - 1) / d
}

// Random is a seeded source for gameplay randomness.
type Random struct {
	r *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

// FloatInRange returns a value in [min, max).
func (r *Random) FloatInRange(min, max float32) float32 {
	return min + r.r.Float32()*(max-min)
}

// IntInRange returns a value in [min, max].
func (r *Random) IntInRange(min, max int32) int32 {
	return r.r.Int31n(max-min+1) + min
}
