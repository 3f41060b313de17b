package mcl

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NoiseSource provides normal-distribution draws for the filter. It is
// injected rather than read from ambient global state so a fixed seed
// reproduces an entire particle history. Implementations are not safe
// for concurrent use; each distribution owns exactly one source.
type NoiseSource interface {
	// Normal returns one draw from N(mu, sigma).
	Normal(mu, sigma float64) float64
}

// GaussianSource is the default NoiseSource, backed by a single seeded
// gonum stream. Every sampling context of the filter (init scatter,
// motion noise, reseed jitter, reseed selector) consumes from this one
// stream in call order.
type GaussianSource struct {
	std distuv.Normal
}

// NewGaussianSource creates a seeded source. A seed of 0 falls back to
// the wall clock, which is the non-reproducible production default.
func NewGaussianSource(seed uint64) *GaussianSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &GaussianSource{
		std: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
	}
}

// Normal returns one draw from N(mu, sigma). A sigma of 0 returns mu
// exactly without consuming from the stream, so zero-noise configs stay
// deterministic.
func (g *GaussianSource) Normal(mu, sigma float64) float64 {
	if sigma == 0 {
		return mu
	}
	return mu + sigma*g.std.Rand()
}
