package search

import "math/rand"

// NoiseFunc adds perturbation noise to each component of vec in place.
// amplitude is the uniform half-range (noise drawn from [-amplitude, +amplitude]).
// Pluggable so tests can install a deterministic source.
type NoiseFunc func(vec []float32, amplitude float32)

// UniformNoise perturbs each component with independent uniform noise.
func UniformNoise(vec []float32, amplitude float32) {
	for i := range vec {
		vec[i] += (rand.Float32()*2 - 1) * amplitude
	}
}

// perturb returns the query vector to score against: the original for zero
// amplitude, otherwise a perturbed copy. The perturbed vector is deliberately
// not re-normalized; cosine similarity is scale-invariant so only the
// direction shift matters.
func perturb(vec []float32, amplitude float32, noise NoiseFunc) []float32 {
	if amplitude == 0 || noise == nil {
		return vec
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	noise(out, amplitude)
	return out
}
