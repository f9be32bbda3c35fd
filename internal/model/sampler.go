package model

import (
	"math"
	"math/rand"
)

// Sampler draws a next token from temperature-scaled logits.
type Sampler struct {
	Temperature float64
	rng         *rand.Rand
}

func NewSampler(temperature float64, seed int64) *Sampler {
	return &Sampler{
		Temperature: temperature,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Sample returns a token id. Non-finite logits and zero temperature fall
// back to argmax.
func (s *Sampler) Sample(logits []float32) int {
	if len(logits) == 0 {
		return 0
	}
	for _, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return argMax(logits)
		}
	}
	if s.Temperature <= 0 {
		return argMax(logits)
	}

	probs := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, v := range logits {
		probs[i] = float64(v) / s.Temperature
		if probs[i] > maxVal {
			maxVal = probs[i]
		}
	}
	sum := 0.0
	for i := range probs {
		probs[i] = math.Exp(probs[i] - maxVal)
		sum += probs[i]
	}

	r := s.rng.Float64() * sum
	cum := 0.0
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	return len(probs) - 1
}

func argMax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}
