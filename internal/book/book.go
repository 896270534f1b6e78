// Package book generates a synthetic home-line exposure book: a target
// aggregate insured value allocated across tracts in proportion to their
// baseline hazard score.
package book

import (
	"math"
	"math/rand"
	"sort"

	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

const noiseStdDev = 0.05 // ±5% per-tract noise so the book isn't perfectly proportional

// Generate allocates targetTIV across the exposure set. Weights follow each
// tract's EAL score; when every score is zero the allocation is uniform.
// Zero weights are floored to the smallest positive weight so no tract gets
// an exactly-zero book. Output is in ascending geoid order and deterministic
// for a fixed seed.
func Generate(units []domain.ExposureUnit, targetTIV float64, seed int64) []domain.BookEntry {
	if len(units) == 0 {
		return nil
	}

	sorted := make([]domain.ExposureUnit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GeoID < sorted[j].GeoID })

	weights := ealWeights(sorted)

	rng := rand.New(rand.NewSource(seed))
	entries := make([]domain.BookEntry, 0, len(sorted))
	for i, u := range sorted {
		raw := targetTIV * weights[i]
		noise := 1.0 + rng.NormFloat64()*noiseStdDev
		tiv := math.Max(0, raw*noise)
		entries = append(entries, domain.BookEntry{
			GeoID:   u.GeoID,
			TIVHome: math.Round(tiv),
		})
	}
	return entries
}

// ealWeights returns normalized allocation weights summing to 1.
func ealWeights(units []domain.ExposureUnit) []float64 {
	weights := make([]float64, len(units))
	minPositive := math.Inf(1)
	var sum float64
	for i, u := range units {
		w := u.EALTotal.Value
		weights[i] = w
		if w > 0 && w < minPositive {
			minPositive = w
		}
		sum += w
	}

	if sum == 0 {
		// All-zero EALs: uniform allocation.
		uniform := 1.0 / float64(len(units))
		for i := range weights {
			weights[i] = uniform
		}
		return weights
	}

	sum = 0
	for i := range weights {
		if weights[i] == 0 {
			weights[i] = minPositive
		}
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}
