package matching

import (
	"errors"
	"fmt"
	"math"
)

// Threshold is the largest cosine distance, exclusive, accepted as the same person.
const Threshold = 0.35

var (
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
	ErrZeroVector        = errors.New("embedding has zero norm")
)

// CosineDistance returns 1 - cos(a, b). 0 means identical direction, 2 opposite.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}

// Candidate is a scored stored identity.
type Candidate struct {
	ID       uint
	Name     string
	Distance float64
}

// Best tracks the minimum-distance candidate seen so far. Ties keep the
// candidate observed first.
type Best struct {
	candidate Candidate
	seen      int
}

// Observe offers a candidate.
func (b *Best) Observe(c Candidate) {
	b.seen++
	if b.seen == 1 || c.Distance < b.candidate.Distance {
		b.candidate = c
	}
}

// Seen reports how many candidates were observed.
func (b *Best) Seen() int { return b.seen }

// Candidate returns the best candidate; ok is false when nothing was observed.
func (b *Best) Candidate() (Candidate, bool) {
	return b.candidate, b.seen > 0
}

// IsMatch reports whether distance is close enough to count as a match.
func IsMatch(distance float64) bool {
	return distance < Threshold
}

// Confidence converts a distance into the percentage shown to users.
func Confidence(distance float64) float64 {
	return (1 - distance) * 100
}
