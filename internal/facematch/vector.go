package facematch

import (
	"errors"
	"fmt"
	"math"
)

// Vector is a face embedding as produced by the extractor.
type Vector []float32

var (
	// ErrEmptyVector is returned for a vector without components.
	ErrEmptyVector = errors.New("empty embedding")
	// ErrNonFinite is returned for a vector with a NaN or infinite component.
	ErrNonFinite = errors.New("embedding contains non-finite values")
)

// Validate checks that the vector is non-empty and every component is finite.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrNonFinite, i, x)
		}
	}
	return nil
}

// Clone returns a copy that does not share the backing array.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// EuclideanDistance computes the L2 distance between two vectors.
// Returns +Inf for empty or mismatched input.
func EuclideanDistance(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
