package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Zero is noise that never perturbs: its samples, mean and covariance are all zero.
// It stands in for control noise when odometry is treated as exact.
type Zero struct {
	// dim is noise dimension
	dim int
}

// NewZero creates new zero noise of dimension dim.
// It returns error if dim is non-positive.
func NewZero(dim int) (*Zero, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", dim)
	}

	return &Zero{dim: dim}, nil
}

// Sample returns zero vector.
func (z *Zero) Sample() mat.Vector {
	return mat.NewVecDense(z.dim, nil)
}

// Cov returns zero covariance matrix.
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.dim, nil)
}

// Mean returns zero mean.
func (z *Zero) Mean() []float64 {
	return make([]float64, z.dim)
}

// Reset is a no-op.
func (z *Zero) Reset() error { return nil }

// String implements the Stringer interface.
func (z *Zero) String() string {
	return fmt.Sprintf("Zero{dim=%d}", z.dim)
}
