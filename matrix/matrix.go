package matrix

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NewSymDiag returns a symmetric matrix with vals on its diagonal.
func NewSymDiag(vals ...float64) *mat.SymDense {
	s := mat.NewSymDense(len(vals), nil)
	for i, v := range vals {
		s.SetSym(i, i, v)
	}

	return s
}

// Symmetrize returns (m + m')/2 as a symmetric matrix.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// IsSymmetric returns true if m is square and every element
// differs from its transpose by at most tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}

// IsPSD returns true if all eigenvalues of m are non-negative.
// Eigenvalues down to -tol scaled by the largest eigenvalue magnitude are accepted.
func IsPSD(m mat.Symmetric, tol float64) bool {
	if !IsFinite(m) {
		return false
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(m, false); !ok {
		return false
	}
	vals := eig.Values(nil)
	if len(vals) == 0 {
		return true
	}

	scale := math.Max(1, math.Max(math.Abs(floats.Min(vals)), math.Abs(floats.Max(vals))))

	return floats.Min(vals) >= -tol*scale
}

// IsFinite returns false if m contains NaN or infinite values.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return true
	}

	data := mat.DenseCopyOf(m).RawMatrix().Data
	if floats.HasNaN(data) {
		return false
	}

	return !math.IsInf(floats.Max(data), 1) && !math.IsInf(floats.Min(data), -1)
}
