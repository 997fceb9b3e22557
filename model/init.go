package model

import (
	"fmt"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"gonum.org/v1/gonum/mat"
)

// InitCond implements filter.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// NewPoseInitCond creates initial condition for pose (x, y, theta) with covariance cov.
// The heading is normalized into (-Pi, Pi].
// It returns error if cov is not a 3x3 positive semi-definite matrix.
func NewPoseInitCond(x, y, theta float64, cov mat.Symmetric) (*InitCond, error) {
	if cov == nil || cov.SymmetricDim() != PoseDim {
		return nil, fmt.Errorf("%w: invalid initial covariance", filter.ErrPrecondition)
	}

	if !matrix.IsPSD(cov, 1e-12) {
		return nil, fmt.Errorf("%w: initial covariance is not positive semi-definite", filter.ErrPrecondition)
	}

	state := mat.NewVecDense(PoseDim, []float64{x, y, angle.Normalize(theta)})

	return NewInitCond(state, cov), nil
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
