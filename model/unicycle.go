package model

import (
	"fmt"
	"math"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// PoseDim is the length of pose state vector: x, y, theta
	PoseDim = 3
	// ControlDim is the length of control input vector: v, omega
	ControlDim = 2
)

// Unicycle is a kinematic unicycle motion model driven by
// translational and angular velocity commands.
//
//	x[k] = x[k-1] + (v + bv)*cos(theta[k-1])*dt
//	y[k] = y[k-1] + (v + bv)*sin(theta[k-1])*dt
//	theta[k] = theta[k-1] + (omega + bw)*dt
type Unicycle struct {
	// VelocityBias is added to every translational velocity command
	VelocityBias float64
	// OmegaBias is added to every angular velocity command
	OmegaBias float64
}

// NewUnicycle creates unbiased unicycle model and returns it
func NewUnicycle() *Unicycle {
	return &Unicycle{}
}

// Dims returns state and control input dimensions
func (m *Unicycle) Dims() (nx, nu int) {
	return PoseDim, ControlDim
}

// Propagate propagates pose x to the next step given control u over time step dt.
// It returns error if x is not a pose vector or dt is negative.
func (m *Unicycle) Propagate(x mat.Vector, u filter.Control, dt float64) (*mat.VecDense, error) {
	if x == nil || x.Len() != PoseDim {
		return nil, fmt.Errorf("%w: invalid state vector", filter.ErrPrecondition)
	}

	if dt < 0 {
		return nil, fmt.Errorf("%w: negative time step: %g", filter.ErrPrecondition, dt)
	}

	theta := angle.Normalize(x.AtVec(2))
	v := u.V + m.VelocityBias
	w := u.Omega + m.OmegaBias

	return mat.NewVecDense(PoseDim, []float64{
		x.AtVec(0) + v*math.Cos(theta)*dt,
		x.AtVec(1) + v*math.Sin(theta)*dt,
		angle.Normalize(theta + w*dt),
	}), nil
}

// StateJacobian returns Jacobian of the motion model with respect to the state evaluated at x.
// It panics if x has less than 3 elements.
func (m *Unicycle) StateJacobian(x mat.Vector, u filter.Control, dt float64) *mat.Dense {
	theta := angle.Normalize(x.AtVec(2))
	v := u.V + m.VelocityBias

	f := mat.NewDense(PoseDim, PoseDim, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	f.Set(0, 2, -v*dt*math.Sin(theta))
	f.Set(1, 2, v*dt*math.Cos(theta))

	return f
}

// NoiseJacobian returns Jacobian of the motion model with respect to control noise evaluated at x.
// It panics if x has less than 3 elements.
func (m *Unicycle) NoiseJacobian(x mat.Vector, dt float64) *mat.Dense {
	theta := angle.Normalize(x.AtVec(2))

	l := mat.NewDense(PoseDim, ControlDim, nil)
	l.Set(0, 0, dt*math.Cos(theta))
	l.Set(1, 0, dt*math.Sin(theta))
	l.Set(2, 1, dt)

	return l
}

// Covariance propagates pose covariance p evaluated at x given control u,
// time step dt and control noise covariance q: F*P*F' + L*Q*L'.
// It returns error if either p or q have invalid dimensions.
func (m *Unicycle) Covariance(x mat.Vector, p mat.Symmetric, u filter.Control, dt float64, q mat.Symmetric) (*mat.SymDense, error) {
	if p == nil || p.SymmetricDim() != PoseDim {
		return nil, fmt.Errorf("%w: invalid state covariance", filter.ErrPrecondition)
	}

	if q == nil || q.SymmetricDim() != ControlDim {
		return nil, fmt.Errorf("%w: invalid control noise covariance", filter.ErrPrecondition)
	}

	f := m.StateJacobian(x, u, dt)
	l := m.NoiseJacobian(x, dt)

	// F*P*F'
	cov := &mat.Dense{}
	cov.Mul(f, p)
	cov.Mul(cov, f.T())

	// L*Q*L'
	lq := &mat.Dense{}
	lq.Mul(l, q)
	lql := &mat.Dense{}
	lql.Mul(lq, l.T())

	cov.Add(cov, lql)

	return matrix.Symmetrize(cov), nil
}
