package erts

import (
	"fmt"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	"gonum.org/v1/gonum/mat"
)

// ERTS is Extended Rauch-Tung-Striebel smoother
type ERTS struct {
	// m is motion model
	m *model.Unicycle
	// q is control noise
	q filter.Noise
}

// New creates new ERTS and returns it.
// It returns error if m is nil or q has invalid dimensions.
func New(m *model.Unicycle, q filter.Noise) (*ERTS, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil motion model", filter.ErrPrecondition)
	}

	if q != nil {
		if q.Cov().SymmetricDim() != model.ControlDim {
			return nil, fmt.Errorf("%w: invalid control noise dimension: %d",
				filter.ErrPrecondition, q.Cov().SymmetricDim())
		}
	} else {
		q, _ = noise.NewZero(model.ControlDim)
	}

	return &ERTS{
		m: m,
		q: q,
	}, nil
}

// Smooth implements Rauch-Tung-Striebel smoothing algorithm.
// It runs backwards through filtered trajectory traj and returns smoothed trajectory.
// u[k] is control applied between points k and k+1, so len(u) must be traj.Len()-1.
// It returns error if traj is empty, u has invalid length or smoothing could not be computed.
func (s *ERTS) Smooth(traj *estimate.Trajectory, u []filter.Control) (*estimate.Trajectory, error) {
	if traj == nil || traj.Len() == 0 {
		return nil, fmt.Errorf("%w: empty trajectory", filter.ErrPrecondition)
	}

	n := traj.Len()
	if len(u) != n-1 {
		return nil, fmt.Errorf("%w: invalid control count: %d, expected %d", filter.ErrPrecondition, len(u), n-1)
	}

	pts := traj.Points()
	smoothed := make([]filter.Estimate, n)
	smoothed[n-1] = pts[n-1].Estimate

	for k := n - 2; k >= 0; k-- {
		x := pts[k].Estimate.Val()
		p := pts[k].Estimate.Cov()
		dt := pts[k+1].Time - pts[k].Time

		// predicted state and covariance at k+1
		xk1, err := s.m.Propagate(x, u[k], dt)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k, err)
		}
		pk1, err := s.m.Covariance(x, p, u[k], dt, s.q.Cov())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k, err)
		}

		// calculate smoothing matrix Pk*Fk'*P_(k+1)^-1
		var chol mat.Cholesky
		if ok := chol.Factorize(pk1); !ok {
			return nil, fmt.Errorf("%w: step %d: predicted covariance is not positive definite", filter.ErrNumerical, k)
		}
		pinv := &mat.SymDense{}
		if err := chol.InverseTo(pinv); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", filter.ErrNumerical, k, err)
		}

		f := s.m.StateJacobian(x, u[k], dt)
		c := &mat.Dense{}
		c.Mul(p, f.T())
		c.Mul(c, pinv)

		next := smoothed[k+1]

		// smooth the state: xk + Ck*(xs_(k+1) - x_(k+1))
		dx := &mat.VecDense{}
		dx.SubVec(next.Val(), xk1)
		dx.SetVec(2, angle.Diff(next.Val().AtVec(2), xk1.AtVec(2)))

		xs := &mat.VecDense{}
		xs.MulVec(c, dx)
		xs.AddVec(x, xs)
		xs.SetVec(2, angle.Normalize(xs.AtVec(2)))

		// smooth covariance: Pk + Ck*(Ps_(k+1) - P_(k+1))*Ck'
		cov := &mat.Dense{}
		cov.Sub(next.Cov(), pk1)
		cov.Mul(c, cov)
		cov.Mul(cov, c.T())
		cov.Add(p, cov)

		ps := matrix.Symmetrize(cov)
		if !matrix.IsFinite(xs) || !matrix.IsFinite(ps) {
			return nil, fmt.Errorf("%w: step %d: non-finite smoothed estimate", filter.ErrNumerical, k)
		}

		e, err := estimate.NewBaseWithCov(xs, ps)
		if err != nil {
			return nil, err
		}
		smoothed[k] = e
	}

	out := estimate.NewTrajectory(n)
	for k, e := range smoothed {
		if err := out.Append(pts[k].Time, e); err != nil {
			return nil, err
		}
	}

	return out, nil
}
