package ekf

import (
	"fmt"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"gonum.org/v1/gonum/mat"
)

// IEKF is Iterated Extended Kalman Filter
type IEKF struct {
	// EKF is extended Kalman filter
	*EKF
	// n is number of update iterations
	n int
}

// NewIter creates new Iterated EKF and returns it.
// It accepts the following parameters:
//   - m: motion model
//   - s: range bearing sensor model
//   - q: control a.k.a. process noise
//   - r: measurement noise
//   - n: number of update iterations
//
// It returns error if either of the following conditions is met:
//   - invalid number of update iterations is given: n must be positive
//   - EKF fails to be created from the remaining parameters
func NewIter(m *model.Unicycle, s *model.RangeBearing, q, r filter.Noise, n int) (*IEKF, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of update iterations: %d", n)
	}

	// IEKF is EKF which uses iterating updates
	f, err := New(m, s, q, r)
	if err != nil {
		return nil, err
	}

	return &IEKF{
		EKF: f,
		n:   n,
	}, nil
}

// Iterations returns number of update iterations
func (k *IEKF) Iterations() int {
	return k.n
}

// Update corrects estimate x using landmark observation z and returns corrected estimate.
// The observation model is relinearized around the latest corrected state on every iteration:
//
//	x[i+1] = x + K[i]*(z - h(x[i]) - H[i]*(x - x[i]))
//
// A single iteration is equivalent to EKF update.
func (k *IEKF) Update(x filter.Estimate, z filter.Observation) (filter.Estimate, error) {
	xPred, p, err := pose(x)
	if err != nil {
		return nil, err
	}

	xi := mat.VecDenseCopyOf(xPred)

	var gain, h *mat.Dense
	for i := 0; i < k.n; i++ {
		var inn *mat.VecDense
		inn, h, err = k.innovation(xi, z)
		if err != nil {
			return nil, err
		}

		gain, err = k.gain(p, h)
		if err != nil {
			return nil, err
		}

		// x - x[i]
		diff := &mat.VecDense{}
		diff.SubVec(xPred, xi)
		diff.SetVec(2, angle.Normalize(diff.AtVec(2)))

		// z - h(x[i]) - H[i]*(x - x[i])
		hd := &mat.VecDense{}
		hd.MulVec(h, diff)
		inn.SubVec(inn, hd)
		inn.SetVec(1, angle.Normalize(inn.AtVec(1)))

		corr := &mat.VecDense{}
		corr.MulVec(gain, inn)
		xi.AddVec(xPred, corr)
		xi.SetVec(2, angle.Normalize(xi.AtVec(2)))

		if !matrix.IsFinite(xi) {
			return nil, fmt.Errorf("%w: non-finite corrected state at iteration %d", filter.ErrNumerical, i)
		}
	}

	pPost, err := k.covariance(p, gain, h)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(xi, pPost)
}

// Run runs one step of IEKF: it predicts estimate x given control u over time step dt
// and then corrects it with observations zs applied in the order given.
// It returns error if it either fails to propagate or correct the estimate.
func (k *IEKF) Run(x filter.Estimate, u filter.Control, dt float64, zs ...filter.Observation) (filter.Estimate, error) {
	est, err := k.Predict(x, u, dt)
	if err != nil {
		return nil, err
	}

	for _, z := range zs {
		est, err = k.Update(est, z)
		if err != nil {
			return nil, err
		}
	}

	return est, nil
}
