package ekf

import (
	"fmt"
	"math"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	gomatrix "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxInnovationCond is the largest accepted condition number of innovation covariance
	MaxInnovationCond = 1e12
	// psdTol is relative tolerance of negative covariance eigenvalues
	psdTol = 1e-9
)

// EKF is Extended Kalman Filter for planar pose estimation from
// odometry and landmark range bearing observations.
// EKF does not store the estimate: every call takes an estimate and returns a new one.
type EKF struct {
	// m is motion model
	m *model.Unicycle
	// s is sensor observation model
	s *model.RangeBearing
	// q is control noise a.k.a. process noise
	q filter.Noise
	// r is measurement noise
	r filter.Noise
}

// New creates new EKF and returns it.
// It accepts the following parameters:
//   - m: motion model
//   - s: range bearing sensor model
//   - q: control a.k.a. process noise with covariance diag(var(v), var(omega))
//   - r: measurement noise with covariance diag(var(range), var(bearing))
//
// It returns error if either of the following conditions is met:
//   - motion or sensor model is nil
//   - control noise covariance is not 2x2 positive semi-definite; nil q means no control noise
//   - measurement noise is nil or its covariance is not 2x2 positive definite
func New(m *model.Unicycle, s *model.RangeBearing, q, r filter.Noise) (*EKF, error) {
	if m == nil || s == nil {
		return nil, fmt.Errorf("invalid model: motion %v, sensor %v", m, s)
	}

	if q != nil {
		if q.Cov().SymmetricDim() != model.ControlDim {
			return nil, fmt.Errorf("invalid control noise dimension: %d", q.Cov().SymmetricDim())
		}
		if !matrix.IsPSD(q.Cov(), psdTol) {
			return nil, fmt.Errorf("invalid control noise: covariance is not positive semi-definite")
		}
	} else {
		q, _ = noise.NewZero(model.ControlDim)
	}

	if r == nil {
		return nil, fmt.Errorf("invalid measurement noise: %v", r)
	}
	if r.Cov().SymmetricDim() != model.ObservationDim {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", r.Cov().SymmetricDim())
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(r.Cov()); !ok {
		return nil, fmt.Errorf("invalid measurement noise: covariance is not positive definite")
	}

	return &EKF{
		m: m,
		s: s,
		q: q,
		r: r,
	}, nil
}

// Predict propagates estimate x to the next step given control u over time step dt
// and returns the predicted estimate.
// It returns error if x is not a pose estimate, dt is negative or the prediction is not finite.
func (k *EKF) Predict(x filter.Estimate, u filter.Control, dt float64) (filter.Estimate, error) {
	xNow, p, err := pose(x)
	if err != nil {
		return nil, err
	}

	xNext, err := k.m.Propagate(xNow, u, dt)
	if err != nil {
		return nil, fmt.Errorf("state propagation failed: %w", err)
	}

	pNext, err := k.m.Covariance(xNow, p, u, dt, k.q.Cov())
	if err != nil {
		return nil, fmt.Errorf("covariance propagation failed: %w", err)
	}

	if !matrix.IsFinite(xNext) || !matrix.IsFinite(pNext) {
		return nil, fmt.Errorf("%w: non-finite predicted estimate", filter.ErrNumerical)
	}

	return estimate.NewBaseWithCov(xNext, pNext)
}

// Update corrects estimate x using landmark observation z and returns corrected estimate.
// It returns error if either of the following conditions is met:
//   - x is not a pose estimate or the observed landmark coincides with the sensor
//   - innovation covariance is ill-conditioned
//   - the corrected estimate is not finite or its covariance is not positive semi-definite
func (k *EKF) Update(x filter.Estimate, z filter.Observation) (filter.Estimate, error) {
	xPred, p, err := pose(x)
	if err != nil {
		return nil, err
	}

	inn, h, err := k.innovation(xPred, z)
	if err != nil {
		return nil, err
	}

	gain, err := k.gain(p, h)
	if err != nil {
		return nil, err
	}

	// update state x
	corr := &mat.VecDense{}
	corr.MulVec(gain, inn)
	xPost := &mat.VecDense{}
	xPost.AddVec(xPred, corr)
	xPost.SetVec(2, angle.Normalize(xPost.AtVec(2)))

	if !matrix.IsFinite(xPost) {
		return nil, fmt.Errorf("%w: non-finite corrected state", filter.ErrNumerical)
	}

	pPost, err := k.covariance(p, gain, h)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(xPost, pPost)
}

// Run runs one step of EKF: it predicts estimate x given control u over time step dt
// and then corrects it with observations zs applied in the order given.
// It returns error if it either fails to propagate or correct the estimate.
func (k *EKF) Run(x filter.Estimate, u filter.Control, dt float64, zs ...filter.Observation) (filter.Estimate, error) {
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

// Gain returns Kalman gain of observation z evaluated at estimate x.
// It returns error if the gain can not be computed.
func (k *EKF) Gain(x filter.Estimate, z filter.Observation) (mat.Matrix, error) {
	xPred, p, err := pose(x)
	if err != nil {
		return nil, err
	}

	h, err := k.s.Jacobian(xPred, z.Landmark)
	if err != nil {
		return nil, err
	}

	return k.gain(p, h)
}

// Model returns EKF motion model
func (k *EKF) Model() *model.Unicycle {
	return k.m
}

// Sensor returns EKF sensor model
func (k *EKF) Sensor() *model.RangeBearing {
	return k.s
}

// StateNoise returns control noise
func (k *EKF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise returns measurement noise
func (k *EKF) OutputNoise() filter.Noise {
	return k.r
}

// innovation returns the difference between observation z and the observation
// predicted from pose x, together with observation Jacobian evaluated at x.
// Bearing residual is wrapped into (-Pi, Pi].
func (k *EKF) innovation(x mat.Vector, z filter.Observation) (*mat.VecDense, *mat.Dense, error) {
	y, err := k.s.Observe(x, z.Landmark)
	if err != nil {
		return nil, nil, err
	}

	h, err := k.s.Jacobian(x, z.Landmark)
	if err != nil {
		return nil, nil, err
	}

	inn := mat.NewVecDense(model.ObservationDim, []float64{
		z.Range - y.AtVec(0),
		angle.Diff(angle.Normalize(z.Bearing), y.AtVec(1)),
	})

	return inn, h, nil
}

// gain calculates Kalman gain P*H'*(H*P*H' + R)^-1
func (k *EKF) gain(p mat.Symmetric, h *mat.Dense) (*mat.Dense, error) {
	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(p, h.T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(h, pxy)
	pyy.Add(pyy, k.r.Cov())

	var chol mat.Cholesky
	if ok := chol.Factorize(matrix.Symmetrize(pyy)); !ok {
		return nil, fmt.Errorf("%w: innovation covariance is not positive definite", filter.ErrNumerical)
	}

	if c := chol.Cond(); math.IsNaN(c) || c > MaxInnovationCond {
		return nil, fmt.Errorf("%w: innovation covariance condition number %g", filter.ErrNumerical, c)
	}

	pyyInv := &mat.SymDense{}
	if err := chol.InverseTo(pyyInv); err != nil {
		return nil, fmt.Errorf("%w: failed to invert innovation covariance: %v", filter.ErrNumerical, err)
	}

	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	return gain, nil
}

// covariance calculates corrected covariance using Joseph form:
// (I - K*H)*P*(I - K*H)' + K*R*K'
func (k *EKF) covariance(p mat.Symmetric, gain, h *mat.Dense) (*mat.SymDense, error) {
	eye, err := gomatrix.NewDenseValIdentity(model.PoseDim, 1.0)
	if err != nil {
		return nil, err
	}

	a := &mat.Dense{}
	// K*H
	a.Mul(gain, h)
	// eye - K*H
	a.Sub(eye, a)

	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r.Cov())
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa.Add(apa, krk)

	pCorr := matrix.Symmetrize(apa)
	if !matrix.IsPSD(pCorr, psdTol) {
		return nil, fmt.Errorf("%w: corrected covariance is not positive semi-definite", filter.ErrNumerical)
	}

	return pCorr, nil
}

// pose extracts pose vector and its covariance from estimate x.
func pose(x filter.Estimate) (*mat.VecDense, mat.Symmetric, error) {
	if x == nil {
		return nil, nil, fmt.Errorf("%w: nil estimate", filter.ErrPrecondition)
	}

	val := x.Val()
	cov := x.Cov()
	if val == nil || val.Len() != model.PoseDim || cov == nil || cov.SymmetricDim() != model.PoseDim {
		return nil, nil, fmt.Errorf("%w: estimate is not a pose estimate", filter.ErrPrecondition)
	}

	return mat.VecDenseCopyOf(val), cov, nil
}
