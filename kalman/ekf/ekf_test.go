package ekf

import (
	"errors"
	"math"
	"os"
	"testing"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/kalman"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	motion *model.Unicycle
	sensor *model.RangeBearing
	q      filter.Noise
	r      filter.Noise
	x0     *estimate.Base
	u      filter.Control
	lm     filter.Landmark
)

var _ kalman.Kalman = (*EKF)(nil)
var _ kalman.Kalman = (*IEKF)(nil)
var _ kalman.Gainer = (*EKF)(nil)

func setup() {
	motion = model.NewUnicycle()
	sensor = model.NewRangeBearing(0)

	// control and measurement noise
	q, _ = noise.NewGaussian([]float64{0, 0}, matrix.NewSymDiag(0.01, 0.01))
	r, _ = noise.NewGaussian([]float64{0, 0}, matrix.NewSymDiag(0.01, 0.1))

	x0, _ = estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{0, 0, 0}), matrix.NewSymDiag(1, 1, 0.1))
	u = filter.Control{V: 1, Omega: 0}
	lm = filter.Landmark{X: 10, Y: 0}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestEKFNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	assert.NotNil(f)
	assert.NoError(err)
	assert.Equal(motion, f.Model())
	assert.Equal(sensor, f.Sensor())
	assert.Equal(q, f.StateNoise())
	assert.Equal(r, f.OutputNoise())

	// invalid models
	f, err = New(nil, sensor, q, r)
	assert.Nil(f)
	assert.Error(err)

	f, err = New(motion, nil, q, r)
	assert.Nil(f)
	assert.Error(err)

	// invalid control noise dimension
	_q, _ := noise.NewZero(3)
	f, err = New(motion, sensor, _q, r)
	assert.Nil(f)
	assert.Error(err)

	// invalid measurement noise dimension
	_r, _ := noise.NewGaussian([]float64{0}, matrix.NewSymDiag(0.1))
	f, err = New(motion, sensor, q, _r)
	assert.Nil(f)
	assert.Error(err)

	// measurement noise must be positive definite
	_z, _ := noise.NewZero(2)
	f, err = New(motion, sensor, q, _z)
	assert.Nil(f)
	assert.Error(err)

	f, err = New(motion, sensor, q, nil)
	assert.Nil(f)
	assert.Error(err)

	// no control noise
	f, err = New(motion, sensor, nil, r)
	assert.NotNil(f)
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewSymDense(2, nil), f.StateNoise().Cov()))
}

func TestEKFPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	est, err := f.Predict(x0, u, 1.0)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, 0, 0}, mat.Col(nil, 0, est.Val()), 1e-12)

	expCov := mat.NewSymDense(3, []float64{
		1.01, 0, 0,
		0, 1.1, 0.1,
		0, 0.1, 0.11,
	})
	assert.True(mat.EqualApprox(expCov, est.Cov(), 1e-12))

	// input estimate is not modified
	assert.Equal(0.0, x0.Val().AtVec(0))

	// negative time step
	est, err = f.Predict(x0, u, -1.0)
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrPrecondition))

	// invalid estimate
	bad, _ := estimate.NewBase(mat.NewVecDense(2, nil))
	est, err = f.Predict(bad, u, 1.0)
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrPrecondition))

	est, err = f.Predict(nil, u, 1.0)
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrPrecondition))

	// non-finite covariance
	nan, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, nil), matrix.NewSymDiag(math.NaN(), 1, 1))
	est, err = f.Predict(nan, u, 1.0)
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrNumerical))
}

func TestEKFPredictZeroControl(t *testing.T) {
	assert := assert.New(t)

	zq, _ := noise.NewZero(2)
	f, err := New(motion, sensor, zq, r)
	require.NoError(t, err)

	start, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{2, -1, 0.4}),
		mat.NewSymDense(3, []float64{1, 0.2, 0, 0.2, 2, 0.1, 0, 0.1, 0.3}))

	est, err := f.Predict(start, filter.Control{}, 0.5)
	assert.NoError(err)
	// no drift
	assert.True(mat.Equal(start.Val(), est.Val()))
	// F is identity and there is no process noise
	assert.True(mat.Equal(start.Cov(), est.Cov()))

	// with process noise only L*Q*L' is added
	f, err = New(motion, sensor, q, r)
	require.NoError(t, err)

	est, err = f.Predict(start, filter.Control{}, 0.5)
	assert.NoError(err)
	assert.True(mat.Equal(start.Val(), est.Val()))

	l := motion.NoiseJacobian(start.Val(), 0.5)
	lq := &mat.Dense{}
	lq.Mul(l, q.Cov())
	lql := &mat.Dense{}
	lql.Mul(lq, l.T())
	lql.Add(lql, start.Cov())
	assert.True(mat.EqualApprox(lql, est.Cov(), 1e-12))
}

func TestEKFUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	pred, err := f.Predict(x0, u, 1.0)
	require.NoError(t, err)

	// observation consistent with the prediction
	est, err := f.Update(pred, filter.Observation{Landmark: lm, Range: 9, Bearing: 0})
	assert.NoError(err)
	assert.InDeltaSlice([]float64{1, 0, 0}, mat.Col(nil, 0, est.Val()), 1e-12)

	// fusing a measurement reduces uncertainty
	for i := 0; i < 3; i++ {
		assert.Less(est.Cov().At(i, i), pred.Cov().At(i, i))
	}
	assert.True(matrix.IsSymmetric(est.Cov(), 0))
	assert.True(matrix.IsPSD(est.Cov(), 1e-12))

	// the gain blends prediction and measurement
	est, err = f.Update(pred, filter.Observation{Landmark: lm, Range: 8.5, Bearing: 0})
	assert.NoError(err)
	assert.Greater(est.Val().AtVec(0), 1.0)
	assert.Less(est.Val().AtVec(0), 1.5)

	// invalid estimate
	est, err = f.Update(nil, filter.Observation{Landmark: lm, Range: 9})
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrPrecondition))
}

func TestEKFUpdateBearingWrap(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	// landmark directly behind the robot: predicted bearing is Pi
	pred, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{0, 0, 0}), matrix.NewSymDiag(1, 1, 0.1))
	behind := filter.Landmark{X: -5, Y: 0}

	// measured bearing just across the discontinuity
	est, err := f.Update(pred, filter.Observation{Landmark: behind, Range: 5, Bearing: -math.Pi + 0.01})
	assert.NoError(err)
	// a small residual produces a small heading correction
	assert.Less(math.Abs(est.Val().AtVec(2)), 0.05)

	// raw bearing outside (-Pi, Pi] is wrapped before use
	est2, err := f.Update(pred, filter.Observation{Landmark: behind, Range: 5, Bearing: math.Pi + 0.01})
	assert.NoError(err)
	assert.True(mat.EqualApprox(est.Val(), est2.Val(), 1e-9))
}

func TestEKFUpdateConsistentObservation(t *testing.T) {
	assert := assert.New(t)

	s := model.NewRangeBearing(0.5)
	f, err := New(motion, s, q, r)
	require.NoError(t, err)

	pred, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{2, 3, 0.4}),
		mat.NewSymDense(3, []float64{1, 0.1, 0, 0.1, 1, 0.05, 0, 0.05, 0.2}))
	landmark := filter.Landmark{X: 7, Y: -1}

	// synthesize noiseless measurement from the predicted pose
	y, err := s.Observe(pred.Val(), landmark)
	require.NoError(t, err)

	est, err := f.Update(pred, filter.Observation{Landmark: landmark, Range: y.AtVec(0), Bearing: y.AtVec(1)})
	assert.NoError(err)
	// zero innovation leaves the state untouched
	assert.True(mat.Equal(pred.Val(), est.Val()))

	// covariance update does not depend on the measured values
	other, err := f.Update(pred, filter.Observation{Landmark: landmark, Range: y.AtVec(0) + 1, Bearing: y.AtVec(1) - 0.2})
	assert.NoError(err)
	assert.True(mat.EqualApprox(est.Cov(), other.Cov(), 1e-12))
	assert.False(mat.EqualApprox(est.Val(), other.Val(), 1e-6))
}

func TestEKFUpdateDegenerate(t *testing.T) {
	assert := assert.New(t)

	s := model.NewRangeBearing(0.5)
	f, err := New(motion, s, q, r)
	require.NoError(t, err)

	pred, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{1, 2, 0}), matrix.NewSymDiag(1, 1, 0.1))

	est, err := f.Update(pred, filter.Observation{Landmark: filter.Landmark{X: 1.5, Y: 2}, Range: 0.1})
	assert.Nil(est)
	assert.Error(err)
	assert.True(errors.Is(err, filter.ErrPrecondition))
}

func TestEKFUpdateIllConditioned(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	pred, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{1, 0, 0}), matrix.NewSymDiag(1e12, 0, 0))

	est, err := f.Update(pred, filter.Observation{Landmark: lm, Range: 9})
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrNumerical))

	nan, _ := estimate.NewBaseWithCov(mat.NewVecDense(3, []float64{1, 0, 0}), matrix.NewSymDiag(math.NaN(), 1, 1))
	est, err = f.Update(nan, filter.Observation{Landmark: lm, Range: 9})
	assert.Nil(est)
	assert.True(errors.Is(err, filter.ErrNumerical))
}

func TestEKFRun(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	// no observations: run equals predict
	est, err := f.Run(x0, u, 1.0)
	assert.NoError(err)
	pred, _ := f.Predict(x0, u, 1.0)
	assert.True(mat.Equal(pred.Val(), est.Val()))
	assert.True(mat.Equal(pred.Cov(), est.Cov()))

	a := filter.Observation{Landmark: filter.Landmark{X: 10, Y: 3}, Range: 9.8, Bearing: 0.25}
	b := filter.Observation{Landmark: filter.Landmark{X: -2, Y: 8}, Range: 8.0, Bearing: 1.9}

	ab, err := f.Run(x0, u, 1.0, a, b)
	assert.NoError(err)
	ba, err := f.Run(x0, u, 1.0, b, a)
	assert.NoError(err)

	// sequential updates relinearize, so order matters
	assert.False(mat.EqualApprox(ab.Val(), ba.Val(), 1e-12))

	// both orders fuse the same information
	assert.InDeltaSlice(mat.Col(nil, 0, ab.Val()), mat.Col(nil, 0, ba.Val()), 0.5)

	// a failing update aborts the run
	est, err = f.Run(x0, u, 1.0, a, filter.Observation{Landmark: lm, Range: math.NaN()})
	assert.Nil(est)
	assert.Error(err)

	est, err = f.Run(x0, u, -1.0, a)
	assert.Nil(est)
	assert.Error(err)
}

func TestEKFGain(t *testing.T) {
	assert := assert.New(t)

	f, err := New(motion, sensor, q, r)
	require.NoError(t, err)

	pred, _ := f.Predict(x0, u, 1.0)

	gain, err := f.Gain(pred, filter.Observation{Landmark: lm})
	assert.NoError(err)
	rows, cols := gain.Dims()
	assert.Equal(3, rows)
	assert.Equal(2, cols)
	// range gain on x: P00*H00/(H00*P00*H00 + var(r))
	assert.InDelta(-1.01/1.02, gain.At(0, 0), 1e-12)

	gain, err = f.Gain(pred, filter.Observation{Landmark: filter.Landmark{X: 1, Y: 0}})
	assert.Nil(gain)
	assert.True(errors.Is(err, filter.ErrPrecondition))
}
