package localize

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"testing"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/kalman/ekf"
	"github.com/BhagyeshKothalkar/ekf-ps/logger"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var (
	f     *ekf.EKF
	ic    *model.InitCond
	quiet Option
)

func setup() {
	q, _ := noise.NewGaussian([]float64{0, 0}, matrix.NewSymDiag(0.01, 0.01))
	r, _ := noise.NewGaussian([]float64{0, 0}, matrix.NewSymDiag(0.01, 0.1))
	f, _ = ekf.New(model.NewUnicycle(), model.NewRangeBearing(0), q, r)

	ic, _ = model.NewPoseInitCond(0, 0, 0, matrix.NewSymDiag(1, 1, 0.1))
	quiet = WithLogger(logger.New(logger.Config{Output: io.Discard}))
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	lp, err := New(f, quiet)
	assert.NotNil(lp)
	assert.NoError(err)

	lp, err = New(nil)
	assert.Nil(lp)
	assert.True(errors.Is(err, filter.ErrPrecondition))
}

func TestRunScenario(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	lp, err := New(f, WithLogger(logger.New(logger.Config{Level: "debug", Output: &buf})))
	require.NoError(t, err)

	steps := []Step{
		{
			Time:         1,
			Control:      filter.Control{V: 1, Omega: 0},
			Observations: []filter.Observation{{Landmark: filter.Landmark{X: 10, Y: 0}, Range: 9, Bearing: 0}},
		},
	}

	traj, err := lp.Run(ic, 0, steps)
	require.NoError(t, err)
	assert.Equal(2, traj.Len())

	first := traj.At(0)
	assert.Equal(0.0, first.Time)
	assert.True(mat.Equal(ic.State(), first.Estimate.Val()))

	last, ok := traj.Last()
	assert.True(ok)
	assert.Equal(1.0, last.Time)

	x := last.Estimate.Val()
	assert.InDelta(1.0, x.AtVec(0), 1e-9)
	assert.InDelta(0.0, x.AtVec(1), 1e-9)
	assert.InDelta(0.0, x.AtVec(2), 1e-9)

	// predicted covariance diagonal is (1.01, 1.1, 0.11)
	p := last.Estimate.Cov()
	assert.Less(p.At(0, 0), 1.01)
	assert.Less(p.At(1, 1), 1.1)
	assert.Less(p.At(2, 2), 0.11)

	assert.Contains(buf.String(), "filter step")
	assert.Contains(buf.String(), "filter run finished")
}

func TestRunNoSteps(t *testing.T) {
	assert := assert.New(t)

	lp, _ := New(f, quiet)
	traj, err := lp.Run(ic, 2.5, nil)
	assert.NoError(err)
	assert.Equal(1, traj.Len())
	assert.Equal(2.5, traj.At(0).Time)
}

func TestRunCovarianceStaysPSD(t *testing.T) {
	assert := assert.New(t)

	rnd := rand.New(rand.NewSource(42))
	motion := model.NewUnicycle()
	sensor := model.NewRangeBearing(0)
	landmarks := []filter.Landmark{{X: 10, Y: 0}, {X: -5, Y: 8}, {X: 3, Y: -12}}

	truth := mat.NewVecDense(3, []float64{0, 0, 0})
	steps := make([]Step, 0, 60)
	tm := 0.0
	for k := 0; k < 60; k++ {
		dt := 0.1 + 0.4*rnd.Float64()
		u := filter.Control{V: 1 + 0.2*(rnd.Float64()-0.5), Omega: 0.3 + 0.1*(rnd.Float64()-0.5)}

		var err error
		truth, err = motion.Propagate(truth, u, dt)
		require.NoError(t, err)

		var zs []filter.Observation
		for _, l := range landmarks {
			z, err := sensor.Observe(truth, l)
			require.NoError(t, err)
			zs = append(zs, filter.Observation{
				Landmark: l,
				Range:    z.AtVec(0) + 0.1*(rnd.Float64()-0.5),
				Bearing:  z.AtVec(1) + 0.05*(rnd.Float64()-0.5),
			})
		}

		tm += dt
		steps = append(steps, Step{Time: tm, Control: u, Observations: zs})
	}

	lp, _ := New(f, quiet)
	traj, err := lp.Run(ic, 0, steps)
	require.NoError(t, err)
	assert.Equal(61, traj.Len())

	for _, pt := range traj.Points() {
		p := pt.Estimate.Cov()
		assert.True(matrix.IsSymmetric(p, 1e-12))
		assert.True(matrix.IsPSD(p, 1e-12))
		th := pt.Estimate.Val().AtVec(2)
		assert.True(th > -math.Pi && th <= math.Pi)
	}

	last, _ := traj.Last()
	assert.InDelta(truth.AtVec(0), last.Estimate.Val().AtVec(0), 0.5)
	assert.InDelta(truth.AtVec(1), last.Estimate.Val().AtVec(1), 0.5)
}

func TestRunNegativeDt(t *testing.T) {
	assert := assert.New(t)

	lp, _ := New(f, quiet)
	steps := []Step{
		{Time: 1, Control: filter.Control{V: 1}},
		{Time: 0.5, Control: filter.Control{V: 1}},
	}

	traj, err := lp.Run(ic, 0, steps)
	assert.Nil(traj)
	assert.True(errors.Is(err, filter.ErrPrecondition))

	var stepErr *filter.StepError
	assert.True(errors.As(err, &stepErr))
	assert.Equal(2, stepErr.Step)
}

func TestRunDegenerateGeometry(t *testing.T) {
	assert := assert.New(t)

	lp, _ := New(f, quiet)
	steps := []Step{
		{Time: 1, Control: filter.Control{V: 1}},
		{
			Time:         2,
			Control:      filter.Control{V: 1},
			Observations: []filter.Observation{{Landmark: filter.Landmark{X: 2, Y: 0}, Range: 1, Bearing: 0}},
		},
	}

	traj, err := lp.Run(ic, 0, steps)
	assert.Nil(traj)
	assert.True(errors.Is(err, filter.ErrPrecondition))

	var stepErr *filter.StepError
	assert.True(errors.As(err, &stepErr))
	assert.Equal(2, stepErr.Step)
}

func TestRunNilInitCond(t *testing.T) {
	assert := assert.New(t)

	lp, _ := New(f, quiet)
	traj, err := lp.Run(nil, 0, nil)
	assert.Nil(traj)
	assert.True(errors.Is(err, filter.ErrPrecondition))
}

func TestRunStepIndex(t *testing.T) {
	assert := assert.New(t)

	lp, _ := New(f, quiet)

	// first step is timestep 1: timestep 0 is the initial condition
	_, err := lp.Run(ic, 0, []Step{{Time: -1}})
	var stepErr *filter.StepError
	assert.True(errors.As(err, &stepErr))
	assert.Equal(1, stepErr.Step)

	// failing timestep index addresses the last good trajectory point plus one
	steps := []Step{
		{Time: 1, Control: filter.Control{V: 1}},
		{Time: 2, Control: filter.Control{V: 1}},
		{Time: 3, Observations: []filter.Observation{{Landmark: filter.Landmark{X: 10}, Range: math.NaN()}}},
	}
	_, err = lp.Run(ic, 0, steps)
	assert.True(errors.Is(err, filter.ErrNumerical))
	assert.True(errors.As(err, &stepErr))
	assert.Equal(3, stepErr.Step)

	traj, err := lp.Run(ic, 0, steps[:2])
	require.NoError(t, err)
	assert.Equal(stepErr.Step, traj.Len())
}
