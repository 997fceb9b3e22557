package sim

import (
	"fmt"
	"math"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"github.com/BhagyeshKothalkar/ekf-ps/dataset"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	"gonum.org/v1/gonum/mat"
)

// ControlFunc returns commanded control at step k and time t.
type ControlFunc func(k int, t float64) filter.Control

// Config configures simulation run
type Config struct {
	// Steps is number of simulated time steps after the initial one
	Steps int
	// Dt is simulation time step [s]
	Dt float64
	// X, Y, Theta is true initial pose
	X, Y, Theta float64
	// Control returns commanded control; nil drives constant V and Omega
	Control ControlFunc
	// V is constant translational velocity used when Control is nil [m/s]
	V float64
	// Omega is constant angular velocity used when Control is nil [rad/s]
	Omega float64
	// Landmarks is landmark map
	Landmarks []filter.Landmark
	// Offset is sensor offset from robot center along heading [m]
	Offset float64
	// MaxRange limits sensing range; zero means unlimited [m]
	MaxRange float64
	// ControlCov is odometry noise covariance; nil records exact controls
	ControlCov mat.Symmetric
	// MeasurementCov is range and bearing noise covariance; nil records exact measurements
	MeasurementCov mat.Symmetric
	// Seed seeds noise sources; zero seeds from wall clock
	Seed uint64
}

// Simulate drives a robot along the commanded controls and records noisy
// odometry and landmark measurements. It returns the recorded dataset and
// the ground truth trajectory.
func Simulate(c Config) (*dataset.Dataset, *estimate.Trajectory, error) {
	if c.Steps < 0 || c.Dt <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid simulation steps %d or time step %g",
			filter.ErrPrecondition, c.Steps, c.Dt)
	}

	ctrl := c.Control
	if ctrl == nil {
		ctrl = func(int, float64) filter.Control {
			return filter.Control{V: c.V, Omega: c.Omega}
		}
	}

	qn, err := newNoise(c.ControlCov, c.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("control noise: %w", err)
	}

	var rseed uint64
	if c.Seed != 0 {
		rseed = c.Seed + 1
	}
	rn, err := newNoise(c.MeasurementCov, rseed)
	if err != nil {
		return nil, nil, fmt.Errorf("measurement noise: %w", err)
	}

	motion := model.NewUnicycle()
	sensor := model.NewRangeBearing(c.Offset)

	n := c.Steps + 1
	d := &dataset.Dataset{
		T:      make([]float64, n),
		XInit:  c.X,
		YInit:  c.Y,
		ThInit: angle.Normalize(c.Theta),
		V:      make([]float64, n),
		Om:     make([]float64, n),
		R:      make([][]float64, n),
		B:      make([][]float64, n),
		L:      make([][]float64, len(c.Landmarks)),
		D:      c.Offset,
	}
	for i, l := range c.Landmarks {
		d.L[i] = []float64{l.X, l.Y}
	}

	truth := estimate.NewTrajectory(n)
	x := mat.NewVecDense(model.PoseDim, []float64{c.X, c.Y, d.ThInit})

	for k := 0; k < n; k++ {
		t := float64(k) * c.Dt
		u := ctrl(k, t)

		if k > 0 {
			if x, err = motion.Propagate(x, u, c.Dt); err != nil {
				return nil, nil, err
			}
		}

		e, err := estimate.NewBaseWithCov(x, mat.NewSymDense(model.PoseDim, nil))
		if err != nil {
			return nil, nil, err
		}
		if err := truth.Append(t, e); err != nil {
			return nil, nil, err
		}

		w := qn.Sample()
		d.T[k] = t
		d.V[k] = u.V + w.AtVec(0)
		d.Om[k] = u.Omega + w.AtVec(1)
		d.R[k], d.B[k] = measure(sensor, rn, x, c.Landmarks, c.MaxRange)
	}

	return d, truth, nil
}

func measure(s *model.RangeBearing, rn filter.Noise, x mat.Vector, lms []filter.Landmark, maxRange float64) ([]float64, []float64) {
	r := make([]float64, len(lms))
	b := make([]float64, len(lms))

	for j, l := range lms {
		z, err := s.Observe(x, l)
		if err != nil {
			continue
		}

		if maxRange > 0 && z.AtVec(0) > maxRange {
			continue
		}

		v := rn.Sample()
		// noise must not turn an observation into a missing one
		r[j] = math.Max(z.AtVec(0)+v.AtVec(0), math.SmallestNonzeroFloat64)
		b[j] = angle.Normalize(z.AtVec(1) + v.AtVec(1))
	}

	return r, b
}

func newNoise(cov mat.Symmetric, seed uint64) (filter.Noise, error) {
	if cov == nil {
		return noise.NewZero(2)
	}

	return noise.NewGaussianSeeded([]float64{0, 0}, cov, seed)
}
