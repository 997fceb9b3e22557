package localize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/logger"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
)

const (
	symTol = 1e-9
	psdTol = 1e-9
)

// Step is a single filter input: control applied since the previous step
// and observations taken at Time.
type Step struct {
	// Time is step timestamp [s]
	Time float64
	// Control is odometry input applied over the step
	Control filter.Control
	// Observations are landmark observations taken at Time, applied in order
	Observations []filter.Observation
}

// Option configures Loop.
type Option func(*Loop)

// WithLogger sets loop logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		lp.log = l
	}
}

// Loop drives filter over step sequences.
type Loop struct {
	f   filter.Filter
	log *slog.Logger
}

// New creates new filter loop and returns it.
// It returns error if f is nil.
func New(f filter.Filter, opts ...Option) (*Loop, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil filter", filter.ErrPrecondition)
	}

	lp := &Loop{f: f}
	for _, opt := range opts {
		opt(lp)
	}

	if lp.log == nil {
		lp.log = logger.L()
	}

	return lp, nil
}

// Run filters steps starting from initial condition ic at time t0 and returns
// the filtered trajectory. The first trajectory point is ic at t0.
// Run stops at the first failing step and returns *filter.StepError whose
// Step is the timestep index: steps[k] is reported as k+1.
func (lp *Loop) Run(ic filter.InitCond, t0 float64, steps []Step) (*estimate.Trajectory, error) {
	if ic == nil {
		return nil, fmt.Errorf("%w: nil initial condition", filter.ErrPrecondition)
	}

	x, err := estimate.NewBaseWithCov(ic.State(), ic.Cov())
	if err != nil {
		return nil, fmt.Errorf("%w: initial condition: %v", filter.ErrPrecondition, err)
	}

	traj := estimate.NewTrajectory(len(steps) + 1)
	if err := traj.Append(t0, x); err != nil {
		return nil, err
	}

	start := time.Now()
	var est filter.Estimate = x
	prev := t0
	obs := 0

	for k, s := range steps {
		est, err = lp.step(est, s, s.Time-prev)
		if err != nil {
			lp.log.Error("filter step failed", "step", k+1, "time", s.Time, "error", err)
			return nil, &filter.StepError{Step: k + 1, Err: err}
		}

		if err := traj.Append(s.Time, est); err != nil {
			return nil, &filter.StepError{Step: k + 1, Err: err}
		}

		if lp.log.Enabled(context.Background(), slog.LevelDebug) {
			v := est.Val()
			lp.log.Debug("filter step",
				"step", k+1,
				"time", s.Time,
				"observations", len(s.Observations),
				"x", v.AtVec(0),
				"y", v.AtVec(1),
				"theta", v.AtVec(2))
		}

		prev = s.Time
		obs += len(s.Observations)
	}

	lp.log.Info("filter run finished",
		"steps", len(steps),
		"observations", obs,
		"duration", time.Since(start))

	return traj, nil
}

func (lp *Loop) step(x filter.Estimate, s Step, dt float64) (filter.Estimate, error) {
	if dt < 0 {
		return nil, fmt.Errorf("%w: negative time step %g", filter.ErrPrecondition, dt)
	}

	est, err := lp.f.Predict(x, s.Control, dt)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	for i, z := range s.Observations {
		est, err = lp.f.Update(est, z)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
	}

	if err := validate(est); err != nil {
		return nil, err
	}

	return est, nil
}

func validate(x filter.Estimate) error {
	if !matrix.IsFinite(x.Val()) {
		return fmt.Errorf("%w: non-finite state", filter.ErrNumerical)
	}

	p := x.Cov()
	if !matrix.IsSymmetric(p, symTol) {
		return fmt.Errorf("%w: asymmetric covariance", filter.ErrNumerical)
	}

	if !matrix.IsPSD(p, psdTol) {
		return fmt.Errorf("%w: covariance not positive semi-definite", filter.ErrNumerical)
	}

	return nil
}
