package model

import (
	"fmt"
	"math"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/angle"
	"gonum.org/v1/gonum/mat"
)

// ObservationDim is the length of observation vector: range, bearing
const ObservationDim = 2

// RangeBearing is a range and bearing sensor observation model.
// The sensor is mounted Offset meters ahead of the robot rotation center
// along the robot forward axis.
type RangeBearing struct {
	// Offset is distance between robot center and the sensor [m]
	Offset float64
}

// NewRangeBearing creates new range bearing sensor model with sensor offset d
func NewRangeBearing(d float64) *RangeBearing {
	return &RangeBearing{Offset: d}
}

// Geometry returns the vector from the sensor to landmark l and its length,
// given robot pose x.
func (s *RangeBearing) Geometry(x mat.Vector, l filter.Landmark) (dx, dy, r float64) {
	theta := angle.Normalize(x.AtVec(2))

	dx = l.X - x.AtVec(0) - s.Offset*math.Cos(theta)
	dy = l.Y - x.AtVec(1) - s.Offset*math.Sin(theta)
	r = math.Sqrt(dx*dx + dy*dy)

	return dx, dy, r
}

// Observe returns range and bearing of landmark l observed from pose x.
// It returns error if x is not a pose vector or the landmark coincides with the sensor.
func (s *RangeBearing) Observe(x mat.Vector, l filter.Landmark) (*mat.VecDense, error) {
	if x == nil || x.Len() != PoseDim {
		return nil, fmt.Errorf("%w: invalid state vector", filter.ErrPrecondition)
	}

	dx, dy, r := s.Geometry(x, l)
	if r == 0 {
		return nil, degenerate(l)
	}

	theta := angle.Normalize(x.AtVec(2))

	return mat.NewVecDense(ObservationDim, []float64{
		r,
		angle.Normalize(math.Atan2(dy, dx) - theta),
	}), nil
}

// Jacobian returns Jacobian of the observation model with respect to the state
// for landmark l evaluated at pose x.
// It returns error if x is not a pose vector or the landmark coincides with the sensor.
func (s *RangeBearing) Jacobian(x mat.Vector, l filter.Landmark) (*mat.Dense, error) {
	if x == nil || x.Len() != PoseDim {
		return nil, fmt.Errorf("%w: invalid state vector", filter.ErrPrecondition)
	}

	dx, dy, r := s.Geometry(x, l)
	if r == 0 {
		return nil, degenerate(l)
	}

	theta := angle.Normalize(x.AtVec(2))
	sin, cos := math.Sincos(theta)
	d := s.Offset
	r2 := r * r

	return mat.NewDense(ObservationDim, PoseDim, []float64{
		-dx / r, -dy / r, d * (dx*sin - dy*cos) / r,
		dy / r2, -dx / r2, -1 - d*(dy*sin+dx*cos)/r2,
	}), nil
}

func degenerate(l filter.Landmark) error {
	return fmt.Errorf("%w: landmark (%g, %g) coincides with sensor position",
		filter.ErrPrecondition, l.X, l.Y)
}
