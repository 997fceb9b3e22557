package estimate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"gonum.org/v1/gonum/mat"
)

// Point is a timestamped estimate
type Point struct {
	// Time is estimate timestamp [s]
	Time float64
	// Estimate is the estimate at Time
	Estimate filter.Estimate
}

// Trajectory is an append-only sequence of estimates ordered by time.
type Trajectory struct {
	points []Point
}

// NewTrajectory creates new empty trajectory with capacity for n points.
func NewTrajectory(n int) *Trajectory {
	if n < 0 {
		n = 0
	}

	return &Trajectory{
		points: make([]Point, 0, n),
	}
}

// Append appends estimate e taken at the given time to the trajectory.
// It returns error if e is nil or time precedes the time of the last point.
func (t *Trajectory) Append(time float64, e filter.Estimate) error {
	if e == nil {
		return fmt.Errorf("invalid estimate: %v", e)
	}

	if n := len(t.points); n > 0 && time < t.points[n-1].Time {
		return fmt.Errorf("%w: time %g precedes last trajectory time %g",
			filter.ErrPrecondition, time, t.points[n-1].Time)
	}

	t.points = append(t.points, Point{Time: time, Estimate: e})

	return nil
}

// Len returns number of points in the trajectory
func (t *Trajectory) Len() int {
	return len(t.points)
}

// At returns i-th trajectory point.
// It panics if i is out of range.
func (t *Trajectory) At(i int) Point {
	return t.points[i]
}

// Last returns the last trajectory point.
// It returns false if the trajectory is empty.
func (t *Trajectory) Last() (Point, bool) {
	if len(t.points) == 0 {
		return Point{}, false
	}

	return t.points[len(t.points)-1], true
}

// Points returns a copy of all trajectory points
func (t *Trajectory) Points() []Point {
	points := make([]Point, len(t.points))
	copy(points, t.points)

	return points
}

// Times returns trajectory timestamps
func (t *Trajectory) Times() []float64 {
	times := make([]float64, len(t.points))
	for i, p := range t.points {
		times[i] = p.Time
	}

	return times
}

// States returns a matrix whose rows store time followed by the estimated state.
func (t *Trajectory) States() *mat.Dense {
	if len(t.points) == 0 {
		return &mat.Dense{}
	}

	nx := t.points[0].Estimate.Val().Len()
	m := mat.NewDense(len(t.points), nx+1, nil)
	for i, p := range t.points {
		m.Set(i, 0, p.Time)
		val := p.Estimate.Val()
		for j := 0; j < nx && j < val.Len(); j++ {
			m.Set(i, j+1, val.AtVec(j))
		}
	}

	return m
}

// WriteCSV writes the trajectory to w as CSV. Each record holds time,
// the state vector and the row-major covariance matrix.
func (t *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if len(t.points) > 0 {
		nx := t.points[0].Estimate.Val().Len()
		header := []string{"t"}
		for i := 0; i < nx; i++ {
			header = append(header, stateColumn(i))
		}
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				header = append(header, fmt.Sprintf("p%d%d", i, j))
			}
		}
		if err := cw.Write(header); err != nil {
			return err
		}
	}

	for _, p := range t.points {
		val := p.Estimate.Val()
		cov := p.Estimate.Cov()
		n := cov.SymmetricDim()

		rec := make([]string, 0, 1+val.Len()+n*n)
		rec = append(rec, formatFloat(p.Time))
		for i := 0; i < val.Len(); i++ {
			rec = append(rec, formatFloat(val.AtVec(i)))
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				rec = append(rec, formatFloat(cov.At(i, j)))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func stateColumn(i int) string {
	switch i {
	case 0:
		return "x"
	case 1:
		return "y"
	case 2:
		return "theta"
	}

	return fmt.Sprintf("x%d", i)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
