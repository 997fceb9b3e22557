package dataset

import (
	"fmt"
	"io"
	"math"
	"os"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/localize"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Dataset is a recorded or simulated localization run.
// Row k of R and B holds measurements of every landmark taken at T[k].
// A range less than or equal to zero marks landmark as not observed.
type Dataset struct {
	// T is timestamps [s]
	T []float64 `yaml:"t"`
	// XInit is initial x position [m]
	XInit float64 `yaml:"x_init"`
	// YInit is initial y position [m]
	YInit float64 `yaml:"y_init"`
	// ThInit is initial heading [rad]
	ThInit float64 `yaml:"th_init"`
	// V is translational velocity at each timestamp [m/s]
	V []float64 `yaml:"v"`
	// Om is angular velocity at each timestamp [rad/s]
	Om []float64 `yaml:"om"`
	// R is measured ranges: len(T) rows, one column per landmark [m]
	R [][]float64 `yaml:"r"`
	// B is measured bearings: len(T) rows, one column per landmark [rad]
	B [][]float64 `yaml:"b"`
	// L is landmark positions, one (x, y) row per landmark [m]
	L [][]float64 `yaml:"l"`
	// D is distance between robot center and sensor [m]
	D float64 `yaml:"d"`
}

// Load reads dataset from YAML or JSON file at path and validates it.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

// Read decodes dataset from r and validates it.
func Read(r io.Reader) (*Dataset, error) {
	d := &Dataset{}
	if err := yaml.NewDecoder(r).Decode(d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

// Save writes dataset to path as YAML.
func (d *Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Write encodes dataset to w as YAML.
func (d *Dataset) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	return enc.Close()
}

// Validate checks dataset consistency.
// It returns filter.ErrPrecondition if series lengths differ, timestamps
// decrease, or landmark rows are not (x, y) pairs.
func (d *Dataset) Validate() error {
	n := len(d.T)
	if n == 0 {
		return fmt.Errorf("%w: empty dataset", filter.ErrPrecondition)
	}

	if len(d.V) != n || len(d.Om) != n {
		return fmt.Errorf("%w: control length mismatch: t=%d v=%d om=%d",
			filter.ErrPrecondition, n, len(d.V), len(d.Om))
	}

	if len(d.R) != n || len(d.B) != n {
		return fmt.Errorf("%w: measurement length mismatch: t=%d r=%d b=%d",
			filter.ErrPrecondition, n, len(d.R), len(d.B))
	}

	for i, l := range d.L {
		if len(l) != 2 {
			return fmt.Errorf("%w: landmark %d: expected 2 coordinates, got %d",
				filter.ErrPrecondition, i, len(l))
		}
	}

	for k := 0; k < n; k++ {
		if k > 0 && d.T[k] < d.T[k-1] {
			return fmt.Errorf("%w: timestamp %d decreases: %g < %g",
				filter.ErrPrecondition, k, d.T[k], d.T[k-1])
		}

		if len(d.R[k]) != len(d.L) || len(d.B[k]) != len(d.L) {
			return fmt.Errorf("%w: step %d: expected %d measurements, got r=%d b=%d",
				filter.ErrPrecondition, k, len(d.L), len(d.R[k]), len(d.B[k]))
		}
	}

	return nil
}

// Landmarks returns dataset landmark map.
func (d *Dataset) Landmarks() []filter.Landmark {
	lms := make([]filter.Landmark, len(d.L))
	for i, l := range d.L {
		lms[i] = filter.Landmark{X: l[0], Y: l[1]}
	}

	return lms
}

// InitCond returns initial pose condition with covariance cov.
func (d *Dataset) InitCond(cov mat.Symmetric) (*model.InitCond, error) {
	return model.NewPoseInitCond(d.XInit, d.YInit, d.ThInit, cov)
}

// Steps returns filter steps for every timestamp after the first one.
// Landmarks with non-positive or non-finite range are left out of a step.
func (d *Dataset) Steps() []localize.Step {
	lms := d.Landmarks()

	steps := make([]localize.Step, 0, len(d.T))
	for k := 1; k < len(d.T); k++ {
		s := localize.Step{
			Time:    d.T[k],
			Control: filter.Control{V: d.V[k], Omega: d.Om[k]},
		}

		for j, l := range lms {
			r := d.R[k][j]
			if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			s.Observations = append(s.Observations, filter.Observation{
				Landmark: l,
				Range:    r,
				Bearing:  d.B[k][j],
			})
		}

		steps = append(steps, s)
	}

	return steps
}
