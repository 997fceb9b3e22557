package sim

import (
	"fmt"
	"image/color"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	truthColor    = color.RGBA{R: 255, B: 128, A: 255}
	filterColor   = color.RGBA{B: 255, A: 255}
	landmarkColor = color.RGBA{R: 169, G: 169, B: 169, A: 255}
)

// NewTrajectoryPlot creates x-y plot of the filtered trajectory and landmark map.
// truth is optional ground truth trajectory and may be nil.
// It returns error if filtered trajectory is nil or has less than 2 state columns,
// or if gonum plot fails to be created.
func NewTrajectoryPlot(filtered, truth *estimate.Trajectory, landmarks []filter.Landmark) (*plot.Plot, error) {
	if filtered == nil || filtered.Len() == 0 {
		return nil, fmt.Errorf("invalid filtered trajectory")
	}

	p := plot.New()

	p.Title.Text = "Estimated trajectory"
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	if truth != nil && truth.Len() > 0 {
		line, err := newLine(truth.States(), 1, 2, truthColor)
		if err != nil {
			return nil, err
		}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("truth", line)
	}

	line, err := newLine(filtered.States(), 1, 2, filterColor)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	p.Legend.Add("filtered", line)

	if len(landmarks) > 0 {
		pts := make(plotter.XYs, len(landmarks))
		for i, l := range landmarks {
			pts[i].X, pts[i].Y = l.X, l.Y
		}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		scatter.GlyphStyle.Color = landmarkColor
		scatter.Shape = draw.PyramidGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(scatter)
		p.Legend.Add("landmarks", scatter)
	}

	return p, nil
}

// NewHeadingPlot creates plot of the filtered heading over time.
// truth is optional ground truth trajectory and may be nil.
func NewHeadingPlot(filtered, truth *estimate.Trajectory) (*plot.Plot, error) {
	if filtered == nil || filtered.Len() == 0 {
		return nil, fmt.Errorf("invalid filtered trajectory")
	}

	p := plot.New()

	p.Title.Text = "Estimated heading"
	p.X.Label.Text = "t [s]"
	p.Y.Label.Text = "theta [rad]"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	if truth != nil && truth.Len() > 0 {
		line, err := newLine(truth.States(), 0, 3, truthColor)
		if err != nil {
			return nil, err
		}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("truth", line)
	}

	line, err := newLine(filtered.States(), 0, 3, filterColor)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	p.Legend.Add("filtered", line)

	return p, nil
}

// Save saves plot p to file path as a square image of size inches.
// Image format is selected by path extension.
func Save(p *plot.Plot, size float64, path string) error {
	return p.Save(vg.Length(size)*vg.Inch, vg.Length(size)*vg.Inch, path)
}

func newLine(m *mat.Dense, xc, yc int, c color.Color) (*plotter.Line, error) {
	pts, err := makePoints(m, xc, yc)
	if err != nil {
		return nil, err
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)

	return line, nil
}

func makePoints(m *mat.Dense, xc, yc int) (plotter.XYs, error) {
	r, c := m.Dims()
	if xc >= c || yc >= c {
		return nil, fmt.Errorf("invalid data dimensions: %d columns", c)
	}

	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, xc)
		pts[i].Y = m.At(i, yc)
	}

	return pts, nil
}
