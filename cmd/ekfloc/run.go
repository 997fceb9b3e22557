package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/config"
	"github.com/BhagyeshKothalkar/ekf-ps/dataset"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
	"github.com/BhagyeshKothalkar/ekf-ps/kalman"
	"github.com/BhagyeshKothalkar/ekf-ps/kalman/ekf"
	"github.com/BhagyeshKothalkar/ekf-ps/localize"
	"github.com/BhagyeshKothalkar/ekf-ps/logger"
	"github.com/BhagyeshKothalkar/ekf-ps/model"
	"github.com/BhagyeshKothalkar/ekf-ps/noise"
	"github.com/BhagyeshKothalkar/ekf-ps/sim"
	"github.com/BhagyeshKothalkar/ekf-ps/smooth/erts"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func doRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := overrideOutput(cmd, cfg); err != nil {
		return err
	}

	log := logger.Init(cfg.Logger())

	dataPath, err := cmd.Flags().GetString("data")
	if err != nil {
		return err
	}
	d, err := dataset.Load(dataPath)
	if err != nil {
		return err
	}
	log.Info("dataset loaded", "path", dataPath, "steps", len(d.T), "landmarks", len(d.L))

	f, err := newFilter(cfg, d.D)
	if err != nil {
		return err
	}

	ic, err := d.InitCond(cfg.InitCov())
	if err != nil {
		return err
	}

	lp, err := localize.New(f, localize.WithLogger(log))
	if err != nil {
		return err
	}

	start := time.Now()
	steps := d.Steps()
	traj, err := lp.Run(ic, d.T[0], steps)
	if err != nil {
		return err
	}

	if cfg.Filter.Smooth {
		controls := make([]filter.Control, len(steps))
		for i, s := range steps {
			controls[i] = s.Control
		}

		s, err := erts.New(f.Model(), f.StateNoise())
		if err != nil {
			return err
		}
		if traj, err = s.Smooth(traj, controls); err != nil {
			return err
		}
		log.Info("trajectory smoothed", "points", traj.Len())
	}
	elapsed := time.Since(start)

	if cfg.Output.CSV != "" {
		if err := writeCSV(traj, cfg.Output.CSV); err != nil {
			return err
		}
		log.Info("trajectory written", "path", cfg.Output.CSV)
	}

	if cfg.Output.Plot != "" {
		if err := writePlots(traj, d.Landmarks(), cfg.Output.Plot); err != nil {
			return err
		}
		log.Info("plots written", "path", cfg.Output.Plot)
	}

	if cfg.Output.Table {
		renderSummary(cmd.OutOrStdout(), traj, steps, elapsed)
	}

	return nil
}

func overrideOutput(cmd *cobra.Command, cfg *config.Config) error {
	csvPath, err := cmd.Flags().GetString("csv")
	if err != nil {
		return err
	}
	if csvPath != "" {
		cfg.Output.CSV = csvPath
	}

	plotPath, err := cmd.Flags().GetString("plot")
	if err != nil {
		return err
	}
	if plotPath != "" {
		cfg.Output.Plot = plotPath
	}

	smoothed, err := cmd.Flags().GetBool("smooth")
	if err != nil {
		return err
	}
	if smoothed {
		cfg.Filter.Smooth = true
	}

	return nil
}

// runFilter is a Kalman filter whose motion model can be used for smoothing.
type runFilter interface {
	kalman.Kalman
	Model() *model.Unicycle
}

func newFilter(cfg *config.Config, offset float64) (runFilter, error) {
	q, err := newNoise(cfg.ProcessCov())
	if err != nil {
		return nil, fmt.Errorf("control noise: %w", err)
	}
	r, err := newNoise(cfg.MeasurementCov())
	if err != nil {
		return nil, fmt.Errorf("measurement noise: %w", err)
	}

	motion := model.NewUnicycle()
	motion.VelocityBias, motion.OmegaBias = cfg.Bias()
	sensor := model.NewRangeBearing(offset)

	if cfg.Filter.Iterations > 1 {
		f, err := ekf.NewIter(motion, sensor, q, r, cfg.Filter.Iterations)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	f, err := ekf.New(motion, sensor, q, r)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newNoise(cov *mat.SymDense) (filter.Noise, error) {
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		if cov.At(i, i) != 0 {
			return noise.NewGaussian(make([]float64, n), cov)
		}
	}
	return noise.NewZero(n)
}

func writeCSV(traj *estimate.Trajectory, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := traj.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePlots(traj *estimate.Trajectory, lms []filter.Landmark, path string) error {
	p, err := sim.NewTrajectoryPlot(traj, nil, lms)
	if err != nil {
		return err
	}
	if err := sim.Save(p, 6, path); err != nil {
		return err
	}

	h, err := sim.NewHeadingPlot(traj, nil)
	if err != nil {
		return err
	}
	ext := filepath.Ext(path)
	return sim.Save(h, 6, strings.TrimSuffix(path, ext)+"-heading"+ext)
}

func renderSummary(w io.Writer, traj *estimate.Trajectory, steps []localize.Step, elapsed time.Duration) {
	obs := 0
	for _, s := range steps {
		obs += len(s.Observations)
	}

	last, _ := traj.Last()
	x := last.Estimate.Val()
	p := last.Estimate.Cov()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.SeparateColumns = true
	style.Options.DrawBorder = true
	tw.SetStyle(style)

	tw.AppendHeader(table.Row{"", "x [m]", "y [m]", "theta [rad]"})
	tw.AppendRow(table.Row{"final pose", fmtFloat(x.AtVec(0)), fmtFloat(x.AtVec(1)), fmtFloat(x.AtVec(2))})
	tw.AppendRow(table.Row{"final std dev",
		fmtFloat(math.Sqrt(p.At(0, 0))), fmtFloat(math.Sqrt(p.At(1, 1))), fmtFloat(math.Sqrt(p.At(2, 2)))})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"steps", len(steps)})
	tw.AppendRow(table.Row{"observations", obs})
	tw.AppendRow(table.Row{"duration", elapsed.Round(time.Microsecond)})
	tw.Render()
}

func fmtFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
