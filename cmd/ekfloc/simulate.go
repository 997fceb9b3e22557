package main

import (
	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/logger"
	"github.com/BhagyeshKothalkar/ekf-ps/sim"
	"github.com/spf13/cobra"
)

var defaultLandmarks = []filter.Landmark{
	{X: 10, Y: 0},
	{X: 10, Y: 15},
	{X: -5, Y: 20},
	{X: -12, Y: 5},
}

func doSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.Init(cfg.Logger())

	flags := cmd.Flags()
	out, err := flags.GetString("out")
	if err != nil {
		return err
	}
	steps, err := flags.GetInt("steps")
	if err != nil {
		return err
	}
	dt, err := flags.GetFloat64("dt")
	if err != nil {
		return err
	}
	v, err := flags.GetFloat64("v")
	if err != nil {
		return err
	}
	omega, err := flags.GetFloat64("omega")
	if err != nil {
		return err
	}
	offset, err := flags.GetFloat64("offset")
	if err != nil {
		return err
	}
	maxRange, err := flags.GetFloat64("max-range")
	if err != nil {
		return err
	}
	seed, err := flags.GetUint64("seed")
	if err != nil {
		return err
	}

	d, _, err := sim.Simulate(sim.Config{
		Steps:          steps,
		Dt:             dt,
		V:              v,
		Omega:          omega,
		Landmarks:      defaultLandmarks,
		Offset:         offset,
		MaxRange:       maxRange,
		ControlCov:     cfg.ProcessCov(),
		MeasurementCov: cfg.MeasurementCov(),
		Seed:           seed,
	})
	if err != nil {
		return err
	}

	if err := d.Save(out); err != nil {
		return err
	}
	log.Info("dataset written", "path", out, "steps", steps, "landmarks", len(defaultLandmarks))

	return nil
}
