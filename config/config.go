package config

import (
	"fmt"
	"math"
	"os"

	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/logger"
	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Config is filter run configuration
type Config struct {
	Noise      NoiseConfig   `yaml:"noise"`
	InitialCov []float64     `yaml:"initial_cov"`
	Filter     FilterConfig  `yaml:"filter"`
	Logging    LoggingConfig `yaml:"logging"`
	Output     OutputConfig  `yaml:"output"`
}

// NoiseConfig holds control and measurement noise variances.
type NoiseConfig struct {
	VelocityVar float64 `yaml:"velocity_var"`
	OmegaVar    float64 `yaml:"omega_var"`
	RangeVar    float64 `yaml:"range_var"`
	BearingVar  float64 `yaml:"bearing_var"`
}

// FilterConfig selects filter variant.
type FilterConfig struct {
	// Iterations is number of measurement relinearizations; 1 runs plain EKF
	Iterations int `yaml:"iterations"`
	// ControlBias is added to (v, omega) before propagating the mean state
	ControlBias []float64 `yaml:"control_bias"`
	// Smooth runs backward smoothing pass over the filtered trajectory
	Smooth bool `yaml:"smooth"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// OutputConfig configures run outputs.
type OutputConfig struct {
	// CSV is trajectory CSV file path
	CSV string `yaml:"csv"`
	// Plot is trajectory plot PNG file path
	Plot string `yaml:"plot"`
	// Table prints run summary table
	Table bool `yaml:"table"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Noise: NoiseConfig{
			VelocityVar: 0.01,
			OmegaVar:    0.01,
			RangeVar:    0.01,
			BearingVar:  0.1,
		},
		InitialCov: []float64{1, 1, 0.1},
		Filter: FilterConfig{
			Iterations:  1,
			ControlBias: []float64{0, 0},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Output: OutputConfig{
			Table: true,
		},
	}
}

// Load reads configuration from path on top of Default and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	n := c.Noise
	for name, v := range map[string]float64{
		"velocity_var": n.VelocityVar,
		"omega_var":    n.OmegaVar,
		"range_var":    n.RangeVar,
		"bearing_var":  n.BearingVar,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: noise.%s: invalid variance %g", filter.ErrPrecondition, name, v)
		}
	}

	if n.RangeVar == 0 || n.BearingVar == 0 {
		return fmt.Errorf("%w: measurement noise must be positive definite", filter.ErrPrecondition)
	}

	if len(c.InitialCov) != 3 {
		return fmt.Errorf("%w: initial_cov: expected 3 values, got %d", filter.ErrPrecondition, len(c.InitialCov))
	}

	for i, v := range c.InitialCov {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: initial_cov[%d]: invalid variance %g", filter.ErrPrecondition, i, v)
		}
	}

	if c.Filter.Iterations < 1 {
		return fmt.Errorf("%w: filter.iterations: must be positive, got %d", filter.ErrPrecondition, c.Filter.Iterations)
	}

	if len(c.Filter.ControlBias) != 0 && len(c.Filter.ControlBias) != 2 {
		return fmt.Errorf("%w: filter.control_bias: expected 2 values, got %d",
			filter.ErrPrecondition, len(c.Filter.ControlBias))
	}

	return nil
}

// ProcessCov returns control noise covariance diag(var(v), var(omega)).
func (c *Config) ProcessCov() *mat.SymDense {
	return matrix.NewSymDiag(c.Noise.VelocityVar, c.Noise.OmegaVar)
}

// MeasurementCov returns measurement noise covariance diag(var(r), var(b)).
func (c *Config) MeasurementCov() *mat.SymDense {
	return matrix.NewSymDiag(c.Noise.RangeVar, c.Noise.BearingVar)
}

// InitCov returns initial pose covariance.
func (c *Config) InitCov() *mat.SymDense {
	return matrix.NewSymDiag(c.InitialCov...)
}

// Bias returns velocity and angular velocity control bias.
func (c *Config) Bias() (v, omega float64) {
	if len(c.Filter.ControlBias) != 2 {
		return 0, 0
	}

	return c.Filter.ControlBias[0], c.Filter.ControlBias[1]
}

// Logger returns logger configuration.
func (c *Config) Logger() logger.Config {
	l := c.Logging

	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
		Compress:   l.Compress,
	}
}
