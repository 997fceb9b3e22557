package kalman

import (
	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"gonum.org/v1/gonum/mat"
)

// Kalman is Kalman Filter
type Kalman interface {
	// filter.Filter is pose estimation filter
	filter.Filter
	// StateNoise returns control a.k.a. process noise
	StateNoise() filter.Noise
	// OutputNoise returns measurement noise
	OutputNoise() filter.Noise
}

// Gainer exposes the Kalman gain computed for an observation.
type Gainer interface {
	// Gain returns Kalman gain for estimate x and observation z
	Gain(x filter.Estimate, z filter.Observation) (mat.Matrix, error)
}
