package filter

import "gonum.org/v1/gonum/mat"

// Filter is a pose estimation filter.
type Filter interface {
	// Predict propagates estimate x through the motion model driven by u over dt
	Predict(x Estimate, u Control, dt float64) (Estimate, error)
	// Update corrects estimate x using a single landmark observation z
	Update(x Estimate, z Observation) (Estimate, error)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is additive system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// Control is odometry input: commanded translational and angular velocity.
type Control struct {
	// V is translational velocity [m/s]
	V float64
	// Omega is angular velocity [rad/s]
	Omega float64
}

// Landmark is a landmark with a known position in the world frame.
type Landmark struct {
	X float64
	Y float64
}

// Observation is a range and bearing measurement of a known landmark
// taken from the sensor frame.
type Observation struct {
	// Landmark is the observed landmark
	Landmark Landmark
	// Range is measured distance to the landmark [m]
	Range float64
	// Bearing is measured angle to the landmark relative to robot heading [rad]
	Bearing float64
}
