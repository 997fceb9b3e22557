package smooth

import (
	filter "github.com/BhagyeshKothalkar/ekf-ps"
	"github.com/BhagyeshKothalkar/ekf-ps/estimate"
)

// Smoother smooths filtered trajectory using all of its estimates.
type Smoother interface {
	// Smooth returns smoothed trajectory given filtered trajectory traj
	// and controls u, where u[k] drives the transition from point k to k+1
	Smooth(traj *estimate.Trajectory, u []filter.Control) (*estimate.Trajectory, error)
}
