package angle

import "math"

// Normalize wraps theta into the half-open interval (-Pi, Pi].
// Angles already in range are returned unchanged, which makes Normalize idempotent.
// NaN or infinite input yields NaN.
func Normalize(theta float64) float64 {
	if theta > -math.Pi && theta <= math.Pi {
		return theta
	}

	a := math.Mod(theta+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	a -= math.Pi

	// a tiny positive remainder can round to exactly -Pi
	if a <= -math.Pi {
		a = math.Pi
	}

	return a
}

// Diff returns the wrapped difference a - b.
func Diff(a, b float64) float64 {
	return Normalize(a - b)
}
