package noise

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"github.com/BhagyeshKothalkar/ekf-ps/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

const psdTol = 1e-12

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution; nil for singular covariance
	dist *distmv.Normal
	// factor satisfies factor*factor' = cov for singular covariance
	factor *mat.Dense
	// std draws standard normal samples for singular covariance
	std *distuv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed seeds the random source; zero means seed from wall clock
	seed uint64
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// The noise source is seeded from the wall clock.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewGaussianSeeded(mean, cov, 0)
}

// NewGaussianSeeded creates new Gaussian noise with given mean and covariance
// whose samples are drawn from a source seeded with seed.
// Seeded noise produces the same sequence of samples after every Reset.
// Singular covariance is accepted: samples do not vary along its null space.
// It returns error if mean and cov dimensions differ or cov is not positive semi-definite.
func NewGaussianSeeded(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("invalid Gaussian noise dimensions: mean %d", len(mean))
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	m := make([]float64, len(mean))
	copy(m, mean)

	g := &Gaussian{
		mean: m,
		cov:  c,
		seed: seed,
	}

	if err := g.Reset(); err != nil {
		return nil, fmt.Errorf("failed to create new Gaussian noise: %w", err)
	}

	return g, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	if g.dist != nil {
		r := g.dist.Rand(nil)
		return mat.NewVecDense(len(r), r)
	}

	n := len(g.mean)
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, g.std.Rand())
	}

	x := &mat.VecDense{}
	x.MulVec(g.factor, z)
	x.AddVec(x, mat.NewVecDense(n, g.Mean()))

	return x
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// Reset resets Gaussian noise.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)

	if dist, ok := distmv.NewNormal(g.mean, g.cov, src); ok {
		g.dist = dist
		return nil
	}

	factor, err := sqrtFactor(g.cov)
	if err != nil {
		return err
	}

	g.dist = nil
	g.factor = factor
	g.std = &distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	return nil
}

// sqrtFactor returns V*sqrt(D) where cov = V*D*V' is eigen decomposition of cov.
// It returns error if cov is not positive semi-definite.
func sqrtFactor(cov *mat.SymDense) (*mat.Dense, error) {
	if !matrix.IsPSD(cov, psdTol) {
		return nil, fmt.Errorf("covariance is not positive semi-definite")
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("covariance eigen decomposition failed")
	}

	vecs := &mat.Dense{}
	eig.VectorsTo(vecs)

	n := cov.SymmetricDim()
	for j, v := range eig.Values(nil) {
		s := math.Sqrt(math.Max(v, 0))
		for i := 0; i < n; i++ {
			vecs.Set(i, j, vecs.At(i, j)*s)
		}
	}

	return vecs, nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
