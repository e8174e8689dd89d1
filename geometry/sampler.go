package geometry

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// Method selects how interior collocation points are drawn.
type Method uint8

const (
	// Uniform draws points uniformly at random from the bounding box and
	// rejects those outside the domain.
	Uniform Method = iota
	// Halton draws a scrambled Halton low-discrepancy sequence over the
	// bounding box and rejects points outside the domain.
	Halton
)

// ParseMethod maps a configuration string to a sampling Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "uniform", "":
		return Uniform, nil
	case "halton":
		return Halton, nil
	}
	return 0, fmt.Errorf("geometry: unknown sampling method %q", s)
}

// MinPoints is the smallest accepted interior or boundary point count.
// Below this the Monte-Carlo estimate of the energy integral is too noisy
// to drive training, so the sampler fails fast instead.
const MinPoints = 100

// maxRejectFactor bounds rejection sampling effort: at most this many
// candidate draws per accepted point before giving up on the domain.
const maxRejectFactor = 1000

// PointSet is one generation of collocation points. Interior points carry
// the quadrature weight Area/NInterior; boundary points carry outward unit
// normals for the clamped-edge slope condition. A PointSet is replaced
// wholesale on resampling, never merged.
type PointSet struct {
	// Interior collocation points.
	IX, IY []float64
	// Boundary collocation points and their outward unit normals.
	BX, BY   []float64
	BNX, BNY []float64
	// Weight is the quadrature weight of each interior point,
	// Area / len(IX) for uniform-in-area sampling.
	Weight float64
}

// Sampler generates collocation point sets over a Domain. Resampling is a
// variance-reduction device against overfitting a fixed point cloud; it is
// not a convergence guarantee. Each resample event reseeds the generator
// deterministically from Seed and the event index, so any generation can be
// reproduced from the configuration alone.
type Sampler struct {
	Domain    Domain
	NInterior int
	NBoundary int
	Seed      uint64
	Method    Method
}

// NewSampler validates the point budget against MinPoints and returns a
// Sampler.
func NewSampler(d Domain, nInterior, nBoundary int, seed uint64, m Method) (*Sampler, error) {
	if d == nil {
		return nil, fmt.Errorf("geometry: nil domain")
	}
	if nInterior < MinPoints {
		return nil, fmt.Errorf("geometry: %d interior points below minimum %d; energy integral would be unreliable", nInterior, MinPoints)
	}
	if nBoundary < MinPoints {
		return nil, fmt.Errorf("geometry: %d boundary points below minimum %d", nBoundary, MinPoints)
	}
	return &Sampler{Domain: d, NInterior: nInterior, NBoundary: nBoundary, Seed: seed, Method: m}, nil
}

// Sample generates the point set for the given resample event index.
// Index 0 is the initial cloud; the Trainer increments the index on each
// scheduled resampling event.
func (s *Sampler) Sample(resampleIndex int) (*PointSet, error) {
	src := rand.NewPCG(s.Seed, uint64(resampleIndex))
	var err error
	ps := &PointSet{
		IX: make([]float64, 0, s.NInterior),
		IY: make([]float64, 0, s.NInterior),
	}
	switch s.Method {
	case Uniform:
		err = s.sampleUniform(ps, src)
	case Halton:
		err = s.sampleHalton(ps, src)
	default:
		err = fmt.Errorf("geometry: unknown sampling method %d", s.Method)
	}
	if err != nil {
		return nil, err
	}
	ps.Weight = s.Domain.Area() / float64(len(ps.IX))

	ps.BX = make([]float64, s.NBoundary)
	ps.BY = make([]float64, s.NBoundary)
	ps.BNX = make([]float64, s.NBoundary)
	ps.BNY = make([]float64, s.NBoundary)
	for i := 0; i < s.NBoundary; i++ {
		t := (float64(i) + 0.5) / float64(s.NBoundary)
		ps.BX[i], ps.BY[i], ps.BNX[i], ps.BNY[i] = s.Domain.Boundary(t)
	}
	return ps, nil
}

func (s *Sampler) sampleUniform(ps *PointSet, src rand.Source) error {
	min, max := s.Domain.Bounds()
	ux := distuv.Uniform{Min: min[0], Max: max[0], Src: src}
	uy := distuv.Uniform{Min: min[1], Max: max[1], Src: src}
	budget := maxRejectFactor * s.NInterior
	for len(ps.IX) < s.NInterior {
		if budget--; budget < 0 {
			return fmt.Errorf("geometry: rejection sampling exhausted after %d draws; domain occupies too little of its bounding box", maxRejectFactor*s.NInterior)
		}
		x, y := ux.Rand(), uy.Rand()
		if s.Domain.Contains(x, y) {
			ps.IX = append(ps.IX, x)
			ps.IY = append(ps.IY, y)
		}
	}
	return nil
}

func (s *Sampler) sampleHalton(ps *PointSet, src rand.Source) error {
	min, max := s.Domain.Bounds()
	bnds := []r1.Interval{
		{Min: min[0], Max: max[0]},
		{Min: min[1], Max: max[1]},
	}
	q := distmv.NewUniform(bnds, nil)
	h := samplemv.Halton{Kind: samplemv.Owen, Q: q, Src: src}
	for rounds := 0; len(ps.IX) < s.NInterior; rounds++ {
		if rounds >= maxRejectFactor {
			return fmt.Errorf("geometry: Halton rejection exhausted after %d rounds", rounds)
		}
		batch := mat.NewDense(s.NInterior, 2, nil)
		h.Sample(batch)
		for i := 0; i < s.NInterior && len(ps.IX) < s.NInterior; i++ {
			x, y := batch.At(i, 0), batch.At(i, 1)
			if s.Domain.Contains(x, y) {
				ps.IX = append(ps.IX, x)
				ps.IY = append(ps.IY, y)
			}
		}
	}
	return nil
}
