package field

import (
	"math/rand/v2"
	"testing"

	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/jet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func TestConstrainedRequiresDistanceFactor(t *testing.T) {
	n := testNet(t, MembraneOutputs, 1)
	poly, err := geometry.NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	require.NoError(t, err)
	_, err = NewConstrained(n, poly, true)
	assert.Error(t, err, "polygons cannot hard-constrain the boundary")
}

func TestConstrainedVanishesOnBoundary(t *testing.T) {
	dom := geometry.Ellipse{A: 2, B: 1.5}
	n := testNet(t, PlateOutputs, 7)
	c, err := NewConstrained(n, dom, true)
	require.NoError(t, err)

	out := make([]jet.Jet, PlateOutputs)
	for i := 0; i < 32; i++ {
		x, y, nx, ny := dom.Boundary(float64(i) / 32)
		c.EvalJet(x, y, out)
		for o := range out {
			assert.InDelta(t, 0.0, out[o].Val, 1e-10, "displacement must vanish on the clamped edge")
		}
		// Clamped wrapping (squared factor) also kills the normal slope.
		slope := out[0].Dx*nx + out[0].Dy*ny
		assert.InDelta(t, 0.0, slope, 1e-10)
	}

	// Interior values are unconstrained.
	c.EvalJet(0.4, 0.3, out)
	assert.NotZero(t, out[0].Val)
}

func TestSimplySupportedKeepsSlope(t *testing.T) {
	dom := geometry.Disk{R: 1}
	n := testNet(t, MembraneOutputs, 13)
	c, err := NewConstrained(n, dom, false)
	require.NoError(t, err)

	out := make([]jet.Jet, MembraneOutputs)
	x, y, nx, ny := dom.Boundary(0.2)
	c.EvalJet(x, y, out)
	assert.InDelta(t, 0.0, out[0].Val, 1e-10)
	slope := out[0].Dx*nx + out[0].Dy*ny
	assert.NotZero(t, slope, "unsquared factor leaves the slope free")
}

func TestConstrainedBackpropAgainstFiniteDifferences(t *testing.T) {
	dom := geometry.Rect{HalfW: 1.2, HalfH: 0.8}
	n := testNet(t, MembraneOutputs, 19)
	c, err := NewConstrained(n, dom, true)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(31, 0))
	adj := []jet.Jet{{
		Val: rng.Float64(), Dx: rng.Float64(), Dy: rng.Float64(),
		Dxx: rng.Float64(), Dxy: rng.Float64(), Dyy: rng.Float64(),
	}}
	x0, y0 := 0.3, -0.2

	grad := make([]float64, c.NumParams())
	c.Backprop(x0, y0, adj, grad)

	p0 := c.Params(nil)
	out := make([]jet.Jet, MembraneOutputs)
	loss := func(p []float64) float64 {
		c.SetParams(p)
		c.EvalJet(x0, y0, out)
		a := adj[0]
		o := out[0]
		return a.Val*o.Val + a.Dx*o.Dx + a.Dy*o.Dy + a.Dxx*o.Dxx + a.Dxy*o.Dxy + a.Dyy*o.Dyy
	}
	want := make([]float64, len(p0))
	fd.Gradient(want, loss, p0, &fd.Settings{Formula: fd.Central})
	c.SetParams(p0)

	for i := range want {
		assert.InDelta(t, want[i], grad[i], 1e-5)
	}
}
