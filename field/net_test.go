package field

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/bulgelab/bulge/jet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func testNet(t *testing.T, outputs int, seed uint64) *Net {
	t.Helper()
	src := rand.New(rand.NewPCG(seed, 0))
	n, err := NewNet([]int{8, 6}, outputs, 2.0, 1.5, src)
	require.NoError(t, err)
	return n
}

func TestNewNetValidation(t *testing.T) {
	src := rand.New(rand.NewPCG(1, 0))
	_, err := NewNet(nil, MembraneOutputs, 1, 1, src)
	assert.Error(t, err)
	_, err = NewNet([]int{8}, 2, 1, 1, src)
	assert.Error(t, err, "two outputs is neither membrane nor plate")
	_, err = NewNet([]int{0}, MembraneOutputs, 1, 1, src)
	assert.Error(t, err)
	_, err = NewNet([]int{8}, MembraneOutputs, 0, 1, src)
	assert.Error(t, err)
}

func TestParamsRoundTrip(t *testing.T) {
	n := testNet(t, PlateOutputs, 3)
	p := n.Params(nil)
	require.Len(t, p, n.NumParams())
	q := append([]float64(nil), p...)
	for i := range q {
		q[i] += 0.5
	}
	n.SetParams(q)
	assert.Equal(t, q, n.Params(nil))
	assert.Panics(t, func() { n.SetParams(q[:3]) })
}

// The jet channels must agree with finite differences of the value channel.
func TestEvalJetAgainstFiniteDifferences(t *testing.T) {
	for _, outputs := range []int{MembraneOutputs, PlateOutputs} {
		n := testNet(t, outputs, 11)
		out := make([]jet.Jet, outputs)
		x0, y0 := 0.4, -0.7
		n.EvalJet(x0, y0, out)

		set := &fd.Settings{Formula: fd.Central}
		set2 := &fd.Settings{Formula: fd.Central2nd}
		buf := make([]jet.Jet, outputs)
		for o := 0; o < outputs; o++ {
			o := o
			vx := func(x float64) float64 { n.EvalJet(x, y0, buf); return buf[o].Val }
			vy := func(y float64) float64 { n.EvalJet(x0, y, buf); return buf[o].Val }
			dxAlongY := func(y float64) float64 { n.EvalJet(x0, y, buf); return buf[o].Dx }

			assert.InDelta(t, fd.Derivative(vx, x0, set), out[o].Dx, 1e-6)
			assert.InDelta(t, fd.Derivative(vy, y0, set), out[o].Dy, 1e-6)
			assert.InDelta(t, fd.Derivative(vx, x0, set2), out[o].Dxx, 1e-4)
			assert.InDelta(t, fd.Derivative(vy, y0, set2), out[o].Dyy, 1e-4)
			assert.InDelta(t, fd.Derivative(dxAlongY, y0, set), out[o].Dxy, 1e-6)
		}
	}
}

// Backprop must produce the exact parameter gradient of any adjoint
// contraction of the output jets. Checked against fd.Gradient of the same
// contraction as a function of the flat parameter vector.
func TestBackpropAgainstFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 0))
	for _, outputs := range []int{MembraneOutputs, PlateOutputs} {
		n := testNet(t, outputs, 17)
		x0, y0 := -0.3, 0.6

		adj := make([]jet.Jet, outputs)
		for o := range adj {
			adj[o] = jet.Jet{
				Val: rng.Float64(), Dx: rng.Float64(), Dy: rng.Float64(),
				Dxx: rng.Float64(), Dxy: rng.Float64(), Dyy: rng.Float64(),
			}
		}

		grad := make([]float64, n.NumParams())
		n.Backprop(x0, y0, adj, grad)

		p0 := n.Params(nil)
		out := make([]jet.Jet, outputs)
		loss := func(p []float64) float64 {
			n.SetParams(p)
			n.EvalJet(x0, y0, out)
			var l float64
			for o := range out {
				l += adj[o].Val*out[o].Val + adj[o].Dx*out[o].Dx + adj[o].Dy*out[o].Dy +
					adj[o].Dxx*out[o].Dxx + adj[o].Dxy*out[o].Dxy + adj[o].Dyy*out[o].Dyy
			}
			return l
		}
		want := make([]float64, len(p0))
		fd.Gradient(want, loss, p0, &fd.Settings{Formula: fd.Central})
		n.SetParams(p0)

		for i := range want {
			assert.InDelta(t, want[i], grad[i], 1e-5, "outputs=%d param %d", outputs, i)
		}
	}
}

func TestBackpropAccumulates(t *testing.T) {
	n := testNet(t, MembraneOutputs, 23)
	adj := []jet.Jet{{Val: 1}}
	g1 := make([]float64, n.NumParams())
	n.Backprop(0.1, 0.2, adj, g1)
	g2 := append([]float64(nil), g1...)
	n.Backprop(0.1, 0.2, adj, g2)
	for i := range g1 {
		assert.InDelta(t, 2*g1[i], g2[i], 1e-12)
	}
}

func TestCheckpointRoundTripIsBitExact(t *testing.T) {
	n := testNet(t, PlateOutputs, 29)
	var buf bytes.Buffer
	require.NoError(t, n.Save(&buf))
	m, err := Load(&buf)
	require.NoError(t, err)

	coords := [][2]float64{{0, 0}, {0.5, -0.25}, {-1.2, 0.9}, {1.9, 1.4}}
	a := make([]jet.Jet, PlateOutputs)
	b := make([]jet.Jet, PlateOutputs)
	for _, c := range coords {
		n.EvalJet(c[0], c[1], a)
		m.EvalJet(c[0], c[1], b)
		for o := range a {
			assert.Equal(t, a[o], b[o], "restored net must reproduce outputs exactly")
		}
	}
}

func TestLoadRejectsCorruptCheckpoints(t *testing.T) {
	_, err := Load(bytes.NewBufferString(`{"hidden_layer_sizes":[4],"outputs":1,"char_length_x":1,"char_length_y":1,"params":[1,2,3]}`))
	assert.Error(t, err, "parameter count mismatch")
	_, err = Load(bytes.NewBufferString(`not json`))
	assert.Error(t, err)
	_, err = Load(bytes.NewBufferString(`{"hidden_layer_sizes":[4],"outputs":2,"char_length_x":1,"char_length_y":1,"params":[1]}`))
	assert.Error(t, err, "bad output count")
}
