// Package field implements the displacement field approximator: a small
// feed-forward network with tanh hidden units mapping an in-plane coordinate
// (x, y) to displacement components. The network propagates second-order
// jets (value plus first and second coordinate derivatives) forward through
// every layer, so strains and curvatures come out of a single evaluation,
// and it propagates adjoints of all six jet channels backward to the
// trainable parameters, so the energy functional can be differentiated with
// respect to the weights without any external autodiff machinery.
//
// Only continuously twice-differentiable activations are admissible:
// curvature terms read second derivatives of the output, which vanish or
// jump for the ReLU family. Tanh is the only activation provided.
package field

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/bulgelab/bulge/jet"
)

// Outputs per model kind.
const (
	// MembraneOutputs models the out-of-plane deflection w only; the
	// in-plane strain is carried entirely by the ½(∇w)² von Kármán terms.
	MembraneOutputs = 1
	// PlateOutputs models w plus the in-plane displacements u and v.
	PlateOutputs = 3
)

// Net is a tanh multilayer perceptron with linear output. Input coordinates
// are divided by the characteristic lengths LX, LY before the first layer;
// the normalization is folded into the input jet, so every derivative the
// network reports is with respect to the physical coordinates.
//
// A Net is not safe for concurrent use: forward and backward passes share a
// per-net workspace, matching the single-threaded training model.
type Net struct {
	sizes  []int // layer widths, sizes[0]==2
	lx, ly float64

	weights [][]float64 // per affine layer, row-major [out*in]
	biases  [][]float64

	ws workspace
}

// workspace holds per-layer jet buffers reused across passes.
type workspace struct {
	act [][]jet.Jet // activations entering each affine layer; act[0] is the input
	pre [][]jet.Jet // pre-activations of each affine layer
	adj [][]jet.Jet // adjoint buffers matching pre
}

// NewNet constructs a network with the given hidden layer widths and output
// count, initialized with Xavier-uniform weights drawn from src.
func NewNet(hidden []int, outputs int, lx, ly float64, src *rand.Rand) (*Net, error) {
	if outputs != MembraneOutputs && outputs != PlateOutputs {
		return nil, fmt.Errorf("field: outputs must be %d (membrane) or %d (plate), got %d",
			MembraneOutputs, PlateOutputs, outputs)
	}
	if len(hidden) == 0 {
		return nil, fmt.Errorf("field: at least one hidden layer required")
	}
	for _, h := range hidden {
		if h < 1 {
			return nil, fmt.Errorf("field: hidden layer width must be positive, got %d", h)
		}
	}
	if lx <= 0 || ly <= 0 {
		return nil, fmt.Errorf("field: characteristic lengths must be positive, got %v, %v", lx, ly)
	}
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, 2)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, outputs)
	n := &Net{sizes: sizes, lx: lx, ly: ly}
	n.alloc()
	n.init(src)
	return n, nil
}

func (n *Net) alloc() {
	nl := len(n.sizes) - 1 // affine layers
	n.weights = make([][]float64, nl)
	n.biases = make([][]float64, nl)
	n.ws.act = make([][]jet.Jet, nl)
	n.ws.pre = make([][]jet.Jet, nl)
	n.ws.adj = make([][]jet.Jet, nl)
	for l := 0; l < nl; l++ {
		in, out := n.sizes[l], n.sizes[l+1]
		n.weights[l] = make([]float64, out*in)
		n.biases[l] = make([]float64, out)
		n.ws.act[l] = make([]jet.Jet, in)
		n.ws.pre[l] = make([]jet.Jet, out)
		n.ws.adj[l] = make([]jet.Jet, out)
	}
}

func (n *Net) init(src *rand.Rand) {
	for l := range n.weights {
		in, out := n.sizes[l], n.sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		for i := range n.weights[l] {
			n.weights[l][i] = (2*src.Float64() - 1) * limit
		}
	}
}

// Outputs returns the number of displacement components.
func (n *Net) Outputs() int { return n.sizes[len(n.sizes)-1] }

// NumParams returns the length of the flat parameter vector.
func (n *Net) NumParams() int {
	var c int
	for l := range n.weights {
		c += len(n.weights[l]) + len(n.biases[l])
	}
	return c
}

// Params appends the flat parameter vector (layer by layer, weights then
// biases) to dst and returns it.
func (n *Net) Params(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, 0, n.NumParams())
	}
	for l := range n.weights {
		dst = append(dst, n.weights[l]...)
		dst = append(dst, n.biases[l]...)
	}
	return dst
}

// SetParams copies the flat parameter vector into the network. It panics if
// p has the wrong length; parameter vectors only ever come from Params or a
// checkpoint of the same architecture.
func (n *Net) SetParams(p []float64) {
	if len(p) != n.NumParams() {
		panic(fmt.Sprintf("field: parameter vector length %d, want %d", len(p), n.NumParams()))
	}
	for l := range n.weights {
		k := copy(n.weights[l], p)
		p = p[k:]
		k = copy(n.biases[l], p)
		p = p[k:]
	}
}

// inputJet writes the normalized coordinate jet into dst. The derivative
// channels carry the normalization scale so that downstream derivatives are
// taken with respect to physical x and y.
func (n *Net) inputJet(x, y float64, dst []jet.Jet) {
	sx, sy := 1/n.lx, 1/n.ly
	dst[0] = jet.Jet{Val: x * sx, Dx: sx}
	dst[1] = jet.Jet{Val: y * sy, Dy: sy}
}

// forward runs the jet forward pass, leaving pre-activation jets of every
// layer in the workspace. The returned slice aliases the final layer's
// pre-activations (the linear outputs).
func (n *Net) forward(x, y float64) []jet.Jet {
	nl := len(n.weights)
	n.inputJet(x, y, n.ws.act[0])
	for l := 0; l < nl; l++ {
		in, out := n.sizes[l], n.sizes[l+1]
		w, b := n.weights[l], n.biases[l]
		a, z := n.ws.act[l], n.ws.pre[l]
		for o := 0; o < out; o++ {
			var s jet.Jet
			row := w[o*in : (o+1)*in]
			for i, wi := range row {
				s = s.Add(a[i].Scale(wi))
			}
			s.Val += b[o]
			z[o] = s
		}
		if l < nl-1 {
			// Hidden layer: tanh applied channelwise via the chain rule.
			na := n.ws.act[l+1]
			for o := 0; o < out; o++ {
				na[o] = tanhJet(z[o])
			}
		}
	}
	return n.ws.pre[nl-1]
}

// tanhJet pushes a jet through tanh. With t = tanh(z) and s = 1-t²:
//
//	t_x  = s z_x
//	t_xx = s z_xx - 2 t s z_x²
//	t_xy = s z_xy - 2 t s z_x z_y
func tanhJet(z jet.Jet) jet.Jet {
	t := math.Tanh(z.Val)
	s := 1 - t*t
	ts2 := 2 * t * s
	return jet.Jet{
		Val: t,
		Dx:  s * z.Dx,
		Dy:  s * z.Dy,
		Dxx: s*z.Dxx - ts2*z.Dx*z.Dx,
		Dxy: s*z.Dxy - ts2*z.Dx*z.Dy,
		Dyy: s*z.Dyy - ts2*z.Dy*z.Dy,
	}
}

// EvalJet evaluates the displacement components and their jets at (x, y).
// out must have length Outputs().
func (n *Net) EvalJet(x, y float64, out []jet.Jet) {
	if len(out) != n.Outputs() {
		panic(fmt.Sprintf("field: output slice length %d, want %d", len(out), n.Outputs()))
	}
	copy(out, n.forward(x, y))
}

// Backprop accumulates into grad the gradient with respect to the
// parameters of the scalar
//
//	L = Σ_o Σ_ch adjOut[o].ch · out[o].ch ,
//
// i.e. the contraction of the given output-jet adjoints with the network's
// jet outputs at (x, y). grad must have length NumParams(); contributions
// are added, so one buffer accumulates over a whole point cloud.
func (n *Net) Backprop(x, y float64, adjOut []jet.Jet, grad []float64) {
	if len(adjOut) != n.Outputs() {
		panic(fmt.Sprintf("field: adjoint slice length %d, want %d", len(adjOut), n.Outputs()))
	}
	if len(grad) != n.NumParams() {
		panic(fmt.Sprintf("field: gradient length %d, want %d", len(grad), n.NumParams()))
	}
	n.forward(x, y)

	nl := len(n.weights)
	copy(n.ws.adj[nl-1], adjOut)

	// Walk affine layers backward. For z = W a + b applied channelwise,
	// the weight gradient contracts the adjoint jet with the incoming
	// activation jet over all six channels, and the activation adjoint is
	// Wᵀ times the pre-activation adjoint, channelwise.
	off := n.NumParams()
	for l := nl - 1; l >= 0; l-- {
		in, out := n.sizes[l], n.sizes[l+1]
		off -= out*in + out
		gw := grad[off : off+out*in]
		gb := grad[off+out*in : off+out*in+out]
		a, zAdj := n.ws.act[l], n.ws.adj[l]
		for o := 0; o < out; o++ {
			za := zAdj[o]
			gb[o] += za.Val
			row := gw[o*in : (o+1)*in]
			for i := range row {
				ai := a[i]
				row[i] += za.Val*ai.Val + za.Dx*ai.Dx + za.Dy*ai.Dy +
					za.Dxx*ai.Dxx + za.Dxy*ai.Dxy + za.Dyy*ai.Dyy
			}
		}
		if l == 0 {
			break
		}
		// Adjoint of the previous layer's tanh outputs.
		prevOut := n.sizes[l]
		prevAdj := n.ws.adj[l-1]
		w := n.weights[l]
		for i := 0; i < prevOut; i++ {
			var s jet.Jet
			for o := 0; o < out; o++ {
				s = s.Add(zAdj[o].Scale(w[o*in+i]))
			}
			prevAdj[i] = tanhAdjoint(n.ws.pre[l-1][i], s)
		}
	}
}

// tanhAdjoint maps the adjoint of t = tanhJet(z) back to the adjoint of z.
// The rules follow from differentiating each channel of tanhJet with
// respect to each channel of z; the value channel picks up third-derivative
// terms of tanh, d(ts)/dz = s(1-3t²).
func tanhAdjoint(z, tAdj jet.Jet) jet.Jet {
	t := math.Tanh(z.Val)
	s := 1 - t*t
	ts2 := 2 * t * s
	u := 2 * s * (1 - 3*t*t)
	return jet.Jet{
		Val: s*tAdj.Val -
			ts2*(z.Dx*tAdj.Dx+z.Dy*tAdj.Dy+z.Dxx*tAdj.Dxx+z.Dxy*tAdj.Dxy+z.Dyy*tAdj.Dyy) -
			u*(z.Dx*z.Dx*tAdj.Dxx+z.Dx*z.Dy*tAdj.Dxy+z.Dy*z.Dy*tAdj.Dyy),
		Dx:  s*tAdj.Dx - ts2*(2*z.Dx*tAdj.Dxx+z.Dy*tAdj.Dxy),
		Dy:  s*tAdj.Dy - ts2*(2*z.Dy*tAdj.Dyy+z.Dx*tAdj.Dxy),
		Dxx: s * tAdj.Dxx,
		Dxy: s * tAdj.Dxy,
		Dyy: s * tAdj.Dyy,
	}
}
