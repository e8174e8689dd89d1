package field

import (
	"fmt"

	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/jet"
)

// Constrained wraps a Net so that every displacement component is
// multiplied by the domain's smooth distance factor, forcing displacements
// to vanish on the boundary architecturally. With Clamped set the factor is
// squared, which additionally pins the normal slope to zero (a clamped
// rather than simply-supported edge).
//
// The factor carries no trainable parameters, so the adjoint pass reduces
// to the transpose of the jet product rule followed by the wrapped
// network's own backward pass.
type Constrained struct {
	Net     *Net
	Factor  geometry.DistanceFactorer
	Clamped bool

	raw, adj []jet.Jet
}

// NewConstrained wraps net with the distance factor of dom. It fails if the
// domain has no smooth distance factor (polygons).
func NewConstrained(net *Net, dom geometry.Domain, clamped bool) (*Constrained, error) {
	df, ok := dom.(geometry.DistanceFactorer)
	if !ok {
		return nil, fmt.Errorf("field: domain %T has no smooth distance factor; use penalty boundary enforcement", dom)
	}
	return &Constrained{
		Net:     net,
		Factor:  df,
		Clamped: clamped,
		raw:     make([]jet.Jet, net.Outputs()),
		adj:     make([]jet.Jet, net.Outputs()),
	}, nil
}

func (c *Constrained) factorJet(x, y float64) jet.Jet {
	phi := c.Factor.DistanceJet(x, y)
	if c.Clamped {
		phi = phi.Mul(phi)
	}
	return phi
}

// Outputs returns the number of displacement components.
func (c *Constrained) Outputs() int { return c.Net.Outputs() }

// NumParams returns the wrapped network's parameter count.
func (c *Constrained) NumParams() int { return c.Net.NumParams() }

// Params appends the wrapped network's flat parameter vector to dst.
func (c *Constrained) Params(dst []float64) []float64 { return c.Net.Params(dst) }

// SetParams copies the flat parameter vector into the wrapped network.
func (c *Constrained) SetParams(p []float64) { c.Net.SetParams(p) }

// EvalJet evaluates the constrained displacement jets at (x, y).
func (c *Constrained) EvalJet(x, y float64, out []jet.Jet) {
	c.Net.EvalJet(x, y, c.raw)
	phi := c.factorJet(x, y)
	for o := range c.raw {
		out[o] = phi.Mul(c.raw[o])
	}
}

// Backprop accumulates the parameter gradient of the adjoint-contracted
// constrained outputs into grad.
func (c *Constrained) Backprop(x, y float64, adjOut []jet.Jet, grad []float64) {
	phi := c.factorJet(x, y)
	for o := range adjOut {
		c.adj[o] = jet.MulAdjoint(phi, adjOut[o])
	}
	c.Net.Backprop(x, y, c.adj, grad)
}
