// Package energy assembles the total potential of the pressurized membrane
// from collocation samples and a differentiable displacement field, and
// differentiates it with respect to the field's trainable parameters.
//
// Conventions, fixed here once for the whole module:
//
//   - Integration is Monte-Carlo with uniform-in-area weights: each interior
//     point contributes with weight Area/N (low-discrepancy sampling changes
//     the point placement, not the weighting).
//   - The total potential is Π = Πm + Πb − q ∫ w dA + penalty. Positive
//     pressure q with positive (upward) deflection w lowers Π, so the
//     minimizer inflates the bubble upward.
//   - Strains follow the von Kármán measures
//     εx = u_x + ½w_x², εy = v_y + ½w_y², γxy = u_y + v_x + w_x·w_y,
//     and curvatures κ = [w_xx, w_yy, 2w_xy].
//
// The scalar Π is the sole training signal; no labeled displacement data
// enters anywhere.
package energy

import (
	"fmt"

	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/jet"
	"github.com/bulgelab/bulge/material"
)

// Field is the differentiable displacement field the assembler consumes.
// Output component 0 is the out-of-plane deflection w; components 1 and 2,
// when present, are the in-plane displacements u and v.
type Field interface {
	Outputs() int
	// EvalJet evaluates all displacement component jets at (x, y).
	EvalJet(x, y float64, out []jet.Jet)
	// Backprop accumulates into grad the parameter gradient of the
	// channelwise contraction of adj with the output jets at (x, y).
	Backprop(x, y float64, adj []jet.Jet, grad []float64)
}

// Terms carries the individually logged contributions to the total
// potential. Only Total drives the optimizer; the components exist for
// diagnostics and are recomputed every step.
type Terms struct {
	Membrane float64 // Πm, membrane strain energy
	Bending  float64 // Πb, bending strain energy
	Work     float64 // −q ∫ w dA, external pressure work
	Penalty  float64 // soft boundary-condition penalty (0 in hard mode)
	Total    float64
}

// Assembler evaluates the energy functional for one material/geometry
// configuration. It is immutable during training.
type Assembler struct {
	Model    material.Model
	Pressure float64
	// PenaltyWeight is the λ multiplying the mean squared boundary
	// residual. Ignored when SoftBoundary is false.
	PenaltyWeight float64
	// SoftBoundary selects penalty-based enforcement of the clamped edge.
	// With a hard-constrained field this is off and Penalty stays zero.
	SoftBoundary bool
}

// NewAssembler validates the configuration. Pressure may be any finite
// value; a negative pressure bulges the membrane downward.
func NewAssembler(m material.Model, pressure, penaltyWeight float64, soft bool) (*Assembler, error) {
	if m == nil {
		return nil, fmt.Errorf("energy: nil constitutive model")
	}
	if soft && penaltyWeight <= 0 {
		return nil, fmt.Errorf("energy: soft boundary enforcement needs a positive penalty weight, got %v", penaltyWeight)
	}
	return &Assembler{Model: m, Pressure: pressure, PenaltyWeight: penaltyWeight, SoftBoundary: soft}, nil
}

// strains maps the displacement jets at one point to von Kármán strain and
// curvature vectors. out[0] is w; u, v default to zero for membrane-only
// fields.
func strains(out []jet.Jet) (eps, kap [3]float64) {
	w := out[0]
	var u, v jet.Jet
	if len(out) == 3 {
		u, v = out[1], out[2]
	}
	eps[0] = u.Dx + 0.5*w.Dx*w.Dx
	eps[1] = v.Dy + 0.5*w.Dy*w.Dy
	eps[2] = u.Dy + v.Dx + w.Dx*w.Dy
	kap[0] = w.Dxx
	kap[1] = w.Dyy
	kap[2] = 2 * w.Dxy
	return eps, kap
}

// Loss evaluates the energy terms for the current field state on the given
// point set.
func (a *Assembler) Loss(ps *geometry.PointSet, f Field) Terms {
	out := make([]jet.Jet, f.Outputs())
	var t Terms
	bend := a.Model.HasBending()
	for i := range ps.IX {
		f.EvalJet(ps.IX[i], ps.IY[i], out)
		eps, kap := strains(out)
		t.Membrane += a.Model.MembraneDensity(eps)
		if bend {
			t.Bending += a.Model.BendingDensity(kap)
		}
		t.Work -= a.Pressure * out[0].Val
	}
	t.Membrane *= ps.Weight
	t.Bending *= ps.Weight
	t.Work *= ps.Weight

	if a.SoftBoundary {
		t.Penalty = a.PenaltyWeight * a.boundaryResidual(ps, f, out, nil, 0)
	}
	t.Total = t.Membrane + t.Bending + t.Work + t.Penalty
	return t
}

// LossGrad evaluates the energy terms and accumulates dΠ/dθ into grad,
// which must have the field's parameter length and is zeroed here.
// The gradient flows by adjoint seeding: the constitutive resultants and
// moments are exactly ∂Φ/∂ε and ∂Φ/∂κ, so the chain rule through the
// strain measures yields the output-jet adjoints fed to Field.Backprop.
func (a *Assembler) LossGrad(ps *geometry.PointSet, f Field, grad []float64) Terms {
	for i := range grad {
		grad[i] = 0
	}
	nOut := f.Outputs()
	out := make([]jet.Jet, nOut)
	adj := make([]jet.Jet, nOut)
	var t Terms
	bend := a.Model.HasBending()
	for i := range ps.IX {
		x, y := ps.IX[i], ps.IY[i]
		f.EvalJet(x, y, out)
		eps, kap := strains(out)
		t.Membrane += a.Model.MembraneDensity(eps)
		if bend {
			t.Bending += a.Model.BendingDensity(kap)
		}
		t.Work -= a.Pressure * out[0].Val

		n := a.Model.Resultants(eps)
		var m [3]float64
		if bend {
			m = a.Model.Moments(kap)
		}
		w := out[0]
		wAdj := jet.Jet{
			Val: -a.Pressure,
			Dx:  n[0]*w.Dx + n[2]*w.Dy,
			Dy:  n[1]*w.Dy + n[2]*w.Dx,
			Dxx: m[0],
			Dyy: m[1],
			Dxy: 2 * m[2],
		}
		adj[0] = wAdj.Scale(ps.Weight)
		if nOut == 3 {
			adj[1] = jet.Jet{Dx: n[0], Dy: n[2]}.Scale(ps.Weight)
			adj[2] = jet.Jet{Dx: n[2], Dy: n[1]}.Scale(ps.Weight)
		}
		f.Backprop(x, y, adj, grad)
	}
	t.Membrane *= ps.Weight
	t.Bending *= ps.Weight
	t.Work *= ps.Weight

	if a.SoftBoundary {
		t.Penalty = a.PenaltyWeight * a.boundaryResidual(ps, f, out, grad, a.PenaltyWeight)
	}
	t.Total = t.Membrane + t.Bending + t.Work + t.Penalty
	return t
}

// boundaryResidual returns the mean squared boundary residual
// mean(w² + (∂w/∂n)² [+ u² + v²]) and, when grad is non-nil, accumulates
// λ times its parameter gradient.
func (a *Assembler) boundaryResidual(ps *geometry.PointSet, f Field, out []jet.Jet, grad []float64, lambda float64) float64 {
	nb := len(ps.BX)
	if nb == 0 {
		return 0
	}
	nOut := f.Outputs()
	adj := make([]jet.Jet, nOut)
	inv := 1 / float64(nb)
	var res float64
	for i := 0; i < nb; i++ {
		x, y := ps.BX[i], ps.BY[i]
		nx, ny := ps.BNX[i], ps.BNY[i]
		f.EvalJet(x, y, out)
		w := out[0]
		slope := w.Dx*nx + w.Dy*ny
		res += w.Val*w.Val + slope*slope
		if nOut == 3 {
			res += out[1].Val*out[1].Val + out[2].Val*out[2].Val
		}
		if grad != nil {
			scale := 2 * lambda * inv
			adj[0] = jet.Jet{
				Val: scale * w.Val,
				Dx:  scale * slope * nx,
				Dy:  scale * slope * ny,
			}
			if nOut == 3 {
				adj[1] = jet.Jet{Val: scale * out[1].Val}
				adj[2] = jet.Jet{Val: scale * out[2].Val}
			}
			f.Backprop(x, y, adj, grad)
		}
	}
	return res * inv
}
