// Package jet implements second-order coordinate jets: a scalar value
// carried together with its first and second partial derivatives with
// respect to the two in-plane coordinates x and y. Jets are the currency
// between the domain geometry, the displacement field approximator and
// the energy assembler: propagating them through a computation yields the
// strains and curvatures without any mesh-based differentiation.
package jet

// Jet holds a value and its partial derivatives up to second order.
// Dxy is the mixed partial ∂²/∂x∂y (symmetric, stored once).
type Jet struct {
	Val float64
	Dx  float64
	Dy  float64
	Dxx float64
	Dxy float64
	Dyy float64
}

// Const returns the jet of a constant: all derivative channels zero.
func Const(v float64) Jet {
	return Jet{Val: v}
}

// Add returns a + b channelwise.
func (a Jet) Add(b Jet) Jet {
	return Jet{
		Val: a.Val + b.Val,
		Dx:  a.Dx + b.Dx,
		Dy:  a.Dy + b.Dy,
		Dxx: a.Dxx + b.Dxx,
		Dxy: a.Dxy + b.Dxy,
		Dyy: a.Dyy + b.Dyy,
	}
}

// Sub returns a - b channelwise.
func (a Jet) Sub(b Jet) Jet {
	return Jet{
		Val: a.Val - b.Val,
		Dx:  a.Dx - b.Dx,
		Dy:  a.Dy - b.Dy,
		Dxx: a.Dxx - b.Dxx,
		Dxy: a.Dxy - b.Dxy,
		Dyy: a.Dyy - b.Dyy,
	}
}

// Scale returns s * a channelwise.
func (a Jet) Scale(s float64) Jet {
	return Jet{
		Val: s * a.Val,
		Dx:  s * a.Dx,
		Dy:  s * a.Dy,
		Dxx: s * a.Dxx,
		Dxy: s * a.Dxy,
		Dyy: s * a.Dyy,
	}
}

// Mul returns the jet of the product a*b via the second-order product rule:
//
//	(ab)'  = a'b + ab'
//	(ab)'' = a''b + 2a'b' + ab''
func (a Jet) Mul(b Jet) Jet {
	return Jet{
		Val: a.Val * b.Val,
		Dx:  a.Dx*b.Val + a.Val*b.Dx,
		Dy:  a.Dy*b.Val + a.Val*b.Dy,
		Dxx: a.Dxx*b.Val + 2*a.Dx*b.Dx + a.Val*b.Dxx,
		Dxy: a.Dxy*b.Val + a.Dx*b.Dy + a.Dy*b.Dx + a.Val*b.Dxy,
		Dyy: a.Dyy*b.Val + 2*a.Dy*b.Dy + a.Val*b.Dyy,
	}
}

// MulAdjoint propagates the adjoint of a product c = phi.Mul(b) back to b,
// treating phi as a fixed (non-differentiated) coefficient jet. Each channel
// of c is linear in the channels of b; MulAdjoint applies the transpose of
// that linear map to the adjoint of c.
func MulAdjoint(phi, cAdj Jet) Jet {
	return Jet{
		Val: phi.Val*cAdj.Val + phi.Dx*cAdj.Dx + phi.Dy*cAdj.Dy +
			phi.Dxx*cAdj.Dxx + phi.Dxy*cAdj.Dxy + phi.Dyy*cAdj.Dyy,
		Dx:  phi.Val*cAdj.Dx + 2*phi.Dx*cAdj.Dxx + phi.Dy*cAdj.Dxy,
		Dy:  phi.Val*cAdj.Dy + 2*phi.Dy*cAdj.Dyy + phi.Dx*cAdj.Dxy,
		Dxx: phi.Val * cAdj.Dxx,
		Dxy: phi.Val * cAdj.Dxy,
		Dyy: phi.Val * cAdj.Dyy,
	}
}
