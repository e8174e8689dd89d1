package material

import "fmt"

// Model is the constitutive capability consumed by the energy assembler.
// Strain and curvature use Voigt order: eps = [εx, εy, γxy],
// kap = [κx, κy, 2κxy].
//
// The strain-energy densities themselves are part of the contract, not just
// the resultants, because the nonlinear model integrates the density
// directly; Resultants and Moments are exactly the density gradients
// ∂Φm/∂ε and ∂Φb/∂κ, which also seed the adjoint pass of the loss gradient.
type Model interface {
	// MembraneDensity returns the in-plane strain energy per unit area.
	MembraneDensity(eps [3]float64) float64
	// BendingDensity returns the bending strain energy per unit area.
	BendingDensity(kap [3]float64) float64
	// Resultants returns the membrane stress resultants N = ∂Φm/∂ε (N/m).
	Resultants(eps [3]float64) [3]float64
	// Moments returns the bending moment resultants M = ∂Φb/∂κ (N).
	Moments(kap [3]float64) [3]float64
	// HasBending reports whether the bending terms contribute at all.
	HasBending() bool
}

// Linear is the standard quadratic constitutive law
// Φ = ½ εᵀCε + ½ κᵀDκ.
type Linear struct {
	S *Stiffness
}

// NewLinear wraps a validated Stiffness in the linear law.
func NewLinear(s *Stiffness) (*Linear, error) {
	if s == nil {
		return nil, fmt.Errorf("material: nil stiffness")
	}
	return &Linear{S: s}, nil
}

func (l *Linear) MembraneDensity(eps [3]float64) float64 { return quadForm(l.S.C, eps) }

func (l *Linear) BendingDensity(kap [3]float64) float64 { return quadForm(l.S.D, kap) }

func (l *Linear) Resultants(eps [3]float64) [3]float64 { return symMulVec(l.S.C, eps) }

func (l *Linear) Moments(kap [3]float64) [3]float64 { return symMulVec(l.S.D, kap) }

func (l *Linear) HasBending() bool { return l.S.HasBending() }

// Augmented extends the linear membrane law with per-component cubic
// strain-energy corrections,
//
//	Φm = ½ εᵀCε + Σᵢ cᵢ εᵢ³ / 3,
//
// capturing the leading nonlinear elastic response of 2D crystals at the
// large strains a bulge test reaches. The bending law stays quadratic.
// The correction enters through the density (and its gradient), keeping the
// energy-based loss consistent; the choice between Linear and Augmented is
// made once at configuration time, not branched inside the assembler.
type Augmented struct {
	S     *Stiffness
	Cubic [3]float64
}

// NewAugmented wraps a validated Stiffness in the cubic-corrected law.
func NewAugmented(s *Stiffness, cubic [3]float64) (*Augmented, error) {
	if s == nil {
		return nil, fmt.Errorf("material: nil stiffness")
	}
	return &Augmented{S: s, Cubic: cubic}, nil
}

func (a *Augmented) MembraneDensity(eps [3]float64) float64 {
	d := quadForm(a.S.C, eps)
	for i, c := range a.Cubic {
		d += c * eps[i] * eps[i] * eps[i] / 3
	}
	return d
}

func (a *Augmented) BendingDensity(kap [3]float64) float64 { return quadForm(a.S.D, kap) }

func (a *Augmented) Resultants(eps [3]float64) [3]float64 {
	r := symMulVec(a.S.C, eps)
	for i, c := range a.Cubic {
		r[i] += c * eps[i] * eps[i]
	}
	return r
}

func (a *Augmented) Moments(kap [3]float64) [3]float64 { return symMulVec(a.S.D, kap) }

func (a *Augmented) HasBending() bool { return a.S.HasBending() }
