// Package material holds the anisotropic elastic description of a 2D
// crystal: the in-plane stiffness matrix C (units N/m) relating membrane
// strain to stress resultants and the bending stiffness matrix D (units N·m,
// reported per unit width as N) relating curvature to moment resultants.
// The crystal symmetry class fixes which of the six Voigt entries are
// independent; NewStiffness projects supplied coefficients accordingly and
// verifies positive-definiteness, so a constructed Stiffness always yields a
// physically valid energy functional.
package material

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SymmetryClass enumerates the planar crystal symmetry classes supported by
// the constitutive law.
type SymmetryClass uint8

const (
	// Hexagonal (e.g. graphene, hBN): isotropic in-plane response,
	// one independent pair C11, C12.
	Hexagonal SymmetryClass = iota
	// Square (e.g. monolayer FeSe): C11=C22, independent C66.
	Square
	// Rectangular (e.g. black phosphorus): four independent constants.
	Rectangular
	// Oblique: no in-plane symmetry, all six constants independent.
	Oblique
)

func (c SymmetryClass) String() string {
	switch c {
	case Hexagonal:
		return "hexagonal"
	case Square:
		return "square"
	case Rectangular:
		return "rectangular"
	case Oblique:
		return "oblique"
	}
	return fmt.Sprintf("SymmetryClass(%d)", c)
}

// ParseSymmetryClass maps a configuration string to a SymmetryClass.
func ParseSymmetryClass(s string) (SymmetryClass, error) {
	switch s {
	case "hexagonal":
		return Hexagonal, nil
	case "square":
		return Square, nil
	case "rectangular":
		return Rectangular, nil
	case "oblique":
		return Oblique, nil
	}
	return 0, fmt.Errorf("material: unknown symmetry class %q", s)
}

// Coeffs carries the six Voigt entries of a 3×3 symmetric stiffness matrix
//
//	| C11 C12 C16 |
//	| C12 C22 C26 |
//	| C16 C26 C66 |
//
// before symmetry projection.
type Coeffs struct {
	C11, C12, C16, C22, C26, C66 float64
}

// project zeroes and ties entries according to the symmetry class.
func (c Coeffs) project(class SymmetryClass) Coeffs {
	switch class {
	case Hexagonal:
		return Coeffs{C11: c.C11, C12: c.C12, C22: c.C11, C66: (c.C11 - c.C12) / 2}
	case Square:
		return Coeffs{C11: c.C11, C12: c.C12, C22: c.C11, C66: c.C66}
	case Rectangular:
		return Coeffs{C11: c.C11, C12: c.C12, C22: c.C22, C66: c.C66}
	default:
		return c
	}
}

func (c Coeffs) matrix() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		c.C11, c.C12, c.C16,
		c.C12, c.C22, c.C26,
		c.C16, c.C26, c.C66,
	})
}

// IsZero reports whether all entries vanish.
func (c Coeffs) IsZero() bool {
	return c == Coeffs{}
}

// Stiffness is the immutable pair of projected stiffness matrices for one
// material. It is set once from material data and shared read-only by the
// energy assembler; nothing mutates it during training.
type Stiffness struct {
	Class SymmetryClass
	C     *mat.SymDense // in-plane, N/m
	D     *mat.SymDense // bending, N
}

// NewStiffness projects cIn and dIn to the symmetry class and validates
// them. C must be positive definite. D may be identically zero (pure
// membrane model, bending neglected); otherwise it must be positive
// definite too.
func NewStiffness(class SymmetryClass, cIn, dIn Coeffs) (*Stiffness, error) {
	cp := cIn.project(class)
	dp := dIn.project(class)
	cm := cp.matrix()
	var chol mat.Cholesky
	if !chol.Factorize(cm) {
		return nil, fmt.Errorf("material: in-plane stiffness for class %v is not positive definite", class)
	}
	dm := dp.matrix()
	if !dp.IsZero() {
		if !chol.Factorize(dm) {
			return nil, fmt.Errorf("material: bending stiffness for class %v is not positive definite", class)
		}
	}
	return &Stiffness{Class: class, C: cm, D: dm}, nil
}

// HasBending reports whether the bending stiffness is nonzero.
func (s *Stiffness) HasBending() bool {
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			if s.D.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}

// quadForm returns ½ vᵀ M v for a 3-vector.
func quadForm(m *mat.SymDense, v [3]float64) float64 {
	var q float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			q += v[i] * m.At(i, j) * v[j]
		}
	}
	return q / 2
}

// symMulVec returns M v for a 3-vector.
func symMulVec(m *mat.SymDense, v [3]float64) (r [3]float64) {
	for i := 0; i < 3; i++ {
		r[i] = m.At(i, 0)*v[0] + m.At(i, 1)*v[1] + m.At(i, 2)*v[2]
	}
	return r
}
