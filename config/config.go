// Package config defines the structured run configuration of a bulge-test
// solve — material, geometry, pressure, approximator architecture and
// optimizer settings — and builds the trainer from it. It also defines the
// checkpoint artifact, which bundles the configuration with the trained
// field state so a run can be resumed or evaluated downstream.
package config

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/bulgelab/bulge/energy"
	"github.com/bulgelab/bulge/field"
	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/material"
	"github.com/bulgelab/bulge/train"
)

// StiffnessValues carries the independent stiffness coefficients before
// symmetry projection: c* in N/m for the in-plane matrix, d* in N for the
// bending matrix. Entries the symmetry class ties or zeroes are ignored.
type StiffnessValues struct {
	C11 float64 `json:"c11"`
	C12 float64 `json:"c12"`
	C16 float64 `json:"c16,omitempty"`
	C22 float64 `json:"c22,omitempty"`
	C26 float64 `json:"c26,omitempty"`
	C66 float64 `json:"c66,omitempty"`

	D11 float64 `json:"d11,omitempty"`
	D12 float64 `json:"d12,omitempty"`
	D16 float64 `json:"d16,omitempty"`
	D22 float64 `json:"d22,omitempty"`
	D26 float64 `json:"d26,omitempty"`
	D66 float64 `json:"d66,omitempty"`
}

// GeometrySpec selects the clamped outline of the membrane.
type GeometrySpec struct {
	Kind string `json:"kind"` // "disk", "ellipse", "rect" or "polygon"

	Radius     float64      `json:"radius,omitempty"`
	SemiAxes   [2]float64   `json:"semi_axes,omitempty"`
	HalfWidth  float64      `json:"half_width,omitempty"`
	HalfHeight float64      `json:"half_height,omitempty"` // defaults to half_width
	Vertices   [][2]float64 `json:"vertices,omitempty"`
}

// SampleCounts sets the collocation point budget.
type SampleCounts struct {
	Interior int `json:"interior"`
	Boundary int `json:"boundary"`
}

// Run is the full configuration of one training run.
type Run struct {
	SymmetryClass string          `json:"symmetry_class"`
	Stiffness     StiffnessValues `json:"stiffness_values"`
	Geometry      GeometrySpec    `json:"geometry_spec"`
	Pressure      float64         `json:"pressure"`

	// Model is "membrane" (w only) or "plate" (w, u, v).
	Model string `json:"model"`
	// Constitutive is "linear" or "augmented".
	Constitutive    string     `json:"constitutive"`
	CubicCorrection [3]float64 `json:"cubic_correction,omitempty"`

	// Boundary is "penalty" (soft, weighted by PenaltyWeight) or "hard"
	// (distance-factor constraint built into the approximator).
	Boundary      string  `json:"boundary"`
	PenaltyWeight float64 `json:"penalty_weight,omitempty"`

	HiddenLayerSizes []int  `json:"hidden_layer_sizes"`
	ActivationKind   string `json:"activation_kind"`

	LearningRate         float64      `json:"learning_rate"`
	SampleCounts         SampleCounts `json:"sample_counts"`
	Sampling             string       `json:"sampling"`
	ResampleInterval     int          `json:"resample_interval"`
	MaxIterations        int          `json:"max_iterations"`
	ConvergenceTolerance float64      `json:"convergence_tolerance,omitempty"`
	PolishIterations     int          `json:"polish_iterations,omitempty"`
	Seed                 uint64       `json:"seed"`
}

// DefaultRun returns a run shaped like the reference circular graphene-class
// bulge test; callers overwrite material and geometry with their own data.
func DefaultRun() Run {
	return Run{
		SymmetryClass:    "hexagonal",
		Stiffness:        StiffnessValues{C11: 340, C12: 60},
		Geometry:         GeometrySpec{Kind: "disk", Radius: 1},
		Pressure:         1,
		Model:            "membrane",
		Constitutive:     "linear",
		Boundary:         "hard",
		PenaltyWeight:    100,
		HiddenLayerSizes: []int{16, 16},
		ActivationKind:   "tanh",
		LearningRate:     1e-2,
		SampleCounts:     SampleCounts{Interior: 1000, Boundary: 200},
		Sampling:         "uniform",
		ResampleInterval: 500,
		MaxIterations:    20000,
		Seed:             1,
	}
}

// LoadRun reads a JSON run configuration from path.
func LoadRun(path string) (Run, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	r := DefaultRun()
	if err := json.Unmarshal(b, &r); err != nil {
		return Run{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return r, nil
}

// Validate checks everything that can fail before training starts.
func (r Run) Validate() error {
	if _, err := material.ParseSymmetryClass(r.SymmetryClass); err != nil {
		return err
	}
	if _, err := r.Domain(); err != nil {
		return err
	}
	switch r.Model {
	case "membrane", "plate":
	default:
		return fmt.Errorf("config: model must be \"membrane\" or \"plate\", got %q", r.Model)
	}
	switch r.Constitutive {
	case "linear", "augmented":
	default:
		return fmt.Errorf("config: constitutive must be \"linear\" or \"augmented\", got %q", r.Constitutive)
	}
	switch r.Boundary {
	case "penalty", "hard":
	default:
		return fmt.Errorf("config: boundary must be \"penalty\" or \"hard\", got %q", r.Boundary)
	}
	if r.ActivationKind != "tanh" {
		return fmt.Errorf("config: activation %q is not supported: the energy reads second derivatives of the field, which requires a twice continuously differentiable activation; use \"tanh\"", r.ActivationKind)
	}
	if _, err := geometry.ParseMethod(r.Sampling); err != nil {
		return err
	}
	return nil
}

// Domain builds the geometry described by the spec.
func (r Run) Domain() (geometry.Domain, error) {
	switch r.Geometry.Kind {
	case "disk":
		return geometry.NewDisk(r.Geometry.Radius)
	case "ellipse":
		return geometry.NewEllipse(r.Geometry.SemiAxes[0], r.Geometry.SemiAxes[1])
	case "rect":
		hh := r.Geometry.HalfHeight
		if hh == 0 {
			hh = r.Geometry.HalfWidth
		}
		return geometry.NewRect(r.Geometry.HalfWidth, hh)
	case "polygon":
		return geometry.NewPolygon(r.Geometry.Vertices)
	}
	return nil, fmt.Errorf("config: unknown geometry kind %q", r.Geometry.Kind)
}

func (r Run) stiffness() (*material.Stiffness, error) {
	class, err := material.ParseSymmetryClass(r.SymmetryClass)
	if err != nil {
		return nil, err
	}
	s := r.Stiffness
	c := material.Coeffs{C11: s.C11, C12: s.C12, C16: s.C16, C22: s.C22, C26: s.C26, C66: s.C66}
	d := material.Coeffs{C11: s.D11, C12: s.D12, C16: s.D16, C22: s.D22, C26: s.D26, C66: s.D66}
	return material.NewStiffness(class, c, d)
}

func (r Run) model() (material.Model, error) {
	st, err := r.stiffness()
	if err != nil {
		return nil, err
	}
	if r.Constitutive == "augmented" {
		return material.NewAugmented(st, r.CubicCorrection)
	}
	return material.NewLinear(st)
}

// BuildNet constructs a freshly initialized field approximator for the run.
func (r Run) BuildNet() (*field.Net, error) {
	dom, err := r.Domain()
	if err != nil {
		return nil, err
	}
	outputs := field.MembraneOutputs
	if r.Model == "plate" {
		outputs = field.PlateOutputs
	}
	src := rand.New(rand.NewPCG(r.Seed, 0x9e3779b97f4a7c15))
	lc := dom.CharLength()
	return field.NewNet(r.HiddenLayerSizes, outputs, lc, lc, src)
}

// Build assembles the trainer for the run, optionally around a restored
// net (resume); pass nil to initialize fresh. All configuration errors
// surface here, before any training iteration.
func (r Run) Build(net *field.Net) (*train.Trainer, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	dom, err := r.Domain()
	if err != nil {
		return nil, err
	}
	method, err := geometry.ParseMethod(r.Sampling)
	if err != nil {
		return nil, err
	}
	sampler, err := geometry.NewSampler(dom, r.SampleCounts.Interior, r.SampleCounts.Boundary, r.Seed, method)
	if err != nil {
		return nil, err
	}
	model, err := r.model()
	if err != nil {
		return nil, err
	}
	soft := r.Boundary == "penalty"
	asm, err := energy.NewAssembler(model, r.Pressure, r.PenaltyWeight, soft)
	if err != nil {
		return nil, err
	}
	if net == nil {
		if net, err = r.BuildNet(); err != nil {
			return nil, err
		}
	}
	var fld train.Field = net
	if !soft {
		c, err := field.NewConstrained(net, dom, true)
		if err != nil {
			return nil, err
		}
		fld = c
	}
	cfg := train.DefaultConfig()
	cfg.LearningRate = r.LearningRate
	cfg.MaxIterations = r.MaxIterations
	cfg.ResampleEvery = r.ResampleInterval
	cfg.PolishIterations = r.PolishIterations
	if r.ConvergenceTolerance != 0 {
		cfg.AbsTol = r.ConvergenceTolerance
		cfg.HasAbs = true
	}
	return train.NewTrainer(sampler, asm, fld, cfg)
}
