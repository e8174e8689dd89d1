package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bulgelab/bulge/jet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunValidates(t *testing.T) {
	require.NoError(t, DefaultRun().Validate())
}

func TestValidateRejectsBadSetups(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Run)
	}{
		{"unknown symmetry class", func(r *Run) { r.SymmetryClass = "cubic" }},
		{"zero radius", func(r *Run) { r.Geometry.Radius = 0 }},
		{"unknown geometry", func(r *Run) { r.Geometry.Kind = "annulus" }},
		{"unknown model", func(r *Run) { r.Model = "shell" }},
		{"unknown constitutive", func(r *Run) { r.Constitutive = "plastic" }},
		{"unknown boundary", func(r *Run) { r.Boundary = "free" }},
		{"relu activation", func(r *Run) { r.ActivationKind = "relu" }},
		{"unknown sampling", func(r *Run) { r.Sampling = "sobol" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := DefaultRun()
			tc.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestBuildFailsFastOnIndefiniteStiffness(t *testing.T) {
	r := DefaultRun()
	r.SymmetryClass = "square"
	r.Stiffness = StiffnessValues{C11: 1, C12: 10, C66: 1}
	_, err := r.Build(nil)
	assert.Error(t, err, "indefinite stiffness must halt before training")
}

func TestBuildFailsFastOnThinSampling(t *testing.T) {
	r := DefaultRun()
	r.SampleCounts.Interior = 10
	_, err := r.Build(nil)
	assert.Error(t, err)
}

func TestBuildRejectsHardBoundaryOnPolygon(t *testing.T) {
	r := DefaultRun()
	r.Geometry = GeometrySpec{Kind: "polygon", Vertices: [][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}}
	r.Boundary = "hard"
	_, err := r.Build(nil)
	assert.Error(t, err, "polygons support penalty enforcement only")

	r.Boundary = "penalty"
	r.PenaltyWeight = 100
	_, err = r.Build(nil)
	assert.NoError(t, err)
}

func TestLoadRunAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"symmetry_class": "square",
		"stiffness_values": {"c11": 121.83, "c12": 33.90, "c66": 108.45},
		"geometry_spec": {"kind": "disk", "radius": 10},
		"pressure": 307.4
	}`), 0o644))
	r, err := LoadRun(path)
	require.NoError(t, err)
	assert.Equal(t, "square", r.SymmetryClass)
	assert.Equal(t, 10.0, r.Geometry.Radius)
	assert.Equal(t, "tanh", r.ActivationKind, "unspecified options fall back to defaults")
	require.NoError(t, r.Validate())
}

func TestCheckpointRoundTrip(t *testing.T) {
	r := DefaultRun()
	net, err := r.BuildNet()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ckpt.json")
	require.NoError(t, SaveCheckpoint(path, r, net))

	r2, net2, err := LoadCheckpoint(path)
	require.NoError(t, err)

	// Config survives: compare via JSON to sidestep float formatting.
	a, _ := json.Marshal(r)
	b, _ := json.Marshal(r2)
	assert.JSONEq(t, string(a), string(b))

	// The restored field reproduces the original bit for bit.
	out1 := make([]jet.Jet, 1)
	out2 := make([]jet.Jet, 1)
	for _, c := range [][2]float64{{0, 0}, {0.3, -0.4}, {0.9, 0.1}} {
		net.EvalJet(c[0], c[1], out1)
		net2.EvalJet(c[0], c[1], out2)
		assert.Equal(t, out1[0], out2[0])
	}
}

func TestBuildNetSeedIsDeterministic(t *testing.T) {
	r := DefaultRun()
	n1, err := r.BuildNet()
	require.NoError(t, err)
	n2, err := r.BuildNet()
	require.NoError(t, err)
	assert.Equal(t, n1.Params(nil), n2.Params(nil))
}
