package train

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/bulgelab/bulge/energy"
	"github.com/bulgelab/bulge/field"
	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/jet"
	"github.com/bulgelab/bulge/material"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	good := DefaultConfig()
	require.NoError(t, good.Validate())

	bad := good
	bad.LearningRate = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.Beta1 = 1
	assert.Error(t, bad.Validate())

	bad = good
	bad.LRDecay = 1.5
	assert.Error(t, bad.Validate())

	bad = good
	bad.MinLR = bad.LearningRate * 2
	assert.Error(t, bad.Validate())

	bad = good
	bad.CheckpointEvery = 100
	assert.Error(t, bad.Validate(), "checkpoint cadence without a path")
}

func testParts(t *testing.T, seed uint64) (*geometry.Sampler, *energy.Assembler, Field) {
	t.Helper()
	dom := geometry.Disk{R: 2}
	smp, err := geometry.NewSampler(dom, 150, 100, seed, geometry.Uniform)
	require.NoError(t, err)
	s, err := material.NewStiffness(material.Hexagonal,
		material.Coeffs{C11: 340, C12: 60}, material.Coeffs{})
	require.NoError(t, err)
	m, err := material.NewLinear(s)
	require.NoError(t, err)
	asm, err := energy.NewAssembler(m, 10, 0, false)
	require.NoError(t, err)
	src := rand.New(rand.NewPCG(seed, 1))
	net, err := field.NewNet([]int{8}, field.MembraneOutputs, 2, 2, src)
	require.NoError(t, err)
	c, err := field.NewConstrained(net, dom, true)
	require.NoError(t, err)
	return smp, asm, c
}

// With a fixed point cloud and a small learning rate the loss should
// essentially never increase; allow a small fraction of up-steps for Adam's
// momentum transients. This is a statistical property, not a hard
// invariant.
func TestLossDecreasesOnFixedCloud(t *testing.T) {
	smp, asm, f := testParts(t, 3)
	cfg := DefaultConfig()
	cfg.LearningRate = 1e-3
	cfg.MaxIterations = 400
	cfg.ResampleEvery = 0 // fixed cloud
	cfg.Patience = 1000   // no schedule interference
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.NoError(t, err)
	losses := res.Record.Losses()
	require.Equal(t, res.Iterations, len(losses))

	var upSteps int
	for i := 1; i < len(losses); i++ {
		if losses[i] > losses[i-1]+1e-9 {
			upSteps++
		}
	}
	assert.Less(t, float64(upSteps), 0.2*float64(len(losses)),
		"more than 20%% up-steps on a fixed cloud at small learning rate")
	assert.Less(t, losses[len(losses)-1], losses[0], "loss must drop overall")
}

func TestBestStateIsMinimumOfRecord(t *testing.T) {
	smp, asm, f := testParts(t, 5)
	cfg := DefaultConfig()
	cfg.MaxIterations = 300
	cfg.ResampleEvery = 50
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.NoError(t, err)
	min := math.Inf(1)
	for _, l := range res.Record.Losses() {
		min = math.Min(min, l)
	}
	assert.Equal(t, min, res.BestLoss)
	require.Len(t, res.BestParams, f.NumParams())

	// The field is left holding the best state.
	assert.Equal(t, res.BestParams, f.Params(nil))
}

func TestPlateauDecaysLearningRateAndStops(t *testing.T) {
	smp, asm, f := testParts(t, 7)
	cfg := DefaultConfig()
	cfg.MaxIterations = 100000
	cfg.ResampleEvery = 0
	cfg.Patience = 5
	cfg.Tolerance = 1e12 // nothing ever counts as an improvement
	cfg.LRDecay = 0.5
	cfg.MinLR = cfg.LearningRate / 8
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.NoError(t, err)
	assert.True(t, res.Converged, "plateau at minimum learning rate terminates the run")
	assert.Less(t, res.Iterations, 100, "schedule must stop the run quickly")
	assert.Equal(t, cfg.MinLR, res.FinalLR)
}

// nanField diverges after a set number of evaluations.
type nanField struct {
	inner Field
	calls int
	limit int
}

func (n *nanField) Outputs() int { return n.inner.Outputs() }
func (n *nanField) EvalJet(x, y float64, out []jet.Jet) {
	n.inner.EvalJet(x, y, out)
	if n.calls++; n.calls > n.limit {
		out[0].Val = math.NaN()
	}
}
func (n *nanField) Backprop(x, y float64, adj []jet.Jet, grad []float64) {
	n.inner.Backprop(x, y, adj, grad)
}
func (n *nanField) NumParams() int                 { return n.inner.NumParams() }
func (n *nanField) Params(dst []float64) []float64 { return n.inner.Params(dst) }
func (n *nanField) SetParams(p []float64)          { n.inner.SetParams(p) }

func TestDivergenceIsReportedWithBestState(t *testing.T) {
	smp, asm, inner := testParts(t, 11)
	f := &nanField{inner: inner, limit: 150 * 3} // three healthy iterations
	cfg := DefaultConfig()
	cfg.MaxIterations = 1000
	cfg.ResampleEvery = 0
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.ErrorIs(t, err, ErrDiverged)
	require.NotNil(t, res)
	assert.True(t, res.BestLoss < math.Inf(1), "best finite state must be preserved")
	assert.Greater(t, res.Record.Len(), 0)
	for _, l := range res.Record.Losses() {
		assert.False(t, math.IsNaN(l), "record must contain only finite losses")
	}
}

func TestSoftFailureOnBudgetExhaustion(t *testing.T) {
	smp, asm, f := testParts(t, 13)
	cfg := DefaultConfig()
	cfg.MaxIterations = 20
	cfg.ResampleEvery = 0
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.NoError(t, err, "budget exhaustion is a warning, not an error")
	assert.False(t, res.Converged)
	assert.Equal(t, 20, res.Iterations)
}

func TestPolishImprovesOrKeepsBest(t *testing.T) {
	smp, asm, f := testParts(t, 17)
	cfg := DefaultConfig()
	cfg.MaxIterations = 200
	cfg.ResampleEvery = 0
	cfg.PolishIterations = 30
	tr, err := NewTrainer(smp, asm, f, cfg)
	require.NoError(t, err)

	res, err := tr.Run()
	require.NoError(t, err)
	// The polish phase only ever replaces the best state with a lower
	// loss on the same cloud.
	ps, err := smp.Sample(0)
	require.NoError(t, err)
	f.SetParams(res.BestParams)
	assert.InDelta(t, res.BestLoss, asm.Loss(ps, f).Total, 1e-6)
}
