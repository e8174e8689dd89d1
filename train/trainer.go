package train

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/bulgelab/bulge/energy"
	"github.com/bulgelab/bulge/geometry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrDiverged reports a non-finite loss during training. The returned
// Result still carries the best finite state seen before divergence.
var ErrDiverged = errors.New("train: loss diverged")

// Field is what the trainer optimizes: an energy.Field whose parameters it
// owns exclusively for the duration of the run.
type Field interface {
	energy.Field
	NumParams() int
	Params(dst []float64) []float64
	SetParams(p []float64)
}

// Result is the outcome of a run. BestParams is always the best-seen state,
// not the final iterate: stochastic resampling makes the last step
// non-optimal in general, so the trainer snapshots on every improvement.
type Result struct {
	BestParams []float64
	BestLoss   float64
	BestIter   int
	Iterations int
	// Converged is true when the run met the absolute tolerance or
	// plateaued at the minimum learning rate; false means the iteration
	// budget ran out first (soft failure, the result is still usable).
	Converged bool
	FinalLR   float64
	Record    *Record
}

// Trainer couples a sampler, an assembler and a field into one run. It is
// strictly single-threaded: one logical thread issues
// sample → forward/backward → update steps in sequence, and nothing else
// mutates the field state.
type Trainer struct {
	Sampler   *geometry.Sampler
	Assembler *energy.Assembler
	Field     Field
	Config    Config

	// Saver persists the best state on the periodic checkpoint cadence.
	// Nil disables periodic persistence even if the cadence is set.
	Saver func(path string, params []float64) error
}

// NewTrainer validates the parts and returns a Trainer.
func NewTrainer(s *geometry.Sampler, a *energy.Assembler, f Field, cfg Config) (*Trainer, error) {
	if s == nil || a == nil || f == nil {
		return nil, fmt.Errorf("train: sampler, assembler and field are all required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{Sampler: s, Assembler: a, Field: f, Config: cfg}, nil
}

func (t *Trainer) logf(format string, args ...any) {
	if !t.Config.Verbose {
		return
	}
	if t.Config.Logf != nil {
		t.Config.Logf(format, args...)
		return
	}
	fmt.Printf(format, args...)
}

// Run executes the training loop. On divergence it returns the best prior
// state together with ErrDiverged wrapped with the failing iteration; all
// other in-loop termination is policy-driven, not an error.
func (t *Trainer) Run() (*Result, error) {
	cfg := t.Config
	ps, err := t.Sampler.Sample(0)
	if err != nil {
		return nil, err
	}

	np := t.Field.NumParams()
	params := t.Field.Params(make([]float64, 0, np))
	grad := make([]float64, np)
	m := make([]float64, np)
	v := make([]float64, np)

	res := &Result{
		BestParams: append([]float64(nil), params...),
		BestLoss:   math.Inf(1),
		Record:     &Record{},
	}

	lr := cfg.LearningRate
	plateauBest := math.Inf(1)
	wait := 0
	resamples := 0

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if cfg.ResampleEvery > 0 && iter > 0 && iter%cfg.ResampleEvery == 0 {
			resamples++
			if ps, err = t.Sampler.Sample(resamples); err != nil {
				return res, err
			}
		}

		terms := t.Assembler.LossGrad(ps, t.Field, grad)
		if !isFinite(terms.Total) || floats.HasNaN(grad) {
			t.Field.SetParams(res.BestParams)
			res.Iterations = iter
			res.FinalLR = lr
			return res, fmt.Errorf("%w at iteration %d; best loss %v from iteration %d retained",
				ErrDiverged, iter, res.BestLoss, res.BestIter)
		}
		res.Record.append(Entry{Iter: iter, Terms: terms, LR: lr})

		if terms.Total < res.BestLoss {
			res.BestLoss = terms.Total
			res.BestIter = iter
			copy(res.BestParams, params)
		}
		if cfg.CheckpointEvery > 0 && t.Saver != nil && iter > 0 && iter%cfg.CheckpointEvery == 0 {
			if err := t.Saver(cfg.CheckpointPath, res.BestParams); err != nil {
				t.logf("iter %d: periodic checkpoint failed: %v\n", iter, err)
			}
		}
		if iter%1000 == 0 {
			t.logf("iter %6d  lr %.2e  Πm %.6g  Πb %.6g  V %.6g  pen %.6g  total %.6g\n",
				iter, lr, terms.Membrane, terms.Bending, terms.Work, terms.Penalty, terms.Total)
		}

		if cfg.HasAbs && terms.Total < cfg.AbsTol {
			res.Iterations = iter + 1
			res.Converged = true
			res.FinalLR = lr
			t.finish(res)
			return res, nil
		}

		// Reduce-on-plateau schedule.
		if terms.Total < plateauBest-cfg.Tolerance {
			plateauBest = terms.Total
			wait = 0
		} else if wait++; wait >= cfg.Patience {
			if lr <= cfg.MinLR {
				res.Iterations = iter + 1
				res.Converged = true
				res.FinalLR = lr
				t.logf("iter %d: plateau at minimum learning rate, stopping\n", iter)
				t.finish(res)
				return res, nil
			}
			lr = math.Max(lr*cfg.LRDecay, cfg.MinLR)
			wait = 0
			t.logf("iter %d: plateau, learning rate reduced to %.3e\n", iter, lr)
		}

		adamStep(params, grad, m, v, iter+1, lr, cfg.Beta1, cfg.Beta2, cfg.Epsilon)
		t.Field.SetParams(params)
	}

	res.Iterations = cfg.MaxIterations
	res.FinalLR = lr
	t.logf("iteration budget exhausted without meeting tolerance; best loss %v at iteration %d\n",
		res.BestLoss, res.BestIter)
	t.finish(res)
	return res, nil
}

// finish restores the best state and runs the optional polish phase.
func (t *Trainer) finish(res *Result) {
	t.Field.SetParams(res.BestParams)
	if t.Config.PolishIterations > 0 {
		t.polish(res)
	}
}

// polish refines the best state with L-BFGS on a fixed point cloud. The
// quasi-Newton step is deterministic, so it runs after the stochastic loop
// and only replaces the best state when it actually improves the loss on
// its cloud. Failure here is non-fatal.
func (t *Trainer) polish(res *Result) {
	ps, err := t.Sampler.Sample(0)
	if err != nil {
		t.logf("polish: sampling failed: %v\n", err)
		return
	}
	grad := make([]float64, t.Field.NumParams())
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			t.Field.SetParams(x)
			return t.Assembler.Loss(ps, t.Field).Total
		},
		Grad: func(dst, x []float64) {
			t.Field.SetParams(x)
			t.Assembler.LossGrad(ps, t.Field, grad)
			copy(dst, grad)
		},
	}
	settings := &optimize.Settings{MajorIterations: t.Config.PolishIterations}
	r, err := optimize.Minimize(problem, res.BestParams, settings, &optimize.LBFGS{})
	if err != nil {
		t.logf("polish: %v\n", err)
		t.Field.SetParams(res.BestParams)
		return
	}
	before := problem.Func(res.BestParams)
	if isFinite(r.F) && r.F < before {
		t.logf("polish: %v -> %v in %d iterations\n", before, r.F, r.Stats.MajorIterations)
		copy(res.BestParams, r.X)
		res.BestLoss = r.F
	}
	t.Field.SetParams(res.BestParams)
}

// SaveBest writes the best state to path using the trainer's Saver.
func (t *Trainer) SaveBest(res *Result, path string) error {
	if t.Saver == nil {
		return fmt.Errorf("train: no saver configured")
	}
	return t.Saver(path, res.BestParams)
}

// adamStep applies one Adam update in place. step is 1-based for the bias
// correction.
func adamStep(params, grad, m, v []float64, step int, lr, b1, b2, eps float64) {
	c1 := 1 - math.Pow(b1, float64(step))
	c2 := 1 - math.Pow(b2, float64(step))
	for i, g := range grad {
		m[i] = b1*m[i] + (1-b1)*g
		v[i] = b2*v[i] + (1-b2)*g*g
		params[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + eps)
	}
}

func isFinite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// WriteParamsJSON is a minimal Saver writing the raw parameter vector as a
// JSON array; the config package provides a Saver that bundles the full run
// configuration with the field checkpoint.
func WriteParamsJSON(path string, params []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("train: creating checkpoint file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(params); err != nil {
		return fmt.Errorf("train: writing checkpoint: %w", err)
	}
	return nil
}
