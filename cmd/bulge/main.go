// Command bulge trains the physics-informed bulge-test solver described by
// a JSON run configuration, writes the checkpoint artifact, and optionally
// exports the trained displacement field on a regular grid as CSV and as a
// deflection heatmap for downstream post-processing.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bulgelab/bulge/config"
	"github.com/bulgelab/bulge/energy"
	"github.com/bulgelab/bulge/field"
	"github.com/bulgelab/bulge/geometry"
	"github.com/bulgelab/bulge/jet"
	"github.com/bulgelab/bulge/train"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "JSON run configuration (required)")
		outPath  = flag.String("out", "bulge-checkpoint.json", "checkpoint artifact to write")
		resume   = flag.String("resume", "", "checkpoint to resume from")
		gridPath = flag.String("grid", "", "CSV file for the evaluated displacement grid")
		plotPath = flag.String("plot", "", "PNG file for the deflection heatmap")
		gridN    = flag.Int("gridn", 101, "grid resolution per axis for -grid/-plot")
		ckEvery  = flag.Int("checkpoint-every", 0, "persist the best state every N iterations (0 = off)")
		quiet    = flag.Bool("quiet", false, "suppress progress output")
	)
	flag.Parse()
	if *cfgPath == "" && *resume == "" {
		fmt.Fprintln(os.Stderr, "bulge: -config or -resume is required")
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*cfgPath, *outPath, *resume, *gridPath, *plotPath, *gridN, *ckEvery, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "bulge: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, outPath, resume, gridPath, plotPath string, gridN, ckEvery int, quiet bool) error {
	var (
		r   config.Run
		net *field.Net
		err error
	)
	switch {
	case resume != "":
		if r, net, err = config.LoadCheckpoint(resume); err != nil {
			return err
		}
		if cfgPath != "" {
			// A fresh config overrides the persisted one; the net state
			// carries over.
			if r, err = config.LoadRun(cfgPath); err != nil {
				return err
			}
		}
	default:
		if r, err = config.LoadRun(cfgPath); err != nil {
			return err
		}
	}

	trainer, err := r.Build(net)
	if err != nil {
		return err
	}
	trainer.Config.Verbose = !quiet
	if ckEvery > 0 {
		trainer.Config.CheckpointEvery = ckEvery
		trainer.Config.CheckpointPath = outPath
		trainer.Saver = func(path string, params []float64) error {
			trainer.Field.SetParams(params)
			return config.SaveCheckpoint(path, r, netOf(trainer.Field))
		}
	}

	res, err := trainer.Run()
	switch {
	case errors.Is(err, train.ErrDiverged):
		fmt.Fprintf(os.Stderr, "bulge: %v\n", err)
	case err != nil:
		return err
	case !res.Converged:
		fmt.Fprintf(os.Stderr, "bulge: warning: budget of %d iterations exhausted without convergence; best loss %v\n",
			res.Iterations, res.BestLoss)
	}
	if last, ok := res.Record.Last(); ok && !quiet {
		fmt.Printf("finished after %d iterations: Πm %.6g  Πb %.6g  V %.6g  penalty %.6g  total %.6g (best %.6g at iter %d)\n",
			last.Iter+1, last.Terms.Membrane, last.Terms.Bending, last.Terms.Work,
			last.Terms.Penalty, last.Terms.Total, res.BestLoss, res.BestIter)
	}

	if err := config.SaveCheckpoint(outPath, r, netOf(trainer.Field)); err != nil {
		return err
	}
	if gridPath == "" && plotPath == "" {
		return nil
	}

	dom, grid, err := evaluateGrid(r, trainer.Field, gridN)
	if err != nil {
		return err
	}
	if gridPath != "" {
		if err := writeCSV(gridPath, grid, trainer.Field.Outputs()); err != nil {
			return err
		}
	}
	if plotPath != "" {
		if err := writeHeatmap(plotPath, dom, grid); err != nil {
			return err
		}
	}
	return nil
}

// netOf unwraps the trainable field back to its Net for checkpointing.
func netOf(f train.Field) *field.Net {
	switch v := f.(type) {
	case *field.Net:
		return v
	case *field.Constrained:
		return v.Net
	}
	panic(fmt.Sprintf("bulge: unknown field type %T", f))
}

// dispGrid is an evaluated displacement grid. W holds the deflection
// row-major; U, V are nil for membrane-only fields. Points outside the
// domain hold zero.
type dispGrid struct {
	xs, ys  []float64
	W, U, V []float64
}

func evaluateGrid(r config.Run, f energy.Field, n int) (geometry.Domain, *dispGrid, error) {
	dom, err := r.Domain()
	if err != nil {
		return nil, nil, err
	}
	min, max := dom.Bounds()
	g := &dispGrid{
		xs: make([]float64, n),
		ys: make([]float64, n),
		W:  make([]float64, n*n),
	}
	if f.Outputs() == field.PlateOutputs {
		g.U = make([]float64, n*n)
		g.V = make([]float64, n*n)
	}
	for i := 0; i < n; i++ {
		g.xs[i] = min[0] + (max[0]-min[0])*float64(i)/float64(n-1)
		g.ys[i] = min[1] + (max[1]-min[1])*float64(i)/float64(n-1)
	}
	out := make([]jet.Jet, f.Outputs())
	for j, y := range g.ys {
		for i, x := range g.xs {
			k := j*len(g.xs) + i
			if !dom.Contains(x, y) {
				continue
			}
			f.EvalJet(x, y, out)
			g.W[k] = out[0].Val
			if g.U != nil {
				g.U[k], g.V[k] = out[1].Val, out[2].Val
			}
		}
	}
	return dom, g, nil
}

func writeCSV(path string, g *dispGrid, outputs int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bulge: creating grid file: %w", err)
	}
	defer f.Close()
	if outputs == field.PlateOutputs {
		fmt.Fprintln(f, "x,y,w,u,v")
	} else {
		fmt.Fprintln(f, "x,y,w")
	}
	for j, y := range g.ys {
		for i, x := range g.xs {
			k := j*len(g.xs) + i
			if outputs == field.PlateOutputs {
				fmt.Fprintf(f, "%g,%g,%g,%g,%g\n", x, y, g.W[k], g.U[k], g.V[k])
			} else {
				fmt.Fprintf(f, "%g,%g,%g\n", x, y, g.W[k])
			}
		}
	}
	return nil
}

// heatGrid adapts dispGrid to plotter.GridXYZ.
type heatGrid struct{ g *dispGrid }

func (h heatGrid) Dims() (c, r int)   { return len(h.g.xs), len(h.g.ys) }
func (h heatGrid) Z(c, r int) float64 { return h.g.W[r*len(h.g.xs)+c] }
func (h heatGrid) X(c int) float64    { return h.g.xs[c] }
func (h heatGrid) Y(r int) float64    { return h.g.ys[r] }

func writeHeatmap(path string, dom geometry.Domain, g *dispGrid) error {
	p := plot.New()
	p.Title.Text = "deflection w(x, y)"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	pal := moreland.SmoothBlueRed().Palette(255)
	p.Add(plotter.NewHeatMap(heatGrid{g}, pal))
	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("bulge: saving heatmap: %w", err)
	}
	return nil
}
