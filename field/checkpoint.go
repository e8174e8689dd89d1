package field

import (
	"encoding/json"
	"fmt"
	"io"
)

// Checkpoint is the serialized state of a Net: architecture, input
// normalization and the flat parameter vector. Reloading a checkpoint and
// evaluating on the same coordinates reproduces the original outputs
// bit for bit.
type Checkpoint struct {
	Hidden  []int     `json:"hidden_layer_sizes"`
	Outputs int       `json:"outputs"`
	LX      float64   `json:"char_length_x"`
	LY      float64   `json:"char_length_y"`
	Params  []float64 `json:"params"`
}

// Snapshot captures the network's current state.
func (n *Net) Snapshot() Checkpoint {
	return Checkpoint{
		Hidden:  append([]int(nil), n.sizes[1:len(n.sizes)-1]...),
		Outputs: n.Outputs(),
		LX:      n.lx,
		LY:      n.ly,
		Params:  n.Params(nil),
	}
}

// Save writes the network state as JSON.
func (n *Net) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(n.Snapshot()); err != nil {
		return fmt.Errorf("field: saving checkpoint: %w", err)
	}
	return nil
}

// Restore rebuilds a Net from a checkpoint.
func Restore(ck Checkpoint) (*Net, error) {
	if len(ck.Params) == 0 {
		return nil, fmt.Errorf("field: checkpoint has no parameters")
	}
	sizes := make([]int, 0, len(ck.Hidden)+2)
	sizes = append(sizes, 2)
	sizes = append(sizes, ck.Hidden...)
	sizes = append(sizes, ck.Outputs)
	n := &Net{sizes: sizes, lx: ck.LX, ly: ck.LY}
	if ck.Outputs != MembraneOutputs && ck.Outputs != PlateOutputs {
		return nil, fmt.Errorf("field: checkpoint has %d outputs", ck.Outputs)
	}
	if ck.LX <= 0 || ck.LY <= 0 {
		return nil, fmt.Errorf("field: checkpoint has non-positive characteristic lengths")
	}
	n.alloc()
	if len(ck.Params) != n.NumParams() {
		return nil, fmt.Errorf("field: checkpoint has %d parameters, architecture needs %d", len(ck.Params), n.NumParams())
	}
	n.SetParams(ck.Params)
	return n, nil
}

// Load reads a JSON checkpoint and rebuilds the Net.
func Load(r io.Reader) (*Net, error) {
	var ck Checkpoint
	if err := json.NewDecoder(r).Decode(&ck); err != nil {
		return nil, fmt.Errorf("field: reading checkpoint: %w", err)
	}
	return Restore(ck)
}
