package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bulgelab/bulge/field"
)

// Checkpoint is the persisted artifact of a run: the configuration that
// produced it plus the field approximator state. It is sufficient both to
// resume training and to evaluate the displacement field downstream.
type Checkpoint struct {
	Config Run              `json:"config"`
	Field  field.Checkpoint `json:"field"`
}

// SaveCheckpoint writes the artifact atomically (write-then-rename), so an
// interrupted periodic checkpoint never corrupts the previous one.
func SaveCheckpoint(path string, run Run, net *field.Net) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("config: creating checkpoint: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", " ")
	if err := enc.Encode(Checkpoint{Config: run, Field: net.Snapshot()}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("config: writing checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: finalizing checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads an artifact and rebuilds the network.
func LoadCheckpoint(path string) (Run, *field.Net, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Run{}, nil, fmt.Errorf("config: reading checkpoint %s: %w", path, err)
	}
	var ck Checkpoint
	if err := json.Unmarshal(b, &ck); err != nil {
		return Run{}, nil, fmt.Errorf("config: parsing checkpoint %s: %w", path, err)
	}
	net, err := field.Restore(ck.Field)
	if err != nil {
		return Run{}, nil, err
	}
	return ck.Config, net, nil
}
