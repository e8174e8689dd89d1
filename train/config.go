// Package train drives the physics-informed minimization: Adam updates of
// the field approximator's parameters against the energy functional, with
// reduce-on-plateau learning-rate scheduling, scheduled resampling events,
// divergence detection and best-state checkpointing.
package train

import "fmt"

// Config holds the optimizer-driver settings. Zero values are filled by
// DefaultConfig; Validate rejects inconsistent combinations before any
// iteration runs.
type Config struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	MaxIterations int
	// ResampleEvery is the iteration cadence of point-cloud replacement;
	// 0 disables resampling (a fixed cloud for the whole run).
	ResampleEvery int

	// Plateau schedule: when the loss fails to improve by more than
	// Tolerance for Patience consecutive iterations, the learning rate is
	// multiplied by LRDecay, bounded below by MinLR. A plateau at MinLR
	// terminates the run.
	Patience  int
	Tolerance float64
	LRDecay   float64
	MinLR     float64

	// AbsTol stops the run early once the total loss drops below it.
	// Zero disables the absolute criterion (energies are typically
	// negative at the minimum, so this is opt-in).
	AbsTol float64
	HasAbs bool

	// PolishIterations, when positive, runs an L-BFGS refinement from the
	// best Adam state on a fixed point cloud after the main loop.
	PolishIterations int

	// CheckpointEvery/CheckpointPath enable periodic persistence of the
	// best state during long runs; 0 or empty disables it.
	CheckpointEvery int
	CheckpointPath  string

	Verbose bool
	// Logf receives progress lines when Verbose is set; nil means
	// fmt.Printf.
	Logf func(format string, args ...any)
}

// DefaultConfig returns the settings used across the reference bulge-test
// runs.
func DefaultConfig() Config {
	return Config{
		LearningRate:  1e-2,
		Beta1:         0.9,
		Beta2:         0.999,
		Epsilon:       1e-8,
		MaxIterations: 20000,
		ResampleEvery: 500,
		Patience:      200,
		Tolerance:     1e-8,
		LRDecay:       0.5,
		MinLR:         1e-5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("train: learning rate must be positive, got %v", c.LearningRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("train: Adam betas must lie in [0,1), got %v, %v", c.Beta1, c.Beta2)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("train: epsilon must be positive, got %v", c.Epsilon)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("train: max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.ResampleEvery < 0 {
		return fmt.Errorf("train: resample interval must be non-negative, got %d", c.ResampleEvery)
	}
	if c.Patience < 1 {
		return fmt.Errorf("train: patience must be at least 1, got %d", c.Patience)
	}
	if c.LRDecay <= 0 || c.LRDecay >= 1 {
		return fmt.Errorf("train: learning-rate decay must lie in (0,1), got %v", c.LRDecay)
	}
	if c.MinLR <= 0 || c.MinLR > c.LearningRate {
		return fmt.Errorf("train: minimum learning rate %v must be positive and at most the initial rate %v", c.MinLR, c.LearningRate)
	}
	if c.CheckpointEvery > 0 && c.CheckpointPath == "" {
		return fmt.Errorf("train: periodic checkpointing enabled without a path")
	}
	return nil
}
