package train

import "github.com/bulgelab/bulge/energy"

// Entry is one row of the training record.
type Entry struct {
	Iter  int
	Terms energy.Terms
	LR    float64
}

// Record is the append-only loss history of a run, used for convergence
// monitoring and offline diagnostics.
type Record struct {
	entries []Entry
}

func (r *Record) append(e Entry) { r.entries = append(r.entries, e) }

// Len returns the number of recorded iterations.
func (r *Record) Len() int { return len(r.entries) }

// At returns the i-th entry.
func (r *Record) At(i int) Entry { return r.entries[i] }

// Last returns the most recent entry; ok is false on an empty record.
func (r *Record) Last() (e Entry, ok bool) {
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Losses returns the total-loss history as a fresh slice.
func (r *Record) Losses() []float64 {
	ls := make([]float64, len(r.entries))
	for i, e := range r.entries {
		ls[i] = e.Terms.Total
	}
	return ls
}
