// Package aspect provides access to the spacecraft aspect solution: a 1 Hz
// time series of boresight pointing and roll. A missing sample at a tick is a
// data gap, not an error; the estimator excludes gap ticks from its average.
package aspect

// Sample is one 1 Hz aspect-solution record.
type Sample struct {
	RA   float64 // boresight right ascension, degrees
	Dec  float64 // boresight declination, degrees
	Roll float64 // spacecraft roll, degrees

	// ExpFrac is the effective exposure fraction for the tick: 1.0 for a
	// full second, reduced for dead time. Zero means no usable exposure.
	ExpFrac float64
}

// Provider is the aspect-solution lookup interface. Absence at a tick is a
// valid, expected outcome.
type Provider interface {
	Lookup(tick int64) (Sample, bool)
}

// Table is an in-memory aspect solution keyed by mission-time tick.
type Table struct {
	samples map[int64]Sample
}

// NewTable creates an empty aspect table.
func NewTable() *Table {
	return &Table{samples: make(map[int64]Sample)}
}

// Set records the sample for a tick, replacing any existing one. ExpFrac is
// stored as given; a zero value marks a dead tick, not a full one.
func (t *Table) Set(tick int64, s Sample) {
	t.samples[tick] = s
}

// Lookup implements Provider.
func (t *Table) Lookup(tick int64) (Sample, bool) {
	s, ok := t.samples[tick]
	return s, ok
}

// Len returns the number of recorded ticks.
func (t *Table) Len() int {
	return len(t.samples)
}

// Each calls fn for every recorded tick, in no particular order.
func (t *Table) Each(fn func(tick int64, s Sample)) {
	for tick, s := range t.samples {
		fn(tick, s)
	}
}
