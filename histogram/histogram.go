// Package histogram accumulates per-bucket hit counts and derives running statistics.
package histogram

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ErrBucketOutOfRange is returned when a hit names a bucket the histogram does not have.
var ErrBucketOutOfRange = errors.New("bucket index out of range")

// Statistics summarises the distribution of hits. Bucket positions are 1-based.
type Statistics struct {
	Total  uint64  `json:"total"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Histogram holds one unbounded counter per bucket. It is not safe for concurrent use;
// readers on other goroutines work from Counts copies.
type Histogram struct {
	counts []uint64
}

// New creates an all-zero histogram with n buckets.
func New(n int) *Histogram {
	if n < 1 {
		n = 1
	}
	return &Histogram{counts: make([]uint64, n)}
}

// Len returns the number of buckets.
func (h *Histogram) Len() int {
	return len(h.counts)
}

// RecordHit increments the count of bucket i.
func (h *Histogram) RecordHit(i int) error {
	if i < 0 || i >= len(h.counts) {
		return errors.Wrapf(ErrBucketOutOfRange, "bucket %d of %d", i, len(h.counts))
	}
	h.counts[i]++
	return nil
}

// Counts returns a copy of the per-bucket counts.
func (h *Histogram) Counts() []uint64 {
	out := make([]uint64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Total returns the sum of all counts.
func (h *Histogram) Total() uint64 {
	var total uint64
	for _, c := range h.counts {
		total += c
	}
	return total
}

// Statistics returns the total, mean and population standard deviation of the hits, with
// bucket i contributing the value i+1 with weight count_i. An empty histogram reports a
// mean and standard deviation of zero.
func (h *Histogram) Statistics() Statistics {
	return Compute(h.counts)
}

// Reset zeroes all counts.
func (h *Histogram) Reset() {
	clear(h.counts)
}

// Restore overwrites the counts with a previously saved set, used to resume a session.
// Extra entries are ignored and missing ones are left at zero.
func (h *Histogram) Restore(counts []uint64) {
	h.Reset()
	copy(h.counts, counts)
}

// Compute derives Statistics from raw counts.
func Compute(counts []uint64) Statistics {
	positions := make([]float64, len(counts))
	weights := make([]float64, len(counts))
	var total uint64
	for i, c := range counts {
		positions[i] = float64(i + 1)
		weights[i] = float64(c)
		total += c
	}
	if total == 0 {
		return Statistics{}
	}

	mean, std := stat.PopMeanStdDev(positions, weights)
	return Statistics{Total: total, Mean: mean, StdDev: std}
}
