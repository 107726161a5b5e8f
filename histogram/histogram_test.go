package histogram

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHit(t *testing.T) {
	h := New(11)
	require.NoError(t, h.RecordHit(0))
	require.NoError(t, h.RecordHit(10))
	require.NoError(t, h.RecordHit(10))

	want := []uint64{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
	if diff := cmp.Diff(want, h.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(3), h.Total())
}

func TestRecordHitOutOfRange(t *testing.T) {
	h := New(11)
	for _, i := range []int{-1, 11, 100} {
		err := h.RecordHit(i)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBucketOutOfRange))
	}
	assert.Equal(t, uint64(0), h.Total())
}

func TestCountsMonotonicUntilReset(t *testing.T) {
	h := New(3)
	prev := h.Counts()
	for i := 0; i < 300; i++ {
		require.NoError(t, h.RecordHit(i%3))
		cur := h.Counts()
		for b := range cur {
			assert.GreaterOrEqual(t, cur[b], prev[b])
		}
		prev = cur
	}

	h.Reset()
	assert.Equal(t, []uint64{0, 0, 0}, h.Counts())
}

func TestStatistics(t *testing.T) {
	tests := []struct {
		name   string
		counts []uint64
		want   Statistics
	}{
		{
			name:   "empty histogram",
			counts: make([]uint64, 11),
			want:   Statistics{},
		},
		{
			name:   "single bucket",
			counts: []uint64{0, 0, 5, 0},
			want:   Statistics{Total: 5, Mean: 3, StdDev: 0},
		},
		{
			name:   "two equal buckets",
			counts: []uint64{1, 0, 1},
			want:   Statistics{Total: 2, Mean: 2, StdDev: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(len(tt.counts))
			h.Restore(tt.counts)
			got := h.Statistics()
			assert.Equal(t, tt.want.Total, got.Total)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-12)
			assert.InDelta(t, tt.want.StdDev, got.StdDev, 1e-12)
		})
	}
}

func TestStatisticsBoardExample(t *testing.T) {
	counts := []uint64{52, 89, 124, 147, 126, 91, 54, 28, 17, 8, 3}

	var total, weighted float64
	for i, c := range counts {
		total += float64(c)
		weighted += float64(i+1) * float64(c)
	}
	mean := weighted / total
	var sq float64
	for i, c := range counts {
		d := float64(i+1) - mean
		sq += float64(c) * d * d
	}
	std := math.Sqrt(sq / total)

	got := Compute(counts)
	assert.Equal(t, uint64(739), got.Total)
	assert.InDelta(t, 3234.0/739.0, got.Mean, 1e-12)
	assert.InDelta(t, mean, got.Mean, 1e-12)
	assert.InDelta(t, std, got.StdDev, 1e-12)
	assert.InDelta(t, 2.0572, got.StdDev, 1e-4)
}

func TestRestore(t *testing.T) {
	h := New(3)
	h.Restore([]uint64{4, 5, 6, 7})
	assert.Equal(t, []uint64{4, 5, 6}, h.Counts())

	h.Restore([]uint64{1})
	assert.Equal(t, []uint64{1, 0, 0}, h.Counts())
}
