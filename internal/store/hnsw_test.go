package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		dim   int
		width int
		ok    bool
	}{
		{dim: 1, width: 128, ok: true},
		{dim: 128, width: 128, ok: true},
		{dim: 129, width: 256, ok: true},
		{dim: 384, width: 384, ok: true},
		{dim: 385, width: 512, ok: true},
		{dim: 768, width: 768, ok: true},
		{dim: 1536, width: 1536, ok: true},
		{dim: 1537, width: 1792, ok: true},
		{dim: 1793, width: 3072, ok: true},
		{dim: 3072, width: 3072, ok: true},
		{dim: 3073, ok: false},
		{dim: 0, ok: false},
		{dim: -4, ok: false},
	}

	for _, tt := range tests {
		width, ok := BucketFor(tt.dim)
		assert.Equal(t, tt.ok, ok, "dim %d", tt.dim)
		assert.Equal(t, tt.width, width, "dim %d", tt.dim)
	}
}

func TestCastToBucket_PadsShorterVectors(t *testing.T) {
	// Given: a 3-component vector
	v := []float32{1, 2, 3}

	// When: cast to width 5
	out := CastToBucket(v, 5)

	// Then: it is zero padded and the input is untouched
	assert.Equal(t, []float32{1, 2, 3, 0, 0}, out)
	assert.Equal(t, []float32{1, 2, 3}, v)
}

func TestCastToBucket_TruncatesLongerVectors(t *testing.T) {
	// Given: a vector one component wider than the smallest bucket
	v := make([]float32, 129)
	for i := range v {
		v[i] = float32(i + 1)
	}

	// When: cast to 128
	out := CastToBucket(v, 128)

	// Then: the last component is dropped
	require.Len(t, out, 128)
	assert.Equal(t, float32(128), out[127])
}

func TestCastToBucket_ExactWidthIsCopy(t *testing.T) {
	v := make([]float32, 384)
	v[0] = 1

	out := CastToBucket(v, 384)
	out[0] = 9

	assert.Equal(t, float32(1), v[0])
}

func TestCastToBucket_PaddingPreservesCosine(t *testing.T) {
	// Given: two 384-dim vectors
	a := make([]float32, 384)
	b := make([]float32, 384)
	for i := range a {
		a[i] = float32(math.Sin(float64(i)))
		b[i] = float32(math.Cos(float64(i)))
	}

	// When: both are padded into the 512 bucket
	before := cosineSimilarity(a, b)
	after := cosineSimilarity(CastToBucket(a, 512), CastToBucket(b, 512))

	// Then: similarity is unchanged
	assert.InDelta(t, before, after, 1e-9)
}

func TestBucketIndexes_SearchFindsNearest(t *testing.T) {
	// Given: three 4-dim vectors in the 128 bucket
	b := NewBucketIndexes()
	b.Add(1, "m", "a.md", []float32{1, 0, 0, 0})
	b.Add(2, "m", "b.md", []float32{0, 1, 0, 0})
	b.Add(3, "m", "c.md", []float32{0.9, 0.1, 0, 0})

	// When: searching near the first vector
	cands, exhausted := b.search(4, []float32{1, 0, 0, 0}, 3, func(bucketEntry) bool { return true })

	// Then: all three come back and the pool covered the graph
	assert.True(t, exhausted)
	require.Len(t, cands, 3)
	assert.Equal(t, int64(1), cands[0].id)
	assert.Greater(t, cands[0].score, float32(0.99))
}

func TestBucketIndexes_RemoveIsLazy(t *testing.T) {
	// Given: two indexed rows
	b := NewBucketIndexes()
	b.Add(1, "m", "a.md", []float32{1, 0, 0, 0})
	b.Add(2, "m", "b.md", []float32{0, 1, 0, 0})

	// When: one is removed
	b.Remove([]int64{1})

	// Then: the node stays in the graph but never surfaces
	stats := b.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, BucketStats{Width: 128, Live: 1, GraphNodes: 2}, stats[0])

	cands, _ := b.search(4, []float32{1, 0, 0, 0}, 10, func(bucketEntry) bool { return true })
	require.Len(t, cands, 1)
	assert.Equal(t, int64(2), cands[0].id)
}

func TestBucketIndexes_FilterAppliesToEntries(t *testing.T) {
	b := NewBucketIndexes()
	b.Add(1, "model-a", "a.md", []float32{1, 0, 0, 0})
	b.Add(2, "model-b", "a.md", []float32{1, 0, 0, 0})

	cands, _ := b.search(4, []float32{1, 0, 0, 0}, 10, func(e bucketEntry) bool { return e.model == "model-b" })

	require.Len(t, cands, 1)
	assert.Equal(t, int64(2), cands[0].id)
}

func TestBucketIndexes_SkipsUnindexableVectors(t *testing.T) {
	// Given: a zero vector and a vector wider than the largest bucket
	b := NewBucketIndexes()
	b.Add(1, "m", "zero.md", []float32{0, 0, 0, 0})
	b.Add(2, "m", "wide.md", make([]float32, MaxBucketDimension+1))

	// Then: nothing was indexed
	assert.Empty(t, b.Stats())

	_, exhausted := b.search(MaxBucketDimension+1, make([]float32, MaxBucketDimension+1), 10, func(bucketEntry) bool { return true })
	assert.True(t, exhausted)
}

func TestBucketIndexes_DifferentDimsShareBucket(t *testing.T) {
	// Given: a 3-dim and a 4-dim vector, both in the 128 bucket
	b := NewBucketIndexes()
	b.Add(1, "small", "a.md", []float32{1, 0, 0})
	b.Add(2, "large", "b.md", []float32{1, 0, 0, 0})

	// When: searching with the 3-dim model filter
	cands, _ := b.search(3, []float32{1, 0, 0}, 10, func(e bucketEntry) bool { return e.dim == 3 })

	// Then: only the matching dimension is returned
	require.Len(t, cands, 1)
	assert.Equal(t, int64(1), cands[0].id)
	assert.Equal(t, []BucketStats{{Width: 128, Live: 2, GraphNodes: 2}}, b.Stats())
}

func TestBucketIndexes_Reset(t *testing.T) {
	b := NewBucketIndexes()
	b.Add(1, "m", "a.md", []float32{1, 0, 0, 0})

	b.Reset()

	assert.Empty(t, b.Stats())
}

func TestDistanceToScore(t *testing.T) {
	assert.Equal(t, float32(1), distanceToScore(0))
	assert.Equal(t, float32(0.5), distanceToScore(1))
	assert.Equal(t, float32(0), distanceToScore(2))
}

func TestBucketIndexes_RowsTrackModelAndDim(t *testing.T) {
	b := NewBucketIndexes()
	b.Add(1, "m", "a.md", []float32{1, 0, 0, 0})
	b.Add(2, "m", "b.md", []float32{0, 1, 0, 0})
	b.Add(3, "other", "c.md", []float32{0, 0, 1, 0})
	b.Add(4, "m", "d.md", []float32{0, 0, 0})

	assert.Equal(t, 2, b.Rows("m", 4))
	assert.Equal(t, 1, b.Rows("m", 3))
	assert.Equal(t, 1, b.Rows("other", 4))

	// Re-adding a key replaces it rather than counting twice
	b.Add(2, "m", "b.md", []float32{0, 1, 1, 0})
	assert.Equal(t, 2, b.Rows("m", 4))

	b.Remove([]int64{1, 2, 99})
	assert.Zero(t, b.Rows("m", 4))
	assert.Zero(t, b.Rows("m", MaxBucketDimension+1))
}

func TestBucketIndexes_ExactRanksEveryLiveRow(t *testing.T) {
	// Given: rows at increasing angles from the query
	b := NewBucketIndexes()
	b.Add(1, "m", "far.md", []float32{0, 1})
	b.Add(2, "m", "near.md", []float32{1, 0.1})
	b.Add(3, "m", "mid.md", []float32{1, 1})
	b.Add(4, "m", "gone.md", []float32{1, 0})
	b.Remove([]int64{4})

	// When: ranking exactly
	cands := b.exact(2, []float32{1, 0}, 2, func(bucketEntry) bool { return true })

	// Then: the best live rows come first and removed rows never appear
	require.Len(t, cands, 2)
	assert.Equal(t, int64(2), cands[0].id)
	assert.Equal(t, int64(3), cands[1].id)
	assert.Empty(t, b.exact(2, []float32{0, 0}, 2, func(bucketEntry) bool { return true }))
}
