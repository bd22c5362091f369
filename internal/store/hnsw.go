package store

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// BucketDimensions are the widths of the in-memory indexes. A vector is
// indexed in the smallest bucket at least as wide as itself.
var BucketDimensions = []int{128, 256, 384, 512, 768, 1024, 1280, 1536, 1792, 3072}

// MaxBucketDimension is the widest bucket. Wider vectors are only
// searchable by sequential scan.
const MaxBucketDimension = 3072

// HNSW parameters shared by every bucket graph
const (
	hnswM        = 16
	hnswEfSearch = 100
	hnswMl       = 0.25
)

// BucketFor returns the bucket width for a vector of dim components.
// ok is false when dim is not positive or exceeds MaxBucketDimension.
func BucketFor(dim int) (width int, ok bool) {
	if dim <= 0 {
		return 0, false
	}
	i := sort.SearchInts(BucketDimensions, dim)
	if i == len(BucketDimensions) {
		return 0, false
	}
	return BucketDimensions[i], true
}

// CastToBucket returns a copy of v with exactly width components,
// truncating longer vectors and zero padding shorter ones. Padding leaves
// cosine similarity unchanged.
func CastToBucket(v []float32, width int) []float32 {
	out := make([]float32, width)
	copy(out, v)
	return out
}

// bucketEntry is what the index remembers about a row so candidates can be
// filtered without touching SQLite.
type bucketEntry struct {
	model string
	dim   int
	path  string
}

// rowSet identifies one model's rows inside a bucket.
type rowSet struct {
	model string
	dim   int
}

type bucketGraph struct {
	graph *hnsw.Graph[uint64]
	live  map[uint64]bucketEntry
	rows  map[rowSet]int
}

func (bg *bucketGraph) forget(key uint64) {
	entry, ok := bg.live[key]
	if !ok {
		return
	}
	delete(bg.live, key)
	set := rowSet{entry.model, entry.dim}
	if bg.rows[set]--; bg.rows[set] <= 0 {
		delete(bg.rows, set)
	}
}

func newBucketGraph() *bucketGraph {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = hnswMl
	return &bucketGraph{graph: graph, live: make(map[uint64]bucketEntry), rows: make(map[rowSet]int)}
}

// candidate is an index hit awaiting exact re-scoring.
type candidate struct {
	id    int64
	score float32
}

// BucketIndexes holds one HNSW graph per bucket width. Deleted rows are
// dropped from the live set only; their nodes stay in the graph until the
// next Reset, which avoids a coder/hnsw bug when the last node is removed.
type BucketIndexes struct {
	mu      sync.RWMutex
	buckets map[int]*bucketGraph
}

// NewBucketIndexes creates empty bucket indexes.
func NewBucketIndexes() *BucketIndexes {
	return &BucketIndexes{buckets: make(map[int]*bucketGraph)}
}

// Add indexes one row. Vectors wider than MaxBucketDimension and zero
// vectors are skipped; the scan fallback still finds them.
func (b *BucketIndexes) Add(id int64, model, path string, vec []float32) {
	width, ok := BucketFor(len(vec))
	if !ok {
		return
	}
	cast := CastToBucket(vec, width)
	if !normalizeVectorInPlace(cast) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bg, exists := b.buckets[width]
	if !exists {
		bg = newBucketGraph()
		b.buckets[width] = bg
	}
	key := uint64(id)
	bg.forget(key)
	bg.graph.Add(hnsw.MakeNode(key, cast))
	bg.live[key] = bucketEntry{model: model, dim: len(vec), path: path}
	bg.rows[rowSet{model, len(vec)}]++
}

// Remove drops rows from the live sets.
func (b *BucketIndexes) Remove(ids []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		for _, bg := range b.buckets {
			bg.forget(uint64(id))
		}
	}
}

// Reset discards every graph.
func (b *BucketIndexes) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[int]*bucketGraph)
}

// search returns up to k live candidates from the bucket serving dim that
// pass keep. exhausted is true when k covered the whole graph, so a wider
// search cannot find anything new.
func (b *BucketIndexes) search(dim int, query []float32, k int, keep func(bucketEntry) bool) (cands []candidate, exhausted bool) {
	width, ok := BucketFor(dim)
	if !ok {
		return nil, true
	}

	q := CastToBucket(query, width)
	if !normalizeVectorInPlace(q) {
		return nil, true
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	bg, exists := b.buckets[width]
	if !exists || bg.graph.Len() == 0 {
		return nil, true
	}

	total := bg.graph.Len()
	nodes := bg.graph.Search(q, min(k, total))
	for _, node := range nodes {
		entry, live := bg.live[node.Key]
		if !live || !keep(entry) {
			continue
		}
		distance := bg.graph.Distance(q, node.Value)
		cands = append(cands, candidate{id: int64(node.Key), score: distanceToScore(distance)})
	}
	return cands, k >= total
}

// Rows returns how many live rows of model and dim are indexed.
func (b *BucketIndexes) Rows(model string, dim int) int {
	width, ok := BucketFor(dim)
	if !ok {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bg, exists := b.buckets[width]; exists {
		return bg.rows[rowSet{model, dim}]
	}
	return 0
}

// exact ranks every live row passing keep against query by comparing the
// stored vectors directly, and returns the best k.
func (b *BucketIndexes) exact(dim int, query []float32, k int, keep func(bucketEntry) bool) []candidate {
	width, ok := BucketFor(dim)
	if !ok || k <= 0 {
		return nil
	}
	q := CastToBucket(query, width)
	if !normalizeVectorInPlace(q) {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	bg, exists := b.buckets[width]
	if !exists {
		return nil
	}
	var cands []candidate
	for key, entry := range bg.live {
		if !keep(entry) {
			continue
		}
		vec, found := bg.graph.Lookup(key)
		if !found {
			continue
		}
		cands = append(cands, candidate{id: int64(key), score: distanceToScore(bg.graph.Distance(q, vec))})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	return cands[:min(k, len(cands))]
}

// BucketStats describes one bucket graph.
type BucketStats struct {
	Width      int
	Live       int // Rows searchable through this bucket
	GraphNodes int // Includes nodes of deleted rows
}

// Stats returns per-bucket statistics ordered by width.
func (b *BucketIndexes) Stats() []BucketStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]BucketStats, 0, len(b.buckets))
	for width, bg := range b.buckets {
		out = append(out, BucketStats{Width: width, Live: len(bg.live), GraphNodes: bg.graph.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Width < out[j].Width })
	return out
}

// normalizeVectorInPlace normalizes v to unit length. It reports false for
// a zero vector, which is left untouched.
func normalizeVectorInPlace(v []float32) bool {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return false
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
	return true
}

// distanceToScore converts a cosine distance (0..2) to a similarity score.
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
