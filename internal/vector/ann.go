package vector

import (
	"math"

	"github.com/coder/hnsw"
)

// annGraph proposes candidates for Search from an HNSW graph. Replaced or
// removed records are orphaned rather than deleted from the graph; the graph
// is rebuilt once orphans outnumber live nodes.
//
// Zero vectors have no cosine direction, so they live in zeros and are
// offered as candidates on every query.
type annGraph struct {
	metric Metric
	params HNSWParams

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	zeros   map[string]struct{}
	nextKey uint64
	orphans int
}

func newANNGraph(metric Metric, params HNSWParams) *annGraph {
	a := &annGraph{metric: metric, params: params}
	a.reset()
	return a
}

func (a *annGraph) reset() {
	g := hnsw.NewGraph[uint64]()
	if a.metric == MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	if a.params.M > 0 {
		g.M = a.params.M
	}
	if a.params.EfSearch > 0 {
		g.EfSearch = a.params.EfSearch
	}
	g.Ml = 0.25
	a.graph = g
	a.idMap = make(map[string]uint64)
	a.keyMap = make(map[uint64]string)
	a.zeros = make(map[string]struct{})
	a.orphans = 0
}

// put inserts or replaces id.
func (a *annGraph) put(id string, vec []float32) {
	a.drop(id)
	if a.metric != MetricL2 && norm(vec) == 0 {
		a.zeros[id] = struct{}{}
		return
	}
	v := make([]float32, len(vec))
	copy(v, vec)
	if a.metric != MetricL2 {
		normalize(v)
	}
	key := a.nextKey
	a.nextKey++
	a.graph.Add(hnsw.MakeNode(key, v))
	a.idMap[id] = key
	a.keyMap[key] = id
}

func (a *annGraph) drop(id string) {
	delete(a.zeros, id)
	if key, ok := a.idMap[id]; ok {
		delete(a.keyMap, key)
		delete(a.idMap, id)
		a.orphans++
	}
}

func (a *annGraph) stale() bool {
	return a.orphans > 64 && a.orphans > len(a.idMap)
}

func (a *annGraph) candidates(query []float32, k int) []string {
	ids := make([]string, 0, len(a.zeros))
	for id := range a.zeros {
		ids = append(ids, id)
	}
	if a.graph.Len() == 0 {
		return ids
	}
	q := make([]float32, len(query))
	copy(q, query)
	if a.metric != MetricL2 {
		normalize(q)
	}
	n := k * max(a.params.Oversample, 1)
	// One spare candidate lets the caller see a tie across the cutoff.
	n = max(n, a.params.EfSearch, k+1)
	// Orphans still occupy graph slots.
	n += a.orphans

	nodes := a.graph.Search(q, n)
	for _, node := range nodes {
		if id, ok := a.keyMap[node.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func normalize(v []float32) {
	n := norm(v)
	if n == 0 {
		return
	}
	inv := 1 / n
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// compactANNLocked rebuilds a graph dominated by orphans. Needs the write lock.
func (idx *Index) compactANNLocked() {
	if idx.ann == nil || !idx.ann.stale() {
		return
	}
	idx.ann.reset()
	for i := range idx.slots {
		idx.ann.put(idx.slots[i].rec.ID, idx.slots[i].rec.Vector)
	}
}

// searchApproxLocked re-scores graph candidates exactly. It reports false
// when the graph cannot supply more than k live candidates or the k-th score
// is tied at the cutoff, and the caller scans.
func (idx *Index) searchApproxLocked(query []float32, qn float64, k int) ([]Hit, bool) {
	ids := idx.ann.candidates(query, k)
	if len(ids) < min(k+1, len(idx.slots)) {
		return nil, false
	}

	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		s := &idx.slots[idx.pos[id]]
		score := idx.metric.score(query, qn, s)
		if math.IsNaN(score) {
			return nil, false
		}
		hits = append(hits, Hit{ID: id, Score: score})
	}
	hits = idx.finishLocked(hits)
	// Records tied with the k-th hit may lie outside the candidate set, and
	// the ID tie-break needs all of them.
	if len(hits) > k && len(hits) < len(idx.slots) && hits[len(hits)-1].Score == hits[k-1].Score {
		return nil, false
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, true
}
