package vector

import (
	"container/heap"
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

type slot struct {
	rec  Record
	norm float64
}

// Index is a thread-safe similarity index keyed by chunk ID.
// Writers are exclusive; Search holds the read lock for the whole scan, so a
// query never observes a partially applied record or batch.
type Index struct {
	mu sync.RWMutex

	identity Identity
	dim      int
	metric   Metric

	slots []slot
	pos   map[string]int

	ann *annGraph
}

// New creates an empty Index.
func New(opts Options) *Index {
	idx := &Index{
		identity: opts.Identity,
		dim:      opts.Dimension,
		metric:   opts.Metric,
		pos:      make(map[string]int),
	}
	// Inner products do not form a distance the graph can navigate, so
	// MetricDot always scans.
	if opts.Approximate && opts.Metric != MetricDot {
		params := opts.HNSW
		if params == (HNSWParams{}) {
			params = DefaultHNSWParams()
		}
		idx.ann = newANNGraph(opts.Metric, params)
	}
	return idx
}

// Identity returns the provider identity the index is bound to.
func (idx *Index) Identity() Identity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.identity
}

// Bind ties an unbound index to id, or checks that a bound index matches it.
func (idx *Index) Bind(id Identity) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.identity.IsZero() {
		idx.identity = id
		return nil
	}
	if idx.identity != id {
		return apperrors.ProviderMismatch("index built with " + idx.identity.String() +
			", provider is " + id.String())
	}
	return nil
}

// Metric returns the similarity function used by Search.
func (idx *Index) Metric() Metric {
	return idx.metric
}

// Len returns the number of records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.slots)
}

// Dimension returns the vector length, 0 while unset.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Add upserts rec. It fails with a DimensionMismatch error, leaving the
// index untouched, when the vector length disagrees with the index.
func (idx *Index) Add(rec Record) error {
	return idx.AddBatch([]Record{rec})
}

// AddBatch upserts all records or none of them.
func (idx *Index) AddBatch(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := idx.dim
	if dim == 0 {
		dim = len(recs[0].Vector)
	}
	for _, r := range recs {
		if r.ID == "" {
			return apperrors.ValidationError("record id must not be empty", nil)
		}
		if len(r.Vector) != dim || dim == 0 {
			return apperrors.DimensionMismatch(dim, len(r.Vector))
		}
	}

	idx.dim = dim
	for _, r := range recs {
		idx.upsertLocked(r)
	}
	idx.compactANNLocked()
	return nil
}

func (idx *Index) upsertLocked(r Record) {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	s := slot{
		rec:  Record{ID: r.ID, Vector: vec, Meta: r.Meta},
		norm: norm(vec),
	}
	if i, ok := idx.pos[r.ID]; ok {
		idx.slots[i] = s
	} else {
		idx.pos[r.ID] = len(idx.slots)
		idx.slots = append(idx.slots, s)
	}
	if idx.ann != nil {
		idx.ann.put(r.ID, vec)
	}
}

// Remove deletes the record with id. Absent ids are a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.removeLocked(id) {
		idx.compactANNLocked()
	}
}

func (idx *Index) removeLocked(id string) bool {
	i, ok := idx.pos[id]
	if !ok {
		return false
	}
	last := len(idx.slots) - 1
	if i != last {
		idx.slots[i] = idx.slots[last]
		idx.pos[idx.slots[i].rec.ID] = i
	}
	idx.slots[last] = slot{}
	idx.slots = idx.slots[:last]
	delete(idx.pos, id)
	if idx.ann != nil {
		idx.ann.drop(id)
	}
	return true
}

// RemoveDocument deletes every record of docID and returns how many.
func (idx *Index) RemoveDocument(docID string) int {
	return idx.RemoveWhere(func(m Meta) bool { return m.DocumentID == docID })
}

// RemoveWhere deletes records whose metadata satisfies match.
func (idx *Index) RemoveWhere(match func(Meta) bool) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var ids []string
	for i := range idx.slots {
		if match(idx.slots[i].rec.Meta) {
			ids = append(ids, idx.slots[i].rec.ID)
		}
	}
	for _, id := range ids {
		idx.removeLocked(id)
	}
	idx.compactANNLocked()
	return len(ids)
}

// Clear removes every record. Identity and dimension are kept.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.slots = nil
	idx.pos = make(map[string]int)
	if idx.ann != nil {
		idx.ann.reset()
	}
}

// Lookup returns a copy of the record with id.
func (idx *Index) Lookup(id string) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.pos[id]
	if !ok {
		return Record{}, false
	}
	return copyRecord(idx.slots[i].rec), true
}

// ContentHash returns the stored hash for id, used for skip-if-unchanged.
func (idx *Index) ContentHash(id string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.pos[id]
	if !ok {
		return "", false
	}
	return idx.slots[i].rec.Meta.ContentHash, true
}

// Records returns copies of all records sorted by ID.
func (idx *Index) Records() []Record {
	idx.mu.RLock()
	out := make([]Record, len(idx.slots))
	for i := range idx.slots {
		out[i] = copyRecord(idx.slots[i].rec)
	}
	idx.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DocumentIDs returns the IDs of records belonging to docID.
func (idx *Index) DocumentIDs(docID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var ids []string
	for i := range idx.slots {
		if idx.slots[i].rec.Meta.DocumentID == docID {
			ids = append(ids, idx.slots[i].rec.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func copyRecord(r Record) Record {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	return Record{ID: r.ID, Vector: vec, Meta: r.Meta}
}

// Search returns up to k hits ordered by descending score, ties broken by
// ascending ID.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, apperrors.ValidationError("k must be positive", nil)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.slots) == 0 {
		if idx.dim != 0 && len(query) != idx.dim {
			return nil, apperrors.DimensionMismatch(idx.dim, len(query))
		}
		return []Hit{}, nil
	}
	if len(query) != idx.dim {
		return nil, apperrors.DimensionMismatch(idx.dim, len(query))
	}

	qn := norm(query)
	if idx.ann != nil && len(idx.slots) >= idx.ann.params.ExactBelow && qn > 0 {
		if hits, ok := idx.searchApproxLocked(query, qn, k); ok {
			return hits, nil
		}
		slog.Debug("ann_fallback_exact", slog.Int("records", len(idx.slots)), slog.Int("k", k))
	}
	return idx.scanLocked(query, qn, k), nil
}

// scanLocked is the exhaustive reference scan: O(n*d + n log k).
func (idx *Index) scanLocked(query []float32, qn float64, k int) []Hit {
	top := make(hitHeap, 0, min(k, len(idx.slots)))
	for i := range idx.slots {
		s := &idx.slots[i]
		h := Hit{ID: s.rec.ID, Score: idx.metric.score(query, qn, s)}
		if len(top) < k {
			heap.Push(&top, h)
			continue
		}
		if better(h, top[0]) {
			top[0] = h
			heap.Fix(&top, 0)
		}
	}
	return idx.finishLocked(top)
}

// finishLocked sorts the candidates and attaches metadata.
func (idx *Index) finishLocked(hits []Hit) []Hit {
	sort.Slice(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	for i := range hits {
		hits[i].Meta = idx.slots[idx.pos[hits[i].ID]].rec.Meta
	}
	return hits
}

// hitHeap is a min-heap whose root is the worst kept hit.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
