package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

func snapshot(t *testing.T, id vector.Identity, hdr Header, recs ...vector.Record) Snapshot {
	t.Helper()
	idx := vector.New(vector.Options{Identity: id})
	require.NoError(t, idx.AddBatch(recs))
	return Snapshot{Index: idx, Header: hdr}
}

func TestMerge_LaterInputWins(t *testing.T) {
	// Given: two indexes that both hold c1 with different content
	a := snapshot(t, testIdentity, Header{},
		record("c1", "hash-a", 1, 0), record("c2", "hash-2", 0, 1))
	b := snapshot(t, testIdentity, Header{},
		record("c1", "hash-b", 0.5, 0.5), record("c3", "hash-3", 1, 1))

	// When: merging [a, b]
	merged, hdr, err := Merge([]Snapshot{a, b})

	// Then: the union holds c1 from b
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Len())
	c1, ok := merged.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "hash-b", c1.Meta.ContentHash)
	assert.Equal(t, []float32{0.5, 0.5}, c1.Vector)
	assert.Equal(t, 3, hdr.Records)
	assert.Equal(t, testIdentity, hdr.Identity())
	assert.Equal(t, testIdentity, merged.Identity())
}

func TestMerge_ProviderMismatchMergesNothing(t *testing.T) {
	a := snapshot(t, testIdentity, Header{}, record("c1", "h", 1, 0))
	b := snapshot(t, vector.Identity{Provider: "openai", Model: "text-embedding-3-small"}, Header{}, record("c2", "h", 1, 0))

	merged, _, err := Merge([]Snapshot{a, b})

	assert.Nil(t, merged)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProviderMismatch))
}

func TestMerge_DimensionMismatch(t *testing.T) {
	a := snapshot(t, testIdentity, Header{}, record("c1", "h", 1, 0))
	b := snapshot(t, testIdentity, Header{}, record("c2", "h", 1, 0, 0))

	_, _, err := Merge([]Snapshot{a, b})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProviderMismatch))
}

func TestMerge_ReindexedDocumentDropsOldChunks(t *testing.T) {
	// Given: an old version of doc with three chunks and a new one with two
	old := snapshot(t, testIdentity, Header{Documents: map[string]DocumentInfo{"doc": {TextHash: "v1", Chunks: 3}}},
		record("doc#0000000000", "a", 1, 0), record("doc#0000000001", "b", 0, 1), record("doc#0000000002", "c", 1, 1))
	newer := snapshot(t, testIdentity, Header{Documents: map[string]DocumentInfo{"doc": {TextHash: "v2", Chunks: 2}}},
		record("doc#0000000000", "a2", 1, 0), record("doc#0000000001", "b2", 0, 1))

	merged, hdr, err := Merge([]Snapshot{old, newer})

	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())
	_, ok := merged.Lookup("doc#0000000002")
	assert.False(t, ok)
	assert.Equal(t, "v2", hdr.Documents["doc"].TextHash)
}

func TestMerge_HeaderTimes(t *testing.T) {
	early := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := snapshot(t, testIdentity, Header{CreatedAt: late}, record("x", "h", 1))
	b := snapshot(t, testIdentity, Header{CreatedAt: early}, record("y", "h", 1))

	_, hdr, err := Merge([]Snapshot{a, b})

	require.NoError(t, err)
	assert.True(t, early.Equal(hdr.CreatedAt))
	assert.True(t, hdr.UpdatedAt.After(late))
}

func TestMerge_SkipsEmptyUnboundInputs(t *testing.T) {
	empty := Snapshot{Index: vector.New(vector.Options{})}
	a := snapshot(t, testIdentity, Header{}, record("c1", "h", 1, 0))

	merged, _, err := Merge([]Snapshot{empty, a})

	require.NoError(t, err)
	assert.Equal(t, 1, merged.Len())

	_, _, err = Merge(nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}
