package mcp

import (
	"github.com/Aman-CERP/docindex/internal/async"
	"github.com/Aman-CERP/docindex/internal/retrieve"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the natural-language query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of passages, default from config"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results  []PassageOutput              `json:"results" jsonschema:"passages ordered by descending similarity"`
	Indexing *async.IndexProgressSnapshot `json:"indexing,omitempty" jsonschema:"present while background indexing is running"`
}

// PassageOutput is one search hit.
type PassageOutput struct {
	ID         string  `json:"id" jsonschema:"chunk identifier"`
	DocumentID string  `json:"document_id" jsonschema:"source document identifier"`
	Start      int     `json:"start" jsonschema:"byte offset where the passage starts"`
	End        int     `json:"end" jsonschema:"byte offset where the passage ends"`
	Score      float64 `json:"score" jsonschema:"similarity score, higher is better"`
	Text       string  `json:"text,omitempty" jsonschema:"passage text when the source is available"`
	Stale      bool    `json:"stale,omitempty" jsonschema:"true if the source changed since indexing"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index      IndexInfo                    `json:"index"`
	Embeddings EmbeddingInfo                `json:"embeddings"`
	Indexing   *async.IndexProgressSnapshot `json:"indexing,omitempty"`
}

// IndexInfo describes the loaded index.
type IndexInfo struct {
	Path       string         `json:"path"`
	Records    int            `json:"records"`
	Dimension  int            `json:"dimension"`
	Metric     string         `json:"metric"`
	Documents  []DocumentInfo `json:"documents"`
	CreatedAt  string         `json:"created_at,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
	Incomplete bool           `json:"incomplete,omitempty"`
}

// DocumentInfo describes one indexed document.
type DocumentInfo struct {
	ID        string `json:"id"`
	Source    string `json:"source,omitempty"`
	Chunks    int    `json:"chunks"`
	IndexedAt string `json:"indexed_at,omitempty"`
}

// EmbeddingInfo names the provider the index is bound to.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func toPassageOutput(p retrieve.Passage) PassageOutput {
	return PassageOutput{
		ID:         p.ID,
		DocumentID: p.Meta.DocumentID,
		Start:      p.Meta.Start,
		End:        p.Meta.End,
		Score:      p.Score,
		Text:       p.Text,
		Stale:      p.Stale,
	}
}
