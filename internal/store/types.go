// Package store persists vector indexes and merges saved snapshots.
//
// Two backends are selected by file extension: ".db" and ".sqlite" paths use
// SQLite, every other path uses the binary DIDX file format. Both are written
// atomically: readers see the previous file or the new one, never a mix.
package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// SchemaVersion is the only on-disk version this build reads and writes.
const SchemaVersion = 1

// Codec selects how the file body is encoded.
type Codec uint8

const (
	CodecRaw  Codec = 0
	CodecZstd Codec = 1
)

// ParseCodec maps a config value to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return CodecRaw, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, apperrors.ConfigError(fmt.Sprintf("unknown compression %q (want none or zstd)", s), nil)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "none"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// DocumentInfo tracks one indexed document.
type DocumentInfo struct {
	// Source is where the text came from, usually a file path.
	Source    string    `json:"source,omitempty"`
	TextHash  string    `json:"text_hash"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Header is the metadata stored ahead of the records.
type Header struct {
	SchemaVersion int                     `json:"schema_version"`
	Provider      string                  `json:"provider"`
	Model         string                  `json:"model"`
	Dimension     int                     `json:"dimension"`
	Metric        string                  `json:"metric"`
	Records       int                     `json:"records"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Documents     map[string]DocumentInfo `json:"documents,omitempty"`
}

// Identity returns the provider identity recorded in the header.
func (h Header) Identity() vector.Identity {
	return vector.Identity{Provider: h.Provider, Model: h.Model}
}

// Snapshot pairs an index with its header, the unit Merge works on.
type Snapshot struct {
	Index  *vector.Index
	Header Header
}

// stamp fills the index-derived header fields.
func stamp(idx *vector.Index, hdr Header, now time.Time) Header {
	id := idx.Identity()
	hdr.SchemaVersion = SchemaVersion
	hdr.Provider = id.Provider
	hdr.Model = id.Model
	hdr.Dimension = idx.Dimension()
	hdr.Metric = idx.Metric().String()
	hdr.Records = idx.Len()
	if hdr.CreatedAt.IsZero() {
		hdr.CreatedAt = now
	}
	hdr.UpdatedAt = now
	return hdr
}

// indexOptions builds vector options for a loaded header.
func indexOptions(hdr Header, base vector.Options) (vector.Options, error) {
	metric, err := vector.ParseMetric(hdr.Metric)
	if err != nil {
		return vector.Options{}, apperrors.FormatError("unknown metric "+hdr.Metric, err)
	}
	base.Identity = hdr.Identity()
	base.Dimension = hdr.Dimension
	base.Metric = metric
	return base, nil
}

// Backend reports which backend handles path.
func Backend(path string) string {
	if isSQLite(path) {
		return "sqlite"
	}
	return "file"
}

func isSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// SaveOption adjusts Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	codec Codec
}

// WithCodec selects the body codec of the file backend.
func WithCodec(c Codec) SaveOption {
	return func(o *saveOptions) { o.codec = c }
}

// LoadOption adjusts Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	index vector.Options
}

// WithIndexOptions sets search options of the loaded index, such as the
// approximate accelerator. Identity, dimension and metric come from the file.
func WithIndexOptions(o vector.Options) LoadOption {
	return func(lo *loadOptions) { lo.index = o }
}
