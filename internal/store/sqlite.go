package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

const sqliteMagic = "SQLite format 3\x00"

const sqliteSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE records (
	id        TEXT PRIMARY KEY,
	doc_id    TEXT NOT NULL,
	start_off INTEGER NOT NULL,
	end_off   INTEGER NOT NULL,
	hash      TEXT NOT NULL,
	vector    BLOB NOT NULL
);

CREATE INDEX idx_records_doc ON records(doc_id);
`

func saveSQLite(ctx context.Context, path string, hdr Header, recs []vector.Record) error {
	return writeAtomic(path, func(f *os.File) error {
		db, err := sql.Open("sqlite", f.Name())
		if err != nil {
			return apperrors.IOError("open sqlite", err)
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(1)

		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = DELETE"); err != nil {
			return apperrors.IOError("set pragma", err)
		}
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			return apperrors.IOError("create schema", err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return apperrors.IOError("begin transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		headerJSON, err := json.Marshal(hdr)
		if err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta(key, value) VALUES ('schema_version', ?), ('header', ?)`,
			strconv.Itoa(SchemaVersion), string(headerJSON)); err != nil {
			return apperrors.IOError("write header", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO records(id, doc_id, start_off, end_off, hash, vector) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return apperrors.IOError("prepare insert", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Meta.DocumentID, r.Meta.Start, r.Meta.End,
				r.Meta.ContentHash, vectorBlob(r.Vector)); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return apperrors.IOError("write record "+r.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return apperrors.IOError("commit", err)
		}
		return db.Close()
	})
}

// openSQLite opens path read-only after checking it is a SQLite file.
func openSQLite(path string) (*sql.DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	head := make([]byte, len(sqliteMagic))
	_, err = io.ReadFull(f, head)
	_ = f.Close()
	if err != nil || string(head) != sqliteMagic {
		return nil, apperrors.FormatError("not a SQLite index", err).WithDetail("path", path)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, apperrors.IOError("open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func readSQLiteHeader(ctx context.Context, db *sql.DB) (Header, error) {
	var version, raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return Header{}, apperrors.FormatError("sqlite index has no schema version", err)
	}
	if version != strconv.Itoa(SchemaVersion) {
		return Header{}, apperrors.FormatError("unsupported schema version "+version, nil)
	}
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'header'`).Scan(&raw); err != nil {
		return Header{}, apperrors.FormatError("sqlite index has no header", err)
	}
	var hdr Header
	if err := json.Unmarshal([]byte(raw), &hdr); err != nil {
		return Header{}, apperrors.FormatError("malformed header", err)
	}
	return hdr, checkHeader(hdr)
}

func loadSQLite(ctx context.Context, path string) (Header, []vector.Record, error) {
	db, err := openSQLite(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer func() { _ = db.Close() }()

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		return Header{}, nil, apperrors.CorruptionError("sqlite integrity check failed: "+check, err)
	}

	hdr, err := readSQLiteHeader(ctx, db)
	if err != nil {
		return Header{}, nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, doc_id, start_off, end_off, hash, vector FROM records ORDER BY id`)
	if err != nil {
		return Header{}, nil, apperrors.FormatError("sqlite index has no records table", err)
	}
	defer func() { _ = rows.Close() }()

	recs := make([]vector.Record, 0, hdr.Records)
	for rows.Next() {
		var r vector.Record
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Meta.DocumentID, &r.Meta.Start, &r.Meta.End, &r.Meta.ContentHash, &blob); err != nil {
			return Header{}, nil, apperrors.CorruptionError("unreadable record", err)
		}
		if len(blob) != 4*hdr.Dimension {
			return Header{}, nil, apperrors.CorruptionError(
				fmt.Sprintf("record %s has %d vector bytes, want %d", r.ID, len(blob), 4*hdr.Dimension), nil)
		}
		r.Vector = blobVector(blob)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return Header{}, nil, ctx.Err()
		}
		return Header{}, nil, apperrors.CorruptionError("reading records", err)
	}
	if len(recs) != hdr.Records {
		return Header{}, nil, apperrors.CorruptionError(
			fmt.Sprintf("record count %d disagrees with header %d", len(recs), hdr.Records), nil)
	}
	return hdr, recs, nil
}

func infoSQLite(ctx context.Context, path string) (Header, error) {
	db, err := openSQLite(path)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = db.Close() }()
	return readSQLiteHeader(ctx, db)
}

func vectorBlob(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func blobVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
