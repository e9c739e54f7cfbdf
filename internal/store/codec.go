package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// File layout, little-endian:
//
//	"DIDX" | u16 version | u8 codec | u8 reserved | body | u32 crc32(body)
//	body   = u32 headerLen | header JSON | u32 count | record*
//	record = str id | str docID | uvarint start | uvarint end | str hash | dim*f32
//
// str is a uvarint length followed by bytes. The checksum covers the body
// before compression.
const (
	magic      = "DIDX"
	prefixSize = 8
	crcSize    = 4

	// ctxCheckEvery is how many records pass between context checks.
	ctxCheckEvery = 512
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// bodyWriter writes the body while accumulating its checksum.
type bodyWriter struct {
	w       io.Writer
	crc     hash.Hash32
	scratch []byte
	err     error
}

func newBodyWriter(sink io.Writer) *bodyWriter {
	crc := crc32.New(crcTable)
	return &bodyWriter{w: io.MultiWriter(sink, crc), crc: crc, scratch: make([]byte, 0, 64)}
}

func (b *bodyWriter) write(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *bodyWriter) u32(v uint32) {
	b.scratch = binary.LittleEndian.AppendUint32(b.scratch[:0], v)
	b.write(b.scratch)
}

func (b *bodyWriter) uvarint(v uint64) {
	b.scratch = binary.AppendUvarint(b.scratch[:0], v)
	b.write(b.scratch)
}

func (b *bodyWriter) str(s string) {
	b.uvarint(uint64(len(s)))
	b.write([]byte(s))
}

func (b *bodyWriter) floats(v []float32) {
	b.write(vectorBlob(v))
}

// encodeFile streams the complete file to w.
func encodeFile(ctx context.Context, w io.Writer, hdr Header, recs []vector.Record, codec Codec) error {
	prefix := make([]byte, 0, prefixSize)
	prefix = append(prefix, magic...)
	prefix = binary.LittleEndian.AppendUint16(prefix, SchemaVersion)
	prefix = append(prefix, byte(codec), 0)
	if _, err := w.Write(prefix); err != nil {
		return err
	}

	var sink io.Writer = w
	var enc *zstd.Encoder
	switch codec {
	case CodecRaw:
	case CodecZstd:
		var err error
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		sink = enc
	default:
		return apperrors.ValidationError("unknown codec "+codec.String(), nil)
	}

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	bw := newBodyWriter(sink)
	bw.u32(uint32(len(headerJSON)))
	bw.write(headerJSON)
	bw.u32(uint32(len(recs)))
	for i, r := range recs {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		bw.str(r.ID)
		bw.str(r.Meta.DocumentID)
		bw.uvarint(uint64(r.Meta.Start))
		bw.uvarint(uint64(r.Meta.End))
		bw.str(r.Meta.ContentHash)
		bw.floats(r.Vector)
	}
	if bw.err != nil {
		return bw.err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush zstd: %w", err)
		}
	}

	trailer := binary.LittleEndian.AppendUint32(nil, bw.crc.Sum32())
	_, err = w.Write(trailer)
	return err
}

// parsePrefix validates the fixed prefix and returns the codec.
func parsePrefix(p []byte) (Codec, error) {
	if len(p) < len(magic) || string(p[:len(magic)]) != magic {
		return 0, apperrors.FormatError("not a docindex file (bad magic)", nil)
	}
	if len(p) < prefixSize {
		return 0, apperrors.CorruptionError("file truncated inside prefix", nil)
	}
	if v := binary.LittleEndian.Uint16(p[4:6]); v != SchemaVersion {
		return 0, apperrors.FormatError(fmt.Sprintf("unsupported schema version %d", v), nil).
			WithDetail("supported", fmt.Sprint(SchemaVersion))
	}
	codec := Codec(p[6])
	if codec != CodecRaw && codec != CodecZstd {
		return 0, apperrors.FormatError(fmt.Sprintf("unknown codec %d", p[6]), nil)
	}
	return codec, nil
}

// decodeFile parses a complete file held in memory. It either returns every
// record or an error; never a partial result.
func decodeFile(ctx context.Context, data []byte) (Header, []vector.Record, error) {
	codec, err := parsePrefix(data)
	if err != nil {
		return Header{}, nil, err
	}
	if len(data) < prefixSize+crcSize {
		return Header{}, nil, apperrors.CorruptionError("file truncated", nil)
	}
	payload := data[prefixSize : len(data)-crcSize]
	want := binary.LittleEndian.Uint32(data[len(data)-crcSize:])

	body := payload
	if codec == CodecZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return Header{}, nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		body, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return Header{}, nil, apperrors.CorruptionError("compressed body unreadable", err)
		}
	}
	if got := crc32.Checksum(body, crcTable); got != want {
		return Header{}, nil, apperrors.CorruptionError("checksum mismatch", nil).
			WithDetail("expected", fmt.Sprintf("%08x", want)).
			WithDetail("actual", fmt.Sprintf("%08x", got))
	}

	c := &cursor{buf: body}
	hdr, err := readHeader(c)
	if err != nil {
		return Header{}, nil, err
	}

	count := c.u32()
	if c.err != nil {
		return Header{}, nil, c.err
	}
	if int(count) != hdr.Records {
		return Header{}, nil, apperrors.CorruptionError(
			fmt.Sprintf("record count %d disagrees with header %d", count, hdr.Records), nil)
	}
	// Each record needs at least five length bytes plus its vector.
	if minSize := uint64(count) * uint64(5+4*hdr.Dimension); minSize > uint64(c.remaining()) {
		return Header{}, nil, apperrors.CorruptionError("file truncated inside records", nil)
	}

	recs := make([]vector.Record, 0, count)
	seen := make(map[string]struct{}, count)
	for i := 0; i < int(count); i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Header{}, nil, err
			}
		}
		r := vector.Record{
			ID: c.str(),
			Meta: vector.Meta{
				DocumentID: c.str(),
				Start:      int(c.uvarint()),
				End:        int(c.uvarint()),
			},
		}
		r.Meta.ContentHash = c.str()
		r.Vector = c.floats(hdr.Dimension)
		if c.err != nil {
			return Header{}, nil, c.err
		}
		if _, dup := seen[r.ID]; dup || r.ID == "" {
			return Header{}, nil, apperrors.CorruptionError(fmt.Sprintf("invalid or duplicate record id %q", r.ID), nil)
		}
		seen[r.ID] = struct{}{}
		recs = append(recs, r)
	}
	if c.remaining() != 0 {
		return Header{}, nil, apperrors.CorruptionError(fmt.Sprintf("%d trailing bytes after records", c.remaining()), nil)
	}
	return hdr, recs, nil
}

func readHeader(c *cursor) (Header, error) {
	n := c.u32()
	raw := c.bytes(int(n))
	if c.err != nil {
		return Header{}, c.err
	}
	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Header{}, apperrors.FormatError("malformed header", err)
	}
	if err := checkHeader(hdr); err != nil {
		return Header{}, err
	}
	return hdr, nil
}

func checkHeader(hdr Header) error {
	if hdr.SchemaVersion != SchemaVersion {
		return apperrors.FormatError(fmt.Sprintf("unsupported schema version %d", hdr.SchemaVersion), nil)
	}
	if hdr.Dimension < 0 || (hdr.Dimension == 0 && hdr.Records > 0) {
		return apperrors.FormatError(fmt.Sprintf("invalid dimension %d", hdr.Dimension), nil)
	}
	if hdr.Records < 0 {
		return apperrors.FormatError("negative record count", nil)
	}
	return nil
}

// readHeaderOnly reads the prefix and header from r without touching the
// records or verifying the checksum.
func readHeaderOnly(r io.Reader) (Header, Codec, error) {
	br := bufio.NewReader(r)
	prefix := make([]byte, prefixSize)
	if n, err := io.ReadFull(br, prefix); err != nil {
		if _, perr := parsePrefix(prefix[:n]); perr != nil {
			return Header{}, 0, perr
		}
		return Header{}, 0, apperrors.CorruptionError("file truncated inside prefix", err)
	}
	codec, err := parsePrefix(prefix)
	if err != nil {
		return Header{}, 0, err
	}

	var body io.Reader = br
	if codec == CodecZstd {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return Header{}, 0, apperrors.CorruptionError("compressed body unreadable", err)
		}
		defer dec.Close()
		body = dec
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(body, lenBuf[:]); err != nil {
		return Header{}, 0, apperrors.CorruptionError("file truncated inside header", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxHeaderSize {
		return Header{}, 0, apperrors.CorruptionError(fmt.Sprintf("header length %d out of range", n), nil)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(body, raw); err != nil {
		return Header{}, 0, apperrors.CorruptionError("file truncated inside header", err)
	}
	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Header{}, 0, apperrors.FormatError("malformed header", err)
	}
	return hdr, codec, checkHeader(hdr)
}

const maxHeaderSize = 256 << 20

// cursor reads body fields; the first short read sticks as a CorruptionError.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) fail(what string) {
	if c.err == nil {
		c.err = apperrors.CorruptionError("file truncated inside "+what, nil).
			WithDetail("offset", fmt.Sprint(c.off))
	}
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > c.remaining() {
		c.fail("field")
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u32() uint32 {
	b := c.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) uvarint() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.buf[c.off:])
	if n <= 0 {
		c.fail("varint")
		return 0
	}
	c.off += n
	return v
}

func (c *cursor) str() string {
	n := c.uvarint()
	if n > uint64(c.remaining()) {
		c.fail("string")
		return ""
	}
	return string(c.bytes(int(n)))
}

func (c *cursor) floats(dim int) []float32 {
	b := c.bytes(4 * dim)
	if b == nil {
		return nil
	}
	return blobVector(b)
}
