package lazyref

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Record is one page ("record") of the columnar-paged reference map:
// up to record_size rows, one per chunk, each holding the four
// on-disk columns. A row with both Path and Raw nil marks an absent
// (deleted) chunk. Offset and Size are meaningless when Raw is
// non-nil (the chunk is inline); when Path is non-nil and Raw is nil,
// Offset == 0 && Size == 0 means a whole-object reference and
// anything else a byte-range reference.
type Record struct {
	Path   []*string
	Offset []int64
	Size   []int64
	Raw    [][]byte
}

// NumRows returns the row count of the record (all four columns share
// the same length by construction).
func (r Record) NumRows() int {
	return len(r.Path)
}

const columnarMagic = "RFP1"

// WriteRecord serializes rec as a zstd-compressed columnar page. The
// uncompressed layout is a row count followed by four fixed-layout
// columns: nullable string, int64, int64, nullable bytes.
func WriteRecord(w io.Writer, rec Record) error {
	n := rec.NumRows()
	if len(rec.Offset) != n || len(rec.Size) != n || len(rec.Raw) != n {
		return fmt.Errorf("lazyref: record columns have mismatched lengths")
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(n)); err != nil {
		return err
	}
	if err := writeNullableBytesColumn(&buf, pathColumnBytes(rec.Path)); err != nil {
		return err
	}
	for _, v := range rec.Offset {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, v := range rec.Size {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := writeNullableBytesColumn(&buf, rec.Raw); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("lazyref: zstd writer: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(buf.Bytes(), nil)

	if _, err := io.WriteString(w, columnarMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// ReadRecord is the inverse of WriteRecord.
func ReadRecord(r io.Reader) (Record, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return Record{}, fmt.Errorf("lazyref: reading page header: %w", err)
	}
	if string(magic) != columnarMagic {
		return Record{}, fmt.Errorf("lazyref: not a recognized page (bad magic %q)", magic)
	}
	var clen uint32
	if err := binary.Read(r, binary.LittleEndian, &clen); err != nil {
		return Record{}, fmt.Errorf("lazyref: reading page length: %w", err)
	}
	compressed := make([]byte, clen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Record{}, fmt.Errorf("lazyref: reading page body: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Record{}, fmt.Errorf("lazyref: zstd reader: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Record{}, fmt.Errorf("lazyref: decompressing page: %w", err)
	}

	buf := bytes.NewReader(raw)
	var n uint32
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return Record{}, err
	}
	pathCols, err := readNullableBytesColumn(buf, int(n))
	if err != nil {
		return Record{}, err
	}
	offset := make([]int64, n)
	for i := range offset {
		if err := binary.Read(buf, binary.LittleEndian, &offset[i]); err != nil {
			return Record{}, err
		}
	}
	size := make([]int64, n)
	for i := range size {
		if err := binary.Read(buf, binary.LittleEndian, &size[i]); err != nil {
			return Record{}, err
		}
	}
	rawCol, err := readNullableBytesColumn(buf, int(n))
	if err != nil {
		return Record{}, err
	}

	return Record{
		Path:   bytesColumnToPath(pathCols),
		Offset: offset,
		Size:   size,
		Raw:    rawCol,
	}, nil
}

func pathColumnBytes(path []*string) [][]byte {
	out := make([][]byte, len(path))
	for i, p := range path {
		if p != nil {
			out[i] = []byte(*p)
		}
	}
	return out
}

func bytesColumnToPath(col [][]byte) []*string {
	out := make([]*string, len(col))
	for i, b := range col {
		if b != nil {
			s := string(b)
			out[i] = &s
		}
	}
	return out
}

// writeNullableBytesColumn writes a column of optionally-nil []byte
// values as a length prefix per row (-1 meaning null) followed by the
// concatenated non-null payloads.
func writeNullableBytesColumn(w io.Writer, col [][]byte) error {
	for _, v := range col {
		var l int32 = -1
		if v != nil {
			l = int32(len(v))
		}
		if err := binary.Write(w, binary.LittleEndian, l); err != nil {
			return err
		}
	}
	for _, v := range col {
		if v == nil {
			continue
		}
		if _, err := w.Write(v); err != nil {
			return err
		}
	}
	return nil
}

func readNullableBytesColumn(r *bytes.Reader, n int) ([][]byte, error) {
	lens := make([]int32, n)
	for i := range lens {
		if err := binary.Read(r, binary.LittleEndian, &lens[i]); err != nil {
			return nil, err
		}
	}
	out := make([][]byte, n)
	for i, l := range lens {
		if l < 0 {
			continue
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i] = buf
	}
	return out, nil
}
