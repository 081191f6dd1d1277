package snapshot

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/roach88/sessionstore/internal/record"
)

const (
	csvMarker     = "# sessionstore snapshot v1"
	csvMetaPrefix = "# meta: "
)

// EncodeCSV renders d in the tabular snapshot layout.
func EncodeCSV(d record.Dataset) ([]byte, error) {
	if _, err := d.Index(); err != nil {
		return nil, err
	}
	meta, err := encodeHeader(d)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(csvMarker + "\n")
	buf.WriteString(csvMetaPrefix + meta + "\n")

	w := csv.NewWriter(&buf)
	if err := w.Write(d.Schema.Names()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(d.Schema.Columns))
	for i, r := range d.Records {
		for j, col := range d.Schema.Columns {
			cell, err := r.Cell(col)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			row[j] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV atomically replaces path with the tabular snapshot of d.
func WriteCSV(path string, d record.Dataset) error {
	data, err := EncodeCSV(d)
	if err != nil {
		return fmt.Errorf("write csv snapshot: %w", err)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write csv snapshot: %w", err)
	}
	return nil
}

// DecodeCSV parses a tabular snapshot.
func DecodeCSV(r io.Reader) (record.Dataset, error) {
	br := bufio.NewReader(r)

	marker, err := readLine(br)
	if err != nil || marker != csvMarker {
		return record.Dataset{}, fmt.Errorf("%w: missing csv marker", ErrCorrupt)
	}
	metaLine, err := readLine(br)
	if err != nil || !strings.HasPrefix(metaLine, csvMetaPrefix) {
		return record.Dataset{}, fmt.Errorf("%w: missing csv metadata", ErrCorrupt)
	}
	d, err := decodeHeader(strings.TrimPrefix(metaLine, csvMetaPrefix))
	if err != nil {
		return record.Dataset{}, err
	}

	cr := csv.NewReader(br)
	names, err := cr.Read()
	if err != nil {
		return record.Dataset{}, fmt.Errorf("%w: csv header: %v", ErrCorrupt, err)
	}
	if !slices.Equal(names, d.Schema.Names()) {
		return record.Dataset{}, fmt.Errorf("%w: csv header does not match metadata", ErrCorrupt)
	}

	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return record.Dataset{}, fmt.Errorf("%w: csv row %d: %v", ErrCorrupt, line, err)
		}
		rec, err := decodeRow(d, row)
		if err != nil {
			return record.Dataset{}, fmt.Errorf("%w: csv row %d: %v", ErrCorrupt, line, err)
		}
		d.Records = append(d.Records, rec)
	}

	if _, err := d.Index(); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d, nil
}

// ReadCSV loads a tabular snapshot from disk.
func ReadCSV(path string) (record.Dataset, error) {
	// #nosec G304 -- snapshot path is chosen by the caller.
	f, err := os.Open(path)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("read csv snapshot: %w", err)
	}
	defer f.Close()

	d, err := DecodeCSV(f)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("read csv snapshot %s: %w", path, err)
	}
	return d, nil
}

func decodeRow(d record.Dataset, row []string) (record.Record, error) {
	var rec record.Record
	if d.Schema.CustomFlow {
		rec.Flow = &record.Flow{}
	}
	for i, col := range d.Schema.Columns {
		if err := rec.SetCell(col, row[i]); err != nil {
			return record.Record{}, err
		}
	}
	return rec, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
