// Package explog writes experiment log streams: append-only files of
// YAML documents, one document per record, convertible to CSV at the end
// of a run.
package explog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Writer appends structured records to a stream. One record becomes one
// YAML document. Not safe for concurrent use; the run's control thread is
// the only writer.
type Writer struct {
	f *os.File
}

// Open opens (or creates) path for appending.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append writes one record as a YAML document.
func (w *Writer) Append(record map[string]any) error {
	out, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling log record: %w", err)
	}
	if _, err := w.f.WriteString("---\n"); err != nil {
		return fmt.Errorf("writing log record: %w", err)
	}
	if _, err := w.f.Write(out); err != nil {
		return fmt.Errorf("writing log record: %w", err)
	}
	return nil
}

// Flush forces buffered data to disk.
func (w *Writer) Flush() error {
	return w.f.Sync()
}

// Close flushes and closes the stream.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Name returns the underlying file path.
func (w *Writer) Name() string {
	return w.f.Name()
}

// YAMLToCSV converts a stream of YAML documents written by Writer into a
// CSV file. The header is the sorted union of keys across all records;
// records missing a key get an empty cell. Returns the number of data
// rows written.
func YAMLToCSV(src, dst string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	var records []map[string]any
	dec := yaml.NewDecoder(in)
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("decoding %s: %w", src, err)
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	keys := map[string]bool{}
	for _, rec := range records {
		for k := range rec {
			keys[k] = true
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	cw := csv.NewWriter(out)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing %s: %w", dst, err)
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := rec[k]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("writing %s: %w", dst, err)
	}
	return len(records), nil
}
