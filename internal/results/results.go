// Package results persists one row per finished experiment in a CSV table
// that is read and appended to across runs.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
)

// Header is the column layout of every results table.
var Header = []string{"True SPO", "Unamb SPO", "Elapsed", "Epochs"}

// Row is the outcome of one experiment. Elapsed is in seconds.
type Row struct {
	TrueSPO  float64 `json:"true_spo"`
	UnambSPO float64 `json:"unamb_spo"`
	Elapsed  float64 `json:"elapsed"`
	Epochs   int     `json:"epochs"`
}

func (r Row) record() []string {
	return []string{
		strconv.FormatFloat(r.TrueSPO, 'g', -1, 64),
		strconv.FormatFloat(r.UnambSPO, 'g', -1, 64),
		strconv.FormatFloat(r.Elapsed, 'g', -1, 64),
		strconv.Itoa(r.Epochs),
	}
}

func parseRow(rec []string) (Row, error) {
	var r Row
	var err error
	if r.TrueSPO, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return r, err
	}
	if r.UnambSPO, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return r, err
	}
	if r.Elapsed, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return r, err
	}
	// Older tables store epochs as floats.
	epochs, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return r, err
	}
	r.Epochs = int(epochs)
	return r, nil
}

// Store is a results table backed by a file. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	rows []Row
}

// Open loads the table at path, or starts an empty one if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open results %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read results %s: %w", path, err)
	}
	s.rows = rows
	return s, nil
}

func read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected header %q", header)
	}
	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Rows returns a copy of the table.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}

// Append adds row and rewrites the file. The previous file stays intact
// until the new one is complete.
func (s *Store) Append(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := append(slices.Clone(s.rows), row)
	if err := write(s.path, rows); err != nil {
		return fmt.Errorf("failed to save results %s: %w", s.path, err)
	}
	s.rows = rows
	return nil
}

func write(path string, rows []Row) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return err
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
