package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
)

// ErrHeaderMismatch is returned when a row does not fit the columns of the log
var ErrHeaderMismatch = errors.New("header mismatch")

// WithLogger sets the logger for the sink
func WithLogger(logger *slog.Logger) func(s *CSVSink) {
	return func(s *CSVSink) {
		s.logger = logger.With(slog.String("log", s.path))
	}
}

// CSVSink appends rows to a comma separated log file. The header is written
// when the file is created. An existing file is appended to only if its
// header matches the rows.
type CSVSink struct {
	path string

	mu     sync.Mutex
	header []string
	rows   int

	logger *slog.Logger
}

// NewCSVSink creates a sink for the file at path. Nothing is written until
// the first row is appended.
func NewCSVSink(path string, options ...func(s *CSVSink)) *CSVSink {
	s := CSVSink{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Path returns the log file path
func (s *CSVSink) Path() string {
	return s.path
}

// Rows returns the number of rows appended by this sink
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Append writes rows to the end of the log, creating it with a header first
// if needed. Every row must have the same columns.
func (s *CSVSink) Append(rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header := rows[0].Header()
	for _, row := range rows[1:] {
		if !slices.Equal(header, row.Header()) {
			return fmt.Errorf("%w: rows have different columns", ErrHeaderMismatch)
		}
	}

	if s.header == nil {
		existing, err := readHeader(s.path)
		if err != nil {
			return err
		}

		if existing != nil && !slices.Equal(existing, header) {
			return fmt.Errorf("%w: %s has columns %q, row has %q", ErrHeaderMismatch, s.path, existing, header)
		}
		if existing == nil {
			if err := s.create(header); err != nil {
				return err
			}
		}

		s.header = header
	} else if !slices.Equal(s.header, header) {
		return fmt.Errorf("%w: %s has columns %q, row has %q", ErrHeaderMismatch, s.path, s.header, header)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("error opening log: %w", err)
	}

	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row.Values()); err != nil {
			_ = f.Close()
			return fmt.Errorf("error writing row: %w", err)
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing log: %w", err)
	}

	s.rows += len(rows)
	return nil
}

func (s *CSVSink) create(header []string) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating log directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error creating log: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(header)
	w.Flush()

	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing log: %w", err)
	}

	s.logger.Info("log created", slog.Int("columns", len(header)))
	return nil
}

// readHeader returns the first record of the file, nil when the file does
// not exist or is empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening log: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading log header: %w", err)
	}
	return header, nil
}

// Table is a log file loaded back into memory
type Table struct {
	Header  []string
	Records [][]string
}

// ReadTable loads a log written by CSVSink
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening log: %w", err)
	}
	defer f.Close()

	return parseTable(f)
}

func parseTable(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading log: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("error reading log: no header")
	}

	return &Table{Header: records[0], Records: records[1:]}, nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Records)
}

// Has reports whether the table has the named column
func (t *Table) Has(name string) bool {
	return slices.Contains(t.Header, name)
}

// Column returns the named column as numbers. Empty cells read as NaN.
func (t *Table) Column(name string) ([]float64, error) {
	idx := slices.Index(t.Header, name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}

	values := make([]float64, len(t.Records))
	for i, rec := range t.Records {
		if idx >= len(rec) || rec[idx] == "" {
			values[i] = math.NaN()
			continue
		}

		v, err := strconv.ParseFloat(rec[idx], 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i+1, err)
		}
		values[i] = v
	}
	return values, nil
}
