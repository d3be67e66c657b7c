// Package dataset adapts a CSV file into the row-oriented sample
// iterator the session FSM streams to the device. Parsing is
// deliberately permissive: an unparseable field decodes as 0.0 rather
// than failing the row, and the header row's column count is all that
// matters — its content is ignored.
package dataset

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// Source reads samples from a CSV file. The first line is a header
// whose field count fixes the sample width; every subsequent line is a
// row of float32 values.
type Source struct {
	file   *os.File
	reader *bufio.Reader

	// HeaderColumns is the number of fields in the header row, fixed
	// once Open has read it.
	HeaderColumns int
}

// Open opens path and reads its header row. Returns an error if the
// file cannot be opened or the file is empty (no header row at all).
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := bufio.NewReader(f)
	header, err := readRow(r)
	if err != nil || header == nil {
		f.Close()
		if err != nil && err != io.EOF {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	return &Source{
		file:          f,
		reader:        r,
		HeaderColumns: len(header),
	}, nil
}

// Next reads the next data row as float32 values, one per field of the
// row. The row's field count is not checked against HeaderColumns, so a
// row of a different width is returned as it is. It returns ok=false at
// end of file or on an empty line, matching the original reader's
// end-of-stream semantics.
func (s *Source) Next() (values []float32, ok bool) {
	row, err := readRow(s.reader)
	if err != nil || row == nil {
		return nil, false
	}

	values = make([]float32, len(row))
	for i, field := range row {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			v = 0.0
		}
		values[i] = float32(v)
	}
	return values, true
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	return s.file.Close()
}

// readRow reads one comma-delimited line, returning nil on EOF or an
// empty line — both terminate iteration.
func readRow(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}

	return strings.Split(line, ","), nil
}
