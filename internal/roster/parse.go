package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"rosterlink/internal/provider/csvfile"
	pkgstrings "rosterlink/pkg/platform/strings"
)

// ErrMissingColumn is returned when the export lacks a configured column.
var ErrMissingColumn = errors.New("csv is missing a configured column")

// RowError locates a cell that could not be coerced. Line counts the
// header as line 1.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Parse reads an export, keeps the configured columns in their configured
// order and coerces every cell. Header matching ignores case and
// surrounding whitespace; extra columns are ignored.
func Parse(data []byte, columns []Column) ([][]any, error) {
	src, _ := csvfile.Decode(data)
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file: no header row found")
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	positions := pkgstrings.FoldIndex(headers)
	index := make([]int, len(columns))
	var missing []string
	for i, c := range columns {
		pos, ok := positions[strings.ToLower(c.Header)]
		if !ok {
			missing = append(missing, c.Header)
			continue
		}
		index[i] = pos
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	var rows [][]any
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		row := make([]any, len(columns))
		for i, c := range columns {
			cell := ""
			if index[i] < len(rec) {
				cell = rec[index[i]]
			}
			v, err := c.coerce(cell)
			if err != nil {
				return nil, &RowError{Line: line, Err: err}
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
