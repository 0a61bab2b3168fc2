package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedInput is returned when an upload cannot produce any canonical
// rows: fewer than two non-blank lines, or no row that survives validation.
var ErrMalformedInput = errors.New("malformed input")

// ParseCSV turns comma-delimited text into a Table. The first record is the
// header row. Data rows whose field count differs from the header, or whose
// values are all empty, are dropped.
func ParseCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // row length is checked against the header below
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if isBlankRecord(rec) {
			continue
		}
		records = append(records, rec)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("%w: csv file must contain at least a header row and one data row", ErrMalformedInput)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = cleanField(h)
	}

	table := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if len(rec) != len(headers) {
			continue
		}

		row := make(RawRecord, len(headers))
		empty := true
		for i, h := range headers {
			v := cleanField(rec[i])
			if v != "" {
				empty = false
			}
			row[h] = v
		}
		if empty {
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: csv file contains no valid data rows", ErrMalformedInput)
	}
	return table, nil
}

// cleanField trims whitespace and a stray pair of surrounding quotes that lazy
// quoting leaves behind.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
