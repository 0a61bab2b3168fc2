package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// DownloadFileName is the suggested name for the canonical CSV download.
const DownloadFileName = "processed_data.csv"

// WriteCSV renders records as canonical-field CSV, header row first.
func WriteCSV(w io.Writer, records []CanonicalRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CanonicalFields); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(CanonicalFields))
	for i, rec := range records {
		for j, field := range CanonicalFields {
			row[j] = rec.Value(field)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
