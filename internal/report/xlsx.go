package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written by XLSXTransport.
const SheetName = "Report"

// XLSXTransport renders records into a local workbook without calling the
// report service.
type XLSXTransport struct{}

// NewXLSXTransport creates a local workbook transport.
func NewXLSXTransport() *XLSXTransport {
	return &XLSXTransport{}
}

// Send writes a header row followed by one row per record.
func (XLSXTransport) Send(ctx context.Context, records []Record) (*Blob, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("%w: write header: %v", ErrTransport, err)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		row := rec.Values()
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("%w: write row %d: %v", ErrTransport, i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &Blob{ContentType: ContentTypeXLSX, Data: buf.Bytes()}, nil
}
