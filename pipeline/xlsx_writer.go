package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/xuri/excelize/v2"
)

// ResultSheet is the worksheet name used for spreadsheet exports.
const ResultSheet = "Results"

// XLSXWriter streams result records into a single-sheet workbook.
// The workbook is only serialised on Close.
type XLSXWriter struct {
	book     *excelize.File
	stream   *excelize.StreamWriter
	filename string
	out      io.Writer
	rows     int
	nextRow  int
	closed   bool
	mu       sync.Mutex
}

// NewXLSXWriter writes the workbook to filename when closed.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	xw, err := newXLSXWriter()
	if err != nil {
		return nil, err
	}
	xw.filename = filename
	return xw, nil
}

// NewXLSXStreamWriter writes the workbook to w when closed. Close does not close w.
func NewXLSXStreamWriter(w io.Writer) (*XLSXWriter, error) {
	xw, err := newXLSXWriter()
	if err != nil {
		return nil, err
	}
	xw.out = w
	return xw, nil
}

func newXLSXWriter() (*XLSXWriter, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", ResultSheet); err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("name xlsx sheet: %w", err)
	}
	stream, err := book.NewStreamWriter(ResultSheet)
	if err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("open xlsx stream: %w", err)
	}

	xw := &XLSXWriter{book: book, stream: stream, nextRow: 1}
	if err := xw.appendRow(ResultColumns); err != nil {
		_ = book.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	return xw, nil
}

// Write appends records below the header row.
func (xw *XLSXWriter) Write(records []models.SearchResultRecord) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return fmt.Errorf("xlsx writer is closed")
	}
	for _, rec := range records {
		if err := xw.appendRow(resultRow(rec)); err != nil {
			return fmt.Errorf("write xlsx record: %w", err)
		}
		xw.rows++
	}
	return nil
}

func (xw *XLSXWriter) appendRow(values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, xw.nextRow)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := xw.stream.SetRow(cell, row); err != nil {
		return err
	}
	xw.nextRow++
	return nil
}

// Close flushes the sheet and saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return nil
	}
	xw.closed = true
	defer xw.book.Close()

	if err := xw.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx sheet: %w", err)
	}
	if xw.filename != "" {
		if err := xw.book.SaveAs(xw.filename); err != nil {
			return fmt.Errorf("save xlsx file: %w", err)
		}
		return nil
	}
	if _, err := xw.book.WriteTo(xw.out); err != nil {
		return fmt.Errorf("write xlsx workbook: %w", err)
	}
	return nil
}

// Validate ensures at least one record was written.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.rows == 0 {
		return fmt.Errorf("xlsx output has no records")
	}
	return nil
}
