package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// zipMagic opens every xlsx workbook.
var zipMagic = []byte("PK\x03\x04")

// readWorkbookColumn returns the first column of the first worksheet.
func readWorkbookColumn(r io.Reader) ([]string, error) {
	book, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedUpload)
	}

	rows, err := book.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
		}
		if len(cols) == 0 {
			continue
		}
		values = append(values, cellText(cols[0]))
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
	}
	return values, nil
}

// cellText undoes the exponent notation some writers use for numeric
// cells, so 9.789756329627E+12 reads back as 9789756329627.
func cellText(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.ContainsAny(raw, "eE") {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return raw
	}
	return strconv.FormatInt(int64(f), 10)
}
