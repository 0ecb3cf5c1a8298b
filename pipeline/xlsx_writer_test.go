package pipeline

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func readSheet(t *testing.T, book *excelize.File) [][]string {
	t.Helper()
	defer book.Close()
	rows, err := book.GetRows(ResultSheet)
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	return rows
}

func TestXLSXWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.xlsx")

	writer, err := NewFileWriter("xlsx", path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before any record")
	}
	records := sampleResults()
	if err := writer.Write(records[:1]); err != nil {
		t.Fatalf("write first batch: %v", err)
	}
	if err := writer.Write(records[1:]); err != nil {
		t.Fatalf("write second batch: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := writer.Write(records); err == nil {
		t.Fatalf("write after close should fail")
	}

	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	rows := readSheet(t, book)
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	if !reflect.DeepEqual(rows[0], ResultColumns) {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "9789756329627" || rows[1][2] != "Şema Terapi" || rows[1][7] != "found" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][0] != "1111111111" || rows[2][8] != "ISBN not found at any source" {
		t.Fatalf("unexpected second row: %v", rows[2])
	}
}

func TestXLSXStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewXLSXStreamWriter(&buf)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("workbook should only be written on close")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK\x03\x04")) {
		t.Fatalf("output is not a zip archive")
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	if rows := readSheet(t, book); len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
}
