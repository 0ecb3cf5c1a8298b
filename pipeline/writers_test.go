package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
)

func sampleResults() []models.SearchResultRecord {
	created := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return []models.SearchResultRecord{
		{
			ID:        "r1",
			SessionID: "bulk-1",
			ISBN:      "9789756329627",
			Site:      "D&R",
			Title:     "Şema Terapi",
			Author:    "Jeffrey Young, Janet Klosko",
			Publisher: "Psikonet",
			Price:     "42,50 TL",
			URL:       "https://www.dr.com.tr/kitap/sema-terapi",
			Status:    models.ResultFound,
			CreatedAt: created,
		},
		{
			ID:           "r2",
			SessionID:    "bulk-1",
			ISBN:         "1111111111",
			Status:       models.ResultNotFound,
			ErrorMessage: "ISBN not found at any source",
			CreatedAt:    created,
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "results.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before any record")
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(ResultColumns, ",") {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "9789756329627" || records[1][1] != "D&R" || records[1][3] != "Jeffrey Young, Janet Klosko" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
	if records[2][7] != "not_found" || records[2][8] != "ISBN not found at any source" {
		t.Fatalf("unexpected second row: %v", records[2])
	}
}

func TestCSVStreamWriterLeavesDestinationOpen(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVStreamWriter(&buf)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleResults()[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "isbn,site,title") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.SearchResultRecord
	for scanner.Scan() {
		var rec models.SearchResultRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[0].Title != "Şema Terapi" || decoded[1].Status != models.ResultNotFound {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestNewFileWriterDual(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "results.csv")

	writer, err := NewFileWriter("dual", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleResults()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "results.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}

	if _, err := NewFileWriter("xlsx", csvPath); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestFanOutWriterStopsAtFailingTarget(t *testing.T) {
	first := &mockWriter{}
	broken := &mockWriter{writeErr: errors.New("disk full")}
	last := &mockWriter{}

	fw, err := NewFanOutWriter([]string{"first", "broken", "last"}, []ResultWriter{first, broken, last})
	if err != nil {
		t.Fatalf("new fan-out: %v", err)
	}
	err = fw.Write(sampleResults())
	if err == nil || !strings.Contains(err.Error(), "broken output") {
		t.Fatalf("err = %v, want broken output error", err)
	}
	if len(first.all()) != 2 || len(last.all()) != 0 {
		t.Fatalf("first=%d last=%d, want 2 and 0", len(first.all()), len(last.all()))
	}

	if _, err := NewFanOutWriter([]string{"a"}, nil); err == nil {
		t.Fatalf("expected mismatched names error")
	}
}
