package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

var (
	// ErrInvalidISBN is returned for input that is not a 10 or 13 digit ISBN.
	ErrInvalidISBN = errors.New("invalid ISBN")
	// ErrEmptyUpload is returned when an upload holds no candidate values.
	ErrEmptyUpload = errors.New("upload contains no ISBN values")
	// ErrNoValidISBNs is returned when none of the uploaded values is a valid ISBN.
	ErrNoValidISBNs = errors.New("no valid ISBN found")
	// ErrMalformedUpload is returned when an upload cannot be read as a sheet.
	ErrMalformedUpload = errors.New("upload is not a readable sheet")
)

// CleanISBN strips hyphens and whitespace.
func CleanISBN(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// NormalizeISBN cleans raw and checks it is all digits with length 10 or 13.
func NormalizeISBN(raw string) (string, error) {
	cleaned := CleanISBN(raw)
	if len(cleaned) != 10 && len(cleaned) != 13 {
		return "", fmt.Errorf("%w: %q must have 10 or 13 digits", ErrInvalidISBN, raw)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q must contain only digits", ErrInvalidISBN, raw)
		}
	}
	return cleaned, nil
}

// IsValidationError reports whether err was produced by input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidISBN) || errors.Is(err, ErrEmptyUpload) || errors.Is(err, ErrNoValidISBNs) ||
		errors.Is(err, ErrMalformedUpload)
}

// ISBNList is the outcome of extracting ISBNs from an upload.
type ISBNList struct {
	Valid   []string
	Invalid []string
}

// ExtractISBNs normalizes each candidate, keeping input order. Blank values are skipped.
func ExtractISBNs(values []string) (ISBNList, error) {
	var list ISBNList
	seen := 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++
		isbn, err := NormalizeISBN(v)
		if err != nil {
			list.Invalid = append(list.Invalid, v)
			continue
		}
		list.Valid = append(list.Valid, isbn)
	}
	if seen == 0 {
		return list, ErrEmptyUpload
	}
	if len(list.Valid) == 0 {
		return list, fmt.Errorf("%w: %d values rejected", ErrNoValidISBNs, len(list.Invalid))
	}
	return list, nil
}

// ReadISBNColumn reads the first column of a CSV, TSV, semicolon separated,
// one-per-line or xlsx sheet. A header row simply lands in the invalid list.
func ReadISBNColumn(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4096)
	if bytes.HasPrefix(head, zipMagic) {
		return readWorkbookColumn(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = detectDelimiter(string(head))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var values []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
		}
		if len(record) == 0 {
			continue
		}
		values = append(values, strings.TrimPrefix(record[0], "\ufeff"))
	}
	return values, nil
}

func detectDelimiter(sample string) rune {
	firstLine, _, _ := strings.Cut(sample, "\n")
	switch {
	case strings.Contains(firstLine, "\t"):
		return '\t'
	case strings.Contains(firstLine, ";"):
		return ';'
	default:
		return ','
	}
}
