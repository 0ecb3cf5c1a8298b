// Package parser normalizes the text scraped from catalog pages.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/isbn-finder/models"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	priceAmount   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(TL|₺)`)
)

// ValidateBook ensures the scraper captured the required fields.
func ValidateBook(b *models.BookRecord) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.ISBN) == "" {
		return fmt.Errorf("book missing isbn")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title for %s", b.ISBN)
	}
	return nil
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// NormalizePrice extracts the amount and currency from a price label
// such as "Fiyat: 42,50 TL". Text without a recognizable amount is only cleaned.
func NormalizePrice(price string) string {
	price = CleanText(price)
	if m := priceAmount.FindStringSubmatch(price); m != nil {
		return m[1] + " " + strings.ToUpper(m[2])
	}
	return price
}

// FirstNonEmpty returns the first value that is not blank after cleaning.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if cleaned := CleanText(v); cleaned != "" {
			return cleaned
		}
	}
	return ""
}
