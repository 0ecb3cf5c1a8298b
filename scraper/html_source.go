package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
)

// HTMLSource scrapes a bookstore search page described by a SiteProfile.
type HTMLSource struct {
	name    string
	baseURL string
	profile SiteProfile
	fetcher *Fetcher
}

// NewHTMLSource builds an adapter for the catalog at baseURL.
func NewHTMLSource(name, baseURL string, profile SiteProfile, fetcher *Fetcher) *HTMLSource {
	return &HTMLSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		fetcher: fetcher,
	}
}

func (s *HTMLSource) Name() string { return s.name }

// Search tries every search path in order and returns the first item with a title.
// Fetch failures on one path fall through to the next.
func (s *HTMLSource) Search(ctx context.Context, isbn string) (models.LookupOutcome, error) {
	var lastErr error
	for _, path := range s.profile.SearchPaths {
		if err := ctx.Err(); err != nil {
			return models.LookupOutcome{}, err
		}
		target := s.baseURL + fmt.Sprintf(path, url.QueryEscape(isbn))

		doc, err := s.fetcher.FetchHTML(ctx, s.name, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.LookupOutcome{}, ctxErr
			}
			lastErr = err
			continue
		}
		if rec, ok := s.extract(doc, isbn, target); ok {
			return models.Found(rec), nil
		}
	}

	if lastErr != nil {
		return models.Failed(fmt.Sprintf("%s: %v", s.name, lastErr)), nil
	}
	return models.Failed(fmt.Sprintf("ISBN not found on %s", s.name)), nil
}

// CheckStatus probes the catalog home page.
func (s *HTMLSource) CheckStatus(ctx context.Context) bool {
	return s.fetcher.Probe(ctx, s.name, s.baseURL) == nil
}

func (s *HTMLSource) extract(doc *goquery.Document, isbn, pageURL string) (models.BookRecord, bool) {
	for _, selector := range s.profile.ItemSelectors {
		item := doc.Find(selector).First()
		if item.Length() == 0 {
			continue
		}

		rec := models.BookRecord{
			ISBN:      isbn,
			Title:     firstText(item, s.profile.TitleSelectors),
			Author:    firstText(item, s.profile.AuthorSelectors),
			Publisher: parser.FirstNonEmpty(firstText(item, s.profile.PublisherSelectors), s.profile.DefaultPublisher),
			Price:     parser.NormalizePrice(firstText(item, s.profile.PriceSelectors)),
			URL:       pageURL,
			Site:      s.name,
		}
		if href := firstAttr(item, "href", s.profile.LinkSelectors); href != "" {
			rec.URL = absoluteURL(pageURL, href)
		}
		if parser.ValidateBook(&rec) == nil {
			return rec, true
		}
	}
	return models.BookRecord{}, false
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if text := parser.CleanText(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(sel *goquery.Selection, attr string, selectors []string) string {
	for _, s := range selectors {
		if v, ok := sel.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func absoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
