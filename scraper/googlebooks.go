package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
)

// GoogleBooksSource queries the Google Books volumes API.
type GoogleBooksSource struct {
	name    string
	baseURL string
	apiKey  string
	fetcher *Fetcher
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title     string   `json:"title"`
			Subtitle  string   `json:"subtitle"`
			Authors   []string `json:"authors"`
			Publisher string   `json:"publisher"`
			InfoLink  string   `json:"infoLink"`
		} `json:"volumeInfo"`
		SaleInfo struct {
			ListPrice *struct {
				Amount       float64 `json:"amount"`
				CurrencyCode string  `json:"currencyCode"`
			} `json:"listPrice"`
		} `json:"saleInfo"`
	} `json:"items"`
}

// NewGoogleBooksSource builds the adapter; apiKey may be empty.
func NewGoogleBooksSource(name, baseURL, apiKey string, fetcher *Fetcher) *GoogleBooksSource {
	return &GoogleBooksSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
	}
}

func (s *GoogleBooksSource) Name() string { return s.name }

func (s *GoogleBooksSource) Search(ctx context.Context, isbn string) (models.LookupOutcome, error) {
	q := url.Values{}
	q.Set("q", "isbn:"+isbn)
	body, err := s.fetcher.FetchBody(ctx, s.name, s.volumesURL(q))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.LookupOutcome{}, ctxErr
		}
		return models.Failed(fmt.Sprintf("%s: %v", s.name, err)), nil
	}

	var resp volumesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.LookupOutcome{}, fmt.Errorf("decode volumes response: %w", err)
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return models.Failed(fmt.Sprintf("ISBN not found on %s", s.name)), nil
	}

	item := resp.Items[0]
	info := item.VolumeInfo
	rec := models.BookRecord{
		ISBN:      isbn,
		Title:     parser.CleanText(info.Title),
		Author:    strings.Join(info.Authors, ", "),
		Publisher: parser.CleanText(info.Publisher),
		URL:       info.InfoLink,
		Site:      s.name,
	}
	if lp := item.SaleInfo.ListPrice; lp != nil && lp.Amount > 0 {
		rec.Price = fmt.Sprintf("%.2f %s", lp.Amount, lp.CurrencyCode)
	}
	if err := parser.ValidateBook(&rec); err != nil {
		return models.Failed(fmt.Sprintf("%s: %v", s.name, err)), nil
	}
	return models.Found(rec), nil
}

// CheckStatus runs a one-result title query against the API.
func (s *GoogleBooksSource) CheckStatus(ctx context.Context) bool {
	q := url.Values{}
	q.Set("q", `intitle:"The Lord of the Rings"`)
	q.Set("maxResults", "1")
	_, err := s.fetcher.FetchBody(ctx, s.name, s.volumesURL(q))
	return err == nil
}

func (s *GoogleBooksSource) volumesURL(q url.Values) string {
	if s.apiKey != "" {
		q.Set("key", s.apiKey)
	}
	return s.baseURL + "/volumes?" + q.Encode()
}
