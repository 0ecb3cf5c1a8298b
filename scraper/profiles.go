package scraper

import "sort"

// SiteProfile describes how to search one bookstore's HTML catalog.
// SearchPaths are appended to the base URL and contain one %s for the ISBN.
// Selector lists are tried in order; the first non-empty match wins.
type SiteProfile struct {
	SearchPaths        []string
	ItemSelectors      []string
	TitleSelectors     []string
	AuthorSelectors    []string
	PublisherSelectors []string
	PriceSelectors     []string
	LinkSelectors      []string
	DefaultPublisher   string
}

var profiles = map[string]SiteProfile{
	"babil": {
		SearchPaths: []string{
			"/kitap/arama?q=%s",
			"/arama?query=%s",
			"/search?q=%s",
			"/ara?k=%s",
		},
		ItemSelectors: []string{
			".product-item, .book-item, .item",
			".product-card, .book-card",
			"[data-product], [data-book]",
			".search-result, .result-item",
		},
		TitleSelectors:     []string{".product-title a", ".book-title", ".title", "h3 a", "h2 a", ".name"},
		AuthorSelectors:    []string{".product-author", ".author", ".yazar", ".writer"},
		PublisherSelectors: []string{".product-publisher", ".publisher", ".yayinevi"},
		PriceSelectors:     []string{".product-price", ".price", ".fiyat", ".cost"},
		LinkSelectors:      []string{".product-title a", "h3 a", "h2 a", "a"},
	},
	"dr": {
		SearchPaths: []string{
			"/kitap/arama?q=%s",
			"/search?q=%s",
			"/arama?query=%s",
			"/Kitap?Isbn=%s",
		},
		ItemSelectors: []string{
			".prd-item, .product-item, .book-item",
			".product-card, .item-card",
			"[data-product-id], [data-book-id]",
			".search-item, .result-item",
		},
		TitleSelectors:     []string{".prd-name a", ".product-title a", ".book-title", ".title", "h3 a", "h2 a"},
		AuthorSelectors:    []string{".prd-author", ".product-author", ".author", ".yazar"},
		PublisherSelectors: []string{".prd-publisher", ".publisher"},
		PriceSelectors:     []string{".prd-price", ".product-price", ".price", ".fiyat"},
		LinkSelectors:      []string{".prd-name a", ".product-title a", "h3 a", "a"},
	},
	"kitapsec": {
		SearchPaths: []string{
			"/Arama/index.php?arama=%s",
			"/arama?q=%s",
		},
		ItemSelectors: []string{
			".Ks_UrunSatir, .product-item",
			".product-card, .book-card",
			".search-item, .result-item",
		},
		TitleSelectors:     []string{".text a", ".product-title a", ".title", "h3 a"},
		AuthorSelectors:    []string{".yazar", ".author", ".product-author"},
		PublisherSelectors: []string{".yayinevi", ".publisher"},
		PriceSelectors:     []string{".fiyat", ".price", ".product-price"},
		LinkSelectors:      []string{".text a", ".product-title a", "a"},
	},
	"bkm": {
		SearchPaths: []string{
			"/arama?q=%s",
			"/search?query=%s",
			"/kitap/arama?isbn=%s",
		},
		ItemSelectors: []string{
			".product-box, .book-item, .product-item",
			".product-card, .item-card",
			"[data-product], [data-book]",
			".search-item, .result-item",
		},
		TitleSelectors:     []string{".product-name a", ".book-title", ".title", "h3 a", "h2 a"},
		AuthorSelectors:    []string{".product-author", ".author", ".yazar"},
		PublisherSelectors: []string{".product-publisher", ".publisher"},
		PriceSelectors:     []string{".product-price", ".price", ".fiyat"},
		LinkSelectors:      []string{".product-name a", "h3 a", "a"},
		DefaultPublisher:   "BKM Kitap",
	},
}

// LookupProfile returns the built-in profile registered under name.
func LookupProfile(name string) (SiteProfile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
