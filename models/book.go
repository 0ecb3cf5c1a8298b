// Package models defines the records shared by the lookup, bulk and storage layers.
package models

// BookRecord is the normalized result of a successful lookup.
type BookRecord struct {
	ISBN      string `csv:"isbn" json:"isbn"`
	Title     string `csv:"title" json:"title"`
	Author    string `csv:"author" json:"author"`
	Publisher string `csv:"publisher" json:"publisher"`
	Price     string `csv:"price" json:"price"`
	URL       string `csv:"url" json:"url"`
	Site      string `csv:"site" json:"site"`
}

// LookupOutcome is the result of one adapter call or of a whole lookup.
// Record is set only when Success is true; ErrorMessage only when it is false.
type LookupOutcome struct {
	Success      bool        `json:"success"`
	Record       *BookRecord `json:"record,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// Found wraps a record in a successful outcome.
func Found(rec BookRecord) LookupOutcome {
	return LookupOutcome{Success: true, Record: &rec}
}

// Failed builds an unsuccessful outcome.
func Failed(message string) LookupOutcome {
	return LookupOutcome{ErrorMessage: message}
}

// OK reports whether the outcome carries a usable record.
func (o LookupOutcome) OK() bool {
	return o.Success && o.Record != nil
}

// WithSite returns a copy of the outcome whose record is attributed to site.
func (o LookupOutcome) WithSite(site string) LookupOutcome {
	if o.Record == nil {
		return o
	}
	rec := *o.Record
	rec.Site = site
	return LookupOutcome{Success: o.Success, Record: &rec}
}
