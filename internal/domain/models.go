package domain

// Currency represents an ISO 4217 currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// SourceRef is an opaque reference back to the originating document location
// (document id, page, cell). The engine never interprets it; it only carries
// it through so downstream consumers can produce citations.
type SourceRef struct {
	Document string `json:"document"`
	Page     int    `json:"page,omitempty"`
	Cell     string `json:"cell,omitempty"`
}

// RawItem is a single extracted (label, value) pair as delivered by the
// upstream extraction layer. No ordering, completeness or label consistency
// is guaranteed.
type RawItem struct {
	Label  string    `json:"label"`
	Value  string    `json:"value"` // decimal string, parsed by the builder
	Source SourceRef `json:"source"`
}
