// Package statement assembles classified line items into canonical,
// immutable balance sheets and validates the accounting identity.
package statement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// Warning codes recorded during a build. Non-fatal: the statement is still
// produced, but every exclusion and inconsistency stays traceable.
const (
	WarnClassificationMiss = "CLASSIFICATION_MISS"
	WarnInvalidValue       = "INVALID_VALUE"
	WarnDuplicateConcept   = "DUPLICATE_CONCEPT"
	WarnSubtotalMismatch   = "SUBTOTAL_MISMATCH"
	WarnUnbalanced         = "UNBALANCED"
)

// Warning records a non-fatal issue encountered while building a statement
type Warning struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Label   string            `json:"label,omitempty"`
	Concept taxonomy.Concept  `json:"concept,omitempty"`
	Source  *domain.SourceRef `json:"source,omitempty"`
}

// LineItem is a single classified figure. Immutable once created;
// confidence reflects classification certainty and is propagated, never
// recomputed.
type LineItem struct {
	Concept    taxonomy.Concept `json:"concept"`
	Value      decimal.Decimal  `json:"value"`
	Currency   domain.Currency  `json:"currency"`
	Confidence float64          `json:"confidence"`
	Source     domain.SourceRef `json:"source"`
	// Derived marks subtotals synthesized from children rather than
	// reported in the document.
	Derived bool `json:"derived,omitempty"`
}

// BalanceSheet is the canonical statement representation. It is immutable
// after the builder returns it: corrections produce a new version with
// CorrectedFrom pointing at the predecessor.
type BalanceSheet struct {
	ID            string          `json:"id"`
	EntityID      string          `json:"entity_id"`
	PeriodEnd     time.Time       `json:"period_end"`
	Currency      domain.Currency `json:"currency"`
	Items         []LineItem      `json:"items"` // sorted by concept
	Unbalanced    bool            `json:"unbalanced"`
	Confidence    float64         `json:"confidence"`
	Coverage      float64         `json:"coverage"`
	Warnings      []Warning       `json:"warnings,omitempty"`
	CorrectedFrom string          `json:"corrected_from,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Item returns the line item for a concept, if present. Statements hold at
// most a few dozen items so a linear scan keeps the struct round-trip safe
// with no hidden index state.
func (bs *BalanceSheet) Item(c taxonomy.Concept) (LineItem, bool) {
	for _, item := range bs.Items {
		if item.Concept == c {
			return item, true
		}
	}
	return LineItem{}, false
}

// Value returns the decimal value for a concept, if present
func (bs *BalanceSheet) Value(c taxonomy.Concept) (decimal.Decimal, bool) {
	item, ok := bs.Item(c)
	return item.Value, ok
}
