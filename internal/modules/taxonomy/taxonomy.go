// Package taxonomy holds the canonical concept tree for balance sheet
// line items. Concepts and their roll-up relationships are plain data
// loaded from an embedded JSON table, so the tree can be extended without
// touching classifier or builder code.
package taxonomy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed taxonomy.json
var taxonomyJSON []byte

// Concept identifies a canonical financial statement line item
type Concept string

// Concepts referenced directly by the engine. The full set lives in
// taxonomy.json; these constants exist so formulas can name their inputs.
const (
	TotalAssets                Concept = "TOTAL_ASSETS"
	TotalCurrentAssets         Concept = "TOTAL_CURRENT_ASSETS"
	TotalNonCurrentAssets      Concept = "TOTAL_NON_CURRENT_ASSETS"
	TotalLiabilities           Concept = "TOTAL_LIABILITIES"
	TotalCurrentLiabilities    Concept = "TOTAL_CURRENT_LIABILITIES"
	TotalNonCurrentLiabilities Concept = "TOTAL_NON_CURRENT_LIABILITIES"
	TotalEquity                Concept = "TOTAL_EQUITY"
	CashAndEquivalents         Concept = "CASH_AND_EQUIVALENTS"
	AccountsReceivable         Concept = "ACCOUNTS_RECEIVABLE"
	Inventory                  Concept = "INVENTORY"
	PrepaidExpenses            Concept = "PREPAID_EXPENSES"
	LongTermDebt               Concept = "LONG_TERM_DEBT"
	RetainedEarnings           Concept = "RETAINED_EARNINGS"
	ShareCapital               Concept = "SHARE_CAPITAL"
	NetIncome                  Concept = "NET_INCOME"
	Revenue                    Concept = "REVENUE"
	EBIT                       Concept = "EBIT"
	GrossProfit                Concept = "GROSS_PROFIT"
	OperatingCashFlow          Concept = "OPERATING_CASH_FLOW"
	MarketValueEquity          Concept = "MARKET_VALUE_EQUITY"
)

// Category is the top-level partition of a concept
type Category string

const (
	CategoryAsset     Category = "ASSET"
	CategoryLiability Category = "LIABILITY"
	CategoryEquity    Category = "EQUITY"
	// CategorySupplemental covers income statement and market figures used
	// by ratios and scores. They take no part in roll-ups or the
	// accounting identity.
	CategorySupplemental Category = "SUPPLEMENTAL"
)

// Sign is the typical sign of a concept's reported value
type Sign string

const (
	SignPositive Sign = "positive"
	SignNegative Sign = "negative"
	SignAny      Sign = "any"
)

// Definition describes one canonical concept
type Definition struct {
	ID       Concept  `json:"id"`
	Category Category `json:"category"`
	Group    string   `json:"group,omitempty"` // CURRENT / NON_CURRENT where applicable
	Parent   Concept  `json:"parent,omitempty"`
	Sign     Sign     `json:"sign"`
	Synonyms []string `json:"synonyms"` // first entry is the display name
}

// DisplayName returns the human readable name of the concept
func (d Definition) DisplayName() string {
	if len(d.Synonyms) > 0 {
		return d.Synonyms[0]
	}
	return string(d.ID)
}

type taxonomyFile struct {
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	Abbreviations map[string]string `json:"abbreviations"`
	Concepts      []Definition      `json:"concepts"`
}

// Taxonomy is the immutable concept tree. Load it once and share it;
// concurrent readers need no locking because it is never mutated after
// construction.
type Taxonomy struct {
	defs          map[Concept]Definition
	children      map[Concept][]Concept
	abbreviations map[string]string
	ordered       []Concept
}

// Load parses the embedded taxonomy table and builds the lookup maps
func Load() (*Taxonomy, error) {
	var file taxonomyFile
	if err := json.Unmarshal(taxonomyJSON, &file); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy.json: %w", err)
	}

	t := &Taxonomy{
		defs:          make(map[Concept]Definition, len(file.Concepts)),
		children:      make(map[Concept][]Concept),
		abbreviations: file.Abbreviations,
	}

	for _, def := range file.Concepts {
		if _, dup := t.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate concept %s in taxonomy", def.ID)
		}
		if len(def.Synonyms) == 0 {
			return nil, fmt.Errorf("concept %s has no synonyms", def.ID)
		}
		t.defs[def.ID] = def
		t.ordered = append(t.ordered, def.ID)
	}

	for _, def := range file.Concepts {
		if def.Parent == "" {
			continue
		}
		if _, ok := t.defs[def.Parent]; !ok {
			return nil, fmt.Errorf("concept %s references unknown parent %s", def.ID, def.Parent)
		}
		t.children[def.Parent] = append(t.children[def.Parent], def.ID)
	}

	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i] < t.ordered[j] })
	for _, kids := range t.children {
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	}

	return t, nil
}

// Get returns the definition for a concept
func (t *Taxonomy) Get(c Concept) (Definition, bool) {
	def, ok := t.defs[c]
	return def, ok
}

// Concepts returns all concept IDs in deterministic (lexicographic) order
func (t *Taxonomy) Concepts() []Concept {
	out := make([]Concept, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Children returns the direct children of a subtotal concept
func (t *Taxonomy) Children(c Concept) []Concept {
	kids := t.children[c]
	out := make([]Concept, len(kids))
	copy(out, kids)
	return out
}

// IsSubtotal reports whether a concept rolls up child concepts
func (t *Taxonomy) IsSubtotal(c Concept) bool {
	return len(t.children[c]) > 0
}

// SubtotalsBottomUp returns every subtotal concept ordered so that a
// concept always appears before its own parent. The builder relies on
// this ordering to synthesize nested subtotals in a single pass.
func (t *Taxonomy) SubtotalsBottomUp() []Concept {
	var subtotals []Concept
	for _, c := range t.ordered {
		if t.IsSubtotal(c) {
			subtotals = append(subtotals, c)
		}
	}
	sort.SliceStable(subtotals, func(i, j int) bool {
		di, dj := t.depth(subtotals[i]), t.depth(subtotals[j])
		if di != dj {
			return di > dj // deeper first
		}
		return subtotals[i] < subtotals[j]
	})
	return subtotals
}

func (t *Taxonomy) depth(c Concept) int {
	depth := 0
	for {
		def, ok := t.defs[c]
		if !ok || def.Parent == "" {
			return depth
		}
		c = def.Parent
		depth++
	}
}

// ExpandAbbreviation returns the expansion for a known abbreviation token,
// or the token unchanged
func (t *Taxonomy) ExpandAbbreviation(token string) string {
	if full, ok := t.abbreviations[token]; ok {
		return full
	}
	return token
}
