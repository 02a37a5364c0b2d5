// Package ratios derives financial ratios from canonical balance sheets.
// Formulas are fixed data, not configuration, so results are identical
// across runs and installations.
package ratios

import (
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// Ratio identifiers
const (
	CurrentRatio         = "current_ratio"
	QuickRatio           = "quick_ratio"
	CashRatio            = "cash_ratio"
	WorkingCapital       = "working_capital"
	DebtToEquity         = "debt_to_equity"
	DebtRatio            = "debt_ratio"
	EquityRatio          = "equity_ratio"
	EquityMultiplier     = "equity_multiplier"
	LongTermDebtToEquity = "long_term_debt_to_equity"
	ReturnOnEquity       = "return_on_equity"
	ReturnOnAssets       = "return_on_assets"
	AssetTurnover        = "asset_turnover"
	NetMargin            = "net_margin"
)

// Ratio categories
const (
	CategoryLiquidity     = "liquidity"
	CategoryLeverage      = "leverage"
	CategoryEfficiency    = "efficiency"
	CategoryProfitability = "profitability"
)

// Polarity states whether an increase in the ratio is an improvement.
// The comparator uses this to classify trends.
type Polarity string

const (
	UpGood   Polarity = "UP_GOOD"
	DownGood Polarity = "DOWN_GOOD"
)

// Definition describes one ratio: its inputs, its trend polarity and,
// where relevant, the ceiling beyond which further increase stops being
// an improvement (excess liquidity).
type Definition struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Category string             `json:"category"`
	Required []taxonomy.Concept `json:"required"`
	// AssumedZero inputs are subtracted when present and assumed zero
	// (and recorded as such) when absent.
	AssumedZero []taxonomy.Concept `json:"assumed_zero,omitempty"`
	Polarity    Polarity           `json:"polarity"`
	Ceiling     *decimal.Decimal   `json:"ceiling,omitempty"`
	// TwoPeriod ratios use the average balance over two statements when a
	// prior period is available.
	TwoPeriod bool `json:"two_period,omitempty"`
}

var currentRatioCeiling = decimal.NewFromInt(3)

// Catalog is the fixed ratio set, ordered for stable output
var Catalog = []Definition{
	{
		ID:       CurrentRatio,
		Name:     "Current Ratio",
		Category: CategoryLiquidity,
		Required: []taxonomy.Concept{taxonomy.TotalCurrentAssets, taxonomy.TotalCurrentLiabilities},
		Polarity: UpGood,
		Ceiling:  &currentRatioCeiling,
	},
	{
		ID:          QuickRatio,
		Name:        "Quick Ratio",
		Category:    CategoryLiquidity,
		Required:    []taxonomy.Concept{taxonomy.TotalCurrentAssets, taxonomy.TotalCurrentLiabilities},
		AssumedZero: []taxonomy.Concept{taxonomy.Inventory, taxonomy.PrepaidExpenses},
		Polarity:    UpGood,
	},
	{
		ID:       CashRatio,
		Name:     "Cash Ratio",
		Category: CategoryLiquidity,
		Required: []taxonomy.Concept{taxonomy.CashAndEquivalents, taxonomy.TotalCurrentLiabilities},
		Polarity: UpGood,
	},
	{
		ID:       WorkingCapital,
		Name:     "Working Capital",
		Category: CategoryLiquidity,
		Required: []taxonomy.Concept{taxonomy.TotalCurrentAssets, taxonomy.TotalCurrentLiabilities},
		Polarity: UpGood,
	},
	{
		ID:       DebtToEquity,
		Name:     "Debt to Equity",
		Category: CategoryLeverage,
		Required: []taxonomy.Concept{taxonomy.TotalLiabilities, taxonomy.TotalEquity},
		Polarity: DownGood,
	},
	{
		ID:       DebtRatio,
		Name:     "Debt Ratio",
		Category: CategoryLeverage,
		Required: []taxonomy.Concept{taxonomy.TotalLiabilities, taxonomy.TotalAssets},
		Polarity: DownGood,
	},
	{
		ID:       EquityRatio,
		Name:     "Equity Ratio",
		Category: CategoryLeverage,
		Required: []taxonomy.Concept{taxonomy.TotalEquity, taxonomy.TotalAssets},
		Polarity: UpGood,
	},
	{
		ID:       EquityMultiplier,
		Name:     "Equity Multiplier",
		Category: CategoryLeverage,
		Required: []taxonomy.Concept{taxonomy.TotalAssets, taxonomy.TotalEquity},
		Polarity: DownGood,
	},
	{
		ID:       LongTermDebtToEquity,
		Name:     "Long Term Debt to Equity",
		Category: CategoryLeverage,
		Required: []taxonomy.Concept{taxonomy.LongTermDebt, taxonomy.TotalEquity},
		Polarity: DownGood,
	},
	{
		ID:        ReturnOnEquity,
		Name:      "Return on Equity",
		Category:  CategoryProfitability,
		Required:  []taxonomy.Concept{taxonomy.NetIncome, taxonomy.TotalEquity},
		Polarity:  UpGood,
		TwoPeriod: true,
	},
	{
		ID:        ReturnOnAssets,
		Name:      "Return on Assets",
		Category:  CategoryProfitability,
		Required:  []taxonomy.Concept{taxonomy.NetIncome, taxonomy.TotalAssets},
		Polarity:  UpGood,
		TwoPeriod: true,
	},
	{
		ID:        AssetTurnover,
		Name:      "Asset Turnover",
		Category:  CategoryEfficiency,
		Required:  []taxonomy.Concept{taxonomy.Revenue, taxonomy.TotalAssets},
		Polarity:  UpGood,
		TwoPeriod: true,
	},
	{
		ID:       NetMargin,
		Name:     "Net Profit Margin",
		Category: CategoryProfitability,
		Required: []taxonomy.Concept{taxonomy.NetIncome, taxonomy.Revenue},
		Polarity: UpGood,
	},
}

// Lookup returns the definition for a ratio ID
func Lookup(id string) (Definition, bool) {
	for _, def := range Catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}
