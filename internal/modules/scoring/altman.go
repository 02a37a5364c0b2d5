package scoring

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// AltmanZScore identifies the Altman Z bankruptcy predictor
const AltmanZScore = "altman_z"

// AltmanRequired lists every concept the Z-Score needs. All must be
// present or the score is undefined.
var AltmanRequired = []taxonomy.Concept{
	taxonomy.TotalCurrentAssets,
	taxonomy.TotalCurrentLiabilities,
	taxonomy.TotalAssets,
	taxonomy.RetainedEarnings,
	taxonomy.EBIT,
	taxonomy.MarketValueEquity,
	taxonomy.TotalLiabilities,
	taxonomy.Revenue,
}

var (
	altmanSafeFloor     = decimal.NewFromFloat(2.99)
	altmanGreyFloor     = decimal.NewFromFloat(1.81)
	altmanWeightA       = decimal.NewFromFloat(1.2)
	altmanWeightB       = decimal.NewFromFloat(1.4)
	altmanWeightC       = decimal.NewFromFloat(3.3)
	altmanWeightD       = decimal.NewFromFloat(0.6)
	altmanWeightE       = decimal.NewFromFloat(1.0)
)

// AltmanBands are the published Z-Score classification zones:
// Z > 2.99 safe, 1.81 <= Z <= 2.99 grey, Z < 1.81 distress.
var AltmanBands = Bands{
	{Name: "safe", Floor: &altmanSafeFloor, Exclusive: true},
	{Name: "grey", Floor: &altmanGreyFloor},
	{Name: "distress"},
}

// AltmanScorer computes the original Altman Z-Score:
// Z = 1.2A + 1.4B + 3.3C + 0.6D + 1.0E
type AltmanScorer struct {
	log zerolog.Logger
}

// NewAltmanScorer creates an Altman Z scorer
func NewAltmanScorer(log zerolog.Logger) *AltmanScorer {
	return &AltmanScorer{log: log.With().Str("component", "altman").Logger()}
}

// Calculate evaluates the Z-Score for one statement
func (s *AltmanScorer) Calculate(bs *statement.BalanceSheet) Result {
	res := Result{ScoreID: AltmanZScore, StatementIDs: []string{bs.ID}}

	for _, concept := range AltmanRequired {
		if _, present := bs.Value(concept); !present {
			res.Missing = append(res.Missing, concept)
		}
	}
	if len(res.Missing) > 0 {
		res.Value = domain.Undefined("required concepts missing: %v", res.Missing)
		return res
	}

	totalAssets, _ := bs.Value(taxonomy.TotalAssets)
	totalLiabilities, _ := bs.Value(taxonomy.TotalLiabilities)
	if totalAssets.IsZero() {
		res.Value = domain.Undefined("denominator TOTAL_ASSETS is zero")
		return res
	}
	if totalLiabilities.IsZero() {
		res.Value = domain.Undefined("denominator TOTAL_LIABILITIES is zero")
		return res
	}

	currentAssets, _ := bs.Value(taxonomy.TotalCurrentAssets)
	currentLiabilities, _ := bs.Value(taxonomy.TotalCurrentLiabilities)
	retainedEarnings, _ := bs.Value(taxonomy.RetainedEarnings)
	ebit, _ := bs.Value(taxonomy.EBIT)
	marketEquity, _ := bs.Value(taxonomy.MarketValueEquity)
	revenue, _ := bs.Value(taxonomy.Revenue)

	a := currentAssets.Sub(currentLiabilities).Div(totalAssets)
	b := retainedEarnings.Div(totalAssets)
	c := ebit.Div(totalAssets)
	d := marketEquity.Div(totalLiabilities)
	e := revenue.Div(totalAssets)

	z := altmanWeightA.Mul(a).
		Add(altmanWeightB.Mul(b)).
		Add(altmanWeightC.Mul(c)).
		Add(altmanWeightD.Mul(d)).
		Add(altmanWeightE.Mul(e))

	res.Value = domain.Defined(z)
	res.Band = AltmanBands.Classify(z)
	res.Components = []Component{
		{Name: "working_capital_to_total_assets", Value: domain.Defined(a)},
		{Name: "retained_earnings_to_total_assets", Value: domain.Defined(b)},
		{Name: "ebit_to_total_assets", Value: domain.Defined(c)},
		{Name: "market_value_equity_to_total_liabilities", Value: domain.Defined(d)},
		{Name: "revenue_to_total_assets", Value: domain.Defined(e)},
	}

	s.log.Debug().
		Str("statement_id", bs.ID).
		Str("z", z.String()).
		Str("band", res.Band).
		Msg("Altman Z computed")

	return res
}
