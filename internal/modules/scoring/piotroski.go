package scoring

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// PiotroskiFScore identifies the Piotroski F-Score (0-9)
const PiotroskiFScore = "piotroski_f"

// PiotroskiRequired lists the concepts every one of the nine signals
// needs, in both the current and the prior period.
var PiotroskiRequired = []taxonomy.Concept{
	taxonomy.NetIncome,
	taxonomy.OperatingCashFlow,
	taxonomy.TotalAssets,
	taxonomy.LongTermDebt,
	taxonomy.TotalCurrentAssets,
	taxonomy.TotalCurrentLiabilities,
	taxonomy.ShareCapital,
	taxonomy.GrossProfit,
	taxonomy.Revenue,
}

var (
	piotroskiStrongFloor   = decimal.NewFromInt(8)
	piotroskiModerateFloor = decimal.NewFromInt(3)
)

// PiotroskiBands are the published F-Score bands: 8-9 strong, 3-7
// moderate, 0-2 weak.
var PiotroskiBands = Bands{
	{Name: "strong", Floor: &piotroskiStrongFloor},
	{Name: "moderate", Floor: &piotroskiModerateFloor},
	{Name: "weak"},
}

// PiotroskiScorer computes the nine-signal F-Score over two consecutive
// statements for the same entity.
type PiotroskiScorer struct {
	log zerolog.Logger
}

// NewPiotroskiScorer creates a Piotroski F scorer
func NewPiotroskiScorer(log zerolog.Logger) *PiotroskiScorer {
	return &PiotroskiScorer{log: log.With().Str("component", "piotroski").Logger()}
}

// Calculate evaluates the F-Score. prior is the immediately preceding
// statement; without it the score is undefined.
func (s *PiotroskiScorer) Calculate(current, prior *statement.BalanceSheet) Result {
	res := Result{ScoreID: PiotroskiFScore}
	if current != nil {
		res.StatementIDs = []string{current.ID}
	}
	if prior == nil {
		res.Value = domain.Undefined("requires two consecutive statements")
		return res
	}
	res.StatementIDs = append(res.StatementIDs, prior.ID)

	seen := map[taxonomy.Concept]bool{}
	for _, concept := range PiotroskiRequired {
		_, inCurrent := current.Value(concept)
		_, inPrior := prior.Value(concept)
		if (!inCurrent || !inPrior) && !seen[concept] {
			seen[concept] = true
			res.Missing = append(res.Missing, concept)
		}
	}
	if len(res.Missing) > 0 {
		res.Value = domain.Undefined("required concepts missing in one or both periods: %v", res.Missing)
		return res
	}

	cur := figures(current)
	prev := figures(prior)
	for _, f := range []decimal.Decimal{cur.totalAssets, prev.totalAssets, cur.revenue, prev.revenue, cur.currentLiabilities, prev.currentLiabilities} {
		if f.IsZero() {
			res.Value = domain.Undefined("zero denominator among TOTAL_ASSETS, REVENUE, TOTAL_CURRENT_LIABILITIES")
			return res
		}
	}

	signals := []struct {
		name string
		pass bool
	}{
		{"roa_positive", cur.netIncome.Div(cur.totalAssets).IsPositive()},
		{"cfo_positive", cur.cashFlow.IsPositive()},
		{"roa_improving", cur.netIncome.Div(cur.totalAssets).GreaterThan(prev.netIncome.Div(prev.totalAssets))},
		{"cfo_exceeds_net_income", cur.cashFlow.GreaterThan(cur.netIncome)},
		{"leverage_decreasing", cur.longTermDebt.Div(cur.totalAssets).LessThanOrEqual(prev.longTermDebt.Div(prev.totalAssets))},
		{"current_ratio_improving", cur.currentAssets.Div(cur.currentLiabilities).GreaterThan(prev.currentAssets.Div(prev.currentLiabilities))},
		{"no_share_dilution", cur.shareCapital.LessThanOrEqual(prev.shareCapital)},
		{"gross_margin_improving", cur.grossProfit.Div(cur.revenue).GreaterThan(prev.grossProfit.Div(prev.revenue))},
		{"asset_turnover_improving", cur.revenue.Div(cur.totalAssets).GreaterThan(prev.revenue.Div(prev.totalAssets))},
	}

	score := decimal.Zero
	res.Components = make([]Component, 0, len(signals))
	for _, sig := range signals {
		point := decimal.Zero
		if sig.pass {
			point = decimal.NewFromInt(1)
			score = score.Add(point)
		}
		res.Components = append(res.Components, Component{Name: sig.name, Value: domain.Defined(point)})
	}

	res.Value = domain.Defined(score)
	res.Band = PiotroskiBands.Classify(score)

	s.log.Debug().
		Str("statement_id", current.ID).
		Str("score", score.String()).
		Str("band", res.Band).
		Msg("Piotroski F computed")

	return res
}

type piotroskiFigures struct {
	netIncome          decimal.Decimal
	cashFlow           decimal.Decimal
	totalAssets        decimal.Decimal
	longTermDebt       decimal.Decimal
	currentAssets      decimal.Decimal
	currentLiabilities decimal.Decimal
	shareCapital       decimal.Decimal
	grossProfit        decimal.Decimal
	revenue            decimal.Decimal
}

func figures(bs *statement.BalanceSheet) piotroskiFigures {
	v := func(c taxonomy.Concept) decimal.Decimal {
		d, _ := bs.Value(c)
		return d
	}
	return piotroskiFigures{
		netIncome:          v(taxonomy.NetIncome),
		cashFlow:           v(taxonomy.OperatingCashFlow),
		totalAssets:        v(taxonomy.TotalAssets),
		longTermDebt:       v(taxonomy.LongTermDebt),
		currentAssets:      v(taxonomy.TotalCurrentAssets),
		currentLiabilities: v(taxonomy.TotalCurrentLiabilities),
		shareCapital:       v(taxonomy.ShareCapital),
		grossProfit:        v(taxonomy.GrossProfit),
		revenue:            v(taxonomy.Revenue),
	}
}
