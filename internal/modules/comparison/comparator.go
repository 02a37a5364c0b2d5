// Package comparison aligns multiple statements for one entity across
// fiscal periods and derives deltas and trends for figures and ratios.
package comparison

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/ratios"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
	"github.com/finlens/balance-engine/pkg/formulas"
)

// Contract violations. These are hard failures for the call; nothing is
// partially computed.
var (
	ErrTooFewStatements = errors.New("comparison requires at least two statements")
	ErrEntityMismatch   = errors.New("statements must belong to the same entity")
	ErrUnorderedPeriods = errors.New("statement periods must be strictly increasing")
)

// Trend classifies the direction of a change, accounting for whether an
// increase in the underlying figure is an improvement.
type Trend string

const (
	TrendImproving     Trend = "IMPROVING"
	TrendDeteriorating Trend = "DETERIORATING"
	TrendStable        Trend = "STABLE"
)

// DefaultStableThreshold is the |percentage change| below which a change
// counts as stable.
const DefaultStableThreshold = 0.02

// PeriodDelta is the change in one tracked figure between two adjacent
// periods. PctChange is undefined when the baseline is zero.
type PeriodDelta struct {
	FromPeriod time.Time    `json:"from_period"`
	ToPeriod   time.Time    `json:"to_period"`
	From       domain.Value `json:"from"`
	To         domain.Value `json:"to"`
	Delta      domain.Value `json:"delta"`
	PctChange  domain.Value `json:"pct_change"`
	Trend      Trend        `json:"trend,omitempty"`
	Note       string       `json:"note,omitempty"`
}

// BenchmarkDelta compares the latest value of a series against a
// caller-supplied industry benchmark.
type BenchmarkDelta struct {
	Benchmark decimal.Decimal `json:"benchmark"`
	Latest    domain.Value    `json:"latest"`
	Delta     domain.Value    `json:"delta"`
}

// Series is the full history of one tracked figure or ratio
type Series struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"` // "ratio" or "figure"
	Values    []domain.Value  `json:"values"`
	Deltas    []PeriodDelta   `json:"deltas"`
	SpanTrend Trend           `json:"span_trend,omitempty"`
	Benchmark *BenchmarkDelta `json:"benchmark,omitempty"`
}

// Result is a full multi-period comparison for one entity
type Result struct {
	EntityID     string      `json:"entity_id"`
	StatementIDs []string    `json:"statement_ids"`
	PeriodEnds   []time.Time `json:"period_ends"`
	Series       []Series    `json:"series"`
}

// trackedFigure pairs a raw concept with its trend polarity
type trackedFigure struct {
	concept  taxonomy.Concept
	polarity ratios.Polarity
}

// Raw figures tracked alongside the ratio catalog
var trackedFigures = []trackedFigure{
	{taxonomy.TotalAssets, ratios.UpGood},
	{taxonomy.TotalLiabilities, ratios.DownGood},
	{taxonomy.TotalEquity, ratios.UpGood},
	{taxonomy.CashAndEquivalents, ratios.UpGood},
}

// Comparator aligns statements and classifies trends. Stateless and safe
// for concurrent use.
type Comparator struct {
	calc            *ratios.Calculator
	stableThreshold decimal.Decimal
	log             zerolog.Logger
}

// NewComparator creates a comparator. A non-positive stableThreshold
// falls back to DefaultStableThreshold.
func NewComparator(calc *ratios.Calculator, stableThreshold float64, log zerolog.Logger) *Comparator {
	if stableThreshold <= 0 {
		stableThreshold = DefaultStableThreshold
	}
	return &Comparator{
		calc:            calc,
		stableThreshold: decimal.NewFromFloat(stableThreshold),
		log:             log.With().Str("component", "comparator").Logger(),
	}
}

// Compare aligns the statements by period end date and produces delta and
// trend series for every tracked figure and ratio. Statements must belong
// to one entity and be ordered by strictly increasing period end.
// benchmarks, when supplied, are matched against ratio series by ID.
func (c *Comparator) Compare(statements []*statement.BalanceSheet, benchmarks map[string]decimal.Decimal) (*Result, error) {
	if len(statements) < 2 {
		return nil, ErrTooFewStatements
	}
	entity := statements[0].EntityID
	for i, bs := range statements {
		if bs.EntityID != entity {
			return nil, ErrEntityMismatch
		}
		if i > 0 && !bs.PeriodEnd.After(statements[i-1].PeriodEnd) {
			return nil, ErrUnorderedPeriods
		}
	}

	res := &Result{EntityID: entity}
	for _, bs := range statements {
		res.StatementIDs = append(res.StatementIDs, bs.ID)
		res.PeriodEnds = append(res.PeriodEnds, bs.PeriodEnd)
	}

	for _, fig := range trackedFigures {
		values := make([]domain.Value, len(statements))
		for i, bs := range statements {
			if v, present := bs.Value(fig.concept); present {
				values[i] = domain.Defined(v)
			} else {
				values[i] = domain.Undefined("%s not reported", fig.concept)
			}
		}
		res.Series = append(res.Series, c.buildSeries(string(fig.concept), "figure", values, statements, fig.polarity, nil, nil))
	}

	for _, def := range ratios.Catalog {
		values := make([]domain.Value, len(statements))
		for i, bs := range statements {
			var prior *statement.BalanceSheet
			if i > 0 {
				prior = statements[i-1]
			}
			values[i] = c.calc.Compute(def.ID, bs, prior).Value
		}
		var benchmark *decimal.Decimal
		if b, ok := benchmarks[def.ID]; ok {
			benchmark = &b
		}
		res.Series = append(res.Series, c.buildSeries(def.ID, "ratio", values, statements, def.Polarity, def.Ceiling, benchmark))
	}

	c.log.Info().
		Str("entity", entity).
		Int("statements", len(statements)).
		Int("series", len(res.Series)).
		Msg("Comparison computed")

	return res, nil
}

func (c *Comparator) buildSeries(id, kind string, values []domain.Value, statements []*statement.BalanceSheet, polarity ratios.Polarity, ceiling *decimal.Decimal, benchmark *decimal.Decimal) Series {
	series := Series{ID: id, Kind: kind, Values: values}

	for i := 1; i < len(values); i++ {
		series.Deltas = append(series.Deltas, c.delta(
			statements[i-1].PeriodEnd, statements[i].PeriodEnd,
			values[i-1], values[i], polarity, ceiling,
		))
	}

	series.SpanTrend = c.spanTrend(values, polarity)

	if benchmark != nil {
		latest := values[len(values)-1]
		bd := &BenchmarkDelta{Benchmark: *benchmark, Latest: latest}
		if latest.IsDefined() {
			bd.Delta = domain.Defined(latest.Decimal().Sub(*benchmark))
		} else {
			bd.Delta = domain.Undefined("latest value undefined")
		}
		series.Benchmark = bd
	}

	return series
}

func (c *Comparator) delta(fromPeriod, toPeriod time.Time, from, to domain.Value, polarity ratios.Polarity, ceiling *decimal.Decimal) PeriodDelta {
	pd := PeriodDelta{FromPeriod: fromPeriod, ToPeriod: toPeriod, From: from, To: to}

	if !from.IsDefined() || !to.IsDefined() {
		pd.Delta = domain.Undefined("endpoint undefined")
		pd.PctChange = domain.Undefined("endpoint undefined")
		return pd
	}

	diff := to.Decimal().Sub(from.Decimal())
	pd.Delta = domain.Defined(diff)

	if from.Decimal().IsZero() {
		pd.PctChange = domain.Undefined("baseline value is zero")
		pd.Trend = c.classify(diff, nil, polarity, to.Decimal(), ceiling, &pd)
		return pd
	}

	pct := diff.Div(from.Decimal())
	pd.PctChange = domain.Defined(pct)
	pd.Trend = c.classify(diff, &pct, polarity, to.Decimal(), ceiling, &pd)
	return pd
}

// classify maps a change to IMPROVING / DETERIORATING / STABLE. Direction
// polarity is ratio specific; a rise past a ceiling is inefficiency
// (excess liquidity), not improvement.
func (c *Comparator) classify(diff decimal.Decimal, pct *decimal.Decimal, polarity ratios.Polarity, latest decimal.Decimal, ceiling *decimal.Decimal, pd *PeriodDelta) Trend {
	if pct != nil && pct.Abs().LessThan(c.stableThreshold) {
		return TrendStable
	}
	if pct == nil && diff.IsZero() {
		return TrendStable
	}

	rising := diff.IsPositive()
	improving := (rising && polarity == ratios.UpGood) || (!rising && polarity == ratios.DownGood)

	if improving && rising && ceiling != nil && latest.GreaterThan(*ceiling) {
		pd.Note = "beyond ceiling: excess liquidity is inefficiency, not improvement"
		return TrendDeteriorating
	}
	if improving {
		return TrendImproving
	}
	return TrendDeteriorating
}

// spanTrend fits a least squares line through the defined points of the
// series and classifies the overall slope. Needs at least three defined
// points; adjacent-pair deltas already cover shorter series.
func (c *Comparator) spanTrend(values []domain.Value, polarity ratios.Polarity) Trend {
	var xs, ys []float64
	for i, v := range values {
		if !v.IsDefined() {
			continue
		}
		f, _ := v.Decimal().Float64()
		xs = append(xs, float64(i))
		ys = append(ys, f)
	}
	if len(xs) < 3 {
		return ""
	}

	slope := formulas.LinearSlope(xs, ys)

	mean := formulas.Mean(ys)
	threshold, _ := c.stableThreshold.Float64()
	if mean != 0 && math.Abs(slope/mean) < threshold {
		return TrendStable
	}
	if mean == 0 && slope == 0 {
		return TrendStable
	}

	rising := slope > 0
	if (rising && polarity == ratios.UpGood) || (!rising && polarity == ratios.DownGood) {
		return TrendImproving
	}
	return TrendDeteriorating
}
