package ratios

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// Result is one computed ratio. A missing or zero denominator yields an
// explicitly undefined value, never zero or infinity, and the concepts
// responsible are listed so the outcome stays traceable.
type Result struct {
	RatioID      string             `json:"ratio_id"`
	Value        domain.Value       `json:"value"`
	StatementIDs []string           `json:"statement_ids"`
	AssumedZero  []taxonomy.Concept `json:"assumed_zero,omitempty"`
	Missing      []taxonomy.Concept `json:"missing,omitempty"`
	Notes        []string           `json:"notes,omitempty"`
}

// Calculator computes the fixed ratio catalog over canonical statements.
// Pure: it never mutates its inputs and is safe for concurrent use.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a ratio calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{log: log.With().Str("component", "ratios").Logger()}
}

// All computes every catalog ratio for a statement. prior may be nil;
// two-period ratios then fall back to the single period balance with the
// fallback recorded in the result.
func (c *Calculator) All(current, prior *statement.BalanceSheet) []Result {
	out := make([]Result, 0, len(Catalog))
	for _, def := range Catalog {
		out = append(out, c.Compute(def.ID, current, prior))
	}
	return out
}

// Compute evaluates a single ratio by ID
func (c *Calculator) Compute(id string, current, prior *statement.BalanceSheet) Result {
	def, ok := Lookup(id)
	if !ok {
		return Result{RatioID: id, Value: domain.Undefined("unknown ratio %q", id)}
	}

	res := Result{RatioID: def.ID, StatementIDs: []string{current.ID}}
	if def.TwoPeriod && prior != nil {
		res.StatementIDs = append(res.StatementIDs, prior.ID)
	}

	for _, concept := range def.Required {
		if _, present := current.Value(concept); !present {
			res.Missing = append(res.Missing, concept)
		}
	}
	if len(res.Missing) > 0 {
		res.Value = domain.Undefined("required concepts missing: %v", res.Missing)
		return res
	}

	switch def.ID {
	case CurrentRatio:
		res.Value = divide(get(current, taxonomy.TotalCurrentAssets), get(current, taxonomy.TotalCurrentLiabilities), taxonomy.TotalCurrentLiabilities)
	case QuickRatio:
		numerator := get(current, taxonomy.TotalCurrentAssets)
		for _, concept := range def.AssumedZero {
			if v, present := current.Value(concept); present {
				numerator = numerator.Sub(v)
			} else {
				res.AssumedZero = append(res.AssumedZero, concept)
			}
		}
		res.Value = divide(numerator, get(current, taxonomy.TotalCurrentLiabilities), taxonomy.TotalCurrentLiabilities)
	case CashRatio:
		res.Value = divide(get(current, taxonomy.CashAndEquivalents), get(current, taxonomy.TotalCurrentLiabilities), taxonomy.TotalCurrentLiabilities)
	case WorkingCapital:
		res.Value = domain.Defined(get(current, taxonomy.TotalCurrentAssets).Sub(get(current, taxonomy.TotalCurrentLiabilities)))
	case DebtToEquity:
		res.Value = divide(get(current, taxonomy.TotalLiabilities), get(current, taxonomy.TotalEquity), taxonomy.TotalEquity)
	case DebtRatio:
		res.Value = divide(get(current, taxonomy.TotalLiabilities), get(current, taxonomy.TotalAssets), taxonomy.TotalAssets)
	case EquityRatio:
		res.Value = divide(get(current, taxonomy.TotalEquity), get(current, taxonomy.TotalAssets), taxonomy.TotalAssets)
	case EquityMultiplier:
		res.Value = divide(get(current, taxonomy.TotalAssets), get(current, taxonomy.TotalEquity), taxonomy.TotalEquity)
	case LongTermDebtToEquity:
		res.Value = divide(get(current, taxonomy.LongTermDebt), get(current, taxonomy.TotalEquity), taxonomy.TotalEquity)
	case ReturnOnEquity:
		res.Value = c.averaged(&res, current, prior, taxonomy.NetIncome, taxonomy.TotalEquity)
	case ReturnOnAssets:
		res.Value = c.averaged(&res, current, prior, taxonomy.NetIncome, taxonomy.TotalAssets)
	case AssetTurnover:
		res.Value = c.averaged(&res, current, prior, taxonomy.Revenue, taxonomy.TotalAssets)
	case NetMargin:
		res.Value = divide(get(current, taxonomy.NetIncome), get(current, taxonomy.Revenue), taxonomy.Revenue)
	}

	return res
}

// averaged computes numerator / average(denominator over two periods),
// falling back to the single period balance when no prior statement (or no
// prior figure) is available. The fallback is recorded in the result notes.
func (c *Calculator) averaged(res *Result, current, prior *statement.BalanceSheet, numConcept, denConcept taxonomy.Concept) domain.Value {
	numerator := get(current, numConcept)
	denominator := get(current, denConcept)

	if prior != nil {
		if prev, present := prior.Value(denConcept); present {
			denominator = denominator.Add(prev).Div(decimal.NewFromInt(2))
		} else {
			res.Notes = append(res.Notes, "prior period lacks "+string(denConcept)+"; using single period balance")
		}
	} else {
		res.Notes = append(res.Notes, "single statement supplied; using single period "+string(denConcept))
	}

	return divide(numerator, denominator, denConcept)
}

func divide(numerator, denominator decimal.Decimal, denConcept taxonomy.Concept) domain.Value {
	if denominator.IsZero() {
		return domain.Undefined("denominator %s is zero", denConcept)
	}
	return domain.Defined(numerator.Div(denominator))
}

// get fetches a concept value known to be present (checked upfront by
// Compute). Missing concepts were already turned into an undefined result.
func get(bs *statement.BalanceSheet, c taxonomy.Concept) decimal.Decimal {
	v, _ := bs.Value(c)
	return v
}
