package comparison

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/modules/ratios"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
	"github.com/finlens/balance-engine/pkg/logger"
)

func newTestComparator() *Comparator {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewComparator(ratios.NewCalculator(log), DefaultStableThreshold, log)
}

func makeStatement(t *testing.T, id, entity string, year int, figures map[taxonomy.Concept]string) *statement.BalanceSheet {
	t.Helper()
	bs := &statement.BalanceSheet{
		ID:        id,
		EntityID:  entity,
		PeriodEnd: time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		Currency:  "EUR",
	}
	for concept, raw := range figures {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			t.Fatalf("bad test figure %s=%q: %v", concept, raw, err)
		}
		bs.Items = append(bs.Items, statement.LineItem{
			Concept:    concept,
			Value:      value,
			Currency:   "EUR",
			Confidence: 1.0,
		})
	}
	return bs
}

func findSeries(t *testing.T, res *Result, id string) Series {
	t.Helper()
	for _, s := range res.Series {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("Series %s not found", id)
	return Series{}
}

func TestCompare_ContractViolations(t *testing.T) {
	c := newTestComparator()

	one := makeStatement(t, "s1", "acme", 2023, nil)
	two := makeStatement(t, "s2", "acme", 2024, nil)
	other := makeStatement(t, "s3", "globex", 2025, nil)
	stale := makeStatement(t, "s4", "acme", 2023, nil)

	tests := []struct {
		name       string
		statements []*statement.BalanceSheet
		expected   error
	}{
		{"too few", []*statement.BalanceSheet{one}, ErrTooFewStatements},
		{"entity mismatch", []*statement.BalanceSheet{one, other}, ErrEntityMismatch},
		{"unordered", []*statement.BalanceSheet{two, one}, ErrUnorderedPeriods},
		{"duplicate period", []*statement.BalanceSheet{one, stale}, ErrUnorderedPeriods},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Compare(tt.statements, nil); !errors.Is(err, tt.expected) {
				t.Errorf("Compare = %v, want %v", err, tt.expected)
			}
		})
	}
}

func TestCompare_FigureTrends(t *testing.T) {
	c := newTestComparator()

	first := makeStatement(t, "s1", "acme", 2023, map[taxonomy.Concept]string{
		taxonomy.TotalAssets:      "100",
		taxonomy.TotalLiabilities: "50",
	})
	second := makeStatement(t, "s2", "acme", 2024, map[taxonomy.Concept]string{
		taxonomy.TotalAssets:      "150",
		taxonomy.TotalLiabilities: "80",
	})

	res, err := c.Compare([]*statement.BalanceSheet{first, second}, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	assets := findSeries(t, res, string(taxonomy.TotalAssets))
	if len(assets.Deltas) != 1 {
		t.Fatalf("Got %d deltas, want 1", len(assets.Deltas))
	}
	if assets.Deltas[0].Trend != TrendImproving {
		t.Errorf("Growing assets trend = %s, want IMPROVING", assets.Deltas[0].Trend)
	}
	if !assets.Deltas[0].Delta.Decimal().Equal(decimal.NewFromInt(50)) {
		t.Errorf("Delta = %s, want 50", assets.Deltas[0].Delta)
	}
	if !assets.Deltas[0].PctChange.Decimal().Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("PctChange = %s, want 0.5", assets.Deltas[0].PctChange)
	}

	// Liabilities rising is a deterioration: polarity is DOWN_GOOD
	liabilities := findSeries(t, res, string(taxonomy.TotalLiabilities))
	if liabilities.Deltas[0].Trend != TrendDeteriorating {
		t.Errorf("Growing liabilities trend = %s, want DETERIORATING", liabilities.Deltas[0].Trend)
	}
}

func TestCompare_StableWithinThreshold(t *testing.T) {
	c := newTestComparator()

	first := makeStatement(t, "s1", "acme", 2023, map[taxonomy.Concept]string{
		taxonomy.TotalAssets: "1000",
	})
	second := makeStatement(t, "s2", "acme", 2024, map[taxonomy.Concept]string{
		taxonomy.TotalAssets: "1010", // 1% change, below the 2% threshold
	})

	res, err := c.Compare([]*statement.BalanceSheet{first, second}, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	assets := findSeries(t, res, string(taxonomy.TotalAssets))
	if assets.Deltas[0].Trend != TrendStable {
		t.Errorf("1%% change trend = %s, want STABLE", assets.Deltas[0].Trend)
	}
}

func TestCompare_ZeroBaselinePctUndefined(t *testing.T) {
	c := newTestComparator()

	first := makeStatement(t, "s1", "acme", 2023, map[taxonomy.Concept]string{
		taxonomy.CashAndEquivalents: "0",
	})
	second := makeStatement(t, "s2", "acme", 2024, map[taxonomy.Concept]string{
		taxonomy.CashAndEquivalents: "50",
	})

	res, err := c.Compare([]*statement.BalanceSheet{first, second}, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	cash := findSeries(t, res, string(taxonomy.CashAndEquivalents))
	delta := cash.Deltas[0]
	if !delta.Delta.Decimal().Equal(decimal.NewFromInt(50)) {
		t.Errorf("Delta = %s, want 50", delta.Delta)
	}
	if delta.PctChange.IsDefined() {
		t.Error("Percentage change from a zero baseline must be undefined")
	}
	if delta.Trend != TrendImproving {
		t.Errorf("Trend = %s, want IMPROVING despite undefined percentage", delta.Trend)
	}
}

func TestCompare_CeilingBreachIsNotImprovement(t *testing.T) {
	c := newTestComparator()

	first := makeStatement(t, "s1", "acme", 2023, map[taxonomy.Concept]string{
		taxonomy.TotalCurrentAssets:      "200",
		taxonomy.TotalCurrentLiabilities: "100",
	})
	second := makeStatement(t, "s2", "acme", 2024, map[taxonomy.Concept]string{
		taxonomy.TotalCurrentAssets:      "400",
		taxonomy.TotalCurrentLiabilities: "100",
	})

	res, err := c.Compare([]*statement.BalanceSheet{first, second}, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	// Current ratio rises 2.0 -> 4.0, past the ceiling of 3
	series := findSeries(t, res, ratios.CurrentRatio)
	delta := series.Deltas[0]
	if delta.Trend != TrendDeteriorating {
		t.Errorf("Ceiling breach trend = %s, want DETERIORATING", delta.Trend)
	}
	if delta.Note == "" {
		t.Error("Ceiling breach must carry an explanatory note")
	}
}

func TestCompare_Benchmark(t *testing.T) {
	c := newTestComparator()

	first := makeStatement(t, "s1", "acme", 2023, map[taxonomy.Concept]string{
		taxonomy.TotalCurrentAssets:      "200",
		taxonomy.TotalCurrentLiabilities: "100",
	})
	second := makeStatement(t, "s2", "acme", 2024, map[taxonomy.Concept]string{
		taxonomy.TotalCurrentAssets:      "250",
		taxonomy.TotalCurrentLiabilities: "100",
	})

	benchmarks := map[string]decimal.Decimal{
		ratios.CurrentRatio: decimal.NewFromFloat(1.5),
	}
	res, err := c.Compare([]*statement.BalanceSheet{first, second}, benchmarks)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	series := findSeries(t, res, ratios.CurrentRatio)
	if series.Benchmark == nil {
		t.Fatal("Expected benchmark delta")
	}
	// Latest 2.5 against benchmark 1.5
	if !series.Benchmark.Delta.Decimal().Equal(decimal.NewFromInt(1)) {
		t.Errorf("Benchmark delta = %s, want 1", series.Benchmark.Delta)
	}

	// Figures get no benchmark even when one is supplied for a ratio
	assets := findSeries(t, res, string(taxonomy.TotalAssets))
	if assets.Benchmark != nil {
		t.Error("Figure series should carry no benchmark")
	}
}

func TestCompare_SpanTrend(t *testing.T) {
	c := newTestComparator()

	statements := []*statement.BalanceSheet{
		makeStatement(t, "s1", "acme", 2022, map[taxonomy.Concept]string{taxonomy.TotalAssets: "100"}),
		makeStatement(t, "s2", "acme", 2023, map[taxonomy.Concept]string{taxonomy.TotalAssets: "150"}),
		makeStatement(t, "s3", "acme", 2024, map[taxonomy.Concept]string{taxonomy.TotalAssets: "200"}),
	}

	res, err := c.Compare(statements, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	assets := findSeries(t, res, string(taxonomy.TotalAssets))
	if assets.SpanTrend != TrendImproving {
		t.Errorf("SpanTrend = %s, want IMPROVING", assets.SpanTrend)
	}

	// Two periods are too few for a regression over the span
	short, err := c.Compare(statements[:2], nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if s := findSeries(t, short, string(taxonomy.TotalAssets)); s.SpanTrend != "" {
		t.Errorf("SpanTrend = %s, want empty for two periods", s.SpanTrend)
	}
}
