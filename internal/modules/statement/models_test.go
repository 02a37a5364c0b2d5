package statement

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

func TestBalanceSheet_JSONRoundTrip(t *testing.T) {
	src := domain.SourceRef{Document: "fy2025.pdf", Page: 3, Cell: "B4"}
	original := &BalanceSheet{
		ID:        "v1",
		EntityID:  "acme",
		PeriodEnd: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Currency:  "EUR",
		Items: []LineItem{
			{
				Concept:    taxonomy.TotalAssets,
				Value:      decimal.RequireFromString("1000.50"),
				Currency:   "EUR",
				Confidence: 0.93,
				Source:     src,
			},
			{
				Concept:    taxonomy.TotalCurrentAssets,
				Value:      decimal.RequireFromString("400.25"),
				Currency:   "EUR",
				Confidence: 0.93,
				Derived:    true,
			},
		},
		Unbalanced: true,
		Confidence: 0.7,
		Coverage:   0.95,
		Warnings: []Warning{
			{Code: WarnUnbalanced, Message: "assets do not equal liabilities plus equity"},
			{Code: WarnClassificationMiss, Message: "no concept matched", Label: "misc", Source: &src},
		},
		CorrectedFrom: "v0",
		CreatedAt:     time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back BalanceSheet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	opts := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(original, &back, opts); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBalanceSheet_ItemLookup(t *testing.T) {
	bs := &BalanceSheet{
		Items: []LineItem{
			{Concept: taxonomy.TotalAssets, Value: decimal.NewFromInt(1000)},
		},
	}

	if v, ok := bs.Value(taxonomy.TotalAssets); !ok || !v.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Value(TOTAL_ASSETS) = %v, %v", v, ok)
	}
	if _, ok := bs.Value(taxonomy.TotalEquity); ok {
		t.Error("Absent concept must report not present, not zero")
	}
}
