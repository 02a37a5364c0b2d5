package statement

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/classifier"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
	"github.com/finlens/balance-engine/pkg/logger"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	tax, err := taxonomy.Load()
	if err != nil {
		t.Fatalf("Failed to load taxonomy: %v", err)
	}
	cls := classifier.New(tax, classifier.DefaultThreshold)
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewBuilder(tax, cls, DefaultConfig(), log)
}

func rawItem(label, value, cell string) domain.RawItem {
	return domain.RawItem{
		Label: label,
		Value: value,
		Source: domain.SourceRef{
			Document: "annual-report.pdf",
			Page:     12,
			Cell:     cell,
		},
	}
}

var periodEnd = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

func TestBuild_BalancedStatement(t *testing.T) {
	b := newTestBuilder(t)

	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Total assets", "1000", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "400", "B14"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if bs.Unbalanced {
		t.Error("Statement should be balanced")
	}
	if bs.ID == "" {
		t.Error("Expected a version id")
	}
	if bs.Confidence < 0.99 {
		t.Errorf("Expected full confidence for exact labels, got %v", bs.Confidence)
	}

	assets, ok := bs.Value(taxonomy.TotalAssets)
	if !ok || !assets.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("TOTAL_ASSETS = %v (present %v), want 1000", assets, ok)
	}
}

func TestBuild_UnbalancedIdentity(t *testing.T) {
	b := newTestBuilder(t)

	// 600 + 350 = 950, 50 off against 1000 with a tolerance of 5
	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Total assets", "1000", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "350", "B14"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !bs.Unbalanced {
		t.Fatal("Statement should be flagged unbalanced")
	}
	if !hasWarning(bs.Warnings, WarnUnbalanced) {
		t.Error("Expected UNBALANCED warning")
	}

	// Items are kept as reported, never adjusted to force balance
	if v, _ := bs.Value(taxonomy.TotalEquity); !v.Equal(decimal.NewFromInt(350)) {
		t.Errorf("TOTAL_EQUITY = %v, want 350 unchanged", v)
	}

	// Confidence takes the unbalanced penalty
	if bs.Confidence > 0.76 {
		t.Errorf("Expected penalized confidence, got %v", bs.Confidence)
	}
}

func TestBuild_WithinTolerance(t *testing.T) {
	b := newTestBuilder(t)

	// 3 off against 1000: inside the 0.5% tolerance
	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Total assets", "1000", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "397", "B14"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if bs.Unbalanced {
		t.Error("Rounding-level difference should not flag the statement")
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	b := newTestBuilder(t)

	raw := []domain.RawItem{
		rawItem("Cash and cash equivalents", "100", "B2"),
		rawItem("Inventories", "50", "B3"),
		rawItem("Total assets", "1000", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "400", "B14"),
	}
	reversed := make([]domain.RawItem, len(raw))
	for i, r := range raw {
		reversed[len(raw)-1-i] = r
	}

	first, err := b.Build("acme", periodEnd, "EUR", raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build("acme", periodEnd, "EUR", reversed)
	if err != nil {
		t.Fatalf("Build of permuted input failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Permuted input produced different versions: %s vs %s", first.ID, second.ID)
	}
	if len(first.Items) != len(second.Items) {
		t.Fatalf("Item counts differ: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i].Concept != second.Items[i].Concept ||
			!first.Items[i].Value.Equal(second.Items[i].Value) {
			t.Errorf("Item %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}
}

func TestBuild_SynthesizesSubtotals(t *testing.T) {
	b := newTestBuilder(t)

	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Cash and cash equivalents", "100", "B2"),
		rawItem("Inventories", "50", "B3"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tca, ok := bs.Item(taxonomy.TotalCurrentAssets)
	if !ok {
		t.Fatal("TOTAL_CURRENT_ASSETS should be synthesized")
	}
	if !tca.Derived {
		t.Error("Synthesized subtotal must be marked derived")
	}
	if !tca.Value.Equal(decimal.NewFromInt(150)) {
		t.Errorf("TOTAL_CURRENT_ASSETS = %v, want 150", tca.Value)
	}

	// Synthesis chains upward through nested subtotals
	ta, ok := bs.Item(taxonomy.TotalAssets)
	if !ok || !ta.Derived || !ta.Value.Equal(decimal.NewFromInt(150)) {
		t.Errorf("TOTAL_ASSETS = %+v (present %v), want derived 150", ta, ok)
	}
}

func TestBuild_SubtotalMismatchWarning(t *testing.T) {
	b := newTestBuilder(t)

	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Cash and cash equivalents", "100", "B2"),
		rawItem("Inventories", "50", "B3"),
		rawItem("Total current assets", "500", "B4"), // children sum to 150
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !hasWarning(bs.Warnings, WarnSubtotalMismatch) {
		t.Error("Expected SUBTOTAL_MISMATCH warning")
	}
	// The reported figure wins over the computed sum
	if v, _ := bs.Value(taxonomy.TotalCurrentAssets); !v.Equal(decimal.NewFromInt(500)) {
		t.Errorf("TOTAL_CURRENT_ASSETS = %v, want reported 500", v)
	}
}

func TestBuild_DuplicateConcept(t *testing.T) {
	b := newTestBuilder(t)

	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Cash", "100", "B2"),
		rawItem("Cash equivalents", "120", "B3"), // weaker match for the same concept
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if v, _ := bs.Value(taxonomy.CashAndEquivalents); !v.Equal(decimal.NewFromInt(100)) {
		t.Errorf("CASH_AND_EQUIVALENTS = %v, want 100 from the higher-confidence item", v)
	}
	if !hasWarning(bs.Warnings, WarnDuplicateConcept) {
		t.Error("Expected DUPLICATE_CONCEPT warning for the discarded item")
	}
}

func TestBuild_InvalidValueWarning(t *testing.T) {
	b := newTestBuilder(t)

	bs, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Total assets", "1,000", "B4"), // thousands separator is not parseable
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "400", "B14"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !hasWarning(bs.Warnings, WarnInvalidValue) {
		t.Error("Expected INVALID_VALUE warning")
	}
	if item, ok := bs.Item(taxonomy.TotalAssets); ok && !item.Derived {
		t.Error("Unparseable item must not produce a reported line item")
	}
}

func TestBuild_LowCoverageRejected(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("acme", periodEnd, "EUR", []domain.RawItem{
		rawItem("Total assets", "100", "B4"),
		rawItem("quarterly widget throughput", "900", "B5"),
	})
	if err == nil {
		t.Fatal("Expected low coverage rejection")
	}

	var lowCov *LowCoverageError
	if !errors.As(err, &lowCov) {
		t.Fatalf("Expected LowCoverageError, got %T: %v", err, err)
	}
	if lowCov.Coverage > 0.11 || lowCov.Coverage < 0.09 {
		t.Errorf("Coverage = %v, want ~0.1", lowCov.Coverage)
	}
}

func TestCorrect_NewVersionLinked(t *testing.T) {
	b := newTestBuilder(t)

	raw := []domain.RawItem{
		rawItem("Total assets", "1000", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "400", "B14"),
	}
	original, err := b.Build("acme", periodEnd, "EUR", raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	fixed := []domain.RawItem{
		rawItem("Total assets", "1010", "B4"),
		rawItem("Total liabilities", "600", "B9"),
		rawItem("Total equity", "410", "B14"),
	}
	corrected, err := b.Correct(original, fixed)
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if corrected.ID == original.ID {
		t.Error("Correction must produce a new version id")
	}
	if corrected.CorrectedFrom != original.ID {
		t.Errorf("CorrectedFrom = %q, want %q", corrected.CorrectedFrom, original.ID)
	}
	if corrected.EntityID != original.EntityID || !corrected.PeriodEnd.Equal(original.PeriodEnd) {
		t.Error("Correction must inherit entity and period from its predecessor")
	}
}

func hasWarning(warnings []Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
