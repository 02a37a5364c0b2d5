package statement

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/classifier"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// Config holds builder tunables
type Config struct {
	// BalanceTolerancePct is the accounting identity tolerance as a
	// fraction of total assets.
	BalanceTolerancePct float64
	// BalanceEpsilon is the absolute tolerance floor. The effective
	// tolerance is max(pct * |total assets|, epsilon).
	BalanceEpsilon decimal.Decimal
	// MinCoverage is the minimum fraction of total extracted value that
	// must classify for a build to succeed.
	MinCoverage float64
	// UnbalancedPenalty multiplies overall confidence when the identity
	// check fails.
	UnbalancedPenalty float64
}

// DefaultConfig returns the standard builder configuration
func DefaultConfig() Config {
	return Config{
		BalanceTolerancePct: 0.005,
		BalanceEpsilon:      decimal.NewFromFloat(0.01),
		MinCoverage:         0.5,
		UnbalancedPenalty:   0.75,
	}
}

// LowCoverageError is returned when too much extracted value failed to
// classify. The build is aborted rather than producing a low quality
// statement silently; retrying requires better raw input.
type LowCoverageError struct {
	Coverage  float64
	Threshold float64
}

func (e *LowCoverageError) Error() string {
	return fmt.Sprintf("classified value covers %.1f%% of extracted value, below the %.1f%% minimum",
		e.Coverage*100, e.Threshold*100)
}

// Builder turns raw extracted items into canonical balance sheets
type Builder struct {
	tax *taxonomy.Taxonomy
	cls *classifier.Classifier
	cfg Config
	log zerolog.Logger
}

// NewBuilder creates a statement builder
func NewBuilder(tax *taxonomy.Taxonomy, cls *classifier.Classifier, cfg Config, log zerolog.Logger) *Builder {
	return &Builder{
		tax: tax,
		cls: cls,
		cfg: cfg,
		log: log.With().Str("component", "builder").Logger(),
	}
}

// Build produces one canonical BalanceSheet from raw extracted items.
// The result is independent of input ordering: duplicates are resolved by
// classifier confidence and a deterministic source tie-break, and all
// output collections are sorted.
func (b *Builder) Build(entityID string, periodEnd time.Time, currency domain.Currency, raw []domain.RawItem) (*BalanceSheet, error) {
	return b.build(entityID, periodEnd, currency, raw, "")
}

// Correct rebuilds a statement from new raw input as a fresh version
// linked to its predecessor. The prior statement is left untouched.
func (b *Builder) Correct(prev *BalanceSheet, raw []domain.RawItem) (*BalanceSheet, error) {
	return b.build(prev.EntityID, prev.PeriodEnd, prev.Currency, raw, prev.ID)
}

type classified struct {
	item  LineItem
	label string
}

func (b *Builder) build(entityID string, periodEnd time.Time, currency domain.Currency, raw []domain.RawItem, correctedFrom string) (*BalanceSheet, error) {
	var (
		warnings      []Warning
		hits          []classified
		classifiedAbs = decimal.Zero
		totalAbs      = decimal.Zero
	)

	for _, r := range raw {
		value, err := decimal.NewFromString(r.Value)
		if err != nil {
			src := r.Source
			warnings = append(warnings, Warning{
				Code:    WarnInvalidValue,
				Message: fmt.Sprintf("unparseable value %q", r.Value),
				Label:   r.Label,
				Source:  &src,
			})
			continue
		}
		totalAbs = totalAbs.Add(value.Abs())

		candidates := b.cls.Classify(r.Label, value)
		if len(candidates) == 0 {
			src := r.Source
			warnings = append(warnings, Warning{
				Code:    WarnClassificationMiss,
				Message: fmt.Sprintf("no concept matched %q", r.Label),
				Label:   r.Label,
				Source:  &src,
			})
			continue
		}

		top := candidates[0]
		classifiedAbs = classifiedAbs.Add(value.Abs())
		hits = append(hits, classified{
			label: r.Label,
			item: LineItem{
				Concept:    top.Concept,
				Value:      value,
				Currency:   currency,
				Confidence: top.Score,
				Source:     r.Source,
			},
		})
	}

	coverage := 1.0
	if totalAbs.IsPositive() {
		coverage, _ = classifiedAbs.Div(totalAbs).Float64()
	}
	if coverage < b.cfg.MinCoverage {
		b.log.Warn().
			Str("entity", entityID).
			Float64("coverage", coverage).
			Msg("Build aborted: low classification coverage")
		return nil, &LowCoverageError{Coverage: coverage, Threshold: b.cfg.MinCoverage}
	}

	items, dupWarnings := dedupe(hits)
	warnings = append(warnings, dupWarnings...)

	items, warnings = b.reconcileSubtotals(items, currency, warnings)

	unbalanced := false
	if w, violated := b.checkIdentity(items); violated {
		unbalanced = true
		warnings = append(warnings, w)
	}

	confidence := weightedConfidence(items)
	if unbalanced {
		confidence *= b.cfg.UnbalancedPenalty
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Concept < items[j].Concept })
	sortWarnings(warnings)

	bs := &BalanceSheet{
		EntityID:      entityID,
		PeriodEnd:     periodEnd,
		Currency:      currency,
		Items:         items,
		Unbalanced:    unbalanced,
		Confidence:    confidence,
		Coverage:      coverage,
		Warnings:      warnings,
		CorrectedFrom: correctedFrom,
		CreatedAt:     time.Now().UTC(),
	}
	bs.ID = versionID(bs)

	b.log.Info().
		Str("entity", entityID).
		Str("statement_id", bs.ID).
		Int("items", len(items)).
		Bool("unbalanced", unbalanced).
		Float64("confidence", confidence).
		Msg("Statement built")

	return bs, nil
}

// dedupe keeps one line item per concept: highest classifier confidence
// wins, with the source reference as a deterministic tie-break so that
// permuted input produces an identical statement.
func dedupe(hits []classified) ([]LineItem, []Warning) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.item.Concept != b.item.Concept {
			return a.item.Concept < b.item.Concept
		}
		if a.item.Confidence != b.item.Confidence {
			return a.item.Confidence > b.item.Confidence
		}
		return sourceKey(a.item.Source) < sourceKey(b.item.Source)
	})

	var (
		items    []LineItem
		warnings []Warning
	)
	for i := 0; i < len(hits); {
		winner := hits[i]
		j := i + 1
		for j < len(hits) && hits[j].item.Concept == winner.item.Concept {
			loser := hits[j]
			src := loser.item.Source
			warnings = append(warnings, Warning{
				Code:    WarnDuplicateConcept,
				Message: fmt.Sprintf("%q discarded: concept already supplied with higher confidence", loser.label),
				Label:   loser.label,
				Concept: loser.item.Concept,
				Source:  &src,
			})
			j++
		}
		items = append(items, winner.item)
		i = j
	}
	return items, warnings
}

func sourceKey(s domain.SourceRef) string {
	return fmt.Sprintf("%s|%06d|%s", s.Document, s.Page, s.Cell)
}

// reconcileSubtotals validates reported subtotals against the sum of their
// present children and synthesizes missing ones. Runs bottom-up so nested
// subtotals (current assets before total assets) chain correctly.
func (b *Builder) reconcileSubtotals(items []LineItem, currency domain.Currency, warnings []Warning) ([]LineItem, []Warning) {
	byConcept := make(map[taxonomy.Concept]int, len(items))
	for i, item := range items {
		byConcept[item.Concept] = i
	}

	for _, subtotal := range b.tax.SubtotalsBottomUp() {
		sum := decimal.Zero
		minConf := 1.0
		childSeen := false
		for _, child := range b.tax.Children(subtotal) {
			idx, ok := byConcept[child]
			if !ok {
				continue
			}
			childSeen = true
			sum = sum.Add(items[idx].Value)
			if items[idx].Confidence < minConf {
				minConf = items[idx].Confidence
			}
		}

		if idx, reported := byConcept[subtotal]; reported {
			if !childSeen {
				continue
			}
			tolerance := b.tolerance(items[idx].Value)
			if items[idx].Value.Sub(sum).Abs().GreaterThan(tolerance) {
				warnings = append(warnings, Warning{
					Code:    WarnSubtotalMismatch,
					Message: fmt.Sprintf("reported %s differs from sum of children %s", items[idx].Value, sum),
					Concept: subtotal,
				})
			}
			continue
		}

		if !childSeen {
			continue
		}
		items = append(items, LineItem{
			Concept:    subtotal,
			Value:      sum,
			Currency:   currency,
			Confidence: minConf,
			Derived:    true,
		})
		byConcept[subtotal] = len(items) - 1
	}

	return items, warnings
}

// checkIdentity validates Assets = Liabilities + Equity. A violation flags
// the statement, it never rejects it.
func (b *Builder) checkIdentity(items []LineItem) (Warning, bool) {
	var assets, liabilities, equity *decimal.Decimal
	for i := range items {
		switch items[i].Concept {
		case taxonomy.TotalAssets:
			assets = &items[i].Value
		case taxonomy.TotalLiabilities:
			liabilities = &items[i].Value
		case taxonomy.TotalEquity:
			equity = &items[i].Value
		}
	}
	if assets == nil || liabilities == nil || equity == nil {
		return Warning{}, false
	}

	diff := assets.Sub(liabilities.Add(*equity)).Abs()
	tolerance := b.tolerance(*assets)
	if diff.LessThanOrEqual(tolerance) {
		return Warning{}, false
	}

	return Warning{
		Code: WarnUnbalanced,
		Message: fmt.Sprintf("assets %s != liabilities %s + equity %s (diff %s exceeds tolerance %s)",
			assets, liabilities, equity, diff, tolerance),
	}, true
}

func (b *Builder) tolerance(reference decimal.Decimal) decimal.Decimal {
	pct := reference.Abs().Mul(decimal.NewFromFloat(b.cfg.BalanceTolerancePct))
	if pct.GreaterThan(b.cfg.BalanceEpsilon) {
		return pct
	}
	return b.cfg.BalanceEpsilon
}

// weightedConfidence averages line item confidences weighted by absolute
// value magnitude. A misclassified large item matters more than a small
// one, so large items dominate the signal. Derived subtotals are excluded:
// their confidence is already a function of their children.
func weightedConfidence(items []LineItem) float64 {
	weightSum := decimal.Zero
	acc := decimal.Zero
	count := 0
	plain := 0.0
	for _, item := range items {
		if item.Derived {
			continue
		}
		count++
		plain += item.Confidence
		weight := item.Value.Abs()
		weightSum = weightSum.Add(weight)
		acc = acc.Add(weight.Mul(decimal.NewFromFloat(item.Confidence)))
	}
	if count == 0 {
		return 0
	}
	if weightSum.IsZero() {
		return plain / float64(count)
	}
	out, _ := acc.Div(weightSum).Float64()
	return out
}

func sortWarnings(warnings []Warning) {
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Code != warnings[j].Code {
			return warnings[i].Code < warnings[j].Code
		}
		if warnings[i].Concept != warnings[j].Concept {
			return warnings[i].Concept < warnings[j].Concept
		}
		return warnings[i].Label < warnings[j].Label
	})
}

// versionID derives a stable id from statement content, so rebuilding the
// same input yields the same version and corrections (which differ at
// least in CorrectedFrom) always yield a new one.
func versionID(bs *BalanceSheet) string {
	var sb []byte
	sb = append(sb, bs.EntityID...)
	sb = append(sb, '|')
	sb = append(sb, bs.PeriodEnd.UTC().Format("2006-01-02")...)
	sb = append(sb, '|')
	sb = append(sb, bs.CorrectedFrom...)
	for _, item := range bs.Items {
		sb = append(sb, '|')
		sb = append(sb, item.Concept...)
		sb = append(sb, '=')
		sb = append(sb, item.Value.String()...)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, sb).String()
}
