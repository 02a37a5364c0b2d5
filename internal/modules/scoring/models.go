// Package scoring composes ratios and raw figures into composite health
// scores. Every score has an explicit required-inputs contract: if any
// input is undefined the score is undefined, never partially computed with
// zeros substituted, since that would silently bias the result.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// Band is one classification interval. A value falls into the band when it
// clears Floor (exclusive when Exclusive is set); a nil Floor matches
// everything. Bands are plain data so the thresholds are independently
// testable.
type Band struct {
	Name      string           `json:"name"`
	Floor     *decimal.Decimal `json:"floor,omitempty"`
	Exclusive bool             `json:"exclusive,omitempty"`
}

// Bands is an ordered set of classification bands, highest floor first
type Bands []Band

// Classify returns the name of the band the value falls into
func (bands Bands) Classify(v decimal.Decimal) string {
	for _, band := range bands {
		if band.Floor == nil {
			return band.Name
		}
		if band.Exclusive {
			if v.GreaterThan(*band.Floor) {
				return band.Name
			}
		} else if v.GreaterThanOrEqual(*band.Floor) {
			return band.Name
		}
	}
	return ""
}

// Component is one constituent figure of a composite score
type Component struct {
	Name  string       `json:"name"`
	Value domain.Value `json:"value"`
}

// Result is a computed score with its classification band and the
// components that produced it
type Result struct {
	ScoreID      string             `json:"score_id"`
	Value        domain.Value       `json:"value"`
	Band         string             `json:"band,omitempty"`
	Components   []Component        `json:"components,omitempty"`
	StatementIDs []string           `json:"statement_ids"`
	Missing      []taxonomy.Concept `json:"missing,omitempty"`
}
