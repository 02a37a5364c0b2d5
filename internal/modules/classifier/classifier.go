// Package classifier maps raw extracted line item labels onto canonical
// taxonomy concepts using synonym matching over the normalized label.
package classifier

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// DefaultThreshold is the minimum similarity a candidate must reach
const DefaultThreshold = 0.6

// Weights of the two similarity components. Token overlap carries most of
// the signal for financial labels; edit distance catches near-miss
// spellings the token split can't.
const (
	tokenWeight = 0.6
	editWeight  = 0.4
)

// Candidate is one ranked classification result
type Candidate struct {
	Concept taxonomy.Concept `json:"concept"`
	Score   float64          `json:"score"`
}

type synonymEntry struct {
	text   string
	tokens map[string]struct{}
}

// Classifier matches labels against the taxonomy's synonym dictionary.
// It is a pure function of its immutable inputs and safe for concurrent use.
type Classifier struct {
	tax       *taxonomy.Taxonomy
	threshold float64
	synonyms  map[taxonomy.Concept][]synonymEntry
}

// New creates a classifier over the given taxonomy. A non-positive
// threshold falls back to DefaultThreshold.
func New(tax *taxonomy.Taxonomy, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	c := &Classifier{
		tax:       tax,
		threshold: threshold,
		synonyms:  make(map[taxonomy.Concept][]synonymEntry),
	}

	for _, id := range tax.Concepts() {
		def, _ := tax.Get(id)
		entries := make([]synonymEntry, 0, len(def.Synonyms))
		for _, syn := range def.Synonyms {
			norm := NormalizeLabel(tax, syn)
			if norm == "" {
				continue
			}
			entries = append(entries, synonymEntry{text: norm, tokens: tokenSet(norm)})
		}
		c.synonyms[id] = entries
	}

	return c
}

// Classify returns candidate concepts for a raw (label, value) pair, best
// first, or an empty slice when nothing clears the threshold. Candidates
// whose typical sign contradicts the value's sign are excluded entirely:
// a negative amount can only land on a contra or sign-neutral concept.
// Ordering is fully deterministic: score, then sign preference, then
// concept ID.
func (c *Classifier) Classify(label string, value decimal.Decimal) []Candidate {
	norm := NormalizeLabel(c.tax, label)
	if norm == "" {
		return nil
	}
	labelTokens := tokenSet(norm)

	type scored struct {
		Candidate
		signExact bool
	}

	var results []scored
	for _, id := range c.tax.Concepts() {
		def, _ := c.tax.Get(id)
		if value.IsNegative() && def.Sign == taxonomy.SignPositive {
			continue
		}

		best := 0.0
		for _, syn := range c.synonyms[id] {
			s := tokenWeight*jaccard(labelTokens, syn.tokens) + editWeight*editSimilarity(norm, syn.text)
			if s > best {
				best = s
			}
		}
		if best < c.threshold {
			continue
		}

		results = append(results, scored{
			Candidate: Candidate{Concept: id, Score: best},
			signExact: signMatches(def.Sign, value),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].signExact != results[j].signExact {
			return results[i].signExact
		}
		return results[i].Concept < results[j].Concept
	})

	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = r.Candidate
	}
	return out
}

// Threshold returns the active similarity threshold
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

func signMatches(sign taxonomy.Sign, value decimal.Decimal) bool {
	switch sign {
	case taxonomy.SignPositive:
		return !value.IsNegative()
	case taxonomy.SignNegative:
		return value.IsNegative()
	default:
		return true
	}
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard computes token set overlap in [0,1]
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// editSimilarity converts Levenshtein distance to a [0,1] similarity
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
