package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/events"
	"github.com/finlens/balance-engine/internal/modules/comparison"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// buildRequest is the payload for POST /api/statements and for
// POST /api/statements/{id}/corrections (the latter ignores the header
// fields and inherits them from the corrected statement).
type buildRequest struct {
	EntityID  string           `json:"entity_id"`
	PeriodEnd string           `json:"period_end"` // YYYY-MM-DD
	Currency  string           `json:"currency"`
	Items     []domain.RawItem `json:"items"`
}

// handleBuildStatement builds and persists a new statement version
func (s *Server) handleBuildStatement(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EntityID == "" || len(req.Items) == 0 {
		s.writeError(w, http.StatusBadRequest, "entity_id and items are required")
		return
	}
	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
		return
	}

	bs, err := s.builder.Build(req.EntityID, periodEnd, domain.Currency(req.Currency), req.Items)
	if err != nil {
		s.handleBuildError(w, err, req.EntityID)
		return
	}

	if err := s.statements.Save(bs); err != nil {
		s.log.Error().Err(err).Msg("Failed to save statement")
		s.writeError(w, http.StatusInternalServerError, "failed to save statement")
		return
	}

	s.events.Emit(events.StatementBuilt, "server", map[string]interface{}{
		"statement_id": bs.ID,
		"entity_id":    bs.EntityID,
	})
	if bs.Unbalanced {
		s.events.Emit(events.StatementUnbalanced, "server", map[string]interface{}{
			"statement_id": bs.ID,
			"entity_id":    bs.EntityID,
		})
	}

	s.writeJSON(w, http.StatusCreated, bs)
}

// handleCorrectStatement rebuilds a statement from new raw input as a new
// version. The predecessor is kept and marked superseded.
func (s *Server) handleCorrectStatement(w http.ResponseWriter, r *http.Request) {
	prev, ok := s.lookupStatement(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		s.writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	bs, err := s.builder.Correct(prev, req.Items)
	if err != nil {
		s.handleBuildError(w, err, prev.EntityID)
		return
	}

	if err := s.statements.Save(bs); err != nil {
		s.log.Error().Err(err).Msg("Failed to save corrected statement")
		s.writeError(w, http.StatusInternalServerError, "failed to save statement")
		return
	}

	s.events.Emit(events.StatementCorrected, "server", map[string]interface{}{
		"statement_id":   bs.ID,
		"corrected_from": prev.ID,
		"entity_id":      bs.EntityID,
	})

	s.writeJSON(w, http.StatusCreated, bs)
}

func (s *Server) handleBuildError(w http.ResponseWriter, err error, entityID string) {
	var lowCov *statement.LowCoverageError
	if errors.As(err, &lowCov) {
		s.events.Emit(events.LowCoverageRejected, "server", map[string]interface{}{
			"entity_id": entityID,
			"coverage":  lowCov.Coverage,
		})
		s.writeError(w, http.StatusUnprocessableEntity, lowCov.Error())
		return
	}
	s.log.Error().Err(err).Msg("Statement build failed")
	s.writeError(w, http.StatusInternalServerError, "statement build failed")
}

// handleGetStatement returns one statement version by id
func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.lookupStatement(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, bs)
}

// handleListStatements returns an entity's current statement versions
// ordered by period end
func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	list, err := s.statements.ListByEntity(entityID)
	if err != nil {
		s.log.Error().Err(err).Str("entity", entityID).Msg("Failed to list statements")
		s.writeError(w, http.StatusInternalServerError, "failed to list statements")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity_id":  entityID,
		"statements": list,
		"count":      len(list),
	})
}

// handleRatios computes the full ratio catalog for a statement. The prior
// statement for two-period ratios is resolved automatically from the
// entity's history; ?prior=<id> overrides the lookup.
func (s *Server) handleRatios(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.lookupStatement(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	prior, ok := s.resolvePrior(w, r, bs)
	if !ok {
		return
	}

	results := s.calculator.All(bs, prior)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": bs.ID,
		"ratios":       results,
	})
}

// handleScores computes the Altman Z and Piotroski F scores for a
// statement. Prior resolution follows the same rules as handleRatios.
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.lookupStatement(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	prior, ok := s.resolvePrior(w, r, bs)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": bs.ID,
		"scores": map[string]interface{}{
			"altman_z":    s.altman.Calculate(bs),
			"piotroski_f": s.piotroski.Calculate(bs, prior),
		},
	})
}

// compareRequest is the payload for POST /api/compare
type compareRequest struct {
	StatementIDs []string          `json:"statement_ids"`
	Benchmarks   map[string]string `json:"benchmarks,omitempty"` // ratio id -> decimal string
}

// handleCompare runs a multi-period comparison over explicit statement
// versions. Contract violations (mixed entities, unordered periods, fewer
// than two statements) are client errors.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stmts := make([]*statement.BalanceSheet, 0, len(req.StatementIDs))
	for _, id := range req.StatementIDs {
		bs, ok := s.lookupStatement(w, id)
		if !ok {
			return
		}
		stmts = append(stmts, bs)
	}

	benchmarks := make(map[string]decimal.Decimal, len(req.Benchmarks))
	for ratioID, raw := range req.Benchmarks {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid benchmark value for "+ratioID)
			return
		}
		benchmarks[ratioID] = value
	}

	result, err := s.comparator.Compare(stmts, benchmarks)
	if err != nil {
		if errors.Is(err, comparison.ErrTooFewStatements) ||
			errors.Is(err, comparison.ErrEntityMismatch) ||
			errors.Is(err, comparison.ErrUnorderedPeriods) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("Comparison failed")
		s.writeError(w, http.StatusInternalServerError, "comparison failed")
		return
	}

	s.events.Emit(events.ComparisonComputed, "server", map[string]interface{}{
		"entity_id":  result.EntityID,
		"statements": len(result.StatementIDs),
	})

	s.writeJSON(w, http.StatusOK, result)
}

// handleTaxonomyConcepts returns the canonical concept tree
func (s *Server) handleTaxonomyConcepts(w http.ResponseWriter, r *http.Request) {
	type conceptView struct {
		ID          taxonomy.Concept   `json:"id"`
		DisplayName string             `json:"display_name"`
		Category    taxonomy.Category  `json:"category"`
		Group       string             `json:"group,omitempty"`
		Parent      taxonomy.Concept   `json:"parent,omitempty"`
		Sign        taxonomy.Sign      `json:"sign"`
		Synonyms    []string           `json:"synonyms"`
		Children    []taxonomy.Concept `json:"children,omitempty"`
	}

	concepts := s.taxonomy.Concepts()
	out := make([]conceptView, 0, len(concepts))
	for _, c := range concepts {
		def, _ := s.taxonomy.Get(c)
		out = append(out, conceptView{
			ID:          def.ID,
			DisplayName: def.DisplayName(),
			Category:    def.Category,
			Group:       def.Group,
			Parent:      def.Parent,
			Sign:        def.Sign,
			Synonyms:    def.Synonyms,
			Children:    s.taxonomy.Children(c),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"concepts": out,
		"count":    len(out),
	})
}

// lookupStatement fetches a statement by id and writes the error response
// itself when missing or on failure
func (s *Server) lookupStatement(w http.ResponseWriter, id string) (*statement.BalanceSheet, bool) {
	bs, err := s.statements.GetByID(id)
	if err != nil {
		s.log.Error().Err(err).Str("statement_id", id).Msg("Failed to load statement")
		s.writeError(w, http.StatusInternalServerError, "failed to load statement")
		return nil, false
	}
	if bs == nil {
		s.writeError(w, http.StatusNotFound, "statement not found: "+id)
		return nil, false
	}
	return bs, true
}

// resolvePrior finds the statement immediately preceding bs in the
// entity's history, or honors an explicit ?prior=<id> override. A missing
// prior is not an error; two-period calculations degrade explicitly.
func (s *Server) resolvePrior(w http.ResponseWriter, r *http.Request, bs *statement.BalanceSheet) (*statement.BalanceSheet, bool) {
	if override := r.URL.Query().Get("prior"); override != "" {
		prior, ok := s.lookupStatement(w, override)
		if !ok {
			return nil, false
		}
		if prior.EntityID != bs.EntityID {
			s.writeError(w, http.StatusBadRequest, "prior statement belongs to a different entity")
			return nil, false
		}
		return prior, true
	}

	history, err := s.statements.ListByEntity(bs.EntityID)
	if err != nil {
		s.log.Error().Err(err).Str("entity", bs.EntityID).Msg("Failed to load statement history")
		s.writeError(w, http.StatusInternalServerError, "failed to load statement history")
		return nil, false
	}

	var prior *statement.BalanceSheet
	for _, candidate := range history {
		if candidate.ID == bs.ID {
			continue
		}
		if candidate.PeriodEnd.Before(bs.PeriodEnd) {
			prior = candidate // history is ordered, the last match is the closest
		}
	}
	return prior, true
}
