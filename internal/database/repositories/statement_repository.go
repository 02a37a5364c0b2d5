package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/finlens/balance-engine/internal/domain"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
)

// StatementRepository persists immutable balance sheet versions. Line
// items and warnings travel as msgpack blobs with decimals encoded as
// strings, so no precision is lost in storage.
type StatementRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatementRepository creates a new statement repository
func NewStatementRepository(db *sql.DB, log zerolog.Logger) *StatementRepository {
	return &StatementRepository{
		db:  db,
		log: log.With().Str("repo", "statement").Logger(),
	}
}

type storedSource struct {
	Document string `msgpack:"document"`
	Page     int    `msgpack:"page"`
	Cell     string `msgpack:"cell"`
}

type storedItem struct {
	Concept    string       `msgpack:"concept"`
	Value      string       `msgpack:"value"`
	Currency   string       `msgpack:"currency"`
	Confidence float64      `msgpack:"confidence"`
	Source     storedSource `msgpack:"source"`
	Derived    bool         `msgpack:"derived"`
}

type storedWarning struct {
	Code    string        `msgpack:"code"`
	Message string        `msgpack:"message"`
	Label   string        `msgpack:"label"`
	Concept string        `msgpack:"concept"`
	Source  *storedSource `msgpack:"source"`
}

// Save inserts a statement version. Versions are append-only; saving an
// existing id is an error.
func (r *StatementRepository) Save(bs *statement.BalanceSheet) error {
	items, err := encodeItems(bs.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	warnings, err := encodeWarnings(bs.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	query := `INSERT INTO statements
		(id, entity_id, period_end, currency, unbalanced, confidence, coverage, corrected_from, superseded_by, items, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`

	_, err = r.db.Exec(query,
		bs.ID,
		bs.EntityID,
		bs.PeriodEnd.UTC().Format(time.RFC3339),
		string(bs.Currency),
		boolToInt(bs.Unbalanced),
		bs.Confidence,
		bs.Coverage,
		nullable(bs.CorrectedFrom),
		items,
		warnings,
		bs.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}

	// A correction supersedes its predecessor
	if bs.CorrectedFrom != "" {
		if err := r.MarkSuperseded(bs.CorrectedFrom, bs.ID); err != nil {
			return err
		}
	}

	r.log.Debug().Str("statement_id", bs.ID).Str("entity", bs.EntityID).Msg("Statement saved")
	return nil
}

// GetByID returns a statement version by id, or nil when not found
func (r *StatementRepository) GetByID(id string) (*statement.BalanceSheet, error) {
	query := `SELECT id, entity_id, period_end, currency, unbalanced, confidence, coverage, corrected_from, items, warnings, created_at
		FROM statements WHERE id = ?`

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query statement by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // Statement not found
	}

	bs, err := r.scanStatement(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan statement: %w", err)
	}
	return bs, nil
}

// ListByEntity returns an entity's current (non superseded) statement
// versions ordered by period end, oldest first, the order the comparator
// expects.
func (r *StatementRepository) ListByEntity(entityID string) ([]*statement.BalanceSheet, error) {
	query := `SELECT id, entity_id, period_end, currency, unbalanced, confidence, coverage, corrected_from, items, warnings, created_at
		FROM statements WHERE entity_id = ? AND superseded_by IS NULL ORDER BY period_end ASC`

	rows, err := r.db.Query(query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements by entity: %w", err)
	}
	defer rows.Close()

	var out []*statement.BalanceSheet
	for rows.Next() {
		bs, err := r.scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		out = append(out, bs)
	}
	return out, rows.Err()
}

// MarkSuperseded records that newID replaces oldID
func (r *StatementRepository) MarkSuperseded(oldID, newID string) error {
	if _, err := r.db.Exec("UPDATE statements SET superseded_by = ? WHERE id = ?", newID, oldID); err != nil {
		return fmt.Errorf("failed to mark statement superseded: %w", err)
	}
	return nil
}

// PruneSuperseded deletes superseded versions created before the cutoff
// and returns the number of rows removed.
func (r *StatementRepository) PruneSuperseded(before time.Time) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM statements WHERE superseded_by IS NOT NULL AND created_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune superseded statements: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (r *StatementRepository) scanStatement(rows *sql.Rows) (*statement.BalanceSheet, error) {
	var (
		bs            statement.BalanceSheet
		periodEnd     string
		currency      string
		unbalanced    int
		correctedFrom sql.NullString
		itemsBlob     []byte
		warningsBlob  []byte
		createdAt     string
	)

	if err := rows.Scan(&bs.ID, &bs.EntityID, &periodEnd, &currency, &unbalanced,
		&bs.Confidence, &bs.Coverage, &correctedFrom, &itemsBlob, &warningsBlob, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if bs.PeriodEnd, err = time.Parse(time.RFC3339, periodEnd); err != nil {
		return nil, fmt.Errorf("invalid period_end %q: %w", periodEnd, err)
	}
	if bs.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	bs.Currency = domain.Currency(currency)
	bs.Unbalanced = unbalanced != 0
	bs.CorrectedFrom = correctedFrom.String

	if bs.Items, err = decodeItems(itemsBlob); err != nil {
		return nil, err
	}
	if bs.Warnings, err = decodeWarnings(warningsBlob); err != nil {
		return nil, err
	}
	return &bs, nil
}

func encodeItems(items []statement.LineItem) ([]byte, error) {
	stored := make([]storedItem, len(items))
	for i, item := range items {
		stored[i] = storedItem{
			Concept:    string(item.Concept),
			Value:      item.Value.String(),
			Currency:   string(item.Currency),
			Confidence: item.Confidence,
			Source:     storedSource{Document: item.Source.Document, Page: item.Source.Page, Cell: item.Source.Cell},
			Derived:    item.Derived,
		}
	}
	return msgpack.Marshal(stored)
}

func decodeItems(blob []byte) ([]statement.LineItem, error) {
	var stored []storedItem
	if err := msgpack.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	items := make([]statement.LineItem, len(stored))
	for i, s := range stored {
		value, err := decimal.NewFromString(s.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid stored decimal %q: %w", s.Value, err)
		}
		items[i] = statement.LineItem{
			Concept:    taxonomy.Concept(s.Concept),
			Value:      value,
			Currency:   domain.Currency(s.Currency),
			Confidence: s.Confidence,
			Source:     domain.SourceRef{Document: s.Source.Document, Page: s.Source.Page, Cell: s.Source.Cell},
			Derived:    s.Derived,
		}
	}
	return items, nil
}

func encodeWarnings(warnings []statement.Warning) ([]byte, error) {
	if len(warnings) == 0 {
		return nil, nil
	}
	stored := make([]storedWarning, len(warnings))
	for i, w := range warnings {
		sw := storedWarning{Code: w.Code, Message: w.Message, Label: w.Label, Concept: string(w.Concept)}
		if w.Source != nil {
			sw.Source = &storedSource{Document: w.Source.Document, Page: w.Source.Page, Cell: w.Source.Cell}
		}
		stored[i] = sw
	}
	return msgpack.Marshal(stored)
}

func decodeWarnings(blob []byte) ([]statement.Warning, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var stored []storedWarning
	if err := msgpack.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode warnings: %w", err)
	}
	warnings := make([]statement.Warning, len(stored))
	for i, s := range stored {
		w := statement.Warning{Code: s.Code, Message: s.Message, Label: s.Label, Concept: taxonomy.Concept(s.Concept)}
		if s.Source != nil {
			w.Source = &domain.SourceRef{Document: s.Source.Document, Page: s.Source.Page, Cell: s.Source.Cell}
		}
		warnings[i] = w
	}
	return warnings, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
