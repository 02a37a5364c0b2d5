package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/balance-engine/internal/database"
	"github.com/finlens/balance-engine/internal/database/repositories"
	"github.com/finlens/balance-engine/internal/events"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
	"github.com/finlens/balance-engine/pkg/logger"
)

func newTestStore(t *testing.T) (*database.DB, *repositories.StatementRepository) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "statements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return db, repositories.NewStatementRepository(db.Conn(), log)
}

func storedStatement(id, correctedFrom string, createdAt time.Time) *statement.BalanceSheet {
	return &statement.BalanceSheet{
		ID:        id,
		EntityID:  "acme",
		PeriodEnd: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Currency:  "EUR",
		Items: []statement.LineItem{
			{Concept: taxonomy.TotalAssets, Value: decimal.NewFromInt(1000), Currency: "EUR", Confidence: 1.0},
		},
		Confidence:    1.0,
		Coverage:      1.0,
		CorrectedFrom: correctedFrom,
		CreatedAt:     createdAt,
	}
}

func TestRetentionJob_PrunesOldSupersededVersions(t *testing.T) {
	_, repo := newTestStore(t)
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	ev := events.NewManager(log)

	old := time.Now().UTC().AddDate(0, 0, -120)
	require.NoError(t, repo.Save(storedStatement("v1", "", old)))
	require.NoError(t, repo.Save(storedStatement("v2", "v1", old)))

	job := NewRetentionJob(repo, ev, 90, log)
	assert.Equal(t, "statement_retention", job.Name())
	require.NoError(t, job.Run())

	gone, err := repo.GetByID("v1")
	require.NoError(t, err)
	assert.Nil(t, gone, "superseded version past retention should be pruned")

	kept, err := repo.GetByID("v2")
	require.NoError(t, err)
	assert.NotNil(t, kept, "current version must never be pruned")
}

func TestRetentionJob_KeepsRecentSupersededVersions(t *testing.T) {
	_, repo := newTestStore(t)
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	ev := events.NewManager(log)

	recent := time.Now().UTC().AddDate(0, 0, -10)
	require.NoError(t, repo.Save(storedStatement("v1", "", recent)))
	require.NoError(t, repo.Save(storedStatement("v2", "v1", recent)))

	job := NewRetentionJob(repo, ev, 90, log)
	require.NoError(t, job.Run())

	kept, err := repo.GetByID("v1")
	require.NoError(t, err)
	assert.NotNil(t, kept, "superseded version inside the retention window stays")
}

func TestHealthCheckJob(t *testing.T) {
	db, _ := newTestStore(t)
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	job := NewHealthCheckJob(db, log)
	assert.Equal(t, "health_check", job.Name())
	assert.NoError(t, job.Run())
}
