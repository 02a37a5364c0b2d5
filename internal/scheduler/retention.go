package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/finlens/balance-engine/internal/database/repositories"
	"github.com/finlens/balance-engine/internal/events"
)

// RetentionJob prunes superseded statement versions past the retention
// window. Current versions are never touched; only rows already replaced
// by a correction are eligible.
type RetentionJob struct {
	repo          *repositories.StatementRepository
	events        *events.Manager
	retentionDays int
	log           zerolog.Logger
}

// NewRetentionJob creates the retention job
func NewRetentionJob(repo *repositories.StatementRepository, ev *events.Manager, retentionDays int, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		repo:          repo,
		events:        ev,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "statement_retention").Logger(),
	}
}

// Name implements Job
func (j *RetentionJob) Name() string {
	return "statement_retention"
}

// Run implements Job
func (j *RetentionJob) Run() error {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	pruned, err := j.repo.PruneSuperseded(cutoff)
	if err != nil {
		return err
	}

	if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("Pruned superseded statements")
		j.events.Emit(events.RetentionPruned, "scheduler", map[string]interface{}{
			"pruned": pruned,
			"cutoff": cutoff,
		})
	}
	return nil
}
