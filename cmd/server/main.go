package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finlens/balance-engine/internal/config"
	"github.com/finlens/balance-engine/internal/database"
	"github.com/finlens/balance-engine/internal/database/repositories"
	"github.com/finlens/balance-engine/internal/events"
	"github.com/finlens/balance-engine/internal/modules/classifier"
	"github.com/finlens/balance-engine/internal/modules/comparison"
	"github.com/finlens/balance-engine/internal/modules/ratios"
	"github.com/finlens/balance-engine/internal/modules/scoring"
	"github.com/finlens/balance-engine/internal/modules/statement"
	"github.com/finlens/balance-engine/internal/modules/taxonomy"
	"github.com/finlens/balance-engine/internal/scheduler"
	"github.com/finlens/balance-engine/internal/server"
	"github.com/finlens/balance-engine/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("Starting Balance Engine")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Load the concept taxonomy
	tax, err := taxonomy.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load taxonomy")
	}

	// Wire the engine
	eventManager := events.NewManager(log)
	statementRepo := repositories.NewStatementRepository(db.Conn(), log)

	cls := classifier.New(tax, cfg.ClassifierThreshold)

	builderCfg := statement.DefaultConfig()
	builderCfg.BalanceTolerancePct = cfg.BalanceTolerancePct
	builderCfg.MinCoverage = cfg.MinCoverage
	builder := statement.NewBuilder(tax, cls, builderCfg, log)

	calculator := ratios.NewCalculator(log)
	altman := scoring.NewAltmanScorer(log)
	piotroski := scoring.NewPiotroskiScorer(log)
	comparator := comparison.NewComparator(calculator, cfg.StableThresholdPct, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	// Register background jobs
	retention := scheduler.NewRetentionJob(statementRepo, eventManager, cfg.RetentionDays, log)
	if err := sched.AddJob(cfg.RetentionSchedule, retention); err != nil {
		log.Fatal().Err(err).Msg("Failed to register retention job")
	}
	healthCheck := scheduler.NewHealthCheckJob(db, log)
	if err := sched.AddJob("0 30 */6 * * *", healthCheck); err != nil {
		log.Fatal().Err(err).Msg("Failed to register health check job")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		Config:     cfg,
		DevMode:    cfg.DevMode,
		Taxonomy:   tax,
		Builder:    builder,
		Calculator: calculator,
		Altman:     altman,
		Piotroski:  piotroski,
		Comparator: comparator,
		Statements: statementRepo,
		Events:     eventManager,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
