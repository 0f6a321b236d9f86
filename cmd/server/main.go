package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/helixtrade/curator/internal/config"
	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/events"
	"github.com/helixtrade/curator/internal/modules/allocation"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
	"github.com/helixtrade/curator/internal/modules/curation"
	"github.com/helixtrade/curator/internal/modules/curation/curators"
	"github.com/helixtrade/curator/internal/modules/feedback"
	"github.com/helixtrade/curator/internal/modules/lessons"
	"github.com/helixtrade/curator/internal/modules/mining"
	"github.com/helixtrade/curator/internal/modules/portfolio"
	"github.com/helixtrade/curator/internal/modules/risk"
	"github.com/helixtrade/curator/internal/scheduler"
	"github.com/helixtrade/curator/internal/server"
	"github.com/helixtrade/curator/pkg/logger"
)

func main() {
	// Load configuration first so the log level is honored from the start
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting curator service")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	metricsRepo := asymmetry.NewMetricsRepository(db, log)
	if err := initSchemas(db, metricsRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	eventMgr := events.NewManager(log)

	// Portfolio state and evaluation context
	positionRepo := portfolio.NewPositionRepository(db, log)
	historyRepo := portfolio.NewHistoryRepository(db, log)
	portfolioSvc := portfolio.NewService(positionRepo, historyRepo, metricsRepo, log)

	// Pattern mining
	eventRepo := mining.NewEventRepository(db, log)
	braidRepo := mining.NewBraidRepository(db, log)
	miningSvc := mining.NewService(db, eventRepo, braidRepo, mining.DefaultEdgeParams(), eventMgr, log)

	// Lesson lifecycle
	lessonRepo := lessons.NewRepository(db, log)
	lessonStore := lessons.NewStore(lessonRepo, log)
	lessonSvc := lessons.NewService(miningSvc, lessonRepo, lessonStore, lessons.Config{
		MinSampleSize:         int64(cfg.MinSampleSize),
		SignificanceThreshold: cfg.SignificanceThreshold,
		ActivityFloor:         cfg.ActivityFloor,
		LeverMin:              cfg.LeverMin,
		LeverMax:              cfg.LeverMax,
		CorrelationThreshold:  cfg.CorrelationThreshold,
		MinCorrelationOverlap: lessons.DefaultConfig().MinCorrelationOverlap,
	}, eventMgr, log)
	if err := lessonStore.Refresh(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load active lessons")
	}

	// Feedback bridge: lessons in, outcomes out
	bridge := feedback.NewBridge(lessonStore, miningSvc, cfg.LeverMin, cfg.LeverMax, log)

	// Sub-engines
	riskEngine := risk.NewEngine(risk.Limits{
		VaRConfidence:      cfg.VaRConfidence,
		VaRLimit:           cfg.VaRLimit,
		CVaRLimit:          cfg.CVaRLimit,
		DrawdownLimit:      cfg.DrawdownLimit,
		ConcentrationLimit: cfg.ConcentrationLimit,
	}, log)
	allocEngine := allocation.NewEngine(allocation.DefaultConstraints(), log)
	asymEngine := asymmetry.NewEngine(cfg.AsymmetryMaxScaling, log)

	// Curator panel
	registry := curation.NewRegistry()
	registry.Register(curators.NewTimingCurator(), 1.0)
	registry.Register(curators.NewCostCurator(), 0.8)
	registry.Register(curators.NewComplianceCurator(cfg.RestrictedSymbols, cfg.NoShortSymbols, cfg.RequireStops), 1.0)

	restricted := make(map[string]bool, len(cfg.RestrictedSymbols))
	for _, sym := range cfg.RestrictedSymbols {
		restricted[strings.ToUpper(sym)] = true
	}

	orchestrator := curation.NewOrchestrator(registry, riskEngine, allocEngine, asymEngine, curation.Config{
		MaxPositionSize:    cfg.MaxPositionSize,
		ApproveThreshold:   cfg.ApproveThreshold,
		ModifyThreshold:    cfg.ModifyThreshold,
		RiskAdjustWeight:   cfg.RiskAdjustWeight,
		AllocAdjustWeight:  cfg.AllocAdjustWeight,
		ImpactAdjustWeight: cfg.ImpactAdjustWeight,
		AsymmetryAdjustCap: cfg.AsymmetryAdjustCap,
		CuratorTimeout:     cfg.CuratorTimeout,
		DecisionValidity:   cfg.DecisionValidity,
		Tradeable: func(symbol string) bool {
			return !restricted[strings.ToUpper(symbol)]
		},
	}, eventMgr, log)
	decisionRepo := curation.NewDecisionRepository(db, log)

	// Scheduler and background jobs
	sched := scheduler.New(log)
	synthesisJob := scheduler.NewSynthesisJob(lessonSvc)
	decayJob := scheduler.NewDecayJob(lessonSvc)
	latentJob := scheduler.NewLatentJob(lessonSvc)
	if err := registerJobs(sched, cfg, synthesisJob, decayJob, latentJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	systemHandlers := server.NewSystemHandlers(log, db, sched)
	systemHandlers.RegisterJob(synthesisJob)
	systemHandlers.RegisterJob(decayJob)
	systemHandlers.RegisterJob(latentJob)

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		Config:  cfg,
		DevMode: cfg.DevMode,
		Handlers: server.Handlers{
			Curation:  curation.NewHandlers(orchestrator, decisionRepo, portfolioSvc, bridge, eventMgr, log),
			Portfolio: portfolio.NewHandlers(portfolioSvc, positionRepo, historyRepo, log),
			Mining:    mining.NewHandlers(miningSvc, log),
			Lessons:   lessons.NewHandlers(lessonStore, lessonRepo, log),
			Feedback:  feedback.NewHandlers(bridge, log),
			Asymmetry: asymmetry.NewHandlers(metricsRepo, log),
			System:    systemHandlers,
		},
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func initSchemas(db *database.DB, metricsRepo *asymmetry.MetricsRepository) error {
	conn := db.Conn()
	if err := portfolio.InitSchema(conn); err != nil {
		return err
	}
	if err := curation.InitSchema(conn); err != nil {
		return err
	}
	if err := mining.InitSchema(conn); err != nil {
		return err
	}
	if err := lessons.InitSchema(conn); err != nil {
		return err
	}
	return metricsRepo.InitSchema()
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, synthesis, decay, latent scheduler.Job) error {
	if err := sched.AddJob(cfg.SynthesisSchedule, synthesis); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.DecaySchedule, decay); err != nil {
		return err
	}
	return sched.AddJob(cfg.LatentSchedule, latent)
}
