package progression

import (
	"fmt"

	"github.com/phrazzld/medscry/internal/config"
	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/domain/band"
	"github.com/phrazzld/medscry/internal/domain/gate"
	"github.com/phrazzld/medscry/internal/domain/mix"
	"github.com/phrazzld/medscry/internal/domain/recovery"
	"github.com/phrazzld/medscry/internal/domain/srs"
)

// Engine bundles the progression components the service drives.
type Engine struct {
	Scheduler srs.Scheduler
	Band      band.Controller
	Gate      gate.Evaluator
	Recovery  recovery.Monitor
	Mix       mix.Generator

	// StartBand is assigned to learners without a stored profile.
	StartBand domain.Band
}

// NewDefaultEngine builds an engine with every built-in threshold.
func NewDefaultEngine() (*Engine, error) {
	return NewEngine(config.EngineConfig{})
}

// NewEngine builds an engine from configuration. Zero-valued thresholds keep
// the component defaults.
func NewEngine(cfg config.EngineConfig) (*Engine, error) {
	startBand := domain.BandB
	if cfg.StartBand != "" {
		b, err := domain.ParseBand(cfg.StartBand)
		if err != nil {
			return nil, fmt.Errorf("engine start band: %w", err)
		}
		startBand = b
	}

	scheduler, err := srs.NewSchedulerWithParams(srs.NewParams(srs.ParamsConfig{
		MinIntervalDays:    cfg.SRS.MinIntervalDays,
		MaxIntervalDays:    cfg.SRS.MaxIntervalDays,
		GrowthRate:         cfg.SRS.GrowthRate,
		LapseFactor:        cfg.SRS.LapseFactor,
		MinStability:       cfg.SRS.MinStability,
		LeechThreshold:     cfg.SRS.LeechThreshold,
		LeechClearStreak:   cfg.SRS.LeechClearStreak,
		HintPenalty:        cfg.SRS.HintPenalty,
		SlowRatio:          cfg.SRS.SlowRatio,
		CorrectGradeFloor:  cfg.SRS.CorrectGradeFloor,
		DefaultExpectedSec: cfg.SRS.DefaultExpectedSec,
	}))
	if err != nil {
		return nil, fmt.Errorf("srs params: %w", err)
	}

	controller, err := band.NewController(band.NewParams(band.ParamsConfig{
		WindowSize:        cfg.Band.WindowSize,
		PromoteMinSamples: cfg.Band.PromoteMinSamples,
		PromoteAccuracy:   cfg.Band.PromoteAccuracy,
		DemoteMinSamples:  cfg.Band.DemoteMinSamples,
		DemoteAccuracy:    cfg.Band.DemoteAccuracy,
	}))
	if err != nil {
		return nil, fmt.Errorf("band params: %w", err)
	}

	evaluator, err := gate.NewEvaluator(gate.NewParams(gate.ParamsConfig{
		MinCards:          cfg.Gate.MinCards,
		MeanStability:     cfg.Gate.MeanStability,
		StabilityFloor:    cfg.Gate.StabilityFloor,
		MaxCriterionScore: cfg.Gate.MaxCriterionScore,
		PassingScore:      cfg.Gate.PassingScore,
	}))
	if err != nil {
		return nil, fmt.Errorf("gate params: %w", err)
	}

	monitor, err := recovery.NewMonitor(recovery.NewParams(recovery.ParamsConfig{
		HistoryDays:        cfg.Recovery.HistoryDays,
		DifficultAccuracy:  cfg.Recovery.DifficultAccuracy,
		DifficultHintRatio: cfg.Recovery.DifficultHintRatio,
		TriggerDays:        cfg.Recovery.TriggerDays,
		ExitAccuracy:       cfg.Recovery.ExitAccuracy,
	}))
	if err != nil {
		return nil, fmt.Errorf("recovery params: %w", err)
	}

	generator, err := mix.NewGenerator(mix.NewParams(mix.ParamsConfig{
		BudgetMinutes:           cfg.Mix.BudgetMinutes,
		NewSliceMinutes:         cfg.Mix.NewSliceMinutes,
		RecoveryNewSliceMinutes: cfg.Mix.RecoveryNewSliceMinutes,
		InterleaveSliceMinutes:  cfg.Mix.InterleaveSliceMinutes,
		MaxInterleavePerDomain:  cfg.Mix.MaxInterleavePerDomain,
		WeakAccuracy:            cfg.Mix.WeakAccuracy,
		WeakMinItems:            cfg.Mix.WeakMinItems,
		MaxWeakDomains:          cfg.Mix.MaxWeakDomains,
		DominanceMargin:         cfg.Mix.DominanceMargin,
		DefaultItemSeconds:      cfg.Mix.DefaultItemSeconds,
	}))
	if err != nil {
		return nil, fmt.Errorf("mix params: %w", err)
	}

	return &Engine{
		Scheduler: scheduler,
		Band:      controller,
		Gate:      evaluator,
		Recovery:  monitor,
		Mix:       generator,
		StartBand: startBand,
	}, nil
}
