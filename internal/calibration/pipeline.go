package calibration

import (
	"context"
	"log/slog"
	"sync"

	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

// OnlineModel is the optional feedback-trained calibrator slot.
type OnlineModel interface {
	Calibrate(p float64) (float64, error)
	Observe(sample models.CalibrationSample) error
}

// UncertaintyQuantifier is the optional distribution-summary slot.
type UncertaintyQuantifier interface {
	Estimate(p float64, samples []models.CalibrationSample) (models.ConfidenceEstimate, error)
}

// Options toggles pipeline stages. A disabled stage is skipped entirely.
type Options struct {
	Statistical    bool
	Online         bool
	Ensemble       bool
	Uncertainty    bool
	BlueprintBoost bool
	MinFitSamples  int
	OnlineMinBatch int
	LearningRate   float64
	EnsembleBlend  float64
	BaseBoost      float64
	MaxBoost       float64
}

// Input is one confidence computation.
type Input struct {
	Base            float64
	Components      map[string]float64
	Blueprint       *models.BlueprintMatch
	WantUncertainty bool
}

// Output is the calibrated confidence with an optional distribution summary.
// Stages must travel with the issued suggestion so feedback trains each stage
// on the value it mapped.
type Output struct {
	Confidence float64
	Estimate   *models.ConfidenceEstimate
	Stages     models.StageInputs
}

// Pipeline turns base confidences into calibrated ones and learns from feedback.
type Pipeline struct {
	store       *Store
	statistical *Isotonic
	online      OnlineModel
	ensemble    *EnsembleQualityScorer
	uncertainty UncertaintyQuantifier
	persister   Persister
	opts        Options

	feedbackMu sync.Mutex
	logger     *slog.Logger
}

// NewPipeline builds the stages enabled in opts around store. persister may be nil.
func NewPipeline(logger *slog.Logger, store *Store, persister Persister, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewStore(0, 0)
	}
	if opts.EnsembleBlend <= 0 || opts.EnsembleBlend > 1 {
		opts.EnsembleBlend = 0.3
	}
	if opts.BaseBoost <= 0 {
		opts.BaseBoost = 0.1
	}
	if opts.MaxBoost < opts.BaseBoost {
		opts.MaxBoost = 0.3
	}
	p := &Pipeline{store: store, persister: persister, opts: opts, logger: logger}
	if opts.Statistical {
		p.statistical = NewIsotonic(opts.MinFitSamples)
	}
	if opts.Online {
		p.online = NewOnlineCalibrator(opts.OnlineMinBatch, opts.LearningRate)
	}
	if opts.Ensemble {
		p.ensemble = NewEnsembleQualityScorer(store)
	}
	if opts.Uncertainty {
		p.uncertainty = BetaUncertainty{}
	}
	return p
}

// WithOnlineModel replaces the online calibrator slot; nil disables it.
func (p *Pipeline) WithOnlineModel(m OnlineModel) *Pipeline {
	p.online = m
	return p
}

// WithUncertainty replaces the uncertainty slot; nil disables it.
func (p *Pipeline) WithUncertainty(u UncertaintyQuantifier) *Pipeline {
	p.uncertainty = u
	return p
}

// Store exposes the owned calibration state.
func (p *Pipeline) Store() *Store {
	return p.store
}

// Calibrate runs the enabled stages in order. Each stage that fails keeps the value
// of the stage before it.
func (p *Pipeline) Calibrate(in Input) Output {
	c := clamp(in.Base, 0, 1)
	stages := models.StageInputs{Statistical: c}

	if p.statistical != nil {
		c = clamp(p.statistical.Calibrate(c), 0, 1)
	}
	stages.Online = c

	if p.online != nil {
		if v, err := p.online.Calibrate(c); err != nil {
			p.logger.Debug("online calibrator failed", slog.Any("error", err))
		} else {
			c = clamp(v, 0, 1)
		}
	}

	if p.ensemble != nil && len(in.Components) > 0 {
		if q, ok := p.ensemble.Score(in.Components); ok {
			c = clamp((1-p.opts.EnsembleBlend)*c+p.opts.EnsembleBlend*q, 0, 1)
		}
	}

	if p.opts.BlueprintBoost && in.Blueprint != nil {
		c = Boost(c, *in.Blueprint, p.opts.BaseBoost, p.opts.MaxBoost)
	}

	out := Output{Confidence: c, Stages: stages}
	if in.WantUncertainty && p.uncertainty != nil {
		est, err := p.uncertainty.Estimate(c, p.store.Samples())
		if err != nil {
			p.logger.Debug("uncertainty estimate failed", slog.Any("error", err))
		} else {
			out.Estimate = &est
		}
	}
	return out
}

// RecordFeedback appends a sample and updates every learning stage. Calls are
// serialised so the error windows never lose updates. Persistence failures are
// logged and do not reject the feedback.
func (p *Pipeline) RecordFeedback(ctx context.Context, sample models.CalibrationSample, components map[string]float64) int {
	p.feedbackMu.Lock()
	defer p.feedbackMu.Unlock()

	size := p.store.Append(sample)
	if p.persister != nil {
		if err := p.persister.SaveSample(ctx, sample); err != nil {
			metrics.UpstreamFailure("calibration_store")
			p.logger.Warn("persist calibration sample failed", slog.Any("error", err))
		}
	}

	if p.statistical != nil {
		p.statistical.Fit(p.store.Samples())
	}
	if p.online != nil {
		if err := p.online.Observe(sample); err != nil {
			p.logger.Warn("online calibrator update failed", slog.Any("error", err))
		}
	}
	if p.ensemble != nil && len(components) > 0 {
		metrics.SetCalibrationWeights(p.ensemble.Update(components, sample.Outcome))
	}
	metrics.ObserveFeedback(sample.Outcome)
	return size
}

// Restore reloads the sample log from the persister and refits the statistical stage.
func (p *Pipeline) Restore(ctx context.Context, limit int) error {
	if p.persister == nil {
		return nil
	}
	samples, err := p.persister.LoadSamples(ctx, limit)
	if err != nil {
		return err
	}
	p.feedbackMu.Lock()
	defer p.feedbackMu.Unlock()
	p.store.Load(samples)
	if p.statistical != nil {
		p.statistical.Fit(p.store.Samples())
	}
	p.logger.Info("calibration samples restored", slog.Int("count", len(samples)))
	return nil
}
