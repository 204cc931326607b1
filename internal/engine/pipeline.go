package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/blueprints"
	"github.com/miradorstack/mirador-synergy/internal/calibration"
	"github.com/miradorstack/mirador-synergy/internal/extractors"
	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/noise"
	"github.com/miradorstack/mirador-synergy/internal/patterns"
	"github.com/miradorstack/mirador-synergy/internal/synergy"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// Registry lists the home inventory.
type Registry interface {
	ListEntities(ctx context.Context) ([]models.Entity, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// EventSource returns recorded state changes for entities in a time range.
type EventSource interface {
	QueryEvents(ctx context.Context, entityIDs []string, tr models.TimeRange) ([]models.StateChangeEvent, error)
}

// ContextCollector gathers external context. failed names the providers that were unavailable.
type ContextCollector interface {
	Collect(ctx context.Context) (snapshot models.ContextSnapshot, failed []string)
}

// Options tunes one pipeline instance.
type Options struct {
	Lookback           time.Duration
	UpstreamTimeout    time.Duration
	MinSupport         int
	MinSupportRatio    float64
	MinConfidence      float64
	DetectAnomalies    bool
	AnomalyThreshold   float64
	PatternSuggestions bool
}

// Components groups the collaborators of a Pipeline. Nil stages are replaced by
// defaults; nil upstreams are treated as unavailable.
type Components struct {
	Registry    Registry
	Events      EventSource
	Context     ContextCollector
	Filter      *noise.Filter
	Miner       *patterns.Miner
	Dedup       *patterns.Deduplicator
	Validator   *CrossValidator
	Detector    *synergy.Detector
	Matcher     *blueprints.Matcher
	Calibration *calibration.Pipeline
	Rules       *RuleEngine
}

// Pipeline orchestrates one analysis run from inventory to ranked suggestions.
type Pipeline struct {
	logger      *slog.Logger
	registry    Registry
	events      EventSource
	context     ContextCollector
	filter      *noise.Filter
	normalizer  *extractors.EventNormalizer
	anomalies   *extractors.ActivityExtractor
	miner       *patterns.Miner
	dedup       *patterns.Deduplicator
	validator   *CrossValidator
	detector    *synergy.Detector
	matcher     *blueprints.Matcher
	calibration *calibration.Pipeline
	rules       *RuleEngine
	opts        Options
}

// NewPipeline constructs a new analysis pipeline.
func NewPipeline(logger *slog.Logger, c Components, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Filter == nil {
		c.Filter = noise.Default()
	}
	if c.Miner == nil {
		c.Miner = patterns.NewMiner(logger, c.Filter, nil, patterns.Options{})
	}
	if c.Dedup == nil {
		c.Dedup = patterns.NewDeduplicator(patterns.DefaultMergeWindowMinutes)
	}
	if c.Validator == nil {
		c.Validator = NewCrossValidator(logger, ValidatorOptions{})
	}
	if c.Detector == nil {
		c.Detector = synergy.NewDetector(logger, c.Filter, nil, synergy.Options{})
	}
	if c.Calibration == nil {
		c.Calibration = calibration.NewPipeline(logger, calibration.NewStore(0, 0), nil, calibration.Options{})
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * 24 * time.Hour
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 10 * time.Second
	}
	if opts.MinSupport <= 0 {
		opts.MinSupport = 10
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.75
	}

	p := &Pipeline{
		logger:      logger,
		registry:    c.Registry,
		events:      c.Events,
		context:     c.Context,
		filter:      c.Filter,
		normalizer:  extractors.NewEventNormalizer(),
		miner:       c.Miner,
		dedup:       c.Dedup,
		validator:   c.Validator,
		detector:    c.Detector,
		matcher:     c.Matcher,
		calibration: c.Calibration,
		rules:       c.Rules,
		opts:        opts,
	}
	if opts.DetectAnomalies {
		p.anomalies = extractors.NewActivityExtractor(opts.AnomalyThreshold)
	}
	return p
}

// Calibration exposes the calibration pipeline so feedback can reach it.
func (p *Pipeline) Calibration() *calibration.Pipeline {
	return p.calibration
}

// Analyze runs every stage in order. Unavailable upstreams degrade the result
// instead of failing it; only cancellation is returned as an error.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	started := time.Now()
	result := models.AnalysisResult{
		RunID:       uuid.NewString(),
		Patterns:    []models.Pattern{},
		Synergies:   []models.Synergy{},
		Suggestions: []models.Suggestion{},
		Validation: models.ValidationResult{
			Contradictions: []models.Contradiction{},
			Reinforcements: []models.Reinforcement{},
		},
		CreatedAt: started.UTC(),
	}
	req = p.withDefaults(req, started)

	entities := p.fetchEntities(ctx, &result)
	entities = filterAreas(entities, req.Areas)
	if len(entities) == 0 {
		p.logger.Info("no entities available, skipping analysis", slog.String("run_id", result.RunID))
		p.observe(started, result)
		return result, ctx.Err()
	}
	index := models.NewEntityIndex(entities)

	events := p.fetchEvents(ctx, p.filter.Actionable(entities), req.TimeRange, &result)
	events, stats := p.normalizer.Normalize(events, index)
	if stats.Malformed+stats.Unknown+stats.Repeated > 0 || len(stats.Flapping) > 0 {
		p.logger.Debug("events normalized",
			slog.Int("malformed", stats.Malformed),
			slog.Int("unknown", stats.Unknown),
			slog.Int("repeated", stats.Repeated),
			slog.Any("flapping", stats.Flapping))
	}

	mined, err := p.miner.Mine(ctx, result.RunID, events, patterns.Thresholds{
		MinOccurrences:  req.MinSupport,
		MinSupportRatio: req.MinSupportRatio,
		MinConfidence:   req.MinConfidence,
	})
	if err != nil {
		metrics.ObserveAnalysis(time.Since(started), "error")
		return result, fmt.Errorf("mine patterns: %w", err)
	}
	if p.anomalies != nil {
		mined = append(mined, p.anomalies.Detect(events)...)
	}

	deduped := p.dedup.Deduplicate(mined)
	result.Patterns = deduped
	result.Validation = p.validator.Validate(deduped)
	validated := p.validator.Validated(deduped, result.Validation)

	var snapshot models.ContextSnapshot
	if p.context != nil {
		var failed []string
		snapshot, failed = p.context.Collect(ctx)
		for _, kind := range failed {
			result.Degraded = append(result.Degraded, "context:"+kind)
		}
	}

	synergies, err := p.detector.Detect(ctx, entities, validated, snapshot)
	if err != nil {
		metrics.ObserveAnalysis(time.Since(started), "error")
		return result, fmt.Errorf("detect synergies: %w", err)
	}
	result.Synergies = synergies

	result.Suggestions = p.suggest(ctx, req, index, validated, synergies, result.Validation.QualityScore)
	rankSuggestions(result.Suggestions)

	p.observe(started, result)
	p.logger.Info("analysis complete",
		slog.String("run_id", result.RunID),
		slog.Int("entities", len(entities)),
		slog.Int("events", len(events)),
		slog.Int("patterns", len(result.Patterns)),
		slog.Int("synergies", len(result.Synergies)),
		slog.Int("suggestions", len(result.Suggestions)),
		slog.Any("degraded", result.Degraded))
	return result, nil
}

func (p *Pipeline) withDefaults(req models.AnalysisRequest, now time.Time) models.AnalysisRequest {
	if req.TimeRange.End.IsZero() {
		req.TimeRange.End = now
	}
	if req.TimeRange.Start.IsZero() || !req.TimeRange.Start.Before(req.TimeRange.End) {
		req.TimeRange.Start = req.TimeRange.End.Add(-p.opts.Lookback)
	}
	if req.MinSupport <= 0 {
		req.MinSupport = p.opts.MinSupport
	}
	if req.MinSupportRatio <= 0 {
		req.MinSupportRatio = p.opts.MinSupportRatio
	}
	if req.MinConfidence <= 0 {
		req.MinConfidence = p.opts.MinConfidence
	}
	return req
}

func (p *Pipeline) fetchEntities(ctx context.Context, result *models.AnalysisResult) []models.Entity {
	if p.registry == nil {
		p.degrade(result, "registry", utils.Upstream("list entities", fmt.Errorf("registry not configured")))
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, p.opts.UpstreamTimeout)
	entities, err := p.registry.ListEntities(callCtx)
	cancel()
	if err != nil {
		p.degrade(result, "registry", utils.Upstream("list entities", err))
		return nil
	}

	callCtx, cancel = context.WithTimeout(ctx, p.opts.UpstreamTimeout)
	devices, err := p.registry.ListDevices(callCtx)
	cancel()
	if err != nil {
		p.degrade(result, "devices", utils.Upstream("list devices", err))
		return entities
	}
	return inheritDeviceAreas(entities, devices)
}

func (p *Pipeline) fetchEvents(ctx context.Context, entities []models.Entity, tr models.TimeRange, result *models.AnalysisResult) []models.StateChangeEvent {
	if len(entities) == 0 {
		return nil
	}
	if p.events == nil {
		p.degrade(result, "events", utils.Upstream("query events", fmt.Errorf("event source not configured")))
		return nil
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.EntityID)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.opts.UpstreamTimeout)
	defer cancel()
	events, err := p.events.QueryEvents(callCtx, ids, tr)
	if err != nil {
		p.degrade(result, "events", utils.Upstream("query events", err))
		return nil
	}
	return events
}

func (p *Pipeline) degrade(result *models.AnalysisResult, dependency string, err error) {
	metrics.UpstreamFailure(dependency)
	p.logger.Warn("upstream unavailable, continuing without it",
		slog.String("dependency", dependency),
		slog.String("run_id", result.RunID),
		slog.Any("error", err))
	result.Degraded = append(result.Degraded, dependency)
}

func (p *Pipeline) observe(started time.Time, result models.AnalysisResult) {
	counts := make(map[string]int)
	for _, pat := range result.Patterns {
		counts[string(pat.Type)]++
	}
	for kind, n := range counts {
		metrics.AddPatterns(kind, n)
	}
	counts = make(map[string]int)
	for _, s := range result.Synergies {
		counts[string(s.Type)]++
	}
	for kind, n := range counts {
		metrics.AddSynergies(kind, n)
	}
	outcome := "success"
	if len(result.Degraded) > 0 {
		outcome = "degraded"
	}
	metrics.ObserveAnalysis(time.Since(started), outcome)
}

func (p *Pipeline) suggest(ctx context.Context, req models.AnalysisRequest, index models.EntityIndex, validated []models.Pattern, synergies []models.Synergy, validation float64) []models.Suggestion {
	byID := make(map[string]models.Pattern, len(validated))
	for _, pat := range validated {
		byID[pat.ID] = pat
	}
	now := time.Now().UTC()

	out := make([]models.Suggestion, 0, len(synergies))
	for i := range synergies {
		s := synergies[i]
		components := synergyComponents(s, byID, validation)
		var match *models.BlueprintMatch
		if m, ok := p.matcher.FindMatch(ctx, blueprints.CandidateFromSynergy(s, index)); ok {
			match = &m
		}
		calibrated := p.calibration.Calibrate(calibration.Input{
			Base:            s.Confidence,
			Components:      components,
			Blueprint:       match,
			WantUncertainty: req.IncludeUncertainty,
		})
		out = append(out, models.Suggestion{
			ID:                uuid.NewString(),
			Kind:              models.SuggestionSynergy,
			Synergy:           &s,
			BaseConfidence:    s.Confidence,
			Confidence:        calibrated.Confidence,
			Estimate:          calibrated.Estimate,
			Rationale:         s.Rationale,
			Explanation:       p.rules.Explain(s),
			Blueprint:         match,
			QualityComponents: components,
			Stages:            &calibrated.Stages,
			CreatedAt:         now,
		})
	}

	if !p.opts.PatternSuggestions {
		return out
	}
	scheduled := make(map[string]struct{})
	for _, s := range synergies {
		if s.Type != models.SynergyScheduleBased {
			continue
		}
		for _, id := range s.Context.SupportingPatterns {
			scheduled[id] = struct{}{}
		}
	}
	for i := range validated {
		pat := validated[i]
		if pat.Type != models.PatternTimeOfDay || !p.filter.IsControllable(pat.DeviceID) {
			continue
		}
		if _, ok := scheduled[pat.ID]; ok {
			continue
		}
		components := patternComponents(pat, validation)
		var match *models.BlueprintMatch
		if m, ok := p.matcher.FindMatch(ctx, blueprints.CandidateFromPattern(pat, index)); ok {
			match = &m
		}
		calibrated := p.calibration.Calibrate(calibration.Input{
			Base:            pat.Confidence,
			Components:      components,
			Blueprint:       match,
			WantUncertainty: req.IncludeUncertainty,
		})
		out = append(out, models.Suggestion{
			ID:                uuid.NewString(),
			Kind:              models.SuggestionPattern,
			Pattern:           &pat,
			BaseConfidence:    pat.Confidence,
			Confidence:        calibrated.Confidence,
			Estimate:          calibrated.Estimate,
			Rationale:         patternRationale(pat),
			Blueprint:         match,
			QualityComponents: components,
			Stages:            &calibrated.Stages,
			CreatedAt:         now,
		})
	}
	return out
}

// synergyComponents derives the ensemble quality inputs of a synergy from its
// supporting patterns. Components without evidence are left out.
func synergyComponents(s models.Synergy, byID map[string]models.Pattern, validation float64) map[string]float64 {
	components := map[string]float64{
		calibration.ModelConfidence: clamp(s.Confidence, 0, 1),
		calibration.ModelValidation: clamp(validation, 0, 1),
	}
	occurrences, lift, n, lifts := 0, 0.0, 0, 0
	for _, id := range s.Context.SupportingPatterns {
		pat, ok := byID[id]
		if !ok {
			continue
		}
		occurrences += pat.Occurrences
		n++
		if pat.CoOccurrence != nil && pat.CoOccurrence.Lift > 0 {
			lift += pat.CoOccurrence.Lift
			lifts++
		}
	}
	if n > 0 {
		components[calibration.ModelFrequency] = frequencyScore(float64(occurrences) / float64(n))
	}
	if lifts > 0 {
		components[calibration.ModelLift] = liftScore(lift / float64(lifts))
	}
	return components
}

func patternComponents(p models.Pattern, validation float64) map[string]float64 {
	components := map[string]float64{
		calibration.ModelConfidence: clamp(p.Confidence, 0, 1),
		calibration.ModelFrequency:  frequencyScore(float64(p.Occurrences)),
		calibration.ModelValidation: clamp(validation, 0, 1),
	}
	if p.CoOccurrence != nil && p.CoOccurrence.Lift > 0 {
		components[calibration.ModelLift] = liftScore(p.CoOccurrence.Lift)
	}
	return components
}

// frequencyScore saturates at 20 observations.
func frequencyScore(occurrences float64) float64 {
	return clamp(occurrences/20, 0, 1)
}

// liftScore maps lift 1 (independence) to 0 and lift >= 3 to 1.
func liftScore(lift float64) float64 {
	return clamp((lift-1)/2, 0, 1)
}

func patternRationale(p models.Pattern) string {
	if p.TimeOfDay == nil {
		return fmt.Sprintf("%s is active regularly", p.DeviceID)
	}
	return fmt.Sprintf("%s usually changes around %s (%d of %d activations)",
		p.DeviceID, utils.FormatMinuteOfDay(p.TimeOfDay.MinuteOfDay()),
		p.TimeOfDay.Occurrences, p.TimeOfDay.TotalOccurrences)
}

// rankSuggestions orders by calibrated confidence, then impact, then id.
func rankSuggestions(list []models.Suggestion) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		ii, ij := impactOf(list[i]), impactOf(list[j])
		if ii != ij {
			return ii > ij
		}
		return list[i].ID < list[j].ID
	})
}

func impactOf(s models.Suggestion) float64 {
	if s.Synergy != nil {
		return s.Synergy.ImpactScore
	}
	return 0
}

// inheritDeviceAreas fills an entity's area from its device when the entity has none.
func inheritDeviceAreas(entities []models.Entity, devices []models.Device) []models.Entity {
	areas := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.AreaID != "" {
			areas[d.DeviceID] = d.AreaID
		}
	}
	out := make([]models.Entity, len(entities))
	for i, e := range entities {
		if e.AreaID == "" && e.DeviceID != "" {
			e.AreaID = areas[e.DeviceID]
		}
		out[i] = e
	}
	return out
}

func filterAreas(entities []models.Entity, areas []string) []models.Entity {
	if len(areas) == 0 {
		return entities
	}
	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		for _, a := range areas {
			if strings.EqualFold(e.AreaID, a) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
