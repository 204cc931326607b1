package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/repo"
)

var (
	// ErrInvalidFeedback rejects feedback without a suggestion id.
	ErrInvalidFeedback = errors.New("suggestion_id is required")
	// ErrUnknownSuggestion is returned for feedback on a suggestion that was never
	// issued or has expired from the book.
	ErrUnknownSuggestion = errors.New("unknown suggestion")
	// ErrNoAnalysis is returned when no run has completed yet.
	ErrNoAnalysis = errors.New("no analysis available")
)

// Analyzer runs one analysis. Satisfied by *engine.Pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

// FeedbackRecorder feeds accepted/rejected outcomes to calibration. Satisfied by
// *calibration.Pipeline.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, sample models.CalibrationSample, components map[string]float64) int
}

// FeedbackStore keeps the raw feedback history.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb models.Feedback) error
}

// PatternReader returns the last persisted mining run.
type PatternReader interface {
	Latest(ctx context.Context) (repo.PatternSnapshot, error)
}

// Publisher pushes finished results to subscribers.
type Publisher interface {
	Publish(ctx context.Context, result models.AnalysisResult) error
}

// Options configures the service.
type Options struct {
	Interval      time.Duration
	SuggestionTTL time.Duration
	// Request is the template used for scheduled runs.
	Request models.AnalysisRequest
}

// SynergyService owns the latest analysis, the issued-suggestion book and the
// feedback loop. Transports call into it.
type SynergyService struct {
	logger    *slog.Logger
	analyzer  Analyzer
	recorder  FeedbackRecorder
	feedback  FeedbackStore
	patterns  PatternReader
	publisher Publisher
	opts      Options

	book *gocache.Cache

	mu     sync.RWMutex
	latest *models.AnalysisResult
}

// NewSynergyService constructs the service facade.
func NewSynergyService(logger *slog.Logger, analyzer Analyzer, opts Options) *SynergyService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SuggestionTTL <= 0 {
		opts.SuggestionTTL = 7 * 24 * time.Hour
	}
	return &SynergyService{
		logger:   logger,
		analyzer: analyzer,
		opts:     opts,
		book:     gocache.New(opts.SuggestionTTL, 0),
	}
}

// WithFeedback attaches the calibration recorder and the feedback history store.
// Either may be nil.
func (s *SynergyService) WithFeedback(recorder FeedbackRecorder, store FeedbackStore) *SynergyService {
	s.recorder = recorder
	s.feedback = store
	return s
}

// WithPatterns attaches persisted pattern snapshots.
func (s *SynergyService) WithPatterns(reader PatternReader) *SynergyService {
	s.patterns = reader
	return s
}

// WithPublisher attaches a result publisher.
func (s *SynergyService) WithPublisher(p Publisher) *SynergyService {
	s.publisher = p
	return s
}

// Analyze runs the pipeline, retains the result and books its suggestions for feedback.
func (s *SynergyService) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if s.analyzer == nil {
		return models.AnalysisResult{}, fmt.Errorf("analyzer not configured")
	}
	if !req.TimeRange.Start.IsZero() && !req.TimeRange.End.IsZero() && !req.TimeRange.End.After(req.TimeRange.Start) {
		return models.AnalysisResult{}, fmt.Errorf("time_range.end must be after time_range.start")
	}

	result, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		s.logger.Error("analysis failed", slog.Any("error", err))
		return models.AnalysisResult{}, err
	}

	s.remember(result)
	s.logger.Info("analysis complete",
		slog.String("run_id", result.RunID),
		slog.Int("patterns", len(result.Patterns)),
		slog.Int("synergies", len(result.Synergies)),
		slog.Int("suggestions", len(result.Suggestions)),
		slog.Any("degraded", result.Degraded))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, result); err != nil {
			s.logger.Warn("publish suggestions failed", slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *SynergyService) remember(result models.AnalysisResult) {
	for _, sg := range result.Suggestions {
		s.book.SetDefault(sg.ID, sg)
	}
	s.book.DeleteExpired()

	s.mu.Lock()
	s.latest = &result
	s.mu.Unlock()
}

// Latest returns the most recent result.
func (s *SynergyService) Latest() (models.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return models.AnalysisResult{}, false
	}
	return *s.latest, true
}

// ListSuggestions returns the latest suggestions at or above minConfidence, in
// ranked order. kind filters by suggestion kind when non-empty; limit <= 0 means all.
func (s *SynergyService) ListSuggestions(minConfidence float64, kind string, limit int) []models.Suggestion {
	latest, ok := s.Latest()
	if !ok {
		return []models.Suggestion{}
	}
	out := make([]models.Suggestion, 0, len(latest.Suggestions))
	for _, sg := range latest.Suggestions {
		if sg.Confidence < minConfidence {
			continue
		}
		if kind != "" && !strings.EqualFold(string(sg.Kind), kind) {
			continue
		}
		out = append(out, sg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Suggestion looks up an issued suggestion by id.
func (s *SynergyService) Suggestion(id string) (models.Suggestion, bool) {
	v, ok := s.book.Get(id)
	if !ok {
		return models.Suggestion{}, false
	}
	return v.(models.Suggestion), true
}

// SubmitFeedback records the user's decision on an issued suggestion and feeds it
// to calibration. History persistence failures are logged, not returned.
func (s *SynergyService) SubmitFeedback(ctx context.Context, fb models.Feedback) (models.FeedbackAck, error) {
	fb.SuggestionID = strings.TrimSpace(fb.SuggestionID)
	if fb.SuggestionID == "" {
		return models.FeedbackAck{}, ErrInvalidFeedback
	}
	sg, ok := s.Suggestion(fb.SuggestionID)
	if !ok {
		return models.FeedbackAck{}, fmt.Errorf("%w: %s", ErrUnknownSuggestion, fb.SuggestionID)
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = time.Now().UTC()
	}

	ack := models.FeedbackAck{SuggestionID: fb.SuggestionID, Recorded: true}
	if s.recorder != nil {
		sample := models.CalibrationSample{
			SuggestionID:        sg.ID,
			PredictedConfidence: sg.Confidence,
			Outcome:             fb.Accepted,
			Features:            sg.QualityComponents,
			Stages:              sg.Stages,
			RecordedAt:          fb.SubmittedAt,
		}
		ack.Samples = s.recorder.RecordFeedback(ctx, sample, sg.QualityComponents)
	}
	if s.feedback != nil {
		if err := s.feedback.SaveFeedback(ctx, fb); err != nil {
			s.logger.Warn("store feedback failed", slog.String("suggestion_id", fb.SuggestionID), slog.Any("error", err))
		}
	}
	s.logger.Debug("feedback recorded", slog.String("suggestion_id", fb.SuggestionID), slog.Bool("accepted", fb.Accepted))
	return ack, nil
}

// Patterns returns the latest mined patterns, preferring the persisted snapshot.
func (s *SynergyService) Patterns(ctx context.Context) ([]models.Pattern, error) {
	if s.patterns != nil {
		snap, err := s.patterns.Latest(ctx)
		switch {
		case err == nil:
			return snap.Patterns, nil
		case errors.Is(err, repo.ErrNotFound):
		default:
			s.logger.Warn("read pattern snapshot failed", slog.Any("error", err))
		}
	}
	latest, ok := s.Latest()
	if !ok {
		return nil, ErrNoAnalysis
	}
	return latest.Patterns, nil
}

// Ready reports whether at least one analysis has completed.
func (s *SynergyService) Ready() bool {
	_, ok := s.Latest()
	return ok
}

// Run analyses immediately and then every Interval until ctx is cancelled. Run
// failures are logged; the schedule keeps going.
func (s *SynergyService) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("analysis interval must be positive")
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Analyze(ctx, s.opts.Request); err != nil && ctx.Err() == nil {
			s.logger.Warn("scheduled analysis failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
