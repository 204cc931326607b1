package blueprints

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

const (
	deviceWeight      = 0.6
	useCaseWeight     = 0.3
	integrationWeight = 0.1
)

// Corpus is a searchable catalogue of automation blueprints.
type Corpus interface {
	Search(ctx context.Context, deviceTypes []string, useCase string, minQuality float64) ([]models.BlueprintTemplate, error)
}

// CorpusFunc adapts a function to the Corpus interface.
type CorpusFunc func(ctx context.Context, deviceTypes []string, useCase string, minQuality float64) ([]models.BlueprintTemplate, error)

// Search implements Corpus.
func (f CorpusFunc) Search(ctx context.Context, deviceTypes []string, useCase string, minQuality float64) ([]models.BlueprintTemplate, error) {
	return f(ctx, deviceTypes, useCase, minQuality)
}

// Candidate is the blueprint-relevant view of a synergy or pattern.
type Candidate struct {
	DeviceTypes  []string
	UseCase      string
	Keywords     []string
	Integrations []string
}

// Options tunes the matcher.
type Options struct {
	MinScore   float64
	MinQuality float64
	Timeout    time.Duration
}

// Matcher scores candidates against the blueprint corpus.
type Matcher struct {
	corpus Corpus
	opts   Options
	logger *slog.Logger
}

// NewMatcher constructs a Matcher; a nil corpus never matches.
func NewMatcher(logger *slog.Logger, corpus Corpus, opts Options) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.6
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Matcher{corpus: corpus, opts: opts, logger: logger}
}

// FindMatch returns the best fitting blueprint at or above the minimum score. Corpus
// failures are logged and reported as no match.
func (m *Matcher) FindMatch(ctx context.Context, c Candidate) (models.BlueprintMatch, bool) {
	if m == nil || m.corpus == nil || len(c.DeviceTypes) == 0 {
		return models.BlueprintMatch{}, false
	}

	searchCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	templates, err := m.corpus.Search(searchCtx, c.DeviceTypes, c.UseCase, m.opts.MinQuality)
	if err != nil {
		metrics.UpstreamFailure("blueprints")
		m.logger.Warn("blueprint corpus unavailable", slog.Any("error", err))
		return models.BlueprintMatch{}, false
	}

	var best models.BlueprintMatch
	found := false
	for _, tmpl := range templates {
		if tmpl.Quality < m.opts.MinQuality {
			continue
		}
		match := Score(tmpl, c)
		if match.FitScore < m.opts.MinScore {
			continue
		}
		if !found || match.FitScore > best.FitScore || (match.FitScore == best.FitScore && match.BlueprintID < best.BlueprintID) {
			best = match
			found = true
		}
	}
	return best, found
}

// Score computes fit = 0.6*device_overlap + 0.3*use_case + 0.1*integration.
func Score(tmpl models.BlueprintTemplate, c Candidate) models.BlueprintMatch {
	bpTypes := tmpl.DeviceTypes
	if len(bpTypes) == 0 {
		bpTypes = InferDeviceTypes(tmpl.Name + " " + tmpl.Description)
	}
	overlap, allCovered := deviceOverlap(bpTypes, c.DeviceTypes)
	useCase, exact := useCaseAlignment(tmpl, c)
	fit := deviceWeight*overlap + useCaseWeight*useCase + integrationWeight*integrationCompatibility(tmpl, c)
	return models.BlueprintMatch{
		BlueprintID:  tmpl.ID,
		FitScore:     clamp(fit, 0, 1),
		DeviceMatch:  allCovered && len(bpTypes) > 0,
		UseCaseMatch: exact,
		Quality:      clamp(tmpl.Quality, 0, 1),
	}
}

// deviceOverlap is |bp ∩ candidate| / |bp ∪ candidate| with fuzzy type matching.
func deviceOverlap(bp, candidate []string) (float64, bool) {
	bp, candidate = unique(bp), unique(candidate)
	if len(bp) == 0 || len(candidate) == 0 {
		return 0, false
	}
	used := make([]bool, len(candidate))
	inter := 0
	for _, b := range bp {
		for i, c := range candidate {
			if !used[i] && typesMatch(b, c) {
				used[i] = true
				inter++
				break
			}
		}
	}
	union := len(bp) + len(candidate) - inter
	return float64(inter) / float64(union), inter == len(bp)
}

func useCaseAlignment(tmpl models.BlueprintTemplate, c Candidate) (float64, bool) {
	if c.UseCase != "" && strings.EqualFold(strings.TrimSpace(tmpl.UseCase), strings.TrimSpace(c.UseCase)) {
		return 1, true
	}
	if len(c.Keywords) == 0 {
		return 0, false
	}
	text := strings.ToLower(tmpl.UseCase + " " + tmpl.Name + " " + tmpl.Description)
	hits := 0
	for _, kw := range c.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}
	// keyword hits earn at most half of an exact use-case match
	return 0.5 * float64(hits) / float64(len(c.Keywords)), false
}

func integrationCompatibility(tmpl models.BlueprintTemplate, c Candidate) float64 {
	if len(tmpl.Integrations) == 0 {
		return 1
	}
	for _, want := range tmpl.Integrations {
		for _, have := range c.Integrations {
			if strings.EqualFold(want, have) {
				return 1
			}
		}
	}
	return 0
}

func unique(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
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
