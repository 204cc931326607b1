package synergy

import (
	"context"
	"log/slog"
	"sort"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/noise"
)

// Options bounds the detector output.
type Options struct {
	MaxSynergies             int
	PairConfidenceFloor      float64
	MaxChainDepth            int
	MaxDevicesPerScene       int
	MaxDevicesPerContextType int
	ScheduleWindowMinutes    int
}

func (o Options) withDefaults() Options {
	if o.MaxSynergies <= 0 {
		o.MaxSynergies = 50
	}
	if o.PairConfidenceFloor <= 0 {
		o.PairConfidenceFloor = 0.7
	}
	if o.MaxChainDepth < 3 || o.MaxChainDepth > 4 {
		o.MaxChainDepth = 4
	}
	if o.MaxDevicesPerScene <= 0 {
		o.MaxDevicesPerScene = 10
	}
	if o.MaxDevicesPerContextType <= 0 {
		o.MaxDevicesPerContextType = 5
	}
	if o.ScheduleWindowMinutes <= 0 {
		o.ScheduleWindowMinutes = 30
	}
	return o
}

// input is the read-only view shared by every strategy in one run.
type input struct {
	index    models.EntityIndex
	entities []models.Entity
	patterns []models.Pattern
	snapshot models.ContextSnapshot
}

// strategy is one member of the fixed list of synergy detectors.
type strategy struct {
	kind   models.SynergyType
	detect func(in input) []models.Synergy
}

// Detector composes entities and validated patterns into synergy opportunities.
type Detector struct {
	filter     *noise.Filter
	opts       Options
	templates  []ContextTemplate
	strategies []strategy
	logger     *slog.Logger
}

// NewDetector wires the detector; templates nil means the built-in context templates.
func NewDetector(logger *slog.Logger, filter *noise.Filter, templates []ContextTemplate, opts Options) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = noise.Default()
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	d := &Detector{filter: filter, opts: opts.withDefaults(), templates: templates, logger: logger}
	d.strategies = []strategy{
		{kind: models.SynergyDevicePair, detect: d.devicePairs},
		{kind: models.SynergyDeviceChain, detect: d.deviceChains},
		{kind: models.SynergySceneBased, detect: d.scenes},
		{kind: models.SynergyContextAware, detect: d.contextAware},
		{kind: models.SynergyScheduleBased, detect: d.schedules},
	}
	return d
}

// Detect runs every strategy over the inventory and pattern set. Synergies from
// different strategies may overlap; each strategy is capped at MaxSynergies.
func (d *Detector) Detect(ctx context.Context, entities []models.Entity, patterns []models.Pattern, snapshot models.ContextSnapshot) ([]models.Synergy, error) {
	index := models.NewEntityIndex(entities)
	if len(index) == 0 {
		return nil, nil
	}
	in := input{
		index:    index,
		entities: sortedEntities(index),
		patterns: patterns,
		snapshot: snapshot,
	}

	out := make([]models.Synergy, 0)
	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := s.detect(in)
		rankSynergies(found)
		if len(found) > d.opts.MaxSynergies {
			found = found[:d.opts.MaxSynergies]
		}
		d.logger.Debug("synergy strategy finished", slog.String("strategy", string(s.kind)), slog.Int("count", len(found)))
		out = append(out, found...)
	}
	return out, nil
}

func sortedEntities(index models.EntityIndex) []models.Entity {
	out := make([]models.Entity, 0, len(index))
	for _, e := range index {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func rankSynergies(list []models.Synergy) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		if list[i].ImpactScore != list[j].ImpactScore {
			return list[i].ImpactScore > list[j].ImpactScore
		}
		return list[i].DeviceKey() < list[j].DeviceKey()
	})
}

// controllable returns actionable entities that accept commands, sorted by id.
func (d *Detector) controllable(in input) []models.Entity {
	out := make([]models.Entity, 0)
	for _, e := range in.entities {
		if e.Domain == "scene" {
			continue
		}
		if d.filter.IsControllable(e.EntityID) {
			out = append(out, e)
		}
	}
	return out
}
