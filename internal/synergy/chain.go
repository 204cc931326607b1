package synergy

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

type chainEdge struct {
	to      string
	pattern models.Pattern
}

func (d *Detector) deviceChains(in input) []models.Synergy {
	adjacency := make(map[string][]chainEdge)
	for _, p := range d.pairEdges(in) {
		co := p.CoOccurrence
		adjacency[co.Trigger] = append(adjacency[co.Trigger], chainEdge{to: co.Action, pattern: p})
	}
	starts := make([]string, 0, len(adjacency))
	for from, edges := range adjacency {
		sort.Slice(edges, func(i, j int) bool { return edges[i].to < edges[j].to })
		starts = append(starts, from)
	}
	sort.Strings(starts)

	limit := d.opts.MaxSynergies * 4
	out := make([]models.Synergy, 0)
	var walk func(path []string, edges []models.Pattern, confidence float64)
	walk = func(path []string, edges []models.Pattern, confidence float64) {
		if len(out) >= limit {
			return
		}
		if len(path) >= 3 && d.filter.IsControllable(path[len(path)-1]) {
			out = append(out, d.chainSynergy(in, path, edges, confidence))
		}
		if len(path) == d.opts.MaxChainDepth {
			return
		}
		last := path[len(path)-1]
		for _, e := range adjacency[last] {
			if contains(path, e.to) {
				continue
			}
			walk(append(append([]string(nil), path...), e.to), append(append([]models.Pattern(nil), edges...), e.pattern), confidence*e.pattern.Confidence)
		}
	}
	for _, start := range starts {
		walk([]string{start}, nil, 1)
	}
	return out
}

func (d *Detector) chainSynergy(in input, path []string, edges []models.Pattern, confidence float64) models.Synergy {
	devices := append([]string(nil), path...)
	supporting := make([]string, 0, len(edges))
	for _, e := range edges {
		supporting = append(supporting, e.ID)
	}
	complexity := models.ComplexityMedium
	if len(devices) >= 4 {
		complexity = models.ComplexityHigh
	}
	names := make([]string, len(devices))
	for i, id := range devices {
		names[i] = friendly(id)
	}
	action := devices[len(devices)-1]
	return models.Synergy{
		ID:            uuid.NewString(),
		Type:          models.SynergyDeviceChain,
		Devices:       devices,
		TriggerEntity: devices[0],
		ActionEntity:  action,
		Area:          sharedArea(in.index, devices...),
		ImpactScore:   impactScore(action, confidence),
		Confidence:    clamp(confidence, 0, 1),
		Complexity:    complexity,
		Rationale:     "Observed chain: " + strings.Join(names, " then "),
		Depth:         len(devices),
		Context: models.SynergyContext{
			ChainDevices:        append([]string(nil), devices...),
			ChainPath:           strings.Join(devices, " -> "),
			SupportingPatterns:  supporting,
			PatternSupportScore: confidence,
			ValidatedByPatterns: true,
		},
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
