package synergy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

const (
	minAreaSceneDevices   = 3
	minDomainSceneDevices = 5
)

var sceneDomains = map[string]struct{}{
	"light": {}, "switch": {}, "cover": {}, "fan": {}, "media_player": {}, "climate": {},
}

func (d *Detector) scenes(in input) []models.Synergy {
	devices := d.controllable(in)
	scenes := existingScenes(in.entities)

	out := d.areaScenes(in, devices, scenes)
	if len(out) < d.opts.MaxSynergies/2 {
		out = append(out, d.domainScenes(devices, scenes)...)
	}
	out = append(out, d.activityScenes(in, devices)...)
	return out
}

func existingScenes(entities []models.Entity) []models.Entity {
	out := make([]models.Entity, 0)
	for _, e := range entities {
		if e.Domain == "scene" {
			out = append(out, e)
		}
	}
	return out
}

// sceneCovers reports whether an existing scene already targets key, matched by
// area id or by whole name tokens.
func sceneCovers(scenes []models.Entity, key string, byArea bool) bool {
	needle := normalizeKey(key)
	for _, s := range scenes {
		if byArea && s.AreaID != "" && normalizeKey(s.AreaID) == needle {
			return true
		}
		_, name, _ := models.SplitEntityID(s.EntityID)
		if hasTokens(normalizeKey(name), needle) || hasTokens(normalizeKey(s.FriendlyName), needle) {
			return true
		}
	}
	return false
}

// hasTokens reports whether needle occurs in key as a run of whole "_" tokens.
func hasTokens(key, needle string) bool {
	if key == "" || needle == "" {
		return false
	}
	return strings.Contains("_"+key+"_", "_"+needle+"_")
}

func normalizeKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(v)
}

func (d *Detector) areaScenes(in input, devices []models.Entity, scenes []models.Entity) []models.Synergy {
	groups := make(map[string][]string)
	for _, e := range devices {
		if e.AreaID == "" {
			continue
		}
		groups[e.AreaID] = append(groups[e.AreaID], e.EntityID)
	}
	areas := sortedKeys(groups)

	out := make([]models.Synergy, 0)
	for _, area := range areas {
		members := groups[area]
		if len(members) < minAreaSceneDevices || sceneCovers(scenes, area, true) {
			continue
		}
		out = append(out, d.sceneSynergy(members, area, models.SceneAreaBased, "",
			fmt.Sprintf("No scene exists for %s yet; %d devices there could be controlled together", friendly("area."+area), len(members))))
	}
	return out
}

func (d *Detector) domainScenes(devices []models.Entity, scenes []models.Entity) []models.Synergy {
	groups := make(map[string][]string)
	for _, e := range devices {
		if _, ok := sceneDomains[e.Domain]; !ok {
			continue
		}
		groups[e.Domain] = append(groups[e.Domain], e.EntityID)
	}

	out := make([]models.Synergy, 0)
	for _, domain := range sortedKeys(groups) {
		members := groups[domain]
		if len(members) < minDomainSceneDevices || sceneCovers(scenes, "all_"+domain, false) {
			continue
		}
		out = append(out, d.sceneSynergy(members, "", models.SceneDomainBased, "",
			fmt.Sprintf("Control all %d %s devices with one scene", len(members), strings.ReplaceAll(domain, "_", " "))))
	}
	return out
}

func (d *Detector) activityScenes(in input, devices []models.Entity) []models.Synergy {
	lightsByArea := make(map[string][]string)
	var media, climate []models.Entity
	for _, e := range devices {
		switch e.Domain {
		case "light":
			if e.AreaID != "" {
				lightsByArea[e.AreaID] = append(lightsByArea[e.AreaID], e.EntityID)
			}
		case "media_player":
			media = append(media, e)
		case "climate":
			climate = append(climate, e)
		}
	}

	out := make([]models.Synergy, 0)
	for i, anchor := range media {
		if i >= d.opts.MaxDevicesPerContextType {
			break
		}
		lights := lightsByArea[anchor.AreaID]
		if anchor.AreaID == "" || len(lights) == 0 {
			continue
		}
		members := append([]string{anchor.EntityID}, lights...)
		out = append(out, d.sceneSynergy(members, anchor.AreaID, models.SceneActivityBased, models.ActivityMovieMode,
			fmt.Sprintf("Dim the lights when %s starts playing", friendly(anchor.EntityID))))
	}
	for i, anchor := range climate {
		if i >= d.opts.MaxDevicesPerContextType {
			break
		}
		lights := lightsByArea[anchor.AreaID]
		if anchor.AreaID == "" || len(lights) == 0 {
			continue
		}
		members := append(append([]string(nil), lights...), anchor.EntityID)
		out = append(out, d.sceneSynergy(members, anchor.AreaID, models.SceneActivityBased, models.ActivitySleepMode,
			fmt.Sprintf("Turn off the lights and set back %s at bedtime", friendly(anchor.EntityID))))
	}
	return out
}

func (d *Detector) sceneSynergy(members []string, area, sceneType, activity, rationale string) models.Synergy {
	if len(members) > d.opts.MaxDevicesPerScene {
		members = members[:d.opts.MaxDevicesPerScene]
	}
	devices := append([]string(nil), members...)
	complexity := models.ComplexityLow
	if len(devices) > 5 {
		complexity = models.ComplexityMedium
	}
	confidence := clamp(0.55+0.05*float64(len(devices)), 0, 0.85)
	action := devices[len(devices)-1]
	return models.Synergy{
		ID:            uuid.NewString(),
		Type:          models.SynergySceneBased,
		Devices:       devices,
		TriggerEntity: devices[0],
		ActionEntity:  action,
		Area:          area,
		ImpactScore:   impactScore(action, confidence),
		Confidence:    confidence,
		Complexity:    complexity,
		Rationale:     rationale,
		Depth:         len(devices),
		Context: models.SynergyContext{
			SceneType:    sceneType,
			ActivityType: activity,
		},
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
