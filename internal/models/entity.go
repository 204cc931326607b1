package models

import (
	"strings"
	"time"
)

// Entity is a registry snapshot of a single home-automation entity.
type Entity struct {
	EntityID     string `json:"entity_id"`
	Domain       string `json:"domain"`
	AreaID       string `json:"area_id,omitempty"`
	DeviceClass  string `json:"device_class,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// Device groups entities that belong to one physical device.
type Device struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	AreaID       string `json:"area_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// StateChangeEvent is a single recorded state transition.
type StateChangeEvent struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

// SplitEntityID returns the domain and object name of an entity id. ok is false
// when the id is not shaped like <domain>.<name>.
func SplitEntityID(entityID string) (domain, name string, ok bool) {
	idx := strings.IndexByte(entityID, '.')
	if idx <= 0 || idx == len(entityID)-1 {
		return "", "", false
	}
	return entityID[:idx], entityID[idx+1:], true
}

// DomainOf returns the domain prefix of an entity id, or "" when malformed.
func DomainOf(entityID string) string {
	domain, _, _ := SplitEntityID(entityID)
	return domain
}

// Normalized fills Domain from EntityID when it was omitted by the registry.
func (e Entity) Normalized() Entity {
	if e.Domain == "" {
		e.Domain = DomainOf(e.EntityID)
	}
	return e
}

// EntityIndex looks entities up by id.
type EntityIndex map[string]Entity

// NewEntityIndex indexes entities by id, skipping malformed ones.
func NewEntityIndex(entities []Entity) EntityIndex {
	idx := make(EntityIndex, len(entities))
	for _, e := range entities {
		if _, _, ok := SplitEntityID(e.EntityID); !ok {
			continue
		}
		idx[e.EntityID] = e.Normalized()
	}
	return idx
}

// Area returns the area of an entity or "".
func (idx EntityIndex) Area(entityID string) string {
	return idx[entityID].AreaID
}
